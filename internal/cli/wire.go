package cli

import (
	"context"
	"fmt"
	"time"

	"chronotech-quiz-service/internal/app"
	"chronotech-quiz-service/internal/config"
	"chronotech-quiz-service/internal/docstore"
	"chronotech-quiz-service/internal/domain"
	"chronotech-quiz-service/internal/infra/memory"
	pgloader "chronotech-quiz-service/internal/infra/postgres"
	infraredis "chronotech-quiz-service/internal/infra/redis"
	"chronotech-quiz-service/internal/logger"
	"chronotech-quiz-service/internal/metrics"
	transport "chronotech-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// quizLoader is satisfied by every authored-content source.
type quizLoader interface {
	memory.QuizLoader
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
}

// runtime is the wired process: stores, caches and core services.
type runtime struct {
	cfg      config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	store    docstore.Store
	loader   quizLoader
	quizzes  app.QuizCache
	services transport.Services
	closers  []func()
}

func loadRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Env, cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	rt, err := buildRuntime(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return rt, nil
}

func buildRuntime(ctx context.Context, cfg config.Config, log *zap.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(rt.registry)

	var redisClient *redis.Client
	if cfg.UseRedis() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = redisClient.Close() })
	}

	if redisClient != nil {
		store := infraredis.NewDocStore(redisClient, rec, log.Named("docstore"))
		store.SetMaxAttempts(cfg.Store.MaxAttempts)
		rt.store = store
		rt.closers = append([]func(){store.Close}, rt.closers...)
	} else {
		store := memory.NewDocStore(rec)
		store.SetMaxAttempts(cfg.Store.MaxAttempts)
		rt.store = store
	}

	rt.loader = app.NewStoreQuizLoader(rt.store)
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		rt.loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizCache
	var sessions app.SessionRepository
	if redisClient != nil {
		quizzes = infraredis.NewQuizRepository(redisClient, rt.loader, quizTTL, log.Named("quiz-cache"))
		sessions = infraredis.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 30*time.Minute))
	} else {
		quizzes = memory.NewQuizRepository(rt.loader, quizTTL)
		sessions = memory.NewSessionStore()
	}

	opts := []app.Option{app.WithLogger(log), app.WithMetrics(rec)}
	ledger := app.NewLedger(rt.store, quizzes, opts...)
	achievements := app.NewAchievementEvaluator(rt.store, opts...)
	missions := app.NewMissionTracker(rt.store, ledger, opts...)
	reconciler := app.NewReconciler(rt.store, ledger, missions, achievements, opts...)
	quizService := app.NewQuizService(sessions, quizzes, ledger, reconciler, opts...)
	quizService.SetQuestionTimeLimit(config.TTLDuration(cfg.Session.QuestionTimeLimit, app.DefaultQuestionTimeLimit))
	rt.quizzes = quizzes

	rt.services = transport.Services{
		Accounts:     app.NewAccounts(rt.store, ledger, achievements, opts...),
		QuizCache:    quizzes,
		Missions:     missions,
		Achievements: achievements,
		Forum:        app.NewForum(rt.store, achievements, opts...),
		Leaderboard:  app.NewLeaderboard(rt.store, opts...),
		Reconciler:   reconciler,
		Quizzes:      quizService,
	}
	return rt, nil
}

// Close releases connections in reverse dependency order and flushes the logger.
func (rt *runtime) Close() {
	for _, c := range rt.closers {
		c()
	}
	_ = rt.log.Sync()
}
