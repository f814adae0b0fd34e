package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chronotech-quiz-service/internal/config"
	"chronotech-quiz-service/internal/identity"
	transport "chronotech-quiz-service/internal/transport/http"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := loadRuntime(ctx, configPath)
	if err != nil {
		return err
	}
	defer rt.Close()
	log := rt.log

	if rt.cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, rt.cfg, log); err != nil {
			return err
		}
	}

	scheduler, err := startMissionScheduler(ctx, rt)
	if err != nil {
		return err
	}
	defer scheduler.Stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = rt.cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	if rt.cfg.Auth.JWTSecret == "" {
		log.Warn("auth.jwtSecret is empty; all requests are anonymous")
	}
	verifier := identity.NewVerifier(rt.cfg.Auth.JWTSecret, rt.cfg.Auth.Issuer,
		config.TTLDuration(rt.cfg.Auth.TokenTTL, 24*time.Hour))
	api := transport.NewServer(rt.services, verifier, rt.registry, log.Named("http"))

	// no WriteTimeout: websocket feeds are long-lived
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting quiz service", zap.String("addr", server.Addr), zap.Bool("redis", rt.cfg.UseRedis()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down server")
	case err := <-errCh:
		log.Error("server failed", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// startMissionScheduler generates today's mission now and then on the
// configured schedule, in UTC.
func startMissionScheduler(ctx context.Context, rt *runtime) (*cron.Cron, error) {
	generate := func() {
		mission, created, err := rt.services.Missions.GenerateDailyMission(ctx)
		if err != nil {
			rt.log.Error("daily mission generation failed", zap.Error(err))
			return
		}
		if !created {
			rt.log.Debug("daily mission already present", zap.String("mission_id", mission.ID))
		}
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(rt.cfg.Missions.Schedule, generate); err != nil {
		return nil, err
	}
	generate()
	c.Start()
	rt.log.Info("mission scheduler started", zap.String("schedule", rt.cfg.Missions.Schedule))
	return c, nil
}
