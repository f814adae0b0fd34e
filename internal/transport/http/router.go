package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"chronotech-quiz-service/internal/app"
	"chronotech-quiz-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// TokenVerifier turns a bearer token into a verified identity.
type TokenVerifier interface {
	Verify(token string) (*domain.Identity, error)
}

// Services are the core components the HTTP surface exposes.
type Services struct {
	Accounts     *app.Accounts
	QuizCache    app.QuizCache
	Missions     *app.MissionTracker
	Achievements *app.AchievementEvaluator
	Forum        *app.Forum
	Leaderboard  *app.Leaderboard
	Reconciler   *app.Reconciler
	Quizzes      *app.QuizService
}

type Server struct {
	svc      Services
	verifier TokenVerifier
	gatherer prometheus.Gatherer
	log      *zap.Logger
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func NewServer(svc Services, verifier TokenVerifier, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		svc:      svc,
		verifier: verifier,
		gatherer: gatherer,
		log:      log,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/ws", s.ServeWS)

		r.Route("/v1", func(r chi.Router) {
			r.Post("/submitAnswer", s.submitAnswer)
			r.Get("/profile", s.profile)
			r.Get("/leaderboard", s.leaderboard)
			r.Get("/missions/today", s.todayMission)
			r.Get("/achievements", s.achievements)
			r.Post("/admin/quizzes/{quizID}/reload", s.reloadQuiz)

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", s.startSession)
				r.Get("/", s.currentSession)
				r.Post("/answer", s.answerSession)
				r.Post("/timeout", s.expireSession)
				r.Delete("/", s.abandonSession)
			})

			r.Route("/comments", func(r chi.Router) {
				r.Get("/", s.listComments)
				r.Post("/", s.postComment)
				r.Delete("/{commentID}", s.deleteComment)
				r.Post("/{commentID}/like", s.toggleLike)
				r.Get("/{commentID}/replies", s.listReplies)
				r.Post("/{commentID}/replies", s.postReply)
				r.Post("/{commentID}/replies/{replyID}/like", s.toggleLike)
				r.Delete("/{commentID}/replies/{replyID}", s.deleteComment)
			})
		})
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

type principalKey struct{}

// authenticate attaches the caller's principal when a token is presented.
// Anonymous requests pass through; a bad token is rejected outright.
// Websocket clients may pass the token as ?token= since browsers cannot set
// headers on the upgrade request.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" || s.verifier == nil {
			next.ServeHTTP(w, r)
			return
		}
		id, err := s.verifier.Verify(token)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		p, err := s.svc.Accounts.Resolve(r.Context(), id)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// PrincipalFrom returns the authenticated caller, or nil.
func PrincipalFrom(ctx context.Context) *domain.Principal {
	p, _ := ctx.Value(principalKey{}).(*domain.Principal)
	return p
}

func principalID(r *http.Request) string {
	if p := PrincipalFrom(r.Context()); p != nil {
		return p.UID
	}
	return ""
}
