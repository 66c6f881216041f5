package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/takemehome/accounts/config"
	"github.com/takemehome/accounts/internal/auth"
	"github.com/takemehome/accounts/internal/cache"
	"github.com/takemehome/accounts/internal/db"
	"github.com/takemehome/accounts/internal/handlers"
	"github.com/takemehome/accounts/internal/identity"
	"github.com/takemehome/accounts/internal/mq"
	"github.com/takemehome/accounts/internal/notify"
	"github.com/takemehome/accounts/internal/services"
	"github.com/takemehome/accounts/internal/verification"
)

// Server wraps the HTTP server, router and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	redis      *redis.Client
	queue      *mq.MQ
	notifier   *notify.Notifier
	logger     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens every dependency named by cfg and wires the routes.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{logger: logger}
	if err := s.open(ctx, cfg); err != nil {
		s.closeConnections()
		return nil, err
	}

	passwords, err := auth.NewPasswordHasher(cfg.Auth)
	if err != nil {
		s.closeConnections()
		return nil, err
	}
	tokens := auth.NewTokenService(cfg.Auth)
	stores := services.NewSQLStores(s.db)

	deps := services.UserServiceDeps{
		DB:                   s.db,
		Stores:               stores,
		Tokens:               tokens,
		Passwords:            passwords,
		Events:               s.queue,
		Logger:               logger,
		RequireVerifiedEmail: cfg.Auth.RequireVerifiedEmail,
	}
	if cfg.Cognito.Enabled() {
		provider, err := identity.NewCognito(ctx, cfg.Cognito)
		if err != nil {
			s.closeConnections()
			return nil, err
		}
		deps.Provider = provider
		deps.Codes = provider
	} else {
		deps.Codes = verification.NewCodeStore(s.redis, cfg.Redis.VerificationCodeTTL, cfg.Redis.MaxCodeAttempts)
	}

	userService := services.NewUserService(deps)
	authService := services.NewAuthService(stores.Users(s.db), tokens)

	if cfg.MQ.Backend == "memory" {
		s.notifier = notify.New(notify.LogMailer{Logger: logger}, logger)
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	if cfg.Sentry.DSN != "" {
		router.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	}
	router.Get("/healthz", handlers.Healthz(s.db))
	router.Route("/api/user", func(r chi.Router) {
		handlers.UserRouter(r, userService, authService, logger)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) open(ctx context.Context, cfg config.Config) error {
	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	s.db = dbConn

	if !cfg.Cognito.Enabled() {
		client, err := cache.Open(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("open redis: %w", err)
		}
		s.redis = client
	}

	queue, err := mq.Open(ctx, cfg.MQ, s.logger)
	if err != nil {
		return fmt.Errorf("open mq: %w", err)
	}
	s.queue = queue
	return nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the in-process notifier, when there is one, and the HTTP server.
// It blocks until the server stops and returns nil after a graceful shutdown.
func (s *Server) Start() error {
	if s.notifier != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			err := s.queue.SubscribeEvents(ctx, s.notifier.Handle)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, mq.ErrBackendClosed) {
				s.logger.Error("notifier stopped", "error", err)
			}
		}()
	}

	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx is
// done and closes every connection.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.closeConnections()
	sentry.Flush(2 * time.Second)
	return err
}

func (s *Server) closeConnections() {
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			s.logger.Warn("closing mq failed", "error", err)
		}
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
