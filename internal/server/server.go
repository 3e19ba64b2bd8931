// Package server собирает HTTP сервер: хранилище, обработчики,
// middleware и фоновые компоненты.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/iudanet/syncvault/internal/server/config"
	"github.com/iudanet/syncvault/internal/server/handlers"
	"github.com/iudanet/syncvault/internal/server/metrics"
	"github.com/iudanet/syncvault/internal/server/middleware"
	"github.com/iudanet/syncvault/internal/server/notifier"
	"github.com/iudanet/syncvault/internal/server/push"
	"github.com/iudanet/syncvault/internal/server/storage/sqlite"
)

// Server владеет всеми компонентами и их жизненным циклом
type Server struct {
	cfg     config.Config
	logger  *slog.Logger
	storage *sqlite.Storage
	hub     *notifier.Hub
	httpSrv *http.Server
}

// New создает сервер: открывает базу, применяет миграции и собирает роутер
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, version string) (*Server, error) {
	secret, err := cfg.JWTSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to load jwt secret: %w", err)
	}

	store, err := sqlite.New(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	jwtConfig := handlers.JWTConfig{
		Secret:          secret,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	}

	m := metrics.New(nil)
	hub := notifier.NewHub(logger, m)
	pushSvc := push.NewService(store, push.NewFanout(logger, m), logger)

	srv := &Server{
		cfg:     cfg,
		logger:  logger,
		storage: store,
		hub:     hub,
	}
	srv.httpSrv = &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: srv.buildHandler(jwtConfig, m, hub, pushSvc, version),
	}

	return srv, nil
}

// buildHandler собирает роутер и цепочку middleware
func (s *Server) buildHandler(
	jwtConfig handlers.JWTConfig,
	m *metrics.Metrics,
	hub *notifier.Hub,
	pushSvc *push.Service,
	version string,
) http.Handler {
	authHandler := handlers.NewAuthHandler(s.logger, s.storage, s.storage, jwtConfig)
	kvHandler := handlers.NewKVHandler(s.logger, s.storage, hub, pushSvc, m)
	subscribeHandler := handlers.NewSubscribeHandler(s.logger, hub)
	pushHandler := handlers.NewPushHandler(s.logger, s.storage)
	healthHandler := handlers.NewHealthHandler(s.logger, version)

	authRequired := middleware.AuthMiddleware(s.logger, jwtConfig)
	protected := func(h http.HandlerFunc) http.Handler {
		return authRequired(h)
	}

	mux := http.NewServeMux()

	// Auth
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("GET /api/v1/auth/salt/{username}", authHandler.GetSalt)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", authHandler.Logout)
	mux.Handle("GET /api/v1/auth/keys", protected(authHandler.GetKeyBundle))

	// Records
	mux.Handle("GET /api/v1/records/{key}", protected(kvHandler.Get))
	mux.Handle("GET /api/v1/records", protected(kvHandler.Scan))
	mux.Handle("POST /api/v1/records/mutate", protected(kvHandler.Mutate))

	// Change feed
	mux.Handle("GET /api/v1/subscribe", protected(subscribeHandler.Subscribe))

	// Push endpoints
	mux.Handle("POST /api/v1/push/endpoints", protected(pushHandler.Register))
	mux.Handle("DELETE /api/v1/push/endpoints/{id}", protected(pushHandler.Delete))

	// Operational
	mux.HandleFunc("GET /api/v1/health", healthHandler.Health)
	mux.Handle("GET /metrics", m.Handler())

	// Middleware применяются снаружи внутрь: recovery первым,
	// чтобы поймать панику в любом из следующих слоев
	var handler http.Handler = mux
	handler = middleware.RateLimitMiddleware(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst, s.logger)(handler)
	handler = middleware.MetricsMiddleware(m)(handler)
	handler = middleware.LoggingWithSkip(s.logger, []string{"/api/v1/health", "/metrics"})(handler)
	handler = middleware.RecoveryMiddleware(s.logger)(handler)

	return handler
}

// Run запускает HTTP сервер и блокируется до отмены ctx,
// затем выполняет graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server listening", "address", s.cfg.ListenAddress)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "grace_period", s.cfg.ShutdownGracePeriod)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("graceful shutdown failed", slog.Any("error", err))
	}

	if err := s.storage.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}

	return nil
}
