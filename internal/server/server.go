// Package server wires the HTTP router, all dependencies, and the
// process lifecycle.
//
// This is the composition root: New assembles
//
//	sqlite.DB → repositories
//	TokenService / PasswordService → AuthService
//	AnthropicClient → worker.Pool → QueryService
//	services → handlers → routes
//
// so every other package receives its dependencies through constructors
// and never reaches for globals.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/llm-relay/internal/auth"
	"github.com/sakif/llm-relay/internal/config"
	"github.com/sakif/llm-relay/internal/gateway"
	"github.com/sakif/llm-relay/internal/handler"
	"github.com/sakif/llm-relay/internal/middleware"
	sqliteRepo "github.com/sakif/llm-relay/internal/repository/sqlite"
	"github.com/sakif/llm-relay/internal/service"
	"github.com/sakif/llm-relay/internal/worker"
)

// Server owns the router, the database connection, and the worker pool.
// Start runs until a shutdown signal; shutdown drains HTTP first, then
// the pool, then closes the database — in that order, because draining
// workers still write job results.
type Server struct {
	router *chi.Mux
	cfg    config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	pool   *worker.Pool
}

// New assembles the full dependency graph.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTExpiresIn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	gw, err := gateway.NewAnthropicClient(gateway.AnthropicConfig{
		APIKey:  cfg.AnthropicAPIKey,
		BaseURL: cfg.AnthropicAPIURL,
		Model:   cfg.AnthropicModel,
	}, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating model gateway: %w", err)
	}

	pool := worker.New(gw, db, cfg.WorkerCount, cfg.QueueSize, cfg.CompletionTimeout, logger)

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
		pool:   pool,
	}

	s.setupRoutes(tokens)

	return s, nil
}

// setupRoutes configures middleware and all route handlers.
func (s *Server) setupRoutes(tokens *auth.TokenService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	// Permissive CORS: this API serves browser frontends on other
	// origins and carries its own bearer-token auth.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	passwords := auth.NewPasswordService()
	authService := service.NewAuthService(s.db, tokens, passwords, s.logger)
	queryService := service.NewQueryService(s.db, s.pool, s.logger)

	authHandler := handler.NewAuthHandler(authService, s.logger)
	queryHandler := handler.NewQueryHandler(queryService, s.logger)

	s.router.Get("/health", queryHandler.HandleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Get("/secure-data", authHandler.HandleSecureData)
	})

	s.router.Route("/api/v1", func(r chi.Router) {
		r.With(auth.RequireAuthOrTestUser(tokens, s.cfg.TestUserID)).
			Post("/process_query/{user_id}", queryHandler.HandleProcessQuery)
		// Polling is unauthenticated: the random job ID is the capability.
		r.Get("/job_status/{job_id}", queryHandler.HandleJobStatus)
	})
}

// Start runs the worker pool and HTTP server until SIGINT/SIGTERM,
// then shuts down gracefully.
func (s *Server) Start() error {
	defer s.db.Close()

	s.pool.Start()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.router,
		// Write timeout exceeds nothing LLM-related: the model call
		// happens on the pool, never inside a request.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("database", s.cfg.DBPath),
			slog.String("model", s.cfg.AnthropicModel),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		s.pool.Stop()
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			s.pool.Stop()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		// Drain queued completions before the deferred db.Close —
		// workers are still writing results at this point.
		s.pool.Stop()
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
