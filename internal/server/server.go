// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: New opens the store and builds every service
// and handler, setupRoutes decides which URL maps to which handler and which
// routes sit behind RequireAuth, and Start runs the server until SIGINT or
// SIGTERM.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/study-timer/internal/auth"
	"github.com/sakif/study-timer/internal/handler"
	"github.com/sakif/study-timer/internal/middleware"
	"github.com/sakif/study-timer/internal/repository"
	"github.com/sakif/study-timer/internal/repository/postgres"
	sqliteRepo "github.com/sakif/study-timer/internal/repository/sqlite"
	"github.com/sakif/study-timer/internal/service"
)

// Config holds server configuration, filled from the environment in
// cmd/server.
type Config struct {
	Port int

	// DatabaseURL selects Postgres when set; otherwise DBPath is opened as
	// an SQLite file (":memory:" for tests).
	DatabaseURL string
	DBPath      string

	JWTSecret   string
	CORSOrigins []string

	// PasswordCost is the bcrypt work factor; 0 means auth.DefaultCost.
	PasswordCost int

	// StatsLocation decides which calendar day a study session is logged
	// under. Nil means UTC.
	StatsLocation *time.Location

	// GitHub sign-in is mounted only when the client ID and secret are set.
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
	// FrontendURL is where the GitHub callback redirects the browser.
	FrontendURL string
}

// GitHubEnabled reports whether the GitHub routes should be mounted.
func (c Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// store is what the server needs from a storage backend: the repository
// plus a Close for shutdown.
type store interface {
	repository.UserRepository
	io.Closer
}

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the store and closes it on shutdown, after in-flight
// requests have finished.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	store  store
}

// New opens the configured store and wires the router.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	st, backend, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	logger.Info("database ready", slog.String("backend", backend))

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  st,
	}

	if err := s.setupRoutes(); err != nil {
		st.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func openStore(cfg Config) (store, string, error) {
	if cfg.DatabaseURL != "" {
		db, err := postgres.New(postgres.Config{DSN: cfg.DatabaseURL})
		return db, "postgres", err
	}
	if cfg.DBPath == "" {
		return nil, "", errors.New("no database configured: set DATABASE_URL or DB_PATH")
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	return db, "sqlite", err
}

// Handler returns the root HTTP handler. Tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz                 → liveness
//	POST /user/register           → create account
//	GET  /user/check?username=    → username availability
//	POST /api/token/              → access + refresh token
//	POST /api/token/refresh/      → new access token
//	GET  /user/                   → profile            (auth)
//	PUT  /user/                   → update preferences (auth)
//	GET  /user/analytics/         → study stats        (auth)
//	POST /user/analytics/         → record study time  (auth)
//	POST /auth/logout             → clear token cookie
//	GET  /auth/github/login       → (GitHub configured only)
//	GET  /auth/github/callback    → (GitHub configured only)
//
// MIDDLEWARE ORDER MATTERS:
// RequestID first so the logger can report it, Recoverer last so a panic in
// a handler is still logged as a 500 by Logger.
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	passwords := auth.NewPasswordService()
	if s.config.PasswordCost != 0 {
		passwords = auth.NewPasswordServiceWithCost(s.config.PasswordCost)
	}

	accounts := service.NewAccountService(s.store, tokens, passwords, s.logger)
	prefs := service.NewPreferenceService(s.store, s.logger)
	stats := service.NewAnalyticsService(s.store, s.config.StatsLocation, s.logger)

	userHandler := handler.NewUserHandler(accounts, prefs, s.logger)
	analyticsHandler := handler.NewAnalyticsHandler(stats, s.logger)
	tokenHandler := handler.NewTokenHandler(accounts, s.logger)

	var github handler.GitHubExchanger
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	}
	authHandler := handler.NewAuthHandler(github, accounts, s.config.FrontendURL, s.logger)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.CORS(s.config.CORSOrigins))

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}` + "\n"))
	})

	// === Public routes ===
	s.router.Post("/user/register", userHandler.HandleRegister)
	s.router.Get("/user/check", userHandler.HandleCheckUsername)
	s.router.Post("/api/token/", tokenHandler.HandleObtain)
	s.router.Post("/api/token/refresh/", tokenHandler.HandleRefresh)
	s.router.Post("/auth/logout", authHandler.HandleLogout)

	if github != nil {
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	} else {
		s.logger.Info("GitHub sign-in disabled: GITHUB_CLIENT_ID or GITHUB_CLIENT_SECRET not set")
	}

	// === Authenticated routes ===
	// RequireAuth answers 401 before any of these handlers run.
	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Get("/user/", userHandler.HandleProfile)
		r.Put("/user/", userHandler.HandleUpdatePreferences)
		r.Get("/user/analytics/", analyticsHandler.HandleGet)
		r.Post("/user/analytics/", analyticsHandler.HandleRecord)
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the store (deferred, so it runs on every return path)
func (s *Server) Start() error {
	defer s.store.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Close releases the store without starting the server. Used by tests.
func (s *Server) Close() error {
	return s.store.Close()
}
