// Package main is the entry point for the study-timer account server.
//
// main only reads configuration, builds the logger and hands both to
// internal/server; all behaviour lives in the internal packages.
//
// CONFIGURATION (environment, optionally from a .env file):
//
//	PORT                  listen port (8080)
//	DATABASE_URL          Postgres DSN; when set, SQLite is not used
//	DB_PATH               SQLite file (data/accounts.db)
//	JWT_SECRET            HMAC key for access/refresh tokens, >= 16 chars (required)
//	CORS_ORIGINS          comma-separated browser origins (http://localhost:5173)
//	STATS_TIMEZONE        IANA zone that decides "today" for study logs (UTC)
//	LOG_LEVEL             debug, info, warn or error (info)
//	LOG_FILE              also log to this file, rotated daily (unset: stdout only)
//	GITHUB_CLIENT_ID      \
//	GITHUB_CLIENT_SECRET   } optional GitHub sign-in
//	GITHUB_CALLBACK_URL   /
//	FRONTEND_URL          where GitHub sign-in redirects to (/)
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/study-timer/internal/middleware"
	"github.com/sakif/study-timer/internal/server"
)

func main() {
	os.Exit(run())
}

// run exists so deferred cleanup (the log file) happens before os.Exit.
func run() int {
	// === 1. LOAD .env ===
	// Real environment variables win over the file; a missing file is fine.
	envErr := godotenv.Load()

	// === 2. SET UP LOGGING ===
	level, levelErr := parseLevel(os.Getenv("LOG_LEVEL"))
	logger, logCloser, err := newLogger(level, os.Getenv("LOG_FILE"))
	if err != nil {
		slog.Error("failed to set up logging", slog.String("error", err.Error()))
		return 1
	}
	if logCloser != nil {
		defer logCloser.Close()
	}
	slog.SetDefault(logger)

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logger.Warn("could not read .env", slog.String("error", envErr.Error()))
	}
	if levelErr != nil {
		logger.Warn("invalid LOG_LEVEL, using info", slog.String("error", levelErr.Error()))
	}

	// === 3. READ CONFIGURATION ===
	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return 1
	}

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return 1
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return 1
	}
	return 0
}

func loadConfig() (server.Config, error) {
	cfg := server.Config{
		Port:               8080,
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DBPath:             getenv("DB_PATH", "data/accounts.db"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		CORSOrigins:        middleware.ParseOrigins(os.Getenv("CORS_ORIGINS")),
		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		FrontendURL:        getenv("FRONTEND_URL", "/"),
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return cfg, fmt.Errorf("invalid PORT %q", portStr)
		}
		cfg.Port = port
	}

	if cfg.JWTSecret == "" {
		return cfg, errors.New("JWT_SECRET must be set (e.g. JWT_SECRET=$(openssl rand -hex 32))")
	}

	loc, err := time.LoadLocation(getenv("STATS_TIMEZONE", "UTC"))
	if err != nil {
		return cfg, fmt.Errorf("invalid STATS_TIMEZONE: %w", err)
	}
	cfg.StatsLocation = loc

	cfg.GitHubCallbackURL = getenv("GITHUB_CALLBACK_URL",
		fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port))

	// SQLite creates the file but not its directory.
	if cfg.DatabaseURL == "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return cfg, fmt.Errorf("creating database directory: %w", err)
		}
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
