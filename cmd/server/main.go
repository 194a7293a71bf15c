package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardmate/cardmate/internal/auth"
	"github.com/cardmate/cardmate/internal/config"
	httpserver "github.com/cardmate/cardmate/internal/http"
	"github.com/cardmate/cardmate/internal/logging"
	"github.com/cardmate/cardmate/internal/store"
)

func main() {
	logger := logging.New(os.Getenv("APP_LOG_LEVEL"))
	logger.Info().Msg("starting cardmate server")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create db pool")
	}
	defer pool.Close()

	if err := store.ApplyMigrations(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply migrations")
	}

	st := store.New(pool)
	sessionManager := auth.NewSessionManager(cfg)
	authService, err := auth.NewService(ctx, cfg, st, sessionManager, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize auth service")
	}

	r := httpserver.NewRouter(cfg, st, authService, logger)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
