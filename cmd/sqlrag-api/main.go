// Command sqlrag-api serves the question-answering pipeline over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sqlrag/sqlrag/internal/api"
	"github.com/sqlrag/sqlrag/internal/app"
	"github.com/sqlrag/sqlrag/internal/auth"
	"github.com/sqlrag/sqlrag/internal/config"
	"github.com/sqlrag/sqlrag/internal/observability"
)

const shutdownGrace = 15 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg, err := config.LoadFromEnv("sqlrag-api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("sqlrag-api stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	runtime, err := app.Build(ctx, cfg, logger, app.Options{})
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer func() { _ = runtime.Close() }()

	deps := api.Dependencies{
		Logger:       logger,
		Catalog:      runtime.Catalog,
		Descriptions: runtime.Descriptions,
		Pipeline:     runtime.Pipeline,
		Artifacts:    runtime.Objects,
		Runs:         runtime.Runs,
		Model:        runtime.Model(),
		Readiness: api.CombineReadinessChecks(
			api.CheckDatabasesRoot(cfg),
			api.CheckObjectStoreConfig(cfg),
			runtime.HealthCheck,
		),
		DependencyTimeout: 2 * time.Second,
		BatchConcurrency:  cfg.Eval.Concurrency,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			return fmt.Errorf("static api keys: %w", err)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("listening",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("model", runtime.Model()),
			slog.Bool("auth", cfg.Auth.Required),
		)
		listenErr <- server.ListenAndServe()
	}()

	select {
	case err := <-listenErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("draining in-flight questions", slog.Duration("grace", shutdownGrace))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
