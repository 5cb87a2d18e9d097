package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sqlrag/sqlrag/internal/config"
	"github.com/sqlrag/sqlrag/internal/eval"
	"github.com/sqlrag/sqlrag/internal/observability"
	"github.com/sqlrag/sqlrag/internal/schema"
	"github.com/sqlrag/sqlrag/internal/storage"
	"github.com/sqlrag/sqlrag/internal/workflow"
)

type ReadinessCheck func(ctx context.Context) error

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration

	Catalog      workflow.Catalog
	Descriptions schema.Descriptions
	Pipeline     eval.Asker

	// Optional destinations for batch runs.
	Artifacts storage.ObjectStore
	Runs      eval.RunStore

	BatchConcurrency int
	MaxBatchSize     int
	Model            string
}

// NewHandler mounts the probe, metrics and question routes. Question routes
// go through deps.AuthMiddleware when cfg.Auth.Required is set.
func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name, "model": deps.Model})
	})
	mux.HandleFunc("GET /v1/ready", deps.ready)
	mux.Handle("GET /v1/metrics", promhttp.Handler())

	guard := guardFor(cfg, deps)
	routes := []struct {
		pattern string
		handle  func(Dependencies, http.ResponseWriter, *http.Request)
	}{
		{"GET /v1/databases", handleListDatabases},
		{"GET /v1/databases/{db}/schema", handleDatabaseSchema},
		{"POST /v1/ask", handleAsk},
		{"POST /v1/ask/batch", handleAskBatch},
	}
	for _, route := range routes {
		handle := route.handle
		mux.Handle(route.pattern, guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handle(deps, w, r)
		})))
	}

	return chain(mux,
		observability.TraceMiddleware,
		observability.AccessMiddleware(deps.Logger),
		observability.RecoverMiddleware(deps.Logger),
	)
}

func (deps Dependencies) ready(w http.ResponseWriter, r *http.Request) {
	if deps.Readiness == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
		return
	}
	timeout := deps.DependencyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	if err := deps.Readiness(ctx); err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// guardFor refuses every question route when auth is required but no
// middleware was wired, rather than serving them open.
func guardFor(cfg config.Config, deps Dependencies) func(http.Handler) http.Handler {
	switch {
	case !cfg.Auth.Required:
		return func(next http.Handler) http.Handler { return next }
	case deps.AuthMiddleware != nil:
		return deps.AuthMiddleware
	}
	observability.OrDiscard(deps.Logger).Error("auth required but no auth middleware configured")
	return func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
		})
	}
}

// CheckDatabasesRoot fails until the database root directory exists.
func CheckDatabasesRoot(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Databases.Root == "" {
			return errors.New("databases root is not configured")
		}
		info, err := os.Stat(cfg.Databases.Root)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return errors.New("databases root is not a directory")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.ObjectStore.Enabled {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
