package observability

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const traceHeader = "X-Trace-ID"

// Incoming trace IDs are echoed into logs and response headers, so only
// short opaque tokens are accepted.
var validTraceID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// TraceMiddleware attaches a trace ID to the request context and the
// response. A missing or malformed X-Trace-ID is replaced by a new UUID.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if !validTraceID.MatchString(traceID) {
			traceID = uuid.NewString()
		}
		w.Header().Set(traceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ContextWithTraceID(r.Context(), traceID)))
	})
}

// AccessMiddleware records request metrics and writes one access log line
// per request. Probe and scrape routes log at debug level.
func AccessMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = OrDiscard(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			elapsed := time.Since(start)

			route := routeLabel(r)
			status := strconv.Itoa(recorder.status)
			httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			httpRequestDurationSeconds.WithLabelValues(r.Method, route, status).Observe(elapsed.Seconds())

			logger.Log(r.Context(), accessLevel(r, recorder.status), "http_request",
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Int("status", recorder.status),
				slog.Duration("duration", elapsed),
				slog.Int("bytes", recorder.bytes),
			)
		})
	}
}

func accessLevel(r *http.Request, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	}
	switch r.URL.Path {
	case "/v1/health", "/v1/ready", "/v1/metrics":
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// RecoverMiddleware turns a handler panic into a 500 response in the API
// error envelope.
func RecoverMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = OrDiscard(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				httpPanicsTotal.Inc()
				logger.ErrorContext(r.Context(), "http_panic",
					slog.String("path", r.URL.Path),
					slog.String("panic", fmt.Sprint(recovered)),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error_code": "INTERNAL",
					"message":    "internal server error",
					"retryable":  false,
					"trace_id":   TraceIDFromContext(r.Context()),
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// routeLabel prefers the matched mux pattern so per-database routes share
// one series. ServeMux sets Pattern on the request it was handed.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(body []byte) (int, error) {
	r.wroteHeader = true
	n, err := r.ResponseWriter.Write(body)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
