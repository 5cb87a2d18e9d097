package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sqlrag/sqlrag/internal/observability"
)

var (
	ErrMissingCredentials = errors.New("missing API key")
	ErrInvalidCredentials = errors.New("invalid API key")
	ErrUnsupportedScheme  = errors.New("unsupported authorization scheme")
	ErrForbidden          = errors.New("forbidden")
)

type identityKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

// RequireRole passes when the request is unauthenticated (auth disabled) or
// the caller holds role.
func RequireRole(ctx context.Context, role string) error {
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.HasRole(role) {
		return nil
	}
	observability.RecordAuthFailure("forbidden")
	return fmt.Errorf("%w: missing required role %q", ErrForbidden, role)
}

// AllowsDatabase reports whether the caller's key is scoped to dbID.
func AllowsDatabase(ctx context.Context, dbID string) bool {
	identity, ok := IdentityFromContext(ctx)
	return !ok || identity.CanAccess(dbID)
}

// Middleware resolves the caller from X-API-Key or a Bearer token and
// rejects the request with 401 before it reaches the pipeline.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	logger = observability.OrDiscard(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, err := credentials(r)
			if err == nil {
				identity, ok := validator.Validate(r.Context(), apiKey)
				if ok {
					logger.DebugContext(r.Context(), "authenticated",
						slog.String("principal", identity.Principal),
						slog.Int("scoped_databases", len(identity.Databases)),
					)
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
					return
				}
				err = ErrInvalidCredentials
			}

			observability.RecordAuthFailure(failureReason(err))
			logger.WarnContext(r.Context(), "authentication failed",
				slog.String("path", r.URL.Path),
				slog.String("reason", err.Error()),
			)
			writeUnauthorized(w, r, err)
		})
	}
}

func credentials(r *http.Request) (string, error) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, nil
	}
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if authorization == "" {
		return "", ErrMissingCredentials
	}
	scheme, token, _ := strings.Cut(authorization, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", ErrUnsupportedScheme
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", ErrMissingCredentials
	}
	return token, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return "missing"
	case errors.Is(err, ErrUnsupportedScheme):
		return "scheme"
	default:
		return "invalid"
	}
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="sqlrag"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": "UNAUTHORIZED",
		"message":    err.Error(),
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
