package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestStaticAPIKeyValidatorParsing(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:analyst:query_reader|eval_runner:car_1|pets_1, k2:ops:query_reader")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	identity, ok := validator.Validate(context.Background(), "k1")
	if !ok {
		t.Fatal("expected key to be valid")
	}
	if identity.Principal != "analyst" {
		t.Fatalf("Principal = %q", identity.Principal)
	}
	if !identity.HasRole(RoleEvalRunner) || !identity.HasRole(RoleQueryReader) {
		t.Fatalf("Roles = %v", identity.Roles)
	}
	if !identity.CanAccess("car_1") || identity.CanAccess("world_1") {
		t.Fatalf("Databases = %v", identity.Databases)
	}

	unrestricted, ok := validator.Validate(context.Background(), "k2")
	if !ok || !unrestricted.CanAccess("world_1") {
		t.Fatalf("k2 identity = %+v", unrestricted)
	}
}

func TestStaticAPIKeyValidatorRejectsBadSpec(t *testing.T) {
	for _, spec := range []string{"invalid", "k1::query_reader", "k1:p:", "k1:p:r,k1:q:r"} {
		if _, err := NewStaticAPIKeyValidator(spec); err == nil {
			t.Fatalf("NewStaticAPIKeyValidator(%q) expected parse error", spec)
		}
	}
}

func TestMiddlewareRequiresKey(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:analyst:query_reader")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}
	mw := Middleware(slog.New(slog.NewJSONHandler(io.Discard, nil)), validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/databases", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/databases", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("invalid key status = %d", rr.Code)
	}
}

func TestMiddlewareInjectsIdentity(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:analyst:query_reader")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}
	mw := Middleware(nil, validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		if identity.Principal != "analyst" {
			t.Fatalf("Principal = %q", identity.Principal)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/databases", nil)
	req.Header.Set("X-API-Key", "k1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCredentialsSchemes(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		value   string
		wantKey string
		wantErr error
	}{
		{name: "api key header", header: "X-API-Key", value: " k1 ", wantKey: "k1"},
		{name: "bearer", header: "Authorization", value: "Bearer k1", wantKey: "k1"},
		{name: "lowercase bearer", header: "Authorization", value: "bearer k1", wantKey: "k1"},
		{name: "basic", header: "Authorization", value: "Basic abc", wantErr: ErrUnsupportedScheme},
		{name: "empty bearer", header: "Authorization", value: "Bearer   ", wantErr: ErrMissingCredentials},
		{name: "bare bearer", header: "Authorization", value: "bearer", wantErr: ErrMissingCredentials},
		{name: "bare basic", header: "Authorization", value: "Basic", wantErr: ErrUnsupportedScheme},
		{name: "none", wantErr: ErrMissingCredentials},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			key, err := credentials(req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("credentials() error = %v, want %v", err, tc.wantErr)
			}
			if key != tc.wantKey {
				t.Fatalf("credentials() = %q, want %q", key, tc.wantKey)
			}
		})
	}
}

func TestMiddlewareRejectionBody(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:analyst:query_reader")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}
	handler := Middleware(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	before := authFailureCount(t, "scheme")
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
	req.Header.Set("Authorization", "Basic azE6")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error_code"] != "UNAUTHORIZED" || body["message"] != ErrUnsupportedScheme.Error() {
		t.Fatalf("body = %v", body)
	}
	if got := authFailureCount(t, "scheme") - before; got != 1 {
		t.Fatalf("scheme failures = %v, want 1", got)
	}
}

func TestRequireRoleAndAllowsDatabase(t *testing.T) {
	ctx := context.Background()
	if err := RequireRole(ctx, RoleEvalRunner); err != nil {
		t.Fatalf("unauthenticated RequireRole() error = %v", err)
	}
	if !AllowsDatabase(ctx, "world_1") {
		t.Fatal("unauthenticated caller should reach every database")
	}

	ctx = WithIdentity(ctx, Identity{Principal: "analyst", Roles: []string{RoleQueryReader}, Databases: []string{"car_1"}})
	if err := RequireRole(ctx, RoleQueryReader); err != nil {
		t.Fatalf("RequireRole(query_reader) error = %v", err)
	}
	if err := RequireRole(ctx, RoleEvalRunner); !errors.Is(err, ErrForbidden) {
		t.Fatalf("RequireRole(eval_runner) error = %v", err)
	}
	if !AllowsDatabase(ctx, "car_1") || AllowsDatabase(ctx, "world_1") {
		t.Fatal("database scope not applied")
	}
}

func authFailureCount(t *testing.T, reason string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, family := range families {
		if family.GetName() != "sqlrag_auth_failures_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "reason" && label.GetValue() == reason {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
