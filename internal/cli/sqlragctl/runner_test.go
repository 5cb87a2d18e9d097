package sqlragctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunDatabasesCommand(t *testing.T) {
	var gotMethod, gotPath, gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"databases":["car_1"]}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-api-key", "k1",
		"databases",
	}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodGet || gotPath != "/v1/databases" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotAPIKey != "k1" {
		t.Fatalf("api key = %q", gotAPIKey)
	}
	if !strings.Contains(stdout.String(), "car_1") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunAskCommandSendsCandidates(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/ask" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"sql":"SELECT count(*) FROM singer","answer":"The result is: 6."}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "-db", "concert_singer, singer", "-plain", "ask", "How", "many", "singers?"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if payload["question"] != "How many singers?" {
		t.Fatalf("question = %v", payload["question"])
	}
	ids, _ := payload["db_ids"].([]any)
	if len(ids) != 2 || ids[0] != "concert_singer" || ids[1] != "singer" {
		t.Fatalf("db_ids = %v", payload["db_ids"])
	}
	if stdout.String() != "SELECT count(*) FROM singer\n\nThe result is: 6.\n" {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunAskSingleDatabase(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	if code := Run(context.Background(), []string{"-base-url", srv.URL, "-db", "car_1", "ask", "q"}, Options{}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if payload["db_id"] != "car_1" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestRunBatchCommandPostsFile(t *testing.T) {
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		received = string(data)
		w.Header().Set("Content-Type", "text/tab-separated-values")
		_, _ = w.Write([]byte("SELECT 1\tcar_1"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "questions.json")
	if err := os.WriteFile(path, []byte(`[{"question":"q","db_id":"car_1"}]`), 0o644); err != nil {
		t.Fatalf("write questions: %v", err)
	}
	var stdout bytes.Buffer
	if code := Run(context.Background(), []string{"-base-url", srv.URL, "batch", path}, Options{Stdout: &stdout}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(received, `"db_id":"car_1"`) {
		t.Fatalf("received = %q", received)
	}
	if stdout.String() != "SELECT 1\tcar_1\n" {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error_code":"FORBIDDEN"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "databases"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	for _, args := range [][]string{{"unknown"}, {"ask"}, {"schema"}, {}} {
		var stderr bytes.Buffer
		if code := Run(context.Background(), args, Options{Stderr: &stderr}); code != 2 {
			t.Fatalf("Run(%v) exit code = %d", args, code)
		}
		if stderr.Len() == 0 {
			t.Fatalf("Run(%v) expected usage output", args)
		}
	}
}
