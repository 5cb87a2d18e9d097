package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sqlrag/sqlrag/internal/auth"
	"github.com/sqlrag/sqlrag/internal/config"
	"github.com/sqlrag/sqlrag/internal/databases"
	"github.com/sqlrag/sqlrag/internal/eval"
	"github.com/sqlrag/sqlrag/internal/schema"
	"github.com/sqlrag/sqlrag/internal/workflow"
)

type fakePipeline struct {
	mu        sync.Mutex
	questions []workflow.Question
	answer    func(workflow.Question) workflow.Outcome
}

func (f *fakePipeline) Run(_ context.Context, question workflow.Question) workflow.Outcome {
	f.mu.Lock()
	f.questions = append(f.questions, question)
	f.mu.Unlock()
	return f.answer(question)
}

func newTestHandler(t *testing.T, deps Dependencies, env map[string]string) http.Handler {
	t.Helper()
	cfg, err := config.Load("sqlrag-api", mapLookup(env))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return NewHandler(cfg, deps)
}

func postJSON(t *testing.T, h http.Handler, path, key string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v (body=%s)", err, rr.Body.String())
	}
	return body
}

func seedSQLite(t *testing.T, root, dbID string, statements ...string) {
	t.Helper()
	path := filepath.Join(root, dbID, dbID+".sqlite")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	defer func() { _ = db.Close() }()
	for _, statement := range statements {
		if _, err := db.Exec(statement); err != nil {
			t.Fatalf("seed %q: %v", statement, err)
		}
	}
}

func TestAskReturnsOutcome(t *testing.T) {
	pipeline := &fakePipeline{answer: func(q workflow.Question) workflow.Outcome {
		return workflow.Outcome{SQL: "SELECT count(*) FROM singer", Answer: "The result is: 6.", Database: q.DatabaseIDs[0], Status: workflow.StatusAnswered}
	}}
	h := newTestHandler(t, Dependencies{Pipeline: pipeline}, map[string]string{})

	rr := postJSON(t, h, "/v1/ask", "", map[string]any{"question": "How many singers do we have?", "db_id": "concert_singer"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["sql"] != "SELECT count(*) FROM singer" || body["answer"] != "The result is: 6." || body["db_id"] != "concert_singer" {
		t.Fatalf("body = %v", body)
	}
	if len(pipeline.questions) != 1 || pipeline.questions[0].Text != "How many singers do we have?" {
		t.Fatalf("questions = %+v", pipeline.questions)
	}
}

func TestAskValidatesRequest(t *testing.T) {
	pipeline := &fakePipeline{answer: func(workflow.Question) workflow.Outcome { return workflow.Outcome{} }}
	h := newTestHandler(t, Dependencies{Pipeline: pipeline}, map[string]string{})

	cases := []struct {
		name    string
		payload map[string]any
		code    string
	}{
		{name: "blank question", payload: map[string]any{"question": "  ", "db_id": "car_1"}, code: "QUESTION_REQUIRED"},
		{name: "both selectors", payload: map[string]any{"question": "q", "db_id": "car_1", "db_ids": []string{"pets_1"}}, code: "DATABASE_SELECTOR_CONFLICT"},
		{name: "path in id", payload: map[string]any{"question": "q", "db_id": "../etc"}, code: "INVALID_DATABASE_ID"},
		{name: "unknown field", payload: map[string]any{"question": "q", "sql": "SELECT 1"}, code: "INVALID_JSON"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := postJSON(t, h, "/v1/ask", "", tc.payload)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rr.Code)
			}
			if body := decodeBody(t, rr); body["error_code"] != tc.code {
				t.Fatalf("error_code = %v, want %s", body["error_code"], tc.code)
			}
		})
	}
	if len(pipeline.questions) != 0 {
		t.Fatal("pipeline must not run for invalid requests")
	}
}

func TestAskRestrictsCandidatesToAccessibleDatabases(t *testing.T) {
	root := t.TempDir()
	seedSQLite(t, root, "car_1", `CREATE TABLE cars (id INTEGER)`)
	seedSQLite(t, root, "pets_1", `CREATE TABLE pets (id INTEGER)`)
	seedSQLite(t, root, "world_1", `CREATE TABLE city (id INTEGER)`)

	validator, err := auth.NewStaticAPIKeyValidator("k1:analyst:query_reader:car_1|world_1")
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	pipeline := &fakePipeline{answer: func(q workflow.Question) workflow.Outcome { return workflow.Outcome{Database: q.DatabaseIDs[0]} }}
	h := newTestHandler(t, Dependencies{
		Pipeline:       pipeline,
		Catalog:        databases.NewCatalog(root),
		AuthMiddleware: auth.Middleware(nil, validator),
	}, map[string]string{"SQLRAG_AUTH_REQUIRED": "true"})

	rr := postJSON(t, h, "/v1/ask", "k1", map[string]any{"question": "How many cities?"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	got := pipeline.questions[0].DatabaseIDs
	if len(got) != 2 || got[0] != "car_1" || got[1] != "world_1" {
		t.Fatalf("candidates = %v", got)
	}

	rr = postJSON(t, h, "/v1/ask", "k1", map[string]any{"question": "q", "db_id": "pets_1"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAskBatchWritesPredictionLines(t *testing.T) {
	pipeline := &fakePipeline{answer: func(q workflow.Question) workflow.Outcome {
		if q.Text == "bad" {
			return workflow.Outcome{Status: workflow.StatusGenerationFailed}
		}
		return workflow.Outcome{SQL: "SELECT name\nFROM singer"}
	}}
	h := newTestHandler(t, Dependencies{Pipeline: pipeline, BatchConcurrency: 2}, map[string]string{})

	rr := postJSON(t, h, "/v1/ask/batch", "", []map[string]string{
		{"question": "List singer names", "db_id": "concert_singer"},
		{"question": "bad", "db_id": "pets_1"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "SELECT name FROM singer\tconcert_singer\nSELECT 1\tpets_1" {
		t.Fatalf("body = %q", got)
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/tab-separated-values") {
		t.Fatalf("Content-Type = %q", rr.Header().Get("Content-Type"))
	}
	if rr.Header().Get("X-Eval-Run-ID") == "" {
		t.Fatal("expected run id header")
	}
}

type recordingRuns struct {
	runs []eval.RunRecord
}

func (r *recordingRuns) RecordRun(_ context.Context, run eval.RunRecord) error {
	r.runs = append(r.runs, run)
	return nil
}

func TestAskBatchRecordsRunAndRequiresRole(t *testing.T) {
	validator, err := auth.NewStaticAPIKeyValidator("reader:analyst:query_reader,runner:ci:eval_runner")
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	runs := &recordingRuns{}
	pipeline := &fakePipeline{answer: func(workflow.Question) workflow.Outcome { return workflow.Outcome{SQL: "SELECT 1"} }}
	h := newTestHandler(t, Dependencies{
		Pipeline:       pipeline,
		Runs:           runs,
		Model:          "gpt-4o-mini",
		AuthMiddleware: auth.Middleware(nil, validator),
	}, map[string]string{"SQLRAG_AUTH_REQUIRED": "true"})

	records := []map[string]string{{"question": "q", "db_id": "car_1"}}
	if rr := postJSON(t, h, "/v1/ask/batch", "reader", records); rr.Code != http.StatusForbidden {
		t.Fatalf("reader status = %d", rr.Code)
	}
	rr := postJSON(t, h, "/v1/ask/batch", "runner", records)
	if rr.Code != http.StatusOK {
		t.Fatalf("runner status = %d", rr.Code)
	}
	if len(runs.runs) != 1 || runs.runs[0].QuestionCount != 1 || runs.runs[0].Model != "gpt-4o-mini" {
		t.Fatalf("runs = %+v", runs.runs)
	}
	if runs.runs[0].ID.String() != rr.Header().Get("X-Eval-Run-ID") {
		t.Fatal("recorded run id does not match response header")
	}
}

func TestAskBatchRejectsOversizedBatch(t *testing.T) {
	pipeline := &fakePipeline{answer: func(workflow.Question) workflow.Outcome { return workflow.Outcome{} }}
	h := newTestHandler(t, Dependencies{Pipeline: pipeline, MaxBatchSize: 1}, map[string]string{})
	rr := postJSON(t, h, "/v1/ask/batch", "", []map[string]string{
		{"question": "a", "db_id": "x"},
		{"question": "b", "db_id": "y"},
	})
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestDatabaseSchemaEndpoint(t *testing.T) {
	root := t.TempDir()
	seedSQLite(t, root, "car_1",
		`CREATE TABLE car_makers (id INTEGER PRIMARY KEY, fullname TEXT)`,
		`CREATE TABLE model_list (modelid INTEGER PRIMARY KEY, maker INTEGER REFERENCES car_makers(id))`,
	)
	h := newTestHandler(t, Dependencies{
		Catalog: databases.NewCatalog(root),
		Descriptions: schema.Descriptions{
			"car_1": {Tables: map[string]string{"car_makers": "Manufacturers."}},
		},
	}, map[string]string{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/databases/car_1/schema", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var response databaseSchemaResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.Dialect != "sqlite" || len(response.Tables) != 2 {
		t.Fatalf("response = %+v", response)
	}
	if response.Tables[0].Name != "car_makers" || response.Tables[0].Description != "Manufacturers." {
		t.Fatalf("first table = %+v", response.Tables[0])
	}

	missing := httptest.NewRecorder()
	h.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/v1/databases/nope/schema", nil))
	if missing.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", missing.Code)
	}
}
