package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sqlrag/sqlrag/internal/auth"
	"github.com/sqlrag/sqlrag/internal/databases"
	"github.com/sqlrag/sqlrag/internal/eval"
	"github.com/sqlrag/sqlrag/internal/workflow"
)

const defaultMaxBatchSize = 2000

type askRequest struct {
	Question   string   `json:"question"`
	DatabaseID string   `json:"db_id"`
	Databases  []string `json:"db_ids"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}
	if err := auth.RequireRole(r.Context(), auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	question := strings.TrimSpace(request.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	if request.DatabaseID != "" && len(request.Databases) > 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "DATABASE_SELECTOR_CONFLICT", "specify only one of db_id or db_ids", false, nil)
		return
	}

	candidates := request.Databases
	if request.DatabaseID != "" {
		candidates = []string{request.DatabaseID}
	}
	for _, id := range candidates {
		if err := databases.ValidateID(id); err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_DATABASE_ID", err.Error(), false, nil)
			return
		}
		if !auth.AllowsDatabase(r.Context(), id) {
			writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", "database is not accessible with this key", false, map[string]any{"db_id": id})
			return
		}
	}
	if len(candidates) == 0 {
		restricted, err := accessibleDatabases(deps, r)
		if err != nil {
			writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to list databases", true, map[string]any{"details": err.Error()})
			return
		}
		candidates = restricted
	}

	outcome := deps.Pipeline.Run(r.Context(), workflow.Question{Text: question, DatabaseIDs: candidates})
	writeJSON(w, http.StatusOK, outcome)
}

// accessibleDatabases returns nil when the caller may use every database,
// which lets the pipeline consult the full catalog itself.
func accessibleDatabases(deps Dependencies, r *http.Request) ([]string, error) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || len(identity.Databases) == 0 || deps.Catalog == nil {
		return nil, nil
	}
	ids, err := deps.Catalog.List()
	if err != nil {
		return nil, err
	}
	allowed := make([]string, 0, len(ids))
	for _, id := range ids {
		if identity.CanAccess(id) {
			allowed = append(allowed, id)
		}
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("no database is accessible with this key")
	}
	return allowed, nil
}

func handleAskBatch(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}
	if err := auth.RequireRole(r.Context(), auth.RoleEvalRunner); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	records, err := eval.LoadRecords(r.Body)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid batch request body", false, map[string]any{"details": err.Error()})
		return
	}
	limit := deps.MaxBatchSize
	if limit <= 0 {
		limit = defaultMaxBatchSize
	}
	if len(records) > limit {
		writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "BATCH_TOO_LARGE", fmt.Sprintf("batch exceeds %d questions", limit), false, map[string]any{"size": len(records)})
		return
	}
	for _, record := range records {
		if !auth.AllowsDatabase(r.Context(), record.DatabaseID) {
			writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", "database is not accessible with this key", false, map[string]any{"db_id": record.DatabaseID})
			return
		}
	}

	report := eval.NewRunner(deps.Pipeline, deps.BatchConcurrency, deps.Logger).Run(r.Context(), records)
	if deps.Artifacts != nil || deps.Runs != nil {
		if _, err := eval.Publish(r.Context(), deps.Artifacts, deps.Runs, report, deps.Model); err != nil && deps.Logger != nil {
			deps.Logger.WarnContext(r.Context(), "publish evaluation run failed",
				slog.String("run_id", report.RunID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
	w.Header().Set("X-Eval-Run-ID", report.RunID.String())
	w.WriteHeader(http.StatusOK)
	_ = eval.WriteLines(w, report.Lines)
}
