package api

import (
	"errors"
	"net/http"

	"github.com/sqlrag/sqlrag/internal/auth"
	"github.com/sqlrag/sqlrag/internal/databases"
	"github.com/sqlrag/sqlrag/internal/schema"
)

type databaseSchemaResponse struct {
	Database string        `json:"db_id"`
	Dialect  string        `json:"dialect"`
	Tables   []schemaTable `json:"tables"`
}

type schemaTable struct {
	Name        string   `json:"name"`
	Columns     []string `json:"columns"`
	Description string   `json:"description,omitempty"`
}

func handleListDatabases(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CATALOG_NOT_CONFIGURED", "database catalog is not configured", false, nil)
		return
	}
	if err := auth.RequireRole(r.Context(), auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	ids, err := deps.Catalog.List()
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to list databases", true, map[string]any{"details": err.Error()})
		return
	}
	visible := make([]string, 0, len(ids))
	for _, id := range ids {
		if auth.AllowsDatabase(r.Context(), id) {
			visible = append(visible, id)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"databases": visible})
}

func handleDatabaseSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CATALOG_NOT_CONFIGURED", "database catalog is not configured", false, nil)
		return
	}
	if err := auth.RequireRole(r.Context(), auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	dbID := r.PathValue("db")
	if err := databases.ValidateID(dbID); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_DATABASE_ID", err.Error(), false, nil)
		return
	}
	if !auth.AllowsDatabase(r.Context(), dbID) {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", "database is not accessible with this key", false, map[string]any{"db_id": dbID})
		return
	}

	handle, err := deps.Catalog.Open(r.Context(), dbID)
	if err != nil {
		if errors.Is(err, databases.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "DATABASE_NOT_FOUND", "database was not found", false, map[string]any{"db_id": dbID})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to open database", true, map[string]any{"details": err.Error()})
		return
	}
	defer func() { _ = handle.Close() }()

	chunks, err := schema.Chunks(r.Context(), handle)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "SCHEMA_UNAVAILABLE", err.Error(), false, map[string]any{"db_id": dbID})
		return
	}
	chunks = schema.Enrich(chunks, deps.Descriptions)

	response := databaseSchemaResponse{Database: dbID, Dialect: string(handle.Dialect), Tables: make([]schemaTable, 0, len(chunks))}
	for _, chunk := range chunks {
		response.Tables = append(response.Tables, schemaTable{
			Name:        chunk.Table,
			Columns:     chunk.Columns,
			Description: chunk.Description,
		})
	}
	writeJSON(w, http.StatusOK, response)
}
