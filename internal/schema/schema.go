// Package schema turns a database catalog into retrieval chunks, one per
// table, and renders retrieved chunks for a generation prompt.
package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sqlrag/sqlrag/internal/databases"
)

// ErrSchemaUnavailable means a database could not be introspected or has
// no tables.
var ErrSchemaUnavailable = errors.New("schema unavailable")

type Column struct {
	Name       string
	Type       string
	PrimaryKey bool
	References string
}

// Descriptor renders the column as one chunk line, e.g.
// "singer_id (INT) primary key references singer.id".
func (c Column) Descriptor() string {
	var b strings.Builder
	b.WriteString(c.Name)
	if t := strings.TrimSpace(c.Type); t != "" {
		b.WriteString(" (")
		b.WriteString(t)
		b.WriteString(")")
	}
	if c.PrimaryKey {
		b.WriteString(" primary key")
	}
	if c.References != "" {
		b.WriteString(" references ")
		b.WriteString(c.References)
	}
	return b.String()
}

type Table struct {
	Name    string
	Columns []Column
}

// Chunk is the unit of retrieval: one table of one database.
type Chunk struct {
	Database    string   `json:"db_id"`
	Table       string   `json:"table"`
	Columns     []string `json:"columns"`
	Description string   `json:"description,omitempty"`
}

// Text is the canonical rendering that gets embedded.
func (c Chunk) Text() string {
	lines := make([]string, 0, len(c.Columns)+2)
	lines = append(lines, "Table: "+c.Table)
	lines = append(lines, c.Columns...)
	if c.Description != "" {
		lines = append(lines, "Description: "+c.Description)
	}
	return strings.Join(lines, "\n")
}

// Key identifies a chunk within the retrieval pool of its database.
func (c Chunk) Key() string {
	return c.Database + "\x00" + c.Text()
}

func ChunksFromTables(dbID string, tables []Table) []Chunk {
	chunks := make([]Chunk, 0, len(tables))
	for _, table := range tables {
		columns := make([]string, 0, len(table.Columns))
		for _, column := range table.Columns {
			columns = append(columns, column.Descriptor())
		}
		chunks = append(chunks, Chunk{Database: dbID, Table: table.Name, Columns: columns})
	}
	return chunks
}

// Chunks introspects an open database and returns one chunk per table in
// catalog order. A database with no tables is ErrSchemaUnavailable.
func Chunks(ctx context.Context, handle *databases.Handle) ([]Chunk, error) {
	if handle == nil || handle.DB == nil {
		return nil, fmt.Errorf("%w: no database handle", ErrSchemaUnavailable)
	}
	tables, err := Introspect(ctx, handle.DB, handle.Dialect)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchemaUnavailable, handle.ID, err)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: %s has no tables", ErrSchemaUnavailable, handle.ID)
	}
	return ChunksFromTables(handle.ID, tables), nil
}

// FormatForPrompt renders chunks as a "Table:" header followed by
// indented "- line" entries, in the order given.
func FormatForPrompt(chunks []Chunk) string {
	formatted := make([]string, 0, len(chunks)*4)
	for _, chunk := range chunks {
		lines := strings.Split(chunk.Text(), "\n")
		formatted = append(formatted, "Table: "+chunk.Table)
		for _, line := range lines[1:] {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			formatted = append(formatted, "  - "+line)
		}
	}
	return strings.Join(formatted, "\n")
}
