// Package answer renders execution results as short natural-language text.
package answer

import (
	"fmt"
	"strings"

	"github.com/sqlrag/sqlrag/internal/query"
)

const (
	EmptyResult      = "The result is empty."
	GenerationFailed = "[Generation Failed] no SQL could be produced for this question."
)

// SchemaUnavailable is the answer when the target database exposes no
// tables.
func SchemaUnavailable(databaseID string) string {
	return fmt.Sprintf("[Generation Failed] no schema available for database %q.", databaseID)
}

// Summarize checks cases in order: execution error, empty rows, a single
// scalar, a single column, then anything wider.
func Summarize(result query.ExecutionResult) string {
	if result.Err != nil {
		return result.Err.Error()
	}
	rows := result.Rows
	if len(rows) == 0 {
		return EmptyResult
	}
	if len(rows) == 1 && len(rows[0]) == 1 {
		return "The result is: " + formatValue(rows[0][0]) + "."
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		values := make([]string, len(row))
		for i, value := range row {
			values[i] = formatValue(value)
		}
		lines = append(lines, "- "+strings.Join(values, ", "))
	}
	return "Results:\n" + strings.Join(lines, "\n")
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(typed)
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}
