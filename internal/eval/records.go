// Package eval drives the pipeline over a question set and writes
// prediction files in the <sql>\t<db_id> format.
package eval

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is one question to evaluate.
type Record struct {
	Question   string `json:"question"`
	DatabaseID string `json:"db_id"`
}

// DatasetItem is a labeled question with its gold query.
type DatasetItem struct {
	Question   string `json:"question"`
	DatabaseID string `json:"db_id"`
	Query      string `json:"query"`
}

func LoadRecords(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	for i, record := range records {
		if strings.TrimSpace(record.Question) == "" {
			return nil, fmt.Errorf("record %d: question is required", i)
		}
		if strings.TrimSpace(record.DatabaseID) == "" {
			return nil, fmt.Errorf("record %d: db_id is required", i)
		}
	}
	return records, nil
}

func LoadRecordsFile(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open records: %w", err)
	}
	defer func() { _ = file.Close() }()
	return LoadRecords(file)
}

func LoadDataset(r io.Reader) ([]DatasetItem, error) {
	var items []DatasetItem
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return items, nil
}

// FormatLine renders one prediction line. Newlines and tabs inside sql are
// collapsed to spaces so the line stays parseable.
func FormatLine(sql, dbID string) string {
	sql = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(sql)
	sql = strings.TrimSpace(sql)
	if sql == "" {
		sql = Placeholder
	}
	return sql + "\t" + dbID
}

// WriteLines writes lines separated by newlines, with no trailing newline.
func WriteLines(w io.Writer, lines []string) error {
	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}
