package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Descriptions maps db_id to human-written table descriptions:
//
//	{"concert_singer": {"tables": {"singer": "People who perform"}}}
type Descriptions map[string]DatabaseDescription

type DatabaseDescription struct {
	Tables map[string]string `json:"tables" yaml:"tables"`
}

// LoadDescriptions reads a JSON or YAML descriptions file. A missing file
// yields an empty table.
func LoadDescriptions(path string) (Descriptions, error) {
	if strings.TrimSpace(path) == "" {
		return Descriptions{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Descriptions{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read descriptions: %w", err)
	}
	return ParseDescriptions(data, FormatForPath(path))
}

// FormatForPath picks "yaml" for .yaml/.yml and "json" otherwise.
func FormatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

func ParseDescriptions(data []byte, format string) (Descriptions, error) {
	out := Descriptions{}
	var err error
	switch format {
	case "yaml":
		err = yaml.Unmarshal(data, &out)
	case "json":
		err = json.Unmarshal(data, &out)
	default:
		return nil, fmt.Errorf("unsupported descriptions format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s descriptions: %w", format, err)
	}
	if out == nil {
		out = Descriptions{}
	}
	return out, nil
}

func (d Descriptions) Lookup(dbID, table string) (string, bool) {
	db, ok := d[dbID]
	if !ok {
		return "", false
	}
	desc, ok := db.Tables[table]
	desc = strings.TrimSpace(desc)
	return desc, ok && desc != ""
}

// Enrich returns copies of chunks with their table description attached.
// Tables without a description are unchanged.
func Enrich(chunks []Chunk, descs Descriptions) []Chunk {
	out := make([]Chunk, len(chunks))
	for i, chunk := range chunks {
		if desc, ok := descs.Lookup(chunk.Database, chunk.Table); ok {
			chunk.Description = desc
		}
		chunk.Columns = append([]string(nil), chunk.Columns...)
		out[i] = chunk
	}
	return out
}
