// Package parquetfile keeps database embeddings in a single parquet file
// that is loaded into memory on open.
package parquetfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlrag/sqlrag/internal/embeddings"
)

type row struct {
	DatabaseID string    `parquet:"db_id"`
	Model      string    `parquet:"model"`
	Vector     []float32 `parquet:"vector"`
}

type Store struct {
	path string

	mu    sync.RWMutex
	items map[string]embeddings.DatabaseEmbedding
}

// Open loads path if it exists; a missing file starts an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, items: map[string]embeddings.DatabaseEmbedding{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read embeddings file: %w", err)
	}
	items, err := Decode(data)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		s.items[item.Database] = item
	}
	return s, nil
}

func (s *Store) Lookup(_ context.Context, dbID string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[dbID]
	if !ok {
		return nil, false, nil
	}
	return item.Vector, true, nil
}

// Save merges items into the store and rewrites the file.
func (s *Store) Save(_ context.Context, items []embeddings.DatabaseEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.items[item.Database] = item
	}
	data, err := Encode(s.sortedLocked())
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}

func (s *Store) All() []embeddings.DatabaseEmbedding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

func (s *Store) sortedLocked() []embeddings.DatabaseEmbedding {
	out := make([]embeddings.DatabaseEmbedding, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Database < out[j].Database })
	return out
}

func Encode(items []embeddings.DatabaseEmbedding) ([]byte, error) {
	rows := make([]row, len(items))
	for i, item := range items {
		rows[i] = row{DatabaseID: item.Database, Model: item.Model, Vector: item.Vector}
	}
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[row](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func Decode(data []byte) ([]embeddings.DatabaseEmbedding, error) {
	rows, err := parquet.Read[row](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}
	out := make([]embeddings.DatabaseEmbedding, len(rows))
	for i, r := range rows {
		out[i] = embeddings.DatabaseEmbedding{Database: r.DatabaseID, Model: r.Model, Vector: r.Vector}
	}
	return out, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create embeddings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".embeddings-*.parquet")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace embeddings file: %w", err)
	}
	return nil
}
