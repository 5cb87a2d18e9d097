// Package postgres stores database embeddings in the database_embedding
// table. Vectors are packed little-endian float32 in a BYTEA column.
package postgres

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/sqlrag/sqlrag/internal/embeddings"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Lookup(ctx context.Context, dbID string) ([]float32, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
SELECT vector
FROM database_embedding
WHERE db_id = $1`, dbID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select database embedding: %w", err)
	}
	vector, err := unpackVector(raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode embedding for %s: %w", dbID, err)
	}
	return vector, true, nil
}

// Save upserts all items in one transaction.
func (s *Store) Save(ctx context.Context, items []embeddings.DatabaseEmbedding) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO database_embedding (db_id, model, dim, vector, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (db_id)
DO UPDATE SET model = EXCLUDED.model, dim = EXCLUDED.dim, vector = EXCLUDED.vector, updated_at = NOW()`,
			item.Database, item.Model, len(item.Vector), packVector(item.Vector)); err != nil {
			return fmt.Errorf("upsert embedding for %s: %w", item.Database, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit embeddings: %w", err)
	}
	return nil
}

func packVector(vector []float32) []byte {
	out := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func unpackVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("vector length %d is not a multiple of 4", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}
