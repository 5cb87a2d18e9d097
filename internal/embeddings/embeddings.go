// Package embeddings holds precomputed whole-database embeddings used to
// choose a database for a question.
package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/sqlrag/sqlrag/internal/llm"
	"github.com/sqlrag/sqlrag/internal/schema"
)

type DatabaseEmbedding struct {
	Database string
	Model    string
	Vector   []float32
}

type Store interface {
	Lookup(ctx context.Context, dbID string) ([]float32, bool, error)
	Save(ctx context.Context, items []DatabaseEmbedding) error
}

// Text is what gets embedded for a database: every chunk, separated by a
// blank line.
func Text(chunks []schema.Chunk) string {
	parts := make([]string, len(chunks))
	for i, chunk := range chunks {
		parts[i] = chunk.Text()
	}
	return strings.Join(parts, "\n\n")
}

func Build(ctx context.Context, embedder llm.Embedder, dbID string, chunks []schema.Chunk) (DatabaseEmbedding, error) {
	if len(chunks) == 0 {
		return DatabaseEmbedding{}, fmt.Errorf("%w: %s has no chunks", schema.ErrSchemaUnavailable, dbID)
	}
	vectors, err := embedder.Embed(ctx, []string{Text(chunks)})
	if err != nil {
		return DatabaseEmbedding{}, fmt.Errorf("embed database %s: %w", dbID, err)
	}
	if len(vectors) != 1 {
		return DatabaseEmbedding{}, fmt.Errorf("embed database %s: got %d vectors", dbID, len(vectors))
	}
	return DatabaseEmbedding{Database: dbID, Model: embedder.Model(), Vector: vectors[0]}, nil
}
