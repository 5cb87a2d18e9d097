package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/sqlrag/sqlrag/internal/llm"
)

const DefaultTopDatabases = 3

// EmbeddingSource returns the precomputed embedding of a whole database.
type EmbeddingSource interface {
	Lookup(ctx context.Context, dbID string) ([]float32, bool, error)
}

type DatabaseScore struct {
	Database string  `json:"db_id"`
	Score    float64 `json:"score"`
}

// DatabaseRanker orders candidate databases by similarity between the
// question and each database's precomputed embedding.
type DatabaseRanker struct {
	embedder llm.Embedder
	source   EmbeddingSource
}

func NewDatabaseRanker(embedder llm.Embedder, source EmbeddingSource) *DatabaseRanker {
	return &DatabaseRanker{embedder: embedder, source: source}
}

// Rank returns at most n candidates in descending score order. Candidates
// without a usable embedding are skipped rather than scored.
func (r *DatabaseRanker) Rank(ctx context.Context, question string, candidates []string, n int) ([]DatabaseScore, error) {
	if n <= 0 || len(candidates) == 0 {
		return nil, nil
	}
	vectors, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed question: got %d vectors", len(vectors))
	}
	query := vectors[0]

	scores := make([]DatabaseScore, 0, len(candidates))
	for _, dbID := range candidates {
		vector, ok, err := r.source.Lookup(ctx, dbID)
		if err != nil {
			return nil, fmt.Errorf("lookup embedding for %s: %w", dbID, err)
		}
		if !ok || len(vector) != len(query) {
			continue
		}
		scores = append(scores, DatabaseScore{Database: dbID, Score: Cosine(query, vector)})
	}
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].Score > scores[b].Score })
	if len(scores) > n {
		scores = scores[:n]
	}
	return scores, nil
}
