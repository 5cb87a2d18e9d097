package retrieval

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/sqlrag/sqlrag/internal/llm"
	"github.com/sqlrag/sqlrag/internal/schema"
)

// Registry owns one Index per database. Each index is created at most once
// and concurrent preparation of the same database is collapsed into a
// single embedding pass.
type Registry struct {
	embedder llm.Embedder

	mu      sync.Mutex
	indexes map[string]*Index
	group   singleflight.Group
}

func NewRegistry(embedder llm.Embedder) *Registry {
	return &Registry{embedder: embedder, indexes: map[string]*Index{}}
}

func (r *Registry) Index(dbID string) *Index {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.indexes[dbID]
	if !ok {
		idx = NewIndex(r.embedder)
		r.indexes[dbID] = idx
	}
	return idx
}

// Prepare makes sure every chunk of dbID is embedded. The shared pass
// ignores cancellation of whichever caller started it; each caller stops
// waiting when its own ctx ends.
func (r *Registry) Prepare(ctx context.Context, dbID string, chunks []schema.Chunk) error {
	idx := r.Index(dbID)
	flight := r.group.DoChan(dbID, func() (any, error) {
		return idx.Add(context.WithoutCancel(ctx), chunks)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case result := <-flight:
		if result.Err != nil {
			return result.Err
		}
	}
	// A caller that joined an in-flight pass may carry chunks the leader
	// did not have; Add is a no-op for everything already present.
	_, err := idx.Add(ctx, chunks)
	return err
}

// Retrieve prepares dbID with chunks and returns the k chunks most similar
// to question.
func (r *Registry) Retrieve(ctx context.Context, dbID, question string, chunks []schema.Chunk, k int) ([]schema.Chunk, error) {
	if err := r.Prepare(ctx, dbID, chunks); err != nil {
		return nil, err
	}
	scored, err := r.Index(dbID).Retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}
	out := make([]schema.Chunk, len(scored))
	for i, s := range scored {
		out[i] = s.Chunk
	}
	return out, nil
}
