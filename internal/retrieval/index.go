// Package retrieval ranks schema chunks and databases by embedding
// similarity to a question.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sqlrag/sqlrag/internal/llm"
	"github.com/sqlrag/sqlrag/internal/observability"
	"github.com/sqlrag/sqlrag/internal/schema"
)

const DefaultTopK = 8

type Scored struct {
	Chunk schema.Chunk
	Score float64
}

type entry struct {
	chunk  schema.Chunk
	vector []float32
}

// Index is the embedded chunk pool of one database. Adding a chunk that is
// already present is a no-op, so repeated preparation never duplicates
// entries.
type Index struct {
	embedder llm.Embedder

	mu      sync.RWMutex
	entries []entry
	keys    map[string]struct{}
}

func NewIndex(embedder llm.Embedder) *Index {
	return &Index{embedder: embedder, keys: map[string]struct{}{}}
}

// Add embeds and stores the chunks not yet in the index and reports how
// many were added.
func (i *Index) Add(ctx context.Context, chunks []schema.Chunk) (int, error) {
	pending := i.missing(chunks)
	if len(pending) == 0 {
		return 0, nil
	}

	texts := make([]string, len(pending))
	for n, chunk := range pending {
		texts[n] = chunk.Text()
	}
	vectors, err := i.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(pending) {
		return 0, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(pending))
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	added := 0
	for n, chunk := range pending {
		key := chunk.Key()
		if _, ok := i.keys[key]; ok {
			continue
		}
		i.keys[key] = struct{}{}
		i.entries = append(i.entries, entry{chunk: chunk, vector: vectors[n]})
		added++
	}
	observability.AddIndexedChunks(added)
	return added, nil
}

func (i *Index) missing(chunks []schema.Chunk) []schema.Chunk {
	i.mu.RLock()
	defer i.mu.RUnlock()
	seen := map[string]struct{}{}
	var out []schema.Chunk
	for _, chunk := range chunks {
		key := chunk.Key()
		if _, ok := i.keys[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, chunk)
	}
	return out
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// Retrieve returns up to k chunks ordered by descending similarity to the
// question. Equal scores keep insertion order.
func (i *Index) Retrieve(ctx context.Context, question string, k int) ([]Scored, error) {
	if k <= 0 {
		return nil, nil
	}
	vectors, err := i.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed question: got %d vectors", len(vectors))
	}
	query := vectors[0]

	i.mu.RLock()
	scored := make([]Scored, len(i.entries))
	for n, e := range i.entries {
		scored[n] = Scored{Chunk: e.chunk, Score: Cosine(query, e.vector)}
	}
	i.mu.RUnlock()

	sort.SliceStable(scored, func(a, b int) bool { return scored[a].Score > scored[b].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
