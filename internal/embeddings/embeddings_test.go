package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/sqlrag/sqlrag/internal/llm"
	"github.com/sqlrag/sqlrag/internal/schema"
)

func TestBuildEmbedsAllChunks(t *testing.T) {
	embedder, err := llm.NewHashEmbedder(16)
	if err != nil {
		t.Fatalf("NewHashEmbedder() error = %v", err)
	}
	chunks := []schema.Chunk{
		{Database: "pets_1", Table: "Student", Columns: []string{"StuID (INTEGER)"}},
		{Database: "pets_1", Table: "Pets", Columns: []string{"PetID (INTEGER)"}},
	}
	got, err := Build(context.Background(), embedder, "pets_1", chunks)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got.Database != "pets_1" || got.Model != "local-fnv-hash" || len(got.Vector) != 16 {
		t.Fatalf("Build() = %+v", got)
	}
	if want := "Table: Student\nStuID (INTEGER)\n\nTable: Pets\nPetID (INTEGER)"; Text(chunks) != want {
		t.Fatalf("Text() = %q", Text(chunks))
	}
}

func TestBuildWithoutChunksIsSchemaUnavailable(t *testing.T) {
	embedder, _ := llm.NewHashEmbedder(4)
	_, err := Build(context.Background(), embedder, "empty", nil)
	if !errors.Is(err, schema.ErrSchemaUnavailable) {
		t.Fatalf("Build() error = %v", err)
	}
}
