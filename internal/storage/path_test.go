package storage

import (
	"testing"
	"time"
)

func TestBuildEvalArtifactPath(t *testing.T) {
	ts := time.Date(2026, time.February, 19, 23, 5, 0, 0, time.FixedZone("x", -5*3600))
	key, err := BuildEvalArtifactPath("5b0f7c2e-1d2a-4f7e-9a51-0c8e6f1d2b3a", ts, "predictions.tsv")
	if err != nil {
		t.Fatalf("BuildEvalArtifactPath() error = %v", err)
	}
	want := "eval/date=2026-02-20/5b0f7c2e-1d2a-4f7e-9a51-0c8e6f1d2b3a/predictions.tsv"
	if key != want {
		t.Fatalf("BuildEvalArtifactPath() = %q, want %q", key, want)
	}
	if _, err := BuildEvalArtifactPath("../etc", ts, "predictions.tsv"); err == nil {
		t.Fatal("expected invalid run id error")
	}
}

func TestBuildEmbeddingsPath(t *testing.T) {
	key, err := BuildEmbeddingsPath("text-embedding-3-small")
	if err != nil {
		t.Fatalf("BuildEmbeddingsPath() error = %v", err)
	}
	if key != "embeddings/text-embedding-3-small/database_embeddings.parquet" {
		t.Fatalf("BuildEmbeddingsPath() = %q", key)
	}
}

func TestParseObjectURL(t *testing.T) {
	bucket, key, ok, err := ParseObjectURL("s3://sqlrag/config/descriptions.json")
	if err != nil || !ok {
		t.Fatalf("ParseObjectURL() ok = %v err = %v", ok, err)
	}
	if bucket != "sqlrag" || key != "config/descriptions.json" {
		t.Fatalf("bucket/key = %q/%q", bucket, key)
	}

	if _, _, ok, err := ParseObjectURL("./descriptions.json"); ok || err != nil {
		t.Fatalf("local path: ok = %v err = %v", ok, err)
	}
	if _, _, ok, err := ParseObjectURL("s3://bucket-only"); !ok || err == nil {
		t.Fatalf("bucket only: ok = %v err = %v", ok, err)
	}
}
