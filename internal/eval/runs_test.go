package eval

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sqlrag/sqlrag/internal/storage"
)

type memoryStore struct {
	objects  map[string]string
	metadata map[string]map[string]string
	deleted  []string
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.objects[key] = string(data)
	if m.metadata == nil {
		m.metadata = map[string]map[string]string{}
	}
	m.metadata[key] = opts.Metadata
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (m *memoryStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{Key: key}, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

type runStoreFunc func(ctx context.Context, run RunRecord) error

func (f runStoreFunc) RecordRun(ctx context.Context, run RunRecord) error { return f(ctx, run) }

func testReport() Report {
	return Report{
		RunID:        uuid.MustParse("5b0f7c2e-1d2a-4f7e-9a51-0c8e6f1d2b3a"),
		StartedAt:    time.Date(2026, 2, 19, 9, 0, 0, 0, time.UTC),
		FinishedAt:   time.Date(2026, 2, 19, 9, 1, 0, 0, time.UTC),
		Lines:        []string{"SELECT 1\ta", "SELECT x FROM y\tb"},
		Placeholders: 1,
	}
}

func TestPublishUploadsAndRecords(t *testing.T) {
	store := &memoryStore{objects: map[string]string{}}
	var recorded RunRecord
	run, err := Publish(context.Background(), store, runStoreFunc(func(_ context.Context, r RunRecord) error {
		recorded = r
		return nil
	}), testReport(), "gpt-4o-mini")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	wantKey := "eval/date=2026-02-19/5b0f7c2e-1d2a-4f7e-9a51-0c8e6f1d2b3a/predictions.tsv"
	if run.ArtifactKey != wantKey || recorded.ArtifactKey != wantKey {
		t.Fatalf("ArtifactKey = %q / %q", run.ArtifactKey, recorded.ArtifactKey)
	}
	if store.objects[wantKey] != "SELECT 1\ta\nSELECT x FROM y\tb" {
		t.Fatalf("uploaded = %q", store.objects[wantKey])
	}
	if recorded.QuestionCount != 2 || recorded.PlaceholderCount != 1 || recorded.Model != "gpt-4o-mini" {
		t.Fatalf("recorded = %+v", recorded)
	}
	if meta := store.metadata[wantKey]; meta["run-id"] != "5b0f7c2e-1d2a-4f7e-9a51-0c8e6f1d2b3a" || meta["model"] != "gpt-4o-mini" {
		t.Fatalf("metadata = %v", meta)
	}
}

func TestPublishRemovesArtifactWhenRecordingFails(t *testing.T) {
	store := &memoryStore{objects: map[string]string{}}
	_, err := Publish(context.Background(), store, runStoreFunc(func(context.Context, RunRecord) error {
		return errors.New("connection refused")
	}), testReport(), "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(store.objects) != 0 || len(store.deleted) != 1 {
		t.Fatalf("objects = %v deleted = %v", store.objects, store.deleted)
	}
}

func TestPublishWithoutDestinations(t *testing.T) {
	run, err := Publish(context.Background(), nil, nil, testReport(), "m")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if run.ArtifactKey != "" || run.QuestionCount != 2 {
		t.Fatalf("run = %+v", run)
	}
}
