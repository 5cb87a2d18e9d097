// Package app assembles the question-answering runtime from configuration.
// The API server and the local CLI share it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sqlrag/sqlrag/internal/config"
	"github.com/sqlrag/sqlrag/internal/databases"
	"github.com/sqlrag/sqlrag/internal/embeddings"
	"github.com/sqlrag/sqlrag/internal/embeddings/parquetfile"
	embeddingspostgres "github.com/sqlrag/sqlrag/internal/embeddings/postgres"
	"github.com/sqlrag/sqlrag/internal/eval"
	evalpostgres "github.com/sqlrag/sqlrag/internal/eval/postgres"
	"github.com/sqlrag/sqlrag/internal/llm"
	"github.com/sqlrag/sqlrag/internal/metadata"
	"github.com/sqlrag/sqlrag/internal/nl2sql"
	"github.com/sqlrag/sqlrag/internal/observability"
	"github.com/sqlrag/sqlrag/internal/retrieval"
	"github.com/sqlrag/sqlrag/internal/schema"
	"github.com/sqlrag/sqlrag/internal/storage"
	s3store "github.com/sqlrag/sqlrag/internal/storage/s3"
	"github.com/sqlrag/sqlrag/internal/workflow"
)

// Options override pieces that are otherwise built from configuration.
type Options struct {
	Completer llm.Completer
	Embedder  llm.Embedder
}

type Runtime struct {
	Config       config.Config
	Logger       *slog.Logger
	Catalog      *databases.Catalog
	Descriptions schema.Descriptions
	Embedder     llm.Embedder
	Embeddings   embeddings.Store
	Pipeline     *workflow.Pipeline

	// Objects and Runs are nil unless an object store or a Postgres
	// metadata DSN is configured.
	Objects storage.ObjectStore
	Runs    eval.RunStore

	metadataDB *sql.DB
	parquet    *parquetfile.Store
	closers    []func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (_ *Runtime, err error) {
	logger = observability.OrDiscard(logger)
	rt := &Runtime{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	rt.Catalog = databases.NewCatalog(cfg.Databases.Root)
	if err := rt.Catalog.RegisterAll(cfg.Databases.Targets); err != nil {
		return nil, err
	}

	if cfg.ObjectStore.Enabled {
		store, err := s3store.New(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, fmt.Errorf("initialize object store: %w", err)
		}
		rt.Objects = store
	}

	rt.Descriptions, err = loadDescriptions(ctx, cfg.Databases.DescriptionsPath, rt.Objects, cfg.ObjectStore.Bucket)
	if err != nil {
		return nil, err
	}

	completer := opts.Completer
	embedder := opts.Embedder
	if completer == nil || (embedder == nil && cfg.AI.EmbeddingProvider == config.EmbeddingProviderOpenAI) {
		client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL:        cfg.AI.BaseURL,
			APIKey:         cfg.AI.APIKey,
			Model:          cfg.AI.Model,
			Temperature:    cfg.AI.Temperature,
			Timeout:        cfg.AI.Timeout,
			MaxRetries:     cfg.AI.MaxRetries,
			EmbeddingModel: cfg.AI.EmbeddingModel,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize model client: %w", err)
		}
		if completer == nil {
			completer = client
		}
		if embedder == nil {
			embedder = client
		}
	}
	if embedder == nil {
		embedder, err = llm.NewHashEmbedder(cfg.AI.EmbeddingDim)
		if err != nil {
			return nil, err
		}
	}
	rt.Embedder = embedder

	if err := rt.openEmbeddingStore(ctx); err != nil {
		return nil, err
	}

	rt.Pipeline, err = workflow.New(workflow.Dependencies{
		Catalog:      rt.Catalog,
		Descriptions: rt.Descriptions,
		Inferencer:   nl2sql.NewInferencer(completer, logger),
		Translator:   nl2sql.NewSynthesizer(completer, logger),
		Rewriter:     nl2sql.NewRewriter(completer, logger),
		Retriever:    retrieval.NewRegistry(embedder),
		Ranker:       retrieval.NewDatabaseRanker(embedder, rt.Embeddings),
		TopK:         cfg.Retrieval.TopK,
		TopDatabases: cfg.Retrieval.TopDatabases,
		RowLimit:     cfg.Databases.RowLimit,
		QueryTimeout: cfg.Databases.QueryTimeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) openEmbeddingStore(ctx context.Context) error {
	cfg := rt.Config
	if strings.TrimSpace(cfg.EmbeddingDB.DSN) == "" {
		store, err := parquetfile.Open(cfg.Retrieval.EmbeddingsPath)
		if err != nil {
			return err
		}
		rt.parquet = store
		rt.Embeddings = store
		return nil
	}

	db, err := metadata.Open(ctx, cfg.EmbeddingDB)
	if err != nil {
		return err
	}
	rt.metadataDB = db
	rt.closers = append(rt.closers, db.Close)
	rt.Embeddings = embeddingspostgres.NewStore(db)
	// Evaluation runs share the metadata database.
	rt.Runs = evalpostgres.NewRunStore(db)
	return nil
}

// HealthCheck pings the metadata database and probes the artifact bucket
// when either is configured.
func (rt *Runtime) HealthCheck(ctx context.Context) error {
	if rt.metadataDB != nil {
		if err := rt.metadataDB.PingContext(ctx); err != nil {
			return fmt.Errorf("metadata database: %w", err)
		}
	}
	if checker, ok := rt.Objects.(interface{ Check(context.Context) error }); ok {
		if err := checker.Check(ctx); err != nil {
			return fmt.Errorf("object store: %w", err)
		}
	}
	return nil
}

// Model names the chat model used to generate SQL.
func (rt *Runtime) Model() string {
	return rt.Config.AI.Model
}

func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// EmbedDatabases computes and stores whole-database embeddings for ids, or
// for every catalog database when ids is empty. With publish set and an
// object store configured, the resulting embeddings are also uploaded as
// a parquet file.
func (rt *Runtime) EmbedDatabases(ctx context.Context, ids []string, publish bool) ([]embeddings.DatabaseEmbedding, error) {
	if len(ids) == 0 {
		listed, err := rt.Catalog.List()
		if err != nil {
			return nil, err
		}
		ids = listed
	}

	items := make([]embeddings.DatabaseEmbedding, 0, len(ids))
	for _, dbID := range ids {
		item, err := rt.embedDatabase(ctx, dbID)
		if err != nil {
			return nil, err
		}
		rt.Logger.Info("embedded database", slog.String("db_id", dbID), slog.Int("dim", len(item.Vector)))
		items = append(items, item)
	}
	if err := rt.Embeddings.Save(ctx, items); err != nil {
		return nil, fmt.Errorf("save embeddings: %w", err)
	}

	if publish && rt.Objects != nil {
		published := items
		if rt.parquet != nil {
			published = rt.parquet.All()
		}
		key, err := storage.BuildEmbeddingsPath(rt.Embedder.Model())
		if err != nil {
			return nil, err
		}
		data, err := parquetfile.Encode(published)
		if err != nil {
			return nil, err
		}
		opts := storage.PutOptions{Metadata: map[string]string{
			"embedding-model": rt.Embedder.Model(),
			"databases":       strconv.Itoa(len(published)),
		}}
		if _, err := storage.PutBytes(ctx, rt.Objects, key, data, opts); err != nil {
			return nil, fmt.Errorf("publish embeddings: %w", err)
		}
		rt.Logger.Info("published embeddings", slog.String("key", key), slog.Int("databases", len(published)))
	}
	return items, nil
}

func (rt *Runtime) embedDatabase(ctx context.Context, dbID string) (embeddings.DatabaseEmbedding, error) {
	handle, err := rt.Catalog.Open(ctx, dbID)
	if err != nil {
		return embeddings.DatabaseEmbedding{}, fmt.Errorf("%w: %w", schema.ErrSchemaUnavailable, err)
	}
	defer func() { _ = handle.Close() }()

	chunks, err := schema.Chunks(ctx, handle)
	if err != nil {
		return embeddings.DatabaseEmbedding{}, err
	}
	return embeddings.Build(ctx, rt.Embedder, dbID, schema.Enrich(chunks, rt.Descriptions))
}

func loadDescriptions(ctx context.Context, location string, objects storage.ObjectStore, bucket string) (schema.Descriptions, error) {
	urlBucket, key, remote, err := storage.ParseObjectURL(location)
	if err != nil {
		return nil, err
	}
	if !remote {
		return schema.LoadDescriptions(location)
	}
	if objects == nil {
		return nil, fmt.Errorf("descriptions at %s need the object store enabled", location)
	}
	if urlBucket != bucket {
		return nil, fmt.Errorf("descriptions bucket %q does not match object store bucket %q", urlBucket, bucket)
	}
	data, err := storage.ReadAll(ctx, objects, key)
	if err != nil {
		return nil, fmt.Errorf("read descriptions: %w", err)
	}
	return schema.ParseDescriptions(data, schema.FormatForPath(key))
}
