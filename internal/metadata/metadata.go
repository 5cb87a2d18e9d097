// Package metadata opens the Postgres database that stores database
// embeddings and evaluation runs, and refuses to serve from a schema that
// sqlrag-migrate has not brought up to date.
package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sqlrag/sqlrag/internal/config"
	"github.com/sqlrag/sqlrag/internal/migrations"
)

const pingTimeout = 5 * time.Second

var (
	ErrDSNRequired = errors.New("SQLRAG_EMBEDDING_DB_DSN is required")
	// ErrSchemaNotMigrated means at least one embedded migration is pending.
	ErrSchemaNotMigrated = errors.New("metadata schema is not migrated")
)

// MigrationStatus is satisfied by *migrations.Runner.
type MigrationStatus interface {
	Status(ctx context.Context, db *sql.DB) ([]migrations.Status, error)
}

// Open connects and verifies that every embedded migration is applied.
func Open(ctx context.Context, cfg config.EmbeddingDBConfig) (*sql.DB, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := RequireSchema(ctx, db, migrations.NewRunner()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Connect opens the pool and pings it without looking at the schema.
// sqlrag-migrate uses it because migrating is how the schema gets there.
func Connect(ctx context.Context, cfg config.EmbeddingDBConfig) (*sql.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, ErrDSNRequired
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metadata database: %w", err)
	}
	if err := ready(ctx, db, cfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ready(ctx context.Context, db *sql.DB, cfg config.EmbeddingDBConfig) error {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping metadata database: %w", err)
	}
	return nil
}

// RequireSchema fails with ErrSchemaNotMigrated naming every pending
// migration.
func RequireSchema(ctx context.Context, db *sql.DB, status MigrationStatus) error {
	statuses, err := status.Status(ctx, db)
	if err != nil {
		return fmt.Errorf("read migration status: %w", err)
	}
	var pending []string
	for _, item := range statuses {
		if !item.Applied {
			pending = append(pending, fmt.Sprintf("%06d_%s", item.Version, item.Name))
		}
	}
	if len(pending) > 0 {
		return fmt.Errorf("%w: pending %s; run sqlrag-migrate", ErrSchemaNotMigrated, strings.Join(pending, ", "))
	}
	return nil
}
