// Package databases resolves database ids to read-only connections.
//
// File-backed databases live under a root directory, one directory per id:
// <root>/<id>/<id>.sqlite (or .duckdb). Server databases are registered
// explicitly with a Postgres DSN.
package databases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"

	// Drivers for the supported dialects.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectDuckDB   Dialect = "duckdb"
	DialectPostgres Dialect = "postgres"
)

var (
	ErrNotFound  = errors.New("database not found")
	ErrInvalidID = errors.New("invalid database id")
)

// Target is everything needed to open one database.
type Target struct {
	ID      string
	Dialect Dialect
	DSN     string
}

// Handle is an open connection to one database. Callers close it.
type Handle struct {
	ID      string
	Dialect Dialect
	DB      *sqlx.DB
}

func (h *Handle) Close() error {
	if h == nil || h.DB == nil {
		return nil
	}
	return h.DB.Close()
}

type Catalog struct {
	root string

	mu       sync.RWMutex
	external map[string]Target
}

func NewCatalog(root string) *Catalog {
	return &Catalog{root: root, external: map[string]Target{}}
}

// Register adds a server database that is not backed by a file under root.
func (c *Catalog) Register(dbID, dsn string) error {
	if err := ValidateID(dbID); err != nil {
		return err
	}
	dsn = strings.TrimSpace(dsn)
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return fmt.Errorf("database %q: unsupported dsn scheme", dbID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.external[dbID] = Target{ID: dbID, Dialect: DialectPostgres, DSN: dsn}
	return nil
}

// RegisterAll parses "id=dsn,id=dsn" and registers each entry.
func (c *Catalog) RegisterAll(spec string) error {
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, dsn, ok := strings.Cut(part, "=")
		if !ok {
			return fmt.Errorf("invalid database target %q: expected id=dsn", part)
		}
		if err := c.Register(strings.TrimSpace(id), dsn); err != nil {
			return err
		}
	}
	return nil
}

// List returns every known database id in sorted order.
func (c *Catalog) List() ([]string, error) {
	seen := map[string]struct{}{}
	entries, err := os.ReadDir(c.root)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read databases root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := c.resolveFile(entry.Name()); err == nil {
			seen[entry.Name()] = struct{}{}
		}
	}
	c.mu.RLock()
	for id := range c.external {
		seen[id] = struct{}{}
	}
	c.mu.RUnlock()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *Catalog) Resolve(dbID string) (Target, error) {
	if err := ValidateID(dbID); err != nil {
		return Target{}, err
	}
	c.mu.RLock()
	target, ok := c.external[dbID]
	c.mu.RUnlock()
	if ok {
		return target, nil
	}
	return c.resolveFile(dbID)
}

func (c *Catalog) resolveFile(dbID string) (Target, error) {
	dir := filepath.Join(c.root, dbID)
	candidates := []struct {
		ext     string
		dialect Dialect
	}{
		{".sqlite", DialectSQLite},
		{".db", DialectSQLite},
		{".duckdb", DialectDuckDB},
	}
	for _, candidate := range candidates {
		path := filepath.Join(dir, dbID+candidate.ext)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		return Target{ID: dbID, Dialect: candidate.dialect, DSN: path}, nil
	}
	return Target{}, fmt.Errorf("%w: %s", ErrNotFound, dbID)
}

// Open connects to dbID read-only and verifies the connection.
func (c *Catalog) Open(ctx context.Context, dbID string) (*Handle, error) {
	target, err := c.Resolve(dbID)
	if err != nil {
		return nil, err
	}
	return OpenTarget(ctx, target)
}

func OpenTarget(ctx context.Context, target Target) (*Handle, error) {
	driver, dsn, err := driverFor(target)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", target.ID, err)
	}
	return &Handle{ID: target.ID, Dialect: target.Dialect, DB: db}, nil
}

func driverFor(target Target) (string, string, error) {
	switch target.Dialect {
	case DialectSQLite:
		return "sqlite", target.DSN + "?_pragma=query_only(1)", nil
	case DialectDuckDB:
		return "duckdb", target.DSN + "?access_mode=read_only", nil
	case DialectPostgres:
		return "pgx", target.DSN, nil
	default:
		return "", "", fmt.Errorf("unsupported dialect %q", target.Dialect)
	}
}

func ValidateID(dbID string) error {
	if strings.TrimSpace(dbID) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if dbID == "." || dbID == ".." || strings.ContainsAny(dbID, `/\`) || strings.ContainsRune(dbID, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidID, dbID)
	}
	return nil
}
