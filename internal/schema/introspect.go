package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sqlrag/sqlrag/internal/databases"
)

const (
	sqliteTablesQuery = `SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY rowid`
	sqliteColumnsQuery = `SELECT cid, name, type, pk FROM pragma_table_info(?) ORDER BY cid`
	sqliteForeignKeys  = `SELECT "from", "table", "to" FROM pragma_foreign_key_list(?)`

	infoTablesQuery = `SELECT table_name FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name`
	infoColumnsQuery = `SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`
	infoPrimaryKeyQuery = `SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name
 AND tc.table_schema = kcu.table_schema
 AND tc.table_name = kcu.table_name
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1 AND tc.table_name = $2`
)

type sqliteColumn struct {
	CID  int    `db:"cid"`
	Name string `db:"name"`
	Type string `db:"type"`
	PK   int    `db:"pk"`
}

type sqliteForeignKey struct {
	From  string         `db:"from"`
	Table string         `db:"table"`
	To    sql.NullString `db:"to"`
}

type infoColumn struct {
	Name string `db:"column_name"`
	Type string `db:"data_type"`
}

// Introspect reads table and column metadata for the given dialect.
func Introspect(ctx context.Context, db *sqlx.DB, dialect databases.Dialect) ([]Table, error) {
	switch dialect {
	case databases.DialectSQLite:
		return introspectSQLite(ctx, db)
	case databases.DialectDuckDB:
		return introspectInformationSchema(ctx, db, "main")
	case databases.DialectPostgres:
		return introspectInformationSchema(ctx, db, "public")
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
}

func introspectSQLite(ctx context.Context, db *sqlx.DB) ([]Table, error) {
	var names []string
	if err := db.SelectContext(ctx, &names, sqliteTablesQuery); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		var columns []sqliteColumn
		if err := db.SelectContext(ctx, &columns, sqliteColumnsQuery, name); err != nil {
			return nil, fmt.Errorf("list columns for %s: %w", name, err)
		}
		var keys []sqliteForeignKey
		if err := db.SelectContext(ctx, &keys, sqliteForeignKeys, name); err != nil {
			return nil, fmt.Errorf("list foreign keys for %s: %w", name, err)
		}
		refs := make(map[string]string, len(keys))
		for _, key := range keys {
			target := key.Table
			if key.To.Valid && key.To.String != "" {
				target += "." + key.To.String
			}
			refs[key.From] = target
		}

		table := Table{Name: name, Columns: make([]Column, 0, len(columns))}
		for _, column := range columns {
			table.Columns = append(table.Columns, Column{
				Name:       column.Name,
				Type:       column.Type,
				PrimaryKey: column.PK > 0,
				References: refs[column.Name],
			})
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func introspectInformationSchema(ctx context.Context, db *sqlx.DB, schemaName string) ([]Table, error) {
	var names []string
	if err := db.SelectContext(ctx, &names, infoTablesQuery, schemaName); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		var columns []infoColumn
		if err := db.SelectContext(ctx, &columns, infoColumnsQuery, schemaName, name); err != nil {
			return nil, fmt.Errorf("list columns for %s: %w", name, err)
		}
		var keys []string
		if err := db.SelectContext(ctx, &keys, infoPrimaryKeyQuery, schemaName, name); err != nil {
			return nil, fmt.Errorf("list primary key for %s: %w", name, err)
		}
		pk := make(map[string]bool, len(keys))
		for _, key := range keys {
			pk[key] = true
		}

		table := Table{Name: name, Columns: make([]Column, 0, len(columns))}
		for _, column := range columns {
			table.Columns = append(table.Columns, Column{
				Name:       column.Name,
				Type:       column.Type,
				PrimaryKey: pk[column.Name],
			})
		}
		tables = append(tables, table)
	}
	return tables, nil
}
