// Package dbackend implements the gateway's database backends: a single
// capability set (DatabaseBackend) satisfied by a SQLite and a
// PostgreSQL implementation, both built on database/sql.
package dbackend

import (
	"context"

	"github.com/apiforge/gateway/internal/schema"
)

// Filter is an equality condition on one column, built from a list
// endpoint's query parameters (minus the reserved limit/offset keys).
type Filter struct {
	Column string
	Value  any
}

// SelectOptions bounds a Select call.
type SelectOptions struct {
	Filters []Filter
	Limit   *int
	Offset  *int
}

// DatabaseBackend is the capability set the CRUD engine and schema
// migration code drive. SqliteBackend and PostgresBackend are its only
// two implementations.
type DatabaseBackend interface {
	// InitializeSchema creates or migrates every table in schemas to
	// match the desired shape.
	InitializeSchema(ctx context.Context, schemas []schema.TableSchema) error

	// Select runs a filtered read against table, returning each row as
	// a JSON-ready map.
	Select(ctx context.Context, table string, opts SelectOptions) ([]map[string]any, error)

	// Insert inserts values into table. It returns the inserted row
	// (PostgreSQL, via RETURNING *) or just the generated id (SQLite).
	Insert(ctx context.Context, table string, values map[string]any) (id any, record map[string]any, err error)

	// Update applies values to the row(s) matching pkColumn = pkValue,
	// returning the number of affected rows.
	Update(ctx context.Context, table, pkColumn string, pkValue any, values map[string]any) (affected int64, err error)

	// Delete removes the row matching pkColumn = pkValue, returning the
	// number of affected rows.
	Delete(ctx context.Context, table, pkColumn string, pkValue any) (affected int64, err error)

	// GetTableSchema introspects the live shape of table, or returns
	// (nil, nil) if the table does not exist.
	GetTableSchema(ctx context.Context, table string) (*schema.TableSchema, error)

	// ListTables returns every user table name known to the database.
	ListTables(ctx context.Context) ([]string, error)

	// Close releases the backend's connection pool.
	Close() error
}
