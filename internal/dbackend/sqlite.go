package dbackend

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"

	"github.com/apiforge/gateway/internal/schema"
)

// migrationMutexes serializes InitializeSchema calls against the same
// SQLite database file across every SqliteBackend instance in the
// process, since SQLite's recreation-based migration touches the whole
// file and two concurrent migrations of the same file would corrupt one
// another's rename/create/copy/drop sequence.
var (
	migrationMutexesMu sync.Mutex
	migrationMutexes    = map[string]*sync.Mutex{}
)

func migrationMutexFor(path string) *sync.Mutex {
	migrationMutexesMu.Lock()
	defer migrationMutexesMu.Unlock()
	m, ok := migrationMutexes[path]
	if !ok {
		m = &sync.Mutex{}
		migrationMutexes[path] = m
	}
	return m
}

// SqliteBackend is the DatabaseBackend implementation over a SQLite file
// (or in-memory database), opened through the pure-Go modernc.org/sqlite
// driver.
type SqliteBackend struct {
	db       *sql.DB
	filePath string
	mu       *sync.Mutex
}

// NewSqliteBackend opens (creating the containing directory if needed) a
// SQLite database at path, which may be ":memory:" for an
// in-memory database or a plain filesystem path. WAL journal mode and a
// 5-second busy-timeout are set on every connection.
func NewSqliteBackend(path string, maxPoolSize int) (*SqliteBackend, error) {
	dsn := path
	if path != ":memory:" && !strings.Contains(path, "mode=memory") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if maxPoolSize <= 0 {
		maxPoolSize = 10
	}
	db.SetMaxOpenConns(maxPoolSize)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("set sqlite journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("set sqlite busy timeout: %w", err)
	}

	return &SqliteBackend{db: db, filePath: path, mu: migrationMutexFor(path)}, nil
}

func (b *SqliteBackend) Close() error {
	return b.db.Close()
}

func (b *SqliteBackend) InitializeSchema(ctx context.Context, schemas []schema.TableSchema) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, desired := range schemas {
		current, err := b.getTableSchemaLocked(ctx, desired.TableName)
		if err != nil {
			return fmt.Errorf("introspect table %s: %w", desired.TableName, err)
		}
		plan := schema.MigratePlan(current, desired, schema.SQLite)
		if plan.Recreated {
			plan = schema.ResolveTempSuffix(plan, strings.ReplaceAll(uuid.NewString(), "-", ""))
		}
		for _, stmt := range plan.Statements {
			if _, err := b.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate table %s: %w\nstatement: %s", desired.TableName, err, stmt)
			}
		}
		log.Debug().Str("table", desired.TableName).Int("statements", len(plan.Statements)).Msg("schema initialized")
	}
	return nil
}

func (b *SqliteBackend) GetTableSchema(ctx context.Context, table string) (*schema.TableSchema, error) {
	return b.getTableSchemaLocked(ctx, table)
}

func (b *SqliteBackend) getTableSchemaLocked(ctx context.Context, table string) (*schema.TableSchema, error) {
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []schema.ColumnDefinition
	found := false
	for rows.Next() {
		found = true
		var cid int
		var name, ctype string
		var notNull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, schema.ColumnDefinition{
			Name:          name,
			Type:          sqliteColumnTypeFromDDL(ctype),
			Nullable:      notNull == 0,
			PrimaryKey:    pk > 0,
			AutoIncrement: pk > 0 && strings.EqualFold(ctype, "INTEGER"),
			DefaultValue:  dflt.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &schema.TableSchema{TableName: table, Columns: cols}, nil
}

func sqliteColumnTypeFromDDL(ctype string) schema.ColumnType {
	switch strings.ToUpper(ctype) {
	case "INTEGER":
		return schema.Integer
	case "REAL":
		return schema.Real
	case "BLOB":
		return schema.Blob
	case "DATETIME":
		return schema.Timestamp
	case "DATE":
		return schema.Date
	case "TIME":
		return schema.Time
	default:
		return schema.Text
	}
}

func (b *SqliteBackend) Select(ctx context.Context, table string, opts SelectOptions) ([]map[string]any, error) {
	query := "SELECT * FROM " + table
	where, args := buildWhere(placeholderQuestion, opts.Filters, 1)
	if where != "" {
		query += " WHERE " + where
	}
	if opts.Limit != nil {
		query += " LIMIT " + strconv.Itoa(*opts.Limit)
	}
	if opts.Offset != nil {
		query += " OFFSET " + strconv.Itoa(*opts.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func (b *SqliteBackend) Insert(ctx context.Context, table string, values map[string]any) (any, map[string]any, error) {
	cols, placeholders, args := buildInsert(placeholderQuestion, values)
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	result, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, nil, err
	}
	return id, nil, nil
}

func (b *SqliteBackend) Update(ctx context.Context, table, pkColumn string, pkValue any, values map[string]any) (int64, error) {
	setClause, args, next := buildSet(placeholderQuestion, values)
	whereClause, whereArgs := buildWhere(placeholderQuestion, []Filter{{Column: pkColumn, Value: pkValue}}, next)
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, setClause, whereClause)
	result, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (b *SqliteBackend) Delete(ctx context.Context, table, pkColumn string, pkValue any) (int64, error) {
	whereClause, args := buildWhere(placeholderQuestion, []Filter{{Column: pkColumn, Value: pkValue}}, 1)
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", table, whereClause)
	result, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (b *SqliteBackend) ListTables(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
