package schema

import (
	"fmt"
	"strings"
)

// Dialect identifies a SQL backend for DDL emission and migration policy.
type Dialect int

const (
	SQLite Dialect = iota
	PostgreSQL
)

// CreateTableDDL returns the CREATE TABLE statement(s) for t under
// dialect: the table statement first, followed by one statement per
// index.
func CreateTableDDL(t TableSchema, dialect Dialect) []string {
	switch dialect {
	case PostgreSQL:
		return createTablePostgres(t)
	default:
		return createTableSQLite(t)
	}
}

func createTableSQLite(t TableSchema) []string {
	var cols []string
	for _, c := range t.Columns {
		cols = append(cols, sqliteColumnDDL(c))
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", t.TableName, strings.Join(cols, ",\n  "))

	stmts := []string{stmt}
	for _, idx := range t.Indexes {
		stmts = append(stmts, indexDDL(t.TableName, idx))
	}
	return stmts
}

func sqliteColumnDDL(c ColumnDefinition) string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte(' ')

	if c.PrimaryKey && c.AutoIncrement {
		b.WriteString("INTEGER PRIMARY KEY AUTOINCREMENT")
		return b.String()
	}

	b.WriteString(sqliteType(c.Type))
	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	if !c.Nullable && !c.PrimaryKey {
		b.WriteString(" NOT NULL")
	}
	if c.Unique && !c.PrimaryKey {
		b.WriteString(" UNIQUE")
	}
	if c.DefaultValue != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.DefaultValue)
	}
	return b.String()
}

func sqliteType(t ColumnType) string {
	switch t {
	case Integer, BigInt, SmallInt, Boolean:
		return "INTEGER"
	case Real, Float, Double, Decimal, Numeric:
		return "REAL"
	case Blob:
		return "BLOB"
	case DateTime:
		return "DATETIME"
	case Date:
		return "DATE"
	case Time:
		return "TIME"
	case Timestamp:
		return "DATETIME"
	default:
		return "TEXT"
	}
}

func createTablePostgres(t TableSchema) []string {
	var cols []string
	for _, c := range t.Columns {
		cols = append(cols, postgresColumnDDL(c))
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", t.TableName, strings.Join(cols, ",\n  "))

	stmts := []string{stmt}
	for _, idx := range t.Indexes {
		stmts = append(stmts, indexDDL(t.TableName, idx))
	}
	return stmts
}

func postgresColumnDDL(c ColumnDefinition) string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte(' ')

	if c.PrimaryKey && c.AutoIncrement && (c.Type == Integer || c.Type == BigInt || c.Type == SmallInt) {
		b.WriteString("SERIAL PRIMARY KEY")
		return b.String()
	}

	b.WriteString(postgresType(c.Type))
	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	if !c.Nullable && !c.PrimaryKey {
		b.WriteString(" NOT NULL")
	}
	if c.Unique && !c.PrimaryKey {
		b.WriteString(" UNIQUE")
	}
	if c.DefaultValue != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.DefaultValue)
	}
	return b.String()
}

func postgresType(t ColumnType) string {
	switch t {
	case Integer:
		return "INTEGER"
	case BigInt:
		return "BIGINT"
	case SmallInt:
		return "SMALLINT"
	case Text, String:
		return "TEXT"
	case Varchar:
		return "VARCHAR(255)"
	case Char:
		return "CHAR(1)"
	case Real, Float:
		return "REAL"
	case Double:
		return "DOUBLE PRECISION"
	case Decimal, Numeric:
		return "NUMERIC"
	case Boolean:
		return "BOOLEAN"
	case Blob:
		return "BYTEA"
	case Timestamp, DateTime:
		return "TIMESTAMPTZ"
	case Date:
		return "DATE"
	case Time:
		return "TIME"
	default:
		return "TEXT"
	}
}

func indexDDL(table string, idx IndexDefinition) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	name := idx.Name
	if name == "" {
		name = fmt.Sprintf("idx_%s_%s", table, strings.Join(idx.Columns, "_"))
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)", unique, name, table, strings.Join(idx.Columns, ", "))
}
