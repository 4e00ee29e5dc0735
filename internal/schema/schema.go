// Package schema derives the relational shape of the tables a gateway
// exposes from a parsed OpenAPI document, emits dialect-specific DDL for
// that shape, and migrates an existing table toward it.
package schema

// ColumnType is the generic, dialect-independent column type domain.
// Unknown OpenAPI type/format pairs map to Text.
type ColumnType string

const (
	Integer  ColumnType = "integer"
	BigInt   ColumnType = "bigint"
	SmallInt ColumnType = "smallint"
	Text     ColumnType = "text"
	String   ColumnType = "string"
	Varchar  ColumnType = "varchar"
	Char     ColumnType = "char"
	Real     ColumnType = "real"
	Float    ColumnType = "float"
	Double   ColumnType = "double"
	Decimal  ColumnType = "decimal"
	Numeric  ColumnType = "numeric"
	Boolean  ColumnType = "boolean"
	Blob     ColumnType = "blob"
	DateTime ColumnType = "datetime"
	Timestamp ColumnType = "timestamp"
	Date     ColumnType = "date"
	Time     ColumnType = "time"
)

// ColumnDefinition describes one column of a TableSchema.
type ColumnDefinition struct {
	Name          string
	Type          ColumnType
	Nullable      bool
	PrimaryKey    bool
	Unique        bool
	AutoIncrement bool
	// DefaultValue is a raw SQL literal/expression, e.g. "CURRENT_TIMESTAMP".
	DefaultValue string
	// AutoField is true when the engine, not the client, supplies the
	// value (e.g. createdBy, updatedAt).
	AutoField bool
}

// IndexDefinition describes a non-primary-key index.
type IndexDefinition struct {
	Name    string
	Columns []string
	Unique  bool
}

// RelationType enumerates the logical relation kinds a RelationDefinition
// may describe.
type RelationType string

const (
	HasMany      RelationType = "hasMany"
	BelongsTo    RelationType = "belongsTo"
	HasOne       RelationType = "hasOne"
	BelongsToMany RelationType = "belongsToMany"
)

// RelationDefinition describes a logical relation from one table to
// another, carried for API consumers; the gateway's own CRUD engine does
// not join across relations automatically.
type RelationDefinition struct {
	FieldName    string
	RelationType RelationType
	TargetTable  string
	ForeignKey   string
	LocalKey     string // defaults to "id"
}

// TableSchema is the desired shape of one user table.
type TableSchema struct {
	TableName string
	Columns   []ColumnDefinition
	Indexes   []IndexDefinition
	Relations []RelationDefinition
}

// PrimaryKey returns the schema's primary key column, if any.
func (t *TableSchema) PrimaryKey() (ColumnDefinition, bool) {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}

// ColumnNames returns the schema's column names in declared order.
func (t *TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (t *TableSchema) Column(name string) (ColumnDefinition, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}
