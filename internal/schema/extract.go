package schema

import (
	"sort"
	"strings"

	"github.com/apiforge/gateway/openapi"
)

// rawTableSchema is the JSON shape accepted by the x-table-schemas and
// x-table-schema extensions.
type rawTableSchema struct {
	TableName string         `json:"table_name"`
	Columns   []rawColumn    `json:"columns"`
	Indexes   []rawIndex     `json:"indexes"`
	Relations []rawRelation  `json:"relations"`
}

type rawColumn struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Nullable      bool   `json:"nullable"`
	PrimaryKey    bool   `json:"primary_key"`
	Unique        bool   `json:"unique"`
	AutoIncrement bool   `json:"auto_increment"`
	Default       string `json:"default_value"`
	AutoField     bool   `json:"auto_field"`
}

type rawIndex struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

type rawRelation struct {
	FieldName    string `json:"field_name"`
	Type         string `json:"type"`
	Target       string `json:"target"`
	ForeignKey   string `json:"foreignKey"`
	LocalKey     string `json:"localKey"`
}

func (r rawTableSchema) toTableSchema() TableSchema {
	t := TableSchema{TableName: r.TableName}
	for _, c := range r.Columns {
		t.Columns = append(t.Columns, ColumnDefinition{
			Name:          c.Name,
			Type:          ColumnType(c.Type),
			Nullable:      c.Nullable,
			PrimaryKey:    c.PrimaryKey,
			Unique:        c.Unique,
			AutoIncrement: c.AutoIncrement,
			DefaultValue:  c.Default,
			AutoField:     c.AutoField,
		})
	}
	for _, i := range r.Indexes {
		t.Indexes = append(t.Indexes, IndexDefinition{Name: i.Name, Columns: i.Columns, Unique: i.Unique})
	}
	for _, rel := range r.Relations {
		localKey := rel.LocalKey
		if localKey == "" {
			localKey = "id"
		}
		t.Relations = append(t.Relations, RelationDefinition{
			FieldName:    rel.FieldName,
			RelationType: RelationType(rel.Type),
			TargetTable:  rel.Target,
			ForeignKey:   rel.ForeignKey,
			LocalKey:     localKey,
		})
	}
	return t
}

// ExtractSchemas derives the set of TableSchemas a document describes,
// trying, in order: a document-level x-table-schemas array, then
// per-path x-table-schema extensions, then — only if neither produced
// anything — derivation from components.schemas.
func ExtractSchemas(doc *openapi.Document) ([]TableSchema, error) {
	var schemas []TableSchema
	seen := make(map[string]bool)

	if doc.Extensions != nil {
		var rawSchemas []rawTableSchema
		if ok, err := doc.Extensions.Get("x-table-schemas", &rawSchemas); err != nil {
			return nil, err
		} else if ok {
			for _, r := range rawSchemas {
				t := r.toTableSchema()
				if !seen[t.TableName] {
					seen[t.TableName] = true
					schemas = append(schemas, t)
				}
			}
		}
	}

	for _, item := range doc.Paths {
		if item == nil || item.Extensions == nil {
			continue
		}
		var raw rawTableSchema
		ok, err := item.Extensions.Get("x-table-schema", &raw)
		if err != nil {
			return nil, err
		}
		if ok && !seen[raw.TableName] {
			seen[raw.TableName] = true
			schemas = append(schemas, raw.toTableSchema())
		}
	}

	if len(schemas) == 0 && doc.Components != nil {
		schemas = deriveFromComponents(doc.Components)
	}

	extractRelations(doc, schemas)

	return schemas, nil
}

// deriveFromComponents builds one TableSchema per object schema in
// components.schemas, following the fallback derivation rules: pluralised
// snake_case table names, well-known audit column names mapped to
// auto-fields, x-unique/x-index/readOnly/x-auto-field annotations
// honoured, and a synthesized integer primary key when none is present.
func deriveFromComponents(components *openapi.Components) []TableSchema {
	names := make([]string, 0, len(components.Schemas))
	for name := range components.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	var schemas []TableSchema
	for _, name := range names {
		s := components.Schemas[name]
		if s == nil || !isObjectSchema(s) {
			continue
		}
		schemas = append(schemas, deriveTableFromSchema(name, s))
	}
	return schemas
}

func isObjectSchema(s *openapi.Schema) bool {
	if len(s.Properties) > 0 {
		return true
	}
	for _, t := range s.Type.Values() {
		if t == "object" {
			return true
		}
	}
	return false
}

func deriveTableFromSchema(name string, s *openapi.Schema) TableSchema {
	table := TableSchema{TableName: pluralizeSnake(name)}
	required := make(map[string]bool, len(s.Required))
	for _, r := range s.Required {
		required[r] = true
	}

	propNames := make([]string, 0, len(s.Properties))
	for p := range s.Properties {
		propNames = append(propNames, p)
	}
	sort.Strings(propNames)

	hasPK := false
	for _, propName := range propNames {
		prop := s.Properties[propName]
		col := deriveColumn(propName, prop, required[propName])
		if col.PrimaryKey {
			hasPK = true
		}
		table.Columns = append(table.Columns, col)

		var unique, index bool
		if prop.Extensions != nil {
			if ok, _ := prop.Extensions.Get("x-unique", &unique); ok && unique {
				table.Columns[len(table.Columns)-1].Unique = true
			}
			if ok, _ := prop.Extensions.Get("x-index", &index); ok && index {
				table.Indexes = append(table.Indexes, IndexDefinition{
					Name:    "idx_" + table.TableName + "_" + propName,
					Columns: []string{propName},
				})
			}
		}
	}

	if !hasPK {
		pk := ColumnDefinition{Name: "id", Type: Integer, PrimaryKey: true, AutoIncrement: true}
		table.Columns = append([]ColumnDefinition{pk}, table.Columns...)
	}

	return table
}

func deriveColumn(name string, prop *openapi.Schema, required bool) ColumnDefinition {
	col := ColumnDefinition{Name: name, Nullable: !required}

	switch name {
	case "id":
		col.Type = Integer
		col.PrimaryKey = true
		col.AutoIncrement = true
		col.Nullable = false
		return col
	case "createdAt", "created_at":
		col.Type = Timestamp
		col.Nullable = false
		col.DefaultValue = "CURRENT_TIMESTAMP"
		col.AutoField = true
		return col
	case "updatedAt", "updated_at":
		col.Type = Timestamp
		col.Nullable = true
		col.AutoField = true
		return col
	case "createdBy", "updatedBy", "created_by", "updated_by":
		col.Type = Text
		col.Nullable = true
		col.AutoField = true
		return col
	}

	col.Type = mapOpenAPIType(prop)

	if prop.ReadOnly {
		col.AutoField = true
	}
	if prop.Extensions != nil {
		var autoField bool
		if ok, _ := prop.Extensions.Get("x-auto-field", &autoField); ok && autoField {
			col.AutoField = true
		}
	}
	return col
}

// mapOpenAPIType maps an OpenAPI type+format pair to the generic column
// type domain.
func mapOpenAPIType(s *openapi.Schema) ColumnType {
	types := s.Type.Values()
	primary := "string"
	for _, t := range types {
		if t != "null" {
			primary = t
			break
		}
	}

	switch primary {
	case "string":
		switch s.Format {
		case "date-time":
			return Timestamp
		case "date":
			return Date
		default:
			return Text
		}
	case "integer":
		return Integer
	case "number":
		return Real
	case "boolean":
		return Boolean
	case "array", "object":
		return Text
	default:
		return Text
	}
}

// pluralizeSnake converts a PascalCase/camelCase component schema name
// into a snake_case, pluralised table name, e.g. "User" -> "users",
// "OrderItem" -> "order_items".
func pluralizeSnake(name string) string {
	snake := toSnakeCase(name)
	if strings.HasSuffix(snake, "s") {
		return snake
	}
	return snake + "s"
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// extractRelations scans every operation's requestBody and responses for
// properties carrying x-relation, attaching a RelationDefinition to the
// schema named by that operation's x-table-name. It also scans every
// components.schemas entry whose pluralized name matches a table.
func extractRelations(doc *openapi.Document, schemas []TableSchema) {
	byName := make(map[string]*TableSchema, len(schemas))
	for i := range schemas {
		byName[schemas[i].TableName] = &schemas[i]
	}

	for _, item := range doc.Paths {
		if item == nil {
			continue
		}
		for _, op := range []*openapi.Operation{item.Get, item.Post, item.Put, item.Patch, item.Delete} {
			if op == nil {
				continue
			}
			tableName := operationTableName(item, op)
			target, ok := byName[tableName]
			if !ok {
				continue
			}
			for _, s := range operationSchemas(op) {
				scanRelations(s, target)
			}
		}
	}

	if doc.Components != nil {
		for name, s := range doc.Components.Schemas {
			target, ok := byName[pluralizeSnake(name)]
			if !ok {
				continue
			}
			scanRelations(s, target)
		}
	}
}

func operationTableName(item *openapi.PathItem, op *openapi.Operation) string {
	if op.Extensions != nil {
		var name string
		if ok, _ := op.Extensions.Get("x-table-name", &name); ok && name != "" {
			return name
		}
	}
	if item.Extensions != nil {
		var name string
		if ok, _ := item.Extensions.Get("x-table-name", &name); ok && name != "" {
			return name
		}
	}
	return ""
}

func operationSchemas(op *openapi.Operation) []*openapi.Schema {
	var out []*openapi.Schema
	if op.RequestBody != nil {
		if mt, ok := op.RequestBody.Content["application/json"]; ok && mt.Schema != nil {
			out = append(out, mt.Schema)
		}
	}
	for _, resp := range op.Responses {
		if mt, ok := resp.Content["application/json"]; ok && mt.Schema != nil {
			out = append(out, mt.Schema)
		}
	}
	return out
}

func scanRelations(s *openapi.Schema, target *TableSchema) {
	if s == nil {
		return
	}
	existing := make(map[string]bool, len(target.Relations))
	for _, r := range target.Relations {
		existing[r.FieldName] = true
	}
	for propName, prop := range s.Properties {
		if prop == nil || prop.Extensions == nil {
			continue
		}
		var raw rawRelation
		ok, err := prop.Extensions.Get("x-relation", &raw)
		if err != nil || !ok {
			continue
		}
		if raw.FieldName == "" {
			raw.FieldName = propName
		}
		if existing[raw.FieldName] {
			continue
		}
		localKey := raw.LocalKey
		if localKey == "" {
			localKey = "id"
		}
		target.Relations = append(target.Relations, RelationDefinition{
			FieldName:    raw.FieldName,
			RelationType: RelationType(raw.Type),
			TargetTable:  raw.Target,
			ForeignKey:   raw.ForeignKey,
			LocalKey:     localKey,
		})
		existing[raw.FieldName] = true
	}
}
