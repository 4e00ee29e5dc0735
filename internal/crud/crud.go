// Package crud implements the gateway's generic CRUD dispatch: given a
// matched route, request parameters, and a JSON body, it builds and runs
// the corresponding database operation and returns the JSON result the
// pipeline's Response phase serializes.
package crud

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/apiforge/gateway/internal/dbackend"
	"github.com/apiforge/gateway/internal/gwerror"
	"github.com/apiforge/gateway/internal/routegen"
	"github.com/apiforge/gateway/internal/schema"
)

// reservedQueryParams never participate in a list endpoint's WHERE
// clause.
var reservedQueryParams = map[string]bool{"limit": true, "offset": true}

// Handler dispatches matched routes against one DatabaseBackend, using
// the extracted TableSchemas to resolve primary keys and auto-fields.
type Handler struct {
	backend dbackend.DatabaseBackend
	schemas map[string]schema.TableSchema
	dialect schema.Dialect
}

// NewHandler indexes schemas by table name for Handle's lookups. dialect
// must match backend's own dialect, since BindValue's numeric binding
// rule differs between SQLite and PostgreSQL.
func NewHandler(backend dbackend.DatabaseBackend, schemas []schema.TableSchema, dialect schema.Dialect) *Handler {
	byName := make(map[string]schema.TableSchema, len(schemas))
	for _, s := range schemas {
		byName[s.TableName] = s
	}
	return &Handler{backend: backend, schemas: byName, dialect: dialect}
}

// Handle runs the operation pattern describes against pathParams,
// queryParams, and body, attributing auto-fields to consumerName when
// non-empty.
func (h *Handler) Handle(
	ctx context.Context,
	pattern *routegen.RoutePattern,
	pathParams map[string]string,
	queryParams url.Values,
	body any,
	consumerName string,
) (any, error) {
	switch pattern.OperationType {
	case routegen.List:
		return h.list(ctx, pattern, queryParams)
	case routegen.Get:
		return h.get(ctx, pattern, pathParams)
	case routegen.Create:
		return h.create(ctx, pattern, body, consumerName)
	case routegen.Update:
		return h.update(ctx, pattern, pathParams, body, consumerName)
	case routegen.Delete:
		return h.delete(ctx, pattern, pathParams)
	default:
		return nil, gwerror.New(gwerror.InternalError, "internal error")
	}
}

func (h *Handler) list(ctx context.Context, pattern *routegen.RoutePattern, query url.Values) (any, error) {
	opts := dbackend.SelectOptions{}
	for key, values := range query {
		if reservedQueryParams[key] || len(values) == 0 {
			continue
		}
		opts.Filters = append(opts.Filters, dbackend.Filter{Column: key, Value: values[0]})
	}
	if raw := query.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			opts.Limit = &n
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			opts.Offset = &n
		}
	}

	rows, err := h.backend.Select(ctx, pattern.TableName, opts)
	if err != nil {
		return nil, gwerror.Wrap(gwerror.DatabaseError, "database error", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

func (h *Handler) get(ctx context.Context, pattern *routegen.RoutePattern, pathParams map[string]string) (any, error) {
	pkColumn, pkValue, err := h.primaryKeyParam(pattern, pathParams)
	if err != nil {
		return nil, err
	}

	rows, err := h.backend.Select(ctx, pattern.TableName, dbackend.SelectOptions{
		Filters: []dbackend.Filter{{Column: pkColumn, Value: pkValue}},
		Limit:   intPtr(1),
	})
	if err != nil {
		return nil, gwerror.Wrap(gwerror.DatabaseError, "database error", err)
	}
	if len(rows) == 0 {
		return nil, gwerror.New(gwerror.NotFound, "record not found")
	}
	return rows[0], nil
}

func (h *Handler) create(ctx context.Context, pattern *routegen.RoutePattern, body any, consumerName string) (any, error) {
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, gwerror.New(gwerror.ValidationError, "Request body is required")
	}

	values, err := h.bindValues(pattern.TableName, obj)
	if err != nil {
		return nil, err
	}
	h.injectAutoField(pattern.TableName, values, "createdBy", consumerName)
	h.injectAutoField(pattern.TableName, values, "created_by", consumerName)

	id, record, err := h.backend.Insert(ctx, pattern.TableName, values)
	if err != nil {
		return nil, gwerror.Wrap(gwerror.DatabaseError, "database error", err)
	}

	result := map[string]any{
		"message":       "Record inserted",
		"affected_rows": 1,
	}
	if id != nil {
		result["id"] = id
	}
	if record != nil {
		result["record"] = record
	}
	return result, nil
}

func (h *Handler) update(ctx context.Context, pattern *routegen.RoutePattern, pathParams map[string]string, body any, consumerName string) (any, error) {
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, gwerror.New(gwerror.ValidationError, "Request body is required")
	}

	pkColumn, pkValue, err := h.primaryKeyParam(pattern, pathParams)
	if err != nil {
		return nil, err
	}

	values, err := h.bindValues(pattern.TableName, obj)
	if err != nil {
		return nil, err
	}
	h.injectAutoField(pattern.TableName, values, "updatedBy", consumerName)
	h.injectAutoField(pattern.TableName, values, "updated_by", consumerName)

	affected, err := h.backend.Update(ctx, pattern.TableName, pkColumn, pkValue, values)
	if err != nil {
		return nil, gwerror.Wrap(gwerror.DatabaseError, "database error", err)
	}

	return map[string]any{
		"message":       "Record updated",
		"affected_rows": affected,
	}, nil
}

func (h *Handler) delete(ctx context.Context, pattern *routegen.RoutePattern, pathParams map[string]string) (any, error) {
	pkColumn, pkValue, err := h.primaryKeyParam(pattern, pathParams)
	if err != nil {
		return nil, err
	}

	affected, err := h.backend.Delete(ctx, pattern.TableName, pkColumn, pkValue)
	if err != nil {
		return nil, gwerror.Wrap(gwerror.DatabaseError, "database error", err)
	}
	if affected == 0 {
		return nil, gwerror.New(gwerror.NotFound, "record not found")
	}

	return map[string]any{
		"message":       "Record deleted",
		"affected_rows": affected,
	}, nil
}

// primaryKeyParam resolves the first path parameter (the only one that
// participates in a generic CRUD WHERE clause) and the primary key
// column it binds to, coercing the raw string into int64, float64, or
// string per CoercePrimaryKey.
func (h *Handler) primaryKeyParam(pattern *routegen.RoutePattern, pathParams map[string]string) (string, any, error) {
	if len(pattern.ParamNames) == 0 {
		return "", nil, gwerror.New(gwerror.ValidationError, "missing primary key parameter")
	}
	raw, ok := pathParams[pattern.ParamNames[0]]
	if !ok || raw == "" {
		return "", nil, gwerror.New(gwerror.InvalidParameter, fmt.Sprintf("missing parameter %q", pattern.ParamNames[0]))
	}

	pkColumn := "id"
	if s, ok := h.schemas[pattern.TableName]; ok {
		if pk, ok := s.PrimaryKey(); ok {
			pkColumn = pk.Name
		}
	}
	return pkColumn, dbackend.CoercePrimaryKey(raw), nil
}

// bindValues converts a decoded JSON object's values into bound SQL
// values via dbackend.BindValue, using the handler's dialect-sensitive
// numeric binding rule for every table; the table's schema is not
// consulted.
func (h *Handler) bindValues(table string, obj map[string]any) (map[string]any, error) {
	bound := make(map[string]any, len(obj))
	for k, v := range obj {
		bv, err := dbackend.BindValue(v, h.dialect)
		if err != nil {
			return nil, gwerror.New(gwerror.ValidationError, fmt.Sprintf("invalid value for %q", k))
		}
		bound[k] = bv
	}
	return bound, nil
}

func (h *Handler) injectAutoField(table string, values map[string]any, column, consumerName string) {
	if consumerName == "" {
		return
	}
	s, ok := h.schemas[table]
	if !ok {
		return
	}
	col, ok := s.Column(column)
	if !ok || !col.AutoField {
		return
	}
	values[column] = consumerName
}

func intPtr(n int) *int { return &n }
