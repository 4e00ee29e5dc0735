// Package routegen derives the gateway's generated route table from a
// parsed OpenAPI document, matching incoming requests to the operation
// that should serve them.
package routegen

import (
	"net/http/httptest"
	"strings"

	"github.com/apiforge/gateway/mux"
	"github.com/apiforge/gateway/openapi"
)

// OperationType is the CRUD operation kind inferred for a matched route.
type OperationType string

const (
	List   OperationType = "list"
	Get    OperationType = "get"
	Create OperationType = "create"
	Update OperationType = "update"
	Delete OperationType = "delete"
)

// RoutePattern is the gateway's own record of one generated route,
// carried alongside the mux.Route that actually performs matching.
type RoutePattern struct {
	PathPattern   string
	Methods       []string
	OperationType OperationType
	TableName     string
	ParamNames    []string
}

// APIGenerator builds its route table once per merged OpenAPI document
// and matches incoming requests against it using kasper's own mux
// template/regexp engine — OpenAPI's "{id}" path parameter syntax is
// already the same brace syntax mux.Route.Path compiles, so no separate
// regex layer is needed here.
type APIGenerator struct {
	router   *mux.Router
	byRoute  map[*mux.Route]*RoutePattern
}

// NewAPIGenerator walks every path+operation in doc and registers one
// mux.Route per (path, method) pair.
func NewAPIGenerator(doc *openapi.Document) *APIGenerator {
	g := &APIGenerator{
		router:  mux.NewRouter(),
		byRoute: make(map[*mux.Route]*RoutePattern),
	}

	for path, item := range doc.Paths {
		if item == nil {
			continue
		}
		for method, op := range operationsOf(item) {
			if op == nil {
				continue
			}
			pattern := &RoutePattern{
				PathPattern:   path,
				Methods:       []string{method},
				OperationType: inferOperationType(method, path),
				TableName:     tableNameFor(item, op, path),
				ParamNames:    paramNames(path),
			}
			route := g.router.Path(path).Methods(method)
			g.byRoute[route] = pattern
		}
	}

	return g
}

func operationsOf(item *openapi.PathItem) map[string]*openapi.Operation {
	return map[string]*openapi.Operation{
		"GET":    item.Get,
		"POST":   item.Post,
		"PUT":    item.Put,
		"PATCH":  item.Patch,
		"DELETE": item.Delete,
	}
}

// inferOperationType infers the CRUD operation kind from the method and
// whether the path's final segment is a brace-delimited parameter.
func inferOperationType(method, path string) OperationType {
	lastSegmentIsParam := false
	if segs := strings.Split(strings.TrimSuffix(path, "/"), "/"); len(segs) > 0 {
		last := segs[len(segs)-1]
		lastSegmentIsParam = strings.HasPrefix(last, "{") && strings.HasSuffix(last, "}")
	}

	switch method {
	case "GET":
		if lastSegmentIsParam {
			return Get
		}
		return List
	case "POST":
		return Create
	case "PUT", "PATCH":
		return Update
	case "DELETE":
		return Delete
	default:
		return List
	}
}

// tableNameFor resolves a route's table name: the operation's
// x-table-name, then the path item's, then the path's first segment.
func tableNameFor(item *openapi.PathItem, op *openapi.Operation, path string) string {
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
	segs := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segs) > 0 {
		return segs[0]
	}
	return ""
}

// paramNames extracts the ordered brace-delimited parameter names from
// an OpenAPI path template, e.g. "/users/{id}" -> ["id"].
func paramNames(path string) []string {
	var names []string
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			names = append(names, strings.TrimSuffix(strings.TrimPrefix(seg, "{"), "}"))
		}
	}
	return names
}

// MatchOperation returns the first RoutePattern whose path and method
// match, along with the captured path parameters. It reports false if no
// route matches.
func (g *APIGenerator) MatchOperation(method, path string) (*RoutePattern, map[string]string, bool) {
	req := httptest.NewRequest(method, path, nil)

	var match mux.RouteMatch
	if !g.router.Match(req, &match) {
		return nil, nil, false
	}
	pattern, ok := g.byRoute[match.Route]
	if !ok {
		return nil, nil, false
	}
	return pattern, match.Vars, true
}

// Patterns returns every registered route pattern, for diagnostics and
// documentation endpoints.
func (g *APIGenerator) Patterns() []*RoutePattern {
	patterns := make([]*RoutePattern, 0, len(g.byRoute))
	for _, p := range g.byRoute {
		patterns = append(patterns, p)
	}
	return patterns
}
