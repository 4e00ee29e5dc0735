// Package appstate assembles one listener's immutable configuration
// snapshot: the generated route table, the CRUD handler bound to its
// datasource, and the three-tier module registries (listener, route,
// operation) every request resolves against. A *AppState is never
// mutated after construction; the hot-reload supervisor in
// internal/listener builds a new one and atomically swaps it in.
package appstate

import (
	"context"
	"fmt"

	"github.com/apiforge/gateway/internal/authn"
	"github.com/apiforge/gateway/internal/crud"
	"github.com/apiforge/gateway/internal/dbackend"
	"github.com/apiforge/gateway/internal/modules"
	"github.com/apiforge/gateway/internal/pipeline"
	"github.com/apiforge/gateway/internal/routegen"
	"github.com/apiforge/gateway/internal/schema"
	"github.com/apiforge/gateway/openapi"
)

// AppState is one listener's complete, immutable live configuration.
type AppState struct {
	Generator *routegen.APIGenerator
	CRUD      *crud.Handler

	// ListenerRegistry runs for every request as the final fallback.
	ListenerRegistry *pipeline.Registry
	// RouteRegistries is keyed by path_pattern (e.g. "/users/{id}").
	RouteRegistries map[string]*pipeline.Registry
	// OperationRegistries is keyed by "METHOD path_pattern".
	OperationRegistries map[string]*pipeline.Registry

	// Consumers and KeyIndex mirror the authenticators' own consumer
	// lists, carried on AppState for admin/diagnostic endpoints.
	Consumers []authn.Consumer
	KeyIndex  map[string]string // api key -> consumer name

	// CPBackend is the control-plane metadata database, when this
	// listener also serves the CP reader endpoints. Nil for pure
	// data-plane listeners.
	CPBackend dbackend.DatabaseBackend

	backend dbackend.DatabaseBackend
}

// Config is everything needed to build one AppState: the merged OpenAPI
// document(s) for this listener, the datasource backend to run CRUD
// against, the authenticators it exposes, and the listener-wide module
// set (request id, security headers, etc. are handled at the net/http middleware
// layer, not here — ListenerModules is the pipeline-level fallback, e.g.
// a catch-all access-log module).
type Config struct {
	Documents       []*openapi.Document
	Backend         dbackend.DatabaseBackend
	Dialect         schema.Dialect
	KeyAuth         []authn.ApiKeyConfig
	OIDC            *authn.OIDCConfig
	ListenerModules []pipeline.Module
	CPBackend       dbackend.DatabaseBackend
}

// Build derives a TableSchema set from cfg's merged document, initializes
// (creates or migrates) every table against cfg.Backend, builds the route
// table, and compiles the per-route and per-operation module registries.
func Build(ctx context.Context, cfg Config) (*AppState, error) {
	doc := MergeDocuments(cfg.Documents)

	schemas, err := schema.ExtractSchemas(doc)
	if err != nil {
		return nil, fmt.Errorf("appstate: extract schemas: %w", err)
	}
	if err := cfg.Backend.InitializeSchema(ctx, schemas); err != nil {
		return nil, fmt.Errorf("appstate: initialize schema: %w", err)
	}

	generator := routegen.NewAPIGenerator(doc)
	crudHandler := crud.NewHandler(cfg.Backend, schemas, cfg.Dialect)

	catalog := modules.AuthCatalog{}
	if len(cfg.KeyAuth) > 0 {
		catalog.KeyAuth = authn.NewApiKeyModule(cfg.KeyAuth)
	}
	if cfg.OIDC != nil {
		catalog.OIDC = authn.NewOIDCModule(*cfg.OIDC)
	}

	schemes := securitySchemesOf(doc)

	routeRegs := make(map[string]*pipeline.Registry)
	opRegs := make(map[string]*pipeline.Registry)
	for path, item := range doc.Paths {
		if item == nil {
			continue
		}
		routeModules := &pipeline.Registry{}
		for method, op := range operationsOf(item) {
			if op == nil {
				continue
			}
			validator := modules.NewValidatorModule(op, item.Parameters)
			responseHeaders := modules.NewResponseHeadersModule(nil)
			reg := modules.BuildOperationRegistry(doc, op, catalog, schemes, validator, responseHeaders)
			opRegs[method+" "+path] = reg
			routeModules.Modules = append(routeModules.Modules, reg.Modules...)
		}
		routeRegs[path] = routeModules
	}

	var consumers []authn.Consumer
	keyIndex := make(map[string]string)
	for _, cfg := range cfg.KeyAuth {
		for _, c := range cfg.Consumers {
			consumers = append(consumers, c)
			for _, k := range c.Keys {
				keyIndex[k] = c.Name
			}
		}
	}

	listenerReg := &pipeline.Registry{}
	for _, m := range cfg.ListenerModules {
		listenerReg.Modules = append(listenerReg.Modules, m)
	}

	return &AppState{
		Generator:           generator,
		CRUD:                crudHandler,
		ListenerRegistry:    listenerReg,
		RouteRegistries:     routeRegs,
		OperationRegistries: opRegs,
		Consumers:           consumers,
		KeyIndex:            keyIndex,
		CPBackend:           cfg.CPBackend,
		backend:             cfg.Backend,
	}, nil
}

// Registries resolves the three-tier registry bundle for a matched
// RoutePattern.
func (s *AppState) Registries(pattern *routegen.RoutePattern) pipeline.Registries {
	return pipeline.Registries{
		Operation: s.operationRegistry(pattern),
		Route:     s.RouteRegistries[pattern.PathPattern],
		Listener:  s.ListenerRegistry,
	}
}

func (s *AppState) operationRegistry(pattern *routegen.RoutePattern) *pipeline.Registry {
	for _, method := range pattern.Methods {
		if reg, ok := s.OperationRegistries[method+" "+pattern.PathPattern]; ok {
			return reg
		}
	}
	return nil
}

// Close releases the backend connection pool this AppState owns. It does
// not close CPBackend, which outlives individual AppState generations
// across hot reloads.
func (s *AppState) Close() error {
	return s.backend.Close()
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

func securitySchemesOf(doc *openapi.Document) map[string]*openapi.SecurityScheme {
	if doc.Components == nil {
		return nil
	}
	return doc.Components.SecuritySchemes
}
