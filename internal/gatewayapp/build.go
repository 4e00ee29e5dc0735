// Package gatewayapp wires the static config.Config, the database
// backends it names, and the control-plane reader into the
// appstate.Config/listener.Config values internal/listener and
// internal/cp actually run against. It is the Go equivalent of the
// original's bin/apify.rs main(), minus the tokio runtime bootstrapping
// (the Go runtime's scheduler needs none of that).
package gatewayapp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/apiforge/gateway/internal/appstate"
	"github.com/apiforge/gateway/internal/authn"
	"github.com/apiforge/gateway/internal/config"
	"github.com/apiforge/gateway/internal/cp"
	"github.com/apiforge/gateway/internal/dbackend"
	"github.com/apiforge/gateway/internal/listener"
	"github.com/apiforge/gateway/internal/schema"
	"github.com/apiforge/gateway/openapi"
)

// App holds every open resource gatewayapp.Build produced, so main can
// close them on shutdown.
type App struct {
	Listeners []listener.Config
	CPReader  *cp.Reader
	CPHandler *cp.Handler

	backends map[string]dbackend.DatabaseBackend
	cpBackend dbackend.DatabaseBackend
}

// Close releases every datasource connection pool gatewayapp opened.
func (a *App) Close() error {
	var firstErr error
	for _, b := range a.backends {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.cpBackend != nil {
		if err := a.cpBackend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Build opens every datasource named in cfg, loads and parses every
// attached OpenAPI document, and returns one listener.Config per
// configured listener plus (when a control-plane datasource is
// configured) the cp.Reader/Handler pair.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	app := &App{backends: make(map[string]dbackend.DatabaseBackend)}

	for name, ds := range cfg.Datasource {
		backend, _, err := openDatasource(ds)
		if err != nil {
			return nil, fmt.Errorf("gatewayapp: open datasource %q: %w", name, err)
		}
		app.backends[name] = backend
	}

	var metaHandler *cp.Handler
	if cfg.ControlPlane != nil {
		cpBackend, _, err := openDatasource(cfg.ControlPlane.Database)
		if err != nil {
			return nil, fmt.Errorf("gatewayapp: open control-plane datasource: %w", err)
		}
		app.cpBackend = cpBackend

		reader := cp.NewReader(cpBackend)
		if err := reader.InitializeMetaSchema(ctx); err != nil {
			return nil, fmt.Errorf("gatewayapp: initialize control-plane schema: %w", err)
		}
		app.CPReader = reader

		handler := cp.NewHandler(reader, cfg.ControlPlane.AdminKey)
		handler.ResolveDatasource = func(name string) dbackend.DatabaseBackend {
			return app.backends[name]
		}
		app.CPHandler = handler
		metaHandler = handler
	}

	keyAuth, oidc := translateAuth(cfg.Auth)

	for _, lcfg := range cfg.Listeners {
		lcfgCopy := lcfg
		docs, err := documentsFor(cfg, lcfgCopy.Name)
		if err != nil {
			return nil, err
		}

		backend, dialect, err := primaryBackendFor(cfg, app.backends, lcfgCopy.Name)
		if err != nil {
			return nil, err
		}

		build := func(ctx context.Context) (*appstate.AppState, error) {
			return appstate.Build(ctx, appstate.Config{
				Documents: docs,
				Backend:   backend,
				Dialect:   dialect,
				KeyAuth:   keyAuth,
				OIDC:      oidc,
			})
		}

		var poll time.Duration
		if cfg.ControlPlane != nil {
			poll = resolvePollInterval()
		}

		app.Listeners = append(app.Listeners, listener.Config{
			Name:         lcfgCopy.Name,
			Addr:         lcfgCopy.Addr(),
			Logger:       logger,
			Build:        build,
			PollInterval: poll,
			MetaHandler:  metaHandler,
		})
	}

	return app, nil
}

// documentsFor loads and parses the OpenAPI documents attached to
// listener name, per cfg.Apis' "listeners" field.
func documentsFor(cfg *config.Config, listenerName string) ([]*openapi.Document, error) {
	var docs []*openapi.Document
	for _, api := range cfg.Apis {
		if !containsName(api.Listeners, listenerName) {
			continue
		}
		raw, err := os.ReadFile(api.File)
		if err != nil {
			return nil, fmt.Errorf("gatewayapp: read api spec %q: %w", api.File, err)
		}
		var doc openapi.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("gatewayapp: parse api spec %q: %w", api.File, err)
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

// primaryBackendFor resolves the single datasource backend a listener's
// AppState binds its CRUD engine to: the datasource named by the first
// attached API config, defaulting to a datasource literally named
// "main". The gateway's CRUD engine (like the original's) operates
// against one datasource per listener; a listener whose attached APIs
// span multiple datasources is a configuration error the caller should
// avoid, not something this package attempts to reconcile automatically.
func primaryBackendFor(cfg *config.Config, backends map[string]dbackend.DatabaseBackend, listenerName string) (dbackend.DatabaseBackend, schema.Dialect, error) {
	name := "main"
	for _, api := range cfg.Apis {
		if containsName(api.Listeners, listenerName) && api.Datasource != "" {
			name = api.Datasource
			break
		}
	}

	backend, ok := backends[name]
	if !ok {
		return nil, 0, fmt.Errorf("gatewayapp: listener %q references unknown datasource %q", listenerName, name)
	}
	return backend, dialectFor(cfg.Datasource[name]), nil
}

func dialectFor(ds config.DatasourceSettings) schema.Dialect {
	if ds.Driver == "postgres" || ds.Driver == "postgresql" {
		return schema.PostgreSQL
	}
	return schema.SQLite
}

func openDatasource(ds config.DatasourceSettings) (dbackend.DatabaseBackend, schema.Dialect, error) {
	maxPool := ds.MaxPoolSize
	if maxPool <= 0 {
		maxPool = 10
	}

	switch ds.Driver {
	case "postgres", "postgresql":
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			ds.User, ds.Password, ds.Host, ds.Port, ds.Database, sslModeOrDefault(ds.SSLMode))
		backend, err := dbackend.NewPostgresBackend(dsn, maxPool)
		return backend, schema.PostgreSQL, err
	default:
		path := ds.Path
		if path == "" {
			path = ds.Database
		}
		backend, err := dbackend.NewSqliteBackend(path, maxPool)
		return backend, schema.SQLite, err
	}
}

func sslModeOrDefault(mode string) string {
	if mode == "" {
		return "disable"
	}
	return mode
}

// translateAuth splits cfg.Auth into the gateway's native authn
// configuration types. All api-key entries are merged into one
// ApiKeyModule's authenticator list (first-match-wins across entries,
// same as within one); only the first oidc entry is used, since
// appstate.Config carries a single *authn.OIDCConfig — matching the
// common case of one OIDC provider per gateway.
func translateAuth(entries []config.Authenticator) ([]authn.ApiKeyConfig, *authn.OIDCConfig) {
	var keyConfigs []authn.ApiKeyConfig
	var oidc *authn.OIDCConfig

	for _, e := range entries {
		switch e.Type {
		case "api-key":
			if e.ApiKey == nil || isDisabled(e.ApiKey.Enabled) {
				continue
			}
			source := authn.SourceHeader
			if e.ApiKey.Source == "query" {
				source = authn.SourceQuery
			}
			keyConfigs = append(keyConfigs, authn.ApiKeyConfig{
				KeyName:   e.ApiKey.KeyName,
				Source:    source,
				Consumers: e.ApiKey.Consumers,
			})
		case "oidc":
			if oidc != nil || e.Oidc == nil || isDisabled(e.Oidc.Enabled) {
				continue
			}
			oidc = &authn.OIDCConfig{
				Issuer:               e.Oidc.Issuer,
				Audience:             e.Oidc.Audience,
				IntrospectionEnabled: e.Oidc.Introspection != nil && *e.Oidc.Introspection,
				ClientID:             e.Oidc.ClientID,
				ClientSecret:         e.Oidc.ClientSecret,
			}
		}
	}
	return keyConfigs, oidc
}

func isDisabled(enabled *bool) bool {
	return enabled != nil && !*enabled
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

