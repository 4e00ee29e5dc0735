// Command gatewayd is the gateway's entrypoint: it loads the static YAML
// configuration, wires the datasources, listeners, and optional
// control-plane reader gatewayapp.Build assembles, and either serves
// traffic (the default "run" command) or applies every configured
// datasource's schema and exits ("migrate"), matching the original's
// bin/apify.rs binary split between serving and one-shot migration.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/apiforge/gateway/internal/config"
	"github.com/apiforge/gateway/internal/dbackend"
	"github.com/apiforge/gateway/internal/gatewayapp"
	"github.com/apiforge/gateway/internal/listener"
	"github.com/apiforge/gateway/internal/schema"
	"github.com/apiforge/gateway/openapi"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand constructs the gatewayd root Cobra command: a
// persistent --config flag and two subcommands, "run" (the default
// action when none is given) and "migrate".
func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "gatewayd",
		Short:         "gatewayd - declarative OpenAPI-driven API gateway",
		Long:          "gatewayd materializes CRUD HTTP endpoints and their backing tables from OpenAPI documents.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "gateway.yaml", "path to the gateway YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Start every configured listener and serve traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Derive and apply every configured datasource's schema, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), configPath)
		},
	})

	return root
}

// newLogger configures zerolog from cfg.LogLevel, defaulting to info,
// writing structured JSON to stdout (pretty console output is reserved
// for interactive use and isn't wired here, since gatewayd always runs
// as a service).
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("gatewayd: %w", err)
	}
	logger := newLogger(cfg)

	app, err := gatewayapp.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("gatewayd: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing datasources on shutdown")
		}
	}()

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	desired := make([]listener.DesiredListener, 0, len(app.Listeners))
	for _, lcfg := range app.Listeners {
		desired = append(desired, listener.DesiredListener{Name: lcfg.Name, Addr: lcfg.Addr, Config: lcfg})
	}

	// Every listener is known up front from the static config file, so
	// Discover always returns the same set; the supervisor's job here
	// is only the initial spawn. Adding a listener to gateway.yaml
	// still requires an operator restart, matching §4.6's documented
	// limitation for listeners added through control-plane metadata.
	supervisor := listener.NewSupervisor(func(context.Context) ([]listener.DesiredListener, error) {
		return desired, nil
	}, logger)

	if err := supervisor.ReconcileOnce(runCtx); err != nil {
		return fmt.Errorf("gatewayd: starting listeners: %w", err)
	}

	logger.Info().Int("listeners", len(desired)).Msg("gatewayd started")
	<-runCtx.Done()
	logger.Info().Msg("gatewayd shutting down")

	// Give in-flight requests a moment to drain via each listener's own
	// http.Server.Shutdown before the process exits.
	time.Sleep(100 * time.Millisecond)
	return nil
}

// runMigrate opens every configured datasource, derives its TableSchemas
// from the OpenAPI documents attached to it, applies them, and exits.
// It never starts a listener.
func runMigrate(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("gatewayd: %w", err)
	}
	logger := newLogger(cfg)

	for name, ds := range cfg.Datasource {
		backend, dialect, err := openMigrateDatasource(ds)
		if err != nil {
			return fmt.Errorf("gatewayd: open datasource %q: %w", name, err)
		}

		var schemas []schema.TableSchema
		for _, api := range cfg.Apis {
			if api.Datasource != name {
				continue
			}
			raw, err := os.ReadFile(api.File)
			if err != nil {
				_ = backend.Close()
				return fmt.Errorf("gatewayd: read api spec %q: %w", api.File, err)
			}
			var doc openapi.Document
			if err := json.Unmarshal(raw, &doc); err != nil {
				_ = backend.Close()
				return fmt.Errorf("gatewayd: parse api spec %q: %w", api.File, err)
			}
			extracted, err := schema.ExtractSchemas(&doc)
			if err != nil {
				_ = backend.Close()
				return fmt.Errorf("gatewayd: extract schemas for %q: %w", api.File, err)
			}
			schemas = append(schemas, extracted...)
		}

		if err := backend.InitializeSchema(ctx, schemas); err != nil {
			_ = backend.Close()
			return fmt.Errorf("gatewayd: migrate datasource %q: %w", name, err)
		}
		dialectName := "sqlite"
		if dialect == schema.PostgreSQL {
			dialectName = "postgres"
		}
		logger.Info().Str("datasource", name).Str("dialect", dialectName).Int("tables", len(schemas)).Msg("schema applied")
		if err := backend.Close(); err != nil {
			logger.Warn().Err(err).Str("datasource", name).Msg("error closing datasource")
		}
	}

	return nil
}

func openMigrateDatasource(ds config.DatasourceSettings) (dbackend.DatabaseBackend, schema.Dialect, error) {
	maxPool := ds.MaxPoolSize
	if maxPool <= 0 {
		maxPool = 5
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
