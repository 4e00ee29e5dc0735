// Package listener runs one gateway listener: an accept loop bound to an
// ip:port pair, the per-request dispatch handler that drives the phased
// pipeline against the currently active AppState, and (when a
// control-plane datasource is attached) the poller goroutine that
// rebuilds and atomically swaps that state on a timer.
package listener

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/apiforge/gateway/internal/appstate"
	"github.com/apiforge/gateway/mux"
	"github.com/apiforge/gateway/muxhandlers"
)

// DefaultPollInterval is the 10-second reload interval used when
// GATEWAY_CONFIG_POLL_INTERVAL is unset or invalid. A listener whose
// Config.PollInterval is zero does not poll at all.
const DefaultPollInterval = 10 * time.Second

// BuildStateFunc constructs a fresh AppState snapshot, reading whatever
// control-plane or static configuration the listener was given.
type BuildStateFunc func(ctx context.Context) (*appstate.AppState, error)

// Config configures one Listener.
type Config struct {
	// Name identifies this listener for logging and for matching
	// control-plane API configs by their "listeners" field.
	Name string
	// Addr is the ip:port this listener binds, e.g. "0.0.0.0:8080".
	Addr string

	Logger zerolog.Logger

	// Build produces the initial AppState and, when PollInterval > 0,
	// every subsequent reload.
	Build BuildStateFunc
	// PollInterval enables the reload poller when non-zero.
	PollInterval time.Duration

	// MetaHandler, when non-nil, serves every request whose path has
	// the "/_meta/" prefix — the control-plane admin API. Requests are
	// dispatched to it before the pipeline runs and bypass every
	// pipeline module.
	MetaHandler http.Handler

	// Hostname and HostnameEnv configure muxhandlers.ServerMiddleware;
	// TrustedProxies configures muxhandlers.ProxyHeadersMiddleware.
	Hostname       string
	HostnameEnv    []string
	TrustedProxies []string
}

// Listener owns one bound socket and the immutable state it dispatches
// requests against.
type Listener struct {
	cfg   Config
	state atomic.Pointer[appstate.AppState]

	handler http.Handler
	server  *http.Server
}

// New builds a Listener and its initial AppState. It does not bind a
// socket; call Serve to do that.
func New(ctx context.Context, cfg Config) (*Listener, error) {
	if cfg.Logger.GetLevel() == zerolog.Disabled {
		cfg.Logger = zerolog.Nop()
	}

	l := &Listener{cfg: cfg}

	state, err := cfg.Build(ctx)
	if err != nil {
		return nil, err
	}
	l.state.Store(state)

	l.handler, err = l.buildHandler()
	if err != nil {
		return nil, err
	}

	return l, nil
}

// buildHandler wraps the dispatch handler with kasper's muxhandlers
// middleware chain, outermost first: panic recovery, request id,
// proxy header trust, response compression, security headers, then the
// server identification header.
func (l *Listener) buildHandler() (http.Handler, error) {
	var base http.Handler = http.HandlerFunc(l.serveHTTP)

	security, err := muxhandlers.SecurityHeadersMiddleware(muxhandlers.SecurityHeadersConfig{})
	if err != nil {
		return nil, err
	}
	compression, err := muxhandlers.CompressionMiddleware(muxhandlers.CompressionConfig{})
	if err != nil {
		return nil, err
	}
	proxy, err := muxhandlers.ProxyHeadersMiddleware(muxhandlers.ProxyHeadersConfig{
		TrustedProxies: l.cfg.TrustedProxies,
	})
	if err != nil {
		return nil, err
	}
	server, err := muxhandlers.ServerMiddleware(muxhandlers.ServerConfig{
		Hostname:    l.cfg.Hostname,
		HostnameEnv: l.cfg.HostnameEnv,
	})
	if err != nil {
		return nil, err
	}

	chain := []mux.MiddlewareFunc{
		muxhandlers.RecoveryMiddleware(muxhandlers.RecoveryConfig{
			LogFunc: func(r *http.Request, err any) {
				l.cfg.Logger.Error().Interface("panic", err).Str("path", r.URL.Path).Msg("recovered panic")
			},
		}),
		muxhandlers.RequestIDMiddleware(muxhandlers.RequestIDConfig{}),
		proxy,
		compression,
		security,
		server,
	}

	handler := base
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}
	return handler, nil
}

// AppState returns the currently active snapshot.
func (l *Listener) AppState() *appstate.AppState {
	return l.state.Load()
}

// Serve binds the SO_REUSEPORT socket for cfg.Addr, starts the reload
// poller (if configured), and blocks serving HTTP/1.1 until ctx is
// cancelled or the listener errors.
func (l *Listener) Serve(ctx context.Context) error {
	ln, err := newReusePortListener(l.cfg.Addr)
	if err != nil {
		return err
	}

	if l.cfg.PollInterval > 0 {
		go l.pollLoop(ctx)
	}

	l.server = &http.Server{
		Handler:     l.handler,
		ReadTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- l.server.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return l.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (l *Listener) pollLoop(ctx context.Context) {
	interval := l.cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			next, err := l.cfg.Build(ctx)
			if err != nil {
				l.cfg.Logger.Error().Err(err).Str("listener", l.cfg.Name).Msg("config reload failed")
				continue
			}
			prev := l.state.Swap(next)
			if prev != nil {
				if closeErr := prev.Close(); closeErr != nil {
					l.cfg.Logger.Warn().Err(closeErr).Msg("closing superseded app state")
				}
			}
		}
	}
}
