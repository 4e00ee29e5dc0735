package listener

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DesiredListener names one listener the supervisor should be running.
type DesiredListener struct {
	Name string
	Addr string
	// Build and PollInterval, MetaHandler, etc. are carried in
	// Config so each listener's AppState construction stays
	// per-listener-scoped (a listener only sees the API configs
	// attached to its own name).
	Config Config
}

// DesiredListenersFunc returns the current set of listeners that should
// be running, keyed implicitly by DesiredListener.Addr. The supervisor
// calls this on every reconcile and spawns a goroutine for every Addr it
// hasn't seen yet.
type DesiredListenersFunc func(ctx context.Context) ([]DesiredListener, error)

// Supervisor is the process-level loop above individual Listeners: it
// discovers newly-added ip:port pairs from control-plane metadata (via
// Discover) and spawns a Listener goroutine for each. Per §4.6, listener
// removal is not handled here — an operator restart is required to stop
// serving a removed ip:port, matching the original's documented
// limitation.
type Supervisor struct {
	Discover DesiredListenersFunc
	Logger   zerolog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewSupervisor constructs a Supervisor.
func NewSupervisor(discover DesiredListenersFunc, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		Discover: discover,
		Logger:   logger,
		running:  make(map[string]context.CancelFunc),
	}
}

// ReconcileOnce discovers the desired listener set once and spawns a
// goroutine for every addr not already running. It returns the first
// build error encountered, if any listener failed to start; listeners
// that did start keep running regardless.
func (s *Supervisor) ReconcileOnce(ctx context.Context) error {
	desired, err := s.Discover(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, d := range desired {
		if _, ok := s.running[d.Addr]; ok {
			continue
		}

		lnCtx, cancel := context.WithCancel(ctx)
		l, err := New(lnCtx, d.Config)
		if err != nil {
			cancel()
			s.Logger.Error().Err(err).Str("listener", d.Name).Str("addr", d.Addr).Msg("failed to start listener")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		s.running[d.Addr] = cancel
		go func(name, addr string) {
			if err := l.Serve(lnCtx); err != nil {
				s.Logger.Error().Err(err).Str("listener", name).Str("addr", addr).Msg("listener exited")
			}
		}(d.Name, d.Addr)

		s.Logger.Info().Str("listener", d.Name).Str("addr", d.Addr).Msg("listener started")
	}

	return firstErr
}

// Run polls Discover every interval, reconciling newly-added listeners,
// until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context, interval time.Duration) {
	if err := s.ReconcileOnce(ctx); err != nil {
		s.Logger.Error().Err(err).Msg("initial listener reconcile had errors")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ReconcileOnce(ctx); err != nil {
				s.Logger.Error().Err(err).Msg("listener reconcile had errors")
			}
		}
	}
}
