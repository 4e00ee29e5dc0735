package modules

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/apiforge/gateway/internal/pipeline"
)

// accessLogEntry is one structured access-log line, fed to the
// dedicated writer goroutine over a buffered channel so the hot path
// never blocks on log I/O.
type accessLogEntry struct {
	Method     string
	Path       string
	Status     int
	DurationMs float64
	IP         string
	UserAgent  string
	Consumer   string
}

// AccessLogModule is a Log-phase module that never blocks the request
// goroutine: Run only enqueues an entry, and a single background
// goroutine (started by NewAccessLogModule) drains the channel and
// writes each entry through zerolog, serializing entries in enqueue
// order.
type AccessLogModule struct {
	entries chan accessLogEntry
	done    chan struct{}
}

// NewAccessLogModule starts the background writer goroutine logging
// through logger. bufferSize bounds how many in-flight entries may queue
// before Run starts blocking the request goroutine; 256 is a reasonable
// default for a single listener.
func NewAccessLogModule(logger zerolog.Logger, bufferSize int) *AccessLogModule {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	m := &AccessLogModule{
		entries: make(chan accessLogEntry, bufferSize),
		done:    make(chan struct{}),
	}
	go m.writeLoop(logger)
	return m
}

func (m *AccessLogModule) writeLoop(logger zerolog.Logger) {
	defer close(m.done)
	for e := range m.entries {
		logger.Info().
			Str("method", e.Method).
			Str("path", e.Path).
			Int("status", e.Status).
			Float64("duration_ms", e.DurationMs).
			Str("ip", e.IP).
			Str("user_agent", e.UserAgent).
			Str("consumer", e.Consumer).
			Msg("request")
	}
}

// Close stops accepting new entries and blocks until the writer
// goroutine has flushed every entry already enqueued.
func (m *AccessLogModule) Close() {
	close(m.entries)
	<-m.done
}

func (m *AccessLogModule) Name() string { return "access_log" }

func (m *AccessLogModule) Phases() []pipeline.Phase {
	return []pipeline.Phase{pipeline.Log}
}

func (m *AccessLogModule) Run(phase pipeline.Phase, ctx *pipeline.RequestContext) pipeline.Outcome {
	if phase != pipeline.Log {
		return pipeline.Continue()
	}

	var consumer string
	if id, ok := pipeline.Get[pipeline.ConsumerIdentity](ctx); ok {
		consumer = id.Name
	}

	entry := accessLogEntry{
		Method:     ctx.Method,
		Path:       ctx.Path,
		Status:     ctx.ResponseStatus,
		DurationMs: float64(time.Since(ctx.StartTime).Microseconds()) / 1000.0,
		IP:         ctx.ClientIP,
		UserAgent:  ctx.Headers.Get("User-Agent"),
		Consumer:   consumer,
	}

	// Blocks only once the buffer is full; preserves the "exactly once"
	// log guarantee at the cost of backpressure rather than dropping.
	m.entries <- entry
	return pipeline.Continue()
}
