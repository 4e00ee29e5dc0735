// Package pipeline implements the gateway's phased request pipeline: a
// fixed sequence of named phases, each served by zero or more modules
// drawn from up to three module registries (operation, route, listener),
// resolved with a fixed precedence per request.
package pipeline

import (
	"net/http"
	"net/url"
	"reflect"
	"sync"
	"time"
)

// Phase names one stage of request processing. Phases run in the fixed
// order declared by Phases.
type Phase int

const (
	Init Phase = iota
	HeaderParse
	BodyParse
	Route
	Access
	Data
	Response
	Log
)

// Phases lists every phase in execution order.
var Phases = []Phase{Init, HeaderParse, BodyParse, Route, Access, Data, Response, Log}

func (p Phase) String() string {
	switch p {
	case Init:
		return "init"
	case HeaderParse:
		return "header_parse"
	case BodyParse:
		return "body_parse"
	case Route:
		return "route"
	case Access:
		return "access"
	case Data:
		return "data"
	case Response:
		return "response"
	case Log:
		return "log"
	default:
		return "unknown"
	}
}

// Outcome is the result of running a module for one phase.
type Outcome struct {
	kind     outcomeKind
	response *Response
	err      error
}

type outcomeKind int

const (
	kindContinue outcomeKind = iota
	kindRespond
	kindError
)

// Continue proceeds to the next module in the phase; when none remains,
// the phase advances.
func Continue() Outcome { return Outcome{kind: kindContinue} }

// Respond short-circuits the remaining pipeline up to but excluding Log.
// Log still runs.
func Respond(resp *Response) Outcome { return Outcome{kind: kindRespond, response: resp} }

// ErrorOutcome ends the remaining phases with err, written through
// gwerror.AsEnvelope (a *gwerror.Error keeps its status; any other error
// becomes a generic 500). Log still runs.
func ErrorOutcome(err error) Outcome { return Outcome{kind: kindError, err: err} }

// RespondedWith reports whether the outcome is a Respond, returning the
// response it carries. Used by module tests outside this package that
// can't reach the unexported kind/response fields directly.
func (o Outcome) RespondedWith() (*Response, bool) {
	return o.response, o.kind == kindRespond
}

// Response is a fully-formed HTTP response a module wants written
// immediately, short-circuiting the rest of the pipeline (except Log).
type Response struct {
	Status  int
	Headers http.Header
	Body    any
}

// Module is one unit of pipeline behaviour. A Module declares the phases
// it participates in and runs in each of them in registration order
// within its registry.
type Module interface {
	// Name identifies the module, used for logging and x-modules lookup.
	Name() string
	// Phases lists the phases this module runs in.
	Phases() []Phase
	// Run executes the module for the given phase.
	Run(phase Phase, ctx *RequestContext) Outcome
}

// hasPhase reports whether m declares participation in phase.
func hasPhase(m Module, phase Phase) bool {
	for _, p := range m.Phases() {
		if p == phase {
			return true
		}
	}
	return false
}

// Registry is an ordered list of modules.
type Registry struct {
	Modules []Module
}

// HasPhase reports whether any module in the registry declares phase.
func (r *Registry) HasPhase(phase Phase) bool {
	if r == nil {
		return false
	}
	for _, m := range r.Modules {
		if hasPhase(m, phase) {
			return true
		}
	}
	return false
}

// RunPhase iterates the modules declaring phase, in registration order,
// stopping on the first non-Continue outcome.
func (r *Registry) RunPhase(phase Phase, ctx *RequestContext) Outcome {
	if r == nil {
		return Continue()
	}
	for _, m := range r.Modules {
		if !hasPhase(m, phase) {
			continue
		}
		outcome := m.Run(phase, ctx)
		if outcome.kind != kindContinue {
			return outcome
		}
	}
	return Continue()
}

// ConsumerIdentity identifies the authenticated caller, attached to the
// request context's extensions bag by an auth module.
type ConsumerIdentity struct {
	Name string
}

// RequestContext carries everything pipeline phases and modules need for
// one request. It is built fresh per request and never shared.
type RequestContext struct {
	Request *http.Request
	Writer  http.ResponseWriter

	StartTime time.Time
	Method    string
	Path      string
	ClientIP  string
	Headers   http.Header
	Query     url.Values

	// RawBody is the request body bytes read during BodyParse; nil for
	// methods that never read a body.
	RawBody []byte
	// JSONBody is the parsed JSON body, or nil if RawBody was empty or
	// this method does not carry a body.
	JSONBody any

	// PathParams holds the captured path variables for the matched
	// route, populated during Route.
	PathParams map[string]string

	// MatchedTable and OperationType are populated during Route from the
	// matched RoutePattern; they're read by the CRUD engine in Data.
	MatchedTable  string
	OperationType string

	// ResultJSON holds the Data phase's result, serialized during
	// Response.
	ResultJSON any

	// ResponseStatus is the final HTTP status written for this request,
	// set by the caller after Run returns, so Log-phase modules (the
	// access log) can report it.
	ResponseStatus int

	// ResponseHeaders accumulates headers attached by Response-phase
	// modules.
	ResponseHeaders http.Header

	// Err carries the terminal error, if any, for Log-phase reporting.
	Err error

	mu   sync.Mutex
	exts map[reflect.Type]any
}

// NewRequestContext builds a RequestContext for an incoming request. It
// does not read the body; that happens during BodyParse.
func NewRequestContext(w http.ResponseWriter, r *http.Request, clientIP string) *RequestContext {
	return &RequestContext{
		Request:         r,
		Writer:          w,
		StartTime:       time.Now(),
		Method:          r.Method,
		Path:            r.URL.Path,
		ClientIP:        clientIP,
		Headers:         r.Header,
		Query:           firstValueQuery(r.URL.RawQuery),
		ResponseHeaders: make(http.Header),
	}
}

// firstValueQuery parses a raw query string the way the original
// implementation does: splitting on "&" then "=", keeping the first value
// seen for a duplicate key rather than url.Values' last-value-wins
// Query().
func firstValueQuery(raw string) url.Values {
	values := make(url.Values)
	for _, pair := range splitNonEmpty(raw, '&') {
		key := pair
		val := ""
		if idx := indexByte(pair, '='); idx >= 0 {
			key = pair[:idx]
			val = pair[idx+1:]
		}
		dKey, err1 := url.QueryUnescape(key)
		dVal, err2 := url.QueryUnescape(val)
		if err1 != nil {
			dKey = key
		}
		if err2 != nil {
			dVal = val
		}
		if _, exists := values[dKey]; exists {
			continue
		}
		values[dKey] = []string{dVal}
	}
	return values
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// Set stores v in the context's typed extensions bag, keyed by v's
// concrete type. Mirrors the way kasper's mux/context.go caches a single
// value per request context, generalized here to a heterogeneous bag
// since the pipeline's modules are not known to each other's types.
func Set[T any](ctx *RequestContext, v T) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.exts == nil {
		ctx.exts = make(map[reflect.Type]any)
	}
	ctx.exts[reflect.TypeOf(v)] = v
}

// Get retrieves the value of type T previously stored with Set.
func Get[T any](ctx *RequestContext) (T, bool) {
	var zero T
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.exts == nil {
		return zero, false
	}
	v, ok := ctx.exts[reflect.TypeFor[T]()]
	if !ok {
		return zero, false
	}
	return v.(T), true
}
