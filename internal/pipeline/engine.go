package pipeline

import "github.com/apiforge/gateway/internal/gwerror"

// Registries bundles the three registries a request may draw modules
// from, plus the resolution logic for picking which one is "active" for
// a given phase.
type Registries struct {
	Operation *Registry
	Route     *Registry
	Listener  *Registry
}

// Active resolves the registry that runs for phase on this request,
// following operation → route → listener precedence. The listener
// registry is only used as a fallback when it actually declares modules
// for phase; otherwise no registry is active and the phase is a no-op,
// matching the original's has_phase-gated fallback.
func (r Registries) Active(phase Phase) *Registry {
	if r.Operation != nil && r.Operation.HasPhase(phase) {
		return r.Operation
	}
	if r.Route != nil && r.Route.HasPhase(phase) {
		return r.Route
	}
	if r.Listener != nil && r.Listener.HasPhase(phase) {
		return r.Listener
	}
	return nil
}

// DataHandler invokes the CRUD engine (or control-plane admin handler)
// for the Data phase, given the resolved request context.
type DataHandler func(ctx *RequestContext) (any, error)

// Run drives BodyParse, Access, Data, and Response for one request
// given registries resolved for its matched route. HeaderParse, Route
// construction, and body reading happen in the caller (the listener),
// since they require information (the matched RoutePattern, the raw
// request) this package does not own.
//
// Run returns the Response to write; the caller is responsible for
// actually writing it and for invoking Log unconditionally afterward via
// RunLog, since logging must never affect what was already sent to the
// client.
func Run(ctx *RequestContext, regs Registries, data DataHandler) *Response {
	if outcome := regs.Active(BodyParse).RunPhase(BodyParse, ctx); outcome.kind != kindContinue {
		return resolveShortCircuit(ctx, outcome)
	}

	if outcome := regs.Active(Access).RunPhase(Access, ctx); outcome.kind != kindContinue {
		return resolveShortCircuit(ctx, outcome)
	}

	result, err := data(ctx)
	if err != nil {
		ctx.Err = err
		env, status := gwerror.AsEnvelope(err)
		return &Response{Status: status, Body: env}
	}
	ctx.ResultJSON = result

	regs.Active(Response).RunPhase(Response, ctx)

	return &Response{Status: 200, Headers: ctx.ResponseHeaders, Body: result}
}

// resolveShortCircuit converts a Respond or Error outcome (BodyParse or
// Access) into the Response to write.
func resolveShortCircuit(ctx *RequestContext, outcome Outcome) *Response {
	switch outcome.kind {
	case kindRespond:
		return outcome.response
	case kindError:
		ctx.Err = outcome.err
		env, status := gwerror.AsEnvelope(outcome.err)
		return &Response{Status: status, Body: env}
	default:
		return &Response{Status: 200}
	}
}

// RunLog runs the Log phase across all three registries unconditionally,
// in listener, route, operation order. A non-Continue outcome here is
// ignored: logging must never change a response that has already been
// sent.
func RunLog(ctx *RequestContext, regs Registries) {
	regs.Listener.RunPhase(Log, ctx)
	regs.Route.RunPhase(Log, ctx)
	regs.Operation.RunPhase(Log, ctx)
}
