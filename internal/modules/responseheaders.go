package modules

import (
	"github.com/apiforge/gateway/internal/pipeline"
)

// ResponseHeadersModule is a Response-phase module applying a fixed set
// of response headers to every request it sees, the same concern
// muxhandlers.SecurityHeadersMiddleware applies for the listener as a
// whole, installed here in each operation's registry. Extra headers come
// only from the map given to NewResponseHeadersModule; x-modules entries
// in the document are not read for headers, and appstate.Build passes nil,
// so every operation gets the same two default headers.
type ResponseHeadersModule struct {
	Headers map[string]string
}

// NewResponseHeadersModule builds a module with the spec's defaults
// (X-Powered-By, X-Content-Type-Options: nosniff) overlaid by any
// operator-supplied headers.
func NewResponseHeadersModule(extra map[string]string) *ResponseHeadersModule {
	headers := map[string]string{
		"X-Powered-By":           "apiforge-gateway",
		"X-Content-Type-Options": "nosniff",
	}
	for k, v := range extra {
		headers[k] = v
	}
	return &ResponseHeadersModule{Headers: headers}
}

func (m *ResponseHeadersModule) Name() string { return "response_headers" }

func (m *ResponseHeadersModule) Phases() []pipeline.Phase {
	return []pipeline.Phase{pipeline.Response}
}

func (m *ResponseHeadersModule) Run(phase pipeline.Phase, ctx *pipeline.RequestContext) pipeline.Outcome {
	if phase != pipeline.Response {
		return pipeline.Continue()
	}
	for k, v := range m.Headers {
		ctx.ResponseHeaders.Set(k, v)
	}
	return pipeline.Continue()
}
