package authn

import (
	"net/http"

	"github.com/apiforge/gateway/internal/pipeline"
)

// ApiKeyModule is an Access-phase module matching an incoming request's
// key (header or query-sourced) against every configured ApiKeyConfig's
// consumers, in configuration order, first match wins.
type ApiKeyModule struct {
	Authenticators []ApiKeyConfig
}

// NewApiKeyModule indexes nothing ahead of time: the consumer lists are
// small enough (one gateway's worth of API consumers) that a linear scan
// per request is simpler than a precomputed key index, and it keeps the
// module trivially rebuildable by the hot-reload supervisor.
func NewApiKeyModule(authenticators []ApiKeyConfig) *ApiKeyModule {
	return &ApiKeyModule{Authenticators: authenticators}
}

func (m *ApiKeyModule) Name() string { return KeyAuthModuleName }

func (m *ApiKeyModule) Phases() []pipeline.Phase {
	return []pipeline.Phase{pipeline.Access}
}

func (m *ApiKeyModule) Run(phase pipeline.Phase, ctx *pipeline.RequestContext) pipeline.Outcome {
	if phase != pipeline.Access {
		return pipeline.Continue()
	}

	for _, cfg := range m.Authenticators {
		keyName := cfg.KeyName
		if keyName == "" {
			keyName = "X-Api-Key"
		}

		var key string
		switch cfg.Source {
		case SourceQuery:
			key = ctx.Query.Get(keyName)
		default:
			key = ctx.Headers.Get(keyName)
		}
		if key == "" {
			continue
		}

		if name, ok := matchConsumer(cfg.Consumers, key); ok {
			pipeline.Set(ctx, pipeline.ConsumerIdentity{Name: name})
			return pipeline.Continue()
		}
	}

	return pipeline.Respond(unauthorizedResponse("missing or invalid api key"))
}

func matchConsumer(consumers []Consumer, key string) (string, bool) {
	for _, c := range consumers {
		for _, k := range c.Keys {
			if k == key {
				return c.Name, true
			}
		}
	}
	return "", false
}

// unauthorizedResponse builds the fixed 401 envelope an authentication
// module responds with on rejection. It is built as a raw pipeline.Response
// rather than through gwerror, since the module short-circuits the
// pipeline directly instead of returning an error for Data to surface.
func unauthorizedResponse(message string) *pipeline.Response {
	return &pipeline.Response{
		Status: http.StatusUnauthorized,
		Body:   map[string]any{"error": message, "status": http.StatusUnauthorized},
	}
}
