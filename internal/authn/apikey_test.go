package authn

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiforge/gateway/internal/pipeline"
)

func newCtx(t *testing.T, header, value string) *pipeline.RequestContext {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	return pipeline.NewRequestContext(httptest.NewRecorder(), req, "127.0.0.1")
}

func TestApiKeyModuleAttachesConsumerOnMatch(t *testing.T) {
	m := NewApiKeyModule([]ApiKeyConfig{{
		KeyName:   "X-Api-Key",
		Consumers: []Consumer{{Name: "acme", Keys: []string{"t-001"}}},
	}})

	ctx := newCtx(t, "X-Api-Key", "t-001")
	outcome := m.Run(pipeline.Access, ctx)
	require.Equal(t, pipeline.Continue(), outcome)

	id, ok := pipeline.Get[pipeline.ConsumerIdentity](ctx)
	require.True(t, ok)
	assert.Equal(t, "acme", id.Name)
}

func TestApiKeyModuleRejectsMissingHeader(t *testing.T) {
	m := NewApiKeyModule([]ApiKeyConfig{{
		KeyName:   "X-Api-Key",
		Consumers: []Consumer{{Name: "acme", Keys: []string{"t-001"}}},
	}})

	ctx := newCtx(t, "", "")
	outcome := m.Run(pipeline.Access, ctx)
	resp, ok := outcome.RespondedWith()
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, map[string]any{"error": "missing or invalid api key", "status": http.StatusUnauthorized}, resp.Body)
}

func TestApiKeyModuleRejectsWrongKey(t *testing.T) {
	m := NewApiKeyModule([]ApiKeyConfig{{
		KeyName:   "X-Api-Key",
		Consumers: []Consumer{{Name: "acme", Keys: []string{"t-001"}}},
	}})

	ctx := newCtx(t, "X-Api-Key", "wrong")
	outcome := m.Run(pipeline.Access, ctx)
	resp, ok := outcome.RespondedWith()
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
}
