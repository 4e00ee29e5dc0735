package appstate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/apiforge/gateway/internal/authn"
	"github.com/apiforge/gateway/internal/dbackend"
	"github.com/apiforge/gateway/internal/schema"
	"github.com/apiforge/gateway/openapi"
)

const testDocJSON = `{
  "openapi": "3.1.0",
  "info": {"title": "notes", "version": "1.0"},
  "paths": {
    "/notes": {
      "get": {"operationId": "listNotes", "responses": {"200": {"description": "ok"}}},
      "post": {
        "operationId": "createNote",
        "security": [{"ApiKeyAuth": []}],
        "requestBody": {
          "required": true,
          "content": {"application/json": {"schema": {"required": ["text"], "properties": {"text": {"type": "string"}}}}}
        },
        "responses": {"200": {"description": "ok"}}
      }
    },
    "/notes/{id}": {
      "get": {"operationId": "getNote", "responses": {"200": {"description": "ok"}}}
    }
  },
  "components": {
    "schemas": {
      "Note": {
        "type": "object",
        "required": ["text"],
        "properties": {
          "id": {"type": "integer"},
          "text": {"type": "string"},
          "createdBy": {"type": "string", "readOnly": true}
        }
      }
    },
    "securitySchemes": {
      "ApiKeyAuth": {"type": "apiKey", "name": "X-Api-Key", "in": "header"}
    }
  }
}`

func parseTestDoc(t *testing.T) *openapi.Document {
	t.Helper()
	var doc openapi.Document
	require.NoError(t, json.Unmarshal([]byte(testDocJSON), &doc))
	return &doc
}

func TestBuildProducesRoutesAndOperationRegistries(t *testing.T) {
	backend, err := dbackend.NewSqliteBackend(":memory:", 5)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	doc := parseTestDoc(t)
	state, err := Build(context.Background(), Config{
		Documents: []*openapi.Document{doc},
		Backend:   backend,
		Dialect:   schema.SQLite,
		KeyAuth: []authn.ApiKeyConfig{{
			KeyName:   "X-Api-Key",
			Consumers: []authn.Consumer{{Name: "acme", Keys: []string{"t-001"}}},
		}},
	})
	require.NoError(t, err)

	pattern, params, ok := state.Generator.MatchOperation("GET", "/notes/42")
	require.True(t, ok)
	require.Equal(t, "42", params["id"])

	regs := state.Registries(pattern)
	require.NotNil(t, regs.Route)

	createReg, ok := state.OperationRegistries["POST /notes"]
	require.True(t, ok)
	require.NotEmpty(t, createReg.Modules)

	require.Equal(t, "acme", state.KeyIndex["t-001"])
}
