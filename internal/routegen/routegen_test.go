package routegen

import (
	"encoding/json"
	"testing"

	"github.com/apiforge/gateway/openapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseDoc(t *testing.T, data string) *openapi.Document {
	t.Helper()
	var doc openapi.Document
	require.NoError(t, json.Unmarshal([]byte(data), &doc))
	return &doc
}

func TestMatchOperationInfersListVsGet(t *testing.T) {
	doc := mustParseDoc(t, `{
		"openapi": "3.1.0", "info": {"title": "t", "version": "1"},
		"paths": {
			"/users": {"get": {"responses": {"200": {"description": "ok"}}}, "post": {"responses": {"200": {"description": "ok"}}}},
			"/users/{id}": {
				"get": {"responses": {"200": {"description": "ok"}}},
				"put": {"responses": {"200": {"description": "ok"}}},
				"delete": {"responses": {"200": {"description": "ok"}}}
			}
		}
	}`)

	g := NewAPIGenerator(doc)

	p, vars, ok := g.MatchOperation("GET", "/users")
	require.True(t, ok)
	assert.Equal(t, List, p.OperationType)
	assert.Equal(t, "users", p.TableName)
	assert.Empty(t, vars)

	p, vars, ok = g.MatchOperation("GET", "/users/42")
	require.True(t, ok)
	assert.Equal(t, Get, p.OperationType)
	assert.Equal(t, "42", vars["id"])

	p, _, ok = g.MatchOperation("POST", "/users")
	require.True(t, ok)
	assert.Equal(t, Create, p.OperationType)

	p, _, ok = g.MatchOperation("PUT", "/users/42")
	require.True(t, ok)
	assert.Equal(t, Update, p.OperationType)

	p, _, ok = g.MatchOperation("DELETE", "/users/42")
	require.True(t, ok)
	assert.Equal(t, Delete, p.OperationType)
}

func TestMatchOperationHonorsTableNameExtension(t *testing.T) {
	doc := mustParseDoc(t, `{
		"openapi": "3.1.0", "info": {"title": "t", "version": "1"},
		"paths": {
			"/widgets": {
				"get": {"x-table-name": "inventory_items", "responses": {"200": {"description": "ok"}}}
			}
		}
	}`)

	g := NewAPIGenerator(doc)
	p, _, ok := g.MatchOperation("GET", "/widgets")
	require.True(t, ok)
	assert.Equal(t, "inventory_items", p.TableName)
}

func TestMatchOperationNoMatch(t *testing.T) {
	doc := mustParseDoc(t, `{"openapi": "3.1.0", "info": {"title": "t", "version": "1"}, "paths": {}}`)
	g := NewAPIGenerator(doc)
	_, _, ok := g.MatchOperation("GET", "/nope")
	assert.False(t, ok)
}
