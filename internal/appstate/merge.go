package appstate

import "github.com/apiforge/gateway/openapi"

// MergeDocuments deep-merges the paths of every document in docs into one
// synthetic document, in order, later documents overriding earlier ones
// on a colliding path. Every other top-level field (info, components,
// security, extensions) is taken from the last document processed,
// matching app_state.rs::new_with_crud's merge policy for the common
// case of one listener serving several attached OpenAPI documents.
func MergeDocuments(docs []*openapi.Document) *openapi.Document {
	if len(docs) == 0 {
		return &openapi.Document{}
	}
	if len(docs) == 1 {
		return docs[0]
	}

	merged := &openapi.Document{Paths: map[string]*openapi.PathItem{}}
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		merged.OpenAPI = doc.OpenAPI
		merged.Info = doc.Info
		merged.JSONSchemaDialect = doc.JSONSchemaDialect
		merged.Servers = doc.Servers
		merged.Webhooks = doc.Webhooks
		merged.Components = doc.Components
		merged.Tags = doc.Tags
		merged.Security = doc.Security
		merged.ExternalDocs = doc.ExternalDocs
		merged.Extensions = doc.Extensions

		for path, item := range doc.Paths {
			merged.Paths[path] = item
		}
	}
	return merged
}
