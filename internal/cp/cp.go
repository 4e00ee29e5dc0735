// Package cp implements the control-plane metadata reader: the gateway's
// own two administrative tables, _meta_api_configs and
// _meta_auth_configs, read and written through the same
// dbackend.DatabaseBackend capability the data plane uses for user data,
// per §4.7's "no separate driver" requirement. It also serves the
// /_meta/apis and /_meta/auth admin endpoints, mirroring
// control_plane.rs::handle_control_plane_request.
package cp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/apiforge/gateway/internal/dbackend"
	"github.com/apiforge/gateway/internal/schema"
	"github.com/apiforge/gateway/openapi"
)

// metaSchemas is the fixed relational shape of the control-plane's own
// two tables, migrated with the same schema.MigratePlan machinery as any
// user table.
var metaSchemas = []schema.TableSchema{
	{
		TableName: "_meta_api_configs",
		Columns: []schema.ColumnDefinition{
			{Name: "name", Type: schema.Text, PrimaryKey: true},
			{Name: "spec", Type: schema.Text},
			{Name: "listeners", Type: schema.Text},
			{Name: "datasource", Type: schema.Text},
		},
	},
	{
		TableName: "_meta_auth_configs",
		Columns: []schema.ColumnDefinition{
			{Name: "name", Type: schema.Text, PrimaryKey: true},
			{Name: "kind", Type: schema.Text},
			{Name: "config", Type: schema.Text},
		},
	},
}

// ApiConfigRecord is one row of _meta_api_configs, with its spec column
// parsed back into an OpenAPI document.
type ApiConfigRecord struct {
	Name       string
	Spec       *openapi.Document
	Listeners  []string
	Datasource string
}

// AuthConfigRecord is one row of _meta_auth_configs. Kind is either
// "key_auth" or "oauth"; Config carries the matching raw JSON as stored.
// It is returned undecoded; nothing in this repository decodes it into an
// authn.ApiKeyConfig or authn.OIDCConfig.
type AuthConfigRecord struct {
	Name   string
	Kind   string
	Config json.RawMessage
}

// Reader loads control-plane metadata from backend.
type Reader struct {
	backend dbackend.DatabaseBackend
}

// NewReader wraps backend as a control-plane metadata reader.
func NewReader(backend dbackend.DatabaseBackend) *Reader {
	return &Reader{backend: backend}
}

// InitializeMetaSchema creates or migrates the control-plane's own
// tables. Called once when a listener attaches a control-plane
// datasource, before the first LoadAPIConfigs/LoadAuthConfigs call.
func (r *Reader) InitializeMetaSchema(ctx context.Context) error {
	return r.backend.InitializeSchema(ctx, metaSchemas)
}

// LoadAPIConfigs reads every row of _meta_api_configs, parsing its spec
// column back into an OpenAPI document and its listeners column back
// into a string slice.
func (r *Reader) LoadAPIConfigs(ctx context.Context) ([]ApiConfigRecord, error) {
	rows, err := r.backend.Select(ctx, "_meta_api_configs", dbackend.SelectOptions{})
	if err != nil {
		return nil, fmt.Errorf("cp: load api configs: %w", err)
	}

	records := make([]ApiConfigRecord, 0, len(rows))
	for _, row := range rows {
		var doc openapi.Document
		if v, ok := row["spec"]; ok && v != nil {
			if err := decodeJSONField(v, &doc); err != nil {
				return nil, fmt.Errorf("cp: parse spec for %v: %w", row["name"], err)
			}
		}

		var listeners []string
		if v, ok := row["listeners"]; ok && v != nil {
			if err := decodeJSONField(v, &listeners); err != nil {
				return nil, fmt.Errorf("cp: parse listeners for %v: %w", row["name"], err)
			}
		}

		records = append(records, ApiConfigRecord{
			Name:       stringField(row, "name"),
			Spec:       &doc,
			Listeners:  listeners,
			Datasource: stringField(row, "datasource"),
		})
	}
	return records, nil
}

// LoadAuthConfigs reads every row of _meta_auth_configs.
func (r *Reader) LoadAuthConfigs(ctx context.Context) ([]AuthConfigRecord, error) {
	rows, err := r.backend.Select(ctx, "_meta_auth_configs", dbackend.SelectOptions{})
	if err != nil {
		return nil, fmt.Errorf("cp: load auth configs: %w", err)
	}

	records := make([]AuthConfigRecord, 0, len(rows))
	for _, row := range rows {
		var raw json.RawMessage
		if v, ok := row["config"]; ok && v != nil {
			if s, ok := v.(string); ok {
				raw = json.RawMessage(s)
			} else if b, err := json.Marshal(v); err == nil {
				raw = json.RawMessage(b)
			}
		}
		records = append(records, AuthConfigRecord{
			Name:   stringField(row, "name"),
			Kind:   stringField(row, "kind"),
			Config: raw,
		})
	}
	return records, nil
}

// PutAPIConfig upserts one _meta_api_configs row and, when
// target is non-nil, immediately extracts and migrates the table
// schema its spec describes against the named datasource — mirroring
// the original's "POSTing a new API config also triggers immediate
// schema extraction" behaviour.
func (r *Reader) PutAPIConfig(ctx context.Context, rec ApiConfigRecord, target dbackend.DatabaseBackend) error {
	specBytes, err := json.Marshal(rec.Spec)
	if err != nil {
		return fmt.Errorf("cp: marshal spec: %w", err)
	}
	listenersBytes, err := json.Marshal(rec.Listeners)
	if err != nil {
		return fmt.Errorf("cp: marshal listeners: %w", err)
	}

	values := map[string]any{
		"name":       rec.Name,
		"spec":       string(specBytes),
		"listeners":  string(listenersBytes),
		"datasource": rec.Datasource,
	}
	if _, _, err := r.backend.Insert(ctx, "_meta_api_configs", values); err != nil {
		if _, uerr := r.backend.Update(ctx, "_meta_api_configs", "name", rec.Name, values); uerr != nil {
			return fmt.Errorf("cp: upsert api config: insert %w, update %v", err, uerr)
		}
	}

	if target == nil {
		return nil
	}
	schemas, err := schema.ExtractSchemas(rec.Spec)
	if err != nil {
		return fmt.Errorf("cp: extract schema for %s: %w", rec.Name, err)
	}
	if err := target.InitializeSchema(ctx, schemas); err != nil {
		return fmt.Errorf("cp: initialize schema for %s: %w", rec.Name, err)
	}
	return nil
}

// PutAuthConfig upserts one _meta_auth_configs row.
func (r *Reader) PutAuthConfig(ctx context.Context, rec AuthConfigRecord) error {
	values := map[string]any{
		"name":   rec.Name,
		"kind":   rec.Kind,
		"config": string(rec.Config),
	}
	if _, _, err := r.backend.Insert(ctx, "_meta_auth_configs", values); err != nil {
		if _, uerr := r.backend.Update(ctx, "_meta_auth_configs", "name", rec.Name, values); uerr != nil {
			return fmt.Errorf("cp: upsert auth config: insert %w, update %v", err, uerr)
		}
	}
	return nil
}

// decodeJSONField decodes a scanned column value into target. scanRows
// already parses JSON-looking TEXT columns into map[string]any/[]any
// (see dbackend/rowscan.go), so v is a string only when the driver
// returned the column un-sniffed; either way, round-tripping through
// json.Marshal/Unmarshal converts the dynamic value into target's
// concrete type.
func decodeJSONField(v any, target any) error {
	if s, ok := v.(string); ok {
		if s == "" {
			return nil
		}
		return json.Unmarshal([]byte(s), target)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, target)
}

func stringField(row map[string]any, key string) string {
	if s, ok := row[key].(string); ok {
		return s
	}
	return ""
}
