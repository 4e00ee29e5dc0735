package cp

import (
	"encoding/json"
	"net/http"

	"github.com/apiforge/gateway/internal/dbackend"
)

// Handler serves the control-plane admin API on a listener's /_meta/
// prefix: GET/POST /_meta/apis and GET/POST /_meta/auth.
type Handler struct {
	reader *Reader

	// AdminKey, when non-empty, is compared against the X-API-KEY
	// request header; a mismatch or missing header is rejected with
	// 401, mirroring control_plane.rs's admin_key check.
	AdminKey string

	// ResolveDatasource looks up the backend a named datasource refers
	// to, used by POST /_meta/apis to trigger immediate schema
	// initialization. A nil return skips that step.
	ResolveDatasource func(name string) dbackend.DatabaseBackend
}

// NewHandler builds a control-plane admin Handler.
func NewHandler(reader *Reader, adminKey string) *Handler {
	return &Handler{reader: reader, AdminKey: adminKey}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.AdminKey != "" && r.Header.Get("X-API-KEY") != h.AdminKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	switch r.URL.Path {
	case "/_meta/apis":
		h.handleAPIs(w, r)
	case "/_meta/auth":
		h.handleAuth(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (h *Handler) handleAPIs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		records, err := h.reader.LoadAPIConfigs(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database error"})
			return
		}
		writeJSON(w, http.StatusOK, records)

	case http.MethodPost:
		var rec ApiConfigRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
			return
		}
		if rec.Name == "" || rec.Spec == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and spec are required"})
			return
		}

		var target dbackend.DatabaseBackend
		if h.ResolveDatasource != nil {
			target = h.ResolveDatasource(rec.Datasource)
		}
		if err := h.reader.PutAPIConfig(r.Context(), rec, target); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "API config saved"})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (h *Handler) handleAuth(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		records, err := h.reader.LoadAuthConfigs(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database error"})
			return
		}
		writeJSON(w, http.StatusOK, records)

	case http.MethodPost:
		var rec AuthConfigRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
			return
		}
		if rec.Name == "" || rec.Kind == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and kind are required"})
			return
		}
		if err := h.reader.PutAuthConfig(r.Context(), rec); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "auth config saved"})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
