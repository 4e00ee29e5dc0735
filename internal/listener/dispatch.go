package listener

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"

	"github.com/apiforge/gateway/internal/gwerror"
	"github.com/apiforge/gateway/internal/pipeline"
)

// maxBodyBytes bounds the request body read during BodyParse; larger
// bodies are rejected before JSON decoding is attempted.
const maxBodyBytes = 10 << 20 // 10 MiB

// serveHTTP is the innermost handler, run after every muxhandlers
// middleware. It special-cases the health check and control-plane admin
// prefix, then drives the phased pipeline for every generated route.
func (l *Listener) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.URL.Path == "/healthz" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	if strings.HasPrefix(r.URL.Path, "/_meta/") {
		if l.cfg.MetaHandler == nil {
			writeJSON(w, http.StatusNotFound, gwerror.Envelope{Error: "not found", Status: http.StatusNotFound})
			return
		}
		l.cfg.MetaHandler.ServeHTTP(w, r)
		return
	}

	state := l.AppState()
	pattern, pathParams, ok := state.Generator.MatchOperation(r.Method, r.URL.Path)
	if !ok {
		writeJSON(w, http.StatusNotFound, gwerror.Envelope{Error: "no matching route", Status: http.StatusNotFound})
		return
	}

	ctx := pipeline.NewRequestContext(w, r, clientIP(r))
	ctx.PathParams = pathParams
	ctx.MatchedTable = pattern.TableName
	ctx.OperationType = string(pattern.OperationType)

	if err := readBody(w, r, ctx); err != nil {
		envelope, status := gwerror.AsEnvelope(err)
		resp := &pipeline.Response{Status: status, Body: envelope}
		writeResponse(w, resp)
		ctx.ResponseStatus = resp.Status
		pipeline.RunLog(ctx, state.Registries(pattern))
		return
	}

	regs := state.Registries(pattern)

	resp := pipeline.Run(ctx, regs, func(ctx *pipeline.RequestContext) (any, error) {
		consumer := ""
		if identity, ok := pipeline.Get[pipeline.ConsumerIdentity](ctx); ok {
			consumer = identity.Name
		}
		return state.CRUD.Handle(r.Context(), pattern, ctx.PathParams, ctx.Query, ctx.JSONBody, consumer)
	})

	writeResponse(w, resp)
	ctx.ResponseStatus = resp.Status
	pipeline.RunLog(ctx, regs)
}

// readBody reads and, for JSON content types, decodes the request body
// into ctx.RawBody/ctx.JSONBody. A GET/DELETE/HEAD request with no body
// is left untouched. A body exceeding maxBodyBytes surfaces as
// gwerror.PayloadTooLarge (413), a non-JSON content-type on a request
// that actually carries a body surfaces as gwerror.UnsupportedMediaType
// (415), and malformed JSON surfaces as gwerror.ValidationError (400) —
// the three cases BodyParse is required to tell apart.
func readBody(w http.ResponseWriter, r *http.Request, ctx *pipeline.RequestContext) error {
	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return gwerror.New(gwerror.PayloadTooLarge, "request body exceeds the configured maximum size")
		}
		return gwerror.Wrap(gwerror.InternalError, "reading request body", err)
	}
	ctx.RawBody = raw
	if len(raw) == 0 {
		return nil
	}

	if !isJSONContentType(r.Header.Get("Content-Type")) {
		return gwerror.New(gwerror.UnsupportedMediaType, "request body requires a JSON content type")
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return gwerror.Wrap(gwerror.ValidationError, "Invalid JSON body", err)
	}
	ctx.JSONBody = decoded
	return nil
}

// isJSONContentType reports whether the media type in header is
// application/json (or a +json structured suffix), tolerating an empty
// header since some clients omit it on otherwise-valid JSON bodies.
func isJSONContentType(header string) bool {
	if header == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func writeResponse(w http.ResponseWriter, resp *pipeline.Response) {
	for key, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	writeJSON(w, resp.Status, resp.Body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// clientIP extracts the remote address's host part, falling back to the
// raw RemoteAddr when it carries no port (e.g. in unit tests).
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
