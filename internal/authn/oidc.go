package authn

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/apiforge/gateway/internal/pipeline"
)

// OIDCConfig configures one OIDC authenticator.
type OIDCConfig struct {
	Issuer   string
	Audience string // optional; checked when non-empty

	IntrospectionEnabled bool
	ClientID             string
	ClientSecret         string
}

// discoveryDocument is the subset of a provider's
// /.well-known/openid-configuration this module needs.
type discoveryDocument struct {
	Issuer                string `json:"issuer"`
	JWKSURI               string `json:"jwks_uri"`
	IntrospectionEndpoint string `json:"introspection_endpoint"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

// OIDCModule is an Access-phase module verifying a Bearer token either by
// remote introspection or local RS256 JWT verification, per one OIDC
// provider. Discovery and JWKS documents are fetched at most once per
// OIDCModule value and cached for that value's lifetime, a failed fetch
// included (first-writer-wins). The cache is not process-wide: every
// appstate.Build creates a new OIDCModule, so a hot reload fetches both
// documents again.
type OIDCModule struct {
	cfg    OIDCConfig
	client *http.Client

	discoverOnce sync.Once
	discovery    discoveryDocument
	discoverErr  error

	jwksOnce sync.Once
	jwks     jwksDocument
	jwksErr  error
}

// NewOIDCModule builds an OIDCModule with a 3-second operation timeout on
// discovery, JWKS, and introspection HTTP calls.
func NewOIDCModule(cfg OIDCConfig) *OIDCModule {
	return &OIDCModule{
		cfg:    cfg,
		client: &http.Client{Timeout: 3 * time.Second},
	}
}

func (m *OIDCModule) Name() string { return OIDCModuleName }

func (m *OIDCModule) Phases() []pipeline.Phase {
	return []pipeline.Phase{pipeline.Access}
}

func (m *OIDCModule) Run(phase pipeline.Phase, ctx *pipeline.RequestContext) pipeline.Outcome {
	if phase != pipeline.Access {
		return pipeline.Continue()
	}

	authHeader := ctx.Headers.Get("Authorization")
	if authHeader == "" {
		return pipeline.Respond(unauthorizedResponse("missing Authorization header"))
	}
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return pipeline.Respond(unauthorizedResponse("invalid auth scheme"))
	}

	if err := m.discover(ctx.Request.Context()); err != nil {
		return pipeline.Respond(unauthorizedResponse("token verification failed"))
	}

	if m.cfg.IntrospectionEnabled && m.discovery.IntrospectionEndpoint != "" && m.cfg.ClientID != "" {
		name, active, err := m.introspect(ctx.Request.Context(), token)
		if err != nil {
			return pipeline.Respond(unauthorizedResponse("token verification failed"))
		}
		if !active {
			return pipeline.Respond(unauthorizedResponse("token verification failed"))
		}
		pipeline.Set(ctx, pipeline.ConsumerIdentity{Name: name})
		return pipeline.Continue()
	}

	name, err := m.verifyJWT(ctx.Request.Context(), token)
	if err != nil {
		return pipeline.Respond(unauthorizedResponse("token verification failed"))
	}
	pipeline.Set(ctx, pipeline.ConsumerIdentity{Name: name})
	return pipeline.Continue()
}

func (m *OIDCModule) discover(ctx context.Context) error {
	m.discoverOnce.Do(func() {
		u := strings.TrimSuffix(m.cfg.Issuer, "/") + "/.well-known/openid-configuration"
		m.discovery, m.discoverErr = fetchJSON[discoveryDocument](ctx, m.client, u)
	})
	return m.discoverErr
}

func (m *OIDCModule) fetchJWKS(ctx context.Context) error {
	m.jwksOnce.Do(func() {
		m.jwks, m.jwksErr = fetchJSON[jwksDocument](ctx, m.client, m.discovery.JWKSURI)
	})
	return m.jwksErr
}

func fetchJSON[T any](ctx context.Context, client *http.Client, url string) (T, error) {
	var out T
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return out, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("oidc: %s returned %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// introspect POSTs token to the provider's introspection endpoint with
// HTTP Basic client credentials, returning the subject (falling back to
// username) and active flag.
func (m *OIDCModule) introspect(ctx context.Context, token string) (subject string, active bool, err error) {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.discovery.IntrospectionEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(m.cfg.ClientID, m.cfg.ClientSecret)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("oidc: introspection returned %d", resp.StatusCode)
	}

	var body struct {
		Active   bool   `json:"active"`
		Sub      string `json:"sub"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", false, err
	}
	if !body.Active {
		return "", false, nil
	}
	sub := body.Sub
	if sub == "" {
		sub = body.Username
	}
	return sub, true, nil
}

// verifyJWT verifies token's RS256 signature against the provider's JWKS,
// keyed by the token's "kid" header, then checks issuer and (when
// configured) audience.
func (m *OIDCModule) verifyJWT(ctx context.Context, token string) (string, error) {
	if err := m.fetchJWKS(ctx); err != nil {
		return "", err
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := m.findKey(kid)
		if !ok {
			return nil, fmt.Errorf("oidc: no matching jwk for kid %q", kid)
		}
		return key, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithIssuer(m.discovery.Issuer))
	if err != nil {
		return "", err
	}

	if m.cfg.Audience != "" {
		ok, err := claims.GetAudience()
		if err != nil {
			return "", err
		}
		if !containsString(ok, m.cfg.Audience) {
			return "", fmt.Errorf("oidc: audience mismatch")
		}
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("oidc: missing subject claim")
	}
	return sub, nil
}

func (m *OIDCModule) findKey(kid string) (*rsa.PublicKey, bool) {
	for _, k := range m.jwks.Keys {
		if k.Kty != "RSA" {
			continue
		}
		if kid != "" && k.Kid != kid {
			continue
		}
		key, err := rsaPublicKeyFromJWK(k)
		if err != nil {
			continue
		}
		return key, true
	}
	return nil, false
}

func rsaPublicKeyFromJWK(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
