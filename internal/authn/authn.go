// Package authn implements the gateway's two Access-phase authentication
// modules: a static api-key/consumer lookup and an OIDC bearer-token
// verifier (introspection or local JWKS-backed JWT verification).
package authn

import (
	"github.com/apiforge/gateway/internal/pipeline"
)

// Consumer is one configured API consumer: a name and the set of keys
// that authenticate as it.
type Consumer struct {
	Name string
	Keys []string
}

// KeySource identifies where an ApiKey authenticator looks for the key.
type KeySource string

const (
	SourceHeader KeySource = "header"
	SourceQuery  KeySource = "query"
)

// ApiKeyConfig configures one key-auth authenticator.
type ApiKeyConfig struct {
	// KeyName is the header or query parameter name carrying the key.
	// Defaults to "X-Api-Key".
	KeyName string
	Source  KeySource
	Consumers []Consumer
}

// KeyAuthModuleName and OIDCModuleName are the fixed names the two
// authentication modules report via Module.Name, used for
// x-modules/security-requirement resolution.
const (
	KeyAuthModuleName = "key_auth"
	OIDCModuleName    = "oauth"
)

var _ pipeline.Module = (*ApiKeyModule)(nil)
var _ pipeline.Module = (*OIDCModule)(nil)
