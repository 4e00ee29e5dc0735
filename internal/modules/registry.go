// Package modules implements the gateway's built-in pipeline modules —
// the request validator, the access log, the response-headers adapter —
// and the registry-building logic that turns one OpenAPI operation's
// legacy x-modules extension and/or security requirements into the
// ordered pipeline.Registry that runs for it.
package modules

import (
	"github.com/apiforge/gateway/internal/authn"
	"github.com/apiforge/gateway/internal/pipeline"
	"github.com/apiforge/gateway/openapi"
)

// XModules is the shape of the legacy "x-modules" operation extension:
// a plain list of module names per phase grouping.
type XModules struct {
	Access  []string `json:"access"`
	Rewrite []string `json:"rewrite"`
}

// AuthCatalog resolves a module name (e.g. "key_auth", "oauth") to the
// already-constructed pipeline.Module instance that implements it, so
// the same authenticator instances are shared across every operation
// registry that names them.
type AuthCatalog struct {
	KeyAuth *authn.ApiKeyModule
	OIDC    *authn.OIDCModule
}

func (c AuthCatalog) resolve(name string) pipeline.Module {
	switch name {
	case authn.KeyAuthModuleName:
		if c.KeyAuth != nil {
			return c.KeyAuth
		}
	case authn.OIDCModuleName:
		if c.OIDC != nil {
			return c.OIDC
		}
	}
	return nil
}

// BuildOperationRegistry resolves the Access-phase module set for one
// operation by merging two sources, per SUPPLEMENTED FEATURES:
//
//  1. the legacy x-modules.access extension, and
//  2. security requirement objects, translated ApiKeyAuth -> "key_auth",
//     BearerAuth/OpenID -> "oauth".
//
// Operation-level security (including an explicit empty array, meaning
// "no auth") overrides document-level security entirely, matching
// OpenAPI's own override semantics. The validator module, when non-nil,
// always runs first in BodyParse regardless of x-modules/security.
func BuildOperationRegistry(
	doc *openapi.Document,
	op *openapi.Operation,
	catalog AuthCatalog,
	securitySchemes map[string]*openapi.SecurityScheme,
	validator *ValidatorModule,
	responseHeaders *ResponseHeadersModule,
) *pipeline.Registry {
	reg := &pipeline.Registry{}

	if validator != nil {
		reg.Modules = append(reg.Modules, validator)
	}

	names := accessModuleNames(doc, op, securitySchemes)
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if m := catalog.resolve(name); m != nil {
			reg.Modules = append(reg.Modules, m)
		}
	}

	if responseHeaders != nil {
		reg.Modules = append(reg.Modules, responseHeaders)
	}

	return reg
}

// accessModuleNames computes the ordered list of Access module names an
// operation requires, combining x-modules.access with the operation's
// effective security requirements. Duplicates are kept here; the caller
// skips a name it has already installed.
func accessModuleNames(doc *openapi.Document, op *openapi.Operation, schemes map[string]*openapi.SecurityScheme) []string {
	var names []string

	var xmod XModules
	if op.Extensions != nil {
		if ok, _ := op.Extensions.Get("x-modules", &xmod); ok {
			names = append(names, xmod.Access...)
		}
	}

	security := op.Security
	if security == nil {
		security = doc.Security
	}
	for _, req := range security {
		for schemeName := range req {
			names = append(names, translateSecurityScheme(schemeName, schemes))
		}
	}

	return names
}

// translateSecurityScheme maps a security-requirement key to a module
// name via the referenced components.securitySchemes entry's type:
// apiKey -> key_auth; http (any scheme), oauth2 or openIdConnect -> oauth. Falls back
// to matching on the scheme name itself when the document carries no
// securitySchemes section (hand-authored documents commonly name the
// requirement key after the scheme directly, e.g. "ApiKeyAuth").
func translateSecurityScheme(name string, schemes map[string]*openapi.SecurityScheme) string {
	if scheme, ok := schemes[name]; ok {
		switch scheme.Type {
		case "apiKey":
			return authn.KeyAuthModuleName
		case "http", "openIdConnect", "oauth2":
			return authn.OIDCModuleName
		}
	}
	switch name {
	case "ApiKeyAuth":
		return authn.KeyAuthModuleName
	case "BearerAuth", "OpenID":
		return authn.OIDCModuleName
	default:
		return name
	}
}
