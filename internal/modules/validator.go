package modules

import (
	"fmt"
	"strconv"

	"github.com/apiforge/gateway/internal/gwerror"
	"github.com/apiforge/gateway/internal/pipeline"
	"github.com/apiforge/gateway/openapi"
)

// ValidatorModule is a BodyParse-phase module compiled once per
// (method, path) from that operation's requestBody and parameters. It
// checks the decoded JSON body's required properties and declared
// types, and coerces+validates query/header/path parameters against
// their declared schema, before the request reaches the CRUD engine.
//
// This hand-rolled checker (rather than a general JSON Schema engine)
// covers the "required-ness" and "type-hint coercion" behaviour
// spec.md calls for; no example repo in the retrieved pack exercises a
// JSON Schema validation library against a live HTTP request (the one
// pack repo with such a dependency carries it only transitively,
// through an unrelated plugin subsystem), so this is standard-library
// JSON traversal instead.
type ValidatorModule struct {
	RequiredBodyFields []string
	BodyProperties     map[string]openapi.SchemaType
	BodyRequired       bool

	Params []paramRule
}

type paramRule struct {
	Name     string
	In       string // "query", "header", "path"
	Required bool
	Type     string // "integer", "number", "boolean", "string", or "" (unconstrained)
}

// NewValidatorModule compiles op's requestBody (application/json only)
// and declared parameters into a ValidatorModule. inherited carries the
// containing PathItem's parameters, which are merged with the
// operation's own, per OpenAPI's parameter-inheritance rule.
func NewValidatorModule(op *openapi.Operation, inherited []*openapi.Parameter) *ValidatorModule {
	v := &ValidatorModule{BodyProperties: map[string]openapi.SchemaType{}}

	if op.RequestBody != nil {
		if mt, ok := op.RequestBody.Content["application/json"]; ok && mt.Schema != nil {
			v.BodyRequired = op.RequestBody.Required
			v.RequiredBodyFields = append([]string(nil), mt.Schema.Required...)
			for name, prop := range mt.Schema.Properties {
				if prop != nil {
					v.BodyProperties[name] = prop.Type
				}
			}
		}
	}

	seen := map[string]bool{}
	addParam := func(p *openapi.Parameter) {
		if p == nil || seen[p.In+":"+p.Name] {
			return
		}
		seen[p.In+":"+p.Name] = true
		rule := paramRule{Name: p.Name, In: p.In, Required: p.Required}
		if p.Schema != nil && !p.Schema.Type.IsEmpty() {
			rule.Type = p.Schema.Type.Values()[0]
		}
		v.Params = append(v.Params, rule)
	}
	for _, p := range op.Parameters {
		addParam(p)
	}
	for _, p := range inherited {
		addParam(p)
	}

	return v
}

func (v *ValidatorModule) Name() string { return "request_validator" }

func (v *ValidatorModule) Phases() []pipeline.Phase {
	return []pipeline.Phase{pipeline.BodyParse}
}

func (v *ValidatorModule) Run(phase pipeline.Phase, ctx *pipeline.RequestContext) pipeline.Outcome {
	if phase != pipeline.BodyParse {
		return pipeline.Continue()
	}

	if err := v.validateParams(ctx); err != nil {
		return pipeline.ErrorOutcome(err)
	}
	if err := v.validateBody(ctx); err != nil {
		return pipeline.ErrorOutcome(err)
	}
	return pipeline.Continue()
}

func (v *ValidatorModule) validateBody(ctx *pipeline.RequestContext) error {
	if len(v.BodyProperties) == 0 && len(v.RequiredBodyFields) == 0 {
		return nil
	}
	if ctx.JSONBody == nil {
		if v.BodyRequired {
			return gwerror.New(gwerror.ValidationError, "Request body is required")
		}
		return nil
	}
	obj, ok := ctx.JSONBody.(map[string]any)
	if !ok {
		return gwerror.New(gwerror.ValidationError, "request body must be a JSON object")
	}
	for _, name := range v.RequiredBodyFields {
		if _, present := obj[name]; !present {
			return gwerror.New(gwerror.ValidationError, fmt.Sprintf("missing required field %q", name))
		}
	}
	for name, val := range obj {
		st, ok := v.BodyProperties[name]
		if !ok || st.IsEmpty() {
			continue
		}
		if !matchesAnyType(val, st.Values()) {
			return gwerror.New(gwerror.ValidationError, fmt.Sprintf("field %q has the wrong type", name))
		}
	}
	return nil
}

func (v *ValidatorModule) validateParams(ctx *pipeline.RequestContext) error {
	for _, rule := range v.Params {
		var raw string
		var present bool
		switch rule.In {
		case "query":
			vals, ok := ctx.Query[rule.Name]
			present = ok && len(vals) > 0
			if present {
				raw = vals[0]
			}
		case "header":
			raw = ctx.Headers.Get(rule.Name)
			present = raw != ""
		case "path":
			raw, present = ctx.PathParams[rule.Name]
		default:
			continue
		}

		if !present {
			if rule.Required {
				return gwerror.New(gwerror.InvalidParameter, fmt.Sprintf("missing parameter %q", rule.Name))
			}
			continue
		}
		if rule.Type != "" && !coercesToType(raw, rule.Type) {
			return gwerror.New(gwerror.InvalidParameter, fmt.Sprintf("parameter %q is not a valid %s", rule.Name, rule.Type))
		}
	}
	return nil
}

// coercesToType reports whether raw can be interpreted as jsonType,
// mirroring the coercion a query/header/path string value undergoes
// before binding.
func coercesToType(raw, jsonType string) bool {
	switch jsonType {
	case "integer":
		_, err := strconv.ParseInt(raw, 10, 64)
		return err == nil
	case "number":
		_, err := strconv.ParseFloat(raw, 64)
		return err == nil
	case "boolean":
		_, err := strconv.ParseBool(raw)
		return err == nil
	default:
		return true
	}
}

// matchesAnyType reports whether val's decoded JSON Go type (string,
// float64/json.Number, bool, []any, map[string]any, nil) satisfies one
// of the declared OpenAPI/JSON-Schema types.
func matchesAnyType(val any, types []string) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if matchesType(val, t) {
			return true
		}
	}
	return false
}

func matchesType(val any, t string) bool {
	switch t {
	case "null":
		return val == nil
	case "string":
		_, ok := val.(string)
		return ok
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "integer":
		switch n := val.(type) {
		case float64:
			return n == float64(int64(n))
		default:
			return false
		}
	case "number":
		_, ok := val.(float64)
		return ok
	case "array":
		_, ok := val.([]any)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	default:
		return true
	}
}
