package openapi

import "encoding/json"

// Extensions holds the "x-" prefixed specification extension fields of an
// OpenAPI object, keyed by their full name including the "x-" prefix.
//
// See: https://spec.openapis.org/oas/v3.1.0#specification-extensions
type Extensions map[string]json.RawMessage

// Get unmarshals the named extension into out. It reports false if the
// extension is not present.
func (e Extensions) Get(name string, out any) (bool, error) {
	raw, ok := e[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, err
	}
	return true, nil
}

// Has reports whether the named extension is present.
func (e Extensions) Has(name string) bool {
	_, ok := e[name]
	return ok
}

// extractExtensions parses data as a JSON object and returns every "x-"
// prefixed key found at the top level. It returns a nil map if data is not
// a JSON object or carries no extensions.
func extractExtensions(data []byte) (Extensions, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var ext Extensions
	for k, v := range raw {
		if len(k) < 2 || k[0] != 'x' || k[1] != '-' {
			continue
		}
		if ext == nil {
			ext = make(Extensions)
		}
		ext[k] = v
	}
	return ext, nil
}
