package config

import (
	"os"
	"regexp"
)

// envVarPattern matches ${VAR} or ${VAR:default}, mirroring config.rs's
// expand_env_vars regex (\$\{([^:}]+)(?::([^}]*))?\}).
var envVarPattern = regexp.MustCompile(`\$\{([^:}]+)(?::([^}]*))?\}`)

// ExpandEnvVars replaces every ${VAR} or ${VAR:default} reference in
// content with the named environment variable's value, or default when
// the variable is unset. Matches are repeated until a pass makes no
// further substitutions, so a default value that itself contains a
// reference is expanded too — the original guards the same loop against
// infinite recursion with a fixed iteration cap; this port uses the same
// cap.
func ExpandEnvVars(content string) string {
	const maxPasses = 10

	result := content
	for i := 0; i < maxPasses; i++ {
		next := envVarPattern.ReplaceAllStringFunc(result, func(match string) string {
			groups := envVarPattern.FindStringSubmatch(match)
			name, def := groups[1], groups[2]
			if v, ok := os.LookupEnv(name); ok {
				return v
			}
			return def
		})
		if next == result {
			break
		}
		result = next
	}
	return result
}
