package config

import (
	"sort"
	"strings"

	"github.com/paulrobinshaw/rch-xcode/pkg/sliceutil"
)

// secretKeys are substrings that mark a config key as carrying a secret.
var secretKeys = []string{
	"password",
	"token",
	"secret",
	"private_key",
	"api_key",
	"credential",
}

func isSecretKey(key string) bool {
	return sliceutil.ContainsAny(strings.ToLower(key), secretKeys...)
}

// redactSecrets walks value in place, replacing any scalar field whose key
// looks like a secret with "[REDACTED]", and returns the dot-separated
// paths it redacted.
func redactSecrets(value map[string]any) []string {
	var redactions []string
	redactRecursive(value, "", &redactions)
	sort.Strings(redactions)
	return redactions
}

func redactRecursive(value map[string]any, path string, redactions *[]string) {
	for key, val := range value {
		currentPath := key
		if path != "" {
			currentPath = path + "." + key
		}

		switch v := val.(type) {
		case map[string]any:
			redactRecursive(v, currentPath, redactions)
		case []any:
		default:
			if isSecretKey(key) {
				value[key] = "[REDACTED]"
				*redactions = append(*redactions, currentPath)
			}
		}
	}
}
