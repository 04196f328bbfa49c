// Package masking keeps credentials out of activity metadata.
package masking

import "strings"

const maskToken = "****"

var sensitiveKeys = []string{"code", "password", "secret", "token", "hash"}

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
// Values of six characters or fewer are fully masked.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 6 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-2:]
}

// Sanitize returns a copy of input in which every value stored under a
// sensitive key is masked. Nested maps are walked.
func Sanitize(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if isSensitive(trimmedKey) {
			out[trimmedKey] = maskValue(value)
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			out[trimmedKey] = Sanitize(nested)
			continue
		}
		out[trimmedKey] = value
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func maskValue(value any) any {
	switch cast := value.(type) {
	case string:
		return MaskSecret(cast)
	case nil:
		return nil
	default:
		return maskToken
	}
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
