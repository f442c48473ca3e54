package smartflow

import (
	"encoding/json"
)

// ToPtr returns a pointer to the given value.
func ToPtr[T any](v T) *T {
	return &v
}

// CloneMap returns a shallow copy of m (nil stays nil).
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MergeMaps shallow-merges the given maps left to right; later keys win.
func MergeMaps(maps ...map[string]any) map[string]any {
	size := 0
	for _, m := range maps {
		size += len(m)
	}
	out := make(map[string]any, size)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// CanonicalJSON serializes v with map keys sorted at every level, so equal
// payloads produce equal bytes.
func CanonicalJSON(v any) ([]byte, error) {
	// encoding/json sorts map keys; normalizing first makes structs and
	// maps with the same content serialize identically
	normalized, err := normalizeJSON(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

// ConfigStrings reads a []string-like value from a step config
func ConfigStrings(config map[string]any, key string) []string {
	switch v := config[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// ConfigBool reads a boolean flag from a step config
func ConfigBool(config map[string]any, key string) bool {
	b, ok := config[key].(bool)
	return ok && b
}

// ConfigNumber reads a numeric value from a step config
func ConfigNumber(config map[string]any, key string) (float64, bool) {
	v, exists := config[key]
	if !exists {
		return 0, false
	}
	if _, isString := v.(string); isString {
		return 0, false
	}
	return toFloat(v)
}

// HasConfigKey reports whether the config declares the key at all
func HasConfigKey(config map[string]any, key string) bool {
	_, ok := config[key]
	return ok
}
