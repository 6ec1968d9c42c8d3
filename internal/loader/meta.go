package loader

import (
	"encoding/json"
	"fmt"
)

// stringField returns the string value under key, or "" when absent or
// not a string.
func stringField(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

// flattenInto merges service-reported metadata fields into dst under the
// given prefix. title and description are skipped (they are lifted
// unprefixed by the caller), as are nil values and keys dst already
// carries. With stringify set every value is rendered to a string;
// otherwise only maps and slices are, so primitive values keep their
// type.
func flattenInto(dst map[string]any, meta map[string]any, prefix string, stringify bool) {
	for key, value := range meta {
		if key == "title" || key == "description" || value == nil {
			continue
		}
		target := prefix + key
		if _, exists := dst[target]; exists {
			continue
		}

		if stringify {
			dst[target] = stringifyValue(value)
			continue
		}
		switch value.(type) {
		case map[string]any, []any:
			dst[target] = stringifyValue(value)
		default:
			dst[target] = value
		}
	}
}

// stringifyValue renders a metadata value as a string. Maps and slices
// are JSON-encoded for readability.
func stringifyValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any, []any:
		if b, err := json.Marshal(val); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
