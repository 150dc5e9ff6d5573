// Package attrs provides helpers for reading slog-style key-value attribute
// slices, used when services fan audit log attributes out to publishers.
package attrs

// ExtractString extracts a string value from a key-value attribute slice.
// The slice should be formatted as [key1, value1, key2, value2, ...].
// Returns empty string if the key is not found or the value is not a string.
func ExtractString(attributes []any, key string) string {
	for i := 0; i < len(attributes)-1; i += 2 {
		k, ok := attributes[i].(string)
		if !ok {
			continue
		}
		if k == key {
			if v, ok := attributes[i+1].(string); ok {
				return v
			}
		}
	}
	return ""
}
