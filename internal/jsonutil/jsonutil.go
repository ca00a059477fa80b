// Package jsonutil provides safe JSON extraction helpers for the CLI
// backend parsers (backend/claude, backend/gemini). These functions pull
// typed values out of the map[string]any encoding/json.Unmarshal
// produces from a stream-json line. No transformation logic, no
// validation — callers decide what a missing or mistyped field means.
package jsonutil

import "strings"

// GetString safely extracts a string field from a map.
func GetString(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

// GetMap safely extracts a nested map from a map.
func GetMap(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

// GetSlice safely extracts a []any from a map.
func GetSlice(m map[string]any, key string) []any {
	v, _ := m[key].([]any)
	return v
}

// ContainsNull reports whether s contains a null byte, which neither
// claude nor gemini's stdin framing can carry.
func ContainsNull(s string) bool {
	return strings.ContainsRune(s, '\x00')
}
