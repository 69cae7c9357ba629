package db

import "encoding/json"

// EncodeList stores a slice in a TEXT column as a JSON array. nil encodes
// as "[]".
func EncodeList[T any](v []T) string {
	if len(v) == 0 {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// DecodeList is the inverse of EncodeList. Corrupt values decode as empty.
func DecodeList[T any](s string) []T {
	out := []T{}
	if s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil || out == nil {
		return []T{}
	}
	return out
}
