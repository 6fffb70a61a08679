package database

import (
	"encoding/json"

	"github.com/bryan-buckman/dropwatch/internal/model"
)

// encodeJSON serializes a sub-structure for a TEXT column.
func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeSizes parses a stored size run. Malformed or missing values decode
// to an empty slice.
func decodeSizes(s string) []model.Size {
	var out []model.Size
	if s == "" || json.Unmarshal([]byte(s), &out) != nil || out == nil {
		return []model.Size{}
	}
	return out
}

// decodeStrings parses a stored string list the same way.
func decodeStrings(s string) []string {
	var out []string
	if s == "" || json.Unmarshal([]byte(s), &out) != nil || out == nil {
		return []string{}
	}
	return out
}
