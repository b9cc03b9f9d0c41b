// Package checklist converts poll options between their API form (a list of
// strings) and the persisted option column.
//
// New writes always store a JSON array of strings. Older rows may hold an
// object of the form {"checklist": [...], "sendTime": "HH:mm"}, or either
// shape double-encoded as a JSON string; Decode reads all of them.
package checklist

import (
	"encoding/json"
	"strings"
)

const MaxItemLength = 200

// Encode returns the persisted form, or nil for an empty list so the column
// stays NULL.
func Encode(items []string) *string {
	cleaned := Clean(items)
	if len(cleaned) == 0 {
		return nil
	}
	raw, err := json.Marshal(cleaned)
	if err != nil {
		return nil
	}
	encoded := string(raw)
	return &encoded
}

// Clean trims every item and drops empty ones.
func Clean(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// DecodeString reads a persisted option column. Unknown shapes decode to an
// empty list rather than an error.
func DecodeString(raw *string) []string {
	if raw == nil {
		return []string{}
	}
	return decodeJSON([]byte(*raw), 0)
}

// Decode accepts an already-parsed value: []string, []any, a map with a
// "checklist" key, or a string holding JSON of either.
func Decode(value any) []string {
	return decodeValue(value, 0)
}

// Legacy rows were sometimes stringified twice, never more.
const maxDepth = 1

func decodeJSON(raw []byte, depth int) []string {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return []string{}
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return []string{}
	}
	return decodeValue(value, depth)
}

func decodeValue(value any, depth int) []string {
	switch v := value.(type) {
	case nil:
		return []string{}
	case []string:
		return Clean(v)
	case []any:
		return stringsOf(v)
	case map[string]any:
		if list, ok := v["checklist"].([]any); ok {
			return stringsOf(list)
		}
		if list, ok := v["checklist"].([]string); ok {
			return Clean(list)
		}
		return []string{}
	case string:
		if depth >= maxDepth {
			return []string{}
		}
		return decodeJSON([]byte(v), depth+1)
	default:
		return []string{}
	}
}

func stringsOf(values []any) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if s, ok := value.(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

// LegacySendTime extracts "sendTime" from the old object shape, if present.
func LegacySendTime(raw *string) (string, bool) {
	if raw == nil {
		return "", false
	}
	var legacy struct {
		SendTime string `json:"sendTime"`
	}
	if err := json.Unmarshal([]byte(*raw), &legacy); err != nil || legacy.SendTime == "" {
		return "", false
	}
	return legacy.SendTime, true
}
