package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Payload is a decoded command data object.
type Payload map[string]any

// DecodePayload parses a JSON object. Anything else, including malformed
// JSON, yields an empty payload.
func DecodePayload(raw string) Payload {
	p := Payload{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return p
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil || p == nil {
		return Payload{}
	}
	return p
}

// String returns the value at key as text. Numbers and booleans are
// formatted; missing keys give "".
func (p Payload) String(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// Bool accepts JSON booleans and the strings "true"/"yes"/"1".
func (p Payload) Bool(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true
		}
	case float64:
		return v != 0
	}
	return false
}

// Int accepts JSON numbers and numeric strings.
func (p Payload) Int(key string) (int64, bool) {
	switch v := p[key].(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Object returns the nested object at key, or an empty payload.
func (p Payload) Object(key string) Payload {
	if m, ok := p[key].(map[string]any); ok {
		return Payload(m)
	}
	return Payload{}
}

// Strings accepts a JSON array of strings or a comma-separated string.
func (p Payload) Strings(key string) []string {
	var out []string
	switch v := p[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// First returns the first non-empty String among keys.
func (p Payload) First(keys ...string) string {
	for _, k := range keys {
		if s := p.String(k); s != "" {
			return s
		}
	}
	return ""
}
