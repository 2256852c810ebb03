package validation

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Lookup resolves a dot path such as "data.items.0.id" against a decoded
// JSON value. Numeric segments index arrays and a "length" segment on an
// array or string yields its length.
func Lookup(body any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}
	cur := body
	for _, seg := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			if seg == "length" {
				cur = float64(len(v))
				continue
			}
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}
			cur = v[i]
		case string:
			if seg != "length" {
				return nil, false
			}
			cur = float64(utf8.RuneCountInString(v))
		default:
			return nil, false
		}
	}
	return cur, true
}

// ParseBody decodes raw as JSON when it looks like JSON and returns the
// raw text otherwise.
func ParseBody(raw []byte, contentType string) any {
	trimmed := bytes.TrimSpace(raw)
	looksJSON := strings.Contains(strings.ToLower(contentType), "json") ||
		(len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '['))
	if looksJSON && len(trimmed) > 0 {
		var v any
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return v
		}
	}
	return string(raw)
}

// Stringify returns the text that substring rules are matched against:
// compact JSON for JSON bodies, the raw text otherwise.
func Stringify(resp Response) string {
	if _, isText := resp.Body.(string); isText || resp.Body == nil {
		return resp.Raw
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(resp.Raw)); err == nil {
		return buf.String()
	}
	b, err := json.Marshal(resp.Body)
	if err != nil {
		return resp.Raw
	}
	return string(b)
}
