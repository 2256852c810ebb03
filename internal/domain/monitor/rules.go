package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type ValidationRules struct {
	StatusCode    *int           `json:"statusCode,omitempty"`
	RequiredKeys  []string       `json:"requiredKeys,omitempty"`
	ContainsValue ContainsValues `json:"containsValue,omitempty"`
	CustomCheck   string         `json:"customCheck,omitempty"`
}

func (r ValidationRules) Clone() ValidationRules {
	cp := r
	if r.StatusCode != nil {
		v := *r.StatusCode
		cp.StatusCode = &v
	}
	cp.RequiredKeys = append([]string(nil), r.RequiredKeys...)
	cp.ContainsValue = append(ContainsValues(nil), r.ContainsValue...)
	return cp
}

type LabeledValue struct {
	Label string
	Value string
}

// ContainsValues is a label to substring map that keeps the key order it
// was decoded with.
type ContainsValues []LabeledValue

func (c ContainsValues) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(kv.Label)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *ContainsValues) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("containsValue: expected object, got %v", tok)
	}
	out := ContainsValues{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := kt.(string)
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		val, ok := raw.(string)
		if !ok {
			b, _ := json.Marshal(raw)
			val = string(b)
		}
		out = append(out, LabeledValue{Label: key, Value: val})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}
