package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payload is an inbound webhook body together with its generic JSON decoding.
type Payload struct {
	Raw    json.RawMessage
	Fields map[string]interface{}
}

// NewPayload decodes raw into a Payload. The body must be a JSON object.
func NewPayload(raw []byte) (Payload, error) {
	var fields map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if fields == nil {
		return Payload{}, fmt.Errorf("%w: body is not a json object", ErrMalformedPayload)
	}
	return Payload{Raw: json.RawMessage(raw), Fields: fields}, nil
}

// Has reports whether the top-level key is present.
func (p Payload) Has(key string) bool {
	_, ok := p.Fields[key]
	return ok
}

// Value walks nested objects along path.
func (p Payload) Value(path ...string) (interface{}, bool) {
	if len(path) == 0 {
		return nil, false
	}
	current := p.Fields
	for i, key := range path {
		value, ok := current[key]
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			return value, true
		}
		next, ok := value.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// String returns the string found at path, or "" when absent or not a string.
func (p Payload) String(path ...string) string {
	value, ok := p.Value(path...)
	if !ok {
		return ""
	}
	str, _ := value.(string)
	return str
}

// Decode unmarshals the raw body into out. Failures wrap ErrMalformedPayload.
func (p Payload) Decode(out interface{}) error {
	if err := json.Unmarshal(p.Raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
