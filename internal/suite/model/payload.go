package model

import (
	"encoding/json"
	"maps"
)

// Payload is what an intake step produces and every later step consumes
// unchanged.
type Payload struct {
	Tool   string            `json:"tool"`
	Title  string            `json:"title"`
	Input  map[string]string `json:"input"`
	Result json.RawMessage   `json:"result"`
	// Extras holds auxiliary generations keyed by extra name.
	Extras map[string]json.RawMessage `json:"extras,omitempty"`
}

// Clone returns a deep copy so steps never share mutable maps.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}
	out := &Payload{
		Tool:   p.Tool,
		Title:  p.Title,
		Input:  maps.Clone(p.Input),
		Result: append(json.RawMessage(nil), p.Result...),
	}
	if len(p.Extras) > 0 {
		out.Extras = make(map[string]json.RawMessage, len(p.Extras))
		for k, v := range p.Extras {
			out.Extras[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// Decoded returns the result as generic JSON for template rendering.
func (p *Payload) Decoded() (any, error) {
	if p == nil || len(p.Result) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(p.Result, &v); err != nil {
		return nil, err
	}
	return v, nil
}
