package model

import "encoding/json"

// Schema is the declarative shape of a structured generation result. It is
// a JSON Schema subset (type, description, enum, properties, items,
// required) so the same value feeds the Gemini response schema and the
// post-parse validator.
type Schema struct {
	Type        string             `yaml:"type" json:"type"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Enum        []string           `yaml:"enum,omitempty" json:"enum,omitempty"`
	Properties  map[string]*Schema `yaml:"properties,omitempty" json:"properties,omitempty"`
	Items       *Schema            `yaml:"items,omitempty" json:"items,omitempty"`
	Required    []string           `yaml:"required,omitempty" json:"required,omitempty"`
}

// JSON renders the schema as a JSON Schema document.
func (s *Schema) JSON() (json.RawMessage, error) {
	return json.Marshal(s)
}
