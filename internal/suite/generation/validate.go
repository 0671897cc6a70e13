package generation

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"github.com/bert-suite/server/internal/suite/model"
)

// Validator checks decoded results against tool schemas. Compiled schemas
// are cached per *model.Schema.
type Validator struct {
	mu       sync.Mutex
	compiled map[*model.Schema]*jsonschema.Schema
}

func NewValidator() *Validator {
	return &Validator{
		compiled: make(map[*model.Schema]*jsonschema.Schema),
	}
}

// Validate parses raw and checks it against s.
func (v *Validator) Validate(raw json.RawMessage, s *model.Schema) error {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	return v.ValidateValue(decoded, s)
}

// ValidateValue checks an already decoded JSON value against s.
func (v *Validator) ValidateValue(decoded any, s *model.Schema) error {
	compiled, err := v.compile(s)
	if err != nil {
		return err
	}
	result := compiled.Validate(decoded)
	if !result.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidShape, result.Error())
	}
	return nil
}

func (v *Validator) compile(s *model.Schema) (*jsonschema.Schema, error) {
	if s == nil {
		return nil, fmt.Errorf("schema is nil")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.compiled[s]; ok {
		return c, nil
	}

	doc, err := s.JSON()
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	c, err := jsonschema.NewCompiler().Compile(doc)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	v.compiled[s] = c
	return c, nil
}
