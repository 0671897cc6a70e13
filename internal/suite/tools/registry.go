package tools

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"text/template"

	"gopkg.in/yaml.v3"

	errx "github.com/bert-suite/server/internal/core/error"
	"github.com/bert-suite/server/internal/suite/processing"
	logx "github.com/bert-suite/server/pkg/logger"
)

//go:embed tools.yaml
var builtin []byte

// StepCount is the fixed length of every tool wizard.
const StepCount = 3

// Registry is the static mode table. It is immutable after Load.
type Registry struct {
	order []string
	defs  map[string]*Definition
}

// Default loads the embedded registry.
func Default() (*Registry, error) {
	return Load(builtin)
}

// Load decodes and validates a registry document.
func Load(data []byte) (*Registry, error) {
	var defs []*Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&defs); err != nil {
		return nil, fmt.Errorf("decode tool registry: %w", err)
	}

	r := &Registry{defs: make(map[string]*Definition, len(defs))}
	for i, d := range defs {
		if d == nil {
			return nil, fmt.Errorf("tool %d: empty definition", i)
		}
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("tool %q: %w", d.Mode, err)
		}
		if _, dup := r.defs[d.Mode]; dup {
			return nil, fmt.Errorf("tool %q: duplicate mode", d.Mode)
		}
		r.defs[d.Mode] = d
		r.order = append(r.order, d.Mode)
	}
	if len(r.order) == 0 {
		return nil, errors.New("tool registry is empty")
	}
	logx.Debug().Int("tools", len(r.order)).Msg("tool registry loaded")
	return r, nil
}

// Lookup returns the definition for mode.
func (r *Registry) Lookup(mode string) (*Definition, error) {
	d, ok := r.defs[mode]
	if !ok {
		return nil, errx.NotFound(errx.ErrUnknownTool, fmt.Sprintf("Unknown tool %q.", mode))
	}
	return d, nil
}

func (r *Registry) Modes() []string {
	return append([]string(nil), r.order...)
}

// Descriptors lists every tool in registry order with its lock flag for
// the given balance.
func (r *Registry) Descriptors(balance int) []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, mode := range r.order {
		out = append(out, r.defs[mode].Descriptor(balance))
	}
	return out
}

func (d *Definition) validate() error {
	if d.Mode == "" {
		return errors.New("mode is required")
	}
	if d.Title == "" {
		return errors.New("title is required")
	}
	if d.Cost < 0 {
		return fmt.Errorf("negative cost %d", d.Cost)
	}
	if len(d.Steps) != StepCount {
		return fmt.Errorf("expected %d steps, got %d", StepCount, len(d.Steps))
	}
	seen := map[string]bool{}
	for _, s := range d.Steps {
		if s.ID == "" || seen[s.ID] {
			return fmt.Errorf("invalid or duplicate step id %q", s.ID)
		}
		seen[s.ID] = true
	}
	if err := processing.ValidateScript(d.Processing); err != nil {
		return fmt.Errorf("processing: %w", err)
	}
	if err := d.Intake.validate(); err != nil {
		return fmt.Errorf("intake: %w", err)
	}
	if err := d.Chat.validate(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}

func (in *Intake) validate() error {
	if len(in.Fields) == 0 {
		return errors.New("at least one field is required")
	}
	names := map[string]bool{}
	for _, f := range in.Fields {
		if f.Name == "" || names[f.Name] {
			return fmt.Errorf("invalid or duplicate field %q", f.Name)
		}
		names[f.Name] = true
	}
	if in.Schema == nil {
		return errors.New("schema is required")
	}
	if err := checkTemplate("prompt", in.Prompt, true); err != nil {
		return err
	}
	for _, e := range in.Extras {
		if e.Name == "" || e.Schema == nil {
			return fmt.Errorf("extra %q: name and schema are required", e.Name)
		}
		if err := checkTemplate("extra "+e.Name, e.Prompt, true); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chat) validate() error {
	if err := checkTemplate("system", c.System, true); err != nil {
		return err
	}
	if c.Pairs != nil && len(c.Seed) > 0 {
		return errors.New("seed and pairs are mutually exclusive")
	}
	for i, m := range c.Seed {
		if m.Role != "user" && m.Role != "assistant" {
			return fmt.Errorf("seed %d: unknown role %q", i, m.Role)
		}
		if err := checkTemplate(fmt.Sprintf("seed %d", i), m.Content, true); err != nil {
			return err
		}
	}
	for name, tpl := range map[string]string{"welcome": c.Welcome, "greeting": c.Greeting} {
		if err := checkTemplate(name, tpl, false); err != nil {
			return err
		}
	}
	return nil
}

func checkTemplate(name, text string, required bool) error {
	if text == "" {
		if required {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
	if _, err := template.New(name).Option("missingkey=error").Parse(text); err != nil {
		return fmt.Errorf("%s template: %w", name, err)
	}
	return nil
}
