package tools

import (
	"fmt"
	"strings"

	"github.com/bert-suite/server/internal/suite/model"
)

const (
	DefaultEmptyReply    = "I'm not sure how to answer that. Can you ask in a different way?"
	DefaultErrorReply    = "I apologize, I am unable to process that request at this time."
	DefaultGreetingError = "I apologize, I seem to be having trouble connecting. Please try again."
)

// Step names one of the three wizard steps for a tool.
type Step struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Field is one intake input. Default is substituted when the field is blank.
type Field struct {
	Name    string `yaml:"name" json:"name"`
	Label   string `yaml:"label" json:"label"`
	Default string `yaml:"default" json:"default"`
}

// Extra is an auxiliary generation derived from the intake result.
type Extra struct {
	Name    string        `yaml:"name" json:"name"`
	Prompt  string        `yaml:"prompt" json:"-"`
	Schema  *model.Schema `yaml:"schema" json:"-"`
	Failure string        `yaml:"failure" json:"-"`
}

type Intake struct {
	Fields     []Field       `yaml:"fields"`
	Prompt     string        `yaml:"prompt"`
	Schema     *model.Schema `yaml:"schema"`
	TitleField string        `yaml:"title_field"`
	Editable   bool          `yaml:"editable"`
	Failure    string        `yaml:"failure"`
	Extras     []Extra       `yaml:"extras"`
}

type SeedMessage struct {
	Role    string `yaml:"role"`
	Content string `yaml:"content"`
}

// Pairs seeds a chat from an array result, one user/assistant turn per
// element, reading the named string properties.
type Pairs struct {
	User      string `yaml:"user"`
	Assistant string `yaml:"assistant"`
}

type Chat struct {
	System        string        `yaml:"system"`
	Seed          []SeedMessage `yaml:"seed"`
	Pairs         *Pairs        `yaml:"pairs"`
	Welcome       string        `yaml:"welcome"`
	Greeting      string        `yaml:"greeting"`
	GreetingError string        `yaml:"greeting_error"`
	EmptyReply    string        `yaml:"empty_reply"`
	ErrorReply    string        `yaml:"error_reply"`
}

// Definition is the static description of one tool.
type Definition struct {
	Mode        string               `yaml:"mode"`
	Title       string               `yaml:"title"`
	Subtitle    string               `yaml:"subtitle"`
	Description string               `yaml:"description"`
	Cost        int                  `yaml:"cost"`
	Missing     string               `yaml:"missing"`
	Steps       []Step               `yaml:"steps"`
	Intake      Intake               `yaml:"intake"`
	Processing  []model.ProgressStep `yaml:"processing"`
	ManualStart bool                 `yaml:"manual_start"`
	Chat        Chat                 `yaml:"chat"`
}

// MissingMessage is the static line rendered when the interactive step is
// entered without a payload.
func (d *Definition) MissingMessage() string {
	subject := d.Missing
	if subject == "" {
		subject = d.Title + " data"
	}
	return fmt.Sprintf("Error: %s is missing.", subject)
}

// EffectiveInput substitutes field defaults for blank values and drops keys
// the tool does not declare.
func (d *Definition) EffectiveInput(input map[string]string) map[string]string {
	out := make(map[string]string, len(d.Intake.Fields))
	for _, f := range d.Intake.Fields {
		v := strings.TrimSpace(input[f.Name])
		if v == "" {
			v = f.Default
		}
		out[f.Name] = v
	}
	return out
}

// EmptyInput returns every declared field blank.
func (d *Definition) EmptyInput() map[string]string {
	out := make(map[string]string, len(d.Intake.Fields))
	for _, f := range d.Intake.Fields {
		out[f.Name] = ""
	}
	return out
}

func (d *Definition) HasField(name string) bool {
	for _, f := range d.Intake.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func (d *Definition) Extra(name string) (*Extra, bool) {
	for i := range d.Intake.Extras {
		if d.Intake.Extras[i].Name == name {
			return &d.Intake.Extras[i], true
		}
	}
	return nil, false
}

func (d *Definition) EmptyReply() string {
	if d.Chat.EmptyReply != "" {
		return d.Chat.EmptyReply
	}
	return DefaultEmptyReply
}

func (d *Definition) ErrorReply() string {
	if d.Chat.ErrorReply != "" {
		return d.Chat.ErrorReply
	}
	return DefaultErrorReply
}

func (d *Definition) GreetingError() string {
	if d.Chat.GreetingError != "" {
		return d.Chat.GreetingError
	}
	return DefaultGreetingError
}

// Script returns a copy of the processing script.
func (d *Definition) Script() []model.ProgressStep {
	out := make([]model.ProgressStep, len(d.Processing))
	copy(out, d.Processing)
	return out
}

// Descriptor is what the mode selector lists.
type Descriptor struct {
	Mode        string   `json:"mode"`
	Title       string   `json:"title"`
	Subtitle    string   `json:"subtitle"`
	Description string   `json:"description"`
	Cost        int      `json:"cost"`
	Locked      bool     `json:"locked"`
	Steps       []Step   `json:"steps"`
	Fields      []Field  `json:"fields"`
	Editable    bool     `json:"editable"`
	Extras      []string `json:"extras,omitempty"`
}

func (d *Definition) Descriptor(balance int) Descriptor {
	extras := make([]string, 0, len(d.Intake.Extras))
	for _, e := range d.Intake.Extras {
		extras = append(extras, e.Name)
	}
	return Descriptor{
		Mode:        d.Mode,
		Title:       d.Title,
		Subtitle:    d.Subtitle,
		Description: d.Description,
		Cost:        d.Cost,
		Locked:      balance < d.Cost,
		Steps:       append([]Step(nil), d.Steps...),
		Fields:      append([]Field(nil), d.Intake.Fields...),
		Editable:    d.Intake.Editable,
		Extras:      extras,
	}
}
