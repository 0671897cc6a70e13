package wizard

import (
	errx "github.com/bert-suite/server/internal/core/error"
	"github.com/bert-suite/server/internal/suite/model"
	"github.com/bert-suite/server/internal/suite/tools"
)

// Step is the position within the three-step wizard.
type Step int

const (
	StepIntake Step = iota
	StepProcessing
	StepInteractive
)

func (s Step) String() string {
	switch s {
	case StepIntake:
		return "INTAKE"
	case StepProcessing:
		return "PROCESSING"
	case StepInteractive:
		return "INTERACTIVE"
	default:
		return "UNKNOWN"
	}
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Machine is the wizard state machine. It is not safe for concurrent use;
// the Engine serializes access.
type Machine struct {
	steps   [tools.StepCount]tools.Step
	current Step
	payload *model.Payload
}

func NewMachine(steps []tools.Step) *Machine {
	m := &Machine{}
	copy(m.steps[:], steps)
	return m
}

func (m *Machine) Current() Step {
	return m.current
}

// CurrentID is the tool-specific name of the current step, e.g. UPLOAD.
func (m *Machine) CurrentID() string {
	return m.steps[m.current].ID
}

func (m *Machine) Steps() []tools.Step {
	return append([]tools.Step(nil), m.steps[:]...)
}

func (m *Machine) Payload() *model.Payload {
	return m.payload
}

// Proceed moves INTAKE to PROCESSING carrying p.
func (m *Machine) Proceed(p *model.Payload) error {
	if m.current != StepIntake {
		return errx.Conflict(errx.ErrInvalidTransition, "proceed is only valid from the intake step")
	}
	if p == nil {
		return errx.Conflict(errx.ErrInvalidTransition, "cannot proceed without a result")
	}
	m.payload = p
	m.current = StepProcessing
	return nil
}

// Confirm moves PROCESSING to INTERACTIVE once processing is complete.
func (m *Machine) Confirm(complete bool) error {
	if m.current != StepProcessing {
		return errx.Conflict(errx.ErrInvalidTransition, "confirm is only valid from the processing step")
	}
	if !complete {
		return errx.Conflict(errx.ErrInvalidTransition, "processing has not finished")
	}
	m.current = StepInteractive
	return nil
}

// Reset returns to INTAKE and clears the payload. It reports false when the
// machine was already at the initial step.
func (m *Machine) Reset() bool {
	if m.current == StepIntake && m.payload == nil {
		return false
	}
	m.current = StepIntake
	m.payload = nil
	return true
}

// Force jumps to step without checking guards. Entering INTERACTIVE this way
// with no payload yields the static missing-data view.
func (m *Machine) Force(step Step) {
	if step < StepIntake || step > StepInteractive {
		return
	}
	m.current = step
}
