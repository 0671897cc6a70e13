package wizard

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/bert-suite/server/internal/core/error"
	"github.com/bert-suite/server/internal/suite/model"
	"github.com/bert-suite/server/internal/suite/tools"
)

var docSteps = []tools.Step{
	{ID: "UPLOAD", Name: "Upload"},
	{ID: "INDEXING", Name: "Index"},
	{ID: "QA", Name: "Ask"},
}

func TestMachine_HappyPath(t *testing.T) {
	m := NewMachine(docSteps)
	assert.Equal(t, StepIntake, m.Current())
	assert.Equal(t, "UPLOAD", m.CurrentID())
	assert.Nil(t, m.Payload())

	p := &model.Payload{Tool: "DOCUBERT", Result: json.RawMessage(`{}`)}
	require.NoError(t, m.Proceed(p))
	assert.Equal(t, StepProcessing, m.Current())
	assert.Equal(t, "INDEXING", m.CurrentID())
	assert.Same(t, p, m.Payload())

	require.NoError(t, m.Confirm(true))
	assert.Equal(t, StepInteractive, m.Current())
	assert.Equal(t, "QA", m.CurrentID())

	assert.True(t, m.Reset())
	assert.Equal(t, StepIntake, m.Current())
	assert.Nil(t, m.Payload())
	assert.False(t, m.Reset(), "reset at the initial step is a no-op")
}

func TestMachine_Guards(t *testing.T) {
	m := NewMachine(docSteps)

	assert.ErrorIs(t, m.Proceed(nil), errx.ErrInvalidTransition)
	assert.ErrorIs(t, m.Confirm(true), errx.ErrInvalidTransition)

	require.NoError(t, m.Proceed(&model.Payload{}))
	assert.ErrorIs(t, m.Proceed(&model.Payload{}), errx.ErrInvalidTransition, "no second proceed")
	assert.ErrorIs(t, m.Confirm(false), errx.ErrInvalidTransition, "processing must finish first")
	assert.Equal(t, StepProcessing, m.Current())

	require.NoError(t, m.Confirm(true))
	assert.ErrorIs(t, m.Confirm(true), errx.ErrInvalidTransition)
	assert.ErrorIs(t, m.Proceed(&model.Payload{}), errx.ErrInvalidTransition, "no backward move")
}

func TestMachine_ResetFromProcessing(t *testing.T) {
	m := NewMachine(docSteps)
	require.NoError(t, m.Proceed(&model.Payload{}))
	assert.True(t, m.Reset())
	assert.Equal(t, StepIntake, m.Current())
	assert.Nil(t, m.Payload())
}

func TestMachine_Force(t *testing.T) {
	m := NewMachine(docSteps)
	m.Force(StepInteractive)
	assert.Equal(t, StepInteractive, m.Current())
	assert.Nil(t, m.Payload())

	m.Force(Step(7))
	assert.Equal(t, StepInteractive, m.Current())
}

func TestStepText(t *testing.T) {
	b, err := json.Marshal(map[string]Step{"current": StepProcessing})
	require.NoError(t, err)
	assert.JSONEq(t, `{"current":"PROCESSING"}`, string(b))
	assert.Equal(t, "UNKNOWN", Step(9).String())
}
