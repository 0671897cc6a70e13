package prompts

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bert-suite/server/internal/suite/model"
	"github.com/bert-suite/server/internal/suite/tools"
)

func lookup(t *testing.T, mode string) *tools.Definition {
	t.Helper()
	reg, err := tools.Default()
	require.NoError(t, err)
	def, err := reg.Lookup(mode)
	require.NoError(t, err)
	return def
}

func TestIntakeVars_IndentsJSON(t *testing.T) {
	vars, err := IntakeVars(map[string]string{"b": "2", "a": "1"})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": \"1\",\n  \"b\": \"2\"\n}", vars["input_json"])
}

func TestRenderIntake_SubstitutesInput(t *testing.T) {
	def := lookup(t, "ARTIST")
	out, err := RenderIntake(context.Background(), def, map[string]string{"text": "send me your bank pin"})
	require.NoError(t, err)
	assert.Contains(t, out, `"send me your bank pin"`)
	assert.Contains(t, out, "ArtShield")
}

func TestRenderSeed_Templated(t *testing.T) {
	def := lookup(t, "ARTIST")
	p := &model.Payload{
		Tool:   "ARTIST",
		Title:  "High",
		Input:  map[string]string{"text": "wire transfer please"},
		Result: json.RawMessage(`{"likelihood":"High","analysis":"Overpayment pattern.","redFlags":[],"recommendations":[]}`),
	}

	msgs, err := RenderSeed(context.Background(), def, p)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.User, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "wire transfer please")
	assert.Equal(t, schema.Assistant, msgs[1].Role)
	assert.Equal(t, "I have rated this message High risk. Overpayment pattern. What would you like to know?", msgs[1].Content)
}

func TestRenderSeed_PairsSkipBlankRows(t *testing.T) {
	def := lookup(t, "DARKBERT")
	p := &model.Payload{
		Tool:   "DARKBERT",
		Input:  map[string]string{"text": "x"},
		Result: json.RawMessage(`[{"prompt":"q1","completion":"a1"},{"prompt":"","completion":"a2"},{"prompt":"q3","completion":"a3"}]`),
	}

	msgs, err := RenderSeed(context.Background(), def, p)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "q1", msgs[0].Content)
	assert.Equal(t, schema.User, msgs[0].Role)
	assert.Equal(t, "a1", msgs[1].Content)
	assert.Equal(t, schema.Assistant, msgs[1].Role)
	assert.Equal(t, "q3", msgs[2].Content)
}

func TestRenderSeed_PairsRejectsNonArray(t *testing.T) {
	def := lookup(t, "DARKBERT")
	p := &model.Payload{Tool: "DARKBERT", Result: json.RawMessage(`{"prompt":"q"}`)}
	_, err := RenderSeed(context.Background(), def, p)
	assert.Error(t, err)
}

func TestRenderSeed_NoneConfigured(t *testing.T) {
	def := lookup(t, "FITBERT")
	p := &model.Payload{Tool: "FITBERT", Result: json.RawMessage(`{}`)}
	msgs, err := RenderSeed(context.Background(), def, p)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRenderOptional(t *testing.T) {
	def := lookup(t, "ROBERTA")
	p := &model.Payload{
		Tool:   "ROBERTA",
		Result: json.RawMessage(`{"contactInfo":{"name":"Ada"}}`),
	}

	out, err := RenderOptional(context.Background(), def.Chat.Welcome, p)
	require.NoError(t, err)
	assert.Contains(t, out, "Hello, Ada!")

	out, err = RenderOptional(context.Background(), "  ", p)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRenderExtra_RangesOverResult(t *testing.T) {
	def := lookup(t, "ROBERTO")
	extra, ok := def.Extra("shopping_list")
	require.True(t, ok)
	p := &model.Payload{
		Tool:   "ROBERTO",
		Result: json.RawMessage(`{"ingredients":[{"name":"flour","amount":"1 cup"},{"name":"eggs","amount":"2"}]}`),
	}

	out, err := RenderExtra(context.Background(), extra, p)
	require.NoError(t, err)
	assert.Contains(t, out, "- 1 cup flour")
	assert.Contains(t, out, "- 2 eggs")
}

func TestPayloadVars_NilPayload(t *testing.T) {
	_, err := PayloadVars(nil)
	assert.Error(t, err)
}
