package observers

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bert-suite/server/internal/core"
	logx "github.com/bert-suite/server/pkg/logger"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logx.Init(logx.LoggerOpts{Environment: core.Testing, Output: &buf})
	t.Cleanup(func() { logx.Init(logx.LoggerOpts{Environment: core.Testing, Output: &bytes.Buffer{}}) })
	return &buf
}

func TestModelHandlerLogsLastUserMessage(t *testing.T) {
	buf := captureLogs(t)
	h := newModelHandler()
	info := &einocb.RunInfo{Type: "Gemini", Name: "chat"}

	h.OnStart(context.Background(), info, &model.CallbackInput{Messages: []*schema.Message{
		schema.SystemMessage("sys"),
		schema.UserMessage("first"),
		schema.AssistantMessage("reply", nil),
		schema.UserMessage("  latest  "),
	}})
	h.OnEnd(context.Background(), info, &model.CallbackOutput{Message: schema.AssistantMessage("done", nil)})
	h.OnError(context.Background(), info, errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, `"user":"latest"`)
	assert.Contains(t, out, `"assistant":"done"`)
	assert.Contains(t, out, `"component":"Gemini|chat"`)
	assert.Contains(t, out, "boom")
}

func TestPromptHandlerLogsRendered(t *testing.T) {
	buf := captureLogs(t)
	h := newPromptHandler()

	h.OnStart(context.Background(), &einocb.RunInfo{Type: "DefaultChatTemplate"}, &prompt.CallbackInput{Variables: map[string]any{"input": "x"}})
	h.OnEnd(context.Background(), &einocb.RunInfo{Type: "DefaultChatTemplate"}, &prompt.CallbackOutput{Result: []*schema.Message{schema.SystemMessage("hello there")}})

	out := buf.String()
	assert.Contains(t, out, `"vars":1`)
	assert.Contains(t, out, `"rendered":"hello there"`)
}

func TestLastUserContent(t *testing.T) {
	assert.Empty(t, lastUserContent(nil))
	assert.Equal(t, "b", lastUserContent([]*schema.Message{schema.UserMessage("a"), nil, schema.UserMessage("b"), schema.AssistantMessage("c", nil)}))
}

func TestPreviewTruncates(t *testing.T) {
	long := strings.Repeat("x", previewLimit+10)
	got := preview(long)
	assert.Len(t, got, previewLimit+3)
	assert.Equal(t, "short", preview(" short "))
}

func TestComponentName(t *testing.T) {
	assert.Equal(t, "unknown", componentName(nil))
	assert.Equal(t, "Gemini", componentName(&einocb.RunInfo{Type: "Gemini"}))
}

func TestNewAllCallbacks(t *testing.T) {
	require.NotNil(t, NewAllCallbacks())
	require.NotNil(t, NewPromptCallbacks())
}

func TestComputeCost(t *testing.T) {
	usage := &model.TokenUsage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500}

	in, out, total := ComputeCost(usage, ResolvePricing("gemini-2.5-flash"))
	assert.InDelta(t, 0.0003, in, 1e-12)
	assert.InDelta(t, 0.00125, out, 1e-12)
	assert.InDelta(t, 0.00155, total, 1e-12)

	_, _, total = ComputeCost(usage, ResolvePricing("unknown-model"))
	assert.Zero(t, total)
	_, _, total = ComputeCost(nil, ResolvePricing("gemini-2.5-flash"))
	assert.Zero(t, total)
}

func TestModelHandlerLogsUsage(t *testing.T) {
	buf := captureLogs(t)
	h := newModelHandler()

	h.OnEnd(context.Background(), &einocb.RunInfo{Type: "Gemini"}, &model.CallbackOutput{
		Message:    schema.AssistantMessage("ok", nil),
		Config:     &model.Config{Model: "gemini-2.5-flash"},
		TokenUsage: &model.TokenUsage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500},
	})

	out := buf.String()
	assert.Contains(t, out, `"prompt_tokens":1000`)
	assert.Contains(t, out, `"total_tokens":1500`)
	assert.Contains(t, out, `"cost_usd":0.0015`)
}
