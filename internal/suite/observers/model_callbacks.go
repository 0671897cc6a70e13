package observers

import (
	"context"
	"errors"
	"io"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
	"github.com/rs/zerolog"

	logx "github.com/bert-suite/server/pkg/logger"
)

const previewLimit = 200

// newModelHandler builds a typed ModelCallbackHandler that logs the turn
// around each chat model call.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ev := logx.Debug().Str("component", componentName(info))
			if input != nil {
				ev = ev.Int("messages", len(input.Messages))
				if um := lastUserContent(input.Messages); um != "" {
					ev = ev.Str("user", preview(um))
				}
			}
			ev.Msg("model start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			ev := logx.Debug().Str("component", componentName(info))
			if output != nil && output.Message != nil {
				ev = ev.Str("assistant", preview(output.Message.Content))
			}
			if output != nil && output.TokenUsage != nil {
				ev = withUsage(ev, modelName(output), output.TokenUsage)
			}
			ev.Msg("model end")
			return ctx
		},
		OnEndWithStreamOutput: func(ctx context.Context, info *einocb.RunInfo, output *schema.StreamReader[*model.CallbackOutput]) context.Context {
			name := componentName(info)
			go func() {
				defer output.Close()
				var sb strings.Builder
				var usage *model.TokenUsage
				var modelID string
				for {
					chunk, err := output.Recv()
					if errors.Is(err, io.EOF) {
						break
					}
					if err != nil {
						logx.Warn().Err(err).Str("component", name).Msg("model stream aborted")
						return
					}
					if chunk == nil {
						continue
					}
					if chunk.Message != nil {
						sb.WriteString(chunk.Message.Content)
					}
					if chunk.TokenUsage != nil {
						usage = chunk.TokenUsage
					}
					if m := modelName(chunk); m != "" {
						modelID = m
					}
				}
				ev := logx.Debug().Str("component", name).Str("assistant", preview(sb.String()))
				if usage != nil {
					ev = withUsage(ev, modelID, usage)
				}
				ev.Msg("model stream end")
			}()
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("component", componentName(info)).Msg("model error")
			return ctx
		},
	}
}

func modelName(output *model.CallbackOutput) string {
	if output == nil || output.Config == nil {
		return ""
	}
	return output.Config.Model
}

func withUsage(ev *zerolog.Event, modelID string, usage *model.TokenUsage) *zerolog.Event {
	_, _, total := ComputeCost(usage, ResolvePricing(modelID))
	return ev.
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("cost_usd", total)
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}

func componentName(info *einocb.RunInfo) string {
	if info == nil {
		return "unknown"
	}
	if info.Name != "" {
		return info.Type + "|" + info.Name
	}
	return info.Type
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= previewLimit {
		return s
	}
	return string(r[:previewLimit]) + "..."
}
