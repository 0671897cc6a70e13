package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/bert-suite/server/internal/suite/model"
	"github.com/bert-suite/server/internal/suite/prompts"
	logx "github.com/bert-suite/server/pkg/logger"
)

const (
	NodeRenderIntake = "render_intake"
	NodeRenderExtra  = "render_extra"
	NodeGenerate     = "generate"
	NodeAssemble     = "assemble"
)

// NewRenderIntakePreHandler records the tool and its effective input in state.
func NewRenderIntakePreHandler() func(context.Context, Request, *RunState) (Request, error) {
	return func(ctx context.Context, in Request, s *RunState) (Request, error) {
		if in.Tool == nil {
			return in, fmt.Errorf("tool definition is nil")
		}
		in.Input = in.Tool.EffectiveInput(in.Input)
		s.Tool = in.Tool
		s.Input = in.Input
		s.Schema = in.Tool.Intake.Schema
		s.Started = time.Now()
		return in, nil
	}
}

// NewRenderIntakeNode renders the tool's generation prompt.
func NewRenderIntakeNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in Request) (string, error) {
		return prompts.RenderIntake(ctx, in.Tool, in.Input)
	})
}

// NewRenderExtraPreHandler records the extra's schema in state.
func NewRenderExtraPreHandler() func(context.Context, ExtraRequest, *RunState) (ExtraRequest, error) {
	return func(ctx context.Context, in ExtraRequest, s *RunState) (ExtraRequest, error) {
		if in.Tool == nil || in.Extra == nil || in.Payload == nil {
			return in, fmt.Errorf("extra request is incomplete")
		}
		s.Tool = in.Tool
		s.Input = in.Payload.Input
		s.Schema = in.Extra.Schema
		s.Started = time.Now()
		return in, nil
	}
}

// NewRenderExtraNode renders an auxiliary prompt from the current payload.
func NewRenderExtraNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in ExtraRequest) (string, error) {
		return prompts.RenderExtra(ctx, in.Extra, in.Payload)
	})
}

// NewGeneratePreHandler keeps the rendered prompt in state for logging.
func NewGeneratePreHandler() func(context.Context, string, *RunState) (string, error) {
	return func(ctx context.Context, prompt string, s *RunState) (string, error) {
		s.Prompt = prompt
		return prompt, nil
	}
}

// NewGenerateNode calls the collaborator with the schema held in state.
func NewGenerateNode(gen model.StructuredGenerator) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, prompt string) (json.RawMessage, error) {
		var s *model.Schema
		if err := compose.ProcessState(ctx, func(_ context.Context, st *RunState) error {
			s = st.Schema
			return nil
		}); err != nil {
			return nil, err
		}
		return gen.GenerateStructured(ctx, prompt, s)
	})
}

// NewGeneratePostHandler logs the generation outcome.
func NewGeneratePostHandler() func(context.Context, json.RawMessage, *RunState) (json.RawMessage, error) {
	return func(ctx context.Context, out json.RawMessage, s *RunState) (json.RawMessage, error) {
		s.Raw = out
		logx.Debug().
			Str("mode", s.Tool.Mode).
			Str("node", NodeGenerate).
			Int("bytes", len(out)).
			Dur("elapsed", time.Since(s.Started)).
			Msg("structured generation complete")
		return out, nil
	}
}

// NewAssembleNode builds the payload from the validated result.
func NewAssembleNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, raw json.RawMessage) (*model.Payload, error) {
		var p *model.Payload
		err := compose.ProcessState(ctx, func(_ context.Context, st *RunState) error {
			p = &model.Payload{
				Tool:   st.Tool.Mode,
				Title:  TitleOf(st.Tool, raw),
				Input:  st.Input,
				Result: raw,
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}
