package prompts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/bert-suite/server/internal/suite/model"
	"github.com/bert-suite/server/internal/suite/tools"
)

// IntakeVars builds the template variables an intake prompt sees.
func IntakeVars(input map[string]string) (map[string]any, error) {
	b, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal intake input: %w", err)
	}
	return map[string]any{
		"input":      input,
		"input_json": string(b),
	}, nil
}

// PayloadVars extends IntakeVars with the decoded result.
func PayloadVars(p *model.Payload) (map[string]any, error) {
	if p == nil {
		return nil, fmt.Errorf("payload is nil")
	}
	vars, err := IntakeVars(p.Input)
	if err != nil {
		return nil, err
	}
	result, err := p.Decoded()
	if err != nil {
		return nil, fmt.Errorf("decode payload result: %w", err)
	}
	vars["result"] = result
	vars["result_json"] = string(p.Result)
	vars["title"] = p.Title
	return vars, nil
}

// RenderIntake renders the generation prompt for an intake submission via
// the Eino prompt component so prompt callbacks fire.
func RenderIntake(ctx context.Context, def *tools.Definition, input map[string]string) (string, error) {
	vars, err := IntakeVars(input)
	if err != nil {
		return "", err
	}
	return renderOne(ctx, def.Intake.Prompt, vars)
}

// RenderExtra renders an auxiliary generation prompt from the payload.
func RenderExtra(ctx context.Context, extra *tools.Extra, p *model.Payload) (string, error) {
	vars, err := PayloadVars(p)
	if err != nil {
		return "", err
	}
	return renderOne(ctx, extra.Prompt, vars)
}

// RenderSystem renders the chat system instruction.
func RenderSystem(ctx context.Context, def *tools.Definition, p *model.Payload) (string, error) {
	vars, err := PayloadVars(p)
	if err != nil {
		return "", err
	}
	return renderOne(ctx, def.Chat.System, vars)
}

// RenderOptional renders text against the payload, returning "" for an
// empty template. Used for greetings and welcome lines.
func RenderOptional(ctx context.Context, text string, p *model.Payload) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	vars, err := PayloadVars(p)
	if err != nil {
		return "", err
	}
	return renderOne(ctx, text, vars)
}

// RenderSeed builds the seed history for a chat session.
func RenderSeed(ctx context.Context, def *tools.Definition, p *model.Payload) ([]*schema.Message, error) {
	if def.Chat.Pairs != nil {
		return pairsSeed(def.Chat.Pairs, p)
	}
	if len(def.Chat.Seed) == 0 {
		return nil, nil
	}
	vars, err := PayloadVars(p)
	if err != nil {
		return nil, err
	}

	templates := make([]schema.MessagesTemplate, 0, len(def.Chat.Seed))
	for _, m := range def.Chat.Seed {
		switch m.Role {
		case "assistant":
			templates = append(templates, schema.AssistantMessage(m.Content, nil))
		default:
			templates = append(templates, schema.UserMessage(m.Content))
		}
	}
	tpl := prompt.FromMessages(schema.GoTemplate, templates...)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("seed render: %w", err)
	}
	return msgs, nil
}

func pairsSeed(pairs *tools.Pairs, p *model.Payload) ([]*schema.Message, error) {
	var rows []map[string]any
	if err := json.Unmarshal(p.Result, &rows); err != nil {
		return nil, fmt.Errorf("seed pairs: %w", err)
	}
	msgs := make([]*schema.Message, 0, len(rows)*2)
	for _, row := range rows {
		u, _ := row[pairs.User].(string)
		a, _ := row[pairs.Assistant].(string)
		if strings.TrimSpace(u) == "" || strings.TrimSpace(a) == "" {
			continue
		}
		msgs = append(msgs, schema.UserMessage(u), schema.AssistantMessage(a, nil))
	}
	return msgs, nil
}

func renderOne(ctx context.Context, text string, vars map[string]any) (string, error) {
	tpl := prompt.FromMessages(schema.GoTemplate, schema.SystemMessage(text))
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("prompt render: empty result")
	}
	return msgs[0].Content, nil
}
