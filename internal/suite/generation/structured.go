package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/genai"

	"github.com/bert-suite/server/internal/suite/model"
	logx "github.com/bert-suite/server/pkg/logger"
)

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// GenerateStructured asks the model for a JSON document shaped by s, strips
// Markdown fences, parses and validates it.
func (c *Client) GenerateStructured(ctx context.Context, prompt string, s *model.Schema) (json.RawMessage, error) {
	if s == nil {
		return nil, fmt.Errorf("response schema is nil")
	}
	if c.gen == nil {
		return nil, fmt.Errorf("content generator is nil")
	}

	temperature := c.temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGenaiSchema(s),
	}

	resp, err := c.structured.Execute(func() (*genai.GenerateContentResponse, error) {
		return c.gen.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	})
	if err != nil {
		logx.Warn().Err(err).Str("model", c.model).Msg("structured generation failed")
		return nil, fmt.Errorf("generate content: %w", breakerErr(err))
	}

	text := stripCodeFences(responseText(resp))
	if text == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, ErrEmptyResponse)
	}

	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if err := c.validator.ValidateValue(decoded, s); err != nil {
		return nil, err
	}

	return json.RawMessage(text), nil
}

// responseText concatenates the non-thought text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// stripCodeFences removes markdown code fences if the model wrapped its output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

func toGenaiSchema(s *model.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(s.Type)),
		Description: s.Description,
		Required:    s.Required,
	}
	if len(s.Enum) > 0 {
		out.Enum = s.Enum
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	if s.Items != nil {
		out.Items = toGenaiSchema(s.Items)
	}
	return out
}
