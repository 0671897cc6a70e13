package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/schema"

	"github.com/bert-suite/server/internal/suite/model"
	"github.com/bert-suite/server/internal/suite/observers"
	logx "github.com/bert-suite/server/pkg/logger"
)

// ChatSession keeps the running history of one conversation. A turn is
// appended only after its stream completes with some text.
type ChatSession struct {
	client *Client

	mu      sync.Mutex
	history []*schema.Message
}

var _ model.ChatSession = (*ChatSession)(nil)

// History returns a copy of the committed history.
func (s *ChatSession) History() []*schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*schema.Message, len(s.history))
	copy(out, s.history)
	return out
}

// SendStreaming streams the reply to text fragment by fragment. Ranging over
// the result a second time yields ErrStreamReused. Breaking out early drops
// the turn.
func (s *ChatSession) SendStreaming(ctx context.Context, text string) iter.Seq2[string, error] {
	var consumed atomic.Bool
	return func(yield func(string, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield("", ErrStreamReused)
			return
		}
		s.stream(ctx, text, yield)
	}
}

func (s *ChatSession) stream(ctx context.Context, text string, yield func(string, error) bool) {
	user := schema.UserMessage(text)

	s.mu.Lock()
	input := make([]*schema.Message, 0, len(s.history)+1)
	input = append(input, s.history...)
	input = append(input, user)
	s.mu.Unlock()

	cbCtx := callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "chat",
		Type:      "Gemini",
		Component: components.ComponentOfChatModel,
	}, observers.NewAllCallbacks())
	reader, err := s.client.streams.Execute(func() (*schema.StreamReader[*schema.Message], error) {
		return s.client.chat.Stream(cbCtx, input)
	})
	if err != nil {
		logx.Warn().Err(err).Msg("chat stream open failed")
		yield("", fmt.Errorf("open stream: %w", breakerErr(err)))
		return
	}
	defer reader.Close()

	var full strings.Builder
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logx.Warn().Err(err).Msg("chat stream aborted")
			yield("", fmt.Errorf("receive: %w", err))
			return
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		full.WriteString(chunk.Content)
		if !yield(chunk.Content, nil) {
			return
		}
	}

	// An empty reply leaves no turn behind; the view shows its fallback.
	if full.Len() == 0 {
		logx.Debug().Msg("chat stream completed empty, turn not committed")
		return
	}

	s.mu.Lock()
	s.history = append(s.history, user, schema.AssistantMessage(full.String(), nil))
	s.mu.Unlock()
}
