package generation

import (
	"context"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	mu     sync.Mutex
	calls  int
	resp   *genai.GenerateContentResponse
	err    error
	config *genai.GenerateContentConfig
	model  string
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, _ []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.config = config
	f.model = model
	return f.resp, f.err
}

func textResponse(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

// fakeChatModel streams the configured fragments, then failErr if set.
type fakeChatModel struct {
	mu        sync.Mutex
	fragments []string
	failErr   error
	openErr   error
	inputs    [][]*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	return schema.AssistantMessage("", nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}

	if f.failErr == nil {
		msgs := make([]*schema.Message, 0, len(f.fragments))
		for _, frag := range f.fragments {
			msgs = append(msgs, schema.AssistantMessage(frag, nil))
		}
		return schema.StreamReaderFromArray(msgs), nil
	}

	sr, sw := schema.Pipe[*schema.Message](len(f.fragments) + 1)
	go func() {
		defer sw.Close()
		for _, frag := range f.fragments {
			sw.Send(schema.AssistantMessage(frag, nil), nil)
		}
		sw.Send(nil, f.failErr)
	}()
	return sr, nil
}

func (f *fakeChatModel) lastInput() []*schema.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inputs) == 0 {
		return nil
	}
	return f.inputs[len(f.inputs)-1]
}
