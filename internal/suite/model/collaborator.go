package model

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/cloudwego/eino/schema"
)

// StructuredGenerator produces a JSON document matching a schema.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, prompt string, s *Schema) (json.RawMessage, error)
}

// ChatSession is a stateful conversational session. The returned sequence
// is lazy, finite and can be ranged over once.
type ChatSession interface {
	SendStreaming(ctx context.Context, text string) iter.Seq2[string, error]
}

// ChatOpener opens chat sessions seeded with a system instruction and history.
type ChatOpener interface {
	OpenChatSession(ctx context.Context, system string, seed []*schema.Message) (ChatSession, error)
}

// Collaborator is the full Generation Collaborator surface.
type Collaborator interface {
	StructuredGenerator
	ChatOpener
}
