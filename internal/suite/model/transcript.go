package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

type TranscriptRepository interface {
	// AddMessage appends a finalized message to the session transcript
	AddMessage(ctx context.Context, sessionID string, message *schema.Message) error

	// LoadTranscript retrieves the transcript for a session
	LoadTranscript(ctx context.Context, sessionID string) (*Transcript, error)

	// ClearTranscript removes the transcript for a session
	ClearTranscript(ctx context.Context, sessionID string) error

	// GetMessageCount returns the number of messages in the transcript
	GetMessageCount(ctx context.Context, sessionID string) (int, error)
}

// Transcript represents loaded chat data with metadata.
type Transcript struct {
	SessionID string
	Messages  []*schema.Message
}
