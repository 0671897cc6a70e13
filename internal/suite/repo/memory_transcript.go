package repo

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/bert-suite/server/internal/suite/model"
)

// MemoryTranscriptRepository keeps transcripts in process memory. Used when
// no Redis URL is configured.
type MemoryTranscriptRepository struct {
	mu   sync.RWMutex
	data map[string][]*schema.Message
}

func NewMemoryTranscriptRepository() *MemoryTranscriptRepository {
	return &MemoryTranscriptRepository{data: make(map[string][]*schema.Message)}
}

func (r *MemoryTranscriptRepository) AddMessage(_ context.Context, sessionID string, message *schema.Message) error {
	if message == nil {
		return nil
	}
	cp := *message
	r.mu.Lock()
	r.data[sessionID] = append(r.data[sessionID], &cp)
	r.mu.Unlock()
	return nil
}

func (r *MemoryTranscriptRepository) LoadTranscript(_ context.Context, sessionID string) (*model.Transcript, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows := r.data[sessionID]
	msgs := make([]*schema.Message, 0, len(rows))
	for _, m := range rows {
		cp := *m
		msgs = append(msgs, &cp)
	}
	return &model.Transcript{SessionID: sessionID, Messages: msgs}, nil
}

func (r *MemoryTranscriptRepository) ClearTranscript(_ context.Context, sessionID string) error {
	r.mu.Lock()
	delete(r.data, sessionID)
	r.mu.Unlock()
	return nil
}

func (r *MemoryTranscriptRepository) GetMessageCount(_ context.Context, sessionID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data[sessionID]), nil
}

var _ model.TranscriptRepository = (*MemoryTranscriptRepository)(nil)
