package repository

import (
	"context"
	"fmt"
	"sync"

	"pitchhub-relay/internal/domain/message"
)

// MemoryMessageRepository keeps messages in process memory. It backs local
// development (MESSAGE_STORE=memory) and end-to-end tests.
type MemoryMessageRepository struct {
	mu       sync.RWMutex
	seq      uint64
	messages []message.Message
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{}
}

func (r *MemoryMessageRepository) Create(ctx context.Context, m *message.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	m.ID = fmt.Sprintf("%024x", r.seq)
	r.messages = append(r.messages, *m)
	return nil
}

func (r *MemoryMessageRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Messages returns a copy of everything stored so far, oldest first.
func (r *MemoryMessageRepository) Messages() []message.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]message.Message(nil), r.messages...)
}
