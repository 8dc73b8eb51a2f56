package repository

import (
	"context"

	"pitchhub-relay/internal/domain/message"
)

// MessageRepository is the relay's write path into the message collection.
// History reads belong to the REST API and are not part of this interface.
type MessageRepository interface {
	Create(ctx context.Context, m *message.Message) error
	Ping(ctx context.Context) error
}
