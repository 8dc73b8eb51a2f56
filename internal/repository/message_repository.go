package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"pitchhub-relay/internal/domain/message"
	relay_errors "pitchhub-relay/pkg/errors"
)

const createChatMessagesTable = `
CREATE TABLE IF NOT EXISTS chat_messages (
	id          BIGSERIAL PRIMARY KEY,
	sender_id   TEXT        NOT NULL,
	receiver_id TEXT        NOT NULL,
	message     TEXT        NOT NULL,
	is_read     BOOLEAN     NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS chat_messages_pair_idx
	ON chat_messages (sender_id, receiver_id, created_at);`

const insertChatMessage = `
INSERT INTO chat_messages (sender_id, receiver_id, message, is_read, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`

type PostgresMessageRepository struct {
	db DBTX
}

func NewPostgresMessageRepository(db DBTX) *PostgresMessageRepository {
	return &PostgresMessageRepository{db: db}
}

// EnsureSchema creates the chat_messages table and its index when missing.
func (r *PostgresMessageRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createChatMessagesTable); err != nil {
		return fmt.Errorf("create chat_messages: %w", err)
	}
	return nil
}

func (r *PostgresMessageRepository) Create(ctx context.Context, m *message.Message) error {
	var id int64
	err := r.db.QueryRow(ctx, insertChatMessage,
		m.SenderID, m.ReceiverID, m.Body, m.IsRead, m.CreatedAt,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return relay_errors.ErrAlreadyExists
		}
		return err
	}
	m.ID = strconv.FormatInt(id, 10)
	return nil
}

func (r *PostgresMessageRepository) Ping(ctx context.Context) error {
	p, ok := r.db.(Pinger)
	if !ok {
		return errors.New("postgres handle does not support ping")
	}
	return p.Ping(ctx)
}
