package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher sends JSON notifications on channels sharing one prefix, e.g.
// "channel:presence:" + user ID.
type Publisher struct {
	client *redis.Client
	prefix string
}

func NewPublisher(client *redis.Client, prefix string) *Publisher {
	return &Publisher{client: client, prefix: prefix}
}

func (p *Publisher) Channel(topic string) string {
	return p.prefix + topic
}

func (p *Publisher) Publish(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", p.Channel(topic), err)
	}
	return p.client.Publish(ctx, p.Channel(topic), payload).Err()
}
