package redis

import (
	"context"
	"encoding/json"
	"time"

	"pitchhub-relay/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PresenceStatus represents a user's online status
type PresenceStatus struct {
	UserID    string    `json:"user_id"`
	IsOnline  bool      `json:"is_online"`
	LastSeen  time.Time `json:"last_seen"`
	Status    string    `json:"status"`
	SessionID string    `json:"session_id,omitempty"`
}

// PresenceStore mirrors the relay's in-memory presence into Redis so other
// services (the REST API, notification workers) can see who is online.
// The relay writes it through the observer hooks and reads it only for the
// presence lookup endpoint.
type PresenceStore struct {
	client    *goredis.Client
	publisher *Publisher
	ttl       time.Duration
	log       *zap.Logger
	opTimeout time.Duration
}

// Redis key prefixes for presence
const (
	presenceKeyPrefix     = "presence:"
	presenceOnlineSet     = "presence:online"
	PresenceChannelPrefix = "channel:presence:"
	offlineRetention      = 24 * time.Hour
	offlineRetries        = 3
)

func NewPresenceStore(client *goredis.Client, publisher *Publisher, ttl time.Duration, l *logger.Logger) *PresenceStore {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &PresenceStore{
		client:    client,
		publisher: publisher,
		ttl:       ttl,
		log:       l.Logger.With(zap.String("component", "presence")),
		opTimeout: 2 * time.Second,
	}
}

// UserOnline implements relay.PresenceObserver.
func (p *PresenceStore) UserOnline(ctx context.Context, userID, sessionID string) {
	ctx, cancel := p.opContext(ctx)
	defer cancel()
	if err := p.SetOnline(ctx, userID, sessionID); err != nil {
		p.log.Warn("presence online update failed", zap.String("user_id", userID), zap.String("session_id", sessionID), zap.Error(err))
	}
}

// UserOffline implements relay.PresenceObserver.
func (p *PresenceStore) UserOffline(ctx context.Context, userID, sessionID string) {
	ctx, cancel := p.opContext(ctx)
	defer cancel()
	if _, err := p.SetOffline(ctx, userID, sessionID); err != nil {
		p.log.Warn("presence offline update failed", zap.String("user_id", userID), zap.String("session_id", sessionID), zap.Error(err))
	}
}

// SetOnline marks a user as online
func (p *PresenceStore) SetOnline(ctx context.Context, userID, sessionID string) error {
	now := time.Now()
	data, err := json.Marshal(PresenceStatus{
		UserID:    userID,
		IsOnline:  true,
		LastSeen:  now,
		Status:    "online",
		SessionID: sessionID,
	})
	if err != nil {
		return err
	}

	pipe := p.client.Pipeline()
	pipe.Set(ctx, presenceKeyPrefix+userID, data, p.ttl)
	pipe.SAdd(ctx, presenceOnlineSet, userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	return p.publish(ctx, userID, true, now)
}

// SetOffline marks a user as offline, keeping the record for last-seen
// queries. It reports false and changes nothing when the user is online on
// a session other than sessionID: that registration happened after the
// session being torn down.
func (p *PresenceStore) SetOffline(ctx context.Context, userID, sessionID string) (bool, error) {
	now := time.Now()
	data, err := json.Marshal(PresenceStatus{
		UserID:   userID,
		IsOnline: false,
		LastSeen: now,
		Status:   "offline",
	})
	if err != nil {
		return false, err
	}

	key := presenceKeyPrefix + userID
	applied := false
	txf := func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if err != nil && err != goredis.Nil {
			return err
		}
		if err == nil && ownedByOtherSession(current, sessionID) {
			applied = false
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, offlineRetention)
			pipe.SRem(ctx, presenceOnlineSet, userID)
			return nil
		})
		applied = err == nil
		return err
	}

	for i := 0; i < offlineRetries; i++ {
		err = p.client.Watch(ctx, txf, key)
		if err != goredis.TxFailedErr {
			break
		}
	}
	if err != nil || !applied {
		return false, err
	}
	return true, p.publish(ctx, userID, false, now)
}

func ownedByOtherSession(record, sessionID string) bool {
	var status PresenceStatus
	if err := json.Unmarshal([]byte(record), &status); err != nil {
		return false
	}
	return status.IsOnline && status.SessionID != "" && status.SessionID != sessionID
}

// GetPresence gets the presence status of a user
func (p *PresenceStore) GetPresence(ctx context.Context, userID string) (*PresenceStatus, error) {
	data, err := p.client.Get(ctx, presenceKeyPrefix+userID).Result()
	if err == goredis.Nil {
		return &PresenceStatus{UserID: userID, Status: "offline"}, nil
	}
	if err != nil {
		return nil, err
	}

	var status PresenceStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetOnlineCount returns the count of online users
func (p *PresenceStore) GetOnlineCount(ctx context.Context) (int64, error) {
	return p.client.SCard(ctx, presenceOnlineSet).Result()
}

func (p *PresenceStore) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *PresenceStore) publish(ctx context.Context, userID string, isOnline bool, at time.Time) error {
	if p.publisher == nil {
		return nil
	}
	return p.publisher.Publish(ctx, userID, presenceEvent(userID, isOnline, at))
}

func (p *PresenceStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), p.opTimeout)
}

// PresenceEvent is published on channel:presence:<user> for every change.
type PresenceEvent struct {
	EventType     string               `json:"event_type"`
	AggregateType string               `json:"aggregate_type"`
	AggregateID   string               `json:"aggregate_id"`
	OccurredAt    string               `json:"occurred_at"`
	Payload       PresenceEventPayload `json:"payload"`
}

type PresenceEventPayload struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
	Status   string `json:"status"`
}

func presenceEvent(userID string, isOnline bool, at time.Time) PresenceEvent {
	eventType, status := "presence.offline", "offline"
	if isOnline {
		eventType, status = "presence.online", "online"
	}

	return PresenceEvent{
		EventType:     eventType,
		AggregateType: "presence",
		AggregateID:   userID,
		OccurredAt:    at.UTC().Format(time.RFC3339),
		Payload: PresenceEventPayload{
			UserID:   userID,
			IsOnline: isOnline,
			Status:   status,
		},
	}
}
