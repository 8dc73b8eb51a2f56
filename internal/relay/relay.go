package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pitchhub-relay/internal/domain/message"
	relay_errors "pitchhub-relay/pkg/errors"
	"pitchhub-relay/pkg/logger"

	"go.uber.org/zap"
)

// Rooms is the transport's view of room membership. Implementations deliver
// events to sessions; the relay never touches connections directly.
type Rooms interface {
	Subscribe(sessionID, roomID string)
	Publish(roomID, event string, payload any)
	Emit(sessionID, event string, payload any)
	UnsubscribeAll(sessionID string)
}

// MessageStore persists a message and fills in its ID.
type MessageStore interface {
	Create(ctx context.Context, m *message.Message) error
}

// PresenceObserver is told when users come online or go offline. Failures
// are the observer's to log.
type PresenceObserver interface {
	UserOnline(ctx context.Context, userID, sessionID string)
	UserOffline(ctx context.Context, userID, sessionID string)
}

type Options struct {
	// Strict reports malformed registration and join requests back to the
	// session with a relayError event instead of only logging them.
	Strict bool
	// PersistTimeout bounds each message insert. Zero means no bound.
	PersistTimeout time.Duration
	Observer       PresenceObserver
	Now            func() time.Time
}

// Relay registers users, subscribes sessions to two-party rooms and fans
// persisted chat messages out to the room.
type Relay struct {
	presence *Presence
	rooms    Rooms
	store    MessageStore
	opts     Options
	log      *zap.Logger
}

func New(presence *Presence, rooms Rooms, store MessageStore, l *logger.Logger, opts Options) *Relay {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Relay{
		presence: presence,
		rooms:    rooms,
		store:    store,
		opts:     opts,
		log:      l.Logger.With(zap.String("component", "relay")),
	}
}

func (r *Relay) Presence() *Presence {
	return r.presence
}

// Register records that sessionID belongs to userID. An empty userID is
// ignored unless the relay runs in strict mode.
func (r *Relay) Register(ctx context.Context, sessionID, userID string) error {
	if userID == "" {
		r.log.Warn("registration ignored: missing user id", zap.String("session_id", sessionID))
		r.reject(sessionID, errTextNoUser)
		return fmt.Errorf("register: %w", relay_errors.ErrInvalidInput)
	}

	prevSession, prevUser := r.presence.Register(userID, sessionID)
	r.log.Info("user registered",
		zap.String("user_id", userID),
		zap.String("session_id", sessionID),
		zap.String("replaced_session_id", prevSession),
	)

	if r.opts.Observer != nil {
		if prevUser != "" {
			r.opts.Observer.UserOffline(ctx, prevUser, sessionID)
		}
		r.opts.Observer.UserOnline(ctx, userID, sessionID)
	}
	return nil
}

// JoinChat subscribes the session to the room it shares with the partner.
func (r *Relay) JoinChat(ctx context.Context, sessionID string, req JoinChatRequest) error {
	userID, ok := r.presence.UserForSession(sessionID)
	if !ok {
		r.log.Warn("join skipped: session not registered",
			zap.String("session_id", sessionID),
			zap.String("partner_id", req.ChatPartnerID),
		)
		r.reject(sessionID, errTextNotRegistered)
		return fmt.Errorf("join chat: %w", relay_errors.ErrNotRegistered)
	}
	if req.ChatPartnerID == "" {
		r.log.Warn("join skipped: missing partner id",
			zap.String("session_id", sessionID),
			zap.String("user_id", userID),
		)
		r.reject(sessionID, errTextNoPartner)
		return fmt.Errorf("join chat: %w", relay_errors.ErrInvalidInput)
	}

	roomID := RoomID(userID, req.ChatPartnerID)
	r.rooms.Subscribe(sessionID, roomID)
	r.log.Debug("joined room",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.String("room_id", roomID),
	)
	return nil
}

// SendMessage validates, persists and then broadcasts a message to its room.
// Nothing is broadcast unless the insert succeeded; failures are reported to
// the originating session only and are not retried.
func (r *Relay) SendMessage(ctx context.Context, sessionID string, req SendMessageRequest) error {
	if req.SenderID == "" || req.ReceiverID == "" || req.Message == "" {
		r.rooms.Emit(sessionID, EventMessageError, ErrorPayload{TempID: req.TempID, Error: errTextMissingFields})
		return fmt.Errorf("send message: %w", relay_errors.ErrInvalidInput)
	}

	roomID := RoomID(req.SenderID, req.ReceiverID)
	msg := message.NewMessage(req.SenderID, req.ReceiverID, req.Message, r.opts.Now())

	if err := r.persist(ctx, msg); err != nil {
		r.log.Error("message persistence failed",
			zap.String("session_id", sessionID),
			zap.String("sender_id", req.SenderID),
			zap.String("receiver_id", req.ReceiverID),
			zap.String("room_id", roomID),
			zap.String("temp_id", req.TempID),
			zap.Error(err),
		)
		r.rooms.Emit(sessionID, EventMessageError, ErrorPayload{TempID: req.TempID, Error: errTextPersist})
		return fmt.Errorf("send message: %w", err)
	}

	r.rooms.Publish(roomID, EventReceiveMessage, msg.View(req.TempID))
	return nil
}

// Disconnect clears the presence entry owned by the session and drops its
// room subscriptions.
func (r *Relay) Disconnect(ctx context.Context, sessionID string) {
	if userID, ok := r.presence.RemoveSession(sessionID); ok {
		r.log.Info("user disconnected", zap.String("user_id", userID), zap.String("session_id", sessionID))
		if r.opts.Observer != nil {
			r.opts.Observer.UserOffline(ctx, userID, sessionID)
		}
	}
	r.rooms.UnsubscribeAll(sessionID)
}

// RejectPayload reports an undecodable frame. Send requests get a
// messageError so the client can reconcile; anything else follows the
// strict/lenient policy.
func (r *Relay) RejectPayload(sessionID, event string, cause error) {
	r.log.Warn("malformed payload", zap.String("session_id", sessionID), zap.String("event", event), zap.Error(cause))
	if event == EventSendMessage {
		r.rooms.Emit(sessionID, EventMessageError, ErrorPayload{Error: errTextInvalid})
		return
	}
	r.reject(sessionID, errTextInvalid)
}

func (r *Relay) persist(ctx context.Context, msg *message.Message) error {
	// The insert outlives the sender's connection.
	ctx = context.WithoutCancel(ctx)
	if r.opts.PersistTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.PersistTimeout)
		defer cancel()
	}

	err := r.store.Create(ctx, msg)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", relay_errors.ErrTimeout, err)
	}
	return err
}

func (r *Relay) reject(sessionID, text string) {
	if !r.opts.Strict {
		return
	}
	r.rooms.Emit(sessionID, EventRelayError, ErrorPayload{Error: text})
}
