package websocket

import (
	"context"
	"net/http"

	"pitchhub-relay/internal/middleware"
	"pitchhub-relay/internal/relay"
	"pitchhub-relay/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Handler struct {
	relay    *relay.Relay
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *Logger
}

// NewHandler builds the upgrade handler. Browser connections are accepted
// only from allowedOrigins; requests without an Origin header always pass.
func NewHandler(r *relay.Relay, hub *Hub, allowedOrigins []string, l *Logger) *Handler {
	if l == nil {
		l = NewLogger(nil)
	}
	return &Handler{
		relay: r,
		hub:   hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(req *http.Request) bool {
				return middleware.OriginAllowed(allowedOrigins, req.Header.Get("Origin"))
			},
		},
		logger: l,
	}
}

// Connect upgrades the request and serves the session until it disconnects.
func (h *Handler) Connect(c *gin.Context) {
	if h.hub.Closing() {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "", zap.Error(err), zap.String("origin", c.GetHeader("Origin")))
		return
	}

	client := NewClient(conn)
	if err := h.hub.Register(client); err != nil {
		h.logger.Warn("connection refused", client.ID, zap.Error(err))
		client.Close()
		client.WriteLoop()
		return
	}

	ctx := context.WithValue(c.Request.Context(), logger.SessionIdKey, client.ID)
	go client.WriteLoop()

	err = client.ReadLoop(func(data []byte) {
		h.dispatch(ctx, client, data)
	})
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		h.logger.Warn("connection lost", client.ID, zap.Error(err))
	}
	h.hub.FinishReading(client)

	h.relay.Disconnect(ctx, client.ID)
	h.hub.Unregister(client)
}

func (h *Handler) dispatch(ctx context.Context, client *Client, data []byte) {
	frame, err := decodeFrame(data)
	if err != nil {
		h.logger.Warn("malformed frame ignored", client.ID, zap.Error(err))
		return
	}

	switch frame.Event {
	case relay.EventStoreUserID:
		userID, err := decodeUserID(frame.Data)
		if err != nil {
			h.relay.RejectPayload(client.ID, frame.Event, err)
			return
		}
		h.logRejected(frame.Event, client.ID, h.relay.Register(ctx, client.ID, userID))

	case relay.EventJoinChat:
		req, err := decodeJoinChat(frame.Data)
		if err != nil {
			h.relay.RejectPayload(client.ID, frame.Event, err)
			return
		}
		h.logRejected(frame.Event, client.ID, h.relay.JoinChat(ctx, client.ID, req))

	case relay.EventSendMessage:
		req, err := decodeSendMessage(frame.Data)
		if err != nil {
			h.relay.RejectPayload(client.ID, frame.Event, err)
			return
		}
		h.logRejected(frame.Event, client.ID, h.relay.SendMessage(ctx, client.ID, req))

	default:
		h.logger.Warn("unknown event ignored", client.ID, zap.String("name", frame.Event))
	}
}

// logRejected records the outcome of an event the relay refused. The relay
// has already told the client and logged the cause.
func (h *Handler) logRejected(event, sessionID string, err error) {
	if err != nil {
		h.logger.Debug("event rejected", sessionID, zap.String("name", event), zap.Error(err))
	}
}
