package websocket

import (
	"context"
	"sync"

	relay_errors "pitchhub-relay/pkg/errors"

	"go.uber.org/zap"
)

// Hub tracks connected clients and the rooms they are subscribed to. It is
// the relay's Rooms implementation.
type Hub struct {
	mu sync.RWMutex

	// clients maps session ID to client
	clients map[string]*Client

	// rooms maps room ID to the set of clients subscribed to it
	rooms map[string]map[*Client]struct{}

	closing bool

	// reading counts read loops still able to dispatch events; active counts
	// handlers that have not unregistered yet.
	reading   sync.WaitGroup
	active    sync.WaitGroup
	drained   chan struct{}
	drainOnce sync.Once

	logger *Logger
}

func NewHub(l *Logger) *Hub {
	if l == nil {
		l = NewLogger(nil)
	}
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[*Client]struct{}),
		drained: make(chan struct{}),
		logger:  l,
	}
}

// Register adds a new client. It fails once Shutdown has started.
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closing {
		return relay_errors.ErrShuttingDown
	}
	h.clients[client.ID] = client
	h.reading.Add(1)
	h.active.Add(1)
	h.logger.Info("client connected", client.ID)
	return nil
}

// Unregister removes a client and all its subscriptions and stops its
// write loop.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.ID]
	if ok {
		h.leaveAll(client)
		delete(h.clients, client.ID)
	}
	h.mu.Unlock()

	client.Close()
	if ok {
		h.doneReading(client)
		h.logger.Info("client disconnected", client.ID)
		h.active.Done()
	}
}

// FinishReading is called once the client's read loop has returned. During
// shutdown it blocks until every other session has finished its in-flight
// event, so their broadcasts still reach this client.
func (h *Hub) FinishReading(client *Client) {
	h.doneReading(client)
	if h.Closing() {
		<-h.drained
	}
}

func (h *Hub) doneReading(client *Client) {
	client.readOnce.Do(h.reading.Done)
}

// Subscribe adds the session to a room. Unknown sessions are ignored.
func (h *Hub) Subscribe(sessionID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[sessionID]
	if !ok {
		return
	}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]struct{})
	}
	h.rooms[roomID][client] = struct{}{}
	client.rooms[roomID] = struct{}{}
}

// UnsubscribeAll removes the session from every room it joined.
func (h *Hub) UnsubscribeAll(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.clients[sessionID]; ok {
		h.leaveAll(client)
	}
}

// Publish sends an event to every client subscribed to the room. The
// subscriber set is copied before any send.
func (h *Hub) Publish(roomID, event string, payload any) {
	data, err := encodeFrame(event, payload)
	if err != nil {
		h.logger.Error("encode frame failed", "", err, zap.String("room_id", roomID), zap.String("name", event))
		return
	}

	h.mu.RLock()
	subscribers := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		subscribers = append(subscribers, c)
	}
	h.mu.RUnlock()

	for _, c := range subscribers {
		h.deliver(c, event, data)
	}
}

// Emit sends an event to a single session.
func (h *Hub) Emit(sessionID, event string, payload any) {
	data, err := encodeFrame(event, payload)
	if err != nil {
		h.logger.Error("encode frame failed", sessionID, err, zap.String("name", event))
		return
	}

	h.mu.RLock()
	client, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.deliver(client, event, data)
}

func (h *Hub) deliver(c *Client, event string, data []byte) {
	if !c.enqueue(data) {
		h.logger.Warn("client send buffer full or closing, message dropped", c.ID, zap.String("name", event))
	}
}

// Shutdown stops accepting clients and stops reading from the connected
// ones. Once their in-flight events are handled it closes every client, so
// queued emits are flushed before the close frame, and waits for their
// handlers to unregister or for ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.StopReading()
	}
	err := waitCtx(ctx, &h.reading)
	h.drainOnce.Do(func() { close(h.drained) })

	for _, c := range clients {
		c.Close()
	}
	if err != nil {
		return err
	}
	return waitCtx(ctx, &h.active)
}

func waitCtx(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Closing reports whether Shutdown has started.
func (h *Hub) Closing() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closing
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of rooms with at least one subscriber
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// RoomSubscriberCount returns the number of subscribers for a room
func (h *Hub) RoomSubscriberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// leaveAll must be called with h.mu held.
func (h *Hub) leaveAll(client *Client) {
	for roomID := range client.rooms {
		if subscribers, ok := h.rooms[roomID]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.rooms, roomID)
			}
		}
		delete(client.rooms, roomID)
	}
}
