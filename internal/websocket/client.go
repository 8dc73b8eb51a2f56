package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// errStopped is returned by ReadLoop once StopReading has been called.
var errStopped = errors.New("websocket: reading stopped")

// Client is one relay session: a websocket connection plus its outbound
// queue. The hub owns the rooms set; only the write loop writes to conn.
type Client struct {
	ID    string
	conn  *websocket.Conn
	send  chan []byte
	rooms map[string]struct{}

	done      chan struct{}
	closeOnce sync.Once

	readMu   sync.Mutex
	stopped  bool
	readOnce sync.Once
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:    uuid.New().String(),
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		rooms: make(map[string]struct{}),
		done:  make(chan struct{}),
	}
}

// enqueue queues msg without blocking. It reports false when the buffer is
// full or the client is closing.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close asks the write loop to flush, send a close frame and drop the
// connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// StopReading makes ReadLoop return before it reads another frame. A frame
// already being handled runs to completion. Safe to call more than once.
func (c *Client) StopReading() {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	c.stopped = true
	if c.conn != nil {
		_ = c.conn.SetReadDeadline(time.Now())
	}
}

// extendReadDeadline pushes the read deadline out by pongWait unless
// reading was stopped.
func (c *Client) extendReadDeadline() bool {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	if c.stopped {
		return false
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	return true
}

// ReadLoop reads frames until the connection fails, is closed or
// StopReading is called, and hands each one to handle, in order.
func (c *Client) ReadLoop(handle func(data []byte)) error {
	c.conn.SetReadLimit(maxMessageSize)
	if !c.extendReadDeadline() {
		return errStopped
	}
	c.conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if !c.extendReadDeadline() {
			return errStopped
		}
		if err != nil {
			return err
		}
		handle(data)
	}
}

// WriteLoop drains the send queue and keeps the connection alive with pings.
// On Close it flushes what is already queued before the close frame.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
				time.Now().Add(writeWait),
			)
			return
		}
	}
}

func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}
