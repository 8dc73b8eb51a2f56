package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	relay_errors "pitchhub-relay/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(c *Client) []Frame {
	var frames []Frame
	for {
		select {
		case data := <-c.send:
			var f Frame
			_ = json.Unmarshal(data, &f)
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func TestHubPublishReachesRoomOnly(t *testing.T) {
	hub := NewHub(nil)
	a, b, c := NewClient(nil), NewClient(nil), NewClient(nil)
	for _, cl := range []*Client{a, b, c} {
		require.NoError(t, hub.Register(cl))
	}

	hub.Subscribe(a.ID, "alice_bob")
	hub.Subscribe(b.ID, "alice_bob")
	hub.Subscribe(c.ID, "bob_carol")
	hub.Subscribe("unknown", "alice_bob")

	hub.Publish("alice_bob", "receiveMessage", map[string]string{"message": "hi"})

	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
	assert.Empty(t, drain(c))
	assert.Equal(t, 2, hub.RoomSubscriberCount("alice_bob"))
	assert.Equal(t, 2, hub.RoomCount())
}

func TestHubEmitTargetsSession(t *testing.T) {
	hub := NewHub(nil)
	a, b := NewClient(nil), NewClient(nil)
	require.NoError(t, hub.Register(a))
	require.NoError(t, hub.Register(b))

	hub.Emit(a.ID, "messageError", map[string]string{"error": "x"})
	hub.Emit("gone", "messageError", nil)

	frames := drain(a)
	require.Len(t, frames, 1)
	assert.Equal(t, "messageError", frames[0].Event)
	assert.Empty(t, drain(b))
}

func TestHubUnsubscribeAndUnregister(t *testing.T) {
	hub := NewHub(nil)
	a, b := NewClient(nil), NewClient(nil)
	require.NoError(t, hub.Register(a))
	require.NoError(t, hub.Register(b))
	hub.Subscribe(a.ID, "r1")
	hub.Subscribe(a.ID, "r2")
	hub.Subscribe(b.ID, "r1")

	hub.UnsubscribeAll(a.ID)
	assert.Equal(t, 1, hub.RoomSubscriberCount("r1"))
	assert.Equal(t, 0, hub.RoomSubscriberCount("r2"))
	assert.Equal(t, 1, hub.RoomCount())

	hub.Unregister(b)
	assert.Equal(t, 0, hub.RoomCount())
	assert.Equal(t, 1, hub.ClientCount())
	select {
	case <-b.Done():
	default:
		t.Fatal("unregister should close the client")
	}

	// A second unregister is harmless.
	hub.Unregister(b)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(nil)
	a := NewClient(nil)
	require.NoError(t, hub.Register(a))
	hub.Subscribe(a.ID, "r")

	for i := 0; i < sendBufferSize+10; i++ {
		hub.Publish("r", "receiveMessage", i)
	}
	assert.Len(t, drain(a), sendBufferSize)
}

func TestHubShutdown(t *testing.T) {
	hub := NewHub(nil)
	a := NewClient(nil)
	require.NoError(t, hub.Register(a))

	// Nobody unregisters a, so Shutdown waits until the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, hub.Shutdown(ctx), context.DeadlineExceeded)
	assert.True(t, hub.Closing())

	select {
	case <-a.Done():
	default:
		t.Fatal("shutdown should close every client")
	}

	assert.ErrorIs(t, hub.Register(NewClient(nil)), relay_errors.ErrShuttingDown)

	hub.Unregister(a)
	assert.NoError(t, hub.Shutdown(context.Background()))
}

func TestHubShutdownWaitsForInFlightReads(t *testing.T) {
	hub := NewHub(nil)
	a, b := NewClient(nil), NewClient(nil)
	require.NoError(t, hub.Register(a))
	require.NoError(t, hub.Register(b))

	shutdownErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		shutdownErr <- hub.Shutdown(ctx)
	}()
	require.Eventually(t, hub.Closing, time.Second, 5*time.Millisecond)

	aDone := make(chan struct{})
	go func() {
		hub.FinishReading(a)
		close(aDone)
	}()

	// b is still handling an event, so a must not tear down yet and
	// neither client is closed.
	select {
	case <-aDone:
		t.Fatal("FinishReading returned before every reader finished")
	case <-time.After(50 * time.Millisecond):
	}
	select {
	case <-b.Done():
		t.Fatal("client closed before in-flight events finished")
	default:
	}

	hub.FinishReading(b)
	<-aDone
	<-b.Done()

	hub.Unregister(a)
	hub.Unregister(b)
	assert.NoError(t, <-shutdownErr)
}
