package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pitchhub-relay/config"
	"pitchhub-relay/internal/redis"
	"pitchhub-relay/internal/relay"
	"pitchhub-relay/internal/repository"
	"pitchhub-relay/internal/websocket"
	"pitchhub-relay/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct{ err error }

func (f fakeChecker) Ping(context.Context) error { return f.err }

type fakeMirror struct {
	n        int64
	statuses map[string]*redis.PresenceStatus
}

func (f fakeMirror) GetOnlineCount(context.Context) (int64, error) { return f.n, nil }

func (f fakeMirror) GetPresence(_ context.Context, userID string) (*redis.PresenceStatus, error) {
	if st, ok := f.statuses[userID]; ok {
		return st, nil
	}
	return nil, errors.New("redis: connection refused")
}

// blockingChecker holds a health request open until release is closed.
type blockingChecker struct {
	entered chan struct{}
	release chan struct{}
}

func (b blockingChecker) Ping(context.Context) error {
	close(b.entered)
	<-b.release
	return nil
}

func newTestServer(checks map[string]Checker, mirror PresenceMirror) (*Server, *relay.Relay, *websocket.Hub) {
	cfg := &config.Config{
		AppMode:         TestMode,
		SocketPort:      "0",
		AllowedOrigins:  []string{"http://localhost:3000"},
		ShutdownTimeout: time.Second,
	}
	hub := websocket.NewHub(nil)
	rel := relay.New(relay.NewPresence(), hub, repository.NewMemoryMessageRepository(), logger.NewNop(), relay.Options{})
	srv := New(cfg, logger.NewNop(), Dependencies{
		Relay:     rel,
		Hub:       hub,
		WSHandler: websocket.NewHandler(rel, hub, cfg.AllowedOrigins, nil),
		Checks:    checks,
		Mirror:    mirror,
	})
	return srv, rel, hub
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr, body
}

func TestPing(t *testing.T) {
	srv, _, _ := newTestServer(nil, nil)
	rr, body := get(t, srv.Handler(), "/ping")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(map[string]Checker{"message_store": fakeChecker{}}, nil)
	rr, body := get(t, srv.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "ok", data["checks"].(map[string]any)["message_store"])
}

func TestHealthReportsFailingDependency(t *testing.T) {
	srv, _, _ := newTestServer(map[string]Checker{
		"message_store": fakeChecker{},
		"redis":         fakeChecker{err: errors.New("connection refused")},
	}, nil)
	rr, body := get(t, srv.Handler(), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "UNHEALTHY", body["code"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "unhealthy", data["status"])
	assert.Equal(t, "connection refused", data["checks"].(map[string]any)["redis"])
}

func TestStats(t *testing.T) {
	srv, rel, _ := newTestServer(nil, fakeMirror{n: 7})
	require.NoError(t, rel.Register(context.Background(), "s1", "alice"))

	rr, body := get(t, srv.Handler(), "/v1/relay/stats")
	assert.Equal(t, http.StatusOK, rr.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["online_users"])
	assert.Equal(t, float64(0), data["sessions"])
	assert.Equal(t, float64(7), data["mirrored_online_users"])
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv, _, hub := newTestServer(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, hub.Closing())
}

func TestPresenceLookup(t *testing.T) {
	lastSeen := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	srv, rel, _ := newTestServer(nil, fakeMirror{statuses: map[string]*redis.PresenceStatus{
		"alice": {UserID: "alice", IsOnline: true, Status: "online", LastSeen: lastSeen},
	}})
	require.NoError(t, rel.Register(context.Background(), "s1", "alice"))

	rr, body := get(t, srv.Handler(), "/v1/relay/presence/alice")
	assert.Equal(t, http.StatusOK, rr.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "alice", data["user_id"])
	assert.Equal(t, true, data["online"])
	mirrored := data["mirrored"].(map[string]any)
	assert.Equal(t, "online", mirrored["status"])
	assert.Equal(t, "2026-03-04T05:06:07Z", mirrored["last_seen"])

	rr, body = get(t, srv.Handler(), "/v1/relay/presence/bob")
	assert.Equal(t, http.StatusOK, rr.Code)
	data = body["data"].(map[string]any)
	assert.Equal(t, false, data["online"])
	assert.NotContains(t, data, "mirrored")
}

func TestShutdownClosesListenerAfterSessionDeadline(t *testing.T) {
	checker := blockingChecker{entered: make(chan struct{}), release: make(chan struct{})}
	srv, _, _ := newTestServer(map[string]Checker{"slow": checker}, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.httpServer.Serve(ln) }()

	respCh := make(chan int, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			respCh <- 0
			return
		}
		_ = resp.Body.Close()
		respCh <- resp.StatusCode
	}()
	<-checker.entered

	// The session deadline is already spent; the in-flight request must
	// still be allowed to finish.
	expired, cancel := context.WithCancel(context.Background())
	cancel()
	time.AfterFunc(200*time.Millisecond, func() { close(checker.release) })

	assert.NoError(t, srv.Shutdown(expired))
	assert.Equal(t, http.StatusOK, <-respCh)
}
