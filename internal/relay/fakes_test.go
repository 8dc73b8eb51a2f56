package relay

import (
	"context"
	"fmt"
	"sync"

	"pitchhub-relay/internal/domain/message"
)

type delivery struct {
	Event   string
	Payload any
}

// fakeRooms keeps membership in memory and records what each session got.
type fakeRooms struct {
	mu        sync.Mutex
	members   map[string]map[string]struct{}
	inbox     map[string][]delivery
	published int
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{
		members: make(map[string]map[string]struct{}),
		inbox:   make(map[string][]delivery),
	}
}

func (f *fakeRooms) Subscribe(sessionID, roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[roomID] == nil {
		f.members[roomID] = make(map[string]struct{})
	}
	f.members[roomID][sessionID] = struct{}{}
}

func (f *fakeRooms) Publish(roomID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published++
	for sessionID := range f.members[roomID] {
		f.inbox[sessionID] = append(f.inbox[sessionID], delivery{Event: event, Payload: payload})
	}
}

func (f *fakeRooms) Emit(sessionID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox[sessionID] = append(f.inbox[sessionID], delivery{Event: event, Payload: payload})
}

func (f *fakeRooms) UnsubscribeAll(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for roomID, set := range f.members {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(f.members, roomID)
		}
	}
}

func (f *fakeRooms) received(sessionID string) []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivery(nil), f.inbox[sessionID]...)
}

func (f *fakeRooms) isMember(sessionID, roomID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.members[roomID][sessionID]
	return ok
}

type fakeStore struct {
	mu      sync.Mutex
	err     error
	block   bool
	calls   int
	records []message.Message
}

func (s *fakeStore) Create(ctx context.Context, m *message.Message) error {
	s.mu.Lock()
	s.calls++
	err, block := s.err, s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = fmt.Sprintf("msg-%d", len(s.records)+1)
	s.records = append(s.records, *m)
	return nil
}

type presenceEvent struct {
	Online    bool
	UserID    string
	SessionID string
}

type fakeObserver struct {
	mu     sync.Mutex
	events []presenceEvent
}

func (o *fakeObserver) UserOnline(_ context.Context, userID, sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, presenceEvent{Online: true, UserID: userID, SessionID: sessionID})
}

func (o *fakeObserver) UserOffline(_ context.Context, userID, sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, presenceEvent{Online: false, UserID: userID, SessionID: sessionID})
}
