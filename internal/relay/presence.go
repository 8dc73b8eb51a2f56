package relay

import "sync"

// Presence maps online users to the session they registered on. A user has
// at most one entry (last registration wins) and a session owns at most one
// user. Safe for concurrent use.
type Presence struct {
	mu       sync.RWMutex
	sessions map[string]string // userID -> sessionID
	users    map[string]string // sessionID -> userID
}

func NewPresence() *Presence {
	return &Presence{
		sessions: make(map[string]string),
		users:    make(map[string]string),
	}
}

// Register points userID at sessionID. It returns the session the user was
// previously registered on and the user the session previously owned, if
// either was different.
func (p *Presence) Register(userID, sessionID string) (prevSession, prevUser string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if owner, ok := p.users[sessionID]; ok && owner != userID {
		if p.sessions[owner] == sessionID {
			delete(p.sessions, owner)
		}
		prevUser = owner
	}

	if old, ok := p.sessions[userID]; ok && old != sessionID {
		delete(p.users, old)
		prevSession = old
	}

	p.sessions[userID] = sessionID
	p.users[sessionID] = userID
	return prevSession, prevUser
}

// UserForSession is the reverse lookup used when a session joins a chat.
func (p *Presence) UserForSession(sessionID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	userID, ok := p.users[sessionID]
	return userID, ok
}

func (p *Presence) SessionForUser(userID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sessionID, ok := p.sessions[userID]
	return sessionID, ok
}

// RemoveSession drops the entry owned by sessionID. Entries that have since
// moved to another session are left alone.
func (p *Presence) RemoveSession(sessionID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	userID, ok := p.users[sessionID]
	if !ok {
		return "", false
	}
	delete(p.users, sessionID)
	if p.sessions[userID] == sessionID {
		delete(p.sessions, userID)
	}
	return userID, true
}

// Len returns the number of online users.
func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// Snapshot returns a copy of the user -> session map.
func (p *Presence) Snapshot() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.sessions))
	for userID, sessionID := range p.sessions {
		out[userID] = sessionID
	}
	return out
}
