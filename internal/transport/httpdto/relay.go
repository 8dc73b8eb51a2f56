package httpdto

import "time"

// RelayStats is returned by GET /v1/relay/stats.
type RelayStats struct {
	Sessions      int    `json:"sessions"`
	OnlineUsers   int    `json:"online_users"`
	Rooms         int    `json:"rooms"`
	MirroredUsers *int64 `json:"mirrored_online_users,omitempty"`
}

// HealthStatus is returned by GET /health.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// UserPresence is returned by GET /v1/relay/presence/:userId. Online is this
// relay's own view; Mirrored is the shared record, when Redis is enabled.
type UserPresence struct {
	UserID   string            `json:"user_id"`
	Online   bool              `json:"online"`
	Mirrored *MirroredPresence `json:"mirrored,omitempty"`
}

type MirroredPresence struct {
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}
