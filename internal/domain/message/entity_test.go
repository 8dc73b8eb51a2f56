package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewMessageDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	m := NewMessage("alice", "bob", "hi", now)

	assert.Empty(t, m.ID)
	assert.False(t, m.IsRead)
	assert.Equal(t, time.UTC, m.CreatedAt.Location())
	assert.True(t, m.CreatedAt.Equal(now))
}

func TestViewFormatsTimestampAndEchoesTempID(t *testing.T) {
	m := NewMessage("alice", "bob", "hi", time.Date(2026, 3, 1, 8, 30, 5, 120_000_000, time.UTC))
	m.ID = "65f0c0ffee"

	v := m.View("t1")
	assert.Equal(t, "65f0c0ffee", v.ID)
	assert.Equal(t, "2026-03-01T08:30:05.120Z", v.Timestamp)
	assert.Equal(t, "hi", v.Message)
	assert.Equal(t, "t1", v.TempID)

	assert.Empty(t, m.View("").TempID)
}
