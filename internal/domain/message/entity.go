package message

import (
	"time"
)

// ISOTimestamp matches the millisecond ISO-8601 form browsers produce with
// Date.prototype.toISOString.
const ISOTimestamp = "2006-01-02T15:04:05.000Z07:00"

// Message represents a persisted direct chat message between two users.
// ID is assigned by the store on insert.
type Message struct {
	ID         string    `bson:"_id,omitempty" json:"id"`
	SenderID   string    `bson:"senderId" json:"senderId"`
	ReceiverID string    `bson:"receiverId" json:"receiverId"`
	Body       string    `bson:"message" json:"message"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
	IsRead     bool      `bson:"isRead" json:"isRead"`
}

// View is the outward shape of a message as delivered to clients.
type View struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	IsRead     bool   `json:"isRead"`
	TempID     string `json:"tempId,omitempty"`
}

func NewMessage(senderID, receiverID, body string, now time.Time) *Message {
	return &Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		CreatedAt:  now.UTC(),
		IsRead:     false,
	}
}

// View builds the client payload, echoing the caller's correlation id.
func (m *Message) View(tempID string) View {
	return View{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Message:    m.Body,
		Timestamp:  m.CreatedAt.UTC().Format(ISOTimestamp),
		IsRead:     m.IsRead,
		TempID:     tempID,
	}
}
