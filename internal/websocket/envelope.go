package websocket

import (
	"bytes"
	"encoding/json"
	"errors"

	"pitchhub-relay/internal/relay"
)

// Frame is the wire envelope in both directions: a named event and its data.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encodeFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: event, Data: payload})
}

func decodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	if f.Event == "" {
		return Frame{}, errors.New("frame has no event name")
	}
	return f, nil
}

func isEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeUserID accepts either a bare JSON string or {"userId": "..."}.
func decodeUserID(raw json.RawMessage) (string, error) {
	if isEmpty(raw) {
		return "", nil
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id, nil
	}
	var obj struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", err
	}
	return obj.UserID, nil
}

func decodeJoinChat(raw json.RawMessage) (relay.JoinChatRequest, error) {
	var req relay.JoinChatRequest
	if isEmpty(raw) {
		return req, nil
	}
	err := json.Unmarshal(raw, &req)
	return req, err
}

type sendMessageData struct {
	SenderID   string          `json:"senderId"`
	ReceiverID string          `json:"receiverId"`
	Message    string          `json:"message"`
	TempID     json.RawMessage `json:"tempId"`
}

func decodeSendMessage(raw json.RawMessage) (relay.SendMessageRequest, error) {
	if isEmpty(raw) {
		return relay.SendMessageRequest{}, nil
	}
	var d sendMessageData
	if err := json.Unmarshal(raw, &d); err != nil {
		return relay.SendMessageRequest{}, err
	}
	return relay.SendMessageRequest{
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Message:    d.Message,
		TempID:     correlationID(d.TempID),
	}, nil
}

// correlationID normalizes a client tempId. Browsers often send numeric ids
// (Date.now()), which are kept in their literal form. Other JSON types
// are dropped.
func correlationID(raw json.RawMessage) string {
	if isEmpty(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		return n.String()
	}
	return ""
}
