package relay

// Inbound events (client -> server).
const (
	EventStoreUserID = "storeUserId"
	EventJoinChat    = "joinChat"
	EventSendMessage = "sendMessage"
)

// Outbound events (server -> client).
const (
	EventReceiveMessage = "receiveMessage"
	EventMessageError   = "messageError"
	EventRelayError     = "relayError"
)

type JoinChatRequest struct {
	ChatPartnerID string `json:"chatPartnerId"`
}

type SendMessageRequest struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	TempID     string `json:"tempId,omitempty"`
}

// ErrorPayload is sent only to the session that caused the error.
type ErrorPayload struct {
	TempID string `json:"tempId,omitempty"`
	Error  string `json:"error"`
}

// Client-visible error texts. Internal causes are only logged.
const (
	errTextMissingFields = "senderId, receiverId and message are required"
	errTextPersist       = "failed to send message"
	errTextInvalid       = "invalid payload"
	errTextNoUser        = "userId is required"
	errTextNotRegistered = "register with storeUserId before joining a chat"
	errTextNoPartner     = "chatPartnerId is required"
)
