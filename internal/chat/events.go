package chat

import (
	"encoding/json"
	"time"
)

// Inbound events (client -> server).
const (
	EventJoin        = "join"
	EventLoadChat    = "loadChat"
	EventMessageSeen = "messageSeen"
)

// Events used in both directions.
const (
	EventPrivateMessage = "privateMessage"
	EventTyping         = "typing"
)

// Outbound events (server -> client).
const (
	EventUserList      = "userList"
	EventOnlineUsers   = "onlineUsers"
	EventUserStatus    = "userStatus"
	EventChatHistory   = "chatHistory"
	EventMessageStatus = "messageStatus"
	EventError         = "error"
)

const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// Frame is the wire unit in both directions: {"event": ..., "data": ...}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals payload into a frame for event.
func NewFrame(event string, payload any) (Frame, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: b}, nil
}

// ---- inbound payloads ----

type JoinRequest struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,email,max=254"`
}

type SendRequest struct {
	Sender    string `json:"sender" validate:"required,username"`
	Recipient string `json:"recipient" validate:"required,username"`
	Message   string `json:"message" validate:"required"`
}

type LoadChatRequest struct {
	Sender    string `json:"sender" validate:"required,username"`
	Recipient string `json:"recipient" validate:"required,username"`
}

type SeenRequest struct {
	MessageID string `json:"messageId" validate:"required"`
	Sender    string `json:"sender" validate:"required,username"`
	Recipient string `json:"recipient" validate:"required,username"`
}

type TypingRequest struct {
	Username  string `json:"username" validate:"required,username"`
	Recipient string `json:"recipient" validate:"required,username"`
}

// ---- outbound payloads ----

type UserPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Online   bool   `json:"online"`
}

type UserStatusPayload struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

type MessagePayload struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Message   string    `json:"message"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type StatusPayload struct {
	ID        string `json:"id"`
	Status    Status `json:"status"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
}

type TypingPayload struct {
	Username string `json:"username"`
}

func toMessagePayload(m Message) MessagePayload {
	return MessagePayload{
		ID:        m.ID,
		Sender:    m.Sender,
		Recipient: m.Recipient,
		Message:   m.Body,
		Status:    m.Status,
		Timestamp: m.CreatedAt,
	}
}

func toMessagePayloads(msgs []Message) []MessagePayload {
	out := make([]MessagePayload, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessagePayload(m))
	}
	return out
}
