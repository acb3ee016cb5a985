package chat

import (
	"fmt"
	"slices"
	"time"
)

// Status is the delivery state of a message. Statuses are totally ordered
// Sent < Delivered < Seen and only ever move forward.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
)

var statusOrder = []Status{StatusSent, StatusDelivered, StatusSeen}

func (s Status) rank() int {
	return slices.Index(statusOrder, s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool { return s.rank() >= 0 }

// Before reports whether s strictly precedes o.
func (s Status) Before(o Status) bool {
	return s.Valid() && o.Valid() && s.rank() < o.rank()
}

// StatusesBefore returns every status that can still transition to target.
func StatusesBefore(target Status) []Status {
	r := target.rank()
	if r <= 0 {
		return nil
	}
	return slices.Clone(statusOrder[:r])
}

// ParseStatus converts a stored status string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("chat: unknown status %q", s)
	}
	return st, nil
}

// User is the durable record for an identity.
type User struct {
	Username  string
	Email     string
	CreatedAt time.Time
	LastSeen  time.Time
}

// Message is a persisted private message. ID and CreatedAt are assigned by the store.
type Message struct {
	ID        string
	Sender    string
	Recipient string
	Body      string
	Status    Status
	CreatedAt time.Time
}

// NewMessage is the input to Store.InsertMessage.
type NewMessage struct {
	Sender    string
	Recipient string
	Body      string
	Status    Status
}

// StatusFilter selects messages for a bulk status update. Sender is optional.
type StatusFilter struct {
	Recipient string
	Sender    string
	From      []Status
}

// ConversationKey is the normalized unordered pair of a private conversation.
type ConversationKey struct {
	a, b string
}

// NewConversationKey builds the key for the pair regardless of argument order.
func NewConversationKey(x, y string) ConversationKey {
	if y < x {
		x, y = y, x
	}
	return ConversationKey{a: x, b: y}
}

// Users returns both parties in sorted order.
func (k ConversationKey) Users() (string, string) { return k.a, k.b }

// Includes reports whether user is one of the two parties.
func (k ConversationKey) Includes(user string) bool { return user == k.a || user == k.b }

// Room is the router group name for the conversation. Usernames cannot contain
// ':' so a room never collides with a user group.
func (k ConversationKey) Room() string { return "dm:" + k.a + ":" + k.b }

// TypingSignal is an ephemeral typing notice, never persisted.
type TypingSignal struct {
	From string
	To   string
}
