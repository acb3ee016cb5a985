package chat

import (
	"context"
	"time"
)

// Store is the persistence gateway for users and messages.
//
// UpdateMessageStatus and UpdateMessagesStatusBulk must apply forward
// transitions only and must decide on the current persisted status, never a
// cached copy. The returned messages are exactly the ones that changed.
type Store interface {
	UpsertUser(ctx context.Context, username, email string) (User, error)
	GetUser(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]User, error)
	TouchLastSeen(ctx context.Context, username string, at time.Time) error

	InsertMessage(ctx context.Context, in NewMessage) (Message, error)
	// FindMessagesBetween returns the most recent limit messages of the
	// conversation in ascending creation order.
	FindMessagesBetween(ctx context.Context, key ConversationKey, limit int) ([]Message, error)
	// UpdateMessageStatus moves one message addressed to recipient forward to
	// status. changed is false when the message was already at or past status;
	// the current row is returned. A message addressed to someone else is
	// ErrMessageNotFound.
	UpdateMessageStatus(ctx context.Context, id, recipient string, status Status) (msg Message, changed bool, err error)
	UpdateMessagesStatusBulk(ctx context.Context, filter StatusFilter, status Status) ([]Message, error)

	Ping(ctx context.Context) error
}
