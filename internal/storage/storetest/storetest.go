// Package storetest is a behavioural suite every chat.Store implementation
// must pass.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ageniuscoder/duochat/backend/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty, migrated store.
type Factory func(t *testing.T) chat.Store

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s chat.Store)
	}{
		{"UpsertUser", testUpsertUser},
		{"UpsertUserEmailConflict", testUpsertUserEmailConflict},
		{"GetUserNotFound", testGetUserNotFound},
		{"SearchUsers", testSearchUsers},
		{"TouchLastSeen", testTouchLastSeen},
		{"HistoryOrderAndLimit", testHistoryOrderAndLimit},
		{"HistoryIsolatesPairs", testHistoryIsolatesPairs},
		{"UpdateMessageStatusForwardOnly", testUpdateMessageStatusForwardOnly},
		{"UpdateMessageStatusNotFound", testUpdateMessageStatusNotFound},
		{"UpdateMessageStatusWrongRecipient", testUpdateMessageStatusWrongRecipient},
		{"BulkUpdate", testBulkUpdate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func insert(t *testing.T, s chat.Store, from, to, body string, st chat.Status) chat.Message {
	t.Helper()
	m, err := s.InsertMessage(context.Background(), chat.NewMessage{Sender: from, Recipient: to, Body: body, Status: st})
	require.NoError(t, err)
	return m
}

func testUpsertUser(t *testing.T, s chat.Store) {
	ctx := context.Background()

	u, err := s.UpsertUser(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.False(t, u.CreatedAt.IsZero())
	assert.True(t, u.LastSeen.IsZero())

	again, err := s.UpsertUser(ctx, "alice", "alice@new.example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@new.example.com", again.Email)
	assert.True(t, u.CreatedAt.Equal(again.CreatedAt), "creation time survives a re-join")

	got, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@new.example.com", got.Email)
}

func testUpsertUserEmailConflict(t *testing.T, s chat.Store) {
	ctx := context.Background()

	_, err := s.UpsertUser(ctx, "alice", "shared@example.com")
	require.NoError(t, err)

	_, err = s.UpsertUser(ctx, "bob", "shared@example.com")
	assert.ErrorIs(t, err, chat.ErrUserConflict)

	_, err = s.GetUser(ctx, "bob")
	assert.ErrorIs(t, err, chat.ErrUserNotFound)
}

func testGetUserNotFound(t *testing.T, s chat.Store) {
	_, err := s.GetUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, chat.ErrUserNotFound)
}

func testSearchUsers(t *testing.T, s chat.Store) {
	ctx := context.Background()
	for _, name := range []string{"alice", "Alicia", "bob", "al_x"} {
		_, err := s.UpsertUser(ctx, name, name+"@example.com")
		require.NoError(t, err)
	}

	got, err := s.SearchUsers(ctx, "ali", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "Alicia"}, usernames(got))

	got, err = s.SearchUsers(ctx, "_", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"al_x"}, usernames(got), "wildcards are literal")

	got, err = s.SearchUsers(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	all, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func testTouchLastSeen(t *testing.T, s chat.Store) {
	ctx := context.Background()
	_, err := s.UpsertUser(ctx, "alice", "alice@example.com")
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.TouchLastSeen(ctx, "alice", at))

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, at.Equal(u.LastSeen), "got %v", u.LastSeen)

	assert.ErrorIs(t, s.TouchLastSeen(ctx, "ghost", at), chat.ErrUserNotFound)
}

func testHistoryOrderAndLimit(t *testing.T, s chat.Store) {
	ctx := context.Background()
	var ids []string
	for i := range 5 {
		from, to := "alice", "bob"
		if i%2 == 1 {
			from, to = to, from
		}
		ids = append(ids, insert(t, s, from, to, fmt.Sprintf("m%d", i), chat.StatusSent).ID)
	}
	key := chat.NewConversationKey("bob", "alice")

	all, err := s.FindMessagesBetween(ctx, key, 50)
	require.NoError(t, err)
	assert.Equal(t, ids, messageIDs(all))

	recent, err := s.FindMessagesBetween(ctx, key, 3)
	require.NoError(t, err)
	assert.Equal(t, ids[2:], messageIDs(recent), "most recent window, oldest first")
}

func testHistoryIsolatesPairs(t *testing.T, s chat.Store) {
	ctx := context.Background()
	ab := insert(t, s, "alice", "bob", "for bob", chat.StatusSent)
	insert(t, s, "alice", "carol", "for carol", chat.StatusSent)
	insert(t, s, "carol", "bob", "carol to bob", chat.StatusSent)

	got, err := s.FindMessagesBetween(ctx, chat.NewConversationKey("alice", "bob"), 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ab.ID, got[0].ID)
	assert.Equal(t, "for bob", got[0].Body)
}

func testUpdateMessageStatusForwardOnly(t *testing.T, s chat.Store) {
	ctx := context.Background()
	m := insert(t, s, "alice", "bob", "hi", chat.StatusSent)

	got, changed, err := s.UpdateMessageStatus(ctx, m.ID, "bob", chat.StatusSeen)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, chat.StatusSeen, got.Status)

	got, changed, err = s.UpdateMessageStatus(ctx, m.ID, "bob", chat.StatusDelivered)
	require.NoError(t, err)
	assert.False(t, changed, "never moves backwards")
	assert.Equal(t, chat.StatusSeen, got.Status)

	_, changed, err = s.UpdateMessageStatus(ctx, m.ID, "bob", chat.StatusSeen)
	require.NoError(t, err)
	assert.False(t, changed)
}

func testUpdateMessageStatusNotFound(t *testing.T, s chat.Store) {
	_, _, err := s.UpdateMessageStatus(context.Background(), "missing", "bob", chat.StatusSeen)
	assert.ErrorIs(t, err, chat.ErrMessageNotFound)
}

func testUpdateMessageStatusWrongRecipient(t *testing.T, s chat.Store) {
	ctx := context.Background()
	m := insert(t, s, "alice", "bob", "hi", chat.StatusDelivered)

	_, changed, err := s.UpdateMessageStatus(ctx, m.ID, "alice", chat.StatusSeen)
	assert.ErrorIs(t, err, chat.ErrMessageNotFound)
	assert.False(t, changed)

	history, err := s.FindMessagesBetween(ctx, chat.NewConversationKey("alice", "bob"), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, chat.StatusDelivered, history[0].Status, "sender cannot acknowledge its own message")
}

func testBulkUpdate(t *testing.T, s chat.Store) {
	ctx := context.Background()
	sent1 := insert(t, s, "alice", "bob", "1", chat.StatusSent)
	delivered := insert(t, s, "alice", "bob", "2", chat.StatusDelivered)
	fromCarol := insert(t, s, "carol", "bob", "3", chat.StatusSent)
	toAlice := insert(t, s, "bob", "alice", "4", chat.StatusSent)

	got, err := s.UpdateMessagesStatusBulk(ctx, chat.StatusFilter{
		Recipient: "bob",
		From:      []chat.Status{chat.StatusSent},
	}, chat.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, []string{sent1.ID, fromCarol.ID}, messageIDs(got))

	got, err = s.UpdateMessagesStatusBulk(ctx, chat.StatusFilter{
		Recipient: "bob",
		Sender:    "alice",
		From:      chat.StatusesBefore(chat.StatusSeen),
	}, chat.StatusSeen)
	require.NoError(t, err)
	assert.Equal(t, []string{sent1.ID, delivered.ID}, messageIDs(got))
	for _, m := range got {
		assert.Equal(t, chat.StatusSeen, m.Status)
	}

	// Nothing left to move, and other recipients are untouched.
	got, err = s.UpdateMessagesStatusBulk(ctx, chat.StatusFilter{
		Recipient: "bob",
		Sender:    "alice",
		From:      chat.StatusesBefore(chat.StatusSeen),
	}, chat.StatusSeen)
	require.NoError(t, err)
	assert.Empty(t, got)

	history, err := s.FindMessagesBetween(ctx, chat.NewConversationKey("alice", "bob"), 50)
	require.NoError(t, err)
	for _, m := range history {
		if m.ID == toAlice.ID {
			assert.Equal(t, chat.StatusSent, m.Status)
		}
	}
}

func usernames(us []chat.User) []string {
	out := make([]string, 0, len(us))
	for _, u := range us {
		out = append(out, u.Username)
	}
	return out
}

func messageIDs(ms []chat.Message) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}
