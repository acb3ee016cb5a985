package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Order(t *testing.T) {
	assert.True(t, StatusSent.Before(StatusDelivered))
	assert.True(t, StatusDelivered.Before(StatusSeen))
	assert.True(t, StatusSent.Before(StatusSeen))

	assert.False(t, StatusSeen.Before(StatusDelivered))
	assert.False(t, StatusDelivered.Before(StatusDelivered))
	assert.False(t, Status("bogus").Before(StatusSeen))
}

func TestStatusesBefore(t *testing.T) {
	assert.Nil(t, StatusesBefore(StatusSent))
	assert.Equal(t, []Status{StatusSent}, StatusesBefore(StatusDelivered))
	assert.Equal(t, []Status{StatusSent, StatusDelivered}, StatusesBefore(StatusSeen))
	assert.Nil(t, StatusesBefore("bogus"))
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("delivered")
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, st)

	_, err = ParseStatus("read")
	assert.Error(t, err)
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, StatusDelivered, InitialStatus(true))
	assert.Equal(t, StatusSent, InitialStatus(false))
}

func TestConversationKey(t *testing.T) {
	k1 := NewConversationKey("bob", "alice")
	k2 := NewConversationKey("alice", "bob")

	assert.Equal(t, k1, k2)
	assert.Equal(t, "dm:alice:bob", k1.Room())

	a, b := k1.Users()
	assert.Equal(t, "alice", a)
	assert.Equal(t, "bob", b)

	assert.True(t, k1.Includes("bob"))
	assert.False(t, k1.Includes("carol"))
}

func TestValidUsername(t *testing.T) {
	for _, ok := range []string{"alice", "a", "bob_99", "x.y-z"} {
		assert.True(t, ValidUsername(ok), ok)
	}
	for _, bad := range []string{"", "dm:alice", "has space", "ünïcode", "abcdefghijklmnopqrstuvwxyz0123456"} {
		assert.False(t, ValidUsername(bad), bad)
	}
}

func TestError_Code(t *testing.T) {
	err := newError(ErrorPersistence, "down", ErrUserNotFound)

	assert.True(t, IsCode(err, ErrorPersistence))
	assert.False(t, IsCode(err, ErrorValidation))
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Contains(t, err.Error(), "PERSISTENCE_UNAVAILABLE")
}
