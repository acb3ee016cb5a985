package chat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSend_FullQueueClosesClient(t *testing.T) {
	c := newClient("slow", nil, nil, discardLogger(), 1, "")
	f := testFrame(t, EventTyping)

	require.NoError(t, c.Send(f))
	assert.ErrorIs(t, c.Send(f), ErrChannelClosed, "queue is full")

	select {
	case <-c.done:
	default:
		t.Fatal("slow client was not closed")
	}
	assert.ErrorIs(t, c.Send(f), ErrChannelClosed)
}

func TestClientSend_ConcurrentWithJoin(t *testing.T) {
	c := newClient("slow", nil, nil, discardLogger(), 1, "")
	f := testFrame(t, EventUserList)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Mirrors the read pump switching identity.
		for _, u := range []string{"alice", "bob", "carol", ""} {
			c.username = u
		}
	}()
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_ = c.Send(f)
			}
		}()
	}
	wg.Wait()

	assert.ErrorIs(t, c.Send(f), ErrChannelClosed)
}
