package chat

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	id string

	mu     sync.Mutex
	frames []Frame
	closed bool
	err    error
}

func newFakeChannel(id string) *fakeChannel { return &fakeChannel{id: id} }

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeChannel) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f.Event)
	}
	return out
}

func testFrame(t *testing.T, event string) Frame {
	t.Helper()
	f, err := NewFrame(event, map[string]string{"k": "v"})
	require.NoError(t, err)
	return f
}

func TestRouter_JoinLeave(t *testing.T) {
	r := NewRouter(discardLogger(), nil)
	ch := newFakeChannel("c1")

	assert.True(t, r.Join("alice", ch))
	assert.False(t, r.Join("alice", ch), "re-join is not new")
	assert.Equal(t, 1, r.Members("alice"))

	assert.True(t, r.Leave("alice", ch))
	assert.False(t, r.Leave("alice", ch))
	assert.Equal(t, 0, r.Members("alice"))
}

func TestRouter_BroadcastDeduplicates(t *testing.T) {
	r := NewRouter(discardLogger(), nil)
	a := newFakeChannel("a")
	b := newFakeChannel("b")

	key := NewConversationKey("alice", "bob")
	r.Join("alice", a)
	r.Join("bob", b)
	r.JoinRoom(key, a)
	r.JoinRoom(key, b)

	n := r.Broadcast([]string{key.Room(), "alice", "bob"}, testFrame(t, EventPrivateMessage))

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{EventPrivateMessage}, a.events())
	assert.Equal(t, []string{EventPrivateMessage}, b.events())
}

func TestRouter_BroadcastUnknownGroup(t *testing.T) {
	r := NewRouter(discardLogger(), nil)
	assert.Zero(t, r.Broadcast([]string{"nobody"}, testFrame(t, EventTyping)))
}

func TestRouter_SkipsStaleChannels(t *testing.T) {
	r := NewRouter(discardLogger(), nil)
	live := newFakeChannel("live")
	stale := newFakeChannel("stale")
	stale.closed = true
	broken := newFakeChannel("broken")
	broken.err = errors.New("boom")

	r.Join("alice", live)
	r.Join("alice", stale)
	r.Join("alice", broken)

	n := r.Broadcast([]string{"alice"}, testFrame(t, EventUserList))

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{EventUserList}, live.events())
}

func TestRouter_RemoveDropsEveryGroup(t *testing.T) {
	r := NewRouter(discardLogger(), nil)
	ch := newFakeChannel("c1")
	key := NewConversationKey("alice", "bob")

	r.Join("alice", ch)
	r.JoinRoom(key, ch)
	r.Remove(ch)

	assert.Equal(t, 0, r.Members("alice"))
	assert.Equal(t, 0, r.Members(key.Room()))
	assert.Zero(t, r.BroadcastAll(testFrame(t, EventOnlineUsers)))
}

func TestRouter_BroadcastAllOncePerChannel(t *testing.T) {
	r := NewRouter(discardLogger(), nil)
	a := newFakeChannel("a")
	b := newFakeChannel("b")

	r.Join("alice", a)
	r.JoinRoom(NewConversationKey("alice", "bob"), a)
	r.Join("bob", b)

	n := r.BroadcastAll(testFrame(t, EventUserStatus))

	assert.Equal(t, 2, n)
	assert.Len(t, a.events(), 1)
	assert.Len(t, b.events(), 1)
}
