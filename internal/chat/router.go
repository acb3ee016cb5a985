package chat

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/ageniuscoder/duochat/backend/internal/metrics"
)

// Channel is one live connection. Send must not block; a channel that is gone
// returns ErrChannelClosed.
type Channel interface {
	ID() string
	Send(f Frame) error
}

// Router fans frames out to named groups of channels. A user's group is named
// after the username; conversation rooms use ConversationKey.Room.
type Router struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	groups   map[string]map[string]Channel // group -> channel id -> channel
	memberOf map[string]map[string]struct{} // channel id -> groups
}

func NewRouter(log *slog.Logger, m *metrics.Metrics) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		log:      log,
		metrics:  m,
		groups:   make(map[string]map[string]Channel),
		memberOf: make(map[string]map[string]struct{}),
	}
}

// Join adds ch to group and reports whether it was not already a member.
func (r *Router) Join(group string, ch Channel) bool {
	if group == "" || ch == nil {
		return false
	}
	id := ch.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.groups[group]
	if set == nil {
		set = make(map[string]Channel)
		r.groups[group] = set
	}
	if _, ok := set[id]; ok {
		return false
	}
	set[id] = ch

	gs := r.memberOf[id]
	if gs == nil {
		gs = make(map[string]struct{})
		r.memberOf[id] = gs
	}
	gs[group] = struct{}{}
	return true
}

// JoinRoom adds ch to the conversation room of key.
func (r *Router) JoinRoom(key ConversationKey, ch Channel) bool {
	return r.Join(key.Room(), ch)
}

// Leave removes ch from group and reports whether it was a member. Empty
// groups are discarded.
func (r *Router) Leave(group string, ch Channel) bool {
	if ch == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(group, ch.ID())
}

func (r *Router) leaveLocked(group, id string) bool {
	set, ok := r.groups[group]
	if !ok {
		return false
	}
	if _, ok := set[id]; !ok {
		return false
	}
	delete(set, id)
	if len(set) == 0 {
		delete(r.groups, group)
	}
	if gs := r.memberOf[id]; gs != nil {
		delete(gs, group)
		if len(gs) == 0 {
			delete(r.memberOf, id)
		}
	}
	return true
}

// Remove drops ch from every group it belongs to.
func (r *Router) Remove(ch Channel) {
	if ch == nil {
		return
	}
	id := ch.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	for group := range r.memberOf[id] {
		r.leaveLocked(group, id)
	}
	delete(r.memberOf, id)
}

// Members returns the number of channels in group.
func (r *Router) Members(group string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[group])
}

// Broadcast delivers f once to every channel reachable through groups, even
// when a channel belongs to several of them. It returns the number of channels
// that accepted the frame.
func (r *Router) Broadcast(groups []string, f Frame) int {
	r.mu.RLock()
	seen := make(map[string]struct{})
	targets := make([]Channel, 0, 4)
	for _, g := range groups {
		for id, ch := range r.groups[g] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			targets = append(targets, ch)
		}
	}
	r.mu.RUnlock()

	return r.deliver(targets, f)
}

// BroadcastAll delivers f to every joined channel.
func (r *Router) BroadcastAll(f Frame) int {
	r.mu.RLock()
	targets := make([]Channel, 0, len(r.memberOf))
	for _, set := range r.groups {
		for _, ch := range set {
			targets = append(targets, ch)
		}
	}
	r.mu.RUnlock()

	return r.deliver(dedupe(targets), f)
}

func (r *Router) deliver(targets []Channel, f Frame) int {
	delivered, skipped := 0, 0
	for _, ch := range targets {
		if err := ch.Send(f); err != nil {
			skipped++
			if !errors.Is(err, ErrChannelClosed) {
				r.log.Warn("router.deliver.fail", "channel_id", ch.ID(), "event", f.Event, "err", err)
				continue
			}
			r.log.Debug("router.deliver.skip", "channel_id", ch.ID(), "event", f.Event)
			continue
		}
		delivered++
	}
	r.metrics.Fanout(delivered, skipped)
	return delivered
}

func dedupe(chs []Channel) []Channel {
	seen := make(map[string]struct{}, len(chs))
	out := chs[:0]
	for _, ch := range chs {
		if _, ok := seen[ch.ID()]; ok {
			continue
		}
		seen[ch.ID()] = struct{}{}
		out = append(out, ch)
	}
	return out
}
