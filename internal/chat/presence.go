package chat

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/ageniuscoder/duochat/backend/internal/metrics"
)

// Presence tracks how many live connections each user has. A user is online
// while the count is at least one, so a second tab or device keeps the user
// online after the first one goes away.
type Presence struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	counts map[string]int
}

func NewPresence(log *slog.Logger, m *metrics.Metrics) *Presence {
	if log == nil {
		log = slog.Default()
	}
	return &Presence{
		log:     log,
		metrics: m,
		counts:  make(map[string]int),
	}
}

// Attach records one more connection for user and reports whether the user
// just became online.
func (p *Presence) Attach(user string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts[user]++
	n := p.counts[user]
	p.metrics.SetOnlineUsers(len(p.counts))

	if n == 1 {
		p.log.Info("presence.online", "user", user)
		return true
	}
	p.log.Debug("presence.attach", "user", user, "connections", n)
	return false
}

// Detach releases one connection for user and reports whether the user just
// became offline. Detaching an unknown user is a no-op.
func (p *Presence) Detach(user string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, ok := p.counts[user]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(p.counts, user)
		p.metrics.SetOnlineUsers(len(p.counts))
		p.log.Info("presence.offline", "user", user)
		return true
	}
	p.counts[user] = n - 1
	p.log.Debug("presence.detach", "user", user, "connections", n-1)
	return false
}

func (p *Presence) IsOnline(user string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[user] > 0
}

// Connections returns the live connection count for user.
func (p *Presence) Connections(user string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[user]
}

// Snapshot returns the online users, sorted.
func (p *Presence) Snapshot() []string {
	p.mu.Lock()
	out := make([]string, 0, len(p.counts))
	for u := range p.counts {
		out = append(out, u)
	}
	p.mu.Unlock()

	sort.Strings(out)
	return out
}
