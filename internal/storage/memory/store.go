// Package memory is an in-process chat.Store for development and tests.
// Nothing survives a restart.
package memory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ageniuscoder/duochat/backend/internal/chat"
	"github.com/google/uuid"
)

type Store struct {
	mu       sync.Mutex
	users    map[string]chat.User
	byEmail  map[string]string // email -> username
	messages []chat.Message    // insertion order
	index    map[string]int    // id -> position in messages

	now func() time.Time
}

func New() *Store {
	return &Store{
		users:   make(map[string]chat.User),
		byEmail: make(map[string]string),
		index:   make(map[string]int),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source. Call before use.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

var _ chat.Store = (*Store)(nil)

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) UpsertUser(ctx context.Context, username, email string) (chat.User, error) {
	if err := ctx.Err(); err != nil {
		return chat.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byEmail[email]; ok && owner != username {
		return chat.User{}, chat.ErrUserConflict
	}

	u, ok := s.users[username]
	if !ok {
		u = chat.User{Username: username, CreatedAt: s.now()}
	}
	if u.Email != "" && u.Email != email {
		delete(s.byEmail, u.Email)
	}
	u.Email = email
	s.users[username] = u
	s.byEmail[email] = username
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, username string) (chat.User, error) {
	if err := ctx.Err(); err != nil {
		return chat.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return chat.User{}, chat.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]chat.User, error) {
	return s.SearchUsers(ctx, "", 0)
}

func (s *Store) SearchUsers(ctx context.Context, query string, limit int) ([]chat.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query = strings.ToLower(query)
	s.mu.Lock()
	out := make([]chat.User, 0, len(s.users))
	for _, u := range s.users {
		if query == "" || strings.Contains(strings.ToLower(u.Username), query) {
			out = append(out, u)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) TouchLastSeen(ctx context.Context, username string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return chat.ErrUserNotFound
	}
	u.LastSeen = at
	s.users[username] = u
	return nil
}

func (s *Store) InsertMessage(ctx context.Context, in chat.NewMessage) (chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return chat.Message{}, err
	}
	if !in.Status.Valid() {
		return chat.Message{}, errors.New("memory: invalid status")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m := chat.Message{
		ID:        uuid.NewString(),
		Sender:    in.Sender,
		Recipient: in.Recipient,
		Body:      in.Body,
		Status:    in.Status,
		CreatedAt: s.now(),
	}
	s.index[m.ID] = len(s.messages)
	s.messages = append(s.messages, m)
	return m, nil
}

func (s *Store) FindMessagesBetween(ctx context.Context, key chat.ConversationKey, limit int) ([]chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = chat.DefaultHistoryLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []chat.Message
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.messages[i]
		if key.Includes(m.Sender) && key.Includes(m.Recipient) && m.Sender != m.Recipient {
			out = append(out, m)
		}
	}
	slices.Reverse(out)
	return out, nil
}

func (s *Store) UpdateMessageStatus(ctx context.Context, id, recipient string, status chat.Status) (chat.Message, bool, error) {
	if err := ctx.Err(); err != nil {
		return chat.Message{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return chat.Message{}, false, chat.ErrMessageNotFound
	}
	m := s.messages[i]
	if m.Recipient != recipient {
		return chat.Message{}, false, chat.ErrMessageNotFound
	}
	if !m.Status.Before(status) {
		return m, false, nil
	}
	m.Status = status
	s.messages[i] = m
	return m, true, nil
}

func (s *Store) UpdateMessagesStatusBulk(ctx context.Context, filter chat.StatusFilter, status chat.Status) ([]chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if filter.Recipient == "" {
		return nil, errors.New("memory: bulk status update requires recipient")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []chat.Message
	for i, m := range s.messages {
		if m.Recipient != filter.Recipient {
			continue
		}
		if filter.Sender != "" && m.Sender != filter.Sender {
			continue
		}
		if !slices.Contains(filter.From, m.Status) || !m.Status.Before(status) {
			continue
		}
		m.Status = status
		s.messages[i] = m
		out = append(out, m)
	}
	return out, nil
}
