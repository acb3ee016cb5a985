package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ageniuscoder/duochat/backend/internal/metrics"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultHistoryLimit    = 50
	DefaultMaxMessageChars = 4000
)

type Options struct {
	// HistoryLimit bounds every chatHistory payload to the most recent N messages.
	HistoryLimit    int
	MaxMessageChars int
	Now             func() time.Time
}

// Service orchestrates joins, sends, history loads and seen marking on top of
// the store, the presence registry, the router and the status engine.
type Service struct {
	store    Store
	presence *Presence
	router   *Router
	engine   *StatusEngine
	log      *slog.Logger
	metrics  *metrics.Metrics
	validate *validator.Validate

	historyLimit int
	maxChars     int
	now          func() time.Time
}

func NewService(store Store, log *slog.Logger, m *metrics.Metrics, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.MaxMessageChars <= 0 {
		opts.MaxMessageChars = DefaultMaxMessageChars
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	router := NewRouter(log, m)
	return &Service{
		store:        store,
		presence:     NewPresence(log, m),
		router:       router,
		engine:       NewStatusEngine(store, router, log, m),
		log:          log,
		metrics:      m,
		validate:     newValidator(),
		historyLimit: opts.HistoryLimit,
		maxChars:     opts.MaxMessageChars,
		now:          opts.Now,
	}
}

func (s *Service) Presence() *Presence { return s.presence }
func (s *Service) Router() *Router     { return s.router }

// JoinUser creates or refreshes the user's record and binds ch to the user's
// group. Failures are returned to the caller and never broadcast.
func (s *Service) JoinUser(ctx context.Context, ch Channel, req JoinRequest) (User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.check(req); err != nil {
		return User{}, err
	}

	user, err := s.store.UpsertUser(ctx, req.Username, req.Email)
	if err != nil {
		if errors.Is(err, ErrUserConflict) {
			return User{}, newError(ErrorValidation, "Failed to join. Username or email may already exist.", err)
		}
		s.log.Error("join.persist.fail", "user", req.Username, "err", err)
		return User{}, newError(ErrorPersistence, "Failed to join. Please try again.", err)
	}

	if s.router.Join(user.Username, ch) && s.presence.Attach(user.Username) {
		s.broadcastPresence(user.Username, PresenceOnline)
	}
	s.broadcastUserList(ctx)

	if _, err := s.engine.DeliverPending(ctx, user.Username); err != nil {
		s.log.Error("join.deliver_pending.fail", "user", user.Username, "err", err)
	}
	return user, nil
}

// DisconnectUser unbinds ch from user, including every conversation room ch
// joined while acting as user. The offline edge is announced only when it was
// the user's last connection.
func (s *Service) DisconnectUser(ctx context.Context, user string, ch Channel) {
	left := s.router.Leave(user, ch)
	// A channel acts as one identity at a time, so all of its rooms belong to user.
	s.router.Remove(ch)
	if !left {
		return
	}
	if !s.presence.Detach(user) {
		return
	}
	if err := s.store.TouchLastSeen(ctx, user, s.now()); err != nil {
		s.log.Warn("disconnect.last_seen.fail", "user", user, "err", err)
	}
	s.broadcastPresence(user, PresenceOffline)
}

// ReleaseChannel drops ch from every group, including conversation rooms.
func (s *Service) ReleaseChannel(ch Channel) {
	s.router.Remove(ch)
}

// RelayTyping forwards a typing notice to the recipient's group only.
func (s *Service) RelayTyping(sig TypingSignal) {
	f, err := NewFrame(EventTyping, TypingPayload{Username: sig.From})
	if err != nil {
		s.log.Error("typing.frame.fail", "err", err)
		return
	}
	s.router.Broadcast([]string{sig.To}, f)
}

// SendMessage persists a message and echoes it, followed by the refreshed
// conversation history, to both parties. ch is joined to the conversation room
// so the sending connection receives the echo even before it joined a user group.
func (s *Service) SendMessage(ctx context.Context, ch Channel, req SendRequest) (Message, error) {
	req.Sender = strings.TrimSpace(req.Sender)
	req.Recipient = strings.TrimSpace(req.Recipient)
	if err := s.check(req); err != nil {
		return Message{}, err
	}
	if req.Sender == req.Recipient {
		return Message{}, newError(ErrorValidation, "cannot send a message to yourself", nil)
	}
	body := strings.TrimSpace(req.Message)
	if body == "" {
		return Message{}, newError(ErrorValidation, "message: This field is required.", nil)
	}
	if utf8.RuneCountInString(body) > s.maxChars {
		return Message{}, newError(ErrorValidation, "message is too long", nil)
	}

	key := NewConversationKey(req.Sender, req.Recipient)
	if ch != nil {
		s.router.JoinRoom(key, ch)
	}
	groups := []string{key.Room(), req.Sender, req.Recipient}

	unlock := s.engine.locks.Lock(req.Sender, req.Recipient)
	defer unlock()

	msg, err := s.store.InsertMessage(ctx, NewMessage{
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Body:      body,
		Status:    InitialStatus(s.presence.IsOnline(req.Recipient)),
	})
	if err != nil {
		s.log.Error("message.persist.fail", "sender", req.Sender, "recipient", req.Recipient, "err", err)
		return Message{}, newError(ErrorPersistence, "message could not be stored", err)
	}
	s.metrics.MessageSent(string(msg.Status))

	if f, err := NewFrame(EventPrivateMessage, toMessagePayload(msg)); err == nil {
		s.router.Broadcast(groups, f)
	}

	// The whole window is re-sent so every open view of the conversation
	// converges, not just the ones that saw the echo.
	history, err := s.store.FindMessagesBetween(ctx, key, s.historyLimit)
	if err != nil {
		s.log.Error("message.history.fail", "room", key.Room(), "err", err)
		return msg, nil
	}
	if f, err := NewFrame(EventChatHistory, toMessagePayloads(history)); err == nil {
		s.router.Broadcast(groups, f)
	}
	return msg, nil
}

// LoadChat returns the conversation history to ch only, after marking every
// message from counterpart to viewer as Seen.
func (s *Service) LoadChat(ctx context.Context, ch Channel, req LoadChatRequest) ([]Message, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	viewer, counterpart := req.Sender, req.Recipient
	key := NewConversationKey(viewer, counterpart)

	unlock := s.engine.locks.Lock(viewer, counterpart)
	defer unlock()

	history, err := s.store.FindMessagesBetween(ctx, key, s.historyLimit)
	if err != nil {
		s.log.Error("chat.history.fail", "room", key.Room(), "err", err)
		return nil, newError(ErrorPersistence, "history unavailable", err)
	}

	seen, err := s.engine.seeConversationLocked(ctx, viewer, counterpart)
	if err != nil {
		s.log.Error("chat.seen.fail", "viewer", viewer, "counterpart", counterpart, "err", err)
	}
	if len(seen) > 0 {
		changed := make(map[string]Status, len(seen))
		for _, m := range seen {
			changed[m.ID] = m.Status
		}
		for i := range history {
			if st, ok := changed[history[i].ID]; ok {
				history[i].Status = st
			}
		}
	}

	if ch != nil {
		f, err := NewFrame(EventChatHistory, toMessagePayloads(history))
		if err != nil {
			return nil, err
		}
		if err := ch.Send(f); err != nil && !errors.Is(err, ErrChannelClosed) {
			s.log.Warn("chat.history.send.fail", "channel_id", ch.ID(), "err", err)
		}
	}
	return history, nil
}

// MarkSeen acknowledges a single message. Unknown ids and messages addressed
// to someone other than req.Recipient are ignored.
func (s *Service) MarkSeen(ctx context.Context, req SeenRequest) error {
	if err := s.check(req); err != nil {
		return err
	}
	_, _, err := s.engine.MarkSeen(ctx, req.MessageID, req.Recipient)
	if err != nil {
		if isNotFound(err) {
			s.log.Debug("seen.not_found", "message_id", req.MessageID)
			return nil
		}
		s.log.Error("seen.persist.fail", "message_id", req.MessageID, "err", err)
		return newError(ErrorPersistence, "status update failed", err)
	}
	return nil
}

// OnlineUsers is the current online set.
func (s *Service) OnlineUsers() []string { return s.presence.Snapshot() }

// Users returns every known user with its presence flag.
func (s *Service) Users(ctx context.Context) ([]UserPayload, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]UserPayload, 0, len(users))
	for _, u := range users {
		out = append(out, UserPayload{
			Username: u.Username,
			Email:    u.Email,
			Online:   s.presence.IsOnline(u.Username),
		})
	}
	return out, nil
}

func (s *Service) broadcastPresence(user, state string) {
	if f, err := NewFrame(EventUserStatus, UserStatusPayload{Username: user, Status: state}); err == nil {
		s.router.BroadcastAll(f)
	}
	if f, err := NewFrame(EventOnlineUsers, s.presence.Snapshot()); err == nil {
		s.router.BroadcastAll(f)
	}
}

func (s *Service) broadcastUserList(ctx context.Context) {
	users, err := s.Users(ctx)
	if err != nil {
		s.log.Error("userlist.fail", "err", err)
		return
	}
	if f, err := NewFrame(EventUserList, users); err == nil {
		s.router.BroadcastAll(f)
	}
}
