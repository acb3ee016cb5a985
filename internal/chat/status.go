package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ageniuscoder/duochat/backend/internal/metrics"
)

// InitialStatus is the status a new message is stored with.
func InitialStatus(recipientOnline bool) Status {
	if recipientOnline {
		return StatusDelivered
	}
	return StatusSent
}

// StatusEngine applies forward-only status transitions through the store and
// announces every changed message to both parties.
//
// Transitions for messages addressed to the same recipient are serialized, so
// the messageStatus events of one message leave the server in the same order
// the transitions were committed.
type StatusEngine struct {
	store   Store
	router  *Router
	log     *slog.Logger
	metrics *metrics.Metrics
	locks   *keyLock
}

func NewStatusEngine(store Store, router *Router, log *slog.Logger, m *metrics.Metrics) *StatusEngine {
	if log == nil {
		log = slog.Default()
	}
	return &StatusEngine{
		store:   store,
		router:  router,
		log:     log,
		metrics: m,
		locks:   newKeyLock(),
	}
}

// DeliverPending moves every Sent message addressed to recipient to Delivered.
func (e *StatusEngine) DeliverPending(ctx context.Context, recipient string) ([]Message, error) {
	unlock := e.locks.Lock(recipient)
	defer unlock()

	return e.transitionLocked(ctx, StatusFilter{
		Recipient: recipient,
		From:      []Status{StatusSent},
	}, StatusDelivered)
}

// SeeConversation marks every message from counterpart to viewer as Seen.
func (e *StatusEngine) SeeConversation(ctx context.Context, viewer, counterpart string) ([]Message, error) {
	unlock := e.locks.Lock(viewer)
	defer unlock()

	return e.seeConversationLocked(ctx, viewer, counterpart)
}

func (e *StatusEngine) seeConversationLocked(ctx context.Context, viewer, counterpart string) ([]Message, error) {
	return e.transitionLocked(ctx, StatusFilter{
		Recipient: viewer,
		Sender:    counterpart,
		From:      StatusesBefore(StatusSeen),
	}, StatusSeen)
}

// MarkSeen moves a single message addressed to recipient to Seen. A message
// already Seen is left alone and nothing is announced. Only the recipient may
// acknowledge; anyone else gets ErrMessageNotFound.
func (e *StatusEngine) MarkSeen(ctx context.Context, id, recipient string) (Message, bool, error) {
	unlock := e.locks.Lock(recipient)
	defer unlock()

	msg, changed, err := e.store.UpdateMessageStatus(ctx, id, recipient, StatusSeen)
	if err != nil {
		return Message{}, false, err
	}
	if changed {
		e.metrics.StatusTransitions(string(StatusSeen), 1)
		e.announce(msg)
	}
	return msg, changed, nil
}

func (e *StatusEngine) transitionLocked(ctx context.Context, filter StatusFilter, to Status) ([]Message, error) {
	if len(filter.From) == 0 {
		return nil, nil
	}
	for _, from := range filter.From {
		if !from.Before(to) {
			return nil, fmt.Errorf("chat: transition %s -> %s is not forward", from, to)
		}
	}

	updated, err := e.store.UpdateMessagesStatusBulk(ctx, filter, to)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(updated, func(i, j int) bool {
		return updated[i].CreatedAt.Before(updated[j].CreatedAt)
	})

	e.metrics.StatusTransitions(string(to), len(updated))
	for _, m := range updated {
		e.announce(m)
	}
	if len(updated) > 0 {
		e.log.Debug("status.transition", "recipient", filter.Recipient, "sender", filter.Sender, "to", to, "count", len(updated))
	}
	return updated, nil
}

// announce emits one messageStatus event per message to sender and recipient.
func (e *StatusEngine) announce(m Message) {
	f, err := NewFrame(EventMessageStatus, StatusPayload{
		ID:        m.ID,
		Status:    m.Status,
		Sender:    m.Sender,
		Recipient: m.Recipient,
	})
	if err != nil {
		e.log.Error("status.frame.fail", "message_id", m.ID, "err", err)
		return
	}
	e.router.Broadcast([]string{m.Sender, m.Recipient}, f)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrMessageNotFound) || errors.Is(err, ErrUserNotFound)
}
