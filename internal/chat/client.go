package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16384
	opTimeout      = 10 * time.Second
)

// Client is the websocket-backed Channel of one connection. The read pump runs
// the connection's event loop; the write pump drains the send queue.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	svc  *Service
	log  *slog.Logger

	// tokenUser is the identity pinned by a bearer token, if any.
	tokenUser string
	// username is the joined identity. Only the read pump touches it; Send runs
	// on other goroutines and must not read it.
	username string

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn, svc *Service, log *slog.Logger, queue int, tokenUser string) *Client {
	if queue <= 0 {
		queue = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:        id,
		conn:      conn,
		send:      make(chan []byte, queue),
		svc:       svc,
		log:       log.With("channel_id", id),
		tokenUser: tokenUser,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues f without blocking. A client whose queue is full is treated as
// gone and closed.
func (c *Client) Send(f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	case <-c.done:
		return ErrChannelClosed
	default:
		c.log.Warn("ws.client.slow", "queue", cap(c.send))
		c.close()
		return ErrChannelClosed
	}
}

// close is idempotent. The send queue is never closed so concurrent Send
// calls cannot panic.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
}

func (c *Client) readPump() {
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		if c.username != "" {
			c.svc.DisconnectUser(ctx, c.username, c)
		}
		cancel()
		c.svc.ReleaseChannel(c)
		c.close()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("ws.read.fail", "err", err)
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			c.sendError("invalid JSON frame")
			continue
		}
		c.dispatch(f)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *Client) dispatch(f Frame) {
	ctx, cancel := context.WithTimeout(c.ctx, opTimeout)
	defer cancel()

	switch f.Event {
	case EventJoin:
		var req JoinRequest
		if !c.decode(f, &req) {
			return
		}
		c.onJoin(ctx, req)

	case EventPrivateMessage:
		var req SendRequest
		if !c.decode(f, &req) || !c.requireIdentity(req.Sender) {
			return
		}
		if _, err := c.svc.SendMessage(ctx, c, req); err != nil {
			c.report(err)
		}

	case EventLoadChat:
		var req LoadChatRequest
		if !c.decode(f, &req) || !c.requireIdentity(req.Sender) {
			return
		}
		if _, err := c.svc.LoadChat(ctx, c, req); err != nil {
			c.report(err)
		}

	case EventMessageSeen:
		var req SeenRequest
		if !c.decode(f, &req) || !c.requireIdentity(req.Recipient) {
			return
		}
		if err := c.svc.MarkSeen(ctx, req); err != nil {
			c.report(err)
		}

	case EventTyping:
		var req TypingRequest
		if !c.decode(f, &req) || !c.requireIdentity(req.Username) {
			return
		}
		if err := c.svc.check(req); err != nil {
			c.report(err)
			return
		}
		c.svc.RelayTyping(TypingSignal{From: req.Username, To: req.Recipient})

	default:
		c.sendError("unsupported event: " + f.Event)
	}
}

func (c *Client) onJoin(ctx context.Context, req JoinRequest) {
	if c.tokenUser != "" && req.Username != c.tokenUser {
		c.sendError("username does not match token")
		return
	}
	if c.username != "" && c.username != req.Username {
		c.svc.DisconnectUser(ctx, c.username, c)
		c.username = ""
	}
	user, err := c.svc.JoinUser(ctx, c, req)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			c.sendError(e.Reason)
			return
		}
		c.sendError("Failed to join.")
		return
	}
	c.username = user.Username
	c.log.Info("ws.join", "user", user.Username)
}

func (c *Client) decode(f Frame, dst any) bool {
	if len(f.Data) == 0 {
		c.sendError(f.Event + ": missing data")
		return false
	}
	if err := json.Unmarshal(f.Data, dst); err != nil {
		c.sendError(f.Event + ": invalid data")
		return false
	}
	return true
}

// requireIdentity rejects events issued before a join or on behalf of another user.
func (c *Client) requireIdentity(claimed string) bool {
	if c.username == "" {
		c.sendError("join first")
		return false
	}
	if claimed != c.username {
		c.sendError("identity mismatch")
		return false
	}
	return true
}

// report surfaces validation failures to this connection only. Persistence
// failures were already logged by the service.
func (c *Client) report(err error) {
	var e *Error
	if errors.As(err, &e) && e.Code == ErrorValidation {
		c.sendError(e.Reason)
		return
	}
	c.log.Debug("ws.op.fail", "err", err)
}

func (c *Client) sendError(msg string) {
	f, err := NewFrame(EventError, msg)
	if err != nil {
		return
	}
	_ = c.Send(f)
}
