package chat

import (
	"crypto/rand"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/ageniuscoder/duochat/backend/internal/auth"
	"github.com/ageniuscoder/duochat/backend/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

type WSOptions struct {
	JWTSecret string
	// RequireToken rejects upgrades without a valid bearer token.
	RequireToken   bool
	SendQueue      int
	AllowedOrigins []string
}

// WSHandler upgrades HTTP requests into Clients bound to the Service.
type WSHandler struct {
	svc      *Service
	log      *slog.Logger
	metrics  *metrics.Metrics
	opts     WSOptions
	upgrader websocket.Upgrader
}

func NewWSHandler(svc *Service, log *slog.Logger, m *metrics.Metrics, opts WSOptions) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	h := &WSHandler{svc: svc, log: log, metrics: m, opts: opts}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// RegisterWS mounts GET /ws. A token is optional unless RequireToken is set:
// 1) Header: Authorization: Bearer <JWT>
// 2) Query:  ?token=<JWT>
// When present it pins the identity the connection may join as.
func (h *WSHandler) RegisterWS(rg gin.IRoutes) {
	rg.GET("/ws", h.serve)
}

func (h *WSHandler) serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		hd := c.GetHeader("Authorization")
		if strings.HasPrefix(hd, "Bearer ") {
			token = strings.TrimPrefix(hd, "Bearer ")
		}
	}

	var tokenUser string
	switch {
	case token != "":
		cl, err := auth.ParseToken(h.opts.JWTSecret, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		tokenUser = cl.Username
	case h.opts.RequireToken:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Info("ws.upgrade.fail", "err", err, "remote", c.Request.RemoteAddr)
		return
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	client := newClient(id, conn, h.svc, h.log, h.opts.SendQueue, tokenUser)

	h.metrics.ConnectionOpened()
	h.log.Debug("ws.connect", "channel_id", id, "token_user", tokenUser)

	go client.writePump()
	go func() {
		defer h.metrics.ConnectionClosed()
		client.readPump()
	}()
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.opts.AllowedOrigins, "*") || slices.Contains(h.opts.AllowedOrigins, origin)
}
