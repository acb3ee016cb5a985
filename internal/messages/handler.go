package messages

import (
	"log/slog"
	"net/http"

	"github.com/ageniuscoder/duochat/backend/internal/auth"
	"github.com/ageniuscoder/duochat/backend/internal/chat"
	"github.com/ageniuscoder/duochat/backend/internal/httpx"
	"github.com/gin-gonic/gin"
)

type Service struct {
	Store        chat.Store
	Log          *slog.Logger
	HistoryLimit int
}

type pageReq struct {
	Limit int `form:"limit"`
}

type messageResp struct {
	ID        string      `json:"id"`
	Sender    string      `json:"sender"`
	Recipient string      `json:"recipient"`
	Message   string      `json:"message"`
	Status    chat.Status `json:"status"`
	Timestamp string      `json:"timestamp"`
}

// Register mounts the read-only history endpoint. Reading history over REST
// does not mark anything as seen; that only happens through loadChat.
func Register(rg *gin.RouterGroup, s Service) {
	rg.GET("/messages/:peer", s.list)
}

func (s Service) list(c *gin.Context) {
	me := auth.MustUsername(c)
	peer := c.Param("peer")
	if !chat.ValidUsername(peer) || peer == me {
		httpx.Err(c, http.StatusBadRequest, "invalid peer")
		return
	}

	var q pageReq
	_ = c.ShouldBindQuery(&q)
	if q.Limit <= 0 || q.Limit > s.HistoryLimit {
		q.Limit = s.HistoryLimit
	}

	msgs, err := s.Store.FindMessagesBetween(c.Request.Context(), chat.NewConversationKey(me, peer), q.Limit)
	if err != nil {
		s.Log.Error("messages.list.fail", "user", me, "peer", peer, "err", err)
		httpx.Err(c, http.StatusInternalServerError, "db error")
		return
	}

	list := make([]messageResp, 0, len(msgs))
	for _, m := range msgs {
		list = append(list, messageResp{
			ID:        m.ID,
			Sender:    m.Sender,
			Recipient: m.Recipient,
			Message:   m.Body,
			Status:    m.Status,
			Timestamp: m.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	httpx.OK(c, gin.H{"messages": list})
}
