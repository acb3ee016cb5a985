package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ageniuscoder/duochat/backend/internal/auth"
	"github.com/ageniuscoder/duochat/backend/internal/chat"
	"github.com/ageniuscoder/duochat/backend/internal/config"
	"github.com/ageniuscoder/duochat/backend/internal/httpx"
	"github.com/ageniuscoder/duochat/backend/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type Service struct {
	Store     chat.Store
	Chat      *chat.Service
	Log       *slog.Logger
	JWTSecret string
	JWTTTLMin int
}

type tokenReq struct {
	Username string `json:"username" binding:"required,username"`
	Email    string `json:"email" binding:"required,email,max=254"`
}

type userResp struct {
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Online    bool       `json:"online"`
	CreatedAt time.Time  `json:"created_at"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}

func NewService(store chat.Store, svc *chat.Service, log *slog.Logger, cfg config.Config) Service {
	return Service{
		Store:     store,
		Chat:      svc,
		Log:       log,
		JWTSecret: cfg.JWTSecret,
		JWTTTLMin: cfg.JWTTTLMin,
	}
}

func RegisterPublic(rg *gin.RouterGroup, s Service) {
	rg.POST("/auth/token", s.issueToken)
	rg.GET("/users", s.list)
	rg.GET("/users/online", s.online)
	rg.GET("/users/search", s.search)
	rg.GET("/users/:username/last-seen", s.lastSeen)
}

func RegisterPrivate(rg *gin.RouterGroup, s Service) {
	rg.GET("/me", s.me)
}

func (s Service) issueToken(c *gin.Context) {
	var req tokenReq
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			httpx.Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
			return
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}

	u, err := s.Store.UpsertUser(c.Request.Context(), req.Username, req.Email)
	if err != nil {
		if errors.Is(err, chat.ErrUserConflict) {
			httpx.Err(c, http.StatusConflict, "Username or Email Already Exists")
			return
		}
		s.Log.Error("users.token.upsert.fail", "user", req.Username, "err", err)
		httpx.Err(c, http.StatusInternalServerError, "Create User Failed")
		return
	}

	tok, err := auth.NewToken(s.JWTSecret, u.Username, s.JWTTTLMin)
	if err != nil {
		if errors.Is(err, auth.ErrNoSecret) {
			httpx.Err(c, http.StatusNotImplemented, "Token Auth Disabled")
			return
		}
		httpx.Err(c, http.StatusInternalServerError, "Token Generation Failed")
		return
	}
	httpx.OK(c, gin.H{"token": tok, "username": u.Username})
}

func (s Service) list(c *gin.Context) {
	users, err := s.Store.ListUsers(c.Request.Context())
	if err != nil {
		s.Log.Error("users.list.fail", "err", err)
		httpx.Err(c, http.StatusInternalServerError, "database error")
		return
	}
	httpx.OK(c, gin.H{"users": s.toResp(users)})
}

func (s Service) online(c *gin.Context) {
	httpx.OK(c, gin.H{"online": s.Chat.OnlineUsers()})
}

func (s Service) search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		httpx.Err(c, http.StatusBadRequest, "query parameter is required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	users, err := s.Store.SearchUsers(c.Request.Context(), query, limit)
	if err != nil {
		s.Log.Error("users.search.fail", "err", err)
		httpx.Err(c, http.StatusInternalServerError, "database query failed")
		return
	}
	httpx.OK(c, gin.H{"success": true, "users": s.toResp(users)})
}

func (s Service) lastSeen(c *gin.Context) {
	username := c.Param("username")
	u, ok := s.lookup(c, username)
	if !ok {
		return
	}
	online := s.Chat.Presence().IsOnline(u.Username)
	resp := gin.H{"success": true, "username": u.Username, "online": online}
	if !u.LastSeen.IsZero() {
		resp["last_seen"] = u.LastSeen.Format(time.RFC3339)
	}
	httpx.OK(c, resp)
}

func (s Service) me(c *gin.Context) {
	username := auth.MustUsername(c)
	if username == "" {
		httpx.Err(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	u, ok := s.lookup(c, username)
	if !ok {
		return
	}
	httpx.OK(c, s.toResp([]chat.User{u})[0])
}

func (s Service) lookup(c *gin.Context, username string) (chat.User, bool) {
	u, err := s.Store.GetUser(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, chat.ErrUserNotFound) {
			httpx.Err(c, http.StatusNotFound, "user not found")
		} else {
			s.Log.Error("users.get.fail", "user", username, "err", err)
			httpx.Err(c, http.StatusInternalServerError, "database error")
		}
		return chat.User{}, false
	}
	return u, true
}

func (s Service) toResp(users []chat.User) []userResp {
	out := make([]userResp, 0, len(users))
	for _, u := range users {
		r := userResp{
			Username:  u.Username,
			Email:     u.Email,
			Online:    s.Chat.Presence().IsOnline(u.Username),
			CreatedAt: u.CreatedAt,
		}
		if !u.LastSeen.IsZero() {
			ls := u.LastSeen
			r.LastSeen = &ls
		}
		out = append(out, r)
	}
	return out
}
