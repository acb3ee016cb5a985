package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ageniuscoder/duochat/backend/internal/chat"
	"github.com/ageniuscoder/duochat/backend/internal/config"
	"github.com/ageniuscoder/duochat/backend/internal/metrics"
	"github.com/ageniuscoder/duochat/backend/internal/storage/memory"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		StoreDriver:     config.DriverMemory,
		JWTSecret:       "s3cret",
		JWTTTLMin:       5,
		WSSendQueue:     64,
		HistoryLimit:    50,
		MaxMessageChars: 1000,
		ShutdownTimeout: time.Second,
	}
}

func newTestServer(t *testing.T, cfg config.Config) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	m := metrics.New()
	svc := chat.NewService(store, log, m, chat.Options{
		HistoryLimit:    cfg.HistoryLimit,
		MaxMessageChars: cfg.MaxMessageChars,
	})

	engine, err := NewEngine(Deps{Config: cfg, Log: log, Store: store, Chat: svc, Metrics: m})
	require.NoError(t, err)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func issueToken(t *testing.T, srv *httptest.Server, username string) string {
	t.Helper()
	resp, out := doJSON(t, http.MethodPost, srv.URL+"/api/auth/token", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	tok, _ := out["token"].(string)
	require.NotEmpty(t, tok)
	return tok
}

func TestProbes(t *testing.T) {
	srv := newTestServer(t, testConfig())

	for path, want := range map[string]string{"/healthz": "ok", "/readyz": "ready"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, want, strings.TrimSpace(string(body)), path)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "duochat_online_users")
}

func TestUsersAPI(t *testing.T) {
	srv := newTestServer(t, testConfig())
	tok := issueToken(t, srv, "alice")

	resp, out := doJSON(t, http.MethodGet, srv.URL+"/api/me", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", out["username"])
	assert.Equal(t, false, out["online"])

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, out = doJSON(t, http.MethodGet, srv.URL+"/api/users/search?q=ALI", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, out["users"], 1)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/users/search", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/users/ghost/last-seen", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIssueToken_Errors(t *testing.T) {
	srv := newTestServer(t, testConfig())
	issueToken(t, srv, "alice")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/auth/token", "", map[string]string{
		"username": "dm:bad",
		"email":    "x@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/auth/token", "", map[string]string{
		"username": "mallory",
		"email":    "alice@example.com",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	cfg := testConfig()
	cfg.JWTSecret = ""
	noAuth := newTestServer(t, cfg)
	resp, _ = doJSON(t, http.MethodPost, noAuth.URL+"/api/auth/token", "", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
	})
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

// ---- websocket ----

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	f, err := chat.NewFrame(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(f))
}

// await reads frames until one with event arrives and decodes its data into v.
func await(t *testing.T, conn *websocket.Conn, event string, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f chat.Frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %q", event)
		if f.Event != event {
			continue
		}
		if v != nil {
			require.NoError(t, json.Unmarshal(f.Data, v))
		}
		return
	}
}

func TestWebsocket_Conversation(t *testing.T) {
	srv := newTestServer(t, testConfig())
	alice := dial(t, srv, "")
	bob := dial(t, srv, "")

	emit(t, alice, chat.EventJoin, chat.JoinRequest{Username: "alice", Email: "alice@example.com"})
	await(t, alice, chat.EventUserList, nil)

	emit(t, bob, chat.EventJoin, chat.JoinRequest{Username: "bob", Email: "bob@example.com"})
	var online []string
	await(t, bob, chat.EventOnlineUsers, &online)
	assert.ElementsMatch(t, []string{"alice", "bob"}, online)

	emit(t, alice, chat.EventPrivateMessage, chat.SendRequest{Sender: "alice", Recipient: "bob", Message: "hi bob"})

	var got chat.MessagePayload
	await(t, bob, chat.EventPrivateMessage, &got)
	assert.Equal(t, "hi bob", got.Message)
	assert.Equal(t, chat.StatusDelivered, got.Status)

	var echo chat.MessagePayload
	await(t, alice, chat.EventPrivateMessage, &echo)
	assert.Equal(t, got.ID, echo.ID)

	emit(t, bob, chat.EventLoadChat, chat.LoadChatRequest{Sender: "bob", Recipient: "alice"})

	var st chat.StatusPayload
	await(t, alice, chat.EventMessageStatus, &st)
	assert.Equal(t, got.ID, st.ID)
	assert.Equal(t, chat.StatusSeen, st.Status)

	// Skip the history broadcast that followed the send.
	await(t, bob, chat.EventMessageStatus, nil)
	var history []chat.MessagePayload
	await(t, bob, chat.EventChatHistory, &history)
	require.Len(t, history, 1)
	assert.Equal(t, chat.StatusSeen, history[0].Status)

	tok := issueToken(t, srv, "alice")
	resp, out := doJSON(t, http.MethodGet, srv.URL+"/api/messages/bob", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out["messages"], 1)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/messages/alice", tok, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebsocket_IdentityChecks(t *testing.T) {
	srv := newTestServer(t, testConfig())
	conn := dial(t, srv, "")

	emit(t, conn, chat.EventPrivateMessage, chat.SendRequest{Sender: "alice", Recipient: "bob", Message: "x"})
	var msg string
	await(t, conn, chat.EventError, &msg)
	assert.Equal(t, "join first", msg)

	emit(t, conn, chat.EventJoin, chat.JoinRequest{Username: "alice", Email: "alice@example.com"})
	emit(t, conn, chat.EventPrivateMessage, chat.SendRequest{Sender: "mallory", Recipient: "bob", Message: "x"})
	await(t, conn, chat.EventError, &msg)
	assert.Equal(t, "identity mismatch", msg)

	emit(t, conn, "shout", map[string]string{})
	await(t, conn, chat.EventError, &msg)
	assert.Equal(t, "unsupported event: shout", msg)
}

func TestWebsocket_TokenPinsIdentity(t *testing.T) {
	cfg := testConfig()
	cfg.WSRequireToken = true
	srv := newTestServer(t, cfg)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tok := issueToken(t, srv, "alice")
	conn := dial(t, srv, tok)

	emit(t, conn, chat.EventJoin, chat.JoinRequest{Username: "bob", Email: "bob@example.com"})
	var msg string
	await(t, conn, chat.EventError, &msg)
	assert.Equal(t, "username does not match token", msg)

	emit(t, conn, chat.EventJoin, chat.JoinRequest{Username: "alice", Email: "alice@example.com"})
	var status chat.UserStatusPayload
	await(t, conn, chat.EventUserStatus, &status)
	assert.Equal(t, "alice", status.Username)
}

func TestWebsocket_IdentitySwitchLeavesOldRooms(t *testing.T) {
	srv := newTestServer(t, testConfig())
	conn := dial(t, srv, "")
	bob := dial(t, srv, "")

	emit(t, bob, chat.EventJoin, chat.JoinRequest{Username: "bob", Email: "bob@example.com"})
	await(t, bob, chat.EventUserList, nil)

	emit(t, conn, chat.EventJoin, chat.JoinRequest{Username: "alice", Email: "alice@example.com"})
	emit(t, conn, chat.EventPrivateMessage, chat.SendRequest{Sender: "alice", Recipient: "bob", Message: "hi"})
	await(t, conn, chat.EventChatHistory, nil)

	emit(t, conn, chat.EventJoin, chat.JoinRequest{Username: "carol", Email: "carol@example.com"})
	var status chat.UserStatusPayload
	for status.Username != "carol" {
		await(t, conn, chat.EventUserStatus, &status)
	}

	emit(t, bob, chat.EventPrivateMessage, chat.SendRequest{Sender: "bob", Recipient: "alice", Message: "for alice"})
	emit(t, bob, chat.EventPrivateMessage, chat.SendRequest{Sender: "bob", Recipient: "carol", Message: "for carol"})

	var got chat.MessagePayload
	await(t, conn, chat.EventPrivateMessage, &got)
	assert.Equal(t, "carol", got.Recipient)
	assert.Equal(t, "for carol", got.Message)
}
