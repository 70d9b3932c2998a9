package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RadEZorack/augmego-core/internal/auth"
	"github.com/RadEZorack/augmego-core/internal/presence"
	"github.com/RadEZorack/augmego-core/internal/server"
	"github.com/RadEZorack/augmego-core/internal/store"
	"github.com/RadEZorack/augmego-core/pkg/config"
	"github.com/RadEZorack/augmego-core/pkg/logging"
	"github.com/RadEZorack/augmego-core/pkg/protocol"
	"github.com/RadEZorack/augmego-core/pkg/state"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ShutdownTimeout: time.Second,
			ConnectionLimit: config.ConnectionLimitConfig{MaxPerUser: 1, Mode: "reject"},
		},
		Auth:      config.AuthConfig{Mode: "jwt", JWTSecret: string(secret), CookieName: "augmego_session"},
		Transport: config.TransportConfig{ReadLimit: 64 * 1024, SendBuffer: 64},
		Party:     config.PartyConfig{InviteTTL: 20 * time.Second, InviteCooldown: 8 * time.Second, SweepInterval: time.Second},
		Chat:      config.ChatConfig{GlobalHistory: 10, PartyHistory: 10, MaxLength: 100},
	}
}

func startServer(t *testing.T) (*server.App, *httptest.Server) {
	t.Helper()
	cfg := testConfig()
	app := server.NewApp(logging.Discard(), context.Background(), cfg, store.NewMemoryStore(), presence.NopMirror{}, auth.NewJWTResolver(cfg.Auth.CookieName, secret))
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	return app, srv
}

// dial connects as userID, or anonymously when userID is empty.
func dial(t *testing.T, srv *httptest.Server, userID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if userID != "" {
		token, err := auth.IssueToken(secret, state.Identity{ID: userID, Name: "name-" + userID}, time.Hour)
		require.NoError(t, err)
		header.Set("Authorization", "Bearer "+token)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	c, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err == nil {
		t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	}
	return c, resp, err
}

// readUntil reads frames until one of the given kind arrives.
func readUntil(t *testing.T, c *websocket.Conn, kind string, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var env protocol.Envelope
		require.NoError(t, wsjson.Read(ctx, c, &env))
		if env.Type == kind {
			if v != nil {
				require.NoError(t, json.Unmarshal(env.Payload, v))
			}
			return
		}
	}
}

func send(t *testing.T, c *websocket.Conn, kind string, payload any) {
	t.Helper()
	raw, err := protocol.Encode(kind, payload)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, raw))
}

func TestWebSocketSession(t *testing.T) {
	_, srv := startServer(t)

	alice, _, err := dial(t, srv, "alice")
	require.NoError(t, err)
	var info protocol.SessionInfo
	readUntil(t, alice, protocol.KindSessionInfo, &info)
	assert.True(t, info.Authenticated)
	require.NotNil(t, info.User)
	assert.Equal(t, "alice", info.User.ID)
	readUntil(t, alice, protocol.KindPartyState, nil)

	guest, _, err := dial(t, srv, "")
	require.NoError(t, err)
	readUntil(t, guest, protocol.KindSessionInfo, &info)
	assert.False(t, info.Authenticated)
	readUntil(t, guest, protocol.KindChatHistory, nil)

	send(t, guest, protocol.KindChatSend, protocol.TextPayload{Text: "hi"})
	var perr protocol.Error
	readUntil(t, guest, protocol.KindError, &perr)
	assert.Equal(t, state.CodeAuthRequired, perr.Code)

	send(t, alice, protocol.KindChatSend, protocol.TextPayload{Text: "hello"})
	var msg protocol.NewMessage
	readUntil(t, guest, protocol.KindChatNew, &msg)
	assert.Equal(t, "hello", msg.Message.Text)
	assert.Equal(t, "alice", msg.Message.Author.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, guest.Write(ctx, websocket.MessageText, []byte(`{"type":"nope"}`)))
	readUntil(t, guest, protocol.KindError, &perr)
	assert.Equal(t, state.CodeInvalidPayload, perr.Code)
}

func TestWebSocketInvalidTokenIsAnonymous(t *testing.T) {
	_, srv := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	header := http.Header{"Authorization": []string{"Bearer not-a-token"}}
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	var info protocol.SessionInfo
	readUntil(t, c, protocol.KindSessionInfo, &info)
	assert.False(t, info.Authenticated)
}

func TestWebSocketConnectionLimit(t *testing.T) {
	_, srv := startServer(t)

	first, _, err := dial(t, srv, "bob")
	require.NoError(t, err)
	readUntil(t, first, protocol.KindSessionInfo, nil)

	_, resp, err := dial(t, srv, "bob")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// anonymous connections are not limited
	for i := 0; i < 2; i++ {
		_, _, err := dial(t, srv, "")
		require.NoError(t, err)
	}
}

func TestHealthz(t *testing.T) {
	_, srv := startServer(t)
	c, _, err := dial(t, srv, "carol")
	require.NoError(t, err)
	readUntil(t, c, protocol.KindSessionInfo, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Connections)
}

// stallingMirror holds the first Online call until release is closed.
type stallingMirror struct {
	presence.NopMirror
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (m *stallingMirror) Online(ctx context.Context, userID string) error {
	m.once.Do(func() {
		close(m.entered)
		<-m.release
	})
	return nil
}

func TestCloseDuringRegistrationDeregisters(t *testing.T) {
	cfg := testConfig()
	mirror := &stallingMirror{entered: make(chan struct{}), release: make(chan struct{})}
	app := server.NewApp(logging.Discard(), context.Background(), cfg, store.NewMemoryStore(), mirror, auth.NewJWTResolver(cfg.Auth.CookieName, secret))
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)

	c, _, err := dial(t, srv, "dave")
	require.NoError(t, err)
	go func() {
		for {
			if _, _, err := c.Read(context.Background()); err != nil {
				return
			}
		}
	}()

	select {
	case <-mirror.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("connection never reached registration")
	}
	// registered, but Connect has not returned yet
	require.Equal(t, 1, app.Engine().Stats().Connections)
	app.Engine().CloseAll(errors.New("shutting down"))
	assert.Equal(t, 0, app.Engine().Stats().Connections)

	close(mirror.release)
	assert.Eventually(t, func() bool {
		return app.Engine().Stats().Connections == 0 && app.Engine().Registry().GetUserConnectionCount("dave") == 0
	}, 2*time.Second, 10*time.Millisecond)
}
