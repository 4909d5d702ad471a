package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bizhub/platform/platform-backend/internal/auth"
)

func newTestServer(t *testing.T, m *Manager) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = m.HandleConnection(w, r, r.URL.Query().Get("tenant"), "u1")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, tenant string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?tenant=" + tenant
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestManager_BroadcastReachesTenantOnly(t *testing.T) {
	m := NewManager(zap.NewNop(), nil)
	defer m.Close()
	srv := newTestServer(t, m)

	a1 := dial(t, srv, "a")
	a2 := dial(t, srv, "a")
	b := dial(t, srv, "b")

	require.Eventually(t, func() bool {
		return m.ConnectionCount("a") == 2 && m.ConnectionCount("b") == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, m.Broadcast("a", "onboarding.step_completed", map[string]interface{}{"stepId": "signup"}))

	for _, conn := range []*websocket.Conn{a1, a2} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "onboarding.step_completed", msg.Type)
		assert.Equal(t, "a", msg.TenantID)
		assert.Equal(t, map[string]interface{}{"stepId": "signup"}, msg.Data)
	}

	require.NoError(t, b.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var msg Message
	assert.Error(t, b.ReadJSON(&msg))
}

func TestManager_UnregistersOnDisconnect(t *testing.T) {
	m := NewManager(zap.NewNop(), nil)
	defer m.Close()
	srv := newTestServer(t, m)

	conn := dial(t, srv, "a")
	require.Eventually(t, func() bool { return m.ConnectionCount("a") == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return m.ConnectionCount("a") == 0 }, time.Second, 10*time.Millisecond)

	assert.NoError(t, m.Broadcast("a", "onboarding.step_completed", nil))
}

func TestManager_Close(t *testing.T) {
	m := NewManager(zap.NewNop(), nil)
	srv := newTestServer(t, m)

	conn := dial(t, srv, "a")
	require.Eventually(t, func() bool { return m.ConnectionCount("a") == 1 }, time.Second, 10*time.Millisecond)

	m.Close()
	assert.Zero(t, m.ConnectionCount("a"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestManager_CheckOrigin(t *testing.T) {
	m := NewManager(zap.NewNop(), []string{"https://app.bizhub.io"})
	defer m.Close()
	srv := newTestServer(t, m)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?tenant=a"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://app.bizhub.io")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestManager_HandleRequiresUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewManager(zap.NewNop(), nil)
	defer m.Close()

	router := gin.New()
	router.GET("/ws", m.Handle)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	router = gin.New()
	router.GET("/ws", func(c *gin.Context) {
		auth.SetUser(c, auth.User{ID: "u1", TenantID: "t1"})
		c.Next()
	}, m.Handle)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
