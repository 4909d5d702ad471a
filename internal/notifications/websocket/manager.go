package websocket

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"bizhub/platform/platform-backend/internal/auth"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

// Message is pushed to every connection of a tenant
type Message struct {
	Type      string      `json:"type"`
	TenantID  string      `json:"tenant_id"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Connection represents a WebSocket client connection
type Connection struct {
	ID        string
	TenantID  string
	UserID    string
	Conn      *websocket.Conn
	Send      chan Message
	closeOnce sync.Once
}

// Manager tracks connections per tenant and fans messages out to them.
// Clients only receive; anything they send is discarded.
type Manager struct {
	mu       sync.RWMutex
	tenants  map[string]map[*Connection]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewManager creates a new WebSocket manager
func NewManager(logger *zap.Logger, allowedOrigins []string) *Manager {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Manager{
		tenants: make(map[string]map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || origins["*"] || origins[origin]
			},
		},
		logger: logger,
	}
}

// Handle upgrades an authenticated request into a tenant connection
func (m *Manager) Handle(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if _, err := m.HandleConnection(c.Writer, c.Request, user.TenantID, user.ID); err != nil {
		m.logger.Warn("WebSocket upgrade failed", zap.String("tenant_id", user.TenantID), zap.Error(err))
	}
}

// HandleConnection handles new WebSocket connections
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, tenantID, userID string) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		UserID:   userID,
		Conn:     conn,
		Send:     make(chan Message, sendBuffer),
	}

	m.mu.Lock()
	if m.tenants[tenantID] == nil {
		m.tenants[tenantID] = make(map[*Connection]struct{})
	}
	m.tenants[tenantID][connection] = struct{}{}
	m.mu.Unlock()

	m.logger.Debug("WebSocket connection registered",
		zap.String("connection_id", connection.ID),
		zap.String("tenant_id", tenantID))

	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

// Broadcast sends a message to every connection of tenantID. Connections
// whose buffer is full miss the message.
func (m *Manager) Broadcast(tenantID, eventType string, payload interface{}) error {
	msg := Message{
		Type:      eventType,
		TenantID:  tenantID,
		Data:      payload,
		Timestamp: time.Now(),
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	dropped := 0
	for conn := range m.tenants[tenantID] {
		select {
		case conn.Send <- msg:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%d connection buffers full, message %s dropped", dropped, eventType)
	}
	return nil
}

// ConnectionCount returns the number of open connections for tenantID
func (m *Manager) ConnectionCount(tenantID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tenants[tenantID])
}

// Close disconnects every client
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tenantID, conns := range m.tenants {
		for conn := range conns {
			conn.closeSend()
		}
		delete(m.tenants, tenantID)
	}
}

func (m *Manager) unregister(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conns, ok := m.tenants[conn.TenantID]; ok {
		if _, ok := conns[conn]; ok {
			delete(conns, conn)
			conn.closeSend()
		}
		if len(conns) == 0 {
			delete(m.tenants, conn.TenantID)
		}
	}
}

func (c *Connection) closeSend() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// readPump keeps the read deadline fresh and detects disconnects
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		m.unregister(conn)
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Debug("WebSocket read error", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}
	}
}

// writePump pumps messages from Send to the WebSocket connection
func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
