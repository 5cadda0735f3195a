package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"phototagger/pkg/logger"
)

// Event is the envelope for every message pushed to clients.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Conn is the writable side of a websocket connection. The underlying
// library tolerates only one writer at a time, so every write goes through
// the owning Client's mutex.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
}

type Client struct {
	Conn        Conn
	UserID      uuid.UUID
	ConnectedAt time.Time

	writeMu sync.Mutex
}

// write serializes writes to the connection. Worker broadcasts and the read
// loop's pong replies share it.
func (c *Client) write(messageType int, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(messageType, payload)
}

// ClientManager tracks live connections per user so workers can push
// processing updates to the owner of an image.
type ClientManager struct {
	mu      sync.RWMutex
	clients map[Conn]*Client
	byUser  map[uuid.UUID]map[Conn]bool
}

// Manager is the process-wide connection registry.
var Manager = NewClientManager()

func NewClientManager() *ClientManager {
	return &ClientManager{
		clients: make(map[Conn]*Client),
		byUser:  make(map[uuid.UUID]map[Conn]bool),
	}
}

func (m *ClientManager) RegisterClient(conn Conn, userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clients[conn] = &Client{
		Conn:        conn,
		UserID:      userID,
		ConnectedAt: time.Now(),
	}
	if m.byUser[userID] == nil {
		m.byUser[userID] = make(map[Conn]bool)
	}
	m.byUser[userID][conn] = true

	logger.WebSocket("client_registered", "WebSocket client registered", map[string]interface{}{
		"user_id":     userID.String(),
		"connections": len(m.clients),
	})
}

func (m *ClientManager) UnregisterClient(conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, ok := m.clients[conn]
	if !ok {
		return
	}
	delete(m.clients, conn)

	if conns := m.byUser[client.UserID]; conns != nil {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(m.byUser, client.UserID)
		}
	}

	logger.WebSocket("client_unregistered", "WebSocket client unregistered", map[string]interface{}{
		"user_id":     client.UserID.String(),
		"connections": len(m.clients),
	})
}

// BroadcastToUser pushes an event to every live connection of one user.
// Write failures are logged and the connection dropped from the registry.
func (m *ClientManager) BroadcastToUser(userID uuid.UUID, event string, data interface{}) {
	payload, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		logger.WebSocketError("broadcast_marshal", "Failed to marshal event", err, map[string]interface{}{
			"event": event,
		})
		return
	}

	m.mu.RLock()
	targets := make([]*Client, 0, len(m.byUser[userID]))
	for conn := range m.byUser[userID] {
		if client, ok := m.clients[conn]; ok {
			targets = append(targets, client)
		}
	}
	m.mu.RUnlock()

	for _, client := range targets {
		if err := client.write(websocket.TextMessage, payload); err != nil {
			logger.WebSocketError("broadcast_write", "Failed to push event, dropping connection", err, map[string]interface{}{
				"user_id": userID.String(),
				"event":   event,
			})
			m.UnregisterClient(client.Conn)
		}
	}
}

// WriteTo pushes a payload to one registered connection, serialized against
// broadcasts targeting it. Unregistered connections are ignored.
func (m *ClientManager) WriteTo(conn Conn, messageType int, payload []byte) error {
	m.mu.RLock()
	client, ok := m.clients[conn]
	m.mu.RUnlock()

	if !ok {
		return nil
	}
	return client.write(messageType, payload)
}

// ConnectionCount reports the number of live connections.
func (m *ClientManager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// HandleWebSocketMessage answers client pings; everything else is ignored.
func HandleWebSocketMessage(conn Conn, messageType int, message []byte) {
	if messageType != websocket.TextMessage {
		return
	}

	var incoming Event
	if err := json.Unmarshal(message, &incoming); err != nil {
		return
	}

	if incoming.Event == "ping" {
		payload, _ := json.Marshal(Event{Event: "pong"})
		_ = Manager.WriteTo(conn, websocket.TextMessage, payload)
	}
}
