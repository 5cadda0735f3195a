package websocket

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	websocketManager "phototagger/infrastructure/websocket"
	"phototagger/pkg/logger"
	"phototagger/pkg/utils"
)

type WebSocketHandler struct{}

func NewWebSocketHandler() *WebSocketHandler {
	return &WebSocketHandler{}
}

func (h *WebSocketHandler) WebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// HandleWebSocket runs one client's read loop. Processing updates are scoped
// to the image owner, so unauthenticated connections are rejected.
func (h *WebSocketHandler) HandleWebSocket(c *websocket.Conn) {
	var userID uuid.UUID

	// Set by OptionalWithQueryToken from the Authorization header or ?token=
	if userContext := c.Locals("user"); userContext != nil {
		if user, ok := userContext.(*utils.UserContext); ok {
			userID = user.ID
		}
	}

	if userID == uuid.Nil {
		logger.WebSocket("rejected", "Unauthenticated WebSocket connection rejected", nil)
		c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required"))
		c.Close()
		return
	}

	logger.WebSocket("connected", "User connected", map[string]interface{}{
		"user_id": userID.String(),
	})

	websocketManager.Manager.RegisterClient(c, userID)
	defer websocketManager.Manager.UnregisterClient(c)

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			logger.WebSocketError("read_message", "WebSocket read error", err, map[string]interface{}{
				"user_id": userID.String(),
			})
			break
		}

		websocketManager.HandleWebSocketMessage(c, messageType, message)
	}
}
