package routes

import (
	"github.com/gofiber/fiber/v2"

	"phototagger/interfaces/api/handlers"
	"phototagger/pkg/config"
)

func SetupRoutes(app *fiber.App, h *handlers.Handlers, cfg *config.Config) {
	// Setup health and root routes
	SetupHealthRoutes(app, h)

	// API version group
	api := app.Group("/api/v1")

	// Setup all route groups
	SetupAuthRoutes(api, h, &cfg.RateLimit)
	SetupImageRoutes(api, h)
	SetupAlbumRoutes(api, h)
	SetupSearchRoutes(api, h)

	// Setup WebSocket routes (needs app, not api group)
	SetupWebSocketRoutes(app)
}
