package routes

import (
	"github.com/gofiber/fiber/v2"

	"phototagger/interfaces/api/handlers"
)

func SetupHealthRoutes(app *fiber.App, h *handlers.Handlers) {
	app.Get("/health", h.Health.Health)

	// Detailed health check (checks all components)
	app.Get("/health/detailed", h.Health.DetailedHealth)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Photo Tagger API",
			"version": "1.0.0",
			"docs":    "/api/v1",
			"health":  "/health",
		})
	})
}
