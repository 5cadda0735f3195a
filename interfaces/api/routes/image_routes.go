package routes

import (
	"github.com/gofiber/fiber/v2"

	"phototagger/interfaces/api/handlers"
	"phototagger/interfaces/api/middleware"
)

func SetupImageRoutes(api fiber.Router, h *handlers.Handlers) {
	images := api.Group("/images")
	protected := middleware.Protected()

	images.Post("/", protected, h.Image.Upload)
	images.Get("/", protected, h.Image.List)

	// Signed download URL; accepts ?token= so browsers can follow it directly.
	// Registered per-route because the group prefix would otherwise force
	// header auth onto it.
	images.Get("/:id/url", middleware.ProtectedWithQueryToken(), h.Image.GetSignedURL)

	images.Get("/:id", protected, h.Image.Get)
	images.Get("/:id/status", protected, h.Image.GetStatus)
	images.Delete("/:id", protected, h.Image.Delete)

	// Tags
	images.Post("/:id/tags", protected, h.Image.AddTag)
	images.Delete("/:id/tags/:label", protected, h.Image.RemoveTag)
}
