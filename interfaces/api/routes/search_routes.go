package routes

import (
	"github.com/gofiber/fiber/v2"

	"phototagger/interfaces/api/handlers"
	"phototagger/interfaces/api/middleware"
)

func SetupSearchRoutes(api fiber.Router, h *handlers.Handlers) {
	search := api.Group("/search", middleware.Protected())

	search.Get("/", h.Search.Search)
	search.Get("/duplicates", h.Search.FindDuplicates)
}
