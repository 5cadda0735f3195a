package routes

import (
	"github.com/gofiber/fiber/v2"

	"phototagger/interfaces/api/handlers"
	"phototagger/interfaces/api/middleware"
)

func SetupAlbumRoutes(api fiber.Router, h *handlers.Handlers) {
	albums := api.Group("/albums", middleware.Protected())

	albums.Post("/", h.Album.Create)
	albums.Get("/", h.Album.List)
	albums.Get("/:id", h.Album.Get)
	albums.Put("/:id", h.Album.Update)
	albums.Delete("/:id", h.Album.Delete)

	// Membership
	albums.Get("/:id/images", h.Album.GetImages)
	albums.Post("/:id/images/:imageId", h.Album.AddImage)
	albums.Delete("/:id/images/:imageId", h.Album.RemoveImage)
}
