package handlers

import (
	"github.com/go-playground/validator/v10"

	"phototagger/domain/services"
	"phototagger/pkg/config"
)

var validate = validator.New()

// Services contains all the services needed for handlers
type Services struct {
	AuthService   services.AuthService
	ImageService  services.ImageService
	AlbumService  services.AlbumService
	SearchService services.SearchService
}

// Handlers contains all HTTP handlers
type Handlers struct {
	AuthHandler   *AuthHandler
	ImageHandler  *ImageHandler
	AlbumHandler  *AlbumHandler
	SearchHandler *SearchHandler
	HealthHandler *HealthHandler

	// Short accessors for routes
	Auth   *AuthHandler
	Image  *ImageHandler
	Album  *AlbumHandler
	Search *SearchHandler
	Health *HealthHandler
}

// NewHandlers creates a new instance of Handlers with all dependencies
func NewHandlers(services *Services, healthHandler *HealthHandler, cfg *config.Config) *Handlers {
	authHandler := NewAuthHandler(services.AuthService)
	imageHandler := NewImageHandler(services.ImageService, cfg.Storage.URLExpiry)
	albumHandler := NewAlbumHandler(services.AlbumService)
	searchHandler := NewSearchHandler(services.SearchService)

	return &Handlers{
		AuthHandler:   authHandler,
		ImageHandler:  imageHandler,
		AlbumHandler:  albumHandler,
		SearchHandler: searchHandler,
		HealthHandler: healthHandler,

		// Short accessors
		Auth:   authHandler,
		Image:  imageHandler,
		Album:  albumHandler,
		Search: searchHandler,
		Health: healthHandler,
	}
}
