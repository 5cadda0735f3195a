package routes

import (
	"github.com/gofiber/fiber/v2"

	"phototagger/interfaces/api/handlers"
	"phototagger/interfaces/api/middleware"
	"phototagger/pkg/config"
)

func SetupAuthRoutes(api fiber.Router, h *handlers.Handlers, rateLimitCfg *config.RateLimitConfig) {
	auth := api.Group("/auth")

	// Credential endpoints get the stricter limiter
	authLimiter := middleware.AuthRateLimiter(rateLimitCfg)
	auth.Post("/register", authLimiter, h.Auth.Register)
	auth.Post("/login", authLimiter, h.Auth.Login)

	// Protected routes
	auth.Get("/me", middleware.Protected(), h.Auth.GetCurrentUser)
}
