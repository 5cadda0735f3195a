package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"phototagger/pkg/logger"
)

// LoggerMiddleware logs every request with method, path, status, and latency
func LoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		logger.API("request", "Request handled", map[string]interface{}{
			"method":  c.Method(),
			"path":    c.Path(),
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start).String(),
			"ip":      c.IP(),
		})

		return err
	}
}
