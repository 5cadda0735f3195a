package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"phototagger/domain/services"
	"phototagger/pkg/logger"
	"phototagger/pkg/utils"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

type authResponse struct {
	Token string      `json:"token"`
	User  interface{} `json:"user"`
}

// Register creates a new account and returns a signed token
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req services.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestResponse(c, "Invalid request body", err)
	}
	if err := validate.Struct(req); err != nil {
		return utils.BadRequestResponse(c, "Validation failed", err)
	}

	token, user, err := h.authService.Register(c.UserContext(), req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmailTaken), errors.Is(err, services.ErrUsernameTaken):
			return utils.ErrorResponse(c, fiber.StatusConflict, "Account already exists", err)
		default:
			logger.AuthError("REGISTER_ERROR", "Registration failed", err, map[string]interface{}{
				"ip": c.IP(),
			})
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Registration failed", err)
		}
	}

	logger.Auth("REGISTER_SUCCESS", "User registered", map[string]interface{}{
		"user_id": user.ID.String(),
		"email":   user.Email,
	})

	return utils.CreatedResponse(c, "Account created", authResponse{Token: token, User: user})
}

// Login verifies credentials and returns a signed token
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req services.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.BadRequestResponse(c, "Invalid request body", err)
	}
	if err := validate.Struct(req); err != nil {
		return utils.BadRequestResponse(c, "Validation failed", err)
	}

	token, user, err := h.authService.Login(c.UserContext(), req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			logger.Auth("LOGIN_REJECTED", "Invalid credentials", map[string]interface{}{
				"ip": c.IP(),
			})
			return utils.UnauthorizedResponse(c, "Invalid email or password")
		}
		logger.AuthError("LOGIN_ERROR", "Login failed", err, nil)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Login failed", err)
	}

	logger.Auth("LOGIN_SUCCESS", "User logged in", map[string]interface{}{
		"user_id": user.ID.String(),
	})

	return utils.SuccessResponse(c, "Logged in", authResponse{Token: token, User: user})
}

// GetCurrentUser returns the current authenticated user
func (h *AuthHandler) GetCurrentUser(c *fiber.Ctx) error {
	userCtx, err := utils.GetUserFromContext(c)
	if err != nil {
		return utils.UnauthorizedResponse(c, "Not authenticated")
	}

	user, err := h.authService.GetCurrentUser(c.UserContext(), userCtx.ID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return utils.NotFoundResponse(c, "User not found")
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get user", err)
	}

	return utils.SuccessResponse(c, "User retrieved successfully", user)
}
