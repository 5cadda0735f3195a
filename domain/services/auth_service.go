package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"phototagger/domain/models"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
)

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=32"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthService interface {
	// Register creates a user and returns a signed token for it
	Register(ctx context.Context, req RegisterRequest) (token string, user *models.User, err error)

	// Login verifies credentials and returns a signed token
	Login(ctx context.Context, req LoginRequest) (token string, user *models.User, err error)

	// GetCurrentUser returns the user for an already-validated ID
	GetCurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
}
