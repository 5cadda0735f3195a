package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"phototagger/domain/models"
)

var (
	ErrAlbumNotFound = errors.New("album not found")
	ErrNotAlbumOwner = errors.New("album belongs to another user")
)

type AlbumRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=128"`
	Description string `json:"description" validate:"max=1024"`
}

// AlbumView is an album with its aggregate counts for listings.
type AlbumView struct {
	Album      models.Album `json:"album"`
	ImageCount int64        `json:"image_count"`
	CoverID    *uuid.UUID   `json:"cover_id,omitempty"`
}

type AlbumService interface {
	Create(ctx context.Context, userID uuid.UUID, req AlbumRequest) (*models.Album, error)
	List(ctx context.Context, userID uuid.UUID, page, limit int) ([]AlbumView, int64, error)
	Get(ctx context.Context, userID, albumID uuid.UUID) (*models.Album, error)
	Update(ctx context.Context, userID, albumID uuid.UUID, req AlbumRequest) (*models.Album, error)
	Delete(ctx context.Context, userID, albumID uuid.UUID) error

	// Membership. Both album and image must belong to userID; adding an
	// image twice is a no-op.
	AddImage(ctx context.Context, userID, albumID, imageID uuid.UUID) error
	RemoveImage(ctx context.Context, userID, albumID, imageID uuid.UUID) error
	GetImages(ctx context.Context, userID, albumID uuid.UUID, page, limit int) ([]models.Image, int64, error)
}
