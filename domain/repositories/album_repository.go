package repositories

import (
	"context"

	"github.com/google/uuid"
	"phototagger/domain/models"
)

// AlbumSummary is an album row with its aggregate image count and cover.
type AlbumSummary struct {
	Album      models.Album
	ImageCount int64
	CoverID    *uuid.UUID
}

type AlbumRepository interface {
	Create(ctx context.Context, album *models.Album) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Album, error)
	GetByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]AlbumSummary, int64, error)
	Update(ctx context.Context, id uuid.UUID, album *models.Album) error
	Delete(ctx context.Context, id uuid.UUID) error

	// Membership. AddImage ignores duplicates.
	AddImage(ctx context.Context, albumID, imageID uuid.UUID) error
	RemoveImage(ctx context.Context, albumID, imageID uuid.UUID) error
	RemoveImageFromAll(ctx context.Context, imageID uuid.UUID) error
	GetImages(ctx context.Context, albumID uuid.UUID, offset, limit int) ([]models.Image, int64, error)
	CountImages(ctx context.Context, albumID uuid.UUID) (int64, error)
}
