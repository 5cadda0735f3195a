package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"phototagger/domain/models"
)

// ProcessingResult carries everything the worker derived for one image. It is
// applied in a single transaction so readers never observe a partially
// processed record.
type ProcessingResult struct {
	Width        int
	Height       int
	Format       string
	ColorMode    string
	SizeBytes    int64
	Exif         string // JSON object
	PHash        string // empty when the fingerprint could not be computed
	ThumbnailKey string // empty when thumbnail generation/upload failed
	ModelTags    []models.ImageTag
}

type ImageRepository interface {
	// CRUD
	Create(ctx context.Context, image *models.Image) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Image, error)
	GetByIDWithTags(ctx context.Context, id uuid.UUID) (*models.Image, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Image, error)
	GetByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.Image, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Processing state machine. ClaimForProcessing atomically moves a pending
	// record (or a processing record whose claim is older than stuckTimeout)
	// to processing and reports whether this caller won the claim.
	ClaimForProcessing(ctx context.Context, id uuid.UUID, stuckTimeout time.Duration) (bool, error)
	CompleteProcessing(ctx context.Context, id uuid.UUID, result *ProcessingResult) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	// ResetStuckProcessingToPending returns the IDs it moved back so the
	// caller can re-enqueue them.
	ResetStuckProcessingToPending(ctx context.Context, stuckTimeout time.Duration) ([]uuid.UUID, error)
	GetStalePending(ctx context.Context, olderThan time.Duration) ([]models.Image, error)

	// Tags
	GetTags(ctx context.Context, imageID uuid.UUID) ([]models.ImageTag, error)
	UpsertUserTag(ctx context.Context, imageID uuid.UUID, label string, confidence float64) error
	RemoveTag(ctx context.Context, imageID uuid.UUID, label string, source models.TagSource) error

	// Search
	Search(ctx context.Context, userID uuid.UUID, tags []string, from, to *time.Time, offset, limit int) ([]models.Image, int64, error)
	GetCompletedWithFingerprint(ctx context.Context, userID uuid.UUID) ([]models.Image, error)

	Count(ctx context.Context, userID uuid.UUID) (int64, error)
	CountByStatus(ctx context.Context, userID uuid.UUID, status models.ImageStatus) (int64, error)
	CountAllByStatus(ctx context.Context, status models.ImageStatus) (int64, error)
}
