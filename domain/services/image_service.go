package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"phototagger/domain/models"
)

var (
	ErrImageNotFound     = errors.New("image not found")
	ErrNotImageOwner     = errors.New("image belongs to another user")
	ErrUnsupportedUpload = errors.New("unsupported upload type")
	ErrUploadTooLarge    = errors.New("upload exceeds size limit")
	ErrTagNotFound       = errors.New("tag not found")
)

// UploadItem is one file of a multipart upload request.
type UploadItem struct {
	Filename string
	MimeType string
	Size     int64
	Data     []byte
}

// UploadResult reports the accepted record for one uploaded file.
type UploadResult struct {
	ImageID  uuid.UUID          `json:"image_id"`
	Filename string             `json:"filename"`
	Status   models.ImageStatus `json:"status"`
}

// EffectiveTag is the merged reader view of an image's tags: when a model tag
// and a user tag share a label, the higher-confidence entry wins.
type EffectiveTag struct {
	Label      string           `json:"label"`
	Confidence float64          `json:"confidence"`
	Source     models.TagSource `json:"source"`
}

// ImageDetail is an image record plus its merged tag list and signed URLs.
type ImageDetail struct {
	Image        models.Image   `json:"image"`
	Tags         []EffectiveTag `json:"tags"`
	OriginalURL  string         `json:"original_url,omitempty"`
	ThumbnailURL string         `json:"thumbnail_url,omitempty"`
}

// ProcessingStatus is the upload-poll view of one image.
type ProcessingStatus struct {
	ImageID  uuid.UUID          `json:"image_id"`
	Status   models.ImageStatus `json:"status"`
	Progress int                `json:"progress"` // percent, only meaningful while processing
	Error    string             `json:"error,omitempty"`
}

type ImageService interface {
	// Upload validates, stores, records, and enqueues each item.
	// Per-item failures are reported individually; one bad file does not
	// abort the batch.
	Upload(ctx context.Context, userID uuid.UUID, items []UploadItem) ([]UploadResult, error)

	List(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Image, int64, error)
	Get(ctx context.Context, userID, imageID uuid.UUID) (*ImageDetail, error)
	GetProcessingStatus(ctx context.Context, userID, imageID uuid.UUID) (*ProcessingStatus, error)
	Delete(ctx context.Context, userID, imageID uuid.UUID) error

	// User tags. AddTag upserts on (label, user): re-adding an existing
	// label overwrites its confidence.
	AddTag(ctx context.Context, userID, imageID uuid.UUID, label string, confidence float64) error
	RemoveTag(ctx context.Context, userID, imageID uuid.UUID, label string, source models.TagSource) error

	// SignedURL issues a time-limited download link for the original or
	// the thumbnail.
	SignedURL(ctx context.Context, userID, imageID uuid.UUID, thumbnail bool, expiry time.Duration) (string, error)
}
