package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type ImageStatus string

const (
	ImageStatusPending    ImageStatus = "pending"
	ImageStatusProcessing ImageStatus = "processing"
	ImageStatusCompleted  ImageStatus = "completed"
	ImageStatusFailed     ImageStatus = "failed"
)

type TagSource string

const (
	TagSourceModel TagSource = "model"
	TagSourceUser  TagSource = "user"
)

type Image struct {
	ID     uuid.UUID `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index"`

	// Blob store keys
	StorageKey   string `gorm:"uniqueIndex;not null"` // {user_id}/{uuid}.{ext}
	ThumbnailKey string

	// Upload-time info
	OriginalFilename string
	MimeType         string
	SizeBytes        int64

	// Derived metadata, written only by the worker's terminal transaction
	Width     int
	Height    int
	Format    string // jpeg, png, webp, ...
	ColorMode string // RGB after canonicalization
	Exif      string `gorm:"type:jsonb;default:'{}'"`
	PHash     string `gorm:"column:phash;index"` // lowercase hex fingerprint, empty when unavailable

	// Denormalized lowercase labels for tag search
	TagStrings pq.StringArray `gorm:"type:text[]"`

	// Processing state machine
	Status              ImageStatus `gorm:"default:'pending';index"`
	Error               string
	ProcessingStartedAt *time.Time
	ProcessedAt         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// Relations
	User *User      `gorm:"foreignKey:UserID"`
	Tags []ImageTag `gorm:"foreignKey:ImageID"`
}

func (Image) TableName() string {
	return "images"
}

type ImageTag struct {
	ID         uuid.UUID `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	ImageID    uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_image_label_source"`
	Label      string    `gorm:"not null;uniqueIndex:idx_image_label_source"`
	Source     TagSource `gorm:"not null;uniqueIndex:idx_image_label_source"`
	Confidence float64   `gorm:"not null"` // in [0,1]

	CreatedAt time.Time
}

func (ImageTag) TableName() string {
	return "image_tags"
}
