package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"phototagger/domain/models"
)

// SearchQuery filters a user's completed images.
type SearchQuery struct {
	Tags  []string // case-insensitive, any-match
	From  *time.Time
	To    *time.Time
	Page  int
	Limit int
}

// DuplicateGroup is one cluster of visually near-identical images.
type DuplicateGroup struct {
	ImageIDs []uuid.UUID `json:"image_ids"`
	// Similarity is the mean pairwise similarity across the group,
	// display-only.
	Similarity float64 `json:"similarity"`
}

type SearchService interface {
	Search(ctx context.Context, userID uuid.UUID, query SearchQuery) ([]models.Image, int64, error)

	// FindDuplicates groups the user's fingerprinted images whose pairwise
	// Hamming distance is within threshold. Groups are computed per request
	// and never persisted; images without fingerprints are excluded.
	FindDuplicates(ctx context.Context, userID uuid.UUID, threshold int) ([]DuplicateGroup, error)
}
