package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"phototagger/domain/models"
	"phototagger/domain/repositories"
)

type ImageRepositoryImpl struct {
	db *gorm.DB
}

func NewImageRepository(db *gorm.DB) repositories.ImageRepository {
	return &ImageRepositoryImpl{db: db}
}

func (r *ImageRepositoryImpl) Create(ctx context.Context, image *models.Image) error {
	return r.db.WithContext(ctx).Create(image).Error
}

func (r *ImageRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	var image models.Image
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&image).Error
	if err != nil {
		return nil, err
	}
	return &image, nil
}

func (r *ImageRepositoryImpl) GetByIDWithTags(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	var image models.Image
	err := r.db.WithContext(ctx).Preload("Tags").Where("id = ?", id).First(&image).Error
	if err != nil {
		return nil, err
	}
	return &image, nil
}

func (r *ImageRepositoryImpl) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Image, error) {
	var images []models.Image
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&images).Error
	if err != nil {
		return nil, err
	}
	return images, nil
}

func (r *ImageRepositoryImpl) GetByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]models.Image, int64, error) {
	var images []models.Image
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.Image{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&images).Error

	return images, total, err
}

func (r *ImageRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("image_id = ?", id).Delete(&models.ImageTag{}).Error; err != nil {
			return err
		}
		if err := tx.Where("image_id = ?", id).Delete(&models.AlbumImage{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Image{}).Error
	})
}

// ClaimForProcessing is the soft lock of the state machine: a single atomic
// UPDATE moves the record to processing, and RowsAffected tells the caller
// whether it won. A processing claim older than stuckTimeout counts as
// abandoned and may be taken over.
func (r *ImageRepositoryImpl) ClaimForProcessing(ctx context.Context, id uuid.UUID, stuckTimeout time.Duration) (bool, error) {
	now := time.Now()
	cutoff := now.Add(-stuckTimeout)

	result := r.db.WithContext(ctx).Model(&models.Image{}).
		Where("id = ? AND (status = ? OR (status = ? AND processing_started_at < ?))",
			id, models.ImageStatusPending, models.ImageStatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":                models.ImageStatusProcessing,
			"processing_started_at": now,
			"error":                 "",
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CompleteProcessing applies everything the pipeline derived in one
// transaction. Model tags are replaced wholesale and tag_strings is
// recomputed, so re-running the terminal write yields the same state.
func (r *ImageRepositoryImpl) CompleteProcessing(ctx context.Context, id uuid.UUID, result *repositories.ProcessingResult) error {
	now := time.Now()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("image_id = ? AND source = ?", id, models.TagSourceModel).
			Delete(&models.ImageTag{}).Error; err != nil {
			return err
		}

		for i := range result.ModelTags {
			result.ModelTags[i].ImageID = id
			result.ModelTags[i].Source = models.TagSourceModel
		}
		if len(result.ModelTags) > 0 {
			if err := tx.Create(&result.ModelTags).Error; err != nil {
				return err
			}
		}

		updates := map[string]interface{}{
			"width":        result.Width,
			"height":       result.Height,
			"format":       result.Format,
			"color_mode":   result.ColorMode,
			"size_bytes":   result.SizeBytes,
			"exif":         result.Exif,
			"phash":        result.PHash,
			"status":       models.ImageStatusCompleted,
			"error":        "",
			"processed_at": now,
		}
		if result.ThumbnailKey != "" {
			updates["thumbnail_key"] = result.ThumbnailKey
		}
		if err := tx.Model(&models.Image{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}

		return recomputeTagStrings(tx, id)
	})
}

func (r *ImageRepositoryImpl) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.Image{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.ImageStatusFailed,
			"error":        errMsg,
			"processed_at": now,
		}).Error
}

func (r *ImageRepositoryImpl) ResetStuckProcessingToPending(ctx context.Context, stuckTimeout time.Duration) ([]uuid.UUID, error) {
	cutoff := time.Now().Add(-stuckTimeout)

	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Image{}).
			Where("status = ? AND processing_started_at < ?", models.ImageStatusProcessing, cutoff).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&models.Image{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":                models.ImageStatusPending,
				"processing_started_at": nil,
			}).Error
	})
	return ids, err
}

func (r *ImageRepositoryImpl) GetStalePending(ctx context.Context, olderThan time.Duration) ([]models.Image, error) {
	cutoff := time.Now().Add(-olderThan)
	var images []models.Image
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.ImageStatusPending, cutoff).
		Find(&images).Error
	return images, err
}

func (r *ImageRepositoryImpl) GetTags(ctx context.Context, imageID uuid.UUID) ([]models.ImageTag, error) {
	var tags []models.ImageTag
	err := r.db.WithContext(ctx).
		Where("image_id = ?", imageID).
		Order("confidence DESC").
		Find(&tags).Error
	return tags, err
}

func (r *ImageRepositoryImpl) UpsertUserTag(ctx context.Context, imageID uuid.UUID, label string, confidence float64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tag := models.ImageTag{
			ImageID:    imageID,
			Label:      label,
			Source:     models.TagSourceUser,
			Confidence: confidence,
		}
		// Last writer wins on confidence for an existing (label, user) pair
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "image_id"}, {Name: "label"}, {Name: "source"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"confidence": confidence}),
		}).Create(&tag).Error; err != nil {
			return err
		}

		return recomputeTagStrings(tx, imageID)
	})
}

func (r *ImageRepositoryImpl) RemoveTag(ctx context.Context, imageID uuid.UUID, label string, source models.TagSource) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("image_id = ? AND label = ? AND source = ?", imageID, label, source).
			Delete(&models.ImageTag{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return recomputeTagStrings(tx, imageID)
	})
}

// recomputeTagStrings rebuilds the denormalized lowercase label array from
// the image_tags rows inside the same transaction.
func recomputeTagStrings(tx *gorm.DB, imageID uuid.UUID) error {
	var labels []string
	if err := tx.Model(&models.ImageTag{}).
		Distinct("LOWER(label)").
		Where("image_id = ?", imageID).
		Pluck("LOWER(label)", &labels).Error; err != nil {
		return err
	}

	return tx.Model(&models.Image{}).
		Where("id = ?", imageID).
		Update("tag_strings", pq.StringArray(labels)).Error
}

func (r *ImageRepositoryImpl) Search(ctx context.Context, userID uuid.UUID, tags []string, from, to *time.Time, offset, limit int) ([]models.Image, int64, error) {
	var images []models.Image
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Image{}).
		Where("user_id = ? AND status = ?", userID, models.ImageStatusCompleted)

	if len(tags) > 0 {
		lowered := make([]string, len(tags))
		for i, t := range tags {
			lowered[i] = strings.ToLower(strings.TrimSpace(t))
		}
		query = query.Where("tag_strings && ?", pq.StringArray(lowered))
	}
	if from != nil {
		query = query.Where("created_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("created_at <= ?", *to)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&images).Error

	return images, total, err
}

func (r *ImageRepositoryImpl) GetCompletedWithFingerprint(ctx context.Context, userID uuid.UUID) ([]models.Image, error) {
	var images []models.Image
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND phash <> ''", userID, models.ImageStatusCompleted).
		Order("created_at ASC").
		Find(&images).Error
	return images, err
}

func (r *ImageRepositoryImpl) Count(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Image{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

func (r *ImageRepositoryImpl) CountByStatus(ctx context.Context, userID uuid.UUID, status models.ImageStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Image{}).
		Where("user_id = ? AND status = ?", userID, status).
		Count(&count).Error
	return count, err
}

func (r *ImageRepositoryImpl) CountAllByStatus(ctx context.Context, status models.ImageStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Image{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
