package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"phototagger/domain/models"
	"phototagger/domain/repositories"
)

type AlbumRepositoryImpl struct {
	db *gorm.DB
}

func NewAlbumRepository(db *gorm.DB) repositories.AlbumRepository {
	return &AlbumRepositoryImpl{db: db}
}

func (r *AlbumRepositoryImpl) Create(ctx context.Context, album *models.Album) error {
	return r.db.WithContext(ctx).Create(album).Error
}

func (r *AlbumRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*models.Album, error) {
	var album models.Album
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&album).Error
	if err != nil {
		return nil, err
	}
	return &album, nil
}

func (r *AlbumRepositoryImpl) GetByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]repositories.AlbumSummary, int64, error) {
	var albums []models.Album
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.Album{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&albums).Error
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]repositories.AlbumSummary, 0, len(albums))
	for _, album := range albums {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.AlbumImage{}).
			Where("album_id = ?", album.ID).
			Count(&count).Error; err != nil {
			return nil, 0, err
		}

		summary := repositories.AlbumSummary{Album: album, ImageCount: count}

		// Oldest member serves as the cover
		var cover models.AlbumImage
		err := r.db.WithContext(ctx).
			Where("album_id = ?", album.ID).
			Order("created_at ASC").
			First(&cover).Error
		if err == nil {
			summary.CoverID = &cover.ImageID
		} else if err != gorm.ErrRecordNotFound {
			return nil, 0, err
		}

		summaries = append(summaries, summary)
	}

	return summaries, total, nil
}

func (r *AlbumRepositoryImpl) Update(ctx context.Context, id uuid.UUID, album *models.Album) error {
	return r.db.WithContext(ctx).Model(&models.Album{}).Where("id = ?", id).Updates(album).Error
}

func (r *AlbumRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("album_id = ?", id).Delete(&models.AlbumImage{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Album{}).Error
	})
}

func (r *AlbumRepositoryImpl) AddImage(ctx context.Context, albumID, imageID uuid.UUID) error {
	member := models.AlbumImage{
		AlbumID: albumID,
		ImageID: imageID,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "album_id"}, {Name: "image_id"}},
		DoNothing: true,
	}).Create(&member).Error
}

func (r *AlbumRepositoryImpl) RemoveImage(ctx context.Context, albumID, imageID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("album_id = ? AND image_id = ?", albumID, imageID).
		Delete(&models.AlbumImage{}).Error
}

func (r *AlbumRepositoryImpl) RemoveImageFromAll(ctx context.Context, imageID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("image_id = ?", imageID).
		Delete(&models.AlbumImage{}).Error
}

func (r *AlbumRepositoryImpl) GetImages(ctx context.Context, albumID uuid.UUID, offset, limit int) ([]models.Image, int64, error) {
	var images []models.Image
	var total int64

	base := r.db.WithContext(ctx).Model(&models.Image{}).
		Joins("JOIN album_images ON album_images.image_id = images.id").
		Where("album_images.album_id = ?", albumID)

	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := base.
		Order("album_images.created_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&images).Error

	return images, total, err
}

func (r *AlbumRepositoryImpl) CountImages(ctx context.Context, albumID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.AlbumImage{}).
		Where("album_id = ?", albumID).
		Count(&count).Error
	return count, err
}
