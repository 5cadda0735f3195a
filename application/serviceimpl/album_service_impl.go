package serviceimpl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"phototagger/domain/models"
	"phototagger/domain/repositories"
	"phototagger/domain/services"
	"phototagger/pkg/logger"
)

type AlbumServiceImpl struct {
	albumRepo repositories.AlbumRepository
	imageRepo repositories.ImageRepository
}

func NewAlbumService(albumRepo repositories.AlbumRepository, imageRepo repositories.ImageRepository) services.AlbumService {
	return &AlbumServiceImpl{
		albumRepo: albumRepo,
		imageRepo: imageRepo,
	}
}

func (s *AlbumServiceImpl) Create(ctx context.Context, userID uuid.UUID, req services.AlbumRequest) (*models.Album, error) {
	now := time.Now()
	album := &models.Album{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.albumRepo.Create(ctx, album); err != nil {
		return nil, fmt.Errorf("failed to create album: %w", err)
	}

	logger.API("album_created", "Album created", map[string]interface{}{
		"user_id":  userID.String(),
		"album_id": album.ID.String(),
	})
	return album, nil
}

func (s *AlbumServiceImpl) List(ctx context.Context, userID uuid.UUID, page, limit int) ([]services.AlbumView, int64, error) {
	offset, limit := paginate(page, limit)

	summaries, total, err := s.albumRepo.GetByUser(ctx, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}

	views := make([]services.AlbumView, 0, len(summaries))
	for _, summary := range summaries {
		views = append(views, services.AlbumView{
			Album:      summary.Album,
			ImageCount: summary.ImageCount,
			CoverID:    summary.CoverID,
		})
	}
	return views, total, nil
}

func (s *AlbumServiceImpl) Get(ctx context.Context, userID, albumID uuid.UUID) (*models.Album, error) {
	return s.ownedAlbum(ctx, userID, albumID)
}

func (s *AlbumServiceImpl) Update(ctx context.Context, userID, albumID uuid.UUID, req services.AlbumRequest) (*models.Album, error) {
	album, err := s.ownedAlbum(ctx, userID, albumID)
	if err != nil {
		return nil, err
	}

	album.Name = req.Name
	album.Description = req.Description
	album.UpdatedAt = time.Now()

	if err := s.albumRepo.Update(ctx, albumID, album); err != nil {
		return nil, fmt.Errorf("failed to update album: %w", err)
	}
	return album, nil
}

func (s *AlbumServiceImpl) Delete(ctx context.Context, userID, albumID uuid.UUID) error {
	if _, err := s.ownedAlbum(ctx, userID, albumID); err != nil {
		return err
	}

	if err := s.albumRepo.Delete(ctx, albumID); err != nil {
		return fmt.Errorf("failed to delete album: %w", err)
	}

	logger.API("album_deleted", "Album deleted", map[string]interface{}{
		"user_id":  userID.String(),
		"album_id": albumID.String(),
	})
	return nil
}

func (s *AlbumServiceImpl) AddImage(ctx context.Context, userID, albumID, imageID uuid.UUID) error {
	if _, err := s.ownedAlbum(ctx, userID, albumID); err != nil {
		return err
	}
	if err := s.checkImageOwnership(ctx, userID, imageID); err != nil {
		return err
	}

	return s.albumRepo.AddImage(ctx, albumID, imageID)
}

func (s *AlbumServiceImpl) RemoveImage(ctx context.Context, userID, albumID, imageID uuid.UUID) error {
	if _, err := s.ownedAlbum(ctx, userID, albumID); err != nil {
		return err
	}

	return s.albumRepo.RemoveImage(ctx, albumID, imageID)
}

func (s *AlbumServiceImpl) GetImages(ctx context.Context, userID, albumID uuid.UUID, page, limit int) ([]models.Image, int64, error) {
	if _, err := s.ownedAlbum(ctx, userID, albumID); err != nil {
		return nil, 0, err
	}

	offset, limit := paginate(page, limit)
	return s.albumRepo.GetImages(ctx, albumID, offset, limit)
}

func (s *AlbumServiceImpl) ownedAlbum(ctx context.Context, userID, albumID uuid.UUID) (*models.Album, error) {
	album, err := s.albumRepo.GetByID(ctx, albumID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrAlbumNotFound
		}
		return nil, err
	}
	if album.UserID != userID {
		return nil, services.ErrNotAlbumOwner
	}
	return album, nil
}

func (s *AlbumServiceImpl) checkImageOwnership(ctx context.Context, userID, imageID uuid.UUID) error {
	image, err := s.imageRepo.GetByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return services.ErrImageNotFound
		}
		return err
	}
	if image.UserID != userID {
		return services.ErrNotImageOwner
	}
	return nil
}
