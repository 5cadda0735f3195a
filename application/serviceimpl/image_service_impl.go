package serviceimpl

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"phototagger/domain/models"
	"phototagger/domain/repositories"
	"phototagger/domain/services"
	"phototagger/infrastructure/queue"
	"phototagger/infrastructure/storage"
	"phototagger/pkg/logger"
)

// allowedUploadTypes maps accepted MIME types to their canonical extension.
var allowedUploadTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

type ImageServiceImpl struct {
	imageRepo      repositories.ImageRepository
	albumRepo      repositories.AlbumRepository
	store          storage.ObjectStorage
	jobs           queue.JobQueue
	maxUploadBytes int64
	urlExpiry      time.Duration
}

func NewImageService(
	imageRepo repositories.ImageRepository,
	albumRepo repositories.AlbumRepository,
	store storage.ObjectStorage,
	jobs queue.JobQueue,
	maxUploadBytes int64,
	urlExpiry time.Duration,
) services.ImageService {
	return &ImageServiceImpl{
		imageRepo:      imageRepo,
		albumRepo:      albumRepo,
		store:          store,
		jobs:           jobs,
		maxUploadBytes: maxUploadBytes,
		urlExpiry:      urlExpiry,
	}
}

func (s *ImageServiceImpl) Upload(ctx context.Context, userID uuid.UUID, items []services.UploadItem) ([]services.UploadResult, error) {
	results := make([]services.UploadResult, 0, len(items))

	for _, item := range items {
		result, err := s.uploadOne(ctx, userID, item)
		if err != nil {
			// One bad file does not abort the batch; report it as failed
			logger.API("upload_rejected", "Upload item rejected", map[string]interface{}{
				"user_id":  userID.String(),
				"filename": item.Filename,
				"error":    err.Error(),
			})
			results = append(results, services.UploadResult{
				Filename: item.Filename,
				Status:   models.ImageStatusFailed,
			})
			continue
		}
		results = append(results, *result)
	}

	return results, nil
}

func (s *ImageServiceImpl) uploadOne(ctx context.Context, userID uuid.UUID, item services.UploadItem) (*services.UploadResult, error) {
	ext, ok := allowedUploadTypes[item.MimeType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", services.ErrUnsupportedUpload, item.MimeType)
	}
	if s.maxUploadBytes > 0 && int64(len(item.Data)) > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes", services.ErrUploadTooLarge, len(item.Data))
	}

	imageID := uuid.New()
	storageKey := fmt.Sprintf("%s/%s.%s", userID, imageID, ext)

	if err := s.store.Put(ctx, storageKey, item.Data, item.MimeType); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	image := &models.Image{
		ID:               imageID,
		UserID:           userID,
		StorageKey:       storageKey,
		OriginalFilename: filepath.Base(item.Filename),
		MimeType:         item.MimeType,
		SizeBytes:        int64(len(item.Data)),
		Status:           models.ImageStatusPending,
	}
	if err := s.imageRepo.Create(ctx, image); err != nil {
		// Roll back the orphan blob; the record is the source of truth
		_ = s.store.Delete(ctx, storageKey)
		return nil, fmt.Errorf("failed to create image record: %w", err)
	}

	if err := s.jobs.Enqueue(ctx, imageID); err != nil {
		// Record stays pending; the stale reaper or a manual requeue
		// handles it if Redis stays down
		logger.QueueError("enqueue", "Failed to enqueue upload", err, map[string]interface{}{
			"image_id": imageID.String(),
		})
	}

	logger.API("upload_accepted", "Upload accepted", map[string]interface{}{
		"user_id":  userID.String(),
		"image_id": imageID.String(),
		"size":     len(item.Data),
	})

	return &services.UploadResult{
		ImageID:  imageID,
		Filename: item.Filename,
		Status:   models.ImageStatusPending,
	}, nil
}

func (s *ImageServiceImpl) List(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Image, int64, error) {
	offset, limit := paginate(page, limit)
	return s.imageRepo.GetByUser(ctx, userID, offset, limit)
}

func (s *ImageServiceImpl) Get(ctx context.Context, userID, imageID uuid.UUID) (*services.ImageDetail, error) {
	image, err := s.ownedImage(ctx, userID, imageID)
	if err != nil {
		return nil, err
	}

	tags, err := s.imageRepo.GetTags(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tags: %w", err)
	}

	detail := &services.ImageDetail{
		Image: *image,
		Tags:  MergeEffectiveTags(tags),
	}

	if url, err := s.store.PresignedURL(ctx, image.StorageKey, s.urlExpiry); err == nil {
		detail.OriginalURL = url
	}
	if image.ThumbnailKey != "" {
		if url, err := s.store.PresignedURL(ctx, image.ThumbnailKey, s.urlExpiry); err == nil {
			detail.ThumbnailURL = url
		}
	}

	return detail, nil
}

// MergeEffectiveTags merges model and user tags into one reader view: when
// both sources carry the same label, the higher-confidence entry wins.
func MergeEffectiveTags(tags []models.ImageTag) []services.EffectiveTag {
	best := make(map[string]services.EffectiveTag)
	order := make([]string, 0, len(tags))

	for _, tag := range tags {
		key := strings.ToLower(tag.Label)
		existing, ok := best[key]
		if !ok {
			order = append(order, key)
		}
		if !ok || tag.Confidence > existing.Confidence {
			best[key] = services.EffectiveTag{
				Label:      tag.Label,
				Confidence: tag.Confidence,
				Source:     tag.Source,
			}
		}
	}

	merged := make([]services.EffectiveTag, 0, len(order))
	for _, key := range order {
		merged = append(merged, best[key])
	}
	return merged
}

func (s *ImageServiceImpl) GetProcessingStatus(ctx context.Context, userID, imageID uuid.UUID) (*services.ProcessingStatus, error) {
	image, err := s.ownedImage(ctx, userID, imageID)
	if err != nil {
		return nil, err
	}

	status := &services.ProcessingStatus{
		ImageID: image.ID,
		Status:  image.Status,
		Error:   image.Error,
	}

	switch image.Status {
	case models.ImageStatusCompleted:
		status.Progress = 100
	case models.ImageStatusProcessing:
		if p, err := s.jobs.GetProgress(ctx, imageID); err == nil {
			status.Progress = p
		}
	}

	return status, nil
}

func (s *ImageServiceImpl) Delete(ctx context.Context, userID, imageID uuid.UUID) error {
	image, err := s.ownedImage(ctx, userID, imageID)
	if err != nil {
		return err
	}

	// Blob deletes are best-effort; the record delete is authoritative
	if err := s.store.Delete(ctx, image.StorageKey); err != nil {
		logger.StorageError("delete_blob", "Failed to delete original blob", err, map[string]interface{}{
			"image_id": imageID.String(),
		})
	}
	if image.ThumbnailKey != "" {
		if err := s.store.Delete(ctx, image.ThumbnailKey); err != nil {
			logger.StorageError("delete_blob", "Failed to delete thumbnail blob", err, map[string]interface{}{
				"image_id": imageID.String(),
			})
		}
	}

	if err := s.albumRepo.RemoveImageFromAll(ctx, imageID); err != nil {
		return fmt.Errorf("failed to remove album memberships: %w", err)
	}

	if err := s.imageRepo.Delete(ctx, imageID); err != nil {
		return fmt.Errorf("failed to delete image record: %w", err)
	}

	logger.API("image_deleted", "Image deleted", map[string]interface{}{
		"user_id":  userID.String(),
		"image_id": imageID.String(),
	})
	return nil
}

func (s *ImageServiceImpl) AddTag(ctx context.Context, userID, imageID uuid.UUID, label string, confidence float64) error {
	if _, err := s.ownedImage(ctx, userID, imageID); err != nil {
		return err
	}

	label = strings.TrimSpace(label)
	if label == "" {
		return errors.New("tag label must not be empty")
	}
	if confidence < 0 || confidence > 1 {
		return errors.New("tag confidence must be within [0, 1]")
	}

	return s.imageRepo.UpsertUserTag(ctx, imageID, label, confidence)
}

func (s *ImageServiceImpl) RemoveTag(ctx context.Context, userID, imageID uuid.UUID, label string, source models.TagSource) error {
	if _, err := s.ownedImage(ctx, userID, imageID); err != nil {
		return err
	}

	if err := s.imageRepo.RemoveTag(ctx, imageID, label, source); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return services.ErrTagNotFound
		}
		return err
	}
	return nil
}

func (s *ImageServiceImpl) SignedURL(ctx context.Context, userID, imageID uuid.UUID, thumbnail bool, expiry time.Duration) (string, error) {
	image, err := s.ownedImage(ctx, userID, imageID)
	if err != nil {
		return "", err
	}

	key := image.StorageKey
	if thumbnail {
		if image.ThumbnailKey == "" {
			return "", services.ErrImageNotFound
		}
		key = image.ThumbnailKey
	}

	if expiry <= 0 {
		expiry = s.urlExpiry
	}
	return s.store.PresignedURL(ctx, key, expiry)
}

// ownedImage loads the image and enforces ownership.
func (s *ImageServiceImpl) ownedImage(ctx context.Context, userID, imageID uuid.UUID) (*models.Image, error) {
	image, err := s.imageRepo.GetByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrImageNotFound
		}
		return nil, err
	}
	if image.UserID != userID {
		return nil, services.ErrNotImageOwner
	}
	return image, nil
}

func paginate(page, limit int) (offset, capped int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return (page - 1) * limit, limit
}
