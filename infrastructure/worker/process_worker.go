package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"phototagger/domain/models"
	"phototagger/domain/repositories"
	"phototagger/infrastructure/detector"
	"phototagger/infrastructure/imaging"
	"phototagger/infrastructure/queue"
	"phototagger/infrastructure/storage"
	"phototagger/pkg/logger"
)

// Broadcaster pushes processing events to a user's live connections.
type Broadcaster interface {
	BroadcastToUser(userID uuid.UUID, event string, data interface{})
}

// Fingerprinter computes perceptual fingerprints. Satisfied by *phash.Engine.
type Fingerprinter interface {
	Compute(img image.Image) (string, error)
}

// Config tunes the worker pool.
type Config struct {
	WorkerCount            int
	JobTimeout             time.Duration
	StuckProcessingTimeout time.Duration
	Retry                  RetryPolicy
}

// ProcessWorker moves uploaded images through the processing state machine:
// claim, normalize, fingerprint, detect, and a single terminal write.
type ProcessWorker struct {
	imageRepo   repositories.ImageRepository
	store       storage.ObjectStorage
	jobs        queue.JobQueue
	normalizer  *imaging.Normalizer
	hashEngine  Fingerprinter
	det         detector.Detector // nil when detection is disabled
	broadcaster Broadcaster

	config Config

	// Worker control
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.Mutex

	// Circuit breaker for the detector service
	circuitBreaker *CircuitBreaker

	processed int64
	failed    int64
}

func NewProcessWorker(
	imageRepo repositories.ImageRepository,
	store storage.ObjectStorage,
	jobs queue.JobQueue,
	normalizer *imaging.Normalizer,
	hashEngine Fingerprinter,
	det detector.Detector,
	broadcaster Broadcaster,
	config Config,
) *ProcessWorker {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 4
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 5 * time.Minute
	}
	if config.StuckProcessingTimeout <= 0 {
		config.StuckProcessingTimeout = 10 * time.Minute
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = DefaultRetryPolicy()
	}

	return &ProcessWorker{
		imageRepo:      imageRepo,
		store:          store,
		jobs:           jobs,
		normalizer:     normalizer,
		hashEngine:     hashEngine,
		det:            det,
		broadcaster:    broadcaster,
		config:         config,
		circuitBreaker: NewCircuitBreaker(10, 60*time.Second),
	}
}

// Start launches the worker pool.
func (w *ProcessWorker) Start() {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	for i := 0; i < w.config.WorkerCount; i++ {
		w.wg.Add(1)
		go w.run(i)
	}

	logger.Pipeline("worker_started", "Processing worker pool started", map[string]interface{}{
		"workers": w.config.WorkerCount,
	})
}

// Stop drains the pool gracefully.
func (w *ProcessWorker) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = false
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	logger.Pipeline("worker_stopped", "Processing worker pool stopped", nil)
}

func (w *ProcessWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isRunning
}

// run is one worker goroutine's consume loop.
func (w *ProcessWorker) run(workerID int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		imageID, err := w.jobs.Dequeue(w.ctx, 5*time.Second)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) || w.ctx.Err() != nil {
				continue
			}
			logger.QueueError("dequeue", "Failed to dequeue job", err, map[string]interface{}{
				"worker": workerID,
			})
			// Back off so a broken queue does not spin the loop
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		w.handleJob(imageID)
	}
}

// handleJob claims the record and drives the attempt loop for one image.
func (w *ProcessWorker) handleJob(imageID uuid.UUID) {
	ctx, cancel := context.WithTimeout(w.ctx, w.config.JobTimeout)
	defer cancel()

	claimed, err := w.imageRepo.ClaimForProcessing(ctx, imageID, w.config.StuckProcessingTimeout)
	if err != nil {
		logger.PipelineError("claim", "Failed to claim image", err, map[string]interface{}{
			"image_id": imageID.String(),
		})
		return
	}
	if !claimed {
		// Another worker owns this job, or it is already terminal
		logger.Pipeline("claim_lost", "Image already claimed, skipping", map[string]interface{}{
			"image_id": imageID.String(),
		})
		return
	}

	image, err := w.imageRepo.GetByID(ctx, imageID)
	if err != nil {
		logger.PipelineError("load_record", "Failed to load image record", err, map[string]interface{}{
			"image_id": imageID.String(),
		})
		return
	}

	if err := w.processWithRetry(ctx, image); err != nil {
		atomic.AddInt64(&w.failed, 1)
		w.failImage(ctx, image, err)
		return
	}

	atomic.AddInt64(&w.processed, 1)
}

// processWithRetry runs the attempt loop. Invalid image data short-circuits;
// storage and detection failures retry with linear backoff up to the policy
// ceiling.
func (w *ProcessWorker) processWithRetry(ctx context.Context, image *models.Image) error {
	var lastErr error

	for attempt := 1; attempt <= w.config.Retry.MaxAttempts; attempt++ {
		err := w.processOnce(ctx, image)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, imaging.ErrInvalidImage) {
			// The same bytes will never decode; do not retry
			return err
		}

		logger.PipelineWarn("attempt_failed", "Processing attempt failed", map[string]interface{}{
			"image_id": image.ID.String(),
			"attempt":  attempt,
			"max":      w.config.Retry.MaxAttempts,
			"error":    err.Error(),
		})

		if attempt < w.config.Retry.MaxAttempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("job timed out during backoff: %w", lastErr)
			case <-time.After(w.config.Retry.Backoff(attempt)):
			}
		}
	}

	return lastErr
}

// processOnce is one full pipeline pass ending in the terminal write.
func (w *ProcessWorker) processOnce(ctx context.Context, image *models.Image) error {
	w.setProgress(ctx, image.ID, 10)

	data, err := w.store.Get(ctx, image.StorageKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	w.setProgress(ctx, image.ID, 30)

	normalized, err := w.normalizer.Process(data)
	if err != nil {
		return err
	}

	w.setProgress(ctx, image.ID, 50)

	// Thumbnail upload is best-effort: a failure degrades the record but
	// never fails the job
	thumbnailKey := ""
	if len(normalized.Thumbnail) > 0 {
		key := "thumbnails/" + image.StorageKey
		if err := w.store.Put(ctx, key, normalized.Thumbnail, "image/jpeg"); err != nil {
			logger.StorageError("thumbnail_upload", "Thumbnail upload failed, continuing", err, map[string]interface{}{
				"image_id": image.ID.String(),
			})
		} else {
			thumbnailKey = key
		}
	}

	w.setProgress(ctx, image.ID, 60)

	// Fingerprint failure is skip-and-continue: the record completes
	// without one and is simply excluded from duplicate grouping
	fingerprint := ""
	fp, err := w.hashEngine.Compute(normalized.Image)
	if err != nil {
		logger.PipelineWarn("fingerprint_skipped", "Fingerprint unavailable, continuing without", map[string]interface{}{
			"image_id": image.ID.String(),
			"error":    err.Error(),
		})
	} else {
		fingerprint = fp
	}

	w.setProgress(ctx, image.ID, 80)

	modelTags, err := w.detectTags(ctx, image, data)
	if err != nil {
		return err
	}

	w.setProgress(ctx, image.ID, 95)

	exifJSON, err := json.Marshal(normalized.Metadata.Exif)
	if err != nil {
		exifJSON = []byte("{}")
	}

	result := &repositories.ProcessingResult{
		Width:        normalized.Metadata.Width,
		Height:       normalized.Metadata.Height,
		Format:       normalized.Metadata.Format,
		ColorMode:    normalized.Metadata.ColorMode,
		SizeBytes:    normalized.Metadata.SizeBytes,
		Exif:         string(exifJSON),
		PHash:        fingerprint,
		ThumbnailKey: thumbnailKey,
		ModelTags:    modelTags,
	}

	if err := w.imageRepo.CompleteProcessing(ctx, image.ID, result); err != nil {
		return fmt.Errorf("terminal write failed: %w", err)
	}

	w.setProgress(ctx, image.ID, 100)
	_ = w.jobs.ClearProgress(ctx, image.ID)

	if w.broadcaster != nil {
		w.broadcaster.BroadcastToUser(image.UserID, "image:updated", map[string]interface{}{
			"image_id":  image.ID.String(),
			"status":    models.ImageStatusCompleted,
			"tag_count": len(modelTags),
		})
	}

	logger.Pipeline("completed", "Image processed", map[string]interface{}{
		"image_id":    image.ID.String(),
		"tags":        len(modelTags),
		"fingerprint": fingerprint != "",
	})
	return nil
}

// detectTags runs object detection when enabled and reduces the raw
// detections to one tag per label at maximum confidence.
func (w *ProcessWorker) detectTags(ctx context.Context, image *models.Image, data []byte) ([]models.ImageTag, error) {
	if w.det == nil {
		return nil, nil
	}

	if w.circuitBreaker.IsOpen() {
		return nil, fmt.Errorf("%w: circuit breaker open (failures: %d)",
			detector.ErrDetectionFailed, w.circuitBreaker.GetFailures())
	}

	detections, err := w.det.Detect(ctx, data, image.MimeType)
	if err != nil {
		w.circuitBreaker.RecordFailure()
		return nil, err
	}
	w.circuitBreaker.RecordSuccess()

	reduced := detector.ReduceDetections(detections)
	tags := make([]models.ImageTag, 0, len(reduced))
	for _, d := range reduced {
		tags = append(tags, models.ImageTag{
			Label:      d.Label,
			Source:     models.TagSourceModel,
			Confidence: d.Confidence,
		})
	}
	return tags, nil
}

// failImage records the terminal failure and notifies the owner.
func (w *ProcessWorker) failImage(ctx context.Context, image *models.Image, cause error) {
	// The job context may already be dead; the terminal write still has to land
	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if ctx.Err() == nil {
		writeCtx = ctx
	}

	if err := w.imageRepo.MarkFailed(writeCtx, image.ID, cause.Error()); err != nil {
		logger.PipelineError("mark_failed", "Failed to record failure", err, map[string]interface{}{
			"image_id": image.ID.String(),
		})
	}
	_ = w.jobs.ClearProgress(writeCtx, image.ID)

	if w.broadcaster != nil {
		w.broadcaster.BroadcastToUser(image.UserID, "image:updated", map[string]interface{}{
			"image_id": image.ID.String(),
			"status":   models.ImageStatusFailed,
			"error":    cause.Error(),
		})
	}

	logger.PipelineError("failed", "Image processing failed", cause, map[string]interface{}{
		"image_id": image.ID.String(),
	})
}

func (w *ProcessWorker) setProgress(ctx context.Context, imageID uuid.UUID, percent int) {
	if err := w.jobs.SetProgress(ctx, imageID, percent); err != nil {
		logger.QueueError("set_progress", "Failed to record progress", err, map[string]interface{}{
			"image_id": imageID.String(),
		})
	}
}

// CleanupStalePending deletes pending records whose processing never started
// within the window, along with their stored blobs. Run from the scheduler.
func (w *ProcessWorker) CleanupStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	images, err := w.imageRepo.GetStalePending(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale pending images: %w", err)
	}

	removed := 0
	for _, image := range images {
		if err := w.store.Delete(ctx, image.StorageKey); err != nil {
			logger.StorageError("stale_cleanup", "Failed to delete stale blob", err, map[string]interface{}{
				"image_id": image.ID.String(),
				"key":      image.StorageKey,
			})
		}
		if err := w.imageRepo.Delete(ctx, image.ID); err != nil {
			logger.SchedulerError("stale_cleanup", "Failed to delete stale record", err, map[string]interface{}{
				"image_id": image.ID.String(),
			})
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Scheduler("stale_cleanup", "Removed stale pending uploads", map[string]interface{}{
			"removed": removed,
		})
	}
	return removed, nil
}

// ResetStuckProcessing returns abandoned processing claims to pending and
// re-enqueues them. Double enqueues are safe: the claim is a CAS. Run from
// the scheduler.
func (w *ProcessWorker) ResetStuckProcessing(ctx context.Context) (int, error) {
	ids, err := w.imageRepo.ResetStuckProcessingToPending(ctx, w.config.StuckProcessingTimeout)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := w.jobs.Enqueue(ctx, id); err != nil {
			logger.QueueError("stuck_reset", "Failed to re-enqueue reset image", err, map[string]interface{}{
				"image_id": id.String(),
			})
		}
	}
	if len(ids) > 0 {
		logger.SchedulerWarn("stuck_reset", "Reset stuck processing images to pending", map[string]interface{}{
			"count": len(ids),
		})
	}
	return len(ids), nil
}

// GetStats returns worker statistics for the health endpoint.
func (w *ProcessWorker) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"is_running":       w.IsRunning(),
		"workers":          w.config.WorkerCount,
		"processed":        atomic.LoadInt64(&w.processed),
		"failed":           atomic.LoadInt64(&w.failed),
		"circuit_closed":   !w.circuitBreaker.IsOpen(),
		"circuit_failures": w.circuitBreaker.GetFailures(),
	}
}
