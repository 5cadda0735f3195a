package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"phototagger/domain/models"
	"phototagger/domain/repositories"
	"phototagger/infrastructure/detector"
	"phototagger/infrastructure/queue"
	"phototagger/infrastructure/storage"
	"phototagger/infrastructure/worker"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db              *gorm.DB
	jobQueue        queue.JobQueue
	objectStore     storage.ObjectStorage
	detectorClient  detector.Detector
	processWorker   *worker.ProcessWorker
	imageRepository repositories.ImageRepository
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(
	db *gorm.DB,
	jobQueue queue.JobQueue,
	objectStore storage.ObjectStorage,
	detectorClient detector.Detector,
	processWorker *worker.ProcessWorker,
	imageRepository repositories.ImageRepository,
) *HealthHandler {
	return &HealthHandler{
		db:              db,
		jobQueue:        jobQueue,
		objectStore:     objectStore,
		detectorClient:  detectorClient,
		processWorker:   processWorker,
		imageRepository: imageRepository,
	}
}

// ComponentHealth represents health status of a component
type ComponentHealth struct {
	Status  string `json:"status"` // "ok", "error", "unavailable"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// DetailedHealthResponse represents detailed health check response
type DetailedHealthResponse struct {
	Status     string                     `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
	Metrics    *HealthMetrics             `json:"metrics,omitempty"`
	Worker     map[string]interface{}     `json:"worker,omitempty"`
}

// HealthMetrics counts images by processing state
type HealthMetrics struct {
	PendingImages    int64 `json:"pending_images"`
	ProcessingImages int64 `json:"processing_images"`
	CompletedImages  int64 `json:"completed_images"`
	FailedImages     int64 `json:"failed_images"`
	QueueDepth       int64 `json:"queue_depth"`
}

// Health is the basic liveness probe
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now(),
	})
}

// DetailedHealth reports per-component status. Database failure makes the
// service unhealthy; queue, storage, or detector failures degrade it.
func (h *HealthHandler) DetailedHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	response := DetailedHealthResponse{
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}

	allHealthy := true
	hasCriticalFailure := false

	dbHealth := h.checkDatabase(ctx)
	response.Components["database"] = dbHealth
	if dbHealth.Status != "ok" {
		hasCriticalFailure = true
	}

	queueHealth := h.checkQueue(ctx)
	response.Components["queue"] = queueHealth
	if queueHealth.Status == "error" {
		allHealthy = false
	}

	storageHealth := h.checkStorage(ctx)
	response.Components["storage"] = storageHealth
	if storageHealth.Status == "error" {
		allHealthy = false
	}

	detectorHealth := h.checkDetector(ctx)
	response.Components["detector"] = detectorHealth
	if detectorHealth.Status == "error" {
		allHealthy = false
	}

	if dbHealth.Status == "ok" {
		response.Metrics = h.getMetrics(ctx)
	}

	if h.processWorker != nil {
		response.Worker = h.processWorker.GetStats()
		if !h.processWorker.IsRunning() {
			allHealthy = false
		}
	}

	if hasCriticalFailure {
		response.Status = "unhealthy"
	} else if !allHealthy {
		response.Status = "degraded"
	} else {
		response.Status = "healthy"
	}

	statusCode := fiber.StatusOK
	if response.Status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(response)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) ComponentHealth {
	start := time.Now()

	if h.db == nil {
		return ComponentHealth{
			Status:  "error",
			Message: "Database not configured",
		}
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		return ComponentHealth{
			Status:  "error",
			Message: "Failed to get database connection: " + err.Error(),
		}
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return ComponentHealth{
			Status:  "error",
			Message: "Database ping failed: " + err.Error(),
		}
	}

	return ComponentHealth{
		Status:  "ok",
		Message: "Connected",
		Latency: time.Since(start).String(),
	}
}

func (h *HealthHandler) checkQueue(ctx context.Context) ComponentHealth {
	start := time.Now()

	if h.jobQueue == nil {
		return ComponentHealth{
			Status:  "unavailable",
			Message: "Queue not configured",
		}
	}

	if err := h.jobQueue.Ping(ctx); err != nil {
		return ComponentHealth{
			Status:  "error",
			Message: "Queue ping failed: " + err.Error(),
		}
	}

	return ComponentHealth{
		Status:  "ok",
		Message: "Connected",
		Latency: time.Since(start).String(),
	}
}

func (h *HealthHandler) checkStorage(ctx context.Context) ComponentHealth {
	start := time.Now()

	if h.objectStore == nil {
		return ComponentHealth{
			Status:  "unavailable",
			Message: "Object storage not configured",
		}
	}

	if err := h.objectStore.Ping(ctx); err != nil {
		return ComponentHealth{
			Status:  "error",
			Message: "Storage ping failed: " + err.Error(),
		}
	}

	return ComponentHealth{
		Status:  "ok",
		Message: "Connected",
		Latency: time.Since(start).String(),
	}
}

func (h *HealthHandler) checkDetector(ctx context.Context) ComponentHealth {
	start := time.Now()

	if h.detectorClient == nil {
		return ComponentHealth{
			Status:  "unavailable",
			Message: "Detector disabled",
		}
	}

	if err := h.detectorClient.Health(ctx); err != nil {
		return ComponentHealth{
			Status:  "error",
			Message: "Detector health check failed: " + err.Error(),
		}
	}

	return ComponentHealth{
		Status:  "ok",
		Message: "Model ready",
		Latency: time.Since(start).String(),
	}
}

func (h *HealthHandler) getMetrics(ctx context.Context) *HealthMetrics {
	if h.imageRepository == nil {
		return nil
	}

	metrics := &HealthMetrics{}

	if count, err := h.imageRepository.CountAllByStatus(ctx, models.ImageStatusPending); err == nil {
		metrics.PendingImages = count
	}
	if count, err := h.imageRepository.CountAllByStatus(ctx, models.ImageStatusProcessing); err == nil {
		metrics.ProcessingImages = count
	}
	if count, err := h.imageRepository.CountAllByStatus(ctx, models.ImageStatusCompleted); err == nil {
		metrics.CompletedImages = count
	}
	if count, err := h.imageRepository.CountAllByStatus(ctx, models.ImageStatusFailed); err == nil {
		metrics.FailedImages = count
	}
	if h.jobQueue != nil {
		if depth, err := h.jobQueue.Length(ctx); err == nil {
			metrics.QueueDepth = depth
		}
	}

	return metrics
}
