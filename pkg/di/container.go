package di

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"phototagger/application/serviceimpl"
	"phototagger/domain/repositories"
	"phototagger/domain/services"
	"phototagger/infrastructure/detector"
	"phototagger/infrastructure/imaging"
	"phototagger/infrastructure/postgres"
	"phototagger/infrastructure/queue"
	"phototagger/infrastructure/storage"
	"phototagger/infrastructure/websocket"
	"phototagger/infrastructure/worker"
	"phototagger/interfaces/api/handlers"
	"phototagger/pkg/config"
	"phototagger/pkg/logger"
	"phototagger/pkg/phash"
	"phototagger/pkg/scheduler"
)

type Container struct {
	// Configuration
	Config *config.Config

	// Infrastructure
	DB             *gorm.DB
	RedisClient    *redis.Client
	ObjectStorage  storage.ObjectStorage
	JobQueue       queue.JobQueue
	DetectorClient detector.Detector
	Normalizer     *imaging.Normalizer
	HashEngine     *phash.Engine
	EventScheduler scheduler.EventScheduler

	// Repositories
	UserRepository  repositories.UserRepository
	ImageRepository repositories.ImageRepository
	AlbumRepository repositories.AlbumRepository

	// Services
	AuthService   services.AuthService
	ImageService  services.ImageService
	AlbumService  services.AlbumService
	SearchService services.SearchService

	// Workers
	ProcessWorker *worker.ProcessWorker
}

func NewContainer() *Container {
	return &Container{}
}

func (c *Container) Initialize() error {
	if err := c.initConfig(); err != nil {
		return err
	}

	if err := c.initInfrastructure(); err != nil {
		return err
	}

	if err := c.initRepositories(); err != nil {
		return err
	}

	if err := c.initServices(); err != nil {
		return err
	}

	if err := c.initWorkers(); err != nil {
		return err
	}

	if err := c.initScheduler(); err != nil {
		return err
	}

	return nil
}

func (c *Container) initConfig() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	c.Config = cfg
	logger.Startup("config_loaded", "Configuration loaded", nil)
	return nil
}

func (c *Container) initInfrastructure() error {
	// Initialize Database
	dbConfig := postgres.DatabaseConfig{
		Host:     c.Config.Database.Host,
		Port:     c.Config.Database.Port,
		User:     c.Config.Database.User,
		Password: c.Config.Database.Password,
		DBName:   c.Config.Database.DBName,
		SSLMode:  c.Config.Database.SSLMode,
	}

	db, err := postgres.NewDatabase(dbConfig)
	if err != nil {
		return err
	}
	c.DB = db
	logger.Startup("db_connected", "Database connected", nil)

	// Run migrations
	if err := postgres.Migrate(db); err != nil {
		return err
	}
	logger.Startup("db_migrated", "Database migrated", nil)

	// Initialize Redis; the queue is the hand-off to the workers, so a dead
	// Redis means uploads would be accepted but never processed
	c.RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", c.Config.Redis.Host, c.Config.Redis.Port),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if err := c.RedisClient.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	c.JobQueue = queue.NewRedisQueue(c.RedisClient)
	logger.Startup("redis_connected", "Redis connected", nil)

	// Initialize object storage (creates the bucket when missing)
	store, err := storage.NewMinioStorage(context.Background(), storage.MinioConfig{
		Endpoint:  c.Config.Storage.Endpoint,
		AccessKey: c.Config.Storage.AccessKey,
		SecretKey: c.Config.Storage.SecretKey,
		Bucket:    c.Config.Storage.Bucket,
		UseSSL:    c.Config.Storage.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("object storage init failed: %w", err)
	}
	c.ObjectStorage = store
	logger.Startup("storage_initialized", "Object storage initialized", map[string]interface{}{
		"bucket": c.Config.Storage.Bucket,
	})

	// Initialize detector client. When detection is enabled an unreachable
	// inference service would silently strip model tags from every upload,
	// so startup fails instead.
	if c.Config.Detector.Enabled {
		client := detector.NewClient(
			c.Config.Detector.BaseURL,
			c.Config.Detector.Confidence,
			c.Config.Detector.IoU,
			c.Config.Detector.Timeout,
		)
		healthCtx, cancel := context.WithTimeout(context.Background(), c.Config.Detector.HealthTimeout)
		err := client.Health(healthCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("detector enabled but unreachable: %w", err)
		}
		c.DetectorClient = client
		logger.Startup("detector_ready", "Detector service ready", nil)
	} else {
		logger.Startup("detector_disabled", "Object detection disabled, images will carry user tags only", nil)
	}

	c.Normalizer = imaging.NewNormalizer(c.Config.Processing.ThumbnailSize, c.Config.Processing.ThumbnailQuality)
	c.HashEngine = phash.NewEngine(8)

	return nil
}

func (c *Container) initRepositories() error {
	c.UserRepository = postgres.NewUserRepository(c.DB)
	c.ImageRepository = postgres.NewImageRepository(c.DB)
	c.AlbumRepository = postgres.NewAlbumRepository(c.DB)
	logger.Startup("repositories_initialized", "Repositories initialized", nil)
	return nil
}

func (c *Container) initServices() error {
	c.AuthService = serviceimpl.NewAuthService(c.UserRepository, c.Config.JWT.Secret)
	c.ImageService = serviceimpl.NewImageService(
		c.ImageRepository,
		c.AlbumRepository,
		c.ObjectStorage,
		c.JobQueue,
		c.Config.Processing.MaxUploadBytes,
		c.Config.Storage.URLExpiry,
	)
	c.AlbumService = serviceimpl.NewAlbumService(c.AlbumRepository, c.ImageRepository)
	c.SearchService = serviceimpl.NewSearchService(c.ImageRepository, c.HashEngine, c.Config.Processing.DuplicateThreshold)

	logger.Startup("services_initialized", "Services initialized", nil)
	return nil
}

func (c *Container) initWorkers() error {
	c.ProcessWorker = worker.NewProcessWorker(
		c.ImageRepository,
		c.ObjectStorage,
		c.JobQueue,
		c.Normalizer,
		c.HashEngine,
		c.DetectorClient,
		websocket.Manager,
		worker.Config{
			WorkerCount:            c.Config.Processing.WorkerCount,
			JobTimeout:             c.Config.Processing.JobTimeout,
			StuckProcessingTimeout: c.Config.Processing.StuckProcessingTimeout,
			Retry: worker.RetryPolicy{
				MaxAttempts: c.Config.Processing.MaxAttempts,
				BackoffSeed: c.Config.Processing.BackoffSeed,
			},
		},
	)

	c.ProcessWorker.Start()
	return nil
}

func (c *Container) initScheduler() error {
	c.EventScheduler = scheduler.NewEventScheduler()
	c.EventScheduler.Start()

	// Requeue images whose worker died mid-claim
	if err := c.EventScheduler.AddIntervalJob("reset-stuck-processing", c.Config.Processing.StuckProcessingTimeout, func() {
		reset, err := c.ProcessWorker.ResetStuckProcessing(context.Background())
		if err != nil {
			logger.SchedulerError("reset_stuck_failed", "Failed to reset stuck processing images", err, nil)
			return
		}
		if reset > 0 {
			logger.Scheduler("reset_stuck_done", "Requeued stuck processing images", map[string]interface{}{"count": reset})
		}
	}); err != nil {
		return err
	}

	// Remove pending records whose enqueue was lost and never picked up
	if err := c.EventScheduler.AddIntervalJob("cleanup-stale-pending", c.Config.Processing.StalePendingTimeout, func() {
		removed, err := c.ProcessWorker.CleanupStalePending(context.Background(), c.Config.Processing.StalePendingTimeout)
		if err != nil {
			logger.SchedulerError("stale_cleanup_failed", "Failed to clean up stale pending images", err, nil)
			return
		}
		if removed > 0 {
			logger.Scheduler("stale_cleanup_done", "Removed stale pending images", map[string]interface{}{"count": removed})
		}
	}); err != nil {
		return err
	}

	logger.Startup("scheduler_started", "Maintenance jobs scheduled", nil)
	return nil
}

func (c *Container) Cleanup() error {
	logger.Startup("cleanup_started", "Starting cleanup...", nil)

	// Stop scheduler first so no new maintenance work lands on the worker
	if c.EventScheduler != nil && c.EventScheduler.IsRunning() {
		c.EventScheduler.Stop()
	}

	// Stop the worker pool; in-flight jobs finish or get reclaimed later
	if c.ProcessWorker != nil && c.ProcessWorker.IsRunning() {
		c.ProcessWorker.Stop()
	}

	// Close Redis connection
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			logger.StartupWarn("redis_close_failed", "Failed to close Redis connection", map[string]interface{}{"error": err.Error()})
		} else {
			logger.Startup("redis_closed", "Redis connection closed", nil)
		}
	}

	// Close database connection
	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				logger.StartupWarn("db_close_failed", "Failed to close database connection", map[string]interface{}{"error": err.Error()})
			} else {
				logger.Startup("db_closed", "Database connection closed", nil)
			}
		}
	}

	logger.Startup("cleanup_completed", "Cleanup completed", nil)
	return nil
}

func (c *Container) GetConfig() *config.Config {
	return c.Config
}

func (c *Container) GetHandlerServices() *handlers.Services {
	return &handlers.Services{
		AuthService:   c.AuthService,
		ImageService:  c.ImageService,
		AlbumService:  c.AlbumService,
		SearchService: c.SearchService,
	}
}

func (c *Container) NewHealthHandler() *handlers.HealthHandler {
	return handlers.NewHealthHandler(
		c.DB,
		c.JobQueue,
		c.ObjectStorage,
		c.DetectorClient,
		c.ProcessWorker,
		c.ImageRepository,
	)
}
