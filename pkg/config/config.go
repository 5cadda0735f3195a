package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Storage    StorageConfig
	Detector   DetectorConfig
	Processing ProcessingConfig
	RateLimit  RateLimitConfig
}

type AppConfig struct {
	Name string
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// URLExpiry controls the lifetime of presigned download links.
	URLExpiry time.Duration
}

type DetectorConfig struct {
	BaseURL       string // Base URL of the YOLO inference service
	Enabled       bool   // Enable/disable object detection
	Confidence    float64
	IoU           float64
	Timeout       time.Duration
	HealthTimeout time.Duration
}

type RateLimitConfig struct {
	Enabled           bool
	MaxRequests       int
	WindowSeconds     int
	AuthMaxRequests   int
	AuthWindowSeconds int
}

type ProcessingConfig struct {
	WorkerCount            int
	MaxAttempts            int
	BackoffSeed            time.Duration // backoff for attempt n is BackoffSeed * n
	JobTimeout             time.Duration
	ThumbnailSize          int
	ThumbnailQuality       int
	StalePendingTimeout    time.Duration
	StuckProcessingTimeout time.Duration
	DuplicateThreshold     int
	MaxUploadBytes         int64
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists (optional for production)
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	config := &Config{
		App: AppConfig{
			Name: getEnv("APP_NAME", "PhotoTagger"),
			Port: getEnv("APP_PORT", "3000"),
			Env:  getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "phototagger"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key"),
		},
		Storage: StorageConfig{
			Endpoint:  getEnv("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("STORAGE_SECRET_KEY", "minioadmin"),
			Bucket:    getEnv("STORAGE_BUCKET", "photos"),
			UseSSL:    getEnv("STORAGE_USE_SSL", "false") == "true",
			URLExpiry: getEnvDuration("STORAGE_URL_EXPIRY", time.Hour),
		},
		Detector: DetectorConfig{
			BaseURL:       getEnv("DETECTOR_URL", "http://localhost:5000"),
			Enabled:       getEnv("DETECTOR_ENABLED", "true") == "true",
			Confidence:    getEnvFloat("DETECTOR_CONFIDENCE", 0.25),
			IoU:           getEnvFloat("DETECTOR_IOU", 0.45),
			Timeout:       getEnvDuration("DETECTOR_TIMEOUT", 30*time.Second),
			HealthTimeout: getEnvDuration("DETECTOR_HEALTH_TIMEOUT", 5*time.Second),
		},
		Processing: ProcessingConfig{
			WorkerCount:            getEnvInt("WORKER_COUNT", 4),
			MaxAttempts:            getEnvInt("PROCESSING_MAX_ATTEMPTS", 3),
			BackoffSeed:            getEnvDuration("PROCESSING_BACKOFF_SEED", 60*time.Second),
			JobTimeout:             getEnvDuration("PROCESSING_JOB_TIMEOUT", 5*time.Minute),
			ThumbnailSize:          getEnvInt("THUMBNAIL_SIZE", 300),
			ThumbnailQuality:       getEnvInt("THUMBNAIL_QUALITY", 85),
			StalePendingTimeout:    getEnvDuration("STALE_PENDING_TIMEOUT", 30*time.Minute),
			StuckProcessingTimeout: getEnvDuration("STUCK_PROCESSING_TIMEOUT", 10*time.Minute),
			DuplicateThreshold:     getEnvInt("DUPLICATE_THRESHOLD", 8),
			MaxUploadBytes:         getEnvInt64("MAX_UPLOAD_BYTES", 50*1024*1024),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnv("RATE_LIMIT_ENABLED", "true") == "true",
			MaxRequests:       getEnvInt("RATE_LIMIT_MAX_REQUESTS", 300),
			WindowSeconds:     getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			AuthMaxRequests:   getEnvInt("RATE_LIMIT_AUTH_MAX_REQUESTS", 10),
			AuthWindowSeconds: getEnvInt("RATE_LIMIT_AUTH_WINDOW_SECONDS", 60),
		},
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
