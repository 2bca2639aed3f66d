package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/yourorg/inventory-api/internal/env"
	"github.com/yourorg/inventory-api/internal/objectstore"
	"github.com/yourorg/inventory-api/internal/processor"
)

type Config struct {
	Port        int
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	FeedAPIKey    string
	AdminAPIKey   string
	PublicBaseURL string

	Storage          objectstore.Config
	StoragePublicURL string

	BGRemoveAPIKey  string
	BGRemoveBaseURL string
	BackdropColor   string

	Sweep      processor.SweepConfig
	JobWorkers int

	FeedRateLimit int // requests per minute per IP

	LogLevel  string
	LogFormat string
}

// LoadDotenv reads .env files into the process environment outside
// production. Variables already set win over the file.
func LoadDotenv(files ...string) error {
	if os.Getenv("ENV") == "production" {
		return nil
	}
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// Load reads the environment. It does not validate; callers pick the
// check that matches the binary they run.
func Load() Config {
	bucket := env.Get("STORAGE_BUCKET", "")
	return Config{
		Port:          env.GetInt("PORT", 4002),
		DatabaseURL:   env.Get("DATABASE_URL", ""),
		RedisAddr:     env.Get("REDIS_ADDR", ""),
		RedisPassword: env.Get("REDIS_PASSWORD", ""),
		RedisDB:       env.GetInt("REDIS_DB", 0),

		FeedAPIKey:    os.Getenv("FEED_API_KEY"),
		AdminAPIKey:   os.Getenv("ADMIN_API_KEY"),
		PublicBaseURL: env.Get("PUBLIC_BASE_URL", ""),

		Storage: objectstore.Config{
			Driver: env.Get("STORAGE_DRIVER", "s3"),
			S3: objectstore.S3Options{
				Region:   env.Get("S3_REGION", "us-east-1"),
				Endpoint: env.Get("S3_ENDPOINT", ""),
				Bucket:   bucket,
			},
			MinIO: objectstore.MinIOOptions{
				Endpoint:        env.Get("MINIO_ENDPOINT", ""),
				AccessKeyID:     env.Get("MINIO_ACCESS_KEY", ""),
				SecretAccessKey: env.Get("MINIO_SECRET_KEY", ""),
				UseSSL:          env.GetBool("MINIO_USE_SSL", true),
				Bucket:          bucket,
			},
			GCS: objectstore.GCSOptions{
				CredentialsFile: env.Get("GCS_CREDENTIALS_FILE", ""),
				Bucket:          bucket,
			},
		},
		StoragePublicURL: env.Get("STORAGE_PUBLIC_URL", ""),

		BGRemoveAPIKey:  env.Get("BGREMOVE_API_KEY", ""),
		BGRemoveBaseURL: env.Get("BGREMOVE_BASE_URL", ""),
		BackdropColor:   env.Get("BACKDROP_COLOR", "#F2F2F2"),

		Sweep: processor.SweepConfig{
			Interval:    env.GetDuration("PROCESSOR_INTERVAL", time.Minute),
			Concurrency: env.GetInt("PROCESSOR_CONCURRENCY", 2),
			RPS:         env.GetFloat("PROCESSOR_RPS", 1),
			MaxAttempts: env.GetInt("PROCESSOR_MAX_ATTEMPTS", 3),
			StaleAfter:  env.GetDuration("PROCESSOR_STALE_AFTER", 15*time.Minute),
			BatchSize:   env.GetInt("PROCESSOR_BATCH_SIZE", 100),

			RetrySchedule: retrySchedule(env.Get("PROCESSOR_RETRY_SCHEDULE", "0 3 * * *")),
		},
		JobWorkers: env.GetInt("JOB_WORKERS", 2),

		FeedRateLimit: env.GetInt("FEED_RATE_LIMIT", 30),

		LogLevel:  env.Get("LOG_LEVEL", "info"),
		LogFormat: env.Get("LOG_FORMAT", "json"),
	}
}

// ValidateAPI checks what the HTTP server needs. A missing FEED_API_KEY is
// not an error here: the feed itself reports it.
func (c Config) ValidateAPI() error {
	errs := []error{c.validateCommon()}
	if c.AdminAPIKey == "" {
		errs = append(errs, errors.New("ADMIN_API_KEY is required"))
	}
	if err := absoluteURL("PUBLIC_BASE_URL", c.PublicBaseURL); err != nil {
		errs = append(errs, err)
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	return errors.Join(errs...)
}

// ValidateWorker checks what the image processor needs.
func (c Config) ValidateWorker() error {
	errs := []error{c.validateCommon()}
	if c.Sweep.Concurrency <= 0 {
		errs = append(errs, errors.New("PROCESSOR_CONCURRENCY must be positive"))
	}
	if c.Sweep.MaxAttempts <= 0 {
		errs = append(errs, errors.New("PROCESSOR_MAX_ATTEMPTS must be positive"))
	}
	if c.Sweep.RetrySchedule != "" {
		if _, err := cron.ParseStandard(c.Sweep.RetrySchedule); err != nil {
			errs = append(errs, fmt.Errorf("PROCESSOR_RETRY_SCHEDULE: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c Config) validateCommon() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	switch c.Storage.Driver {
	case "memory":
	case "s3", "gcs":
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("STORAGE_BUCKET is required"))
		}
	case "minio":
		if c.Storage.MinIO.Bucket == "" {
			errs = append(errs, errors.New("STORAGE_BUCKET is required"))
		}
		if c.Storage.MinIO.Endpoint == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT is required for the minio driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER %q is not one of s3, minio, gcs, memory", c.Storage.Driver))
	}
	if err := absoluteURL("STORAGE_PUBLIC_URL", c.StoragePublicURL); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// "off" disables the nightly retry.
func retrySchedule(v string) string {
	if v == "off" {
		return ""
	}
	return v
}

func absoluteURL(name, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL", name)
	}
	return nil
}
