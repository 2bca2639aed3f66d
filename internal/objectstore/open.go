package objectstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type Config struct {
	Driver string // s3, minio, gcs or memory
	S3     S3Options
	MinIO  MinIOOptions
	GCS    GCSOptions
}

// Open builds the provider selected by cfg.Driver.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (Provider, error) {
	log = log.Named("objectstore")
	switch cfg.Driver {
	case "", "s3":
		return NewS3Provider(ctx, cfg.S3, log)
	case "minio":
		return NewMinIOProvider(cfg.MinIO, log)
	case "gcs":
		return NewGCSProvider(ctx, cfg.GCS, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
