package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/storage/v1"
)

type GCSOptions struct {
	CredentialsFile string // empty uses application default credentials
	Bucket          string
}

type gcsProvider struct {
	svc    *storage.Service
	bucket string
	log    *zap.Logger
}

func NewGCSProvider(ctx context.Context, opts GCSOptions, log *zap.Logger) (Provider, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	svc, err := storage.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}
	return &gcsProvider{svc: svc, bucket: opts.Bucket, log: log}, nil
}

func (p *gcsProvider) Put(ctx context.Context, key string, data []byte, contentType string) error {
	obj := &storage.Object{Name: key, ContentType: contentType, CacheControl: cacheControl}
	_, err := p.svc.Objects.Insert(p.bucket, obj).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("gcs put %s: %w", key, err)
	}
	return nil
}

func (p *gcsProvider) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := p.svc.Objects.Get(p.bucket, key).Context(ctx).Download()
	if err != nil {
		if isGCSNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gcs get %s: %w", key, err)
	}
	defer resp.Body.Close()
	return readLimit(resp.Body)
}

func (p *gcsProvider) Delete(ctx context.Context, key string) error {
	err := p.svc.Objects.Delete(p.bucket, key).Context(ctx).Do()
	if err != nil && !isGCSNotFound(err) {
		return fmt.Errorf("gcs delete %s: %w", key, err)
	}
	return nil
}

// CheckBucket only verifies access; GCS buckets are provisioned outside
// the service because they need a project id.
func (p *gcsProvider) CheckBucket(ctx context.Context) error {
	if _, err := p.svc.Buckets.Get(p.bucket).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gcs bucket %s: %w", p.bucket, err)
	}
	p.log.Debug("bucket ready", zap.String("driver", "gcs"), zap.String("bucket", p.bucket))
	return nil
}

func isGCSNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
