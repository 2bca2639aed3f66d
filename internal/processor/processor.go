package processor

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/inventory-api/bgremove"
	"github.com/yourorg/inventory-api/internal/events"
	"github.com/yourorg/inventory-api/internal/metrics"
	"github.com/yourorg/inventory-api/internal/objectstore"
	"github.com/yourorg/inventory-api/internal/photo"
	"github.com/yourorg/inventory-api/internal/redisx"
	"github.com/yourorg/inventory-api/internal/store"
)

var (
	// ErrLocked means another worker is processing the image right now.
	ErrLocked = errors.New("image is locked by another worker")
	// ErrInterrupted means the caller's context ended mid attempt. The image
	// is handed back as pending without spending an attempt.
	ErrInterrupted = errors.New("image processing interrupted")
)

// IsDeferred reports whether err left the image for a later pass rather than
// failing it.
func IsDeferred(err error) bool {
	return errors.Is(err, ErrLocked) || errors.Is(err, ErrInterrupted) || errors.Is(err, store.ErrSuperseded)
}

type ImageStore interface {
	MarkProcessing(ctx context.Context, id string) (store.Image, error)
	MarkOptimized(ctx context.Context, id, key, url string) (string, error)
	MarkFailed(ctx context.Context, id, reason string) error
	ReleaseImage(ctx context.Context, id string) error
	ListProcessable(ctx context.Context, maxAttempts int, staleAfter time.Duration, limit int) ([]store.Image, error)
	RetryExhausted(ctx context.Context, maxAttempts int) (int64, error)
}

type Bucket interface {
	objectstore.Provider
	URL(key string) string
}

type BackgroundRemover interface {
	Enabled() bool
	RemoveBackground(ctx context.Context, img []byte, filename string) ([]byte, error)
}

// Locker hands out exclusive leases. ok is false when someone else holds key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type Processor struct {
	Store   ImageStore
	Bucket  Bucket
	Remover BackgroundRemover // optional
	Locker  Locker            // optional
	Pub     events.Publisher  // optional
	Photo   photo.Options
	LockTTL time.Duration
	Log     *zap.Logger
}

func (p *Processor) logger() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}

// Process turns an uploaded original into the optimized JPEG the feed
// serves. Key photos get their background replaced first when a remover
// is configured.
func (p *Processor) Process(ctx context.Context, imageID string) error {
	log := p.logger().With(zap.String("image_id", imageID))
	start := time.Now()

	if p.Locker != nil {
		ttl := p.LockTTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		release, ok, err := p.Locker.Acquire(ctx, "img:lock:"+imageID, ttl)
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			metrics.ImagesProcessed.WithLabelValues("skipped", "unknown").Inc()
			log.Debug("image locked, skipping")
			return ErrLocked
		}
		defer release()
	}

	img, err := p.Store.MarkProcessing(ctx, imageID)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	keyLabel := strconv.FormatBool(img.IsKey)

	key, url, err := p.optimize(ctx, img)
	if err == nil {
		var prev string
		prev, err = p.Store.MarkOptimized(ctx, img.ID, key, url)
		if err != nil {
			p.deleteQuietly(ctx, key, log)
			err = fmt.Errorf("mark optimized: %w", err)
		} else if prev != "" {
			p.deleteQuietly(ctx, prev, log)
		}
	}
	metrics.ImageProcessLatency.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
	case errors.Is(err, store.ErrSuperseded):
		metrics.ImagesProcessed.WithLabelValues("superseded", keyLabel).Inc()
		log.Info("image changed while processing, result discarded")
		return err
	case errors.Is(ctx.Err(), context.Canceled):
		// a deadline still counts as a failed attempt; a cancel is a stop
		metrics.ImagesProcessed.WithLabelValues("interrupted", keyLabel).Inc()
		if rErr := p.Store.ReleaseImage(context.WithoutCancel(ctx), img.ID); rErr != nil {
			log.Error("release image", zap.Error(rErr))
		}
		log.Info("image processing interrupted", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	default:
		metrics.ImagesProcessed.WithLabelValues("failed", keyLabel).Inc()
		if mErr := p.Store.MarkFailed(context.WithoutCancel(ctx), img.ID, err.Error()); mErr != nil {
			log.Error("mark failed", zap.Error(mErr))
		}
		log.Warn("image processing failed", zap.Int("attempt", img.Attempts), zap.Error(err))
		return err
	}

	metrics.ImagesProcessed.WithLabelValues("done", keyLabel).Inc()
	log.Info("image optimized",
		zap.String("vehicle_id", img.VehicleID),
		zap.Bool("key_photo", img.IsKey),
		zap.Duration("duration", time.Since(start)),
	)
	if p.Pub != nil {
		p.Pub.PublishImageOptimized(ctx, events.ImageOptimized{ImageID: img.ID, VehicleID: img.VehicleID, OptimizedURL: url})
	}
	return nil
}

func (p *Processor) optimize(ctx context.Context, img store.Image) (key, url string, err error) {
	original, err := p.Bucket.Get(ctx, img.OriginalKey)
	if err != nil {
		return "", "", fmt.Errorf("download original: %w", err)
	}

	var out []byte
	if img.IsKey && p.Remover != nil && p.Remover.Enabled() {
		cutout, err := p.Remover.RemoveBackground(ctx, original, path.Base(img.OriginalKey))
		if err != nil {
			return "", "", fmt.Errorf("remove background: %w", err)
		}
		out, err = photo.Composite(cutout, p.Photo)
		if err != nil {
			return "", "", err
		}
	} else {
		out, err = photo.Optimize(original, p.Photo)
		if err != nil {
			return "", "", err
		}
	}

	key = objectstore.OptimizedKeyFor(img.OriginalKey)
	if err := p.Bucket.Put(ctx, key, out, "image/jpeg"); err != nil {
		return "", "", fmt.Errorf("upload optimized: %w", err)
	}
	return key, p.Bucket.URL(key), nil
}

func (p *Processor) deleteQuietly(ctx context.Context, key string, log *zap.Logger) {
	if err := p.Bucket.Delete(context.WithoutCancel(ctx), key); err != nil {
		log.Warn("delete object", zap.String("key", key), zap.Error(err))
	}
}

// IsQuota reports whether err means the background vendor is out of credits.
func IsQuota(err error) bool { return errors.Is(err, bgremove.ErrQuotaExceeded) }

// RedisLocker adapts redisx leases to Locker.
type RedisLocker struct{ Client *redisx.Client }

func (l RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	lock, err := l.Client.TryLock(ctx, key, ttl)
	if err != nil || lock == nil {
		return nil, false, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = lock.Release(ctx)
	}, true, nil
}
