// Package app wires the shared dependencies of the API server and the
// image processor binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/inventory-api/bgremove"
	"github.com/yourorg/inventory-api/internal/config"
	"github.com/yourorg/inventory-api/internal/events"
	"github.com/yourorg/inventory-api/internal/objectstore"
	"github.com/yourorg/inventory-api/internal/photo"
	"github.com/yourorg/inventory-api/internal/processor"
	"github.com/yourorg/inventory-api/internal/redisx"
	"github.com/yourorg/inventory-api/internal/store"
)

// Deps are the long-lived clients both binaries need.
type Deps struct {
	Store  *store.Store
	Bucket *objectstore.Bucket
	Redis  *redisx.Client // nil when REDIS_ADDR is empty
}

// Open connects to Postgres, migrates it, opens the bucket and, when
// configured, Redis.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*Deps, error) {
	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	d := &Deps{Store: st}

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := st.Ping(initCtx); err != nil {
		d.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := st.Migrate(initCtx); err != nil {
		d.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	provider, err := objectstore.Open(initCtx, cfg.Storage, log)
	if err != nil {
		d.Close()
		return nil, err
	}
	if err := provider.CheckBucket(initCtx); err != nil {
		d.Close()
		return nil, err
	}
	d.Bucket = objectstore.NewBucket(provider, cfg.StoragePublicURL)

	if cfg.RedisAddr != "" {
		d.Redis = redisx.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := d.Redis.Ping(initCtx); err != nil {
			d.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	} else {
		log.Warn("REDIS_ADDR not set, processing locks are per process only")
	}
	return d, nil
}

func (d *Deps) Close() {
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.Store != nil {
		_ = d.Store.Close()
	}
}

// NewProcessor builds the image processor from configuration.
func NewProcessor(cfg config.Config, d *Deps, pub events.Publisher, log *zap.Logger) (*processor.Processor, error) {
	backdrop, err := photo.ParseHexColor(cfg.BackdropColor)
	if err != nil {
		return nil, fmt.Errorf("BACKDROP_COLOR: %w", err)
	}
	opts := photo.DefaultOptions()
	opts.Backdrop = backdrop

	p := &processor.Processor{
		Store:   d.Store,
		Bucket:  d.Bucket,
		Remover: bgremove.NewClient(cfg.BGRemoveAPIKey, cfg.BGRemoveBaseURL),
		Pub:     pub,
		Photo:   opts,
		Log:     log.Named("processor"),
	}
	if d.Redis != nil {
		p.Locker = processor.RedisLocker{Client: d.Redis}
	}
	if !p.Remover.Enabled() {
		log.Warn("BGREMOVE_API_KEY not set, key photos are optimized without background replacement")
	}
	return p, nil
}
