package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type SweepConfig struct {
	Interval    time.Duration
	Concurrency int
	// RPS caps how many images per second are started, which also paces
	// calls to the background vendor.
	RPS         float64
	MaxAttempts int
	StaleAfter  time.Duration
	BatchSize   int
	// RetrySchedule is a cron spec for resetting images that ran out of
	// attempts, e.g. after a vendor outage. Empty disables it.
	RetrySchedule string
}

// SweepJob periodically picks up images that still need processing.
type SweepJob struct {
	Processor *Processor
	Config    SweepConfig
	Log       *zap.Logger
}

type SweepResult struct {
	Found     int
	Processed int
	Failed    int
	Skipped   int
}

func (j *SweepJob) logger() *zap.Logger {
	if j.Log == nil {
		return zap.NewNop()
	}
	return j.Log
}

func (j *SweepJob) validate() error {
	if j == nil || j.Processor == nil {
		return errors.New("sweep job requires a processor")
	}
	if j.Processor.Store == nil || j.Processor.Bucket == nil {
		return errors.New("sweep job processor requires store and bucket")
	}
	return nil
}

func (j *SweepJob) Run(ctx context.Context) error {
	if err := j.validate(); err != nil {
		return err
	}
	log := j.logger()
	interval := j.Config.Interval
	if interval <= 0 {
		_, err := j.RunOnce(ctx)
		return err
	}
	if j.Config.RetrySchedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(j.Config.RetrySchedule, func() { j.retryExhausted(ctx) }); err != nil {
			return fmt.Errorf("retry schedule: %w", err)
		}
		c.Start()
		defer c.Stop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Info("sweep job starting",
		zap.Duration("interval", interval),
		zap.String("retry_schedule", j.Config.RetrySchedule),
	)
	if _, err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("sweep initial run", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			log.Info("sweep job stopping", zap.Error(ctx.Err()))
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("sweep iteration", zap.Error(err))
			}
		}
	}
}

func (j *SweepJob) retryExhausted(ctx context.Context) {
	max := j.Config.MaxAttempts
	if max <= 0 {
		max = 3
	}
	n, err := j.Processor.Store.RetryExhausted(ctx, max)
	if err != nil {
		j.logger().Error("retry exhausted images", zap.Error(err))
		return
	}
	if n > 0 {
		j.logger().Info("exhausted images requeued", zap.Int64("count", n))
	}
}

// RunOnce processes one batch. Individual failures are recorded on the
// image and counted; a vendor quota error stops the batch and is returned.
// Images cut short by that stop are handed back and counted as skipped.
func (j *SweepJob) RunOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	if err := j.validate(); err != nil {
		return res, err
	}
	cfg := j.Config
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	limiter := rate.NewLimiter(limit, 1)

	images, err := j.Processor.Store.ListProcessable(ctx, cfg.MaxAttempts, cfg.StaleAfter, cfg.BatchSize)
	if err != nil {
		return res, err
	}
	res.Found = len(images)
	if len(images) == 0 {
		return res, nil
	}

	type outcome int
	const (
		notStarted outcome = iota
		done
		failed
		skipped
	)
	outcomes := make([]outcome, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i, img := range images {
		if err := limiter.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			err := j.Processor.Process(gctx, img.ID)
			switch {
			case err == nil:
				outcomes[i] = done
			case IsDeferred(err):
				outcomes[i] = skipped
			case IsQuota(err):
				outcomes[i] = failed
				return err
			default:
				outcomes[i] = failed
			}
			return nil
		})
	}
	err = g.Wait()

	for _, o := range outcomes {
		switch o {
		case notStarted:
		case done:
			res.Processed++
		case failed:
			res.Failed++
		case skipped:
			res.Skipped++
		}
	}
	j.logger().Info("sweep pass finished",
		zap.Int("found", res.Found),
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
	)
	if err == nil {
		err = ctx.Err()
	}
	return res, err
}
