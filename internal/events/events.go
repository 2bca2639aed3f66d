package events

import (
	"context"

	"go.uber.org/zap"
)

type ImageOptimized struct {
	ImageID      string
	VehicleID    string
	OptimizedURL string
}

type Publisher interface {
	PublishImageOptimized(ctx context.Context, evt ImageOptimized)
	SubscribeImageOptimized() <-chan ImageOptimized
}

type inMemory struct{ ch chan ImageOptimized }

func NewInMemory(buffer int) Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &inMemory{ch: make(chan ImageOptimized, buffer)}
}

// PublishImageOptimized never blocks; events are dropped when nobody keeps up.
func (m *inMemory) PublishImageOptimized(_ context.Context, evt ImageOptimized) {
	select {
	case m.ch <- evt:
	default:
	}
}

func (m *inMemory) SubscribeImageOptimized() <-chan ImageOptimized { return m.ch }

// Log drains the publisher until ctx is done, logging each event and
// calling onEvent if set.
func Log(ctx context.Context, p Publisher, log *zap.Logger, onEvent func(ImageOptimized)) {
	ch := p.SubscribeImageOptimized()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-ch:
			log.Info("image optimized",
				zap.String("image_id", evt.ImageID),
				zap.String("vehicle_id", evt.VehicleID),
			)
			if onEvent != nil {
				onEvent(evt)
			}
		}
	}
}
