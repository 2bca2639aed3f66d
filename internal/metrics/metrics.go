package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector exposed on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// FeedRequests counts feed responses by outcome code (OK, MISSING_API_KEY, ...).
	FeedRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_feed_requests_total",
			Help: "DMS feed requests by outcome code.",
		},
		[]string{"code"},
	)

	FeedRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "inventory_feed_rows",
			Help: "Vehicle rows in the last generated feed.",
		},
	)

	FeedDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inventory_feed_generation_seconds",
			Help:    "Time spent generating the DMS feed.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ImagesProcessed counts processing attempts by result: done, failed,
	// skipped, interrupted or superseded.
	ImagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_images_processed_total",
			Help: "Image processing attempts by result.",
		},
		[]string{"result", "key_photo"},
	)

	ImageProcessLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inventory_image_process_seconds",
			Help:    "Latency of a single image processing run.",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 40, 80},
		},
	)

	ImagesOptimizedEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_image_optimized_events_total",
			Help: "ImageOptimized events consumed.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		FeedRequests,
		FeedRows,
		FeedDuration,
		ImagesProcessed,
		ImageProcessLatency,
		ImagesOptimizedEvents,
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
