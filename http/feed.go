package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/yourorg/inventory-api/internal/auth"
	"github.com/yourorg/inventory-api/internal/feed"
	"github.com/yourorg/inventory-api/internal/metrics"
)

type FeedGenerator interface {
	Render(ctx context.Context) (feed.Document, error)
}

type FeedDeps struct {
	// Auth is nil when no feed secret is configured; every request then
	// fails with CONFIG_ERROR.
	Auth      *auth.Authenticator
	Generator FeedGenerator
	// RateLimit is requests per minute per client IP; zero disables it.
	RateLimit int
	Log       *zap.Logger
}

const feedFilename = "inventory-feed.csv"

func RegisterFeed(r chi.Router, d FeedDeps) {
	log := nopIfNil(d.Log).Named("feed")
	h := feedHandler(d, log)
	r.Group(func(r chi.Router) {
		if d.RateLimit > 0 {
			r.Use(httprate.LimitByIP(d.RateLimit, time.Minute))
		}
		r.Get("/api/feeds/cdk", h)
		r.Get("/api/feed/cdk-one-eighty", h)
	})
}

func feedHandler(d FeedDeps, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if d.Auth == nil || d.Generator == nil {
			log.Error("feed secret not configured")
			metrics.FeedRequests.WithLabelValues("CONFIG_ERROR").Inc()
			writeError(w, req, http.StatusInternalServerError, "CONFIG_ERROR", "Feed is not configured")
			return
		}

		res := d.Auth.AuthenticateRequest(req, "key")
		if !res.Authenticated {
			metrics.FeedRequests.WithLabelValues(res.Reason.Code()).Inc()
			msg := "API key required"
			if res.Reason == auth.ReasonInvalidKey {
				msg = "Invalid API key"
			}
			writeError(w, req, res.Reason.Status(), res.Reason.Code(), msg)
			return
		}

		start := time.Now()
		doc, err := d.Generator.Render(req.Context())
		metrics.FeedDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			log.Error("feed generation failed", zap.Error(err))
			metrics.FeedRequests.WithLabelValues("FEED_GENERATION_ERROR").Inc()
			writeError(w, req, http.StatusInternalServerError, "FEED_GENERATION_ERROR", "Failed to generate feed")
			return
		}
		metrics.FeedRequests.WithLabelValues("OK").Inc()
		metrics.FeedRows.Set(float64(doc.Rows))

		h := w.Header()
		h.Set("Content-Type", "text/csv; charset=utf-8")
		h.Set("Content-Disposition", `attachment; filename="`+feedFilename+`"`)
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(doc.CSV))
	}
}
