// Package feed renders the inventory CSV polled by the dealer management
// system.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Image is an optimized photo as returned by the Source.
type Image struct {
	OptimizedURL *string
	UpdatedAt    time.Time
}

// Vehicle is one feed row before formatting.
type Vehicle struct {
	VIN         string
	StockNumber string
	UpdatedAt   time.Time
	Images      []Image
}

// Source returns every vehicle that has at least one optimized image, with
// Images already restricted to optimized ones.
type Source interface {
	ListFeedVehicles(ctx context.Context) ([]Vehicle, error)
}

type Config struct {
	// BaseURL qualifies stored image URLs that are relative.
	BaseURL string
}

// Generator builds the feed document. It holds no mutable state.
type Generator struct {
	src  Source
	base *url.URL
	log  *zap.Logger
}

func NewGenerator(src Source, cfg Config, log *zap.Logger) (*Generator, error) {
	if src == nil {
		return nil, errors.New("feed: nil source")
	}
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("feed: invalid base url %q", cfg.BaseURL)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("feed: base url %q must be absolute http(s)", cfg.BaseURL)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{src: src, base: base, log: log.Named("feed")}, nil
}

// Document is a rendered feed. Rows counts vehicle rows, not the header.
type Document struct {
	CSV  string
	Rows int
}

// Generate queries the source and renders the full CSV. A source error fails
// the whole feed; no partial document is returned.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	doc, err := g.Render(ctx)
	return doc.CSV, err
}

// Render is Generate plus the row count, which quoted fields with embedded
// line breaks make impossible to recover from the CSV text.
func (g *Generator) Render(ctx context.Context) (Document, error) {
	start := time.Now()
	vehicles, err := g.src.ListFeedVehicles(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("list feed vehicles: %w", err)
	}

	var b strings.Builder
	b.WriteString(Header)
	b.WriteString(lineEnd)
	images := 0
	for _, v := range vehicles {
		urls := make([]string, 0, len(v.Images))
		for _, img := range v.Images {
			if img.OptimizedURL == nil || *img.OptimizedURL == "" {
				continue
			}
			urls = append(urls, g.versionedURL(*img.OptimizedURL, img.UpdatedAt))
		}
		images += len(urls)
		writeRow(&b, v.VIN, v.StockNumber, strings.Join(urls, "|"))
	}

	g.log.Info("feed generated",
		zap.Int("vehicles", len(vehicles)),
		zap.Int("images", images),
		zap.Duration("duration", time.Since(start)),
	)
	return Document{CSV: b.String(), Rows: len(vehicles)}, nil
}

// versionedURL appends v=<unix seconds of updatedAt> so caches treat a
// reprocessed image as new content.
func (g *Generator) versionedURL(raw string, updatedAt time.Time) string {
	raw = g.qualify(raw)
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + "v=" + strconv.FormatInt(unixSeconds(updatedAt), 10)
}

func (g *Generator) qualify(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() {
		return raw
	}
	return g.base.ResolveReference(u).String()
}

// unixSeconds floors milliseconds since the epoch to whole seconds.
func unixSeconds(t time.Time) int64 {
	ms := t.UnixMilli()
	s := ms / 1000
	if ms%1000 < 0 {
		s--
	}
	return s
}
