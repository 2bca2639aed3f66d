package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	httpapi "github.com/yourorg/inventory-api/http"
	"github.com/yourorg/inventory-api/internal/auth"
	"github.com/yourorg/inventory-api/internal/logger"
	"github.com/yourorg/inventory-api/internal/metrics"
)

type RouterDeps struct {
	Log       *zap.Logger
	AdminAuth *auth.Authenticator
	Feed      httpapi.FeedDeps
	Inventory httpapi.InventoryDeps
	Health    httpapi.HealthDeps
}

func BuildRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(300, 1*time.Minute))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	httpapi.RegisterHealth(r, d.Health)
	r.Handle("/metrics", metrics.Handler())
	httpapi.RegisterFeed(r, d.Feed)

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(auth.Middleware(d.AdminAuth))
		httpapi.RegisterInventory(r, d.Inventory)
	})
	return r
}
