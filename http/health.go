package httpapi

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type HealthDeps struct {
	Checks map[string]Check
}

func RegisterHealth(r chi.Router, d HealthDeps) {
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		render.JSON(w, req, map[string]any{"ok": true})
	})

	r.Get("/ready", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		names := make([]string, 0, len(d.Checks))
		for name := range d.Checks {
			names = append(names, name)
		}
		sort.Strings(names)

		ok := true
		status := map[string]string{}
		for _, name := range names {
			if err := d.Checks[name](ctx); err != nil {
				ok = false
				status[name] = "down"
				continue
			}
			status[name] = "up"
		}
		if !ok {
			render.Status(req, http.StatusServiceUnavailable)
		}
		render.JSON(w, req, map[string]any{"ok": ok, "checks": status})
	})
}
