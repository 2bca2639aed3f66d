package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/yourorg/inventory-api/internal/canon"
	"github.com/yourorg/inventory-api/internal/store"
)

type DealershipRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	DMSDealerID string `json:"dmsDealerId,omitempty"`
}

func (b DealershipRequest) input() (store.DealershipInput, string) {
	name := strings.TrimSpace(b.Name)
	if name == "" {
		return store.DealershipInput{}, "name is required"
	}
	slug := canon.Slug(b.Slug)
	if slug == "" {
		slug = canon.Slug(name)
	}
	if slug == "" {
		return store.DealershipInput{}, "slug is empty after normalization"
	}
	return store.DealershipInput{Name: name, Slug: slug, DMSDealerID: strings.TrimSpace(b.DMSDealerID)}, ""
}

func registerDealerships(r chi.Router, d InventoryDeps) {
	r.Post("/stores", func(w http.ResponseWriter, req *http.Request) {
		in, ok := readDealership(w, req)
		if !ok {
			return
		}
		created, err := d.Store.CreateDealership(req.Context(), in)
		if err != nil {
			storeError(w, req, d.Log, err, "store")
			return
		}
		render.Status(req, http.StatusCreated)
		render.JSON(w, req, created)
	})

	r.Get("/stores", func(w http.ResponseWriter, req *http.Request) {
		list, err := d.Store.ListDealerships(req.Context())
		if err != nil {
			storeError(w, req, d.Log, err, "store")
			return
		}
		render.JSON(w, req, map[string]any{"count": len(list), "stores": list})
	})

	r.Get("/stores/{storeID}", func(w http.ResponseWriter, req *http.Request) {
		got, err := d.Store.GetDealership(req.Context(), chi.URLParam(req, "storeID"))
		if err != nil {
			storeError(w, req, d.Log, err, "store")
			return
		}
		render.JSON(w, req, got)
	})

	r.Put("/stores/{storeID}", func(w http.ResponseWriter, req *http.Request) {
		in, ok := readDealership(w, req)
		if !ok {
			return
		}
		updated, err := d.Store.UpdateDealership(req.Context(), chi.URLParam(req, "storeID"), in)
		if err != nil {
			storeError(w, req, d.Log, err, "store")
			return
		}
		render.JSON(w, req, updated)
	})

	r.Delete("/stores/{storeID}", func(w http.ResponseWriter, req *http.Request) {
		images, err := d.Store.DeleteDealership(req.Context(), chi.URLParam(req, "storeID"))
		if err != nil {
			storeError(w, req, d.Log, err, "store")
			return
		}
		d.removeObjects(req.Context(), images...)
		w.WriteHeader(http.StatusNoContent)
	})
}

func readDealership(w http.ResponseWriter, req *http.Request) (store.DealershipInput, bool) {
	var body DealershipRequest
	if err := decodeJSON(w, req, &body); err != nil {
		writeError(w, req, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return store.DealershipInput{}, false
	}
	in, problem := body.input()
	if problem != "" {
		writeError(w, req, http.StatusBadRequest, "VALIDATION_ERROR", problem)
		return in, false
	}
	return in, true
}
