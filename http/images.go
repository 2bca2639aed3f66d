package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/yourorg/inventory-api/internal/objectstore"
	"github.com/yourorg/inventory-api/internal/store"
)

const maxUploadBytes = 25 << 20

type ImagePatchRequest struct {
	Category *string `json:"category,omitempty"`
	IsKey    *bool   `json:"isKey,omitempty"`
	Position *int    `json:"position,omitempty"`
}

func registerImages(r chi.Router, d InventoryDeps) {
	r.Post("/vehicles/{vehicleID}/images", func(w http.ResponseWriter, req *http.Request) {
		uploadImage(w, req, d)
	})

	r.Get("/vehicles/{vehicleID}/images", func(w http.ResponseWriter, req *http.Request) {
		list, err := d.Store.ListImages(req.Context(), chi.URLParam(req, "vehicleID"))
		if err != nil {
			storeError(w, req, d.Log, err, "image")
			return
		}
		render.JSON(w, req, map[string]any{"count": len(list), "images": list})
	})

	r.Get("/images/{imageID}", func(w http.ResponseWriter, req *http.Request) {
		img, err := d.Store.GetImage(req.Context(), chi.URLParam(req, "imageID"))
		if err != nil {
			storeError(w, req, d.Log, err, "image")
			return
		}
		render.JSON(w, req, img)
	})

	r.Patch("/images/{imageID}", func(w http.ResponseWriter, req *http.Request) {
		var body ImagePatchRequest
		if err := decodeJSON(w, req, &body); err != nil {
			writeError(w, req, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
			return
		}
		if body.Category == nil && body.IsKey == nil && body.Position == nil {
			writeError(w, req, http.StatusBadRequest, "VALIDATION_ERROR", "nothing to update")
			return
		}
		if body.Category != nil {
			c := strings.ToLower(strings.TrimSpace(*body.Category))
			if !store.ValidCategory(c) {
				writeError(w, req, http.StatusBadRequest, "INVALID_CATEGORY",
					"category must be one of "+strings.Join(store.Categories, ", "))
				return
			}
			body.Category = &c
		}
		if body.Position != nil && *body.Position < 0 {
			writeError(w, req, http.StatusBadRequest, "VALIDATION_ERROR", "position must not be negative")
			return
		}
		img, err := d.Store.UpdateImage(req.Context(), chi.URLParam(req, "imageID"), store.ImagePatch{
			Category: body.Category,
			IsKey:    body.IsKey,
			Position: body.Position,
		})
		if err != nil {
			storeError(w, req, d.Log, err, "image")
			return
		}
		if img.Status == store.StatusPending {
			d.enqueue(img.ID)
		}
		render.JSON(w, req, img)
	})

	r.Delete("/images/{imageID}", func(w http.ResponseWriter, req *http.Request) {
		img, err := d.Store.DeleteImage(req.Context(), chi.URLParam(req, "imageID"))
		if err != nil {
			storeError(w, req, d.Log, err, "image")
			return
		}
		d.removeObjects(req.Context(), img)
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/images/{imageID}/process", func(w http.ResponseWriter, req *http.Request) {
		img, err := d.Store.RequeueImage(req.Context(), chi.URLParam(req, "imageID"))
		if err != nil {
			storeError(w, req, d.Log, err, "image")
			return
		}
		d.enqueue(img.ID)
		render.Status(req, http.StatusAccepted)
		render.JSON(w, req, img)
	})
}

func uploadImage(w http.ResponseWriter, req *http.Request, d InventoryDeps) {
	ctx := req.Context()
	vehicle, err := d.Store.GetVehicle(ctx, chi.URLParam(req, "vehicleID"))
	if err != nil {
		storeError(w, req, d.Log, err, "vehicle")
		return
	}

	req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
	if err := req.ParseMultipartForm(8 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, req, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds 25MB")
			return
		}
		writeError(w, req, http.StatusBadRequest, "INVALID_UPLOAD", "expected multipart form with a file field")
		return
	}
	file, _, err := req.FormFile("file")
	if err != nil {
		writeError(w, req, http.StatusBadRequest, "INVALID_UPLOAD", "file field is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, req, http.StatusBadRequest, "INVALID_UPLOAD", "could not read file")
		return
	}

	contentType := http.DetectContentType(data)
	ext, err := objectstore.ExtFor(contentType)
	if err != nil {
		writeError(w, req, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "only JPEG, PNG, WebP and GIF images are accepted")
		return
	}

	category := strings.ToLower(strings.TrimSpace(req.FormValue("category")))
	if category == "" {
		category = "other"
	}
	if !store.ValidCategory(category) {
		writeError(w, req, http.StatusBadRequest, "INVALID_CATEGORY", "category must be one of "+strings.Join(store.Categories, ", "))
		return
	}
	isKey, _ := strconv.ParseBool(req.FormValue("isKey"))

	key := objectstore.OriginalKey(vehicle.StoreID, vehicle.ID, ext)
	if err := d.Bucket.Put(ctx, key, data, contentType); err != nil {
		d.Log.Error("upload original", zap.String("key", key), zap.Error(err))
		writeError(w, req, http.StatusBadGateway, "STORAGE_ERROR", "could not store file")
		return
	}

	img, err := d.Store.CreateImage(ctx, store.ImageInput{
		VehicleID:   vehicle.ID,
		OriginalKey: key,
		OriginalURL: d.Bucket.URL(key),
		ContentType: contentType,
		IsKey:       isKey,
		Category:    category,
	})
	if err != nil {
		d.removeObjects(ctx, store.Image{OriginalKey: key})
		storeError(w, req, d.Log, err, "image")
		return
	}
	d.enqueue(img.ID)

	d.Log.Info("image uploaded",
		zap.String("image_id", img.ID),
		zap.String("vehicle_id", vehicle.ID),
		zap.Int("bytes", len(data)),
		zap.Bool("key_photo", isKey),
	)
	render.Status(req, http.StatusCreated)
	render.JSON(w, req, img)
}
