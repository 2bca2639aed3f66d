package httpapi

import (
	"context"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yourorg/inventory-api/internal/jobs"
	"github.com/yourorg/inventory-api/internal/store"
)

// Inventory is the slice of the Postgres store the admin API uses.
type Inventory interface {
	CreateDealership(ctx context.Context, in store.DealershipInput) (store.Dealership, error)
	ListDealerships(ctx context.Context) ([]store.Dealership, error)
	GetDealership(ctx context.Context, id string) (store.Dealership, error)
	UpdateDealership(ctx context.Context, id string, in store.DealershipInput) (store.Dealership, error)
	DeleteDealership(ctx context.Context, id string) ([]store.Image, error)

	CreateVehicle(ctx context.Context, in store.VehicleInput) (store.Vehicle, error)
	ListVehicles(ctx context.Context, storeID string) ([]store.Vehicle, error)
	GetVehicle(ctx context.Context, id string) (store.Vehicle, error)
	UpdateVehicle(ctx context.Context, id string, in store.VehicleInput) (store.Vehicle, error)
	DeleteVehicle(ctx context.Context, id string) ([]store.Image, error)

	CreateImage(ctx context.Context, in store.ImageInput) (store.Image, error)
	GetImage(ctx context.Context, id string) (store.Image, error)
	ListImages(ctx context.Context, vehicleID string) ([]store.Image, error)
	UpdateImage(ctx context.Context, id string, p store.ImagePatch) (store.Image, error)
	RequeueImage(ctx context.Context, id string) (store.Image, error)
	DeleteImage(ctx context.Context, id string) (store.Image, error)
}

type ObjectBucket interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

type Enqueuer interface {
	Enqueue(j jobs.Job) bool
}

type InventoryDeps struct {
	Store  Inventory
	Bucket ObjectBucket
	Queue  Enqueuer // optional; the sweeper catches anything not queued
	Log    *zap.Logger
}

// RegisterInventory mounts the store, vehicle and photo admin routes.
func RegisterInventory(r chi.Router, d InventoryDeps) {
	d.Log = nopIfNil(d.Log).Named("inventory")
	registerDealerships(r, d)
	registerVehicles(r, d)
	registerImages(r, d)
}

func (d InventoryDeps) enqueue(imageID string) {
	if d.Queue == nil {
		return
	}
	if !d.Queue.Enqueue(jobs.Job{ImageID: imageID}) {
		d.Log.Debug("image job not queued", zap.String("image_id", imageID))
	}
}

// removeObjects deletes the stored files behind deleted image rows.
func (d InventoryDeps) removeObjects(ctx context.Context, images ...store.Image) {
	ctx = context.WithoutCancel(ctx)
	for _, img := range images {
		keys := []string{img.OriginalKey}
		if img.OptimizedKey != nil {
			keys = append(keys, *img.OptimizedKey)
		}
		for _, k := range keys {
			if k == "" {
				continue
			}
			if err := d.Bucket.Delete(ctx, k); err != nil {
				d.Log.Warn("delete object", zap.String("key", k), zap.Error(err))
			}
		}
	}
}
