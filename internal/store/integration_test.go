package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to STORE_TEST_DSN, a disposable database.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("STORE_TEST_DSN")
	if dsn == "" {
		t.Skip("STORE_TEST_DSN not set")
	}
	s, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	_, err = s.DB.ExecContext(ctx, `TRUNCATE stores CASCADE`)
	require.NoError(t, err)
	return s
}

func TestInventoryLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d, err := s.CreateDealership(ctx, DealershipInput{Name: "Main", Slug: "main"})
	require.NoError(t, err)
	_, err = s.CreateDealership(ctx, DealershipInput{Name: "Main 2", Slug: "main"})
	assert.ErrorIs(t, err, ErrConflict)

	a, err := s.CreateVehicle(ctx, VehicleInput{StoreID: d.ID, VIN: "1HGBH41JXMN109186", StockNumber: "T1"})
	require.NoError(t, err)
	b, err := s.CreateVehicle(ctx, VehicleInput{StoreID: d.ID, VIN: "2HGFG12878H542890", StockNumber: "T2"})
	require.NoError(t, err)
	_, err = s.CreateVehicle(ctx, VehicleInput{StoreID: d.ID, VIN: "1M8GDM9AXKP042788", StockNumber: "T1"})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = s.GetVehicle(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := s.CreateImage(ctx, ImageInput{VehicleID: a.ID, OriginalKey: "k1", OriginalURL: "https://cdn/k1"})
	require.NoError(t, err)
	second, err := s.CreateImage(ctx, ImageInput{VehicleID: a.ID, OriginalKey: "k2", OriginalURL: "https://cdn/k2", IsKey: true})
	require.NoError(t, err)
	assert.Equal(t, 0, first.Position)
	assert.Equal(t, 1, second.Position)
	assert.Equal(t, "other", first.Category)
	_, err = s.CreateImage(ctx, ImageInput{VehicleID: b.ID, OriginalKey: "k3", OriginalURL: "https://cdn/k3"})
	require.NoError(t, err)

	pending, err := s.ListProcessable(ctx, 3, time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.True(t, pending[0].IsKey, "key photos first")

	// nothing optimized yet: the feed is empty
	fv, err := s.ListFeedVehicles(ctx)
	require.NoError(t, err)
	assert.Empty(t, fv)

	img, err := s.MarkProcessing(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, img.Status)
	assert.Equal(t, 1, img.Attempts)

	prev, err := s.MarkOptimized(ctx, first.ID, "opt1", "https://cdn/opt1.jpg")
	require.NoError(t, err)
	assert.Empty(t, prev)
	_, err = s.MarkOptimized(ctx, first.ID, "opt-late", "https://cdn/opt-late.jpg")
	assert.ErrorIs(t, err, ErrSuperseded, "only a processing image accepts a result")
	_, err = s.MarkProcessing(ctx, first.ID)
	require.NoError(t, err)
	prev, err = s.MarkOptimized(ctx, first.ID, "opt2", "https://cdn/opt2.jpg")
	require.NoError(t, err)
	assert.Equal(t, "opt1", prev)

	require.NoError(t, s.MarkFailed(ctx, second.ID, "vendor down"))
	assert.ErrorIs(t, s.MarkFailed(ctx, "00000000-0000-0000-0000-000000000000", "x"), ErrNotFound)

	n, err := s.RetryExhausted(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	again, err := s.GetImage(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Status)
	assert.Zero(t, again.Attempts)
	require.NoError(t, s.MarkFailed(ctx, second.ID, "vendor down"))

	fv, err = s.ListFeedVehicles(ctx)
	require.NoError(t, err)
	require.Len(t, fv, 1, "vehicle B has no optimized image")
	assert.Equal(t, "1HGBH41JXMN109186", fv[0].VIN)
	require.Len(t, fv[0].Images, 1)
	assert.Equal(t, "https://cdn/opt2.jpg", *fv[0].Images[0].OptimizedURL)

	isKey := false
	updated, err := s.UpdateImage(ctx, first.ID, ImagePatch{IsKey: &isKey})
	require.NoError(t, err)
	assert.Equal(t, StatusDone, updated.Status, "unchanged is_key keeps status")
	isKey = true
	updated, err = s.UpdateImage(ctx, first.ID, ImagePatch{IsKey: &isKey})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, updated.Status)
	assert.True(t, updated.IsOptimized, "feed keeps the previous version until reprocessed")

	// a key flag flip during a run wins over the run's result
	_, err = s.MarkProcessing(ctx, first.ID)
	require.NoError(t, err)
	isKey = false
	_, err = s.UpdateImage(ctx, first.ID, ImagePatch{IsKey: &isKey})
	require.NoError(t, err)
	_, err = s.MarkOptimized(ctx, first.ID, "opt3", "https://cdn/opt3.jpg")
	assert.ErrorIs(t, err, ErrSuperseded)
	got, err := s.GetImage(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "opt2", *got.OptimizedKey)
	pending, err = s.ListProcessable(ctx, 3, time.Minute, 10)
	require.NoError(t, err)
	assert.Contains(t, imageIDs(pending), first.ID, "the sweep picks the reset image up")

	// an interrupted run hands the image back without spending the attempt
	_, err = s.MarkProcessing(ctx, first.ID)
	require.NoError(t, err)
	require.NoError(t, s.ReleaseImage(ctx, first.ID))
	got, err = s.GetImage(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Zero(t, got.Attempts)

	images, err := s.DeleteVehicle(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, images, 2)

	images, err = s.DeleteDealership(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, images, 1)
}

func imageIDs(images []Image) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		out = append(out, img.ID)
	}
	return out
}
