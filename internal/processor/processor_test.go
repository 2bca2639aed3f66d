package processor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/inventory-api/bgremove"
	"github.com/yourorg/inventory-api/internal/events"
	"github.com/yourorg/inventory-api/internal/objectstore"
	"github.com/yourorg/inventory-api/internal/photo"
	"github.com/yourorg/inventory-api/internal/store"
)

type fakeStore struct {
	mu        sync.Mutex
	images    map[string]*store.Image
	failures  map[string]string
	optimized map[string]string
}

func newFakeStore(imgs ...store.Image) *fakeStore {
	f := &fakeStore{images: map[string]*store.Image{}, failures: map[string]string{}, optimized: map[string]string{}}
	for i := range imgs {
		img := imgs[i]
		f.images[img.ID] = &img
	}
	return f
}

func (f *fakeStore) MarkProcessing(_ context.Context, id string) (store.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[id]
	if !ok {
		return store.Image{}, store.ErrNotFound
	}
	img.Status = store.StatusProcessing
	img.Attempts++
	return *img, nil
}

func (f *fakeStore) MarkOptimized(_ context.Context, id, key, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img := f.images[id]
	if img.Status != store.StatusProcessing {
		return "", store.ErrSuperseded
	}
	prev := ""
	if img.OptimizedKey != nil {
		prev = *img.OptimizedKey
	}
	img.OptimizedKey, img.OptimizedURL = &key, &url
	img.IsOptimized = true
	img.Status = store.StatusDone
	f.optimized[id] = url
	return prev, nil
}

func (f *fakeStore) MarkFailed(_ context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[id].Status = store.StatusFailed
	f.failures[id] = reason
	return nil
}

func (f *fakeStore) ReleaseImage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	img := f.images[id]
	if img.Status == store.StatusProcessing {
		img.Status = store.StatusPending
		if img.Attempts > 0 {
			img.Attempts--
		}
	}
	return nil
}

// reset flips the image back to pending the way an admin edit does.
func (f *fakeStore) reset(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[id].Status = store.StatusPending
	f.images[id].Attempts = 0
}

func (f *fakeStore) ListProcessable(_ context.Context, maxAttempts int, _ time.Duration, limit int) ([]store.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Image
	for _, img := range f.images {
		if img.Status == store.StatusPending || (img.Status == store.StatusFailed && img.Attempts < maxAttempts) {
			out = append(out, *img)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) RetryExhausted(_ context.Context, maxAttempts int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, img := range f.images {
		if img.Status == store.StatusFailed && img.Attempts >= maxAttempts {
			img.Status, img.Attempts = store.StatusPending, 0
			n++
		}
	}
	return n, nil
}

type fakeRemover struct {
	calls int
	err   error
}

func (r *fakeRemover) Enabled() bool { return true }

func (r *fakeRemover) RemoveBackground(_ context.Context, _ []byte, _ string) ([]byte, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return cutoutPNG(), nil
}

func cutoutPNG() []byte {
	cut := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	_ = png.Encode(&buf, cut)
	return buf.Bytes()
}

// funcRemover lets a test decide per call what the vendor does.
type funcRemover func(ctx context.Context, filename string) ([]byte, error)

func (funcRemover) Enabled() bool { return true }

func (f funcRemover) RemoveBackground(ctx context.Context, _ []byte, filename string) ([]byte, error) {
	return f(ctx, filename)
}

type fakeLocker struct{ held map[string]bool }

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() { delete(l.held, key) }, true, nil
}

func originalPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.NRGBA{R: 180, G: 20, B: 20, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

const origKey = "stores/s1/vehicles/v1/original/01abc.png"

func setup(t *testing.T, img store.Image) (*Processor, *fakeStore, *objectstore.Memory) {
	t.Helper()
	mem := objectstore.NewMemory()
	require.NoError(t, mem.Put(context.Background(), origKey, originalPNG(t), "image/png"))
	fs := newFakeStore(img)
	p := &Processor{
		Store:  fs,
		Bucket: objectstore.NewBucket(mem, "https://cdn.example.com"),
		Photo:  photo.DefaultOptions(),
	}
	return p, fs, mem
}

func TestProcessOptimizes(t *testing.T) {
	p, fs, mem := setup(t, store.Image{ID: "i1", VehicleID: "v1", OriginalKey: origKey, Status: store.StatusPending})
	pub := events.NewInMemory(1)
	p.Pub = pub

	require.NoError(t, p.Process(context.Background(), "i1"))

	url := fs.optimized["i1"]
	require.True(t, strings.HasPrefix(url, "https://cdn.example.com/stores/s1/vehicles/v1/optimized/"), url)
	key := *fs.images["i1"].OptimizedKey
	assert.Equal(t, "image/jpeg", mem.ContentType(key))

	evt := <-pub.SubscribeImageOptimized()
	assert.Equal(t, events.ImageOptimized{ImageID: "i1", VehicleID: "v1", OptimizedURL: url}, evt)
}

func TestProcessReplacesPreviousObject(t *testing.T) {
	old := "stores/s1/vehicles/v1/optimized/old.jpg"
	p, fs, mem := setup(t, store.Image{ID: "i1", VehicleID: "v1", OriginalKey: origKey, OptimizedKey: &old})
	require.NoError(t, mem.Put(context.Background(), old, []byte("stale"), "image/jpeg"))

	require.NoError(t, p.Process(context.Background(), "i1"))

	_, err := mem.Get(context.Background(), old)
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
	assert.NotEqual(t, old, *fs.images["i1"].OptimizedKey)
}

func TestProcessKeyPhotoUsesRemover(t *testing.T) {
	p, fs, _ := setup(t, store.Image{ID: "i1", VehicleID: "v1", OriginalKey: origKey, IsKey: true})
	rm := &fakeRemover{}
	p.Remover = rm

	require.NoError(t, p.Process(context.Background(), "i1"))
	assert.Equal(t, 1, rm.calls)
	assert.Equal(t, store.StatusDone, fs.images["i1"].Status)
}

func TestProcessNonKeyPhotoSkipsRemover(t *testing.T) {
	p, _, _ := setup(t, store.Image{ID: "i1", VehicleID: "v1", OriginalKey: origKey})
	rm := &fakeRemover{}
	p.Remover = rm

	require.NoError(t, p.Process(context.Background(), "i1"))
	assert.Zero(t, rm.calls)
}

func TestProcessQuotaMarksFailed(t *testing.T) {
	p, fs, mem := setup(t, store.Image{ID: "i1", VehicleID: "v1", OriginalKey: origKey, IsKey: true})
	p.Remover = &fakeRemover{err: bgremove.ErrQuotaExceeded}

	err := p.Process(context.Background(), "i1")
	require.Error(t, err)
	assert.True(t, IsQuota(err))
	assert.Equal(t, store.StatusFailed, fs.images["i1"].Status)
	assert.Contains(t, fs.failures["i1"], "quota")
	assert.Len(t, mem.Keys(), 1, "nothing uploaded on failure")
}

func TestProcessMissingOriginal(t *testing.T) {
	p, fs, _ := setup(t, store.Image{ID: "i1", VehicleID: "v1", OriginalKey: "stores/s1/vehicles/v1/original/gone.png"})

	err := p.Process(context.Background(), "i1")
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
	assert.Equal(t, store.StatusFailed, fs.images["i1"].Status)
}

func TestProcessUnknownImage(t *testing.T) {
	p, _, _ := setup(t, store.Image{ID: "i1", OriginalKey: origKey})
	err := p.Process(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcessSkipsLockedImage(t *testing.T) {
	p, fs, _ := setup(t, store.Image{ID: "i1", VehicleID: "v1", OriginalKey: origKey, Status: store.StatusPending})
	locker := &fakeLocker{held: map[string]bool{"img:lock:i1": true}}
	p.Locker = locker

	err := p.Process(context.Background(), "i1")
	assert.ErrorIs(t, err, ErrLocked)
	assert.Equal(t, store.StatusPending, fs.images["i1"].Status)

	delete(locker.held, "img:lock:i1")
	require.NoError(t, p.Process(context.Background(), "i1"))
	assert.Empty(t, locker.held, "lock released after processing")
}

func TestIsQuota(t *testing.T) {
	assert.True(t, IsQuota(errors.Join(errors.New("x"), bgremove.ErrQuotaExceeded)))
	assert.False(t, IsQuota(errors.New("x")))
}

func TestProcessCanceledHandsImageBack(t *testing.T) {
	p, fs, mem := setup(t, store.Image{ID: "i1", VehicleID: "v1", OriginalKey: origKey, IsKey: true, Attempts: 1, Status: store.StatusFailed})
	ctx, cancel := context.WithCancel(context.Background())
	p.Remover = funcRemover(func(ctx context.Context, _ string) ([]byte, error) {
		cancel()
		return nil, ctx.Err()
	})

	err := p.Process(ctx, "i1")
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.True(t, IsDeferred(err))
	assert.Equal(t, store.StatusPending, fs.images["i1"].Status)
	assert.Equal(t, 1, fs.images["i1"].Attempts, "interrupted attempt is not spent")
	assert.Empty(t, fs.failures)
	assert.Len(t, mem.Keys(), 1)
}

func TestProcessDeadlineStillFails(t *testing.T) {
	p, fs, _ := setup(t, store.Image{ID: "i1", VehicleID: "v1", OriginalKey: origKey, IsKey: true})
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	p.Remover = funcRemover(func(ctx context.Context, _ string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	err := p.Process(ctx, "i1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsDeferred(err))
	assert.Equal(t, store.StatusFailed, fs.images["i1"].Status)
}

func TestProcessDiscardsResultWhenImageReset(t *testing.T) {
	p, fs, mem := setup(t, store.Image{ID: "i1", VehicleID: "v1", OriginalKey: origKey, IsKey: true})
	p.Remover = funcRemover(func(context.Context, string) ([]byte, error) {
		// key flag flipped by an admin while the vendor call is running
		fs.reset("i1")
		return cutoutPNG(), nil
	})

	err := p.Process(context.Background(), "i1")
	assert.ErrorIs(t, err, store.ErrSuperseded)
	assert.True(t, IsDeferred(err))
	assert.Equal(t, store.StatusPending, fs.images["i1"].Status, "reset survives the finished run")
	assert.Nil(t, fs.images["i1"].OptimizedKey)
	assert.Empty(t, fs.failures)
	assert.Equal(t, []string{origKey}, mem.Keys(), "stale upload is removed")
}
