package objectstore

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var keyPattern = regexp.MustCompile(`^stores/s1/vehicles/v1/(original|optimized)/[0-9a-z]{26}\.(jpg|png)$`)

func TestKeys(t *testing.T) {
	orig := OriginalKey("s1", "v1", "PNG")
	assert.Regexp(t, keyPattern, orig)
	assert.Contains(t, orig, "/original/")

	a, b := OptimizedKeyFor(orig), OptimizedKeyFor(orig)
	assert.Regexp(t, keyPattern, a)
	assert.Contains(t, a, "/optimized/")
	assert.NotEqual(t, a, b)

	assert.Regexp(t, `^misc/optimized/[0-9a-z]{26}\.jpg$`, OptimizedKeyFor("loose.png"))
}

func TestExtFor(t *testing.T) {
	tests := map[string]string{
		"image/jpeg":               ".jpg",
		"image/png":                ".png",
		"IMAGE/JPEG; charset=x":    ".jpg",
		"image/webp":               ".webp",
	}
	for ct, want := range tests {
		got, err := ExtFor(ct)
		require.NoError(t, err, ct)
		assert.Equal(t, want, got, ct)
	}
	_, err := ExtFor("application/pdf")
	assert.Error(t, err)
}

func TestBucketURL(t *testing.T) {
	b := NewBucket(NewMemory(), "https://cdn.example.com/media/")
	assert.Equal(t, "https://cdn.example.com/media/stores/a.jpg", b.URL("stores/a.jpg"))
	assert.Equal(t, "https://cdn.example.com/media/stores/a.jpg", b.URL("/stores/a.jpg"))
}

func TestMemoryProvider(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Put(ctx, "k", []byte("v"), "image/jpeg"))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
	assert.Equal(t, "image/jpeg", m.ContentType("k"))

	require.NoError(t, m.Delete(ctx, "k"))
	require.NoError(t, m.Delete(ctx, "k"))
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen(t *testing.T) {
	p, err := Open(context.Background(), Config{Driver: "memory"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, p)

	_, err = Open(context.Background(), Config{Driver: "ftp"}, zap.NewNop())
	assert.Error(t, err)
}
