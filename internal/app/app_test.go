package app

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yourorg/inventory-api/internal/config"
	"github.com/yourorg/inventory-api/internal/objectstore"
	"github.com/yourorg/inventory-api/internal/redisx"
)

func TestNewProcessor(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := &Deps{Bucket: objectstore.NewBucket(objectstore.NewMemory(), "https://cdn.example.com")}

	p, err := NewProcessor(config.Config{BackdropColor: "#fff"}, d, nil, zap.New(core))
	require.NoError(t, err)
	assert.Nil(t, p.Locker, "no redis means no shared lock")
	assert.False(t, p.Remover.Enabled())
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, p.Photo.Backdrop)
	assert.Equal(t, 1, logs.FilterMessageSnippet("BGREMOVE_API_KEY").Len())
}

func TestNewProcessorWithRedisAndVendor(t *testing.T) {
	d := &Deps{
		Bucket: objectstore.NewBucket(objectstore.NewMemory(), "https://cdn.example.com"),
		Redis:  redisx.New("localhost:0", "", 0),
	}
	t.Cleanup(func() { _ = d.Redis.Close() })

	p, err := NewProcessor(config.Config{BackdropColor: "#F2F2F2", BGRemoveAPIKey: "k"}, d, nil, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, p.Locker)
	assert.True(t, p.Remover.Enabled())
}

func TestNewProcessorBadBackdrop(t *testing.T) {
	_, err := NewProcessor(config.Config{BackdropColor: "grey"}, &Deps{}, nil, zap.NewNop())
	assert.ErrorContains(t, err, "BACKDROP_COLOR")
}
