package objectstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"
)

var ErrNotFound = errors.New("object not found")

// Provider is the bucket the service keeps original and optimized photos in.
type Provider interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete succeeds when the object is already gone.
	Delete(ctx context.Context, key string) error
	// CheckBucket makes sure the bucket exists, creating it where the
	// backend allows.
	CheckBucket(ctx context.Context) error
}

// Bucket pairs a provider with the public URL prefix objects are served from.
type Bucket struct {
	Provider
	publicURL string
}

func NewBucket(p Provider, publicURL string) *Bucket {
	return &Bucket{Provider: p, publicURL: strings.TrimRight(publicURL, "/")}
}

func (b *Bucket) URL(key string) string {
	return b.publicURL + "/" + strings.TrimLeft(key, "/")
}

const maxObjectSize = 64 << 20

// OriginalKey names a freshly uploaded photo.
func OriginalKey(storeID, vehicleID, ext string) string {
	return vehicleKey(storeID, vehicleID, "original", ext)
}

// OptimizedKeyFor names a processed copy next to the original's folder.
// Every run gets a new key so CDNs never serve a stale object under the
// same name.
func OptimizedKeyFor(originalKey string) string {
	dir := path.Dir(path.Dir(originalKey))
	if dir == "." || dir == "/" {
		dir = "misc"
	}
	return path.Join(dir, "optimized", strings.ToLower(ulid.Make().String())+".jpg")
}

func vehicleKey(storeID, vehicleID, kind, ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join("stores", storeID, "vehicles", vehicleID, kind, strings.ToLower(ulid.Make().String())+ext)
}

// ExtFor maps an image content type to a file extension.
func ExtFor(contentType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/webp":
		return ".webp", nil
	case "image/gif":
		return ".gif", nil
	default:
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}
}
