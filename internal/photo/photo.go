package photo

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	MaxWidth  = 1920
	MaxHeight = 1440
	Quality   = 85
)

var ErrBadColor = errors.New("photo: invalid hex color")

type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
	// Backdrop fills transparent pixels; only used for cut-out images.
	Backdrop color.Color
}

func DefaultOptions() Options {
	return Options{MaxWidth: MaxWidth, MaxHeight: MaxHeight, Quality: Quality, Backdrop: color.White}
}

// Optimize decodes an uploaded photo, honours EXIF orientation, fits it
// inside the configured box and re-encodes it as JPEG.
func Optimize(data []byte, opts Options) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return encode(fit(img, opts), opts)
}

// Composite flattens a cut-out (PNG with alpha) onto a solid backdrop of the
// same size, then fits and encodes it like Optimize.
func Composite(cutout []byte, opts Options) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(cutout))
	if err != nil {
		return nil, fmt.Errorf("decode cutout: %w", err)
	}
	bg := opts.Backdrop
	if bg == nil {
		bg = color.White
	}
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), bg)
	canvas = imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
	return encode(fit(canvas, opts), opts)
}

func fit(img image.Image, opts Options) image.Image {
	w, h := opts.MaxWidth, opts.MaxHeight
	if w <= 0 {
		w = MaxWidth
	}
	if h <= 0 {
		h = MaxHeight
	}
	b := img.Bounds()
	if b.Dx() <= w && b.Dy() <= h {
		return img
	}
	return imaging.Fit(img, w, h, imaging.Lanczos)
}

func encode(img image.Image, opts Options) ([]byte, error) {
	q := opts.Quality
	if q <= 0 || q > 100 {
		q = Quality
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseHexColor accepts #RGB or #RRGGBB, with or without the leading '#'.
func ParseHexColor(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return color.NRGBA{}, ErrBadColor
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, ErrBadColor
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
