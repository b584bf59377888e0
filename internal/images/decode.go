// Package images downloads, decodes and scales preview images.
package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	// Register the remaining allowed formats.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultPreviewMaxSide bounds the longer side of a generated preview.
	DefaultPreviewMaxSide = 480
	// DefaultMaxPixels bounds width*height of an image accepted for decoding.
	DefaultMaxPixels = 40_000_000
)

// ErrTooManyPixels is returned for images whose header declares more
// pixels than the decode budget allows.
var ErrTooManyPixels = errors.New("image dimensions exceed pixel limit")

// Decoded is a fully decoded image.
type Decoded struct {
	Image  image.Image
	Format string
	Width  int
	Height int
}

// Decode decodes data in any registered format. The header is checked
// first so that no more than maxPixels pixels are ever allocated; a
// non-positive maxPixels means DefaultMaxPixels.
func Decode(data []byte, maxPixels int64) (*Decoded, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("could not decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("image has zero dimension")
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d (max %d pixels)", ErrTooManyPixels, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("could not decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("image has zero dimension")
	}
	return &Decoded{Image: img, Format: format, Width: b.Dx(), Height: b.Dy()}, nil
}

// Thumbnail encodes img as a JPEG fitting within a maxSide box. The aspect
// ratio is kept and small images are not scaled up.
func Thumbnail(img image.Image, maxSide int) ([]byte, error) {
	if maxSide <= 0 {
		maxSide = DefaultPreviewMaxSide
	}
	w, h := fitWithin(img.Bounds().Dx(), img.Bounds().Dy(), maxSide)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Rect, img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode preview to jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func fitWithin(w, h, maxSide int) (int, int) {
	if w <= maxSide && h <= maxSide {
		return w, h
	}
	if w >= h {
		nh := h * maxSide / w
		if nh < 1 {
			nh = 1
		}
		return maxSide, nh
	}
	nw := w * maxSide / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxSide
}
