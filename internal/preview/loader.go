package preview

import (
	"context"
	"fmt"

	"github.com/lehigh-university-libraries/imagepicker/internal/images"
	"github.com/lehigh-university-libraries/imagepicker/internal/objecturl"
	"github.com/lehigh-university-libraries/imagepicker/internal/source"
)

// Loader turns an address into a decoded preview. Implementations must
// honor ctx cancellation.
type Loader interface {
	Load(ctx context.Context, address string) (*Image, error)
}

// Fetcher downloads a remote URL as a blob.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*source.Blob, error)
}

type imageLoader struct {
	objects   *objecturl.Registry
	fetcher   Fetcher
	maxSide   int
	maxPixels int64
}

// NewLoader returns a Loader that reads object URLs from objects and
// everything else through fetcher. Images larger than maxPixels are
// refused before decoding.
func NewLoader(objects *objecturl.Registry, fetcher Fetcher, maxSide int, maxPixels int64) Loader {
	return &imageLoader{objects: objects, fetcher: fetcher, maxSide: maxSide, maxPixels: maxPixels}
}

func (l *imageLoader) Load(ctx context.Context, address string) (*Image, error) {
	var b *source.Blob
	if objecturl.IsObjectURL(address) {
		var ok bool
		b, ok = l.objects.Resolve(address)
		if !ok {
			return nil, fmt.Errorf("object URL %s is not live", address)
		}
	} else {
		var err error
		b, err = l.fetcher.Fetch(ctx, address)
		if err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d, err := images.Decode(b.Data, l.maxPixels)
	if err != nil {
		return nil, err
	}
	thumb, err := images.Thumbnail(d.Image, l.maxSide)
	if err != nil {
		return nil, err
	}

	return &Image{
		Address:     address,
		Format:      d.Format,
		Width:       d.Width,
		Height:      d.Height,
		ContentType: b.ContentType,
		Data:        b.Data,
		Thumbnail:   thumb,
	}, nil
}
