package raster

import (
	"fmt"
	"image"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageOpener exposes a single raster image as a one-page document.
// The dpi argument is ignored; the image is used at its native resolution.
type ImageOpener struct{}

func (ImageOpener) Open(path string, _ float64) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	log.Debug().Str("path", path).Str("format", format).Stringer("bounds", img.Bounds()).Msg("decoded image")
	return &imageDoc{img: img}, nil
}

type imageDoc struct {
	img image.Image
}

func (d *imageDoc) NumPage() int { return 1 }

func (d *imageDoc) Render(page int) (image.Image, error) {
	if err := checkPage(page, 1); err != nil {
		return nil, err
	}
	return d.img, nil
}

func (d *imageDoc) Close() error {
	d.img = nil
	return nil
}
