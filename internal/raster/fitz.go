package raster

import (
	"fmt"
	"image"
	"sync"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// FitzOpener renders PDFs with go-fitz (MuPDF, no external tools needed).
type FitzOpener struct{}

// NewFitzOpener creates a go-fitz backed opener.
func NewFitzOpener() FitzOpener { return FitzOpener{} }

func (FitzOpener) Open(path string, dpi float64) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return &fitzDoc{doc: doc, dpi: dpi}, nil
}

// fitzDoc serializes access to the MuPDF context; pages are rendered one at a
// time while enhancement and decoding run concurrently.
type fitzDoc struct {
	mu  sync.Mutex
	doc *fitz.Document
	dpi float64
}

func (d *fitzDoc) NumPage() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.NumPage()
}

func (d *fitzDoc) Render(page int) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkPage(page, d.doc.NumPage()); err != nil {
		return nil, err
	}

	// go-fitz uses 0-based indexing
	img, err := d.doc.ImageDPI(page-1, d.dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}

	log.Debug().
		Int("page", page).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Float64("dpi", d.dpi).
		Msg("rendered page")

	return img, nil
}

func (d *fitzDoc) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Close()
}
