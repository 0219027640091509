// Package raster turns documents into page images.
//
// PDFs are rendered with MuPDF through go-fitz; single raster images
// (PNG, JPEG, GIF, TIFF, BMP, WebP) are exposed as one-page documents so the
// rest of the pipeline does not care where a page came from.
package raster

import (
	"errors"
	"fmt"
	"image"
)

// Document abstracts an opened, renderable document.
type Document interface {
	NumPage() int
	// Render returns the image of a 1-based page.
	Render(page int) (image.Image, error)
	Close() error
}

// Opener abstracts opening a path into a Document rendered at dpi.
type Opener interface {
	Open(path string, dpi float64) (Document, error)
}

// ErrPageRange is returned when a page number is outside the document.
var ErrPageRange = errors.New("page out of range")

func checkPage(page, total int) error {
	if page < 1 || page > total {
		return fmt.Errorf("page %d (document has %d pages): %w", page, total, ErrPageRange)
	}
	return nil
}
