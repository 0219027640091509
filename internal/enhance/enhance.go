// Package enhance prepares rasterized pages for symbol detection: grayscale
// conversion followed by adaptive Gaussian thresholding into a black/white image.
package enhance

import (
	"errors"
	"fmt"
	"image"
)

// Options mirror OpenCV adaptiveThreshold's blockSize and C arguments.
type Options struct {
	BlockSize int
	C         float64
}

// DefaultOptions is a 51×51 Gaussian neighbourhood with a constant of 7.
func DefaultOptions() Options {
	return Options{BlockSize: 51, C: 7}
}

// ErrInvalidOptions is returned for a block size that is even or smaller than 3.
var ErrInvalidOptions = errors.New("invalid enhance options")

// Validate checks the neighbourhood size.
func (o Options) Validate() error {
	if o.BlockSize < 3 || o.BlockSize%2 == 0 {
		return fmt.Errorf("block size %d must be odd and >= 3: %w", o.BlockSize, ErrInvalidOptions)
	}
	return nil
}

// Enhancer converts one page image into a binary image of the same size.
type Enhancer interface {
	Enhance(img image.Image) (*image.Gray, error)
}

// New returns the enhancer compiled into this binary (OpenCV with the
// opencv build tag, imaging otherwise).
func New(opts Options) (Enhancer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return newBackend(opts), nil
}

// gaussianSigma is the sigma OpenCV derives from a kernel size when none is given.
func gaussianSigma(blockSize int) float64 {
	return 0.3*(float64(blockSize-1)*0.5-1) + 0.8
}
