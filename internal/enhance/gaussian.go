//go:build !opencv

package enhance

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Backend names the thresholding implementation in use.
const Backend = "imaging"

type gaussianEnhancer struct {
	opts Options
}

func newBackend(opts Options) Enhancer {
	return &gaussianEnhancer{opts: opts}
}

// Enhance thresholds each pixel against the Gaussian-weighted mean of its
// neighbourhood: 255 when src > mean-C, else 0.
func (e *gaussianEnhancer) Enhance(img image.Image) (*image.Gray, error) {
	gray := imaging.Grayscale(img)
	mean := imaging.Blur(gray, gaussianSigma(e.opts.BlockSize))

	b := gray.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	// integer comparison against ceil(C), as OpenCV does for THRESH_BINARY
	c := int(math.Ceil(e.opts.C))
	for y := 0; y < b.Dy(); y++ {
		srcRow := gray.Pix[y*gray.Stride:]
		meanRow := mean.Pix[y*mean.Stride:]
		outRow := out.Pix[y*out.Stride:]
		for x := 0; x < b.Dx(); x++ {
			// NRGBA: grayscale values live in every colour channel; R is enough.
			if int(srcRow[x*4])-int(meanRow[x*4]) > -c {
				outRow[x] = 255
			}
		}
	}
	return out, nil
}
