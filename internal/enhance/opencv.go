//go:build opencv

package enhance

import (
	"fmt"
	"image"
	"image/draw"

	"gocv.io/x/gocv"
)

// Backend names the thresholding implementation in use.
const Backend = "opencv"

type opencvEnhancer struct {
	opts Options
}

func newBackend(opts Options) Enhancer {
	return &opencvEnhancer{opts: opts}
}

func (e *opencvEnhancer) Enhance(img image.Image) (*image.Gray, error) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("image to mat: %w", err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.AdaptiveThreshold(gray, &thresh, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, e.opts.BlockSize, float32(e.opts.C))

	out, err := thresh.ToImage()
	if err != nil {
		return nil, fmt.Errorf("mat to image: %w", err)
	}
	if g, ok := out.(*image.Gray); ok {
		return g, nil
	}
	g := image.NewGray(out.Bounds())
	draw.Draw(g, g.Bounds(), out, out.Bounds().Min, draw.Src)
	return g, nil
}
