package enhance

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(r image.Rectangle, c color.Color) *image.RGBA {
	img := image.NewRGBA(r)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())
	for _, bs := range []int{0, 1, 2, 50, -3} {
		err := Options{BlockSize: bs, C: 7}.Validate()
		assert.ErrorIs(t, err, ErrInvalidOptions, "block size %d", bs)
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	_, err := New(Options{BlockSize: 4})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestGaussianSigmaMatchesOpenCV(t *testing.T) {
	assert.InDelta(t, 8.0, gaussianSigma(51), 1e-9)
	assert.InDelta(t, 0.8, gaussianSigma(3), 1e-9)
}

func TestEnhanceUniformPageIsWhite(t *testing.T) {
	e, err := New(DefaultOptions())
	require.NoError(t, err)

	out, err := e.Enhance(filled(image.Rect(0, 0, 64, 48), color.RGBA{128, 128, 128, 255}))
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 64, 48), out.Bounds())
	for _, p := range out.Pix {
		if p != 255 {
			t.Fatalf("expected a uniform page to threshold to white, got %d", p)
		}
	}
}

func TestEnhanceKeepsDarkModules(t *testing.T) {
	img := filled(image.Rect(0, 0, 200, 200), color.White)
	for y := 90; y < 110; y++ {
		for x := 90; x < 110; x++ {
			img.Set(x, y, color.Black)
		}
	}

	e, err := New(DefaultOptions())
	require.NoError(t, err)
	out, err := e.Enhance(img)
	require.NoError(t, err)

	assert.Equal(t, uint8(0), out.GrayAt(100, 100).Y, "square centre")
	assert.Equal(t, uint8(255), out.GrayAt(5, 5).Y, "background")
}

func TestEnhanceOutputIsBinaryAndOriginAligned(t *testing.T) {
	img := filled(image.Rect(10, 10, 50, 40), color.RGBA{250, 240, 230, 255})
	for x := 20; x < 30; x++ {
		img.Set(x, 25, color.RGBA{10, 20, 30, 255})
	}

	e, err := New(DefaultOptions())
	require.NoError(t, err)
	out, err := e.Enhance(img)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 40, 30), out.Bounds())
	for _, p := range out.Pix {
		assert.True(t, p == 0 || p == 255, "non-binary pixel %d", p)
	}
}
