package cli

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/dmscan/internal/config"
	"github.com/local/dmscan/internal/datamatrix"
	"github.com/local/dmscan/internal/filetype"
	"github.com/local/dmscan/internal/pipeline"
	"github.com/local/dmscan/internal/raster"
	"github.com/local/dmscan/internal/source"
)

type stubDoc struct{ pages int }

func (d stubDoc) NumPage() int { return d.pages }

func (d stubDoc) Render(p int) (image.Image, error) {
	g := image.NewGray(image.Rect(0, 0, 2, 2))
	g.Pix[0] = uint8(p)
	return g, nil
}

func (d stubDoc) Close() error { return nil }

type stubOpener struct{ pages int }

func (o stubOpener) Open(string, float64) (raster.Document, error) { return stubDoc{pages: o.pages}, nil }

type grayEnhancer struct{}

func (grayEnhancer) Enhance(img image.Image) (*image.Gray, error) { return img.(*image.Gray), nil }

type pageDecoder struct {
	codes map[int][]string
	errs  map[int]error
}

func (d pageDecoder) Decode(img image.Image) ([]string, error) {
	p := int(img.(*image.Gray).Pix[0])
	if err := d.errs[p]; err != nil {
		return nil, err
	}
	return d.codes[p], nil
}

type harness struct {
	app    *App
	stdout bytes.Buffer
	stderr bytes.Buffer
	built  config.Config
}

func newHarness(pages int, dec pageDecoder) *harness {
	h := &harness{}
	cfg := config.FromEnv()
	cfg.Logging.Level = "warn"
	cfg.Logging.File = ""
	cfg.Axiom.Send = false
	cfg.Cache.RedisURL = ""
	cfg.Metrics.File = ""

	h.app = New(cfg, &h.stdout, &h.stderr)
	h.app.Build = func(_ context.Context, c config.Config) (pipeline.Dependencies, func(), error) {
		h.built = c
		return pipeline.Dependencies{
			Resolver: source.New(source.Options{}),
			Detector: filetype.New(),
			PDF:      stubOpener{pages: pages},
			Images:   stubOpener{pages: 1},
			Enhancer: grayEnhancer{},
			Decoder:  dec,
		}, func() {}, nil
	}
	return h
}

func writePDF(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "codes.pdf")
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n"), 0o644))
	return p
}

func TestSingleCode(t *testing.T) {
	h := newHarness(1, pageDecoder{codes: map[int][]string{1: {"HELLO"}}})

	code := h.app.Execute(context.Background(), []string{writePDF(t)})

	assert.Equal(t, 0, code)
	assert.Equal(t, "Page,Content\r\n1,HELLO\r\n", h.stdout.String())
	assert.Empty(t, h.stderr.String())
}

func TestContentOnly(t *testing.T) {
	h := newHarness(1, pageDecoder{codes: map[int][]string{1: {"HELLO"}}})

	code := h.app.Execute(context.Background(), []string{"--content-only", writePDF(t)})

	assert.Equal(t, 0, code)
	assert.Equal(t, "HELLO\r\n", h.stdout.String())
}

func TestNoCodes(t *testing.T) {
	h := newHarness(2, pageDecoder{})

	assert.Equal(t, 0, h.app.Execute(context.Background(), []string{writePDF(t)}))
	assert.Equal(t, "Page,Content\r\n", h.stdout.String())

	h = newHarness(2, pageDecoder{})
	assert.Equal(t, 0, h.app.Execute(context.Background(), []string{"--content-only", writePDF(t)}))
	assert.Empty(t, h.stdout.String())
}

func TestMultiPageOrder(t *testing.T) {
	h := newHarness(3, pageDecoder{codes: map[int][]string{1: {"A"}, 3: {"B", "C"}}})

	code := h.app.Execute(context.Background(), []string{"-w", "3", writePDF(t)})

	assert.Equal(t, 0, code)
	assert.Equal(t, "Page,Content\r\n1,A\r\n3,B\r\n3,C\r\n", h.stdout.String())
}

func TestMissingFile(t *testing.T) {
	h := newHarness(1, pageDecoder{})

	code := h.app.Execute(context.Background(), []string{"missing.pdf"})

	assert.Equal(t, 1, code)
	assert.Empty(t, h.stdout.String())
	assert.Equal(t, "PDF file not found: missing.pdf\n", h.stderr.String())
}

func TestInvalidPayloadOnPageTwo(t *testing.T) {
	h := newHarness(3, pageDecoder{
		codes: map[int][]string{1: {"OK"}},
		errs:  map[int]error{2: &datamatrix.DecodeError{Symbol: 1, Err: datamatrix.ErrInvalidPayload}},
	})

	code := h.app.Execute(context.Background(), []string{writePDF(t)})

	assert.Equal(t, 1, code)
	assert.Empty(t, h.stdout.String())
	assert.Equal(t, "Error decoding Data Matrix on page 2: payload is not valid UTF-8\n", h.stderr.String())
}

func TestUnexpectedError(t *testing.T) {
	h := newHarness(1, pageDecoder{})
	h.app.Build = func(context.Context, config.Config) (pipeline.Dependencies, func(), error) {
		return pipeline.Dependencies{}, nil, errors.New("renderer unavailable")
	}

	code := h.app.Execute(context.Background(), []string{writePDF(t)})

	assert.Equal(t, 1, code)
	assert.Equal(t, "An error occurred: renderer unavailable\n", h.stderr.String())
}

func TestUsageErrors(t *testing.T) {
	h := newHarness(1, pageDecoder{})
	assert.Equal(t, 1, h.app.Execute(context.Background(), nil))
	assert.Contains(t, h.stderr.String(), "accepts 1 arg(s), received 0")
	assert.Empty(t, h.stdout.String())

	h = newHarness(1, pageDecoder{})
	assert.Equal(t, 1, h.app.Execute(context.Background(), []string{"--block-size", "50", writePDF(t)}))
	assert.Contains(t, h.stderr.String(), "An error occurred: block size 50 must be odd")

	h = newHarness(1, pageDecoder{})
	assert.Equal(t, 1, h.app.Execute(context.Background(), []string{"--dpi", "0", writePDF(t)}))
	assert.Contains(t, h.stderr.String(), "dpi must be positive")
}

func TestFlagsOverrideConfig(t *testing.T) {
	h := newHarness(1, pageDecoder{})

	code := h.app.Execute(context.Background(), []string{"--sequential", "--dpi", "300", "--offset", "5", "--block-size", "31", writePDF(t)})

	require.Equal(t, 0, code)
	assert.Equal(t, 1, h.built.Scan.Workers)
	assert.Equal(t, 300.0, h.built.Scan.DPI)
	assert.Equal(t, 5.0, h.built.Scan.Offset)
	assert.Equal(t, 31, h.built.Scan.BlockSize)
}

func TestMetricsFile(t *testing.T) {
	h := newHarness(1, pageDecoder{codes: map[int][]string{1: {"M"}}})
	file := filepath.Join(t.TempDir(), "dmscan.prom")

	require.Equal(t, 0, h.app.Execute(context.Background(), []string{"--metrics-file", file, writePDF(t)}))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "dmscan_runs_total")
}
