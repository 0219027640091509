package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	p := filepath.Join(t.TempDir(), "page.png")
	f, err := os.Create(p)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return p
}

func TestImageOpenerSinglePage(t *testing.T) {
	doc, err := ImageOpener{}.Open(writePNG(t, 30, 20), 200)
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, 1, doc.NumPage())

	img, err := doc.Render(1)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 30, 20), img.Bounds())
}

func TestImageOpenerPageRange(t *testing.T) {
	doc, err := ImageOpener{}.Open(writePNG(t, 4, 4), 0)
	require.NoError(t, err)
	defer doc.Close()

	for _, page := range []int{0, 2, -1} {
		_, err := doc.Render(page)
		assert.ErrorIs(t, err, ErrPageRange, "page %d", page)
	}
}

func TestImageOpenerRejectsGarbage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "junk.png")
	require.NoError(t, os.WriteFile(p, []byte("not an image"), 0o644))

	_, err := ImageOpener{}.Open(p, 0)
	assert.Error(t, err)
}

func TestPageCountInvalidPDF(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4\ngarbage"), 0o644))

	_, err := PageCount(p)
	assert.Error(t, err)
}

// writeBlankPDF builds a minimal PDF with n empty 1x1 inch pages and a correct xref table.
func writeBlankPDF(t *testing.T, n int) string {
	t.Helper()

	objs := []string{"<< /Type /Catalog /Pages 2 0 R >>"}
	kids := ""
	for i := 0; i < n; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+i)
	}
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, n))
	for i := 0; i < n; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 72 72] >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)

	p := filepath.Join(t.TempDir(), "blank.pdf")
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))
	return p
}

func TestFitzRendersPages(t *testing.T) {
	doc, err := NewFitzOpener().Open(writeBlankPDF(t, 2), 100)
	require.NoError(t, err)
	defer doc.Close()

	require.Equal(t, 2, doc.NumPage())

	img, err := doc.Render(2)
	require.NoError(t, err)
	assert.InDelta(t, 100, img.Bounds().Dx(), 1)
	assert.InDelta(t, 100, img.Bounds().Dy(), 1)

	_, err = doc.Render(3)
	assert.ErrorIs(t, err, ErrPageRange)
}

func TestFitzOpenMissing(t *testing.T) {
	_, err := NewFitzOpener().Open(filepath.Join(t.TempDir(), "none.pdf"), 72)
	assert.Error(t, err)
}

func TestPageCount(t *testing.T) {
	n, err := PageCount(writeBlankPDF(t, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
