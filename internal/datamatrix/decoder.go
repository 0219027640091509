// Package datamatrix finds and decodes Data Matrix symbols on an enhanced page.
package datamatrix

import (
	"errors"
	"image"
	"image/draw"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding/charmap"
)

// DefaultMaxSymbols bounds how many symbols are read from one page.
const DefaultMaxSymbols = 64

// Decoder returns the decoded payloads found on one page in reading order.
type Decoder interface {
	Decode(img image.Image) ([]string, error)
}

// ZXing decodes Data Matrix symbols with gozxing. The reader finds at most one
// symbol per call, starting from the middle of its input, so each candidate
// region of the page is cropped and read on its own.
type ZXing struct {
	reader     gozxing.Reader
	maxSymbols int
}

// NewZXing creates a decoder that reads at most maxSymbols symbols per page.
func NewZXing(maxSymbols int) *ZXing {
	if maxSymbols <= 0 {
		maxSymbols = DefaultMaxSymbols
	}
	return &ZXing{reader: datamatrix.NewDataMatrixReader(), maxSymbols: maxSymbols}
}

type symbol struct {
	text string
	area image.Rectangle
}

// Decode returns the payloads on the page ordered top to bottom, then left to right.
func (z *ZXing) Decode(img image.Image) ([]string, error) {
	page := cloneGray(img)

	var found []symbol
	for _, cand := range candidates(page) {
		if len(found) >= z.maxSymbols {
			break
		}
		if covered(found, center(cand)) {
			continue
		}

		crop := padded(cand, page.Bounds())
		bmp, err := gozxing.NewBinaryBitmapFromImage(cloneGray(page.SubImage(crop)))
		if err != nil {
			return nil, &DecodeError{Symbol: len(found) + 1, Err: err}
		}

		res, err := z.reader.Decode(bmp, nil)
		z.reader.Reset()
		if err != nil {
			var rerr gozxing.ReaderException
			if errors.As(err, &rerr) {
				// nothing here, or a candidate that failed checksum/format
				continue
			}
			return nil, &DecodeError{Symbol: len(found) + 1, Err: err}
		}

		area, ok := symbolArea(res.GetResultPoints(), crop.Min)
		if !ok {
			area = cand
		}
		if covered(found, center(area)) {
			continue
		}

		text, err := payloadText(res.GetText())
		if err != nil {
			return nil, &DecodeError{Symbol: len(found) + 1, Err: err}
		}
		found = append(found, symbol{text: text, area: area})
		log.Debug().Int("symbol", len(found)).Stringer("area", area).Msg("decoded symbol")
	}

	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i].area.Min, found[j].area.Min
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	codes := make([]string, len(found))
	for i, s := range found {
		codes[i] = s.text
	}
	return codes, nil
}

func covered(found []symbol, p image.Point) bool {
	for _, s := range found {
		if p.In(s.area) {
			return true
		}
	}
	return false
}

// payloadText recovers the payload as UTF-8 and trims surrounding whitespace.
// gozxing hands byte-mode data back as ISO-8859-1 runes, so those are turned
// back into bytes before the UTF-8 check.
func payloadText(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", ErrInvalidPayload
	}

	latin1 := true
	wide := false
	for _, r := range s {
		if r > 0xFF {
			latin1 = false
			break
		}
		if r >= 0x80 {
			wide = true
		}
	}

	if latin1 && wide {
		raw, err := charmap.ISO8859_1.NewEncoder().String(s)
		if err != nil {
			return "", ErrInvalidPayload
		}
		if !utf8.ValidString(raw) {
			return "", ErrInvalidPayload
		}
		s = raw
	}
	return strings.TrimSpace(s), nil
}

func cloneGray(img image.Image) *image.Gray {
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

// symbolArea is the page rectangle spanned by the reader's result points,
// which are relative to the crop at origin.
func symbolArea(points []gozxing.ResultPoint, origin image.Point) (image.Rectangle, bool) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		if p == nil {
			continue
		}
		minX = math.Min(minX, p.GetX())
		minY = math.Min(minY, p.GetY())
		maxX = math.Max(maxX, p.GetX())
		maxY = math.Max(maxY, p.GetY())
	}
	if math.IsInf(minX, 1) {
		return image.Rectangle{}, false
	}

	r := image.Rect(
		int(math.Floor(minX)), int(math.Floor(minY)),
		int(math.Ceil(maxX))+1, int(math.Ceil(maxY))+1,
	).Add(origin)
	return r, !r.Empty()
}
