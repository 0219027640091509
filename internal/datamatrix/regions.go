package datamatrix

import (
	"image"
	"sort"
)

// The reader only looks outward from the middle of its input, so the page is
// cut into candidate regions first. Candidates are bounding boxes of
// connected dark areas on a coarse grid; each grid size merges gaps smaller
// than one cell, so fine grids keep neighbouring symbols apart and coarse
// grids hold sparse symbols together.
var candidateCells = []int{2, 4, 8}

const (
	minCandidateSide   = 16
	maxCandidateAspect = 5
	darkLevel          = 128
)

// candidates returns regions worth handing to the reader, finest grid first
// and largest first within a grid.
func candidates(page *image.Gray) []image.Rectangle {
	seen := map[image.Rectangle]bool{}
	var out []image.Rectangle
	for _, cell := range candidateCells {
		rects := components(page, cell)
		sort.SliceStable(rects, func(i, j int) bool {
			return area(rects[i]) > area(rects[j])
		})
		for _, r := range rects {
			if seen[r] || !plausible(r) {
				continue
			}
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// components labels 8-connected dark cells of a cell×cell grid and returns
// their pixel bounding boxes in row-major order of discovery.
func components(page *image.Gray, cell int) []image.Rectangle {
	b := page.Bounds()
	gw := (b.Dx() + cell - 1) / cell
	gh := (b.Dy() + cell - 1) / cell
	dark := make([]bool, gw*gh)

	for y := 0; y < b.Dy(); y++ {
		row := page.Pix[y*page.Stride : y*page.Stride+b.Dx()]
		gy := (y / cell) * gw
		for x, v := range row {
			if v < darkLevel {
				dark[gy+x/cell] = true
			}
		}
	}

	var rects []image.Rectangle
	visited := make([]bool, gw*gh)
	stack := make([]int, 0, 64)
	for start := range dark {
		if !dark[start] || visited[start] {
			continue
		}
		visited[start] = true
		stack = append(stack[:0], start)
		minX, minY, maxX, maxY := gw, gh, -1, -1

		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			cx, cy := i%gw, i/gw
			minX, maxX = min(minX, cx), max(maxX, cx)
			minY, maxY = min(minY, cy), max(maxY, cy)

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := cx+dx, cy+dy
					if nx < 0 || ny < 0 || nx >= gw || ny >= gh {
						continue
					}
					n := ny*gw + nx
					if dark[n] && !visited[n] {
						visited[n] = true
						stack = append(stack, n)
					}
				}
			}
		}

		r := image.Rect(minX*cell, minY*cell, (maxX+1)*cell, (maxY+1)*cell).
			Add(b.Min).
			Intersect(b)
		rects = append(rects, r)
	}
	return rects
}

func plausible(r image.Rectangle) bool {
	w, h := r.Dx(), r.Dy()
	if w < minCandidateSide || h < minCandidateSide {
		return false
	}
	return w <= h*maxCandidateAspect && h <= w*maxCandidateAspect
}

// padded grows r by a quarter of its longer side (at least 8px) so the reader
// sees the quiet zone around the symbol.
func padded(r, bounds image.Rectangle) image.Rectangle {
	pad := max(8, max(r.Dx(), r.Dy())/4)
	return r.Inset(-pad).Intersect(bounds)
}

func area(r image.Rectangle) int { return r.Dx() * r.Dy() }

func center(r image.Rectangle) image.Point {
	return image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2)
}
