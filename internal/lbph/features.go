package lbph

import (
	"image"
	"math"

	"github.com/kozaktomas/cornea/internal/frame"
	"github.com/nfnt/resize"
)

const epsilon = 1.1920929e-07 // float32 machine epsilon

// extract resizes the patch to the canonical size and returns its spatial
// LBP histogram.
func (p Params) extract(patch *image.Gray) []float32 {
	img := normalizePatch(patch, p.PatchSize)
	codes, w, h := p.elbp(img)
	return p.spatialHistogram(codes, w, h)
}

func normalizePatch(patch *image.Gray, size int) *image.Gray {
	b := patch.Bounds()
	if b.Dx() == size && b.Dy() == size && b.Min == (image.Point{}) {
		return patch
	}
	return frame.ToGray(resize.Resize(uint(size), uint(size), patch, resize.Bilinear))
}

// elbp computes the extended (circular, bilinearly interpolated) local binary
// pattern of every pixel at least Radius away from the border.
func (p Params) elbp(img *image.Gray) ([]int, int, int) {
	rows, cols := img.Bounds().Dy(), img.Bounds().Dx()
	w, h := cols-2*p.Radius, rows-2*p.Radius
	codes := make([]int, w*h)
	at := func(y, x int) float64 {
		return float64(img.Pix[y*img.Stride+x])
	}

	for n := range p.Neighbors {
		angle := 2 * math.Pi * float64(n) / float64(p.Neighbors)
		x := float64(p.Radius) * math.Cos(angle)
		y := -float64(p.Radius) * math.Sin(angle)

		fx, fy := int(math.Floor(x)), int(math.Floor(y))
		cx, cy := int(math.Ceil(x)), int(math.Ceil(y))
		tx, ty := x-float64(fx), y-float64(fy)

		w1 := (1 - tx) * (1 - ty)
		w2 := tx * (1 - ty)
		w3 := (1 - tx) * ty
		w4 := tx * ty

		for i := p.Radius; i < rows-p.Radius; i++ {
			for j := p.Radius; j < cols-p.Radius; j++ {
				t := w1*at(i+fy, j+fx) + w2*at(i+fy, j+cx) + w3*at(i+cy, j+fx) + w4*at(i+cy, j+cx)
				center := at(i, j)
				if t > center || math.Abs(t-center) < epsilon {
					codes[(i-p.Radius)*w+(j-p.Radius)] += 1 << n
				}
			}
		}
	}
	return codes, w, h
}

// spatialHistogram splits the code image into a GridX x GridY grid and
// concatenates one histogram per cell, each normalized by the cell area.
func (p Params) spatialHistogram(codes []int, w, h int) []float32 {
	bins := 1 << p.Neighbors
	out := make([]float32, p.histogramLen())
	cellW, cellH := w/p.GridX, h/p.GridY
	area := float32(cellW * cellH)

	cell := 0
	for gy := range p.GridY {
		for gx := range p.GridX {
			hist := out[cell*bins : (cell+1)*bins]
			for y := gy * cellH; y < (gy+1)*cellH; y++ {
				row := codes[y*w:]
				for x := gx * cellW; x < (gx+1)*cellW; x++ {
					hist[row[x]]++
				}
			}
			for i := range hist {
				hist[i] /= area
			}
			cell++
		}
	}
	return out
}

// chiSquare is the alternative chi-square histogram distance
// 2 * sum((a-b)^2 / (a+b)).
func chiSquare(a, b []float32) float64 {
	var d float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		if s := x + y; s > epsilon {
			d += (x - y) * (x - y) / s
		}
	}
	return 2 * d
}
