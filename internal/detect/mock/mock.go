// Package mock provides a deterministic face detector and synthetic face
// images for tests.
package mock

import (
	"bytes"
	"cmp"
	"image"
	"image/png"
	"math"
	"slices"
	"sync/atomic"

	"github.com/kozaktomas/cornea/internal/detect"
)

// Detector reports every 4-connected blob of non-black pixels as a face.
// Blobs narrower or shorter than Params.MinSize are ignored. Regions are
// ordered by area, largest first.
type Detector struct {
	// Error injection
	Err error

	calls atomic.Int64
}

// Calls returns how many times Detect ran.
func (d *Detector) Calls() int {
	return int(d.calls.Load())
}

// Detect implements detect.Detector.
func (d *Detector) Detect(img *image.Gray, p detect.Params) ([]detect.Region, error) {
	d.calls.Add(1)
	if d.Err != nil {
		return nil, d.Err
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	seen := make([]bool, w*h)
	lit := func(x, y int) bool {
		return img.GrayAt(b.Min.X+x, b.Min.Y+y).Y != 0
	}

	var regions []detect.Region
	queue := make([]image.Point, 0, 64)
	for y := range h {
		for x := range w {
			if seen[y*w+x] || !lit(x, y) {
				continue
			}
			minX, minY, maxX, maxY := x, y, x, y
			seen[y*w+x] = true
			queue = append(queue[:0], image.Pt(x, y))
			for len(queue) > 0 {
				pt := queue[len(queue)-1]
				queue = queue[:len(queue)-1]
				minX, maxX = min(minX, pt.X), max(maxX, pt.X)
				minY, maxY = min(minY, pt.Y), max(maxY, pt.Y)
				for _, n := range [4]image.Point{{pt.X + 1, pt.Y}, {pt.X - 1, pt.Y}, {pt.X, pt.Y + 1}, {pt.X, pt.Y - 1}} {
					if n.X < 0 || n.Y < 0 || n.X >= w || n.Y >= h || seen[n.Y*w+n.X] || !lit(n.X, n.Y) {
						continue
					}
					seen[n.Y*w+n.X] = true
					queue = append(queue, n)
				}
			}
			r := detect.Region{X: minX, Y: minY, W: maxX - minX + 1, H: maxY - minY + 1}
			if r.W < p.MinSize || r.H < p.MinSize {
				continue
			}
			regions = append(regions, r)
		}
	}

	slices.SortStableFunc(regions, func(a, b detect.Region) int {
		return cmp.Compare(b.W*b.H, a.W*a.H)
	})
	return regions, nil
}

// Face renders a synthetic face texture for identity kind. shift offsets the
// texture to simulate another shot of the same person. Pixels are never black.
func Face(kind, size, shift int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			fx, fy := float64(x+shift), float64(y+shift)
			var v float64
			switch kind % 4 {
			case 1:
				v = math.Sin(fx * 0.5)
			case 2:
				v = math.Sin(fy * 0.5)
			case 3:
				v = math.Sin(fx*0.4) * math.Sin(fy*0.4)
			default:
				v = math.Sin((fx + fy) * 0.3)
			}
			img.Pix[y*img.Stride+x] = uint8(128 + 100*v)
		}
	}
	return img
}

// Placement positions a face on a canvas.
type Placement struct {
	X, Y int
	Face *image.Gray
}

// Canvas draws faces on a black w x h background and returns it PNG encoded.
func Canvas(w, h int, faces ...Placement) []byte {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for _, f := range faces {
		fb := f.Face.Bounds()
		for y := range fb.Dy() {
			for x := range fb.Dx() {
				px, py := f.X+x, f.Y+y
				if px < w && py < h {
					img.SetGray(px, py, f.Face.GrayAt(fb.Min.X+x, fb.Min.Y+y))
				}
			}
		}
	}
	return PNG(img)
}

// Portrait returns a PNG with one face of the given kind centered on a
// 160x160 canvas.
func Portrait(kind, shift int) []byte {
	return Canvas(160, 160, Placement{X: 30, Y: 30, Face: Face(kind, 100, shift)})
}

// PNG encodes img.
func PNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic("encoding png: " + err.Error())
	}
	return buf.Bytes()
}
