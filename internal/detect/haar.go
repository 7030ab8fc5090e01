//go:build gocv

package detect

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Haar wraps an OpenCV Haar cascade classifier.
type Haar struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
}

// NewHaar loads an OpenCV cascade XML file such as haarcascade_frontalface_default.xml.
func NewHaar(path string) (Detector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("loading haar cascade %s", path)
	}
	return &Haar{classifier: classifier}, nil
}

// Detect runs detectMultiScale. The OpenCV classifier is not reentrant so
// calls are serialized.
func (h *Haar) Detect(img *image.Gray, p Params) ([]Region, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, nil
	}
	gray := img
	if img.Stride != b.Dx() || b.Min != (image.Point{}) {
		gray = image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := range b.Dy() {
			off := img.PixOffset(b.Min.X, b.Min.Y+y)
			copy(gray.Pix[y*gray.Stride:], img.Pix[off:off+b.Dx()])
		}
	}

	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8U, gray.Pix)
	if err != nil {
		return nil, fmt.Errorf("wrapping frame: %w", err)
	}
	defer mat.Close()

	h.mu.Lock()
	rects := h.classifier.DetectMultiScaleWithParams(mat, p.ScaleFactor, p.MinNeighbors, 0,
		image.Pt(p.MinSize, p.MinSize), image.Pt(0, 0))
	h.mu.Unlock()

	regions := make([]Region, 0, len(rects))
	for _, r := range rects {
		regions = append(regions, FromRect(r.Add(b.Min)))
	}
	return regions, nil
}

// Close releases the native classifier.
func (h *Haar) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.classifier.Close()
}
