// Package detect locates candidate face regions in grayscale frames.
//
// Region order is a property of the detector's scan strategy. The first
// region is a best-effort primary candidate and nothing more.
package detect

import (
	"errors"
	"fmt"
	"image"

	"github.com/kozaktomas/cornea/internal/config"
	"github.com/kozaktomas/cornea/internal/constants"
)

// Region is a face bounding box in frame pixel coordinates.
type Region struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect returns the region as an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Valid reports whether the region has non-negative origin and positive size.
func (r Region) Valid() bool {
	return r.X >= 0 && r.Y >= 0 && r.W > 0 && r.H > 0
}

// FromRect converts an image.Rectangle into a Region.
func FromRect(rect image.Rectangle) Region {
	return Region{X: rect.Min.X, Y: rect.Min.Y, W: rect.Dx(), H: rect.Dy()}
}

// Params tune a single detection pass.
type Params struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      int
}

// DefaultParams returns the classic cascade settings (scale 1.2, 5 neighbors).
func DefaultParams() Params {
	return Params{
		ScaleFactor:  constants.DefaultScaleFactor,
		MinNeighbors: constants.DefaultMinNeighbors,
		MinSize:      constants.DefaultMinFaceSize,
	}
}

// ParamsFromConfig extracts detection parameters from the detector config.
func ParamsFromConfig(cfg config.DetectorConfig) Params {
	p := DefaultParams()
	if cfg.ScaleFactor > 1 {
		p.ScaleFactor = cfg.ScaleFactor
	}
	if cfg.MinNeighbors > 0 {
		p.MinNeighbors = cfg.MinNeighbors
	}
	if cfg.MinSize > 0 {
		p.MinSize = cfg.MinSize
	}
	return p
}

// Detector finds faces. Implementations hold no trained recognizer state and
// must be safe for concurrent use.
type Detector interface {
	Detect(img *image.Gray, p Params) ([]Region, error)
}

// Func adapts a plain function to the Detector interface.
type Func func(img *image.Gray, p Params) ([]Region, error)

// Detect calls f.
func (f Func) Detect(img *image.Gray, p Params) ([]Region, error) {
	return f(img, p)
}

// FullFrame treats every frame as a single pre-cropped face.
type FullFrame struct{}

// Detect returns the whole frame as one region.
func (FullFrame) Detect(img *image.Gray, _ Params) ([]Region, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, nil
	}
	return []Region{FromRect(b)}, nil
}

// ErrUnknownDetector is returned by New for an unsupported detector kind.
var ErrUnknownDetector = errors.New("unknown detector kind")

// New builds the detector selected by cfg.Kind.
func New(cfg config.DetectorConfig) (Detector, error) {
	switch cfg.Kind {
	case "", "pigo":
		return LoadPigo(cfg.CascadePath)
	case "frame":
		return FullFrame{}, nil
	case "haar":
		return NewHaar(cfg.CascadePath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDetector, cfg.Kind)
	}
}
