package detect

import (
	"errors"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
)

// minQuality drops raw cascade hits the classifier is unsure about.
const minQuality = 2.0

// CascadeURL is where the facefinder cascade used by the pigo detector is
// published. It is not shipped with cornea.
const CascadeURL = "https://raw.githubusercontent.com/esimov/pigo/master/cascade/facefinder"

// Pigo is a pure Go pixel-intensity-comparison cascade detector.
type Pigo struct {
	classifier *pigo.Pigo
}

// LoadPigo reads a pigo cascade file (e.g. facefinder) from disk.
func LoadPigo(path string) (*Pigo, error) {
	if path == "" {
		return nil, errors.New("pigo cascade path is required")
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("cascade file %s not found, download it from %s and set detector.cascade_path or DETECTOR_CASCADE: %w",
			path, CascadeURL, err)
	}
	if err != nil {
		return nil, fmt.Errorf("reading cascade file: %w", err)
	}
	return NewPigo(data)
}

// NewPigo unpacks a cascade held in memory.
func NewPigo(cascade []byte) (*Pigo, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpacking cascade: %w", err)
	}
	return &Pigo{classifier: classifier}, nil
}

// Detect runs the cascade over img. The classifier is read-only after
// unpacking so concurrent calls are safe.
func (d *Pigo) Detect(img *image.Gray, p Params) ([]Region, error) {
	b := img.Bounds()
	rows, cols := b.Dy(), b.Dx()
	if rows == 0 || cols == 0 {
		return nil, nil
	}

	pixels := img.Pix
	if img.Stride != cols || b.Min != (image.Point{}) {
		pixels = make([]uint8, rows*cols)
		for y := range rows {
			off := img.PixOffset(b.Min.X, b.Min.Y+y)
			copy(pixels[y*cols:(y+1)*cols], img.Pix[off:off+cols])
		}
	}

	params := pigo.CascadeParams{
		MinSize:     max(p.MinSize, 1),
		MaxSize:     min(rows, cols),
		ShiftFactor: 0.1,
		ScaleFactor: p.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	regions := group(candidates(dets), p.MinNeighbors, 0.2)
	for i := range regions {
		regions[i].X += b.Min.X
		regions[i].Y += b.Min.Y
	}
	return regions, nil
}

// candidates turns confident cascade hits into square regions. Pigo reports
// the center of a hit, regions are anchored at the top left corner.
func candidates(dets []pigo.Detection) []candidate {
	cands := make([]candidate, 0, len(dets))
	for _, det := range dets {
		if float64(det.Q) < minQuality {
			continue
		}
		half := det.Scale / 2
		cands = append(cands, candidate{
			region: Region{X: det.Col - half, Y: det.Row - half, W: det.Scale, H: det.Scale},
			score:  float64(det.Q),
		})
	}
	return cands
}
