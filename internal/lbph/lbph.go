// Package lbph implements a Local Binary Patterns Histograms face recognizer.
//
// A Recognizer is immutable once built. Train always returns a fresh
// instance, so a recognizer that is serving requests is never touched by a
// retrain.
package lbph

import (
	"errors"
	"fmt"
	"image"
	"math"
	"runtime"
	"slices"

	"github.com/kozaktomas/cornea/internal/constants"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoSamples is returned when training is attempted without samples.
	ErrNoSamples = errors.New("no training samples")
	// ErrInvalidParams is returned for recognizer parameters that cannot work.
	ErrInvalidParams = errors.New("invalid recognizer parameters")
)

// Params configure feature extraction and matching.
type Params struct {
	Radius         int     `yaml:"radius"`
	Neighbors      int     `yaml:"neighbors"`
	GridX          int     `yaml:"grid_x"`
	GridY          int     `yaml:"grid_y"`
	PatchSize      int     `yaml:"patch_size"`
	Threshold      float64 `yaml:"threshold"`
	IndexThreshold int     `yaml:"index_threshold"`
}

// DefaultParams mirrors the classic LBPH settings: radius 1, 8 neighbors, 8x8 grid.
func DefaultParams() Params {
	return Params{
		Radius:         1,
		Neighbors:      8,
		GridX:          8,
		GridY:          8,
		PatchSize:      constants.DefaultPatchSize,
		IndexThreshold: constants.DefaultIndexThreshold,
	}
}

func (p Params) validate() error {
	switch {
	case p.Radius < 1:
		return fmt.Errorf("%w: radius must be at least 1", ErrInvalidParams)
	case p.Neighbors < 1 || p.Neighbors > 8:
		return fmt.Errorf("%w: neighbors must be between 1 and 8", ErrInvalidParams)
	case p.GridX < 1 || p.GridY < 1:
		return fmt.Errorf("%w: grid must be at least 1x1", ErrInvalidParams)
	case p.PatchSize < 2*p.Radius+max(p.GridX, p.GridY):
		return fmt.Errorf("%w: patch size %d too small for the grid", ErrInvalidParams, p.PatchSize)
	case p.Threshold < 0 || math.IsNaN(p.Threshold):
		return fmt.Errorf("%w: threshold must be non-negative", ErrInvalidParams)
	}
	return nil
}

// histogramLen is the length of one spatial histogram.
func (p Params) histogramLen() int {
	return p.GridX * p.GridY * (1 << p.Neighbors)
}

// Sample is a labeled grayscale face patch.
type Sample struct {
	Patch *image.Gray
	Label int
}

// Recognizer holds the training histograms and their labels.
type Recognizer struct {
	params     Params
	labels     []int
	histograms [][]float32
	index      *candidateIndex
}

// Train extracts histograms from samples and returns a new recognizer.
func Train(p Params, samples []Sample) (*Recognizer, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	labels := make([]int, len(samples))
	histograms := make([][]float32, len(samples))

	for i, s := range samples {
		if s.Patch == nil || s.Patch.Bounds().Empty() {
			return nil, fmt.Errorf("sample %d has an empty patch", i)
		}
		labels[i] = s.Label
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, s := range samples {
		g.Go(func() error {
			histograms[i] = p.extract(s.Patch)
			return nil
		})
	}
	_ = g.Wait()

	return newRecognizer(p, labels, histograms), nil
}

func newRecognizer(p Params, labels []int, histograms [][]float32) *Recognizer {
	r := &Recognizer{
		params:     p,
		labels:     labels,
		histograms: histograms,
	}
	if p.IndexThreshold > 0 && len(histograms) >= p.IndexThreshold {
		r.index = buildIndex(histograms)
	}
	return r
}

// Predict returns the label of the nearest training histogram and its
// chi-square distance. Label is constants.UnknownLabel when the distance
// exceeds a non-zero threshold.
func (r *Recognizer) Predict(patch *image.Gray) (int, float64) {
	if patch == nil || patch.Bounds().Empty() || len(r.histograms) == 0 {
		return constants.UnknownLabel, math.Inf(1)
	}
	query := r.params.extract(patch)

	best, bestDist := -1, math.Inf(1)
	consider := func(i int) {
		d := chiSquare(query, r.histograms[i])
		if d < bestDist || (d == bestDist && i < best) {
			best, bestDist = i, d
		}
	}

	if r.index != nil {
		for _, i := range r.index.search(query, constants.IndexCandidates) {
			consider(i)
		}
	} else {
		for i := range r.histograms {
			consider(i)
		}
	}

	if best < 0 {
		return constants.UnknownLabel, math.Inf(1)
	}
	if r.params.Threshold > 0 && bestDist > r.params.Threshold {
		return constants.UnknownLabel, bestDist
	}
	return r.labels[best], bestDist
}

// Params returns the parameters the recognizer was trained with.
func (r *Recognizer) Params() Params {
	return r.params
}

// Len returns the number of training samples.
func (r *Recognizer) Len() int {
	return len(r.labels)
}

// Labels returns the distinct labels known to the recognizer in ascending order.
func (r *Recognizer) Labels() []int {
	out := slices.Clone(r.labels)
	slices.Sort(out)
	return slices.Compact(out)
}

// Indexed reports whether prediction goes through the HNSW candidate index.
func (r *Recognizer) Indexed() bool {
	return r.index != nil
}
