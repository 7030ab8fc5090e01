// Package fingerprint computes difference hashes of face images so that
// repeated uploads of the same shot can be recognized.
package fingerprint

import (
	"image"
	"math/bits"

	"github.com/kozaktomas/cornea/internal/frame"
	"golang.org/x/image/draw"
)

// DefaultThreshold is the Hamming distance at or below which two images are
// treated as the same shot.
const DefaultThreshold = 6

// Hash is a 64-bit difference hash.
type Hash uint64

// Compute decodes data and returns its difference hash.
func Compute(data []byte) (Hash, error) {
	img, err := frame.Decode(data)
	if err != nil {
		return 0, err
	}
	return DHash(img), nil
}

// DHash scales img to 9x8 and sets one bit per horizontal neighbor pair whose
// left pixel is brighter.
func DHash(img *image.Gray) Hash {
	small := image.NewGray(image.Rect(0, 0, 9, 8))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var h Hash
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if small.GrayAt(x, y).Y > small.GrayAt(x+1, y).Y {
				h |= 1 << bit
			}
			bit--
		}
	}
	return h
}

// Distance is the Hamming distance between two hashes.
func Distance(a, b Hash) int {
	return bits.OnesCount64(uint64(a ^ b))
}

// Set holds the hashes of images already seen.
type Set struct {
	threshold int
	hashes    []Hash
}

// NewSet creates an empty set. A negative threshold uses DefaultThreshold.
func NewSet(threshold int) *Set {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &Set{threshold: threshold}
}

// Add records h.
func (s *Set) Add(h Hash) {
	s.hashes = append(s.hashes, h)
}

// Contains reports whether a hash within the threshold of h was added.
func (s *Set) Contains(h Hash) bool {
	for _, seen := range s.hashes {
		if Distance(seen, h) <= s.threshold {
			return true
		}
	}
	return false
}

// Len returns the number of recorded hashes.
func (s *Set) Len() int {
	return len(s.hashes)
}
