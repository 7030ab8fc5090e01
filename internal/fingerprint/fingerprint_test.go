package fingerprint

import (
	"errors"
	"testing"

	"github.com/kozaktomas/cornea/internal/detect/mock"
	"github.com/kozaktomas/cornea/internal/frame"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Hash
		expected int
	}{
		{"identical", 0x0, 0x0, 0},
		{"completely different", 0xFFFFFFFFFFFFFFFF, 0x0, 64},
		{"one bit different", 0x1, 0x0, 1},
		{"four bits different", 0xF, 0x0, 4},
		{"half different", 0xFFFFFFFF00000000, 0x0, 32},
		{"alternating", 0xAAAAAAAAAAAAAAAA, 0x5555555555555555, 64},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Distance(tc.a, tc.b); got != tc.expected {
				t.Errorf("Distance(%x, %x) = %d; want %d", tc.a, tc.b, got, tc.expected)
			}
		})
	}
}

func TestCompute(t *testing.T) {
	a, err := Compute(mock.Portrait(1, 0))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	again, _ := Compute(mock.Portrait(1, 0))
	if a != again {
		t.Errorf("expected stable hash, got %x and %x", a, again)
	}

	blank, _ := Compute(mock.Canvas(160, 160))
	if blank != 0 {
		t.Errorf("expected zero hash for a black canvas, got %x", blank)
	}
	if Distance(a, blank) <= DefaultThreshold {
		t.Errorf("expected a face to differ from an empty canvas, distance %d", Distance(a, blank))
	}

	if _, err := Compute([]byte("not an image")); !errors.Is(err, frame.ErrDecode) {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestDHash_UniformImage(t *testing.T) {
	if h := DHash(mock.Face(0, 1, 0)); h != 0 {
		t.Errorf("expected zero hash for a single pixel, got %x", h)
	}
}

func TestSet(t *testing.T) {
	s := NewSet(-1)
	s.Add(0xFF)

	tests := []struct {
		name string
		h    Hash
		want bool
	}{
		{"same", 0xFF, true},
		{"within threshold", 0x3F, true},
		{"beyond threshold", 0xFF00, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Contains(tt.h); got != tt.want {
				t.Errorf("Contains(%x) = %v, want %v", tt.h, got, tt.want)
			}
		})
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 hash, got %d", s.Len())
	}

	strict := NewSet(0)
	strict.Add(0xFF)
	if strict.Contains(0xFE) {
		t.Error("threshold 0 must only match identical hashes")
	}
}
