package detect

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/kozaktomas/cornea/internal/config"
)

func TestIoU(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Region
		expected float64
	}{
		{"identical", Region{0, 0, 10, 10}, Region{0, 0, 10, 10}, 1},
		{"disjoint", Region{0, 0, 10, 10}, Region{20, 20, 5, 5}, 0},
		{"touching", Region{0, 0, 10, 10}, Region{10, 0, 10, 10}, 0},
		{"half overlap", Region{0, 0, 10, 10}, Region{5, 0, 10, 10}, 50.0 / 150.0},
		{"contained", Region{0, 0, 10, 10}, Region{2, 2, 5, 5}, 25.0 / 100.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IoU(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("IoU() = %f, want %f", got, tt.expected)
			}
		})
	}
}

func TestGroup_MinNeighbors(t *testing.T) {
	cands := []candidate{
		{Region{10, 10, 20, 20}, 3},
		{Region{11, 10, 20, 20}, 4},
		{Region{10, 12, 22, 22}, 5},
		{Region{100, 100, 20, 20}, 9},
	}

	regions := group(cands, 3, 0.2)
	if len(regions) != 1 {
		t.Fatalf("expected 1 region, got %d: %v", len(regions), regions)
	}
	r := regions[0]
	if r.X < 9 || r.X > 12 || r.Y < 9 || r.Y > 12 {
		t.Errorf("expected averaged region near (10,10), got %+v", r)
	}

	regions = group(cands, 1, 0.2)
	if len(regions) != 2 {
		t.Fatalf("expected 2 regions with minNeighbors=1, got %d", len(regions))
	}
	if regions[0].X < 9 || regions[0].X > 12 {
		t.Errorf("expected the 3-member cluster first (score 12 > 9), got %+v", regions[0])
	}
}

func TestGroup_ClipsNegativeOrigin(t *testing.T) {
	regions := group([]candidate{{Region{-4, -2, 20, 20}, 1}}, 1, 0.2)
	if len(regions) != 1 {
		t.Fatalf("expected 1 region, got %d", len(regions))
	}
	if got := regions[0]; got != (Region{0, 0, 16, 18}) {
		t.Errorf("unexpected clipped region %+v", got)
	}
}

func TestFullFrame(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 30, 40))
	regions, err := FullFrame{}.Detect(img, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(regions) != 1 || regions[0] != (Region{0, 0, 30, 40}) {
		t.Errorf("unexpected regions %v", regions)
	}

	regions, _ = FullFrame{}.Detect(image.NewGray(image.Rectangle{}), DefaultParams())
	if len(regions) != 0 {
		t.Errorf("expected no regions for empty frame, got %v", regions)
	}
}

func TestRegionValid(t *testing.T) {
	if !(Region{0, 0, 1, 1}).Valid() {
		t.Error("expected 1x1 region at origin to be valid")
	}
	for _, r := range []Region{{-1, 0, 5, 5}, {0, 0, 0, 5}, {0, 0, 5, -1}} {
		if r.Valid() {
			t.Errorf("expected %+v to be invalid", r)
		}
	}
}

func TestNew(t *testing.T) {
	d, err := New(config.DetectorConfig{Kind: "frame"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := d.(FullFrame); !ok {
		t.Errorf("expected FullFrame, got %T", d)
	}

	_, err = New(config.DetectorConfig{Kind: "sonar"})
	if !errors.Is(err, ErrUnknownDetector) {
		t.Errorf("expected ErrUnknownDetector, got %v", err)
	}

	_, err = New(config.DetectorConfig{Kind: "pigo", CascadePath: t.TempDir() + "/missing"})
	if err == nil {
		t.Error("expected error for missing cascade file")
	}
}

func TestParamsFromConfig(t *testing.T) {
	p := ParamsFromConfig(config.DetectorConfig{ScaleFactor: 1.1, MinNeighbors: 3})
	if p.ScaleFactor != 1.1 || p.MinNeighbors != 3 {
		t.Errorf("unexpected params %+v", p)
	}
	if p.MinSize != DefaultParams().MinSize {
		t.Errorf("expected default min size, got %d", p.MinSize)
	}

	p = ParamsFromConfig(config.DetectorConfig{ScaleFactor: 0.5})
	if p.ScaleFactor != DefaultParams().ScaleFactor {
		t.Errorf("expected scale factor <= 1 to be ignored, got %f", p.ScaleFactor)
	}
}
