package detect

import (
	"errors"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	pigo "github.com/esimov/pigo/core"
	"github.com/kozaktomas/cornea/internal/frame"
)

// pigoDir locates the pigo module, which carries the facefinder cascade and a
// sample portrait. PIGO_DIR overrides the module cache lookup.
func pigoDir(t *testing.T) string {
	t.Helper()
	dir := os.Getenv("PIGO_DIR")
	if dir == "" {
		out, err := exec.Command("go", "list", "-m", "-f", "{{.Dir}}", "github.com/esimov/pigo").Output()
		if err != nil {
			t.Skipf("pigo module not available: %v", err)
		}
		dir = strings.TrimSpace(string(out))
	}
	for _, name := range []string{"cascade/facefinder", "testdata/sample.jpg"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Skipf("%s not found in %s", name, dir)
		}
	}
	return dir
}

func TestCandidates(t *testing.T) {
	dets := []pigo.Detection{
		{Row: 100, Col: 60, Scale: 40, Q: 8.5},
		{Row: 50, Col: 50, Scale: 30, Q: 1.9},
		{Row: 10, Col: 12, Scale: 41, Q: 2.0},
	}

	cands := candidates(dets)
	if len(cands) != 2 {
		t.Fatalf("expected the low quality hit to be dropped, got %+v", cands)
	}

	want := Region{X: 40, Y: 80, W: 40, H: 40}
	if cands[0].region != want || cands[0].score != 8.5 {
		t.Errorf("got %+v, want region %+v score 8.5", cands[0], want)
	}
	// Odd scales round the half down, the region may start off the frame.
	want = Region{X: -8, Y: -10, W: 41, H: 41}
	if cands[1].region != want {
		t.Errorf("got %+v, want %+v", cands[1].region, want)
	}
}

func TestLoadPigo_MissingCascade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facefinder")
	_, err := LoadPigo(path)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
	for _, want := range []string{path, CascadeURL, "DETECTOR_CASCADE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %q, got %v", want, err)
		}
	}

	if _, err := LoadPigo(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestNewPigo_InvalidCascade(t *testing.T) {
	if _, err := NewPigo([]byte("not a cascade")); err == nil {
		t.Error("expected error for garbage cascade")
	}
}

func TestPigo_DetectSample(t *testing.T) {
	dir := pigoDir(t)

	d, err := LoadPigo(filepath.Join(dir, "cascade", "facefinder"))
	if err != nil {
		t.Fatalf("loading cascade: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "testdata", "sample.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	img, err := frame.Decode(data)
	if err != nil {
		t.Fatalf("decoding sample: %v", err)
	}

	regions, err := d.Detect(img, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(regions) != 1 {
		t.Fatalf("expected one face in the sample, got %+v", regions)
	}

	r := regions[0]
	if r.W != r.H || r.W < DefaultParams().MinSize {
		t.Errorf("expected a square region of at least %d px, got %+v", DefaultParams().MinSize, r)
	}
	if !r.Rect().In(img.Bounds()) {
		t.Errorf("region %+v outside frame %v", r, img.Bounds())
	}

	// A sub-image with a non-zero origin is repacked and reports the face in
	// the coordinates of the parent frame.
	b := img.Bounds()
	sub := img.SubImage(image.Rect(b.Min.X+2, b.Min.Y, b.Max.X, b.Max.Y)).(*image.Gray)
	subRegions, err := d.Detect(sub, DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(subRegions) == 0 {
		t.Fatal("expected a face in the shifted sample")
	}
	if IoU(subRegions[0], r) < 0.5 {
		t.Errorf("shifted detection %+v does not match %+v", subRegions[0], r)
	}
}

func TestPigo_DetectBlankFrame(t *testing.T) {
	dir := pigoDir(t)

	d, err := LoadPigo(filepath.Join(dir, "cascade", "facefinder"))
	if err != nil {
		t.Fatalf("loading cascade: %v", err)
	}
	regions, err := d.Detect(image.NewGray(image.Rect(0, 0, 200, 200)), DefaultParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(regions) != 0 {
		t.Errorf("expected no faces on a blank frame, got %+v", regions)
	}
	if regions, _ := d.Detect(image.NewGray(image.Rect(0, 0, 0, 0)), DefaultParams()); regions != nil {
		t.Errorf("expected nil for an empty frame, got %+v", regions)
	}
}
