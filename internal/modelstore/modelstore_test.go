package modelstore

import (
	"context"
	"errors"
	"image"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/cornea/internal/config"
	"github.com/kozaktomas/cornea/internal/lbph"
	"github.com/oklog/ulid/v2"
)

func testRecognizer(t *testing.T) *lbph.Recognizer {
	t.Helper()
	var samples []lbph.Sample
	for label := 1; label <= 2; label++ {
		img := image.NewGray(image.Rect(0, 0, 100, 100))
		for i := range img.Pix {
			img.Pix[i] = uint8((i*label*7 + i/100*label) % 251)
		}
		samples = append(samples, lbph.Sample{Patch: img, Label: label})
	}
	r, err := lbph.Train(lbph.DefaultParams(), samples)
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}
	return r
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
}

type recordingMirror struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (m *recordingMirror) Upload(_ context.Context, name, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = append(m.names, name)
	return m.err
}

func TestEnsureDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	s := New(dir)
	if err := s.EnsureDirectory(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("expected directory to exist: %v", err)
	}

	// Idempotent.
	if err := s.EnsureDirectory(); err != nil {
		t.Errorf("second call failed: %v", err)
	}
}

func TestEnsureDirectory_BlockedByFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "models")
	touch(t, file)

	err := New(file).EnsureDirectory()
	if !errors.Is(err, ErrDirectory) {
		t.Errorf("expected ErrDirectory, got %v", err)
	}

	err = New(filepath.Join(file, "nested")).EnsureDirectory()
	if !errors.Is(err, ErrDirectory) {
		t.Errorf("expected ErrDirectory for a path below a file, got %v", err)
	}
}

func TestDiscoverLatest_MissingOrEmpty(t *testing.T) {
	latest, err := New(filepath.Join(t.TempDir(), "absent")).DiscoverLatest()
	if err != nil || latest != nil {
		t.Errorf("expected no artifact for missing dir, got %v / %v", latest, err)
	}

	latest, err = New(t.TempDir()).DiscoverLatest()
	if err != nil || latest != nil {
		t.Errorf("expected no artifact for empty dir, got %v / %v", latest, err)
	}
}

func TestDiscoverLatest_IgnoresListingOrder(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewSource(42))

	var names []string
	for i := range 6 {
		id := ulid.MustNew(ulid.Timestamp(base.Add(time.Duration(i)*time.Minute)), rng)
		names = append(names, FileName(id))
	}
	want := names[len(names)-1]

	// Create in shuffled order so creation order and mtime disagree with ULID order.
	for _, i := range rng.Perm(len(names)) {
		touch(t, filepath.Join(dir, names[i]))
	}
	touch(t, filepath.Join(dir, ".lbph_01ZZZZZZZZZZZZZZZZZZZZZZZZ.yml123456"))
	touch(t, filepath.Join(dir, "lbph_not-a-ulid.yml"))
	touch(t, filepath.Join(dir, "notes.txt"))
	// A directory that looks like an artifact must be skipped too.
	if err := os.Mkdir(filepath.Join(dir, "lbph_01ZZZZZZZZZZZZZZZZZZZZZZZZ.yml"), 0o755); err != nil {
		t.Fatal(err)
	}

	latest, err := New(dir).DiscoverLatest()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest == nil || filepath.Base(latest.Path) != want {
		t.Fatalf("expected %s, got %+v", want, latest)
	}
	if !latest.CreatedAt.Equal(base.Add(5 * time.Minute)) {
		t.Errorf("expected created at %v, got %v", base.Add(5*time.Minute), latest.CreatedAt)
	}

	all, err := New(dir).List()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 6 {
		t.Fatalf("expected 6 artifacts, got %d", len(all))
	}
	for i := range all {
		if filepath.Base(all[i].Path) != names[i] {
			t.Errorf("position %d: expected %s, got %s", i, names[i], filepath.Base(all[i].Path))
		}
	}
}

func TestPersistLoad_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	s := New(dir)
	r := testRecognizer(t)

	artifact, err := s.Persist(context.Background(), r)
	if err != nil {
		t.Fatalf("persist failed: %v", err)
	}
	if filepath.Dir(artifact.Path) != dir {
		t.Errorf("artifact written outside the model dir: %s", artifact.Path)
	}

	loaded, err := s.Load(artifact.Path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 13 % 256)
	}
	l1, d1 := r.Predict(img)
	l2, d2 := loaded.Predict(img)
	if l1 != l2 || d1 != d2 {
		t.Errorf("prediction changed after round trip: (%d, %v) != (%d, %v)", l1, d1, l2, d2)
	}

	latest, err := s.DiscoverLatest()
	if err != nil || latest == nil || latest.Path != artifact.Path {
		t.Errorf("expected persisted artifact to be latest, got %+v / %v", latest, err)
	}
}

func TestPersist_MonotonicAndClean(t *testing.T) {
	dir := t.TempDir()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(dir, WithClock(func() time.Time { return fixed }))
	r := testRecognizer(t)

	var last Artifact
	for i := range 3 {
		a, err := s.Persist(context.Background(), r)
		if err != nil {
			t.Fatalf("persist %d failed: %v", i, err)
		}
		if i > 0 && a.ID.Compare(last.ID) <= 0 {
			t.Errorf("expected increasing ids within one millisecond: %s <= %s", a.ID, last.ID)
		}
		last = a
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("expected exactly 3 files, got %d", len(entries))
	}
	for _, e := range entries {
		if _, ok := parseFileName(e.Name()); !ok {
			t.Errorf("unexpected leftover file %s", e.Name())
		}
	}

	latest, _ := s.DiscoverLatest()
	if latest.ID != last.ID {
		t.Errorf("expected last persisted artifact as latest")
	}
}

func TestPersist_CancelledLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(dir).Persist(ctx, testRecognizer(t))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected empty directory, found %d entries", len(entries))
	}
}

func TestPersist_DirectoryError(t *testing.T) {
	file := filepath.Join(t.TempDir(), "models")
	touch(t, file)

	_, err := New(file).Persist(context.Background(), testRecognizer(t))
	if !errors.Is(err, ErrDirectory) {
		t.Errorf("expected ErrDirectory, got %v", err)
	}
}

func TestPersist_Mirror(t *testing.T) {
	mirror := &recordingMirror{}
	s := New(t.TempDir(), WithMirror(mirror))

	a, err := s.Persist(context.Background(), testRecognizer(t))
	if err != nil {
		t.Fatalf("persist failed: %v", err)
	}
	if len(mirror.names) != 1 || mirror.names[0] != filepath.Base(a.Path) {
		t.Errorf("unexpected mirror uploads %v", mirror.names)
	}

	mirror.err = errors.New("bucket gone")
	if _, err := s.Persist(context.Background(), testRecognizer(t)); err != nil {
		t.Errorf("mirror failure must not fail persist: %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "lbph_01HQ0000000000000000000000.yml")
	if err := os.WriteFile(corrupt, []byte("format: nope\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"empty path", ""},
		{"missing file", filepath.Join(dir, "missing.yml")},
		{"corrupt file", corrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(dir).Load(tt.path)
			if !errors.Is(err, ErrNoModelAvailable) {
				t.Errorf("expected ErrNoModelAvailable, got %v", err)
			}
		})
	}
}

func TestParseFileName(t *testing.T) {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.New(rand.NewSource(1)))
	if got, ok := parseFileName(FileName(id)); !ok || got != id {
		t.Errorf("expected to parse %s", FileName(id))
	}
	for _, name := range []string{"lbph_.yml", "cornea_cv_1700000000.yml", "lbph_" + id.String() + ".yaml", strings.ToLower(FileName(id)) + "x"} {
		if _, ok := parseFileName(name); ok {
			t.Errorf("expected %q to be rejected", name)
		}
	}
}

func TestS3Mirror_Key(t *testing.T) {
	m, err := NewS3Mirror(config.S3Config{Bucket: "models", Region: "eu-central-1", Prefix: "cornea/prod"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Key("lbph_x.yml"); got != "cornea/prod/lbph_x.yml" {
		t.Errorf("unexpected key %s", got)
	}

	if _, err := NewS3Mirror(config.S3Config{}); err == nil {
		t.Error("expected error without bucket")
	}
}
