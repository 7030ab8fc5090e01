// Package modelstore keeps recognizer artifacts on disk.
//
// Artifacts are named lbph_<ULID>.yml. The ULID embeds the creation time and
// sorts lexically in creation order, so the latest artifact is simply the
// greatest ULID in the directory. New artifacts are written to a hidden temp
// file and renamed into place, so a crash never leaves a partial file that
// matches the artifact pattern.
package modelstore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio"
	"github.com/kozaktomas/cornea/internal/lbph"
	"github.com/kozaktomas/cornea/internal/logging"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const (
	filePrefix = "lbph_"
	fileSuffix = ".yml"
)

var (
	// ErrNoModelAvailable is returned when there is no artifact to load or
	// the artifact cannot be read.
	ErrNoModelAvailable = errors.New("no model available")
	// ErrDirectory is returned when the model directory cannot be created or written.
	ErrDirectory = errors.New("model directory unavailable")
)

// Artifact describes one persisted model.
type Artifact struct {
	ID        ulid.ULID `json:"id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// Mirror receives a copy of every newly persisted artifact.
type Mirror interface {
	Upload(ctx context.Context, name, path string) error
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newID(t time.Time) (ulid.ULID, error) {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.New(ulid.Timestamp(t), entropy)
}

// FileName returns the artifact file name for id.
func FileName(id ulid.ULID) string {
	return filePrefix + id.String() + fileSuffix
}

// parseFileName extracts the ULID from an artifact file name.
func parseFileName(name string) (ulid.ULID, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return ulid.ULID{}, false
	}
	id, err := ulid.ParseStrict(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	if err != nil {
		return ulid.ULID{}, false
	}
	return id, true
}

// Store manages the artifacts of one model directory.
type Store struct {
	dir    string
	mirror Mirror
	log    *logrus.Entry
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithMirror uploads every persisted artifact to m.
func WithMirror(m Mirror) Option {
	return func(s *Store) { s.mirror = m }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(s *Store) { s.log = l }
}

// WithClock overrides the time source used to name artifacts.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a store rooted at dir. Nothing is touched on disk until
// EnsureDirectory or Persist is called.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir: dir,
		log: logging.Discard(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the model directory.
func (s *Store) Dir() string {
	return s.dir
}

// EnsureDirectory creates the model directory when it is missing.
func (s *Store) EnsureDirectory() error {
	if s.dir == "" {
		return fmt.Errorf("%w: no directory configured", ErrDirectory)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrDirectory, err)
	}
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDirectory, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrDirectory, s.dir)
	}
	return nil
}

// List returns all artifacts ordered from oldest to newest. A missing
// directory yields an empty list.
func (s *Store) List() ([]Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrDirectory, err)
	}

	var artifacts []Artifact
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		id, ok := parseFileName(e.Name())
		if !ok {
			continue
		}
		artifacts = append(artifacts, Artifact{
			ID:        id,
			Path:      filepath.Join(s.dir, e.Name()),
			CreatedAt: ulid.Time(id.Time()),
		})
	}
	slices.SortFunc(artifacts, func(a, b Artifact) int {
		return a.ID.Compare(b.ID)
	})
	return artifacts, nil
}

// DiscoverLatest returns the newest artifact, or nil when there is none.
func (s *Store) DiscoverLatest() (*Artifact, error) {
	artifacts, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(artifacts) == 0 {
		return nil, nil
	}
	latest := artifacts[len(artifacts)-1]
	return &latest, nil
}

// Persist writes r as a new artifact and returns it. The file only becomes
// visible under its final name once it is completely written and synced.
func (s *Store) Persist(ctx context.Context, r *lbph.Recognizer) (Artifact, error) {
	if err := s.EnsureDirectory(); err != nil {
		return Artifact{}, err
	}

	id, err := newID(s.now())
	if err != nil {
		return Artifact{}, fmt.Errorf("generating artifact id: %w", err)
	}
	name := FileName(id)
	path := filepath.Join(s.dir, name)

	t, err := renameio.TempFile(s.dir, path)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrDirectory, err)
	}
	defer t.Cleanup()

	if err := r.Encode(t); err != nil {
		return Artifact{}, fmt.Errorf("writing model artifact: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Artifact{}, fmt.Errorf("persisting model artifact: %w", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrDirectory, err)
	}

	artifact := Artifact{ID: id, Path: path, CreatedAt: ulid.Time(id.Time())}
	s.log.WithFields(logrus.Fields{"path": path, "samples": r.Len()}).Info("model artifact persisted")

	if s.mirror != nil {
		if err := s.mirror.Upload(ctx, name, path); err != nil {
			s.log.WithError(err).WithField("path", path).Warn("mirroring model artifact failed")
		}
	}
	return artifact, nil
}

// Load reads the recognizer stored at path.
func (s *Store) Load(path string) (*lbph.Recognizer, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: no artifact path", ErrNoModelAvailable)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoModelAvailable, err)
	}
	defer f.Close()

	r, err := lbph.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoModelAvailable, path, err)
	}
	return r, nil
}
