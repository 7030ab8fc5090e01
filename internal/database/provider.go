package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/kozaktomas/cornea/internal/config"
	"github.com/kozaktomas/cornea/internal/logging"
	"github.com/kozaktomas/cornea/internal/names"
	"github.com/sirupsen/logrus"
)

// Opener connects to a backend and runs its migrations.
type Opener func(ctx context.Context, cfg config.DatabaseConfig, log *logrus.Entry) (Store, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]Opener{}
)

// RegisterBackend registers an opener for the given URL schemes.
// This is called by the backend packages to avoid import cycles.
func RegisterBackend(open Opener, schemes ...string) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	for _, s := range schemes {
		backends[s] = open
	}
}

// Schemes returns the registered URL schemes in sorted order.
func Schemes() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	schemes := make([]string, 0, len(backends))
	for s := range backends {
		schemes = append(schemes, s)
	}
	slices.Sort(schemes)
	return schemes
}

// Open connects to the backend selected by the scheme of cfg.URL.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logrus.Entry) (Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required: set DATABASE_URL")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	backendsMu.RLock()
	open, ok := backends[strings.ToLower(u.Scheme)]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported database scheme %q (supported: %s)", u.Scheme, strings.Join(Schemes(), ", "))
	}
	if log == nil {
		log = logging.Discard()
	}
	return open(ctx, cfg, log)
}

// FilterByName returns the persons matching query.
func FilterByName(persons []Person, query string) []Person {
	var out []Person
	for _, p := range persons {
		if names.Matches(query, p.FirstName, p.LastName) {
			out = append(out, p)
		}
	}
	return out
}
