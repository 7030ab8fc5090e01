// Package mock provides an in-memory implementation of database.Store for testing.
package mock

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/cornea/internal/database"
)

// MockStore is an in-memory database.Store.
type MockStore struct {
	mu      sync.RWMutex
	persons map[int]database.Person
	faces   []database.Face
	nextTag int
	nextID  int64
	closed  bool

	// Error injection
	GetPersonError    error
	ListPersonsError  error
	CreatePersonError error
	StoreFaceError    error
	AllFacesError     error
	GetFaceError      error
	CountFacesError   error
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		persons: make(map[int]database.Person),
		nextTag: 1,
		nextID:  1,
	}
}

// Closed reports whether Close was called.
func (m *MockStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// GetPerson retrieves a person by tag.
func (m *MockStore) GetPerson(ctx context.Context, tag int) (*database.Person, error) {
	if m.GetPersonError != nil {
		return nil, m.GetPersonError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.persons[tag]
	if !ok {
		return nil, fmt.Errorf("tag %d: %w", tag, database.ErrPersonNotFound)
	}
	return &p, nil
}

// ListPersons returns all persons ordered by tag.
func (m *MockStore) ListPersons(ctx context.Context) ([]database.Person, error) {
	if m.ListPersonsError != nil {
		return nil, m.ListPersonsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	persons := make([]database.Person, 0, len(m.persons))
	for _, p := range m.persons {
		persons = append(persons, p)
	}
	slices.SortFunc(persons, func(a, b database.Person) int { return a.ID - b.ID })
	return persons, nil
}

// FindPersonsByName returns persons matching query.
func (m *MockStore) FindPersonsByName(ctx context.Context, query string) ([]database.Person, error) {
	persons, err := m.ListPersons(ctx)
	if err != nil {
		return nil, err
	}
	return database.FilterByName(persons, query), nil
}

// CreatePerson adds a person with the next free tag.
func (m *MockStore) CreatePerson(ctx context.Context, firstName, lastName string) (*database.Person, error) {
	if m.CreatePersonError != nil {
		return nil, m.CreatePersonError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := database.Person{ID: m.nextTag, FirstName: firstName, LastName: lastName, CreatedAt: time.Now()}
	m.persons[p.ID] = p
	m.nextTag++
	return &p, nil
}

// StoreFace saves data under tag.
func (m *MockStore) StoreFace(ctx context.Context, tag int, data []byte) (*database.Face, error) {
	if m.StoreFaceError != nil {
		return nil, m.StoreFaceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.persons[tag]; !ok {
		return nil, fmt.Errorf("tag %d: %w", tag, database.ErrPersonNotFound)
	}
	f := database.Face{ID: m.nextID, Tag: tag, Data: slices.Clone(data), CreatedAt: time.Now()}
	m.faces = append(m.faces, f)
	m.nextID++
	return &f, nil
}

// AllLabeledFaces returns every stored face ordered by ID.
func (m *MockStore) AllLabeledFaces(ctx context.Context) ([]database.Face, error) {
	if m.AllFacesError != nil {
		return nil, m.AllFacesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.faces), nil
}

// FacesByTag returns the faces of one person.
func (m *MockStore) FacesByTag(ctx context.Context, tag int) ([]database.Face, error) {
	if m.AllFacesError != nil {
		return nil, m.AllFacesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var faces []database.Face
	for _, f := range m.faces {
		if f.Tag == tag {
			faces = append(faces, f)
		}
	}
	return faces, nil
}

// GetFace returns one face by ID.
func (m *MockStore) GetFace(ctx context.Context, id int64) (*database.Face, error) {
	if m.GetFaceError != nil {
		return nil, m.GetFaceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.faces {
		if f.ID == id {
			return &f, nil
		}
	}
	return nil, fmt.Errorf("face %d: %w", id, database.ErrFaceNotFound)
}

// CountFaces returns the number of faces per tag.
func (m *MockStore) CountFaces(ctx context.Context) ([]database.FaceCount, error) {
	if m.CountFacesError != nil {
		return nil, m.CountFacesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	byTag := map[int]int{}
	for _, f := range m.faces {
		byTag[f.Tag]++
	}
	counts := make([]database.FaceCount, 0, len(byTag))
	for tag, n := range byTag {
		counts = append(counts, database.FaceCount{Tag: tag, Count: n})
	}
	slices.SortFunc(counts, func(a, b database.FaceCount) int { return a.Tag - b.Tag })
	return counts, nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ database.Store = (*MockStore)(nil)
