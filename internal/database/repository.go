package database

import (
	"context"
	"errors"
)

var (
	// ErrPersonNotFound is returned when a tag has no person record.
	ErrPersonNotFound = errors.New("person not found")
	// ErrFaceNotFound is returned when a face ID does not exist.
	ErrFaceNotFound = errors.New("face not found")
)

// PersonReader provides read access to person records.
type PersonReader interface {
	// GetPerson returns the person for tag or ErrPersonNotFound.
	GetPerson(ctx context.Context, tag int) (*Person, error)
	// ListPersons returns all persons ordered by tag.
	ListPersons(ctx context.Context) ([]Person, error)
	// FindPersonsByName returns persons whose name matches query, ignoring
	// case and diacritics.
	FindPersonsByName(ctx context.Context, query string) ([]Person, error)
}

// PersonWriter creates person records.
type PersonWriter interface {
	CreatePerson(ctx context.Context, firstName, lastName string) (*Person, error)
}

// FaceReader provides read access to labeled training faces.
type FaceReader interface {
	// AllLabeledFaces returns every stored face ordered by ID.
	AllLabeledFaces(ctx context.Context) ([]Face, error)
	// FacesByTag returns the faces of one person ordered by ID.
	FacesByTag(ctx context.Context, tag int) ([]Face, error)
	// GetFace returns one face or ErrFaceNotFound.
	GetFace(ctx context.Context, id int64) (*Face, error)
	// CountFaces returns the number of faces per tag ordered by tag.
	CountFaces(ctx context.Context) ([]FaceCount, error)
}

// FaceWriter stores labeled training faces.
type FaceWriter interface {
	// StoreFace saves data under tag. Fails with ErrPersonNotFound when the
	// tag has no person record.
	StoreFace(ctx context.Context, tag int, data []byte) (*Face, error)
}

// Store is the full person and face storage backend.
type Store interface {
	PersonReader
	PersonWriter
	FaceReader
	FaceWriter
	Close() error
}
