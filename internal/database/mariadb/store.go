package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/kozaktomas/cornea/internal/database"
)

// errNoReferencedRow is the server error for a foreign key without a parent.
const errNoReferencedRow = 1452

const personColumns = "id, first_name, last_name, created_at"

const faceColumns = "id, tag, face_data, created_at"

// GetPerson retrieves a person by tag.
func (s *Store) GetPerson(ctx context.Context, tag int) (*database.Person, error) {
	var p database.Person
	err := s.pool.db.QueryRowContext(ctx, `SELECT `+personColumns+` FROM person WHERE id = ?`, tag).
		Scan(&p.ID, &p.FirstName, &p.LastName, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tag %d: %w", tag, database.ErrPersonNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query person: %w", err)
	}
	return &p, nil
}

// ListPersons returns all persons ordered by tag.
func (s *Store) ListPersons(ctx context.Context) ([]database.Person, error) {
	rows, err := s.pool.db.QueryContext(ctx, `SELECT `+personColumns+` FROM person ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	defer rows.Close()

	var persons []database.Person
	for rows.Next() {
		var p database.Person
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return persons, nil
}

// FindPersonsByName returns persons matching query.
func (s *Store) FindPersonsByName(ctx context.Context, query string) ([]database.Person, error) {
	persons, err := s.ListPersons(ctx)
	if err != nil {
		return nil, err
	}
	return database.FilterByName(persons, query), nil
}

// CreatePerson inserts a person and returns it with its assigned tag.
func (s *Store) CreatePerson(ctx context.Context, firstName, lastName string) (*database.Person, error) {
	res, err := s.pool.db.ExecContext(ctx, `INSERT INTO person (first_name, last_name) VALUES (?, ?)`, firstName, lastName)
	if err != nil {
		return nil, fmt.Errorf("insert person: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read person id: %w", err)
	}
	return s.GetPerson(ctx, int(id))
}

// StoreFace saves an image under tag.
func (s *Store) StoreFace(ctx context.Context, tag int, data []byte) (*database.Face, error) {
	res, err := s.pool.db.ExecContext(ctx, `INSERT INTO face (tag, face_data) VALUES (?, ?)`, tag, data)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == errNoReferencedRow {
			return nil, fmt.Errorf("tag %d: %w", tag, database.ErrPersonNotFound)
		}
		return nil, fmt.Errorf("insert face: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read face id: %w", err)
	}
	return s.GetFace(ctx, id)
}

// AllLabeledFaces returns every stored face ordered by ID.
func (s *Store) AllLabeledFaces(ctx context.Context) ([]database.Face, error) {
	return s.queryFaces(ctx, `SELECT `+faceColumns+` FROM face ORDER BY id`)
}

// FacesByTag returns the faces of one person.
func (s *Store) FacesByTag(ctx context.Context, tag int) ([]database.Face, error) {
	return s.queryFaces(ctx, `SELECT `+faceColumns+` FROM face WHERE tag = ? ORDER BY id`, tag)
}

// GetFace returns one face by ID.
func (s *Store) GetFace(ctx context.Context, id int64) (*database.Face, error) {
	var f database.Face
	err := s.pool.db.QueryRowContext(ctx, `SELECT `+faceColumns+` FROM face WHERE id = ?`, id).
		Scan(&f.ID, &f.Tag, &f.Data, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("face %d: %w", id, database.ErrFaceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query face: %w", err)
	}
	return &f, nil
}

// CountFaces returns the number of faces per tag.
func (s *Store) CountFaces(ctx context.Context) ([]database.FaceCount, error) {
	rows, err := s.pool.db.QueryContext(ctx, `SELECT tag, COUNT(*) FROM face GROUP BY tag ORDER BY tag`)
	if err != nil {
		return nil, fmt.Errorf("count faces: %w", err)
	}
	defer rows.Close()

	var counts []database.FaceCount
	for rows.Next() {
		var c database.FaceCount
		if err := rows.Scan(&c.Tag, &c.Count); err != nil {
			return nil, fmt.Errorf("scan face count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face counts: %w", err)
	}
	return counts, nil
}

func (s *Store) queryFaces(ctx context.Context, query string, args ...any) ([]database.Face, error) {
	rows, err := s.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	var faces []database.Face
	for rows.Next() {
		var f database.Face
		if err := rows.Scan(&f.ID, &f.Tag, &f.Data, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		faces = append(faces, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}
