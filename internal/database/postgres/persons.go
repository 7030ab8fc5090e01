package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/cornea/internal/database"
)

// PersonRepository provides PostgreSQL-backed person storage.
type PersonRepository struct {
	pool *Pool
}

// NewPersonRepository creates a new PostgreSQL person repository.
func NewPersonRepository(pool *Pool) *PersonRepository {
	return &PersonRepository{pool: pool}
}

// GetPerson retrieves a person by tag.
func (r *PersonRepository) GetPerson(ctx context.Context, tag int) (*database.Person, error) {
	var p database.Person
	err := r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, created_at
		FROM person
		WHERE id = $1
	`, tag).Scan(&p.ID, &p.FirstName, &p.LastName, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tag %d: %w", tag, database.ErrPersonNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query person: %w", err)
	}
	return &p, nil
}

// ListPersons returns all persons ordered by tag.
func (r *PersonRepository) ListPersons(ctx context.Context) ([]database.Person, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, first_name, last_name, created_at
		FROM person
		ORDER BY id
	`)
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

// FindPersonsByName returns persons matching query. Names are folded in Go
// so the match does not depend on the unaccent extension.
func (r *PersonRepository) FindPersonsByName(ctx context.Context, query string) ([]database.Person, error) {
	persons, err := r.ListPersons(ctx)
	if err != nil {
		return nil, err
	}
	return database.FilterByName(persons, query), nil
}

// CreatePerson inserts a person and returns it with its assigned tag.
func (r *PersonRepository) CreatePerson(ctx context.Context, firstName, lastName string) (*database.Person, error) {
	p := database.Person{FirstName: firstName, LastName: lastName}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO person (first_name, last_name)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, firstName, lastName).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert person: %w", err)
	}
	return &p, nil
}
