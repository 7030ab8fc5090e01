package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/cornea/internal/database"
	"github.com/lib/pq"
)

// foreignKeyViolation is the SQLSTATE for a missing referenced row.
const foreignKeyViolation = pq.ErrorCode("23503")

// FaceRepository provides PostgreSQL-backed storage of labeled face images.
type FaceRepository struct {
	pool *Pool
}

// NewFaceRepository creates a new PostgreSQL face repository.
func NewFaceRepository(pool *Pool) *FaceRepository {
	return &FaceRepository{pool: pool}
}

// StoreFace saves an image under tag.
func (r *FaceRepository) StoreFace(ctx context.Context, tag int, data []byte) (*database.Face, error) {
	f := database.Face{Tag: tag, Data: data}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO face (tag, face_data)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, tag, data).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return nil, fmt.Errorf("tag %d: %w", tag, database.ErrPersonNotFound)
		}
		return nil, fmt.Errorf("insert face: %w", err)
	}
	return &f, nil
}

// AllLabeledFaces returns every stored face ordered by ID.
func (r *FaceRepository) AllLabeledFaces(ctx context.Context) ([]database.Face, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tag, face_data, created_at
		FROM face
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()
	return scanFaces(rows)
}

// FacesByTag returns the faces of one person.
func (r *FaceRepository) FacesByTag(ctx context.Context, tag int) ([]database.Face, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tag, face_data, created_at
		FROM face
		WHERE tag = $1
		ORDER BY id
	`, tag)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()
	return scanFaces(rows)
}

// GetFace returns one face by ID.
func (r *FaceRepository) GetFace(ctx context.Context, id int64) (*database.Face, error) {
	var f database.Face
	err := r.pool.QueryRow(ctx, `
		SELECT id, tag, face_data, created_at
		FROM face
		WHERE id = $1
	`, id).Scan(&f.ID, &f.Tag, &f.Data, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("face %d: %w", id, database.ErrFaceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query face: %w", err)
	}
	return &f, nil
}

// CountFaces returns the number of faces per tag.
func (r *FaceRepository) CountFaces(ctx context.Context) ([]database.FaceCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tag, COUNT(*)
		FROM face
		GROUP BY tag
		ORDER BY tag
	`)
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

func scanFaces(rows *sql.Rows) ([]database.Face, error) {
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
