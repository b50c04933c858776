package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-tokens/internal/domain"
	"course-tokens/internal/domain/model"
	"course-tokens/internal/domain/ports/adapter"
)

// Ensure implementation satisfies the interface.
var _ adapter.CourseRegistry = (*courseRegistry)(nil)

// courseRegistry reads the course catalog maintained by the learning
// platform. This side only reads; catalog writes happen elsewhere.
type courseRegistry struct {
	pool *pgxpool.Pool
}

func NewCourseRegistry(pool *pgxpool.Pool) adapter.CourseRegistry {
	return &courseRegistry{pool: pool}
}

func (r *courseRegistry) GetCourse(ctx context.Context, id int64) (*model.Course, error) {
	defer timeOp("course.get")()

	const q = `SELECT id, full_name, id_number FROM courses WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, nil, q, id)
	if err != nil {
		return nil, err
	}

	var c model.Course
	if err := row.Scan(&c.ID, &c.FullName, &c.IDNumber); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCourseNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &c, nil
}
