package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-tokens/internal/domain"
	"course-tokens/internal/domain/ports/adapter"
)

// Ensure implementation satisfies the interface.
var _ adapter.EnrolmentService = (*enrolmentService)(nil)

// enrolmentService manages course membership rows. The reference returned by
// Enrol is the row's primary key; callers treat it as opaque.
type enrolmentService struct {
	pool *pgxpool.Pool
}

func NewEnrolmentService(pool *pgxpool.Pool) adapter.EnrolmentService {
	return &enrolmentService{pool: pool}
}

func (s *enrolmentService) Enrol(ctx context.Context, courseID int64, userID, role string) (string, error) {
	defer timeOp("enrolment.enrol")()

	ref := uuid.NewString()
	const q = `
INSERT INTO enrolments (ref, course_id, user_id, role, created_at)
VALUES ($1, $2, $3, $4, $5);
`
	if _, err := execSQL(ctx, s.pool, nil, q, ref, courseID, userID, role, time.Now()); err != nil {
		return "", err
	}
	return ref, nil
}

func (s *enrolmentService) Unenrol(ctx context.Context, enrolmentRef string) error {
	defer timeOp("enrolment.unenrol")()

	cmd, err := execSQL(ctx, s.pool, nil, `DELETE FROM enrolments WHERE ref = $1;`, enrolmentRef)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrEnrolmentNotFound
	}
	return nil
}

func (s *enrolmentService) FindEnrolment(ctx context.Context, courseID int64, userID string) (string, error) {
	defer timeOp("enrolment.find")()

	const q = `SELECT ref FROM enrolments WHERE course_id = $1 AND user_id = $2;`
	row, err := pickRow(ctx, s.pool, nil, q, courseID, userID)
	if err != nil {
		return "", err
	}
	var ref string
	if err := row.Scan(&ref); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrEnrolmentNotFound
		}
		return "", domain.ErrReadDatabaseRow
	}
	return ref, nil
}
