package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-tokens/internal/domain"
	"course-tokens/internal/domain/ports/adapter"
)

// Ensure implementation satisfies the interface.
var _ adapter.ActivitySource = (*activitySource)(nil)

// activitySource reads the learning platform's activity tables: the event
// log, completion records and exam grades. All three are maintained by the
// platform itself; this side only reads.
type activitySource struct {
	pool *pgxpool.Pool
}

func NewActivitySource(pool *pgxpool.Pool) adapter.ActivitySource {
	return &activitySource{pool: pool}
}

func (s *activitySource) HasViewedCourse(ctx context.Context, userID string, courseID int64) (bool, error) {
	defer timeOp("activity.has_viewed")()

	const q = `
SELECT EXISTS (
  SELECT 1 FROM activity_log
   WHERE user_id = $1 AND course_id = $2 AND event = 'course_viewed'
);
`
	row, err := pickRow(ctx, s.pool, nil, q, userID, courseID)
	if err != nil {
		return false, err
	}
	var viewed bool
	if err := row.Scan(&viewed); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return viewed, nil
}

func (s *activitySource) CompletionTime(ctx context.Context, userID string, courseID int64) (*time.Time, error) {
	defer timeOp("activity.completion")()

	const q = `SELECT completed_at FROM course_completions WHERE user_id = $1 AND course_id = $2;`
	row, err := pickRow(ctx, s.pool, nil, q, userID, courseID)
	if err != nil {
		return nil, err
	}
	var completed *time.Time
	if err := row.Scan(&completed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return completed, nil
}

// ExamGrade returns the latest graded attempt on the course's exam quiz.
// Courses without an exam, and users without an attempt, yield nil.
func (s *activitySource) ExamGrade(ctx context.Context, userID string, courseID int64) (*adapter.ExamGrade, error) {
	defer timeOp("activity.exam_grade")()

	const q = `
SELECT g.grade, q.max_grade
  FROM quiz_grades g
  JOIN quizzes q ON q.id = g.quiz_id
 WHERE g.user_id = $1 AND q.course_id = $2 AND q.name = 'Exam'
 ORDER BY g.graded_at DESC
 LIMIT 1;
`
	row, err := pickRow(ctx, s.pool, nil, q, userID, courseID)
	if err != nil {
		return nil, err
	}
	var g adapter.ExamGrade
	if err := row.Scan(&g.Grade, &g.MaxGrade); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &g, nil
}
