package adapter

import (
	"context"
	"time"
)

// ExamGrade is a user's result on the course's exam.
type ExamGrade struct {
	Grade    float64
	MaxGrade float64
}

// ActivitySource exposes the loosely-coupled downstream signals the status
// projection composes: view logs, completion records and exam grades.
// All methods are read-only.
type ActivitySource interface {
	// HasViewedCourse reports whether a course-viewed event exists for the
	// user in the course.
	HasViewedCourse(ctx context.Context, userID string, courseID int64) (bool, error)
	// CompletionTime returns the completion timestamp, or nil when the user
	// has not completed the course.
	CompletionTime(ctx context.Context, userID string, courseID int64) (*time.Time, error)
	// ExamGrade returns the user's grade on the course's exam, or nil when
	// the course has no exam or the user has no graded attempt.
	ExamGrade(ctx context.Context, userID string, courseID int64) (*ExamGrade, error)
}
