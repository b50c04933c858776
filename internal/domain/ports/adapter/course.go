package adapter

import (
	"context"

	"course-tokens/internal/domain/model"
)

// CourseRegistry resolves course metadata from the external course catalog.
type CourseRegistry interface {
	// GetCourse returns domain.ErrCourseNotFound if the id is unknown.
	GetCourse(ctx context.Context, id int64) (*model.Course, error)
}
