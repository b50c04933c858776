package adapter

import "context"

// EnrolmentService is the external course-membership system.
type EnrolmentService interface {
	// Enrol adds the user to the course with the given role and returns an
	// opaque enrolment reference.
	Enrol(ctx context.Context, courseID int64, userID, role string) (string, error)
	// Unenrol removes a previous enrolment by its reference.
	Unenrol(ctx context.Context, enrolmentRef string) error
	// FindEnrolment returns the enrolment reference for the user in the
	// course, or domain.ErrEnrolmentNotFound.
	FindEnrolment(ctx context.Context, courseID int64, userID string) (string, error)
}
