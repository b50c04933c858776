package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrCourseNotFound     = errors.New("course not found")
	ErrTokenAlreadyUsed   = errors.New("token has already been used")
	ErrTokenVoided        = errors.New("token has been voided and cannot be used")
	ErrTokenNotVoided     = errors.New("token is not voided")
	ErrAlreadyEnrolled    = errors.New("user is already enrolled in this course")
	ErrDuplicateCode      = errors.New("token code already exists")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrEnrolmentNotFound  = errors.New("enrolment not found")
	ErrMailNotSent        = errors.New("email could not be sent")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context for repository call")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
