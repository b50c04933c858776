package model

import "strconv"

// Course is the slice of the external course registry the engine needs.
// IDNumber is the institution-assigned external code (may be empty); when set
// it becomes the human-readable token prefix.
type Course struct {
	ID       int64
	FullName string
	IDNumber string
}

// TokenPrefix returns the course's external code, or its numeric id when no
// external code is assigned.
func (c Course) TokenPrefix() string {
	if c.IDNumber != "" {
		return c.IDNumber
	}
	return strconv.FormatInt(c.ID, 10)
}
