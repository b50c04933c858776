package model

import (
	"crypto/rand"
	"encoding/json"
	"time"

	"course-tokens/internal/domain"

	"github.com/oklog/ulid/v2"
)

// TokenStatus is the human-facing progress state derived for a token.
// It is a projection over downstream signals, never stored on the token itself.
type TokenStatus string

const (
	StatusAvailable  TokenStatus = "available"
	StatusAssigned   TokenStatus = "assigned"
	StatusInProgress TokenStatus = "in_progress"
	StatusCompleted  TokenStatus = "completed"
	StatusFailed     TokenStatus = "failed"
)

// Redemption records the single consumption of a token. Present iff the token
// has been used.
type Redemption struct {
	EnrolmentRef string
	RedeemedBy   string // email of the enrolled identity
	RedeemedAt   time.Time
}

// Void records administrative invalidation. A voided token can never be
// redeemed; unvoiding clears this record and returns the token to unredeemed.
type Void struct {
	VoidedAt time.Time
	Notes    string
}

// CourseToken is a single-use code entitling one enrolment in one course.
//
// OwnerUserID is the purchaser and never changes; the identity actually
// enrolled at redemption time may differ and is recorded in Redemption.
type CourseToken struct {
	ID           string
	Code         string
	CourseID     int64
	OwnerUserID  string
	CreatedBy    string
	CreatedAt    time.Time
	Redemption   *Redemption
	Void         *Void
	GroupAccount string
	Extra        json.RawMessage // opaque metadata, e.g. {"order_number": 1004}
}

// NewCourseToken builds an unredeemed token. ID is a ULID so listings sort by
// creation time without an extra column.
func NewCourseToken(code string, courseID int64, ownerUserID, createdBy string) (*CourseToken, error) {
	if code == "" || ownerUserID == "" || createdBy == "" {
		return nil, domain.ErrInvalidArgument
	}
	if courseID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &CourseToken{
		ID:          ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(),
		Code:        code,
		CourseID:    courseID,
		OwnerUserID: ownerUserID,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now(),
	}, nil
}

// IsRedeemed reports whether the token has been consumed.
func (t *CourseToken) IsRedeemed() bool { return t != nil && t.Redemption != nil }

// IsVoided reports whether the token is administratively invalidated.
func (t *CourseToken) IsVoided() bool { return t != nil && t.Void != nil }
