package repository

import (
	"context"
	"time"

	"course-tokens/internal/domain/model"
)

// TokenRepository is the port for course token records.
//
// The mutating methods are conditional updates: two concurrent redemption
// attempts on the same code race safely and exactly one succeeds. Voided
// tokens are never physically deleted; void is the soft-delete mechanism.
type TokenRepository interface {
	// Create inserts a new token. Returns domain.ErrDuplicateCode when the
	// unique constraint on code is violated (caller regenerates and retries).
	Create(ctx context.Context, tx Tx, token *model.CourseToken) error
	// FindByCode returns domain.ErrNotFound if missing. Code comparison uses
	// the store's own collation; no extra normalization here.
	FindByCode(ctx context.Context, tx Tx, code string) (*model.CourseToken, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.CourseToken, error)
	// MarkRedeemed flips the token to redeemed iff it is unredeemed and not
	// voided. Returns domain.ErrTokenAlreadyUsed or domain.ErrTokenVoided.
	MarkRedeemed(ctx context.Context, tx Tx, tokenID, enrolmentRef, redeemedBy string, redeemedAt time.Time) error
	// ClearRedemption removes the redemption record, returning the token to
	// unredeemed. Used when unwinding an enrolment before voiding.
	ClearRedemption(ctx context.Context, tx Tx, tokenID string) error
	// Void flips the void flag iff not already voided.
	Void(ctx context.Context, tx Tx, tokenID, notes string, voidedAt time.Time) error
	// Unvoid clears the void flag iff currently voided.
	Unvoid(ctx context.Context, tx Tx, tokenID string) error
	// ListByOwner returns the owner's non-voided tokens, newest first.
	ListByOwner(ctx context.Context, tx Tx, ownerUserID string) ([]*model.CourseToken, error)
	ListByCourseAndOwner(ctx context.Context, tx Tx, courseID int64, ownerUserID string) ([]*model.CourseToken, error)
}
