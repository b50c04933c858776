package usecase

import (
	"context"
	"errors"

	"course-tokens/internal/domain"
	"course-tokens/internal/domain/model"
	"course-tokens/internal/domain/ports/adapter"
	"course-tokens/internal/domain/ports/repository"
	"course-tokens/internal/infra/logging"

	"github.com/rs/zerolog"
)

// StatusCache is an optional short-TTL cache in front of the projection; the
// derivation is read-only so staleness only delays a display update.
type StatusCache interface {
	Get(ctx context.Context, tokenID string) (model.TokenStatus, bool)
	Set(ctx context.Context, tokenID string, status model.TokenStatus)
	Invalidate(ctx context.Context, tokenID string)
}

// Compile-time check
var _ StatusUseCase = (*statusUC)(nil)

// StatusUseCase derives a token's display status from downstream signals.
// Read-only: no state held, no side effects.
type StatusUseCase interface {
	Project(ctx context.Context, tokenID string) (model.TokenStatus, error)
	ProjectToken(ctx context.Context, token *model.CourseToken) (model.TokenStatus, error)
	Invalidate(ctx context.Context, tokenID string)
}

type statusUC struct {
	tokens        repository.TokenRepository
	accounts      repository.AccountRepository
	activity      adapter.ActivitySource
	cache         StatusCache
	examPassRatio float64
	log           *zerolog.Logger
}

// NewStatusUseCase constructs the projector. cache may be nil.
// examPassRatio is the fraction of the exam's max grade below which a graded
// attempt projects as failed.
func NewStatusUseCase(
	tokens repository.TokenRepository,
	accounts repository.AccountRepository,
	activity adapter.ActivitySource,
	cache StatusCache,
	examPassRatio float64,
	logger *zerolog.Logger,
) *statusUC {
	return &statusUC{
		tokens:        tokens,
		accounts:      accounts,
		activity:      activity,
		cache:         cache,
		examPassRatio: examPassRatio,
		log:           logger,
	}
}

// Project loads the token and derives its status. Voided tokens are excluded
// from display and report ErrTokenVoided.
func (u *statusUC) Project(ctx context.Context, tokenID string) (model.TokenStatus, error) {
	defer logging.TraceDuration(u.log, "StatusUC.Project")()

	if u.cache != nil {
		if status, ok := u.cache.Get(ctx, tokenID); ok {
			return status, nil
		}
	}

	token, err := u.tokens.FindByID(ctx, repository.NoTX, tokenID)
	if err != nil {
		return "", err
	}
	status, err := u.ProjectToken(ctx, token)
	if err != nil {
		return "", err
	}
	if u.cache != nil {
		u.cache.Set(ctx, tokenID, status)
	}
	return status, nil
}

// ProjectToken derives the status for an already-loaded token.
//
// Precedence: Completed outranks Failed outranks In-progress outranks
// Assigned. A completed course never displays as failed even when an early
// exam attempt did fail.
func (u *statusUC) ProjectToken(ctx context.Context, token *model.CourseToken) (model.TokenStatus, error) {
	if token.IsVoided() {
		return "", domain.ErrTokenVoided
	}
	if !token.IsRedeemed() {
		return model.StatusAvailable, nil
	}

	acct, err := u.accounts.FindActiveByEmail(ctx, repository.NoTX, token.Redemption.RedeemedBy)
	if errors.Is(err, domain.ErrNotFound) {
		// Redeemed but the identity is gone (deleted or re-keyed): all we can
		// still say is that the token was assigned.
		return model.StatusAssigned, nil
	}
	if err != nil {
		return "", err
	}

	completed, err := u.activity.CompletionTime(ctx, acct.ID, token.CourseID)
	if err != nil {
		return "", err
	}
	if completed != nil && completed.Unix() > 0 {
		return model.StatusCompleted, nil
	}

	grade, err := u.activity.ExamGrade(ctx, acct.ID, token.CourseID)
	if err != nil {
		return "", err
	}
	if grade != nil && grade.Grade < u.examPassRatio*grade.MaxGrade {
		return model.StatusFailed, nil
	}

	viewed, err := u.activity.HasViewedCourse(ctx, acct.ID, token.CourseID)
	if err != nil {
		return "", err
	}
	if viewed {
		return model.StatusInProgress, nil
	}

	return model.StatusAssigned, nil
}

// Invalidate drops the cached status after a state change so the next read
// reflects it immediately rather than after the TTL.
func (u *statusUC) Invalidate(ctx context.Context, tokenID string) {
	if u.cache != nil {
		u.cache.Invalidate(ctx, tokenID)
	}
}
