package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"course-tokens/internal/domain"
	"course-tokens/internal/domain/ports/adapter"
	"course-tokens/internal/domain/ports/repository"
	"course-tokens/internal/infra/logging"
	"course-tokens/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// OwnershipCheck selects who may redeem a token.
type OwnershipCheck string

const (
	// OwnershipStrict: only the owning account may redeem a code.
	OwnershipStrict OwnershipCheck = "strict"
	// OwnershipLenient: any authenticated user may redeem a code they know.
	OwnershipLenient OwnershipCheck = "lenient"
)

// Redeemee names the identity to enrol when it differs from the requester.
type Redeemee struct {
	Email     string
	FirstName string
	LastName  string
}

// RedeemRequest is one redemption attempt. ActorID is the authenticated
// requester from the request context, never ambient state.
type RedeemRequest struct {
	Code     string
	ActorID  string
	Redeemee *Redeemee
}

// RedeemOutcome distinguishes self-enrolment (the caller should land in the
// course) from enrolling somebody else.
type RedeemOutcome string

const (
	OutcomeSuccess  RedeemOutcome = "success"
	OutcomeRedirect RedeemOutcome = "redirect"
)

// RedeemResult is returned only when the whole flow succeeded.
type RedeemResult struct {
	Outcome      RedeemOutcome
	EnrolmentRef string
	CourseID     int64
	Message      string
}

// Compile-time check
var _ RedemptionUseCase = (*redemptionUC)(nil)

// RedemptionUseCase validates a token and consumes it to enrol an identity.
type RedemptionUseCase interface {
	Redeem(ctx context.Context, req RedeemRequest) (*RedeemResult, error)
}

type redemptionUC struct {
	tokens    repository.TokenRepository
	accounts  repository.AccountRepository
	courses   adapter.CourseRegistry
	enrol     adapter.EnrolmentService
	provision ProvisionUseCase
	notify    *notifier
	ownership OwnershipCheck
	enrolRole string
	log       *zerolog.Logger
}

func NewRedemptionUseCase(
	tokens repository.TokenRepository,
	accounts repository.AccountRepository,
	courses adapter.CourseRegistry,
	enrol adapter.EnrolmentService,
	provision ProvisionUseCase,
	notify *notifier,
	ownership OwnershipCheck,
	enrolRole string,
	logger *zerolog.Logger,
) *redemptionUC {
	return &redemptionUC{
		tokens:    tokens,
		accounts:  accounts,
		courses:   courses,
		enrol:     enrol,
		provision: provision,
		notify:    notify,
		ownership: ownership,
		enrolRole: enrolRole,
		log:       logger,
	}
}

// Redeem walks the gates in order. No side effect happens before the
// already-enrolled check passes: a rejected attempt never burns the token.
//
//	lookup -> voided? -> used? -> course -> already enrolled? ->
//	provision -> enrol -> mark redeemed -> notify (best-effort)
func (u *redemptionUC) Redeem(ctx context.Context, req RedeemRequest) (*RedeemResult, error) {
	ctx = logging.WithTokenCode(ctx, req.Code)
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "RedemptionUC.Redeem")()

	// Gate 1: token exists and, under the strict policy, belongs to the
	// requester. Both failures look identical to the caller so codes cannot
	// be probed for ownership.
	token, err := u.tokens.FindByCode(ctx, repository.NoTX, req.Code)
	if err != nil {
		metrics.IncRedemption("invalid_token")
		return nil, err
	}
	if u.ownership == OwnershipStrict && token.OwnerUserID != req.ActorID {
		metrics.IncRedemption("invalid_token")
		return nil, domain.ErrNotFound
	}

	// Gate 2 and 3: void outranks used.
	if token.IsVoided() {
		metrics.IncRedemption("voided")
		return nil, domain.ErrTokenVoided
	}
	if token.IsRedeemed() {
		metrics.IncRedemption("already_used")
		return nil, domain.ErrTokenAlreadyUsed
	}

	// Gate 4: the course must still exist.
	course, err := u.courses.GetCourse(ctx, token.CourseID)
	if err != nil {
		metrics.IncRedemption("course_not_found")
		return nil, err
	}

	// Gate 5: resolve the target identity and reject before any side effect
	// if it is already enrolled. This runs before provisioning so a double
	// redemption attempt neither burns the token nor duplicates enrolments.
	targetEmail, first, last, selfEnrol, err := u.resolveTarget(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := u.rejectIfEnrolled(ctx, targetEmail, course.ID); err != nil {
		metrics.IncRedemption("already_enrolled")
		return nil, err
	}

	// Step 6: find-or-create the redeemee.
	prov, err := u.provision.ResolveOrCreate(ctx, targetEmail, first, last)
	if err != nil {
		return nil, err
	}
	redeemee := prov.Account

	// Step 7: enrol with the fixed role.
	enrolmentRef, err := u.enrol.Enrol(ctx, course.ID, redeemee.ID, u.enrolRole)
	if err != nil {
		return nil, fmt.Errorf("enrol user: %w", err)
	}

	// Step 8: consume the token. The conditional update is the single winner
	// gate for concurrent attempts. The step-7 enrolment must not outlive a
	// failed consumption, whatever the cause: a free enrolment would also make
	// every retry trip the already-enrolled gate with the token still unspent.
	if err := u.tokens.MarkRedeemed(ctx, repository.NoTX, token.ID, enrolmentRef, redeemee.Email, time.Now()); err != nil {
		if uerr := u.enrol.Unenrol(ctx, enrolmentRef); uerr != nil && !errors.Is(uerr, domain.ErrEnrolmentNotFound) {
			log.Error().Err(uerr).Str("enrolment_ref", enrolmentRef).
				Msg("could not unwind enrolment after failed token consumption")
		}
		if errors.Is(err, domain.ErrTokenAlreadyUsed) || errors.Is(err, domain.ErrTokenVoided) {
			metrics.IncRedemption("already_used")
		} else {
			metrics.IncRedemption("storage_error")
		}
		return nil, err
	}
	metrics.IncRedemption("success")

	// Step 9: notifications, never rolled back into the result.
	if redeemee.ID != token.OwnerUserID {
		if owner, oerr := u.accounts.FindByID(ctx, repository.NoTX, token.OwnerUserID); oerr == nil {
			u.notify.ownerUsedEmail(ctx, owner, redeemee, token, course)
		} else {
			log.Warn().Err(oerr).Msg("could not load token owner for use notification")
		}
	}
	u.notify.welcomeEmail(ctx, redeemee, course, prov.IsNew, prov.PlainPassword)

	res := &RedeemResult{
		Outcome:      OutcomeSuccess,
		EnrolmentRef: enrolmentRef,
		CourseID:     course.ID,
		Message:      "User successfully enrolled in the course.",
	}
	if selfEnrol {
		res.Outcome = OutcomeRedirect
		res.Message = "You have been successfully enrolled in the course."
	}
	log.Info().Str("token_id", token.ID).Str("redeemee", logging.RedactEmail(redeemee.Email, false)).
		Msg("token redeemed")
	return res, nil
}

// resolveTarget picks the identity to enrol: a named redeemee when supplied,
// else the requesting actor.
func (u *redemptionUC) resolveTarget(ctx context.Context, req RedeemRequest) (email, first, last string, selfEnrol bool, err error) {
	if req.Redeemee != nil && req.Redeemee.Email != "" {
		return req.Redeemee.Email, req.Redeemee.FirstName, req.Redeemee.LastName, false, nil
	}
	actor, err := u.accounts.FindByID(ctx, repository.NoTX, req.ActorID)
	if err != nil {
		return "", "", "", false, fmt.Errorf("resolve requesting actor: %w", err)
	}
	return actor.Email, actor.FirstName, actor.LastName, true, nil
}

// rejectIfEnrolled returns ErrAlreadyEnrolled when the email's active account
// already holds an enrolment in the course. An unknown email cannot be
// enrolled yet, so it passes.
func (u *redemptionUC) rejectIfEnrolled(ctx context.Context, email string, courseID int64) error {
	acct, err := u.accounts.FindActiveByEmail(ctx, repository.NoTX, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = u.enrol.FindEnrolment(ctx, courseID, acct.ID)
	if errors.Is(err, domain.ErrEnrolmentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return domain.ErrAlreadyEnrolled
}
