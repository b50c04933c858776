package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"course-tokens/internal/domain"
	"course-tokens/internal/domain/model"
	"course-tokens/internal/domain/ports/adapter"
	"course-tokens/internal/domain/ports/repository"
	"course-tokens/internal/infra/logging"
	"course-tokens/internal/infra/metrics"
	"course-tokens/internal/infra/retry"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// CreateBatchRequest carries everything needed to issue a batch of tokens to
// one owner for one course.
type CreateBatchRequest struct {
	CourseID     int64
	OwnerEmail   string
	FirstName    string
	LastName     string
	Quantity     int
	GroupAccount string
	Extra        json.RawMessage
	// CreatedBy is the acting identity from the request context; falls back
	// to the service account when issued machine-to-machine.
	CreatedBy string
}

// BatchResult reports the outcome of a creation batch. Created < Requested
// means a mid-batch storage failure aborted the remainder; tokens already
// created are valid and kept.
type BatchResult struct {
	Tokens    []*model.CourseToken
	Created   int
	Requested int
	// EmailSent is false when the owner notification could not be delivered;
	// the batch itself still stands.
	EmailSent bool
}

// Partial reports whether the batch fell short of the requested quantity.
func (r *BatchResult) Partial() bool { return r.Created < r.Requested }

// Compile-time check
var _ TokenUseCase = (*tokenUC)(nil)

// TokenUseCase covers issuing, listing and administratively invalidating
// tokens. Redemption lives in RedemptionUseCase.
type TokenUseCase interface {
	CreateBatch(ctx context.Context, req CreateBatchRequest) (*BatchResult, error)
	GetByID(ctx context.Context, tokenID string) (*model.CourseToken, error)
	ListByOwner(ctx context.Context, ownerUserID string) ([]*model.CourseToken, error)
	ListByCourseAndOwner(ctx context.Context, courseID int64, ownerUserID string) ([]*model.CourseToken, error)
	Void(ctx context.Context, tokenID, notes string) error
	Unvoid(ctx context.Context, tokenID string) error
	Unenrol(ctx context.Context, tokenID string) error
	ResendWelcome(ctx context.Context, email string) error
}

type tokenUC struct {
	tokens    repository.TokenRepository
	txm       repository.TransactionManager
	courses   adapter.CourseRegistry
	enrol     adapter.EnrolmentService
	provision ProvisionUseCase
	notify    *notifier
	exec      *retry.Executor
	dbRetry   retry.Policy
	log       *zerolog.Logger
}

func NewTokenUseCase(
	tokens repository.TokenRepository,
	txm repository.TransactionManager,
	courses adapter.CourseRegistry,
	enrol adapter.EnrolmentService,
	provision ProvisionUseCase,
	notify *notifier,
	exec *retry.Executor,
	dbRetry retry.Policy,
	logger *zerolog.Logger,
) *tokenUC {
	return &tokenUC{
		tokens:    tokens,
		txm:       txm,
		courses:   courses,
		enrol:     enrol,
		provision: provision,
		notify:    notify,
		exec:      exec,
		dbRetry:   dbRetry,
		log:       logger,
	}
}

// CreateBatch provisions the owner, then issues Quantity tokens one insert at
// a time. Each insert regenerates its code on collision and is retried under
// the db budget; exhaustion aborts the remainder and the shortfall is visible
// in the result rather than failing the request.
func (u *tokenUC) CreateBatch(ctx context.Context, req CreateBatchRequest) (*BatchResult, error) {
	defer logging.TraceDuration(u.log, "TokenUC.CreateBatch")()

	if req.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", domain.ErrInvalidArgument)
	}
	if !strings.Contains(req.OwnerEmail, "@") {
		return nil, fmt.Errorf("%w: malformed email", domain.ErrInvalidArgument)
	}
	if len(req.Extra) > 0 && !json.Valid(req.Extra) {
		return nil, fmt.Errorf("%w: extra metadata is not valid JSON", domain.ErrInvalidArgument)
	}

	course, err := u.courses.GetCourse(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}

	prov, err := u.provision.ResolveOrCreate(ctx, req.OwnerEmail, req.FirstName, req.LastName)
	if err != nil {
		return nil, err
	}
	owner := prov.Account

	result := &BatchResult{Requested: req.Quantity, EmailSent: true}
	prefix := course.TokenPrefix()
	for i := 0; i < req.Quantity; i++ {
		var created *model.CourseToken
		err := u.exec.Execute(ctx, "insert-token", u.dbRetry, func(ctx context.Context) error {
			code, err := generateTokenCode(prefix)
			if err != nil {
				return err
			}
			tok, err := model.NewCourseToken(code, course.ID, owner.ID, req.CreatedBy)
			if err != nil {
				return err
			}
			tok.GroupAccount = req.GroupAccount
			tok.Extra = req.Extra
			if err := u.tokens.Create(ctx, repository.NoTX, tok); err != nil {
				// Duplicate codes regenerate on the next attempt; other
				// storage failures get the same bounded retry.
				return retry.Transient(err)
			}
			created = tok
			return nil
		})
		if err != nil {
			u.log.Error().Err(err).Int("created", result.Created).Int("requested", req.Quantity).
				Msg("batch aborted after insert retries exhausted")
			break
		}
		result.Tokens = append(result.Tokens, created)
		result.Created++
	}
	metrics.AddTokensCreated(result.Created)

	// Notifications are best-effort; the tokens already exist either way.
	if prov.IsNew {
		if !u.notify.newAccountEmail(ctx, owner, prov.PlainPassword) {
			result.EmailSent = false
		}
	}
	if result.Created > 0 {
		if !u.notify.tokensIssuedEmail(ctx, owner, course, result.Created, orderNumber(req.Extra)) {
			result.EmailSent = false
		}
	}

	return result, nil
}

func (u *tokenUC) GetByID(ctx context.Context, tokenID string) (*model.CourseToken, error) {
	return u.tokens.FindByID(ctx, repository.NoTX, tokenID)
}

func (u *tokenUC) ListByOwner(ctx context.Context, ownerUserID string) ([]*model.CourseToken, error) {
	return u.tokens.ListByOwner(ctx, repository.NoTX, ownerUserID)
}

func (u *tokenUC) ListByCourseAndOwner(ctx context.Context, courseID int64, ownerUserID string) ([]*model.CourseToken, error) {
	return u.tokens.ListByCourseAndOwner(ctx, repository.NoTX, courseID, ownerUserID)
}

// Void invalidates a token. A redeemed token is unwound first: enrolment
// removed, redemption cleared, and only then the void mark set.
func (u *tokenUC) Void(ctx context.Context, tokenID, notes string) error {
	defer logging.TraceDuration(u.log, "TokenUC.Void")()

	token, err := u.tokens.FindByID(ctx, repository.NoTX, tokenID)
	if err != nil {
		return err
	}
	if token.IsVoided() {
		return domain.ErrTokenVoided
	}
	if token.IsRedeemed() {
		if err := u.enrol.Unenrol(ctx, token.Redemption.EnrolmentRef); err != nil && !errors.Is(err, domain.ErrEnrolmentNotFound) {
			return err
		}
	}
	// Clearing the redemption and setting the void mark land together.
	err = u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if token.IsRedeemed() {
			if err := u.tokens.ClearRedemption(ctx, tx, token.ID); err != nil {
				return err
			}
		}
		return u.tokens.Void(ctx, tx, tokenID, notes, time.Now())
	})
	if err != nil {
		return err
	}
	metrics.IncTokensVoided()
	u.log.Info().Str("token_id", tokenID).Str("notes", notes).Msg("token voided")
	return nil
}

// Unvoid clears the void mark, returning the token to unredeemed. It never
// re-creates the enrolment: the unenroll step already cleared the redemption.
func (u *tokenUC) Unvoid(ctx context.Context, tokenID string) error {
	defer logging.TraceDuration(u.log, "TokenUC.Unvoid")()

	if err := u.tokens.Unvoid(ctx, repository.NoTX, tokenID); err != nil {
		return err
	}
	u.log.Info().Str("token_id", tokenID).Msg("token unvoided")
	return nil
}

// Unenrol removes the redemption side effect without voiding: the user is
// unenrolled and the token becomes available again.
func (u *tokenUC) Unenrol(ctx context.Context, tokenID string) error {
	defer logging.TraceDuration(u.log, "TokenUC.Unenrol")()

	token, err := u.tokens.FindByID(ctx, repository.NoTX, tokenID)
	if err != nil {
		return err
	}
	if !token.IsRedeemed() {
		return domain.ErrEnrolmentNotFound
	}
	return u.unwindRedemption(ctx, token)
}

// ResendWelcome re-sends the account-created email to an existing account.
// The credential is rotated first so the mail carries one that works.
func (u *tokenUC) ResendWelcome(ctx context.Context, email string) error {
	defer logging.TraceDuration(u.log, "TokenUC.ResendWelcome")()

	res, err := u.provision.RenewCredentials(ctx, email)
	if err != nil {
		return err
	}
	if !u.notify.newAccountEmail(ctx, res.Account, res.PlainPassword) {
		return domain.ErrMailNotSent
	}
	u.log.Info().Str("account_id", res.Account.ID).Msg("welcome email re-sent")
	return nil
}

func (u *tokenUC) unwindRedemption(ctx context.Context, token *model.CourseToken) error {
	if err := u.enrol.Unenrol(ctx, token.Redemption.EnrolmentRef); err != nil && !errors.Is(err, domain.ErrEnrolmentNotFound) {
		return err
	}
	return u.tokens.ClearRedemption(ctx, repository.NoTX, token.ID)
}

// orderNumber pulls the order number out of the opaque metadata blob when the
// issuer put one there; the engine itself never interprets Extra.
func orderNumber(extra json.RawMessage) string {
	if len(extra) == 0 {
		return ""
	}
	var m struct {
		OrderNumber json.Number `json:"order_number"`
	}
	if err := json.Unmarshal(extra, &m); err != nil {
		return ""
	}
	return m.OrderNumber.String()
}
