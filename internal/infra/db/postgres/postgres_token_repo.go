package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-tokens/internal/domain"
	"course-tokens/internal/domain/model"
	"course-tokens/internal/domain/ports/repository"
)

// Ensure implementation satisfies the interface.
var _ repository.TokenRepository = (*tokenRepo)(nil)

type tokenRepo struct {
	pool *pgxpool.Pool
}

func NewTokenRepo(pool *pgxpool.Pool) repository.TokenRepository {
	return &tokenRepo{pool: pool}
}

const tokenColumns = `id, code, course_id, owner_user_id, created_by, created_at,
       enrolment_ref, redeemed_by, redeemed_at, voided_at, void_notes, group_account, extra`

// Create inserts a fresh token. A code collision surfaces as ErrDuplicateCode
// so the caller can regenerate and retry.
func (r *tokenRepo) Create(ctx context.Context, tx repository.Tx, token *model.CourseToken) error {
	defer timeOp("token.create")()

	const q = `
INSERT INTO course_tokens (id, code, course_id, owner_user_id, created_by, created_at, group_account, extra)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	_, err := execSQL(ctx, r.pool, tx, q,
		token.ID, token.Code, token.CourseID, token.OwnerUserID, token.CreatedBy, token.CreatedAt,
		token.GroupAccount, token.Extra,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrDuplicateCode
	}
	return err
}

func (r *tokenRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.CourseToken, error) {
	defer timeOp("token.find_by_code")()

	row, err := pickRow(ctx, r.pool, tx, `SELECT `+tokenColumns+` FROM course_tokens WHERE code = $1;`, code)
	if err != nil {
		return nil, err
	}
	return scanToken(row)
}

func (r *tokenRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.CourseToken, error) {
	defer timeOp("token.find_by_id")()

	row, err := pickRow(ctx, r.pool, tx, `SELECT `+tokenColumns+` FROM course_tokens WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanToken(row)
}

// MarkRedeemed consumes the token. The WHERE clause is the single-use gate:
// only an unredeemed, non-voided row is updated, so exactly one of any number
// of concurrent redeemers wins.
func (r *tokenRepo) MarkRedeemed(ctx context.Context, tx repository.Tx, tokenID, enrolmentRef, redeemedBy string, redeemedAt time.Time) error {
	defer timeOp("token.mark_redeemed")()

	const q = `
UPDATE course_tokens
   SET enrolment_ref = $2, redeemed_by = $3, redeemed_at = $4
 WHERE id = $1 AND redeemed_at IS NULL AND voided_at IS NULL;
`
	cmd, err := execSQL(ctx, r.pool, tx, q, tokenID, enrolmentRef, redeemedBy, redeemedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}
	// Nothing matched; re-read to report why.
	token, err := r.FindByID(ctx, tx, tokenID)
	if err != nil {
		return err
	}
	if token.IsVoided() {
		return domain.ErrTokenVoided
	}
	return domain.ErrTokenAlreadyUsed
}

func (r *tokenRepo) ClearRedemption(ctx context.Context, tx repository.Tx, tokenID string) error {
	defer timeOp("token.clear_redemption")()

	const q = `
UPDATE course_tokens
   SET enrolment_ref = NULL, redeemed_by = NULL, redeemed_at = NULL
 WHERE id = $1;
`
	cmd, err := execSQL(ctx, r.pool, tx, q, tokenID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *tokenRepo) Void(ctx context.Context, tx repository.Tx, tokenID, notes string, voidedAt time.Time) error {
	defer timeOp("token.void")()

	const q = `
UPDATE course_tokens
   SET voided_at = $2, void_notes = $3
 WHERE id = $1 AND voided_at IS NULL;
`
	cmd, err := execSQL(ctx, r.pool, tx, q, tokenID, voidedAt, notes)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, tx, tokenID); err != nil {
		return err
	}
	return domain.ErrTokenVoided
}

func (r *tokenRepo) Unvoid(ctx context.Context, tx repository.Tx, tokenID string) error {
	defer timeOp("token.unvoid")()

	const q = `
UPDATE course_tokens
   SET voided_at = NULL, void_notes = NULL
 WHERE id = $1 AND voided_at IS NOT NULL;
`
	cmd, err := execSQL(ctx, r.pool, tx, q, tokenID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, tx, tokenID); err != nil {
		return err
	}
	return domain.ErrTokenNotVoided
}

func (r *tokenRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerUserID string) ([]*model.CourseToken, error) {
	defer timeOp("token.list_by_owner")()

	const q = `
SELECT ` + tokenColumns + `
  FROM course_tokens
 WHERE owner_user_id = $1 AND voided_at IS NULL
 ORDER BY created_at DESC, id DESC;
`
	return r.list(ctx, tx, q, ownerUserID)
}

func (r *tokenRepo) ListByCourseAndOwner(ctx context.Context, tx repository.Tx, courseID int64, ownerUserID string) ([]*model.CourseToken, error) {
	defer timeOp("token.list_by_course_and_owner")()

	const q = `
SELECT ` + tokenColumns + `
  FROM course_tokens
 WHERE course_id = $1 AND owner_user_id = $2 AND voided_at IS NULL
 ORDER BY created_at DESC, id DESC;
`
	return r.list(ctx, tx, q, courseID, ownerUserID)
}

func (r *tokenRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.CourseToken, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.CourseToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, token)
	}
	return out, rows.Err()
}

func scanToken(row pgx.Row) (*model.CourseToken, error) {
	var (
		t            model.CourseToken
		enrolmentRef *string
		redeemedBy   *string
		redeemedAt   *time.Time
		voidedAt     *time.Time
		voidNotes    *string
	)
	err := row.Scan(
		&t.ID, &t.Code, &t.CourseID, &t.OwnerUserID, &t.CreatedBy, &t.CreatedAt,
		&enrolmentRef, &redeemedBy, &redeemedAt, &voidedAt, &voidNotes, &t.GroupAccount, &t.Extra,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if redeemedAt != nil {
		t.Redemption = &model.Redemption{
			EnrolmentRef: deref(enrolmentRef),
			RedeemedBy:   deref(redeemedBy),
			RedeemedAt:   *redeemedAt,
		}
	}
	if voidedAt != nil {
		t.Void = &model.Void{VoidedAt: *voidedAt, Notes: deref(voidNotes)}
	}
	return &t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
