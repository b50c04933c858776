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
var _ repository.AccountRepository = (*accountRepo)(nil)

type accountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) repository.AccountRepository {
	return &accountRepo{pool: pool}
}

const accountColumns = `id, username, email, first_name, last_name, password_hash,
       suspended, deleted, force_password_change, created_at, modified_at`

// Save creates or updates an account. ON CONFLICT covers both the initial
// insert and later flag changes (reactivation, forced password change).
func (r *accountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	defer timeOp("account.save")()

	a.ModifiedAt = time.Now()

	const q = `
INSERT INTO accounts (id, username, email, first_name, last_name, password_hash,
                      suspended, deleted, force_password_change, created_at, modified_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
  username = EXCLUDED.username,
  email = EXCLUDED.email,
  first_name = EXCLUDED.first_name,
  last_name = EXCLUDED.last_name,
  password_hash = EXCLUDED.password_hash,
  suspended = EXCLUDED.suspended,
  deleted = EXCLUDED.deleted,
  force_password_change = EXCLUDED.force_password_change,
  modified_at = EXCLUDED.modified_at;
`
	_, err := execSQL(ctx, r.pool, tx, q,
		a.ID, a.Username, a.Email, a.FirstName, a.LastName, a.PasswordHash,
		a.Suspended, a.Deleted, a.ForcePasswordChange, a.CreatedAt, a.ModifiedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrDuplicateUsername
	}
	return err
}

// FindActiveByEmail resolves the account holding an email address. Matching
// follows the store's collation; callers pass the address as given.
func (r *accountRepo) FindActiveByEmail(ctx context.Context, tx repository.Tx, email string) (*model.Account, error) {
	defer timeOp("account.find_by_email")()

	const q = `
SELECT ` + accountColumns + `
  FROM accounts
 WHERE email = $1 AND deleted = FALSE;
`
	row, err := pickRow(ctx, r.pool, tx, q, email)
	if err != nil {
		return nil, err
	}
	return scanAccount(row)
}

func (r *accountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	defer timeOp("account.find_by_id")()

	row, err := pickRow(ctx, r.pool, tx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanAccount(row)
}

func (r *accountRepo) UsernameExists(ctx context.Context, tx repository.Tx, username string) (bool, error) {
	defer timeOp("account.username_exists")()

	row, err := pickRow(ctx, r.pool, tx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1);`, username)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID, &a.Username, &a.Email, &a.FirstName, &a.LastName, &a.PasswordHash,
		&a.Suspended, &a.Deleted, &a.ForcePasswordChange, &a.CreatedAt, &a.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &a, nil
}
