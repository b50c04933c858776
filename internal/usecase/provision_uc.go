package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"course-tokens/internal/domain"
	"course-tokens/internal/domain/model"
	"course-tokens/internal/domain/ports/repository"
	"course-tokens/internal/infra/logging"
	"course-tokens/internal/infra/retry"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// CredentialMode selects how passwords for newly created accounts are issued.
type CredentialMode string

const (
	// CredentialModeHex issues a random xxx-xxx-xxx-xxx password sent to the
	// user in the welcome email.
	CredentialModeHex CredentialMode = "hex"
	// CredentialModePlaceholder issues a fixed password with a forced change
	// on first login.
	CredentialModePlaceholder CredentialMode = "placeholder"
)

const placeholderPassword = "changeme"

// maxUsernameAttempts bounds the unique-username collision loop.
const maxUsernameAttempts = 10

// ProvisionResult reports the resolved account. PlainPassword is set only
// when a new account was created under CredentialModeHex; it exists solely so
// the caller can include it in the welcome email.
type ProvisionResult struct {
	Account       *model.Account
	IsNew         bool
	PlainPassword string
}

// Compile-time check
var _ ProvisionUseCase = (*provisionUC)(nil)

// ProvisionUseCase finds, reactivates or creates an identity from an email
// address.
type ProvisionUseCase interface {
	ResolveOrCreate(ctx context.Context, email, firstName, lastName string) (*ProvisionResult, error)
	// RenewCredentials issues a fresh credential for an existing active
	// account, for re-sending the welcome email. The old password stops
	// working.
	RenewCredentials(ctx context.Context, email string) (*ProvisionResult, error)
}

type provisionUC struct {
	accounts repository.AccountRepository
	exec     *retry.Executor
	dbRetry  retry.Policy
	mode     CredentialMode
	log      *zerolog.Logger
}

func NewProvisionUseCase(accounts repository.AccountRepository, exec *retry.Executor, dbRetry retry.Policy, mode CredentialMode, logger *zerolog.Logger) *provisionUC {
	return &provisionUC{
		accounts: accounts,
		exec:     exec,
		dbRetry:  dbRetry,
		mode:     mode,
		log:      logger,
	}
}

// ResolveOrCreate looks up an active account by email, reactivating a
// suspended one, or creates a new account with a unique username.
// Email equality is whatever the store defines; no normalization here.
func (p *provisionUC) ResolveOrCreate(ctx context.Context, email, firstName, lastName string) (*ProvisionResult, error) {
	defer logging.TraceDuration(p.log, "ProvisionUC.ResolveOrCreate")()

	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: malformed email", domain.ErrInvalidArgument)
	}

	acct, err := p.accounts.FindActiveByEmail(ctx, repository.NoTX, email)
	if err == nil {
		if acct.Suspended {
			p.reactivate(ctx, acct)
		}
		return &ProvisionResult{Account: acct}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	return p.create(ctx, email, firstName, lastName)
}

// reactivate clears the suspension flag. Failure is logged but non-fatal: the
// flow proceeds with the account as found.
func (p *provisionUC) reactivate(ctx context.Context, acct *model.Account) {
	acct.Suspended = false
	acct.ModifiedAt = time.Now()
	err := p.exec.Execute(ctx, "reactivate-account", p.dbRetry, func(ctx context.Context) error {
		if err := p.accounts.Save(ctx, repository.NoTX, acct); err != nil {
			return retry.Transient(err)
		}
		return nil
	})
	if err != nil {
		acct.Suspended = true
		p.log.Warn().Err(err).Str("account_id", acct.ID).Msg("could not reactivate suspended account; proceeding as found")
		return
	}
	p.log.Info().Str("account_id", acct.ID).Msg("suspended account reactivated")
}

func (p *provisionUC) create(ctx context.Context, email, firstName, lastName string) (*ProvisionResult, error) {
	username, err := p.uniqueUsername(ctx, email)
	if err != nil {
		return nil, err
	}

	plain, hash, forceChange, err := p.issueCredential()
	if err != nil {
		return nil, err
	}

	acct, err := model.NewAccount(username, email, firstName, lastName, hash)
	if err != nil {
		return nil, err
	}
	acct.ForcePasswordChange = forceChange

	err = p.exec.Execute(ctx, "create-account", p.dbRetry, func(ctx context.Context) error {
		if err := p.accounts.Save(ctx, repository.NoTX, acct); err != nil {
			return retry.Transient(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &ProvisionResult{Account: acct, IsNew: true}
	if p.mode != CredentialModePlaceholder {
		res.PlainPassword = plain
	}
	return res, nil
}

// RenewCredentials rotates an existing account's password under the
// configured credential mode so the welcome email can be sent again.
func (p *provisionUC) RenewCredentials(ctx context.Context, email string) (*ProvisionResult, error) {
	defer logging.TraceDuration(p.log, "ProvisionUC.RenewCredentials")()

	acct, err := p.accounts.FindActiveByEmail(ctx, repository.NoTX, email)
	if err != nil {
		return nil, err
	}

	plain, hash, forceChange, err := p.issueCredential()
	if err != nil {
		return nil, err
	}
	acct.PasswordHash = hash
	acct.ForcePasswordChange = forceChange

	err = p.exec.Execute(ctx, "renew-credentials", p.dbRetry, func(ctx context.Context) error {
		if err := p.accounts.Save(ctx, repository.NoTX, acct); err != nil {
			return retry.Transient(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &ProvisionResult{Account: acct}
	if p.mode != CredentialModePlaceholder {
		res.PlainPassword = plain
	}
	return res, nil
}

// issueCredential produces the plain credential and its hash per the
// configured mode. Placeholder mode forces a change on first login.
func (p *provisionUC) issueCredential() (plain, hash string, forceChange bool, err error) {
	switch p.mode {
	case CredentialModePlaceholder:
		plain = placeholderPassword
		forceChange = true
	default:
		plain, err = generateHexPassword()
		if err != nil {
			return "", "", false, err
		}
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", "", false, err
	}
	return plain, string(h), forceChange, nil
}

// uniqueUsername retries local-part plus random suffix against the store's
// uniqueness check, bounded by maxUsernameAttempts.
func (p *provisionUC) uniqueUsername(ctx context.Context, email string) (string, error) {
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		username, err := generateUsername(email)
		if err != nil {
			return "", err
		}
		exists, err := p.accounts.UsernameExists(ctx, repository.NoTX, username)
		if err != nil {
			return "", err
		}
		if !exists {
			return username, nil
		}
	}
	return "", fmt.Errorf("%w: could not find a free username after %d attempts", domain.ErrDuplicateUsername, maxUsernameAttempts)
}
