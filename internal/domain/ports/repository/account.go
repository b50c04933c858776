package repository

import (
	"context"

	"course-tokens/internal/domain/model"
)

// AccountRepository is the port for the identity store.
type AccountRepository interface {
	Save(ctx context.Context, tx Tx, a *model.Account) error
	// FindActiveByEmail looks up a non-deleted account by email. Equality is
	// whatever the store's uniqueness constraint defines (case sensitivity
	// included). Returns domain.ErrNotFound if missing.
	FindActiveByEmail(ctx context.Context, tx Tx, email string) (*model.Account, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.Account, error)
	// UsernameExists backs the unique-username collision loop during
	// provisioning.
	UsernameExists(ctx context.Context, tx Tx, username string) (bool, error)
}
