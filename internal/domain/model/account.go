package model

import (
	"strings"
	"time"

	"course-tokens/internal/domain"

	"github.com/google/uuid"
)

// Account is an identity-store user keyed by email and username.
// Suspended and Deleted mirror the flags of the backing store; a deleted
// account never matches lookups, a suspended one is reactivated on demand.
type Account struct {
	ID                  string
	Username            string
	Email               string
	FirstName           string
	LastName            string
	PasswordHash        string
	ForcePasswordChange bool
	Suspended           bool
	Deleted             bool
	CreatedAt           time.Time
	ModifiedAt          time.Time
}

func NewAccount(username, email, firstName, lastName, passwordHash string) (*Account, error) {
	if username == "" || email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		ModifiedAt:   now,
	}, nil
}

// FullName is used in email salutations.
func (a *Account) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

func (a *Account) IsZero() bool { return a == nil || a.ID == "" }
