package usecase

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"course-tokens/internal/domain"
	"course-tokens/internal/domain/model"

	"golang.org/x/crypto/bcrypt"
)

func TestProvisionUC_ResolveOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("returns existing active account unchanged", func(t *testing.T) {
		accounts := newMemAccountRepo()
		existing, _ := model.NewAccount("jane1234", "jane@example.com", "Jane", "Doe", "hash")
		accounts.Save(ctx, nil, existing)

		uc := NewProvisionUseCase(accounts, newTestExecutor(), fastRetry(), CredentialModeHex, newTestLogger())
		res, err := uc.ResolveOrCreate(ctx, "jane@example.com", "Jane", "Doe")
		if err != nil {
			t.Fatalf("ResolveOrCreate failed: %v", err)
		}
		if res.IsNew {
			t.Error("expected existing account, got IsNew")
		}
		if res.Account.ID != existing.ID {
			t.Errorf("expected account %s, got %s", existing.ID, res.Account.ID)
		}
		if res.PlainPassword != "" {
			t.Error("existing accounts must not get a new credential")
		}
	})

	t.Run("reactivates a suspended account", func(t *testing.T) {
		accounts := newMemAccountRepo()
		suspended, _ := model.NewAccount("bob5678", "bob@example.com", "Bob", "Ray", "hash")
		suspended.Suspended = true
		accounts.Save(ctx, nil, suspended)

		uc := NewProvisionUseCase(accounts, newTestExecutor(), fastRetry(), CredentialModeHex, newTestLogger())
		res, err := uc.ResolveOrCreate(ctx, "bob@example.com", "Bob", "Ray")
		if err != nil {
			t.Fatalf("ResolveOrCreate failed: %v", err)
		}
		if res.Account.Suspended {
			t.Error("expected suspension cleared on the returned account")
		}
		saved, _ := accounts.FindByID(ctx, nil, suspended.ID)
		if saved.Suspended {
			t.Error("expected suspension cleared in the store")
		}
	})

	t.Run("reactivation failure is non-fatal", func(t *testing.T) {
		accounts := newMemAccountRepo()
		suspended, _ := model.NewAccount("ann9999", "ann@example.com", "Ann", "Lee", "hash")
		suspended.Suspended = true
		accounts.Save(ctx, nil, suspended)
		accounts.saveErr = errors.New("db down")

		uc := NewProvisionUseCase(accounts, newTestExecutor(), fastRetry(), CredentialModeHex, newTestLogger())
		res, err := uc.ResolveOrCreate(ctx, "ann@example.com", "Ann", "Lee")
		if err != nil {
			t.Fatalf("expected the flow to proceed as found, got %v", err)
		}
		if res.IsNew {
			t.Error("expected existing account")
		}
	})

	t.Run("creates a new account with hex credential", func(t *testing.T) {
		accounts := newMemAccountRepo()
		uc := NewProvisionUseCase(accounts, newTestExecutor(), fastRetry(), CredentialModeHex, newTestLogger())

		res, err := uc.ResolveOrCreate(ctx, "New.Student@example.com", "New", "Student")
		if err != nil {
			t.Fatalf("ResolveOrCreate failed: %v", err)
		}
		if !res.IsNew {
			t.Fatal("expected a new account")
		}
		if !regexp.MustCompile(`^new\.student[0-9]{4}$`).MatchString(res.Account.Username) {
			t.Errorf("unexpected username %q", res.Account.Username)
		}
		if !regexp.MustCompile(`^[0-9a-f]{3}-[0-9a-f]{3}-[0-9a-f]{3}-[0-9a-f]{3}$`).MatchString(res.PlainPassword) {
			t.Errorf("unexpected credential format %q", res.PlainPassword)
		}
		if res.Account.ForcePasswordChange {
			t.Error("hex mode must not force a password change")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(res.Account.PasswordHash), []byte(res.PlainPassword)); err != nil {
			t.Error("stored hash does not match issued credential")
		}
		if saved, _ := accounts.FindByID(ctx, nil, res.Account.ID); saved == nil {
			t.Error("account was not persisted")
		}
	})

	t.Run("placeholder mode forces a password change", func(t *testing.T) {
		accounts := newMemAccountRepo()
		uc := NewProvisionUseCase(accounts, newTestExecutor(), fastRetry(), CredentialModePlaceholder, newTestLogger())

		res, err := uc.ResolveOrCreate(ctx, "legacy@example.com", "Legacy", "Path")
		if err != nil {
			t.Fatalf("ResolveOrCreate failed: %v", err)
		}
		if !res.Account.ForcePasswordChange {
			t.Error("placeholder mode must force a password change")
		}
		if res.PlainPassword != "" {
			t.Error("placeholder mode must not expose a generated credential")
		}
	})

	t.Run("renews the credential of an existing account", func(t *testing.T) {
		accounts := newMemAccountRepo()
		existing, _ := model.NewAccount("jane1234", "jane@example.com", "Jane", "Doe", "old-hash")
		accounts.Save(ctx, nil, existing)

		uc := NewProvisionUseCase(accounts, newTestExecutor(), fastRetry(), CredentialModeHex, newTestLogger())
		res, err := uc.RenewCredentials(ctx, "jane@example.com")
		if err != nil {
			t.Fatalf("RenewCredentials failed: %v", err)
		}
		if res.PlainPassword == "" {
			t.Fatal("expected a fresh credential issued")
		}
		saved, _ := accounts.FindByID(ctx, nil, existing.ID)
		if saved.PasswordHash == "old-hash" {
			t.Error("expected the stored hash rotated")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(saved.PasswordHash), []byte(res.PlainPassword)); err != nil {
			t.Error("stored hash does not match the issued credential")
		}
	})

	t.Run("renewal in placeholder mode forces a password change", func(t *testing.T) {
		accounts := newMemAccountRepo()
		existing, _ := model.NewAccount("bob5678", "bob@example.com", "Bob", "Ray", "old-hash")
		accounts.Save(ctx, nil, existing)

		uc := NewProvisionUseCase(accounts, newTestExecutor(), fastRetry(), CredentialModePlaceholder, newTestLogger())
		res, err := uc.RenewCredentials(ctx, "bob@example.com")
		if err != nil {
			t.Fatalf("RenewCredentials failed: %v", err)
		}
		if !res.Account.ForcePasswordChange {
			t.Error("placeholder renewal must force a password change")
		}
		if res.PlainPassword != "" {
			t.Error("placeholder mode must not expose a generated credential")
		}
	})

	t.Run("renewal for an unknown email is NotFound", func(t *testing.T) {
		uc := NewProvisionUseCase(newMemAccountRepo(), newTestExecutor(), fastRetry(), CredentialModeHex, newTestLogger())
		if _, err := uc.RenewCredentials(ctx, "ghost@example.com"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("rejects malformed email", func(t *testing.T) {
		uc := NewProvisionUseCase(newMemAccountRepo(), newTestExecutor(), fastRetry(), CredentialModeHex, newTestLogger())
		_, err := uc.ResolveOrCreate(ctx, "not-an-email", "X", "Y")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
