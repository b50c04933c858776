package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"course-tokens/internal/domain"
	"course-tokens/internal/domain/model"
	"course-tokens/internal/domain/ports/adapter"
)

type statusFixture struct {
	tokens   *memTokenRepo
	accounts *memAccountRepo
	activity *mockActivity
	uc       *statusUC
	student  *model.Account
	token    *model.CourseToken
}

func newStatusFixture(t *testing.T) *statusFixture {
	t.Helper()
	f := &statusFixture{
		tokens:   newMemTokenRepo(),
		accounts: newMemAccountRepo(),
		activity: newMockActivity(),
	}
	f.uc = NewStatusUseCase(f.tokens, f.accounts, f.activity, nil, 0.84, newTestLogger())

	f.student, _ = model.NewAccount("stu1234", "student@example.com", "Stu", "Dent", "hash")
	f.accounts.Save(context.Background(), nil, f.student)

	f.token, _ = model.NewCourseToken("PALS-aaaa-bbbb-cccc", 20, "owner-1", "admin-1")
	f.tokens.Create(context.Background(), nil, f.token)
	return f
}

func (f *statusFixture) redeem(t *testing.T) {
	t.Helper()
	err := f.tokens.MarkRedeemed(context.Background(), nil, f.token.ID, "enrolment-1", f.student.Email, time.Now())
	if err != nil {
		t.Fatalf("seeding redemption failed: %v", err)
	}
}

func TestStatusUC_Project(t *testing.T) {
	ctx := context.Background()

	t.Run("unredeemed token is available", func(t *testing.T) {
		f := newStatusFixture(t)
		status, err := f.uc.Project(ctx, f.token.ID)
		if err != nil {
			t.Fatalf("Project failed: %v", err)
		}
		if status != model.StatusAvailable {
			t.Errorf("expected available, got %q", status)
		}
	})

	t.Run("redeemed with no downstream signals is assigned", func(t *testing.T) {
		f := newStatusFixture(t)
		f.redeem(t)
		status, _ := f.uc.Project(ctx, f.token.ID)
		if status != model.StatusAssigned {
			t.Errorf("expected assigned, got %q", status)
		}
	})

	t.Run("course view promotes to in-progress", func(t *testing.T) {
		f := newStatusFixture(t)
		f.redeem(t)
		f.activity.viewed[f.student.ID] = true
		status, _ := f.uc.Project(ctx, f.token.ID)
		if status != model.StatusInProgress {
			t.Errorf("expected in_progress, got %q", status)
		}
	})

	t.Run("failing exam grade outranks a course view", func(t *testing.T) {
		f := newStatusFixture(t)
		f.redeem(t)
		f.activity.viewed[f.student.ID] = true
		f.activity.grades[f.student.ID] = &adapter.ExamGrade{Grade: 7.5, MaxGrade: 10} // below 84% of max
		status, _ := f.uc.Project(ctx, f.token.ID)
		if status != model.StatusFailed {
			t.Errorf("expected failed, got %q", status)
		}
	})

	t.Run("passing exam grade is not failed", func(t *testing.T) {
		f := newStatusFixture(t)
		f.redeem(t)
		f.activity.viewed[f.student.ID] = true
		f.activity.grades[f.student.ID] = &adapter.ExamGrade{Grade: 9, MaxGrade: 10}
		status, _ := f.uc.Project(ctx, f.token.ID)
		if status != model.StatusInProgress {
			t.Errorf("expected in_progress, got %q", status)
		}
	})

	t.Run("completion outranks a failing grade", func(t *testing.T) {
		f := newStatusFixture(t)
		f.redeem(t)
		done := time.Now()
		f.activity.completions[f.student.ID] = &done
		f.activity.grades[f.student.ID] = &adapter.ExamGrade{Grade: 1, MaxGrade: 10}
		f.activity.viewed[f.student.ID] = true
		status, _ := f.uc.Project(ctx, f.token.ID)
		if status != model.StatusCompleted {
			t.Errorf("a completed course must never display as failed; got %q", status)
		}
	})

	t.Run("redeemed identity gone from the store degrades to assigned", func(t *testing.T) {
		f := newStatusFixture(t)
		f.redeem(t)
		f.student.Deleted = true
		f.accounts.Save(ctx, nil, f.student)
		status, _ := f.uc.Project(ctx, f.token.ID)
		if status != model.StatusAssigned {
			t.Errorf("expected assigned, got %q", status)
		}
	})

	t.Run("voided token has no display status", func(t *testing.T) {
		f := newStatusFixture(t)
		f.tokens.Void(ctx, nil, f.token.ID, "refund", time.Now())
		_, err := f.uc.Project(ctx, f.token.ID)
		if !errors.Is(err, domain.ErrTokenVoided) {
			t.Fatalf("expected ErrTokenVoided, got %v", err)
		}
	})

	t.Run("unknown token id", func(t *testing.T) {
		f := newStatusFixture(t)
		_, err := f.uc.Project(ctx, "no-such-id")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

// End-to-end scenario: three tokens, one redeemed, one voided.
func TestScenario_BatchRedeemVoidStatus(t *testing.T) {
	ctx := context.Background()
	f := newTokenFixture()
	statusUC := NewStatusUseCase(f.tokens, f.accounts, newMockActivity(), nil, 0.84, newTestLogger())

	batch, err := f.uc.CreateBatch(ctx, CreateBatchRequest{
		CourseID: 16, OwnerEmail: "owner@example.com", FirstName: "Olive", LastName: "Owner",
		Quantity: 3, CreatedBy: "admin-1",
	})
	if err != nil || batch.Created != 3 {
		t.Fatalf("seeding batch failed: %v (created %d)", err, batch.Created)
	}
	owner, _ := f.accounts.FindActiveByEmail(ctx, nil, "owner@example.com")

	exec := newTestExecutor()
	provision := NewProvisionUseCase(f.accounts, exec, fastRetry(), CredentialModeHex, newTestLogger())
	redeemUC := NewRedemptionUseCase(f.tokens, f.accounts, f.courses, f.enrol, provision,
		newTestNotifier(f.mail), OwnershipStrict, "student", newTestLogger())

	// Redeem token #2 for a named redeemee.
	if _, err := redeemUC.Redeem(ctx, RedeemRequest{
		Code:     batch.Tokens[1].Code,
		ActorID:  owner.ID,
		Redeemee: &Redeemee{Email: "e@example.com", FirstName: "Elle", LastName: "Earner"},
	}); err != nil {
		t.Fatalf("redeeming token #2 failed: %v", err)
	}

	// Void token #1.
	if err := f.uc.Void(ctx, batch.Tokens[0].ID, "duplicate order"); err != nil {
		t.Fatalf("voiding token #1 failed: %v", err)
	}

	if _, err := statusUC.Project(ctx, batch.Tokens[0].ID); !errors.Is(err, domain.ErrTokenVoided) {
		t.Errorf("token #1: expected ErrTokenVoided, got %v", err)
	}
	if status, _ := statusUC.Project(ctx, batch.Tokens[1].ID); status != model.StatusAssigned {
		t.Errorf("token #2: expected assigned, got %q", status)
	}
	if status, _ := statusUC.Project(ctx, batch.Tokens[2].ID); status != model.StatusAvailable {
		t.Errorf("token #3: expected available, got %q", status)
	}

	// Voided tokens are excluded from the owner's active list.
	list, _ := f.uc.ListByOwner(ctx, owner.ID)
	if len(list) != 2 {
		t.Errorf("expected 2 active tokens in the owner list, got %d", len(list))
	}
}
