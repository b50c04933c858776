//go:build !integration

package web

import (
	"context"
	"time"

	"course-tokens/internal/domain/model"
	"course-tokens/internal/usecase"

	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type mockTokenUC struct {
	CreateBatchFunc          func(ctx context.Context, req usecase.CreateBatchRequest) (*usecase.BatchResult, error)
	GetByIDFunc              func(ctx context.Context, tokenID string) (*model.CourseToken, error)
	ListByOwnerFunc          func(ctx context.Context, ownerUserID string) ([]*model.CourseToken, error)
	ListByCourseAndOwnerFunc func(ctx context.Context, courseID int64, ownerUserID string) ([]*model.CourseToken, error)
	VoidFunc                 func(ctx context.Context, tokenID, notes string) error
	UnvoidFunc               func(ctx context.Context, tokenID string) error
	UnenrolFunc              func(ctx context.Context, tokenID string) error
	ResendWelcomeFunc        func(ctx context.Context, email string) error
}

var _ usecase.TokenUseCase = (*mockTokenUC)(nil)

func (m *mockTokenUC) CreateBatch(ctx context.Context, req usecase.CreateBatchRequest) (*usecase.BatchResult, error) {
	return m.CreateBatchFunc(ctx, req)
}

func (m *mockTokenUC) GetByID(ctx context.Context, tokenID string) (*model.CourseToken, error) {
	return m.GetByIDFunc(ctx, tokenID)
}

func (m *mockTokenUC) ListByOwner(ctx context.Context, ownerUserID string) ([]*model.CourseToken, error) {
	return m.ListByOwnerFunc(ctx, ownerUserID)
}

func (m *mockTokenUC) ListByCourseAndOwner(ctx context.Context, courseID int64, ownerUserID string) ([]*model.CourseToken, error) {
	return m.ListByCourseAndOwnerFunc(ctx, courseID, ownerUserID)
}

func (m *mockTokenUC) Void(ctx context.Context, tokenID, notes string) error {
	return m.VoidFunc(ctx, tokenID, notes)
}

func (m *mockTokenUC) Unvoid(ctx context.Context, tokenID string) error {
	return m.UnvoidFunc(ctx, tokenID)
}

func (m *mockTokenUC) Unenrol(ctx context.Context, tokenID string) error {
	return m.UnenrolFunc(ctx, tokenID)
}

func (m *mockTokenUC) ResendWelcome(ctx context.Context, email string) error {
	return m.ResendWelcomeFunc(ctx, email)
}

type mockRedeemUC struct {
	RedeemFunc func(ctx context.Context, req usecase.RedeemRequest) (*usecase.RedeemResult, error)
}

var _ usecase.RedemptionUseCase = (*mockRedeemUC)(nil)

func (m *mockRedeemUC) Redeem(ctx context.Context, req usecase.RedeemRequest) (*usecase.RedeemResult, error) {
	return m.RedeemFunc(ctx, req)
}

type mockStatusUC struct {
	ProjectFunc      func(ctx context.Context, tokenID string) (model.TokenStatus, error)
	ProjectTokenFunc func(ctx context.Context, token *model.CourseToken) (model.TokenStatus, error)
	invalidated      []string
}

var _ usecase.StatusUseCase = (*mockStatusUC)(nil)

func (m *mockStatusUC) Project(ctx context.Context, tokenID string) (model.TokenStatus, error) {
	return m.ProjectFunc(ctx, tokenID)
}

func (m *mockStatusUC) ProjectToken(ctx context.Context, token *model.CourseToken) (model.TokenStatus, error) {
	return m.ProjectTokenFunc(ctx, token)
}

func (m *mockStatusUC) Invalidate(ctx context.Context, tokenID string) {
	m.invalidated = append(m.invalidated, tokenID)
}

// fakeLimiter counts calls and allows until the limit is hit.
type fakeLimiter struct {
	calls int
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	f.calls++
	return f.calls <= limit, nil
}
