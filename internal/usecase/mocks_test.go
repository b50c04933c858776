package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"course-tokens/internal/domain"
	"course-tokens/internal/domain/model"
	"course-tokens/internal/domain/ports/adapter"
	"course-tokens/internal/domain/ports/repository"
	"course-tokens/internal/infra/retry"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// mockTxManager runs the callback without a live transaction; the in-memory
// repositories accept NoTX everywhere.
type mockTxManager struct{}

func (mockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestExecutor() *retry.Executor {
	return retry.NewExecutor(newTestLogger())
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, Backoff: time.Millisecond}
}

// memTokenRepo is a small in-memory implementation used by unit tests.
// MarkRedeemed takes the same conditional-update shape as the SQL repo so the
// concurrency property can be exercised in-process.
type memTokenRepo struct {
	mu        sync.Mutex
	store     map[string]*model.CourseToken // by ID
	createErr error                         // used by tests to simulate insert failures
	markErr   error                         // used by tests to simulate MarkRedeemed storage failures
	failAfter int                           // fail Create once this many tokens exist (0 = never)
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{store: make(map[string]*model.CourseToken)}
}

func (m *memTokenRepo) Create(ctx context.Context, tx repository.Tx, token *model.CourseToken) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAfter > 0 && len(m.store) >= m.failAfter {
		return fmt.Errorf("storage unavailable")
	}
	for _, t := range m.store {
		if t.Code == token.Code {
			return domain.ErrDuplicateCode
		}
	}
	cp := *token
	m.store[token.ID] = &cp
	return nil
}

func (m *memTokenRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.CourseToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.store {
		if t.Code == code {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memTokenRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.CourseToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTokenRepo) MarkRedeemed(ctx context.Context, tx repository.Tx, tokenID, enrolmentRef, redeemedBy string, redeemedAt time.Time) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[tokenID]
	if !ok {
		return domain.ErrNotFound
	}
	if t.Void != nil {
		return domain.ErrTokenVoided
	}
	if t.Redemption != nil {
		return domain.ErrTokenAlreadyUsed
	}
	t.Redemption = &model.Redemption{EnrolmentRef: enrolmentRef, RedeemedBy: redeemedBy, RedeemedAt: redeemedAt}
	return nil
}

func (m *memTokenRepo) ClearRedemption(ctx context.Context, tx repository.Tx, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[tokenID]
	if !ok {
		return domain.ErrNotFound
	}
	t.Redemption = nil
	return nil
}

func (m *memTokenRepo) Void(ctx context.Context, tx repository.Tx, tokenID, notes string, voidedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[tokenID]
	if !ok {
		return domain.ErrNotFound
	}
	if t.Void != nil {
		return domain.ErrTokenVoided
	}
	t.Void = &model.Void{VoidedAt: voidedAt, Notes: notes}
	return nil
}

func (m *memTokenRepo) Unvoid(ctx context.Context, tx repository.Tx, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[tokenID]
	if !ok {
		return domain.ErrNotFound
	}
	if t.Void == nil {
		return domain.ErrTokenNotVoided
	}
	t.Void = nil
	return nil
}

func (m *memTokenRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerUserID string) ([]*model.CourseToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CourseToken
	for _, t := range m.store {
		if t.OwnerUserID == ownerUserID && t.Void == nil {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTokenRepo) ListByCourseAndOwner(ctx context.Context, tx repository.Tx, courseID int64, ownerUserID string) ([]*model.CourseToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.CourseToken
	for _, t := range m.store {
		if t.CourseID == courseID && t.OwnerUserID == ownerUserID && t.Void == nil {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// memAccountRepo is the in-memory identity store.
type memAccountRepo struct {
	mu                    sync.Mutex
	store                 map[string]*model.Account // by ID
	saveErr               error
	FindActiveByEmailFunc func(ctx context.Context, tx repository.Tx, email string) (*model.Account, error)
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{store: make(map[string]*model.Account)}
}

func (m *memAccountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.store[a.ID] = &cp
	return nil
}

func (m *memAccountRepo) FindActiveByEmail(ctx context.Context, tx repository.Tx, email string) (*model.Account, error) {
	if m.FindActiveByEmailFunc != nil {
		return m.FindActiveByEmailFunc(ctx, tx, email)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.store {
		if a.Email == email && !a.Deleted {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memAccountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccountRepo) UsernameExists(ctx context.Context, tx repository.Tx, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.store {
		if a.Username == username {
			return true, nil
		}
	}
	return false, nil
}

// mockCourseRegistry serves a fixed course list.
type mockCourseRegistry struct {
	courses map[int64]*model.Course
}

func newMockCourseRegistry(courses ...*model.Course) *mockCourseRegistry {
	m := &mockCourseRegistry{courses: make(map[int64]*model.Course)}
	for _, c := range courses {
		m.courses[c.ID] = c
	}
	return m
}

func (m *mockCourseRegistry) GetCourse(ctx context.Context, id int64) (*model.Course, error) {
	c, ok := m.courses[id]
	if !ok {
		return nil, domain.ErrCourseNotFound
	}
	cp := *c
	return &cp, nil
}

// mockEnrolment records enrolments in memory.
type mockEnrolment struct {
	mu         sync.Mutex
	next       int
	enrolments map[string][2]string // ref -> [courseID, userID]
	enrolErr   error
	unenrolled []string
}

func newMockEnrolment() *mockEnrolment {
	return &mockEnrolment{enrolments: make(map[string][2]string)}
}

func (m *mockEnrolment) Enrol(ctx context.Context, courseID int64, userID, role string) (string, error) {
	if m.enrolErr != nil {
		return "", m.enrolErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	ref := fmt.Sprintf("enrolment-%d", m.next)
	m.enrolments[ref] = [2]string{fmt.Sprint(courseID), userID}
	return ref, nil
}

func (m *mockEnrolment) Unenrol(ctx context.Context, enrolmentRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.enrolments[enrolmentRef]; !ok {
		return domain.ErrEnrolmentNotFound
	}
	delete(m.enrolments, enrolmentRef)
	m.unenrolled = append(m.unenrolled, enrolmentRef)
	return nil
}

func (m *mockEnrolment) FindEnrolment(ctx context.Context, courseID int64, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ref, e := range m.enrolments {
		if e[0] == fmt.Sprint(courseID) && e[1] == userID {
			return ref, nil
		}
	}
	return "", domain.ErrEnrolmentNotFound
}

func (m *mockEnrolment) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.enrolments)
}

// mockActivity serves canned downstream signals.
type mockActivity struct {
	viewed      map[string]bool       // userID -> viewed
	completions map[string]*time.Time // userID -> completion time
	grades      map[string]*adapter.ExamGrade
}

func newMockActivity() *mockActivity {
	return &mockActivity{
		viewed:      make(map[string]bool),
		completions: make(map[string]*time.Time),
		grades:      make(map[string]*adapter.ExamGrade),
	}
}

func (m *mockActivity) HasViewedCourse(ctx context.Context, userID string, courseID int64) (bool, error) {
	return m.viewed[userID], nil
}

func (m *mockActivity) CompletionTime(ctx context.Context, userID string, courseID int64) (*time.Time, error) {
	return m.completions[userID], nil
}

func (m *mockActivity) ExamGrade(ctx context.Context, userID string, courseID int64) (*adapter.ExamGrade, error) {
	return m.grades[userID], nil
}

// mockMail records sent messages.
type mockMail struct {
	mu      sync.Mutex
	sent    []adapter.MailMessage
	sendErr error
}

func (m *mockMail) Send(ctx context.Context, msg adapter.MailMessage) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockMail) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func newTestNotifier(mail adapter.MailSender) *notifier {
	return newNotifier(mail, newTestExecutor(), retry.Policy{MaxAttempts: 2, Backoff: time.Millisecond},
		EmailFormatPlain, "support@example.com", "Support", "https://learn.example.com/login/", newTestLogger())
}
