package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	reservationerrors "labreserve/internal/reservations/errors"
	"labreserve/internal/reservations/validator"
	"labreserve/internal/timegrid"
	"labreserve/pkg/config"
	mongotx "labreserve/pkg/db/mongo"
	apperrors "labreserve/pkg/errors"
	"labreserve/pkg/kafka"
	"labreserve/pkg/logger"
	"labreserve/pkg/model"
)

// ────────────────────────────────────────────────
// Mock repositories for testing
// ────────────────────────────────────────────────

type mockReservationRepository struct {
	stored     map[string]*model.Reservation
	nextID     int
	createFunc func(ctx context.Context, res *model.Reservation) error
	updateFunc func(ctx context.Context, id string, res *model.Reservation) error
}

func newMockReservationRepository() *mockReservationRepository {
	return &mockReservationRepository{stored: map[string]*model.Reservation{}}
}

// copyReservation isolates stored records from callers the way production
// storage does: a shallow copy would share the Session pointer, letting
// service-side mutations leak into "storage" even when a write fails.
func copyReservation(res *model.Reservation) *model.Reservation {
	copied := *res
	if res.Session != nil {
		session := *res.Session
		copied.Session = &session
	}
	return &copied
}

func (m *mockReservationRepository) Create(ctx context.Context, res *model.Reservation) error {
	if m.createFunc != nil {
		if err := m.createFunc(ctx, res); err != nil {
			return err
		}
	}
	m.nextID++
	res.ID = fmt.Sprintf("%024x", m.nextID)
	m.stored[res.ID] = copyReservation(res)
	return nil
}

func (m *mockReservationRepository) FindByID(ctx context.Context, id string) (*model.Reservation, error) {
	res, ok := m.stored[id]
	if !ok {
		return nil, reservationerrors.ErrNotFound
	}
	return copyReservation(res), nil
}

func (m *mockReservationRepository) FindByNumber(ctx context.Context, number string) (*model.Reservation, error) {
	for _, res := range m.stored {
		if res.Number == number {
			return copyReservation(res), nil
		}
	}
	return nil, reservationerrors.ErrNotFound
}

func (m *mockReservationRepository) FindCommitted(ctx context.Context, resourceID, date string) ([]*model.Reservation, error) {
	var out []*model.Reservation
	for _, res := range m.stored {
		if res.ResourceID == resourceID && res.Date == date &&
			(res.Status == model.StatusApproved || res.Status == model.StatusActive) {
			out = append(out, copyReservation(res))
		}
	}
	return out, nil
}

func (m *mockReservationRepository) FindByHolder(ctx context.Context, holderID string, limit int, offset int64) ([]*model.Reservation, error) {
	var out []*model.Reservation
	for _, res := range m.stored {
		if res.HolderID == holderID {
			out = append(out, copyReservation(res))
		}
	}
	return out, nil
}

func (m *mockReservationRepository) CountByHolder(ctx context.Context, holderID string) (int64, error) {
	found, _ := m.FindByHolder(ctx, holderID, 0, 0)
	return int64(len(found)), nil
}

func (m *mockReservationRepository) FindAll(ctx context.Context, status string, limit int, offset int64) ([]*model.Reservation, error) {
	var out []*model.Reservation
	for _, res := range m.stored {
		if status == "" || res.Status == status {
			out = append(out, copyReservation(res))
		}
	}
	return out, nil
}

func (m *mockReservationRepository) Count(ctx context.Context, status string) (int64, error) {
	found, _ := m.FindAll(ctx, status, 0, 0)
	return int64(len(found)), nil
}

func (m *mockReservationRepository) Update(ctx context.Context, id string, res *model.Reservation) error {
	if m.updateFunc != nil {
		if err := m.updateFunc(ctx, id, res); err != nil {
			return err
		}
	}
	if _, ok := m.stored[id]; !ok {
		return reservationerrors.ErrNotFound
	}
	m.stored[id] = copyReservation(res)
	return nil
}

func (m *mockReservationRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(nil)
}

type mockLockRepository struct {
	creates int
	deletes int
	held    map[string]bool
}

func newMockLockRepository() *mockLockRepository {
	return &mockLockRepository{held: map[string]bool{}}
}

func (m *mockLockRepository) Create(ctx context.Context, lock *model.ReservationLock) (*model.ReservationLock, error) {
	m.creates++
	m.held[lock.ID] = true
	return lock, nil
}

func (m *mockLockRepository) Delete(ctx context.Context, lockID string) error {
	m.deletes++
	delete(m.held, lockID)
	return nil
}

type mockLedger struct {
	debits  []int
	balance time.Duration
}

func (m *mockLedger) Debit(ctx context.Context, holderID string, minutes int) (time.Duration, bool, error) {
	m.debits = append(m.debits, minutes)
	amount := time.Duration(minutes) * time.Minute
	overtime := amount > m.balance
	m.balance -= amount
	if m.balance < 0 {
		m.balance = 0
	}
	return m.balance, overtime, nil
}

// ────────────────────────────────────────────────
// Fixtures
// ────────────────────────────────────────────────

type lifecycleFixture struct {
	service *reservationService
	repo    *mockReservationRepository
	locks   *mockLockRepository
	ledger  *mockLedger
	roomID  string
	wsID    string
	now     time.Time
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()

	log := logger.New(logger.Config{Level: "error", Service: "test"})
	cfg := &config.Config{
		Log:            log,
		LockTTL:        10 * time.Second,
		MinDurationMin: 1,
		MaxDurationMin: 480,
	}

	repo := newMockReservationRepository()
	locks := newMockLockRepository()
	ledger := &mockLedger{balance: 10 * time.Hour}

	resources, roomID, wsID := labSetup()
	detector := NewConflictDetector(repo, &mockScheduleSource{}, resources)

	svc := NewReservationService(
		repo,
		locks,
		validator.NewReservationValidator(log, cfg.MinDurationMin, cfg.MaxDurationMin),
		detector,
		resources,
		ledger,
		kafka.NopPublisher{},
		timegrid.New(time.UTC),
		cfg,
	).(*reservationService)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &lifecycleFixture{
		service: svc,
		repo:    repo,
		locks:   locks,
		ledger:  ledger,
		roomID:  roomID,
		wsID:    wsID,
		now:     now,
	}
}

const holderID = "665f1f77bcf86cd799439033"

func (f *lifecycleFixture) request(resourceID string) *model.Reservation {
	return &model.Reservation{
		HolderID:   holderID,
		ResourceID: resourceID,
		Date:       "2026-06-01",
		StartTime:  "09:00",
		EndTime:    "10:00",
		Purpose:    "thesis compilation runs",
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected AppError with code %s, got nil", code)
	}
	appErr := apperrors.AsAppError(err)
	if appErr.Code != code {
		t.Fatalf("expected code %s, got %s (%v)", code, appErr.Code, err)
	}
}

// ────────────────────────────────────────────────
// Creation policy
// ────────────────────────────────────────────────

func TestCreate_AdminIsAutoApproved(t *testing.T) {
	f := newLifecycleFixture(t)

	res := f.request(f.roomID)
	if err := f.service.Create(context.Background(), "admin-1", model.RoleAdmin, res, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Status != model.StatusApproved {
		t.Errorf("expected approved, got %s", res.Status)
	}
	if res.ApprovedBy != "admin-1" || res.ApprovedAt == nil {
		t.Errorf("expected approver to be recorded, got %q / %v", res.ApprovedBy, res.ApprovedAt)
	}
	if !strings.HasPrefix(res.Number, "RSV-20260601-") {
		t.Errorf("unexpected reservation number %q", res.Number)
	}
}

func TestCreate_StudentGoesPendingDespiteConflict(t *testing.T) {
	f := newLifecycleFixture(t)

	first := f.request(f.roomID)
	if err := f.service.Create(context.Background(), "admin-1", model.RoleAdmin, first, nil); err != nil {
		t.Fatalf("seed create failed: %v", err)
	}

	second := f.request(f.roomID)
	if err := f.service.Create(context.Background(), holderID, model.RoleStudent, second, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Status != model.StatusPending {
		t.Errorf("expected pending, got %s", second.Status)
	}
}

func TestCreate_FacultyRoomConflictIsNotPersisted(t *testing.T) {
	f := newLifecycleFixture(t)

	seed := f.request(f.roomID)
	if err := f.service.Create(context.Background(), "admin-1", model.RoleAdmin, seed, nil); err != nil {
		t.Fatalf("seed create failed: %v", err)
	}
	persisted := len(f.repo.stored)

	clash := f.request(f.roomID)
	clash.HolderID = "665f1f77bcf86cd799439044"
	err := f.service.Create(context.Background(), "665f1f77bcf86cd799439044", model.RoleFaculty, clash, nil)
	assertCode(t, err, apperrors.CodeConflict)

	if len(f.repo.stored) != persisted {
		t.Errorf("conflicting request must not be persisted, stored=%d", len(f.repo.stored))
	}
	if f.locks.creates != 1 || f.locks.deletes != 1 {
		t.Errorf("expected lock to be acquired and released once, got %d/%d", f.locks.creates, f.locks.deletes)
	}
}

func TestCreate_FacultyRoomWithoutConflictIsApproved(t *testing.T) {
	f := newLifecycleFixture(t)

	res := f.request(f.roomID)
	res.HolderID = "665f1f77bcf86cd799439044"
	if err := f.service.Create(context.Background(), "665f1f77bcf86cd799439044", model.RoleFaculty, res, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != model.StatusApproved {
		t.Errorf("expected approved, got %s", res.Status)
	}
}

func TestCreate_FacultyWorkstationGoesPending(t *testing.T) {
	f := newLifecycleFixture(t)

	res := f.request(f.wsID)
	res.HolderID = "665f1f77bcf86cd799439044"
	if err := f.service.Create(context.Background(), "665f1f77bcf86cd799439044", model.RoleFaculty, res, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != model.StatusPending {
		t.Errorf("expected pending, got %s", res.Status)
	}
	if f.locks.creates != 0 {
		t.Errorf("workstation requests must not take the slot lock")
	}
}

func TestCreate_RejectsPastStart(t *testing.T) {
	f := newLifecycleFixture(t)

	res := f.request(f.roomID)
	res.Date = "2026-04-30"
	err := f.service.Create(context.Background(), holderID, model.RoleStudent, res, nil)
	assertCode(t, err, apperrors.CodeValidation)
}

func TestCreate_StudentCannotBookForOthers(t *testing.T) {
	f := newLifecycleFixture(t)

	res := f.request(f.roomID)
	err := f.service.Create(context.Background(), "someone-else", model.RoleStudent, res, nil)
	assertCode(t, err, apperrors.CodeForbidden)
}

func TestCreate_DurationRequestDerivesEndTime(t *testing.T) {
	f := newLifecycleFixture(t)

	res := f.request(f.roomID)
	res.EndTime = ""
	duration := 90
	if err := f.service.Create(context.Background(), holderID, model.RoleStudent, res, &duration); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EndTime != "10:30" {
		t.Errorf("expected derived end time 10:30, got %s", res.EndTime)
	}
	if res.EndMin-res.StartMin != 90 {
		t.Errorf("expected 90 minute interval, got %d", res.EndMin-res.StartMin)
	}
}

func TestCreate_RetriesOnNumberCollision(t *testing.T) {
	f := newLifecycleFixture(t)

	attempts := 0
	f.repo.createFunc = func(ctx context.Context, res *model.Reservation) error {
		attempts++
		if attempts == 1 {
			return reservationerrors.ErrNumberTaken
		}
		return nil
	}

	res := f.request(f.roomID)
	if err := f.service.Create(context.Background(), holderID, model.RoleStudent, res, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected one retry after the collision, got %d attempts", attempts)
	}
}

// ────────────────────────────────────────────────
// Transition guards
// ────────────────────────────────────────────────

func (f *lifecycleFixture) seed(t *testing.T, role string) *model.Reservation {
	t.Helper()
	res := f.request(f.wsID)
	requester := holderID
	if role == model.RoleAdmin {
		requester = "admin-1"
		res.HolderID = holderID
	}
	if err := f.service.Create(context.Background(), requester, role, res, nil); err != nil {
		t.Fatalf("seed create failed: %v", err)
	}
	return res
}

func TestTransition_ApproveFromPending(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleStudent)

	updated, err := f.service.Transition(context.Background(), res.ID, ActionApprove, "admin-1", model.RoleAdmin, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != model.StatusApproved || updated.ApprovedBy != "admin-1" || updated.ApprovedAt == nil {
		t.Errorf("approval not recorded: %+v", updated)
	}
}

func TestTransition_ApproveRechecksConflicts(t *testing.T) {
	f := newLifecycleFixture(t)

	first := f.seed(t, model.RoleStudent)
	second := f.request(f.wsID)
	if err := f.service.Create(context.Background(), holderID, model.RoleStudent, second, nil); err != nil {
		t.Fatalf("seed create failed: %v", err)
	}

	if _, err := f.service.Transition(context.Background(), first.ID, ActionApprove, "admin-1", model.RoleAdmin, "", nil); err != nil {
		t.Fatalf("first approval failed: %v", err)
	}

	// The second overlapping pending loses: first-approved wins.
	_, err := f.service.Transition(context.Background(), second.ID, ActionApprove, "admin-1", model.RoleAdmin, "", nil)
	assertCode(t, err, apperrors.CodeConflict)

	stored, err := f.service.GetByID(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != model.StatusPending {
		t.Errorf("losing reservation must stay pending, got %s", stored.Status)
	}
	if f.locks.creates != 2 || f.locks.deletes != 2 {
		t.Errorf("expected each approval to take and release the slot lock, got %d/%d", f.locks.creates, f.locks.deletes)
	}
}

func TestTransition_StudentCannotApprove(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleStudent)

	_, err := f.service.Transition(context.Background(), res.ID, ActionApprove, holderID, model.RoleStudent, "", nil)
	assertCode(t, err, apperrors.CodeForbidden)
}

func TestTransition_ApproveFromApprovedFails(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleAdmin)

	_, err := f.service.Transition(context.Background(), res.ID, ActionApprove, "admin-1", model.RoleAdmin, "", nil)
	assertCode(t, err, apperrors.CodeInvalidTransition)
}

func TestTransition_RejectAppendsReason(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleStudent)

	updated, err := f.service.Transition(context.Background(), res.ID, ActionReject, "admin-1", model.RoleAdmin, "lab closed for maintenance", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != model.StatusRejected {
		t.Errorf("expected rejected, got %s", updated.Status)
	}
	if !strings.Contains(updated.Notes, "lab closed for maintenance") {
		t.Errorf("expected reason in notes, got %q", updated.Notes)
	}
}

func TestTransition_StartOpensSession(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleAdmin)

	updated, err := f.service.Transition(context.Background(), res.ID, ActionStart, holderID, model.RoleStudent, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != model.StatusActive || updated.StartedAt == nil {
		t.Errorf("start not recorded: %+v", updated)
	}
	if !updated.Session.Open() {
		t.Error("expected an open usage session")
	}
	if !updated.Session.TimeIn.Equal(f.now) {
		t.Errorf("expected time_in %v, got %v", f.now, updated.Session.TimeIn)
	}
}

func TestTransition_StartWithExplicitTimeIn(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleAdmin)

	in := f.now.Add(-20 * time.Minute)
	updated, err := f.service.Transition(context.Background(), res.ID, ActionStart, holderID, model.RoleStudent, "", &in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.Session.TimeIn.Equal(in) {
		t.Errorf("expected supplied time_in %v, got %v", in, updated.Session.TimeIn)
	}
}

func TestTransition_StartFromPendingFails(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleStudent)

	_, err := f.service.Transition(context.Background(), res.ID, ActionStart, holderID, model.RoleStudent, "", nil)
	assertCode(t, err, apperrors.CodeInvalidTransition)
}

func TestTransition_CompleteClosesOpenSessionAndDebits(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleAdmin)

	in := f.now.Add(-90 * time.Minute)
	if _, err := f.service.Transition(context.Background(), res.ID, ActionStart, holderID, model.RoleStudent, "", &in); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	updated, err := f.service.Transition(context.Background(), res.ID, ActionComplete, "admin-1", model.RoleAdmin, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != model.StatusCompleted || updated.CompletedAt == nil {
		t.Errorf("completion not recorded: %+v", updated)
	}
	if updated.Session.Open() {
		t.Error("expected session to be closed")
	}
	if len(f.ledger.debits) != 1 || f.ledger.debits[0] != 90 {
		t.Errorf("expected exactly one 90 minute debit, got %v", f.ledger.debits)
	}
}

func TestTransition_CompleteFromApprovedSkipsDebit(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleAdmin)

	updated, err := f.service.Transition(context.Background(), res.ID, ActionComplete, "admin-1", model.RoleAdmin, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != model.StatusCompleted {
		t.Errorf("expected completed, got %s", updated.Status)
	}
	if len(f.ledger.debits) != 0 {
		t.Errorf("no session was open, expected no debits, got %v", f.ledger.debits)
	}
}

func TestTransition_CancelOwnOnly(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleStudent)

	_, err := f.service.Transition(context.Background(), res.ID, ActionCancel, "665f1f77bcf86cd799439055", model.RoleStudent, "", nil)
	assertCode(t, err, apperrors.CodeForbidden)

	updated, err := f.service.Transition(context.Background(), res.ID, ActionCancel, holderID, model.RoleStudent, "changed plans", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != model.StatusCancelled || updated.CancelledAt == nil {
		t.Errorf("cancellation not recorded: %+v", updated)
	}
}

func TestTransition_CancelActiveClosesSessionAndStaysTerminal(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleAdmin)

	in := f.now.Add(-30 * time.Minute)
	if _, err := f.service.Transition(context.Background(), res.ID, ActionStart, holderID, model.RoleStudent, "", &in); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	updated, err := f.service.Transition(context.Background(), res.ID, ActionCancel, holderID, model.RoleStudent, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != model.StatusCancelled || updated.CancelledAt == nil {
		t.Errorf("cancellation not recorded: %+v", updated)
	}
	if updated.Session.Open() {
		t.Error("cancelling an active reservation must close its session")
	}
	if len(f.ledger.debits) != 1 || f.ledger.debits[0] != 30 {
		t.Errorf("expected one 30 minute debit for the realized usage, got %v", f.ledger.debits)
	}

	// Cancelled is terminal: the session cannot be closed into completed.
	_, err = f.service.CloseSession(context.Background(), res.ID, nil)
	assertCode(t, err, apperrors.CodeInvalidTransition)

	stored, err := f.service.GetByID(context.Background(), res.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != model.StatusCancelled {
		t.Errorf("expected cancelled to stick, got %s", stored.Status)
	}
	if len(f.ledger.debits) != 1 {
		t.Errorf("expected no further debits, got %v", f.ledger.debits)
	}
}

func TestTransition_TerminalStatesRejectEverything(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleStudent)

	if _, err := f.service.Transition(context.Background(), res.ID, ActionCancel, holderID, model.RoleStudent, "", nil); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	for _, action := range []string{ActionApprove, ActionReject, ActionStart, ActionComplete, ActionCancel} {
		_, err := f.service.Transition(context.Background(), res.ID, action, "admin-1", model.RoleAdmin, "", nil)
		assertCode(t, err, apperrors.CodeInvalidTransition)
	}
}

func TestTransition_UnknownActionFails(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleStudent)

	_, err := f.service.Transition(context.Background(), res.ID, "archive", "admin-1", model.RoleAdmin, "", nil)
	assertCode(t, err, apperrors.CodeInvalidInput)
}

// ────────────────────────────────────────────────
// Usage sessions
// ────────────────────────────────────────────────

func TestCloseSession_DebitsOnceAndCompletes(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleAdmin)

	in := f.now.Add(-2 * time.Hour)
	if _, err := f.service.Transition(context.Background(), res.ID, ActionStart, holderID, model.RoleStudent, "", &in); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	result, err := f.service.CloseSession(context.Background(), res.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DebitedMinutes != 120 {
		t.Errorf("expected 120 debited minutes, got %d", result.DebitedMinutes)
	}
	if result.NewBalance != "08:00:00" {
		t.Errorf("expected balance 08:00:00, got %s", result.NewBalance)
	}
	if result.Reservation.Status != model.StatusCompleted {
		t.Errorf("expected completed, got %s", result.Reservation.Status)
	}

	// Closing again must fail and must not debit a second time.
	_, err = f.service.CloseSession(context.Background(), res.ID, nil)
	assertCode(t, err, apperrors.CodeInvalidTransition)
	if len(f.ledger.debits) != 1 {
		t.Errorf("expected exactly one debit, got %v", f.ledger.debits)
	}
}

func TestCloseSession_ExplicitTimeOut(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleAdmin)

	in := f.now.Add(-3 * time.Hour)
	if _, err := f.service.Transition(context.Background(), res.ID, ActionStart, holderID, model.RoleStudent, "", &in); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	out := in.Add(45 * time.Minute)
	result, err := f.service.CloseSession(context.Background(), res.ID, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DebitedMinutes != 45 {
		t.Errorf("expected 45 debited minutes, got %d", result.DebitedMinutes)
	}
}

func TestCloseSession_RejectsTimeOutBeforeTimeIn(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleAdmin)

	if _, err := f.service.Transition(context.Background(), res.ID, ActionStart, holderID, model.RoleStudent, "", nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	out := f.now.Add(-time.Hour)
	_, err := f.service.CloseSession(context.Background(), res.ID, &out)
	assertCode(t, err, apperrors.CodeValidation)
}

func TestCloseSession_FailedPersistDoesNotDebit(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleAdmin)

	in := f.now.Add(-time.Hour)
	if _, err := f.service.Transition(context.Background(), res.ID, ActionStart, holderID, model.RoleStudent, "", &in); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	f.repo.updateFunc = func(ctx context.Context, id string, r *model.Reservation) error {
		return errors.New("write concern timeout")
	}

	_, err := f.service.CloseSession(context.Background(), res.ID, nil)
	assertCode(t, err, apperrors.CodeInternal)
	if len(f.ledger.debits) != 0 {
		t.Errorf("a close that was not persisted must not debit, got %v", f.ledger.debits)
	}

	// The session is still open in storage, so a retry both closes and
	// debits exactly once.
	f.repo.updateFunc = nil
	result, err := f.service.CloseSession(context.Background(), res.ID, nil)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.DebitedMinutes != 60 || len(f.ledger.debits) != 1 {
		t.Errorf("expected a single 60 minute debit on retry, got %v", f.ledger.debits)
	}
}

func TestCloseSession_WithoutOpenSessionFails(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleAdmin)

	_, err := f.service.CloseSession(context.Background(), res.ID, nil)
	assertCode(t, err, apperrors.CodeInvalidTransition)
}

// ────────────────────────────────────────────────
// Edits
// ────────────────────────────────────────────────

func TestUpdate_RevalidatesDurationBounds(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleStudent)

	updates := &model.ReservationUpdate{StartTime: "09:00", EndTime: "19:00"}
	err := f.service.Update(context.Background(), res.ID, holderID, model.RoleStudent, updates)
	assertCode(t, err, apperrors.CodeValidation)
}

func TestUpdate_TerminalReservationCannotBeEdited(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleStudent)

	if _, err := f.service.Transition(context.Background(), res.ID, ActionCancel, holderID, model.RoleStudent, "", nil); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	updates := &model.ReservationUpdate{Purpose: "new purpose"}
	err := f.service.Update(context.Background(), res.ID, holderID, model.RoleStudent, updates)
	assertCode(t, err, apperrors.CodeInvalidTransition)
}

func TestUpdate_OnlyHolderOrAdmin(t *testing.T) {
	f := newLifecycleFixture(t)
	res := f.seed(t, model.RoleStudent)

	updates := &model.ReservationUpdate{Purpose: "borrowed slot"}
	err := f.service.Update(context.Background(), res.ID, "665f1f77bcf86cd799439055", model.RoleStudent, updates)
	assertCode(t, err, apperrors.CodeForbidden)

	if err := f.service.Update(context.Background(), res.ID, "admin-1", model.RoleAdmin, updates); err != nil {
		t.Fatalf("admin edit failed: %v", err)
	}

	stored, err := f.service.GetByID(context.Background(), res.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Purpose != "borrowed slot" {
		t.Errorf("expected purpose to be updated, got %q", stored.Purpose)
	}
}
