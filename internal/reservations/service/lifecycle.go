package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	reservationerrors "labreserve/internal/reservations/errors"
	"labreserve/internal/reservations/repository"
	"labreserve/internal/reservations/validator"
	"labreserve/internal/timegrid"
	"labreserve/pkg/config"
	apperrors "labreserve/pkg/errors"
	"labreserve/pkg/kafka"
	"labreserve/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionStart    = "start"
	ActionComplete = "complete"
	ActionCancel   = "cancel"
)

const numberAttempts = 3

// QuotaLedger is the slice of the quota service the lifecycle needs: one
// atomic debit per closed session.
type QuotaLedger interface {
	Debit(ctx context.Context, holderID string, minutes int) (newBalance time.Duration, overtime bool, err error)
}

// CloseSessionResult reports the outcome of ending a usage session.
type CloseSessionResult struct {
	Reservation    *model.Reservation `json:"reservation"`
	DebitedMinutes int                `json:"debited_minutes"`
	NewBalance     string             `json:"new_balance"`
}

type ReservationService interface {
	Create(ctx context.Context, requesterID, requesterRole string, res *model.Reservation, durationMin *int) error
	GetByID(ctx context.Context, id string) (*model.Reservation, error)
	GetAll(ctx context.Context, status string, limit int, offset int64) ([]*model.Reservation, int64, error)
	GetByHolder(ctx context.Context, holderID string, limit int, offset int64) ([]*model.Reservation, int64, error)
	Update(ctx context.Context, id, requesterID, requesterRole string, updates *model.ReservationUpdate) error
	Transition(ctx context.Context, id, action, actorID, actorRole, notes string, timeIn *time.Time) (*model.Reservation, error)
	CloseSession(ctx context.Context, id string, timeOut *time.Time) (*CloseSessionResult, error)
}

type reservationService struct {
	repo      repository.ReservationRepository
	lockRepo  repository.ReservationLockRepository
	validator *validator.ReservationValidator
	detector  *ConflictDetector
	resources ResourceSource
	ledger    QuotaLedger
	publisher kafka.Publisher
	grid      *timegrid.Grid
	cfg       *config.Config
	now       func() time.Time
}

func NewReservationService(
	repo repository.ReservationRepository,
	lockRepo repository.ReservationLockRepository,
	validator *validator.ReservationValidator,
	detector *ConflictDetector,
	resources ResourceSource,
	ledger QuotaLedger,
	publisher kafka.Publisher,
	grid *timegrid.Grid,
	cfg *config.Config,
) ReservationService {
	return &reservationService{
		repo:      repo,
		lockRepo:  lockRepo,
		validator: validator,
		detector:  detector,
		resources: resources,
		ledger:    ledger,
		publisher: publisher,
		grid:      grid,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *reservationService) Create(ctx context.Context, requesterID, requesterRole string, res *model.Reservation, durationMin *int) error {
	s.applyDefaults(requesterID, res, durationMin)

	if res.HolderID != requesterID && requesterRole != model.RoleAdmin {
		return apperrors.Forbidden("Reservations can only be created for your own account")
	}

	resource, err := s.resources.GetByID(ctx, res.ResourceID)
	if err != nil {
		return err
	}
	if resource.Status != model.ResourceInService {
		return apperrors.Validation("Resource is not in service", map[string]any{"resource_id": resource.ID})
	}
	res.ResourceKind = resource.Kind

	if err := s.validate(res); err != nil {
		return err
	}
	res.StartMin, _ = timegrid.ToMinutes(res.StartTime)
	res.EndMin, _ = timegrid.ToMinutes(res.EndTime)

	if s.grid.IsPast(res.Date, res.StartMin, s.now()) {
		return apperrors.Validation("Reservation start must not be in the past", map[string]any{
			"date":       res.Date,
			"start_time": res.StartTime,
		})
	}

	switch {
	case requesterRole == model.RoleAdmin:
		now := s.now()
		res.Status = model.StatusApproved
		res.ApprovedBy = requesterID
		res.ApprovedAt = &now
		err = s.persistWithNumber(ctx, res)

	case requesterRole == model.RoleFaculty && resource.Kind == model.KindRoom:
		err = s.createConflictChecked(ctx, requesterID, res)

	default:
		res.Status = model.StatusPending
		err = s.persistWithNumber(ctx, res)
	}
	if err != nil {
		s.cfg.Log.Error("Failed to create reservation", "holder_id", res.HolderID, "error", err)
		return err
	}

	s.cfg.Log.Info("Reservation created",
		"id", res.ID,
		"number", res.Number,
		"resource_id", res.ResourceID,
		"date", res.Date,
		"status", res.Status,
	)
	s.publishEvent(ctx, res, "reservation.created", requesterID)
	return nil
}

// createConflictChecked serializes the conflict read and the insert behind an
// advisory lock on (resource, date), then re-checks inside the transaction so
// a concurrent writer on the same slot cannot slip between read and write.
func (s *reservationService) createConflictChecked(ctx context.Context, approverID string, res *model.Reservation) error {
	lockID, err := s.acquireSlotLock(ctx, res.ResourceID, res.Date)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := s.releaseSlotLock(ctx, lockID); releaseErr != nil {
			s.cfg.Log.Warn("Failed to release reservation lock", "lock_id", lockID, "error", releaseErr)
		}
	}()

	now := s.now()
	res.Status = model.StatusApproved
	res.ApprovedBy = approverID
	res.ApprovedAt = &now

	return s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		conflicts, err := s.detector.ConflictingCommitments(sessCtx, res.ResourceID, res.Date, res.StartMin, res.EndMin, "")
		if err != nil {
			return apperrors.Internal("Failed to check conflicts", err)
		}
		if len(conflicts) > 0 {
			return apperrors.Conflict(fmt.Sprintf(
				"Requested interval %s-%s overlaps %d existing commitment(s)",
				res.StartTime, res.EndTime, len(conflicts),
			)).WithDetails(map[string]any{"conflicts": conflicts})
		}
		return s.persistWithNumber(sessCtx, res)
	})
}

// approveConflictChecked re-runs conflict detection under the slot lock and
// inside a transaction before committing the approval. Of two overlapping
// pending reservations, only the first approval can land.
func (s *reservationService) approveConflictChecked(ctx context.Context, id string, res *model.Reservation) error {
	lockID, err := s.acquireSlotLock(ctx, res.ResourceID, res.Date)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := s.releaseSlotLock(ctx, lockID); releaseErr != nil {
			s.cfg.Log.Warn("Failed to release reservation lock", "lock_id", lockID, "error", releaseErr)
		}
	}()

	return s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		conflicts, err := s.detector.ConflictingCommitments(sessCtx, res.ResourceID, res.Date, res.StartMin, res.EndMin, res.ID)
		if err != nil {
			return apperrors.Internal("Failed to check conflicts", err)
		}
		if len(conflicts) > 0 {
			return apperrors.Conflict(fmt.Sprintf(
				"Requested interval %s-%s overlaps %d existing commitment(s)",
				res.StartTime, res.EndTime, len(conflicts),
			)).WithDetails(map[string]any{"conflicts": conflicts})
		}
		if err := s.repo.Update(sessCtx, id, res); err != nil {
			return apperrors.Internal("Failed to persist transition", err)
		}
		return nil
	})
}

func (s *reservationService) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Reservation ID cannot be empty")
	}

	res, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, reservationerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Reservation", id)
		}
		if errors.Is(err, reservationerrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid reservation ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve reservation", err)
	}
	return res, nil
}

func (s *reservationService) GetAll(ctx context.Context, status string, limit int, offset int64) ([]*model.Reservation, int64, error) {
	var count int64
	var reservations []*model.Reservation
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx, status)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count reservations", "error", errCount)
			errCount = apperrors.Internal("Failed to count reservations", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		reservations, errFind = s.repo.FindAll(ctx, status, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list reservations", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve reservations", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	return reservations, count, nil
}

func (s *reservationService) GetByHolder(ctx context.Context, holderID string, limit int, offset int64) ([]*model.Reservation, int64, error) {
	if holderID == "" {
		return nil, 0, apperrors.InvalidInput("Holder ID cannot be empty")
	}

	var count int64
	var reservations []*model.Reservation
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.CountByHolder(ctx, holderID)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count holder reservations", "holder_id", holderID, "error", errCount)
			errCount = apperrors.Internal("Failed to count reservations", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		reservations, errFind = s.repo.FindByHolder(ctx, holderID, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list holder reservations", "holder_id", holderID, "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve reservations", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	return reservations, count, nil
}

// Update edits the caller-editable fields of a non-terminal reservation.
// Interval changes re-validate duration bounds but do not re-run conflict
// detection.
func (s *reservationService) Update(ctx context.Context, id, requesterID, requesterRole string, updates *model.ReservationUpdate) error {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.Terminal() {
		return apperrors.InvalidTransition("update", existing.Status)
	}
	if requesterRole != model.RoleAdmin && existing.HolderID != requesterID {
		return apperrors.Forbidden("Only the reservation holder may edit it")
	}

	merged := s.mergeUpdates(existing, updates)
	if err := s.validate(merged); err != nil {
		return err
	}
	merged.StartMin, _ = timegrid.ToMinutes(merged.StartTime)
	merged.EndMin, _ = timegrid.ToMinutes(merged.EndTime)

	if err := s.repo.Update(ctx, id, merged); err != nil {
		s.cfg.Log.Error("Failed to update reservation", "id", id, "error", err)
		return apperrors.Internal("Failed to update reservation", err)
	}

	s.cfg.Log.Info("Reservation updated", "id", id, "number", merged.Number)
	return nil
}

func (s *reservationService) Transition(ctx context.Context, id, action, actorID, actorRole, notes string, timeIn *time.Time) (*model.Reservation, error) {
	res, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Terminal() {
		return nil, apperrors.InvalidTransition(action, res.Status)
	}

	now := s.now()
	persisted := false
	debitMinutes := -1

	switch action {
	case ActionApprove:
		if res.Status != model.StatusPending {
			return nil, apperrors.InvalidTransition(action, res.Status)
		}
		if actorRole == model.RoleStudent {
			return nil, apperrors.Forbidden("Only staff may approve reservations")
		}
		res.Status = model.StatusApproved
		res.ApprovedBy = actorID
		res.ApprovedAt = &now
		if err := s.approveConflictChecked(ctx, id, res); err != nil {
			return nil, err
		}
		persisted = true

	case ActionReject:
		if res.Status != model.StatusPending {
			return nil, apperrors.InvalidTransition(action, res.Status)
		}
		if actorRole == model.RoleStudent {
			return nil, apperrors.Forbidden("Only staff may reject reservations")
		}
		res.Status = model.StatusRejected
		res.Notes = appendNote(res.Notes, notes)

	case ActionStart:
		if res.Status != model.StatusApproved {
			return nil, apperrors.InvalidTransition(action, res.Status)
		}
		if actorRole != model.RoleAdmin && res.HolderID != actorID {
			return nil, apperrors.Forbidden("Only the reservation holder may start it")
		}
		in := now
		if timeIn != nil {
			in = *timeIn
		}
		res.Status = model.StatusActive
		res.StartedAt = &now
		res.Session = &model.UsageSession{TimeIn: in}

	case ActionComplete:
		if res.Status != model.StatusApproved && res.Status != model.StatusActive {
			return nil, apperrors.InvalidTransition(action, res.Status)
		}
		if res.Session.Open() {
			minutes, err := s.stampSessionClose(res, now)
			if err != nil {
				return nil, err
			}
			debitMinutes = minutes
		}
		res.Status = model.StatusCompleted
		res.CompletedAt = &now
		res.Notes = appendNote(res.Notes, notes)

	case ActionCancel:
		if actorRole != model.RoleAdmin && res.HolderID != actorID {
			return nil, apperrors.Forbidden("Only the reservation holder may cancel it")
		}
		// A cancelled reservation stays terminal, so an active one must not
		// leave an open session behind. Realized minutes are still debited.
		if res.Session.Open() {
			minutes, err := s.stampSessionClose(res, now)
			if err != nil {
				return nil, err
			}
			debitMinutes = minutes
		}
		res.Status = model.StatusCancelled
		res.CancelledAt = &now
		res.Notes = appendNote(res.Notes, notes)

	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("Unknown transition action: %s", action))
	}

	if !persisted {
		if err := s.repo.Update(ctx, id, res); err != nil {
			s.cfg.Log.Error("Failed to persist transition", "id", id, "action", action, "error", err)
			return nil, apperrors.Internal("Failed to persist transition", err)
		}
	}

	if debitMinutes >= 0 {
		if _, err := s.debitSession(ctx, res, debitMinutes); err != nil {
			s.cfg.Log.Error("Failed to debit closed session",
				"id", id,
				"holder_id", res.HolderID,
				"minutes", debitMinutes,
				"error", err,
			)
		}
	}

	s.cfg.Log.Info("Reservation transitioned",
		"id", id,
		"number", res.Number,
		"action", action,
		"status", res.Status,
		"actor_id", actorID,
	)
	s.publishEvent(ctx, res, "reservation."+action, actorID)
	return res, nil
}

// CloseSession ends the usage session of an active reservation, debits the
// holder's quota by the realized minutes, and marks the reservation
// completed.
func (s *reservationService) CloseSession(ctx context.Context, id string, timeOut *time.Time) (*CloseSessionResult, error) {
	res, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Terminal() {
		return nil, apperrors.InvalidTransition("close_session", res.Status)
	}
	if !res.Session.Open() {
		return nil, apperrors.InvalidTransition("close_session", res.Status)
	}

	out := s.now()
	if timeOut != nil {
		out = *timeOut
	}

	minutes, err := s.stampSessionClose(res, out)
	if err != nil {
		return nil, err
	}

	now := s.now()
	res.Status = model.StatusCompleted
	res.CompletedAt = &now

	if err := s.repo.Update(ctx, id, res); err != nil {
		s.cfg.Log.Error("Failed to persist session close", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to persist session close", err)
	}

	result, err := s.debitSession(ctx, res, minutes)
	if err != nil {
		s.cfg.Log.Error("Failed to debit closed session", "id", id, "holder_id", res.HolderID, "error", err)
		return nil, err
	}

	s.publishEvent(ctx, res, "reservation.session_closed", res.HolderID)
	return result, nil
}

// stampSessionClose records the time-out on the open session and returns the
// realized minutes. The ledger is debited only after the close is persisted,
// so a failed write can never charge the holder for a session storage still
// shows as open.
func (s *reservationService) stampSessionClose(res *model.Reservation, out time.Time) (int, error) {
	if out.Before(res.Session.TimeIn) {
		return 0, apperrors.Validation("time_out must not precede time_in", map[string]any{
			"time_in":  res.Session.TimeIn,
			"time_out": out,
		})
	}

	minutes := int(out.Sub(res.Session.TimeIn).Round(time.Minute) / time.Minute)
	res.Session.TimeOut = &out
	res.Session.DurationMin = minutes
	return minutes, nil
}

func (s *reservationService) debitSession(ctx context.Context, res *model.Reservation, minutes int) (*CloseSessionResult, error) {
	balance, overtime, err := s.ledger.Debit(ctx, res.HolderID, minutes)
	if err != nil {
		return nil, err
	}
	if overtime {
		s.cfg.Log.Warn("Usage session exceeded remaining quota",
			"reservation_id", res.ID,
			"holder_id", res.HolderID,
			"debited_minutes", minutes,
		)
	}

	return &CloseSessionResult{
		Reservation:    res,
		DebitedMinutes: minutes,
		NewBalance:     model.FormatHMS(balance),
	}, nil
}

// --- Helpers ---

func (s *reservationService) applyDefaults(requesterID string, res *model.Reservation, durationMin *int) {
	if res.HolderID == "" {
		res.HolderID = requesterID
	}
	if res.Status == "" {
		res.Status = model.StatusPending
	}
	// Duration-based requests carry no end time; derive it from the start.
	if res.EndTime == "" && durationMin != nil {
		if startMin, err := timegrid.ToMinutes(res.StartTime); err == nil {
			endMin := startMin + *durationMin
			if endMin <= 24*60 {
				res.EndTime = timegrid.FormatMinutes(endMin)
			}
		}
	}
}

func (s *reservationService) validate(res *model.Reservation) error {
	if err := s.validator.Validate(res); err != nil {
		s.cfg.Log.Warn("Reservation validation failed", "holder_id", res.HolderID, "error", err)
		return apperrors.Validation("Reservation validation failed", map[string]any{"error": err.Error()})
	}
	return nil
}

func (s *reservationService) mergeUpdates(existing *model.Reservation, updates *model.ReservationUpdate) *model.Reservation {
	merged := *existing

	if updates.Purpose != "" {
		merged.Purpose = updates.Purpose
	}
	if updates.Notes != nil {
		merged.Notes = *updates.Notes
	}
	if updates.Date != "" {
		merged.Date = updates.Date
	}
	if updates.StartTime != "" {
		merged.StartTime = updates.StartTime
	}
	if updates.EndTime != "" {
		merged.EndTime = updates.EndTime
	}
	if updates.EndTime == "" && updates.DurationMin != nil {
		if startMin, err := timegrid.ToMinutes(merged.StartTime); err == nil {
			endMin := startMin + *updates.DurationMin
			if endMin <= 24*60 {
				merged.EndTime = timegrid.FormatMinutes(endMin)
			}
		}
	}

	return &merged
}

// persistWithNumber inserts the reservation, regenerating the number on a
// collision with the unique index.
func (s *reservationService) persistWithNumber(ctx context.Context, res *model.Reservation) error {
	for attempt := 0; attempt < numberAttempts; attempt++ {
		res.Number = s.newNumber(res.Date)
		err := s.repo.Create(ctx, res)
		if err == nil {
			return nil
		}
		if errors.Is(err, reservationerrors.ErrNumberTaken) {
			continue
		}
		return apperrors.Internal("Failed to create reservation", err)
	}
	return apperrors.Internal("Failed to allocate a reservation number", reservationerrors.ErrNumberTaken)
}

const numberAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// newNumber builds a human-shareable reservation number such as
// RSV-20260115-K7M2QX. Uniqueness is enforced by the storage index, not here.
func (s *reservationService) newNumber(date string) string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// Fall back to a timestamp suffix; the unique index still guards it.
		return fmt.Sprintf("RSV-%s-%06d", strings.ReplaceAll(date, "-", ""), s.now().UnixNano()%1000000)
	}
	for i, b := range buf {
		buf[i] = numberAlphabet[int(b)%len(numberAlphabet)]
	}
	return fmt.Sprintf("RSV-%s-%s", strings.ReplaceAll(date, "-", ""), string(buf))
}

// acquireSlotLock creates an advisory lock keyed by (resource, date).
// Returns a conflict error when another request holds the lock.
func (s *reservationService) acquireSlotLock(ctx context.Context, resourceID, date string) (string, error) {
	lockID := fmt.Sprintf("reservation_lock_%s_%s", resourceID, date)

	lock := &model.ReservationLock{
		ID:        lockID,
		ExpiresAt: s.now().Add(s.cfg.LockTTL),
	}

	_, err := s.lockRepo.Create(ctx, lock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", apperrors.Conflict("This slot is currently being reserved by another request. Please try again.")
		}
		return "", apperrors.Internal("Failed to acquire reservation lock", err)
	}

	return lockID, nil
}

func (s *reservationService) releaseSlotLock(ctx context.Context, lockID string) error {
	return s.lockRepo.Delete(ctx, lockID)
}

type reservationEvent struct {
	ReservationID string `json:"reservation_id"`
	Number        string `json:"number"`
	HolderID      string `json:"holder_id"`
	ResourceID    string `json:"resource_id"`
	Date          string `json:"date"`
	Status        string `json:"status"`
	ActorID       string `json:"actor_id"`
}

func (s *reservationService) publishEvent(ctx context.Context, res *model.Reservation, eventType, actorID string) {
	msg := kafka.NewMessage().
		WithKey(res.ID).
		WithEventType(eventType).
		WithSource("reservations").
		WithValue(reservationEvent{
			ReservationID: res.ID,
			Number:        res.Number,
			HolderID:      res.HolderID,
			ResourceID:    res.ResourceID,
			Date:          res.Date,
			Status:        res.Status,
			ActorID:       actorID,
		}).
		Build()

	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.cfg.Log.Warn("Failed to publish reservation event", "event_type", eventType, "id", res.ID, "error", err)
	}
}

func appendNote(existing, note string) string {
	if note == "" {
		return existing
	}
	if existing == "" {
		return note
	}
	return existing + " | " + note
}
