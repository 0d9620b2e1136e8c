package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	scheduleerrors "labreserve/internal/classschedules/errors"
	"labreserve/internal/classschedules/repository"
	"labreserve/internal/classschedules/validator"
	"labreserve/internal/timegrid"
	"labreserve/pkg/config"
	apperrors "labreserve/pkg/errors"
	"labreserve/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// maxOccurrences bounds recurrence expansion; a weekly rule across a full
// academic year stays well under this.
const maxOccurrences = 400

// RoomSource resolves the room a class schedule occupies.
type RoomSource interface {
	GetByID(ctx context.Context, id string) (*model.Resource, error)
}

type ClassScheduleService interface {
	Create(ctx context.Context, sched *model.ClassSchedule) ([]*model.ClassSchedule, error)
	GetByID(ctx context.Context, id string) (*model.ClassSchedule, error)
	GetByRoom(ctx context.Context, roomID string, limit int, offset int64) ([]*model.ClassSchedule, int64, error)
	DeleteGroup(ctx context.Context, groupID string) (int64, error)
}

type classScheduleService struct {
	repo      repository.ClassScheduleRepository
	rooms     RoomSource
	validator *validator.ClassScheduleValidator
	grid      *timegrid.Grid
	cfg       *config.Config
}

func NewClassScheduleService(
	repo repository.ClassScheduleRepository,
	rooms RoomSource,
	validator *validator.ClassScheduleValidator,
	grid *timegrid.Grid,
	cfg *config.Config,
) ClassScheduleService {
	return &classScheduleService{
		repo:      repo,
		rooms:     rooms,
		validator: validator,
		grid:      grid,
		cfg:       cfg,
	}
}

// Create expands the recurrence rule into materialized occurrences and
// refuses the whole batch if any occurrence overlaps an existing one on the
// same room and date. The overlap check runs inside the same transaction as
// the insert so a concurrent creator cannot slip between check and write.
func (s *classScheduleService) Create(ctx context.Context, sched *model.ClassSchedule) ([]*model.ClassSchedule, error) {
	if sched.Recurrence == "" {
		sched.Recurrence = model.RecurrenceNone
	}

	if err := s.validator.Validate(sched); err != nil {
		s.cfg.Log.Warn("Class schedule validation failed", "subject", sched.Subject, "error", err)
		return nil, apperrors.Validation("Class schedule validation failed", map[string]any{"error": err.Error()})
	}

	room, err := s.rooms.GetByID(ctx, sched.RoomID)
	if err != nil {
		return nil, err
	}
	if room.Kind != model.KindRoom {
		return nil, apperrors.Validation("room_id must reference a room", map[string]any{"room_id": sched.RoomID})
	}

	sched.StartMin, _ = timegrid.ToMinutes(sched.StartTime)
	sched.EndMin, _ = timegrid.ToMinutes(sched.EndTime)

	occurrences, err := s.expand(sched)
	if err != nil {
		return nil, err
	}

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.verifyNoOverlap(sessCtx, occurrences); err != nil {
			return err
		}
		if err := s.repo.CreateMany(sessCtx, occurrences); err != nil {
			return apperrors.Internal("Failed to create class schedules", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to create class schedule",
			"subject", sched.Subject,
			"room_id", sched.RoomID,
			"error", err,
		)
		return nil, err
	}

	s.cfg.Log.Info("Class schedule created successfully",
		"group_id", occurrences[0].GroupID,
		"subject", sched.Subject,
		"room_id", sched.RoomID,
		"occurrences", len(occurrences),
	)
	return occurrences, nil
}

func (s *classScheduleService) GetByID(ctx context.Context, id string) (*model.ClassSchedule, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Class schedule ID cannot be empty")
	}

	sched, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, scheduleerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Class schedule", id)
		}
		if errors.Is(err, scheduleerrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid class schedule ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve class schedule", err)
	}
	return sched, nil
}

func (s *classScheduleService) GetByRoom(ctx context.Context, roomID string, limit int, offset int64) ([]*model.ClassSchedule, int64, error) {
	if roomID == "" {
		return nil, 0, apperrors.InvalidInput("Room ID cannot be empty")
	}

	var count int64
	var schedules []*model.ClassSchedule
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.CountByRoom(ctx, roomID)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count class schedules", "room_id", roomID, "error", errCount)
			errCount = apperrors.Internal("Failed to count class schedules", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		schedules, errFind = s.repo.FindByRoom(ctx, roomID, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list class schedules", "room_id", roomID, "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve class schedules", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	return schedules, count, nil
}

func (s *classScheduleService) DeleteGroup(ctx context.Context, groupID string) (int64, error) {
	if groupID == "" {
		return 0, apperrors.InvalidInput("Group ID cannot be empty")
	}

	deleted, err := s.repo.DeleteGroup(ctx, groupID)
	if err != nil {
		s.cfg.Log.Error("Failed to delete class schedule group", "group_id", groupID, "error", err)
		return 0, apperrors.Internal("Failed to delete class schedule group", err)
	}
	if deleted == 0 {
		return 0, apperrors.NotFoundWithID("Class schedule group", groupID)
	}

	s.cfg.Log.Info("Class schedule group deleted", "group_id", groupID, "occurrences", deleted)
	return deleted, nil
}

// expand materializes each occurrence date implied by the recurrence rule.
// Every occurrence shares the batch's group id.
func (s *classScheduleService) expand(sched *model.ClassSchedule) ([]*model.ClassSchedule, error) {
	groupID := uuid.New().String()

	first, err := s.grid.ParseDate(sched.Date)
	if err != nil {
		return nil, apperrors.InvalidInput("date must be YYYY-MM-DD")
	}

	var until = first
	if sched.Recurrence != model.RecurrenceNone {
		until, err = s.grid.ParseDate(sched.RepeatUntil)
		if err != nil {
			return nil, apperrors.InvalidInput("repeat_until must be YYYY-MM-DD")
		}
	}

	var occurrences []*model.ClassSchedule
	for cursor := first; !cursor.After(until); {
		occ := *sched
		occ.ID = ""
		occ.Date = cursor.Format(timegrid.DateLayout)
		occ.GroupID = groupID
		occurrences = append(occurrences, &occ)

		if len(occurrences) > maxOccurrences {
			return nil, apperrors.Validation("Recurrence expands to too many occurrences", map[string]any{
				"max": maxOccurrences,
			})
		}

		switch sched.Recurrence {
		case model.RecurrenceDaily:
			cursor = cursor.AddDate(0, 0, 1)
		case model.RecurrenceWeekly:
			cursor = cursor.AddDate(0, 0, 7)
		case model.RecurrenceMonthly:
			cursor = cursor.AddDate(0, 1, 0)
		default:
			return occurrences, nil
		}
	}
	return occurrences, nil
}

// verifyNoOverlap checks every occurrence against the room's materialized
// occurrences and against the rest of the batch being created.
func (s *classScheduleService) verifyNoOverlap(ctx context.Context, occurrences []*model.ClassSchedule) error {
	for i, occ := range occurrences {
		existing, err := s.repo.FindByRoomAndDate(ctx, occ.RoomID, occ.Date)
		if err != nil {
			return apperrors.Internal("Failed to check existing class schedules", err)
		}

		for _, e := range existing {
			if timegrid.Overlaps(e.StartMin, e.EndMin, occ.StartMin, occ.EndMin) {
				return apperrors.Conflict(fmt.Sprintf(
					"Class schedule overlaps %q on %s (%s - %s)",
					e.Subject, e.Date, e.StartTime, e.EndTime,
				))
			}
		}

		for j, other := range occurrences {
			if i == j || other.Date != occ.Date {
				continue
			}
			if timegrid.Overlaps(other.StartMin, other.EndMin, occ.StartMin, occ.EndMin) {
				return apperrors.Conflict(fmt.Sprintf(
					"Recurrence produces overlapping occurrences on %s", occ.Date,
				))
			}
		}
	}
	return nil
}
