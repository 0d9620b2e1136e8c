package service

import (
	"context"
	"testing"
	"time"

	"labreserve/internal/timegrid"
	"labreserve/pkg/config"
	"labreserve/pkg/logger"
	"labreserve/pkg/model"
)

func availabilityConfig() *config.Config {
	return &config.Config{
		Log:            logger.New(logger.Config{Level: "error", Service: "test"}),
		DayStart:       "08:00",
		DayEnd:         "20:00",
		SlotMinutes:    60,
		MinDurationMin: 1,
		MaxDurationMin: 480,
	}
}

func newEngine(detector *ConflictDetector, resources ResourceSource, now time.Time) *AvailabilityEngine {
	cfg := availabilityConfig()
	engine := NewAvailabilityEngine(detector, resources, timegrid.New(time.UTC), cfg)
	engine.now = func() time.Time { return now }
	return engine
}

func TestDayView_RoomReservationMarksWorkstationSlot(t *testing.T) {
	resources, roomID, wsID := labSetup()

	reservations := &mockReservationSource{
		findCommittedFunc: func(ctx context.Context, resourceID, date string) ([]*model.Reservation, error) {
			if resourceID == roomID {
				return []*model.Reservation{committed("r1", roomID, 9*60, 10*60)}, nil
			}
			return nil, nil
		},
	}
	detector := NewConflictDetector(reservations, &mockScheduleSource{}, resources)

	// Probe well before the target date so no slot is past.
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	engine := newEngine(detector, resources, now)

	view, err := engine.DayView(context.Background(), wsID, "2026-06-01", 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(view.Slots) != 12 {
		t.Fatalf("expected 12 hourly slots between 08:00 and 20:00, got %d", len(view.Slots))
	}

	for _, slot := range view.Slots {
		switch slot.StartTime {
		case "09:00":
			if slot.IsAvailable {
				t.Errorf("slot 09:00 should be blocked by the room reservation")
			}
			if len(slot.Conflicts) != 1 || slot.Conflicts[0].Via != model.ViaParentRoom {
				t.Errorf("slot 09:00 should carry one parent-room conflict, got %+v", slot.Conflicts)
			}
		default:
			if !slot.IsAvailable {
				t.Errorf("slot %s should be available, conflicts: %+v", slot.StartTime, slot.Conflicts)
			}
		}
	}
}

func TestDayView_PastSlotsAreUnavailable(t *testing.T) {
	resources, roomID, _ := labSetup()
	detector := NewConflictDetector(&mockReservationSource{}, &mockScheduleSource{}, resources)

	// Midday on the probed date: the morning slots already began.
	now := time.Date(2026, 6, 1, 12, 30, 0, 0, time.UTC)
	engine := newEngine(detector, resources, now)

	view, err := engine.DayView(context.Background(), roomID, "2026-06-01", 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, slot := range view.Slots {
		started := slot.StartTime <= "12:00"
		if slot.IsPast != started {
			t.Errorf("slot %s: expected is_past=%v", slot.StartTime, started)
		}
		if started && slot.IsAvailable {
			t.Errorf("slot %s already began and must not be available", slot.StartTime)
		}
	}
}

func TestDayView_RejectsOutOfRangeDuration(t *testing.T) {
	resources, roomID, _ := labSetup()
	detector := NewConflictDetector(&mockReservationSource{}, &mockScheduleSource{}, resources)
	engine := newEngine(detector, resources, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))

	if _, err := engine.DayView(context.Background(), roomID, "2026-06-01", 9999); err == nil {
		t.Fatal("expected an error for an out-of-range duration")
	}
	if _, err := engine.DayView(context.Background(), roomID, "June 1st", 60); err == nil {
		t.Fatal("expected an error for a malformed date")
	}
}

func TestDayView_DefaultsToConfiguredSlotLength(t *testing.T) {
	resources, roomID, _ := labSetup()
	detector := NewConflictDetector(&mockReservationSource{}, &mockScheduleSource{}, resources)
	engine := newEngine(detector, resources, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))

	view, err := engine.DayView(context.Background(), roomID, "2026-06-01", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.DurationMin != 60 {
		t.Errorf("expected configured slot length 60, got %d", view.DurationMin)
	}
}

func TestIsAvailable_StaleProbeStillReportsConflicts(t *testing.T) {
	resources, roomID, _ := labSetup()

	reservations := &mockReservationSource{
		findCommittedFunc: func(ctx context.Context, resourceID, date string) ([]*model.Reservation, error) {
			return []*model.Reservation{committed("r1", roomID, 14*60, 16*60)}, nil
		},
	}
	detector := NewConflictDetector(reservations, &mockScheduleSource{}, resources)
	engine := newEngine(detector, resources, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))

	ok, conflicts, err := engine.IsAvailable(context.Background(), roomID, "2026-06-01", 15*60, 17*60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected interval to be unavailable")
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
}
