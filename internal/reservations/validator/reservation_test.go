package validator

import (
	"strings"
	"testing"

	"labreserve/pkg/logger"
	"labreserve/pkg/model"
)

func testValidator() *ReservationValidator {
	log := logger.New(logger.Config{
		Level:     "error",
		Format:    logger.JSON,
		AddSource: false,
		Service:   "test",
	})
	return NewReservationValidator(log, 1, 480)
}

func validReservation() *model.Reservation {
	return &model.Reservation{
		HolderID:     "665f1f77bcf86cd799439033",
		ResourceKind: model.KindWorkstation,
		ResourceID:   "665f1f77bcf86cd799439011",
		Date:         "2026-06-01",
		StartTime:    "09:00",
		EndTime:      "10:00",
		Purpose:      "thesis compilation runs",
		Status:       model.StatusPending,
	}
}

func TestValidate_IntervalRules(t *testing.T) {
	v := testValidator()

	tests := []struct {
		name      string
		mutate    func(r *model.Reservation)
		wantError string
	}{
		{
			name:   "valid one hour interval",
			mutate: func(r *model.Reservation) {},
		},
		{
			name:      "end equals start",
			mutate:    func(r *model.Reservation) { r.EndTime = "09:00" },
			wantError: "after start_time",
		},
		{
			name:      "end before start",
			mutate:    func(r *model.Reservation) { r.EndTime = "08:00" },
			wantError: "after start_time",
		},
		{
			name:      "duration above maximum",
			mutate:    func(r *model.Reservation) { r.StartTime = "08:00"; r.EndTime = "17:00" },
			wantError: "must not exceed 480",
		},
		{
			name:   "duration exactly at maximum",
			mutate: func(r *model.Reservation) { r.StartTime = "08:00"; r.EndTime = "16:00" },
		},
		{
			name:      "malformed start time",
			mutate:    func(r *model.Reservation) { r.StartTime = "9am" },
			wantError: "24-hour HH:MM",
		},
		{
			name:      "hour out of range",
			mutate:    func(r *model.Reservation) { r.StartTime = "25:00" },
			wantError: "24-hour HH:MM",
		},
		{
			name:      "minute out of range",
			mutate:    func(r *model.Reservation) { r.EndTime = "10:61" },
			wantError: "24-hour HH:MM",
		},
		{
			name:      "malformed date",
			mutate:    func(r *model.Reservation) { r.Date = "06/01/2026" },
			wantError: "YYYY-MM-DD",
		},
		{
			name:      "missing purpose",
			mutate:    func(r *model.Reservation) { r.Purpose = "" },
			wantError: "required",
		},
		{
			name:      "holder id not an object id",
			mutate:    func(r *model.Reservation) { r.HolderID = "someone" },
			wantError: "ObjectID",
		},
		{
			name:      "unknown status",
			mutate:    func(r *model.Reservation) { r.Status = "archived" },
			wantError: "one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := validReservation()
			tt.mutate(res)

			err := v.Validate(res)
			if tt.wantError == "" {
				if err != nil {
					t.Fatalf("expected valid, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantError)
			}
			if !strings.Contains(err.Error(), tt.wantError) {
				t.Errorf("expected error containing %q, got: %v", tt.wantError, err)
			}
		})
	}
}

func TestValidate_MinimumDurationBound(t *testing.T) {
	log := logger.New(logger.Config{Level: "error", Service: "test"})
	v := NewReservationValidator(log, 30, 480)

	res := validReservation()
	res.EndTime = "09:15"

	err := v.Validate(res)
	if err == nil || !strings.Contains(err.Error(), "at least 30") {
		t.Fatalf("expected minimum duration error, got: %v", err)
	}
}
