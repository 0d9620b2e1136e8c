package service

import (
	"context"
	"time"

	"labreserve/internal/timegrid"
	"labreserve/pkg/config"
	apperrors "labreserve/pkg/errors"
	"labreserve/pkg/model"
)

// SlotView is one grid slot of a day, annotated with whether it already
// passed and what occupies it. A slot is available only when it is neither
// past nor conflicted.
type SlotView struct {
	StartTime   string             `json:"start_time"`
	EndTime     string             `json:"end_time"`
	IsPast      bool               `json:"is_past"`
	IsAvailable bool               `json:"is_available"`
	Conflicts   []model.Commitment `json:"conflicts,omitempty"`
}

// DayView is the availability picture of one resource on one date.
type DayView struct {
	ResourceID   string     `json:"resource_id"`
	ResourceKind string     `json:"resource_kind"`
	Date         string     `json:"date"`
	DurationMin  int        `json:"duration_min"`
	Slots        []SlotView `json:"slots"`
}

// AvailabilityEngine composes the time grid with the conflict detector. The
// day's commitments are loaded once per request and each slot is classified
// against them in memory.
type AvailabilityEngine struct {
	detector  *ConflictDetector
	resources ResourceSource
	grid      *timegrid.Grid
	cfg       *config.Config
	now       func() time.Time
}

func NewAvailabilityEngine(
	detector *ConflictDetector,
	resources ResourceSource,
	grid *timegrid.Grid,
	cfg *config.Config,
) *AvailabilityEngine {
	return &AvailabilityEngine{
		detector:  detector,
		resources: resources,
		grid:      grid,
		cfg:       cfg,
		now:       time.Now,
	}
}

// DayView slices the operating window into durationMin slots and classifies
// each one. durationMin <= 0 falls back to the configured slot length.
func (e *AvailabilityEngine) DayView(ctx context.Context, resourceID, date string, durationMin int) (*DayView, error) {
	if _, err := e.grid.ParseDate(date); err != nil {
		return nil, apperrors.Validation("date must be in YYYY-MM-DD format", map[string]any{"date": date})
	}
	if durationMin <= 0 {
		durationMin = e.cfg.SlotMinutes
	}
	if durationMin < e.cfg.MinDurationMin || durationMin > e.cfg.MaxDurationMin {
		return nil, apperrors.Validation("duration_min is out of range", map[string]any{
			"duration_min": durationMin,
			"min":          e.cfg.MinDurationMin,
			"max":          e.cfg.MaxDurationMin,
		})
	}

	resource, err := e.resources.GetByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	commitments, err := e.detector.DayCommitments(ctx, resource, date)
	if err != nil {
		return nil, err
	}

	dayStart, _ := timegrid.ToMinutes(e.cfg.DayStart)
	dayEnd, _ := timegrid.ToMinutes(e.cfg.DayEnd)

	now := e.now()
	view := &DayView{
		ResourceID:   resource.ID,
		ResourceKind: resource.Kind,
		Date:         date,
		DurationMin:  durationMin,
		Slots:        []SlotView{},
	}

	for _, slot := range timegrid.SlotBoundaries(dayStart, dayEnd, durationMin) {
		conflicts := FilterOverlapping(commitments, slot.StartMin, slot.EndMin, "")
		isPast := e.grid.IsPast(date, slot.StartMin, now)

		view.Slots = append(view.Slots, SlotView{
			StartTime:   timegrid.FormatMinutes(slot.StartMin),
			EndTime:     timegrid.FormatMinutes(slot.EndMin),
			IsPast:      isPast,
			IsAvailable: !isPast && len(conflicts) == 0,
			Conflicts:   conflicts,
		})
	}

	return view, nil
}

// IsAvailable probes one explicit interval instead of the slot grid.
func (e *AvailabilityEngine) IsAvailable(ctx context.Context, resourceID, date string, startMin, endMin int) (bool, []model.Commitment, error) {
	if e.grid.IsPast(date, startMin, e.now()) {
		return false, nil, nil
	}

	conflicts, err := e.detector.ConflictingCommitments(ctx, resourceID, date, startMin, endMin, "")
	if err != nil {
		return false, nil, err
	}
	return len(conflicts) == 0, conflicts, nil
}
