package service

import (
	"context"
	"fmt"

	"labreserve/internal/timegrid"
	"labreserve/pkg/model"
)

// CommittedReservationSource yields the reservations that block time on a
// resource for one date.
type CommittedReservationSource interface {
	FindCommitted(ctx context.Context, resourceID string, date string) ([]*model.Reservation, error)
}

// RoomScheduleSource yields the class schedule occurrences on a room for one
// date.
type RoomScheduleSource interface {
	FindByRoomAndDate(ctx context.Context, roomID, date string) ([]*model.ClassSchedule, error)
}

// ResourceSource resolves resources so the detector can walk the
// workstation-to-room edge.
type ResourceSource interface {
	GetByID(ctx context.Context, id string) (*model.Resource, error)
}

// ConflictDetector decides whether an interval on a resource collides with
// existing commitments. Blocking propagates down the hierarchy only: a room
// commitment blocks the room and every workstation in it, while a workstation
// commitment blocks nothing but that workstation. Pending reservations never
// block.
type ConflictDetector struct {
	reservations CommittedReservationSource
	schedules    RoomScheduleSource
	resources    ResourceSource
}

func NewConflictDetector(
	reservations CommittedReservationSource,
	schedules RoomScheduleSource,
	resources ResourceSource,
) *ConflictDetector {
	return &ConflictDetector{
		reservations: reservations,
		schedules:    schedules,
		resources:    resources,
	}
}

// DayCommitments gathers every commitment that occupies time on the resource
// for the given date, regardless of interval. Callers filter by overlap.
func (d *ConflictDetector) DayCommitments(ctx context.Context, resource *model.Resource, date string) ([]model.Commitment, error) {
	var commitments []model.Commitment

	direct, err := d.reservations.FindCommitted(ctx, resource.ID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load reservations for %s: %w", resource.ID, err)
	}
	for _, res := range direct {
		commitments = append(commitments, reservationCommitment(res, model.ViaDirect))
	}

	roomID := resource.ID
	if resource.Kind == model.KindWorkstation {
		roomID = resource.ParentRoomID

		parent, err := d.reservations.FindCommitted(ctx, roomID, date)
		if err != nil {
			return nil, fmt.Errorf("failed to load room reservations for %s: %w", roomID, err)
		}
		for _, res := range parent {
			commitments = append(commitments, reservationCommitment(res, model.ViaParentRoom))
		}
	}

	via := model.ViaDirect
	if resource.Kind == model.KindWorkstation {
		via = model.ViaParentRoom
	}

	schedules, err := d.schedules.FindByRoomAndDate(ctx, roomID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load class schedules for %s: %w", roomID, err)
	}
	for _, sched := range schedules {
		commitments = append(commitments, scheduleCommitment(sched, via))
	}

	return commitments, nil
}

// ConflictingCommitments resolves the resource and returns the commitments
// overlapping [startMin, endMin). excludeID drops one reservation from
// consideration so an edit does not collide with itself.
func (d *ConflictDetector) ConflictingCommitments(ctx context.Context, resourceID, date string, startMin, endMin int, excludeID string) ([]model.Commitment, error) {
	resource, err := d.resources.GetByID(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	all, err := d.DayCommitments(ctx, resource, date)
	if err != nil {
		return nil, err
	}

	return FilterOverlapping(all, startMin, endMin, excludeID), nil
}

// FilterOverlapping keeps the commitments whose interval overlaps
// [startMin, endMin) under the half-open rule, dropping the one whose ID
// matches excludeID.
func FilterOverlapping(commitments []model.Commitment, startMin, endMin int, excludeID string) []model.Commitment {
	var overlapping []model.Commitment
	for _, c := range commitments {
		if excludeID != "" && c.Kind == model.CommitmentReservation && c.ID == excludeID {
			continue
		}
		if timegrid.Overlaps(c.StartMin, c.EndMin, startMin, endMin) {
			overlapping = append(overlapping, c)
		}
	}
	return overlapping
}

func reservationCommitment(res *model.Reservation, via string) model.Commitment {
	return model.Commitment{
		Kind:      model.CommitmentReservation,
		Via:       via,
		ID:        res.ID,
		Label:     res.Number,
		StartTime: res.StartTime,
		EndTime:   res.EndTime,
		StartMin:  res.StartMin,
		EndMin:    res.EndMin,
	}
}

func scheduleCommitment(sched *model.ClassSchedule, via string) model.Commitment {
	return model.Commitment{
		Kind:      model.CommitmentClassSchedule,
		Via:       via,
		ID:        sched.ID,
		Label:     sched.Subject,
		StartTime: sched.StartTime,
		EndTime:   sched.EndTime,
		StartMin:  sched.StartMin,
		EndMin:    sched.EndMin,
	}
}
