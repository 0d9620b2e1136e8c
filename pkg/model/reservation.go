package model

import "time"

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	RoleAdmin   = "admin"
	RoleFaculty = "faculty"
	RoleStudent = "student"
)

// Reservation is a request for exclusive use of a resource over one interval
// of a single calendar day. Times are wall-clock HH:MM in the configured zone;
// StartMin/EndMin are the same interval as minutes since midnight and are the
// values the repositories query against. A reservation is never deleted, only
// moved through its status lifecycle.
type Reservation struct {
	ID           string `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Number       string `json:"number" bson:"number" validate:"omitempty"`
	HolderID     string `json:"holder_id" bson:"holder_id" validate:"required,mongodb"`
	ResourceKind string `json:"resource_kind" bson:"resource_kind" validate:"required,oneof=room workstation"`
	ResourceID   string `json:"resource_id" bson:"resource_id" validate:"required,mongodb"`
	Date         string `json:"date" bson:"date" validate:"required,datetime=2006-01-02"`
	StartTime    string `json:"start_time" bson:"start_time" validate:"required,hhmm"`
	EndTime      string `json:"end_time" bson:"end_time" validate:"required,hhmm"`
	StartMin     int    `json:"start_min" bson:"start_min"`
	EndMin       int    `json:"end_min" bson:"end_min"`
	Purpose      string `json:"purpose" bson:"purpose" validate:"required,min=2,max=300"`
	Notes        string `json:"notes,omitempty" bson:"notes,omitempty" validate:"omitempty,max=1000"`
	Status       string `json:"status" bson:"status" validate:"required,oneof=pending approved rejected active completed cancelled"`

	ApprovedBy  string     `json:"approved_by,omitempty" bson:"approved_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty" bson:"approved_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`

	Session *UsageSession `json:"session,omitempty" bson:"session,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// Terminal reports whether no further lifecycle transition is permitted.
func (r *Reservation) Terminal() bool {
	switch r.Status {
	case StatusRejected, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ReservationUpdate carries the caller-editable fields. Changing the date or
// interval re-validates duration bounds but does not re-run conflict
// detection.
type ReservationUpdate struct {
	Purpose     string  `json:"purpose,omitempty" validate:"omitempty,min=2,max=300"`
	Notes       *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
	Date        string  `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	StartTime   string  `json:"start_time,omitempty" validate:"omitempty,hhmm"`
	EndTime     string  `json:"end_time,omitempty" validate:"omitempty,hhmm"`
	DurationMin *int    `json:"duration_min,omitempty" validate:"omitempty,min=1"`
}

// Commitment is one record that made (or would make) an interval unavailable:
// a committed reservation on the target or on its parent room, or a class
// schedule occurrence on the room.
type Commitment struct {
	Kind      string `json:"kind"`
	Via       string `json:"via"`
	ID        string `json:"id"`
	Label     string `json:"label"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	StartMin  int    `json:"-"`
	EndMin    int    `json:"-"`
}

const (
	CommitmentReservation   = "reservation"
	CommitmentClassSchedule = "class_schedule"

	ViaDirect     = "direct"
	ViaParentRoom = "parent_room"
)
