package model

import "time"

const (
	RecurrenceNone    = "none"
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
)

// ClassSchedule is one materialized occurrence of a class occupying a room.
// Occurrences expanded from a recurrence rule share a GroupID; each occurrence
// is its own record and participates in conflict detection independently.
type ClassSchedule struct {
	ID         string `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	RoomID     string `json:"room_id" bson:"room_id" validate:"required,mongodb"`
	Subject    string `json:"subject" bson:"subject" validate:"required,min=2,max=150"`
	Instructor string `json:"instructor" bson:"instructor" validate:"required,min=2,max=100"`
	Date       string `json:"date" bson:"date" validate:"required,datetime=2006-01-02"`
	StartTime  string `json:"start_time" bson:"start_time" validate:"required,hhmm"`
	EndTime    string `json:"end_time" bson:"end_time" validate:"required,hhmm"`
	StartMin   int    `json:"start_min" bson:"start_min"`
	EndMin     int    `json:"end_min" bson:"end_min"`

	Recurrence  string `json:"recurrence" bson:"recurrence" validate:"required,oneof=none daily weekly monthly"`
	RepeatUntil string `json:"repeat_until,omitempty" bson:"repeat_until,omitempty" validate:"omitempty,datetime=2006-01-02"`
	GroupID     string `json:"group_id,omitempty" bson:"group_id,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}
