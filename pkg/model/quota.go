package model

import (
	"fmt"
	"time"
)

// QuotaHolder is a requester with a decrementable time balance. Remaining is
// a duration rather than a raw minute count so the minute arithmetic of the
// ledger and the HH:MM:SS presentation at the boundary cannot be confused.
type QuotaHolder struct {
	ID        string        `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Name      string        `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Role      string        `json:"role" bson:"role" validate:"required,oneof=admin faculty student"`
	Remaining time.Duration `json:"-" bson:"remaining"`
	UpdatedAt time.Time     `json:"updated_at" bson:"updated_at" validate:"omitempty"`
	CreatedAt time.Time     `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// RemainingHMS renders the balance as HH:MM:SS with exact whole seconds.
func (h *QuotaHolder) RemainingHMS() string {
	return FormatHMS(h.Remaining)
}

// FormatHMS renders a non-negative duration as HH:MM:SS.
func FormatHMS(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// SemesterReset marks that the bulk quota reset for one academic term has
// been applied. Its _id is the term key, so a duplicate trigger fails the
// unique insert and becomes a no-op.
type SemesterReset struct {
	Term       string    `json:"term" bson:"_id"`
	DefaultMin int       `json:"default_min" bson:"default_min"`
	Holders    int64     `json:"holders" bson:"holders"`
	AppliedAt  time.Time `json:"applied_at" bson:"applied_at"`
}
