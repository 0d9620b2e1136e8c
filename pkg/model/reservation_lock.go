package model

import "time"

// ReservationLock is an advisory lock serializing the conflict check and
// write of reservations for one (resource, date). The _id encodes the scope,
// so concurrent creators for the same slot collide on the unique index while
// independent resources and dates never contend.
type ReservationLock struct {
	ID        string    `bson:"_id" json:"id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
