package model

import "time"

// UsageSession is the realized occupancy of an active reservation. It is
// opened when the reservation starts and closed exactly once; closing debits
// the holder's quota by DurationMin.
type UsageSession struct {
	TimeIn      time.Time  `json:"time_in" bson:"time_in"`
	TimeOut     *time.Time `json:"time_out,omitempty" bson:"time_out,omitempty"`
	DurationMin int        `json:"duration_min" bson:"duration_min"`
}

// Open reports whether the session has not been closed yet.
func (s *UsageSession) Open() bool {
	return s != nil && s.TimeOut == nil
}
