package model

import "time"

const (
	KindRoom        = "room"
	KindWorkstation = "workstation"
)

const (
	ResourceInService = "in_service"
	ResourceRetired   = "retired"
)

// Resource is the bookable unit: a laboratory room or a workstation inside
// one. ParentRoomID is required for workstations and must be empty for rooms;
// the validator enforces the kind-dependent rule.
type Resource struct {
	ID           string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Kind         string    `json:"kind" bson:"kind" validate:"required,oneof=room workstation"`
	Name         string    `json:"name" bson:"name" validate:"required,min=2,max=100"`
	ParentRoomID string    `json:"parent_room_id,omitempty" bson:"parent_room_id,omitempty" validate:"omitempty,mongodb"`
	Capacity     int       `json:"capacity,omitempty" bson:"capacity,omitempty" validate:"omitempty,min=1,max=500"`
	Status       string    `json:"status" bson:"status" validate:"required,oneof=in_service retired"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

type ResourceUpdate struct {
	Name     string `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Capacity *int   `json:"capacity,omitempty" validate:"omitempty,min=1,max=500"`
	Status   string `json:"status,omitempty" validate:"omitempty,oneof=in_service retired"`
}
