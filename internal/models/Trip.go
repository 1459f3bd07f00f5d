package models

import (
	"time"

	"gorm.io/gorm"
)

// Trip is one run of a fleet along its route in one direction.
// EndedAt/EndStageID stay nil while the trip is open; a fleet has at most one open trip.
type Trip struct {
	gorm.Model
	FleetID      uint       `json:"fleet_id" gorm:"not null;index;uniqueIndex:idx_trips_open_fleet,where:ended_at IS NULL AND deleted_at IS NULL"`
	RouteID      uint       `json:"route_id" gorm:"not null;index"`
	Direction    string     `json:"direction" gorm:"not null"`
	StartStageID uint       `json:"start_stage_id" gorm:"not null"`
	EndStageID   *uint      `json:"end_stage_id"`
	StartedAt    time.Time  `json:"started_at" gorm:"not null"`
	EndedAt      *time.Time `json:"ended_at" gorm:"index"`
}

// IsOpen reports whether the trip has not been closed yet.
func (t Trip) IsOpen() bool {
	return t.EndedAt == nil && t.EndStageID == nil
}
