package models

import (
	"gorm.io/gorm"
)

// Stage represents a pick-up or drop-off point.
// Radius (meters) defines the circular geofence that counts as arrival.
type Stage struct {
	gorm.Model

	Name   string  `json:"name" gorm:"not null"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Radius float64 `json:"radius" gorm:"not null;default:50"`
}
