package models

import "gorm.io/gorm"

// Fleet is a single vehicle. Name is the fleet number painted on the
// vehicle (e.g. "SM-002") and is what telemetry identifies it by.
type Fleet struct {
	gorm.Model
	Name        string `json:"name" gorm:"uniqueIndex;not null"`
	PlateNumber string `json:"plate_number"`
	Capacity    int    `json:"capacity"`
	VehicleType string `json:"vehicle_type"`
}
