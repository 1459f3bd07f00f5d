package models

import (
	"gorm.io/gorm"
)

// FleetRoute assigns a Fleet to a Route. At most one assignment per fleet is active;
// the partial unique index backs up the transactional activation.
type FleetRoute struct {
	gorm.Model
	FleetID  uint  `json:"fleet_id" gorm:"not null;index;uniqueIndex:idx_fleet_routes_active,where:is_active = true AND deleted_at IS NULL"`
	Fleet    Fleet `gorm:"foreignKey:FleetID" json:"fleet,omitempty"`
	RouteID  uint  `json:"route_id" gorm:"not null;index"`
	Route    Route `gorm:"foreignKey:RouteID" json:"route,omitempty"`
	IsActive bool  `json:"is_active" gorm:"not null;default:false"`
	Voided   bool  `json:"voided" gorm:"not null;default:false"`
}
