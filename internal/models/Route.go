package models

import (
	"gorm.io/gorm"
)

// Route represents a service path between two termini.
// A route has many stages, held in order through RouteStage.
type Route struct {
	gorm.Model

	Name        string `json:"name" gorm:"not null"`
	Description string `json:"description"`

	// Associations
	Stages []RouteStage `gorm:"foreignKey:RouteID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"stages,omitempty"`
}
