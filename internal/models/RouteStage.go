package models

import (
	"gorm.io/gorm"
)

// RouteStage places a Stage on a Route at a given order.
// Orders are unique and contiguous per route; they only change by swapping two of them.
type RouteStage struct {
	gorm.Model

	RouteID uint  `json:"route_id" gorm:"not null;uniqueIndex:idx_route_stage_order"`
	StageID uint  `json:"stage_id" gorm:"not null;index"`
	Stage   Stage `gorm:"foreignKey:StageID" json:"stage"`
	Order   int   `json:"order" gorm:"column:stage_order;not null;uniqueIndex:idx_route_stage_order"`
}
