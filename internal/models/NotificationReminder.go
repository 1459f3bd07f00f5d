package models

import (
	"time"

	"gorm.io/gorm"
)

// NotificationReminder asks to be told when the fleet on TripID reaches StageID.
type NotificationReminder struct {
	gorm.Model
	TripID     uint       `json:"trip_id" gorm:"not null;index"`
	StageID    uint       `json:"stage_id" gorm:"not null;index"`
	PushToken  string     `json:"push_token" gorm:"not null"`
	Message    string     `json:"message"`
	NotifiedAt *time.Time `json:"notified_at"`
}
