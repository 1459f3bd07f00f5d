package repository

import (
	"context"
	"time"

	"fleet_tracker/internal/models"
)

// PendingReminders lists the reminders of a trip for stageID not yet sent.
func (r *Repository) PendingReminders(ctx context.Context, tripID, stageID uint) ([]models.NotificationReminder, error) {
	var reminders []models.NotificationReminder
	err := r.db.WithContext(ctx).
		Where("trip_id = ? AND stage_id = ? AND notified_at IS NULL", tripID, stageID).
		Order("id").
		Find(&reminders).Error
	return reminders, err
}

// CreateReminder stores a reminder.
func (r *Repository) CreateReminder(ctx context.Context, reminder *models.NotificationReminder) error {
	return r.db.WithContext(ctx).Create(reminder).Error
}

// MarkReminderNotified records delivery. It fails with ErrReminderNotified
// when another worker marked it first.
func (r *Repository) MarkReminderNotified(ctx context.Context, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.NotificationReminder{}).
		Where("id = ? AND notified_at IS NULL", id).
		Update("notified_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrReminderNotified
	}
	return nil
}
