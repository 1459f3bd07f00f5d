package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"fleet_tracker/internal/models"
)

const openTrip = "ended_at IS NULL AND end_stage_id IS NULL"

// CreateTrip inserts an open trip. A second open trip for the same fleet
// fails with ErrTripAlreadyOpen.
func (r *Repository) CreateTrip(ctx context.Context, trip *models.Trip) error {
	var open int64
	if err := r.db.WithContext(ctx).Model(&models.Trip{}).
		Where("fleet_id = ? AND "+openTrip, trip.FleetID).
		Count(&open).Error; err != nil {
		return err
	}
	if open > 0 {
		return ErrTripAlreadyOpen
	}

	err := r.db.WithContext(ctx).Create(trip).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrTripAlreadyOpen
	}
	return err
}

// OpenTrip returns the open trip with id tripID.
func (r *Repository) OpenTrip(ctx context.Context, tripID uint) (models.Trip, error) {
	var trip models.Trip
	err := r.db.WithContext(ctx).Where("id = ? AND "+openTrip, tripID).First(&trip).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return trip, ErrTripNotOpen
	}
	return trip, err
}

// OpenTripForFleet returns the fleet's open trip.
func (r *Repository) OpenTripForFleet(ctx context.Context, fleetID uint) (models.Trip, error) {
	var trip models.Trip
	err := r.db.WithContext(ctx).Where("fleet_id = ? AND "+openTrip, fleetID).First(&trip).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return trip, ErrTripNotFound
	}
	return trip, err
}

// Trip loads a trip whatever its state.
func (r *Repository) Trip(ctx context.Context, tripID uint) (models.Trip, error) {
	var trip models.Trip
	err := r.db.WithContext(ctx).First(&trip, tripID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return trip, ErrTripNotFound
	}
	return trip, err
}

// CloseTrip ends an open trip at endStageID. The update re-checks that the
// trip is still open, so of two concurrent closes only one succeeds; the
// other gets ErrTripNotOpen.
func (r *Repository) CloseTrip(ctx context.Context, tripID, endStageID uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Trip{}).
		Where("id = ? AND "+openTrip, tripID).
		Updates(map[string]any{"ended_at": at, "end_stage_id": endStageID})
	if res.Error != nil {
		return fmt.Errorf("close trip %d: %w", tripID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTripNotOpen
	}
	return nil
}
