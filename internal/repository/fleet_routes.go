package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"fleet_tracker/internal/models"
)

// ActivateFleetRoute makes fleetRouteID the fleet's only active assignment.
// Every other assignment of the fleet is deactivated in the same transaction.
func (r *Repository) ActivateFleetRoute(ctx context.Context, fleetRouteID uint) (models.FleetRoute, error) {
	var target models.FleetRoute

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return target, fmt.Errorf("begin transaction: %w", tx.Error)
	}

	if err := tx.First(&target, fleetRouteID).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return target, ErrFleetRouteNotFound
		}
		return target, err
	}
	if target.Voided {
		tx.Rollback()
		return target, ErrFleetRouteVoided
	}

	if err := tx.Model(&models.FleetRoute{}).
		Where("fleet_id = ? AND id <> ?", target.FleetID, target.ID).
		Update("is_active", false).Error; err != nil {
		tx.Rollback()
		return target, fmt.Errorf("deactivate fleet routes: %w", err)
	}
	if err := tx.Model(&target).Update("is_active", true).Error; err != nil {
		tx.Rollback()
		return target, fmt.Errorf("activate fleet route: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return target, fmt.Errorf("commit: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"fleet_id":       target.FleetID,
		"fleet_route_id": target.ID,
		"route_id":       target.RouteID,
	}).Info("Fleet route activated")
	return target, nil
}

// ShiftDirection moves a stage towards the start (up) or end (down) of its route.
type ShiftDirection string

const (
	ShiftUp   ShiftDirection = "up"
	ShiftDown ShiftDirection = "down"
)

// swapOrder parks a row here while two orders are exchanged, since
// (route_id, stage_order) is unique.
const swapOrder = -1

// ShiftRouteStage swaps the order of a route stage with its neighbour.
func (r *Repository) ShiftRouteStage(ctx context.Context, routeID, routeStageID uint, dir ShiftDirection) error {
	if dir != ShiftUp && dir != ShiftDown {
		return ErrInvalidShift
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rs models.RouteStage
		err := tx.Where("id = ? AND route_id = ?", routeStageID, routeID).First(&rs).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRouteStageNotFound
		}
		if err != nil {
			return err
		}

		var neighbour models.RouteStage
		q := tx.Where("route_id = ?", routeID)
		if dir == ShiftUp {
			q = q.Where("stage_order < ?", rs.Order).Order("stage_order DESC")
		} else {
			q = q.Where("stage_order > ?", rs.Order).Order("stage_order ASC")
		}
		err = q.First(&neighbour).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrShiftOutOfRange
		}
		if err != nil {
			return err
		}

		steps := []struct {
			id    uint
			order int
		}{
			{rs.ID, swapOrder},
			{neighbour.ID, rs.Order},
			{rs.ID, neighbour.Order},
		}
		for _, s := range steps {
			if err := tx.Model(&models.RouteStage{}).Where("id = ?", s.id).Update("stage_order", s.order).Error; err != nil {
				return fmt.Errorf("update route stage %d: %w", s.id, err)
			}
		}
		return nil
	})
}
