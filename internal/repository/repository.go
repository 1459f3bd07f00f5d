// Package repository holds the relational reads and writes the tracking
// pipeline depends on.
package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"fleet_tracker/internal/geofence"
	"fleet_tracker/internal/models"
)

var (
	ErrNoActiveRoute      = errors.New("fleet has no active route")
	ErrRouteNotFound      = errors.New("route not found")
	ErrFleetRouteNotFound = errors.New("fleet route not found")
	ErrFleetRouteVoided   = errors.New("fleet route is voided")
	ErrRouteStageNotFound = errors.New("route stage not found")
	ErrShiftOutOfRange    = errors.New("stage cannot be shifted past the end of its route")
	ErrInvalidShift       = errors.New("shift direction must be up or down")
	ErrTripNotFound       = errors.New("trip not found")
	ErrTripNotOpen        = errors.New("trip is not open")
	ErrTripAlreadyOpen    = errors.New("fleet already has an open trip")
	ErrReminderNotified   = errors.New("reminder already notified")
	ErrInsufficientStages = errors.New("route has fewer than 2 stages")
	ErrFleetNotFound      = errors.New("fleet not found")
)

type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Transaction runs fn against a repository bound to one database transaction.
// fn's error rolls the transaction back.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// ActiveRoute is a fleet's current assignment with its stops in order.
type ActiveRoute struct {
	FleetID      uint
	FleetNo      string
	FleetRouteID uint
	RouteID      uint
	RouteName    string
	Stops        geofence.Route
}

func orderedStages(db *gorm.DB) *gorm.DB {
	return db.Order("stage_order ASC")
}

// ActiveRoute resolves the fleet's single active, non-voided assignment.
func (r *Repository) ActiveRoute(ctx context.Context, fleetNo string) (ActiveRoute, error) {
	var fr models.FleetRoute
	err := r.db.WithContext(ctx).
		Joins("JOIN fleets ON fleets.id = fleet_routes.fleet_id AND fleets.deleted_at IS NULL").
		Where("fleets.name = ? AND fleet_routes.is_active = ? AND fleet_routes.voided = ?", fleetNo, true, false).
		Preload("Fleet").
		Preload("Route").
		Preload("Route.Stages", orderedStages).
		Preload("Route.Stages.Stage").
		First(&fr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ActiveRoute{}, ErrNoActiveRoute
	}
	if err != nil {
		return ActiveRoute{}, fmt.Errorf("load active route for %s: %w", fleetNo, err)
	}

	return ActiveRoute{
		FleetID:      fr.FleetID,
		FleetNo:      fr.Fleet.Name,
		FleetRouteID: fr.ID,
		RouteID:      fr.RouteID,
		RouteName:    fr.Route.Name,
		Stops:        toStops(fr.Route.Stages),
	}, nil
}

// RouteStops loads a route and its stops in order.
func (r *Repository) RouteStops(ctx context.Context, routeID uint) (models.Route, geofence.Route, error) {
	var route models.Route
	err := r.db.WithContext(ctx).
		Preload("Stages", orderedStages).
		Preload("Stages.Stage").
		First(&route, routeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return route, nil, ErrRouteNotFound
	}
	if err != nil {
		return route, nil, fmt.Errorf("load route %d: %w", routeID, err)
	}
	return route, toStops(route.Stages), nil
}

// FleetByName looks a fleet up by its fleet number.
func (r *Repository) FleetByName(ctx context.Context, fleetNo string) (models.Fleet, error) {
	var fleet models.Fleet
	err := r.db.WithContext(ctx).Where("name = ?", fleetNo).First(&fleet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fleet, ErrFleetNotFound
	}
	return fleet, err
}

func toStops(stages []models.RouteStage) geofence.Route {
	stops := make([]geofence.Stop, 0, len(stages))
	for _, rs := range stages {
		stops = append(stops, geofence.Stop{
			StageID: rs.StageID,
			Name:    rs.Stage.Name,
			Order:   rs.Order,
			Lat:     rs.Stage.Lat,
			Lng:     rs.Stage.Lng,
			Radius:  rs.Stage.Radius,
		})
	}
	return geofence.NewRoute(stops)
}
