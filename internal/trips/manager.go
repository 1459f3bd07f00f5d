// Package trips starts and ends trips from fleet commands and closes them
// when a fleet reaches the end of its leg.
package trips

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twpayne/go-geom"

	"fleet_tracker/internal/events"
	"fleet_tracker/internal/geofence"
	"fleet_tracker/internal/metrics"
	"fleet_tracker/internal/models"
	"fleet_tracker/internal/movement"
	"fleet_tracker/internal/repository"
	"fleet_tracker/internal/stream"
)

// ConsumerGroup is the group the manager reads commands and movements under.
const ConsumerGroup = "trip_manager"

var (
	ErrNoLocationFix   = errors.New("no known location for fleet")
	ErrNotAtStartStage = errors.New("fleet is not at a starting stage for that direction")
	ErrNoMovementState = errors.New("no movement state for fleet")
)

type Manager struct {
	repo  *repository.Repository
	store movement.Store
	now   func() time.Time
}

func NewManager(repo *repository.Repository, store movement.Store) *Manager {
	return &Manager{repo: repo, store: store, now: time.Now}
}

// StartTrip opens a trip for fleetNo from the stage it is standing at. The
// stage is searched among the first half of the route in the requested
// direction. The trip row and the initial movement state are written
// together: if the state cannot be published the trip is rolled back.
func (m *Manager) StartTrip(ctx context.Context, fleetNo string, args events.StartTripArgs) (models.Trip, error) {
	log := logrus.WithFields(logrus.Fields{"fleet_no": fleetNo, "direction": args.Direction})

	if err := args.Validate(); err != nil {
		return models.Trip{}, stream.Drop(err)
	}
	active, err := m.repo.ActiveRoute(ctx, fleetNo)
	if errors.Is(err, repository.ErrNoActiveRoute) {
		return models.Trip{}, stream.Drop(err)
	}
	if err != nil {
		return models.Trip{}, err
	}
	if len(active.Stops) < 2 {
		return models.Trip{}, stream.Drop(repository.ErrInsufficientStages)
	}

	p, err := m.location(ctx, fleetNo, active)
	if err != nil {
		return models.Trip{}, err
	}

	candidates := active.Stops.InDirection(args.Direction)
	candidates = candidates[:(len(candidates)+1)/2]
	start, ok := candidates.Locate(p)
	if !ok {
		return models.Trip{}, stream.Drop(ErrNotAtStartStage)
	}

	now := m.now()
	trip := models.Trip{
		FleetID:      active.FleetID,
		RouteID:      active.RouteID,
		Direction:    string(args.Direction),
		StartStageID: start.StageID,
		StartedAt:    now,
	}

	err = m.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.CreateTrip(ctx, &trip); err != nil {
			return err
		}
		_, err := m.store.Transition(ctx, fleetNo, func(*events.MovementState) (*events.MovementState, error) {
			st := &events.MovementState{
				FleetNo:        fleetNo,
				FleetID:        active.FleetID,
				RouteID:        active.RouteID,
				RouteName:      active.RouteName,
				CurrentStageID: start.StageID,
				CurrentStage:   start.Name,
				Direction:      args.Direction,
				TripID:         trip.ID,
				ObservedAt:     now,
			}
			if next, ok := geofence.FindNextStage(active.Stops, start.StageID, args.Direction); ok {
				st.NextStageID, st.NextStage = next.StageID, next.Name
			}
			return st, nil
		})
		if err != nil {
			return fmt.Errorf("publish initial state: %w", err)
		}
		return nil
	})
	if errors.Is(err, repository.ErrTripAlreadyOpen) {
		return models.Trip{}, stream.Drop(err)
	}
	if err != nil {
		return models.Trip{}, err
	}

	metrics.TripsStarted.Add(1)
	log.WithFields(logrus.Fields{
		"trip_id":     trip.ID,
		"start_stage": start.Name,
	}).Info("Trip started")
	return trip, nil
}

// location returns the fleet's last GPS fix, or failing that the stage its
// movement state places it at.
func (m *Manager) location(ctx context.Context, fleetNo string, active repository.ActiveRoute) (*geom.Point, error) {
	fix, err := m.store.LastLocation(ctx, fleetNo)
	if err != nil {
		return nil, err
	}
	if fix != nil {
		return geofence.Point(fix.Lat(), fix.Lng()), nil
	}

	st, err := m.store.Load(ctx, fleetNo)
	if err != nil {
		return nil, err
	}
	if st != nil && st.RouteID == active.RouteID {
		if s, ok := active.Stops.Find(st.CurrentStageID); ok {
			return s.Point(), nil
		}
	}
	return nil, stream.Drop(ErrNoLocationFix)
}

// EndTrip closes the trip referenced by the fleet's movement state at the
// stage the fleet is currently at.
func (m *Manager) EndTrip(ctx context.Context, fleetNo string) (models.Trip, error) {
	st, err := m.store.Load(ctx, fleetNo)
	if err != nil {
		return models.Trip{}, err
	}
	if st == nil {
		return models.Trip{}, stream.Drop(ErrNoMovementState)
	}
	if st.TripID == 0 {
		return models.Trip{}, stream.Dropf("fleet %s: %w", fleetNo, repository.ErrTripNotOpen)
	}

	trip, err := m.close(ctx, *st)
	if errors.Is(err, repository.ErrTripNotOpen) {
		return models.Trip{}, stream.Drop(err)
	}
	if err != nil {
		return models.Trip{}, err
	}

	metrics.TripsEnded.Add(1)
	logrus.WithFields(logrus.Fields{
		"fleet_no":  fleetNo,
		"trip_id":   trip.ID,
		"end_stage": st.CurrentStage,
	}).Info("Trip ended")
	return trip, nil
}

// close ends the open trip st refers to and detaches it from the fleet's state.
func (m *Manager) close(ctx context.Context, st events.MovementState) (models.Trip, error) {
	trip, err := m.repo.OpenTrip(ctx, st.TripID)
	if err != nil {
		return trip, err
	}
	if err := m.repo.CloseTrip(ctx, trip.ID, st.CurrentStageID, m.now()); err != nil {
		return trip, err
	}

	_, err = m.store.Transition(ctx, st.FleetNo, func(prev *events.MovementState) (*events.MovementState, error) {
		if prev == nil || prev.TripID != trip.ID {
			return nil, nil
		}
		next := *prev
		next.TripID = 0
		next.Terminal = false
		return &next, nil
	})
	if err != nil {
		logrus.WithError(err).WithField("trip_id", trip.ID).Warn("Trip closed but state still references it")
	}
	return trip, nil
}

// HandleCommand is the stream handler for fleet commands.
func (m *Manager) HandleCommand(ctx context.Context, e stream.Entry) error {
	var cmd events.FleetCommand
	if err := e.Decode(&cmd); err != nil {
		return stream.Drop(err)
	}
	if err := cmd.Validate(); err != nil {
		return stream.Drop(err)
	}

	var err error
	switch cmd.Command {
	case events.CommandStartTrip:
		_, err = m.StartTrip(ctx, cmd.FleetNo, cmd.StartTripArgs())
	case events.CommandEndTrip:
		_, err = m.EndTrip(ctx, cmd.FleetNo)
	}
	return err
}

// HandleMovement closes the fleet's trip when a movement state reports the
// end of a leg. Trips that are already closed are left alone.
func (m *Manager) HandleMovement(ctx context.Context, e stream.Entry) error {
	var st events.MovementState
	if err := e.Decode(&st); err != nil {
		return stream.Drop(err)
	}
	if !st.Terminal || st.TripID == 0 {
		return nil
	}

	trip, err := m.close(ctx, st)
	if errors.Is(err, repository.ErrTripNotOpen) {
		return nil
	}
	if err != nil {
		return err
	}

	metrics.TripsAutoClosed.Add(1)
	logrus.WithFields(logrus.Fields{
		"fleet_no":  st.FleetNo,
		"trip_id":   trip.ID,
		"end_stage": st.CurrentStage,
	}).Info("Trip closed at end of route")
	return nil
}

// Run consumes fleet commands and movement states until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, client *stream.Client, base stream.ConsumerOptions) {
	var wg sync.WaitGroup
	for streamKey, h := range map[string]stream.Handler{
		events.CommandStream:  m.HandleCommand,
		events.MovementStream: m.HandleMovement,
	} {
		opts := base
		opts.Stream = streamKey
		opts.Group = ConsumerGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.Consume(ctx, opts, h); err != nil {
				logrus.WithError(err).WithField("stream", opts.Stream).Error("Trip consumer exited")
			}
		}()
	}
	wg.Wait()
}
