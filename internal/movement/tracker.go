package movement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/events"
	"fleet_tracker/internal/geofence"
	"fleet_tracker/internal/metrics"
	"fleet_tracker/internal/repository"
	"fleet_tracker/internal/stream"
)

// ConsumerGroup is the group GPS partitions are consumed under.
const ConsumerGroup = "fleet_movement"

// RouteSource resolves the route a fleet is currently assigned to.
type RouteSource interface {
	ActiveRoute(ctx context.Context, fleetNo string) (repository.ActiveRoute, error)
}

// Tracker turns GPS readings into movement states.
type Tracker struct {
	routes    RouteSource
	store     Store
	placement Placement
	now       func() time.Time
}

func NewTracker(routes RouteSource, store Store, placement Placement) *Tracker {
	if placement == "" {
		placement = PlaceDrop
	}
	return &Tracker{routes: routes, store: store, placement: placement, now: time.Now}
}

// HandleEntry is the stream handler for GPS partitions.
func (t *Tracker) HandleEntry(ctx context.Context, e stream.Entry) error {
	var reading events.GPSReading
	if err := e.Decode(&reading); err != nil {
		return stream.Drop(err)
	}
	reading.ReceivedAt = e.ReceivedAt()
	_, err := t.Track(ctx, reading)
	return err
}

// Track applies one reading and returns the state it produced, or nil when
// nothing changed. Errors wrapping stream.ErrDropped are permanent.
func (t *Tracker) Track(ctx context.Context, reading events.GPSReading) (*events.MovementState, error) {
	if err := reading.Validate(); err != nil {
		return nil, stream.Drop(err)
	}
	if reading.ReceivedAt.IsZero() {
		reading.ReceivedAt = t.now()
	}
	log := logrus.WithFields(logrus.Fields{
		"fleet_no":  reading.FleetNo,
		"latitude":  reading.Lat(),
		"longitude": reading.Lng(),
	})

	active, err := t.routes.ActiveRoute(ctx, reading.FleetNo)
	if errors.Is(err, repository.ErrNoActiveRoute) {
		log.Debug("No active route, ignoring reading")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(active.Stops) < 2 {
		return nil, stream.Dropf("route %d: %w", active.RouteID, repository.ErrInsufficientStages)
	}

	if err := t.store.SaveLocation(ctx, reading); err != nil {
		return nil, err
	}

	p := geofence.Point(reading.Lat(), reading.Lng())
	emitted, err := t.store.Transition(ctx, reading.FleetNo, func(prev *events.MovementState) (*events.MovementState, error) {
		if prev != nil && reading.ReceivedAt.Before(prev.ObservedAt) {
			return nil, stream.Dropf("stale reading from %s, state observed at %s",
				reading.ReceivedAt.Format(time.RFC3339Nano), prev.ObservedAt.Format(time.RFC3339Nano))
		}

		if prev == nil || prev.RouteID != active.RouteID {
			st, err := Initial(active.Stops, p, t.placement)
			if err != nil {
				return nil, stream.Drop(err)
			}
			st.FleetNo = reading.FleetNo
			st.FleetID = active.FleetID
			st.RouteID = active.RouteID
			st.RouteName = active.RouteName
			st.ObservedAt = reading.ReceivedAt
			return &st, nil
		}

		st, moved, err := Advance(active.Stops, *prev, p)
		if err != nil {
			return nil, stream.Drop(err)
		}
		if !moved {
			return nil, nil
		}
		if st.FleetID == 0 {
			st.FleetID = active.FleetID
		}
		st.RouteName = active.RouteName
		st.ObservedAt = reading.ReceivedAt
		return &st, nil
	})
	if err != nil {
		return nil, err
	}
	if emitted == nil {
		return nil, nil
	}

	metrics.MovementTransitions.Add(1)
	log.WithFields(logrus.Fields{
		"current_stage": emitted.CurrentStage,
		"next_stage":    emitted.NextStage,
		"direction":     emitted.Direction,
		"terminal":      emitted.Terminal,
		"trip_id":       emitted.TripID,
	}).Info("Fleet reached stage")
	return emitted, nil
}

// Run consumes each owned GPS partition with its own serial consumer, so
// readings of one fleet are applied in the order they were appended.
func (t *Tracker) Run(ctx context.Context, client *stream.Client, partitions []int, total int, base stream.ConsumerOptions) {
	var wg sync.WaitGroup
	for _, p := range partitions {
		opts := base
		opts.Stream = events.GPSStreamKey(p, total)
		opts.Group = ConsumerGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.Consume(ctx, opts, t.HandleEntry); err != nil {
				logrus.WithError(err).WithField("stream", opts.Stream).Error("GPS consumer exited")
			}
		}()
	}
	wg.Wait()
}
