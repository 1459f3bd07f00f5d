package movement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_tracker/internal/events"
	"fleet_tracker/internal/geofence"
	"fleet_tracker/internal/repository"
	"fleet_tracker/internal/stream"
)

const (
	stageA uint = 11
	stageB uint = 12
	stageC uint = 13
	stageD uint = 14
)

func line() geofence.Route {
	return geofence.NewRoute([]geofence.Stop{
		{StageID: stageA, Name: "A", Order: 0, Lat: 0, Lng: 0, Radius: 50},
		{StageID: stageB, Name: "B", Order: 1, Lat: 0, Lng: 0.01, Radius: 50},
		{StageID: stageC, Name: "C", Order: 2, Lat: 0, Lng: 0.02, Radius: 50},
	})
}

type fakeRoutes struct {
	active repository.ActiveRoute
	err    error
}

func (f *fakeRoutes) ActiveRoute(_ context.Context, fleetNo string) (repository.ActiveRoute, error) {
	if f.err != nil {
		return repository.ActiveRoute{}, f.err
	}
	a := f.active
	a.FleetNo = fleetNo
	return a, nil
}

func newTracker(t *testing.T, placement Placement) (*Tracker, *MemoryStore, *fakeRoutes) {
	t.Helper()
	routes := &fakeRoutes{active: repository.ActiveRoute{FleetID: 1, RouteID: 5, RouteName: "A - C", Stops: line()}}
	store := NewMemoryStore()
	tracker := NewTracker(routes, store, placement)
	clock := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return tracker, store, routes
}

func reading(lat, lng float64) events.GPSReading {
	return events.NewGPSReading("SM-001", lat, lng)
}

func TestInitialPlacementAtFirstStage(t *testing.T) {
	tracker, store, _ := newTracker(t, PlaceDrop)

	st, err := tracker.Track(context.Background(), reading(0, 0.0001))
	require.NoError(t, err)
	require.NotNil(t, st)

	assert.Equal(t, stageA, st.CurrentStageID)
	assert.Equal(t, stageB, st.NextStageID)
	assert.Equal(t, geofence.Forward, st.Direction)
	assert.Equal(t, uint(5), st.RouteID)
	assert.Equal(t, uint(1), st.FleetID)
	assert.Equal(t, "A - C", st.RouteName)
	assert.False(t, st.Terminal)
	assert.Len(t, store.Emitted(), 1)
}

func TestInitialPlacementAtLastStage(t *testing.T) {
	tracker, _, _ := newTracker(t, PlaceDrop)

	st, err := tracker.Track(context.Background(), reading(0, 0.02))
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, stageC, st.CurrentStageID)
	assert.Equal(t, stageB, st.NextStageID)
	assert.Equal(t, geofence.Reverse, st.Direction)
}

func TestInitialPlacementOverlappingTermini(t *testing.T) {
	r := geofence.NewRoute([]geofence.Stop{
		{StageID: stageA, Name: "A", Order: 0, Lat: 0, Lng: 0, Radius: 50},
		{StageID: stageB, Name: "B", Order: 1, Lat: 0, Lng: 0.0003, Radius: 50},
	})
	p := geofence.Point(0, 0.00015)
	require.True(t, r.First().Contains(p))
	require.True(t, r.Last().Contains(p))

	st, err := Initial(r, p, PlaceDrop)
	require.NoError(t, err)
	assert.Equal(t, stageB, st.CurrentStageID)
	assert.Equal(t, stageA, st.NextStageID)
	assert.Equal(t, geofence.Reverse, st.Direction)
}

func TestInitialPlacementPolicies(t *testing.T) {
	t.Run("drop ignores an interior stage", func(t *testing.T) {
		tracker, store, _ := newTracker(t, PlaceDrop)
		_, err := tracker.Track(context.Background(), reading(0, 0.01))
		assert.ErrorIs(t, err, stream.ErrDropped)
		assert.ErrorIs(t, err, ErrUnplaced)
		assert.Empty(t, store.Emitted())
	})

	t.Run("nearest places at an interior stage heading forward", func(t *testing.T) {
		tracker, _, _ := newTracker(t, PlaceNearest)
		st, err := tracker.Track(context.Background(), reading(0, 0.01))
		require.NoError(t, err)
		require.NotNil(t, st)
		assert.Equal(t, stageB, st.CurrentStageID)
		assert.Equal(t, stageC, st.NextStageID)
		assert.Equal(t, geofence.Forward, st.Direction)
	})

	t.Run("nearest still drops between stages", func(t *testing.T) {
		tracker, store, _ := newTracker(t, PlaceNearest)
		_, err := tracker.Track(context.Background(), reading(0, 0.005))
		assert.ErrorIs(t, err, ErrUnplaced)
		assert.Empty(t, store.Emitted())
	})
}

func TestAdvanceToLastStageTurnsAround(t *testing.T) {
	tracker, store, _ := newTracker(t, PlaceDrop)
	ctx := context.Background()

	_, err := tracker.Track(ctx, reading(0, 0))
	require.NoError(t, err)
	st, err := tracker.Track(ctx, reading(0, 0.01))
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, stageB, st.CurrentStageID)
	assert.Equal(t, stageC, st.NextStageID)
	assert.Equal(t, geofence.Forward, st.Direction)

	st, err = tracker.Track(ctx, reading(0, 0.02))
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, stageC, st.CurrentStageID)
	assert.Equal(t, stageB, st.NextStageID)
	assert.Equal(t, geofence.Reverse, st.Direction)
	assert.True(t, st.Terminal)

	st, err = tracker.Track(ctx, reading(0, 0.01))
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, stageB, st.CurrentStageID)
	assert.Equal(t, stageA, st.NextStageID)
	assert.Equal(t, geofence.Reverse, st.Direction)
	assert.False(t, st.Terminal)

	assert.Len(t, store.Emitted(), 4)
}

func TestTrackIsIdempotentInsideCurrentStage(t *testing.T) {
	tracker, store, _ := newTracker(t, PlaceDrop)
	ctx := context.Background()

	_, err := tracker.Track(ctx, reading(0, 0))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		st, err := tracker.Track(ctx, reading(0, 0.0002))
		require.NoError(t, err)
		assert.Nil(t, st)
	}
	assert.Len(t, store.Emitted(), 1)
}

func TestTrackBetweenStagesEmitsNothing(t *testing.T) {
	tracker, store, _ := newTracker(t, PlaceDrop)
	ctx := context.Background()

	_, err := tracker.Track(ctx, reading(0, 0))
	require.NoError(t, err)

	st, err := tracker.Track(ctx, reading(0, 0.005))
	require.NoError(t, err)
	assert.Nil(t, st)

	// C is not the next stage from A, so skipping ahead does nothing either.
	st, err = tracker.Track(ctx, reading(0, 0.02))
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.Len(t, store.Emitted(), 1)
}

func TestTrackPreservesTripID(t *testing.T) {
	tracker, store, _ := newTracker(t, PlaceDrop)
	ctx := context.Background()

	_, err := store.Transition(ctx, "SM-001", func(*events.MovementState) (*events.MovementState, error) {
		return &events.MovementState{
			FleetNo: "SM-001", FleetID: 1, RouteID: 5, TripID: 42,
			CurrentStageID: stageA, NextStageID: stageB, Direction: geofence.Forward,
		}, nil
	})
	require.NoError(t, err)

	st, err := tracker.Track(ctx, reading(0, 0.01))
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, uint(42), st.TripID)
}

func TestTrackDropsStaleReadings(t *testing.T) {
	tracker, store, _ := newTracker(t, PlaceDrop)
	ctx := context.Background()

	_, err := tracker.Track(ctx, reading(0, 0))
	require.NoError(t, err)

	late := reading(0, 0.01)
	late.ReceivedAt = time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	_, err = tracker.Track(ctx, late)
	assert.ErrorIs(t, err, stream.ErrDropped)
	assert.Len(t, store.Emitted(), 1)
}

func TestTrackStaleReadingKeepsLastLocation(t *testing.T) {
	redisStore, _, _ := setupRedisStore(t)
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			tracker, _, _ := newTracker(t, PlaceDrop)
			tracker.store = store
			ctx := context.Background()

			_, err := tracker.Track(ctx, reading(0, 0))
			require.NoError(t, err)

			late := reading(0, 0.015)
			late.ReceivedAt = time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
			_, err = tracker.Track(ctx, late)
			assert.ErrorIs(t, err, stream.ErrDropped)

			loc, err := store.LastLocation(ctx, "SM-001")
			require.NoError(t, err)
			require.NotNil(t, loc)
			assert.Equal(t, 0.0, loc.Lng())
			assert.True(t, loc.ReceivedAt.After(late.ReceivedAt))
		})
	}
}

func TestTrackRouteChangeReinitialises(t *testing.T) {
	tracker, _, routes := newTracker(t, PlaceDrop)
	ctx := context.Background()

	_, err := tracker.Track(ctx, reading(0, 0))
	require.NoError(t, err)

	routes.active = repository.ActiveRoute{FleetID: 1, RouteID: 6, RouteName: "C - D", Stops: geofence.NewRoute([]geofence.Stop{
		{StageID: stageC, Name: "C", Order: 0, Lat: 0, Lng: 0.02, Radius: 50},
		{StageID: stageD, Name: "D", Order: 1, Lat: 0, Lng: 0.03, Radius: 50},
	})}

	st, err := tracker.Track(ctx, reading(0, 0.02))
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, uint(6), st.RouteID)
	assert.Equal(t, stageC, st.CurrentStageID)
	assert.Equal(t, geofence.Forward, st.Direction)
}

func TestTrackRejectsUnusableInput(t *testing.T) {
	tracker, store, routes := newTracker(t, PlaceDrop)
	ctx := context.Background()

	_, err := tracker.Track(ctx, reading(91, 0))
	assert.ErrorIs(t, err, stream.ErrDropped, "schema violation")

	_, err = store.Transition(ctx, "SM-001", func(*events.MovementState) (*events.MovementState, error) {
		return &events.MovementState{RouteID: 5, CurrentStageID: 999, Direction: geofence.Forward}, nil
	})
	require.NoError(t, err)
	_, err = tracker.Track(ctx, reading(0, 0.01))
	assert.ErrorIs(t, err, ErrStageNotOnRoute)
	assert.ErrorIs(t, err, stream.ErrDropped)

	routes.active.Stops = routes.active.Stops[:1]
	_, err = tracker.Track(ctx, reading(0, 0))
	assert.ErrorIs(t, err, repository.ErrInsufficientStages)

	routes.err = repository.ErrNoActiveRoute
	st, err := tracker.Track(ctx, reading(0, 0))
	assert.NoError(t, err, "unassigned fleets are ignored")
	assert.Nil(t, st)

	routes.err = errors.New("connection refused")
	_, err = tracker.Track(ctx, reading(0, 0))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, stream.ErrDropped, "infrastructure failures are retried")
}

func TestAdvanceUnknownDirection(t *testing.T) {
	_, _, err := Advance(line(), events.MovementState{CurrentStageID: stageA, Direction: "sideways"}, geofence.Point(0, 0.01))
	assert.ErrorIs(t, err, ErrNoNextStage)
}

func setupRedisStore(t *testing.T) (*RedisStore, *stream.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	client := stream.NewClient(rdb)
	return NewRedisStore(client, RedisStoreOptions{GPSPartitions: 1}), client, mr
}

func TestRedisStoreTransition(t *testing.T) {
	store, client, mr := setupRedisStore(t)
	ctx := context.Background()

	st, err := store.Load(ctx, "SM-001")
	require.NoError(t, err)
	assert.Nil(t, st)

	first := &events.MovementState{FleetNo: "SM-001", RouteID: 5, CurrentStageID: stageA, NextStageID: stageB, Direction: geofence.Forward, ObservedAt: time.Now().UTC()}
	emitted, err := store.Transition(ctx, "SM-001", func(prev *events.MovementState) (*events.MovementState, error) {
		assert.Nil(t, prev)
		return first, nil
	})
	require.NoError(t, err)
	assert.Equal(t, first, emitted)

	loaded, err := store.Load(ctx, "SM-001")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, stageA, loaded.CurrentStageID)

	entries, err := client.Latest(ctx, events.MovementStream, nil, 0, stream.LatestOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, events.KindMovementState, entries[0].Kind)

	// A no-op transition writes nothing.
	emitted, err = store.Transition(ctx, "SM-001", func(*events.MovementState) (*events.MovementState, error) { return nil, nil })
	require.NoError(t, err)
	assert.Nil(t, emitted)
	entries, err = client.Latest(ctx, events.MovementStream, nil, 0, stream.LatestOptions{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	t.Run("falls back to the stream when the key is lost", func(t *testing.T) {
		mr.Del(stateKey("SM-001"))
		loaded, err := store.Load(ctx, "SM-001")
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, stageA, loaded.CurrentStageID)
		assert.Equal(t, geofence.Forward, loaded.Direction)
	})
}

func TestRedisStoreTransitionRetriesOnConflict(t *testing.T) {
	store, _, mr := setupRedisStore(t)
	ctx := context.Background()

	calls := 0
	emitted, err := store.Transition(ctx, "SM-001", func(prev *events.MovementState) (*events.MovementState, error) {
		calls++
		if calls == 1 {
			// A competing writer changes the key mid-transition.
			require.NoError(t, mr.Set(stateKey("SM-001"), `{"fleetNo":"SM-001","currentStageId":12,"direction":"forward"}`))
			return &events.MovementState{FleetNo: "SM-001", CurrentStageID: stageA}, nil
		}
		require.NotNil(t, prev)
		assert.Equal(t, stageB, prev.CurrentStageID)
		return &events.MovementState{FleetNo: "SM-001", CurrentStageID: stageC}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, stageC, emitted.CurrentStageID)
}

func TestRedisStoreLastLocation(t *testing.T) {
	store, client, _ := setupRedisStore(t)
	ctx := context.Background()

	loc, err := store.LastLocation(ctx, "SM-001")
	require.NoError(t, err)
	assert.Nil(t, loc)

	_, err = client.Publish(ctx, events.GPSStream, reading(0, 0.01), nil)
	require.NoError(t, err)
	loc, err = store.LastLocation(ctx, "SM-001")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, 0.01, loc.Lng(), "read from the GPS stream")

	r := reading(0, 0.02)
	r.ReceivedAt = time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.SaveLocation(ctx, r))
	loc, err = store.LastLocation(ctx, "SM-001")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, 0.02, loc.Lng())
	assert.True(t, r.ReceivedAt.Equal(loc.ReceivedAt))

	older := reading(0, 0.03)
	older.ReceivedAt = r.ReceivedAt.Add(-time.Minute)
	require.NoError(t, store.SaveLocation(ctx, older))
	loc, err = store.LastLocation(ctx, "SM-001")
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, 0.02, loc.Lng(), "older fix ignored")
}

func TestHandleEntryDecodesReadings(t *testing.T) {
	tracker, store, _ := newTracker(t, PlaceDrop)
	ctx := context.Background()

	e := stream.Entry{ID: "1767247200000-0", Kind: events.KindGPSReading, Payload: map[string]any{
		"fleetNo": "SM-001", "latitude": 0, "longitude": 0,
	}}
	require.NoError(t, tracker.HandleEntry(ctx, e))
	require.Len(t, store.Emitted(), 1)
	assert.Equal(t, e.Time(), store.Emitted()[0].ObservedAt)

	e.Kind = events.KindTelemetryJSON
	assert.ErrorIs(t, tracker.HandleEntry(ctx, e), stream.ErrDropped)
}
