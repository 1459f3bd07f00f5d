package movement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"fleet_tracker/internal/events"
	"fleet_tracker/internal/stream"
)

// ErrConflict is returned when a transition kept losing to concurrent writers.
var ErrConflict = errors.New("movement state changed concurrently")

const maxTransitionAttempts = 3

// TransitionFunc computes the next state from prev, which is nil for a fleet
// with no state. Returning a nil state means nothing changes. It may be
// called more than once for one transition.
type TransitionFunc func(prev *events.MovementState) (*events.MovementState, error)

// Store keeps the current movement state per fleet and the last accepted
// GPS fix. Saving a state and appending it to the movement stream happen
// together or not at all.
type Store interface {
	Load(ctx context.Context, fleetNo string) (*events.MovementState, error)
	Transition(ctx context.Context, fleetNo string, fn TransitionFunc) (*events.MovementState, error)
	SaveLocation(ctx context.Context, reading events.GPSReading) error
	LastLocation(ctx context.Context, fleetNo string) (*events.GPSReading, error)
}

func stateKey(fleetNo string) string    { return "fleet_movement_state:" + fleetNo }
func locationKey(fleetNo string) string { return "fleet_last_location:" + fleetNo }

// storedLocation is the persisted form of a GPS fix.
type storedLocation struct {
	FleetNo    string    `json:"fleetNo"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ReceivedAt time.Time `json:"receivedAt"`
}

func (l storedLocation) reading() *events.GPSReading {
	r := events.NewGPSReading(l.FleetNo, l.Latitude, l.Longitude)
	r.ReceivedAt = l.ReceivedAt
	return &r
}

type RedisStoreOptions struct {
	// ScanWindow bounds the stream scans used when a key is missing.
	ScanWindow    int64
	GPSPartitions int
}

// RedisStore keeps state in one redis key per fleet and appends every
// change to the movement stream in the same MULTI/EXEC.
type RedisStore struct {
	streams *stream.Client
	opts    RedisStoreOptions
}

func NewRedisStore(streams *stream.Client, opts RedisStoreOptions) *RedisStore {
	return &RedisStore{streams: streams, opts: opts}
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, g getter, fleetNo string) (*events.MovementState, error) {
	raw, err := g.Get(ctx, stateKey(fleetNo)).Bytes()
	if err == nil {
		var st events.MovementState
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, fmt.Errorf("decode state of %s: %w", fleetNo, err)
		}
		return &st, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get state of %s: %w", fleetNo, err)
	}

	// Key lost: rebuild from the audit trail.
	e, ok, err := s.streams.LatestOne(ctx, events.MovementStream, stream.PayloadField("fleetNo", fleetNo),
		stream.LatestOptions{ScanWindow: s.opts.ScanWindow})
	if err != nil || !ok {
		return nil, err
	}
	var st events.MovementState
	if err := e.Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *RedisStore) Load(ctx context.Context, fleetNo string) (*events.MovementState, error) {
	return s.load(ctx, s.streams.Redis(), fleetNo)
}

// Transition runs fn under WATCH on the fleet's key. If another writer
// changes the key before EXEC, fn is re-run against the fresh state.
func (s *RedisStore) Transition(ctx context.Context, fleetNo string, fn TransitionFunc) (*events.MovementState, error) {
	key := stateKey(fleetNo)
	rdb := s.streams.Redis()

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		var emitted *events.MovementState
		err := rdb.Watch(ctx, func(tx *redis.Tx) error {
			prev, err := s.load(ctx, tx, fleetNo)
			if err != nil {
				return err
			}
			next, err := fn(prev)
			if err != nil || next == nil {
				return err
			}

			raw, err := json.Marshal(next)
			if err != nil {
				return err
			}
			args, err := s.streams.AddArgs(events.MovementStream, next, map[string]any{
				stream.MetaTimestamp: next.ObservedAt.UTC().Format(time.RFC3339Nano),
			})
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, raw, 0)
				pipe.XAdd(ctx, args)
				return nil
			})
			if err == nil {
				emitted = next
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return emitted, err
	}
	return nil, ErrConflict
}

// SaveLocation stores reading as the fleet's last fix unless the stored fix
// was received later. The compare and the write run under WATCH.
func (s *RedisStore) SaveLocation(ctx context.Context, reading events.GPSReading) error {
	raw, err := json.Marshal(storedLocation{
		FleetNo:    reading.FleetNo,
		Latitude:   reading.Lat(),
		Longitude:  reading.Lng(),
		ReceivedAt: reading.ReceivedAt,
	})
	if err != nil {
		return err
	}
	key := locationKey(reading.FleetNo)
	rdb := s.streams.Redis()

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		err := rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil {
				var stored storedLocation
				// An undecodable fix is replaced.
				if json.Unmarshal(cur, &stored) == nil && reading.ReceivedAt.Before(stored.ReceivedAt) {
					return nil
				}
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, raw, 0)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

func (s *RedisStore) LastLocation(ctx context.Context, fleetNo string) (*events.GPSReading, error) {
	raw, err := s.streams.Redis().Get(ctx, locationKey(fleetNo)).Bytes()
	if err == nil {
		var loc storedLocation
		if err := json.Unmarshal(raw, &loc); err != nil {
			return nil, fmt.Errorf("decode location of %s: %w", fleetNo, err)
		}
		return loc.reading(), nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	e, ok, err := s.streams.LatestOne(ctx, events.GPSStreamFor(fleetNo, s.opts.GPSPartitions),
		stream.PayloadField("fleetNo", fleetNo), stream.LatestOptions{ScanWindow: s.opts.ScanWindow})
	if err != nil || !ok {
		return nil, err
	}
	var reading events.GPSReading
	if err := e.Decode(&reading); err != nil {
		return nil, err
	}
	reading.ReceivedAt = e.ReceivedAt()
	return &reading, nil
}

// MemoryStore is a Store held in process memory. Emitted states are kept
// in order instead of being appended to a stream.
type MemoryStore struct {
	mu        sync.Mutex
	states    map[string]events.MovementState
	locations map[string]events.GPSReading
	emitted   []events.MovementState
	// FailEmit, when set, makes the next emit fail with this error.
	FailEmit error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:    map[string]events.MovementState{},
		locations: map[string]events.GPSReading{},
	}
}

func (m *MemoryStore) Load(_ context.Context, fleetNo string) (*events.MovementState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[fleetNo]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *MemoryStore) Transition(_ context.Context, fleetNo string, fn TransitionFunc) (*events.MovementState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var prev *events.MovementState
	if st, ok := m.states[fleetNo]; ok {
		prev = &st
	}
	next, err := fn(prev)
	if err != nil || next == nil {
		return nil, err
	}
	if m.FailEmit != nil {
		err, m.FailEmit = m.FailEmit, nil
		return nil, err
	}
	m.states[fleetNo] = *next
	m.emitted = append(m.emitted, *next)
	return next, nil
}

func (m *MemoryStore) SaveLocation(_ context.Context, reading events.GPSReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.locations[reading.FleetNo]; ok && reading.ReceivedAt.Before(cur.ReceivedAt) {
		return nil
	}
	m.locations[reading.FleetNo] = reading
	return nil
}

func (m *MemoryStore) LastLocation(_ context.Context, fleetNo string) (*events.GPSReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.locations[fleetNo]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// Emitted returns every state emitted so far.
func (m *MemoryStore) Emitted() []events.MovementState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.MovementState(nil), m.emitted...)
}
