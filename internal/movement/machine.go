// Package movement derives which stage each fleet is at, which one it is
// heading to and in which direction, from its GPS readings.
package movement

import (
	"errors"
	"fmt"

	"github.com/twpayne/go-geom"

	"fleet_tracker/internal/events"
	"fleet_tracker/internal/geofence"
)

var (
	ErrUnplaced        = errors.New("reading is outside both terminus geofences")
	ErrStageNotOnRoute = errors.New("current stage is not on the route")
	ErrNoNextStage     = errors.New("no next stage")
)

// Placement decides what happens to a fleet first seen away from both termini.
type Placement string

const (
	// PlaceDrop ignores the reading.
	PlaceDrop Placement = "drop"
	// PlaceNearest places the fleet at whichever stage's geofence contains
	// the reading, heading forward.
	PlaceNearest Placement = "nearest"
)

// Initial places a fleet that has no state yet. A reading inside the first
// stage starts it forward, one inside the last stage starts it in reverse.
// When both termini contain the reading the last stage wins.
func Initial(r geofence.Route, p *geom.Point, policy Placement) (events.MovementState, error) {
	var (
		current   geofence.Stop
		direction geofence.Direction
	)
	switch {
	case r.Last().Contains(p):
		current, direction = r.Last(), geofence.Reverse
	case r.First().Contains(p):
		current, direction = r.First(), geofence.Forward
	case policy == PlaceNearest:
		s, ok := r.Locate(p)
		if !ok {
			return events.MovementState{}, ErrUnplaced
		}
		current, direction = s, geofence.Forward
	default:
		return events.MovementState{}, ErrUnplaced
	}

	st := events.MovementState{
		CurrentStageID: current.StageID,
		CurrentStage:   current.Name,
		Direction:      direction,
	}
	setNext(&st, r)
	return st, nil
}

// Advance applies one reading to prev. moved is false when the fleet is
// still inside its current stage or between stages.
//
// Reaching the last stage of a leg flips the direction, so the returned
// state already points back along the route and has Terminal set.
func Advance(r geofence.Route, prev events.MovementState, p *geom.Point) (next events.MovementState, moved bool, err error) {
	current, ok := r.Find(prev.CurrentStageID)
	if !ok {
		return prev, false, fmt.Errorf("%w: stage %d", ErrStageNotOnRoute, prev.CurrentStageID)
	}
	if current.Contains(p) {
		return prev, false, nil
	}

	target, ok := geofence.FindNextStage(r, current.StageID, prev.Direction)
	if !ok {
		return prev, false, fmt.Errorf("%w after stage %d going %q", ErrNoNextStage, current.StageID, prev.Direction)
	}
	if !target.Contains(p) {
		return prev, false, nil
	}

	next = prev
	next.CurrentStageID = target.StageID
	next.CurrentStage = target.Name
	next.Terminal = geofence.IsLegEnd(r, target, prev.Direction)
	if next.Terminal {
		next.Direction = prev.Direction.Opposite()
	}
	setNext(&next, r)
	return next, true, nil
}

func setNext(st *events.MovementState, r geofence.Route) {
	st.NextStageID, st.NextStage = 0, ""
	if n, ok := geofence.FindNextStage(r, st.CurrentStageID, st.Direction); ok {
		st.NextStageID, st.NextStage = n.StageID, n.Name
	}
}
