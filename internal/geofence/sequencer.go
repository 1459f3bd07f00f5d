package geofence

import (
	"sort"

	"github.com/twpayne/go-geom"
)

// Direction is the way a fleet travels along a route.
type Direction string

const (
	Forward Direction = "forward" // ascending stage order
	Reverse Direction = "reverse" // descending stage order
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == Forward || d == Reverse
}

// Opposite returns the other direction. Unknown directions are returned unchanged.
func (d Direction) Opposite() Direction {
	switch d {
	case Forward:
		return Reverse
	case Reverse:
		return Forward
	}
	return d
}

// Stop is a stage as seen from one route: its identity, order and geofence.
type Stop struct {
	StageID uint
	Name    string
	Order   int
	Lat     float64
	Lng     float64
	Radius  float64
}

// Point returns the stop coordinate.
func (s Stop) Point() *geom.Point {
	return Point(s.Lat, s.Lng)
}

// Contains reports whether p is inside the stop's geofence.
func (s Stop) Contains(p *geom.Point) bool {
	return IsWithinRadius(s.Point(), p, s.Radius)
}

// Route is an ordered list of stops. Build it with NewRoute.
type Route []Stop

// NewRoute copies stops and sorts them by order.
func NewRoute(stops []Stop) Route {
	r := make(Route, len(stops))
	copy(r, stops)
	sort.SliceStable(r, func(i, j int) bool { return r[i].Order < r[j].Order })
	return r
}

// First returns the stop with the lowest order.
func (r Route) First() Stop { return r[0] }

// Last returns the stop with the highest order.
func (r Route) Last() Stop { return r[len(r)-1] }

// Find returns the stop for stageID.
func (r Route) Find(stageID uint) (Stop, bool) {
	for _, s := range r {
		if s.StageID == stageID {
			return s, true
		}
	}
	return Stop{}, false
}

func (r Route) indexOf(stageID uint) int {
	for i, s := range r {
		if s.StageID == stageID {
			return i
		}
	}
	return -1
}

func (r Route) at(i int) (Stop, bool) {
	if i < 0 || i >= len(r) {
		return Stop{}, false
	}
	return r[i], true
}

// FindNextStage returns the stop a fleet heads to after currentStageID when
// travelling in direction. At the last stop going forward it returns the
// previous stop, and at the first stop in reverse it returns the second one:
// arriving at a terminus starts the opposite leg.
//
// Neighbours are taken by position in the sorted route, so gaps in the order
// values do not matter. ok is false when the current stage is not on the
// route, the direction is unknown or the route has a single stop.
func FindNextStage(r Route, currentStageID uint, direction Direction) (next Stop, ok bool) {
	i := r.indexOf(currentStageID)
	if i < 0 {
		return Stop{}, false
	}

	switch direction {
	case Forward:
		if i == len(r)-1 {
			return r.at(i - 1)
		}
		return r.at(i + 1)
	case Reverse:
		if i == 0 {
			return r.at(i + 1)
		}
		return r.at(i - 1)
	}
	return Stop{}, false
}

// IsLegEnd reports whether stop is the final stop of a leg travelled in direction.
// FindNextStage cannot answer this because it already turns around.
func IsLegEnd(r Route, stop Stop, direction Direction) bool {
	if len(r) == 0 {
		return false
	}
	switch direction {
	case Forward:
		return stop.Order == r.Last().Order
	case Reverse:
		return stop.Order == r.First().Order
	}
	return false
}

// Locate returns the first stop, scanning in order, whose geofence contains p.
func (r Route) Locate(p *geom.Point) (Stop, bool) {
	for _, s := range r {
		if s.Contains(p) {
			return s, true
		}
	}
	return Stop{}, false
}

// Nearest returns the stop closest to p and its distance in meters.
func (r Route) Nearest(p *geom.Point) (Stop, float64, bool) {
	if len(r) == 0 {
		return Stop{}, 0, false
	}
	best, bestDist := r[0], Distance(r[0].Point(), p)
	for _, s := range r[1:] {
		if d := Distance(s.Point(), p); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best, bestDist, true
}

// InDirection returns the stops in travel order for direction.
func (r Route) InDirection(direction Direction) Route {
	out := make(Route, len(r))
	copy(out, r)
	if direction == Reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}
