package geofence

import (
	"fmt"

	"github.com/twpayne/go-geom"
	gjson "github.com/twpayne/go-geom/encoding/geojson"
)

// LineString joins the route stops, in order, into a polyline.
func (r Route) LineString() (*geom.LineString, error) {
	if len(r) < 2 {
		return nil, fmt.Errorf("route needs at least 2 stops to form a line, got %d", len(r))
	}
	flat := make([]float64, 0, 2*len(r))
	for _, s := range r {
		flat = append(flat, s.Lng, s.Lat)
	}
	return geom.NewLineStringFlat(geom.XY, flat), nil
}

// GeoJSON encodes the route polyline as a GeoJSON geometry.
func (r Route) GeoJSON() ([]byte, error) {
	line, err := r.LineString()
	if err != nil {
		return nil, err
	}
	return gjson.Marshal(line)
}
