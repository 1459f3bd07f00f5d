package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_tracker/internal/models"
	"fleet_tracker/internal/repository"
	"fleet_tracker/internal/repository/repotest"
)

const fixtures = `
routes:
  - name: Town - Juja
    stages:
      - {name: Archives, lat: -1.2833, lng: 36.8250, radius: 80}
      - {name: Roysambu, lat: -1.2180, lng: 36.8860}
      - {name: Juja, lat: -1.1023, lng: 37.0144, radius: 120}
fleets:
  - name: SM-001
    plate_number: KDA 123A
    capacity: 14
    vehicle_type: matatu
    route: Town - Juja
  - name: SM-002
`

func TestParseRejectsInvalidFixtures(t *testing.T) {
	tests := map[string]string{
		"one stage":     "routes: [{name: R, stages: [{name: A, lat: 0, lng: 0}]}]",
		"bad latitude":  "routes: [{name: R, stages: [{name: A, lat: 91, lng: 0}, {name: B, lat: 0, lng: 0}]}]",
		"unknown route": "fleets: [{name: SM-001, route: Nowhere}]",
		"not yaml":      "routes: [",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestApply(t *testing.T) {
	db := repotest.OpenDB(t)
	repo := repository.New(db)
	ctx := context.Background()

	f, err := Parse([]byte(fixtures))
	require.NoError(t, err)
	require.NoError(t, Apply(ctx, repo, f))
	require.NoError(t, Apply(ctx, repo, f), "applying twice is harmless")

	active, err := repo.ActiveRoute(ctx, "SM-001")
	require.NoError(t, err)
	assert.Equal(t, "Town - Juja", active.RouteName)
	require.Len(t, active.Stops, 3)
	assert.Equal(t, "Archives", active.Stops[0].Name)
	assert.Equal(t, 80.0, active.Stops[0].Radius)
	assert.Equal(t, 50.0, active.Stops[1].Radius, "default radius")
	assert.Equal(t, "Juja", active.Stops[2].Name)

	_, err = repo.ActiveRoute(ctx, "SM-002")
	assert.ErrorIs(t, err, repository.ErrNoActiveRoute)

	var count int64
	require.NoError(t, db.Model(&models.Fleet{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
	require.NoError(t, db.Model(&models.RouteStage{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
	require.NoError(t, db.Model(&models.FleetRoute{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
