// Package repotest provides an in-memory database with a small route network
// for tests.
package repotest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"fleet_tracker/internal/config"
	"fleet_tracker/internal/models"
)

// OpenDB returns a migrated, empty in-memory sqlite database private to t.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, config.Migrate(db))
	return db
}

// Line is the fixture network: one route of three stages on the equator,
// 0.01 degrees (about 1.1km) apart, each with a 50m geofence.
type Line struct {
	Route  models.Route
	Stages []models.Stage
	Fleets map[string]models.Fleet
	// Assignments holds the active FleetRoute per fleet number.
	Assignments map[string]models.FleetRoute
}

// Stage coordinates of the fixture line.
var LineStages = []models.Stage{
	{Name: "A", Lat: 0, Lng: 0, Radius: 50},
	{Name: "B", Lat: 0, Lng: 0.01, Radius: 50},
	{Name: "C", Lat: 0, Lng: 0.02, Radius: 50},
}

// SeedLine creates the fixture route and assigns each fleet to it.
func SeedLine(t *testing.T, db *gorm.DB, fleetNos ...string) Line {
	t.Helper()
	line := Line{
		Route:       models.Route{Name: "A - C"},
		Fleets:      map[string]models.Fleet{},
		Assignments: map[string]models.FleetRoute{},
	}
	require.NoError(t, db.Create(&line.Route).Error)

	for i, s := range LineStages {
		stage := s
		require.NoError(t, db.Create(&stage).Error)
		line.Stages = append(line.Stages, stage)
		require.NoError(t, db.Create(&models.RouteStage{RouteID: line.Route.ID, StageID: stage.ID, Order: i}).Error)
	}

	for _, no := range fleetNos {
		fleet := models.Fleet{Name: no}
		require.NoError(t, db.Create(&fleet).Error)
		fr := models.FleetRoute{FleetID: fleet.ID, RouteID: line.Route.ID, IsActive: true}
		require.NoError(t, db.Create(&fr).Error)
		line.Fleets[no] = fleet
		line.Assignments[no] = fr
	}
	return line
}

// StageID returns the id of the fixture stage called name.
func (l Line) StageID(name string) uint {
	for _, s := range l.Stages {
		if s.Name == name {
			return s.ID
		}
	}
	return 0
}
