// Package seed loads routes, stages and fleets from a YAML fixture file.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"fleet_tracker/internal/models"
	"fleet_tracker/internal/repository"
)

type Fixtures struct {
	Routes []RouteFixture `yaml:"routes" validate:"dive"`
	Fleets []FleetFixture `yaml:"fleets" validate:"dive"`
}

type RouteFixture struct {
	Name        string         `yaml:"name" validate:"required"`
	Description string         `yaml:"description"`
	Stages      []StageFixture `yaml:"stages" validate:"min=2,dive"`
}

type StageFixture struct {
	Name   string  `yaml:"name" validate:"required"`
	Lat    float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng    float64 `yaml:"lng" validate:"gte=-180,lte=180"`
	Radius float64 `yaml:"radius" validate:"gte=0"`
}

type FleetFixture struct {
	Name        string `yaml:"name" validate:"required"`
	PlateNumber string `yaml:"plate_number"`
	Capacity    int    `yaml:"capacity" validate:"gte=0"`
	VehicleType string `yaml:"vehicle_type"`
	// Route names the route the fleet is assigned to and activated on.
	Route string `yaml:"route"`
}

const defaultRadius = 50

// Load reads and validates a fixture file.
func Load(path string) (*Fixtures, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes and validates fixtures.
func Parse(raw []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid fixtures: %w", err)
	}
	routes := map[string]bool{}
	for _, r := range f.Routes {
		routes[r.Name] = true
	}
	for _, fl := range f.Fleets {
		if fl.Route != "" && !routes[fl.Route] {
			return nil, fmt.Errorf("fleet %s: unknown route %q", fl.Name, fl.Route)
		}
	}
	return &f, nil
}

// Apply writes the fixtures. Rows are matched by name, so applying the same
// file twice changes nothing. Stages of an existing route are left alone.
func Apply(ctx context.Context, repo *repository.Repository, f *Fixtures) error {
	routeIDs := map[string]uint{}
	assignments := map[string]uint{}

	err := repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rf := range f.Routes {
			id, err := applyRoute(tx, rf)
			if err != nil {
				return fmt.Errorf("route %s: %w", rf.Name, err)
			}
			routeIDs[rf.Name] = id
		}

		for _, ff := range f.Fleets {
			fleet := models.Fleet{Name: ff.Name}
			if err := tx.Where(models.Fleet{Name: ff.Name}).
				Assign(models.Fleet{PlateNumber: ff.PlateNumber, Capacity: ff.Capacity, VehicleType: ff.VehicleType}).
				FirstOrCreate(&fleet).Error; err != nil {
				return fmt.Errorf("fleet %s: %w", ff.Name, err)
			}
			if ff.Route == "" {
				continue
			}
			fr := models.FleetRoute{FleetID: fleet.ID, RouteID: routeIDs[ff.Route]}
			if err := tx.Where(models.FleetRoute{FleetID: fleet.ID, RouteID: routeIDs[ff.Route]}).
				FirstOrCreate(&fr).Error; err != nil {
				return fmt.Errorf("assign fleet %s: %w", ff.Name, err)
			}
			assignments[ff.Name] = fr.ID
		}
		return nil
	})
	if err != nil {
		return err
	}

	for fleetNo, id := range assignments {
		if _, err := repo.ActivateFleetRoute(ctx, id); err != nil {
			return fmt.Errorf("activate route of %s: %w", fleetNo, err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"routes": len(f.Routes),
		"fleets": len(f.Fleets),
	}).Info("Fixtures applied")
	return nil
}

func applyRoute(tx *gorm.DB, rf RouteFixture) (uint, error) {
	var route models.Route
	err := tx.Where("name = ?", rf.Name).First(&route).Error
	if err == nil {
		return route.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	route = models.Route{Name: rf.Name, Description: rf.Description}
	if err := tx.Create(&route).Error; err != nil {
		return 0, err
	}
	for i, sf := range rf.Stages {
		radius := sf.Radius
		if radius == 0 {
			radius = defaultRadius
		}
		stage := models.Stage{Name: sf.Name}
		if err := tx.Where(models.Stage{Name: sf.Name}).
			Attrs(models.Stage{Lat: sf.Lat, Lng: sf.Lng, Radius: radius}).
			FirstOrCreate(&stage).Error; err != nil {
			return 0, err
		}
		if err := tx.Create(&models.RouteStage{RouteID: route.ID, StageID: stage.ID, Order: i}).Error; err != nil {
			return 0, err
		}
	}
	return route.ID, nil
}
