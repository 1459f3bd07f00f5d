// Package events defines the payload carried on each stream. Every payload
// type has a fixed kind tag and a fixed JSON shape; decoding rejects anything else.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"fleet_tracker/internal/geofence"
)

// Stream keys.
const (
	MovementStream = "fleet_movement_stream"
	GPSStream      = "sensors_gps"
	CommandStream  = "fleet_commands"
)

// External telemetry topics.
const (
	TopicGPS          = "sensors/gps"
	TopicTemperature  = "sensors/tmp"
	TopicCmdBroadcast = "sensor/cmd/broadcast"
)

// Topics is the set of telemetry topics the bridge subscribes to.
var Topics = []string{TopicGPS, TopicTemperature, TopicCmdBroadcast}

// Kind tags.
const (
	KindGPSReading      = "gps.reading"
	KindMovementState   = "movement.state"
	KindFleetCommand    = "fleet.command"
	KindTelemetryJSON   = "telemetry.json"
	KindTelemetryBinary = "telemetry.binary"
)

// Message is anything that can be published on a stream.
type Message interface {
	Kind() string
}

// StreamKeyForTopic derives the stream key a topic is republished on.
func StreamKeyForTopic(topic string) string {
	return strings.ReplaceAll(topic, "/", "_")
}

var validate = validator.New()

// GPSReading is one position fix for a fleet.
type GPSReading struct {
	FleetNo   string   `json:"fleetNo" validate:"required"`
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	// ReceivedAt is filled from entry metadata, never from the device.
	ReceivedAt time.Time `json:"-"`
}

func (GPSReading) Kind() string { return KindGPSReading }

// Validate checks the reading against the GPS schema.
func (g GPSReading) Validate() error {
	if strings.TrimSpace(g.FleetNo) == "" {
		return fmt.Errorf("fleetNo must not be blank")
	}
	return validate.Struct(g)
}

// Lat returns the latitude, zero when absent.
func (g GPSReading) Lat() float64 {
	if g.Latitude == nil {
		return 0
	}
	return *g.Latitude
}

// Lng returns the longitude, zero when absent.
func (g GPSReading) Lng() float64 {
	if g.Longitude == nil {
		return 0
	}
	return *g.Longitude
}

// NewGPSReading builds a reading from plain coordinates.
func NewGPSReading(fleetNo string, lat, lng float64) GPSReading {
	return GPSReading{FleetNo: fleetNo, Latitude: &lat, Longitude: &lng}
}

// MovementState is the derived position of a fleet on its route.
type MovementState struct {
	FleetNo        string             `json:"fleetNo"`
	FleetID        uint               `json:"fleetId,omitempty"`
	RouteID        uint               `json:"routeId"`
	RouteName      string             `json:"routeName"`
	CurrentStageID uint               `json:"currentStageId"`
	CurrentStage   string             `json:"currentStage"`
	NextStageID    uint               `json:"nextStageId,omitempty"`
	NextStage      string             `json:"nextStage,omitempty"`
	Direction      geofence.Direction `json:"direction"`
	TripID         uint               `json:"tripId,omitempty"`
	// Terminal is set when CurrentStage ends the leg that was just travelled.
	Terminal   bool      `json:"terminal,omitempty"`
	ObservedAt time.Time `json:"observedAt"`
}

func (MovementState) Kind() string { return KindMovementState }

// HasNext reports whether a next stage is known.
func (m MovementState) HasNext() bool {
	return m.NextStageID != 0
}

// Command names.
const (
	CommandStartTrip = "start-trip"
	CommandEndTrip   = "end-trip"
)

// FleetCommand is an operator instruction for one fleet.
type FleetCommand struct {
	Command string       `json:"command" validate:"required,oneof=start-trip end-trip"`
	FleetNo string       `json:"fleetNo" validate:"required"`
	Args    *CommandArgs `json:"args,omitempty"`
}

func (FleetCommand) Kind() string { return KindFleetCommand }

// CommandArgs carries command arguments. Only start-trip takes any.
type CommandArgs struct {
	Direction geofence.Direction `json:"direction,omitempty"`
}

// Validate checks the command and, for start-trip, its arguments.
func (c FleetCommand) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Command == CommandStartTrip {
		return c.StartTripArgs().Validate()
	}
	return nil
}

// StartTripArgs returns the arguments for start-trip.
func (c FleetCommand) StartTripArgs() StartTripArgs {
	if c.Args == nil {
		return StartTripArgs{}
	}
	return StartTripArgs{Direction: c.Args.Direction}
}

// StartTripArgs are the start-trip arguments.
type StartTripArgs struct {
	Direction geofence.Direction
}

func (a StartTripArgs) Validate() error {
	if !a.Direction.Valid() {
		return fmt.Errorf("direction must be %q or %q, got %q", geofence.Forward, geofence.Reverse, a.Direction)
	}
	return nil
}

// Telemetry is a bridged message whose shape is not known to the core.
type Telemetry struct {
	Binary bool
	Fields map[string]any
}

func (t Telemetry) Kind() string {
	if t.Binary {
		return KindTelemetryBinary
	}
	return KindTelemetryJSON
}

// MarshalJSON encodes only the fields; the encoding travels in the kind tag.
func (t Telemetry) MarshalJSON() ([]byte, error) {
	if t.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(t.Fields)
}
