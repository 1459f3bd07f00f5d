package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_tracker/internal/geofence"
)

func TestGPSReadingValidate(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name    string
		reading GPSReading
		wantErr bool
	}{
		{"valid", NewGPSReading("SM-001", -1.28, 36.82), false},
		{"zero coordinates", NewGPSReading("SM-001", 0, 0), false},
		{"bounds inclusive", NewGPSReading("SM-001", 90, -180), false},
		{"latitude out of range", NewGPSReading("SM-001", 90.01, 0), true},
		{"longitude out of range", NewGPSReading("SM-001", 0, 180.5), true},
		{"blank fleet", NewGPSReading("  ", 0, 0), true},
		{"missing latitude", GPSReading{FleetNo: "SM-001", Longitude: f(1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reading.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFleetCommandValidate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     FleetCommand
		wantErr bool
	}{
		{"start forward", FleetCommand{Command: CommandStartTrip, FleetNo: "SM-002", Args: &CommandArgs{Direction: geofence.Forward}}, false},
		{"start reverse", FleetCommand{Command: CommandStartTrip, FleetNo: "SM-002", Args: &CommandArgs{Direction: geofence.Reverse}}, false},
		{"start without args", FleetCommand{Command: CommandStartTrip, FleetNo: "SM-002"}, true},
		{"start bad direction", FleetCommand{Command: CommandStartTrip, FleetNo: "SM-002", Args: &CommandArgs{Direction: "up"}}, true},
		{"end", FleetCommand{Command: CommandEndTrip, FleetNo: "SM-002"}, false},
		{"unknown command", FleetCommand{Command: "pause", FleetNo: "SM-002"}, true},
		{"missing fleet", FleetCommand{Command: CommandEndTrip}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTelemetryKind(t *testing.T) {
	assert.Equal(t, KindTelemetryJSON, Telemetry{}.Kind())
	assert.Equal(t, KindTelemetryBinary, Telemetry{Binary: true}.Kind())

	raw, err := json.Marshal(Telemetry{Fields: map[string]any{"celsius": 21.5}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"celsius":21.5}`, string(raw))
}

func TestStreamKeyForTopic(t *testing.T) {
	assert.Equal(t, "sensors_gps", StreamKeyForTopic(TopicGPS))
	assert.Equal(t, "sensor_cmd_broadcast", StreamKeyForTopic(TopicCmdBroadcast))
}

func TestPartition(t *testing.T) {
	assert.Equal(t, GPSStream, GPSStreamFor("SM-001", 1))
	assert.Equal(t, GPSStream, GPSStreamFor("SM-001", 0))

	for _, fleet := range []string{"SM-001", "SM-002", "KDA 123A"} {
		p := Partition(fleet, 4)
		assert.GreaterOrEqual(t, p, 0)
		assert.Less(t, p, 4)
		assert.Equal(t, p, Partition(fleet, 4), "stable for %s", fleet)
		assert.Equal(t, GPSStreamKey(p, 4), GPSStreamFor(fleet, 4))
	}
	assert.Equal(t, "sensors_gps:3", GPSStreamKey(3, 4))
}
