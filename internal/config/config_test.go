package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 1, cfg.GPSPartitions)
	assert.Equal(t, "drop", cfg.InitialPlacement)
	assert.Equal(t, 5*time.Second, cfg.StreamBlock())
	assert.Equal(t, time.Minute, cfg.StreamClaimTimeout())
	assert.Equal(t, []int{0}, cfg.OwnedPartitions())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("GPS_PARTITIONS", "4")
	t.Setenv("GPS_PARTITIONS_OWNED", "1, 3")
	t.Setenv("INITIAL_PLACEMENT", "nearest")
	t.Setenv("STREAM_BLOCK_MS", "250")
	t.Setenv("STREAM_BATCH_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, "redis:6380", cfg.RedisAddr)
	assert.Equal(t, []int{1, 3}, cfg.OwnedPartitions())
	assert.Equal(t, "nearest", cfg.InitialPlacement)
	assert.Equal(t, 250*time.Millisecond, cfg.StreamBlock())
	assert.Equal(t, int64(10), cfg.StreamBatchSize, "bad integers fall back to the default")
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_port: "7070"
gps_partitions: 2
mqtt_broker: tcp://broker:1883
stream_max_len: 5000
`), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_PORT", "6060")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "6060", cfg.HTTPPort, "environment wins over the file")
	assert.Equal(t, "tcp://broker:1883", cfg.MQTTBroker)
	assert.Equal(t, int64(5000), cfg.StreamMaxLen)
	assert.Equal(t, []int{0, 1}, cfg.OwnedPartitions())
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown placement", map[string]string{"INITIAL_PLACEMENT": "teleport"}},
		{"owned partition out of range", map[string]string{"GPS_PARTITIONS": "2", "GPS_PARTITIONS_OWNED": "2"}},
		{"zero partitions", map[string]string{"GPS_PARTITIONS": "0"}},
		{"bad redis address", map[string]string{"REDIS_ADDR": "redis"}},
		{"unknown log level", map[string]string{"LOG_LEVEL": "loud"}},
		{"missing config file", map[string]string{"CONFIG_FILE": "/nonexistent/config.yml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestMQTTOptions(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	opts := MQTTOptions(cfg, nil)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "localhost:1883", opts.Servers[0].Host)
	assert.Equal(t, "fleet-tracker", opts.ClientID)
	assert.False(t, opts.CleanSession)
	assert.True(t, opts.AutoReconnect)
}
