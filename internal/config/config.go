package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds every setting the server and the CLI need.
// Values come from defaults, then an optional YAML file, then the environment.
type Config struct {
	HTTPPort   string `yaml:"http_port" validate:"required"`
	InstanceID string `yaml:"instance_id" validate:"required"`

	// Postgres
	DBHost     string `yaml:"db_host" validate:"required"`
	DBPort     string `yaml:"db_port" validate:"required"`
	DBUser     string `yaml:"db_user" validate:"required"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name" validate:"required"`
	DBSSLMode  string `yaml:"db_sslmode"`
	DBTimezone string `yaml:"db_timezone"`

	// Redis
	RedisAddr     string `yaml:"redis_addr" validate:"required,hostname_port"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" validate:"gte=0"`

	// MQTT
	MQTTBroker   string `yaml:"mqtt_broker" validate:"required"`
	MQTTClientID string `yaml:"mqtt_client_id" validate:"required"`

	// Streams
	StreamBatchSize      int64 `yaml:"stream_batch_size" validate:"gte=1"`
	StreamBlockMS        int   `yaml:"stream_block_ms" validate:"gte=0"`
	StreamClaimTimeoutMS int   `yaml:"stream_claim_timeout_ms" validate:"gte=0"`
	StreamScanWindow     int64 `yaml:"stream_scan_window" validate:"gte=1"`
	StreamMaxLen         int64 `yaml:"stream_max_len" validate:"gte=0"`

	// GPS partitioning
	GPSPartitions      int   `yaml:"gps_partitions" validate:"gte=1"`
	GPSPartitionsOwned []int `yaml:"gps_partitions_owned"`

	InitialPlacement string `yaml:"initial_placement" validate:"oneof=drop nearest"`

	// Auth
	JWTSecret string `yaml:"jwt_secret" validate:"required"`

	// Logging
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level" validate:"oneof=trace debug info warn warning error fatal panic"`
}

// Load reads .env (if present), the YAML file named by CONFIG_FILE (if set)
// and the process environment, then validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found – relying on env vars")
	}

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	for _, p := range cfg.GPSPartitionsOwned {
		if p < 0 || p >= cfg.GPSPartitions {
			return nil, fmt.Errorf("invalid configuration: owned partition %d outside [0,%d)", p, cfg.GPSPartitions)
		}
	}
	return cfg, nil
}

func defaults() *Config {
	host, _ := os.Hostname()
	if host == "" {
		host = "fleet-tracker"
	}
	return &Config{
		HTTPPort:             "8080",
		InstanceID:           host,
		DBHost:               "localhost",
		DBPort:               "5432",
		DBUser:               "postgres",
		DBPassword:           "password",
		DBName:               "tracker",
		DBSSLMode:            "disable",
		DBTimezone:           "UTC",
		RedisAddr:            "localhost:6379",
		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientID:         "fleet-tracker",
		StreamBatchSize:      10,
		StreamBlockMS:        5000,
		StreamClaimTimeoutMS: 60000,
		StreamScanWindow:     100,
		GPSPartitions:        1,
		InitialPlacement:     "drop",
		JWTSecret:            "supersecret",
		LogFile:              "./logs/app.log",
		LogLevel:             "debug",
	}
}

func applyEnv(cfg *Config) {
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.InstanceID = getEnv("INSTANCE_ID", cfg.InstanceID)
	cfg.DBHost = getEnv("DB_HOST", cfg.DBHost)
	cfg.DBPort = getEnv("DB_PORT", cfg.DBPort)
	cfg.DBUser = getEnv("DB_USER", cfg.DBUser)
	cfg.DBPassword = getEnv("DB_PASSWORD", cfg.DBPassword)
	cfg.DBName = getEnv("DB_NAME", cfg.DBName)
	cfg.DBSSLMode = getEnv("DB_SSLMODE", cfg.DBSSLMode)
	cfg.DBTimezone = getEnv("DB_TIMEZONE", cfg.DBTimezone)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.MQTTBroker = getEnv("MQTT_BROKER", cfg.MQTTBroker)
	cfg.MQTTClientID = getEnv("MQTT_CLIENT_ID", cfg.MQTTClientID)
	cfg.StreamBatchSize = int64(getEnvInt("STREAM_BATCH_SIZE", int(cfg.StreamBatchSize)))
	cfg.StreamBlockMS = getEnvInt("STREAM_BLOCK_MS", cfg.StreamBlockMS)
	cfg.StreamClaimTimeoutMS = getEnvInt("STREAM_CLAIM_TIMEOUT_MS", cfg.StreamClaimTimeoutMS)
	cfg.StreamScanWindow = int64(getEnvInt("STREAM_SCAN_WINDOW", int(cfg.StreamScanWindow)))
	cfg.StreamMaxLen = int64(getEnvInt("STREAM_MAX_LEN", int(cfg.StreamMaxLen)))
	cfg.GPSPartitions = getEnvInt("GPS_PARTITIONS", cfg.GPSPartitions)
	if v := os.Getenv("GPS_PARTITIONS_OWNED"); v != "" {
		cfg.GPSPartitionsOwned = parseIntList(v)
	}
	cfg.InitialPlacement = getEnv("INITIAL_PLACEMENT", cfg.InitialPlacement)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
}

// OwnedPartitions returns the GPS partitions this process consumes.
// An empty GPS_PARTITIONS_OWNED means all of them.
func (c *Config) OwnedPartitions() []int {
	if len(c.GPSPartitionsOwned) > 0 {
		return c.GPSPartitionsOwned
	}
	all := make([]int, c.GPSPartitions)
	for i := range all {
		all[i] = i
	}
	return all
}

func (c *Config) StreamBlock() time.Duration {
	return time.Duration(c.StreamBlockMS) * time.Millisecond
}

func (c *Config) StreamClaimTimeout() time.Duration {
	return time.Duration(c.StreamClaimTimeoutMS) * time.Millisecond
}

// getEnv reads an environment variable or returns the provided default
func getEnv(key, fallback string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.WithFields(logrus.Fields{"key": key, "value": v}).Warn("Ignoring non-integer environment value")
		return fallback
	}
	return n
}

func parseIntList(v string) []int {
	var out []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			logrus.WithField("value", part).Warn("Ignoring non-integer partition id")
			continue
		}
		out = append(out, n)
	}
	return out
}
