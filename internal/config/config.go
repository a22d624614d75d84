// ABOUTME: Geofence configuration management with backend selection
// ABOUTME: Handles settings, transport sections, env overrides, and the storage backend factory

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/harper/geofence/internal/charm"
	"github.com/harper/geofence/internal/location"
	"github.com/harper/geofence/internal/storage"
)

// Backends lists the supported storage backends.
var Backends = []string{"sqlite", "badger", "charm", "redis", "memory"}

// Config stores geofence configuration.
type Config struct {
	// Backend selects the storage backend: "sqlite" (default), "badger",
	// "charm", "redis", or "memory".
	Backend string `json:"backend,omitempty"`

	// DataDir is the root directory for file-backed storage.
	// Supports ~ expansion for home directory. Defaults to ~/.local/share/geofence.
	DataDir string `json:"data_dir,omitempty"`

	LogLevel string `json:"log_level,omitempty"`

	// SeedDefaultZones adds the built-in example zones on startup.
	SeedDefaultZones bool `json:"seed_default_zones,omitempty"`

	HistoryCapacity    int `json:"history_capacity,omitempty"`
	TransitionCapacity int `json:"transition_capacity,omitempty"`

	Tracking TrackingConfig `json:"tracking"`
	Redis    RedisConfig    `json:"redis"`
	Charm    CharmConfig    `json:"charm"`
	MQTT     MQTTConfig     `json:"mqtt"`
	AMQP     AMQPConfig     `json:"amqp"`
	HTTP     HTTPConfig     `json:"http"`
}

// TrackingConfig mirrors location.TrackingConfig in file-friendly units.
type TrackingConfig struct {
	Accuracy           string  `json:"accuracy,omitempty"`
	MinIntervalSeconds int     `json:"min_interval_seconds,omitempty"`
	MinDistanceMeters  float64 `json:"min_distance_meters,omitempty"`
	Background         bool    `json:"background,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

type CharmConfig struct {
	Host   string `json:"host,omitempty"`
	DBName string `json:"db_name,omitempty"`
	// AutoSync defaults to true when unset.
	AutoSync *bool `json:"auto_sync,omitempty"`
}

type MQTTConfig struct {
	Broker   string `json:"broker,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	QoS      byte   `json:"qos,omitempty"`
}

type AMQPConfig struct {
	URL      string `json:"url,omitempty"`
	Exchange string `json:"exchange,omitempty"`
	Queue    string `json:"queue,omitempty"`
}

type HTTPConfig struct {
	Addr string `json:"addr,omitempty"`
}

// GetBackend returns the configured backend, defaulting to "sqlite".
func (c *Config) GetBackend() string {
	if c.Backend == "" {
		return "sqlite"
	}
	return strings.ToLower(c.Backend)
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return defaultDataDir()
	}
	return ExpandPath(c.DataDir)
}

// GetLogLevel returns the configured log level, defaulting to "info".
func (c *Config) GetLogLevel() string {
	if c.LogLevel == "" {
		return "info"
	}
	return c.LogLevel
}

// GetHTTPAddr returns the API listen address, defaulting to 127.0.0.1:8787.
func (c *Config) GetHTTPAddr() string {
	if c.HTTP.Addr == "" {
		return "127.0.0.1:8787"
	}
	return c.HTTP.Addr
}

// LocationTracking converts the tracking section. Zero values fall back to
// the tracker defaults.
func (c *Config) LocationTracking() location.TrackingConfig {
	return location.TrackingConfig{
		DesiredAccuracy:   location.Accuracy(c.Tracking.Accuracy),
		MinInterval:       time.Duration(c.Tracking.MinIntervalSeconds) * time.Second,
		MinDistanceMeters: c.Tracking.MinDistanceMeters,
		EnableBackground:  c.Tracking.Background,
	}
}

// Validate checks the backend and tracking settings.
func (c *Config) Validate() error {
	backend := c.GetBackend()
	known := false
	for _, b := range Backends {
		if b == backend {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown backend: %q", c.Backend)
	}
	if backend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis backend requires redis.addr")
	}
	switch location.Accuracy(c.Tracking.Accuracy) {
	case "", location.AccuracyLow, location.AccuracyBalanced, location.AccuracyHigh, location.AccuracyBest:
	default:
		return fmt.Errorf("unknown tracking accuracy: %q", c.Tracking.Accuracy)
	}
	if c.Tracking.MinIntervalSeconds < 0 || c.Tracking.MinDistanceMeters < 0 {
		return fmt.Errorf("tracking interval and distance must not be negative")
	}
	if c.HistoryCapacity < 0 || c.TransitionCapacity < 0 {
		return fmt.Errorf("capacities must not be negative")
	}
	return nil
}

// defaultDataDir returns the default XDG data directory for geofence.
func defaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "geofence")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// OpenStore creates the storage.KV for the configured backend.
func (c *Config) OpenStore() (storage.KV, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	dataDir := c.GetDataDir()

	switch c.GetBackend() {
	case "sqlite":
		return storage.NewSQLiteKV(filepath.Join(dataDir, "geofence.db"))
	case "badger":
		return storage.NewBadgerKV(filepath.Join(dataDir, "badger"))
	case "charm":
		cfg := charm.DefaultConfig()
		if c.Charm.Host != "" {
			cfg.CharmHost = c.Charm.Host
		}
		if c.Charm.DBName != "" {
			cfg.DBName = c.Charm.DBName
		}
		if c.Charm.AutoSync != nil {
			cfg.AutoSync = *c.Charm.AutoSync
		}
		return charm.New(cfg)
	case "redis":
		return storage.NewRedisKV(c.Redis.Addr, c.Redis.Password, c.Redis.DB, c.Redis.Prefix)
	default:
		return storage.NewMemoryKV(), nil
	}
}

// GetConfigPath returns the config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "geofence", "config.json")
}

// Load reads config from disk and applies GEOFENCE_* environment overrides.
// On first run a default config is written.
func Load() (*Config, error) {
	path := GetConfigPath()
	data, err := os.ReadFile(path) //#nosec G304 -- path is derived from the user's config dir
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg := &Config{Backend: "sqlite"}
		if saveErr := cfg.Save(); saveErr != nil {
			fmt.Fprintf(os.Stderr, "warning: could not save default config: %v\n", saveErr)
		}
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	strs := map[string]*string{
		"GEOFENCE_BACKEND":     &cfg.Backend,
		"GEOFENCE_DATA_DIR":    &cfg.DataDir,
		"GEOFENCE_LOG_LEVEL":   &cfg.LogLevel,
		"GEOFENCE_HTTP_ADDR":   &cfg.HTTP.Addr,
		"GEOFENCE_MQTT_BROKER": &cfg.MQTT.Broker,
		"GEOFENCE_DEVICE_ID":   &cfg.MQTT.DeviceID,
		"GEOFENCE_AMQP_URL":    &cfg.AMQP.URL,
		"GEOFENCE_REDIS_ADDR":  &cfg.Redis.Addr,
		"GEOFENCE_CHARM_HOST":  &cfg.Charm.Host,
	}
	for env, dst := range strs {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("GEOFENCE_TRACKING_BACKGROUND"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tracking.Background = b
		}
	}
}

// Save writes config to disk atomically.
func (c *Config) Save() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(GetConfigPath(), data)
}

// atomicWrite writes to a temp file in the same directory and renames it
// over path.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmpName, path)
}
