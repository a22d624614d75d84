// ABOUTME: Remote sync configuration for location history uploads
// ABOUTME: Handles loading, saving, and environment overrides for sync settings

package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Config represents the sync configuration.
type Config struct {
	Server   string `json:"server"`
	Token    string `json:"token"`
	DeviceID string `json:"device_id"`
	AutoSync bool   `json:"auto_sync"`
}

// ConfigPath returns the path to the sync config file.
// Respects XDG_CONFIG_HOME if set, otherwise falls back to ~/.config.
func ConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "geofence", "sync.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".geofence", "sync.json")
	}
	return filepath.Join(home, ".config", "geofence", "sync.json")
}

// ConfigDir returns the directory containing the config file.
func ConfigDir() string {
	return filepath.Dir(ConfigPath())
}

// EnsureConfigDir creates the config directory if it doesn't exist.
// A regular file in its place is moved aside.
func EnsureConfigDir() error {
	dir := ConfigDir()
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		backup := dir + ".backup." + time.Now().Format("20060102-150405")
		if err := os.Rename(dir, backup); err != nil {
			return fmt.Errorf("config path %s is a file, failed to backup: %w", dir, err)
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("check config dir: %w", err)
	}
	return os.MkdirAll(dir, 0o750)
}

// LoadConfig loads config from file and applies environment variable overrides.
// A missing file yields an empty, unconfigured config.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	configPath := ConfigPath()

	info, statErr := os.Stat(configPath)
	if statErr == nil && info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory, not a file", configPath)
	}

	//#nosec G304 -- configPath is derived from user's home directory
	data, err := os.ReadFile(configPath)
	if err == nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			backup := configPath + ".corrupt." + time.Now().Format("20060102-150405")
			if renameErr := os.Rename(configPath, backup); renameErr == nil {
				fmt.Fprintf(os.Stderr, "Warning: corrupted config backed up to %s\n", backup)
			}
			return nil, fmt.Errorf("config file corrupted: %w", jsonErr)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if server := os.Getenv("GEOFENCE_SYNC_SERVER"); server != "" {
		cfg.Server = server
	}
	if token := os.Getenv("GEOFENCE_SYNC_TOKEN"); token != "" {
		cfg.Token = token
	}
	if deviceID := os.Getenv("GEOFENCE_SYNC_DEVICE_ID"); deviceID != "" {
		cfg.DeviceID = deviceID
	}
	switch os.Getenv("GEOFENCE_SYNC_AUTO") {
	case "1", "true":
		cfg.AutoSync = true
	case "0", "false":
		cfg.AutoSync = false
	}
}

// SaveConfig writes config to file.
func SaveConfig(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(), data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// InitConfig creates and saves a new config with a fresh device ID.
func InitConfig(server, token string) (*Config, error) {
	cfg := &Config{
		Server:   server,
		Token:    token,
		DeviceID: uuid.NewString(),
		AutoSync: server != "",
	}

	if err := SaveConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ConfigExists returns true if config file exists.
func ConfigExists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

// IsConfigured returns true if uploads can be attempted.
func (c *Config) IsConfigured() bool {
	return c.Server != "" && c.Token != "" && c.DeviceID != ""
}
