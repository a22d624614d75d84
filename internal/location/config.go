// ABOUTME: Tracker and tracking configuration with defaults
// ABOUTME: Zero values are replaced by the defaults below

package location

import (
	"time"

	"github.com/harper/geofence/internal/metrics"
	"github.com/harper/geofence/internal/storage"
	"github.com/rs/zerolog"
)

const (
	DefaultHistoryCapacity      = 1000
	DefaultMinInterval          = 30 * time.Second
	DefaultMinDistanceMeters    = 10.0
	DefaultMaxConcurrentUploads = 4
	DefaultUploadTimeout        = 15 * time.Second
)

// TrackingConfig controls a continuous tracking session.
type TrackingConfig struct {
	DesiredAccuracy   Accuracy      `json:"desired_accuracy"`
	MinInterval       time.Duration `json:"min_interval"`
	MinDistanceMeters float64       `json:"min_distance_meters"`
	EnableBackground  bool          `json:"enable_background"`
}

// DefaultTrackingConfig returns balanced accuracy, 30s, 10m, foreground only.
func DefaultTrackingConfig() TrackingConfig {
	return TrackingConfig{
		DesiredAccuracy:   AccuracyBalanced,
		MinInterval:       DefaultMinInterval,
		MinDistanceMeters: DefaultMinDistanceMeters,
	}
}

func (c TrackingConfig) withDefaults() TrackingConfig {
	d := DefaultTrackingConfig()
	if c.DesiredAccuracy == "" {
		c.DesiredAccuracy = d.DesiredAccuracy
	}
	if c.MinInterval <= 0 {
		c.MinInterval = d.MinInterval
	}
	if c.MinDistanceMeters <= 0 {
		c.MinDistanceMeters = d.MinDistanceMeters
	}
	return c
}

func (c TrackingConfig) watchOptions() WatchOptions {
	return WatchOptions{
		Accuracy:          c.DesiredAccuracy,
		MinInterval:       c.MinInterval,
		MinDistanceMeters: c.MinDistanceMeters,
	}
}

// Config wires the tracker's collaborators. Only the provider is required.
type Config struct {
	Store    storage.KV
	Uploader Uploader
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics

	HistoryCapacity      int
	MaxConcurrentUploads int
	UploadTimeout        time.Duration

	// OnPermissionDenied is called once per tier after a denial, until that
	// tier is granted again.
	OnPermissionDenied func(Tier)
}
