// ABOUTME: Contracts with the platform location provider and upload endpoint
// ABOUTME: Permission tiers, accuracy levels, and watch options

package location

import (
	"context"
	"time"

	"github.com/harper/geofence/internal/models"
)

// PermissionState is the outcome of a permission query or request.
type PermissionState string

const (
	PermissionGranted      PermissionState = "granted"
	PermissionDenied       PermissionState = "denied"
	PermissionUndetermined PermissionState = "undetermined"
)

// Tier is an independently granted permission level.
type Tier string

const (
	TierForeground Tier = "foreground"
	TierBackground Tier = "background"
)

// PermissionResponse is what the platform reports for one tier.
type PermissionResponse struct {
	State       PermissionState
	CanAskAgain bool
}

// PermissionStatus summarizes both tiers.
type PermissionStatus struct {
	Granted     bool            `json:"granted"`
	Foreground  PermissionState `json:"foreground"`
	Background  PermissionState `json:"background"`
	CanAskAgain bool            `json:"can_ask_again"`
}

// Accuracy is the requested positioning accuracy.
type Accuracy string

const (
	AccuracyLow      Accuracy = "low"
	AccuracyBalanced Accuracy = "balanced"
	AccuracyHigh     Accuracy = "high"
	AccuracyBest     Accuracy = "best"
)

// WatchOptions configure a continuous subscription.
type WatchOptions struct {
	Accuracy          Accuracy
	MinInterval       time.Duration
	MinDistanceMeters float64
}

// Provider is the platform location source.
// Watch and StartBackground return a stop function; stop must be idempotent
// and safe to call from inside the sample callback. The context bounds the
// setup call only, not the lifetime of the subscription.
type Provider interface {
	ForegroundPermission(ctx context.Context) (PermissionResponse, error)
	BackgroundPermission(ctx context.Context) (PermissionResponse, error)
	RequestForegroundPermission(ctx context.Context) (PermissionResponse, error)
	RequestBackgroundPermission(ctx context.Context) (PermissionResponse, error)
	CurrentSample(ctx context.Context, accuracy Accuracy) (models.Sample, error)
	Watch(ctx context.Context, opts WatchOptions, fn func(models.Sample)) (func(), error)
	StartBackground(ctx context.Context, opts WatchOptions, fn func(models.Sample)) (func(), error)
}

// Uploader sends accepted samples to a remote backend.
type Uploader interface {
	Upload(ctx context.Context, s models.Sample) error
}
