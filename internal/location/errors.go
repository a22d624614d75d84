// ABOUTME: Error types returned by the location tracker
// ABOUTME: Permission failures are typed so callers can prompt the user

package location

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied matches any *PermissionError via errors.Is.
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrDeviceUnavailable wraps provider failures. Callers may retry.
	ErrDeviceUnavailable = errors.New("location device unavailable")
)

// PermissionError reports a tier that is not granted.
type PermissionError struct {
	Tier  Tier
	State PermissionState
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s location permission %s", e.Tier, e.State)
}

func (e *PermissionError) Is(target error) bool {
	return target == ErrPermissionDenied
}
