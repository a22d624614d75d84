// ABOUTME: Sentinel errors for the geofence engine
// ABOUTME: Lifecycle errors callers compare with errors.Is

package geofence

import "errors"

// ErrDestroyed is returned by Initialize once the engine has been destroyed.
var ErrDestroyed = errors.New("geofence engine destroyed")
