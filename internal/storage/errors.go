// ABOUTME: Common storage errors
// ABOUTME: Enables consistent error handling across storage implementations

package storage

import "errors"

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("not found")

// ErrCorrupt is returned when a stored collection cannot be decoded.
var ErrCorrupt = errors.New("stored data is corrupt")

// ErrReadOnly is returned when attempting to write to a read-only store.
var ErrReadOnly = errors.New("storage is read-only")
