// ABOUTME: Validation error type shared by every package accepting user input
// ABOUTME: Lets callers distinguish rejected input from infrastructure failures

package models

import "fmt"

// ValidationError reports input rejected before it reaches storage or evaluation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
