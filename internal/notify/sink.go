// ABOUTME: Notification sink contract and simple compositions
// ABOUTME: Multi delivers to every sink and joins their errors

package notify

import (
	"context"
	"errors"

	"github.com/harper/geofence/internal/models"
)

// Sink delivers a user-visible alert for a transition.
type Sink interface {
	Deliver(ctx context.Context, tr models.Transition) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, tr models.Transition) error

func (f SinkFunc) Deliver(ctx context.Context, tr models.Transition) error {
	return f(ctx, tr)
}

// Nop discards every transition.
type Nop struct{}

func (Nop) Deliver(context.Context, models.Transition) error { return nil }

// Multi delivers to each sink in order. A failing sink does not stop the rest.
type Multi []Sink

func (m Multi) Deliver(ctx context.Context, tr models.Transition) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, tr); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
