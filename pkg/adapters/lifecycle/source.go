// Package lifecycle exposes store change events as a lifecycle.Source.
package lifecycle

import (
	"context"
	"slices"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/expipe/pkg/core"
)

// ChangeSource re-emits store change events. Events whose type is not in
// the allowed set are dropped; an empty set lets everything through.
type ChangeSource struct {
	events  <-chan core.Event
	allowed []core.EventType
	out     chan lifecycle.Event
}

// NewSource bridges events into the lifecycle runtime, optionally keeping
// only the given event types.
func NewSource(events <-chan core.Event, types ...core.EventType) *ChangeSource {
	return &ChangeSource{
		events:  events,
		allowed: types,
		out:     make(chan lifecycle.Event),
	}
}

// Events implements lifecycle.Source.
func (s *ChangeSource) Events() <-chan lifecycle.Event {
	return s.out
}

// Start forwards events until the input closes or ctx is done, then closes
// the output channel.
func (s *ChangeSource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			var e core.Event
			var ok bool
			select {
			case <-ctx.Done():
				return nil
			case e, ok = <-s.events:
				if !ok {
					return nil
				}
			}
			if len(s.allowed) > 0 && !slices.Contains(s.allowed, e.Type) {
				continue
			}
			select {
			case s.out <- e:
			case <-ctx.Done():
				return nil
			}
		}
	})
	return nil
}

var _ lifecycle.Source = (*ChangeSource)(nil)
