// Package hooks implements a fan-out event bus for scheduler observability.
//
// The scheduler publishes lifecycle events (node transitions, reasoner
// dispatch, checkpoint writes, run completion) to the bus so that hosts can
// subscribe for streaming, telemetry, or debugging without coupling to
// scheduler internals.
package hooks

import (
	"context"
	"errors"
	"sync"
)

type (
	// Bus publishes scheduler events to registered subscribers in a fan-out
	// pattern. The bus is thread-safe and supports concurrent Publish,
	// Register, and Close operations.
	//
	// Events are delivered synchronously in the publisher's goroutine, and
	// iteration stops at the first subscriber error. This fail-fast behavior
	// lets a critical subscriber (e.g., a checkpoint-confirming sink) halt
	// the run if it encounters an unrecoverable error.
	Bus interface {
		// Publish delivers the event to every currently registered subscriber.
		// Subscribers are invoked in registration order, and iteration stops at
		// the first error returned by any subscriber.
		Publish(ctx context.Context, event Event) error

		// Register adds a subscriber to the bus and returns a Subscription that
		// can be closed to unregister. Register returns an error if sub is nil.
		Register(sub Subscriber) (Subscription, error)
	}

	// Subscriber reacts to published scheduler events by implementing
	// HandleEvent. Subscribers are registered with a Bus and receive all
	// events in FIFO order until their subscription is closed.
	//
	// HandleEvent should return an error only if processing fails in a way
	// that should halt the run; non-critical failures should be logged and
	// ignored to avoid blocking other subscribers.
	Subscriber interface {
		HandleEvent(ctx context.Context, event Event) error
	}

	// SubscriberFunc is an adapter that allows ordinary functions to act as
	// Subscribers.
	SubscriberFunc func(ctx context.Context, event Event) error

	// Subscription represents an active registration on a Bus. Calling Close
	// removes the subscriber, and is safe to call multiple times.
	Subscription interface {
		Close() error
	}

	bus struct {
		mu          sync.RWMutex
		subscribers map[*subscription]Subscriber
		order       []*subscription
	}

	subscription struct {
		bus  *bus
		once sync.Once
	}
)

// HandleEvent implements Subscriber by invoking the function.
func (fn SubscriberFunc) HandleEvent(ctx context.Context, event Event) error {
	return fn(ctx, event)
}

// NewBus constructs a new in-memory event bus. The returned bus is
// thread-safe and ready for immediate use.
func NewBus() Bus {
	return &bus{subscribers: make(map[*subscription]Subscriber)}
}

// Publish delivers the event to every currently registered subscriber in
// registration order. A snapshot of subscribers is taken before iteration
// begins, so registrations/unregistrations during Publish do not affect the
// current delivery.
func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.order))
	for _, s := range b.order {
		if sub, ok := b.subscribers[s]; ok {
			subs = append(subs, sub)
		}
	}
	b.mu.RUnlock()
	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Register adds a subscriber to the bus and returns a Subscription handle
// that can be closed to unregister.
func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("subscriber is required")
	}
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[s] = sub
	b.order = append(b.order, s)
	b.mu.Unlock()
	return s, nil
}

// Close removes the subscriber from the bus. Idempotent and thread-safe.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
	})
	return nil
}
