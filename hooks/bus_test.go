package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		_, err := bus.Register(SubscriberFunc(func(_ context.Context, _ Event) error {
			order = append(order, i)
			return nil
		}))
		require.NoError(t, err)
	}

	require.NoError(t, bus.Publish(context.Background(), NewRunFinishedEvent("run-1", "ok", "", "")))
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPublishStopsAtFirstSubscriberError(t *testing.T) {
	bus := NewBus()
	var called []int
	errBoom := errors.New("boom")

	_, err := bus.Register(SubscriberFunc(func(_ context.Context, _ Event) error {
		called = append(called, 1)
		return nil
	}))
	require.NoError(t, err)
	_, err = bus.Register(SubscriberFunc(func(_ context.Context, _ Event) error {
		called = append(called, 2)
		return errBoom
	}))
	require.NoError(t, err)
	_, err = bus.Register(SubscriberFunc(func(_ context.Context, _ Event) error {
		called = append(called, 3)
		return nil
	}))
	require.NoError(t, err)

	err = bus.Publish(context.Background(), NewRunFinishedEvent("run-1", "ok", "", ""))
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, []int{1, 2}, called, "delivery must stop at the first error and never reach the third subscriber")
}

func TestClosedSubscriptionStopsReceivingEvents(t *testing.T) {
	bus := NewBus()
	count := 0
	sub, err := bus.Register(SubscriberFunc(func(_ context.Context, _ Event) error {
		count++
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), NewRunFinishedEvent("run-1", "ok", "", "")))
	require.Equal(t, 1, count)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "Close must be idempotent")
	require.NoError(t, bus.Publish(context.Background(), NewRunFinishedEvent("run-1", "ok", "", "")))
	require.Equal(t, 1, count, "a closed subscription must not receive further events")
}

func TestRegisterNilSubscriberReturnsError(t *testing.T) {
	bus := NewBus()
	_, err := bus.Register(nil)
	require.Error(t, err)
}
