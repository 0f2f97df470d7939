package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToAllHandlers(t *testing.T) {
	bus := NewBus()

	var calls atomic.Int32
	received := make(chan Event, 2)
	handler := func(_ context.Context, event Event) error {
		calls.Add(1)
		received <- event
		return nil
	}

	bus.Subscribe(EventStateChanged, "first", handler)
	bus.Subscribe(EventStateChanged, "second", handler)
	require.Equal(t, 2, bus.HandlerCount(EventStateChanged))

	emitted := Event{
		Type:    EventStateChanged,
		Source:  "test",
		Payload: StateChangedPayload{Previous: "StandingBy", Current: "Active"},
	}
	bus.Emit(context.Background(), emitted)
	bus.Stop()

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, emitted, <-received)
}

func TestBusIgnoresOtherEventTypes(t *testing.T) {
	bus := NewBus()

	var calls atomic.Int32
	bus.Subscribe(EventStateChanged, "counter", func(context.Context, Event) error {
		calls.Add(1)
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventHeartbeatFailed})
	bus.Stop()

	assert.Zero(t, calls.Load())
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	handler := func(context.Context, Event) error { return nil }
	bus.Subscribe(EventAgentStopped, "keep", handler)
	bus.Subscribe(EventAgentStopped, "drop", handler)

	bus.Unsubscribe(EventAgentStopped, "drop")
	assert.Equal(t, 1, bus.HandlerCount(EventAgentStopped))

	bus.Unsubscribe(EventMaintenanceScheduled, "absent")
}

func TestBusContainsHandlerPanics(t *testing.T) {
	bus := NewBus()

	done := make(chan struct{})
	bus.Subscribe(EventOperationReceived, "panics", func(context.Context, Event) error {
		panic("boom")
	})
	bus.Subscribe(EventOperationReceived, "survives", func(context.Context, Event) error {
		close(done)
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventOperationReceived})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("surviving handler never ran")
	}
	bus.Stop()
}

func TestBusHandlerErrorsDoNotPropagate(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(EventHeartbeatFailed, "failing", func(context.Context, Event) error {
		return errors.New("handler failure")
	})

	bus.Emit(context.Background(), Event{Type: EventHeartbeatFailed})
	bus.Stop()
}

func TestBusStopRejectsFurtherEvents(t *testing.T) {
	bus := NewBus()

	var calls atomic.Int32
	bus.Subscribe(EventStateChanged, "counter", func(context.Context, Event) error {
		calls.Add(1)
		return nil
	})

	bus.Stop()
	bus.Emit(context.Background(), Event{Type: EventStateChanged})

	assert.Zero(t, calls.Load())
}
