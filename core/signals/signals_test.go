package signals

import (
	"testing"
	"time"
)

func TestEmitReachesGlobalListenersBeforeNamedOnes(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.Register(ConversationInterrupted, func(Signal) { order = append(order, "named") })
	bus.RegisterAll(func(Signal) { order = append(order, "global") })

	bus.Emit(New(ConversationInterrupted, nil))

	if len(order) != 2 || order[0] != "global" || order[1] != "named" {
		t.Fatalf("expected global then named delivery, got %v", order)
	}
}

func TestEmitSkipsListenersForOtherNames(t *testing.T) {
	bus := NewBus()

	delivered := 0
	bus.Register(TurnStarted, func(Signal) { delivered++ })

	bus.Emit(New(TurnCompleted, nil))
	if delivered != 0 {
		t.Fatalf("a listener for another name was invoked %d times", delivered)
	}

	bus.Emit(New(TurnStarted, nil))
	if delivered != 1 {
		t.Fatalf("expected exactly one delivery, got %d", delivered)
	}
}

func TestEmitContainsListenerPanics(t *testing.T) {
	bus := NewBus()

	bus.Register(TurnCompleted, func(Signal) { panic("listener bug") })
	reached := false
	bus.Register(TurnCompleted, func(Signal) { reached = true })

	bus.Emit(New(TurnCompleted, nil))

	if !reached {
		t.Fatalf("a panicking listener must not block later listeners")
	}
}

func TestEmitStampsMissingTimestamps(t *testing.T) {
	bus := NewBus()

	var received Signal
	bus.Register(TurnStarted, func(s Signal) { received = s })

	bus.Emit(Signal{Name: TurnStarted})
	if received.Timestamp.IsZero() {
		t.Fatalf("expected the bus to stamp a timestamp")
	}

	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	bus.Emit(Signal{Name: TurnStarted, Timestamp: fixed})
	if !received.Timestamp.Equal(fixed) {
		t.Fatalf("expected an explicit timestamp to survive, got %v", received.Timestamp)
	}
}

func TestListenerCountAndClear(t *testing.T) {
	bus := NewBus()
	bus.Register(TurnStarted, func(Signal) {})
	bus.Register(TurnStarted, func(Signal) {})
	bus.Register(TurnCompleted, func(Signal) {})
	bus.RegisterAll(func(Signal) {})

	if got := bus.ListenerCount(TurnStarted); got != 2 {
		t.Fatalf("expected 2 listeners for %s, got %d", TurnStarted, got)
	}
	if got := bus.ListenerCount(""); got != 4 {
		t.Fatalf("expected 4 listeners in total, got %d", got)
	}

	bus.Clear()
	if got := bus.ListenerCount(""); got != 0 {
		t.Fatalf("expected no listeners after clear, got %d", got)
	}

	// Emitting after clear must be a no-op, not a nil map panic.
	bus.Emit(New(TurnStarted, nil))
}

func TestNilBusIsSafe(t *testing.T) {
	var bus *Bus
	bus.Register(TurnStarted, func(Signal) {})
	bus.RegisterAll(func(Signal) {})
	bus.Emit(New(TurnStarted, nil))
	bus.Clear()
	if bus.ListenerCount("") != 0 {
		t.Fatalf("nil bus must report zero listeners")
	}
}
