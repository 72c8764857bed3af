package macroengine

import (
	"context"
	"time"
)

// Handler injects one synthetic input event into the virtual device
//. The engine never touches a device directly.
type Handler func(ctx context.Context, typ EventType, code int, value int32) error

// Step is one compiled unit of a macro program: an opaque unit of work that,
// given a handler, performs the operation and may suspend.
type Step func(ctx context.Context, rt *runState, h Handler) error

// runState carries everything a Step needs at execution time: the
// surrounding configuration, the process-wide variable store, and the
// macro's own trigger/observer state. It is distinct from the build-time
// Macro so steps never close over mutable macro fields directly.
type runState struct {
	store   *VariableStore
	mapping SystemMapping
	config  *Config
	logger  *Logger
	trigger *TriggerState
	observer *EventObserver
}

// keystrokePause sleeps for the configured inter-event pause, honoring
// cancellation.
func keystrokePause(ctx context.Context, rt *runState) error {
	return sleepMs(ctx, rt.config.KeystrokeSleepMs)
}

// sleepMs sleeps for ms milliseconds or until ctx is done.
func sleepMs(ctx context.Context, ms int) error {
	if ms <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sleepFraction sleeps for a fractional-second duration (wheel's 1/speed
// cadence), honoring cancellation.
func sleepFraction(ctx context.Context, seconds float64) error {
	if seconds <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
