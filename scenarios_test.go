package macroengine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type emitted struct {
	typ   EventType
	code  int
	value int32
}

// recordingHandler collects every emitted event in order, safe for
// concurrent use by a single macro's goroutine and test assertions.
type recordingHandler struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingHandler) handle(ctx context.Context, typ EventType, code int, value int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{typ, code, value})
	return nil
}

func (r *recordingHandler) snapshot() []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]emitted, len(r.events))
	copy(out, r.events)
	return out
}

func newTestEnv(t *testing.T) (*VariableStore, SystemMapping, *Config, *Logger) {
	t.Helper()
	return NewVariableStore(), DefaultSystemMapping(), &Config{KeystrokeSleepMs: 0}, NewLogger(false)
}

func mustParse(t *testing.T, source string, store *VariableStore, mapping SystemMapping, config *Config, logger *Logger) *Macro {
	t.Helper()
	m, err := Parse(source, store, mapping, config, logger)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", source, err)
	}
	return m
}

func runWithTimeout(t *testing.T, m *Macro, h Handler, timeout time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return m.Run(ctx, h)
}

// S1. k(KEY_A) -> down, up.
func TestScenarioS1SingleKeystroke(t *testing.T) {
	store, mapping, config, logger := newTestEnv(t)
	m := mustParse(t, `k(KEY_A)`, store, mapping, config, logger)

	rec := &recordingHandler{}
	if err := runWithTimeout(t, m, rec.handle, time.Second); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	keyA, _ := mapping.Lookup("KEY_A")
	want := []emitted{
		{EventTypeKey, keyA, 1},
		{EventTypeKey, keyA, 0},
	}
	assertEvents(t, rec.snapshot(), want)
}

// S2. r(3, k(KEY_A).w(10)) -> three keystrokes.
func TestScenarioS2Repeat(t *testing.T) {
	store, mapping, config, logger := newTestEnv(t)
	m := mustParse(t, `r(3, k(KEY_A).w(10))`, store, mapping, config, logger)

	rec := &recordingHandler{}
	if err := runWithTimeout(t, m, rec.handle, time.Second); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	keyA, _ := mapping.Lookup("KEY_A")
	var want []emitted
	for i := 0; i < 3; i++ {
		want = append(want, emitted{EventTypeKey, keyA, 1}, emitted{EventTypeKey, keyA, 0})
	}
	assertEvents(t, rec.snapshot(), want)
}

// S3. w(10).m(KEY_LEFTSHIFT, r(2, k(KEY_A))).w(10).k(KEY_B)
func TestScenarioS3WaitModifyRepeatKey(t *testing.T) {
	store, mapping, config, logger := newTestEnv(t)
	m := mustParse(t, `w(10).m(KEY_LEFTSHIFT, r(2, k(KEY_A))).w(10).k(KEY_B)`, store, mapping, config, logger)

	rec := &recordingHandler{}
	if err := runWithTimeout(t, m, rec.handle, time.Second); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	shift, _ := mapping.Lookup("KEY_LEFTSHIFT")
	keyA, _ := mapping.Lookup("KEY_A")
	keyB, _ := mapping.Lookup("KEY_B")

	want := []emitted{
		{EventTypeKey, shift, 1},
		{EventTypeKey, keyA, 1}, {EventTypeKey, keyA, 0},
		{EventTypeKey, keyA, 1}, {EventTypeKey, keyA, 0},
		{EventTypeKey, shift, 0},
		{EventTypeKey, keyB, 1}, {EventTypeKey, keyB, 0},
	}
	assertEvents(t, rec.snapshot(), want)
}

// S4. h(KEY_A) with trigger pressed then released shortly after.
func TestScenarioS4Hold(t *testing.T) {
	store, mapping, config, logger := newTestEnv(t)
	m := mustParse(t, `h(KEY_A)`, store, mapping, config, logger)

	rec := &recordingHandler{}
	m.PressTrigger()

	go func() {
		time.Sleep(20 * time.Millisecond)
		m.ReleaseTrigger()
	}()

	if err := runWithTimeout(t, m, rec.handle, time.Second); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	keyA, _ := mapping.Lookup("KEY_A")
	want := []emitted{
		{EventTypeKey, keyA, 1},
		{EventTypeKey, keyA, 0},
	}
	assertEvents(t, rec.snapshot(), want)
}

// S5. if_tap(k(KEY_A), k(KEY_B), 100) releasing well inside the window runs
// the "then" branch.
func TestScenarioS5IfTapThenBranch(t *testing.T) {
	store, mapping, config, logger := newTestEnv(t)
	m := mustParse(t, `if_tap(k(KEY_A), k(KEY_B), 100)`, store, mapping, config, logger)

	rec := &recordingHandler{}
	m.PressTrigger()
	go func() {
		time.Sleep(20 * time.Millisecond)
		m.ReleaseTrigger()
	}()

	if err := runWithTimeout(t, m, rec.handle, time.Second); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	keyA, _ := mapping.Lookup("KEY_A")
	assertEvents(t, rec.snapshot(), []emitted{{EventTypeKey, keyA, 1}, {EventTypeKey, keyA, 0}})
}

// S5 (else branch). No release before the timeout elapses.
func TestScenarioS5IfTapElseBranch(t *testing.T) {
	store, mapping, config, logger := newTestEnv(t)
	m := mustParse(t, `if_tap(k(KEY_A), k(KEY_B), 30)`, store, mapping, config, logger)

	rec := &recordingHandler{}
	m.PressTrigger()

	if err := runWithTimeout(t, m, rec.handle, time.Second); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	keyB, _ := mapping.Lookup("KEY_B")
	assertEvents(t, rec.snapshot(), []emitted{{EventTypeKey, keyB, 1}, {EventTypeKey, keyB, 0}})
}

// S6. set(x, 5).if_eq($x, 5, k(KEY_A), k(KEY_B)) -> one A keystroke.
func TestScenarioS6SetAndIfEq(t *testing.T) {
	store, mapping, config, logger := newTestEnv(t)
	m := mustParse(t, `set(x, 5).if_eq($x, 5, k(KEY_A), k(KEY_B))`, store, mapping, config, logger)

	rec := &recordingHandler{}
	if err := runWithTimeout(t, m, rec.handle, time.Second); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	keyA, _ := mapping.Lookup("KEY_A")
	assertEvents(t, rec.snapshot(), []emitted{{EventTypeKey, keyA, 1}, {EventTypeKey, keyA, 0}})

	if v, ok := store.Get("x"); !ok || v.String() != "5" {
		t.Fatalf("store.Get(x) = (%v, %v), want (5, true)", v, ok)
	}
}

// Property 7: set(x, v); if_eq($x, v, then, else) always takes then.
func TestIfEqAlwaysTakesThenAfterMatchingSet(t *testing.T) {
	store, mapping, config, logger := newTestEnv(t)
	m := mustParse(t, `set(y, "hello").if_eq($y, "hello", k(KEY_A), k(KEY_B))`, store, mapping, config, logger)

	rec := &recordingHandler{}
	if err := runWithTimeout(t, m, rec.handle, time.Second); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	keyA, _ := mapping.Lookup("KEY_A")
	assertEvents(t, rec.snapshot(), []emitted{{EventTypeKey, keyA, 1}, {EventTypeKey, keyA, 0}})
}

// Property 8: repeat(0, M) emits nothing.
func TestRepeatZeroEmitsNothing(t *testing.T) {
	store, mapping, config, logger := newTestEnv(t)
	m := mustParse(t, `r(0, k(KEY_A))`, store, mapping, config, logger)

	rec := &recordingHandler{}
	if err := runWithTimeout(t, m, rec.handle, time.Second); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	assertEvents(t, rec.snapshot(), nil)
}

// Invariant 2: a rejected re-entry doesn't change running state or steps.
func TestRunRejectsReentry(t *testing.T) {
	store, mapping, config, logger := newTestEnv(t)
	m := mustParse(t, `h()`, store, mapping, config, logger)

	m.PressTrigger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firstDone := make(chan error, 1)
	go func() { firstDone <- m.Run(ctx, func(context.Context, EventType, int, int32) error { return nil }) }()

	time.Sleep(20 * time.Millisecond)
	if !m.running.Load() {
		t.Fatal("running = false mid-hold, want true")
	}

	if err := m.Run(context.Background(), func(context.Context, EventType, int, int32) error { return nil }); err != nil {
		t.Fatalf("re-entrant Run() = %v, want nil (logged and ignored)", err)
	}

	m.ReleaseTrigger()
	if err := <-firstDone; err != nil {
		t.Fatalf("first Run() = %v, want nil", err)
	}
	if m.running.Load() {
		t.Fatal("running = true after Run returned, want false")
	}
}

// Invariant 4: parse errors are deterministic and never invoke the handler.
func TestParseErrorNeverInvokesHandler(t *testing.T) {
	store, mapping, config, logger := newTestEnv(t)
	invoked := false
	_, err := Parse(`k(KEY_NOT_REAL)`, store, mapping, config, logger)
	if err == nil {
		t.Fatal("expected a parse/build error for an unknown key")
	}
	if invoked {
		t.Fatal("handler was invoked during a failed parse")
	}
}

// Invariant 5 / boundary 12: wheel(up, 0) is rejected when speed is a
// literal zero.
func TestWheelZeroSpeedRejectedAtBuildTime(t *testing.T) {
	store, mapping, config, logger := newTestEnv(t)
	if _, err := Parse(`wheel(up, 0)`, store, mapping, config, logger); err == nil {
		t.Fatal("expected wheel(up, 0) to be rejected at build time")
	}
}

// Boundary 11: mouse(up, s) with the trigger already released before the
// first tick emits nothing.
func TestMouseNotHeldEmitsNothing(t *testing.T) {
	store, mapping, config, logger := newTestEnv(t)
	m := mustParse(t, `mouse(up, 5)`, store, mapping, config, logger)

	rec := &recordingHandler{}
	if err := runWithTimeout(t, m, rec.handle, 100*time.Millisecond); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	assertEvents(t, rec.snapshot(), nil)
}

// Boundary 10: if_single with a competing press before release takes else.
func TestIfSingleCompetingPressTakesElse(t *testing.T) {
	store, mapping, config, logger := newTestEnv(t)
	m := mustParse(t, `if_single(k(KEY_A), k(KEY_B), 200)`, store, mapping, config, logger)

	rec := &recordingHandler{}
	m.PressTrigger()
	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Notify(ObservedEvent{Type: EventTypeKey, Code: 99, Action: ActionPress})
	}()

	if err := runWithTimeout(t, m, rec.handle, time.Second); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	keyB, _ := mapping.Lookup("KEY_B")
	assertEvents(t, rec.snapshot(), []emitted{{EventTypeKey, keyB, 1}, {EventTypeKey, keyB, 0}})
}

// Invariant 1: cancellation mid-hold still emits the matching key-up.
func TestHoldEmitsKeyUpOnCancellation(t *testing.T) {
	store, mapping, config, logger := newTestEnv(t)
	m := mustParse(t, `h(KEY_A)`, store, mapping, config, logger)

	rec := &recordingHandler{}
	m.PressTrigger()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.Run(ctx, rec.handle)
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() = %v, want context.DeadlineExceeded", err)
	}

	keyA, _ := mapping.Lookup("KEY_A")
	events := rec.snapshot()
	if len(events) != 2 || events[0] != (emitted{EventTypeKey, keyA, 1}) || events[1] != (emitted{EventTypeKey, keyA, 0}) {
		t.Fatalf("events = %+v, want down then up despite cancellation", events)
	}
}

// Invariant 1: cancellation mid-pause after k(symbol)'s key-down still
// emits the matching key-up instead of leaving the key stuck.
func TestKeyEmitsKeyUpOnCancellation(t *testing.T) {
	store, mapping, logger := NewVariableStore(), DefaultSystemMapping(), NewLogger(false)
	config := &Config{KeystrokeSleepMs: 50}
	m := mustParse(t, `k(KEY_A)`, store, mapping, config, logger)

	rec := &recordingHandler{}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := m.Run(ctx, rec.handle)
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() = %v, want context.DeadlineExceeded", err)
	}

	keyA, _ := mapping.Lookup("KEY_A")
	events := rec.snapshot()
	if len(events) != 2 || events[0] != (emitted{EventTypeKey, keyA, 1}) || events[1] != (emitted{EventTypeKey, keyA, 0}) {
		t.Fatalf("events = %+v, want down then up despite cancellation", events)
	}
}

// Invariant 1: cancellation mid-pause after m(symbol, child)'s modifier-down
// still emits the matching modifier-up instead of leaving it stuck.
func TestModifyEmitsModifierUpOnCancellation(t *testing.T) {
	store, mapping, logger := NewVariableStore(), DefaultSystemMapping(), NewLogger(false)
	config := &Config{KeystrokeSleepMs: 50}
	m := mustParse(t, `m(KEY_LEFTSHIFT, k(KEY_A))`, store, mapping, config, logger)

	rec := &recordingHandler{}
	// m() pauses once before the modifier-down (0-50ms) and once after it
	// (50-100ms); cancelling at 75ms lands in the pause after the down.
	ctx, cancel := context.WithTimeout(context.Background(), 75*time.Millisecond)
	defer cancel()

	err := m.Run(ctx, rec.handle)
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() = %v, want context.DeadlineExceeded", err)
	}

	modCode, _ := mapping.Lookup("KEY_LEFTSHIFT")
	events := rec.snapshot()
	if len(events) != 2 || events[0] != (emitted{EventTypeKey, modCode, 1}) || events[1] != (emitted{EventTypeKey, modCode, 0}) {
		t.Fatalf("events = %+v, want modifier down then up despite cancellation", events)
	}
}

// if_single must treat a competing key's negative press (action
// PRESS_NEGATIVE) the same as an ordinary press: both take the else branch.
func TestIfSingleCompetingPressNegativeTakesElse(t *testing.T) {
	store, mapping, config, logger := newTestEnv(t)
	m := mustParse(t, `if_single(k(KEY_A), k(KEY_B), 200)`, store, mapping, config, logger)

	rec := &recordingHandler{}
	m.PressTrigger()
	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Notify(ObservedEvent{Type: EventTypeKey, Code: 99, Action: ActionPressNegative})
	}()

	if err := runWithTimeout(t, m, rec.handle, time.Second); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	keyB, _ := mapping.Lookup("KEY_B")
	assertEvents(t, rec.snapshot(), []emitted{{EventTypeKey, keyB, 1}, {EventTypeKey, keyB, 0}})
}

func assertEvents(t *testing.T, got, want []emitted) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("events = %+v (len %d), want %+v (len %d)", got, len(got), want, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events[%d] = %+v, want %+v\nfull got: %+v", i, got[i], want[i], got)
		}
	}
}
