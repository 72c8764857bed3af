package macroengine

import "context"

// TriggerState holds the two complementary edge-triggered latches that
// drive h() and if_tap: one for the controlling key going down (press
// trigger) and one for it going up (release trigger). A macro's trigger
// propagates to its children but never the reverse, and children never
// share a trigger with a sibling.
type TriggerState struct {
	pressed  *Latch
	released *Latch

	children []*TriggerState
}

// NewTriggerState returns a TriggerState in the released state: before any
// press is observed, the controlling key is considered up. Exactly one of
// {pressed, released} is set at any time.
func NewTriggerState() *TriggerState {
	t := &TriggerState{
		pressed:  NewLatch(),
		released: NewLatch(),
	}
	t.released.Set()
	return t
}

// AddChild registers a child trigger that should receive this trigger's
// press/release edges, mirroring a child macro inheriting its parent's
// physical key.
func (t *TriggerState) AddChild(child *TriggerState) {
	t.children = append(t.children, child)
}

// Press marks the controlling key as down: sets the press latch, clears the
// release latch, and recurses into every child.
func (t *TriggerState) Press() {
	t.released.Clear()
	t.pressed.Set()
	for _, c := range t.children {
		c.Press()
	}
}

// Release marks the controlling key as up: sets the release latch, clears
// the press latch, and recurses into every child.
func (t *TriggerState) Release() {
	t.pressed.Clear()
	t.released.Set()
	for _, c := range t.children {
		c.Release()
	}
}

// IsHolding reports whether the controlling key is currently down.
func (t *TriggerState) IsHolding() bool {
	return t.pressed.IsSet()
}

// WaitPressed blocks until a press edge is observed or ctx is done.
func (t *TriggerState) WaitPressed(ctx context.Context) error {
	return t.pressed.Wait(ctx)
}

// WaitReleased blocks until a release edge is observed or ctx is done.
func (t *TriggerState) WaitReleased(ctx context.Context) error {
	return t.released.Wait(ctx)
}
