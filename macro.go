package macroengine

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Macro owns a compiled chain of Steps plus the child macros they invoke.
// A Macro tree is built once by the parser/builder and then run, potentially
// many times, against different handlers.
type Macro struct {
	sourceText   string
	steps        []Step
	children     []*Macro
	capabilities *CapabilitySet

	trigger  *TriggerState
	observer *EventObserver

	store   *VariableStore
	mapping SystemMapping
	config  *Config
	logger  *Logger

	running atomic.Bool
}

// NewMacro creates an empty macro ready for builder methods to populate.
// store, mapping, config and logger are shared with every descendant
// created via the same builder.
func NewMacro(sourceText string, store *VariableStore, mapping SystemMapping, config *Config, logger *Logger) *Macro {
	return &Macro{
		sourceText:   sourceText,
		capabilities: NewCapabilitySet(),
		trigger:      NewTriggerState(),
		observer:     NewEventObserver(),
		store:        store,
		mapping:      mapping,
		config:       config,
		logger:       logger,
	}
}

// addChild appends child to m's child list and propagates trigger edges and
// event notifications to it going forward: parent-owns, parent-to-child-only
// propagation, no cycles.
func (m *Macro) addChild(child *Macro) {
	m.children = append(m.children, child)
	m.trigger.AddChild(child.trigger)
	m.observer.AddChild(child.observer)
	m.capabilities.Merge(child.capabilities)
}

// Capabilities returns the macro's own capability set merged with every
// descendant's, frozen as of the last builder call.
func (m *Macro) Capabilities() *CapabilitySet {
	return m.capabilities
}

// PressTrigger notifies this macro (and its descendants) that the
// controlling physical key went down.
func (m *Macro) PressTrigger() {
	if m.trigger.IsHolding() {
		m.logger.WarnCat(CatTrigger, "press_trigger on %q ignored: already pressed", m.sourceText)
		return
	}
	m.trigger.Press()
}

// ReleaseTrigger notifies this macro (and its descendants) that the
// controlling physical key went up.
func (m *Macro) ReleaseTrigger() {
	m.trigger.Release()
}

// IsHolding reports whether the controlling key is currently down.
func (m *Macro) IsHolding() bool {
	return m.trigger.IsHolding()
}

// Notify delivers an externally observed key action to this macro's event
// observer (and its descendants).
func (m *Macro) Notify(ev ObservedEvent) {
	m.observer.Notify(ev)
}

// Run executes every step in order against h, in the order they were built.
// It refuses re-entry on an already-running macro instead of erroring, and
// guarantees running is cleared on every exit path.
func (m *Macro) Run(ctx context.Context, h Handler) error {
	if h == nil {
		return fmt.Errorf("macroengine: nil handler")
	}
	if !m.running.CompareAndSwap(false, true) {
		m.logger.WarnCat(CatRuntime, "run on %q rejected: already running", m.sourceText)
		return nil
	}
	defer m.running.Store(false)

	m.observer.Reset()

	// The configuration (keystroke pause included) is read once per run.
	cfg := m.config
	if cfg != nil {
		snapshot := *cfg
		cfg = &snapshot
	}

	rt := &runState{
		store:    m.store,
		mapping:  m.mapping,
		config:   cfg,
		logger:   m.logger,
		trigger:  m.trigger,
		observer: m.observer,
	}

	return m.runSteps(ctx, rt, h)
}

// runSteps is the shared step-iteration loop used both by top-level Run and
// by children awaited directly from a parent step.
func (m *Macro) runSteps(ctx context.Context, rt *runState, h Handler) error {
	for _, step := range m.steps {
		if err := step(ctx, rt, h); err != nil {
			m.logger.Error("macro %q aborted: %v", m.sourceText, err)
			return err
		}
	}
	return nil
}

// runChild executes child's steps directly on the caller's goroutine,
// sharing the same cooperative task rather than spawning a new one.
func runChild(ctx context.Context, child *Macro, rt *runState, h Handler) error {
	childRt := &runState{
		store:    rt.store,
		mapping:  rt.mapping,
		config:   rt.config,
		logger:   rt.logger,
		trigger:  child.trigger,
		observer: child.observer,
	}
	return child.runSteps(ctx, childRt, h)
}
