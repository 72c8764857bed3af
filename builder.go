package macroengine

import (
	"context"
	"errors"
	"time"
)

// resolveKeyCode resolves v (a literal or deferred key-name Value) to a
// kernel key code at step-execution time, the just-in-time counterpart to
// the build-time validateKeyName check.
func resolveKeyCode(rt *runState, v Value) (int, error) {
	resolved, err := resolveValue(rt.store, v, []Kind{KindString})
	if err != nil {
		return 0, err
	}
	symbol := resolved.String()
	code, ok := rt.mapping.Lookup(symbol)
	if !ok {
		return 0, &UnknownKeyErr{Symbol: symbol}
	}
	return code, nil
}

// emitKeyTap emits a full down/pause/up/pause keystroke. The up-emission is
// deferred on a background context immediately after the down-emission, so a
// cancellation landing in the pause between down and up still releases the
// key instead of leaving it stuck.
func emitKeyTap(ctx context.Context, rt *runState, h Handler, code int) (err error) {
	if err := h(ctx, EventTypeKey, code, 1); err != nil {
		return err
	}

	upEmitted := false
	defer func() {
		if upEmitted {
			return
		}
		if upErr := h(context.Background(), EventTypeKey, code, 0); upErr != nil && err == nil {
			err = upErr
		}
	}()

	if err := keystrokePause(ctx, rt); err != nil {
		return err
	}
	if err := h(ctx, EventTypeKey, code, 0); err != nil {
		return err
	}
	upEmitted = true
	return keystrokePause(ctx, rt)
}

// addKey implements k(symbol): one keystroke.
func (m *Macro) addKey(symbol Value) error {
	validated, err := validate(symbol, []Kind{KindString}, "k", 0)
	if err != nil {
		return err
	}
	if _, err := validateKeyName(validated, m.mapping); err != nil {
		return err
	}
	if !validated.IsVariable() {
		if code, ok := m.mapping.Lookup(validated.String()); ok {
			m.capabilities.Add(EventTypeKey, code)
		}
	}

	m.steps = append(m.steps, func(ctx context.Context, rt *runState, h Handler) error {
		code, err := resolveKeyCode(rt, validated)
		if err != nil {
			return err
		}
		return emitKeyTap(ctx, rt, h, code)
	})
	return nil
}

// addWait implements w(ms)/wait(ms): sleep.
func (m *Macro) addWait(ms Value) error {
	validated, err := validate(ms, []Kind{KindInt, KindFloat}, "w", 0)
	if err != nil {
		return err
	}

	m.steps = append(m.steps, func(ctx context.Context, rt *runState, h Handler) error {
		resolved, err := resolveValue(rt.store, validated, []Kind{KindInt, KindFloat})
		if err != nil {
			return err
		}
		seconds, _ := resolved.Float()
		return sleepFraction(ctx, seconds/1000.0)
	})
	return nil
}

// addRepeat implements r(n, child)/repeat(n, child): run child n times.
func (m *Macro) addRepeat(n Value, child *Macro) error {
	validated, err := validate(n, []Kind{KindInt}, "r", 0)
	if err != nil {
		return err
	}
	m.addChild(child)

	m.steps = append(m.steps, func(ctx context.Context, rt *runState, h Handler) error {
		resolved, err := resolveValue(rt.store, validated, []Kind{KindInt})
		if err != nil {
			return err
		}
		count, _ := resolved.Int()
		for i := int64(0); i < count; i++ {
			if err := runChild(ctx, child, rt, h); err != nil {
				return err
			}
		}
		return nil
	})
	return nil
}

// addHoldKey implements h(symbol): press on enter, release on trigger-release.
func (m *Macro) addHoldKey(symbol Value) error {
	validated, err := validate(symbol, []Kind{KindString}, "h", 0)
	if err != nil {
		return err
	}
	if _, err := validateKeyName(validated, m.mapping); err != nil {
		return err
	}
	if !validated.IsVariable() {
		if code, ok := m.mapping.Lookup(validated.String()); ok {
			m.capabilities.Add(EventTypeKey, code)
		}
	}

	m.steps = append(m.steps, func(ctx context.Context, rt *runState, h Handler) (err error) {
		code, err := resolveKeyCode(rt, validated)
		if err != nil {
			return err
		}
		if err := h(ctx, EventTypeKey, code, 1); err != nil {
			return err
		}

		// The up-emission must run even if the wait below is cancelled, so
		// it is deferred on a background context right after the down.
		defer func() {
			if upErr := h(context.Background(), EventTypeKey, code, 0); upErr != nil && err == nil {
				err = upErr
			}
		}()

		return rt.trigger.WaitReleased(ctx)
	})
	return nil
}

// addHoldChild implements h(child): loop child while held.
func (m *Macro) addHoldChild(child *Macro) error {
	m.addChild(child)

	m.steps = append(m.steps, func(ctx context.Context, rt *runState, h Handler) error {
		for rt.trigger.IsHolding() {
			if err := runChild(ctx, child, rt, h); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return nil
	})
	return nil
}

// addHoldNone implements the bare h(): block until release.
func (m *Macro) addHoldNone() error {
	m.steps = append(m.steps, func(ctx context.Context, rt *runState, h Handler) error {
		return rt.trigger.WaitReleased(ctx)
	})
	return nil
}

// addModify implements m(symbol, child)/modify(symbol, child): press
// modifier, run child, release modifier.
func (m *Macro) addModify(symbol Value, child *Macro) error {
	validated, err := validate(symbol, []Kind{KindString}, "m", 0)
	if err != nil {
		return err
	}
	if _, err := validateKeyName(validated, m.mapping); err != nil {
		return err
	}
	if !validated.IsVariable() {
		if code, ok := m.mapping.Lookup(validated.String()); ok {
			m.capabilities.Add(EventTypeKey, code)
		}
	}
	m.addChild(child)

	m.steps = append(m.steps, func(ctx context.Context, rt *runState, h Handler) (err error) {
		code, err := resolveKeyCode(rt, validated)
		if err != nil {
			return err
		}
		if err := keystrokePause(ctx, rt); err != nil {
			return err
		}
		if err := h(ctx, EventTypeKey, code, 1); err != nil {
			return err
		}

		// The modifier-up must run even if the pause or child run below is
		// cancelled, so it is deferred on a background context right after
		// the modifier-down succeeds.
		defer func() {
			upErr := h(context.Background(), EventTypeKey, code, 0)
			pauseErr := keystrokePause(context.Background(), rt)
			if err == nil {
				err = upErr
			}
			if err == nil {
				err = pauseErr
			}
		}()

		if err := keystrokePause(ctx, rt); err != nil {
			return err
		}

		return runChild(ctx, child, rt, h)
	})
	return nil
}

// mouseFootprint is the set of relative-axis capabilities the OS needs to
// recognize the virtual device as a pointer, declared in full regardless of
// which single axis a given mouse()/wheel()/event() call actually uses.
func (m *Macro) declareMouseFootprint() {
	for _, name := range []string{"REL_X", "REL_Y", "REL_WHEEL", "REL_HWHEEL"} {
		if code, ok := m.mapping.EventCode(EventTypeRel, name); ok {
			m.capabilities.Add(EventTypeRel, code)
		}
	}
}

func validateDirection(v Value) (Value, error) {
	validated, err := validate(v, []Kind{KindString}, "mouse", 0)
	if err != nil {
		return Value{}, err
	}
	if !validated.IsVariable() {
		validated = Str(lowerASCII(validated.String()))
	}
	return validated, nil
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}

// axisAndSign resolves a direction token to the REL_* axis name and sign.
func axisAndSign(dir string, wheel bool) (axis string, sign int32, err error) {
	switch dir {
	case "up":
		if wheel {
			return "REL_WHEEL", 1, nil
		}
		return "REL_Y", -1, nil
	case "down":
		if wheel {
			return "REL_WHEEL", -1, nil
		}
		return "REL_Y", 1, nil
	case "left":
		if wheel {
			return "REL_HWHEEL", -1, nil
		}
		return "REL_X", -1, nil
	case "right":
		if wheel {
			return "REL_HWHEEL", 1, nil
		}
		return "REL_X", 1, nil
	default:
		return "", 0, &SyntaxErr{Message: "direction must be one of up/down/left/right, got " + dir}
	}
}

// addMouse implements mouse(dir, speed): continuous relative motion while held.
func (m *Macro) addMouse(dir Value, speed Value) error {
	validatedDir, err := validateDirection(dir)
	if err != nil {
		return err
	}
	validatedSpeed, err := validate(speed, []Kind{KindInt, KindFloat}, "mouse", 1)
	if err != nil {
		return err
	}
	m.declareMouseFootprint()

	m.steps = append(m.steps, func(ctx context.Context, rt *runState, h Handler) error {
		dirResolved, err := resolveValue(rt.store, validatedDir, []Kind{KindString})
		if err != nil {
			return err
		}
		speedResolved, err := resolveValue(rt.store, validatedSpeed, []Kind{KindInt, KindFloat})
		if err != nil {
			return err
		}
		axisName, sign, err := axisAndSign(lowerASCII(dirResolved.String()), false)
		if err != nil {
			return err
		}
		axisCode, ok := rt.mapping.EventCode(EventTypeRel, axisName)
		if !ok {
			return &UnknownEventErr{Kind: "code", Name: axisName}
		}
		speedVal, _ := speedResolved.Int()

		for rt.trigger.IsHolding() {
			if err := h(ctx, EventTypeRel, axisCode, sign*int32(speedVal)); err != nil {
				return err
			}
			if err := keystrokePause(ctx, rt); err != nil {
				return err
			}
		}
		return nil
	})
	return nil
}

// addWheel implements wheel(dir, speed): continuous scroll while held, with
// inter-emit delay 1/speed seconds.
func (m *Macro) addWheel(dir Value, speed Value) error {
	validatedDir, err := validateDirection(dir)
	if err != nil {
		return err
	}
	validatedSpeed, err := validate(speed, []Kind{KindInt, KindFloat}, "wheel", 1)
	if err != nil {
		return err
	}
	if !validatedSpeed.IsVariable() {
		if f, _ := validatedSpeed.Float(); f == 0 {
			return errors.New("macroengine: wheel speed must be nonzero")
		}
	}
	m.declareMouseFootprint()

	m.steps = append(m.steps, func(ctx context.Context, rt *runState, h Handler) error {
		dirResolved, err := resolveValue(rt.store, validatedDir, []Kind{KindString})
		if err != nil {
			return err
		}
		speedResolved, err := resolveValue(rt.store, validatedSpeed, []Kind{KindInt, KindFloat})
		if err != nil {
			return err
		}
		axisName, sign, err := axisAndSign(lowerASCII(dirResolved.String()), true)
		if err != nil {
			return err
		}
		axisCode, ok := rt.mapping.EventCode(EventTypeRel, axisName)
		if !ok {
			return &UnknownEventErr{Kind: "code", Name: axisName}
		}
		speed, _ := speedResolved.Float()
		if speed == 0 {
			return errors.New("macroengine: wheel speed must be nonzero")
		}
		delay := 1.0 / speed
		if delay < 0 {
			delay = -delay
		}

		for rt.trigger.IsHolding() {
			if err := h(ctx, EventTypeRel, axisCode, int32(sign)); err != nil {
				return err
			}
			if err := sleepFraction(ctx, delay); err != nil {
				return err
			}
		}
		return nil
	})
	return nil
}

// addEvent implements e(type, code, value)/event(type, code, value): raw event.
func (m *Macro) addEvent(typ Value, code Value, value Value) error {
	validatedType, err := validate(typ, []Kind{KindInt, KindString}, "e", 0)
	if err != nil {
		return err
	}
	validatedCode, err := validate(code, []Kind{KindInt, KindString}, "e", 1)
	if err != nil {
		return err
	}
	validatedValue, err := validate(value, []Kind{KindInt}, "e", 2)
	if err != nil {
		return err
	}

	if !validatedType.IsVariable() && validatedType.Kind() == KindString && validatedType.String() == "EV_REL" {
		m.declareMouseFootprint()
	}
	// Literal type and code are resolved now, so unknown names fail at build
	// time and the emitted pair is recorded as a capability.
	if !validatedType.IsVariable() && !validatedCode.IsVariable() {
		buildRt := &runState{mapping: m.mapping}
		typ, err := resolveEventType(buildRt, validatedType)
		if err != nil {
			return err
		}
		codeVal, err := resolveEventCode(buildRt, typ, validatedCode)
		if err != nil {
			return err
		}
		m.capabilities.Add(typ, codeVal)
	}

	m.steps = append(m.steps, func(ctx context.Context, rt *runState, h Handler) error {
		typResolved, err := resolveValue(rt.store, validatedType, []Kind{KindInt, KindString})
		if err != nil {
			return err
		}
		typ, err := resolveEventType(rt, typResolved)
		if err != nil {
			return err
		}
		codeResolved, err := resolveValue(rt.store, validatedCode, []Kind{KindInt, KindString})
		if err != nil {
			return err
		}
		codeVal, err := resolveEventCode(rt, typ, codeResolved)
		if err != nil {
			return err
		}
		valResolved, err := resolveValue(rt.store, validatedValue, []Kind{KindInt})
		if err != nil {
			return err
		}
		val, _ := valResolved.Int()

		if err := h(ctx, typ, codeVal, int32(val)); err != nil {
			return err
		}
		return keystrokePause(ctx, rt)
	})
	return nil
}

func resolveEventType(rt *runState, v Value) (EventType, error) {
	if v.Kind() == KindInt {
		n, _ := v.Int()
		return EventType(n), nil
	}
	name := v.String()
	typ, ok := rt.mapping.EventType(name)
	if !ok {
		return 0, &UnknownEventErr{Kind: "type", Name: name}
	}
	return typ, nil
}

func resolveEventCode(rt *runState, typ EventType, v Value) (int, error) {
	if v.Kind() == KindInt {
		n, _ := v.Int()
		return int(n), nil
	}
	name := v.String()
	if typ == EventTypeKey {
		code, ok := rt.mapping.Lookup(name)
		if !ok {
			return 0, &UnknownEventErr{Kind: "code", Name: name}
		}
		return code, nil
	}
	code, ok := rt.mapping.EventCode(typ, name)
	if !ok {
		return 0, &UnknownEventErr{Kind: "code", Name: name}
	}
	return code, nil
}

// addSet implements set(name, value): assign into the variable store.
func (m *Macro) addSet(name Value, value Value) error {
	validatedName, err := validate(name, []Kind{KindString}, "set", 0)
	if err != nil {
		return err
	}
	if !validatedName.IsVariable() {
		if err := validateVariableName(validatedName.String()); err != nil {
			return err
		}
	}

	m.steps = append(m.steps, func(ctx context.Context, rt *runState, h Handler) error {
		nameResolved, err := resolveValue(rt.store, validatedName, []Kind{KindString})
		if err != nil {
			return err
		}
		valResolved, err := resolveValue(rt.store, value, nil)
		if err != nil {
			return err
		}
		rt.store.Set(nameResolved.String(), valResolved)
		return nil
	})
	return nil
}

// addIfEq implements if_eq(v1, v2, then?, else?): compare resolved values.
func (m *Macro) addIfEq(v1, v2 Value, thenChild, elseChild *Macro) error {
	if thenChild != nil {
		m.addChild(thenChild)
	}
	if elseChild != nil {
		m.addChild(elseChild)
	}

	m.steps = append(m.steps, func(ctx context.Context, rt *runState, h Handler) error {
		r1, err := resolveValue(rt.store, v1, nil)
		if err != nil {
			return err
		}
		r2, err := resolveValue(rt.store, v2, nil)
		if err != nil {
			return err
		}
		if r1.Equal(r2) {
			if thenChild != nil {
				return runChild(ctx, thenChild, rt, h)
			}
			return nil
		}
		if elseChild != nil {
			return runChild(ctx, elseChild, rt, h)
		}
		return nil
	})
	return nil
}

// addIfeq implements the legacy ifeq(name, value, then?, else?): the first
// argument names a variable even though it is not written as $name. This
// asymmetry is deliberate and preserved verbatim, unlike the symmetric
// if_eq.
func (m *Macro) addIfeq(nameArg Value, value Value, thenChild, elseChild *Macro) error {
	if thenChild != nil {
		m.addChild(thenChild)
	}
	if elseChild != nil {
		m.addChild(elseChild)
	}

	m.steps = append(m.steps, func(ctx context.Context, rt *runState, h Handler) error {
		var varName string
		if nameArg.IsVariable() {
			varName = nameArg.VariableName()
		} else {
			varName = nameArg.String()
		}
		stored, ok := rt.store.Get(varName)
		if !ok {
			stored = None()
		}

		r2, err := resolveValue(rt.store, value, nil)
		if err != nil {
			return err
		}

		if stored.Equal(r2) {
			if thenChild != nil {
				return runChild(ctx, thenChild, rt, h)
			}
			return nil
		}
		if elseChild != nil {
			return runChild(ctx, elseChild, rt, h)
		}
		return nil
	})
	return nil
}

const defaultTapTimeoutMs = 300

// addIfTap implements if_tap(then?, else?, timeout_ms=300).
func (m *Macro) addIfTap(thenChild, elseChild *Macro, timeout *Value) error {
	if thenChild != nil {
		m.addChild(thenChild)
	}
	if elseChild != nil {
		m.addChild(elseChild)
	}

	var timeoutVal Value
	if timeout != nil {
		validated, err := validate(*timeout, []Kind{KindInt, KindFloat}, "if_tap", 2)
		if err != nil {
			return err
		}
		timeoutVal = validated
	} else {
		timeoutVal = Int(defaultTapTimeoutMs)
	}

	m.steps = append(m.steps, func(ctx context.Context, rt *runState, h Handler) error {
		resolvedTimeout, err := resolveValue(rt.store, timeoutVal, []Kind{KindInt, KindFloat})
		if err != nil {
			return err
		}
		ms, _ := resolvedTimeout.Float()

		waitCtx, cancel := context.WithTimeout(ctx, time.Duration(ms*float64(time.Millisecond)))
		defer cancel()

		waitErr := func() error {
			if rt.trigger.IsHolding() {
				return rt.trigger.WaitReleased(waitCtx)
			}
			if err := rt.trigger.WaitPressed(waitCtx); err != nil {
				return err
			}
			return rt.trigger.WaitReleased(waitCtx)
		}()

		switch {
		case waitErr == nil:
			if thenChild != nil {
				return runChild(ctx, thenChild, rt, h)
			}
			return nil
		case errors.Is(waitErr, context.DeadlineExceeded):
			if elseChild != nil {
				return runChild(ctx, elseChild, rt, h)
			}
			return nil
		default:
			return waitErr
		}
	})
	return nil
}

// addIfSingle implements if_single(then, else, timeout?).
func (m *Macro) addIfSingle(thenChild, elseChild *Macro, timeout *Value) error {
	m.addChild(thenChild)
	m.addChild(elseChild)

	var timeoutVal *Value
	if timeout != nil {
		validated, err := validate(*timeout, []Kind{KindInt, KindFloat}, "if_single", 2)
		if err != nil {
			return err
		}
		timeoutVal = &validated
	}

	m.steps = append(m.steps, func(ctx context.Context, rt *runState, h Handler) error {
		snapshot := rt.observer.Latest()
		filter := func(ev ObservedEvent) bool {
			if ev.sameKey(snapshot) && ev.Action == ActionRelease {
				return true
			}
			if !ev.sameKey(snapshot) && (ev.Action == ActionPress || ev.Action == ActionPressNegative) {
				return true
			}
			return false
		}

		waitCtx := ctx
		if timeoutVal != nil {
			resolved, err := resolveValue(rt.store, *timeoutVal, []Kind{KindInt, KindFloat})
			if err != nil {
				return err
			}
			ms, _ := resolved.Float()
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, time.Duration(ms*float64(time.Millisecond)))
			defer cancel()
		}

		ev, ok := rt.observer.WaitForEvent(waitCtx, filter)
		if !ok {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Timeout elapsed without a matching event: treat like else.
			return runChild(ctx, elseChild, rt, h)
		}

		if ev.sameKey(snapshot) && ev.Action == ActionRelease {
			return runChild(ctx, thenChild, rt, h)
		}
		return runChild(ctx, elseChild, rt, h)
	})
	return nil
}
