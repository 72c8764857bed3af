package macroengine

import "strconv"

// validate type-checks a build-time argument: if value is a VariableRef, it
// passes through unchanged (deferred to runtime). Otherwise,
// for each kind in allowed (including the distinguished KindNone), it
// attempts a constructive coercion first (e.g. parse "10" as an int), then
// falls back to an identity check. The first allowed kind that matches wins.
func validate(v Value, allowed []Kind, opName string, argPos int) (Value, error) {
	if v.IsVariable() {
		return v, nil
	}

	for _, kind := range allowed {
		if kind == KindNone {
			if v.kind == KindNone {
				return v, nil
			}
			continue
		}

		if coerced, ok := coerce(v, kind); ok {
			return coerced, nil
		}

		if v.kind == kind {
			return v, nil
		}
	}

	return Value{}, &TypeErr{Op: opName, ArgPos: argPos, Allowed: allowed, Got: v}
}

// coerce attempts to construct a Value of the given kind from v, the way
// Python's `allowed_type(value)` constructor call does (e.g. int("10") == 10).
func coerce(v Value, kind Kind) (Value, bool) {
	switch kind {
	case KindInt:
		switch v.kind {
		case KindInt:
			return v, true
		case KindFloat:
			return Int(int64(v.f)), true
		case KindString:
			if n, err := strconv.ParseInt(v.s, 10, 64); err == nil {
				return Int(n), true
			}
		}
	case KindFloat:
		switch v.kind {
		case KindFloat:
			return v, true
		case KindInt:
			return Float(float64(v.i)), true
		case KindString:
			if f, err := strconv.ParseFloat(v.s, 64); err == nil {
				return Float(f), true
			}
		}
	case KindString:
		switch v.kind {
		case KindString:
			return v, true
		case KindInt, KindFloat:
			return Str(v.String()), true
		}
	}
	return Value{}, false
}

// validateKeyName resolves a symbol through the system mapping and fails
// with an UnknownKeyErr if absent. A VariableRef passes through unresolved,
// to be looked up at runtime.
func validateKeyName(v Value, mapping SystemMapping) (Value, error) {
	if v.IsVariable() {
		return v, nil
	}
	symbol := v.String()
	if _, ok := mapping.Lookup(symbol); !ok {
		return Value{}, &UnknownKeyErr{Symbol: symbol}
	}
	return v, nil
}

// validateVariableName checks that name is a legal $name reference,
// matching ^[A-Za-z_][A-Za-z_0-9]*$.
func validateVariableName(name string) error {
	if !IsValidVariableName(name) {
		return &SyntaxErr{Message: "\"" + name + "\" is not a legal variable name"}
	}
	return nil
}
