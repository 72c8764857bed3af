package macroengine

import (
	"fmt"
	"regexp"
	"strconv"
)

// Kind is a value's dynamic type tag, mirroring the Python macro engine's
// use of Go/Python builtin types (int, float, str) as "allowed_types".
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
	// KindNone is the distinguished "allowed but absent" kind: the kind of
	// None(), which is what an unset variable resolves to.
	KindNone
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindNone:
		return "none"
	default:
		return "unknown"
	}
}

// Value is a tagged union of Literal(int|float|string) or VariableRef(name).
type Value struct {
	kind Kind

	i int64
	f float64
	s string

	// variable is non-nil when this Value is a deferred VariableRef.
	variable *VariableRef
}

// VariableRef names a variable to be resolved at injection time.
type VariableRef struct {
	Name string
}

var variableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z_0-9]*$`)

// IsValidVariableName reports whether name is a legal $name reference.
func IsValidVariableName(name string) bool {
	return variableNamePattern.MatchString(name)
}

// Int builds a literal integer Value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float builds a literal float Value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Str builds a literal string Value.
func Str(v string) Value { return Value{kind: KindString, s: v} }

// None builds the "no value" Value that an unset variable resolves to.
func None() Value { return Value{kind: KindNone} }

// Variable builds a deferred VariableRef Value.
func Variable(name string) Value {
	return Value{kind: KindString, variable: &VariableRef{Name: name}}
}

// IsVariable reports whether this Value is an unresolved $name reference.
func (v Value) IsVariable() bool { return v.variable != nil }

// VariableName returns the referenced name; only valid if IsVariable().
func (v Value) VariableName() string {
	if v.variable == nil {
		return ""
	}
	return v.variable.Name
}

// Kind returns the value's dynamic type tag.
func (v Value) Kind() Kind { return v.kind }

// Int returns the value as an int64, coercing from float/string where possible.
func (v Value) Int() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		return int64(v.f), true
	case KindString:
		n, err := strconv.ParseInt(v.s, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Float returns the value as a float64, coercing from int/string where possible.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	case KindString:
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// String returns the value as a string, formatting numeric kinds.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindNone:
		return ""
	default:
		return ""
	}
}

// Equal implements the equality semantics needed by if_eq/ifeq: two Values
// are equal if their resolved kinds and values compare equal, with numeric
// cross-kind comparison (5 == 5.0) matching Python's loose "==".
func (v Value) Equal(other Value) bool {
	if v.kind == KindString || other.kind == KindString {
		// If either side is textual and the other parses as the same
		// number, fall back to string comparison only when neither
		// side is numeric-looking; otherwise compare numerically.
		vf, vIsNum := v.Float()
		of, oIsNum := other.Float()
		if vIsNum && oIsNum && (v.kind != KindString || isNumeric(v.s)) && (other.kind != KindString || isNumeric(other.s)) {
			return vf == of
		}
		return v.String() == other.String()
	}
	vf, _ := v.Float()
	of, _ := other.Float()
	return vf == of
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// GoString renders a Value for diagnostics.
func (v Value) GoString() string {
	if v.IsVariable() {
		return fmt.Sprintf("$%s", v.variable.Name)
	}
	return v.String()
}
