package macroengine

import "testing"

func TestValidateCoercion(t *testing.T) {
	t.Run("string coerces to int", func(t *testing.T) {
		v, err := validate(Str("10"), []Kind{KindInt}, "op", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.Kind() != KindInt {
			t.Fatalf("Kind() = %v, want KindInt", v.Kind())
		}
	})

	t.Run("int passes through when string not requested", func(t *testing.T) {
		v, err := validate(Int(5), []Kind{KindInt, KindFloat}, "op", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.Kind() != KindInt {
			t.Fatalf("Kind() = %v, want KindInt", v.Kind())
		}
	})

	t.Run("non-numeric string rejected for int", func(t *testing.T) {
		_, err := validate(Str("abc"), []Kind{KindInt}, "op", 1)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		var typeErr *TypeErr
		if !asTypeErr(err, &typeErr) {
			t.Fatalf("error = %v, want *TypeErr", err)
		}
		if typeErr.ArgPos != 1 || typeErr.Op != "op" {
			t.Fatalf("TypeErr = %+v, want Op=op ArgPos=1", typeErr)
		}
	})

	t.Run("variable passes through unresolved", func(t *testing.T) {
		v, err := validate(Variable("x"), []Kind{KindInt}, "op", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !v.IsVariable() {
			t.Fatal("expected variable to pass through unresolved")
		}
	})

	t.Run("none kind accepts absent value", func(t *testing.T) {
		v, err := validate(None(), []Kind{KindNone, KindString}, "op", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.Kind() != KindNone {
			t.Fatalf("Kind() = %v, want KindNone", v.Kind())
		}
	})
}

func asTypeErr(err error, out **TypeErr) bool {
	te, ok := err.(*TypeErr)
	if ok {
		*out = te
	}
	return ok
}

func TestValidateVariableName(t *testing.T) {
	if err := validateVariableName("good_name"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := validateVariableName("2bad"); err == nil {
		t.Fatal("expected error for illegal variable name")
	}
}

func TestValidateKeyName(t *testing.T) {
	mapping := DefaultSystemMapping()

	if _, err := validateKeyName(Str("KEY_A"), mapping); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := validateKeyName(Str("KEY_NOT_REAL"), mapping)
	if err == nil {
		t.Fatal("expected UnknownKeyErr")
	}
	if _, ok := err.(*UnknownKeyErr); !ok {
		t.Fatalf("error = %T, want *UnknownKeyErr", err)
	}
}
