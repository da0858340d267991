package schema

import "testing"

func TestTypeRef(t *testing.T) {
	tests := []struct {
		ref       TypeRef
		scalar    bool
		qualified bool
		simple    string
	}{
		{Ref("string"), true, false, "string"},
		{Ref("sfixed64"), true, false, "sfixed64"},
		{Ref("Pong"), false, false, "Pong"},
		{Ref("Outer.Inner"), false, true, "Inner"},
		{Ref("google.protobuf.Timestamp"), false, true, "Timestamp"},
		{Ref(".demo.Pong"), false, true, "Pong"},
		{StreamOf("Pong"), false, false, "Pong"},
	}

	for _, tt := range tests {
		t.Run(tt.ref.String(), func(t *testing.T) {
			if got := tt.ref.IsScalar(); got != tt.scalar {
				t.Errorf("IsScalar() = %v, want %v", got, tt.scalar)
			}
			if got := tt.ref.Qualified(); got != tt.qualified {
				t.Errorf("Qualified() = %v, want %v", got, tt.qualified)
			}
			if got := tt.ref.Simple(); got != tt.simple {
				t.Errorf("Simple() = %q, want %q", got, tt.simple)
			}
		})
	}
}

func TestElementKindString(t *testing.T) {
	elements := []Element{
		&Message{}, &Enum{}, &Service{}, &Method{}, &Import{},
		&Package{}, &Option{}, &Comment{}, &Extension{}, &Empty{},
	}
	seen := map[string]bool{}
	for _, el := range elements {
		name := el.Kind().String()
		if name == "unknown" {
			t.Errorf("%T has no kind name", el)
		}
		if seen[name] {
			t.Errorf("kind name %q used twice", name)
		}
		seen[name] = true
	}
	if ElementKind(0).String() != "unknown" {
		t.Errorf("zero kind = %q, want unknown", ElementKind(0).String())
	}
}
