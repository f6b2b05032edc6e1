package datalog

import "testing"

func TestConstantEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Constant
		want bool
	}{
		{"equal symbols", Symbol("alice"), Symbol("alice"), true},
		{"different symbols", Symbol("alice"), Symbol("bob"), false},
		{"equal ints", IntConst(7), IntConst(7), true},
		{"different ints", IntConst(7), IntConst(8), false},
		{"symbol vs int never equal", Symbol("7"), IntConst(7), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConstantLess(t *testing.T) {
	if !IntConst(1).Less(IntConst(2)) {
		t.Error("expected 1 < 2")
	}
	if !Symbol("a").Less(Symbol("b")) {
		t.Error("expected a < b")
	}
	// Cross-type order is only required to be total and consistent with
	// Type ordering, not any particular direction.
	if Symbol("z").Less(IntConst(0)) == IntConst(0).Less(Symbol("z")) {
		t.Error("cross-type Less must be asymmetric")
	}
}

func TestTupleEqual(t *testing.T) {
	a := Tuple{Symbol("x"), IntConst(1)}
	b := Tuple{Symbol("x"), IntConst(1)}
	c := Tuple{Symbol("x"), IntConst(2)}
	if !a.Equal(b) {
		t.Error("expected equal tuples")
	}
	if a.Equal(c) {
		t.Error("expected unequal tuples")
	}
	if a.Equal(Tuple{Symbol("x")}) {
		t.Error("tuples of different arity must be unequal")
	}
}

func TestAtomVarsFirstOccurrenceOrder(t *testing.T) {
	atom := Atom{Relation: "edge", Terms: []Term{VarTerm{"X"}, VarTerm{"Y"}, VarTerm{"X"}}}
	got := atom.Vars()
	want := []Variable{"X", "Y"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Vars() = %v, want %v", got, want)
	}
}
