package datalog

import (
	"testing"

	"go.uber.org/multierr"
)

func TestValidateCollectsMultipleViolations(t *testing.T) {
	p := NewProgram()
	if _, err := p.DeclareEDB("base", Sym); err != nil {
		t.Fatal(err)
	}
	if _, err := p.DeclareIDB("out", Sym, Sym); err != nil {
		t.Fatal(err)
	}

	// Wrong head arity.
	p.AddRule(Rule{
		Head: Atom{Relation: "out", Terms: []Term{mustVar("X")}},
		Body: []Atom{{Relation: "base", Terms: []Term{mustVar("X")}}},
	})
	// A second, unrelated rule referencing an unknown relation.
	p.AddRule(Rule{
		Head: Atom{Relation: "out", Terms: []Term{mustVar("X"), mustVar("Y")}},
		Body: []Atom{{Relation: "ghost", Terms: []Term{mustVar("X"), mustVar("Y")}}},
	})

	err := Validate(p)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	// multierr.Errors lets us assert more than one violation survived the
	// single pass rather than stopping at the first.
	if got := len(multierr.Errors(err)); got < 2 {
		t.Fatalf("Validate combined %d errors, want at least 2", got)
	}
}

func TestValidateAcceptsSafeProgram(t *testing.T) {
	p := linearTransitiveClosureProgram(t)
	if err := Validate(p); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
