package datalog

import (
	"context"
	"iter"
	"testing"
)

func newTestRunnerProgram(t *testing.T) (*Program, *RelationStore) {
	t.Helper()
	p := NewProgram()
	if _, err := p.DeclareEDB("raw_person", Sym, Sym); err != nil {
		t.Fatal(err)
	}
	if _, err := p.DeclareIDB("person", Sym, Sym); err != nil {
		t.Fatal(err)
	}
	p.AddRule(Rule{
		Head: Atom{Relation: "person", Terms: []Term{mustVar("X"), mustVar("Y")}},
		Body: []Atom{{Relation: "raw_person", Terms: []Term{mustVar("X"), mustVar("Y")}}},
	})
	store := NewRelationStore()
	store.Insert("person", Tuple{Symbol("alice"), Symbol("admin")})
	store.Insert("person", Tuple{Symbol("bob"), Symbol("user")})
	return p, store
}

type capturingSink struct{ got []Tuple }

func (s *capturingSink) Emit(_ context.Context, _ OutputDecl, tuples iter.Seq[Tuple]) error {
	for t := range tuples {
		s.got = append(s.got, t)
	}
	return nil
}

func TestQueryRunnerRejectsUndeclaredOutput(t *testing.T) {
	p, store := newTestRunnerProgram(t)
	runner := NewQueryRunner(p, store)

	err := runner.Run(context.Background(), []OutputDecl{{Relation: "nope"}}, &capturingSink{})
	if err == nil {
		t.Fatal("expected an UndeclaredOutputError")
	}
	if _, ok := err.(*UndeclaredOutputError); !ok {
		t.Fatalf("expected *UndeclaredOutputError, got %T", err)
	}
}

func TestQueryRunnerFiltersByConstantPattern(t *testing.T) {
	p, store := newTestRunnerProgram(t)
	runner := NewQueryRunner(p, store)

	sink := &capturingSink{}
	decl := OutputDecl{Relation: "person", Pattern: []Term{mustVar("_"), mustConst(Symbol("admin"))}}
	if err := runner.Run(context.Background(), []OutputDecl{decl}, sink); err != nil {
		t.Fatal(err)
	}
	if len(sink.got) != 1 || !sink.got[0].Equal(Tuple{Symbol("alice"), Symbol("admin")}) {
		t.Fatalf("got %v, want only alice/admin", sink.got)
	}
}

func TestQueryRunnerEmitsEverythingWithNoPattern(t *testing.T) {
	p, store := newTestRunnerProgram(t)
	runner := NewQueryRunner(p, store)

	sink := &capturingSink{}
	if err := runner.Run(context.Background(), []OutputDecl{{Relation: "person"}}, sink); err != nil {
		t.Fatal(err)
	}
	if len(sink.got) != 2 {
		t.Fatalf("got %d tuples, want 2", len(sink.got))
	}
}
