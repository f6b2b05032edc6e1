package datalog

import (
	"context"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEngineRunAndQuery(t *testing.T) {
	p := linearTransitiveClosureProgram(t)
	p.AddOutput(OutputDecl{Relation: "path"})

	engine := NewEngine(p, WithMaxWorkers(2))
	result, err := engine.Run(context.Background(), mapLoader{"edge": chainEdges("a", "b", "c")})
	if err != nil {
		t.Fatal(err)
	}
	if result.RunID == "" {
		t.Error("expected a non-empty RunID")
	}

	sink := &capturingSink{}
	if err := engine.Query(context.Background(), result, sink); err != nil {
		t.Fatal(err)
	}
	if len(sink.got) != 3 {
		t.Fatalf("got %d output tuples, want 3", len(sink.got))
	}
}

func TestEngineRejectsUnstratifiableProgram(t *testing.T) {
	p := NewProgram()
	if _, err := p.DeclareEDB("base", Sym); err != nil {
		t.Fatal(err)
	}
	if _, err := p.DeclareIDB("p", Sym); err != nil {
		t.Fatal(err)
	}
	if _, err := p.DeclareIDB("q", Sym); err != nil {
		t.Fatal(err)
	}
	p.AddRule(Rule{
		Head: Atom{Relation: "p", Terms: []Term{mustVar("X")}},
		Body: []Atom{
			{Relation: "base", Terms: []Term{mustVar("X")}},
			{Relation: "q", Terms: []Term{mustVar("X")}, Negated: true},
		},
	})
	p.AddRule(Rule{
		Head: Atom{Relation: "q", Terms: []Term{mustVar("X")}},
		Body: []Atom{
			{Relation: "base", Terms: []Term{mustVar("X")}},
			{Relation: "p", Terms: []Term{mustVar("X")}, Negated: true},
		},
	})

	engine := NewEngine(p)
	_, err := engine.Run(context.Background(), mapLoader{"base": []Tuple{{Symbol("x")}}})
	if err == nil {
		t.Fatal("expected an unstratifiable-negation error")
	}
}
