package datalog

import "testing"

func mustVar(name string) Term { return VarTerm{Variable(name)} }
func mustConst(c Constant) Term { return ConstTerm{c} }

func TestCompilePlanRejectsUnsafeHeadVariable(t *testing.T) {
	r := Rule{
		Head: Atom{Relation: "out", Terms: []Term{mustVar("X"), mustVar("Y")}},
		Body: []Atom{{Relation: "edge", Terms: []Term{mustVar("X")}}},
	}
	_, err := CompilePlan(r, map[string]bool{"out": true})
	if err == nil {
		t.Fatal("expected a safety error for unbound head variable Y")
	}
	var safetyErr *SafetyError
	if !asSafetyError(err, &safetyErr) {
		t.Fatalf("expected *SafetyError, got %T: %v", err, err)
	}
}

func TestCompilePlanRejectsUnsafeNegation(t *testing.T) {
	r := Rule{
		Head: Atom{Relation: "out", Terms: []Term{mustVar("X")}},
		Body: []Atom{
			{Relation: "base", Terms: []Term{mustVar("X")}},
			{Relation: "excluded", Terms: []Term{mustVar("Y")}, Negated: true},
		},
	}
	_, err := CompilePlan(r, map[string]bool{"out": true})
	if err == nil {
		t.Fatal("expected a safety error for negated atom with unbound variable Y")
	}
}

func asSafetyError(err error, target **SafetyError) bool {
	se, ok := err.(*SafetyError)
	if ok {
		*target = se
	}
	return ok
}

func TestOrderAtomsPrefersEDBOnEqualFreeVars(t *testing.T) {
	r := Rule{
		Head: Atom{Relation: "reach", Terms: []Term{mustVar("X"), mustVar("Y")}},
		Body: []Atom{
			{Relation: "path", Terms: []Term{mustVar("X"), mustVar("Z")}}, // IDB
			{Relation: "edge", Terms: []Term{mustVar("Z"), mustVar("Y")}}, // EDB
		},
	}
	idbNames := map[string]bool{"reach": true, "path": true}
	order, err := orderAtoms(r, idbNames)
	if err != nil {
		t.Fatal(err)
	}
	// edge (EDB) is atom index 1 in the body; it should be scheduled
	// first since the heuristic prefers EDB atoms over IDB atoms when
	// both are equally unbound at the start.
	if order[0] != 1 {
		t.Errorf("order = %v, want EDB atom (index 1) scheduled first", order)
	}
}

func TestPlanExecuteProjectsSingleAtom(t *testing.T) {
	store := NewRelationStore()
	store.Insert("edge", Tuple{Symbol("a"), Symbol("b")})
	store.Insert("edge", Tuple{Symbol("b"), Symbol("c")})

	r := Rule{
		Head: Atom{Relation: "path", Terms: []Term{mustVar("X"), mustVar("Y")}},
		Body: []Atom{{Relation: "edge", Terms: []Term{mustVar("X"), mustVar("Y")}}},
	}
	plan, err := CompilePlan(r, map[string]bool{"path": true})
	if err != nil {
		t.Fatal(err)
	}

	var got []Tuple
	for tup := range plan.Execute(fullSource{store}) {
		got = append(got, tup)
	}
	if len(got) != 2 {
		t.Fatalf("Execute produced %d tuples, want 2", len(got))
	}
}

func TestPlanExecuteAppliesIntraAtomEquality(t *testing.T) {
	store := NewRelationStore()
	store.Insert("edge", Tuple{Symbol("a"), Symbol("a")})
	store.Insert("edge", Tuple{Symbol("a"), Symbol("b")})

	// loop(X) :- edge(X, X).
	r := Rule{
		Head: Atom{Relation: "loop", Terms: []Term{mustVar("X")}},
		Body: []Atom{{Relation: "edge", Terms: []Term{mustVar("X"), mustVar("X")}}},
	}
	plan, err := CompilePlan(r, map[string]bool{"loop": true})
	if err != nil {
		t.Fatal(err)
	}

	var got []Tuple
	for tup := range plan.Execute(fullSource{store}) {
		got = append(got, tup)
	}
	if len(got) != 1 || !got[0].Equal(Tuple{Symbol("a")}) {
		t.Fatalf("Execute = %v, want [(a)]", got)
	}
}
