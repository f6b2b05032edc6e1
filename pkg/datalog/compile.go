package datalog

import (
	"iter"
	"math"
)

// Binding is a partial assignment of rule variables to ground constants,
// threaded through Plan execution.
type Binding map[Variable]Constant

func (b Binding) clone() Binding {
	out := make(Binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// StepKind distinguishes the three plan-step shapes: Bind introduces
// new variable bindings by scanning or probing a relation; Filter
// checks a fully-bound positive atom for membership; AntiFilter checks
// a fully-bound negated atom for non-membership.
type StepKind int

const (
	BindStep StepKind = iota
	FilterStep
	AntiFilterStep
)

func (k StepKind) String() string {
	switch k {
	case BindStep:
		return "Bind"
	case FilterStep:
		return "Filter"
	case AntiFilterStep:
		return "AntiFilter"
	default:
		return "?"
	}
}

// PlanStep is one join step compiled from a rule-body atom. KeyPositions
// names the term indices whose value is already determined before this
// step runs (from a Constant, or from a Variable already bound by an
// earlier step); everything else is a free position this step binds.
type PlanStep struct {
	Kind         StepKind
	AtomIndex    int
	Atom         Atom
	KeyPositions []int
}

// freeVarFirstPositions returns, for each variable this step newly
// binds, the term positions at which it occurs, in left-to-right order.
// The first position supplies the bound value; later positions become
// intra-atom equality checks.
func (s PlanStep) freeVarFirstPositions() map[Variable][]int {
	key := make(map[int]bool, len(s.KeyPositions))
	for _, p := range s.KeyPositions {
		key[p] = true
	}
	out := make(map[Variable][]int)
	for i, t := range s.Atom.Terms {
		if key[i] {
			continue
		}
		if v, ok := AsVar(t); ok {
			out[v] = append(out[v], i)
		}
	}
	return out
}

// Plan is an ordered join program compiled from a single rule: execute
// its Steps in sequence against a growing set of partial Bindings, then
// project the surviving bindings through Head to produce result tuples.
type Plan struct {
	Head  Atom
	Rule  Rule
	Steps []PlanStep
}

// CompilePlan compiles a safe rule into a Plan. The caller (validate.go)
// is expected to have already rejected unsafe rules; CompilePlan returns
// a *SafetyError defensively if it discovers a variable in Head or in a
// negated atom that is never bound by a positive body atom.
func CompilePlan(r Rule, idbNames map[string]bool) (*Plan, error) {
	order, err := orderAtoms(r, idbNames)
	if err != nil {
		return nil, err
	}

	bound := make(map[Variable]bool)
	steps := make([]PlanStep, 0, len(order))
	for _, atomIdx := range order {
		atom := r.Body[atomIdx]
		keyPositions := []int{}
		hasFree := false
		for i, t := range atom.Terms {
			switch v, ok := AsVar(t); {
			case ok && bound[v]:
				keyPositions = append(keyPositions, i)
			case ok && !bound[v]:
				hasFree = true
			default: // Constant
				keyPositions = append(keyPositions, i)
			}
		}

		kind := FilterStep
		if atom.Negated {
			kind = AntiFilterStep
			if hasFree {
				return nil, &SafetyError{
					Rule:   r.Head.Relation,
					Reason: "negated atom " + atom.String() + " has a variable not bound by an earlier positive atom",
				}
			}
		} else if hasFree {
			kind = BindStep
		}

		steps = append(steps, PlanStep{Kind: kind, AtomIndex: atomIdx, Atom: atom, KeyPositions: keyPositions})

		if !atom.Negated {
			for _, v := range atom.Vars() {
				bound[v] = true
			}
		}
	}

	for _, v := range r.Head.Vars() {
		if !bound[v] {
			return nil, &SafetyError{
				Rule:   r.Head.Relation,
				Reason: "head variable " + string(v) + " is not range-restricted by the body",
			}
		}
	}

	return &Plan{Head: r.Head, Rule: r, Steps: steps}, nil
}

// orderAtoms picks a deterministic evaluation order for the rule body
// using a selectivity heuristic: prefer the atom with fewest variables
// not yet bound by an earlier atom in the chosen prefix, breaking ties
// by preferring an EDB atom over an IDB atom (EDB relations are smaller
// and never grow during the current stage) and finally by original body
// order, keeping the plan deterministic.
func orderAtoms(r Rule, idbNames map[string]bool) ([]int, error) {
	remaining := make([]int, len(r.Body))
	for i := range r.Body {
		remaining[i] = i
	}

	bound := make(map[Variable]bool)
	order := make([]int, 0, len(r.Body))

	for len(remaining) > 0 {
		bestPos, bestScore := -1, [3]int{}
		for pos, idx := range remaining {
			atom := r.Body[idx]
			free := 0
			for _, v := range atom.Vars() {
				if !bound[v] {
					free++
				}
			}
			isIDB := 0
			if idbNames[atom.Relation] {
				isIDB = 1
			}
			// Negated atoms must come last among atoms that still have
			// free variables they don't bind (they never bind any), so
			// defer them by treating their free-count as maximal unless
			// fully bound.
			if atom.Negated && free > 0 {
				free = math.MaxInt
			}
			score := [3]int{free, isIDB, idx}
			if bestPos == -1 || score[0] < bestScore[0] ||
				(score[0] == bestScore[0] && score[1] < bestScore[1]) ||
				(score[0] == bestScore[0] && score[1] == bestScore[1] && score[2] < bestScore[2]) {
				bestPos, bestScore = pos, score
			}
		}

		chosen := remaining[bestPos]
		order = append(order, chosen)
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
		if !r.Body[chosen].Negated {
			for _, v := range r.Body[chosen].Vars() {
				bound[v] = true
			}
		}
	}
	return order, nil
}

// evalSource supplies the relation contents a Bind/Filter/AntiFilter
// step reads from. Each method additionally receives the step's atom
// index so a source can route one specific body-atom *occurrence* to a
// delta relation while every other occurrence of the same relation name
// still reads the full accumulator — required for nonlinear rules where
// one predicate occurs more than once in the same body (e.g. the
// classic path(X,Y) :- path(X,Z), path(Z,Y)). The Driver implements
// this to route each plan-variant's designated delta atom to the delta
// store (see driver.go); naive.go routes every atom to the single
// accumulator relation regardless of atom index.
type evalSource interface {
	scan(atomIndex int, relation string) iter.Seq[Tuple]
	probe(atomIndex int, relation string, keyCols []int, keyValues Tuple) iter.Seq[Tuple]
	contains(atomIndex int, relation string, t Tuple) bool
}

// Execute runs the plan against src, yielding one result tuple (after
// head projection) per surviving binding. The sequence is lazy: each
// step pulls from the previous step's output and feeds its own matches
// forward, so the full cross-product is never materialized at once.
func (p *Plan) Execute(src evalSource) iter.Seq[Tuple] {
	return func(yield func(Tuple) bool) {
		var walk func(stepIdx int, b Binding) bool
		walk = func(stepIdx int, b Binding) bool {
			if stepIdx == len(p.Steps) {
				return yield(projectHead(p.Head, b))
			}
			step := p.Steps[stepIdx]
			switch step.Kind {
			case FilterStep:
				t, ok := groundTerms(step.Atom.Terms, b)
				if !ok || !src.contains(step.AtomIndex, step.Atom.Relation, t) {
					return true
				}
				return walk(stepIdx+1, b)

			case AntiFilterStep:
				t, ok := groundTerms(step.Atom.Terms, b)
				if !ok {
					return true
				}
				if src.contains(step.AtomIndex, step.Atom.Relation, t) {
					return true
				}
				return walk(stepIdx+1, b)

			default: // BindStep
				keyValues := make(Tuple, len(step.KeyPositions))
				for i, pos := range step.KeyPositions {
					v, ok := resolveTerm(step.Atom.Terms[pos], b)
					if !ok {
						return true
					}
					keyValues[i] = v
				}

				var candidates iter.Seq[Tuple]
				if len(step.KeyPositions) > 0 {
					candidates = src.probe(step.AtomIndex, step.Atom.Relation, step.KeyPositions, keyValues)
				} else {
					candidates = src.scan(step.AtomIndex, step.Atom.Relation)
				}

				freePositions := step.freeVarFirstPositions()
				cont := true
				for cand := range candidates {
					if !cont {
						break
					}
					next, ok := bindFreePositions(cand, step.Atom.Terms, freePositions, b)
					if !ok {
						continue
					}
					cont = walk(stepIdx+1, next)
				}
				return cont
			}
		}
		walk(0, Binding{})
	}
}

func resolveTerm(t Term, b Binding) (Constant, bool) {
	if c, ok := AsConst(t); ok {
		return c, true
	}
	v, _ := AsVar(t)
	c, ok := b[v]
	return c, ok
}

// groundTerms substitutes every term through b, failing if some
// variable is unbound (should not happen for a correctly compiled
// Filter/AntiFilter step, since those only occur once every variable is
// already bound).
func groundTerms(terms []Term, b Binding) (Tuple, bool) {
	out := make(Tuple, len(terms))
	for i, t := range terms {
		c, ok := resolveTerm(t, b)
		if !ok {
			return nil, false
		}
		out[i] = c
	}
	return out, true
}

// bindFreePositions checks a candidate tuple against this atom's
// constant/already-bound positions implicitly satisfied by Probe, binds
// each newly free variable to the candidate's value at its first
// occurrence, and verifies any repeated occurrence of that variable
// within the same atom agrees.
func bindFreePositions(cand Tuple, terms []Term, freePositions map[Variable][]int, b Binding) (Binding, bool) {
	next := b.clone()
	for v, positions := range freePositions {
		val := cand[positions[0]]
		for _, p := range positions[1:] {
			if !cand[p].Equal(val) {
				return nil, false
			}
		}
		next[v] = val
	}
	return next, true
}

// projectHead substitutes the head atom's terms through a fully ground
// binding to produce the derived tuple.
func projectHead(head Atom, b Binding) Tuple {
	out := make(Tuple, len(head.Terms))
	for i, t := range head.Terms {
		c, _ := resolveTerm(t, b)
		out[i] = c
	}
	return out
}

// RelTuple names a relation alongside one of its tuples, used to record
// which facts a derivation leaned on.
type RelTuple struct {
	Relation string
	Tuple    Tuple
}

// Derivation is one witness that Rule produced Head's Tuple from the
// listed Support facts — one per positive body atom that contributed a
// binding (Filter steps contribute their ground lookup; AntiFilter
// steps are side conditions, not support, so they are not recorded).
type Derivation struct {
	Relation string
	Tuple    Tuple
	Rule     *Rule
	Support  []RelTuple
}

// ExecuteWithSupport behaves like Execute but additionally threads the
// list of (relation, tuple) facts consulted by each positive step,
// attaching it to every produced Derivation. The Driver evaluates every
// plan variant through it; the support lists are only kept when
// provenance tracking is enabled (Config.TrackProvenance in engine.go).
// NaiveEvaluator uses the cheaper Execute.
func (p *Plan) ExecuteWithSupport(src evalSource) iter.Seq[Derivation] {
	return func(yield func(Derivation) bool) {
		var walk func(stepIdx int, b Binding, support []RelTuple) bool
		walk = func(stepIdx int, b Binding, support []RelTuple) bool {
			if stepIdx == len(p.Steps) {
				return yield(Derivation{
					Relation: p.Head.Relation,
					Tuple:    projectHead(p.Head, b),
					Rule:     &p.Rule,
					Support:  support,
				})
			}
			step := p.Steps[stepIdx]
			switch step.Kind {
			case FilterStep:
				t, ok := groundTerms(step.Atom.Terms, b)
				if !ok || !src.contains(step.AtomIndex, step.Atom.Relation, t) {
					return true
				}
				return walk(stepIdx+1, b, append(support, RelTuple{Relation: step.Atom.Relation, Tuple: t}))

			case AntiFilterStep:
				t, ok := groundTerms(step.Atom.Terms, b)
				if !ok {
					return true
				}
				if src.contains(step.AtomIndex, step.Atom.Relation, t) {
					return true
				}
				return walk(stepIdx+1, b, support)

			default: // BindStep
				keyValues := make(Tuple, len(step.KeyPositions))
				for i, pos := range step.KeyPositions {
					v, ok := resolveTerm(step.Atom.Terms[pos], b)
					if !ok {
						return true
					}
					keyValues[i] = v
				}

				var candidates iter.Seq[Tuple]
				if len(step.KeyPositions) > 0 {
					candidates = src.probe(step.AtomIndex, step.Atom.Relation, step.KeyPositions, keyValues)
				} else {
					candidates = src.scan(step.AtomIndex, step.Atom.Relation)
				}

				freePositions := step.freeVarFirstPositions()
				cont := true
				for cand := range candidates {
					if !cont {
						break
					}
					next, ok := bindFreePositions(cand, step.Atom.Terms, freePositions, b)
					if !ok {
						continue
					}
					nextSupport := append(append([]RelTuple(nil), support...), RelTuple{Relation: step.Atom.Relation, Tuple: cand})
					cont = walk(stepIdx+1, next, nextSupport)
				}
				return cont
			}
		}
		walk(0, Binding{}, nil)
	}
}

// sortedIDBNames is a small helper used by callers building idbNames
// maps from a Program, kept here so driver.go and naive.go share one
// definition of "the IDB predicate set" derived from a Program.
func sortedIDBNames(p *Program) map[string]bool {
	names := make(map[string]bool, len(p.IDB))
	for name := range p.IDB {
		names[name] = true
	}
	return names
}
