package datalog

import (
	"context"
	"fmt"
	"iter"
)

// Atom is a relation reference together with a Term vector of length
// equal to the relation's arity, marked positive or negated.
type Atom struct {
	Relation string
	Terms    []Term
	Negated  bool
}

func (a Atom) String() string {
	prefix := ""
	if a.Negated {
		prefix = "!"
	}
	return prefix + a.Relation + termsString(a.Terms)
}

// Vars returns the distinct variables appearing in the atom, in order of
// first occurrence.
func (a Atom) Vars() []Variable {
	seen := make(map[Variable]bool, len(a.Terms))
	var out []Variable
	for _, t := range a.Terms {
		if v, ok := AsVar(t); ok && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Rule is a head atom (positive, IDB, with variable arguments) and an
// ordered body of zero or more atoms.
type Rule struct {
	Head Atom
	Body []Atom
}

func (r Rule) String() string {
	if len(r.Body) == 0 {
		return r.Head.String() + "."
	}
	s := r.Head.String() + " :- "
	for i, a := range r.Body {
		if i > 0 {
			s += ", "
		}
		s += a.String()
	}
	return s + "."
}

// bodyPositiveVars returns the set of variables bound by some positive
// atom in the rule body. Used by validation to check range restriction
// and negation safety.
func (r Rule) bodyPositiveVars() map[Variable]bool {
	bound := make(map[Variable]bool)
	for _, atom := range r.Body {
		if atom.Negated {
			continue
		}
		for _, v := range atom.Vars() {
			bound[v] = true
		}
	}
	return bound
}

// idbOccurrences counts how many times each IDB predicate occurs
// (positively) in the rule body. Used to detect nonlinear rules that
// require delta-expansion.
func (r Rule) idbOccurrences(idbNames map[string]bool) map[string][]int {
	occ := make(map[string][]int)
	for i, atom := range r.Body {
		if !atom.Negated && idbNames[atom.Relation] {
			occ[atom.Relation] = append(occ[atom.Relation], i)
		}
	}
	return occ
}

// isLinear reports whether no predicate in idbNames occurs positively
// more than once in the rule body. Whether those predicates are mutually
// recursive with the head depends only on the idbNames passed in.
func (r Rule) isLinear(idbNames map[string]bool) bool {
	for _, positions := range r.idbOccurrences(idbNames) {
		if len(positions) > 1 {
			return false
		}
	}
	return true
}

// OutputDecl names an IDB relation to materialize, with an optional
// constant/wildcard pattern filtering which tuples are emitted.
type OutputDecl struct {
	Relation string
	Pattern  []Term // nil or VarTerm entries act as wildcards; ConstTerm entries filter
}

// Program is a finite set of rules together with EDB/IDB schemas and
// output declarations, as resolved by an external Parser.
type Program struct {
	EDB     map[string]*RelationSchema
	IDB     map[string]*RelationSchema
	Rules   []Rule
	Outputs []OutputDecl
}

// NewProgram returns an empty Program ready for schemas and rules to be
// added.
func NewProgram() *Program {
	return &Program{
		EDB: make(map[string]*RelationSchema),
		IDB: make(map[string]*RelationSchema),
	}
}

// DeclareEDB registers an extensional relation schema. Returns a
// *SchemaError if the relation is already declared as IDB.
func (p *Program) DeclareEDB(name string, columns ...ColumnType) (*RelationSchema, error) {
	if _, ok := p.IDB[name]; ok {
		return nil, &SchemaError{Relation: name, Reason: "already declared as IDB; an IDB may not appear as EDB"}
	}
	s := &RelationSchema{Name: name, Columns: columns, Kind: EDB}
	p.EDB[name] = s
	return s, nil
}

// DeclareIDB registers an intensional relation schema. Returns a
// *SchemaError if the relation is already declared as EDB.
func (p *Program) DeclareIDB(name string, columns ...ColumnType) (*RelationSchema, error) {
	if _, ok := p.EDB[name]; ok {
		return nil, &SchemaError{Relation: name, Reason: "already declared as EDB; an IDB may not appear as EDB"}
	}
	s := &RelationSchema{Name: name, Columns: columns, Kind: IDB}
	p.IDB[name] = s
	return s, nil
}

// AddRule appends a rule to the program without validating it; full
// validation happens in CompilePlan (compile.go) / validate.go.
func (p *Program) AddRule(r Rule) { p.Rules = append(p.Rules, r) }

// AddOutput appends an output declaration.
func (p *Program) AddOutput(decl OutputDecl) { p.Outputs = append(p.Outputs, decl) }

// schemaFor returns the schema for a relation name, checking both EDB
// and IDB maps, or an error identifying it as unknown.
func (p *Program) schemaFor(name string) (*RelationSchema, error) {
	if s, ok := p.EDB[name]; ok {
		return s, nil
	}
	if s, ok := p.IDB[name]; ok {
		return s, nil
	}
	return nil, &SchemaError{Relation: name, Reason: "unknown relation"}
}

// hasRuleFor reports whether some rule in p derives the named relation.
func (p *Program) hasRuleFor(name string) bool {
	for _, r := range p.Rules {
		if r.Head.Relation == name {
			return true
		}
	}
	return false
}

// Parser is the external collaborator that lexes and parses program
// source text into a resolved Program. Concrete syntax is out of scope
// for this module; no implementation is provided here.
type Parser interface {
	Parse(src []byte) (*Program, error)
}

// Loader is the external collaborator that supplies EDB tuples for a
// given relation schema. It is expected to return an empty sequence
// (never an error) for relations with no supplied data — missing input
// is an empty relation, not an error.
type Loader interface {
	Load(ctx context.Context, schema *RelationSchema) (iter.Seq[Tuple], error)
}

// Sink is the external collaborator that receives query results. For
// each output declaration the engine hands the Sink a (relation name,
// tuple sequence) pair; the Sink is responsible for any serialization
// (CSV or stdout rendering is not the engine's concern).
type Sink interface {
	Emit(ctx context.Context, decl OutputDecl, tuples iter.Seq[Tuple]) error
}

// wrapRelationError is a tiny helper used at a few call sites to wrap a
// collaborator error with the relation name it concerns.
func wrapRelationError(relation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("relation %q: %w", relation, err)
}
