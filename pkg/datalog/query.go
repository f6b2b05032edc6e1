package datalog

import (
	"context"
	"fmt"
	"iter"
)

// QueryRunner evaluates a Program's output declarations against a
// materialized RelationStore: for each declared output it resolves the
// backing relation, filters by any constant positions in the
// declaration's pattern, and hands the result to a Sink.
type QueryRunner struct {
	store *RelationStore
	// known holds every relation name the program could possibly have
	// produced (EDB ∪ IDB), used to distinguish "undeclared output" from
	// "declared but empty".
	known map[string]*RelationSchema
	// hasRules holds every relation named as a rule head, used to reject
	// an IDB output with no defining rule (it could never hold anything
	// but an empty relation, which is indistinguishable from a typo).
	hasRules map[string]bool
}

// NewQueryRunner builds a runner over store using p's combined EDB/IDB
// schema set to validate output declarations.
func NewQueryRunner(p *Program, store *RelationStore) *QueryRunner {
	known := make(map[string]*RelationSchema, len(p.EDB)+len(p.IDB))
	for name, s := range p.EDB {
		known[name] = s
	}
	for name, s := range p.IDB {
		known[name] = s
	}
	hasRules := make(map[string]bool, len(p.Rules))
	for _, r := range p.Rules {
		hasRules[r.Head.Relation] = true
	}
	return &QueryRunner{store: store, known: known, hasRules: hasRules}
}

// Run evaluates every output declaration in order and emits each
// through sink, stopping at the first error.
func (q *QueryRunner) Run(ctx context.Context, outputs []OutputDecl, sink Sink) error {
	for _, decl := range outputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		schema, ok := q.known[decl.Relation]
		if !ok {
			return &UndeclaredOutputError{Relation: decl.Relation}
		}
		if schema.Kind == IDB && !q.hasRules[decl.Relation] {
			return &UndeclaredOutputError{Relation: decl.Relation}
		}
		if len(decl.Pattern) != 0 && len(decl.Pattern) != schema.Arity() {
			return &SchemaError{
				Relation: decl.Relation,
				Reason:   fmt.Sprintf("output pattern has %d terms, relation has arity %d", len(decl.Pattern), schema.Arity()),
			}
		}
		if err := sink.Emit(ctx, decl, q.matching(decl)); err != nil {
			return wrapRelationError(decl.Relation, err)
		}
	}
	return nil
}

// matching returns a lazy sequence of every tuple in decl's relation
// that satisfies decl's pattern: a nil or empty pattern matches
// everything; a VarTerm position matches anything; a ConstTerm position
// requires equality at that column.
func (q *QueryRunner) matching(decl OutputDecl) iter.Seq[Tuple] {
	if len(decl.Pattern) == 0 {
		return q.store.Scan(decl.Relation)
	}

	keyCols := make([]int, 0, len(decl.Pattern))
	keyValues := make(Tuple, 0, len(decl.Pattern))
	for i, t := range decl.Pattern {
		if c, ok := AsConst(t); ok {
			keyCols = append(keyCols, i)
			keyValues = append(keyValues, c)
		}
	}
	if len(keyCols) == 0 {
		return q.store.Scan(decl.Relation)
	}
	return q.store.Probe(decl.Relation, keyCols, keyValues)
}
