package datalog

import (
	"fmt"

	"go.uber.org/multierr"
)

// Validate checks every structural and safety invariant a Program must
// satisfy before it may be compiled: every atom names a
// known relation at the right arity, every rule head is a declared IDB
// relation, and every rule is range-restricted (no variable appears in
// the head or in a negated body atom unless some positive body atom
// also binds it). Unlike CompilePlan, which bails out on the first
// unsafe rule it meets, Validate collects every violation it finds via
// multierr.Combine so a caller sees the whole list in one pass.
func Validate(p *Program) error {
	var errs error
	for _, r := range p.Rules {
		errs = multierr.Append(errs, validateRule(p, r))
	}
	for _, decl := range p.Outputs {
		errs = multierr.Append(errs, validateOutput(p, decl))
	}
	return errs
}

func validateRule(p *Program, r Rule) error {
	var errs error

	headSchema, ok := p.IDB[r.Head.Relation]
	if !ok {
		return &SchemaError{Relation: r.Head.Relation, Reason: "rule head must be a declared IDB relation"}
	}
	if len(r.Head.Terms) != headSchema.Arity() {
		errs = multierr.Append(errs, &SchemaError{
			Relation: r.Head.Relation,
			Reason:   fmt.Sprintf("head has %d terms, schema declares arity %d", len(r.Head.Terms), headSchema.Arity()),
		})
	}

	bound := r.bodyPositiveVars()
	for _, v := range r.Head.Vars() {
		if !bound[v] {
			errs = multierr.Append(errs, &SafetyError{
				Rule:   r.Head.Relation,
				Reason: "head variable " + string(v) + " does not occur in a positive body atom",
			})
		}
	}

	for _, atom := range r.Body {
		schema, err := p.schemaFor(atom.Relation)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if len(atom.Terms) != schema.Arity() {
			errs = multierr.Append(errs, &SchemaError{
				Relation: atom.Relation,
				Reason:   fmt.Sprintf("atom has %d terms, schema declares arity %d", len(atom.Terms), schema.Arity()),
			})
		}
		if atom.Negated {
			for _, v := range atom.Vars() {
				if !bound[v] {
					errs = multierr.Append(errs, &SafetyError{
						Rule:   r.Head.Relation,
						Reason: "negated atom " + atom.String() + " uses variable " + string(v) + " not bound by a positive body atom",
					})
				}
			}
		}
	}
	return errs
}

func validateOutput(p *Program, decl OutputDecl) error {
	schema, err := p.schemaFor(decl.Relation)
	if err != nil {
		return &UndeclaredOutputError{Relation: decl.Relation}
	}
	if schema.Kind == IDB && !p.hasRuleFor(decl.Relation) {
		return &UndeclaredOutputError{Relation: decl.Relation}
	}
	if len(decl.Pattern) != 0 && len(decl.Pattern) != schema.Arity() {
		return &SchemaError{
			Relation: decl.Relation,
			Reason:   fmt.Sprintf("output pattern has %d terms, relation has arity %d", len(decl.Pattern), schema.Arity()),
		}
	}
	return nil
}
