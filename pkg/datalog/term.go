// Package datalog implements a bottom-up, semi-naive evaluator for
// stratified Datalog programs: rule compilation into join plans,
// dependency analysis with stratum assignment, and the iterated
// delta-relation fixpoint that materializes every IDB relation from a
// supplied EDB instance.
//
// Concrete syntax, CSV/stdout serialization, and CLI argument handling
// are not part of this package; see Parser, Loader, and Sink in
// program.go for the collaborator seams a caller is expected to fill in.
package datalog

import (
	"fmt"
	"strings"
)

// ColumnType is the typed universe a Constant is drawn from.
type ColumnType int

const (
	// Sym is the symbol (string atom) column type.
	Sym ColumnType = iota
	// Int is the integer column type.
	Int
)

func (t ColumnType) String() string {
	switch t {
	case Sym:
		return "symbol"
	case Int:
		return "int"
	default:
		return fmt.Sprintf("columntype(%d)", int(t))
	}
}

// Constant is an opaque, ground value drawn from the typed universe
// {symbol, integer}. Equality is decidable and ordering is total within
// a type; comparing constants of different types is only meaningful for
// equality (both are simply unequal).
type Constant struct {
	kind ColumnType
	sym  string
	num  int64
}

// Symbol constructs a symbol-typed Constant.
func Symbol(s string) Constant { return Constant{kind: Sym, sym: s} }

// IntConst constructs an integer-typed Constant.
func IntConst(n int64) Constant { return Constant{kind: Int, num: n} }

// Type reports the constant's column type.
func (c Constant) Type() ColumnType { return c.kind }

// Equal reports whether two constants denote the same value. Constants
// of different types are never equal.
func (c Constant) Equal(other Constant) bool {
	if c.kind != other.kind {
		return false
	}
	switch c.kind {
	case Sym:
		return c.sym == other.sym
	case Int:
		return c.num == other.num
	default:
		return false
	}
}

// Less gives a total order within one column type. Comparing across
// types orders by type first, so a full tuple order remains well
// defined even over mixed-type schemas.
func (c Constant) Less(other Constant) bool {
	if c.kind != other.kind {
		return c.kind < other.kind
	}
	switch c.kind {
	case Sym:
		return c.sym < other.sym
	case Int:
		return c.num < other.num
	default:
		return false
	}
}

func (c Constant) String() string {
	switch c.kind {
	case Sym:
		return c.sym
	case Int:
		return fmt.Sprintf("%d", c.num)
	default:
		return "?"
	}
}

// hashInto folds the constant's value into a running FNV-1a accumulator.
// Used by the Relation Store to build secondary indices; grounded on the
// teacher's fnv-based fact hashing in pldb.go, generalized here to hash
// individual columns rather than whole facts.
func (c Constant) hashInto(h uint64) uint64 {
	const prime = 1099511628211
	h ^= uint64(c.kind)
	h *= prime
	switch c.kind {
	case Sym:
		for i := 0; i < len(c.sym); i++ {
			h ^= uint64(c.sym[i])
			h *= prime
		}
	case Int:
		n := uint64(c.num)
		for i := 0; i < 8; i++ {
			h ^= n & 0xff
			h *= prime
			n >>= 8
		}
	}
	return h
}

// Variable names a position within a single rule. Variables are local to
// the rule that declares them; two occurrences of the same Variable in
// one rule denote an equality constraint between those positions.
type Variable string

// Term is either a Constant or a Variable. Implemented as a small closed
// interface rather than an exported struct tag, so both variants satisfy
// one Term type without a discriminated union.
type Term interface {
	isTerm()
	String() string
}

// ConstTerm wraps a Constant so it satisfies Term.
type ConstTerm struct{ Value Constant }

func (ConstTerm) isTerm()             {}
func (t ConstTerm) String() string    { return t.Value.String() }

// VarTerm wraps a Variable so it satisfies Term.
type VarTerm struct{ Name Variable }

func (VarTerm) isTerm()          {}
func (t VarTerm) String() string { return string(t.Name) }

// AsConst reports whether term is a ConstTerm, returning its value.
func AsConst(t Term) (Constant, bool) {
	c, ok := t.(ConstTerm)
	return c.Value, ok
}

// AsVar reports whether term is a VarTerm, returning its name.
func AsVar(t Term) (Variable, bool) {
	v, ok := t.(VarTerm)
	return v.Name, ok
}

// termsString renders a Term vector as "(a, b, c)" for diagnostics.
func termsString(terms []Term) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
