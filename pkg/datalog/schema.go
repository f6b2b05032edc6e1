package datalog

import "fmt"

// RelationSchema names a relation, fixes its arity, and gives each
// column a type. EDB schemas are populated externally (via Loader); IDB
// schemas are populated by rule evaluation. A schema may not be marked
// both EDB and IDB: a predicate is either externally supplied data or
// internally derived, never both.
type RelationSchema struct {
	Name    string
	Columns []ColumnType
	Kind    RelationKind
}

// RelationKind distinguishes extensional (input) from intensional
// (rule-defined) relations.
type RelationKind int

const (
	// EDB relations are supplied by the Loader collaborator.
	EDB RelationKind = iota
	// IDB relations are defined by rules and computed by the Driver.
	IDB
)

func (k RelationKind) String() string {
	if k == EDB {
		return "EDB"
	}
	return "IDB"
}

// Arity returns the number of columns in the schema.
func (s *RelationSchema) Arity() int { return len(s.Columns) }

// Tuple is a fixed-arity vector of Constants. Two Tuples are equal iff
// they have the same length and componentwise-equal Constants.
type Tuple []Constant

// Equal reports componentwise constant equality.
func (t Tuple) Equal(other Tuple) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if !t[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

func (t Tuple) String() string {
	parts := make([]Term, len(t))
	for i, c := range t {
		parts[i] = ConstTerm{Value: c}
	}
	return termsString(parts)
}

// checkArityAndTypes validates a candidate tuple against a schema,
// returning a *SchemaError describing the first mismatch found.
func (s *RelationSchema) checkArityAndTypes(t Tuple) error {
	if len(t) != s.Arity() {
		return &SchemaError{
			Relation: s.Name,
			Reason:   fmt.Sprintf("expected arity %d, got %d", s.Arity(), len(t)),
		}
	}
	for i, c := range t {
		if c.Type() != s.Columns[i] {
			return &SchemaError{
				Relation: s.Name,
				Reason:   fmt.Sprintf("column %d: expected type %s, got %s", i, s.Columns[i], c.Type()),
			}
		}
	}
	return nil
}
