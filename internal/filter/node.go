package filter

// Node represents a compiled predicate over an entity's fields and
// relations.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in the SQL planner.
//
// Node types:
//   - Comparison: field <op> literal value
//   - SetMembership: field IN / NOT IN a value list
//   - StringMatch: substring, prefix, or suffix match
//   - Logical: AND / OR / NOT combinator
//   - RelationExists: quantified predicate over a related entity
type Node interface {
	filterNode() // Marker method - seals interface to this package
}

// Op enumerates comparison operators.
type Op string

const (
	OpEq  Op = "equals"
	OpNot Op = "not"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpGt  Op = "gt"
	OpGte Op = "gte"
)

// Comparison compares a field against a literal value.
//
// A nil Value with OpEq compiles to IS NULL; with OpNot to IS NOT NULL.
type Comparison struct {
	Field string
	Op    Op
	Value any
}

func (Comparison) filterNode() {}

// SetMembership checks whether a field's value is contained in Values.
// Negate inverts the check (NOT IN).
type SetMembership struct {
	Field  string
	Values []any
	Negate bool
}

func (SetMembership) filterNode() {}

// MatchMode selects the string-match shape.
type MatchMode string

const (
	MatchContains   MatchMode = "contains"
	MatchStartsWith MatchMode = "startsWith"
	MatchEndsWith   MatchMode = "endsWith"
)

// StringMatch matches a string field against a pattern.
//
// CaseInsensitive matching uses Unicode case folding (see the fold
// function registered by the storage layer), not a naive lowercase
// rewrite, so non-ASCII comparisons behave consistently.
type StringMatch struct {
	Field           string
	Pattern         string
	Mode            MatchMode
	CaseInsensitive bool
}

func (StringMatch) filterNode() {}

// LogicalKind enumerates the logical combinators.
type LogicalKind string

const (
	And LogicalKind = "AND"
	Or  LogicalKind = "OR"
	Not LogicalKind = "NOT"
)

// Logical combines child predicates.
//
// An empty AND is vacuously true; an empty OR is vacuously false.
// NOT requires exactly one child.
type Logical struct {
	Kind     LogicalKind
	Children []Node
}

func (Logical) filterNode() {}

// Quantifier selects how a RelationExists predicate quantifies over
// related rows.
type Quantifier string

const (
	// QuantAny: at least one related row matches (EXISTS).
	QuantAny Quantifier = "some"
	// QuantNone: no related row matches (NOT EXISTS).
	QuantNone Quantifier = "none"
	// QuantAll: every related row matches (NOT EXISTS with negated inner).
	QuantAll Quantifier = "every"
)

// RelationExists quantifies a nested predicate over a declared relation.
// A nil Nested predicate matches every related row.
type RelationExists struct {
	Relation   string
	Quantifier Quantifier
	Nested     Node
}

func (RelationExists) filterNode() {}
