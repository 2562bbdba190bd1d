package plan

import (
	"github.com/roach88/quarry/internal/filter"
	"github.com/roach88/quarry/internal/schema"
)

// Request describes one read against an entity: predicate, projection,
// relation includes, ordering, and pagination. Requests are built per
// call, consumed by the planner, and discarded after execution.
type Request struct {
	// Entity names the root entity. For nested include requests it may
	// be left empty; the relation's target is implied.
	Entity string

	// Filter is the compiled predicate, or nil for no filter.
	Filter filter.Node

	// Select restricts the projection to an explicit field set. Empty
	// means every declared field. Mutually exclusive with Include.
	Select []string

	// Include maps relation names to nested requests. A nil nested
	// request fetches the relation with defaults (all fields, no filter).
	Include map[string]*Request

	// OrderBy lists ordering terms applied before pagination.
	OrderBy []Order

	// Skip drops the first N rows. Must be non-negative.
	Skip int

	// Take bounds the row count. Nil means unbounded. A negative value
	// means "last N": the plan reverses the ordering internally and the
	// executor restores output order.
	Take *int

	// Distinct dedupes rows by the named fields. The projection is
	// restricted to these fields; combining with Include is rejected.
	Distinct []string

	// Unique marks a findUnique-style request: the predicate must pin a
	// unique field, and more than one matching row is a contract
	// violation rather than a normal result.
	Unique bool

	// relation is set by the planner on nested include requests.
	relation schema.Relation
}

// Order is one ordering term.
type Order struct {
	Field string
	Desc  bool
}

// TakeN is a convenience for building the *int Take bound in requests.
func TakeN(n int) *int { return &n }
