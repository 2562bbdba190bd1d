package write

import "github.com/roach88/quarry/internal/filter"

// Create inserts one record, optionally with nested child records that
// land in the same transaction scope.
type Create struct {
	Entity string

	// Values maps field names to literals. Fields with a default policy
	// may be omitted; the compiler materializes the default.
	Values map[string]any

	// Nested maps to-many relation names to child value maps. Each child
	// gets its foreign key set from the parent's key automatically.
	Nested map[string][]map[string]any
}

// Update rewrites fields on matching records.
type Update struct {
	Entity string

	// Filter selects the records to update.
	Filter filter.Node

	// Values maps field names to either literals (plain set) or SetValue
	// operations (relative increment/decrement).
	Values map[string]any

	// Multi must be set explicitly when the predicate does not pin a
	// unique field; without it a broad update is rejected instead of
	// silently touching every match.
	Multi bool
}

// Delete removes matching records.
type Delete struct {
	Entity string
	Filter filter.Node

	// Multi: same contract as Update.Multi.
	Multi bool
}

// Upsert inserts the record if the predicate's unique field has no match,
// otherwise applies UpdateValues to the existing record. The operation is
// a single statement, so two racing upserts cannot both insert.
type Upsert struct {
	Entity string

	// Filter must pin a unique field with equality; that field is the
	// conflict target.
	Filter filter.Node

	CreateValues map[string]any
	UpdateValues map[string]any
}

// ValueOp tags a SetValue operation.
type ValueOp string

const (
	OpSet       ValueOp = "set"
	OpIncrement ValueOp = "increment"
	OpDecrement ValueOp = "decrement"
)

// SetValue is an update operation on one field. Increment and decrement
// are relative: they compile to a read-modify-write expressed against the
// stored value at execution time, not a value read earlier by the caller,
// so concurrent transactions cannot lose updates.
type SetValue struct {
	Op     ValueOp
	Amount any
}

// Increment builds a relative increment by n.
func Increment(n int64) SetValue { return SetValue{Op: OpIncrement, Amount: n} }

// Decrement builds a relative decrement by n.
func Decrement(n int64) SetValue { return SetValue{Op: OpDecrement, Amount: n} }
