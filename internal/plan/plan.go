package plan

import (
	"fmt"
	"strings"

	"github.com/roach88/quarry/internal/schema"
)

// Cardinality tags how many logical records a plan may produce. The
// executor consumes the tag: for One, a second matching row is a contract
// violation, not a result.
type Cardinality string

const (
	One  Cardinality = "ONE"
	Many Cardinality = "MANY"
)

// Plan is an ordered execution recipe for one query request: a base
// statement for the root entity plus one batched statement per included
// relation. Relation fetches are keyed by parent key values already
// fetched - one statement per relation, never one per parent row.
type Plan struct {
	// Entity is the entity this plan reads.
	Entity string

	// PrimaryKey names the entity's primary key column.
	PrimaryKey string

	// Columns lists the scan columns, in SELECT order.
	Columns []string

	// Cardinality is One for findUnique-style plans, Many otherwise.
	Cardinality Cardinality

	// SQL is the complete root statement. Empty on nested plans, which
	// carry BatchSQL instead.
	SQL string

	// BatchSQL is a statement template for batched relation fetches. It
	// contains one %s hole for the IN-list placeholders; parent key
	// values prepend Args at execution time.
	BatchSQL string

	// Args holds the parameter values for SQL / the tail of BatchSQL.
	Args []any

	// Reversed marks a plan whose ordering was flipped to serve a
	// negative take; the executor restores output order.
	Reversed bool

	// Skip/Take are carried on nested plans only: batched fetches cannot
	// paginate per parent in SQL, so the executor trims each parent's
	// group during assembly.
	Skip int
	Take *int

	// Includes lists the dependent relation fetches.
	Includes []Include
}

// Include binds a relation fetch to its parent plan.
type Include struct {
	// Name is the relation name, which also keys the result tree.
	Name string

	// Kind distinguishes to-many (list) from to-one (single) assembly.
	Kind schema.RelationKind

	// ParentKey is the column on parent rows whose values key the batch.
	ParentKey string

	// ChildKey is the column on child rows matched against parent keys.
	ChildKey string

	// Child is the nested plan template.
	Child *Plan
}

// RenderBatch expands a nested plan's BatchSQL for a concrete set of
// parent key values. Key values come first in the parameter list, then
// the plan's own filter parameters.
func (p *Plan) RenderBatch(keys []any) (string, []any) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	args := make([]any, 0, len(keys)+len(p.Args))
	args = append(args, keys...)
	args = append(args, p.Args...)
	return fmt.Sprintf(p.BatchSQL, placeholders), args
}
