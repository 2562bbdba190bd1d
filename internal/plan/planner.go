package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/quarry/internal/filter"
	"github.com/roach88/quarry/internal/schema"
)

// Planner turns query requests into execution plans. It is stateless and
// safe for concurrent use.
type Planner struct {
	reg *schema.Registry
}

// New creates a planner over the given registry.
func New(reg *schema.Registry) *Planner {
	return &Planner{reg: reg}
}

// Plan produces the ordered statement list for a request: one base
// statement plus one batched statement per included relation.
//
// Ordering is applied before pagination, and every statement carries a
// primary-key tiebreaker so paging over a stable ordering reconstructs
// the full result set with no duplicates and no omissions.
func (p *Planner) Plan(req *Request) (*Plan, error) {
	entity, ok := p.reg.Entity(req.Entity)
	if !ok {
		return nil, newError(ErrCodeUnknownEntity, req.Entity, "entity %q not declared", req.Entity)
	}
	return p.buildPlan(entity, req, true)
}

func (p *Planner) buildPlan(entity *schema.Entity, req *Request, root bool) (*Plan, error) {
	if req == nil {
		req = &Request{}
	}
	if req.Skip < 0 {
		return nil, newError(ErrCodeInvalidPagination, entity.Name, "skip must be non-negative, got %d", req.Skip)
	}
	if len(req.Select) > 0 && len(req.Include) > 0 {
		return nil, newError(ErrCodeConflictingProjection, entity.Name,
			"explicit field set and include set are mutually exclusive")
	}
	if len(req.Distinct) > 0 && len(req.Include) > 0 {
		return nil, newError(ErrCodeConflictingProjection, entity.Name,
			"distinct and include set are mutually exclusive")
	}
	if err := filter.Validate(p.reg, entity, req.Filter); err != nil {
		return nil, err
	}
	if !root && len(req.Distinct) > 0 {
		// Assembly keys child rows by the relation key, which a distinct
		// projection cannot be forced to carry.
		return nil, newError(ErrCodeConflictingProjection, entity.Name,
			"distinct is not supported on nested include requests")
	}

	cardinality := Many
	if req.Unique {
		if _, ok := filter.UniqueEquality(entity, req.Filter); !ok {
			return nil, newError(ErrCodeAmbiguousUniqueFilter, entity.Name,
				"findUnique predicate must pin a unique field with equality")
		}
		cardinality = One
	}

	columns, distinct, err := p.projection(entity, req)
	if err != nil {
		return nil, err
	}
	if !root {
		// Assembly groups child rows by the child key; make sure it is
		// scanned even under an explicit projection.
		columns = ensureColumn(columns, req.relation.ChildKey(entity))
	}

	orderBy, reversed, err := p.ordering(entity, req)
	if err != nil {
		return nil, err
	}

	alias := fmt.Sprintf("%q", entity.Name)
	builder := newSQLBuilder(p.reg)
	whereSQL, args, err := builder.compilePredicate(entity, alias, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("plan %s: compile predicate: %w", entity.Name, err)
	}

	pl := &Plan{
		Entity:      entity.Name,
		PrimaryKey:  entity.PrimaryKey(),
		Columns:     columns,
		Cardinality: cardinality,
		Args:        args,
		Reversed:    reversed,
	}

	selectList := make([]string, len(columns))
	for i, c := range columns {
		selectList[i] = fmt.Sprintf("%q", c)
	}
	verb := "SELECT"
	if distinct {
		verb = "SELECT DISTINCT"
	}

	if root {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s %s FROM %q", verb, strings.Join(selectList, ", "), entity.Name)
		if whereSQL != "1 = 1" {
			sb.WriteString(" WHERE " + whereSQL)
		}
		sb.WriteString(" ORDER BY " + orderBy)
		writeLimit(&sb, req, cardinality)
		pl.SQL = sb.String()
	} else {
		// Nested fetch: the IN-list of parent keys is rendered per batch
		// at execution time; per-parent pagination happens in assembly.
		rel := req.relation
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s %s FROM %q WHERE %s IN (%%s)",
			verb, strings.Join(selectList, ", "), entity.Name, column(alias, rel.ChildKey(entity)))
		if whereSQL != "1 = 1" {
			sb.WriteString(" AND " + whereSQL)
		}
		sb.WriteString(" ORDER BY " + orderBy)
		pl.BatchSQL = sb.String()
		pl.Skip = req.Skip
		pl.Take = req.Take
	}

	includes, err := p.buildIncludes(entity, req)
	if err != nil {
		return nil, err
	}
	pl.Includes = includes
	return pl, nil
}

// projection resolves the scan column set. The primary key and any
// include parent keys are force-added: assembly needs them, and the
// engine documents that the primary key is always returned.
func (p *Planner) projection(entity *schema.Entity, req *Request) (columns []string, distinct bool, err error) {
	if len(req.Distinct) > 0 {
		for _, f := range req.Distinct {
			if _, ok := entity.Field(f); !ok {
				return nil, false, newError(ErrCodeUnknownField, entity.Name, "distinct field %q not declared", f)
			}
		}
		return append([]string(nil), req.Distinct...), true, nil
	}

	if len(req.Select) > 0 {
		seen := make(map[string]bool, len(req.Select))
		for _, f := range req.Select {
			if _, ok := entity.Field(f); !ok {
				return nil, false, newError(ErrCodeUnknownField, entity.Name, "selected field %q not declared", f)
			}
			if !seen[f] {
				seen[f] = true
				columns = append(columns, f)
			}
		}
		if !seen[entity.PrimaryKey()] {
			columns = append(columns, entity.PrimaryKey())
		}
		return columns, false, nil
	}

	columns = entity.FieldNames()
	return columns, false, nil
}

// ordering renders the ORDER BY clause: requested terms first, then a
// primary-key tiebreaker for determinism. A negative take flips every
// direction; the executor restores output order afterwards.
func (p *Planner) ordering(entity *schema.Entity, req *Request) (string, bool, error) {
	reversed := req.Take != nil && *req.Take < 0

	// Distinct projections restrict ordering to the projected fields:
	// the database rejects ORDER BY terms outside a DISTINCT result set.
	// The distinct fields themselves serve as the tiebreaker.
	if len(req.Distinct) > 0 {
		distinct := make(map[string]bool, len(req.Distinct))
		for _, f := range req.Distinct {
			distinct[f] = true
		}
		var terms []string
		ordered := make(map[string]bool, len(req.OrderBy))
		for _, o := range req.OrderBy {
			if !distinct[o.Field] {
				return "", false, newError(ErrCodeConflictingProjection, entity.Name,
					"order field %q is outside the distinct set", o.Field)
			}
			f, _ := entity.Field(o.Field)
			ordered[o.Field] = true
			terms = append(terms, orderTerm(f, o.Desc != reversed))
		}
		for _, name := range req.Distinct {
			if ordered[name] {
				continue
			}
			f, _ := entity.Field(name)
			terms = append(terms, orderTerm(f, reversed))
		}
		return strings.Join(terms, ", "), reversed, nil
	}

	var terms []string
	sawPK := false
	for _, o := range req.OrderBy {
		f, ok := entity.Field(o.Field)
		if !ok {
			return "", false, newError(ErrCodeUnknownField, entity.Name, "order field %q not declared", o.Field)
		}
		if f.Primary {
			sawPK = true
		}
		terms = append(terms, orderTerm(f, o.Desc != reversed))
	}
	if !sawPK {
		pk, _ := entity.Field(entity.PrimaryKey())
		terms = append(terms, orderTerm(pk, reversed))
	}
	return strings.Join(terms, ", "), reversed, nil
}

func orderTerm(f schema.Field, desc bool) string {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	if f.Type == schema.TypeString {
		// COLLATE BINARY pins text ordering across SQLite versions.
		return fmt.Sprintf("%q COLLATE BINARY %s", f.Name, dir)
	}
	return fmt.Sprintf("%q %s", f.Name, dir)
}

func writeLimit(sb *strings.Builder, req *Request, cardinality Cardinality) {
	if cardinality == One {
		// Fetch two rows so a second match is detectable as a
		// MultipleRecordsFound violation.
		sb.WriteString(" LIMIT 2")
		return
	}
	switch {
	case req.Take != nil:
		n := *req.Take
		if n < 0 {
			n = -n
		}
		fmt.Fprintf(sb, " LIMIT %d", n)
	case req.Skip > 0:
		// SQLite requires a LIMIT clause before OFFSET; -1 is unbounded.
		sb.WriteString(" LIMIT -1")
	}
	if req.Skip > 0 {
		fmt.Fprintf(sb, " OFFSET %d", req.Skip)
	}
}

func (p *Planner) buildIncludes(entity *schema.Entity, req *Request) ([]Include, error) {
	if len(req.Include) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(req.Include))
	for name := range req.Include {
		names = append(names, name)
	}
	sort.Strings(names)

	includes := make([]Include, 0, len(names))
	for _, name := range names {
		rel, ok := entity.Relation(name)
		if !ok {
			return nil, newError(ErrCodeUnknownRelation, entity.Name, "relation %q not declared", name)
		}
		target, _ := p.reg.Entity(rel.Target)

		childReq := req.Include[name]
		if childReq == nil {
			childReq = &Request{}
		}
		if childReq.Entity != "" && childReq.Entity != rel.Target {
			return nil, newError(ErrCodeUnknownRelation, entity.Name,
				"include %q targets %q but request names %q", name, rel.Target, childReq.Entity)
		}
		childCopy := *childReq
		childCopy.relation = rel
		child, err := p.buildPlan(target, &childCopy, false)
		if err != nil {
			return nil, err
		}
		includes = append(includes, Include{
			Name:      name,
			Kind:      rel.Kind,
			ParentKey: rel.ParentKey(entity),
			ChildKey:  rel.ChildKey(target),
			Child:     child,
		})
	}
	return includes, nil
}

func ensureColumn(columns []string, name string) []string {
	for _, c := range columns {
		if c == name {
			return columns
		}
	}
	return append(columns, name)
}
