package aggregate

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/quarry/internal/exec"
	"github.com/roach88/quarry/internal/filter"
	"github.com/roach88/quarry/internal/plan"
	"github.com/roach88/quarry/internal/schema"
	"github.com/roach88/quarry/internal/storage"
)

// Reducer names a supported aggregation function.
type Reducer string

const (
	Count Reducer = "count"
	Min   Reducer = "min"
	Max   Reducer = "max"
	Avg   Reducer = "avg"
	Sum   Reducer = "sum"
)

// reducerOrder fixes the column order of compiled reducers.
var reducerOrder = []Reducer{Count, Min, Max, Avg, Sum}

// Spec maps field names to the reducers requested for them. A Spec is
// validated in full before any SQL is issued.
type Spec map[string][]Reducer

// Result holds reducer outputs keyed by reducer then field, e.g.
// Result[Count]["id"]. Count values are int64; avg values are float64;
// min, max and sum follow the field's scalar type. Reducers over an
// empty input decode as nil, except count which decodes as zero.
type Result map[Reducer]map[string]any

// Group is one groupBy output row: the distinct key tuple plus the
// reducer results computed over that partition.
type Group struct {
	Keys   map[string]any
	Result Result
}

// Order is one groupBy ordering term. A term with an empty Reducer
// orders by the named group key; otherwise it orders by that reducer's
// output for the field, which must appear in the spec.
type Order struct {
	Field   string
	Reducer Reducer
	Desc    bool
}

// Aggregator compiles and runs aggregation requests against a registry.
type Aggregator struct {
	reg *schema.Registry
}

// New returns an Aggregator over the given registry.
func New(reg *schema.Registry) *Aggregator {
	return &Aggregator{reg: reg}
}

// Aggregate computes the requested reducers over all records matching
// the predicate, collapsing the whole match set into a single Result.
func (a *Aggregator) Aggregate(ctx context.Context, q storage.Querier, entity string, pred filter.Node, spec Spec) (Result, error) {
	ent, cols, err := a.compile(entity, spec)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(exprs(cols), ", "))
	fmt.Fprintf(&sb, " FROM %q", ent.Name)

	args, err := appendWhere(&sb, a.reg, ent, pred)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	results, err := decode(rows, ent, nil, cols)
	if err != nil {
		return nil, err
	}
	// An aggregate without GROUP BY always yields exactly one row.
	return results[0].Result, nil
}

// GroupBy partitions the matching records by the given key fields and
// computes the reducers per partition. Groups come back sorted by the
// explicit orderBy terms, with the remaining group keys appended
// ascending so ties resolve the same way on repeated runs. An empty
// orderBy sorts by the full key tuple.
func (a *Aggregator) GroupBy(ctx context.Context, q storage.Querier, entity string, pred filter.Node, groupFields []string, spec Spec, orderBy []Order) ([]Group, error) {
	if len(groupFields) == 0 {
		return nil, newError(ErrCodeGroupFieldsRequired, entity, "", "groupBy requires at least one group field")
	}

	ent, cols, err := a.compile(entity, spec)
	if err != nil {
		return nil, err
	}
	keys := make([]schema.Field, 0, len(groupFields))
	seen := make(map[string]bool, len(groupFields))
	for _, name := range groupFields {
		f, ok := ent.Field(name)
		if !ok {
			return nil, newError(ErrCodeUnknownField, entity, name, "unknown group field %q", name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		keys = append(keys, f)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	parts := make([]string, 0, len(keys)+len(cols))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%q", k.Name))
	}
	parts = append(parts, exprs(cols)...)
	sb.WriteString(strings.Join(parts, ", "))
	fmt.Fprintf(&sb, " FROM %q", ent.Name)

	args, err := appendWhere(&sb, a.reg, ent, pred)
	if err != nil {
		return nil, err
	}

	sb.WriteString(" GROUP BY ")
	groupParts := make([]string, len(keys))
	for i, k := range keys {
		groupParts[i] = fmt.Sprintf("%q", k.Name)
	}
	sb.WriteString(strings.Join(groupParts, ", "))

	orderParts := make([]string, 0, len(orderBy)+len(keys))
	ordered := make(map[string]bool, len(orderBy))
	for _, o := range orderBy {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		if o.Reducer == "" {
			if !seen[o.Field] {
				return nil, newError(ErrCodeInvalidOrder, entity, o.Field,
					"order field %q is not a group key", o.Field)
			}
			f, _ := ent.Field(o.Field)
			orderParts = append(orderParts, keyOrderExpr(f, dir))
			ordered[o.Field] = true
			continue
		}
		if !hasColumn(cols, o.Reducer, o.Field) {
			return nil, newError(ErrCodeInvalidOrder, entity, o.Field,
				"order term %s(%s) is not in the aggregation spec", o.Reducer, o.Field)
		}
		orderParts = append(orderParts, fmt.Sprintf("%q %s", string(o.Reducer)+"_"+o.Field, dir))
	}
	// Remaining group keys break ties so repeated runs agree.
	for _, k := range keys {
		if ordered[k.Name] {
			continue
		}
		orderParts = append(orderParts, keyOrderExpr(k, "ASC"))
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(orderParts, ", "))

	rows, err := q.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	return decode(rows, ent, keys, cols)
}

// column is one compiled reducer expression.
type column struct {
	reducer Reducer
	field   schema.Field
}

// compile resolves the entity and validates every reducer/field pairing
// before any SQL is generated. The returned columns are in field order
// (lexical) then reducer order, so the SELECT list is deterministic.
func (a *Aggregator) compile(entity string, spec Spec) (*schema.Entity, []column, error) {
	ent, ok := a.reg.Entity(entity)
	if !ok {
		return nil, nil, newError(ErrCodeUnknownEntity, entity, "", "unknown entity %q", entity)
	}
	if len(spec) == 0 {
		return nil, nil, newError(ErrCodeEmptySpec, entity, "", "aggregation requires at least one reducer")
	}

	fields := make([]string, 0, len(spec))
	for name := range spec {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var cols []column
	for _, name := range fields {
		f, ok := ent.Field(name)
		if !ok {
			return nil, nil, newError(ErrCodeUnknownField, entity, name, "unknown field %q", name)
		}
		requested := make(map[Reducer]bool, len(spec[name]))
		for _, r := range spec[name] {
			requested[r] = true
		}
		for _, r := range reducerOrder {
			if !requested[r] {
				continue
			}
			delete(requested, r)
			if err := checkReducer(r, f); err != nil {
				return nil, nil, err
			}
			cols = append(cols, column{reducer: r, field: f})
		}
		for r := range requested {
			return nil, nil, newError(ErrCodeUnsupportedReducer, entity, name, "unknown reducer %q", r)
		}
	}
	return ent, cols, nil
}

// checkReducer rejects reducer/type pairings the engine cannot compute.
func checkReducer(r Reducer, f schema.Field) error {
	numeric := f.Type == schema.TypeInt || f.Type == schema.TypeFloat
	switch r {
	case Count:
		return nil
	case Min, Max:
		if f.Type == schema.TypeBool {
			return newError(ErrCodeUnsupportedReducer, "", f.Name, "%s is not supported on bool field %q", r, f.Name)
		}
		return nil
	case Avg, Sum:
		if !numeric {
			return newError(ErrCodeUnsupportedReducer, "", f.Name, "%s requires a numeric field, %q is %s", r, f.Name, f.Type)
		}
		return nil
	}
	return newError(ErrCodeUnsupportedReducer, "", f.Name, "unknown reducer %q", r)
}

// exprs renders the SELECT expressions for the compiled columns.
func exprs(cols []column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = fmt.Sprintf("%s(%q) AS %q", strings.ToUpper(string(c.reducer)), c.field.Name, alias(c))
	}
	return out
}

func alias(c column) string {
	return string(c.reducer) + "_" + c.field.Name
}

// keyOrderExpr renders an ORDER BY term for a group key. COLLATE BINARY
// pins text ordering across SQLite versions.
func keyOrderExpr(f schema.Field, dir string) string {
	if f.Type == schema.TypeString {
		return fmt.Sprintf("%q COLLATE BINARY %s", f.Name, dir)
	}
	return fmt.Sprintf("%q %s", f.Name, dir)
}

func hasColumn(cols []column, r Reducer, field string) bool {
	for _, c := range cols {
		if c.reducer == r && c.field.Name == field {
			return true
		}
	}
	return false
}

// appendWhere compiles the predicate and appends a WHERE clause when it
// is non-nil.
func appendWhere(sb *strings.Builder, reg *schema.Registry, ent *schema.Entity, pred filter.Node) ([]any, error) {
	if pred == nil {
		return nil, nil
	}
	where, args, err := plan.CompileWhere(reg, ent, pred)
	if err != nil {
		return nil, err
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(where)
	return args, nil
}

// decode scans result rows into groups. keys may be nil for the
// ungrouped case, which still yields exactly one group.
func decode(rows *sql.Rows, ent *schema.Entity, keys []schema.Field, cols []column) ([]Group, error) {
	defer rows.Close()

	var groups []Group
	width := len(keys) + len(cols)
	for rows.Next() {
		raw := make([]any, width)
		ptrs := make([]any, width)
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("aggregate %s: scan: %w", ent.Name, err)
		}

		g := Group{Result: make(Result)}
		if len(keys) > 0 {
			g.Keys = make(map[string]any, len(keys))
			for i, k := range keys {
				v, err := exec.ConvertValue(k, raw[i])
				if err != nil {
					return nil, fmt.Errorf("aggregate %s: group key %s: %w", ent.Name, k.Name, err)
				}
				g.Keys[k.Name] = v
			}
		}
		for i, c := range cols {
			v, err := convertReduced(c, raw[len(keys)+i])
			if err != nil {
				return nil, fmt.Errorf("aggregate %s: %s: %w", ent.Name, alias(c), err)
			}
			if g.Result[c.reducer] == nil {
				g.Result[c.reducer] = make(map[string]any)
			}
			g.Result[c.reducer][c.field.Name] = v
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate %s: rows iteration: %w", ent.Name, err)
	}
	if len(groups) == 0 && len(keys) == 0 {
		// SQLite returns one row even for empty inputs, but a defunct
		// driver result set still decodes to count zero.
		groups = append(groups, Group{Result: emptyResult(cols)})
	}
	return groups, nil
}

// convertReduced maps a driver value for one reducer column. Count is
// always int64, avg always float64; the rest follow the field type.
func convertReduced(c column, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch c.reducer {
	case Count:
		if v, ok := raw.(int64); ok {
			return v, nil
		}
		return nil, fmt.Errorf("count decoded as %T", raw)
	case Avg:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		}
		return nil, fmt.Errorf("avg decoded as %T", raw)
	}
	return exec.ConvertValue(c.field, raw)
}

func emptyResult(cols []column) Result {
	r := make(Result)
	for _, c := range cols {
		if r[c.reducer] == nil {
			r[c.reducer] = make(map[string]any)
		}
		if c.reducer == Count {
			r[c.reducer][c.field.Name] = int64(0)
		} else {
			r[c.reducer][c.field.Name] = nil
		}
	}
	return r
}
