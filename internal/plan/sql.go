package plan

import (
	"fmt"
	"strings"

	"github.com/roach88/quarry/internal/filter"
	"github.com/roach88/quarry/internal/schema"
)

// sqlBuilder compiles predicate trees to parameterized SQL fragments.
//
// All values are parameterized (never interpolated). Correlated
// subqueries for relation predicates get numbered aliases so
// self-relations cannot collide with the outer table.
type sqlBuilder struct {
	reg     *schema.Registry
	aliasID int
}

func newSQLBuilder(reg *schema.Registry) *sqlBuilder {
	return &sqlBuilder{reg: reg}
}

func (b *sqlBuilder) nextAlias() string {
	b.aliasID++
	return fmt.Sprintf("s%d", b.aliasID)
}

// column renders a qualified, quoted column reference.
func column(alias, field string) string {
	return fmt.Sprintf("%s.%q", alias, field)
}

// compilePredicate compiles a filter node to a WHERE fragment.
// Returns (sql, params, error). A nil node compiles to a tautology.
func (b *sqlBuilder) compilePredicate(entity *schema.Entity, alias string, n filter.Node) (string, []any, error) {
	if n == nil {
		return "1 = 1", nil, nil
	}

	switch node := n.(type) {
	case filter.Comparison:
		return b.compileComparison(alias, node)
	case filter.SetMembership:
		return b.compileSetMembership(alias, node)
	case filter.StringMatch:
		return b.compileStringMatch(alias, node)
	case filter.Logical:
		return b.compileLogical(entity, alias, node)
	case filter.RelationExists:
		return b.compileRelationExists(entity, alias, node)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", n)
	}
}

func (b *sqlBuilder) compileComparison(alias string, cmp filter.Comparison) (string, []any, error) {
	col := column(alias, cmp.Field)
	if cmp.Value == nil {
		switch cmp.Op {
		case filter.OpEq:
			return col + " IS NULL", nil, nil
		case filter.OpNot:
			return col + " IS NOT NULL", nil, nil
		default:
			return "", nil, fmt.Errorf("null value with operator %q", cmp.Op)
		}
	}
	var op string
	switch cmp.Op {
	case filter.OpEq:
		op = "="
	case filter.OpNot:
		op = "<>"
	case filter.OpLt:
		op = "<"
	case filter.OpLte:
		op = "<="
	case filter.OpGt:
		op = ">"
	case filter.OpGte:
		op = ">="
	default:
		return "", nil, fmt.Errorf("unsupported comparison operator %q", cmp.Op)
	}
	return fmt.Sprintf("%s %s ?", col, op), []any{cmp.Value}, nil
}

func (b *sqlBuilder) compileSetMembership(alias string, set filter.SetMembership) (string, []any, error) {
	col := column(alias, set.Field)
	if len(set.Values) == 0 {
		// Empty IN matches nothing; empty NOT IN matches everything.
		if set.Negate {
			return "1 = 1", nil, nil
		}
		return "1 = 0", nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(set.Values)), ", ")
	verb := "IN"
	if set.Negate {
		verb = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", col, verb, placeholders), append([]any(nil), set.Values...), nil
}

func (b *sqlBuilder) compileStringMatch(alias string, m filter.StringMatch) (string, []any, error) {
	pattern := escapeLike(m.Pattern)
	switch m.Mode {
	case filter.MatchContains:
		pattern = "%" + pattern + "%"
	case filter.MatchStartsWith:
		pattern = pattern + "%"
	case filter.MatchEndsWith:
		pattern = "%" + pattern
	default:
		return "", nil, fmt.Errorf("unsupported match mode %q", m.Mode)
	}
	col := column(alias, m.Field)
	if m.CaseInsensitive {
		// fold() is the Unicode case-folding function the storage layer
		// registers; both operands go through it so the comparison is
		// collation-aware rather than a lowercase rewrite.
		return fmt.Sprintf("fold(%s) LIKE fold(?) ESCAPE '\\'", col), []any{pattern}, nil
	}
	return fmt.Sprintf("%s LIKE ? ESCAPE '\\'", col), []any{pattern}, nil
}

func (b *sqlBuilder) compileLogical(entity *schema.Entity, alias string, l filter.Logical) (string, []any, error) {
	switch l.Kind {
	case filter.Not:
		if len(l.Children) != 1 {
			return "", nil, fmt.Errorf("NOT requires exactly one child, got %d", len(l.Children))
		}
		inner, params, err := b.compilePredicate(entity, alias, l.Children[0])
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + inner + ")", params, nil
	case filter.And, filter.Or:
		if len(l.Children) == 0 {
			// Empty AND is vacuously true, empty OR vacuously false.
			if l.Kind == filter.And {
				return "1 = 1", nil, nil
			}
			return "1 = 0", nil, nil
		}
		var parts []string
		var allParams []any
		for _, child := range l.Children {
			sqlPart, params, err := b.compilePredicate(entity, alias, child)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, sqlPart)
			allParams = append(allParams, params...)
		}
		joiner := " AND "
		if l.Kind == filter.Or {
			joiner = " OR "
		}
		return "(" + strings.Join(parts, joiner) + ")", allParams, nil
	default:
		return "", nil, fmt.Errorf("unsupported logical kind %q", l.Kind)
	}
}

// compileRelationExists compiles a quantified relation predicate to a
// correlated EXISTS subquery.
//
//	some  → EXISTS (related AND nested)
//	none  → NOT EXISTS (related AND nested)
//	every → NOT EXISTS (related AND NOT nested)
func (b *sqlBuilder) compileRelationExists(entity *schema.Entity, alias string, rex filter.RelationExists) (string, []any, error) {
	rel, ok := entity.Relation(rex.Relation)
	if !ok {
		return "", nil, fmt.Errorf("relation %q not declared on entity %q", rex.Relation, entity.Name)
	}
	target, ok := b.reg.Entity(rel.Target)
	if !ok {
		return "", nil, fmt.Errorf("relation %q targets unknown entity %q", rex.Relation, rel.Target)
	}

	sub := b.nextAlias()
	join := fmt.Sprintf("%s = %s",
		column(sub, rel.ChildKey(target)),
		column(alias, rel.ParentKey(entity)))

	nested := rex.Nested
	if rex.Quantifier == filter.QuantAll && nested != nil {
		nested = filter.Logical{Kind: filter.Not, Children: []filter.Node{nested}}
	}
	nestedSQL, params, err := b.compilePredicate(target, sub, nested)
	if err != nil {
		return "", nil, err
	}

	subquery := fmt.Sprintf("SELECT 1 FROM %q AS %s WHERE %s AND %s",
		target.Name, sub, join, nestedSQL)

	switch rex.Quantifier {
	case filter.QuantAny:
		return "EXISTS (" + subquery + ")", params, nil
	case filter.QuantNone, filter.QuantAll:
		// every with nil nested is vacuously true for all rows.
		if rex.Quantifier == filter.QuantAll && rex.Nested == nil {
			return "1 = 1", nil, nil
		}
		return "NOT EXISTS (" + subquery + ")", params, nil
	default:
		return "", nil, fmt.Errorf("unsupported quantifier %q", rex.Quantifier)
	}
}

// CompileWhere renders a predicate as a parameterized WHERE fragment
// against the entity's own table. The write compiler and the aggregation
// module share it so every component speaks the same predicate SQL.
func CompileWhere(reg *schema.Registry, entity *schema.Entity, n filter.Node) (string, []any, error) {
	if err := filter.Validate(reg, entity, n); err != nil {
		return "", nil, err
	}
	b := newSQLBuilder(reg)
	return b.compilePredicate(entity, fmt.Sprintf("%q", entity.Name), n)
}

// escapeLike escapes LIKE wildcards and the escape character itself so
// user patterns match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
