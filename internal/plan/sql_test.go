package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/filter"
)

func compileUserWhere(t *testing.T, n filter.Node) (string, []any) {
	t.Helper()
	reg := testRegistry(t)
	user, _ := reg.Entity("user")
	sqlText, args, err := CompileWhere(reg, user, n)
	require.NoError(t, err)
	return sqlText, args
}

func TestCompileWhere_UndeclaredField(t *testing.T) {
	reg := testRegistry(t)
	user, _ := reg.Entity("user")
	_, _, err := CompileWhere(reg, user, filter.Comparison{Field: "nope", Op: filter.OpEq, Value: 1})
	require.Error(t, err)
	assert.True(t, filter.IsUnknownField(err))
}

func TestCompileWhere_NilIsTautology(t *testing.T) {
	sqlText, args := compileUserWhere(t, nil)
	assert.Equal(t, "1 = 1", sqlText)
	assert.Empty(t, args)
}

func TestCompileWhere_Comparison(t *testing.T) {
	sqlText, args := compileUserWhere(t, filter.Comparison{Field: "age", Op: filter.OpGte, Value: int64(21)})
	assert.Equal(t, `"user"."age" >= ?`, sqlText)
	assert.Equal(t, []any{int64(21)}, args)
}

func TestCompileWhere_NullComparison(t *testing.T) {
	sqlText, args := compileUserWhere(t, filter.Comparison{Field: "name", Op: filter.OpEq, Value: nil})
	assert.Equal(t, `"user"."name" IS NULL`, sqlText)
	assert.Empty(t, args)

	sqlText, _ = compileUserWhere(t, filter.Comparison{Field: "name", Op: filter.OpNot, Value: nil})
	assert.Equal(t, `"user"."name" IS NOT NULL`, sqlText)
}

func TestCompileWhere_SetMembership(t *testing.T) {
	sqlText, args := compileUserWhere(t, filter.SetMembership{Field: "age", Values: []any{int64(1), int64(2)}})
	assert.Equal(t, `"user"."age" IN (?, ?)`, sqlText)
	assert.Equal(t, []any{int64(1), int64(2)}, args)
}

func TestCompileWhere_EmptySetMembership(t *testing.T) {
	// Empty IN matches nothing; empty NOT IN matches everything.
	sqlText, _ := compileUserWhere(t, filter.SetMembership{Field: "age"})
	assert.Equal(t, "1 = 0", sqlText)

	sqlText, _ = compileUserWhere(t, filter.SetMembership{Field: "age", Negate: true})
	assert.Equal(t, "1 = 1", sqlText)
}

func TestCompileWhere_StringMatchEscapesWildcards(t *testing.T) {
	sqlText, args := compileUserWhere(t, filter.StringMatch{
		Field:   "name",
		Pattern: "50%_off",
		Mode:    filter.MatchContains,
	})
	assert.Equal(t, `"user"."name" LIKE ? ESCAPE '\'`, sqlText)
	assert.Equal(t, []any{`%50\%\_off%`, }, args)
}

func TestCompileWhere_StringMatchInsensitive(t *testing.T) {
	sqlText, args := compileUserWhere(t, filter.StringMatch{
		Field:           "name",
		Pattern:         "Ann",
		Mode:            filter.MatchStartsWith,
		CaseInsensitive: true,
	})
	assert.Equal(t, `fold("user"."name") LIKE fold(?) ESCAPE '\'`, sqlText)
	assert.Equal(t, []any{`Ann%`}, args)
}

func TestCompileWhere_LogicalOr(t *testing.T) {
	sqlText, args := compileUserWhere(t, filter.Logical{Kind: filter.Or, Children: []filter.Node{
		filter.Comparison{Field: "age", Op: filter.OpGt, Value: int64(65)},
		filter.Comparison{Field: "age", Op: filter.OpEq, Value: nil},
	}})
	assert.Equal(t, `("user"."age" > ? OR "user"."age" IS NULL)`, sqlText)
	assert.Equal(t, []any{int64(65)}, args)
}

func TestCompileWhere_Not(t *testing.T) {
	sqlText, _ := compileUserWhere(t, filter.Logical{Kind: filter.Not, Children: []filter.Node{
		filter.Comparison{Field: "age", Op: filter.OpLt, Value: int64(18)},
	}})
	assert.Equal(t, `NOT ("user"."age" < ?)`, sqlText)
}

func TestCompileWhere_RelationSome(t *testing.T) {
	sqlText, args := compileUserWhere(t, filter.RelationExists{
		Relation:   "posts",
		Quantifier: filter.QuantAny,
		Nested:     filter.Comparison{Field: "published", Op: filter.OpEq, Value: true},
	})
	assert.Equal(t,
		`EXISTS (SELECT 1 FROM "post" AS s1 WHERE s1."authorId" = "user"."id" AND s1."published" = ?)`,
		sqlText)
	assert.Equal(t, []any{true}, args)
}

func TestCompileWhere_RelationNone(t *testing.T) {
	sqlText, _ := compileUserWhere(t, filter.RelationExists{
		Relation:   "posts",
		Quantifier: filter.QuantNone,
	})
	assert.Equal(t,
		`NOT EXISTS (SELECT 1 FROM "post" AS s1 WHERE s1."authorId" = "user"."id" AND 1 = 1)`,
		sqlText)
}

func TestCompileWhere_RelationEvery(t *testing.T) {
	sqlText, args := compileUserWhere(t, filter.RelationExists{
		Relation:   "posts",
		Quantifier: filter.QuantAll,
		Nested:     filter.Comparison{Field: "published", Op: filter.OpEq, Value: true},
	})
	// every(p) is "no related row violates p".
	assert.Equal(t,
		`NOT EXISTS (SELECT 1 FROM "post" AS s1 WHERE s1."authorId" = "user"."id" AND NOT (s1."published" = ?))`,
		sqlText)
	assert.Equal(t, []any{true}, args)
}

func TestCompileWhere_RelationEveryNilNested(t *testing.T) {
	sqlText, _ := compileUserWhere(t, filter.RelationExists{
		Relation:   "posts",
		Quantifier: filter.QuantAll,
	})
	assert.Equal(t, "1 = 1", sqlText)
}

func TestCompileWhere_NestedAliasesDoNotCollide(t *testing.T) {
	sqlText, _ := compileUserWhere(t, filter.Logical{Kind: filter.And, Children: []filter.Node{
		filter.RelationExists{Relation: "posts", Quantifier: filter.QuantAny},
		filter.RelationExists{Relation: "posts", Quantifier: filter.QuantNone},
	}})
	assert.Contains(t, sqlText, `AS s1`)
	assert.Contains(t, sqlText, `AS s2`)
}
