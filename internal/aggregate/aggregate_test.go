package aggregate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quarry/internal/filter"
	"github.com/roach88/quarry/internal/schema"
	"github.com/roach88/quarry/internal/storage"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry([]*schema.Entity{
		{
			Name: "order",
			Fields: []schema.Field{
				{Name: "id", Type: schema.TypeString, Primary: true},
				{Name: "region", Type: schema.TypeString},
				{Name: "amount", Type: schema.TypeInt},
				{Name: "paid", Type: schema.TypeBool},
			},
		},
	})
	require.NoError(t, err)
	return reg
}

func setup(t *testing.T) (*Aggregator, *storage.SQLite) {
	t.Helper()
	reg := testRegistry(t)
	store, err := storage.Open(":memory:", reg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	rows := []struct {
		id     string
		region string
		amount int64
		paid   bool
	}{
		{"o1", "east", 10, true},
		{"o2", "east", 30, true},
		{"o3", "west", 5, false},
		{"o4", "west", 15, true},
	}
	for _, r := range rows {
		_, err := store.Exec(ctx,
			`INSERT INTO "order" ("id", "region", "amount", "paid") VALUES (?, ?, ?, ?)`,
			r.id, r.region, r.amount, r.paid)
		require.NoError(t, err)
	}
	return New(reg), store
}

func TestAggregate(t *testing.T) {
	a, store := setup(t)

	res, err := a.Aggregate(context.Background(), store, "order", nil, Spec{
		"id":     {Count},
		"amount": {Min, Max, Avg, Sum},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(4), res[Count]["id"])
	assert.Equal(t, int64(5), res[Min]["amount"])
	assert.Equal(t, int64(30), res[Max]["amount"])
	assert.Equal(t, float64(15), res[Avg]["amount"])
	assert.Equal(t, int64(60), res[Sum]["amount"])
}

func TestAggregate_Filtered(t *testing.T) {
	a, store := setup(t)

	res, err := a.Aggregate(context.Background(), store, "order",
		filter.Comparison{Field: "paid", Op: filter.OpEq, Value: true},
		Spec{"amount": {Count, Sum}})
	require.NoError(t, err)

	assert.Equal(t, int64(3), res[Count]["amount"])
	assert.Equal(t, int64(55), res[Sum]["amount"])
}

func TestAggregate_EmptyInput(t *testing.T) {
	a, store := setup(t)

	res, err := a.Aggregate(context.Background(), store, "order",
		filter.Comparison{Field: "region", Op: filter.OpEq, Value: "north"},
		Spec{"id": {Count}, "amount": {Sum, Avg}})
	require.NoError(t, err)

	// Count collapses to zero over an empty match set; the rest to nil.
	assert.Equal(t, int64(0), res[Count]["id"])
	assert.Nil(t, res[Sum]["amount"])
	assert.Nil(t, res[Avg]["amount"])
}

func TestAggregate_UnsupportedReducer(t *testing.T) {
	a, store := setup(t)

	_, err := a.Aggregate(context.Background(), store, "order", nil, Spec{"region": {Sum}})
	require.Error(t, err)
	assert.True(t, IsUnsupportedReducer(err))

	_, err = a.Aggregate(context.Background(), store, "order", nil, Spec{"paid": {Min}})
	require.Error(t, err)
	assert.True(t, IsUnsupportedReducer(err))
}

func TestAggregate_UnknownField(t *testing.T) {
	a, store := setup(t)

	_, err := a.Aggregate(context.Background(), store, "order", nil, Spec{"total": {Count}})
	require.Error(t, err)
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrCodeUnknownField, ae.Code)
}

func TestAggregate_EmptySpec(t *testing.T) {
	a, store := setup(t)

	_, err := a.Aggregate(context.Background(), store, "order", nil, Spec{})
	require.Error(t, err)
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrCodeEmptySpec, ae.Code)

	_, err = a.Aggregate(context.Background(), store, "order", nil, nil)
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrCodeEmptySpec, ae.Code)
}

func TestGroupBy(t *testing.T) {
	a, store := setup(t)

	groups, err := a.GroupBy(context.Background(), store, "order", nil,
		[]string{"region"}, Spec{"amount": {Count, Sum}}, nil)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	// Groups come back ordered by key tuple.
	assert.Equal(t, "east", groups[0].Keys["region"])
	assert.Equal(t, int64(2), groups[0].Result[Count]["amount"])
	assert.Equal(t, int64(40), groups[0].Result[Sum]["amount"])

	assert.Equal(t, "west", groups[1].Keys["region"])
	assert.Equal(t, int64(20), groups[1].Result[Sum]["amount"])
}

func TestGroupBy_Filtered(t *testing.T) {
	a, store := setup(t)

	groups, err := a.GroupBy(context.Background(), store, "order",
		filter.Comparison{Field: "paid", Op: filter.OpEq, Value: true},
		[]string{"region"}, Spec{"amount": {Sum}}, nil)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, int64(40), groups[0].Result[Sum]["amount"])
	assert.Equal(t, int64(15), groups[1].Result[Sum]["amount"])
}

func TestGroupBy_MultipleKeys(t *testing.T) {
	a, store := setup(t)

	groups, err := a.GroupBy(context.Background(), store, "order", nil,
		[]string{"region", "paid"}, Spec{"id": {Count}}, nil)
	require.NoError(t, err)
	require.Len(t, groups, 3)

	assert.Equal(t, map[string]any{"region": "east", "paid": true}, groups[0].Keys)
	assert.Equal(t, map[string]any{"region": "west", "paid": false}, groups[1].Keys)
	assert.Equal(t, map[string]any{"region": "west", "paid": true}, groups[2].Keys)
	assert.Equal(t, int64(2), groups[0].Result[Count]["id"])
}

func TestGroupBy_NoKeys(t *testing.T) {
	a, store := setup(t)

	_, err := a.GroupBy(context.Background(), store, "order", nil, nil, Spec{"id": {Count}}, nil)
	require.Error(t, err)
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrCodeGroupFieldsRequired, ae.Code)
}

func TestGroupBy_EmptyInput(t *testing.T) {
	a, store := setup(t)

	groups, err := a.GroupBy(context.Background(), store, "order",
		filter.Comparison{Field: "region", Op: filter.OpEq, Value: "north"},
		[]string{"region"}, Spec{"id": {Count}}, nil)
	require.NoError(t, err)
	assert.Empty(t, groups, "no partitions exist for an empty match set")
}

func TestGroupBy_OrderByReducer(t *testing.T) {
	a, store := setup(t)

	groups, err := a.GroupBy(context.Background(), store, "order", nil,
		[]string{"region"}, Spec{"amount": {Sum}},
		[]Order{{Field: "amount", Reducer: Sum}})
	require.NoError(t, err)
	require.Len(t, groups, 2)

	// Sum ascending: west (20) before east (40).
	assert.Equal(t, "west", groups[0].Keys["region"])
	assert.Equal(t, "east", groups[1].Keys["region"])
}

func TestGroupBy_OrderByKeyDescending(t *testing.T) {
	a, store := setup(t)

	groups, err := a.GroupBy(context.Background(), store, "order", nil,
		[]string{"region"}, Spec{"id": {Count}},
		[]Order{{Field: "region", Desc: true}})
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "west", groups[0].Keys["region"])
	assert.Equal(t, "east", groups[1].Keys["region"])
}

func TestGroupBy_OrderByReducerTiebreak(t *testing.T) {
	a, store := setup(t)

	groups, err := a.GroupBy(context.Background(), store, "order", nil,
		[]string{"region", "paid"}, Spec{"id": {Count}},
		[]Order{{Field: "id", Reducer: Count, Desc: true}})
	require.NoError(t, err)
	require.Len(t, groups, 3)

	// east/true counts 2; the two singleton groups tie and fall back to
	// key-tuple order.
	assert.Equal(t, map[string]any{"region": "east", "paid": true}, groups[0].Keys)
	assert.Equal(t, map[string]any{"region": "west", "paid": false}, groups[1].Keys)
	assert.Equal(t, map[string]any{"region": "west", "paid": true}, groups[2].Keys)
}

func TestGroupBy_OrderByInvalidTerm(t *testing.T) {
	a, store := setup(t)

	// amount is not a group key.
	_, err := a.GroupBy(context.Background(), store, "order", nil,
		[]string{"region"}, Spec{"amount": {Sum}},
		[]Order{{Field: "amount"}})
	require.Error(t, err)
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrCodeInvalidOrder, ae.Code)

	// avg(amount) was not requested in the spec.
	_, err = a.GroupBy(context.Background(), store, "order", nil,
		[]string{"region"}, Spec{"amount": {Sum}},
		[]Order{{Field: "amount", Reducer: Avg}})
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrCodeInvalidOrder, ae.Code)
}

func TestGroupBy_EmptySpec(t *testing.T) {
	a, store := setup(t)

	_, err := a.GroupBy(context.Background(), store, "order", nil,
		[]string{"region"}, Spec{}, nil)
	require.Error(t, err)
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrCodeEmptySpec, ae.Code)
}

func TestAggregate_UndeclaredPredicateField(t *testing.T) {
	a, store := setup(t)

	_, err := a.Aggregate(context.Background(), store, "order",
		filter.Comparison{Field: "nope", Op: filter.OpEq, Value: 1},
		Spec{"id": {Count}})
	require.Error(t, err)
	assert.True(t, filter.IsUnknownField(err))
}
