package engine

import (
	"context"

	"github.com/roach88/quarry/internal/aggregate"
	"github.com/roach88/quarry/internal/exec"
	"github.com/roach88/quarry/internal/filter"
	"github.com/roach88/quarry/internal/plan"
	"github.com/roach88/quarry/internal/txn"
	"github.com/roach88/quarry/internal/write"
)

// Tx exposes the engine's operations on one transaction handle. Reads
// through a Tx observe the transaction's own uncommitted writes, and
// nothing is visible outside until Commit. After Commit or Rollback
// every further operation fails with a transaction-state error.
type Tx struct {
	e *Engine
	h *txn.Handle
}

// Begin opens an explicit transaction. The caller owns the handle and
// must close it on every exit path; Rollback after Commit is a no-op,
// so `defer tx.Rollback()` is always safe.
func (e *Engine) Begin(ctx context.Context) (*Tx, error) {
	h, err := txn.Begin(ctx, e.store, txn.WithLogger(e.log))
	if err != nil {
		return nil, err
	}
	return &Tx{e: e, h: h}, nil
}

// Transaction runs fn inside a transaction. The transaction commits
// when fn returns nil and rolls back when fn returns an error or
// panics.
func (e *Engine) Transaction(ctx context.Context, fn func(*Tx) error) error {
	return txn.Run(ctx, e.store, func(h *txn.Handle) error {
		return fn(&Tx{e: e, h: h})
	}, txn.WithLogger(e.log))
}

// ID returns the transaction identifier, used for log correlation.
func (t *Tx) ID() string { return t.h.ID() }

// Commit makes the transaction's writes durable.
func (t *Tx) Commit() error { return t.h.Commit() }

// Rollback discards the transaction's writes. Idempotent.
func (t *Tx) Rollback() error { return t.h.Rollback() }

// FindUnique is FindUnique within the transaction.
func (t *Tx) FindUnique(ctx context.Context, req *plan.Request) (exec.Record, error) {
	return t.e.findUnique(ctx, t.h, req)
}

// FindMany is FindMany within the transaction.
func (t *Tx) FindMany(ctx context.Context, req *plan.Request) ([]exec.Record, error) {
	return t.e.findMany(ctx, t.h, req)
}

// Create is Create within the transaction. Nested children share the
// surrounding transaction instead of opening their own.
func (t *Tx) Create(ctx context.Context, c write.Create) (exec.Record, error) {
	return t.e.create(ctx, t.h, c)
}

// Update is Update within the transaction.
func (t *Tx) Update(ctx context.Context, u write.Update) (int64, error) {
	return t.e.writer.Update(ctx, t.h, u)
}

// Delete is Delete within the transaction.
func (t *Tx) Delete(ctx context.Context, d write.Delete) (int64, error) {
	return t.e.writer.Delete(ctx, t.h, d)
}

// Upsert is Upsert within the transaction.
func (t *Tx) Upsert(ctx context.Context, u write.Upsert) (exec.Record, error) {
	return t.e.upsert(ctx, t.h, u)
}

// Aggregate is Aggregate within the transaction.
func (t *Tx) Aggregate(ctx context.Context, entity string, pred filter.Node, spec aggregate.Spec) (aggregate.Result, error) {
	return t.e.agg.Aggregate(ctx, t.h, entity, pred, spec)
}

// GroupBy is GroupBy within the transaction.
func (t *Tx) GroupBy(ctx context.Context, entity string, pred filter.Node, groupFields []string, spec aggregate.Spec, orderBy []aggregate.Order) ([]aggregate.Group, error) {
	return t.e.agg.GroupBy(ctx, t.h, entity, pred, groupFields, spec, orderBy)
}

// Count is Count within the transaction.
func (t *Tx) Count(ctx context.Context, entity string, pred filter.Node) (int64, error) {
	return t.e.count(ctx, t.h, entity, pred)
}
