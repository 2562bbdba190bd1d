package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/roach88/quarry/internal/aggregate"
	"github.com/roach88/quarry/internal/exec"
	"github.com/roach88/quarry/internal/filter"
	"github.com/roach88/quarry/internal/plan"
	"github.com/roach88/quarry/internal/schema"
	"github.com/roach88/quarry/internal/storage"
	"github.com/roach88/quarry/internal/txn"
	"github.com/roach88/quarry/internal/write"
)

// Engine is the public surface of the query engine: compile, plan and
// execute reads; compile and apply writes; run aggregations. Every
// operation is available both directly (auto-commit) and through a
// transaction handle (see Tx).
//
// An Engine is safe for concurrent use. All per-request state lives in
// the request values; the engine itself only holds the registry and the
// storage backend.
type Engine struct {
	reg     *schema.Registry
	store   storage.Storage
	planner *plan.Planner
	exec    *exec.Executor
	writer  *write.Writer
	agg     *aggregate.Aggregator
	log     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger installs a logger. Default is zap.NewNop().
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New builds an Engine over a registry and a storage backend.
func New(reg *schema.Registry, store storage.Storage, opts ...Option) *Engine {
	e := &Engine{
		reg:     reg,
		store:   store,
		planner: plan.New(reg),
		exec:    exec.New(reg),
		agg:     aggregate.New(reg),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.writer = write.NewWriter(reg, e.log)
	return e
}

// Registry returns the schema registry the engine was built with.
func (e *Engine) Registry() *schema.Registry { return e.reg }

// CompileFilter compiles a raw predicate (the map shorthand, or an
// already-built node) against an entity. Callers that construct
// filter.Node values directly do not need this.
func (e *Engine) CompileFilter(entity string, raw any) (filter.Node, error) {
	ent, ok := e.reg.Entity(entity)
	if !ok {
		return nil, &plan.Error{Code: plan.ErrCodeUnknownEntity, Message: "unknown entity", Entity: entity}
	}
	return filter.Compile(e.reg, ent, raw)
}

// FindUnique fetches at most one record by a unique equality predicate.
// Returns nil without error when no record matches; returns an
// execution error when more than one matches.
func (e *Engine) FindUnique(ctx context.Context, req *plan.Request) (exec.Record, error) {
	return e.findUnique(ctx, e.store, req)
}

// FindMany fetches every record matching the request, with ordering,
// pagination and relation includes applied.
func (e *Engine) FindMany(ctx context.Context, req *plan.Request) ([]exec.Record, error) {
	return e.findMany(ctx, e.store, req)
}

// Create inserts one record and returns it with defaults applied.
// A create carrying nested children runs inside its own transaction so
// the parent and children land atomically.
func (e *Engine) Create(ctx context.Context, c write.Create) (exec.Record, error) {
	if len(c.Nested) == 0 {
		return e.create(ctx, e.store, c)
	}
	var rec exec.Record
	err := txn.Run(ctx, e.store, func(h *txn.Handle) error {
		var err error
		rec, err = e.create(ctx, h, c)
		return err
	}, txn.WithLogger(e.log))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Update applies an update and returns the number of affected records.
func (e *Engine) Update(ctx context.Context, u write.Update) (int64, error) {
	return e.writer.Update(ctx, e.store, u)
}

// Delete removes matching records and returns the number removed.
func (e *Engine) Delete(ctx context.Context, d write.Delete) (int64, error) {
	return e.writer.Delete(ctx, e.store, d)
}

// Upsert inserts or updates against a unique predicate and returns the
// resulting record. The insert-or-update decision and the follow-up
// read share one transaction, so the returned record is the row the
// upsert produced.
func (e *Engine) Upsert(ctx context.Context, u write.Upsert) (exec.Record, error) {
	var rec exec.Record
	err := txn.Run(ctx, e.store, func(h *txn.Handle) error {
		var err error
		rec, err = e.upsert(ctx, h, u)
		return err
	}, txn.WithLogger(e.log))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Aggregate computes reducers over the records matching the predicate.
func (e *Engine) Aggregate(ctx context.Context, entity string, pred filter.Node, spec aggregate.Spec) (aggregate.Result, error) {
	return e.agg.Aggregate(ctx, e.store, entity, pred, spec)
}

// GroupBy partitions matching records by key fields and computes
// reducers per partition, ordered by the given terms.
func (e *Engine) GroupBy(ctx context.Context, entity string, pred filter.Node, groupFields []string, spec aggregate.Spec, orderBy []aggregate.Order) ([]aggregate.Group, error) {
	return e.agg.GroupBy(ctx, e.store, entity, pred, groupFields, spec, orderBy)
}

// Count is shorthand for a count aggregate over the primary key.
func (e *Engine) Count(ctx context.Context, entity string, pred filter.Node) (int64, error) {
	return e.count(ctx, e.store, entity, pred)
}

// shared implementations over an arbitrary querier, so the same code
// serves both auto-commit calls and transaction handles.

func (e *Engine) findUnique(ctx context.Context, q storage.Querier, req *plan.Request) (exec.Record, error) {
	r := *req
	r.Unique = true
	p, err := e.planner.Plan(&r)
	if err != nil {
		return nil, err
	}
	records, err := e.exec.Query(ctx, q, p)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (e *Engine) findMany(ctx context.Context, q storage.Querier, req *plan.Request) ([]exec.Record, error) {
	p, err := e.planner.Plan(req)
	if err != nil {
		return nil, err
	}
	return e.exec.Query(ctx, q, p)
}

func (e *Engine) create(ctx context.Context, q storage.Querier, c write.Create) (exec.Record, error) {
	rec, err := e.writer.Create(ctx, q, c)
	if err != nil {
		return nil, err
	}
	return exec.Record(rec), nil
}

func (e *Engine) upsert(ctx context.Context, q storage.Querier, u write.Upsert) (exec.Record, error) {
	if err := e.writer.Upsert(ctx, q, u); err != nil {
		return nil, err
	}
	return e.findUnique(ctx, q, &plan.Request{Entity: u.Entity, Filter: u.Filter})
}

func (e *Engine) count(ctx context.Context, q storage.Querier, entity string, pred filter.Node) (int64, error) {
	ent, ok := e.reg.Entity(entity)
	if !ok {
		return 0, &plan.Error{Code: plan.ErrCodeUnknownEntity, Message: "unknown entity", Entity: entity}
	}
	pk := ent.PrimaryKey()
	res, err := e.agg.Aggregate(ctx, q, entity, pred, aggregate.Spec{pk: {aggregate.Count}})
	if err != nil {
		return 0, err
	}
	n, _ := res[aggregate.Count][pk].(int64)
	return n, nil
}
