package write

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/quarry/internal/filter"
	"github.com/roach88/quarry/internal/plan"
	"github.com/roach88/quarry/internal/schema"
	"github.com/roach88/quarry/internal/storage"
)

// Writer compiles write requests into parameterized statements and runs
// them through the given querier. Callers own the transaction scope: the
// querier is either a transaction handle or bare storage, and a Create
// with nested children must run inside a transaction (the engine facade
// wraps standalone calls in an implicit one).
type Writer struct {
	reg *schema.Registry
	log *zap.Logger
}

// NewWriter creates a writer over the given registry.
func NewWriter(reg *schema.Registry, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{reg: reg, log: log}
}

// Create inserts one record and any nested children, returning the
// stored record (supplied values plus materialized defaults and the
// generated key).
func (w *Writer) Create(ctx context.Context, q storage.Querier, c Create) (map[string]any, error) {
	entity, ok := w.reg.Entity(c.Entity)
	if !ok {
		return nil, newError(ErrCodeUnknownEntity, c.Entity, "", "entity %q not declared", c.Entity)
	}

	record, err := w.insertValues(entity, c.Values)
	if err != nil {
		return nil, err
	}

	var cols, holes []string
	var args []any
	for _, f := range entity.Fields {
		v, present := record[f.Name]
		if !present {
			continue
		}
		cols = append(cols, fmt.Sprintf("%q", f.Name))
		holes = append(holes, "?")
		args = append(args, v)
	}

	stmt := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		entity.Name, strings.Join(cols, ", "), strings.Join(holes, ", "))
	res, err := q.Exec(ctx, stmt, args...)
	if err != nil {
		return nil, withEntity(err, entity.Name)
	}

	// An integer primary key with no supplied value and no default is
	// assigned by the database (rowid).
	if _, ok := record[entity.PrimaryKey()]; !ok {
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("write %s: last insert id: %w", entity.Name, err)
		}
		record[entity.PrimaryKey()] = id
	}
	w.log.Debug("record created", zap.String("entity", entity.Name))

	if len(c.Nested) > 0 {
		if err := w.createNested(ctx, q, entity, record, c.Nested); err != nil {
			return nil, err
		}
	}
	return record, nil
}

// createNested inserts child records for to-many relations, wiring each
// child's foreign key to the parent's key. Runs as ordinary statements
// inside the caller's transaction scope.
func (w *Writer) createNested(ctx context.Context, q storage.Querier, entity *schema.Entity, parent map[string]any, nested map[string][]map[string]any) error {
	names := make([]string, 0, len(nested))
	for name := range nested {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rel, ok := entity.Relation(name)
		if !ok {
			return newError(ErrCodeUnknownRelation, entity.Name, name,
				"relation %q not declared on entity %q", name, entity.Name)
		}
		if rel.Kind != schema.ToMany {
			return newError(ErrCodeUnknownRelation, entity.Name, name,
				"nested create requires a to-many relation, %q is %s", name, rel.Kind)
		}
		parentKey := parent[rel.ParentKey(entity)]
		if parentKey == nil {
			return newError(ErrCodeMissingKey, entity.Name, name,
				"parent key %q missing for nested create", rel.ParentKey(entity))
		}

		children := make([]map[string]any, 0, len(nested[name]))
		for _, childValues := range nested[name] {
			values := make(map[string]any, len(childValues)+1)
			for k, v := range childValues {
				values[k] = v
			}
			values[rel.ForeignKey] = parentKey
			child, err := w.Create(ctx, q, Create{Entity: rel.Target, Values: values})
			if err != nil {
				return err
			}
			children = append(children, child)
		}
		parent[name] = children
	}
	return nil
}

// Update rewrites fields on matching records and reports how many rows
// changed. Relative increments compile against the stored value at
// execution time, so concurrent decrements of the same counter cannot
// lose updates.
func (w *Writer) Update(ctx context.Context, q storage.Querier, u Update) (int64, error) {
	entity, ok := w.reg.Entity(u.Entity)
	if !ok {
		return 0, newError(ErrCodeUnknownEntity, u.Entity, "", "entity %q not declared", u.Entity)
	}
	if err := filter.Validate(w.reg, entity, u.Filter); err != nil {
		return 0, err
	}
	if err := w.checkMulti(entity, u.Filter, u.Multi, "update"); err != nil {
		return 0, err
	}

	setSQL, setArgs, err := w.compileSet(entity, u.Values)
	if err != nil {
		return 0, err
	}
	whereSQL, whereArgs, err := plan.CompileWhere(w.reg, entity, u.Filter)
	if err != nil {
		return 0, fmt.Errorf("write %s: compile predicate: %w", entity.Name, err)
	}

	stmt := fmt.Sprintf("UPDATE %q SET %s WHERE %s", entity.Name, setSQL, whereSQL)
	res, err := q.Exec(ctx, stmt, append(setArgs, whereArgs...)...)
	if err != nil {
		return 0, withEntity(err, entity.Name)
	}
	return res.RowsAffected()
}

// Delete removes matching records and reports how many rows were
// removed.
func (w *Writer) Delete(ctx context.Context, q storage.Querier, d Delete) (int64, error) {
	entity, ok := w.reg.Entity(d.Entity)
	if !ok {
		return 0, newError(ErrCodeUnknownEntity, d.Entity, "", "entity %q not declared", d.Entity)
	}
	if err := filter.Validate(w.reg, entity, d.Filter); err != nil {
		return 0, err
	}
	if err := w.checkMulti(entity, d.Filter, d.Multi, "delete"); err != nil {
		return 0, err
	}

	whereSQL, whereArgs, err := plan.CompileWhere(w.reg, entity, d.Filter)
	if err != nil {
		return 0, fmt.Errorf("write %s: compile predicate: %w", entity.Name, err)
	}
	stmt := fmt.Sprintf("DELETE FROM %q WHERE %s", entity.Name, whereSQL)
	res, err := q.Exec(ctx, stmt, whereArgs...)
	if err != nil {
		return 0, withEntity(err, entity.Name)
	}
	return res.RowsAffected()
}

// Upsert inserts or updates in a single statement keyed on the unique
// field the predicate pins. Issuing the identical upsert twice with
// unchanged update values leaves the same stored record both times.
func (w *Writer) Upsert(ctx context.Context, q storage.Querier, u Upsert) error {
	entity, ok := w.reg.Entity(u.Entity)
	if !ok {
		return newError(ErrCodeUnknownEntity, u.Entity, "", "entity %q not declared", u.Entity)
	}
	if err := filter.Validate(w.reg, entity, u.Filter); err != nil {
		return err
	}
	conflictField, ok := filter.UniqueEquality(entity, u.Filter)
	if !ok {
		return newError(ErrCodeNonUniquePredicate, entity.Name, "",
			"upsert predicate must pin a unique field with equality")
	}

	record, err := w.insertValues(entity, u.CreateValues)
	if err != nil {
		return err
	}
	var cols, holes []string
	var args []any
	for _, f := range entity.Fields {
		v, present := record[f.Name]
		if !present {
			continue
		}
		cols = append(cols, fmt.Sprintf("%q", f.Name))
		holes = append(holes, "?")
		args = append(args, v)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %q (%s) VALUES (%s) ON CONFLICT(%q)",
		entity.Name, strings.Join(cols, ", "), strings.Join(holes, ", "), conflictField)
	if len(u.UpdateValues) == 0 {
		sb.WriteString(" DO NOTHING")
	} else {
		setSQL, setArgs, err := w.compileSet(entity, u.UpdateValues)
		if err != nil {
			return err
		}
		sb.WriteString(" DO UPDATE SET " + setSQL)
		args = append(args, setArgs...)
	}

	if _, err := q.Exec(ctx, sb.String(), args...); err != nil {
		return withEntity(err, entity.Name)
	}
	return nil
}

// insertValues validates the payload against the descriptor and
// materializes defaults for absent fields, returning the full record
// about to be stored.
func (w *Writer) insertValues(entity *schema.Entity, values map[string]any) (map[string]any, error) {
	for key := range values {
		if _, ok := entity.Field(key); !ok {
			if _, isRel := entity.Relation(key); isRel {
				return nil, newError(ErrCodeUnknownField, entity.Name, key,
					"%q is a relation; use a nested create", key)
			}
			return nil, newError(ErrCodeUnknownField, entity.Name, key,
				"field %q not declared on entity %q", key, entity.Name)
		}
	}

	record := make(map[string]any, len(entity.Fields))
	for _, f := range entity.Fields {
		if raw, present := values[f.Name]; present {
			v, err := filter.CheckValue(entity, f, raw)
			if err != nil {
				return nil, newError(ErrCodeTypeMismatch, entity.Name, f.Name, "%v", err)
			}
			record[f.Name] = v
			continue
		}
		if v, ok := schema.ApplyDefault(f); ok {
			record[f.Name] = v
		}
	}

	if _, ok := record[entity.PrimaryKey()]; !ok {
		pk, _ := entity.Field(entity.PrimaryKey())
		if pk.Type != schema.TypeInt {
			return nil, newError(ErrCodeMissingKey, entity.Name, pk.Name,
				"primary key %q has no value and no default policy", pk.Name)
		}
		// Integer keys fall through: the database assigns the rowid.
	}
	return record, nil
}

// compileSet renders the SET clause. Literals compile to "f" = ?;
// relative operations to "f" = "f" + ? / - ?.
func (w *Writer) compileSet(entity *schema.Entity, values map[string]any) (string, []any, error) {
	if len(values) == 0 {
		return "", nil, newError(ErrCodeTypeMismatch, entity.Name, "", "update has no values")
	}
	var parts []string
	var args []any
	for _, f := range entity.Fields {
		raw, present := values[f.Name]
		if !present {
			continue
		}
		if sv, isOp := raw.(SetValue); isOp && sv.Op != OpSet {
			if f.Type != schema.TypeInt && f.Type != schema.TypeFloat {
				return "", nil, newError(ErrCodeTypeMismatch, entity.Name, f.Name,
					"relative %s requires a numeric field, %q is %s", sv.Op, f.Name, f.Type)
			}
			amount, err := filter.CheckValue(entity, f, sv.Amount)
			if err != nil {
				return "", nil, newError(ErrCodeTypeMismatch, entity.Name, f.Name, "%v", err)
			}
			op := "+"
			if sv.Op == OpDecrement {
				op = "-"
			}
			parts = append(parts, fmt.Sprintf("%q = %q %s ?", f.Name, f.Name, op))
			args = append(args, amount)
			continue
		}
		if sv, isOp := raw.(SetValue); isOp {
			raw = sv.Amount
		}
		v, err := filter.CheckValue(entity, f, raw)
		if err != nil {
			return "", nil, newError(ErrCodeTypeMismatch, entity.Name, f.Name, "%v", err)
		}
		parts = append(parts, fmt.Sprintf("%q = ?", f.Name))
		args = append(args, v)
	}
	for key := range values {
		if _, ok := entity.Field(key); !ok {
			return "", nil, newError(ErrCodeUnknownField, entity.Name, key,
				"field %q not declared on entity %q", key, entity.Name)
		}
	}
	return strings.Join(parts, ", "), args, nil
}

func (w *Writer) checkMulti(entity *schema.Entity, f filter.Node, multi bool, verb string) error {
	if multi {
		return nil
	}
	if _, ok := filter.UniqueEquality(entity, f); !ok {
		return newError(ErrCodeNonUniquePredicate, entity.Name, "",
			"%s predicate does not pin a unique field; set Multi to affect all matches", verb)
	}
	return nil
}

// withEntity attaches the entity name to storage errors so callers see
// which write failed without parsing SQL.
func withEntity(err error, entity string) error {
	if se, ok := err.(*storage.Error); ok && se.Entity == "" {
		se.Entity = entity
	}
	return err
}
