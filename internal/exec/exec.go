package exec

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/quarry/internal/plan"
	"github.com/roach88/quarry/internal/schema"
	"github.com/roach88/quarry/internal/storage"
)

// Record is one assembled result row. Relation values appear under the
// relation name: []Record for to-many, Record or nil for to-one. Records
// are plain data with no back-references to entity descriptors.
type Record map[string]any

// maxBatchKeys caps the IN-list size of a batched relation fetch.
// SQLite's default parameter limit is 999; chunking keeps headroom for
// the plan's own filter parameters.
const maxBatchKeys = 500

// Executor runs plans against the storage interface and assembles nested
// result trees from flat rows. It issues read statements only.
type Executor struct {
	reg *schema.Registry
}

// New creates an executor over the given registry.
func New(reg *schema.Registry) *Executor {
	return &Executor{reg: reg}
}

// Query runs a plan and returns assembled records.
//
// For cardinality ONE plans the slice holds at most one record; zero
// matches return an empty slice (the caller decides what "not found"
// means), and a second match fails with MultipleRecordsFound.
func (e *Executor) Query(ctx context.Context, q storage.Querier, p *plan.Plan) ([]Record, error) {
	records, err := e.fetch(ctx, q, p, nil)
	if err != nil {
		return nil, err
	}

	if p.Cardinality == plan.One && len(records) > 1 {
		return nil, &Error{
			Code:    ErrCodeMultipleRecords,
			Message: "unique query matched more than one row",
			Entity:  p.Entity,
		}
	}
	if p.Reversed {
		reverse(records)
	}
	return records, nil
}

// fetch executes one plan level. For the root level keys is nil and the
// plan's complete SQL runs; for nested levels the batch template is
// rendered per key chunk.
func (e *Executor) fetch(ctx context.Context, q storage.Querier, p *plan.Plan, keys []any) ([]Record, error) {
	entity, ok := e.reg.Entity(p.Entity)
	if !ok {
		return nil, fmt.Errorf("exec: entity %q not declared", p.Entity)
	}

	var records []Record
	if keys == nil {
		rows, err := q.Query(ctx, p.SQL, p.Args...)
		if err != nil {
			return nil, err
		}
		records, err = scanRows(rows, entity, p.Columns)
		if err != nil {
			return nil, err
		}
	} else {
		for _, chunk := range chunkKeys(keys) {
			sqlText, args := p.RenderBatch(chunk)
			rows, err := q.Query(ctx, sqlText, args...)
			if err != nil {
				return nil, err
			}
			batch, err := scanRows(rows, entity, p.Columns)
			if err != nil {
				return nil, err
			}
			records = append(records, batch...)
		}
	}

	for _, inc := range p.Includes {
		if err := e.attachInclude(ctx, q, records, inc); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// attachInclude runs one batched relation fetch and grafts the children
// onto their parents. Missing matches yield an empty list (to-many) or
// nil (to-one), never an error.
func (e *Executor) attachInclude(ctx context.Context, q storage.Querier, parents []Record, inc plan.Include) error {
	keys := parentKeys(parents, inc.ParentKey)
	var children []Record
	if len(keys) > 0 {
		var err error
		children, err = e.fetch(ctx, q, inc.Child, keys)
		if err != nil {
			return err
		}
	}

	groups := make(map[any][]Record, len(keys))
	for _, child := range children {
		k := child[inc.ChildKey]
		groups[k] = append(groups[k], child)
	}

	for _, parent := range parents {
		key := parent[inc.ParentKey]
		group := groups[key]
		if key == nil {
			group = nil
		}
		group = trimGroup(group, inc.Child)

		if inc.Kind == schema.ToMany {
			if group == nil {
				group = []Record{}
			}
			parent[inc.Name] = group
		} else {
			if len(group) == 0 {
				parent[inc.Name] = nil
			} else {
				parent[inc.Name] = group[0]
			}
		}
	}
	return nil
}

// trimGroup applies a nested plan's per-parent pagination. Batched
// fetches cannot paginate per parent in SQL, so skip/take run here, in
// the (possibly reversed) fetch order, then reversed plans restore output
// order.
func trimGroup(group []Record, child *plan.Plan) []Record {
	if child.Skip > 0 {
		if child.Skip >= len(group) {
			group = nil
		} else {
			group = group[child.Skip:]
		}
	}
	if child.Take != nil {
		n := *child.Take
		if n < 0 {
			n = -n
		}
		if n < len(group) {
			group = group[:n]
		}
	}
	if child.Reversed {
		reversed := make([]Record, len(group))
		for i, r := range group {
			reversed[len(group)-1-i] = r
		}
		group = reversed
	}
	return group
}

func parentKeys(parents []Record, field string) []any {
	seen := make(map[any]bool, len(parents))
	var keys []any
	for _, parent := range parents {
		k := parent[field]
		if k == nil || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

func chunkKeys(keys []any) [][]any {
	if len(keys) <= maxBatchKeys {
		return [][]any{keys}
	}
	var chunks [][]any
	for start := 0; start < len(keys); start += maxBatchKeys {
		end := start + maxBatchKeys
		if end > len(keys) {
			end = len(keys)
		}
		chunks = append(chunks, keys[start:end])
	}
	return chunks
}

// scanRows decodes flat rows into records, converting driver values to
// the field's declared scalar type.
func scanRows(rows *sql.Rows, entity *schema.Entity, columns []string) ([]Record, error) {
	defer rows.Close()

	var records []Record
	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &Error{Code: ErrCodeScan, Message: err.Error(), Entity: entity.Name}
		}
		rec := make(Record, len(columns))
		for i, col := range columns {
			field, ok := entity.Field(col)
			if !ok {
				rec[col] = raw[i]
				continue
			}
			v, err := ConvertValue(field, raw[i])
			if err != nil {
				return nil, &Error{Code: ErrCodeScan, Message: err.Error(), Entity: entity.Name}
			}
			rec[col] = v
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("exec: rows iteration: %w", err)
	}
	return records, nil
}

// ConvertValue maps a driver value onto the scalar type the descriptor
// declares. Drivers disagree on widths and byte/string choices; the
// result tree does not.
func ConvertValue(field schema.Field, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch field.Type {
	case schema.TypeString:
		switch v := raw.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
	case schema.TypeInt:
		switch v := raw.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		}
	case schema.TypeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		}
	case schema.TypeBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		}
	case schema.TypeTime:
		switch v := raw.(type) {
		case time.Time:
			return v.UTC(), nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, fmt.Errorf("field %q: parse time %q: %w", field.Name, v, err)
			}
			return t.UTC(), nil
		case []byte:
			t, err := time.Parse(time.RFC3339Nano, string(v))
			if err != nil {
				return nil, fmt.Errorf("field %q: parse time %q: %w", field.Name, v, err)
			}
			return t.UTC(), nil
		}
	}
	return nil, fmt.Errorf("field %q: cannot decode %T as %s", field.Name, raw, field.Type)
}

func reverse(records []Record) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}
