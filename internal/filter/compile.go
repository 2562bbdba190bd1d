package filter

import (
	"sort"
	"time"

	"github.com/roach88/quarry/internal/schema"
)

// Compile translates a raw filter description into a validated Node tree.
//
// The raw filter is either:
//   - nil: no predicate
//   - a Node built programmatically: validated as-is
//   - a map[string]any in shorthand form: each key is a field name, a
//     relation name, or a logical combinator ("AND", "OR", "NOT"). A bare
//     mapping of field to value is sugar for an equality comparison, and
//     multiple keys fold into an implicit top-level AND.
//
// Shorthand examples:
//
//	{"email": "a@x.com"}                          → email equals "a@x.com"
//	{"age": {"gt": 18}, "active": true}           → AND(age > 18, active = true)
//	{"name": {"contains": "ann", "mode": "insensitive"}}
//	{"posts": {"some": {"published": true}}}      → relation quantifier
//	{"OR": [{"a": 1}, {"b": 2}]}
//
// Every field and relation reference is checked against the entity
// descriptor, and every value against the field's scalar type. Violations
// surface as CompileError before any statement is built.
func Compile(reg *schema.Registry, entity *schema.Entity, raw any) (Node, error) {
	switch f := raw.(type) {
	case nil:
		return nil, nil
	case Node:
		if err := Validate(reg, entity, f); err != nil {
			return nil, err
		}
		return f, nil
	case map[string]any:
		return compileMap(reg, entity, f)
	default:
		return nil, newError(ErrCodeInvalidFilter, entity.Name, "",
			"unsupported filter shape %T", raw)
	}
}

// compileMap resolves the map shorthand. Keys are processed in sorted
// order so the compiled tree (and the SQL derived from it) is
// deterministic regardless of map iteration order.
func compileMap(reg *schema.Registry, entity *schema.Entity, m map[string]any) (Node, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var children []Node
	for _, key := range keys {
		node, err := compileEntry(reg, entity, key, m[key])
		if err != nil {
			return nil, err
		}
		children = append(children, node)
	}
	switch len(children) {
	case 0:
		return nil, nil
	case 1:
		return children[0], nil
	default:
		return Logical{Kind: And, Children: children}, nil
	}
}

func compileEntry(reg *schema.Registry, entity *schema.Entity, key string, value any) (Node, error) {
	switch key {
	case "AND", "OR":
		kind := And
		if key == "OR" {
			kind = Or
		}
		items, ok := value.([]any)
		if !ok {
			return nil, newError(ErrCodeInvalidFilter, entity.Name, "",
				"%s expects a list of filters, got %T", key, value)
		}
		children := make([]Node, 0, len(items))
		for _, item := range items {
			child, err := Compile(reg, entity, item)
			if err != nil {
				return nil, err
			}
			if child != nil {
				children = append(children, child)
			}
		}
		return Logical{Kind: kind, Children: children}, nil
	case "NOT":
		child, err := Compile(reg, entity, value)
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, newError(ErrCodeInvalidFilter, entity.Name, "",
				"NOT expects a non-empty filter")
		}
		return Logical{Kind: Not, Children: []Node{child}}, nil
	}

	if rel, ok := entity.Relation(key); ok {
		return compileRelation(reg, entity, rel, value)
	}
	field, ok := entity.Field(key)
	if !ok {
		return nil, newError(ErrCodeUnknownField, entity.Name, key,
			"field %q not declared on entity %q", key, entity.Name)
	}
	return compileCondition(entity, field, value)
}

func compileRelation(reg *schema.Registry, entity *schema.Entity, rel schema.Relation, value any) (Node, error) {
	cond, ok := value.(map[string]any)
	if !ok {
		return nil, newError(ErrCodeInvalidFilter, entity.Name, rel.Name,
			"relation filter expects {some|none|every: ...}, got %T", value)
	}
	if len(cond) != 1 {
		return nil, newError(ErrCodeInvalidQuantifier, entity.Name, rel.Name,
			"relation filter expects exactly one quantifier, got %d", len(cond))
	}
	target, _ := reg.Entity(rel.Target)
	for quant, nested := range cond {
		q := Quantifier(quant)
		switch q {
		case QuantAny, QuantNone, QuantAll:
		default:
			return nil, newError(ErrCodeInvalidQuantifier, entity.Name, rel.Name,
				"unknown quantifier %q", quant)
		}
		inner, err := Compile(reg, target, nested)
		if err != nil {
			return nil, err
		}
		return RelationExists{Relation: rel.Name, Quantifier: q, Nested: inner}, nil
	}
	return nil, nil // unreachable, len(cond) == 1
}

// conditionOps maps shorthand condition keys to comparison operators.
var conditionOps = map[string]Op{
	"equals": OpEq,
	"not":    OpNot,
	"lt":     OpLt,
	"lte":    OpLte,
	"gt":     OpGt,
	"gte":    OpGte,
}

func compileCondition(entity *schema.Entity, field schema.Field, value any) (Node, error) {
	cond, isMap := value.(map[string]any)
	if !isMap {
		// Bare value is sugar for equality.
		v, err := CheckValue(entity, field, value)
		if err != nil {
			return nil, err
		}
		return Comparison{Field: field.Name, Op: OpEq, Value: v}, nil
	}

	insensitive := false
	if mode, ok := cond["mode"]; ok {
		s, ok := mode.(string)
		if !ok || (s != "insensitive" && s != "default") {
			return nil, newError(ErrCodeInvalidFilter, entity.Name, field.Name,
				"mode must be \"insensitive\" or \"default\", got %v", mode)
		}
		insensitive = s == "insensitive"
	}

	keys := make([]string, 0, len(cond))
	for k := range cond {
		if k != "mode" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var children []Node
	for _, opKey := range keys {
		node, err := compileOp(entity, field, opKey, cond[opKey], insensitive)
		if err != nil {
			return nil, err
		}
		children = append(children, node)
	}
	switch len(children) {
	case 0:
		return nil, newError(ErrCodeInvalidFilter, entity.Name, field.Name,
			"condition on %q has no operators", field.Name)
	case 1:
		return children[0], nil
	default:
		return Logical{Kind: And, Children: children}, nil
	}
}

func compileOp(entity *schema.Entity, field schema.Field, opKey string, value any, insensitive bool) (Node, error) {
	if op, ok := conditionOps[opKey]; ok {
		v, err := CheckValue(entity, field, value)
		if err != nil {
			return nil, err
		}
		if v == nil && op != OpEq && op != OpNot {
			return nil, newError(ErrCodeTypeMismatch, entity.Name, field.Name,
				"null is only valid with equals/not")
		}
		return Comparison{Field: field.Name, Op: op, Value: v}, nil
	}

	switch opKey {
	case "in", "notIn":
		items, ok := value.([]any)
		if !ok {
			return nil, newError(ErrCodeInvalidFilter, entity.Name, field.Name,
				"%s expects a list, got %T", opKey, value)
		}
		values := make([]any, 0, len(items))
		for _, item := range items {
			v, err := CheckValue(entity, field, item)
			if err != nil {
				return nil, err
			}
			if v == nil {
				return nil, newError(ErrCodeTypeMismatch, entity.Name, field.Name,
					"null is not valid inside %s", opKey)
			}
			values = append(values, v)
		}
		return SetMembership{Field: field.Name, Values: values, Negate: opKey == "notIn"}, nil
	case "contains", "startsWith", "endsWith":
		if field.Type != schema.TypeString {
			return nil, newError(ErrCodeTypeMismatch, entity.Name, field.Name,
				"%s requires a string field, %q is %s", opKey, field.Name, field.Type)
		}
		pattern, ok := value.(string)
		if !ok {
			return nil, newError(ErrCodeTypeMismatch, entity.Name, field.Name,
				"%s expects a string pattern, got %T", opKey, value)
		}
		return StringMatch{
			Field:           field.Name,
			Pattern:         pattern,
			Mode:            MatchMode(opKey),
			CaseInsensitive: insensitive,
		}, nil
	default:
		return nil, newError(ErrCodeInvalidFilter, entity.Name, field.Name,
			"unknown condition operator %q", opKey)
	}
}

// CheckValue verifies a literal against the field's scalar type and
// normalizes numeric widths (int → int64, float32 → float64). The write
// compiler shares it for payload validation.
func CheckValue(entity *schema.Entity, field schema.Field, value any) (any, error) {
	if value == nil {
		if !field.Nullable {
			return nil, newError(ErrCodeTypeMismatch, entity.Name, field.Name,
				"field %q is not nullable", field.Name)
		}
		return nil, nil
	}
	switch field.Type {
	case schema.TypeString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case schema.TypeInt:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		}
	case schema.TypeFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case schema.TypeBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case schema.TypeTime:
		if t, ok := value.(time.Time); ok {
			return t.UTC(), nil
		}
	}
	return nil, newError(ErrCodeTypeMismatch, entity.Name, field.Name,
		"value %v (%T) incompatible with %s field %q", value, value, field.Type, field.Name)
}

// Validate walks a programmatically built Node tree and checks every
// field and relation reference against the entity descriptor.
func Validate(reg *schema.Registry, entity *schema.Entity, n Node) error {
	switch node := n.(type) {
	case nil:
		return nil
	case Comparison:
		field, ok := entity.Field(node.Field)
		if !ok {
			return newError(ErrCodeUnknownField, entity.Name, node.Field,
				"field %q not declared on entity %q", node.Field, entity.Name)
		}
		_, err := CheckValue(entity, field, node.Value)
		return err
	case SetMembership:
		field, ok := entity.Field(node.Field)
		if !ok {
			return newError(ErrCodeUnknownField, entity.Name, node.Field,
				"field %q not declared on entity %q", node.Field, entity.Name)
		}
		for _, v := range node.Values {
			if _, err := CheckValue(entity, field, v); err != nil {
				return err
			}
		}
		return nil
	case StringMatch:
		field, ok := entity.Field(node.Field)
		if !ok {
			return newError(ErrCodeUnknownField, entity.Name, node.Field,
				"field %q not declared on entity %q", node.Field, entity.Name)
		}
		if field.Type != schema.TypeString {
			return newError(ErrCodeTypeMismatch, entity.Name, node.Field,
				"string match requires a string field, %q is %s", node.Field, field.Type)
		}
		switch node.Mode {
		case MatchContains, MatchStartsWith, MatchEndsWith:
			return nil
		default:
			return newError(ErrCodeInvalidFilter, entity.Name, node.Field,
				"unknown match mode %q", node.Mode)
		}
	case Logical:
		if node.Kind == Not && len(node.Children) != 1 {
			return newError(ErrCodeInvalidFilter, entity.Name, "",
				"NOT requires exactly one child, got %d", len(node.Children))
		}
		for _, child := range node.Children {
			if err := Validate(reg, entity, child); err != nil {
				return err
			}
		}
		return nil
	case RelationExists:
		rel, ok := entity.Relation(node.Relation)
		if !ok {
			return newError(ErrCodeUnknownRelation, entity.Name, node.Relation,
				"relation %q not declared on entity %q", node.Relation, entity.Name)
		}
		switch node.Quantifier {
		case QuantAny, QuantNone, QuantAll:
		default:
			return newError(ErrCodeInvalidQuantifier, entity.Name, node.Relation,
				"unknown quantifier %q", node.Quantifier)
		}
		target, _ := reg.Entity(rel.Target)
		return Validate(reg, target, node.Nested)
	default:
		return newError(ErrCodeInvalidFilter, entity.Name, "",
			"unsupported node type %T", n)
	}
}
