package schema

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// LoadCUE reads a CUE schema file and returns a validated registry.
// Uses the CUE SDK's Go API directly (not CLI subprocess).
//
// The file declares entities under a top-level "entity" struct:
//
//	entity: User: {
//		fields: {
//			id:    {type: "string", primary: true, default: "uuid"}
//			email: {type: "string", unique: true}
//			name:  {type: "string", nullable: true}
//		}
//		relations: {
//			posts: {target: "Post", kind: "to-many", foreignKey: "authorId"}
//		}
//	}
func LoadCUE(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	return ParseCUE(string(data))
}

// ParseCUE compiles CUE source and returns a validated registry.
func ParseCUE(src string) (*Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	entityVal := v.LookupPath(cue.ParsePath("entity"))
	if !entityVal.Exists() {
		return nil, fmt.Errorf("schema: cue file declares no entities")
	}

	iter, err := entityVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var entities []*Entity
	for iter.Next() {
		e, err := parseCUEEntity(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return NewRegistry(entities)
}

func parseCUEEntity(name string, v cue.Value) (*Entity, error) {
	e := &Entity{Name: name}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, fmt.Errorf("schema: entity %q declares no fields", name)
	}
	fieldIter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for fieldIter.Next() {
		f, err := parseCUEField(fieldIter.Selector().Unquoted(), fieldIter.Value())
		if err != nil {
			return nil, fmt.Errorf("schema: entity %q: %w", name, err)
		}
		e.Fields = append(e.Fields, f)
	}

	relVal := v.LookupPath(cue.ParsePath("relations"))
	if relVal.Exists() {
		relIter, err := relVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for relIter.Next() {
			rel, err := parseCUERelation(relIter.Selector().Unquoted(), relIter.Value())
			if err != nil {
				return nil, fmt.Errorf("schema: entity %q: %w", name, err)
			}
			e.Relations = append(e.Relations, rel)
		}
	}
	return e, nil
}

func parseCUEField(name string, v cue.Value) (Field, error) {
	f := Field{Name: name}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return f, fmt.Errorf("field %q: type is required", name)
	}
	typeName, err := typeVal.String()
	if err != nil {
		return f, formatCUEError(err)
	}
	f.Type = ScalarType(typeName)

	f.Nullable, _ = cueBool(v, "nullable")
	f.Unique, _ = cueBool(v, "unique")
	f.Primary, _ = cueBool(v, "primary")

	defVal := v.LookupPath(cue.ParsePath("default"))
	if defVal.Exists() {
		raw, err := cueScalar(defVal)
		if err != nil {
			return f, fmt.Errorf("field %q: default: %w", name, err)
		}
		f.Default, err = parseDefault(raw)
		if err != nil {
			return f, fmt.Errorf("field %q: %w", name, err)
		}
	}
	return f, nil
}

func parseCUERelation(name string, v cue.Value) (Relation, error) {
	rel := Relation{Name: name}
	for _, req := range []struct {
		path string
		dst  *string
	}{
		{"target", &rel.Target},
		{"foreignKey", &rel.ForeignKey},
	} {
		val := v.LookupPath(cue.ParsePath(req.path))
		if !val.Exists() {
			return rel, fmt.Errorf("relation %q: %s is required", name, req.path)
		}
		s, err := val.String()
		if err != nil {
			return rel, formatCUEError(err)
		}
		*req.dst = s
	}
	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return rel, fmt.Errorf("relation %q: kind is required", name)
	}
	kind, err := kindVal.String()
	if err != nil {
		return rel, formatCUEError(err)
	}
	rel.Kind = RelationKind(kind)

	if refVal := v.LookupPath(cue.ParsePath("references")); refVal.Exists() {
		ref, err := refVal.String()
		if err != nil {
			return rel, formatCUEError(err)
		}
		rel.References = ref
	}
	return rel, nil
}

func cueBool(v cue.Value, path string) (bool, bool) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return false, false
	}
	b, err := val.Bool()
	if err != nil {
		return false, false
	}
	return b, true
}

// cueScalar extracts a Go scalar from a concrete CUE value.
func cueScalar(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.StringKind:
		return v.String()
	case cue.IntKind:
		return v.Int64()
	case cue.FloatKind, cue.NumberKind:
		return v.Float64()
	case cue.BoolKind:
		return v.Bool()
	default:
		return nil, fmt.Errorf("unsupported cue value kind %v", v.Kind())
	}
}

// formatCUEError converts CUE SDK errors into readable messages with
// file positions where available.
func formatCUEError(err error) error {
	if list := cueerrors.Errors(err); len(list) > 0 {
		first := list[0]
		if pos := first.Position(); pos.IsValid() {
			return fmt.Errorf("schema: %s: %s", pos, cueerrors.Details(first, nil))
		}
	}
	return fmt.Errorf("schema: %w", err)
}
