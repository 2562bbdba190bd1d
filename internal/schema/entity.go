package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScalarType enumerates the field value types the engine understands.
type ScalarType string

const (
	TypeString ScalarType = "string"
	TypeInt    ScalarType = "int"
	TypeFloat  ScalarType = "float"
	TypeBool   ScalarType = "bool"
	TypeTime   ScalarType = "time"
)

// ValidScalarTypes defines the allowed scalar type names.
var ValidScalarTypes = map[ScalarType]bool{
	TypeString: true,
	TypeInt:    true,
	TypeFloat:  true,
	TypeBool:   true,
	TypeTime:   true,
}

// DefaultKind enumerates default-value policies for a field.
type DefaultKind string

const (
	DefaultNone    DefaultKind = ""        // no default, caller must supply
	DefaultUUID    DefaultKind = "uuid"    // random UUID assigned at insert
	DefaultNow     DefaultKind = "now"     // insert timestamp (UTC)
	DefaultLiteral DefaultKind = "literal" // constant from Default.Value
)

// Default describes a field's default-value policy.
type Default struct {
	Kind  DefaultKind
	Value any // only for DefaultLiteral
}

// Field describes one column of an entity.
type Field struct {
	Name     string
	Type     ScalarType
	Nullable bool
	Unique   bool
	Primary  bool
	Default  Default
}

// RelationKind distinguishes the two supported cardinalities.
type RelationKind string

const (
	// ToMany: the target entity carries a foreign key pointing back at
	// this entity. One parent row maps to zero or more target rows.
	ToMany RelationKind = "to-many"

	// ToOne: this entity carries a foreign key pointing at the target.
	// One row maps to zero or one target row.
	ToOne RelationKind = "to-one"
)

// Relation describes a named link between two entities.
type Relation struct {
	Name   string
	Target string
	Kind   RelationKind

	// ForeignKey names the field holding the key. For ToMany it lives on
	// the target entity; for ToOne it lives on this entity.
	ForeignKey string

	// References names the field the foreign key points at. Empty means
	// the primary key of the referenced side.
	References string
}

// Entity is an immutable descriptor for one record type. Entities are
// loaded once at startup and shared read-only by every component; nothing
// mutates them after Registry construction.
type Entity struct {
	Name      string
	Fields    []Field
	Relations []Relation

	fieldIndex    map[string]int
	relationIndex map[string]int
	primary       string
}

// Field returns the descriptor for the named field.
func (e *Entity) Field(name string) (Field, bool) {
	i, ok := e.fieldIndex[name]
	if !ok {
		return Field{}, false
	}
	return e.Fields[i], true
}

// Relation returns the descriptor for the named relation.
func (e *Entity) Relation(name string) (Relation, bool) {
	i, ok := e.relationIndex[name]
	if !ok {
		return Relation{}, false
	}
	return e.Relations[i], true
}

// PrimaryKey returns the name of the entity's primary key field.
func (e *Entity) PrimaryKey() string {
	return e.primary
}

// FieldNames returns field names in declaration order.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// IsUnique reports whether the named field carries a uniqueness guarantee
// (primary key or unique constraint).
func (e *Entity) IsUnique(name string) bool {
	f, ok := e.Field(name)
	return ok && (f.Unique || f.Primary)
}

// Registry holds every loaded entity descriptor. It is immutable after
// construction and safe for unsynchronized concurrent reads.
type Registry struct {
	entities map[string]*Entity
	order    []string
}

// NewRegistry builds a registry from descriptors, validating structural
// invariants: exactly one primary key per entity, known scalar types,
// relations resolving to declared entities and fields.
func NewRegistry(entities []*Entity) (*Registry, error) {
	r := &Registry{entities: make(map[string]*Entity, len(entities))}
	for _, e := range entities {
		if e.Name == "" {
			return nil, fmt.Errorf("schema: entity with empty name")
		}
		if _, dup := r.entities[e.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate entity %q", e.Name)
		}
		if err := indexEntity(e); err != nil {
			return nil, err
		}
		r.entities[e.Name] = e
		r.order = append(r.order, e.Name)
	}
	// Relations can only be resolved once all entities are indexed.
	for _, e := range entities {
		if err := r.checkRelations(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Entity returns the descriptor for the named entity.
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Names returns entity names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func indexEntity(e *Entity) error {
	e.fieldIndex = make(map[string]int, len(e.Fields))
	e.relationIndex = make(map[string]int, len(e.Relations))
	for i, f := range e.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema: entity %q has a field with empty name", e.Name)
		}
		if _, dup := e.fieldIndex[f.Name]; dup {
			return fmt.Errorf("schema: entity %q declares field %q twice", e.Name, f.Name)
		}
		if !ValidScalarTypes[f.Type] {
			return fmt.Errorf("schema: entity %q field %q has unknown type %q", e.Name, f.Name, f.Type)
		}
		if f.Primary {
			if e.primary != "" {
				return fmt.Errorf("schema: entity %q has multiple primary keys (%q, %q)", e.Name, e.primary, f.Name)
			}
			e.primary = f.Name
		}
		e.fieldIndex[f.Name] = i
	}
	if e.primary == "" {
		return fmt.Errorf("schema: entity %q has no primary key", e.Name)
	}
	for i, rel := range e.Relations {
		if rel.Name == "" {
			return fmt.Errorf("schema: entity %q has a relation with empty name", e.Name)
		}
		if _, dup := e.relationIndex[rel.Name]; dup {
			return fmt.Errorf("schema: entity %q declares relation %q twice", e.Name, rel.Name)
		}
		if _, clash := e.fieldIndex[rel.Name]; clash {
			return fmt.Errorf("schema: entity %q relation %q collides with a field name", e.Name, rel.Name)
		}
		e.relationIndex[rel.Name] = i
	}
	return nil
}

func (r *Registry) checkRelations(e *Entity) error {
	for _, rel := range e.Relations {
		target, ok := r.entities[rel.Target]
		if !ok {
			return fmt.Errorf("schema: entity %q relation %q targets unknown entity %q", e.Name, rel.Name, rel.Target)
		}
		switch rel.Kind {
		case ToMany:
			if _, ok := target.Field(rel.ForeignKey); !ok {
				return fmt.Errorf("schema: relation %s.%s: foreign key %q not declared on %q",
					e.Name, rel.Name, rel.ForeignKey, rel.Target)
			}
			if ref := rel.References; ref != "" {
				if _, ok := e.Field(ref); !ok {
					return fmt.Errorf("schema: relation %s.%s: referenced field %q not declared on %q",
						e.Name, rel.Name, ref, e.Name)
				}
			}
		case ToOne:
			if _, ok := e.Field(rel.ForeignKey); !ok {
				return fmt.Errorf("schema: relation %s.%s: foreign key %q not declared on %q",
					e.Name, rel.Name, rel.ForeignKey, e.Name)
			}
			if ref := rel.References; ref != "" {
				if _, ok := target.Field(ref); !ok {
					return fmt.Errorf("schema: relation %s.%s: referenced field %q not declared on %q",
						e.Name, rel.Name, ref, rel.Target)
				}
			}
		default:
			return fmt.Errorf("schema: relation %s.%s has unknown kind %q", e.Name, rel.Name, rel.Kind)
		}
	}
	return nil
}

// ParentKey returns the field on the owning entity whose values key a
// batched fetch for this relation: the referenced field for ToMany, the
// foreign key itself for ToOne.
func (rel Relation) ParentKey(owner *Entity) string {
	switch rel.Kind {
	case ToMany:
		if rel.References != "" {
			return rel.References
		}
		return owner.PrimaryKey()
	default:
		return rel.ForeignKey
	}
}

// ChildKey returns the field on the target entity matched against the
// parent key values during assembly.
func (rel Relation) ChildKey(target *Entity) string {
	switch rel.Kind {
	case ToMany:
		return rel.ForeignKey
	default:
		if rel.References != "" {
			return rel.References
		}
		return target.PrimaryKey()
	}
}

// ApplyDefault materializes a field's default value at insert time.
// Returns (nil, false) when the field has no default policy.
func ApplyDefault(f Field) (any, bool) {
	switch f.Default.Kind {
	case DefaultUUID:
		return uuid.NewString(), true
	case DefaultNow:
		return time.Now().UTC(), true
	case DefaultLiteral:
		return f.Default.Value, true
	default:
		return nil, false
	}
}
