package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// entityFile is the on-disk YAML shape of a schema file.
//
// Example:
//
//	entities:
//	  - name: User
//	    fields:
//	      - {name: id, type: string, primary: true, default: uuid}
//	      - {name: email, type: string, unique: true}
//	      - {name: name, type: string, nullable: true}
//	    relations:
//	      - {name: posts, target: Post, kind: to-many, foreignKey: authorId}
type entityFile struct {
	Entities []entityYAML `yaml:"entities"`
}

type entityYAML struct {
	Name      string         `yaml:"name"`
	Fields    []fieldYAML    `yaml:"fields"`
	Relations []relationYAML `yaml:"relations,omitempty"`
}

type fieldYAML struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable,omitempty"`
	Unique   bool   `yaml:"unique,omitempty"`
	Primary  bool   `yaml:"primary,omitempty"`

	// Default is either the policy name ("uuid", "now") or a literal
	// scalar used verbatim as the default value.
	Default any `yaml:"default,omitempty"`
}

type relationYAML struct {
	Name       string `yaml:"name"`
	Target     string `yaml:"target"`
	Kind       string `yaml:"kind"`
	ForeignKey string `yaml:"foreignKey"`
	References string `yaml:"references,omitempty"`
}

// LoadYAML reads a schema file and returns a validated registry.
func LoadYAML(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	return ParseYAML(data)
}

// ParseYAML parses YAML schema bytes and returns a validated registry.
func ParseYAML(data []byte) (*Registry, error) {
	var file entityFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("schema: parse yaml: %w", err)
	}
	if len(file.Entities) == 0 {
		return nil, fmt.Errorf("schema: no entities declared")
	}
	entities := make([]*Entity, 0, len(file.Entities))
	for _, ey := range file.Entities {
		e, err := ey.toEntity()
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return NewRegistry(entities)
}

func (ey entityYAML) toEntity() (*Entity, error) {
	e := &Entity{Name: ey.Name}
	for _, fy := range ey.Fields {
		def, err := parseDefault(fy.Default)
		if err != nil {
			return nil, fmt.Errorf("schema: entity %q field %q: %w", ey.Name, fy.Name, err)
		}
		e.Fields = append(e.Fields, Field{
			Name:     fy.Name,
			Type:     ScalarType(fy.Type),
			Nullable: fy.Nullable,
			Unique:   fy.Unique,
			Primary:  fy.Primary,
			Default:  def,
		})
	}
	for _, ry := range ey.Relations {
		e.Relations = append(e.Relations, Relation{
			Name:       ry.Name,
			Target:     ry.Target,
			Kind:       RelationKind(ry.Kind),
			ForeignKey: ry.ForeignKey,
			References: ry.References,
		})
	}
	return e, nil
}

func parseDefault(raw any) (Default, error) {
	switch v := raw.(type) {
	case nil:
		return Default{}, nil
	case string:
		switch v {
		case "uuid":
			return Default{Kind: DefaultUUID}, nil
		case "now":
			return Default{Kind: DefaultNow}, nil
		default:
			return Default{Kind: DefaultLiteral, Value: v}, nil
		}
	case int:
		return Default{Kind: DefaultLiteral, Value: int64(v)}, nil
	case int64, float64, bool:
		return Default{Kind: DefaultLiteral, Value: v}, nil
	default:
		return Default{}, fmt.Errorf("unsupported default %v (%T)", raw, raw)
	}
}
