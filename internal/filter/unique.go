package filter

import "github.com/roach88/quarry/internal/schema"

// UniqueEquality reports the unique field a predicate pins with a
// top-level equality (directly or inside a top-level AND), if any.
//
// The planner uses it to admit findUnique-style requests, and the write
// compiler uses it to pick an upsert conflict target and to decide
// whether an update/delete needs the explicit multi flag.
func UniqueEquality(entity *schema.Entity, n Node) (string, bool) {
	switch node := n.(type) {
	case Comparison:
		if node.Op == OpEq && node.Value != nil && entity.IsUnique(node.Field) {
			return node.Field, true
		}
	case Logical:
		if node.Kind != And {
			return "", false
		}
		for _, child := range node.Children {
			if field, ok := UniqueEquality(entity, child); ok {
				return field, ok
			}
		}
	}
	return "", false
}
