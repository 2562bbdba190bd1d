// Package schema defines immutable entity descriptors: the record types,
// fields, and relations every other component validates against.
//
// Descriptors are loaded once at process start (from YAML or CUE files) and
// never mutated afterward. The Registry is freely shared across goroutines
// without locking.
//
// The descriptor model is deliberately small:
//   - Entity: name + ordered fields + named relations
//   - Field: scalar type, nullable/unique/primary flags, default policy
//   - Relation: to-many or to-one link with an explicit foreign key
//
// Field references inside filters, projections, orderings, and write
// payloads are resolved against these descriptors at compile time, so an
// unknown field is a compile error, never a runtime surprise.
package schema
