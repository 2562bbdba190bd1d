// Package write compiles write requests (create, update, delete, upsert,
// nested creates) into parameterized statements.
//
// Payloads are validated against entity descriptors before any statement
// is built: unknown fields and type mismatches are compile errors, not
// database errors. Updates support relative increment/decrement compiled
// as read-modify-write against the stored value, and upserts compile to a
// single ON CONFLICT statement so racing upserts cannot both insert.
//
// The writer is transaction-agnostic: it executes through whatever
// querier it is handed. Multi-statement writes (nested creates) rely on
// the caller wrapping them in a transaction handle.
package write
