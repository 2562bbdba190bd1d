// Package storage defines the statement-execution contract the engine
// consumes (Execute, Begin, Commit, Rollback) and provides a SQLite
// implementation.
//
// The SQLite store follows the single-writer discipline: one open
// connection, WAL journaling, busy timeout for contention, foreign keys
// enforced. Tables are synthesized from entity descriptors on open, so a
// fresh database file is usable immediately.
//
// Driver errors never escape raw: Query/Exec classify them into the
// engine's taxonomy (ConstraintViolation, DeadlockDetected, generic
// StorageError) with the failing statement attached.
package storage
