// Package txn coordinates units of work: sequences of reads and writes
// grouped under one handle, committed or rolled back atomically.
//
// A handle exclusively owns one storage session for its lifetime; the
// session is never shared across concurrently-active handles. Isolation
// across handles is delegated to the underlying database (at least read
// committed is assumed); lost-update protection for counters comes from
// the write compiler's relative increment policy, not from the
// coordinator.
//
// The state machine is strict: any operation after Commit or Rollback
// fails with TxAlreadyClosed, and Rollback itself is idempotent so it can
// sit in a defer on every exit path.
package txn
