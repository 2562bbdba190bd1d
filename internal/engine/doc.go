// Package engine ties the pipeline together: filter compilation, query
// planning, execution, writes and aggregation behind one facade.
//
// Reads follow compile, plan, execute. Writes compile to parameterized
// statements and run either auto-commit or on a transaction handle;
// multi-statement writes (nested creates, upsert with read-back) always
// run transactionally. Engine methods operate on the backing store
// directly; the same operations are available on a Tx, where they share
// the transaction's session and observe its uncommitted writes.
package engine
