// Package exec runs execution plans against the storage interface and
// assembles nested result trees from flat rows.
//
// Statements execute in dependency order: the root statement first, then
// one batched fetch per included relation, keyed by the parent key values
// the root fetch produced. Children attach to parents by foreign-key
// matching; a missing match is an empty list or nil, never an error.
//
// The executor enforces the plan's cardinality tag: a ONE plan that
// matches more than one row fails with MultipleRecordsFound. It issues
// read statements only; all mutation goes through the write compiler and
// the transaction coordinator.
package exec
