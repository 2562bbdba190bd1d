// Package plan turns query requests into deterministic execution plans.
//
// A plan is one base statement for the root entity plus one batched
// statement per included relation, keyed by parent key values fetched by
// the base statement. Batching is the central performance policy: a
// relation costs one statement per level, never one per parent row.
//
// Planning rules:
//   - All values are parameterized; SQL text never contains user values.
//   - Ordering is applied before pagination, and every statement gets a
//     primary-key tiebreaker so pagination over a stable ordering is
//     gapless and duplicate-free.
//   - A negative take is planned by flipping the ordering; the executor
//     re-reverses the rows on output.
//   - findUnique-style requests produce cardinality ONE plans with
//     LIMIT 2, letting the executor detect a second match as a contract
//     violation instead of silently returning an arbitrary row.
package plan
