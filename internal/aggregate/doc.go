// Package aggregate compiles reducer specifications into aggregate SQL.
//
// An aggregation names reducers per field (count, min, max, avg, sum)
// and optionally a set of group-key fields. The whole spec is validated
// against the schema before any SQL runs: an unsupported reducer/type
// pairing such as avg over a string field fails compilation rather than
// being dropped from the result. Grouped results are ordered by their
// key tuple so equal inputs produce equal outputs.
package aggregate
