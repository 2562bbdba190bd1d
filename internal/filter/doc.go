// Package filter compiles raw filter descriptions into validated
// predicate trees.
//
// The raw input is the convenience shorthand callers write (a map of field
// names to conditions); the output is an explicit tagged-variant tree
// (Comparison, SetMembership, StringMatch, Logical, RelationExists) that
// downstream planners can type-switch over exhaustively. All schema
// validation happens here, once, so no runtime type inspection is needed
// after compilation.
//
// Node and the shorthand resolution follow the sealed-interface pattern:
// only this package can add predicate variants, which keeps backend
// compilers exhaustive.
package filter
