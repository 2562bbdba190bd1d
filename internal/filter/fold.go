package filter

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Fold normalizes a string for case-insensitive comparison: NFC
// normalization followed by Unicode case folding.
//
// This is the single definition of "case-insensitive" in the engine.
// The storage layer registers it as the FOLD SQL function so compiled
// statements and in-process comparisons agree, instead of inheriting
// whatever the database's default collation happens to do.
func Fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}
