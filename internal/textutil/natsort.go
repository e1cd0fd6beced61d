package textutil

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// naturalCollator compares numeric runs by value, so fov-2 sorts before
// fov-10. Collators are not safe for concurrent use; guard access through
// the package functions below which construct per-call.
func naturalCollator() *collate.Collator {
	return collate.New(language.Und, collate.Numeric)
}

// NaturalLess reports whether a sorts before b under natural ordering.
func NaturalLess(a, b string) bool {
	return naturalCollator().CompareString(a, b) < 0
}

// SortNatural sorts names in place in natural order.
func SortNatural(names []string) {
	c := naturalCollator()
	sort.Slice(names, func(i, j int) bool {
		return c.CompareString(names[i], names[j]) < 0
	})
}
