package keiro

import (
	"cmp"
	"slices"
)

// extendSlice extends a slice by n elements, reallocating if necessary.
func extendSlice[T any](s []T, n int) []T {
	newLen := len(s) + n
	if cap(s) >= newLen {
		return s[:newLen]
	}
	newCap := max(2*cap(s), newLen)
	ns := make([]T, newLen, newCap)
	copy(ns, s)
	return ns
}

// sortByGUID orders entities by creation sequence.
func sortByGUID(es []Entity) {
	slices.SortFunc(es, func(a, b Entity) int { return cmp.Compare(a.GUID, b.GUID) })
}
