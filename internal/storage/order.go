package storage

import (
	"cmp"
	"slices"

	"kasbook/internal/core"
)

// SortEntries orders entries the way ActiveEntries returns them.
func SortEntries(entries []core.Entry) {
	slices.SortStableFunc(entries, compareEntries)
}

func compareEntries(a, b core.Entry) int {
	if c := cmp.Compare(a.SequenceKey, b.SequenceKey); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
