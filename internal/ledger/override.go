package ledger

import "kasbook/internal/core"

// Resolution is the outcome of applying an entry's override to one field.
type Resolution struct {
	Value  float64
	Pinned bool
	// Rebase is set when the pinned value also becomes the accumulator
	// carried to the next entry.
	Rebase bool
}

// Resolve picks between the computed value and the value pinned on the
// entry for field f.
func Resolve(e core.Entry, f core.Field, computed float64) Resolution {
	if v, ok := e.Overrides.Pinned(f); ok {
		return Resolution{Value: v, Pinned: true, Rebase: f.Carried()}
	}
	return Resolution{Value: computed}
}
