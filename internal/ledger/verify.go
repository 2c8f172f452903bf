package ledger

import (
	"math"

	"kasbook/internal/core"
)

// Tolerance is the largest difference, in currency units, still treated as
// equal when comparing derived values.
const Tolerance = 1.0

// Drift is a stored derived value that no longer matches a replay.
type Drift struct {
	EntryID     string
	SequenceKey int64
	Field       core.Field
	Stored      float64
	Computed    float64
}

// Verify replays the fold over entries as stored and reports every derived
// value that differs from its replayed value by more than tolerance.
func (eng *Engine) Verify(entries []core.Entry, tolerance float64) []Drift {
	var drifts []Drift
	replayed := eng.Fold(entries)
	for i, e := range entries {
		for _, f := range core.Fields() {
			stored, computed := e.Derived[f], replayed[i].Derived[f]
			if math.Abs(stored-computed) > tolerance {
				drifts = append(drifts, Drift{
					EntryID:     e.ID,
					SequenceKey: e.SequenceKey,
					Field:       f,
					Stored:      stored,
					Computed:    computed,
				})
			}
		}
	}
	return drifts
}
