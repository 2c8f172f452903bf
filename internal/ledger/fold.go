package ledger

import "kasbook/internal/core"

// State is the set of running totals carried from one entry to the next.
// The zero State is the state before the first entry.
type State struct {
	Revenue       float64
	OperatingCost float64
	MaterialsCost float64
	Balance       float64
	LedgerA       float64
	LedgerB       float64
	LedgerC       float64
	LedgerD       float64
	// ShareGemi is cumulative, unlike the A and B shares which are
	// re-derived from net profit on every entry.
	ShareGemi         float64
	PreviousNetProfit float64
}

// Engine folds entries into derived values.
type Engine struct {
	Classifier Classifier
}

// NewEngine returns an Engine that classifies entries with c.
func NewEngine(c Classifier) *Engine {
	return &Engine{Classifier: c}
}

// Fold derives every entry's values in a single left-to-right pass. The
// input order is the processing order; callers sort by sequence key. The
// returned entries are copies with Derived populated.
func (eng *Engine) Fold(entries []core.Entry) []core.Entry {
	out := make([]core.Entry, len(entries))
	var s State
	for i, e := range entries {
		out[i] = e.Clone()
		s, out[i].Derived = eng.Step(s, e)
	}
	return out
}

// Step applies one entry to s and returns the next state together with the
// entry's derived values.
func (eng *Engine) Step(s State, e core.Entry) (State, core.Derived) {
	var d core.Derived
	fx := eng.Classifier.Classify(e.Category, e.Memo)

	accumulate := func(acc *float64, f core.Field, tag Accumulator) {
		computed := *acc
		if fx.Has(tag) {
			computed += Contribution(tag, e.Debit, e.Credit)
		}
		d[f] = carry(acc, Resolve(e, f, computed), computed)
	}

	accumulate(&s.Revenue, core.FieldRevenue, Revenue)
	accumulate(&s.OperatingCost, core.FieldOperatingCost, OperatingCost)
	accumulate(&s.MaterialsCost, core.FieldMaterialsCost, MaterialsCost)

	balance := s.Balance + e.Debit - e.Credit
	d[core.FieldBalance] = carry(&s.Balance, Resolve(e, core.FieldBalance, balance), balance)

	netProfit := Resolve(e, core.FieldNetProfit, s.Revenue-s.OperatingCost-s.MaterialsCost).Value
	d[core.FieldNetProfit] = netProfit

	accumulate(&s.LedgerA, core.FieldLedgerA, PersonalLedgerA)
	accumulate(&s.LedgerB, core.FieldLedgerB, PersonalLedgerB)
	accumulate(&s.LedgerC, core.FieldLedgerC, PersonalLedgerC)
	accumulate(&s.LedgerD, core.FieldLedgerD, PersonalLedgerD)

	d[core.FieldShareA] = Resolve(e, core.FieldShareA, netProfit/3-s.LedgerA).Value
	d[core.FieldShareB] = Resolve(e, core.FieldShareB, netProfit/3-s.LedgerB).Value

	gemi := s.ShareGemi + (netProfit-s.PreviousNetProfit)/3
	if fx.Has(InvestorAdjustment) {
		gemi += Contribution(InvestorAdjustment, e.Debit, e.Credit)
	}
	d[core.FieldShareGemi] = carry(&s.ShareGemi, Resolve(e, core.FieldShareGemi, gemi), gemi)

	s.PreviousNetProfit = netProfit
	return s, d
}

// carry stores the value the next entry starts from and returns the value
// emitted for this entry.
func carry(acc *float64, r Resolution, computed float64) float64 {
	if r.Rebase {
		*acc = r.Value
	} else {
		*acc = computed
	}
	return r.Value
}
