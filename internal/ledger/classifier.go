// Package ledger derives the running cash-book columns from an ordered
// sequence of entries. Everything in this package is pure computation.
package ledger

import (
	"strings"

	"kasbook/internal/core"
)

// Accumulator tags an accumulator an entry can contribute to.
type Accumulator uint8

const (
	Revenue Accumulator = iota
	OperatingCost
	MaterialsCost
	PersonalLedgerA
	PersonalLedgerB
	PersonalLedgerC
	PersonalLedgerD
	InvestorAdjustment
)

// Effects is the set of accumulators touched by one entry.
type Effects uint16

// Has reports whether acc is in the set.
func (e Effects) Has(acc Accumulator) bool {
	return e&(1<<acc) != 0
}

func (e Effects) with(acc Accumulator) Effects {
	return e | 1<<acc
}

// Empty reports whether the entry only moves the balance.
func (e Effects) Empty() bool {
	return e == 0
}

const (
	DefaultLedgerCName = "cahaya"
	DefaultLedgerDName = "dinil"
)

// Classifier maps a category and memo onto the accumulators it feeds.
type Classifier struct {
	// LedgerCName and LedgerDName are matched case-insensitively as
	// substrings of the memo.
	LedgerCName string
	LedgerDName string

	// CommissionIsOperatingCost counts KOMISI credits as operating cost.
	CommissionIsOperatingCost bool
}

// DefaultClassifier returns the classifier used by the cash book.
func DefaultClassifier() Classifier {
	return Classifier{
		LedgerCName:               DefaultLedgerCName,
		LedgerDName:               DefaultLedgerDName,
		CommissionIsOperatingCost: true,
	}
}

// Classify returns the accumulators an entry with the given category and
// memo contributes to. Categories that only move the balance return an
// empty set.
func (c Classifier) Classify(category core.Category, memo string) Effects {
	var fx Effects

	switch category {
	case core.CategorySales, core.CategoryReceivable:
		fx = fx.with(Revenue)
	case core.CategoryExpense, core.CategorySavings:
		fx = fx.with(OperatingCost)
	case core.CategoryCommission:
		if c.CommissionIsOperatingCost {
			fx = fx.with(OperatingCost)
		}
	case core.CategorySupply, core.CategoryPayable:
		fx = fx.with(MaterialsCost)
	case core.CategoryPersonalA:
		fx = fx.with(PersonalLedgerA)
	case core.CategoryPersonalB:
		fx = fx.with(PersonalLedgerB)
	case core.CategoryInvestor:
		fx = fx.with(InvestorAdjustment)
	case core.CategoryCash, core.CategorySubsidy, core.CategorySettled, core.CategoryProfit:
		// balance only
	}

	if category == core.CategoryInvestor || category == core.CategoryExpense {
		lower := strings.ToLower(memo)
		if containsName(lower, c.LedgerCName) {
			fx = fx.with(PersonalLedgerC)
		}
		if containsName(lower, c.LedgerDName) {
			fx = fx.with(PersonalLedgerD)
		}
	}

	return fx
}

func containsName(lowerMemo, name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	return name != "" && strings.Contains(lowerMemo, name)
}

// Contribution returns the signed amount an entry adds to acc.
func Contribution(acc Accumulator, debit, credit float64) float64 {
	switch acc {
	case Revenue:
		return debit
	case OperatingCost, MaterialsCost:
		return credit
	case PersonalLedgerA, PersonalLedgerB, PersonalLedgerC, PersonalLedgerD:
		return credit - debit
	case InvestorAdjustment:
		return debit - credit
	}
	return 0
}
