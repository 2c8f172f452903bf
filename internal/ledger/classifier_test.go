package ledger

import (
	"testing"

	"kasbook/internal/core"
)

func effects(accs ...Accumulator) Effects {
	var fx Effects
	for _, a := range accs {
		fx = fx.with(a)
	}
	return fx
}

func TestClassify(t *testing.T) {
	c := DefaultClassifier()
	tests := []struct {
		name     string
		category core.Category
		memo     string
		want     Effects
	}{
		{"sale", core.CategorySales, "", effects(Revenue)},
		{"receivable", core.CategoryReceivable, "DP order 12", effects(Revenue)},
		{"expense", core.CategoryExpense, "listrik", effects(OperatingCost)},
		{"savings", core.CategorySavings, "", effects(OperatingCost)},
		{"commission", core.CategoryCommission, "", effects(OperatingCost)},
		{"supply", core.CategorySupply, "", effects(MaterialsCost)},
		{"payable", core.CategoryPayable, "", effects(MaterialsCost)},
		{"personal a", core.CategoryPersonalA, "cahaya", effects(PersonalLedgerA)},
		{"personal b", core.CategoryPersonalB, "", effects(PersonalLedgerB)},
		{"investor without name", core.CategoryInvestor, "setoran", effects(InvestorAdjustment)},
		{"investor name c", core.CategoryInvestor, "Modal CAHAYA", effects(InvestorAdjustment, PersonalLedgerC)},
		{"investor both names", core.CategoryInvestor, "cahaya & dinil", effects(InvestorAdjustment, PersonalLedgerC, PersonalLedgerD)},
		{"expense name d", core.CategoryExpense, "Kasbon Dinil", effects(OperatingCost, PersonalLedgerD)},
		{"savings name c is not a ledger move", core.CategorySavings, "cahaya", effects(OperatingCost)},
		{"cash", core.CategoryCash, "cahaya", 0},
		{"subsidy", core.CategorySubsidy, "", 0},
		{"settled", core.CategorySettled, "", 0},
		{"profit", core.CategoryProfit, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.category, tt.memo)
			if got != tt.want {
				t.Errorf("Classify(%v, %q) = %b, want %b", tt.category, tt.memo, got, tt.want)
			}
		})
	}
}

func TestClassifyCoversEveryCategory(t *testing.T) {
	c := DefaultClassifier()
	balanceOnly := map[core.Category]bool{
		core.CategoryCash:    true,
		core.CategorySubsidy: true,
		core.CategorySettled: true,
		core.CategoryProfit:  true,
	}
	for _, cat := range core.Categories() {
		fx := c.Classify(cat, "")
		if fx.Empty() != balanceOnly[cat] {
			t.Errorf("%v: Empty()=%v, want %v", cat, fx.Empty(), balanceOnly[cat])
		}
	}
}

func TestClassifyCommissionToggle(t *testing.T) {
	c := DefaultClassifier()
	c.CommissionIsOperatingCost = false
	if fx := c.Classify(core.CategoryCommission, ""); !fx.Empty() {
		t.Fatalf("commission should be balance-only when disabled, got %b", fx)
	}
}

func TestClassifyEmptyNamesNeverMatch(t *testing.T) {
	c := Classifier{}
	if fx := c.Classify(core.CategoryInvestor, "anything"); fx.Has(PersonalLedgerC) || fx.Has(PersonalLedgerD) {
		t.Fatalf("empty names must not match, got %b", fx)
	}
}

func TestContribution(t *testing.T) {
	tests := []struct {
		acc           Accumulator
		debit, credit float64
		want          float64
	}{
		{Revenue, 100, 0, 100},
		{OperatingCost, 0, 40, 40},
		{MaterialsCost, 0, 25, 25},
		{PersonalLedgerA, 20, 0, -20},
		{PersonalLedgerB, 0, 15, 15},
		{PersonalLedgerC, 7, 0, -7},
		{PersonalLedgerD, 0, 3, 3},
		{InvestorAdjustment, 50, 0, 50},
		{InvestorAdjustment, 0, 50, -50},
	}
	for _, tt := range tests {
		if got := Contribution(tt.acc, tt.debit, tt.credit); got != tt.want {
			t.Errorf("Contribution(%d, %v, %v) = %v, want %v", tt.acc, tt.debit, tt.credit, got, tt.want)
		}
	}
}
