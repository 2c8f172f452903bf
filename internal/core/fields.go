package core

import (
	"fmt"
	"strings"
)

// Field names one of the twelve derived cash-book columns.
type Field uint8

const (
	FieldRevenue Field = iota
	FieldOperatingCost
	FieldMaterialsCost
	FieldBalance
	FieldNetProfit
	FieldLedgerA
	FieldLedgerB
	FieldLedgerC
	FieldLedgerD
	FieldShareA
	FieldShareB
	FieldShareGemi
	FieldCount
)

var fieldColumns = [FieldCount]string{
	FieldRevenue:       "revenue",
	FieldOperatingCost: "operating_cost",
	FieldMaterialsCost: "materials_cost",
	FieldBalance:       "balance",
	FieldNetProfit:     "net_profit",
	FieldLedgerA:       "ledger_a",
	FieldLedgerB:       "ledger_b",
	FieldLedgerC:       "ledger_c",
	FieldLedgerD:       "ledger_d",
	FieldShareA:        "share_a",
	FieldShareB:        "share_b",
	FieldShareGemi:     "share_gemi",
}

type (
	// Derived holds the twelve computed values of an entry, indexed by Field.
	Derived [FieldCount]float64

	// Overrides maps a field to the value an operator pinned on it. A
	// field absent from the map is computed.
	Overrides map[Field]float64
)

// Fields returns all derived fields in column order.
func Fields() []Field {
	out := make([]Field, FieldCount)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// Valid reports whether f names one of the derived fields.
func (f Field) Valid() bool {
	return f < FieldCount
}

// Column returns the storage column name of the field.
func (f Field) Column() string {
	if !f.Valid() {
		return ""
	}
	return fieldColumns[f]
}

func (f Field) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Field(%d)", uint8(f))
	}
	return fieldColumns[f]
}

// Carried reports whether the field is a running accumulator, i.e. whether
// an override on it rebases the value carried to later entries. Net profit
// and the A/B profit shares are recomputed from scratch on every entry.
func (f Field) Carried() bool {
	switch f {
	case FieldRevenue, FieldOperatingCost, FieldMaterialsCost, FieldBalance,
		FieldLedgerA, FieldLedgerB, FieldLedgerC, FieldLedgerD, FieldShareGemi:
		return true
	default:
		return false
	}
}

// ParseField accepts a column name ("operating_cost") in any case, with
// dashes or underscores.
func ParseField(raw string) (Field, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_")
	for f := Field(0); f < FieldCount; f++ {
		if fieldColumns[f] == name {
			return f, nil
		}
	}
	return FieldCount, fmt.Errorf("%w: %q", ErrUnknownField, raw)
}

func (f Field) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownField, uint8(f))
	}
	return []byte(fieldColumns[f]), nil
}

func (f *Field) UnmarshalText(b []byte) error {
	parsed, err := ParseField(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Get returns the value of field f.
func (d Derived) Get(f Field) float64 {
	return d[f]
}

// Pinned returns the override value for f, if any.
func (o Overrides) Pinned(f Field) (float64, bool) {
	v, ok := o[f]
	return v, ok
}

// Clone copies the override set. A nil set clones to nil.
func (o Overrides) Clone() Overrides {
	if o == nil {
		return nil
	}
	out := make(Overrides, len(o))
	for f, v := range o {
		out[f] = v
	}
	return out
}
