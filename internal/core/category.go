package core

import (
	"fmt"
	"strings"
)

// Category is the closed set of transaction categories. The zero value is
// not a valid category.
type Category uint8

const (
	categoryUnknown Category = iota
	CategoryCash
	CategoryExpense
	CategorySales
	CategoryInvestor
	CategorySubsidy
	CategorySettled
	CategorySupply
	CategoryProfit
	CategoryCommission
	CategorySavings
	CategoryPayable
	CategoryReceivable
	CategoryPersonalA
	CategoryPersonalB
	categoryEnd
)

var categoryCodes = [categoryEnd]string{
	categoryUnknown:    "",
	CategoryCash:       "KAS",
	CategoryExpense:    "BIAYA",
	CategorySales:      "OMZET",
	CategoryInvestor:   "INVESTOR",
	CategorySubsidy:    "SUBSIDI",
	CategorySettled:    "LUNAS",
	CategorySupply:     "SUPPLY",
	CategoryProfit:     "LABA",
	CategoryCommission: "KOMISI",
	CategorySavings:    "TABUNGAN",
	CategoryPayable:    "HUTANG",
	CategoryReceivable: "PIUTANG",
	CategoryPersonalA:  "PRIBADI-A",
	CategoryPersonalB:  "PRIBADI-S",
}

var categoryAliases = map[string]Category{
	"PRIBADI-ANWAR": CategoryPersonalA,
	"PRIBADI-SURI":  CategoryPersonalB,
}

// Categories returns every valid category in declaration order.
func Categories() []Category {
	out := make([]Category, 0, int(categoryEnd)-1)
	for c := categoryUnknown + 1; c < categoryEnd; c++ {
		out = append(out, c)
	}
	return out
}

// Valid reports whether c is a member of the enumeration.
func (c Category) Valid() bool {
	return c > categoryUnknown && c < categoryEnd
}

// Code returns the stored category code, e.g. "OMZET".
func (c Category) Code() string {
	if !c.Valid() {
		return ""
	}
	return categoryCodes[c]
}

// String implements fmt.Stringer
func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", uint8(c))
	}
	return categoryCodes[c]
}

// ParseCategory normalizes a category code and maps it onto the
// enumeration. Whitespace and dash variants are folded to "-".
func ParseCategory(raw string) (Category, error) {
	code := normalizeCode(raw)
	if code == "" {
		return categoryUnknown, fmt.Errorf("%w: empty", ErrUnknownCategory)
	}
	if c, ok := categoryAliases[code]; ok {
		return c, nil
	}
	for c := categoryUnknown + 1; c < categoryEnd; c++ {
		if categoryCodes[c] == code {
			return c, nil
		}
	}
	return categoryUnknown, fmt.Errorf("%w: %q", ErrUnknownCategory, raw)
}

func normalizeCode(raw string) string {
	v := strings.ToUpper(strings.TrimSpace(raw))
	v = strings.Join(strings.Fields(v), "-")
	return strings.NewReplacer("–", "-", "—", "-").Replace(v)
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCategory, uint8(c))
	}
	return []byte(categoryCodes[c]), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
