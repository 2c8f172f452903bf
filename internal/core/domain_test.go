package core

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && !errors.Is(err, ErrMissingDate) {
			t.Fatalf("case %d expected ErrMissingDate, got %v", i, err)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2025-03-07 ")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if d.String() != "2025-03-07" {
		t.Fatalf("unexpected date %s", d)
	}
	if _, err := ParseDate("07/03/2025"); err == nil {
		t.Fatalf("expected error for non-ISO date")
	}
	if (Date{}).String() != "" {
		t.Fatalf("zero date should format empty")
	}
}

func TestEntryValidate(t *testing.T) {
	good := Entry{
		ID:       "e1",
		Date:     NewDate(2025, 1, 1),
		Category: CategorySales,
		Debit:    100,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		mod  func(*Entry)
		want error
	}{
		{"empty id", func(e *Entry) { e.ID = " " }, ErrEmptyID},
		{"missing date", func(e *Entry) { e.Date = Date{} }, ErrMissingDate},
		{"infinite debit", func(e *Entry) { e.Debit = math.Inf(1) }, ErrInvalidAmount},
		{"NaN debit", func(e *Entry) { e.Debit = math.NaN() }, ErrInvalidAmount},
		{"infinite credit", func(e *Entry) { e.Debit, e.Credit = 0, math.Inf(1) }, ErrInvalidAmount},
		{"negative infinite credit", func(e *Entry) { e.Debit, e.Credit = 0, math.Inf(-1) }, ErrInvalidAmount},
		{"negative debit", func(e *Entry) { e.Debit = -1 }, ErrNegativeAmount},
		{"negative credit", func(e *Entry) { e.Credit = -5 }, ErrNegativeAmount},
		{"both sides", func(e *Entry) { e.Credit = 1 }, ErrBothSides},
		{"unknown category", func(e *Entry) { e.Category = 0 }, ErrUnknownCategory},
		{"category past end", func(e *Entry) { e.Category = categoryEnd }, ErrUnknownCategory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := good
			tc.mod(&e)
			err := e.Validate()
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var entryErr *EntryError
			if !errors.As(err, &entryErr) {
				t.Fatalf("expected *EntryError, got %T", err)
			}
		})
	}
}

func TestEntryValidateZeroAmounts(t *testing.T) {
	// A zero-amount entry is legal; it only carries overrides or a note.
	e := Entry{ID: "z", Date: NewDate(2025, 2, 1), Category: CategoryCash}
	if err := e.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestEntryClone(t *testing.T) {
	at := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	e := Entry{
		ID:         "e1",
		Overrides:  Overrides{FieldBalance: 10},
		ArchivedAt: &at,
	}
	c := e.Clone()
	c.Overrides[FieldBalance] = 20
	*c.ArchivedAt = at.Add(time.Hour)

	if e.Overrides[FieldBalance] != 10 {
		t.Fatalf("clone shares overrides")
	}
	if !e.ArchivedAt.Equal(at) {
		t.Fatalf("clone shares archived timestamp")
	}
}
