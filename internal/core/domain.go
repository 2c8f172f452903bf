package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

type (
	Date struct {
		time.Time
	}

	// Entry is one row of the cash book.
	Entry struct {
		ID          string
		Date        Date
		SequenceKey int64
		Category    Category
		Debit       float64
		Credit      float64
		Memo        string // "keperluan", read by the classifier
		Note        string // "catatan", never read by computation

		CreatedAt time.Time
		UpdatedAt time.Time

		ArchivedAt   *time.Time
		ArchiveLabel string

		Derived   Derived
		Overrides Overrides
	}

	// EntryError ties a validation failure to the entry that caused it.
	EntryError struct {
		ID          string
		SequenceKey int64
		Err         error
	}
)

var (
	ErrEmptyID              = errors.New("empty entry id")
	ErrMissingDate          = errors.New("missing date")
	ErrInvalidAmount        = errors.New("debit or credit is not a finite number")
	ErrNegativeAmount       = errors.New("negative debit or credit")
	ErrBothSides            = errors.New("debit and credit both positive")
	ErrUnknownCategory      = errors.New("unknown category")
	ErrUnknownField         = errors.New("unknown derived field")
	ErrOverrideWithoutValue = errors.New("override flag set without stored value")
)

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %s (sequence %d): %v", e.ID, e.SequenceKey, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD; the zero date formats as "".
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// Archived reports whether the entry has left the active ledger.
func (e Entry) Archived() bool {
	return e.ArchivedAt != nil
}

// Amount returns debit minus credit, the entry's effect on the balance.
func (e Entry) Amount() float64 {
	return e.Debit - e.Credit
}

// Validate checks the raw (non-derived) part of the entry. It must pass
// before the entry may take part in a recompute.
func (e Entry) Validate() error {
	var err error
	switch {
	case strings.TrimSpace(e.ID) == "":
		err = ErrEmptyID
	case e.Date.Validate() != nil:
		err = ErrMissingDate
	case !finite(e.Debit) || !finite(e.Credit):
		err = ErrInvalidAmount
	case e.Debit < 0 || e.Credit < 0:
		err = ErrNegativeAmount
	case e.Debit > 0 && e.Credit > 0:
		err = ErrBothSides
	case !e.Category.Valid():
		err = ErrUnknownCategory
	}
	if err != nil {
		return &EntryError{ID: e.ID, SequenceKey: e.SequenceKey, Err: err}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Clone returns a deep copy; Overrides and ArchivedAt are not shared.
func (e Entry) Clone() Entry {
	out := e
	out.Overrides = e.Overrides.Clone()
	if e.ArchivedAt != nil {
		at := *e.ArchivedAt
		out.ArchivedAt = &at
	}
	return out
}
