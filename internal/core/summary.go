package core

import "time"

// Summary is the headline view of the active ledger: the derived values of
// the last entry in sequence order.
type Summary struct {
	Entries   int
	LastEntry string
	Values    Derived
}

// ArchivePeriod describes one closed period of the book.
type ArchivePeriod struct {
	Label      string
	Count      int
	FirstDate  Date
	LastDate   Date
	ArchivedAt time.Time
}
