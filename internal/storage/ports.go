package storage

import (
	"context"
	"errors"
	"time"

	"kasbook/internal/core"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrReadOnly = errors.New("write in read-only transaction")
)

// Tx is the view of the cash book handed to Store.Update and Store.View.
// Write methods fail with ErrReadOnly inside View.
type Tx interface {
	// ActiveEntries returns every non-archived entry ordered by
	// (sequence key, created at, id).
	ActiveEntries(ctx context.Context) ([]core.Entry, error)
	Entry(ctx context.Context, id string) (core.Entry, error)
	MaxSequenceKey(ctx context.Context) (int64, error)
	ArchivedEntries(ctx context.Context, label string) ([]core.Entry, error)
	ListArchives(ctx context.Context) ([]core.ArchivePeriod, error)

	Insert(ctx context.Context, e core.Entry) error
	// Save overwrites the raw columns and override flags of an existing entry.
	Save(ctx context.Context, e core.Entry) error
	Delete(ctx context.Context, id string) error
	DeleteActive(ctx context.Context) (int, error)
	// WriteDerived stores all derived values of the given entries.
	WriteDerived(ctx context.Context, entries []core.Entry) error
	Archive(ctx context.Context, label string, from, to core.Date, at time.Time) (int, error)
	Restore(ctx context.Context, label string) (int, error)
}

// Store is a cash book backend.
type Store interface {
	// Update runs fn with exclusive write access. Nothing fn wrote is kept
	// unless it returns nil.
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
	Close() error
}
