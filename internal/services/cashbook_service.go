package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"kasbook/internal/cache"
	"kasbook/internal/core"
	"kasbook/internal/events"
	"kasbook/internal/ledger"
	"kasbook/internal/log"
	"kasbook/internal/storage"
)

var (
	ErrArchived            = errors.New("entry is archived")
	ErrInvalidLabel        = errors.New("archive label must not be empty")
	ErrInvalidPeriod       = errors.New("invalid archive period")
	ErrEmptyPeriod         = errors.New("no active entries in period")
	ErrInvalidValue        = errors.New("override value must be a finite number")
	ErrDuplicateAssignment = errors.New("entry assigned more than once")
)

// Triggers name the operation that caused a recompute.
const (
	TriggerRecalculate   = "recalculate"
	TriggerAddEntry      = "add_entry"
	TriggerUpdateEntry   = "update_entry"
	TriggerDeleteEntry   = "delete_entry"
	TriggerDeleteAll     = "delete_all"
	TriggerImport        = "import"
	TriggerSetOverride   = "set_override"
	TriggerClearOverride = "clear_override"
	TriggerReorder       = "reorder"
	TriggerArchive       = "archive"
	TriggerRestore       = "restore"
)

// NewEntry is the caller-supplied part of an entry. A zero SequenceKey
// places the entry after every existing one.
type NewEntry struct {
	Date        core.Date
	SequenceKey int64
	Category    core.Category
	Debit       float64
	Credit      float64
	Memo        string
	Note        string
}

// EntryChanges lists the raw fields to change; nil fields are kept.
type EntryChanges struct {
	Date        *core.Date
	SequenceKey *int64
	Category    *core.Category
	Debit       *float64
	Credit      *float64
	Memo        *string
	Note        *string
}

type SequenceAssignment struct {
	ID          string
	SequenceKey int64
}

// Result describes a committed recompute.
type Result struct {
	Trigger string
	Entries int
	Summary core.Summary
}

// CashbookService owns every change to the cash book. Each mutation and the
// full recompute it triggers commit together or not at all.
type CashbookService struct {
	store     storage.Store
	engine    *ledger.Engine
	publisher events.Publisher
	archives  *cache.LRUCache[[]core.Entry]
	now       func() time.Time
	newID     func() string
}

type Option func(*CashbookService)

// WithPublisher announces committed recomputes.
func WithPublisher(p events.Publisher) Option {
	return func(s *CashbookService) { s.publisher = p }
}

// WithArchiveCache serves frozen archive periods from c.
func WithArchiveCache(c *cache.LRUCache[[]core.Entry]) Option {
	return func(s *CashbookService) { s.archives = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *CashbookService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *CashbookService) { s.newID = newID }
}

func NewCashbookService(store storage.Store, engine *ledger.Engine, opts ...Option) *CashbookService {
	s := &CashbookService{
		store:  store,
		engine: engine,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecalculateAll recomputes every derived value of the active ledger.
func (s *CashbookService) RecalculateAll(ctx context.Context) (Result, error) {
	_, res, err := s.mutate(ctx, TriggerRecalculate, nil)
	return res, err
}

// AddEntry validates and stores a new entry, then recomputes.
func (s *CashbookService) AddEntry(ctx context.Context, ne NewEntry) (core.Entry, error) {
	id := s.newID()
	entries, _, err := s.mutate(ctx, TriggerAddEntry, func(ctx context.Context, tx storage.Tx) error {
		seq, err := s.nextSequence(ctx, tx, ne.SequenceKey)
		if err != nil {
			return err
		}
		e := s.build(id, seq, ne)
		if err := e.Validate(); err != nil {
			return err
		}
		return tx.Insert(ctx, e)
	})
	if err != nil {
		return core.Entry{}, fmt.Errorf("add entry: %w", err)
	}
	e := find(entries, id)
	log.FromContext(ctx).WithFields(log.NewFields().WithEntry(e)).DebugContext(ctx, "Entry added")
	return e, nil
}

// UpdateEntry changes the raw fields of an active entry, then recomputes.
func (s *CashbookService) UpdateEntry(ctx context.Context, id string, ch EntryChanges) (core.Entry, error) {
	entries, _, err := s.mutate(ctx, TriggerUpdateEntry, func(ctx context.Context, tx storage.Tx) error {
		e, err := activeEntry(ctx, tx, id)
		if err != nil {
			return err
		}
		ch.apply(&e)
		e.UpdatedAt = s.now().UTC()
		if err := e.Validate(); err != nil {
			return err
		}
		return tx.Save(ctx, e)
	})
	if err != nil {
		return core.Entry{}, fmt.Errorf("update entry: %w", err)
	}
	return find(entries, id), nil
}

func (s *CashbookService) DeleteEntry(ctx context.Context, id string) error {
	_, _, err := s.mutate(ctx, TriggerDeleteEntry, func(ctx context.Context, tx storage.Tx) error {
		if _, err := activeEntry(ctx, tx, id); err != nil {
			return err
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// DeleteAllActive clears the active ledger. Archived periods are kept.
func (s *CashbookService) DeleteAllActive(ctx context.Context) (int, error) {
	var n int
	_, _, err := s.mutate(ctx, TriggerDeleteAll, func(ctx context.Context, tx storage.Tx) error {
		var err error
		n, err = tx.DeleteActive(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete active entries: %w", err)
	}
	return n, nil
}

// ImportEntries adds all entries or none. Entries without a sequence key
// follow the current last entry in input order.
func (s *CashbookService) ImportEntries(ctx context.Context, batch []NewEntry) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	_, _, err := s.mutate(ctx, TriggerImport, func(ctx context.Context, tx storage.Tx) error {
		next, err := tx.MaxSequenceKey(ctx)
		if err != nil {
			return err
		}

		built := make([]core.Entry, len(batch))
		var invalid error
		for i, ne := range batch {
			seq := ne.SequenceKey
			if seq == 0 {
				next++
				seq = next
			} else if seq > next {
				next = seq
			}
			built[i] = s.build(s.newID(), seq, ne)
			invalid = multierr.Append(invalid, built[i].Validate())
		}
		if invalid != nil {
			return invalid
		}

		for _, e := range built {
			if err := tx.Insert(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("import entries: %w", err)
	}
	log.FromContext(ctx).InfoContext(ctx, "Imported entries", log.FieldOperation, log.OpImport, log.FieldEntries, len(batch))
	return len(batch), nil
}

// SetOverride pins field of entry id to value.
func (s *CashbookService) SetOverride(ctx context.Context, id string, field core.Field, value float64) (core.Entry, error) {
	if !field.Valid() {
		return core.Entry{}, fmt.Errorf("set override: %w", core.ErrUnknownField)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return core.Entry{}, fmt.Errorf("set override: %w", ErrInvalidValue)
	}

	entries, _, err := s.mutate(ctx, TriggerSetOverride, func(ctx context.Context, tx storage.Tx) error {
		e, err := activeEntry(ctx, tx, id)
		if err != nil {
			return err
		}
		if e.Overrides == nil {
			e.Overrides = core.Overrides{}
		}
		e.Overrides[field] = value
		e.UpdatedAt = s.now().UTC()
		return tx.Save(ctx, e)
	})
	if err != nil {
		return core.Entry{}, fmt.Errorf("set override: %w", err)
	}
	return find(entries, id), nil
}

// ClearOverride returns field of entry id to its computed value.
func (s *CashbookService) ClearOverride(ctx context.Context, id string, field core.Field) (core.Entry, error) {
	if !field.Valid() {
		return core.Entry{}, fmt.Errorf("clear override: %w", core.ErrUnknownField)
	}

	entries, _, err := s.mutate(ctx, TriggerClearOverride, func(ctx context.Context, tx storage.Tx) error {
		e, err := activeEntry(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, ok := e.Overrides.Pinned(field); !ok {
			return nil
		}
		delete(e.Overrides, field)
		e.UpdatedAt = s.now().UTC()
		return tx.Save(ctx, e)
	})
	if err != nil {
		return core.Entry{}, fmt.Errorf("clear override: %w", err)
	}
	return find(entries, id), nil
}

// Reorder assigns explicit sequence keys, then recomputes.
func (s *CashbookService) Reorder(ctx context.Context, assignments []SequenceAssignment) error {
	seen := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		if seen[a.ID] {
			return fmt.Errorf("reorder: %s: %w", a.ID, ErrDuplicateAssignment)
		}
		seen[a.ID] = true
	}

	_, _, err := s.mutate(ctx, TriggerReorder, func(ctx context.Context, tx storage.Tx) error {
		now := s.now().UTC()
		for _, a := range assignments {
			e, err := activeEntry(ctx, tx, a.ID)
			if err != nil {
				return err
			}
			if e.SequenceKey == a.SequenceKey {
				continue
			}
			e.SequenceKey = a.SequenceKey
			e.UpdatedAt = now
			if err := tx.Save(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reorder: %w", err)
	}
	return nil
}

// Archive closes the period [from, to] under label. The archived entries
// keep their derived values; the remaining active entries are recomputed
// from zero.
func (s *CashbookService) Archive(ctx context.Context, label string, from, to core.Date) (int, error) {
	label = strings.TrimSpace(label)
	switch {
	case label == "":
		return 0, fmt.Errorf("archive: %w", ErrInvalidLabel)
	case from.IsZero() || to.IsZero() || to.Before(from.Time):
		return 0, fmt.Errorf("archive %s: %w", label, ErrInvalidPeriod)
	}

	var n int
	_, _, err := s.mutate(ctx, TriggerArchive, func(ctx context.Context, tx storage.Tx) error {
		var err error
		n, err = tx.Archive(ctx, label, from, to, s.now().UTC())
		if err == nil && n == 0 {
			err = ErrEmptyPeriod
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("archive %s: %w", label, err)
	}
	log.FromContext(ctx).InfoContext(ctx, "Archived cash book period",
		log.FieldOperation, log.OpArchive,
		log.FieldLabel, label,
		log.FieldEntries, n)
	return n, nil
}

// Restore returns an archived period to the active ledger and recomputes.
func (s *CashbookService) Restore(ctx context.Context, label string) (int, error) {
	var n int
	_, _, err := s.mutate(ctx, TriggerRestore, func(ctx context.Context, tx storage.Tx) error {
		var err error
		n, err = tx.Restore(ctx, label)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("restore %s: %w", label, err)
	}
	if s.archives != nil {
		s.archives.Delete(label)
	}
	log.FromContext(ctx).InfoContext(ctx, "Restored cash book period",
		log.FieldOperation, log.OpRestore,
		log.FieldLabel, label,
		log.FieldEntries, n)
	return n, nil
}

// Entries returns the active ledger in processing order.
func (s *CashbookService) Entries(ctx context.Context) ([]core.Entry, error) {
	var entries []core.Entry
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		entries, err = tx.ActiveEntries(ctx)
		return err
	})
	return entries, err
}

// Summary reports the derived values of the last active entry.
func (s *CashbookService) Summary(ctx context.Context) (core.Summary, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return core.Summary{}, fmt.Errorf("summary: %w", err)
	}
	return summarize(entries), nil
}

// Verify replays the fold over the stored ledger and reports drift.
func (s *CashbookService) Verify(ctx context.Context) ([]ledger.Drift, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	drifts := s.engine.Verify(entries, ledger.Tolerance)
	if len(drifts) > 0 {
		log.FromContext(ctx).WithComponent(log.ComponentLedger).WarnContext(ctx, "Stored cash book differs from replay",
			log.FieldOperation, log.OpVerify,
			"drifts", len(drifts),
			log.FieldEntries, len(entries))
	}
	return drifts, nil
}

func (s *CashbookService) ListArchives(ctx context.Context) ([]core.ArchivePeriod, error) {
	var periods []core.ArchivePeriod
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		periods, err = tx.ListArchives(ctx)
		return err
	})
	return periods, err
}

// ArchivedEntries returns the frozen entries of one archive period.
func (s *CashbookService) ArchivedEntries(ctx context.Context, label string) ([]core.Entry, error) {
	load := func() ([]core.Entry, error) {
		var entries []core.Entry
		err := s.store.View(ctx, func(tx storage.Tx) error {
			var err error
			entries, err = tx.ArchivedEntries(ctx, label)
			return err
		})
		return entries, err
	}

	var (
		entries []core.Entry
		err     error
	)
	if s.archives != nil {
		entries, err = s.archives.GetOrLoad(label, load)
	} else {
		entries, err = load()
	}
	if err != nil {
		return nil, err
	}

	out := make([]core.Entry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out, nil
}

// mutate runs fn and the full recompute in one exclusive store
// transaction. A nil fn only recomputes.
func (s *CashbookService) mutate(ctx context.Context, trigger string, fn func(context.Context, storage.Tx) error) ([]core.Entry, Result, error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentLedger)
	start := time.Now()

	var folded []core.Entry
	err := s.store.Update(ctx, func(tx storage.Tx) error {
		if fn != nil {
			if err := fn(ctx, tx); err != nil {
				return err
			}
		}
		var err error
		folded, err = s.recompute(ctx, tx)
		return err
	})
	if err != nil {
		logger.Failure(ctx, "Cash book change rolled back", errorType(err), err, log.FieldTrigger, trigger)
		return nil, Result{}, err
	}

	res := Result{Trigger: trigger, Entries: len(folded), Summary: summarize(folded)}
	logger.WithFields(log.NewFields().
		WithOperation(log.OpRecalculate).
		WithRecompute(trigger, res.Entries, time.Since(start).Milliseconds())).
		InfoContext(ctx, "Cash book recalculated")
	s.publish(ctx, res)
	return folded, res, nil
}

func (s *CashbookService) recompute(ctx context.Context, tx storage.Tx) ([]core.Entry, error) {
	entries, err := tx.ActiveEntries(ctx)
	if err != nil {
		return nil, err
	}

	var invalid error
	for _, e := range entries {
		invalid = multierr.Append(invalid, e.Validate())
	}
	if invalid != nil {
		return nil, fmt.Errorf("validate cash book: %w", invalid)
	}

	folded := s.engine.Fold(entries)
	if err := tx.WriteDerived(ctx, folded); err != nil {
		return nil, err
	}
	return folded, nil
}

// publish is best effort: the ledger is already committed.
func (s *CashbookService) publish(ctx context.Context, res Result) {
	if s.publisher == nil {
		return
	}
	ev := events.LedgerRecalculated{
		Trigger:   res.Trigger,
		Entries:   res.Entries,
		Balance:   res.Summary.Values[core.FieldBalance],
		NetProfit: res.Summary.Values[core.FieldNetProfit],
		Timestamp: s.now().UTC(),
	}
	if err := s.publisher.PublishRecalculated(ctx, ev); err != nil {
		log.FromContext(ctx).Failure(ctx, "Failed to publish recalculated event", log.ErrorTypeNetwork, err,
			log.FieldOperation, log.OpPublish,
			log.FieldTrigger, res.Trigger)
	}
}

func (s *CashbookService) nextSequence(ctx context.Context, tx storage.Tx, requested int64) (int64, error) {
	if requested != 0 {
		return requested, nil
	}
	max, err := tx.MaxSequenceKey(ctx)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (s *CashbookService) build(id string, seq int64, ne NewEntry) core.Entry {
	now := s.now().UTC()
	return core.Entry{
		ID:          id,
		Date:        ne.Date,
		SequenceKey: seq,
		Category:    ne.Category,
		Debit:       ne.Debit,
		Credit:      ne.Credit,
		Memo:        strings.TrimSpace(ne.Memo),
		Note:        strings.TrimSpace(ne.Note),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Close releases the store and the publisher.
func (s *CashbookService) Close() error {
	var err error
	if s.store != nil {
		err = multierr.Append(err, s.store.Close())
	}
	if s.publisher != nil {
		err = multierr.Append(err, s.publisher.Close())
	}
	return err
}

func (ch EntryChanges) apply(e *core.Entry) {
	if ch.Date != nil {
		e.Date = *ch.Date
	}
	if ch.SequenceKey != nil {
		e.SequenceKey = *ch.SequenceKey
	}
	if ch.Category != nil {
		e.Category = *ch.Category
	}
	if ch.Debit != nil {
		e.Debit = *ch.Debit
	}
	if ch.Credit != nil {
		e.Credit = *ch.Credit
	}
	if ch.Memo != nil {
		e.Memo = strings.TrimSpace(*ch.Memo)
	}
	if ch.Note != nil {
		e.Note = strings.TrimSpace(*ch.Note)
	}
}

func activeEntry(ctx context.Context, tx storage.Tx, id string) (core.Entry, error) {
	e, err := tx.Entry(ctx, id)
	if err != nil {
		return core.Entry{}, err
	}
	if e.Archived() {
		return core.Entry{}, fmt.Errorf("entry %s in %s: %w", id, e.ArchiveLabel, ErrArchived)
	}
	return e, nil
}

// errorType classifies a failed change for the error_type log field.
func errorType(err error) string {
	var entryErr *core.EntryError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return log.ErrorTypeNotFound
	case errors.Is(err, storage.ErrConflict):
		return log.ErrorTypeConflict
	case errors.As(err, &entryErr),
		errors.Is(err, ErrArchived),
		errors.Is(err, ErrEmptyPeriod),
		errors.Is(err, ErrDuplicateAssignment):
		return log.ErrorTypeValidation
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return log.ErrorTypeInternal
	default:
		return log.ErrorTypeDatabase
	}
}

func find(entries []core.Entry, id string) core.Entry {
	for _, e := range entries {
		if e.ID == id {
			return e
		}
	}
	return core.Entry{}
}

func summarize(entries []core.Entry) core.Summary {
	sum := core.Summary{Entries: len(entries)}
	if len(entries) > 0 {
		last := entries[len(entries)-1]
		sum.LastEntry = last.ID
		sum.Values = last.Derived
	}
	return sum
}
