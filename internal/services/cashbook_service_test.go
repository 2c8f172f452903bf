package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"kasbook/internal/cache"
	"kasbook/internal/core"
	"kasbook/internal/events"
	"kasbook/internal/ledger"
	"kasbook/internal/log"
	"kasbook/internal/storage"
	"kasbook/internal/storage/memory"
)

var approx = cmpopts.EquateApprox(0, ledger.Tolerance)

type recordingPublisher struct {
	events []events.LedgerRecalculated
	err    error
	closed bool
}

func (p *recordingPublisher) PublishRecalculated(ctx context.Context, ev events.LedgerRecalculated) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

type fixture struct {
	svc   *CashbookService
	store *memory.Store
	pub   *recordingPublisher
	cache *cache.LRUCache[[]core.Entry]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.New(),
		pub:   &recordingPublisher{},
		cache: cache.NewLRUCache[[]core.Entry](4, time.Hour),
	}
	var n int
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	f.svc = NewCashbookService(f.store, ledger.NewEngine(ledger.DefaultClassifier()),
		WithPublisher(f.pub),
		WithArchiveCache(f.cache),
		WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
	return f
}

func (f *fixture) add(t *testing.T, day int, cat core.Category, debit, credit float64, memo string) core.Entry {
	t.Helper()
	e, err := f.svc.AddEntry(context.Background(), NewEntry{
		Date:     core.NewDate(2025, 3, day),
		Category: cat,
		Debit:    debit,
		Credit:   credit,
		Memo:     memo,
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) entries(t *testing.T) []core.Entry {
	t.Helper()
	entries, err := f.svc.Entries(context.Background())
	require.NoError(t, err)
	return entries
}

func (f *fixture) value(t *testing.T, id string, field core.Field) float64 {
	t.Helper()
	for _, e := range f.entries(t) {
		if e.ID == id {
			return e.Derived[field]
		}
	}
	t.Fatalf("entry %s not active", id)
	return 0
}

func TestAddEntryRecomputesBook(t *testing.T) {
	f := newFixture(t)
	f.add(t, 1, core.CategorySales, 100000, 0, "")
	f.add(t, 2, core.CategoryExpense, 0, 30000, "")
	last := f.add(t, 3, core.CategoryPersonalA, 20000, 0, "")

	require.Equal(t, int64(3), last.SequenceKey)
	require.InDelta(t, 43333.33, last.Derived[core.FieldShareA], ledger.Tolerance)

	sum, err := f.svc.Summary(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, sum.Entries)
	require.Equal(t, last.ID, sum.LastEntry)

	want := core.Derived{}
	want[core.FieldRevenue] = 100000
	want[core.FieldOperatingCost] = 30000
	want[core.FieldBalance] = 50000
	want[core.FieldNetProfit] = 70000
	want[core.FieldLedgerA] = -20000
	want[core.FieldShareA] = 70000.0/3 + 20000
	want[core.FieldShareB] = 70000.0 / 3
	want[core.FieldShareGemi] = 70000.0 / 3
	if diff := cmp.Diff(want, sum.Values, approx); diff != "" {
		t.Fatalf("summary mismatch (-want/+got):\n%s", diff)
	}

	require.Len(t, f.pub.events, 3)
	ev := f.pub.events[2]
	require.Equal(t, TriggerAddEntry, ev.Trigger)
	require.Equal(t, 3, ev.Entries)
	require.Equal(t, 50000.0, ev.Balance)
	require.Equal(t, 70000.0, ev.NetProfit)
}

func TestAddEntryExplicitSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, 1, core.CategoryCash, 100, 0, "")

	e, err := f.svc.AddEntry(ctx, NewEntry{
		Date:        core.NewDate(2025, 3, 2),
		SequenceKey: 50,
		Category:    core.CategoryCash,
		Debit:       1,
	})
	require.NoError(t, err)
	require.Equal(t, int64(50), e.SequenceKey)

	next := f.add(t, 3, core.CategoryCash, 1, 0, "")
	require.Equal(t, int64(51), next.SequenceKey)
}

func TestAddEntryRejectsInvalidEntry(t *testing.T) {
	f := newFixture(t)
	f.add(t, 1, core.CategorySales, 1000, 0, "")
	published := len(f.pub.events)

	cases := []struct {
		name string
		ne   NewEntry
		want error
	}{
		{"negative", NewEntry{Date: core.NewDate(2025, 3, 2), Category: core.CategoryCash, Debit: -5}, core.ErrNegativeAmount},
		{"both sides", NewEntry{Date: core.NewDate(2025, 3, 2), Category: core.CategoryCash, Debit: 5, Credit: 5}, core.ErrBothSides},
		{"no date", NewEntry{Category: core.CategoryCash, Debit: 5}, core.ErrMissingDate},
		{"no category", NewEntry{Date: core.NewDate(2025, 3, 2), Debit: 5}, core.ErrUnknownCategory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.AddEntry(context.Background(), tc.ne)
			require.ErrorIs(t, err, tc.want)

			var entryErr *core.EntryError
			require.ErrorAs(t, err, &entryErr)
		})
	}

	require.Len(t, f.entries(t), 1)
	require.Len(t, f.pub.events, published)
}

func TestRecalculateAbortsOnInvalidStoredEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	good := f.add(t, 1, core.CategorySales, 1000, 0, "")

	err := f.store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.Insert(ctx, core.Entry{ID: "bad-1", Date: core.NewDate(2025, 3, 2), SequenceKey: 2, Category: core.CategoryCash, Debit: 1, Credit: 1}); err != nil {
			return err
		}
		return tx.Insert(ctx, core.Entry{ID: "bad-2", SequenceKey: 3, Category: core.CategoryCash, Debit: 1})
	})
	require.NoError(t, err)

	_, err = f.svc.RecalculateAll(ctx)
	require.ErrorIs(t, err, core.ErrBothSides)
	require.ErrorIs(t, err, core.ErrMissingDate)

	_, err = f.svc.AddEntry(ctx, NewEntry{Date: core.NewDate(2025, 3, 4), Category: core.CategoryCash, Debit: 10})
	require.ErrorIs(t, err, core.ErrBothSides)

	entries := f.entries(t)
	require.Len(t, entries, 3)
	require.Equal(t, good.ID, entries[0].ID)
	require.Equal(t, 1000.0, entries[0].Derived[core.FieldBalance])
	require.Zero(t, entries[1].Derived[core.FieldBalance])
}

func TestRecalculateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, 1, core.CategorySales, 100000, 0, "")
	f.add(t, 2, core.CategoryInvestor, 0, 2500, "modal cahaya")
	f.add(t, 3, core.CategorySupply, 0, 12000, "")

	before := f.entries(t)
	res, err := f.svc.RecalculateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, TriggerRecalculate, res.Trigger)
	require.Equal(t, 3, res.Entries)

	after := f.entries(t)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("recompute changed the book (-before/+after):\n%s", diff)
	}
}

func TestSetOverridePinsAndRebases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, 1, core.CategorySales, 100000, 0, "")
	cost := f.add(t, 2, core.CategoryExpense, 0, 30000, "")
	last := f.add(t, 3, core.CategoryPersonalA, 20000, 0, "")

	pinned, err := f.svc.SetOverride(ctx, cost.ID, core.FieldOperatingCost, 999)
	require.NoError(t, err)
	require.Equal(t, 999.0, pinned.Derived[core.FieldOperatingCost])
	require.Equal(t, core.Overrides{core.FieldOperatingCost: 999}, pinned.Overrides)

	require.Equal(t, 999.0, f.value(t, last.ID, core.FieldOperatingCost))
	require.Equal(t, 99001.0, f.value(t, last.ID, core.FieldNetProfit))

	cleared, err := f.svc.ClearOverride(ctx, cost.ID, core.FieldOperatingCost)
	require.NoError(t, err)
	require.Empty(t, cleared.Overrides)
	require.Equal(t, 30000.0, cleared.Derived[core.FieldOperatingCost])
	require.Equal(t, 70000.0, f.value(t, last.ID, core.FieldNetProfit))
}

func TestSetOverrideRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.add(t, 1, core.CategoryCash, 10, 0, "")

	_, err := f.svc.SetOverride(ctx, e.ID, core.FieldCount, 1)
	require.ErrorIs(t, err, core.ErrUnknownField)

	_, err = f.svc.SetOverride(ctx, e.ID, core.FieldBalance, math.NaN())
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = f.svc.SetOverride(ctx, e.ID, core.FieldBalance, math.Inf(1))
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = f.svc.SetOverride(ctx, "missing", core.FieldBalance, 1)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.add(t, 1, core.CategoryCash, 100, 0, "kas awal")

	cat := core.CategorySales
	debit := 250.0
	memo := "  cetak brosur "
	updated, err := f.svc.UpdateEntry(ctx, e.ID, EntryChanges{Category: &cat, Debit: &debit, Memo: &memo})
	require.NoError(t, err)
	require.Equal(t, core.CategorySales, updated.Category)
	require.Equal(t, "cetak brosur", updated.Memo)
	require.Equal(t, 250.0, updated.Derived[core.FieldRevenue])
	require.True(t, updated.UpdatedAt.After(e.UpdatedAt))

	credit := 10.0
	_, err = f.svc.UpdateEntry(ctx, e.ID, EntryChanges{Credit: &credit})
	require.ErrorIs(t, err, core.ErrBothSides)
	require.Equal(t, 250.0, f.value(t, e.ID, core.FieldRevenue))
}

func TestDeleteEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.add(t, 1, core.CategoryCash, 100, 0, "")
	b := f.add(t, 2, core.CategoryCash, 50, 0, "")

	require.NoError(t, f.svc.DeleteEntry(ctx, a.ID))
	require.Equal(t, 50.0, f.value(t, b.ID, core.FieldBalance))
	require.ErrorIs(t, f.svc.DeleteEntry(ctx, a.ID), storage.ErrNotFound)

	n, err := f.svc.DeleteAllActive(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Empty(t, f.entries(t))

	sum, err := f.svc.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, core.Summary{}, sum)
}

func TestImportEntriesAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, 1, core.CategoryCash, 100, 0, "")

	_, err := f.svc.ImportEntries(ctx, []NewEntry{
		{Date: core.NewDate(2025, 3, 2), Category: core.CategorySales, Debit: 10},
		{Date: core.NewDate(2025, 3, 3), Category: core.CategoryCash, Debit: 1, Credit: 1},
		{Category: core.CategoryCash, Debit: 1},
	})
	require.ErrorIs(t, err, core.ErrBothSides)
	require.ErrorIs(t, err, core.ErrMissingDate)
	require.Len(t, f.entries(t), 1)

	n, err := f.svc.ImportEntries(ctx, []NewEntry{
		{Date: core.NewDate(2025, 3, 2), Category: core.CategorySales, Debit: 10},
		{Date: core.NewDate(2025, 3, 3), SequenceKey: 10, Category: core.CategoryExpense, Credit: 4},
		{Date: core.NewDate(2025, 3, 4), Category: core.CategoryCash, Debit: 1},
	})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	entries := f.entries(t)
	require.Len(t, entries, 4)
	var seqs []int64
	for _, e := range entries {
		seqs = append(seqs, e.SequenceKey)
	}
	require.Equal(t, []int64{1, 2, 10, 11}, seqs)
	require.Equal(t, 107.0, entries[3].Derived[core.FieldBalance])
	require.Equal(t, TriggerImport, f.pub.events[len(f.pub.events)-1].Trigger)
}

func TestReorderChangesResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.add(t, 1, core.CategoryCash, 500, 0, "")
	b := f.add(t, 2, core.CategoryCash, 0, 100, "")
	c := f.add(t, 3, core.CategorySales, 250, 0, "")

	_, err := f.svc.SetOverride(ctx, b.ID, core.FieldBalance, 1000)
	require.NoError(t, err)
	require.Equal(t, 1250.0, f.value(t, c.ID, core.FieldBalance))

	require.NoError(t, f.svc.Reorder(ctx, []SequenceAssignment{{ID: a.ID, SequenceKey: 10}}))

	entries := f.entries(t)
	require.Equal(t, []string{b.ID, c.ID, a.ID}, []string{entries[0].ID, entries[1].ID, entries[2].ID})
	require.Equal(t, 1750.0, entries[2].Derived[core.FieldBalance])

	sum, err := f.svc.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, a.ID, sum.LastEntry)
}

func TestReorderRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, 1, core.CategoryCash, 500, 0, "")

	err := f.svc.Reorder(context.Background(), []SequenceAssignment{{ID: a.ID, SequenceKey: 2}, {ID: a.ID, SequenceKey: 3}})
	require.ErrorIs(t, err, ErrDuplicateAssignment)

	err = f.svc.Reorder(context.Background(), []SequenceAssignment{{ID: a.ID, SequenceKey: 2}, {ID: "ghost", SequenceKey: 3}})
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.Equal(t, int64(1), f.entries(t)[0].SequenceKey)
}

func TestArchiveAndRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, 1, core.CategorySales, 100000, 0, "")
	cost := f.add(t, 5, core.CategoryExpense, 0, 30000, "")
	april, err := f.svc.AddEntry(ctx, NewEntry{Date: core.NewDate(2025, 4, 2), Category: core.CategorySales, Debit: 50000})
	require.NoError(t, err)
	require.Equal(t, 120000.0, april.Derived[core.FieldBalance])

	n, err := f.svc.Archive(ctx, " maret-2025 ", core.NewDate(2025, 3, 1), core.NewDate(2025, 3, 31))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	active := f.entries(t)
	require.Len(t, active, 1)
	require.Equal(t, 50000.0, active[0].Derived[core.FieldBalance])
	require.Equal(t, 50000.0, active[0].Derived[core.FieldNetProfit])

	archived, err := f.svc.ArchivedEntries(ctx, "maret-2025")
	require.NoError(t, err)
	require.Len(t, archived, 2)
	require.Equal(t, cost.ID, archived[1].ID)
	require.Equal(t, 70000.0, archived[1].Derived[core.FieldBalance])
	require.Equal(t, 1, f.cache.Size())

	periods, err := f.svc.ListArchives(ctx)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	require.Equal(t, "maret-2025", periods[0].Label)
	require.Equal(t, 2, periods[0].Count)
	require.Equal(t, core.NewDate(2025, 3, 5), periods[0].LastDate)

	_, err = f.svc.UpdateEntry(ctx, cost.ID, EntryChanges{})
	require.ErrorIs(t, err, ErrArchived)

	n, err = f.svc.Restore(ctx, "maret-2025")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Zero(t, f.cache.Size())
	require.Equal(t, 120000.0, f.value(t, april.ID, core.FieldBalance))

	_, err = f.svc.ArchivedEntries(ctx, "maret-2025")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.Equal(t, TriggerRestore, f.pub.events[len(f.pub.events)-1].Trigger)
}

func TestFailedRestoreKeepsArchiveCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, 1, core.CategorySales, 100000, 0, "")
	_, err := f.svc.Archive(ctx, "maret-2025", core.NewDate(2025, 3, 1), core.NewDate(2025, 3, 31))
	require.NoError(t, err)
	_, err = f.svc.ArchivedEntries(ctx, "maret-2025")
	require.NoError(t, err)
	require.Equal(t, 1, f.cache.Size())

	// A corrupt active row makes the recompute after restore fail.
	err = f.store.Update(ctx, func(tx storage.Tx) error {
		return tx.Insert(ctx, core.Entry{ID: "bad", Date: core.NewDate(2025, 4, 1), Category: core.CategorySales, Debit: math.NaN()})
	})
	require.NoError(t, err)

	_, err = f.svc.Restore(ctx, "maret-2025")
	require.ErrorIs(t, err, core.ErrInvalidAmount)
	require.Equal(t, 1, f.cache.Size())

	_, err = f.svc.Restore(ctx, "tidak-ada")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.Equal(t, 1, f.cache.Size())

	archived, err := f.svc.ArchivedEntries(ctx, "maret-2025")
	require.NoError(t, err)
	require.Len(t, archived, 1)
}

func TestAddEntryRejectsNonFiniteAmounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddEntry(ctx, NewEntry{Date: core.NewDate(2025, 3, 2), Category: core.CategorySales, Debit: math.Inf(1)})
	require.ErrorIs(t, err, core.ErrInvalidAmount)
	require.Empty(t, f.entries(t))
}

func TestArchiveRejectsBadPeriods(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, 10, core.CategoryCash, 1, 0, "")

	_, err := f.svc.Archive(ctx, "  ", core.NewDate(2025, 3, 1), core.NewDate(2025, 3, 31))
	require.ErrorIs(t, err, ErrInvalidLabel)

	_, err = f.svc.Archive(ctx, "q1", core.NewDate(2025, 3, 31), core.NewDate(2025, 3, 1))
	require.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = f.svc.Archive(ctx, "q1", core.Date{}, core.NewDate(2025, 3, 1))
	require.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = f.svc.Archive(ctx, "feb", core.NewDate(2025, 2, 1), core.NewDate(2025, 2, 28))
	require.ErrorIs(t, err, ErrEmptyPeriod)

	_, err = f.svc.Archive(ctx, "mar", core.NewDate(2025, 3, 1), core.NewDate(2025, 3, 31))
	require.NoError(t, err)
	f.add(t, 11, core.CategoryCash, 1, 0, "")
	_, err = f.svc.Archive(ctx, "mar", core.NewDate(2025, 3, 1), core.NewDate(2025, 3, 31))
	require.ErrorIs(t, err, storage.ErrConflict)
}

func TestVerifyReportsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, 1, core.CategorySales, 1000, 0, "")
	b := f.add(t, 2, core.CategoryCash, 0, 200, "")

	drifts, err := f.svc.Verify(ctx)
	require.NoError(t, err)
	require.Empty(t, drifts)

	err = f.store.Update(ctx, func(tx storage.Tx) error {
		entries, err := tx.ActiveEntries(ctx)
		if err != nil {
			return err
		}
		entries[1].Derived[core.FieldBalance] += 50
		return tx.WriteDerived(ctx, entries)
	})
	require.NoError(t, err)

	drifts, err = f.svc.Verify(ctx)
	require.NoError(t, err)
	require.Equal(t, []ledger.Drift{{
		EntryID:     b.ID,
		SequenceKey: 2,
		Field:       core.FieldBalance,
		Stored:      850,
		Computed:    800,
	}}, drifts)
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")

	e := f.add(t, 1, core.CategoryCash, 10, 0, "")
	require.Equal(t, 10.0, e.Derived[core.FieldBalance])
	require.Empty(t, f.pub.events)
}

func TestArchivedEntriesReturnsCopies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.add(t, 1, core.CategoryCash, 10, 0, "")
	_, err := f.svc.SetOverride(ctx, e.ID, core.FieldBalance, 99)
	require.NoError(t, err)
	_, err = f.svc.Archive(ctx, "mar", core.NewDate(2025, 3, 1), core.NewDate(2025, 3, 31))
	require.NoError(t, err)

	first, err := f.svc.ArchivedEntries(ctx, "mar")
	require.NoError(t, err)
	first[0].Overrides[core.FieldBalance] = 1

	second, err := f.svc.ArchivedEntries(ctx, "mar")
	require.NoError(t, err)
	require.Equal(t, 99.0, second[0].Overrides[core.FieldBalance])
}

func TestCloseReleasesPublisher(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Close())
	require.True(t, f.pub.closed)
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("entry x: %w", storage.ErrNotFound), log.ErrorTypeNotFound},
		{fmt.Errorf("archive q1: %w", storage.ErrConflict), log.ErrorTypeConflict},
		{&core.EntryError{ID: "x", Err: core.ErrBothSides}, log.ErrorTypeValidation},
		{fmt.Errorf("wrap: %w", ErrEmptyPeriod), log.ErrorTypeValidation},
		{context.Canceled, log.ErrorTypeInternal},
		{errors.New("disk I/O error"), log.ErrorTypeDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			require.Equal(t, tt.want, errorType(tt.err))
		})
	}
}
