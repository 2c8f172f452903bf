package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"kasbook/internal/core"
	"kasbook/internal/storage"
)

type tx struct {
	entries  map[string]core.Entry
	readOnly bool
}

func (t *tx) writable() error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	return nil
}

func (t *tx) collect(keep func(core.Entry) bool) []core.Entry {
	var out []core.Entry
	for _, e := range t.entries {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	storage.SortEntries(out)
	return out
}

func (t *tx) ActiveEntries(ctx context.Context) ([]core.Entry, error) {
	return t.collect(func(e core.Entry) bool { return !e.Archived() }), nil
}

func (t *tx) Entry(ctx context.Context, id string) (core.Entry, error) {
	e, ok := t.entries[id]
	if !ok {
		return core.Entry{}, fmt.Errorf("entry %s: %w", id, storage.ErrNotFound)
	}
	return e.Clone(), nil
}

func (t *tx) MaxSequenceKey(ctx context.Context) (int64, error) {
	var max int64
	for _, e := range t.entries {
		if e.SequenceKey > max {
			max = e.SequenceKey
		}
	}
	return max, nil
}

func (t *tx) ArchivedEntries(ctx context.Context, label string) ([]core.Entry, error) {
	out := t.collect(func(e core.Entry) bool { return e.Archived() && e.ArchiveLabel == label })
	if len(out) == 0 {
		return nil, fmt.Errorf("archive %s: %w", label, storage.ErrNotFound)
	}
	return out, nil
}

func (t *tx) ListArchives(ctx context.Context) ([]core.ArchivePeriod, error) {
	byLabel := make(map[string]*core.ArchivePeriod)
	for _, e := range t.entries {
		if !e.Archived() {
			continue
		}
		p, ok := byLabel[e.ArchiveLabel]
		if !ok {
			p = &core.ArchivePeriod{
				Label:      e.ArchiveLabel,
				FirstDate:  e.Date,
				LastDate:   e.Date,
				ArchivedAt: *e.ArchivedAt,
			}
			byLabel[e.ArchiveLabel] = p
		}
		p.Count++
		if e.Date.Before(p.FirstDate.Time) {
			p.FirstDate = e.Date
		}
		if e.Date.After(p.LastDate.Time) {
			p.LastDate = e.Date
		}
		if e.ArchivedAt.Before(p.ArchivedAt) {
			p.ArchivedAt = *e.ArchivedAt
		}
	}

	periods := make([]core.ArchivePeriod, 0, len(byLabel))
	for _, p := range byLabel {
		periods = append(periods, *p)
	}
	sort.Slice(periods, func(i, j int) bool {
		if !periods[i].ArchivedAt.Equal(periods[j].ArchivedAt) {
			return periods[i].ArchivedAt.Before(periods[j].ArchivedAt)
		}
		return periods[i].Label < periods[j].Label
	})
	return periods, nil
}

func (t *tx) Insert(ctx context.Context, e core.Entry) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.entries[e.ID]; ok {
		return fmt.Errorf("entry %s: %w", e.ID, storage.ErrConflict)
	}
	t.put(e)
	return nil
}

// put stores a copy of e with pinned values in place of derived ones.
func (t *tx) put(e core.Entry) {
	e = e.Clone()
	for f, v := range e.Overrides {
		e.Derived[f] = v
	}
	t.entries[e.ID] = e
}

func (t *tx) Save(ctx context.Context, e core.Entry) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.entries[e.ID]; !ok {
		return fmt.Errorf("entry %s: %w", e.ID, storage.ErrNotFound)
	}
	t.put(e)
	return nil
}

func (t *tx) Delete(ctx context.Context, id string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.entries[id]; !ok {
		return fmt.Errorf("entry %s: %w", id, storage.ErrNotFound)
	}
	delete(t.entries, id)
	return nil
}

func (t *tx) DeleteActive(ctx context.Context) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for id, e := range t.entries {
		if !e.Archived() {
			delete(t.entries, id)
			n++
		}
	}
	return n, nil
}

func (t *tx) WriteDerived(ctx context.Context, entries []core.Entry) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, e := range entries {
		cur, ok := t.entries[e.ID]
		if !ok {
			return fmt.Errorf("entry %s: %w", e.ID, storage.ErrNotFound)
		}
		cur.Derived = e.Derived
		t.entries[e.ID] = cur
	}
	return nil
}

func (t *tx) Archive(ctx context.Context, label string, from, to core.Date, at time.Time) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	for _, e := range t.entries {
		if e.Archived() && e.ArchiveLabel == label {
			return 0, fmt.Errorf("archive %s: %w", label, storage.ErrConflict)
		}
	}
	n := 0
	for id, e := range t.entries {
		if e.Archived() || e.Date.Before(from.Time) || e.Date.After(to.Time) {
			continue
		}
		stamp := at
		e.ArchivedAt = &stamp
		e.ArchiveLabel = label
		t.entries[id] = e
		n++
	}
	return n, nil
}

func (t *tx) Restore(ctx context.Context, label string) (int, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for id, e := range t.entries {
		if e.Archived() && e.ArchiveLabel == label {
			e.ArchivedAt = nil
			e.ArchiveLabel = ""
			t.entries[id] = e
			n++
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("archive %s: %w", label, storage.ErrNotFound)
	}
	return n, nil
}

var _ storage.Tx = (*tx)(nil)
