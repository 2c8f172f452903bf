// Package memory keeps the cash book in process memory, optionally backed by
// a JSON snapshot file that is replaced atomically after every successful
// write. Processes sharing a snapshot serialize on a lock file next to it.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"

	"kasbook/internal/core"
	"kasbook/internal/storage"
)

const lockRetryDelay = 10 * time.Millisecond

// Store is a storage.Store held in memory. Update works on a staged copy
// that replaces the live set only after fn and the snapshot write succeed.
type Store struct {
	mu      sync.RWMutex
	entries map[string]core.Entry
	path    string
	lock    *flock.Flock
}

// New returns an empty store without persistence.
func New() *Store {
	return &Store{entries: make(map[string]core.Entry)}
}

// Open loads the snapshot at path if it exists. Every later successful
// Update rewrites it, and every Update or View first reloads it under
// <path>.lock so writes from other processes are never lost.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	s := New()
	s.path = path
	s.lock = flock.New(path + ".lock")

	ctx := context.Background()
	if err := s.acquire(ctx, false); err != nil {
		return nil, err
	}
	defer s.release()
	if err := s.reload(); err != nil {
		return nil, err
	}
	slog.Info("Loaded cash book snapshot", "path", path, "entries", len(s.entries))
	return s, nil
}

func (s *Store) Update(ctx context.Context, fn func(storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock != nil {
		if err := s.acquire(ctx, true); err != nil {
			return err
		}
		defer s.release()
		if err := s.reload(); err != nil {
			return err
		}
	}

	staged := make(map[string]core.Entry, len(s.entries))
	for id, e := range s.entries {
		staged[id] = e.Clone()
	}

	if err := fn(&tx{entries: staged}); err != nil {
		return err
	}
	if err := s.persist(staged); err != nil {
		return err
	}
	s.entries = staged
	return nil
}

func (s *Store) View(ctx context.Context, fn func(storage.Tx) error) error {
	if s.lock == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return fn(&tx{entries: s.entries, readOnly: true})
	}

	// Reloading replaces s.entries, so file-backed reads take the write side.
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acquire(ctx, false); err != nil {
		return err
	}
	defer s.release()
	if err := s.reload(); err != nil {
		return err
	}
	return fn(&tx{entries: s.entries, readOnly: true})
}

func (s *Store) Close() error {
	if s.lock == nil {
		return nil
	}
	return s.lock.Close()
}

// acquire takes the snapshot lock, exclusive for writers and shared for
// readers, waiting until ctx is done.
func (s *Store) acquire(ctx context.Context, exclusive bool) error {
	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = s.lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = s.lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return fmt.Errorf("lock snapshot %s: %w", s.path, err)
	}
	if !ok {
		return fmt.Errorf("lock snapshot %s: %w", s.path, ctx.Err())
	}
	return nil
}

func (s *Store) release() {
	if err := s.lock.Unlock(); err != nil {
		slog.Warn("Failed to release snapshot lock", "path", s.path, "error", err)
	}
}

// reload replaces the live set with the snapshot on disk. A missing file
// is an empty book.
func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.entries = make(map[string]core.Entry)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	entries, err := decodeSnapshot(data)
	if err != nil {
		return fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}
	loaded := make(map[string]core.Entry, len(entries))
	for _, e := range entries {
		loaded[e.ID] = e
	}
	s.entries = loaded
	return nil
}

func (s *Store) persist(entries map[string]core.Entry) error {
	if s.path == "" {
		return nil
	}

	data, err := encodeSnapshot(entries)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

var _ storage.Store = (*Store)(nil)

// snapshot is the on-disk form of the book.
type snapshot struct {
	Version int             `json:"version"`
	Entries []snapshotEntry `json:"entries"`
}

type snapshotEntry struct {
	ID           string         `json:"id"`
	Date         string         `json:"date"`
	SequenceKey  int64          `json:"sequence_key"`
	Category     string         `json:"category"`
	Debit        float64        `json:"debit"`
	Credit       float64        `json:"credit"`
	Memo         string         `json:"memo,omitempty"`
	Note         string         `json:"note,omitempty"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
	ArchivedAt   string         `json:"archived_at,omitempty"`
	ArchiveLabel string         `json:"archive_label,omitempty"`
	Derived      core.Derived   `json:"derived"`
	Overrides    core.Overrides `json:"overrides,omitempty"`
}

const snapshotVersion = 1

func encodeSnapshot(entries map[string]core.Entry) ([]byte, error) {
	list := make([]core.Entry, 0, len(entries))
	for _, e := range entries {
		list = append(list, e)
	}
	storage.SortEntries(list)

	snap := snapshot{Version: snapshotVersion, Entries: make([]snapshotEntry, len(list))}
	for i, e := range list {
		se := snapshotEntry{
			ID:          e.ID,
			Date:        e.Date.String(),
			SequenceKey: e.SequenceKey,
			Category:    e.Category.Code(),
			Debit:       e.Debit,
			Credit:      e.Credit,
			Memo:        e.Memo,
			Note:        e.Note,
			CreatedAt:   formatTime(e.CreatedAt),
			UpdatedAt:   formatTime(e.UpdatedAt),
			Derived:     e.Derived,
			Overrides:   e.Overrides,
		}
		if e.ArchivedAt != nil {
			se.ArchivedAt = formatTime(*e.ArchivedAt)
			se.ArchiveLabel = e.ArchiveLabel
		}
		snap.Entries[i] = se
	}
	return json.MarshalIndent(snap, "", "  ")
}

func decodeSnapshot(data []byte) ([]core.Entry, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	entries := make([]core.Entry, 0, len(snap.Entries))
	for _, se := range snap.Entries {
		e := core.Entry{
			ID:          se.ID,
			SequenceKey: se.SequenceKey,
			Debit:       se.Debit,
			Credit:      se.Credit,
			Memo:        se.Memo,
			Note:        se.Note,
			Derived:     se.Derived,
			Overrides:   se.Overrides,
		}
		var err error
		if se.Date != "" {
			if e.Date, err = core.ParseDate(se.Date); err != nil {
				return nil, err
			}
		}
		e.Category, _ = core.ParseCategory(se.Category)
		if e.CreatedAt, err = parseTime(se.CreatedAt); err != nil {
			return nil, err
		}
		if e.UpdatedAt, err = parseTime(se.UpdatedAt); err != nil {
			return nil, err
		}
		if se.ArchivedAt != "" {
			at, err := parseTime(se.ArchivedAt)
			if err != nil {
				return nil, err
			}
			e.ArchivedAt = &at
			e.ArchiveLabel = se.ArchiveLabel
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
