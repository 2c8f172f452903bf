package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"kasbook/internal/core"
)

// timestampLayout sorts lexicographically in the same order as time.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

var (
	rawColumns = []string{
		"id", "entry_date", "sequence_key", "category", "debit", "credit",
		"memo", "note", "created_at", "updated_at", "archived_at", "archive_label",
	}
	derivedColumns  []string
	overrideColumns []string
	selectColumns   string
)

func init() {
	for _, f := range core.Fields() {
		derivedColumns = append(derivedColumns, f.Column())
		overrideColumns = append(overrideColumns, "override_"+f.Column())
	}
	all := append(append(append([]string{}, rawColumns...), derivedColumns...), overrideColumns...)
	selectColumns = strings.Join(all, ", ")
}

const orderBy = " ORDER BY sequence_key, created_at, id"

type sqlTx struct {
	q        queryer
	dialect  Dialect
	readOnly bool
}

func (t *sqlTx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if t.readOnly {
		return nil, ErrReadOnly
	}
	return t.q.ExecContext(ctx, t.dialect.rebind(query), args...)
}

func (t *sqlTx) query(ctx context.Context, query string, args ...any) ([]core.Entry, error) {
	rows, err := t.q.QueryContext(ctx, t.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []core.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (t *sqlTx) ActiveEntries(ctx context.Context) ([]core.Entry, error) {
	entries, err := t.query(ctx, "SELECT "+selectColumns+" FROM cash_book WHERE archived_at IS NULL"+orderBy)
	if err != nil {
		return nil, fmt.Errorf("list active entries: %w", err)
	}
	return entries, nil
}

func (t *sqlTx) Entry(ctx context.Context, id string) (core.Entry, error) {
	entries, err := t.query(ctx, "SELECT "+selectColumns+" FROM cash_book WHERE id = ?", id)
	if err != nil {
		return core.Entry{}, fmt.Errorf("get entry %s: %w", id, err)
	}
	if len(entries) == 0 {
		return core.Entry{}, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return entries[0], nil
}

func (t *sqlTx) MaxSequenceKey(ctx context.Context) (int64, error) {
	var max int64
	err := t.q.QueryRowContext(ctx, "SELECT COALESCE(MAX(sequence_key), 0) FROM cash_book").Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max sequence key: %w", err)
	}
	return max, nil
}

func (t *sqlTx) ArchivedEntries(ctx context.Context, label string) ([]core.Entry, error) {
	entries, err := t.query(ctx, "SELECT "+selectColumns+" FROM cash_book WHERE archive_label = ?"+orderBy, label)
	if err != nil {
		return nil, fmt.Errorf("list archive %s: %w", label, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("archive %s: %w", label, ErrNotFound)
	}
	return entries, nil
}

func (t *sqlTx) ListArchives(ctx context.Context) ([]core.ArchivePeriod, error) {
	const query = `SELECT archive_label, COUNT(*), MIN(entry_date), MAX(entry_date), MIN(archived_at)
	FROM cash_book
	WHERE archived_at IS NOT NULL
	GROUP BY archive_label
	ORDER BY MIN(archived_at), archive_label`

	rows, err := t.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	defer rows.Close()

	var periods []core.ArchivePeriod
	for rows.Next() {
		var (
			p                  core.ArchivePeriod
			first, last, since string
		)
		if err := rows.Scan(&p.Label, &p.Count, &first, &last, &since); err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		if p.FirstDate, err = core.ParseDate(first); err != nil {
			return nil, err
		}
		if p.LastDate, err = core.ParseDate(last); err != nil {
			return nil, err
		}
		if p.ArchivedAt, err = parseTimestamp(since); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func (t *sqlTx) Insert(ctx context.Context, e core.Entry) error {
	cols := append(append(append([]string{}, rawColumns...), derivedColumns...), overrideColumns...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := "INSERT INTO cash_book (" + strings.Join(cols, ", ") + ") VALUES (" + placeholders + ")"

	args := append(rawArgs(e), derivedArgs(e, true)...)
	args = append(args, overrideArgs(e)...)
	if _, err := t.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert entry %s: %w", e.ID, err)
	}
	return nil
}

func (t *sqlTx) Save(ctx context.Context, e core.Entry) error {
	var set []string
	for _, c := range rawColumns[1:] {
		set = append(set, c+" = ?")
	}
	for _, c := range derivedColumns {
		set = append(set, c+" = ?")
	}
	for _, c := range overrideColumns {
		set = append(set, c+" = ?")
	}
	query := "UPDATE cash_book SET " + strings.Join(set, ", ") + " WHERE id = ?"

	args := append(rawArgs(e)[1:], derivedArgs(e, false)...)
	args = append(args, overrideArgs(e)...)
	args = append(args, e.ID)

	res, err := t.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save entry %s: %w", e.ID, err)
	}
	return requireRows(res, fmt.Sprintf("entry %s", e.ID))
}

func (t *sqlTx) Delete(ctx context.Context, id string) error {
	res, err := t.exec(ctx, "DELETE FROM cash_book WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	return requireRows(res, fmt.Sprintf("entry %s", id))
}

func (t *sqlTx) DeleteActive(ctx context.Context) (int, error) {
	res, err := t.exec(ctx, "DELETE FROM cash_book WHERE archived_at IS NULL")
	if err != nil {
		return 0, fmt.Errorf("delete active entries: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *sqlTx) WriteDerived(ctx context.Context, entries []core.Entry) error {
	if t.readOnly {
		return ErrReadOnly
	}
	set := make([]string, len(derivedColumns))
	for i, c := range derivedColumns {
		set[i] = c + " = ?"
	}
	query := t.dialect.rebind("UPDATE cash_book SET " + strings.Join(set, ", ") + " WHERE id = ?")

	stmt, err := t.q.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare derived update: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		args := make([]any, 0, len(derivedColumns)+1)
		for _, v := range e.Derived {
			args = append(args, v)
		}
		args = append(args, e.ID)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("write derived values of %s: %w", e.ID, err)
		}
	}
	return nil
}

func (t *sqlTx) Archive(ctx context.Context, label string, from, to core.Date, at time.Time) (int, error) {
	var exists int
	err := t.q.QueryRowContext(ctx, t.dialect.rebind("SELECT COUNT(*) FROM cash_book WHERE archive_label = ?"), label).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("check archive %s: %w", label, err)
	}
	if exists > 0 {
		return 0, fmt.Errorf("archive %s: %w", label, ErrConflict)
	}

	res, err := t.exec(ctx, `UPDATE cash_book SET archived_at = ?, archive_label = ?
		WHERE archived_at IS NULL AND entry_date >= ? AND entry_date <= ?`,
		formatTimestamp(at), label, from.String(), to.String())
	if err != nil {
		return 0, fmt.Errorf("archive %s: %w", label, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *sqlTx) Restore(ctx context.Context, label string) (int, error) {
	res, err := t.exec(ctx, "UPDATE cash_book SET archived_at = NULL, archive_label = NULL WHERE archive_label = ?", label)
	if err != nil {
		return 0, fmt.Errorf("restore %s: %w", label, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("archive %s: %w", label, ErrNotFound)
	}
	return int(n), nil
}

func requireRows(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func rawArgs(e core.Entry) []any {
	var archivedAt, label any
	if e.ArchivedAt != nil {
		archivedAt = formatTimestamp(*e.ArchivedAt)
		label = e.ArchiveLabel
	}
	return []any{
		e.ID, e.Date.String(), e.SequenceKey, e.Category.Code(), e.Debit, e.Credit,
		e.Memo, e.Note, formatTimestamp(e.CreatedAt), formatTimestamp(e.UpdatedAt),
		archivedAt, label,
	}
}

// derivedArgs stores pinned values in place of computed ones. A fresh entry
// has no computed values yet, so its unpinned columns stay NULL.
func derivedArgs(e core.Entry, fresh bool) []any {
	args := make([]any, 0, core.FieldCount)
	for _, f := range core.Fields() {
		switch v, ok := e.Overrides.Pinned(f); {
		case ok:
			args = append(args, v)
		case fresh:
			args = append(args, nil)
		default:
			args = append(args, e.Derived[f])
		}
	}
	return args
}

func overrideArgs(e core.Entry) []any {
	args := make([]any, 0, core.FieldCount)
	for _, f := range core.Fields() {
		_, ok := e.Overrides.Pinned(f)
		args = append(args, ok)
	}
	return args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (core.Entry, error) {
	var (
		e                    core.Entry
		date, category       string
		createdAt, updatedAt string
		archivedAt, label    sql.NullString
		values               [core.FieldCount]sql.NullFloat64
		flags                [core.FieldCount]bool
	)
	dest := []any{
		&e.ID, &date, &e.SequenceKey, &category, &e.Debit, &e.Credit,
		&e.Memo, &e.Note, &createdAt, &updatedAt, &archivedAt, &label,
	}
	for i := range values {
		dest = append(dest, &values[i])
	}
	for i := range flags {
		dest = append(dest, &flags[i])
	}
	if err := row.Scan(dest...); err != nil {
		return core.Entry{}, fmt.Errorf("scan entry: %w", err)
	}

	var err error
	if e.Date, err = core.ParseDate(date); err != nil {
		return core.Entry{}, &core.EntryError{ID: e.ID, SequenceKey: e.SequenceKey, Err: core.ErrMissingDate}
	}
	// Unknown codes are left as the zero category for validation to report.
	e.Category, _ = core.ParseCategory(category)
	if e.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return core.Entry{}, err
	}
	if e.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return core.Entry{}, err
	}
	if archivedAt.Valid {
		at, err := parseTimestamp(archivedAt.String)
		if err != nil {
			return core.Entry{}, err
		}
		e.ArchivedAt = &at
		e.ArchiveLabel = label.String
	}

	for _, f := range core.Fields() {
		v := values[f]
		e.Derived[f] = v.Float64
		if !flags[f] {
			continue
		}
		if !v.Valid {
			return core.Entry{}, &core.EntryError{
				ID:          e.ID,
				SequenceKey: e.SequenceKey,
				Err:         fmt.Errorf("%s: %w", f, core.ErrOverrideWithoutValue),
			}
		}
		if e.Overrides == nil {
			e.Overrides = core.Overrides{}
		}
		e.Overrides[f] = v.Float64
	}
	return e, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		if t, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

var _ Tx = (*sqlTx)(nil)
