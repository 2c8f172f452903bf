package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"

	"kasbook/internal/log"
)

// SQLRepository is the cash book stored in a SQL database. Writers are
// serialized in-process and by a database lock.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	writeMu sync.Mutex
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// migrates it.
func NewSQLiteRepository(dbPath string) (*SQLRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(SQLite, SQLiteDSN(dbPath))
}

// NewPostgresRepository connects to the database at dsn and migrates it.
func NewPostgresRepository(dsn string) (*SQLRepository, error) {
	return open(Postgres, dsn)
}

func open(d Dialect, dsn string) (*SQLRepository, error) {
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(d, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("Cash book database ready", log.FieldComponent, log.ComponentStorage, log.FieldBackend, string(d))
	return &SQLRepository{db: db, dialect: d}, nil
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Update runs fn inside one write transaction and commits only if fn
// succeeds.
func (r *SQLRepository) Update(ctx context.Context, fn func(Tx) error) (err error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := dbTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = multierr.Append(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = r.dialect.lock(ctx, dbTx); err != nil {
		return err
	}
	if err = fn(&sqlTx{q: dbTx, dialect: r.dialect}); err != nil {
		return err
	}
	if err = dbTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// View runs fn against the database without a write lock.
func (r *SQLRepository) View(ctx context.Context, fn func(Tx) error) error {
	return fn(&sqlTx{q: r.db, dialect: r.dialect, readOnly: true})
}

var _ Store = (*SQLRepository)(nil)
