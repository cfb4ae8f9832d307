// Package repo is the relational metadata store. Production runs on
// Postgres, tests and small deployments on SQLite; every query sticks to
// the shared dialect and binds through sqlx.Rebind.
package repo

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/yaoapp/kun/log"

	"github.com/yaoapp/duan/errs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Repo exposes the documents, parsers, chunkers, collections and
// embeddings tables.
type Repo struct {
	db *sqlx.DB
}

// Open connects to the database at url and applies pending migrations.
// URLs with a postgres scheme use lib/pq, anything else is treated as a
// SQLite path.
func Open(ctx context.Context, url string) (*Repo, error) {
	driver, dsn := "sqlite3", strings.TrimPrefix(url, "sqlite://")
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		driver, dsn = "postgres", url
	}

	if driver == "sqlite3" && !strings.Contains(dsn, "_fk=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_fk=1"
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errs.Wrap(errs.Sqlx, err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	return New(ctx, db)
}

// New wraps an open connection and applies pending migrations.
func New(ctx context.Context, db *sqlx.DB) (*Repo, error) {
	r := &Repo{db: db}
	if err := r.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("Connected to %s", db.DriverName())
	return r, nil
}

// Close releases the underlying pool.
func (r *Repo) Close() error {
	return r.db.Close()
}

// Migrate applies the embedded migrations in filename order, recording
// each applied version in the _migrations table.
func (r *Repo) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return errs.Wrap(errs.Sqlx, err)
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return errs.Wrap(errs.IO, err)
	}

	for _, entry := range entries {
		version := entry.Name()

		var applied int
		err := r.db.GetContext(ctx, &applied, r.db.Rebind(`SELECT COUNT(*) FROM _migrations WHERE version = ?`), version)
		if err != nil {
			return errs.Wrap(errs.Sqlx, err)
		}
		if applied > 0 {
			continue
		}

		script, err := migrationFS.ReadFile("migrations/" + version)
		if err != nil {
			return errs.Wrap(errs.IO, err)
		}

		err = r.Atomic(ctx, func(tx *Tx) error {
			if _, err := tx.tx.ExecContext(ctx, string(script)); err != nil {
				return errs.Wrap(errs.Sqlx, err)
			}
			if _, err := tx.tx.ExecContext(ctx, tx.tx.Rebind(`INSERT INTO _migrations (version) VALUES (?)`), version); err != nil {
				return errs.Wrap(errs.Sqlx, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		log.Info("Applied migration %s", version)
	}

	return nil
}

// Tx is an in-flight transaction. Repo methods accepting a *Tx run on
// the pool when it is nil.
type Tx struct {
	tx *sqlx.Tx
}

// Tx begins a transaction.
func (r *Repo) Tx(ctx context.Context) (*Tx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Sqlx, err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return errs.Wrap(errs.Sqlx, err)
	}
	return nil
}

// Rollback aborts the transaction. Rolling back after a commit is a
// no-op.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return errs.Wrap(errs.Sqlx, err)
	}
	return nil
}

// Atomic runs fn inside a transaction, committing on success and rolling
// back on error.
func (r *Repo) Atomic(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := r.Tx(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rb := tx.Rollback(); rb != nil {
			log.Error("Transaction rollback: %s", rb.Error())
		}
		return err
	}
	return tx.Commit()
}

// ext picks the transaction when one is given, the pool otherwise.
func (r *Repo) ext(tx *Tx) sqlx.ExtContext {
	if tx != nil {
		return tx.tx
	}
	return r.db
}

// wrap converts driver errors to kinded errors, mapping unique constraint
// violations to AlreadyExists so callers can react to conflicts.
func wrap(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return errs.New(errs.AlreadyExists, "%s", pqErr.Message)
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) &&
		(liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return errs.New(errs.AlreadyExists, "%s", liteErr.Error())
	}
	return errs.Wrap(errs.Sqlx, err)
}
