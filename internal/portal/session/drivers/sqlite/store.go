// Package sqlite persists the session in a local SQLite database, the
// durable-store equivalent of the web client's localStorage.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/campuskit/portal/internal/portal/session"
	_ "modernc.org/sqlite"
)

const (
	keyToken = "token"
	keyUser  = "user"
)

type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the session database at the given DSN. Use
// ":memory:" in tests.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open session store: %w", err)
	}

	// The store is read by bootstrap and written by login flows that may
	// overlap; a single connection serializes access and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Read returns the persisted session record.
func (s *Store) Read(ctx context.Context) (session.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM session_values WHERE key IN (?, ?)`,
		keyToken, keyUser,
	)
	if err != nil {
		return session.Record{}, fmt.Errorf("sqlite: failed to read session: %w", err)
	}
	defer rows.Close()

	var rec session.Record
	found := false
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return session.Record{}, fmt.Errorf("sqlite: failed to scan session row: %w", err)
		}
		found = true
		switch key {
		case keyToken:
			rec.Token = value
		case keyUser:
			rec.User = value
		}
	}
	if err := rows.Err(); err != nil {
		return session.Record{}, fmt.Errorf("sqlite: failed to read session: %w", err)
	}
	if !found {
		return session.Record{}, session.ErrNotFound
	}
	return rec, nil
}

// Write replaces the persisted session. Both keys land in one transaction so
// a crash mid-write can never leave a token without its identity.
func (s *Store) Write(ctx context.Context, rec session.Record) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339)
		for key, value := range map[string]string{
			keyToken: rec.Token,
			keyUser:  rec.User,
		} {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO session_values (key, value, updated_at) VALUES (?, ?, ?)
				 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				key, value, now,
			); err != nil {
				return fmt.Errorf("sqlite: failed to write %s: %w", key, err)
			}
		}
		return nil
	})
}

// Clear removes both keys in one transaction. Safe to call repeatedly.
func (s *Store) Clear(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM session_values WHERE key IN (?, ?)`,
			keyToken, keyUser,
		); err != nil {
			return fmt.Errorf("sqlite: failed to clear session: %w", err)
		}
		return nil
	})
}

// withTx executes fn within a transaction, automatically handling
// commit/rollback.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}

	// Rollback after a successful commit is a no-op.
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("sqlite: failed to commit: %w", err)
	}
	return nil
}
