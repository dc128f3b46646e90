package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	binerrors "github.com/binal-re/binal/internal/errors"
	"github.com/binal-re/binal/internal/object"
	"github.com/binal-re/binal/internal/retry"
)

// Entry describes one stored object without its payload.
type Entry struct {
	Name      string
	Kind      object.Kind
	Digest    uint64
	UpdatedAt time.Time
}

var writeRetry = retry.Config{
	MaxRetries:     10,
	InitialBackoff: 10 * time.Millisecond,
	MaxBackoff:     500 * time.Millisecond,
	Jitter:         0.1,
}

const upsertObject = `
	INSERT INTO objects (name, seq, kind, payload, digest, updated_at)
	VALUES (?, nextval('objects_seq'), ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT (name)
	DO UPDATE SET
		kind = EXCLUDED.kind,
		payload = EXCLUDED.payload,
		digest = EXCLUDED.digest,
		updated_at = now()
`

// Put inserts or replaces every object of objs.
func (s *Store) Put(ctx context.Context, objs *object.Objects) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		return putAll(ctx, tx, objs)
	})
}

// Replace makes objs the entire content of the project.
func (s *Store) Replace(ctx context.Context, objs *object.Objects) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		keep := make(map[string]struct{}, objs.Len())
		for _, name := range objs.Names() {
			keep[name] = struct{}{}
		}

		existing, err := names(ctx, tx)
		if err != nil {
			return err
		}
		for _, name := range existing {
			if _, ok := keep[name]; ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM objects WHERE name = ?", name); err != nil {
				return fmt.Errorf("failed to delete object %q: %w", name, err)
			}
		}

		return putAll(ctx, tx, objs)
	})
}

// Delete removes name. Deleting an unknown name is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM objects WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete object %q: %w", name, err)
	}
	return nil
}

// Load returns every stored object in the order it was first stored.
func (s *Store) Load(ctx context.Context) (*object.Objects, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, payload FROM objects ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to query objects: %w", err)
	}
	defer binerrors.DeferClose(s.logger, rows, "failed to close rows")

	out := object.NewObjects()
	for rows.Next() {
		var name, payload string
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan object: %w", err)
		}

		var o object.Object
		if err := json.Unmarshal([]byte(payload), &o); err != nil {
			return nil, fmt.Errorf("stored object %q: %w", name, err)
		}
		o.Name = name
		out.Add(o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate objects: %w", err)
	}
	return out, nil
}

// List returns the stored entries, optionally restricted to one kind, ordered by
// name.
func (s *Store) List(ctx context.Context, kind object.Kind) ([]Entry, error) {
	query := "SELECT name, kind, digest, updated_at FROM objects"
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query objects: %w", err)
	}
	defer binerrors.DeferClose(s.logger, rows, "failed to close rows")

	var entries []Entry
	for rows.Next() {
		var e Entry
		var kind, digest string
		if err := rows.Scan(&e.Name, &kind, &digest, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan object: %w", err)
		}
		e.Kind = object.Kind(kind)
		e.Digest, _ = strconv.ParseUint(digest, 16, 64)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate objects: %w", err)
	}
	return entries, nil
}

// Count returns the number of stored objects.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM objects").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count objects: %w", err)
	}
	return n, nil
}

func (s *Store) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retry.Do(ctx, writeRetry, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer binerrors.DeferRollback(s.logger, tx)

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}
		return nil
	}, isTransactionConflict)
}

func putAll(ctx context.Context, tx *sql.Tx, objs *object.Objects) error {
	stmt, err := tx.PrepareContext(ctx, upsertObject)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, o := range objs.Slice() {
		payload, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to encode object %q: %w", o.Name, err)
		}
		digest, err := object.Digest(o)
		if err != nil {
			return fmt.Errorf("failed to digest object %q: %w", o.Name, err)
		}
		if _, err := stmt.ExecContext(ctx, o.Name, string(o.Kind()), string(payload), formatDigest(digest)); err != nil {
			return fmt.Errorf("failed to store object %q: %w", o.Name, err)
		}
	}
	return nil
}

func names(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT name FROM objects")
	if err != nil {
		return nil, fmt.Errorf("failed to query names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func formatDigest(d uint64) string {
	return fmt.Sprintf("%016x", d)
}

// isTransactionConflict checks if an error is a DuckDB transaction conflict.
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Conflict on update") ||
		strings.Contains(msg, "conflict") ||
		strings.Contains(msg, "serialization") ||
		strings.Contains(msg, "TransactionContext Error")
}
