// Package project persists a view's objects in a DuckDB project file, so a sync
// server can be restarted without losing what its clients pushed.
package project

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog"
)

// Store wraps a DuckDB connection holding one project.
type Store struct {
	db       *sql.DB
	path     string
	readOnly bool
	logger   zerolog.Logger
}

// Open opens or creates the project database at path. Parent directories are
// created as needed. An empty path opens an in-memory database.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	return open(path, logger, false)
}

// OpenReadOnly opens an existing project without taking the write lock, so it can
// be inspected while a server holds it.
func OpenReadOnly(path string, logger zerolog.Logger) (*Store, error) {
	return open(path, logger, true)
}

func open(path string, logger zerolog.Logger, readOnly bool) (*Store, error) {
	if path != "" && !readOnly {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create project directory: %w", err)
		}
	}

	connStr := path
	if readOnly {
		connStr = path + "?access_mode=READ_ONLY"
	}

	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open project database: %w", err)
	}

	// An in-memory database only exists on its own connection.
	if path == "" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping project database: %w", err)
	}

	s := &Store{
		db:       db,
		path:     path,
		readOnly: readOnly,
		logger:   logger.With().Str("component", "project").Logger(),
	}

	if !readOnly {
		if err := s.initSchema(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	mode := "read-write"
	if readOnly {
		mode = "read-only"
	}
	s.logger.Debug().Str("path", path).Str("mode", mode).Msg("Project opened")

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close project database: %w", err)
	}
	s.logger.Debug().Str("path", s.path).Msg("Project closed")
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Checkpoint flushes the write-ahead log into the database file.
func (s *Store) Checkpoint(ctx context.Context) error {
	if s.readOnly {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("failed to checkpoint project: %w", err)
	}
	return nil
}
