package project

import (
	"fmt"

	binerrors "github.com/binal-re/binal/internal/errors"
)

// initSchema creates the project tables.
func (s *Store) initSchema() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer binerrors.DeferRollback(s.logger, tx)

	for _, ddl := range schemaDDL {
		if _, err := tx.Exec(ddl); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

var schemaDDL = []string{
	// seq keeps the order objects were first stored in, so a load replays them
	// dependencies first.
	`CREATE SEQUENCE IF NOT EXISTS objects_seq START 1`,

	`CREATE TABLE IF NOT EXISTS objects (
		name TEXT PRIMARY KEY,
		seq BIGINT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		digest TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}
