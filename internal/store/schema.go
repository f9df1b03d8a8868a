package store

import (
	"context"
	"fmt"
)

// ddl is the beacon schema. Statements are idempotent so Migrate can run on
// every startup.
var ddl = []string{
	`CREATE TABLE IF NOT EXISTS autofork_anchors (
		anchor_id     TEXT PRIMARY KEY,
		session_id    TEXT NOT NULL,
		status        TEXT NOT NULL,
		tokens        INTEGER NOT NULL DEFAULT 0,
		summary       TEXT NOT NULL,
		resume_prompt TEXT NOT NULL DEFAULT '',
		gold          BOOLEAN NOT NULL DEFAULT false,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS autofork_contributions (
		contribution_id TEXT PRIMARY KEY,
		anchor_id       TEXT NOT NULL,
		session_id      TEXT NOT NULL,
		kind            TEXT NOT NULL,
		details         TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS autofork_forwarded (
		forward_key TEXT PRIMARY KEY,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS autofork_ticker (
		position      INTEGER NOT NULL,
		kind          TEXT NOT NULL,
		timestamp     TIMESTAMPTZ NOT NULL,
		details       TEXT NOT NULL,
		confidence    DOUBLE PRECISION NOT NULL,
		session_id    TEXT NOT NULL DEFAULT '',
		session_label TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_anchors_created ON autofork_anchors (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_contributions_created ON autofork_contributions (created_at DESC)`,
}

// Migrate applies the schema.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
