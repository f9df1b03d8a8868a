package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hypernymai/beacon/internal/events"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying pool for migrations.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// InsertAnchor persists a newly forwarded anchor.
func (s *Store) InsertAnchor(ctx context.Context, a events.Anchor) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO autofork_anchors (anchor_id, session_id, status, tokens, summary, resume_prompt, gold, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.SessionID, a.Status, a.Tokens, a.Summary, a.ResumePrompt, a.Gold, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert anchor: %w", err)
	}
	return nil
}

// GetAnchor returns a single anchor by ID.
func (s *Store) GetAnchor(ctx context.Context, anchorID string) (events.Anchor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT anchor_id, session_id, status, tokens, summary, resume_prompt, gold, created_at
		FROM autofork_anchors WHERE anchor_id = $1
	`, anchorID)

	var a events.Anchor
	if err := row.Scan(&a.ID, &a.SessionID, &a.Status, &a.Tokens, &a.Summary, &a.ResumePrompt, &a.Gold, &a.CreatedAt); err != nil {
		return events.Anchor{}, fmt.Errorf("get anchor %s: %w", anchorID, err)
	}
	return a, nil
}

// ListAnchors returns the most recent anchors, newest first.
func (s *Store) ListAnchors(ctx context.Context, limit int) ([]events.Anchor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT anchor_id, session_id, status, tokens, summary, resume_prompt, gold, created_at
		FROM autofork_anchors ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list anchors: %w", err)
	}
	defer rows.Close()

	var out []events.Anchor
	for rows.Next() {
		var a events.Anchor
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Status, &a.Tokens, &a.Summary, &a.ResumePrompt, &a.Gold, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAnchor removes an anchor. Anchors are never garbage-collected;
// this is the only deletion path.
func (s *Store) DeleteAnchor(ctx context.Context, anchorID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM autofork_anchors WHERE anchor_id = $1`, anchorID)
	if err != nil {
		return fmt.Errorf("delete anchor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetAnchorGold flips the gold flag, the one mutable anchor field.
func (s *Store) SetAnchorGold(ctx context.Context, anchorID string, gold bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE autofork_anchors SET gold = $2 WHERE anchor_id = $1`, anchorID, gold)
	if err != nil {
		return fmt.Errorf("set anchor gold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// InsertContribution records a forwarded event for display.
func (s *Store) InsertContribution(ctx context.Context, c events.Contribution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO autofork_contributions (contribution_id, anchor_id, session_id, kind, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.AnchorID, c.SessionID, c.Kind, c.Details, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert contribution: %w", err)
	}
	return nil
}

// ListContributions returns recent contributions, newest first.
func (s *Store) ListContributions(ctx context.Context, limit int) ([]events.Contribution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT contribution_id, anchor_id, session_id, kind, details, created_at
		FROM autofork_contributions ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var out []events.Contribution
	for rows.Next() {
		var c events.Contribution
		if err := rows.Scan(&c.ID, &c.AnchorID, &c.SessionID, &c.Kind, &c.Details, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteContribution dismisses a contribution.
func (s *Store) DeleteContribution(ctx context.Context, contributionID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM autofork_contributions WHERE contribution_id = $1`, contributionID)
	if err != nil {
		return fmt.Errorf("delete contribution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// AddForwardedKeys records keys in the durable forwarded set. Duplicate
// keys are ignored so re-recording after a partial failure is harmless.
func (s *Store) AddForwardedKeys(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO autofork_forwarded (forward_key) VALUES ($1)
			ON CONFLICT (forward_key) DO NOTHING
		`, k); err != nil {
			return fmt.Errorf("add forwarded key: %w", err)
		}
	}
	return nil
}

// LoadForwardedKeys returns the full forwarded set.
func (s *Store) LoadForwardedKeys(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT forward_key FROM autofork_forwarded`)
	if err != nil {
		return nil, fmt.Errorf("load forwarded keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ReplaceTicker overwrites the persisted ticker with the current in-memory
// one. The ticker is small (capped) so a full replace per merge is cheap.
func (s *Store) ReplaceTicker(ctx context.Context, evts []events.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ticker tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM autofork_ticker`); err != nil {
		return fmt.Errorf("clear ticker: %w", err)
	}

	if len(evts) > 0 {
		rows := make([][]any, len(evts))
		for i, e := range evts {
			rows[i] = []any{i, e.Kind, e.Timestamp, e.Details, e.Confidence, e.SessionID, e.SessionLabel}
		}
		if _, err := tx.CopyFrom(
			ctx,
			pgx.Identifier{"autofork_ticker"},
			[]string{"position", "kind", "timestamp", "details", "confidence", "session_id", "session_label"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copy ticker: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ticker tx: %w", err)
	}

	slog.Debug("ticker persisted", "count", len(evts))
	return nil
}

// LoadTicker returns the persisted ticker in display order.
func (s *Store) LoadTicker(ctx context.Context, limit int) ([]events.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT kind, timestamp, details, confidence, session_id, session_label
		FROM autofork_ticker ORDER BY position LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load ticker: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var e events.Event
		if err := rows.Scan(&e.Kind, &e.Timestamp, &e.Details, &e.Confidence, &e.SessionID, &e.SessionLabel); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
