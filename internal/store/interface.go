package store

import (
	"context"

	"github.com/hypernymai/beacon/internal/events"
)

// DataStore is the interface consumed by the poller, forwarder, and API.
// The concrete implementation is *Store (pgx-backed).
type DataStore interface {
	InsertAnchor(ctx context.Context, a events.Anchor) error
	GetAnchor(ctx context.Context, anchorID string) (events.Anchor, error)
	ListAnchors(ctx context.Context, limit int) ([]events.Anchor, error)
	DeleteAnchor(ctx context.Context, anchorID string) error
	SetAnchorGold(ctx context.Context, anchorID string, gold bool) error

	InsertContribution(ctx context.Context, c events.Contribution) error
	ListContributions(ctx context.Context, limit int) ([]events.Contribution, error)
	DeleteContribution(ctx context.Context, contributionID string) error

	AddForwardedKeys(ctx context.Context, keys []string) error
	LoadForwardedKeys(ctx context.Context) ([]string, error)

	ReplaceTicker(ctx context.Context, evts []events.Event) error
	LoadTicker(ctx context.Context, limit int) ([]events.Event, error)

	Close()
}
