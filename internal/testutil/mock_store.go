package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hypernymai/beacon/internal/events"
)

// MockStore is a thread-safe in-memory implementation of store.DataStore
// for testing.
type MockStore struct {
	mu sync.Mutex

	Anchors       map[string]events.Anchor
	Contributions map[string]events.Contribution
	Forwarded     map[string]bool
	Ticker        []events.Event

	InsertAnchorErr  error
	ForwardedLoadErr error
	TickerLoadErr    error
	ReplaceTickerErr error

	InsertAnchorCalls  int
	ReplaceTickerCalls int
	AddForwardedCalls  int
}

func NewMockStore() *MockStore {
	return &MockStore{
		Anchors:       make(map[string]events.Anchor),
		Contributions: make(map[string]events.Contribution),
		Forwarded:     make(map[string]bool),
	}
}

func (m *MockStore) InsertAnchor(_ context.Context, a events.Anchor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertAnchorCalls++
	if m.InsertAnchorErr != nil {
		return m.InsertAnchorErr
	}
	m.Anchors[a.ID] = a
	return nil
}

func (m *MockStore) GetAnchor(_ context.Context, anchorID string) (events.Anchor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Anchors[anchorID]
	if !ok {
		return events.Anchor{}, fmt.Errorf("anchor %s not found", anchorID)
	}
	return a, nil
}

func (m *MockStore) ListAnchors(_ context.Context, limit int) ([]events.Anchor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.Anchor, 0, len(m.Anchors))
	for _, a := range m.Anchors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) DeleteAnchor(_ context.Context, anchorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Anchors[anchorID]; !ok {
		return fmt.Errorf("anchor %s not found", anchorID)
	}
	delete(m.Anchors, anchorID)
	return nil
}

func (m *MockStore) SetAnchorGold(_ context.Context, anchorID string, gold bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Anchors[anchorID]
	if !ok {
		return fmt.Errorf("anchor %s not found", anchorID)
	}
	a.Gold = gold
	m.Anchors[anchorID] = a
	return nil
}

func (m *MockStore) InsertContribution(_ context.Context, c events.Contribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Contributions[c.ID] = c
	return nil
}

func (m *MockStore) ListContributions(_ context.Context, limit int) ([]events.Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.Contribution, 0, len(m.Contributions))
	for _, c := range m.Contributions {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) DeleteContribution(_ context.Context, contributionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Contributions[contributionID]; !ok {
		return fmt.Errorf("contribution %s not found", contributionID)
	}
	delete(m.Contributions, contributionID)
	return nil
}

func (m *MockStore) AddForwardedKeys(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AddForwardedCalls++
	for _, k := range keys {
		m.Forwarded[k] = true
	}
	return nil
}

func (m *MockStore) LoadForwardedKeys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForwardedLoadErr != nil {
		return nil, m.ForwardedLoadErr
	}
	keys := make([]string, 0, len(m.Forwarded))
	for k := range m.Forwarded {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *MockStore) ReplaceTicker(_ context.Context, evts []events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReplaceTickerCalls++
	if m.ReplaceTickerErr != nil {
		return m.ReplaceTickerErr
	}
	m.Ticker = append([]events.Event(nil), evts...)
	return nil
}

func (m *MockStore) LoadTicker(_ context.Context, limit int) ([]events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TickerLoadErr != nil {
		return nil, m.TickerLoadErr
	}
	out := append([]events.Event(nil), m.Ticker...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) Close() {}

// SeedForwarded marks keys as already forwarded.
func (m *MockStore) SeedForwarded(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.Forwarded[k] = true
	}
}

// ForwardedCount returns the size of the forwarded set.
func (m *MockStore) ForwardedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Forwarded)
}
