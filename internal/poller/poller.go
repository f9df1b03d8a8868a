// Package poller drives the two periodic loops: session-list/health
// refresh and per-session event polling. It owns all polling state —
// ticker, dedup sets, per-session high-water timestamps — behind one
// mutex; nothing here is a process-wide singleton.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hypernymai/beacon/internal/autofork"
	"github.com/hypernymai/beacon/internal/detect"
	"github.com/hypernymai/beacon/internal/events"
	"github.com/hypernymai/beacon/internal/store"
)

// SessionSource is the slice of the AutoFork client the poller needs.
type SessionSource interface {
	Health(ctx context.Context) error
	ListSessions(ctx context.Context, limit int) ([]autofork.SessionSummary, error)
	SessionActivity(ctx context.Context, sessionID string, since time.Time) (*autofork.Activity, error)
}

// EventForwarder submits events for a session to the experiment store.
type EventForwarder interface {
	Forward(ctx context.Context, sessionID string, evts []events.Event, gold bool) (*events.Anchor, error)
}

type Config struct {
	PollInterval    time.Duration
	HealthInterval  time.Duration
	FetchTimeout    time.Duration
	WatchLimit      int
	SessionListSize int
	TickerMax       int
}

type Poller struct {
	api     SessionSource
	store   store.DataStore
	fwd     EventForwarder
	cfg     Config
	publish func(e events.Event)

	mu              sync.Mutex
	sessions        []autofork.SessionSummary
	online          bool
	ticker          []events.Event
	seen            map[string]struct{}
	lastActivity    map[string]time.Time
	forwarded       map[string]struct{}
	forwardedLoaded bool

	done chan struct{}
}

// autoForwardKinds is the allow-list for automatic forwarding.
var autoForwardKinds = map[string]bool{
	events.KindCommit:       true,
	events.KindSessionStart: true,
	events.KindCheckpoint:   true,
	events.KindIssue:        true,
}

func New(api SessionSource, st store.DataStore, fwd EventForwarder, cfg Config) *Poller {
	return &Poller{
		api:          api,
		store:        st,
		fwd:          fwd,
		cfg:          cfg,
		seen:         make(map[string]struct{}),
		lastActivity: make(map[string]time.Time),
		forwarded:    make(map[string]struct{}),
		done:         make(chan struct{}),
	}
}

// SetPublisher sets the hook used to announce admitted ticker events.
func (p *Poller) SetPublisher(fn func(e events.Event)) {
	p.publish = fn
}

// Start loads persisted state and launches both poll loops. The one-time
// forwarded-set load must finish before the auto-forward gate opens, so a
// restart never re-forwards everything detected in the first cycles.
func (p *Poller) Start(ctx context.Context) {
	p.loadState(ctx)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		p.refreshSessions(ctx)
		ticker := time.NewTicker(p.cfg.HealthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.refreshSessions(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.pollCycle(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		// Final persist on shutdown.
		p.persistTicker(context.Background())
		close(p.done)
	}()
}

// Wait blocks until both loops have stopped and the final persist is done.
func (p *Poller) Wait() {
	<-p.done
}

// Online reports the connection-status flag.
func (p *Poller) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// Ticker returns a copy of the current ticker, most-recent-first.
func (p *Poller) Ticker() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.ticker...)
}

// Sessions returns the most recently fetched session list.
func (p *Poller) Sessions() []autofork.SessionSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]autofork.SessionSummary(nil), p.sessions...)
}

// loadState restores the forwarded set and saved ticker. Failures degrade
// to empty state: fewer dedup hits, never a crash.
func (p *Poller) loadState(ctx context.Context) {
	keys, err := p.store.LoadForwardedKeys(ctx)
	if err != nil {
		slog.Warn("failed to load forwarded set, starting empty", "error", err)
	}

	saved, err := p.store.LoadTicker(ctx, p.cfg.TickerMax)
	if err != nil {
		slog.Warn("failed to load saved ticker, starting empty", "error", err)
	}

	p.mu.Lock()
	for _, k := range keys {
		p.forwarded[k] = struct{}{}
	}
	p.ticker = saved
	for _, e := range saved {
		p.seen[e.TickerKey()] = struct{}{}
	}
	p.forwardedLoaded = true
	p.mu.Unlock()

	slog.Info("poller state loaded", "forwarded_keys", len(keys), "ticker_events", len(saved))
}

// refreshSessions polls health and the session list, flipping the online
// flag on failure.
func (p *Poller) refreshSessions(ctx context.Context) {
	fctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	if err := p.api.Health(fctx); err != nil {
		p.setOnline(false)
		slog.Warn("autofork unreachable", "error", err)
		return
	}

	sessions, err := p.api.ListSessions(fctx, p.cfg.SessionListSize)
	if err != nil {
		p.setOnline(false)
		slog.Warn("session list fetch failed", "error", err)
		return
	}

	p.mu.Lock()
	p.sessions = sessions
	p.online = true
	p.mu.Unlock()
}

func (p *Poller) setOnline(v bool) {
	p.mu.Lock()
	p.online = v
	p.mu.Unlock()
}

// pollCycle fetches recent activity for the watched sessions, runs the
// detector, and merges results. A failed fetch skips that session only.
func (p *Poller) pollCycle(ctx context.Context) {
	p.mu.Lock()
	watched := p.sessions
	if len(watched) > p.cfg.WatchLimit {
		watched = watched[:p.cfg.WatchLimit]
	}
	watched = append([]autofork.SessionSummary(nil), watched...)
	p.mu.Unlock()

	for _, s := range watched {
		p.mu.Lock()
		since := p.lastActivity[s.ID]
		p.mu.Unlock()

		fctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
		act, err := p.api.SessionActivity(fctx, s.ID, since)
		cancel()
		if err != nil {
			slog.Warn("activity fetch failed, skipping session", "session_id", s.ID, "error", err)
			continue
		}

		if !act.LatestAt.IsZero() && act.LatestAt.After(since) {
			p.mu.Lock()
			p.lastActivity[s.ID] = act.LatestAt
			p.mu.Unlock()
		}

		detected := detect.Detect(act.UserMessages, act.AssistantMessages, act.ToolOutputs)
		if len(detected) == 0 {
			continue
		}
		for i := range detected {
			detected[i].SessionID = s.ID
			detected[i].SessionLabel = s.Label()
		}

		p.Merge(ctx, detected)
	}
}

// Merge deduplicates evts against the ticker, admits the new ones
// most-recent-first under the cap, persists, announces, and runs the
// auto-forward gate. Exported so the manual detect endpoint shares the
// exact same admission path.
func (p *Poller) Merge(ctx context.Context, evts []events.Event) []events.Event {
	var admitted []events.Event

	p.mu.Lock()
	for _, e := range evts {
		key := e.TickerKey()
		if _, dup := p.seen[key]; dup {
			continue
		}
		p.seen[key] = struct{}{}
		admitted = append(admitted, e)
	}
	if len(admitted) > 0 {
		p.ticker = append(append([]events.Event(nil), admitted...), p.ticker...)
		if len(p.ticker) > p.cfg.TickerMax {
			p.ticker = p.ticker[:p.cfg.TickerMax]
		}
	}
	p.mu.Unlock()

	if len(admitted) == 0 {
		return nil
	}

	p.persistTicker(ctx)

	if p.publish != nil {
		for _, e := range admitted {
			p.publish(e)
		}
	}

	p.autoForward(ctx, admitted)
	return admitted
}

func (p *Poller) persistTicker(ctx context.Context) {
	p.mu.Lock()
	snapshot := append([]events.Event(nil), p.ticker...)
	p.mu.Unlock()

	if err := p.store.ReplaceTicker(ctx, snapshot); err != nil {
		slog.Warn("failed to persist ticker", "error", err)
	}
}

// autoForward submits each admitted event that passes the gate: allow-listed
// kind, forwarded set loaded, key not already forwarded. A failed forward is
// logged and not retried; the event stays in the ticker for manual retry.
func (p *Poller) autoForward(ctx context.Context, admitted []events.Event) {
	for _, e := range admitted {
		if !autoForwardKinds[e.Kind] {
			continue
		}

		key := e.ForwardKey()
		p.mu.Lock()
		loaded := p.forwardedLoaded
		_, already := p.forwarded[key]
		p.mu.Unlock()
		if !loaded || already {
			continue
		}

		if _, err := p.fwd.Forward(ctx, e.SessionID, []events.Event{e}, false); err != nil {
			slog.Warn("auto-forward failed", "session_id", e.SessionID, "kind", e.Kind, "error", err)
			continue
		}

		p.mu.Lock()
		p.forwarded[key] = struct{}{}
		p.mu.Unlock()
	}
}

// MarkForwarded records keys after a manual forward so the gate stays in
// sync with the durable set the forwarder wrote.
func (p *Poller) MarkForwarded(keys ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		p.forwarded[k] = struct{}{}
	}
}
