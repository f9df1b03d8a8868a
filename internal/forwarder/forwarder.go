// Package forwarder turns detected events into anchors and submits them to
// the experiment store. A failed forward is logged and dropped; the event
// stays in the ticker and can be retried manually.
package forwarder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hypernymai/beacon/internal/autofork"
	"github.com/hypernymai/beacon/internal/events"
	"github.com/hypernymai/beacon/internal/store"
	"github.com/hypernymai/beacon/internal/weave"

	"github.com/google/uuid"
)

// SessionAPI is the slice of the AutoFork client the forwarder needs.
type SessionAPI interface {
	GetSession(ctx context.Context, sessionID string) (*autofork.SessionDetail, error)
	GetAnchorContext(ctx context.Context, sessionID string) (*autofork.AnchorContext, error)
}

// Notifier posts a transient user-facing notice after a forward. Optional.
type Notifier interface {
	PostForwardNotice(ctx context.Context, a events.Anchor, evts []events.Event) error
}

type Forwarder struct {
	api        SessionAPI
	store      store.DataStore
	weave      weave.Client
	notifier   Notifier
	contribMax int

	mu            sync.Mutex
	contributions []events.Contribution
}

// New creates a Forwarder. notifier may be nil.
func New(api SessionAPI, st store.DataStore, wv weave.Client, notifier Notifier, contribMax int) *Forwarder {
	return &Forwarder{
		api:        api,
		store:      st,
		weave:      wv,
		notifier:   notifier,
		contribMax: contribMax,
	}
}

// Forward fetches session detail and the anchor snapshot, composes an
// Anchor, and submits it. Any fetch or submit failure aborts this attempt;
// nothing is retried.
func (f *Forwarder) Forward(ctx context.Context, sessionID string, evts []events.Event, gold bool) (*events.Anchor, error) {
	if len(evts) == 0 {
		return nil, fmt.Errorf("forward: no events for session %s", sessionID)
	}

	detail, err := f.api.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch session %s: %w", sessionID, err)
	}
	anchorCtx, err := f.api.GetAnchorContext(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch anchor context %s: %w", sessionID, err)
	}

	summary := composeSummary(detail, anchorCtx, evts)
	anchor := events.Anchor{
		ID:           uuid.New().String(),
		CreatedAt:    time.Now().UTC(),
		SessionID:    sessionID,
		Tokens:       tokenEstimate(detail, summary),
		Status:       statusFor(detail, evts),
		Summary:      summary,
		ResumePrompt: composeResumePrompt(anchorCtx),
		Gold:         gold,
	}

	primary := primaryEvent(evts)
	classifyText := summary + " " + strings.Join(anchorCtx.RecentUser, " ") + " " + strings.Join(anchorCtx.RecentAssistant, " ")
	pattern := weave.Pattern{
		Input:       inputText(detail, anchorCtx),
		Output:      outputText(evts, summary),
		SuccessType: primary.Kind,
		GoalType:    DetectGoalType(classifyText),
		TechStack:   DetectTechStack(classifyText),
		Tokens:      anchor.Tokens,
		IsGold:      gold,
		SessionID:   sessionID,
	}

	if err := f.weave.SubmitPattern(ctx, pattern); err != nil {
		return nil, fmt.Errorf("submit pattern: %w", err)
	}

	// The pattern is in the store; local bookkeeping failures from here on
	// are logged, not surfaced.
	if err := f.store.InsertAnchor(ctx, anchor); err != nil {
		slog.Warn("forward: failed to persist anchor", "anchor_id", anchor.ID, "error", err)
	}

	keys := make([]string, len(evts))
	for i, e := range evts {
		keys[i] = e.ForwardKey()
	}
	if err := f.store.AddForwardedKeys(ctx, keys); err != nil {
		slog.Warn("forward: failed to persist forwarded keys", "error", err)
	}

	f.recordContribution(ctx, anchor, primary)

	if f.notifier != nil {
		if err := f.notifier.PostForwardNotice(ctx, anchor, evts); err != nil {
			slog.Warn("forward: notice failed", "anchor_id", anchor.ID, "error", err)
		}
	}

	slog.Info("anchor forwarded",
		"anchor_id", anchor.ID,
		"session_id", sessionID,
		"status", anchor.Status,
		"success_type", primary.Kind,
		"gold", gold,
	)
	return &anchor, nil
}

// Contributions returns the recent contribution list, newest first.
func (f *Forwarder) Contributions() []events.Contribution {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.Contribution(nil), f.contributions...)
}

// Dismiss removes a contribution by explicit user action.
func (f *Forwarder) Dismiss(ctx context.Context, contributionID string) error {
	f.mu.Lock()
	kept := f.contributions[:0]
	found := false
	for _, c := range f.contributions {
		if c.ID == contributionID {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	f.contributions = kept
	f.mu.Unlock()

	if err := f.store.DeleteContribution(ctx, contributionID); err != nil {
		if !found {
			return err
		}
		slog.Warn("dismiss: failed to delete persisted contribution", "id", contributionID, "error", err)
	}
	return nil
}

// LoadContributions restores the contribution list from the store on
// startup. A load failure means starting with an empty list, never an error
// that blocks startup.
func (f *Forwarder) LoadContributions(ctx context.Context) {
	list, err := f.store.ListContributions(ctx, f.contribMax)
	if err != nil {
		slog.Warn("failed to load contributions, starting empty", "error", err)
		return
	}
	f.mu.Lock()
	f.contributions = list
	f.mu.Unlock()
}

func (f *Forwarder) recordContribution(ctx context.Context, anchor events.Anchor, primary events.Event) {
	c := events.Contribution{
		ID:        uuid.New().String(),
		AnchorID:  anchor.ID,
		SessionID: anchor.SessionID,
		Kind:      primary.Kind,
		Details:   primary.Details,
		CreatedAt: anchor.CreatedAt,
	}

	f.mu.Lock()
	f.contributions = append([]events.Contribution{c}, f.contributions...)
	if len(f.contributions) > f.contribMax {
		f.contributions = f.contributions[:f.contribMax]
	}
	f.mu.Unlock()

	if err := f.store.InsertContribution(ctx, c); err != nil {
		slog.Warn("forward: failed to persist contribution", "id", c.ID, "error", err)
	}
}

// primaryEvent picks the event that names the anchor: highest confidence,
// earliest position on ties.
func primaryEvent(evts []events.Event) events.Event {
	best := evts[0]
	for _, e := range evts[1:] {
		if e.Confidence > best.Confidence {
			best = e
		}
	}
	return best
}

// successKinds are the kinds that mark a session moment as a success.
var successKinds = map[string]bool{
	events.KindCommit:        true,
	events.KindTestsPassed:   true,
	events.KindDeploySuccess: true,
	events.KindBuildSuccess:  true,
}

func statusFor(detail *autofork.SessionDetail, evts []events.Event) string {
	for _, e := range evts {
		if successKinds[e.Kind] {
			return events.StatusSuccess
		}
	}
	if len(detail.DriftSignals) > 0 {
		return events.StatusDrifting
	}
	return events.StatusStable
}

func tokenEstimate(detail *autofork.SessionDetail, summary string) int {
	if detail.TotalTokens > 0 {
		return detail.TotalTokens
	}
	// Rough 4-chars-per-token estimate when the API has no count.
	return len(summary) / 4
}

func inputText(detail *autofork.SessionDetail, anchorCtx *autofork.AnchorContext) string {
	var parts []string
	if anchorCtx.Goal != "" {
		parts = append(parts, anchorCtx.Goal)
	}
	if detail.Summary != "" {
		parts = append(parts, detail.Summary)
	}
	if len(parts) == 0 {
		parts = append(parts, anchorCtx.Summary)
	}
	return capText(strings.Join(parts, "\n"), 2*sectionCharCap)
}

func outputText(evts []events.Event, summary string) string {
	var sb strings.Builder
	for _, e := range evts {
		sb.WriteString(e.Describe())
		sb.WriteString("\n")
	}
	sb.WriteString(summary)
	return sb.String()
}
