package events

import (
	"fmt"
	"time"
)

// Event is a classified observation extracted from session text.
type Event struct {
	Kind         string    `json:"kind"`
	Timestamp    time.Time `json:"timestamp"`
	Details      string    `json:"details"`
	Confidence   float64   `json:"confidence"`
	SessionID    string    `json:"session_id,omitempty"`
	SessionLabel string    `json:"session_label,omitempty"`
}

// Closed set of event kinds.
const (
	KindCommit        = "commit"
	KindTestsPassed   = "tests-passed"
	KindDeploySuccess = "deploy-success"
	KindBuildSuccess  = "build-success"
	KindCheckpoint    = "user-checkpoint"
	KindSessionStart  = "session-start"
	KindIssue         = "issue"
)

// confidenceByKind fixes the confidence constant per kind. Confidence is a
// property of the rule that produced the event, not of the match quality.
var confidenceByKind = map[string]float64{
	KindCommit:        0.90,
	KindTestsPassed:   0.85,
	KindDeploySuccess: 0.95,
	KindBuildSuccess:  0.80,
	KindCheckpoint:    0.80,
	KindSessionStart:  0.90,
	KindIssue:         0.70,
}

// Confidence returns the fixed confidence for a kind, or 0 for an unknown kind.
func Confidence(kind string) float64 {
	return confidenceByKind[kind]
}

// KnownKind reports whether kind is in the closed enumeration.
func KnownKind(kind string) bool {
	_, ok := confidenceByKind[kind]
	return ok
}

// timestampKeyed holds the kinds whose ticker dedup axis is the detection
// timestamp. Their details repeat naturally across turns ("magic" twice is
// two distinct user actions), so content is not a usable axis for them.
var timestampKeyed = map[string]bool{
	KindSessionStart: true,
	KindCheckpoint:   true,
	KindIssue:        true,
}

// TickerKey is the cross-poll dedup key used before admitting an event to
// the ticker. Content-backed kinds key on details because their timestamp is
// detection time, which changes on every poll while the text stays the same.
func (e Event) TickerKey() string {
	if timestampKeyed[e.Kind] {
		return fmt.Sprintf("%s|%s|%s", e.SessionID, e.Kind, e.Timestamp.UTC().Format(time.RFC3339Nano))
	}
	return fmt.Sprintf("%s|%s|%s", e.SessionID, e.Kind, e.Details)
}

// ForwardKey is the content-based key recorded in the durable forwarded set.
// It is content-based for every kind so a reload never re-forwards events
// that were already pushed to the experiment store.
func (e Event) ForwardKey() string {
	return fmt.Sprintf("%s|%s|%s", e.SessionID, e.Kind, e.Details)
}

// Describe renders a short human-readable line for summaries and notices.
func (e Event) Describe() string {
	return fmt.Sprintf("%s: %s (%.2f)", e.Kind, e.Details, e.Confidence)
}
