// Package detect classifies raw session text into success events using a
// fixed table of regex rules. The detector is stateless: deduplication
// across polls belongs to the poller, not here.
package detect

import (
	"strings"
	"time"

	"github.com/hypernymai/beacon/internal/events"
)

// Detect maps recent user, assistant, and tool-output fragments to an
// ordered list of classified events. Per-fragment events come first, in
// input order; whole-text events follow in fixed rule order. Nil or empty
// inputs are fine and it never returns an error — no match means an empty
// slice.
func Detect(userMsgs, assistantMsgs, toolOutputs []string) []events.Event {
	now := time.Now().UTC()
	out := make([]events.Event, 0, 4)

	// Per-fragment rules, first-match-wins per fragment. Two identical
	// fragments at different positions are two distinct user actions and
	// each produces its own event.
	for _, fragment := range userMsgs {
		for _, r := range fragmentRules {
			detail, ok := r.match(fragment)
			if !ok {
				continue
			}
			out = append(out, events.Event{
				Kind:       r.kind,
				Timestamp:  now,
				Details:    detail,
				Confidence: events.Confidence(r.kind),
			})
			break
		}
	}

	// Whole-text rules over the concatenated assistant+tool text. Each rule
	// is independent and emits at most one event; the first match in the
	// text governs the extracted detail.
	combined := joinFragments(assistantMsgs, toolOutputs)
	if combined != "" {
		for _, r := range textRules {
			if r.exclude != nil && r.exclude(combined) {
				continue
			}
			detail, ok := r.match(combined)
			if !ok {
				continue
			}
			out = append(out, events.Event{
				Kind:       r.kind,
				Timestamp:  now,
				Details:    detail,
				Confidence: events.Confidence(r.kind),
			})
		}
	}

	return out
}

func joinFragments(lists ...[]string) string {
	var parts []string
	for _, list := range lists {
		for _, s := range list {
			if strings.TrimSpace(s) == "" {
				continue
			}
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
