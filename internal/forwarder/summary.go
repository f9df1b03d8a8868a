package forwarder

import (
	"fmt"
	"strings"

	"github.com/hypernymai/beacon/internal/autofork"
	"github.com/hypernymai/beacon/internal/events"
)

// Per-section caps for the composed anchor summary.
const (
	sectionCharCap = 200
	filesCap       = 10
	eventLinesCap  = 5
)

// composeSummary renders the multi-section anchor text: task, goal, touched
// files, and event descriptions, each section capped.
func composeSummary(detail *autofork.SessionDetail, anchorCtx *autofork.AnchorContext, evts []events.Event) string {
	var sb strings.Builder

	task := detail.Summary
	if task == "" {
		task = anchorCtx.Summary
	}
	if task != "" {
		fmt.Fprintf(&sb, "Task: %s\n", capText(task, sectionCharCap))
	}

	if anchorCtx.Goal != "" {
		fmt.Fprintf(&sb, "Goal: %s\n", capText(anchorCtx.Goal, sectionCharCap))
	}

	if len(anchorCtx.FilesTouched) > 0 {
		files := anchorCtx.FilesTouched
		if len(files) > filesCap {
			files = files[:filesCap]
		}
		fmt.Fprintf(&sb, "Files: %s\n", capText(strings.Join(files, ", "), sectionCharCap))
	}

	if len(evts) > 0 {
		sb.WriteString("Events:\n")
		lines := evts
		if len(lines) > eventLinesCap {
			lines = lines[:eventLinesCap]
		}
		for _, e := range lines {
			fmt.Fprintf(&sb, "- %s: %s\n", e.Kind, capText(e.Details, sectionCharCap))
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

// composeResumePrompt renders the optional text a user can paste to pick the
// session back up from this anchor.
func composeResumePrompt(anchorCtx *autofork.AnchorContext) string {
	if anchorCtx.Goal == "" && anchorCtx.Summary == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Resume this session.\n")
	if anchorCtx.Goal != "" {
		fmt.Fprintf(&sb, "Goal: %s\n", capText(anchorCtx.Goal, sectionCharCap))
	}
	if anchorCtx.Summary != "" {
		fmt.Fprintf(&sb, "Where we were: %s\n", capText(anchorCtx.Summary, sectionCharCap))
	}
	if len(anchorCtx.Blockers) > 0 {
		fmt.Fprintf(&sb, "Open blockers: %s\n", capText(strings.Join(anchorCtx.Blockers, "; "), sectionCharCap))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func capText(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
