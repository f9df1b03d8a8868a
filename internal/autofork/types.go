package autofork

import "time"

// SessionSummary is one entry of the session list endpoint.
type SessionSummary struct {
	ID            string    `json:"id"`
	MessageCount  int       `json:"message_count"`
	TotalTokens   int       `json:"total_tokens"`
	LastTimestamp time.Time `json:"last_timestamp"`
	Summary       string    `json:"summary,omitempty"`
}

// Label is the short display name used when attaching events to a session.
func (s SessionSummary) Label() string {
	if s.Summary != "" {
		return s.Summary
	}
	return s.ID
}

// SessionDetail is the per-session stats payload.
type SessionDetail struct {
	ID                 string   `json:"id"`
	MessageCount       int      `json:"message_count"`
	TotalTokens        int      `json:"total_tokens"`
	DriftSignals       []string `json:"drift_signals"`
	SuccessSignals     []string `json:"success_signals"`
	ForkRecommendation string   `json:"fork_recommendation,omitempty"`
	Summary            string   `json:"summary,omitempty"`
}

// AnchorContext is the richer snapshot used when composing an anchor.
type AnchorContext struct {
	Goal              string   `json:"goal"`
	Summary           string   `json:"summary"`
	RecentUser        []string `json:"recent_user_messages"`
	RecentAssistant   []string `json:"recent_assistant_messages"`
	RecentToolOutputs []string `json:"recent_tool_outputs"`
	FilesTouched      []string `json:"files_touched"`
	Blockers          []string `json:"blockers"`
}

// Activity is the incremental recent-text window for a session. LatestAt is
// the high-water timestamp the poller records for its next since query.
type Activity struct {
	UserMessages      []string  `json:"user_messages"`
	AssistantMessages []string  `json:"assistant_messages"`
	ToolOutputs       []string  `json:"tool_outputs"`
	LatestAt          time.Time `json:"latest_timestamp"`
}
