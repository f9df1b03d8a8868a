package events

import "time"

// Anchor status tags.
const (
	StatusStable   = "stable"
	StatusDrifting = "drifting"
	StatusSuccess  = "success"
)

// Anchor is a persisted snapshot of a session moment, eligible for
// forwarding to the experiment store. Immutable after creation except the
// Gold flag; removed only by explicit user action.
type Anchor struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	SessionID    string    `json:"session_id"`
	Tokens       int       `json:"tokens"`
	Status       string    `json:"status"`
	Summary      string    `json:"summary"`
	ResumePrompt string    `json:"resume_prompt,omitempty"`
	Gold         bool      `json:"gold"`
}

// Contribution is the display record kept after an anchor was forwarded.
// The list is capped and entries leave only by explicit dismissal.
type Contribution struct {
	ID        string    `json:"id"`
	AnchorID  string    `json:"anchor_id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}
