// Package weave submits successful-pattern records to the Weave experiment
// store. The concrete transport is a short-lived subprocess running the
// Python SDK; Client keeps that swappable without touching the forwarder.
package weave

import "context"

// Pattern is the record shape the experiment store persists.
type Pattern struct {
	Input       string   `json:"input"`
	Output      string   `json:"output"`
	SuccessType string   `json:"success_type"`
	GoalType    string   `json:"goal_type"`
	TechStack   []string `json:"tech_stack"`
	Tokens      int      `json:"tokens"`
	IsGold      bool     `json:"is_gold"`
	SessionID   string   `json:"session_id"`
}

// Client persists one pattern per call. Implementations must respect ctx
// cancellation; a failed submit is terminal for that attempt — the caller
// never retries.
type Client interface {
	SubmitPattern(ctx context.Context, p Pattern) error
}
