package weave

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// SubprocessClient submits patterns by spawning the Python Weave SDK script
// per request. The process gets the pattern as JSON on stdin and is killed
// after the hard timeout.
type SubprocessClient struct {
	pythonBin string
	script    string
	project   string
	timeout   time.Duration
}

// NewSubprocessClient builds a client that runs `pythonBin script` with the
// Weave project name in the environment.
func NewSubprocessClient(pythonBin, script, project string, timeout time.Duration) *SubprocessClient {
	return &SubprocessClient{
		pythonBin: pythonBin,
		script:    script,
		project:   project,
		timeout:   timeout,
	}
}

// SubmitPattern runs the script once for this pattern. Non-zero exit or
// timeout is an error; there is no retry here or anywhere upstream.
func (c *SubprocessClient) SubmitPattern(ctx context.Context, p Pattern) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pattern: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.pythonBin, c.script)
	cmd.Env = append(cmd.Environ(), "WEAVE_PROJECT="+c.project)
	cmd.Stdin = bytes.NewReader(payload)

	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("weave submit timed out after %s", c.timeout)
		}
		return fmt.Errorf("weave submit failed: %w: %s", err, firstLine(out))
	}

	slog.Info("pattern pushed to weave",
		"project", c.project,
		"success_type", p.SuccessType,
		"goal_type", p.GoalType,
		"session_id", p.SessionID,
	)
	return nil
}

func firstLine(out []byte) string {
	if i := bytes.IndexByte(out, '\n'); i >= 0 {
		out = out[:i]
	}
	if len(out) > 200 {
		out = out[:200]
	}
	return string(out)
}
