package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hypernymai/beacon/internal/events"
)

// Notifier posts forward notices to a Slack channel via chat.postMessage.
type Notifier struct {
	token   string
	channel string
	client  *http.Client
	apiURL  string

	mu       sync.Mutex
	lastSent time.Time
}

// NewNotifier creates a new Slack notifier.
func NewNotifier(token, channel string) *Notifier {
	return &Notifier{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  "https://slack.com/api/chat.postMessage",
	}
}

// PostForwardNotice sends a Block Kit message after an anchor is forwarded.
// It rate-limits to at most one notice per 30 seconds to protect against
// burst storms.
func (n *Notifier) PostForwardNotice(ctx context.Context, a events.Anchor, evts []events.Event) error {
	n.mu.Lock()
	if time.Since(n.lastSent) < 30*time.Second {
		n.mu.Unlock()
		return nil
	}
	n.lastSent = time.Now()
	n.mu.Unlock()

	lines := make([]string, 0, len(evts))
	for _, e := range evts {
		lines = append(lines, e.Describe())
	}
	eventText := strings.Join(lines, "\n")
	if eventText == "" {
		eventText = "none"
	}

	gold := "no"
	if a.Gold {
		gold = "yes"
	}

	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{
				"type": "plain_text",
				"text": "Anchor Forwarded",
			},
		},
		{
			"type": "section",
			"fields": []map[string]any{
				{"type": "mrkdwn", "text": fmt.Sprintf("*Session:*\n%s", a.SessionID)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Status:*\n%s", a.Status)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Tokens:*\n%d", a.Tokens)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Gold:*\n%s", gold)},
			},
		},
		{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*Events:*\n%s", eventText),
			},
		},
		{
			"type": "context",
			"elements": []map[string]any{
				{"type": "mrkdwn", "text": fmt.Sprintf("Sent at %s", time.Now().UTC().Format(time.RFC3339))},
			},
		},
	}

	body, err := json.Marshal(map[string]any{
		"channel": n.channel,
		"blocks":  blocks,
		"text":    fmt.Sprintf("Anchor forwarded for session %s (%s)", a.SessionID, a.Status),
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}

	slog.Info("forward notice posted to Slack", "channel", n.channel, "session_id", a.SessionID)
	return nil
}
