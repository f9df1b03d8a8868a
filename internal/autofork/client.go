// Package autofork is the HTTP client for the external AutoFork
// session-tracking API. The API owns all session data; this service only
// reads it.
package autofork

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client calls the AutoFork API with a short per-request timeout. A failed
// or timed-out request for one session never blocks work on another; the
// caller decides what to skip.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client for the AutoFork API at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Health reports whether the AutoFork API is reachable.
func (c *Client) Health(ctx context.Context) error {
	var body map[string]any
	return c.getJSON(ctx, "/api/autofork/health", nil, &body)
}

// ListSessions returns up to limit currently tracked sessions.
func (c *Client) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	q := url.Values{"limit": {fmt.Sprint(limit)}}
	var body struct {
		Sessions []SessionSummary `json:"sessions"`
	}
	if err := c.getJSON(ctx, "/api/autofork/sessions", q, &body); err != nil {
		return nil, err
	}
	return body.Sessions, nil
}

// GetSession returns stats and drift/success signals for one session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionDetail, error) {
	var body SessionDetail
	if err := c.getJSON(ctx, "/api/autofork/sessions/"+url.PathEscape(sessionID), nil, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// GetAnchorContext returns the rich snapshot used to compose an anchor.
func (c *Client) GetAnchorContext(ctx context.Context, sessionID string) (*AnchorContext, error) {
	var body AnchorContext
	if err := c.getJSON(ctx, "/api/autofork/sessions/"+url.PathEscape(sessionID)+"/anchor", nil, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// SessionActivity returns the recent-text window for a session. A zero
// since fetches the full recent window; otherwise only activity newer than
// since is returned.
func (c *Client) SessionActivity(ctx context.Context, sessionID string, since time.Time) (*Activity, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	var body Activity
	if err := c.getJSON(ctx, "/api/autofork/sessions/"+url.PathEscape(sessionID)+"/activity", q, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("autofork get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("autofork get %s: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("autofork decode %s: %w", path, err)
	}
	return nil
}
