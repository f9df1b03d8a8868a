package announce

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hypernymai/beacon/internal/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	streamName = "AUTOFORK_EVENTS"

	subjectPrefix    = "autofork.event."
	lifecycleSubject = "autofork.lifecycle.beacon"
)

var streamSubjects = []string{"autofork.>"}

// Announcer publishes admitted ticker events to JetStream so other
// services can react to session milestones without polling the API.
type Announcer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func New(natsURL string) (*Announcer, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	a := &Announcer{nc: nc, js: js}
	if err := a.ensureStream(context.Background()); err != nil {
		slog.Warn("stream not available, publishing best-effort", "stream", streamName, "error", err)
	}

	return a, nil
}

func (a *Announcer) ensureStream(ctx context.Context) error {
	_, err := a.js.Stream(ctx, streamName)
	if err == nil {
		return nil
	}

	_, err = a.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  streamSubjects,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", streamName, err)
	}

	slog.Info("created stream", "name", streamName, "subjects", streamSubjects)
	return nil
}

// PublishEvent announces one admitted event on autofork.event.<kind>.
// Failures are logged and dropped; the ticker is the source of truth.
func (a *Announcer) PublishEvent(e events.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Warn("failed to marshal event for announce", "kind", e.Kind, "error", err)
		return
	}

	subject := subjectPrefix + e.Kind
	if err := a.nc.Publish(subject, data); err != nil {
		slog.Warn("failed to announce event", "subject", subject, "error", err)
	}
}

// AnnounceStartup publishes a lifecycle message so peers know a watcher
// is online.
func (a *Announcer) AnnounceStartup() {
	data, _ := json.Marshal(map[string]any{
		"service":    "beacon",
		"status":     "online",
		"started_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err := a.nc.Publish(lifecycleSubject, data); err != nil {
		slog.Warn("failed to announce startup", "error", err)
	}
}

// Close drains the NATS connection.
func (a *Announcer) Close() {
	a.nc.Drain()
}
