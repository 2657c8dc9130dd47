// internal/event/nats.go
// Package event provides NATS JetStream implementation for event publishing.
// It streams session progress and result events to support real-time
// consumers and audit trails.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/VidSynth/vidsynth-studio-go/internal/model"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Publisher interface defines the event publishing operations required by
// the synthesis service. It provides methods for publishing session and
// result events to the event stream.
type Publisher interface {
	// Session events
	PublishProgress(ctx context.Context, sessionID string, ev model.ProgressEvent) error

	// Result events
	PublishResultCreated(ctx context.Context, asset model.Asset) error

	// Close closes the publisher connection
	Close() error
}

// noop is a no-op implementation of Publisher for when NATS is not configured.
// It implements all Publisher methods but does nothing, allowing the service
// to function without event streaming when NATS is not available.
type noop struct{}

// Close implements Publisher
// It does nothing and always returns nil.
func (n *noop) Close() error { return nil }

// PublishProgress implements Publisher
// It does nothing and always returns nil.
func (n *noop) PublishProgress(ctx context.Context, sessionID string, ev model.ProgressEvent) error {
	return nil
}

// PublishResultCreated implements Publisher
// It does nothing and always returns nil.
func (n *noop) PublishResultCreated(ctx context.Context, asset model.Asset) error {
	return nil
}

// natsPub is the NATS JetStream implementation of Publisher.
// It connects to a NATS server and publishes events to JetStream streams.
type natsPub struct {
	nc *nats.Conn            // NATS connection
	js nats.JetStreamContext // JetStream context for stream operations
}

// NewPublisherFromEnv creates a new publisher based on environment configuration.
// It reads the SYNTH_NATS_URL environment variable to determine if NATS should
// be used. If NATS is not configured or connection fails, it returns a no-op
// publisher.
// Returns:
//   - Publisher: Either a NATS publisher or a no-op publisher
func NewPublisherFromEnv() Publisher {
	return NewPublisher(os.Getenv("SYNTH_NATS_URL"))
}

// NewPublisher creates a publisher for the given NATS URL, falling back to a
// no-op publisher when the URL is empty or the connection fails.
func NewPublisher(url string) Publisher {
	if url == "" {
		return &noop{}
	}

	// Connect to NATS server
	nc, err := nats.Connect(url)
	if err != nil {
		slog.Warn("NATS connect failed, using noop publisher", "error", err)
		return &noop{}
	}

	// Create JetStream context for stream operations
	js, err := nc.JetStream()
	if err != nil {
		slog.Warn("NATS JetStream context creation failed, using noop publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	// Initialize required streams
	if err := initStreams(js); err != nil {
		slog.Warn("NATS stream initialization failed, using noop publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	return &natsPub{nc: nc, js: js}
}

// initStreams initializes the required NATS streams.
// It creates the SYNTH_SESSIONS and SYNTH_RESULTS streams with appropriate
// configurations. These streams carry progress and result events.
func initStreams(js nats.JetStreamContext) error {
	// Create SYNTH_SESSIONS stream for session progress events
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      "SYNTH_SESSIONS",             // Stream name
		Subjects:  []string{"synth.sessions.*"}, // Subjects pattern for session events
		Retention: nats.LimitsPolicy,            // Retention policy
		MaxAge:    24 * time.Hour,               // Keep events for 24 hours
		Discard:   nats.DiscardOld,              // Discard old messages when limits reached
		Storage:   nats.FileStorage,             // Use file storage for persistence
	})
	if err != nil {
		return fmt.Errorf("failed to create SYNTH_SESSIONS stream: %w", err)
	}

	// Create SYNTH_RESULTS stream for generated result events
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      "SYNTH_RESULTS",             // Stream name
		Subjects:  []string{"synth.results.*"}, // Subjects pattern for result events
		Retention: nats.LimitsPolicy,           // Retention policy
		MaxAge:    24 * time.Hour,              // Keep events for 24 hours
		Discard:   nats.DiscardOld,             // Discard old messages when limits reached
		Storage:   nats.FileStorage,            // Use file storage for persistence
	})
	if err != nil {
		return fmt.Errorf("failed to create SYNTH_RESULTS stream: %w", err)
	}

	return nil
}

// EventEnvelope represents the standard event envelope structure.
// All events published to NATS are wrapped in this envelope for consistency.
type EventEnvelope struct {
	Type          string      `json:"type"`          // Event type identifier
	Version       string      `json:"version"`       // Event schema version
	OccurredAt    time.Time   `json:"occurredAt"`    // When the event occurred
	CorrelationID string      `json:"correlationId"` // Correlation ID for tracing
	Payload       interface{} `json:"payload"`       // Event-specific data
}

// Close closes the NATS connection.
// It gracefully closes the connection to the NATS server.
func (p *natsPub) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// progressPayload is the wire shape of one published progress event.
type progressPayload struct {
	SessionID string               `json:"sessionId"`
	Event     model.ProgressEvent  `json:"event"`
}

// PublishProgress publishes one progress event for a session.
// It wraps the event in an envelope and publishes it to the SYNTH_SESSIONS
// stream. Ordering within a session is preserved by publishing to a
// session-specific subject.
// Parameters:
//   - ctx: Context for the operation
//   - sessionID: The session the event belongs to
//   - ev: The progress event
// Returns:
//   - error: Any error that occurred during publishing
func (p *natsPub) PublishProgress(ctx context.Context, sessionID string, ev model.ProgressEvent) error {
	subject := fmt.Sprintf("synth.sessions.%s", sessionID)

	envelope := EventEnvelope{
		Type:          "synth.sessions.progress",
		Version:       "1.0.0",
		OccurredAt:    time.Now().UTC(),
		CorrelationID: uuid.New().String(),
		Payload:       progressPayload{SessionID: sessionID, Event: ev},
	}

	b, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(subject, b)
	return err
}

// PublishResultCreated publishes a result created event.
// It wraps the result asset in an envelope and publishes it to the
// SYNTH_RESULTS stream.
// Parameters:
//   - ctx: Context for the operation
//   - asset: The result asset that was created
// Returns:
//   - error: Any error that occurred during publishing
func (p *natsPub) PublishResultCreated(ctx context.Context, asset model.Asset) error {
	subject := "synth.results.created"

	envelope := EventEnvelope{
		Type:          "synth.results.created",
		Version:       "1.0.0",
		OccurredAt:    time.Now().UTC(),
		CorrelationID: uuid.New().String(),
		Payload:       asset,
	}

	b, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(subject, b)
	return err
}
