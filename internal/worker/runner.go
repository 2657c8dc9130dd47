// internal/worker/runner.go
// Package worker runs generation jobs. Each job consumes a processing
// session, emits an ordered progress stream through the hub and the event
// publisher, and records the generated result asset on completion.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/VidSynth/vidsynth-studio-go/internal/event"
	"github.com/VidSynth/vidsynth-studio-go/internal/media"
	"github.com/VidSynth/vidsynth-studio-go/internal/metrics"
	"github.com/VidSynth/vidsynth-studio-go/internal/model"
	"github.com/VidSynth/vidsynth-studio-go/internal/server"
	"github.com/VidSynth/vidsynth-studio-go/internal/storage"
)

// stages is the fixed progress ladder a generation job climbs before its
// terminal event. Progress is monotone by construction.
var stages = []model.ProgressEvent{
	{Status: model.ProgressProcessing, Progress: 0.10, Message: "preparing inputs"},
	{Status: model.ProgressProcessing, Progress: 0.25, Message: "analyzing reference"},
	{Status: model.ProgressProcessing, Progress: 0.50, Message: "matching material clips"},
	{Status: model.ProgressProcessing, Progress: 0.75, Message: "rendering output"},
	{Status: model.ProgressProcessing, Progress: 0.95, Message: "finalizing"},
}

// Runner executes generation jobs sequentially off an internal queue.
type Runner struct {
	store     storage.Store
	hub       *server.ProgressHub
	publisher event.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// StepDelay paces the synthetic progress stages. Zero runs each job to
	// completion without sleeping, which is what tests want.
	stepDelay time.Duration

	queue chan string
	wg    sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// NewRunner creates a worker wired to the given collaborators.
func NewRunner(store storage.Store, hub *server.ProgressHub, publisher event.Publisher, m *metrics.Metrics, logger *slog.Logger, stepDelay time.Duration) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = event.NewPublisher("")
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &Runner{
		store:     store,
		hub:       hub,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		stepDelay: stepDelay,
		queue:     make(chan string, 64),
	}
}

// Submit enqueues one processing session for generation. It is the function
// the HTTP layer hands sessions through.
func (r *Runner) Submit(sessionID string) error {
	select {
	case r.queue <- sessionID:
		return nil
	default:
		return fmt.Errorf("generation queue full")
	}
}

// Start launches the worker loop. It runs until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case sessionID := <-r.queue:
				r.run(ctx, sessionID)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Wait blocks until the worker loop has exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// run drives one session from processing to its terminal state.
func (r *Runner) run(ctx context.Context, sessionID string) {
	start := time.Now()
	logger := r.logger.With("session_id", sessionID)

	session, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		logger.Error("generation skipped, session not loadable", "error", err)
		return
	}
	if session.State != model.SessionProcessing {
		logger.Warn("generation skipped, unexpected state", "state", session.State)
		return
	}

	for _, stage := range stages {
		if err := r.emit(ctx, sessionID, stage); err != nil {
			r.fail(ctx, sessionID, start, fmt.Sprintf("generation aborted: %v", err))
			return
		}
		if r.stepDelay > 0 {
			select {
			case <-time.After(r.stepDelay):
			case <-ctx.Done():
				// Shutdown mid-job: the session stays processing and can be
				// resumed by a future submit.
				logger.Warn("generation interrupted by shutdown")
				return
			}
		}
	}

	result, err := r.recordResult(ctx, sessionID)
	if err != nil {
		r.fail(ctx, sessionID, start, fmt.Sprintf("failed to record result: %v", err))
		return
	}

	terminal := model.ProgressEvent{Status: model.ProgressComplete, Progress: 1, Message: "generation complete"}
	if err := r.store.UpdateSessionState(ctx, sessionID, model.SessionComplete, 1, terminal.Message); err != nil {
		logger.Error("failed to persist completion", "error", err)
	}
	r.metrics.SessionTransitionTotal.WithLabelValues(string(model.SessionProcessing), string(model.SessionComplete)).Inc()
	r.metrics.GenerationDuration.WithLabelValues("complete").Observe(time.Since(start).Seconds())

	r.publish(ctx, sessionID, terminal)
	if err := r.publisher.PublishResultCreated(ctx, result); err != nil {
		r.metrics.EventPublishTotal.WithLabelValues("synth.results.created", "error").Inc()
		logger.Warn("failed to publish result event", "error", err)
	} else {
		r.metrics.EventPublishTotal.WithLabelValues("synth.results.created", "ok").Inc()
	}

	logger.Info("generation complete", "result", result.Filename, "duration", time.Since(start))
}

// emit persists and fans out one non-terminal progress event.
func (r *Runner) emit(ctx context.Context, sessionID string, ev model.ProgressEvent) error {
	if err := r.store.UpdateSessionState(ctx, sessionID, model.SessionProcessing, ev.Progress, ev.Message); err != nil {
		return err
	}
	r.publish(ctx, sessionID, ev)
	return nil
}

// publish fans one event out to SSE subscribers and the event stream.
func (r *Runner) publish(ctx context.Context, sessionID string, ev model.ProgressEvent) {
	r.metrics.ProgressEventTotal.WithLabelValues(string(ev.Status)).Inc()
	r.hub.Publish(sessionID, ev)

	if err := r.publisher.PublishProgress(ctx, sessionID, ev); err != nil {
		r.metrics.EventPublishTotal.WithLabelValues("synth.sessions.progress", "error").Inc()
		r.logger.Warn("failed to publish progress event", "session_id", sessionID, "error", err)
	} else {
		r.metrics.EventPublishTotal.WithLabelValues("synth.sessions.progress", "ok").Inc()
	}
}

// fail moves the session to its error terminal state and emits the terminal
// event.
func (r *Runner) fail(ctx context.Context, sessionID string, start time.Time, message string) {
	if err := r.store.UpdateSessionState(ctx, sessionID, model.SessionError, 0, message); err != nil {
		r.logger.Error("failed to persist error state", "session_id", sessionID, "error", err)
	}
	r.metrics.SessionTransitionTotal.WithLabelValues(string(model.SessionProcessing), string(model.SessionError)).Inc()
	r.metrics.GenerationDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())

	r.publish(ctx, sessionID, model.ProgressEvent{Status: model.ProgressError, Message: message})
	r.logger.Error("generation failed", "session_id", sessionID, "message", message)
}

// recordResult creates the generated output asset for a completed session.
func (r *Runner) recordResult(ctx context.Context, sessionID string) (model.Asset, error) {
	filename := resultFilename(sessionID)
	result := model.Asset{
		Kind:      model.AssetKindResult,
		Filename:  filename,
		Path:      media.ObjectKey("result", "", filename),
		CreatedAt: time.Now().Unix(),
	}
	if err := r.store.CreateAsset(ctx, result); err != nil {
		return model.Asset{}, err
	}
	return result, nil
}

// resultFilename derives a stable output name from the session id.
func resultFilename(sessionID string) string {
	return fmt.Sprintf("synthesis_%s.mp4", strings.ToLower(sessionID))
}
