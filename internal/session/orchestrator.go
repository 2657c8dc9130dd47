// internal/session/orchestrator.go
// Package session drives the lifecycle of one generation job: stage inputs
// locally, submit them to the backend, and observe progress until a terminal
// event. The orchestrator is the sole writer of session state; progress
// events are the only source of terminal transitions.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	errordefs "github.com/VidSynth/vidsynth-studio-go/internal/errors"
	"github.com/VidSynth/vidsynth-studio-go/internal/gateway"
	"github.com/VidSynth/vidsynth-studio-go/internal/model"
)

// Orchestrator manages a single session at a time. State only ever moves
// forward along created -> uploaded -> processing -> complete|error, and at
// most one terminal transition is ever applied. Reads and event application
// are internally synchronized; Submit is single-flight by contract, so the
// caller serializes its own retries rather than invoking it concurrently.
type Orchestrator struct {
	mu      sync.Mutex
	gw      gateway.SessionGateway
	logger  *slog.Logger
	session *model.Session
}

// NewOrchestrator creates an orchestrator bound to a session gateway.
func NewOrchestrator(gw gateway.SessionGateway, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{gw: gw, logger: logger}
}

// Session returns a copy of the current session, or false when nothing has
// been staged yet.
func (o *Orchestrator) Session() (model.Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return model.Session{}, false
	}
	return cloneSession(o.session), true
}

// Stage validates and records the inputs for a new session without touching
// the backend. Exactly one reference and at least one material are required;
// invalid input fails before any network activity. Staging replaces any
// previous session, including a finished one.
func (o *Orchestrator) Stage(reference model.Asset, materials []model.Asset) error {
	if err := validateInputs(reference, materials); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session != nil && !o.session.State.Terminal() {
		return errordefs.New(errordefs.SYN_INVALID_INPUT,
			fmt.Sprintf("session %s is still %s; finish or abandon it before staging new inputs", o.session.ID, o.session.State), "")
	}

	o.session = &model.Session{
		State:     model.SessionCreated,
		Reference: reference,
		Materials: append([]model.Asset(nil), materials...),
		CreatedAt: time.Now().UTC(),
	}
	o.logger.Info("session staged", "materials", len(materials), "reference", reference.Filename)
	return nil
}

// Submit advances a staged session toward processing. From created it
// uploads the inputs and then requests generation; from uploaded it retries
// only the generation start, never the upload. Each failed step leaves the
// state where it was so Submit can be called again.
func (o *Orchestrator) Submit(ctx context.Context) error {
	o.mu.Lock()
	if o.session == nil {
		o.mu.Unlock()
		return errordefs.New(errordefs.SYN_INVALID_INPUT, "no session staged", "")
	}
	state := o.session.State
	reference := o.session.Reference
	materials := append([]model.Asset(nil), o.session.Materials...)
	sessionID := o.session.ID
	o.mu.Unlock()

	switch state {
	case model.SessionCreated:
		id, err := o.gw.Upload(ctx, reference, materials)
		if err != nil {
			if errordefs.CodeOf(err) == "" {
				err = errordefs.Wrap(errordefs.SYN_UPLOAD_FAILED, "upload failed", err)
			}
			o.logger.Error("session upload failed", "error", err)
			return err
		}
		o.mu.Lock()
		o.session.ID = id
		o.session.State = model.SessionUploaded
		o.mu.Unlock()
		o.logger.Info("session uploaded", "session_id", id)
		sessionID = id
		fallthrough

	case model.SessionUploaded:
		if state == model.SessionUploaded {
			o.logger.Info("retrying generation start", "session_id", sessionID)
		}
		if err := o.gw.StartGeneration(ctx, sessionID); err != nil {
			if errordefs.CodeOf(err) == "" {
				err = errordefs.Wrap(errordefs.SYN_GENERATION_START_FAILED, "generation start failed", err)
			}
			o.logger.Error("generation start failed", "session_id", sessionID, "error", err)
			return err
		}
		o.mu.Lock()
		o.session.State = model.SessionProcessing
		o.mu.Unlock()
		o.logger.Info("session processing", "session_id", sessionID)
		return nil

	default:
		return errordefs.New(errordefs.SYN_INVALID_INPUT,
			fmt.Sprintf("cannot submit a session in state %s", state), "")
	}
}

// Observe subscribes to progress for the processing session and returns a
// channel of events. The returned channel closes after the first terminal
// event, and the orchestrator's own state follows the events it forwards.
// Observe may be called repeatedly while the session is processing; each
// call gets its own channel carrying the full event sequence, while the
// session's terminal transition is applied only once. Cancelling ctx
// abandons observation without failing the job.
func (o *Orchestrator) Observe(ctx context.Context) (*ProgressChannel, error) {
	o.mu.Lock()
	if o.session == nil || o.session.State != model.SessionProcessing {
		state := model.SessionState("")
		if o.session != nil {
			state = o.session.State
		}
		o.mu.Unlock()
		return nil, errordefs.New(errordefs.SYN_INVALID_INPUT,
			fmt.Sprintf("cannot observe a session in state %q", state), "")
	}
	sessionID := o.session.ID
	o.mu.Unlock()

	stream, err := o.gw.SubscribeProgress(ctx, sessionID)
	if err != nil {
		if errordefs.CodeOf(err) == "" {
			err = errordefs.Wrap(errordefs.SYN_CHANNEL_INTERRUPTED, "progress subscription failed", err)
		}
		return nil, err
	}

	ch := newProgressChannel()
	go o.forward(ctx, sessionID, stream, ch)
	return ch, nil
}

// forward pumps events from the gateway stream into the consumer channel.
// Delivery is per observer: every event reaches this channel, which closes
// after the first terminal status it carries. State application is separate,
// so a second observer replaying an already-applied history still sees the
// full sequence while the session transitions exactly once.
func (o *Orchestrator) forward(ctx context.Context, sessionID string, stream gateway.ProgressStream, ch *ProgressChannel) {
	defer stream.Close()

	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				if err := stream.Err(); err != nil {
					// Transport broke before a terminal event. The job may
					// still be running; the session stays processing.
					o.logger.Warn("progress stream interrupted", "session_id", sessionID, "error", err)
					ch.closeWith(err)
					return
				}
				ch.closeWith(nil)
				return
			}
			o.apply(sessionID, ev)
			ch.deliver(ev)
			if ev.Status.Terminal() {
				ch.closeWith(nil)
				return
			}

		case <-ctx.Done():
			o.logger.Info("progress observation abandoned", "session_id", sessionID)
			ch.closeWith(errordefs.Wrap(errordefs.SYN_CHANNEL_INTERRUPTED, "observation cancelled", ctx.Err()))
			return
		}
	}
}

// apply folds one progress event into the session. Events arriving after a
// terminal transition leave state untouched, so the terminal transition
// happens at most once no matter how many observers replay it; progress
// never moves backward.
func (o *Orchestrator) apply(sessionID string, ev model.ProgressEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	// The session may have been replaced by a new Stage while an old stream
	// drains; late events for the previous session are dropped.
	if o.session == nil || o.session.ID != sessionID {
		return
	}
	if o.session.State.Terminal() {
		o.logger.Debug("discarding event after terminal state", "session_id", sessionID, "status", ev.Status)
		return
	}

	switch ev.Status {
	case model.ProgressComplete:
		o.session.State = model.SessionComplete
		o.session.Progress = 1
	case model.ProgressError:
		o.session.State = model.SessionError
	default:
		if ev.Progress > o.session.Progress {
			o.session.Progress = ev.Progress
		}
	}
	if ev.Message != "" {
		o.session.Message = ev.Message
	}
}

func validateInputs(reference model.Asset, materials []model.Asset) error {
	if reference.Filename == "" {
		return errordefs.New(errordefs.SYN_INVALID_INPUT, "a reference video is required", "")
	}
	if len(materials) == 0 {
		return errordefs.New(errordefs.SYN_INVALID_INPUT, "at least one material clip is required", "")
	}
	seen := make(map[string]struct{}, len(materials))
	for _, m := range materials {
		if m.Filename == "" {
			return errordefs.New(errordefs.SYN_INVALID_INPUT, "material clip missing filename", "")
		}
		if _, dup := seen[m.Filename]; dup {
			return errordefs.New(errordefs.SYN_INVALID_INPUT,
				fmt.Sprintf("duplicate material filename %q", m.Filename), "")
		}
		seen[m.Filename] = struct{}{}
	}
	return nil
}

func cloneSession(s *model.Session) model.Session {
	out := *s
	out.Materials = append([]model.Asset(nil), s.Materials...)
	return out
}
