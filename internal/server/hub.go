// internal/server/hub.go
package server

import (
	"sync"

	"github.com/VidSynth/vidsynth-studio-go/internal/model"
)

// ProgressHub fans session progress events out to SSE subscribers. Each
// session keeps its full event history so a subscriber that connects after
// generation started still sees every event in order; new events append to
// the history and reach live subscribers. A terminal event seals the
// session: the history survives for replay but nothing more is accepted.
type ProgressHub struct {
	mu       sync.Mutex
	history  map[string][]model.ProgressEvent
	sealed   map[string]bool
	watchers map[string][]chan model.ProgressEvent
}

// NewProgressHub creates an empty hub.
func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		history:  make(map[string][]model.ProgressEvent),
		sealed:   make(map[string]bool),
		watchers: make(map[string][]chan model.ProgressEvent),
	}
}

// Publish appends one event to a session's stream and delivers it to every
// live subscriber. Events published after a terminal event are dropped.
// Returns whether the event was accepted.
func (h *ProgressHub) Publish(sessionID string, ev model.ProgressEvent) bool {
	h.mu.Lock()

	if h.sealed[sessionID] {
		h.mu.Unlock()
		return false
	}

	h.history[sessionID] = append(h.history[sessionID], ev)
	if ev.Status.Terminal() {
		h.sealed[sessionID] = true
	}

	watchers := h.watchers[sessionID]
	if h.sealed[sessionID] {
		delete(h.watchers, sessionID)
	}
	h.mu.Unlock()

	for _, ch := range watchers {
		ch <- ev
		if ev.Status.Terminal() {
			close(ch)
		}
	}
	return true
}

// Subscribe returns the session's event history plus a channel of future
// events. For a sealed session the channel arrives already closed, so the
// caller just replays history. Unsubscribe releases the channel.
func (h *ProgressHub) Subscribe(sessionID string) ([]model.ProgressEvent, <-chan model.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replay := append([]model.ProgressEvent(nil), h.history[sessionID]...)

	ch := make(chan model.ProgressEvent, 64)
	if h.sealed[sessionID] {
		close(ch)
		return replay, ch
	}

	h.watchers[sessionID] = append(h.watchers[sessionID], ch)
	return replay, ch
}

// Unsubscribe detaches a subscriber channel. Safe to call after the session
// sealed; it is a no-op then.
func (h *ProgressHub) Unsubscribe(sessionID string, ch <-chan model.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	watchers := h.watchers[sessionID]
	for i, w := range watchers {
		if w == ch {
			h.watchers[sessionID] = append(watchers[:i], watchers[i+1:]...)
			return
		}
	}
}

// History returns a copy of the event history for one session.
func (h *ProgressHub) History(sessionID string) []model.ProgressEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.ProgressEvent(nil), h.history[sessionID]...)
}
