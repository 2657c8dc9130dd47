// internal/session/channel.go
package session

import (
	"sync"

	"github.com/VidSynth/vidsynth-studio-go/internal/model"
)

// ProgressChannel is the consumer-facing view of one observation. Events
// delivers progress updates in arrival order and is closed exactly once,
// after the first terminal event or after the transport breaks. Err
// distinguishes the two once Events is closed.
type ProgressChannel struct {
	events chan model.ProgressEvent

	mu  sync.Mutex
	err error
}

func newProgressChannel() *ProgressChannel {
	return &ProgressChannel{events: make(chan model.ProgressEvent, 16)}
}

// Events returns the ordered event stream.
func (c *ProgressChannel) Events() <-chan model.ProgressEvent {
	return c.events
}

// Err reports why Events closed: nil after a clean terminal event, a
// SYN_CHANNEL_INTERRUPTED error when the transport broke first. Only
// meaningful once Events is closed.
func (c *ProgressChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *ProgressChannel) deliver(ev model.ProgressEvent) {
	c.events <- ev
}

func (c *ProgressChannel) closeWith(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	close(c.events)
}
