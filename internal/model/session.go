// internal/model/session.go
package model

import "time"

// SessionState represents the lifecycle of one generation session.
type SessionState string

const (
	SessionCreated    SessionState = "created"    // Inputs staged locally, nothing persisted
	SessionUploaded   SessionState = "uploaded"   // Backend acknowledged the upload
	SessionProcessing SessionState = "processing" // Generation start acknowledged
	SessionComplete   SessionState = "complete"   // Terminal: generation finished
	SessionError      SessionState = "error"      // Terminal: generation failed
)

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	return s == SessionComplete || s == SessionError
}

// Session represents one generation job. The ID is an opaque token assigned
// by the backend; it is never client-generated, and no retry reuses it.
// Terminal states are set exclusively by inbound progress events.
type Session struct {
	ID        string       `json:"id" db:"id"`
	State     SessionState `json:"state" db:"state"`
	Progress  float64      `json:"progress" db:"progress"` // In [0,1], monotone while processing
	Message   string       `json:"message,omitempty" db:"message"`
	Reference Asset        `json:"reference"` // Exactly one
	Materials []Asset      `json:"materials"` // Ordered, length >= 1
	CreatedAt time.Time    `json:"createdAt" db:"created_at"`
}

// ProgressStatus is the status field of one progress event.
type ProgressStatus string

const (
	ProgressUploaded   ProgressStatus = "uploaded"
	ProgressProcessing ProgressStatus = "processing"
	ProgressComplete   ProgressStatus = "complete"
	ProgressError      ProgressStatus = "error"
)

// Terminal reports whether the status closes the event stream.
func (s ProgressStatus) Terminal() bool {
	return s == ProgressComplete || s == ProgressError
}

// ProgressEvent is one update describing job status, fractional completion,
// and a human-readable message. Events for a session form an ordered,
// append-only sequence that ends with the first terminal status.
type ProgressEvent struct {
	Status   ProgressStatus `json:"status"`
	Progress float64        `json:"progress"` // In [0,1]
	Message  string         `json:"message,omitempty"`
}
