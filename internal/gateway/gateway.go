// internal/gateway/gateway.go
// Package gateway defines the external-collaborator boundary of the synthesis
// core: the session and catalog endpoints that the orchestrator and the
// catalog store depend on. The HTTP implementation talks to a synthd backend;
// the in-memory implementation backs tests and development.
package gateway

import (
	"context"
	"encoding/json"

	"github.com/VidSynth/vidsynth-studio-go/internal/model"
)

// SessionGateway exposes the backend operations that drive one generation
// session. Failed calls never advance backend state, so every operation is
// safe to retry by re-invoking it.
type SessionGateway interface {
	// Upload persists the staged reference and material assets and returns
	// the backend-assigned session identifier.
	Upload(ctx context.Context, reference model.Asset, materials []model.Asset) (string, error)

	// StartGeneration requests generation for an uploaded session.
	StartGeneration(ctx context.Context, sessionID string) error

	// SubscribeProgress opens an ordered event stream for one session. The
	// stream is infinite until a terminal status arrives, after which it is
	// closed and not restartable.
	SubscribeProgress(ctx context.Context, sessionID string) (ProgressStream, error)
}

// CatalogGateway exposes the three listing endpoints plus the catalog
// mutation and metadata operations.
type CatalogGateway interface {
	ListClips(ctx context.Context) ([]model.Asset, error)
	ListReferences(ctx context.Context) ([]model.Asset, error)
	ListResults(ctx context.Context) ([]model.Asset, error)

	// Rename persists a filename change for one asset. SessionID is required
	// for clips and ignored for the other kinds.
	Rename(ctx context.Context, kind model.AssetKind, sessionID, oldFilename, newFilename string) error

	DeleteClip(ctx context.Context, sessionID, filename string) error
	DeleteResult(ctx context.Context, filename string) error

	// FetchIntelligence returns the opaque analysis document for one asset.
	// Memoization is the caller's concern (see the intel package).
	FetchIntelligence(ctx context.Context, kind model.AssetKind, filename string) (json.RawMessage, error)
}

// ProgressStream delivers progress events for exactly one session in the
// order the backend emitted them. Events is closed after the first terminal
// event, or earlier if the transport breaks; in the latter case Err returns
// a SYN_CHANNEL_INTERRUPTED error. Transport failure is never reinterpreted
// as job failure.
type ProgressStream interface {
	Events() <-chan model.ProgressEvent

	// Err reports why Events closed. It is nil after a clean terminal event
	// and must only be consulted once Events is closed.
	Err() error

	// Close abandons observation. The backend job keeps running; only the
	// subscription is torn down.
	Close() error
}
