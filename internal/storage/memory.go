// internal/storage/memory.go
// Package storage provides implementations of the Store interface
// for both in-memory and PostgreSQL storage backends.
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/VidSynth/vidsynth-studio-go/internal/model"
)

// Standard errors returned by the storage layer
var (
	ErrNotFound = errors.New("not found") // Returned when a session or asset is not found
	ErrConflict = errors.New("conflict")  // Returned when an identity key already exists
)

// Store interface defines the storage operations required by the synthesis
// backend. This interface is implemented by both in-memory and PostgreSQL
// storage backends.
type Store interface {
	// Session operations for managing generation jobs
	CreateSession(ctx context.Context, session model.Session) error                                              // Create a new session
	GetSession(ctx context.Context, id string) (*model.Session, error)                                           // Get a session by id
	UpdateSessionState(ctx context.Context, id string, state model.SessionState, progress float64, message string) error // Advance a session

	// Asset operations for the three catalog collections
	CreateAsset(ctx context.Context, asset model.Asset) error                                       // Create a new asset
	ListAssets(ctx context.Context, kind model.AssetKind) ([]model.Asset, error)                    // List one collection
	GetAsset(ctx context.Context, kind model.AssetKind, sessionID, filename string) (*model.Asset, error) // Get one asset by identity
	RenameAsset(ctx context.Context, kind model.AssetKind, sessionID, oldFilename, newFilename string) error // Rename within the identity scope
	DeleteAsset(ctx context.Context, kind model.AssetKind, sessionID, filename string) error        // Delete one asset
}

// memory implements the Store interface using in-memory storage.
// It's intended for development and testing purposes.
type memory struct {
	mu       sync.RWMutex              // Protects concurrent access to maps
	sessions map[string]*model.Session // Map of session id to session
	assets   map[string]*model.Asset   // Map of identity key to asset
}

// NewMemory creates a new in-memory storage implementation.
// Returns a Store interface that can be used for testing or development.
func NewMemory() Store {
	return &memory{
		sessions: make(map[string]*model.Session),
		assets:   make(map[string]*model.Asset),
	}
}

func (m *memory) CreateSession(ctx context.Context, session model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return ErrConflict
	}

	sessionCopy := session
	sessionCopy.Materials = append([]model.Asset(nil), session.Materials...)
	m.sessions[session.ID] = &sessionCopy
	return nil
}

func (m *memory) GetSession(ctx context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, ErrNotFound
	}

	sessionCopy := *session
	sessionCopy.Materials = append([]model.Asset(nil), session.Materials...)
	return &sessionCopy, nil
}

func (m *memory) UpdateSessionState(ctx context.Context, id string, state model.SessionState, progress float64, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[id]
	if !exists {
		return ErrNotFound
	}

	// Terminal sessions admit no further transitions.
	if session.State.Terminal() {
		return ErrConflict
	}

	session.State = state
	session.Progress = progress
	if message != "" {
		session.Message = message
	}
	return nil
}

func (m *memory) CreateAsset(ctx context.Context, asset model.Asset) error {
	if err := asset.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := asset.IdentityKey()
	if _, exists := m.assets[key]; exists {
		return ErrConflict
	}

	assetCopy := asset
	assetCopy.Tags = append([]string(nil), asset.Tags...)
	m.assets[key] = &assetCopy
	return nil
}

func (m *memory) ListAssets(ctx context.Context, kind model.AssetKind) ([]model.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	assets := make([]model.Asset, 0)
	for _, asset := range m.assets {
		if asset.Kind == kind {
			assets = append(assets, *asset)
		}
	}

	// Newest first, filename as the stable tie-break for map iteration order.
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].CreatedAt != assets[j].CreatedAt {
			return assets[i].CreatedAt > assets[j].CreatedAt
		}
		return assets[i].Filename < assets[j].Filename
	})
	return assets, nil
}

func (m *memory) GetAsset(ctx context.Context, kind model.AssetKind, sessionID, filename string) (*model.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	asset, exists := m.assets[identityKey(kind, sessionID, filename)]
	if !exists {
		return nil, ErrNotFound
	}

	assetCopy := *asset
	return &assetCopy, nil
}

func (m *memory) RenameAsset(ctx context.Context, kind model.AssetKind, sessionID, oldFilename, newFilename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldKey := identityKey(kind, sessionID, oldFilename)
	asset, exists := m.assets[oldKey]
	if !exists {
		return ErrNotFound
	}

	newKey := identityKey(kind, sessionID, newFilename)
	if _, exists := m.assets[newKey]; exists {
		return ErrConflict
	}

	delete(m.assets, oldKey)
	asset.Filename = newFilename
	m.assets[newKey] = asset
	return nil
}

func (m *memory) DeleteAsset(ctx context.Context, kind model.AssetKind, sessionID, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := identityKey(kind, sessionID, filename)
	if _, exists := m.assets[key]; !exists {
		return ErrNotFound
	}
	delete(m.assets, key)
	return nil
}

// identityKey mirrors model.Asset.IdentityKey for lookups that start from
// the identity parts rather than a full asset.
func identityKey(kind model.AssetKind, sessionID, filename string) string {
	return model.Asset{Kind: kind, SessionID: sessionID, Filename: filename}.IdentityKey()
}
