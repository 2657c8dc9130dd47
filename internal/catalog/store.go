// internal/catalog/store.go
// Package catalog maintains the unified asset catalog: a snapshot of the
// clip, reference, and result collections refreshed from the backend, plus
// the pure view derivation applied on top of it.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	errordefs "github.com/VidSynth/vidsynth-studio-go/internal/errors"
	"github.com/VidSynth/vidsynth-studio-go/internal/gateway"
	"github.com/VidSynth/vidsynth-studio-go/internal/intel"
	"github.com/VidSynth/vidsynth-studio-go/internal/metrics"
	"github.com/VidSynth/vidsynth-studio-go/internal/model"
)

// Store holds the catalog snapshot. Refresh replaces all three collections
// atomically or not at all; mutations apply locally only after the backend
// acknowledged them. All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	gw      gateway.CatalogGateway
	cache   *intel.Cache
	metrics *metrics.Metrics
	logger  *slog.Logger

	clips       []model.Asset
	references  []model.Asset
	results     []model.Asset
	refreshedAt time.Time
}

// NewStore creates an empty catalog store. The intel cache may be nil when
// intelligence lookups are not needed.
func NewStore(gw gateway.CatalogGateway, cache *intel.Cache, m *metrics.Metrics, logger *slog.Logger) *Store {
	if m == nil {
		m = metrics.NewMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{gw: gw, cache: cache, metrics: m, logger: logger}
}

// Refresh fetches the three collections concurrently and commits them as one
// snapshot. Any fetch failure aborts the whole refresh and leaves the
// previous snapshot untouched; a partially updated catalog is never visible.
func (s *Store) Refresh(ctx context.Context) error {
	start := time.Now()
	var clips, references, results []model.Asset

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if clips, err = s.gw.ListClips(gctx); err != nil {
			return fmt.Errorf("clips: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if references, err = s.gw.ListReferences(gctx); err != nil {
			return fmt.Errorf("references: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if results, err = s.gw.ListResults(gctx); err != nil {
			return fmt.Errorf("results: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.metrics.CatalogRefreshTotal.WithLabelValues("error").Inc()
		s.metrics.CatalogRefreshDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		s.logger.Error("catalog refresh failed", "error", err)
		return errordefs.Wrap(errordefs.SYN_CATALOG_FETCH_FAILED, "catalog refresh failed", err)
	}

	s.mu.Lock()
	s.clips = clips
	s.references = references
	s.results = results
	s.refreshedAt = time.Now().UTC()
	s.mu.Unlock()

	s.metrics.CatalogRefreshTotal.WithLabelValues("ok").Inc()
	s.metrics.CatalogRefreshDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	s.logger.Info("catalog refreshed",
		"clips", len(clips), "references", len(references), "results", len(results))
	return nil
}

// View derives the catalog view for the given filter from the current
// snapshot.
func (s *Store) View(filter model.CatalogFilter) model.CatalogView {
	clips, references, results := s.Snapshot()
	return DeriveView(clips, references, results, filter)
}

// Snapshot returns copies of the three collections.
func (s *Store) Snapshot() (clips, references, results []model.Asset) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Asset(nil), s.clips...),
		append([]model.Asset(nil), s.references...),
		append([]model.Asset(nil), s.results...)
}

// RefreshedAt returns when the snapshot was last committed, zero before the
// first successful refresh.
func (s *Store) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}

// Rename changes the filename of one asset. The new name must be non-empty
// and unique within the asset's identity scope; the local snapshot mutates
// only after the backend acknowledged the change.
func (s *Store) Rename(ctx context.Context, kind model.AssetKind, sessionID, oldFilename, newFilename string) error {
	if oldFilename == "" || newFilename == "" {
		return errordefs.New(errordefs.SYN_INVALID_INPUT, "rename requires both the current and the new filename", "")
	}
	if kind == model.AssetKindClip && sessionID == "" {
		return errordefs.New(errordefs.SYN_INVALID_INPUT, "renaming a clip requires its session id", "")
	}
	if oldFilename == newFilename {
		return errordefs.New(errordefs.SYN_INVALID_INPUT, "new filename equals the current one", "")
	}

	s.mu.RLock()
	target := s.findLocked(kind, sessionID, oldFilename)
	collision := s.findLocked(kind, sessionID, newFilename)
	s.mu.RUnlock()

	if target < 0 {
		return errordefs.New(errordefs.SYN_NOT_FOUND,
			fmt.Sprintf("%s %q not found", kind, oldFilename), "")
	}
	if collision >= 0 {
		return errordefs.New(errordefs.SYN_INVALID_INPUT,
			fmt.Sprintf("a %s named %q already exists", kind, newFilename), "")
	}

	if err := s.gw.Rename(ctx, kind, sessionID, oldFilename, newFilename); err != nil {
		if errordefs.CodeOf(err) == "" {
			err = errordefs.Wrap(errordefs.SYN_FETCH_FAILED, "rename not acknowledged", err)
		}
		return err
	}

	s.mu.Lock()
	if i := s.findLocked(kind, sessionID, oldFilename); i >= 0 {
		s.collectionLocked(kind)[i].Filename = newFilename
	}
	s.mu.Unlock()

	if s.cache != nil {
		s.cache.Invalidate(kind, oldFilename)
	}
	s.logger.Info("asset renamed", "kind", kind, "from", oldFilename, "to", newFilename)
	return nil
}

// DeleteClip removes one material clip after backend acknowledgement.
// Deleting a clip never cascades into results generated from it.
func (s *Store) DeleteClip(ctx context.Context, sessionID, filename string) error {
	s.mu.RLock()
	present := s.findLocked(model.AssetKindClip, sessionID, filename) >= 0
	s.mu.RUnlock()
	if !present {
		return errordefs.New(errordefs.SYN_NOT_FOUND, fmt.Sprintf("clip %q not found", filename), "")
	}

	if err := s.gw.DeleteClip(ctx, sessionID, filename); err != nil {
		if errordefs.CodeOf(err) == "" {
			err = errordefs.Wrap(errordefs.SYN_FETCH_FAILED, "clip delete not acknowledged", err)
		}
		return err
	}

	s.mu.Lock()
	if i := s.findLocked(model.AssetKindClip, sessionID, filename); i >= 0 {
		s.clips = append(s.clips[:i:i], s.clips[i+1:]...)
	}
	s.mu.Unlock()

	if s.cache != nil {
		s.cache.Invalidate(model.AssetKindClip, filename)
	}
	s.logger.Info("clip deleted", "session_id", sessionID, "filename", filename)
	return nil
}

// DeleteResult removes one generated result after backend acknowledgement.
func (s *Store) DeleteResult(ctx context.Context, filename string) error {
	s.mu.RLock()
	present := s.findLocked(model.AssetKindResult, "", filename) >= 0
	s.mu.RUnlock()
	if !present {
		return errordefs.New(errordefs.SYN_NOT_FOUND, fmt.Sprintf("result %q not found", filename), "")
	}

	if err := s.gw.DeleteResult(ctx, filename); err != nil {
		if errordefs.CodeOf(err) == "" {
			err = errordefs.Wrap(errordefs.SYN_FETCH_FAILED, "result delete not acknowledged", err)
		}
		return err
	}

	s.mu.Lock()
	if i := s.findLocked(model.AssetKindResult, "", filename); i >= 0 {
		s.results = append(s.results[:i:i], s.results[i+1:]...)
	}
	s.mu.Unlock()

	if s.cache != nil {
		s.cache.Invalidate(model.AssetKindResult, filename)
	}
	s.logger.Info("result deleted", "filename", filename)
	return nil
}

// Intelligence returns the memoized analysis document for one asset. The
// store must carry an intel cache for this to work.
func (s *Store) Intelligence(ctx context.Context, kind model.AssetKind, filename string) (doc []byte, err error) {
	if s.cache == nil {
		return nil, errordefs.New(errordefs.SYN_UNAVAILABLE, "intelligence cache not configured", "")
	}
	raw, err := s.cache.Fetch(ctx, kind, filename)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// findLocked returns the snapshot index of one asset, or -1. Callers hold
// s.mu. The sessionID is only consulted for clips.
func (s *Store) findLocked(kind model.AssetKind, sessionID, filename string) int {
	col := s.collectionLocked(kind)
	for i := range col {
		if col[i].Filename != filename {
			continue
		}
		if kind == model.AssetKindClip && col[i].SessionID != sessionID {
			continue
		}
		return i
	}
	return -1
}

func (s *Store) collectionLocked(kind model.AssetKind) []model.Asset {
	switch kind {
	case model.AssetKindClip:
		return s.clips
	case model.AssetKindReference:
		return s.references
	default:
		return s.results
	}
}
