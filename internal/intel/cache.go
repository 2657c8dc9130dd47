// internal/intel/cache.go
// Package intel memoizes per-asset intelligence documents. The documents are
// opaque to this service; the cache only guarantees that repeated lookups for
// the same asset hit the backend once.
package intel

import (
	"context"
	"encoding/json"
	"sync"

	errordefs "github.com/VidSynth/vidsynth-studio-go/internal/errors"
	"github.com/VidSynth/vidsynth-studio-go/internal/gateway"
	"github.com/VidSynth/vidsynth-studio-go/internal/model"
)

// Cache is a memoizing front for CatalogGateway.FetchIntelligence. Entries
// never expire on their own; Invalidate drops the entry for an asset whose
// identity changed (rename) or that was removed (delete). Failed fetches are
// not cached, so the next lookup retries.
type Cache struct {
	mu      sync.Mutex
	gw      gateway.CatalogGateway
	entries map[string]json.RawMessage
}

// NewCache creates an empty cache backed by gw.
func NewCache(gw gateway.CatalogGateway) *Cache {
	return &Cache{
		gw:      gw,
		entries: make(map[string]json.RawMessage),
	}
}

// Fetch returns the intelligence document for one asset, consulting the
// backend only on the first call per (kind, filename).
func (c *Cache) Fetch(ctx context.Context, kind model.AssetKind, filename string) (json.RawMessage, error) {
	key := cacheKey(kind, filename)

	c.mu.Lock()
	if doc, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return doc, nil
	}
	c.mu.Unlock()

	doc, err := c.gw.FetchIntelligence(ctx, kind, filename)
	if err != nil {
		if errordefs.CodeOf(err) == "" {
			err = errordefs.Wrap(errordefs.SYN_FETCH_FAILED, "intelligence fetch failed", err)
		}
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = doc
	c.mu.Unlock()
	return doc, nil
}

// Invalidate drops the cached document for one asset, if present.
func (c *Cache) Invalidate(kind model.AssetKind, filename string) {
	c.mu.Lock()
	delete(c.entries, cacheKey(kind, filename))
	c.mu.Unlock()
}

// Len returns the number of cached documents.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func cacheKey(kind model.AssetKind, filename string) string {
	return string(kind) + ":" + filename
}
