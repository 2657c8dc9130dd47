// internal/intel/cache_test.go
package intel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errordefs "github.com/VidSynth/vidsynth-studio-go/internal/errors"
	"github.com/VidSynth/vidsynth-studio-go/internal/gateway"
	"github.com/VidSynth/vidsynth-studio-go/internal/model"
)

func TestFetchMemoizesPerAsset(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	c := NewCache(gw)

	ctx := context.Background()
	first, err := c.Fetch(ctx, model.AssetKindClip, "a.mp4")
	require.NoError(t, err)
	second, err := c.Fetch(ctx, model.AssetKindClip, "a.mp4")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, gw.FetchIntelCalls)
	assert.Equal(t, 1, c.Len())
}

func TestFetchFailureIsNotCached(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	gw.FetchIntelErr = errordefs.New(errordefs.SYN_FETCH_FAILED, "backend down", "")
	c := NewCache(gw)

	ctx := context.Background()
	_, err := c.Fetch(ctx, model.AssetKindResult, "out.mp4")
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_FETCH_FAILED, errordefs.CodeOf(err))
	assert.Zero(t, c.Len())

	// After the backend recovers, the next lookup succeeds and caches.
	gw.FetchIntelErr = nil
	_, err = c.Fetch(ctx, model.AssetKindResult, "out.mp4")
	require.NoError(t, err)
	assert.Equal(t, 2, gw.FetchIntelCalls)
	assert.Equal(t, 1, c.Len())
}

func TestInvalidateDropsOnlyTheNamedEntry(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	c := NewCache(gw)

	ctx := context.Background()
	_, err := c.Fetch(ctx, model.AssetKindClip, "a.mp4")
	require.NoError(t, err)
	_, err = c.Fetch(ctx, model.AssetKindClip, "b.mp4")
	require.NoError(t, err)

	c.Invalidate(model.AssetKindClip, "a.mp4")
	assert.Equal(t, 1, c.Len())

	_, err = c.Fetch(ctx, model.AssetKindClip, "b.mp4")
	require.NoError(t, err)
	assert.Equal(t, 2, gw.FetchIntelCalls, "surviving entry still hits the cache")
}
