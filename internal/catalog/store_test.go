// internal/catalog/store_test.go
package catalog

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errordefs "github.com/VidSynth/vidsynth-studio-go/internal/errors"
	"github.com/VidSynth/vidsynth-studio-go/internal/gateway"
	"github.com/VidSynth/vidsynth-studio-go/internal/intel"
	"github.com/VidSynth/vidsynth-studio-go/internal/metrics"
	"github.com/VidSynth/vidsynth-studio-go/internal/model"
)

func seededGateway() *gateway.MemoryGateway {
	gw := gateway.NewMemoryGateway()
	gw.SeedClips(
		clip("s1", "a.mp4", 100, "outdoor"),
		clip("s1", "b.mp4", 200),
	)
	gw.SeedReferences(reference("ref.mp4", 150))
	gw.SeedResults(result("out.mp4", 300))
	return gw
}

func TestRefreshCommitsAllThreeCollections(t *testing.T) {
	gw := seededGateway()
	s := NewStore(gw, nil, nil, nil)

	require.NoError(t, s.Refresh(context.Background()))

	clips, refs, results := s.Snapshot()
	assert.Len(t, clips, 2)
	assert.Len(t, refs, 1)
	assert.Len(t, results, 1)
	assert.False(t, s.RefreshedAt().IsZero())
}

func TestRefreshFailureLeavesSnapshotUntouched(t *testing.T) {
	gw := seededGateway()
	s := NewStore(gw, nil, nil, nil)
	require.NoError(t, s.Refresh(context.Background()))
	before := s.View(model.CatalogFilter{})

	// Add new data, then make one of the three fetches fail: none of it may
	// become visible.
	gw.SeedResults(result("out.mp4", 300), result("new.mp4", 999))
	gw.ListClipsErr = errordefs.New(errordefs.SYN_FETCH_FAILED, "backend down", "")

	err := s.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_CATALOG_FETCH_FAILED, errordefs.CodeOf(err))
	assert.Equal(t, before, s.View(model.CatalogFilter{}), "failed refresh must not change the view")
}

func TestRefreshBeforeFirstSuccessYieldsEmptyView(t *testing.T) {
	gw := seededGateway()
	gw.ListResultsErr = errordefs.New(errordefs.SYN_FETCH_FAILED, "backend down", "")
	s := NewStore(gw, nil, nil, nil)

	require.Error(t, s.Refresh(context.Background()))
	view := s.View(model.CatalogFilter{})
	assert.Empty(t, view.All)
	assert.Empty(t, view.Recent)
}

func TestRenameAcknowledgedBeforeLocalMutation(t *testing.T) {
	gw := seededGateway()
	s := NewStore(gw, nil, nil, nil)
	require.NoError(t, s.Refresh(context.Background()))

	gw.RenameErr = errordefs.New(errordefs.SYN_FETCH_FAILED, "backend down", "")
	err := s.Rename(context.Background(), model.AssetKindClip, "s1", "a.mp4", "renamed.mp4")
	require.Error(t, err)

	view := s.View(model.CatalogFilter{SearchQuery: "renamed"})
	assert.Empty(t, view.All, "unacknowledged rename must not mutate the snapshot")

	gw.RenameErr = nil
	require.NoError(t, s.Rename(context.Background(), model.AssetKindClip, "s1", "a.mp4", "renamed.mp4"))
	view = s.View(model.CatalogFilter{SearchQuery: "renamed"})
	require.Len(t, view.All, 1)
	assert.Equal(t, "renamed.mp4", view.All[0].Filename)
}

func TestRenameValidation(t *testing.T) {
	gw := seededGateway()
	s := NewStore(gw, nil, nil, nil)
	require.NoError(t, s.Refresh(context.Background()))

	cases := []struct {
		name string
		kind model.AssetKind
		sess string
		old  string
		new  string
		code errordefs.ErrorCode
	}{
		{"empty new name", model.AssetKindClip, "s1", "a.mp4", "", errordefs.SYN_INVALID_INPUT},
		{"empty old name", model.AssetKindClip, "s1", "", "x.mp4", errordefs.SYN_INVALID_INPUT},
		{"clip without session", model.AssetKindClip, "", "a.mp4", "x.mp4", errordefs.SYN_INVALID_INPUT},
		{"unchanged name", model.AssetKindClip, "s1", "a.mp4", "a.mp4", errordefs.SYN_INVALID_INPUT},
		{"collision in scope", model.AssetKindClip, "s1", "a.mp4", "b.mp4", errordefs.SYN_INVALID_INPUT},
		{"missing asset", model.AssetKindResult, "", "nope.mp4", "x.mp4", errordefs.SYN_NOT_FOUND},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Rename(context.Background(), tc.kind, tc.sess, tc.old, tc.new)
			require.Error(t, err)
			assert.Equal(t, tc.code, errordefs.CodeOf(err))
		})
	}
	assert.Zero(t, gw.RenameCalls, "rejected renames must not reach the backend")
}

func TestRenameAllowsEqualFilenamesAcrossSessions(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	gw.SeedClips(
		clip("s1", "take.mp4", 100),
		clip("s2", "take.mp4", 200),
		clip("s2", "other.mp4", 300),
	)
	s := NewStore(gw, nil, nil, nil)
	require.NoError(t, s.Refresh(context.Background()))

	// "take.mp4" exists in s2 but not under s1's scope: no collision.
	require.NoError(t, s.Rename(context.Background(), model.AssetKindClip, "s2", "other.mp4", "fresh.mp4"))

	// Within one session the collision holds.
	gw.SeedClips(clip("s1", "one.mp4", 100), clip("s1", "two.mp4", 200))
	require.NoError(t, s.Refresh(context.Background()))
	err := s.Rename(context.Background(), model.AssetKindClip, "s1", "one.mp4", "two.mp4")
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_INVALID_INPUT, errordefs.CodeOf(err))
}

func TestDeleteClipAndResult(t *testing.T) {
	gw := seededGateway()
	s := NewStore(gw, nil, nil, nil)
	require.NoError(t, s.Refresh(context.Background()))

	require.NoError(t, s.DeleteClip(context.Background(), "s1", "a.mp4"))
	clips, _, _ := s.Snapshot()
	assert.Len(t, clips, 1)

	require.NoError(t, s.DeleteResult(context.Background(), "out.mp4"))
	_, _, results := s.Snapshot()
	assert.Empty(t, results)

	// Deleting a clip never cascades into results, and vice versa.
	err := s.DeleteClip(context.Background(), "s1", "a.mp4")
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_NOT_FOUND, errordefs.CodeOf(err))
}

func TestDeleteUnacknowledgedKeepsAsset(t *testing.T) {
	gw := seededGateway()
	s := NewStore(gw, nil, nil, nil)
	require.NoError(t, s.Refresh(context.Background()))

	gw.DeleteErr = errordefs.New(errordefs.SYN_FETCH_FAILED, "backend down", "")
	err := s.DeleteResult(context.Background(), "out.mp4")
	require.Error(t, err)

	_, _, results := s.Snapshot()
	assert.Len(t, results, 1)
}

func TestIntelligenceMemoized(t *testing.T) {
	gw := seededGateway()
	cache := intel.NewCache(gw)
	s := NewStore(gw, cache, nil, nil)
	require.NoError(t, s.Refresh(context.Background()))

	first, err := s.Intelligence(context.Background(), model.AssetKindClip, "a.mp4")
	require.NoError(t, err)
	second, err := s.Intelligence(context.Background(), model.AssetKindClip, "a.mp4")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, gw.FetchIntelCalls, "repeat lookups must hit the cache")

	// Same filename under a different kind is a distinct entry.
	_, err = s.Intelligence(context.Background(), model.AssetKindResult, "a.mp4")
	require.NoError(t, err)
	assert.Equal(t, 2, gw.FetchIntelCalls)
}

func TestIntelligenceInvalidatedOnRename(t *testing.T) {
	gw := seededGateway()
	cache := intel.NewCache(gw)
	s := NewStore(gw, cache, nil, nil)
	require.NoError(t, s.Refresh(context.Background()))

	_, err := s.Intelligence(context.Background(), model.AssetKindClip, "a.mp4")
	require.NoError(t, err)
	require.Equal(t, 1, gw.FetchIntelCalls)

	require.NoError(t, s.Rename(context.Background(), model.AssetKindClip, "s1", "a.mp4", "moved.mp4"))

	_, err = s.Intelligence(context.Background(), model.AssetKindClip, "moved.mp4")
	require.NoError(t, err)
	assert.Equal(t, 2, gw.FetchIntelCalls, "rename drops the stale cache entry")
}

func TestRefreshRecordsMetrics(t *testing.T) {
	gw := seededGateway()
	m := metrics.NewMetrics()
	s := NewStore(gw, nil, m, nil)

	// The metrics instance is process-global, so assert on deltas.
	okBefore := testutil.ToFloat64(m.CatalogRefreshTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(m.CatalogRefreshTotal.WithLabelValues("error"))

	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, okBefore+1, testutil.ToFloat64(m.CatalogRefreshTotal.WithLabelValues("ok")))

	gw.ListClipsErr = errordefs.New(errordefs.SYN_FETCH_FAILED, "backend down", "")
	require.Error(t, s.Refresh(context.Background()))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(m.CatalogRefreshTotal.WithLabelValues("error")))
}
