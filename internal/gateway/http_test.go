// internal/gateway/http_test.go
// End-to-end tests driving the HTTP client against a real backend mux with an
// in-memory store and a running generation worker.
package gateway_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errordefs "github.com/VidSynth/vidsynth-studio-go/internal/errors"
	"github.com/VidSynth/vidsynth-studio-go/internal/gateway"
	"github.com/VidSynth/vidsynth-studio-go/internal/model"
	"github.com/VidSynth/vidsynth-studio-go/internal/server"
	"github.com/VidSynth/vidsynth-studio-go/internal/session"
	"github.com/VidSynth/vidsynth-studio-go/internal/storage"
	"github.com/VidSynth/vidsynth-studio-go/internal/worker"
)

type backend struct {
	store  storage.Store
	client *gateway.Client
}

// newBackend starts a full synthd stack over httptest: in-memory storage, the
// progress hub, the generation worker with a short step delay, and the HTTP
// mux. Returns a gateway client pointed at it.
func newBackend(t *testing.T) *backend {
	t.Helper()

	store := storage.NewMemory()
	hub := server.NewProgressHub()
	runner := worker.NewRunner(store, hub, nil, nil, nil, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	runner.Start(ctx)
	t.Cleanup(func() {
		cancel()
		runner.Wait()
	})

	mux, err := server.NewMux(server.Deps{
		Store:        store,
		Hub:          hub,
		Submit:       runner.Submit,
		MaxMediaSize: 64 << 20,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &backend{store: store, client: gateway.NewClient(srv.URL)}
}

func stagedInputs() (model.Asset, []model.Asset) {
	now := time.Now().Unix()
	reference := model.Asset{Kind: model.AssetKindReference, Filename: "ref.mp4", Size: 2048, CreatedAt: now}
	materials := []model.Asset{
		{Kind: model.AssetKindClip, Filename: "a.mp4", Size: 1024, CreatedAt: now, Tags: []string{"outdoor"}},
		{Kind: model.AssetKindClip, Filename: "b.mp4", Size: 512, CreatedAt: now},
	}
	return reference, materials
}

func TestClientFullGenerationFlow(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	reference, materials := stagedInputs()
	sessionID, err := b.client.Upload(ctx, reference, materials)
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	require.NoError(t, b.client.StartGeneration(ctx, sessionID))

	stream, err := b.client.SubscribeProgress(ctx, sessionID)
	require.NoError(t, err)
	defer stream.Close()

	var events []model.ProgressEvent
	deadline := time.After(5 * time.Second)
collect:
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				break collect
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("timed out waiting for progress events")
		}
	}

	require.NoError(t, stream.Err())
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, model.ProgressComplete, last.Status)
	assert.InDelta(t, 1.0, last.Progress, 1e-9)

	prev := -1.0
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Progress, prev, "progress went backward")
		prev = ev.Progress
	}

	results, err := b.client.ListResults(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "synthesis_"+strings.ToLower(sessionID)+".mp4", results[0].Filename)

	clips, err := b.client.ListClips(ctx)
	require.NoError(t, err)
	assert.Len(t, clips, 2)

	references, err := b.client.ListReferences(ctx)
	require.NoError(t, err)
	assert.Len(t, references, 1)
}

func TestOrchestratorOverHTTP(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	reference, materials := stagedInputs()
	orch := session.NewOrchestrator(b.client, nil)
	require.NoError(t, orch.Stage(reference, materials))
	require.NoError(t, orch.Submit(ctx))

	sess, ok := orch.Session()
	require.True(t, ok)
	assert.Equal(t, model.SessionProcessing, sess.State)

	ch, err := orch.Observe(ctx)
	require.NoError(t, err)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch.Events():
			if !ok {
				require.NoError(t, ch.Err())
				sess, _ := orch.Session()
				assert.Equal(t, model.SessionComplete, sess.State)
				assert.InDelta(t, 1.0, sess.Progress, 1e-9)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for the session to complete")
		}
	}
}

func TestUploadRejectsInvalidManifest(t *testing.T) {
	b := newBackend(t)

	reference, _ := stagedInputs()
	_, err := b.client.Upload(context.Background(), reference, nil)
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_UPLOAD_FAILED, errordefs.CodeOf(err))
}

func TestStartGenerationUnknownSession(t *testing.T) {
	b := newBackend(t)

	err := b.client.StartGeneration(context.Background(), "no-such-session")
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_GENERATION_START_FAILED, errordefs.CodeOf(err))
}

func TestSubscribeProgressUnknownSession(t *testing.T) {
	b := newBackend(t)

	_, err := b.client.SubscribeProgress(context.Background(), "no-such-session")
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_CHANNEL_INTERRUPTED, errordefs.CodeOf(err))
}

func TestSubscribeProgressReplaysHistory(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	reference, materials := stagedInputs()
	sessionID, err := b.client.Upload(ctx, reference, materials)
	require.NoError(t, err)
	require.NoError(t, b.client.StartGeneration(ctx, sessionID))

	// Let the job run to completion before subscribing; the late subscriber
	// must still see the full ordered history.
	require.Eventually(t, func() bool {
		sess, err := b.store.GetSession(ctx, sessionID)
		return err == nil && sess.State.Terminal()
	}, 5*time.Second, 5*time.Millisecond)

	stream, err := b.client.SubscribeProgress(ctx, sessionID)
	require.NoError(t, err)
	defer stream.Close()

	var events []model.ProgressEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				require.NoError(t, stream.Err())
				require.NotEmpty(t, events)
				assert.Equal(t, model.ProgressComplete, events[len(events)-1].Status)
				assert.Greater(t, len(events), 1, "expected the full staged history, not just the terminal event")
				return
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("timed out waiting for replayed events")
		}
	}
}

func TestRenameAndDeleteOverHTTP(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	reference, materials := stagedInputs()
	sessionID, err := b.client.Upload(ctx, reference, materials)
	require.NoError(t, err)

	require.NoError(t, b.client.Rename(ctx, model.AssetKindClip, sessionID, "a.mp4", "renamed.mp4"))

	clips, err := b.client.ListClips(ctx)
	require.NoError(t, err)
	var filenames []string
	for _, c := range clips {
		filenames = append(filenames, c.Filename)
	}
	assert.Contains(t, filenames, "renamed.mp4")
	assert.NotContains(t, filenames, "a.mp4")

	err = b.client.Rename(ctx, model.AssetKindClip, sessionID, "ghost.mp4", "x.mp4")
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_NOT_FOUND, errordefs.CodeOf(err))

	require.NoError(t, b.client.DeleteClip(ctx, sessionID, "b.mp4"))
	err = b.client.DeleteClip(ctx, sessionID, "b.mp4")
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_NOT_FOUND, errordefs.CodeOf(err))
}

func TestFetchIntelligenceOverHTTP(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	reference, materials := stagedInputs()
	_, err := b.client.Upload(ctx, reference, materials)
	require.NoError(t, err)

	doc, err := b.client.FetchIntelligence(ctx, model.AssetKindClip, "a.mp4")
	require.NoError(t, err)
	assert.Contains(t, string(doc), "a.mp4")

	_, err = b.client.FetchIntelligence(ctx, model.AssetKindClip, "ghost.mp4")
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_NOT_FOUND, errordefs.CodeOf(err))
}
