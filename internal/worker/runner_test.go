// internal/worker/runner_test.go
package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VidSynth/vidsynth-studio-go/internal/model"
	"github.com/VidSynth/vidsynth-studio-go/internal/server"
	"github.com/VidSynth/vidsynth-studio-go/internal/storage"
)

func newProcessingSession(t *testing.T, store storage.Store, id string) {
	t.Helper()
	require.NoError(t, store.CreateSession(context.Background(), model.Session{
		ID:        id,
		State:     model.SessionProcessing,
		CreatedAt: time.Now().UTC(),
	}))
}

func collectUntilTerminal(t *testing.T, hub *server.ProgressHub, sessionID string) []model.ProgressEvent {
	t.Helper()

	replay, live := hub.Subscribe(sessionID)
	defer hub.Unsubscribe(sessionID, live)

	events := replay
	for _, ev := range replay {
		if ev.Status.Terminal() {
			return events
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-live:
			if !ok {
				return events
			}
			events = append(events, ev)
			if ev.Status.Terminal() {
				return events
			}
		case <-deadline:
			t.Fatal("no terminal event before deadline")
		}
	}
}

func TestRunnerCompletesSession(t *testing.T) {
	store := storage.NewMemory()
	hub := server.NewProgressHub()
	runner := NewRunner(store, hub, nil, nil, nil, 0)

	newProcessingSession(t, store, "sess-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)
	require.NoError(t, runner.Submit("sess-1"))

	events := collectUntilTerminal(t, hub, "sess-1")
	require.NotEmpty(t, events)

	// Progress climbs monotonically and ends with complete.
	last := 0.0
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Progress, last)
		last = ev.Progress
	}
	assert.Equal(t, model.ProgressComplete, events[len(events)-1].Status)

	sess, err := store.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionComplete, sess.State)
	assert.Equal(t, float64(1), sess.Progress)

	// The generated result asset is in the catalog.
	results, err := store.ListAssets(context.Background(), model.AssetKindResult)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, resultFilename("sess-1"), results[0].Filename)
}

func TestRunnerSkipsSessionsNotProcessing(t *testing.T) {
	store := storage.NewMemory()
	hub := server.NewProgressHub()
	runner := NewRunner(store, hub, nil, nil, nil, 0)

	require.NoError(t, store.CreateSession(context.Background(), model.Session{
		ID: "sess-1", State: model.SessionUploaded,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)
	require.NoError(t, runner.Submit("sess-1"))

	// Give the worker a moment; no events must appear and the state stays.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, hub.History("sess-1"))

	sess, err := store.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionUploaded, sess.State)
}

func TestRunnerProcessesSequentially(t *testing.T) {
	store := storage.NewMemory()
	hub := server.NewProgressHub()
	runner := NewRunner(store, hub, nil, nil, nil, 0)

	newProcessingSession(t, store, "sess-1")
	newProcessingSession(t, store, "sess-2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)
	require.NoError(t, runner.Submit("sess-1"))
	require.NoError(t, runner.Submit("sess-2"))

	first := collectUntilTerminal(t, hub, "sess-1")
	second := collectUntilTerminal(t, hub, "sess-2")
	assert.Equal(t, model.ProgressComplete, first[len(first)-1].Status)
	assert.Equal(t, model.ProgressComplete, second[len(second)-1].Status)

	results, err := store.ListAssets(context.Background(), model.AssetKindResult)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRunnerEmitsErrorWhenResultConflicts(t *testing.T) {
	store := storage.NewMemory()
	hub := server.NewProgressHub()
	runner := NewRunner(store, hub, nil, nil, nil, 0)

	newProcessingSession(t, store, "sess-1")

	// Pre-seed the result the runner will try to create.
	require.NoError(t, store.CreateAsset(context.Background(), model.Asset{
		Kind:      model.AssetKindResult,
		Filename:  resultFilename("sess-1"),
		CreatedAt: time.Now().Unix(),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)
	require.NoError(t, runner.Submit("sess-1"))

	events := collectUntilTerminal(t, hub, "sess-1")
	assert.Equal(t, model.ProgressError, events[len(events)-1].Status)

	sess, err := store.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionError, sess.State)
}
