// internal/session/orchestrator_test.go
package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errordefs "github.com/VidSynth/vidsynth-studio-go/internal/errors"
	"github.com/VidSynth/vidsynth-studio-go/internal/gateway"
	"github.com/VidSynth/vidsynth-studio-go/internal/model"
)

func stagedInputs() (model.Asset, []model.Asset) {
	ref := model.Asset{Kind: model.AssetKindReference, Filename: "ref.mp4", Size: 100}
	mats := []model.Asset{
		{Kind: model.AssetKindClip, Filename: "a.mp4", Size: 10},
		{Kind: model.AssetKindClip, Filename: "b.mp4", Size: 20},
	}
	return ref, mats
}

func happyScript() []model.ProgressEvent {
	return []model.ProgressEvent{
		{Status: model.ProgressProcessing, Progress: 0.25, Message: "analyzing"},
		{Status: model.ProgressProcessing, Progress: 0.75, Message: "rendering"},
		{Status: model.ProgressComplete, Progress: 1, Message: "done"},
	}
}

func TestStageRejectsEmptyMaterialsWithoutNetworkCall(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	o := NewOrchestrator(gw, nil)

	ref, _ := stagedInputs()
	err := o.Stage(ref, nil)
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_INVALID_INPUT, errordefs.CodeOf(err))
	assert.Zero(t, gw.UploadCalls, "invalid input must fail before any network activity")

	_, ok := o.Session()
	assert.False(t, ok, "rejected staging must not create a session")
}

func TestStageRejectsMissingReference(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	o := NewOrchestrator(gw, nil)

	_, mats := stagedInputs()
	err := o.Stage(model.Asset{}, mats)
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_INVALID_INPUT, errordefs.CodeOf(err))
	assert.Zero(t, gw.UploadCalls)
}

func TestStageRejectsDuplicateMaterialFilenames(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	o := NewOrchestrator(gw, nil)

	ref, _ := stagedInputs()
	mats := []model.Asset{
		{Kind: model.AssetKindClip, Filename: "same.mp4"},
		{Kind: model.AssetKindClip, Filename: "same.mp4"},
	}
	err := o.Stage(ref, mats)
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_INVALID_INPUT, errordefs.CodeOf(err))
}

func TestSubmitAdvancesThroughUploadedToProcessing(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	o := NewOrchestrator(gw, nil)

	ref, mats := stagedInputs()
	require.NoError(t, o.Stage(ref, mats))
	require.NoError(t, o.Submit(context.Background()))

	sess, ok := o.Session()
	require.True(t, ok)
	assert.Equal(t, model.SessionProcessing, sess.State)
	assert.NotEmpty(t, sess.ID, "backend assigns the session id")
	assert.Equal(t, 1, gw.UploadCalls)
	assert.Equal(t, 1, gw.StartCalls)
}

func TestSubmitUploadFailureStaysCreated(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	gw.UploadErr = errordefs.New(errordefs.SYN_UPLOAD_FAILED, "backend down", "")
	o := NewOrchestrator(gw, nil)

	ref, mats := stagedInputs()
	require.NoError(t, o.Stage(ref, mats))

	err := o.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_UPLOAD_FAILED, errordefs.CodeOf(err))

	sess, ok := o.Session()
	require.True(t, ok)
	assert.Equal(t, model.SessionCreated, sess.State)
	assert.Empty(t, sess.ID)
	assert.Zero(t, gw.StartCalls, "generation must not start after a failed upload")
}

func TestSubmitRetryAfterStartFailureSkipsUpload(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	gw.StartErr = errordefs.New(errordefs.SYN_GENERATION_START_FAILED, "queue full", "")
	o := NewOrchestrator(gw, nil)

	ref, mats := stagedInputs()
	require.NoError(t, o.Stage(ref, mats))

	err := o.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_GENERATION_START_FAILED, errordefs.CodeOf(err))

	sess, _ := o.Session()
	assert.Equal(t, model.SessionUploaded, sess.State, "upload survives a failed start")

	// Retry: the upload must not repeat, only the start.
	gw.StartErr = nil
	require.NoError(t, o.Submit(context.Background()))

	sess, _ = o.Session()
	assert.Equal(t, model.SessionProcessing, sess.State)
	assert.Equal(t, 1, gw.UploadCalls, "retry must not re-upload")
	assert.Equal(t, 2, gw.StartCalls)
}

func TestSubmitRejectedOutsideCreatedOrUploaded(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	o := NewOrchestrator(gw, nil)

	err := o.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_INVALID_INPUT, errordefs.CodeOf(err))

	ref, mats := stagedInputs()
	require.NoError(t, o.Stage(ref, mats))
	require.NoError(t, o.Submit(context.Background()))

	err = o.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_INVALID_INPUT, errordefs.CodeOf(err))
}

func TestObserveDeliversOrderedEventsAndCompletes(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	o := NewOrchestrator(gw, nil)

	ref, mats := stagedInputs()
	require.NoError(t, o.Stage(ref, mats))
	require.NoError(t, o.Submit(context.Background()))

	sess, _ := o.Session()
	gw.ScriptProgress(sess.ID, happyScript()...)

	ch, err := o.Observe(context.Background())
	require.NoError(t, err)

	var got []model.ProgressEvent
	for ev := range ch.Events() {
		got = append(got, ev)
	}
	require.NoError(t, ch.Err())
	require.Len(t, got, 3)
	assert.Equal(t, model.ProgressComplete, got[2].Status)
	assert.Equal(t, []float64{0.25, 0.75, 1}, []float64{got[0].Progress, got[1].Progress, got[2].Progress})

	sess, _ = o.Session()
	assert.Equal(t, model.SessionComplete, sess.State)
	assert.Equal(t, float64(1), sess.Progress)
}

func TestObserveErrorEventIsTerminal(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	o := NewOrchestrator(gw, nil)

	ref, mats := stagedInputs()
	require.NoError(t, o.Stage(ref, mats))
	require.NoError(t, o.Submit(context.Background()))

	sess, _ := o.Session()
	gw.ScriptProgress(sess.ID,
		model.ProgressEvent{Status: model.ProgressProcessing, Progress: 0.5},
		model.ProgressEvent{Status: model.ProgressError, Message: "render failed"},
	)

	ch, err := o.Observe(context.Background())
	require.NoError(t, err)

	var last model.ProgressEvent
	for ev := range ch.Events() {
		last = ev
	}
	require.NoError(t, ch.Err(), "a terminal error event is a clean close, not an interruption")
	assert.Equal(t, model.ProgressError, last.Status)

	sess, _ = o.Session()
	assert.Equal(t, model.SessionError, sess.State)
	assert.Equal(t, "render failed", sess.Message)
}

func TestObserveInterruptionIsNotJobFailure(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	gw.InterruptAfter = 1
	o := NewOrchestrator(gw, nil)

	ref, mats := stagedInputs()
	require.NoError(t, o.Stage(ref, mats))
	require.NoError(t, o.Submit(context.Background()))

	sess, _ := o.Session()
	gw.ScriptProgress(sess.ID, happyScript()...)

	ch, err := o.Observe(context.Background())
	require.NoError(t, err)

	var got []model.ProgressEvent
	for ev := range ch.Events() {
		got = append(got, ev)
	}
	require.Len(t, got, 1)
	require.Error(t, ch.Err())
	assert.Equal(t, errordefs.SYN_CHANNEL_INTERRUPTED, errordefs.CodeOf(ch.Err()))

	// The job keeps its non-terminal state: interruption never becomes error.
	sess, _ = o.Session()
	assert.Equal(t, model.SessionProcessing, sess.State)
}

func TestObserveRequiresProcessingState(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	o := NewOrchestrator(gw, nil)

	_, err := o.Observe(context.Background())
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_INVALID_INPUT, errordefs.CodeOf(err))

	ref, mats := stagedInputs()
	require.NoError(t, o.Stage(ref, mats))
	_, err = o.Observe(context.Background())
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_INVALID_INPUT, errordefs.CodeOf(err))
}

func TestProgressNeverMovesBackward(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	o := NewOrchestrator(gw, nil)

	ref, mats := stagedInputs()
	require.NoError(t, o.Stage(ref, mats))
	require.NoError(t, o.Submit(context.Background()))

	sess, _ := o.Session()
	gw.ScriptProgress(sess.ID,
		model.ProgressEvent{Status: model.ProgressProcessing, Progress: 0.6},
		model.ProgressEvent{Status: model.ProgressProcessing, Progress: 0.3},
		model.ProgressEvent{Status: model.ProgressComplete, Progress: 1},
	)

	ch, err := o.Observe(context.Background())
	require.NoError(t, err)

	for range ch.Events() {
	}
	sess, _ = o.Session()
	assert.Equal(t, model.SessionComplete, sess.State)
}

func TestStageReplacesFinishedSession(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	o := NewOrchestrator(gw, nil)

	ref, mats := stagedInputs()
	require.NoError(t, o.Stage(ref, mats))
	require.NoError(t, o.Submit(context.Background()))

	sess, _ := o.Session()
	gw.ScriptProgress(sess.ID, model.ProgressEvent{Status: model.ProgressComplete, Progress: 1})
	ch, err := o.Observe(context.Background())
	require.NoError(t, err)
	for range ch.Events() {
	}

	// A finished session can be replaced; an in-flight one cannot.
	require.NoError(t, o.Stage(ref, mats))
	next, ok := o.Session()
	require.True(t, ok)
	assert.Equal(t, model.SessionCreated, next.State)
	assert.Empty(t, next.ID)
}

func TestStageRefusedWhileInFlight(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	o := NewOrchestrator(gw, nil)

	ref, mats := stagedInputs()
	require.NoError(t, o.Stage(ref, mats))
	require.NoError(t, o.Submit(context.Background()))

	err := o.Stage(ref, mats)
	require.Error(t, err)
	assert.Equal(t, errordefs.SYN_INVALID_INPUT, errordefs.CodeOf(err))
}

func TestObserveAbandonmentViaContext(t *testing.T) {
	gw := gateway.NewMemoryGateway()
	o := NewOrchestrator(gw, nil)

	ref, mats := stagedInputs()
	require.NoError(t, o.Stage(ref, mats))
	require.NoError(t, o.Submit(context.Background()))

	// No scripted events: the stream stays open until the context ends.
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := o.Observe(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch.Events():
		assert.False(t, ok, "channel must close after abandonment")
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after context cancellation")
	}
	require.Error(t, ch.Err())
	assert.Equal(t, errordefs.SYN_CHANNEL_INTERRUPTED, errordefs.CodeOf(ch.Err()))

	sess, _ := o.Session()
	assert.Equal(t, model.SessionProcessing, sess.State, "abandoning observation does not fail the job")
}

// manualGateway hands out one directly fed stream per subscription so tests
// can drive multiple observers deterministically.
type manualGateway struct {
	*gateway.MemoryGateway
	streams []*manualStream
}

func (g *manualGateway) SubscribeProgress(ctx context.Context, sessionID string) (gateway.ProgressStream, error) {
	s := &manualStream{events: make(chan model.ProgressEvent, 16)}
	g.streams = append(g.streams, s)
	return s, nil
}

type manualStream struct {
	events chan model.ProgressEvent
	err    error
}

func (s *manualStream) Events() <-chan model.ProgressEvent { return s.events }
func (s *manualStream) Err() error                         { return s.err }
func (s *manualStream) Close() error                       { return nil }

func (s *manualStream) emit(events ...model.ProgressEvent) {
	for _, ev := range events {
		s.events <- ev
	}
}

func drainChannel(ch *ProgressChannel) []model.ProgressEvent {
	var got []model.ProgressEvent
	for ev := range ch.Events() {
		got = append(got, ev)
	}
	return got
}

func TestObserveTwiceBothReceiveTerminal(t *testing.T) {
	gw := &manualGateway{MemoryGateway: gateway.NewMemoryGateway()}
	o := NewOrchestrator(gw, nil)

	ref, mats := stagedInputs()
	require.NoError(t, o.Stage(ref, mats))
	require.NoError(t, o.Submit(context.Background()))

	first, err := o.Observe(context.Background())
	require.NoError(t, err)
	second, err := o.Observe(context.Background())
	require.NoError(t, err)
	require.Len(t, gw.streams, 2)

	gw.streams[0].emit(happyScript()...)
	got := drainChannel(first)
	require.NoError(t, first.Err())
	require.Len(t, got, 3)
	assert.Equal(t, model.ProgressComplete, got[2].Status)

	sess, _ := o.Session()
	require.Equal(t, model.SessionComplete, sess.State)

	// The backend replays the same history on the second subscription. The
	// second observer still gets every event and a clean terminal close,
	// even though the session already transitioned.
	gw.streams[1].emit(happyScript()...)
	got = drainChannel(second)
	require.NoError(t, second.Err())
	require.Len(t, got, 3)
	assert.Equal(t, model.ProgressComplete, got[2].Status)

	sess, _ = o.Session()
	assert.Equal(t, model.SessionComplete, sess.State)
	assert.Equal(t, float64(1), sess.Progress)
}

func TestLateEventsAfterTerminalLeaveStateUntouched(t *testing.T) {
	gw := &manualGateway{MemoryGateway: gateway.NewMemoryGateway()}
	o := NewOrchestrator(gw, nil)

	ref, mats := stagedInputs()
	require.NoError(t, o.Stage(ref, mats))
	require.NoError(t, o.Submit(context.Background()))

	first, err := o.Observe(context.Background())
	require.NoError(t, err)
	second, err := o.Observe(context.Background())
	require.NoError(t, err)

	gw.streams[0].emit(happyScript()...)
	drainChannel(first)
	sess, _ := o.Session()
	require.Equal(t, model.SessionComplete, sess.State)

	// A straggling error event arrives on the other subscription after the
	// session already completed. Its channel reports it and closes, but the
	// first terminal transition stands.
	gw.streams[1].emit(model.ProgressEvent{Status: model.ProgressError, Message: "stale"})
	got := drainChannel(second)
	require.NoError(t, second.Err())
	require.Len(t, got, 1)
	assert.Equal(t, model.ProgressError, got[0].Status)

	sess, _ = o.Session()
	assert.Equal(t, model.SessionComplete, sess.State, "a late terminal event never overwrites the first")
	assert.Equal(t, float64(1), sess.Progress)
	assert.Equal(t, "done", sess.Message)
}
