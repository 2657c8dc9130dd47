// internal/gateway/memory.go
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	errordefs "github.com/VidSynth/vidsynth-studio-go/internal/errors"
	"github.com/VidSynth/vidsynth-studio-go/internal/model"
)

// MemoryGateway is an in-memory implementation of SessionGateway and
// CatalogGateway. It backs tests and local development: every operation can
// be primed with a failure, every call is counted, and progress streams
// replay a scripted event sequence.
type MemoryGateway struct {
	mu sync.Mutex

	clips      []model.Asset
	references []model.Asset
	results    []model.Asset

	// Scripted progress events per session id. SubscribeProgress replays
	// them in order on the returned stream.
	progressScripts map[string][]model.ProgressEvent

	// Injected failures. A non-nil error makes the matching operation fail
	// without mutating state.
	UploadErr      error
	StartErr       error
	SubscribeErr   error
	ListClipsErr   error
	ListRefsErr    error
	ListResultsErr error
	RenameErr      error
	DeleteErr      error
	FetchIntelErr  error

	// InterruptAfter truncates scripted streams after this many events and
	// closes them without a terminal status, simulating a transport break.
	// Zero means deliver the full script.
	InterruptAfter int

	// Call counters.
	UploadCalls     int
	StartCalls      int
	SubscribeCalls  int
	ListCalls       int
	RenameCalls     int
	DeleteCalls     int
	FetchIntelCalls int

	nextSession int
}

// NewMemoryGateway creates an empty in-memory gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		progressScripts: make(map[string][]model.ProgressEvent),
	}
}

// SeedClips replaces the clip collection.
func (m *MemoryGateway) SeedClips(clips ...model.Asset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clips = append([]model.Asset(nil), clips...)
}

// SeedReferences replaces the reference collection.
func (m *MemoryGateway) SeedReferences(refs ...model.Asset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.references = append([]model.Asset(nil), refs...)
}

// SeedResults replaces the result collection.
func (m *MemoryGateway) SeedResults(results ...model.Asset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append([]model.Asset(nil), results...)
}

// ScriptProgress sets the event sequence replayed for a session.
func (m *MemoryGateway) ScriptProgress(sessionID string, events ...model.ProgressEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progressScripts[sessionID] = append([]model.ProgressEvent(nil), events...)
}

// Upload implements SessionGateway.
func (m *MemoryGateway) Upload(ctx context.Context, reference model.Asset, materials []model.Asset) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UploadCalls++
	if m.UploadErr != nil {
		return "", m.UploadErr
	}

	m.nextSession++
	id := fmt.Sprintf("sess-%04d", m.nextSession)

	now := time.Now().Unix()
	ref := reference
	ref.Kind = model.AssetKindReference
	ref.SessionID = ""
	if ref.CreatedAt == 0 {
		ref.CreatedAt = now
	}
	m.references = append(m.references, ref)

	for _, mat := range materials {
		clip := mat
		clip.Kind = model.AssetKindClip
		clip.SessionID = id
		if clip.CreatedAt == 0 {
			clip.CreatedAt = now
		}
		m.clips = append(m.clips, clip)
	}
	return id, nil
}

// StartGeneration implements SessionGateway.
func (m *MemoryGateway) StartGeneration(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StartCalls++
	if m.StartErr != nil {
		return m.StartErr
	}
	return nil
}

// SubscribeProgress implements SessionGateway. The returned stream replays
// the scripted events for the session, honoring InterruptAfter.
func (m *MemoryGateway) SubscribeProgress(ctx context.Context, sessionID string) (ProgressStream, error) {
	m.mu.Lock()
	m.SubscribeCalls++
	if m.SubscribeErr != nil {
		m.mu.Unlock()
		return nil, m.SubscribeErr
	}
	script := append([]model.ProgressEvent(nil), m.progressScripts[sessionID]...)
	cut := m.InterruptAfter
	m.mu.Unlock()

	interrupted := false
	if cut > 0 && cut < len(script) {
		script = script[:cut]
		interrupted = true
	}

	s := &memoryStream{events: make(chan model.ProgressEvent, len(script)+1)}
	go func() {
		defer close(s.events)
		interruptedErr := errordefs.New(errordefs.SYN_CHANNEL_INTERRUPTED, "progress stream ended before a terminal event", "")

		for _, ev := range script {
			select {
			case s.events <- ev:
			case <-ctx.Done():
				s.setErr(interruptedErr)
				return
			case <-s.done():
				return
			}
			if ev.Status.Terminal() {
				return
			}
		}
		if interrupted {
			s.setErr(interruptedErr)
			return
		}

		// No terminal event scripted: a real stream would stay open, so this
		// one does too, until the subscription is torn down.
		select {
		case <-ctx.Done():
			s.setErr(interruptedErr)
		case <-s.done():
		}
	}()
	return s, nil
}

// ListClips implements CatalogGateway.
func (m *MemoryGateway) ListClips(ctx context.Context) ([]model.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ListCalls++
	if m.ListClipsErr != nil {
		return nil, m.ListClipsErr
	}
	return append([]model.Asset(nil), m.clips...), nil
}

// ListReferences implements CatalogGateway.
func (m *MemoryGateway) ListReferences(ctx context.Context) ([]model.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ListCalls++
	if m.ListRefsErr != nil {
		return nil, m.ListRefsErr
	}
	return append([]model.Asset(nil), m.references...), nil
}

// ListResults implements CatalogGateway.
func (m *MemoryGateway) ListResults(ctx context.Context) ([]model.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ListCalls++
	if m.ListResultsErr != nil {
		return nil, m.ListResultsErr
	}
	return append([]model.Asset(nil), m.results...), nil
}

// Rename implements CatalogGateway.
func (m *MemoryGateway) Rename(ctx context.Context, kind model.AssetKind, sessionID, oldFilename, newFilename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RenameCalls++
	if m.RenameErr != nil {
		return m.RenameErr
	}

	assets := m.collection(kind)
	for i := range assets {
		if assets[i].Filename != oldFilename {
			continue
		}
		if kind == model.AssetKindClip && assets[i].SessionID != sessionID {
			continue
		}
		assets[i].Filename = newFilename
		return nil
	}
	return errordefs.New(errordefs.SYN_NOT_FOUND, fmt.Sprintf("%s %q not found", kind, oldFilename), "")
}

// DeleteClip implements CatalogGateway.
func (m *MemoryGateway) DeleteClip(ctx context.Context, sessionID, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DeleteCalls++
	if m.DeleteErr != nil {
		return m.DeleteErr
	}

	for i := range m.clips {
		if m.clips[i].SessionID == sessionID && m.clips[i].Filename == filename {
			m.clips = append(m.clips[:i], m.clips[i+1:]...)
			return nil
		}
	}
	return errordefs.New(errordefs.SYN_NOT_FOUND, fmt.Sprintf("clip %q not found", filename), "")
}

// DeleteResult implements CatalogGateway.
func (m *MemoryGateway) DeleteResult(ctx context.Context, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DeleteCalls++
	if m.DeleteErr != nil {
		return m.DeleteErr
	}

	for i := range m.results {
		if m.results[i].Filename == filename {
			m.results = append(m.results[:i], m.results[i+1:]...)
			return nil
		}
	}
	return errordefs.New(errordefs.SYN_NOT_FOUND, fmt.Sprintf("result %q not found", filename), "")
}

// FetchIntelligence implements CatalogGateway. It synthesizes a small
// analysis document so callers can exercise the memoization path.
func (m *MemoryGateway) FetchIntelligence(ctx context.Context, kind model.AssetKind, filename string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FetchIntelCalls++
	if m.FetchIntelErr != nil {
		return nil, m.FetchIntelErr
	}

	doc := fmt.Sprintf(`{"kind":%q,"filename":%q,"labels":["%s"]}`,
		kind, filename, strings.TrimSuffix(filename, ".mp4"))
	return json.RawMessage(doc), nil
}

func (m *MemoryGateway) collection(kind model.AssetKind) []model.Asset {
	switch kind {
	case model.AssetKindClip:
		return m.clips
	case model.AssetKindReference:
		return m.references
	default:
		return m.results
	}
}

// memoryStream is the ProgressStream returned by MemoryGateway.
type memoryStream struct {
	events chan model.ProgressEvent

	mu       sync.Mutex
	err      error
	closedCh chan struct{}
	closed   bool
}

func (s *memoryStream) Events() <-chan model.ProgressEvent { return s.events }

func (s *memoryStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *memoryStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.doneLocked())
	}
	return nil
}

func (s *memoryStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *memoryStream) done() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doneLocked()
}

func (s *memoryStream) doneLocked() chan struct{} {
	if s.closedCh == nil {
		s.closedCh = make(chan struct{})
	}
	return s.closedCh
}
