// internal/server/sessions.go
package server

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	errordefs "github.com/VidSynth/vidsynth-studio-go/internal/errors"
	"github.com/VidSynth/vidsynth-studio-go/internal/media"
	"github.com/VidSynth/vidsynth-studio-go/internal/model"
	"github.com/VidSynth/vidsynth-studio-go/internal/schema"
	"github.com/VidSynth/vidsynth-studio-go/internal/storage"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// handleUploadSession handles POST /v1/sessions/upload. It validates the
// manifest, creates the session and its asset records, and returns the
// session id plus presigned upload URLs when object storage is configured.
func (m *Mux) handleUploadSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("synth-service").Start(r.Context(), "handleUploadSession")
	defer span.End()
	defer r.Body.Close()

	cid := correlationID(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		span.SetStatus(codes.Error, "read body")
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_VALIDATION, "failed to read request body", cid))
		return
	}

	// Schema validation before anything touches storage.
	if err := m.validator.Validate(schema.DocSessionManifest, body); err != nil {
		m.metrics.SchemaValidationTotal.WithLabelValues(schema.DocSessionManifest, "reject").Inc()
		span.SetStatus(codes.Error, "schema reject")
		m.writeErrorDef(w, errordefs.NewWithDetails(errordefs.SYN_SCHEMA_REJECT, "manifest validation failed", cid, err.Error()))
		return
	}
	m.metrics.SchemaValidationTotal.WithLabelValues(schema.DocSessionManifest, "ok").Inc()

	var req model.UploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_VALIDATION, "invalid JSON", cid))
		return
	}

	span.SetAttributes(
		attribute.String("reference", req.Reference.Filename),
		attribute.Int("materials", len(req.Materials)),
	)

	if errDef := m.checkMediaLimits(req, cid); errDef != nil {
		m.writeErrorDef(w, errDef)
		return
	}

	// Duplicate material filenames within one manifest are rejected up
	// front rather than surfacing as a storage conflict.
	seen := make(map[string]struct{}, len(req.Materials))
	for _, mat := range req.Materials {
		if _, dup := seen[mat.Filename]; dup {
			m.writeErrorDef(w, errordefs.New(errordefs.SYN_INVALID_INPUT,
				fmt.Sprintf("duplicate material filename %q", mat.Filename), cid))
			return
		}
		seen[mat.Filename] = struct{}{}
	}

	// ULID session ids sort by creation time.
	entropy := ulid.Monotonic(rand.Reader, 0)
	sessionID := ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
	now := time.Now()

	session := model.Session{
		ID:        sessionID,
		State:     model.SessionUploaded,
		CreatedAt: now.UTC(),
	}
	if err := m.s.CreateSession(ctx, session); err != nil {
		span.SetStatus(codes.Error, "create session")
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_INTERNAL, "failed to create session", cid))
		return
	}

	// The reference is shared across sessions; re-uploading a known one
	// reuses the existing record.
	ref := model.Asset{
		Kind:      model.AssetKindReference,
		Filename:  req.Reference.Filename,
		Path:      media.ObjectKey("reference", "", req.Reference.Filename),
		Size:      req.Reference.Size,
		CreatedAt: now.Unix(),
	}
	if err := m.s.CreateAsset(ctx, ref); err != nil && !errors.Is(err, storage.ErrConflict) {
		span.SetStatus(codes.Error, "create reference")
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_INTERNAL, "failed to record reference", cid))
		return
	}

	for _, mat := range req.Materials {
		clip := model.Asset{
			Kind:      model.AssetKindClip,
			SessionID: sessionID,
			Filename:  mat.Filename,
			Path:      media.ObjectKey("clip", sessionID, mat.Filename),
			Size:      mat.Size,
			CreatedAt: now.Unix(),
			Tags:      mat.Tags,
		}
		if err := m.s.CreateAsset(ctx, clip); err != nil {
			span.SetStatus(codes.Error, "create clip")
			m.writeErrorDef(w, errordefs.New(errordefs.SYN_INTERNAL, "failed to record material clip", cid))
			return
		}
	}

	data := model.UploadData{SessionID: sessionID}
	if m.mediaClient != nil {
		urls, expiresAt, errDef := m.presignUploads(r, req, sessionID, cid)
		if errDef != nil {
			m.writeErrorDef(w, errDef)
			return
		}
		data.UploadURLs = urls
		data.ExpiresAt = expiresAt
	}

	m.logger.Info("session created", "session_id", sessionID, "materials", len(req.Materials), "correlation_id", cid)
	m.writeSuccess(w, http.StatusOK, data)
}

// checkMediaLimits enforces the configured size and MIME type limits on
// every file in the manifest.
func (m *Mux) checkMediaLimits(req model.UploadRequest, cid string) *errordefs.Error {
	check := func(a model.UploadAsset) *errordefs.Error {
		if m.maxMediaSize > 0 && a.Size > m.maxMediaSize {
			return errordefs.New(errordefs.SYN_MEDIA_SIZE,
				fmt.Sprintf("%q exceeds the %d byte limit", a.Filename, m.maxMediaSize), cid)
		}
		if a.MimeType != "" && len(m.allowedMimeTypes) > 0 {
			for _, allowed := range m.allowedMimeTypes {
				if a.MimeType == allowed {
					return nil
				}
			}
			return errordefs.New(errordefs.SYN_MEDIA_TYPE,
				fmt.Sprintf("%q has unsupported type %s", a.Filename, a.MimeType), cid)
		}
		return nil
	}

	if errDef := check(req.Reference); errDef != nil {
		return errDef
	}
	for _, mat := range req.Materials {
		if errDef := check(mat); errDef != nil {
			return errDef
		}
	}
	return nil
}

// presignUploads generates one presigned PUT URL per manifest file.
func (m *Mux) presignUploads(r *http.Request, req model.UploadRequest, sessionID, cid string) (map[string]string, time.Time, *errordefs.Error) {
	urls := make(map[string]string, len(req.Materials)+1)

	refURL, err := m.mediaClient.GenerateUploadURL(r.Context(),
		media.ObjectKey("reference", "", req.Reference.Filename), media.UploadURLTTL)
	if err != nil {
		return nil, time.Time{}, errordefs.New(errordefs.SYN_INTERNAL, "failed to presign reference upload", cid)
	}
	urls[req.Reference.Filename] = refURL

	for _, mat := range req.Materials {
		u, err := m.mediaClient.GenerateUploadURL(r.Context(),
			media.ObjectKey("clip", sessionID, mat.Filename), media.UploadURLTTL)
		if err != nil {
			return nil, time.Time{}, errordefs.New(errordefs.SYN_INTERNAL, "failed to presign clip upload", cid)
		}
		urls[mat.Filename] = u
	}

	return urls, time.Now().UTC().Add(media.UploadURLTTL), nil
}

// handleStartGeneration handles POST /v1/sessions/{id}/generate. It moves
// the session to processing and hands it to the generation worker.
func (m *Mux) handleStartGeneration(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("synth-service").Start(r.Context(), "handleStartGeneration")
	defer span.End()

	cid := correlationID(ctx)
	sessionID := r.PathValue("id")
	span.SetAttributes(attribute.String("session_id", sessionID))

	session, err := m.s.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.writeErrorDef(w, errordefs.New(errordefs.SYN_NOT_FOUND, "session not found", cid))
			return
		}
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_INTERNAL, "failed to load session", cid))
		return
	}

	if session.State != model.SessionUploaded {
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_CONFLICT,
			fmt.Sprintf("session is %s, generation starts from uploaded", session.State), cid))
		return
	}

	if err := m.s.UpdateSessionState(ctx, sessionID, model.SessionProcessing, 0, "queued"); err != nil {
		span.SetStatus(codes.Error, "update session")
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_INTERNAL, "failed to update session", cid))
		return
	}
	m.metrics.SessionTransitionTotal.WithLabelValues(string(model.SessionUploaded), string(model.SessionProcessing)).Inc()

	if m.submit != nil {
		if err := m.submit(sessionID); err != nil {
			m.writeErrorDef(w, errordefs.New(errordefs.SYN_UNAVAILABLE, "generation queue unavailable", cid))
			return
		}
	}

	m.logger.Info("generation started", "session_id", sessionID, "correlation_id", cid)
	m.writeSuccess(w, http.StatusOK, map[string]string{"sessionId": sessionID, "state": string(model.SessionProcessing)})
}

// handleGetSession handles GET /v1/sessions/{id}.
func (m *Mux) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid := correlationID(ctx)

	session, err := m.s.GetSession(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.writeErrorDef(w, errordefs.New(errordefs.SYN_NOT_FOUND, "session not found", cid))
			return
		}
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_INTERNAL, "failed to load session", cid))
		return
	}

	m.writeSuccess(w, http.StatusOK, session)
}

// handleProgress handles GET /v1/sessions/{id}/progress as a server-sent
// event stream. The full event history replays first, then live events
// follow until the first terminal event closes the stream.
func (m *Mux) handleProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid := correlationID(ctx)
	sessionID := r.PathValue("id")

	if _, err := m.s.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.writeErrorDef(w, errordefs.New(errordefs.SYN_NOT_FOUND, "session not found", cid))
			return
		}
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_INTERNAL, "failed to load session", cid))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_INTERNAL, "streaming unsupported", cid))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	replay, live := m.hub.Subscribe(sessionID)
	defer m.hub.Unsubscribe(sessionID, live)

	for _, ev := range replay {
		if !writeSSE(w, flusher, ev) {
			return
		}
		if ev.Status.Terminal() {
			return
		}
	}

	for {
		select {
		case ev, ok := <-live:
			if !ok {
				return
			}
			if !writeSSE(w, flusher, ev) {
				return
			}
			if ev.Status.Terminal() {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// writeSSE writes one event as an SSE data frame. Returns false when the
// client went away.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev model.ProgressEvent) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
