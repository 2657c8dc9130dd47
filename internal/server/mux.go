// internal/server/mux.go
// Package server implements the HTTP handlers and routing for the synthesis
// backend. It provides RESTful endpoints for session and catalog operations
// with schema validation, event publishing, and server-sent progress streams.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	errordefs "github.com/VidSynth/vidsynth-studio-go/internal/errors"
	"github.com/VidSynth/vidsynth-studio-go/internal/event"
	"github.com/VidSynth/vidsynth-studio-go/internal/media"
	"github.com/VidSynth/vidsynth-studio-go/internal/metrics"
	"github.com/VidSynth/vidsynth-studio-go/internal/model"
	"github.com/VidSynth/vidsynth-studio-go/internal/schema"
	"github.com/VidSynth/vidsynth-studio-go/internal/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ContextKey is used for context values to avoid collisions
// when storing values in request context
type ContextKey string

// ContextKeyCorrelationID stores the unique ID for request tracking.
const ContextKeyCorrelationID ContextKey = "correlationId"

// Deps bundles the collaborators the mux needs. Optional fields may be nil;
// the matching feature degrades (no presigned URLs without Media, no events
// without Publisher).
type Deps struct {
	Store     storage.Store
	Publisher event.Publisher
	Hub       *ProgressHub
	Media     *media.S3Client
	Submit    func(sessionID string) error // Hands a session to the generation worker
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	MaxMediaSize     int64
	AllowedMimeTypes []string
}

// Mux handles HTTP requests for the synthesis backend.
type Mux struct {
	mux         *http.ServeMux
	s           storage.Store
	p           event.Publisher
	hub         *ProgressHub
	mediaClient *media.S3Client
	submit      func(sessionID string) error
	validator   *schema.Validator
	metrics     *metrics.Metrics
	logger      *slog.Logger

	// Media limits
	maxMediaSize     int64
	allowedMimeTypes []string
}

// NewMux creates a new HTTP mux with all synthesis endpoints.
// It compiles the request schemas and registers the HTTP handlers.
func NewMux(d Deps) (*http.ServeMux, error) {
	validator, err := schema.NewValidator()
	if err != nil {
		return nil, err
	}

	if d.Publisher == nil {
		d.Publisher = event.NewPublisher("")
	}
	if d.Hub == nil {
		d.Hub = NewProgressHub()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewMetrics()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	m := &Mux{
		mux:              http.NewServeMux(),
		s:                d.Store,
		p:                d.Publisher,
		hub:              d.Hub,
		mediaClient:      d.Media,
		submit:           d.Submit,
		validator:        validator,
		metrics:          d.Metrics,
		logger:           d.Logger,
		maxMediaSize:     d.MaxMediaSize,
		allowedMimeTypes: d.AllowedMimeTypes,
	}

	// Register health endpoints
	m.mux.HandleFunc("/healthz", m.handleHealthz)
	m.mux.HandleFunc("/readyz", m.handleReadyz)
	m.mux.Handle("/metrics", promhttp.Handler())

	// Session endpoints
	m.mux.HandleFunc("POST /v1/sessions/upload", m.withMiddleware(m.handleUploadSession))
	m.mux.HandleFunc("POST /v1/sessions/{id}/generate", m.withMiddleware(m.handleStartGeneration))
	m.mux.HandleFunc("GET /v1/sessions/{id}", m.withMiddleware(m.handleGetSession))
	m.mux.HandleFunc("GET /v1/sessions/{id}/progress", m.withMiddleware(m.handleProgress))

	// Catalog endpoints
	m.mux.HandleFunc("GET /v1/catalog/clips", m.withMiddleware(m.handleListClips))
	m.mux.HandleFunc("GET /v1/catalog/references", m.withMiddleware(m.handleListReferences))
	m.mux.HandleFunc("GET /v1/catalog/results", m.withMiddleware(m.handleListResults))
	m.mux.HandleFunc("POST /v1/catalog/rename", m.withMiddleware(m.handleRename))
	m.mux.HandleFunc("DELETE /v1/catalog/clips/{session}/{filename}", m.withMiddleware(m.handleDeleteClip))
	m.mux.HandleFunc("DELETE /v1/catalog/results/{filename}", m.withMiddleware(m.handleDeleteResult))
	m.mux.HandleFunc("GET /v1/intelligence/{kind}/{filename}", m.withMiddleware(m.handleIntelligence))

	return m.mux, nil
}

// withMiddleware applies common middleware to handlers: correlation IDs,
// request logging, and request metrics.
func (m *Mux) withMiddleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Add correlation ID if not present
		correlationID := r.Header.Get("X-Correlation-Id")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		r = r.WithContext(context.WithValue(r.Context(), ContextKeyCorrelationID, correlationID))
		w.Header().Set("X-Correlation-Id", correlationID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)

		duration := time.Since(start)
		m.metrics.HTTPRequestTotal.WithLabelValues(r.Method, r.URL.Path, httpStatusLabel(rec.status)).Inc()
		m.metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path, httpStatusLabel(rec.status)).Observe(duration.Seconds())
		m.logRequest(r, rec.status, duration, correlationID)
	}
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush passes through to the underlying writer so SSE streaming works
// behind the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func httpStatusLabel(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// correlationID extracts the request correlation ID from the context.
func correlationID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyCorrelationID).(string); ok {
		return id
	}
	return ""
}

// writeSuccess writes a successful response
func (m *Mux) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]interface{}{
		"data": data,
	}
	_ = json.NewEncoder(w).Encode(response)
}

// writeErrorDef writes an error response following the error taxonomy
func (m *Mux) writeErrorDef(w http.ResponseWriter, err *errordefs.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus)

	errBody := map[string]interface{}{
		"code":          string(err.Code),
		"message":       err.Message,
		"correlationId": err.CorrelationID,
	}
	if err.Details != nil {
		errBody["details"] = err.Details
	}

	_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": errBody})
}

// logRequest logs request details
func (m *Mux) logRequest(r *http.Request, status int, duration time.Duration, correlationID string) {
	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", duration),
		slog.String("user_agent", r.UserAgent()),
		slog.String("remote_addr", r.RemoteAddr),
	}

	if correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}

	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	}
	m.logger.LogAttrs(r.Context(), level, "request completed", attrs...)
}

// handleHealthz handles liveness health check requests
func (m *Mux) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz handles readiness health check requests
func (m *Mux) handleReadyz(w http.ResponseWriter, r *http.Request) {
	// Probe the storage backend; ErrNotFound means it answered.
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	_, err := m.s.GetSession(ctx, "health-check")
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// parseKind converts a path segment into an AssetKind or a typed error.
func parseKind(ctx context.Context, raw string) (model.AssetKind, *errordefs.Error) {
	kind, err := model.ParseAssetKind(raw)
	if err != nil {
		return "", errordefs.New(errordefs.SYN_VALIDATION, err.Error(), correlationID(ctx))
	}
	return kind, nil
}
