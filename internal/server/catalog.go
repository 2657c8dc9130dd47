// internal/server/catalog.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	errordefs "github.com/VidSynth/vidsynth-studio-go/internal/errors"
	"github.com/VidSynth/vidsynth-studio-go/internal/model"
	"github.com/VidSynth/vidsynth-studio-go/internal/schema"
	"github.com/VidSynth/vidsynth-studio-go/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// handleListClips handles GET /v1/catalog/clips
func (m *Mux) handleListClips(w http.ResponseWriter, r *http.Request) {
	m.listAssets(w, r, model.AssetKindClip)
}

// handleListReferences handles GET /v1/catalog/references
func (m *Mux) handleListReferences(w http.ResponseWriter, r *http.Request) {
	m.listAssets(w, r, model.AssetKindReference)
}

// handleListResults handles GET /v1/catalog/results
func (m *Mux) handleListResults(w http.ResponseWriter, r *http.Request) {
	m.listAssets(w, r, model.AssetKindResult)
}

func (m *Mux) listAssets(w http.ResponseWriter, r *http.Request, kind model.AssetKind) {
	ctx, span := otel.Tracer("synth-service").Start(r.Context(), "listAssets")
	defer span.End()
	span.SetAttributes(attribute.String("kind", string(kind)))

	assets, err := m.s.ListAssets(ctx, kind)
	if err != nil {
		span.SetStatus(codes.Error, "list assets")
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_INTERNAL, "failed to list assets", correlationID(ctx)))
		return
	}

	m.writeSuccess(w, http.StatusOK, assets)
}

// handleRename handles POST /v1/catalog/rename. The new filename must be
// unique within the asset's identity scope.
func (m *Mux) handleRename(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("synth-service").Start(r.Context(), "handleRename")
	defer span.End()
	defer r.Body.Close()

	cid := correlationID(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_VALIDATION, "failed to read request body", cid))
		return
	}

	if err := m.validator.Validate(schema.DocCatalogRename, body); err != nil {
		m.metrics.SchemaValidationTotal.WithLabelValues(schema.DocCatalogRename, "reject").Inc()
		m.writeErrorDef(w, errordefs.NewWithDetails(errordefs.SYN_SCHEMA_REJECT, "rename validation failed", cid, err.Error()))
		return
	}
	m.metrics.SchemaValidationTotal.WithLabelValues(schema.DocCatalogRename, "ok").Inc()

	var req model.RenameRequest
	if err := json.Unmarshal(body, &req); err != nil {
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_VALIDATION, "invalid JSON", cid))
		return
	}

	span.SetAttributes(
		attribute.String("kind", string(req.Kind)),
		attribute.String("old", req.OldFilename),
		attribute.String("new", req.NewFilename),
	)

	if req.Kind == model.AssetKindClip && req.SessionID == "" {
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_INVALID_INPUT, "renaming a clip requires its session id", cid))
		return
	}
	if strings.TrimSpace(req.NewFilename) == "" || req.OldFilename == req.NewFilename {
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_INVALID_INPUT, "new filename must be non-empty and different", cid))
		return
	}

	err = m.s.RenameAsset(ctx, req.Kind, req.SessionID, req.OldFilename, req.NewFilename)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_NOT_FOUND,
			fmt.Sprintf("%s %q not found", req.Kind, req.OldFilename), cid))
		return
	case errors.Is(err, storage.ErrConflict):
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_INVALID_INPUT,
			fmt.Sprintf("a %s named %q already exists", req.Kind, req.NewFilename), cid))
		return
	case err != nil:
		span.SetStatus(codes.Error, "rename asset")
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_INTERNAL, "failed to rename asset", cid))
		return
	}

	m.logger.Info("asset renamed", "kind", req.Kind, "from", req.OldFilename, "to", req.NewFilename, "correlation_id", cid)
	m.writeSuccess(w, http.StatusOK, map[string]string{"filename": req.NewFilename})
}

// handleDeleteClip handles DELETE /v1/catalog/clips/{session}/{filename}.
// Removing a clip never cascades into results generated from it.
func (m *Mux) handleDeleteClip(w http.ResponseWriter, r *http.Request) {
	m.deleteAsset(w, r, model.AssetKindClip, r.PathValue("session"), r.PathValue("filename"))
}

// handleDeleteResult handles DELETE /v1/catalog/results/{filename}.
func (m *Mux) handleDeleteResult(w http.ResponseWriter, r *http.Request) {
	m.deleteAsset(w, r, model.AssetKindResult, "", r.PathValue("filename"))
}

func (m *Mux) deleteAsset(w http.ResponseWriter, r *http.Request, kind model.AssetKind, sessionID, filename string) {
	ctx, span := otel.Tracer("synth-service").Start(r.Context(), "deleteAsset")
	defer span.End()
	span.SetAttributes(attribute.String("kind", string(kind)), attribute.String("filename", filename))

	cid := correlationID(ctx)

	err := m.s.DeleteAsset(ctx, kind, sessionID, filename)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_NOT_FOUND,
			fmt.Sprintf("%s %q not found", kind, filename), cid))
		return
	case err != nil:
		span.SetStatus(codes.Error, "delete asset")
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_INTERNAL, "failed to delete asset", cid))
		return
	}

	m.logger.Info("asset deleted", "kind", kind, "filename", filename, "correlation_id", cid)
	w.WriteHeader(http.StatusNoContent)
}

// handleIntelligence handles GET /v1/intelligence/{kind}/{filename}. It
// returns the analysis document for one asset; the backing analysis here is
// derived from the stored metadata.
func (m *Mux) handleIntelligence(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("synth-service").Start(r.Context(), "handleIntelligence")
	defer span.End()

	cid := correlationID(ctx)

	kind, errDef := parseKind(ctx, r.PathValue("kind"))
	if errDef != nil {
		m.writeErrorDef(w, errDef)
		return
	}
	filename := r.PathValue("filename")
	span.SetAttributes(attribute.String("kind", string(kind)), attribute.String("filename", filename))

	asset, err := m.findAssetAnySession(ctx, kind, filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.writeErrorDef(w, errordefs.New(errordefs.SYN_NOT_FOUND,
				fmt.Sprintf("%s %q not found", kind, filename), cid))
			return
		}
		m.writeErrorDef(w, errordefs.New(errordefs.SYN_INTERNAL, "failed to load asset", cid))
		return
	}

	doc := map[string]interface{}{
		"kind":      asset.Kind,
		"filename":  asset.Filename,
		"sizeBytes": asset.Size,
		"createdAt": asset.CreatedAt,
		"tags":      asset.Tags,
	}
	m.writeSuccess(w, http.StatusOK, doc)
}

// findAssetAnySession resolves an asset by kind and filename. Clips are
// session-scoped in storage, so a clip lookup scans the collection for the
// first session carrying that filename.
func (m *Mux) findAssetAnySession(ctx context.Context, kind model.AssetKind, filename string) (*model.Asset, error) {
	if kind != model.AssetKindClip {
		return m.s.GetAsset(ctx, kind, "", filename)
	}

	clips, err := m.s.ListAssets(ctx, kind)
	if err != nil {
		return nil, err
	}
	for i := range clips {
		if clips[i].Filename == filename {
			return &clips[i], nil
		}
	}
	return nil, storage.ErrNotFound
}
