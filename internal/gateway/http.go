// internal/gateway/http.go
package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	errordefs "github.com/VidSynth/vidsynth-studio-go/internal/errors"
	"github.com/VidSynth/vidsynth-studio-go/internal/model"
)

// Client is the HTTP implementation of SessionGateway and CatalogGateway,
// speaking to a synthd backend.
type Client struct {
	base string       // Base URL of the backend
	hc   *http.Client // HTTP client for request/response calls
	sc   *http.Client // Streaming client without a request timeout, for SSE
}

// errorEnvelope mirrors the backend's error response body.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient creates a new gateway client with the specified base URL.
// It configures connection timeouts for regular calls; the progress
// subscription uses a separate client without a request deadline since the
// stream stays open for the lifetime of a job.
func NewClient(baseURL string) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: 2 * time.Second}).DialContext,
	}

	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		hc:   &http.Client{Transport: transport, Timeout: 15 * time.Second},
		sc:   &http.Client{Transport: transport},
	}
}

// Upload implements SessionGateway.
func (c *Client) Upload(ctx context.Context, reference model.Asset, materials []model.Asset) (string, error) {
	req := model.UploadRequest{
		Reference: uploadAssetFrom(reference),
		Materials: make([]model.UploadAsset, 0, len(materials)),
	}
	for _, m := range materials {
		req.Materials = append(req.Materials, uploadAssetFrom(m))
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", errordefs.Wrap(errordefs.SYN_UPLOAD_FAILED, "encode upload manifest", err)
	}

	resp, err := c.post(ctx, "/v1/sessions/upload", body)
	if err != nil {
		return "", errordefs.Wrap(errordefs.SYN_UPLOAD_FAILED, "upload request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", wireError(resp, errordefs.SYN_UPLOAD_FAILED)
	}

	var out model.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errordefs.Wrap(errordefs.SYN_UPLOAD_FAILED, "decode upload response", err)
	}
	if out.Data.SessionID == "" {
		return "", errordefs.New(errordefs.SYN_UPLOAD_FAILED, "backend returned no session id", "")
	}
	return out.Data.SessionID, nil
}

// StartGeneration implements SessionGateway.
func (c *Client) StartGeneration(ctx context.Context, sessionID string) error {
	resp, err := c.post(ctx, "/v1/sessions/"+url.PathEscape(sessionID)+"/generate", nil)
	if err != nil {
		return errordefs.Wrap(errordefs.SYN_GENERATION_START_FAILED, "generation start request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return wireError(resp, errordefs.SYN_GENERATION_START_FAILED)
	}
	return nil
}

// SubscribeProgress implements SessionGateway. It opens the backend's SSE
// endpoint and decodes each data frame into a ProgressEvent.
func (c *Client) SubscribeProgress(ctx context.Context, sessionID string) (ProgressStream, error) {
	u := c.base + "/v1/sessions/" + url.PathEscape(sessionID) + "/progress"

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		cancel()
		return nil, errordefs.Wrap(errordefs.SYN_CHANNEL_INTERRUPTED, "build progress request", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.sc.Do(req)
	if err != nil {
		cancel()
		return nil, errordefs.Wrap(errordefs.SYN_CHANNEL_INTERRUPTED, "progress subscription failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer resp.Body.Close()
		return nil, wireError(resp, errordefs.SYN_CHANNEL_INTERRUPTED)
	}

	s := &sseStream{
		events: make(chan model.ProgressEvent, 16),
		body:   resp.Body,
		cancel: cancel,
	}
	go s.consume()
	return s, nil
}

// ListClips implements CatalogGateway.
func (c *Client) ListClips(ctx context.Context) ([]model.Asset, error) {
	return c.listAssets(ctx, "/v1/catalog/clips")
}

// ListReferences implements CatalogGateway.
func (c *Client) ListReferences(ctx context.Context) ([]model.Asset, error) {
	return c.listAssets(ctx, "/v1/catalog/references")
}

// ListResults implements CatalogGateway.
func (c *Client) ListResults(ctx context.Context) ([]model.Asset, error) {
	return c.listAssets(ctx, "/v1/catalog/results")
}

// Rename implements CatalogGateway.
func (c *Client) Rename(ctx context.Context, kind model.AssetKind, sessionID, oldFilename, newFilename string) error {
	body, err := json.Marshal(model.RenameRequest{
		Kind:        kind,
		SessionID:   sessionID,
		OldFilename: oldFilename,
		NewFilename: newFilename,
	})
	if err != nil {
		return errordefs.Wrap(errordefs.SYN_INVALID_INPUT, "encode rename request", err)
	}

	resp, err := c.post(ctx, "/v1/catalog/rename", body)
	if err != nil {
		return errordefs.Wrap(errordefs.SYN_FETCH_FAILED, "rename request failed", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return wireError(resp, errordefs.SYN_NOT_FOUND)
	case http.StatusBadRequest, http.StatusConflict:
		return wireError(resp, errordefs.SYN_INVALID_INPUT)
	default:
		return wireError(resp, errordefs.SYN_FETCH_FAILED)
	}
}

// DeleteClip implements CatalogGateway.
func (c *Client) DeleteClip(ctx context.Context, sessionID, filename string) error {
	return c.deleteAsset(ctx, "/v1/catalog/clips/"+url.PathEscape(sessionID)+"/"+url.PathEscape(filename))
}

// DeleteResult implements CatalogGateway.
func (c *Client) DeleteResult(ctx context.Context, filename string) error {
	return c.deleteAsset(ctx, "/v1/catalog/results/"+url.PathEscape(filename))
}

// FetchIntelligence implements CatalogGateway.
func (c *Client) FetchIntelligence(ctx context.Context, kind model.AssetKind, filename string) (json.RawMessage, error) {
	u := c.base + "/v1/intelligence/" + url.PathEscape(string(kind)) + "/" + url.PathEscape(filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errordefs.Wrap(errordefs.SYN_FETCH_FAILED, "build intelligence request", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errordefs.Wrap(errordefs.SYN_FETCH_FAILED, "intelligence request failed", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, errordefs.Wrap(errordefs.SYN_FETCH_FAILED, "decode intelligence response", err)
		}
		return out.Data, nil
	case http.StatusNotFound:
		return nil, wireError(resp, errordefs.SYN_NOT_FOUND)
	default:
		return nil, wireError(resp, errordefs.SYN_FETCH_FAILED)
	}
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.hc.Do(req)
}

func (c *Client) listAssets(ctx context.Context, path string) ([]model.Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, errordefs.Wrap(errordefs.SYN_FETCH_FAILED, "build listing request", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errordefs.Wrap(errordefs.SYN_FETCH_FAILED, "listing request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, wireError(resp, errordefs.SYN_FETCH_FAILED)
	}

	var out model.ListAssetsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errordefs.Wrap(errordefs.SYN_FETCH_FAILED, "decode listing response", err)
	}
	return out.Data, nil
}

func (c *Client) deleteAsset(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+path, nil)
	if err != nil {
		return errordefs.Wrap(errordefs.SYN_FETCH_FAILED, "build delete request", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return errordefs.Wrap(errordefs.SYN_FETCH_FAILED, "delete request failed", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return wireError(resp, errordefs.SYN_NOT_FOUND)
	default:
		return wireError(resp, errordefs.SYN_FETCH_FAILED)
	}
}

// wireError converts a non-OK backend response into a typed error, preferring
// the backend's own message when the body parses.
func wireError(resp *http.Response, code errordefs.ErrorCode) error {
	var env errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Error.Message != "" {
		return errordefs.New(code, fmt.Sprintf("backend: %s (%s)", env.Error.Message, env.Error.Code), "")
	}
	return errordefs.New(code, fmt.Sprintf("backend returned %s", resp.Status), "")
}

func uploadAssetFrom(a model.Asset) model.UploadAsset {
	return model.UploadAsset{
		Filename: a.Filename,
		Size:     a.Size,
		MimeType: "video/mp4",
		Tags:     a.Tags,
	}
}

// sseStream reads one server-sent-event stream and exposes it as a
// ProgressStream. It closes events after the first terminal status; if the
// body ends earlier, it records SYN_CHANNEL_INTERRUPTED.
type sseStream struct {
	events chan model.ProgressEvent
	body   io.ReadCloser
	cancel context.CancelFunc

	mu     sync.Mutex
	err    error
	closed bool
}

func (s *sseStream) Events() <-chan model.ProgressEvent { return s.events }

func (s *sseStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *sseStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	return s.body.Close()
}

func (s *sseStream) consume() {
	defer close(s.events)
	defer s.body.Close()

	scanner := bufio.NewScanner(s.body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var ev model.ProgressEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			s.setErr(errordefs.Wrap(errordefs.SYN_CHANNEL_INTERRUPTED, "malformed progress frame", err))
			return
		}

		s.events <- ev
		if ev.Status.Terminal() {
			return
		}
	}

	// The body ended without a terminal event: either the consumer closed
	// the stream deliberately, or the transport broke.
	s.mu.Lock()
	deliberate := s.closed
	s.mu.Unlock()
	if !deliberate {
		s.setErr(errordefs.New(errordefs.SYN_CHANNEL_INTERRUPTED, "progress stream ended before a terminal event", ""))
	}
}

func (s *sseStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
