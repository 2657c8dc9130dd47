// internal/model/asset.go
// Package model defines the data structures used throughout the synthesis service.
// These structures represent the core domain objects for assets, sessions, and
// progress reporting.
package model

import (
	"fmt"
	"strings"
	"time"
)

// AssetKind discriminates the three catalog collections. Every Asset carries
// an explicit kind; capability checks never rely on which fields happen to be
// populated.
type AssetKind string

const (
	AssetKindClip      AssetKind = "clip"      // Material clip owned by a session
	AssetKindReference AssetKind = "reference" // Reference video, not session-scoped
	AssetKindResult    AssetKind = "result"    // Generated output of a completed session
)

// ParseAssetKind converts a wire string into an AssetKind.
func ParseAssetKind(s string) (AssetKind, error) {
	switch AssetKind(strings.ToLower(strings.TrimSpace(s))) {
	case AssetKindClip:
		return AssetKindClip, nil
	case AssetKindReference:
		return AssetKindReference, nil
	case AssetKindResult:
		return AssetKindResult, nil
	default:
		return "", fmt.Errorf("unknown asset kind: %q", s)
	}
}

// Asset represents one displayable video asset in any of the three catalog
// collections. Identity is kind-scoped: clips are keyed by (session, filename),
// references and results by filename alone. A clip and a result may share a
// filename without being the same item.
type Asset struct {
	Kind      AssetKind `json:"kind" db:"kind"`                  // Collection discriminator
	SessionID string    `json:"sessionId,omitempty" db:"session_id"` // Owning session (clips only)
	Filename  string    `json:"filename" db:"filename"`          // Unique within the identity scope
	Path      string    `json:"path,omitempty" db:"path"`        // Storage location
	URL       string    `json:"url,omitempty" db:"url"`          // Retrieval URL (results)
	Size      int64     `json:"size" db:"size"`                  // Size in bytes, >= 0
	CreatedAt int64     `json:"createdAt" db:"created_at"`       // Unix seconds
	Tags      []string  `json:"tags,omitempty" db:"tags"`        // Optional tag set (clips only)
}

// IdentityKey returns the unique key for the asset within its own collection.
// Clips include the owning session so that equal filenames across sessions do
// not collide; the kind prefix keeps keys from ever matching across variants.
func (a Asset) IdentityKey() string {
	if a.Kind == AssetKindClip {
		return string(a.Kind) + ":" + a.SessionID + "/" + a.Filename
	}
	return string(a.Kind) + ":" + a.Filename
}

// HasTags reports whether the asset variant exposes a tag attribute at all.
// Only clips carry tags; references and results are excluded from any
// tag-based filtering.
func (a Asset) HasTags() bool {
	return a.Kind == AssetKindClip
}

// Validate checks the structural invariants of an asset record.
func (a Asset) Validate() error {
	switch a.Kind {
	case AssetKindClip:
		if a.SessionID == "" {
			return fmt.Errorf("clip %q missing session id", a.Filename)
		}
	case AssetKindReference, AssetKindResult:
		if a.SessionID != "" {
			return fmt.Errorf("%s %q must not carry a session id", a.Kind, a.Filename)
		}
	default:
		return fmt.Errorf("unknown asset kind: %q", a.Kind)
	}
	if a.Filename == "" {
		return fmt.Errorf("%s asset missing filename", a.Kind)
	}
	if a.Size < 0 {
		return fmt.Errorf("%s %q has negative size", a.Kind, a.Filename)
	}
	return nil
}

// CatalogFilter holds the active filter parameters of the catalog view.
// A nil Category selects the union of all three collections; a set Category
// selects exactly that collection (never additive with the union).
type CatalogFilter struct {
	SearchQuery string     `json:"searchQuery"`  // Case-insensitive filename substring
	Tags        []string   `json:"selectedTags"` // OR semantics across tags
	Category    *AssetKind `json:"selectedCategory,omitempty"`
}

// CatalogView is the derived, read-only catalog structure. All is the full
// filtered and sorted set; Recent is always the first items of All under the
// same ordering, never independently filtered.
type CatalogView struct {
	All    []Asset `json:"all"`
	Recent []Asset `json:"recent"`
}

// UploadAsset describes one file in a session upload manifest. The raw file
// transport itself happens against the presigned URLs returned by the upload
// endpoint; this is metadata only.
type UploadAsset struct {
	Filename string   `json:"filename"`       // Original filename
	Size     int64    `json:"size"`           // Size in bytes
	MimeType string   `json:"mimeType"`       // MIME type of the file
	Tags     []string `json:"tags,omitempty"` // Optional tags (materials only)
}

// UploadRequest represents the request body for staging a session upload.
type UploadRequest struct {
	Reference UploadAsset   `json:"reference"` // Exactly one reference video
	Materials []UploadAsset `json:"materials"` // At least one material clip
}

// UploadData contains the result of a successful session upload.
type UploadData struct {
	SessionID  string            `json:"sessionId"`            // Backend-assigned session identifier
	UploadURLs map[string]string `json:"uploadUrls,omitempty"` // Filename to presigned PUT URL
	ExpiresAt  time.Time         `json:"expiresAt,omitempty"`  // When the presigned URLs expire
}

// UploadResponse is the wire envelope for UploadData.
type UploadResponse struct {
	Data UploadData `json:"data"`
}

// RenameRequest represents the request body for renaming a catalog asset.
type RenameRequest struct {
	Kind        AssetKind `json:"kind"`
	SessionID   string    `json:"sessionId,omitempty"` // Required for clips
	OldFilename string    `json:"oldFilename"`
	NewFilename string    `json:"newFilename"`
}

// ListAssetsResponse is the wire envelope for a catalog listing.
type ListAssetsResponse struct {
	Data []Asset `json:"data"`
}
