// internal/schema/validator_test.go
package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSessionManifest(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	valid := json.RawMessage(`{
		"reference": {"filename": "ref.mp4", "size": 1000, "mimeType": "video/mp4"},
		"materials": [
			{"filename": "a.mp4", "size": 500, "tags": ["outdoor"]},
			{"filename": "b.mp4", "size": 700}
		]
	}`)
	assert.NoError(t, v.Validate(DocSessionManifest, valid))

	cases := []struct {
		name string
		doc  string
	}{
		{"missing reference", `{"materials": [{"filename": "a.mp4", "size": 1}]}`},
		{"empty materials", `{"reference": {"filename": "r.mp4", "size": 1}, "materials": []}`},
		{"material without filename", `{"reference": {"filename": "r.mp4", "size": 1}, "materials": [{"size": 1}]}`},
		{"negative size", `{"reference": {"filename": "r.mp4", "size": -1}, "materials": [{"filename": "a.mp4", "size": 1}]}`},
		{"empty filename", `{"reference": {"filename": "", "size": 1}, "materials": [{"filename": "a.mp4", "size": 1}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, v.Validate(DocSessionManifest, json.RawMessage(tc.doc)))
		})
	}
}

func TestValidateCatalogRename(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	valid := json.RawMessage(`{"kind": "clip", "sessionId": "s1", "oldFilename": "a.mp4", "newFilename": "b.mp4"}`)
	assert.NoError(t, v.Validate(DocCatalogRename, valid))

	assert.Error(t, v.Validate(DocCatalogRename, json.RawMessage(`{"kind": "banner", "oldFilename": "a", "newFilename": "b"}`)))
	assert.Error(t, v.Validate(DocCatalogRename, json.RawMessage(`{"kind": "clip", "oldFilename": "a.mp4", "newFilename": ""}`)))
}

func TestValidateUnsupportedDocType(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	assert.Error(t, v.Validate("synth.unknown", json.RawMessage(`{}`)))
}
