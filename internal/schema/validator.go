// internal/schema/validator.go
// Package schema provides JSON schema validation for synthesis requests.
// It ensures upload manifests and catalog mutations are well formed before
// they reach the storage layer.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Known document types accepted by the validator.
const (
	DocSessionManifest = "synth.session.manifest" // Upload manifest for one session
	DocCatalogRename   = "synth.catalog.rename"   // Rename request body
)

// Validator validates request documents against JSON schemas.
type Validator struct {
	schemas map[string]*gojsonschema.Schema // Map of document types to compiled schemas
}

// NewValidator creates a new schema validator with all document schemas
// compiled and ready for validation.
func NewValidator() (*Validator, error) {
	v := &Validator{
		schemas: make(map[string]*gojsonschema.Schema),
	}

	if err := v.loadSchemas(); err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}

	return v, nil
}

// loadSchemas compiles the JSON schemas for all accepted document types.
func (v *Validator) loadSchemas() error {
	// Session manifest: exactly one reference, at least one material, every
	// entry carries a filename and a non-negative size.
	manifestSchema := `{
		"type": "object",
		"required": ["reference", "materials"],
		"properties": {
			"reference": {
				"type": "object",
				"required": ["filename", "size"],
				"properties": {
					"filename": {"type": "string", "minLength": 1, "maxLength": 512},
					"size": {"type": "integer", "minimum": 0},
					"mimeType": {"type": "string"}
				}
			},
			"materials": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["filename", "size"],
					"properties": {
						"filename": {"type": "string", "minLength": 1, "maxLength": 512},
						"size": {"type": "integer", "minimum": 0},
						"mimeType": {"type": "string"},
						"tags": {"type": "array", "items": {"type": "string", "maxLength": 64}}
					}
				}
			}
		}
	}`
	if err := v.loadSchema(DocSessionManifest, manifestSchema); err != nil {
		return fmt.Errorf("failed to load manifest schema: %w", err)
	}

	// Rename request: a valid kind plus both filenames.
	renameSchema := `{
		"type": "object",
		"required": ["kind", "oldFilename", "newFilename"],
		"properties": {
			"kind": {"type": "string", "enum": ["clip", "reference", "result"]},
			"sessionId": {"type": "string"},
			"oldFilename": {"type": "string", "minLength": 1, "maxLength": 512},
			"newFilename": {"type": "string", "minLength": 1, "maxLength": 512}
		}
	}`
	if err := v.loadSchema(DocCatalogRename, renameSchema); err != nil {
		return fmt.Errorf("failed to load rename schema: %w", err)
	}

	return nil
}

// loadSchema parses and compiles a single JSON schema.
func (v *Validator) loadSchema(docType, schemaJSON string) error {
	loader := gojsonschema.NewStringLoader(schemaJSON)

	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return fmt.Errorf("invalid schema for %s: %w", docType, err)
	}

	v.schemas[docType] = schema
	return nil
}

// Validate validates a raw JSON document against the schema for its type.
// Returns nil if valid, an error listing every violation otherwise.
func (v *Validator) Validate(docType string, document json.RawMessage) error {
	schema, exists := v.schemas[docType]
	if !exists {
		return fmt.Errorf("unsupported document type: %s", docType)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}
