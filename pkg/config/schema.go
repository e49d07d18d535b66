package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/manifest.schema.json
var manifestSchemaJSON string

const manifestSchemaURL = "manifest.schema.json"

var (
	manifestSchemaOnce sync.Once
	manifestSchema     *jsonschema.Schema
	manifestSchemaErr  error
)

// ManifestSchema returns the compiled JSON Schema that every manifest
// document must satisfy, whatever its source format.
func ManifestSchema() (*jsonschema.Schema, error) {
	manifestSchemaOnce.Do(func() {
		manifestSchema, manifestSchemaErr = jsonschema.CompileString(manifestSchemaURL, manifestSchemaJSON)
		if manifestSchemaErr != nil {
			manifestSchemaErr = fmt.Errorf("failed to compile manifest schema: %w", manifestSchemaErr)
		}
	})
	return manifestSchema, manifestSchemaErr
}

// ManifestSchemaSource returns the embedded schema text.
func ManifestSchemaSource() string {
	return manifestSchemaJSON
}

// ValidateDocument checks a decoded document against the manifest schema.
// The document is normalized through JSON first so that YAML and CUE
// decodings validate identically.
func ValidateDocument(file string, doc interface{}) ValidationErrors {
	schema, err := ManifestSchema()
	if err != nil {
		return ValidationErrors{{File: file, Message: err.Error(), Severity: "error"}}
	}

	normalized, err := normalizeJSON(doc)
	if err != nil {
		return ValidationErrors{{File: file, Message: err.Error(), Severity: "error"}}
	}

	err = schema.Validate(normalized)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return ValidationErrors{{File: file, Message: err.Error(), Severity: "error"}}
	}

	var out ValidationErrors
	for _, leaf := range leafErrors(verr) {
		out = append(out, ValidationError{
			File:     file,
			Path:     leaf.InstanceLocation,
			Message:  leaf.Message,
			Severity: "error",
		})
	}
	return out
}

// leafErrors flattens the cause tree; inner nodes only summarize their
// children.
func leafErrors(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, cause := range ve.Causes {
		out = append(out, leafErrors(cause)...)
	}
	return out
}

func normalizeJSON(doc interface{}) (interface{}, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return out, nil
}
