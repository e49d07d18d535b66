package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
)

// Loader reads manifests. YAML, JSON and CUE sources are decoded into one
// generic document, validated against the manifest schema, then decoded
// into a Manifest and struct-validated.
type Loader struct {
	ctx       *cue.Context
	validator *validator.Validate
}

// NewLoader creates a new manifest loader.
func NewLoader() *Loader {
	return &Loader{
		ctx:       cuecontext.New(),
		validator: validator.New(),
	}
}

// FormatOf picks the manifest format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", engine.NewConfigError(
			fmt.Sprintf("unsupported manifest extension %q, expected .yaml, .yml, .json or .cue", filepath.Ext(path)), nil).
			WithCode(engine.ErrCodeInvalidParameter)
	}
}

// Load reads and merges the given manifest files in order.
func (l *Loader) Load(paths ...string) (*Manifest, error) {
	if len(paths) == 0 {
		return nil, engine.NewConfigError("at least one manifest file is required", nil).
			WithCode(engine.ErrCodeMissingParameter)
	}

	merged := &Manifest{}
	for _, path := range paths {
		m, err := l.LoadFile(path)
		if err != nil {
			return nil, err
		}
		merged.Merge(m)
	}
	return merged, nil
}

// LoadFile reads a single manifest file.
func (l *Loader) LoadFile(path string) (*Manifest, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	m, err := l.Parse(content, format, path)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Parse decodes manifest content. The filename is used in error positions
// and as the source of the declared resources.
func (l *Loader) Parse(content []byte, format Format, filename string) (*Manifest, error) {
	var (
		doc  map[string]interface{}
		errs ValidationErrors
	)

	switch format {
	case FormatYAML:
		doc, errs = yamlDocument(content, filename)
	case FormatJSON:
		doc, errs = jsonDocument(content, filename)
	case FormatCUE:
		doc, errs = l.cueDocument(content, filename)
	default:
		return nil, engine.NewConfigError(fmt.Sprintf("unsupported manifest format %q", format), nil).
			WithCode(engine.ErrCodeInvalidParameter)
	}
	if len(errs) > 0 {
		return nil, invalid(filename, errs)
	}

	if errs := ValidateDocument(filename, doc); len(errs) > 0 {
		return nil, invalid(filename, errs)
	}

	m, err := decodeManifest(doc)
	if err != nil {
		return nil, invalid(filename, ValidationErrors{{File: filename, Message: err.Error(), Severity: "error"}})
	}

	if err := l.validator.Struct(m); err != nil {
		return nil, invalid(filename, ValidationErrors{{File: filename, Message: err.Error(), Severity: "error"}})
	}

	if filename != "" {
		m.SourceFiles = []string{filename}
		for i := range m.Resources {
			m.Resources[i].Source = filename
		}
	}
	return m, nil
}

func yamlDocument(content []byte, filename string) (map[string]interface{}, ValidationErrors) {
	doc := make(map[string]interface{})
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, ValidationErrors{{File: filename, Message: err.Error(), Severity: "error"}}
	}
	return doc, nil
}

func jsonDocument(content []byte, filename string) (map[string]interface{}, ValidationErrors) {
	doc := make(map[string]interface{})
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, ValidationErrors{{File: filename, Message: err.Error(), Severity: "error"}}
	}
	return doc, nil
}

// cueDocument compiles a CUE source and decodes each regular top-level
// field. Definitions and hidden fields stay local to the CUE file, so
// manifests can use them for templating.
func (l *Loader) cueDocument(content []byte, filename string) (map[string]interface{}, ValidationErrors) {
	val := l.ctx.CompileString(string(content), cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, convertCUEErrors(err)
	}

	doc := make(map[string]interface{})
	iter, err := val.Fields()
	if err != nil {
		return nil, convertCUEErrors(err)
	}

	var errs ValidationErrors
	for iter.Next() {
		name := iter.Selector().String()
		var field interface{}
		if err := iter.Value().Decode(&field); err != nil {
			errs = append(errs, ValidationError{
				File:     filename,
				Path:     name,
				Message:  fmt.Sprintf("failed to decode %s: %v", name, err),
				Severity: "error",
			})
			continue
		}
		doc[name] = field
	}
	return doc, errs
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func convertCUEErrors(err error) ValidationErrors {
	var out ValidationErrors
	for _, e := range errors.Errors(err) {
		ve := ValidationError{
			Message:  errors.Details(e, nil),
			Severity: "error",
		}
		if pos := errors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		if path := e.Path(); len(path) > 0 {
			ve.Path = strings.Join(path, ".")
		}
		out = append(out, ve)
	}
	return out
}

// decodeManifest decodes a schema-checked document into a Manifest.
func decodeManifest(doc map[string]interface{}) (*Manifest, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	normalizeAttributes(&m)
	return &m, nil
}

// normalizeAttributes turns JSON numbers back into plain integers or floats
// so attribute values compare the same whatever the source format was.
func normalizeAttributes(m *Manifest) {
	for i := range m.Resources {
		for k, v := range m.Resources[i].Attributes {
			m.Resources[i].Attributes[k] = normalizeValue(v)
		}
	}
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case float64:
		if t == float64(int64(t)) {
			return int(t)
		}
		return t
	case []interface{}:
		for i := range t {
			t[i] = normalizeValue(t[i])
		}
		return t
	case map[string]interface{}:
		for k := range t {
			t[k] = normalizeValue(t[k])
		}
		return t
	default:
		return v
	}
}

func invalid(filename string, errs ValidationErrors) error {
	return engine.NewConfigError(fmt.Sprintf("manifest %s is invalid", filename), errs).
		WithCode(engine.ErrCodeInvalidParameter).
		WithDetail("errors", len(errs))
}
