package config

import (
	"fmt"
	"strings"

	"github.com/openfroyo/froyo-keystone/pkg/composite"
	"github.com/openfroyo/froyo-keystone/pkg/engine"
)

// Format is the encoding of a manifest file.
type Format string

const (
	// FormatYAML is a YAML manifest (.yaml, .yml).
	FormatYAML Format = "yaml"

	// FormatCUE is a CUE manifest (.cue).
	FormatCUE Format = "cue"

	// FormatJSON is a JSON manifest (.json).
	FormatJSON Format = "json"
)

// ResourceDecl is one primitive resource as written in a manifest.
type ResourceDecl struct {
	// Kind is the resource kind (domain, project, role, user, user_role,
	// service, endpoint).
	Kind string `yaml:"kind" json:"kind" validate:"required"`

	// Title is the identity key, possibly composite ("name::domain").
	Title string `yaml:"title" json:"title" validate:"required"`

	// Ensure is present or absent; empty means present.
	Ensure string `yaml:"ensure,omitempty" json:"ensure,omitempty"`

	// Attributes are the kind-specific attributes.
	Attributes map[string]interface{} `yaml:"attributes,omitempty" json:"attributes,omitempty"`

	// Require lists resource IDs ("kind[title]") that must converge first.
	Require []string `yaml:"require,omitempty" json:"require,omitempty" validate:"dive,required"`

	// Source is the file the declaration was read from.
	Source string `yaml:"-" json:"-"`
}

// Manifest is a decoded manifest file.
type Manifest struct {
	// Resources are primitive declarations.
	Resources []ResourceDecl `yaml:"resources,omitempty" json:"resources,omitempty" validate:"dive"`

	// ServiceIdentities are composite declarations.
	ServiceIdentities []*composite.ServiceIdentity `yaml:"service_identities,omitempty" json:"service_identities,omitempty" validate:"dive"`

	// SourceFiles lists the files the manifest was loaded from.
	SourceFiles []string `yaml:"-" json:"-"`
}

// Merge appends the declarations of other to m.
func (m *Manifest) Merge(other *Manifest) {
	m.Resources = append(m.Resources, other.Resources...)
	m.ServiceIdentities = append(m.ServiceIdentities, other.ServiceIdentities...)
	m.SourceFiles = append(m.SourceFiles, other.SourceFiles...)
}

// ToResources converts the primitive declarations and expands the
// composites. Primitives come first, in declaration order.
func (m *Manifest) ToResources() ([]*engine.Resource, error) {
	resources := make([]*engine.Resource, 0, len(m.Resources))
	for i, decl := range m.Resources {
		kind := engine.Kind(decl.Kind)
		if err := kind.Validate(); err != nil {
			return nil, engine.NewConfigError(err.Error(), nil).
				WithCode(engine.ErrCodeInvalidParameter).
				WithDetail("index", i)
		}

		res := &engine.Resource{
			Kind:       kind,
			Title:      decl.Title,
			Ensure:     engine.Ensure(decl.Ensure),
			Attributes: decl.Attributes,
			Source:     or(decl.Source, "inline"),
		}
		for _, dep := range decl.Require {
			res.DependsOn(dep, engine.DependencyRequire)
		}
		resources = append(resources, res)
	}

	expanded, err := composite.ExpandAll(m.ServiceIdentities)
	if err != nil {
		return nil, err
	}

	return append(resources, expanded...), nil
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the location within the document, e.g. "/resources/0/kind".
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity" validate:"required,oneof=error warning info"`
}

func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors is the list of problems found in one manifest.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	lines := make([]string, 0, len(e))
	for _, ve := range e {
		lines = append(lines, ve.String())
	}
	return strings.Join(lines, "\n")
}

func or(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
