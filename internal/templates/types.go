// Package templates serves the embedded project template catalog:
// listing, fuzzy search, parameter validation, rendering and scaffolding.
package templates

import pmerrors "pmat/internal/errors"

// Toolchain a template targets.
type Toolchain string

const (
	Rust     Toolchain = "rust"
	Deno     Toolchain = "deno"
	PythonUV Toolchain = "python-uv"
)

// Toolchains in listing order.
var Toolchains = []Toolchain{Rust, Deno, PythonUV}

// Priority orders toolchains in listings; lower sorts first.
func (t Toolchain) Priority() int {
	switch t {
	case Rust:
		return 1
	case Deno:
		return 2
	case PythonUV:
		return 3
	}
	return 99
}

// Category is the kind of file a template renders.
type Category string

const (
	Makefile  Category = "makefile"
	Readme    Category = "readme"
	Gitignore Category = "gitignore"
)

// Categories in scaffold order.
var Categories = []Category{Makefile, Readme, Gitignore}

// Filename is the file a rendered category is written to.
func (c Category) Filename() string {
	switch c {
	case Makefile:
		return "Makefile"
	case Readme:
		return "README.md"
	case Gitignore:
		return ".gitignore"
	}
	return string(c) + ".txt"
}

// ParamType constrains a parameter value.
type ParamType string

const (
	TypeProjectName    ParamType = "project_name"
	TypeSemVer         ParamType = "semver"
	TypeGitHubUsername ParamType = "github_username"
	TypeLicense        ParamType = "license"
	TypeBoolean        ParamType = "boolean"
	TypeNumber         ParamType = "number"
	TypeString         ParamType = "string"
)

// ParameterSpec describes one template parameter.
type ParameterSpec struct {
	Name        string    `toml:"name" json:"name" yaml:"name"`
	Type        ParamType `toml:"type" json:"type" yaml:"type"`
	Required    bool      `toml:"required" json:"required" yaml:"required"`
	Default     any       `toml:"default" json:"default,omitempty" yaml:"default,omitempty"`
	Pattern     string    `toml:"pattern" json:"validation_pattern,omitempty" yaml:"validation_pattern,omitempty"`
	Description string    `toml:"description" json:"description" yaml:"description"`
}

// Template is one catalog entry.
type Template struct {
	URI         string          `toml:"uri" json:"uri" yaml:"uri"`
	Name        string          `toml:"name" json:"name" yaml:"name"`
	Description string          `toml:"description" json:"description" yaml:"description"`
	Category    Category        `toml:"category" json:"category" yaml:"category"`
	Toolchain   Toolchain       `toml:"toolchain" json:"toolchain" yaml:"toolchain"`
	Variant     string          `toml:"variant" json:"variant" yaml:"variant"`
	File        string          `toml:"file" json:"-" yaml:"-"`
	Parameters  []ParameterSpec `toml:"parameter" json:"parameters" yaml:"parameters"`

	// ContentHash is the sha256 of the template source.
	ContentHash string `toml:"-" json:"content_hash" yaml:"content_hash"`
	Version     string `toml:"-" json:"semantic_version" yaml:"semantic_version"`
}

// Param returns the spec named name.
func (t *Template) Param(name string) (ParameterSpec, bool) {
	for _, p := range t.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// Generated is one rendered template.
type Generated struct {
	Content   string    `json:"content"`
	Filename  string    `json:"filename"`
	Checksum  string    `json:"checksum"`
	Toolchain Toolchain `json:"toolchain"`
}

// ScaffoldError records a template that failed during scaffolding.
type ScaffoldError struct {
	Template string `json:"template"`
	Error    string `json:"error"`
}

// ScaffoldResult lists rendered files in request order.
type ScaffoldResult struct {
	Files  []Generated     `json:"files"`
	Errors []ScaffoldError `json:"errors,omitempty"`
}

// SearchResult is one ranked search hit.
type SearchResult struct {
	Template  Template `json:"template"`
	Relevance float64  `json:"relevance"`
	Matches   []string `json:"matches"`
}

// ValidationResult reports every parameter problem at once.
type ValidationResult struct {
	Valid  bool               `json:"valid"`
	Errors []pmerrors.Problem `json:"errors,omitempty"`
}
