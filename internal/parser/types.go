// Package parser turns source bytes into flat, language-tagged syntax views
// using tree-sitter grammars.
package parser

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	pmerrors "pmat/internal/errors"
)

// Language represents a supported programming language.
type Language string

const (
	LangGo         Language = "go"
	LangRust       Language = "rust"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangJava       Language = "java"
	LangKotlin     Language = "kotlin"
	LangC          Language = "c"
	LangCPP        Language = "cpp"
)

var extensions = map[Language][]string{
	LangGo:         {".go"},
	LangRust:       {".rs"},
	LangPython:     {".py", ".pyi"},
	LangJavaScript: {".js", ".jsx", ".mjs", ".cjs"},
	LangTypeScript: {".ts", ".mts", ".cts"},
	LangTSX:        {".tsx"},
	LangJava:       {".java"},
	LangKotlin:     {".kt", ".kts"},
	LangC:          {".c", ".h"},
	LangCPP:        {".cpp", ".cc", ".cxx", ".hpp", ".hh", ".hxx"},
}

var byExtension = func() map[string]Language {
	m := make(map[string]Language)
	for lang, exts := range extensions {
		for _, ext := range exts {
			m[ext] = lang
		}
	}
	return m
}()

// AllLanguages returns every language in a stable order.
func AllLanguages() []Language {
	langs := make([]Language, 0, len(extensions))
	for l := range extensions {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}

// Extensions returns the file extensions for a language.
func Extensions(lang Language) []string {
	return extensions[lang]
}

// DetectLanguage maps a file path to its language by extension.
func DetectLanguage(path string) (Language, bool) {
	lang, ok := byExtension[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// IsSource reports whether the path has a recognized source extension.
func IsSource(path string) bool {
	_, ok := DetectLanguage(path)
	return ok
}

// Limits bound a single parse. Exceeding any is fatal for that file only.
type Limits struct {
	MaxFileSize int64
	MaxDepth    int
	MaxNodes    int
	Timeout     time.Duration
}

// DefaultLimits returns the standard parse bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxFileSize: 1 << 20,
		MaxDepth:    1000,
		MaxNodes:    100_000,
		Timeout:     30 * time.Second,
	}
}

// Node is one named syntax node in preorder.
type Node struct {
	// Type is the grammar node type, e.g. "function_item".
	Type string `json:"type"`
	// Field is the field name this node occupies in its parent, if any.
	Field string `json:"field,omitempty"`
	// Name is the text of the child in the "name" field, if any.
	Name string `json:"name,omitempty"`
	// Operator is the boolean or ternary operator token of an expression.
	Operator  string `json:"operator,omitempty"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	// Parent is the index of the parent node, or -1 for the root.
	Parent int `json:"parent"`
	Depth  int `json:"depth"`
	// Children counts direct named children.
	Children int `json:"children"`
}

// View is the per-language parse result of one file.
type View struct {
	Path     string   `json:"path"`
	Language Language `json:"language"`
	Nodes    []Node   `json:"nodes"`
	Warnings []string `json:"warnings,omitempty"`
	Source   []byte   `json:"-"`
}

// Text returns the source text covered by node i.
func (v *View) Text(i int) string {
	if i < 0 || i >= len(v.Nodes) {
		return ""
	}
	n := v.Nodes[i]
	if n.Start < 0 || n.End > len(v.Source) || n.Start > n.End {
		return ""
	}
	return string(v.Source[n.Start:n.End])
}

// Lines returns the number of lines in the source.
func (v *View) Lines() int {
	if len(v.Source) == 0 {
		return 0
	}
	n := strings.Count(string(v.Source), "\n")
	if v.Source[len(v.Source)-1] != '\n' {
		n++
	}
	return n
}

// Adapter parses one language.
type Adapter interface {
	Language() Language
	Extensions() []string
	Parse(ctx context.Context, path string, source []byte) (*View, error)
}

// Registry dispatches parse requests to adapters by detected language.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Language]Adapter
}

// NewEmptyRegistry returns a registry with no adapters.
func NewEmptyRegistry() *Registry {
	return &Registry{adapters: make(map[Language]Adapter)}
}

// Register adds or replaces the adapter for its language.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Language()] = a
}

// Adapter returns the adapter for a language.
func (r *Registry) Adapter(lang Language) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[lang]
	return a, ok
}

// ForPath returns the adapter for the file's detected language.
func (r *Registry) ForPath(path string) (Adapter, bool) {
	lang, ok := DetectLanguage(path)
	if !ok {
		return nil, false
	}
	return r.Adapter(lang)
}

// Supports reports whether path can be parsed by a registered adapter.
func (r *Registry) Supports(path string) bool {
	_, ok := r.ForPath(path)
	return ok
}

// Languages returns the registered languages in a stable order.
func (r *Registry) Languages() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]Language, 0, len(r.adapters))
	for l := range r.adapters {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}

// Parse detects the language of path and parses source with its adapter.
func (r *Registry) Parse(ctx context.Context, path string, source []byte) (*View, error) {
	a, ok := r.ForPath(path)
	if !ok {
		return nil, pmerrors.Parse(path, "unsupported language", nil)
	}
	return a.Parse(ctx, path, source)
}
