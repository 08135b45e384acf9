package deadcode

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"pmat/internal/parser"
)

// ExclusionRules determines which symbols should be excluded from dead code analysis.
type ExclusionRules struct {
	patterns []string
}

// NewExclusionRules creates exclusion rules with the given doublestar
// patterns. Invalid patterns are dropped.
func NewExclusionRules(patterns []string) *ExclusionRules {
	valid := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if doublestar.ValidatePattern(p) {
			valid = append(valid, p)
		}
	}
	return &ExclusionRules{patterns: valid}
}

// SymbolInfo contains information about a symbol for exclusion checking.
type SymbolInfo struct {
	Name     string
	Kind     string
	FilePath string
	Language parser.Language
	// Attributes is the source line above the declaration, where Rust
	// attributes and decorators live.
	Attributes string
	Exported   bool
}

// EntryPoint returns a reason if the symbol is reached from outside the
// analyzed code, or empty string if not.
func EntryPoint(sym SymbolInfo) string {
	switch sym.Name {
	case "main", "init", "__main__", "__init__":
		return "entry point function"
	}
	if sym.Kind != "function" && sym.Kind != "method" {
		return ""
	}
	if IsTestFile(sym.FilePath) {
		return "test file"
	}
	if strings.HasPrefix(sym.Name, "Test") || strings.HasPrefix(sym.Name, "Benchmark") ||
		strings.HasPrefix(sym.Name, "Fuzz") || strings.HasPrefix(sym.Name, "test_") {
		return "test or benchmark function"
	}
	if strings.HasPrefix(sym.Name, "Example") {
		return "example function for documentation"
	}
	if strings.Contains(sym.Attributes, "#[test]") || strings.Contains(sym.Attributes, "#[bench]") ||
		strings.Contains(sym.Attributes, "#[tokio::test]") {
		return "test attribute"
	}
	return ""
}

// ShouldExclude returns a reason if the symbol should not be reported, or
// empty string if not.
func (r *ExclusionRules) ShouldExclude(sym SymbolInfo) string {
	// CGo exports and FFI entry points
	if strings.Contains(sym.Attributes, "//export ") || strings.Contains(sym.Attributes, "#[no_mangle]") {
		return "foreign export"
	}

	if strings.HasPrefix(sym.Attributes, "@") && sym.Language == parser.LangPython {
		return "decorated function"
	}

	if isCommonInterfaceMethod(sym.Name, sym.Kind) {
		return "common interface implementation"
	}

	if isGeneratedFile(sym.FilePath) {
		return "generated file"
	}

	for _, pattern := range r.patterns {
		if ok, _ := doublestar.Match(pattern, sym.FilePath); ok {
			return "matches exclusion pattern: " + pattern
		}
		if ok, _ := doublestar.Match(pattern, sym.Name); ok {
			return "matches exclusion pattern: " + pattern
		}
	}
	return ""
}

// commonMethods are methods usually called through a language runtime or
// standard interface rather than by name.
var commonMethods = map[string]bool{
	// Go
	"String": true, "Error": true, "Read": true, "Write": true, "Close": true,
	"Len": true, "Less": true, "Swap": true, "MarshalJSON": true, "UnmarshalJSON": true,
	"MarshalText": true, "UnmarshalText": true, "ServeHTTP": true, "Unwrap": true,
	// Rust traits
	"fmt": true, "drop": true, "clone": true, "eq": true, "hash": true, "default": true,
	"from": true, "into": true, "deref": true, "next": true, "cmp": true, "partial_cmp": true,
	// Java/Kotlin
	"toString": true, "equals": true, "hashCode": true, "compareTo": true, "run": true,
	// JS/TS
	"constructor": true, "render": true, "componentDidMount": true,
}

// isCommonInterfaceMethod checks if a method is a common interface implementation.
func isCommonInterfaceMethod(name, kind string) bool {
	if kind != "method" {
		return false
	}
	// Python dunder protocol methods
	if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") {
		return true
	}
	return commonMethods[name]
}

var generatedPatterns = []string{
	"_generated.", "_gen.go", ".pb.go", ".pb.gw.go", "_string.go", "mock_", "mocks/",
	"generated/", "zz_generated", "bindata.go", "wire_gen.go", ".d.ts", "_pb2.py", "build.rs",
}

// isGeneratedFile checks if a file is likely generated.
func isGeneratedFile(p string) bool {
	lower := strings.ToLower(p)
	for _, pattern := range generatedPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// IsTestFile checks if a file path is a test file.
func IsTestFile(p string) bool {
	p = strings.ReplaceAll(p, "\\", "/")
	base := path.Base(p)
	switch {
	case strings.HasSuffix(p, "_test.go"),
		strings.HasSuffix(p, "_test.py"), strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py"),
		strings.HasSuffix(p, "_test.rs"),
		strings.HasSuffix(p, "Test.java"), strings.HasSuffix(p, "Test.kt"):
		return true
	}
	for _, suffix := range []string{".test.ts", ".test.js", ".spec.ts", ".spec.js", ".test.tsx", ".spec.tsx"} {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	p = "/" + p
	return strings.Contains(p, "/test/") ||
		strings.Contains(p, "/tests/") ||
		strings.Contains(p, "/__tests__/")
}
