package deadcode

import (
	"testing"

	"pmat/internal/parser"
)

func TestIsTestFile(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"internal/query/engine_test.go", true},
		{"src/components/Button.test.ts", true},
		{"src/utils/helper.spec.js", true},
		{"src/components/Button.tsx", false},
		{"tests/test_main.py", true},
		{"src/main_test.py", true},
		{"src/test_utils.py", true},
		{"src/main.py", false},
		{"tests/integration.rs", true},
		{"src/parser_test.rs", true},
		{"src/main/java/FooTest.java", true},
		{"src/__tests__/Button.tsx", true},
		{"testdata/sample.rs", false},
		{"src/lib.rs", false},
		{"docs/testing.md", false},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			if got := IsTestFile(tc.path); got != tc.expected {
				t.Errorf("IsTestFile(%q) = %v, want %v", tc.path, got, tc.expected)
			}
		})
	}
}

func TestEntryPoint(t *testing.T) {
	tests := []struct {
		name  string
		sym   SymbolInfo
		entry bool
	}{
		{"main", SymbolInfo{Name: "main", Kind: "function", FilePath: "src/main.rs"}, true},
		{"python init", SymbolInfo{Name: "__init__", Kind: "method", FilePath: "app.py"}, true},
		{"go test", SymbolInfo{Name: "TestParse", Kind: "function", FilePath: "parse.go"}, true},
		{"pytest", SymbolInfo{Name: "test_parse", Kind: "function", FilePath: "parse.py"}, true},
		{"rust test attribute", SymbolInfo{Name: "parses", Kind: "function", FilePath: "src/lib.rs", Attributes: "#[test]"}, true},
		{"function in test file", SymbolInfo{Name: "fixture", Kind: "function", FilePath: "tests/common.rs"}, true},
		{"struct named like a test", SymbolInfo{Name: "TestCase", Kind: "class", FilePath: "src/lib.rs"}, false},
		{"plain function", SymbolInfo{Name: "parse", Kind: "function", FilePath: "src/lib.rs"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := EntryPoint(tc.sym) != ""; got != tc.entry {
				t.Errorf("EntryPoint(%+v) entry = %v, want %v", tc.sym, got, tc.entry)
			}
		})
	}
}

func TestIsGeneratedFile(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"api/service.pb.go", true},
		{"models/user_generated.go", true},
		{"proto/msg_pb2.py", true},
		{"types/index.d.ts", true},
		{"build.rs", true},
		{"src/lib.rs", false},
	}
	for _, tc := range tests {
		if got := isGeneratedFile(tc.path); got != tc.expected {
			t.Errorf("isGeneratedFile(%q) = %v, want %v", tc.path, got, tc.expected)
		}
	}
}

func TestIsCommonInterfaceMethod(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		expected bool
	}{
		{"String", "method", true},
		{"fmt", "method", true},
		{"__repr__", "method", true},
		{"toString", "method", true},
		{"String", "function", false},
		{"process", "method", false},
	}
	for _, tc := range tests {
		if got := isCommonInterfaceMethod(tc.name, tc.kind); got != tc.expected {
			t.Errorf("isCommonInterfaceMethod(%q, %q) = %v, want %v", tc.name, tc.kind, got, tc.expected)
		}
	}
}

func TestExclusionRules_ShouldExclude(t *testing.T) {
	tests := []struct {
		name     string
		sym      SymbolInfo
		patterns []string
		excluded bool
	}{
		{
			name:     "cgo export",
			sym:      SymbolInfo{Name: "Exported", Kind: "function", Attributes: "//export Exported"},
			excluded: true,
		},
		{
			name:     "no_mangle",
			sym:      SymbolInfo{Name: "ffi_entry", Kind: "function", Attributes: "#[no_mangle]"},
			excluded: true,
		},
		{
			name:     "python decorator",
			sym:      SymbolInfo{Name: "index", Kind: "function", Language: parser.LangPython, Attributes: "@app.route(\"/\")"},
			excluded: true,
		},
		{
			name:     "drop impl",
			sym:      SymbolInfo{Name: "drop", Kind: "method", FilePath: "src/pool.rs"},
			excluded: true,
		},
		{
			name:     "glob on path",
			sym:      SymbolInfo{Name: "helper", Kind: "function", FilePath: "src/legacy/old.rs"},
			patterns: []string{"src/legacy/**"},
			excluded: true,
		},
		{
			name:     "glob on name",
			sym:      SymbolInfo{Name: "debug_dump", Kind: "function", FilePath: "src/lib.rs"},
			patterns: []string{"debug_*"},
			excluded: true,
		},
		{
			name:     "invalid pattern ignored",
			sym:      SymbolInfo{Name: "helper", Kind: "function", FilePath: "src/lib.rs"},
			patterns: []string{"[unclosed"},
			excluded: false,
		},
		{
			name:     "regular function",
			sym:      SymbolInfo{Name: "helper", Kind: "function", FilePath: "src/lib.rs"},
			excluded: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reason := NewExclusionRules(tc.patterns).ShouldExclude(tc.sym)
			if (reason != "") != tc.excluded {
				t.Errorf("ShouldExclude(%+v) = %q, want excluded=%v", tc.sym, reason, tc.excluded)
			}
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if !opts.IncludeExported {
		t.Error("IncludeExported should default to true")
	}
	if opts.MinConfidence != 0.7 {
		t.Errorf("MinConfidence = %v, want 0.7", opts.MinConfidence)
	}
	if !opts.ExcludeTestOnly {
		t.Error("ExcludeTestOnly should default to true")
	}
	if opts.Limit != 100 {
		t.Errorf("Limit = %d, want 100", opts.Limit)
	}
}
