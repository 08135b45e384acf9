package deadcode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmat/internal/ast"
	"pmat/internal/parser"
	"pmat/internal/testutil"
)

func arenaOf(t *testing.T, views ...*parser.View) *ast.Arena {
	t.Helper()
	a := ast.NewArena()
	b := ast.NewBuilder(a)
	for _, v := range views {
		_, err := b.AddFile(v)
		require.NoError(t, err)
	}
	a.Freeze()
	return a
}

func byID(items []DeadCodeItem) map[string]DeadCodeItem {
	out := make(map[string]DeadCodeItem, len(items))
	for _, it := range items {
		out[it.SymbolID] = it
	}
	return out
}

func TestAnalyze_RustProject(t *testing.T) {
	a := arenaOf(t, testutil.RustProject(t)...)
	res, err := NewAnalyzer(nil, nil).Analyze(context.Background(), a, DefaultOptions())
	require.NoError(t, err)

	dead := byID(res.DeadCode)
	for _, live := range []string{"src/main.rs::main", "src/main.rs::calculate_sum", "src/utils.rs::helper_function"} {
		assert.NotContains(t, dead, live)
	}

	cfg, ok := dead["src/main.rs::Config"]
	require.True(t, ok, "Config is never used")
	assert.Equal(t, CategoryZeroRefs, cfg.Category)
	assert.Equal(t, "class", cfg.Kind)
	assert.Equal(t, RuleDeadCode, cfg.RuleID())

	trait, ok := dead["src/main.rs::Processable"]
	require.True(t, ok)
	assert.Equal(t, CategoryUnreachable, trait.Category, "only the dead Config implements it")
	assert.Equal(t, RuleUnreachable, trait.RuleID())
	assert.InDelta(t, 0.85, trait.Confidence, 1e-9)

	cf, ok := dead["src/utils.rs::complex_function"]
	require.True(t, ok)
	assert.True(t, cf.Exported)
	assert.InDelta(t, 0.89, cf.Confidence, 1e-9)
	assert.Equal(t, 5, cf.LineNumber)
	assert.Equal(t, 11, cf.LineEnd)

	assert.Contains(t, dead, "src/main.rs::Config::process")

	s := res.Summary
	assert.Equal(t, len(res.DeadCode), s.DeadCount+s.SuspiciousCount)
	assert.Positive(t, s.DeadLines)
	assert.Greater(t, s.TotalLines, s.DeadLines)
	assert.InDelta(t, float64(s.DeadLines)/float64(s.TotalLines), s.DeadCodeRatio, 1e-9)
	require.NotEmpty(t, res.Files)
	assert.Equal(t, "src/main.rs", res.Files[0].Path)
}

func TestAnalyze_ExportedAreRootsWhenExcluded(t *testing.T) {
	a := arenaOf(t, testutil.RustProject(t)...)
	opts := DefaultOptions()
	opts.IncludeExported = false
	res, err := NewAnalyzer(nil, nil).Analyze(context.Background(), a, opts)
	require.NoError(t, err)
	assert.NotContains(t, byID(res.DeadCode), "src/utils.rs::complex_function")
}

const dispatchSource = `trait Processable {
    fn process(&self) -> i32;
}

struct Config {
    value: i32,
}

impl Processable for Config {
    fn process(&self) -> i32 {
        self.value
    }
}

fn run(p: &dyn Processable) -> i32 {
    p.process()
}

fn main() {
    run(&Config { value: 1 });
}
`

func dispatchView(t *testing.T) *parser.View {
	return testutil.View(t, "src/main.rs", parser.LangRust, dispatchSource,
		testutil.Raw{Type: "source_file"},
		testutil.Raw{Type: "trait_item", Text: "trait Processable {\n    fn process(&self) -> i32;\n}", Name: "Processable", Parent: 0},
		testutil.Raw{Type: "type_identifier", Field: "name", Text: "Processable", Parent: 1},
		testutil.Raw{Type: "declaration_list", Field: "body", Text: "{\n    fn process(&self) -> i32;\n}", Parent: 1},
		testutil.Raw{Type: "function_signature_item", Text: "fn process(&self) -> i32;", Name: "process", Parent: 3},
		testutil.Raw{Type: "struct_item", Text: "struct Config {\n    value: i32,\n}", Name: "Config", Parent: 0},
		testutil.Raw{Type: "type_identifier", Field: "name", Text: "Config", Parent: 5},
		testutil.Raw{Type: "impl_item", Text: "impl Processable for Config {\n    fn process(&self) -> i32 {\n        self.value\n    }\n}", Parent: 0},
		testutil.Raw{Type: "type_identifier", Field: "trait", Text: "Processable", Parent: 7},
		testutil.Raw{Type: "type_identifier", Field: "type", Text: "Config", Parent: 7},
		testutil.Raw{Type: "declaration_list", Field: "body", Text: "{\n    fn process(&self) -> i32 {\n        self.value\n    }\n}", Parent: 7},
		testutil.Raw{Type: "function_item", Text: "fn process(&self) -> i32 {\n        self.value\n    }", Name: "process", Parent: 10},
		testutil.Raw{Type: "function_item", Text: "fn run(p: &dyn Processable) -> i32 {\n    p.process()\n}", Name: "run", Parent: 0},
		testutil.Raw{Type: "call_expression", Text: "p.process()", Parent: 12},
		testutil.Raw{Type: "field_expression", Field: "function", Text: "p.process", Parent: 13},
		testutil.Raw{Type: "function_item", Text: "fn main() {\n    run(&Config { value: 1 });\n}", Name: "main", Parent: 0},
		testutil.Raw{Type: "call_expression", Text: "run(&Config { value: 1 })", Parent: 15},
		testutil.Raw{Type: "identifier", Field: "function", Text: "run", Parent: 16},
	)
}

func TestAnalyze_TraitDispatch(t *testing.T) {
	a := arenaOf(t, dispatchView(t))
	res, err := NewAnalyzer(nil, nil).Analyze(context.Background(), a, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, res.DeadCode, "calls through the trait keep the impl and its type alive")
	assert.Zero(t, res.Summary.DeadCodeRatio)
}

func TestAnalyze_TestOnly(t *testing.T) {
	lib := testutil.View(t, "src/lib.rs", parser.LangRust, "fn helper() -> i32 {\n    1\n}\n",
		testutil.Raw{Type: "source_file"},
		testutil.Raw{Type: "function_item", Text: "fn helper() -> i32 {\n    1\n}", Name: "helper", Parent: 0},
	)
	tests := testutil.View(t, "tests/lib_test.rs", parser.LangRust, "#[test]\nfn checks_helper() {\n    helper();\n}\n",
		testutil.Raw{Type: "source_file"},
		testutil.Raw{Type: "function_item", Text: "fn checks_helper() {\n    helper();\n}", Name: "checks_helper", Parent: 0},
		testutil.Raw{Type: "call_expression", Text: "helper()", Parent: 1},
		testutil.Raw{Type: "identifier", Field: "function", Text: "helper", Parent: 2},
	)
	a := arenaOf(t, lib, tests)

	res, err := NewAnalyzer(nil, nil).Analyze(context.Background(), a, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, res.DeadCode, "test-only code is not reported by default")

	opts := DefaultOptions()
	opts.ExcludeTestOnly = false
	res, err = NewAnalyzer(nil, nil).Analyze(context.Background(), a, opts)
	require.NoError(t, err)
	require.Len(t, res.DeadCode, 1)
	assert.Equal(t, "helper", res.DeadCode[0].SymbolName)
	assert.Equal(t, CategoryTestOnly, res.DeadCode[0].Category)
	assert.Equal(t, 1, res.DeadCode[0].TestReferences)
}

func TestAnalyze_ScopeLimitAndExclusions(t *testing.T) {
	a := arenaOf(t, testutil.RustProject(t)...)

	opts := DefaultOptions()
	opts.Scope = []string{"src/utils.rs"}
	res, err := NewAnalyzer(nil, nil).Analyze(context.Background(), a, opts)
	require.NoError(t, err)
	for _, it := range res.DeadCode {
		assert.Equal(t, "src/utils.rs", it.FilePath)
	}

	opts = DefaultOptions()
	opts.Limit = 1
	res, err = NewAnalyzer(nil, nil).Analyze(context.Background(), a, opts)
	require.NoError(t, err)
	assert.Len(t, res.DeadCode, 1)
	assert.Greater(t, res.Summary.DeadCount+res.Summary.SuspiciousCount, 1, "summary covers unlimited results")

	res, err = NewAnalyzer(nil, []string{"src/main.rs"}).Analyze(context.Background(), a, DefaultOptions())
	require.NoError(t, err)
	for _, it := range res.DeadCode {
		assert.NotEqual(t, "src/main.rs", it.FilePath)
	}
}

func TestAnalyze_Cancelled(t *testing.T) {
	a := arenaOf(t, testutil.RustProject(t)...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAnalyzer(nil, nil).Analyze(ctx, a, DefaultOptions())
	assert.Error(t, err)
}

func TestDeadLines_MergesNestedSpans(t *testing.T) {
	got := deadLines([]DeadCodeItem{
		{FilePath: "a.rs", LineNumber: 1, LineEnd: 10},
		{FilePath: "a.rs", LineNumber: 3, LineEnd: 5},
		{FilePath: "a.rs", LineNumber: 20, LineEnd: 21},
		{FilePath: "b.rs", LineNumber: 4},
	})
	assert.Equal(t, map[string]int{"a.rs": 12, "b.rs": 1}, got)
}
