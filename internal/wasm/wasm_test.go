package wasm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmat/internal/classifier"
	pmerrors "pmat/internal/errors"
	"pmat/internal/parser"
	"pmat/internal/testutil"
)

func section(id byte, payload ...byte) []byte {
	return append([]byte{id, byte(len(payload))}, payload...)
}

func body(code ...byte) []byte {
	return append([]byte{byte(len(code))}, code...)
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var header = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

// sampleModule imports env.log, defines run (exported) and one unnamed
// function, a table, a bounded memory and a name section.
func sampleModule() []byte {
	run := body(0x00,
		0x20, 0x00, // local.get 0
		0x04, 0x40, // if
		0x03, 0x40, // loop
		0x20, 0x00, // local.get 0
		0x0D, 0x00, // br_if 0
		0x0B,       // end loop
		0x0B,       // end if
		0x41, 0x00, // i32.const 0
		0x28, 0x02, 0x00, // i32.load
		0x1A,       // drop
		0x20, 0x00, // local.get 0
		0x41, 0x01, // i32.const 1
		0x11, 0x00, 0x00, // call_indirect
		0x0B,
	)
	other := body(0x01, 0x02, 0x7F, // two i32 locals
		0x41, 0x01, // i32.const 1
		0x40, 0x00, // memory.grow
		0x1A,
		0x41, 0x00,
		0x41, 0x05,
		0x36, 0x02, 0x00, // i32.store
		0x20, 0x00,
		0x0E, 0x02, 0x00, 0x00, 0x00, // br_table 0 0 default 0
		0x10, 0x00, // call 0
		0xFD, 0x0C, // v128.const, not decoded
		0x0B,
	)
	code := cat([]byte{0x02}, run, other)
	return cat(header,
		section(1, 0x01, 0x60, 0x01, 0x7F, 0x01, 0x7F),
		section(2, 0x01, 0x03, 'e', 'n', 'v', 0x03, 'l', 'o', 'g', 0x00, 0x00),
		section(3, 0x02, 0x00, 0x00),
		section(4, 0x01, 0x70, 0x00, 0x01),
		section(5, 0x01, 0x01, 0x01, 0x10),
		section(7, 0x01, 0x03, 'r', 'u', 'n', 0x00, 0x01),
		section(10, code...),
		section(0, 0x04, 'n', 'a', 'm', 'e', 0x00),
	)
}

func TestParseBinary(t *testing.T) {
	m, err := ParseBinary("sample.wasm", sampleModule())
	require.NoError(t, err)

	assert.Equal(t, uint32(1), m.Version)
	var names []string
	for _, s := range m.Sections {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"type", "import", "function", "table", "memory", "export", "code", "custom"}, names)
	assert.Equal(t, 8, m.Sections[0].Offset)
	assert.Equal(t, 1, m.Types)
	assert.Equal(t, 1, m.Imports)
	assert.Equal(t, 1, m.ImportedFunctions)
	assert.Equal(t, 2, m.Functions)
	assert.Equal(t, 3, m.TotalFunctions())
	assert.Equal(t, uint32(1), m.MaxTableSize)
	assert.Equal(t, uint32(1), m.MemoryPages)
	assert.True(t, m.HasMemoryMax)
	assert.Equal(t, uint32(16), m.MaxMemoryPages)
	assert.Equal(t, []string{"name"}, m.CustomSections)

	require.Len(t, m.Bodies, 2)
	run := m.Bodies[0]
	assert.Equal(t, "run", run.Name)
	assert.Equal(t, 1, run.Index)
	assert.Equal(t, 14, run.Instructions)
	assert.Equal(t, 3, run.Cyclomatic)
	assert.Equal(t, 2, run.MaxBlockDepth)
	assert.Equal(t, 1, run.MaxLoopDepth)
	assert.Equal(t, 1, run.IndirectCalls)
	assert.Equal(t, 1, run.Memory.Loads)
	assert.False(t, run.Truncated)

	other := m.Bodies[1]
	assert.Equal(t, "func[2]", other.Name)
	assert.Equal(t, 2, other.Locals)
	assert.Equal(t, 10, other.Instructions)
	assert.Equal(t, 3, other.Cyclomatic, "br_table adds one per non-default label")
	assert.Equal(t, MemoryOpStats{Stores: 1, Grows: 1, SIMD: 1}, other.Memory)
	assert.Equal(t, 1, other.Calls)
	assert.True(t, other.Truncated)

	s := m.Summarize()
	assert.Equal(t, 2, s.Functions)
	assert.Equal(t, 24, s.Instructions)
	assert.InDelta(t, 3.0, s.AvgCyclomatic, 1e-9)
	assert.Equal(t, 1, s.Memory.Loads)
	assert.Equal(t, 1, s.Memory.Stores)
}

func TestParseBinary_Errors(t *testing.T) {
	_, err := ParseBinary("x.wasm", []byte("not wasm at all"))
	assert.Equal(t, pmerrors.ParseError, pmerrors.CodeOf(err))

	overrun := cat(header, []byte{0x01, 0x20, 0x00})
	_, err = ParseBinary("x.wasm", overrun)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overruns")

	badOp := cat(header, section(10, 0x01, 0x03, 0x00, 0xC5, 0x0B))
	_, err = ParseBinary("x.wasm", badOp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown opcode 0xc5")

	noEnd := cat(header, section(10, 0x01, 0x02, 0x00, 0x01))
	_, err = ParseBinary("x.wasm", noEnd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing its end")
}

const watSample = `;; counter
(module
  (import "env" "log" (func $log (param i32)))
  (memory (export "mem") 2 8)
  (table 4 funcref)
  (global $g (mut i32) (i32.const 0))
  (func $count (export "count") (param $n i32) (result i32)
    (local $i i32)
    (block $done
      (loop $next
        local.get $i
        local.get $n
        i32.ge_s
        br_if $done
        (i32.store (i32.const 0) (local.get $i))
        local.get $i
        i32.const 1
        i32.add
        local.set $i
        br $next))
    (if (i32.eqz (local.get $n)) (then (call $log (i32.const 0))))
    local.get $i)
  (func (param i32)
    local.get 0
    br_table 0 1 2
    memory.grow
    drop
    i32.load offset=4
    drop)
  (; block (; nested ;) comment ;)
  (export "main" (func 1)))
`

func TestParseText(t *testing.T) {
	m, err := ParseText("count.wat", []byte(watSample))
	require.NoError(t, err)

	assert.Equal(t, FormatText, m.Format)
	assert.Equal(t, 1, m.Imports)
	assert.Equal(t, 1, m.ImportedFunctions)
	assert.Equal(t, 2, m.Functions)
	assert.Equal(t, 1, m.Globals)
	assert.Equal(t, 2, m.Exports, "one inline export, one module-level export")
	assert.Equal(t, uint32(2), m.MemoryPages)
	assert.Equal(t, uint32(8), m.MaxMemoryPages)
	assert.Equal(t, uint32(4), m.MaxTableSize)

	require.Len(t, m.Bodies, 2)
	count := m.Bodies[0]
	assert.Equal(t, "$count", count.Name)
	assert.Equal(t, 1, count.Index)
	assert.Equal(t, 7, count.Line)
	assert.Equal(t, 1, count.Locals)
	assert.Equal(t, 3, count.Cyclomatic, "br_if and if")
	assert.Equal(t, 2, count.MaxBlockDepth)
	assert.Equal(t, 1, count.MaxLoopDepth)
	assert.Equal(t, 1, count.Calls)
	assert.Equal(t, 1, count.Memory.Stores)

	anon := m.Bodies[1]
	assert.Equal(t, "func[2]", anon.Name)
	assert.Equal(t, 3, anon.Cyclomatic, "two non-default br_table labels")
	assert.Equal(t, 1, anon.Memory.Grows)
	assert.Equal(t, 1, anon.Memory.Loads)
	assert.Equal(t, 6, anon.Instructions)
	assert.Zero(t, anon.MaxBlockDepth)
}

func TestParseText_FlatBlocks(t *testing.T) {
	src := "(module (func $f\n  loop\n    block\n      loop\n        br 0\n      end\n    end\n  end\n  loop\n  end))"
	m, err := ParseText("f.wat", []byte(src))
	require.NoError(t, err)
	require.Len(t, m.Bodies, 1)
	assert.Equal(t, 2, m.Bodies[0].MaxLoopDepth)
	assert.Equal(t, 3, m.Bodies[0].MaxBlockDepth)
}

func TestParseText_Errors(t *testing.T) {
	for name, src := range map[string]string{
		"unclosed '(' opened at line 2": "(module)\n(func\n",
		"unexpected ')' at line 1":      "(module))",
		"unterminated string":           `(module (data "abc))`,
		"unterminated block comment":    "(module (; open",
	} {
		_, err := ParseText("bad.wat", []byte(src))
		require.Error(t, err, name)
		assert.Equal(t, pmerrors.ParseError, pmerrors.CodeOf(err), name)
		assert.Contains(t, err.Error(), name)
	}
}

func TestValidate(t *testing.T) {
	m, err := ParseBinary("sample.wasm", sampleModule())
	require.NoError(t, err)
	assert.Empty(t, DefaultSecurityConfig().Validate(m, 100))

	strict := SecurityConfig{MaxFileSize: 10, MaxFunctions: 2, MaxMemoryPages: 8, MaxTableSize: 1, MaxImports: 0}
	var rules []string
	for _, i := range strict.Validate(m, 100) {
		rules = append(rules, i.Rule)
	}
	assert.Equal(t, []string{"file-size", "function-count", "memory-pages"}, rules, "maximum of 16 pages exceeds 8")

	m.HasMemoryMax = false
	issues := DefaultSecurityConfig().Validate(m, 100)
	require.Len(t, issues, 1)
	assert.Equal(t, "unbounded-memory", issues[0].Rule)
	assert.Equal(t, IssueLow, issues[0].Severity)
}

func TestDetect(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  string
		want Format
		ok   bool
	}{
		{"a.wasm", string(header), FormatBinary, true},
		{"a.bin", string(header), FormatBinary, true},
		{"a.wat", "anything", FormatText, true},
		{"a.txt", ";; hi\n(module)", FormatText, true},
		{"a.as", "export function f(): void {}", FormatAssemblyScript, true},
		{"a.ts", "@inline\nfunction f(): i32 { return 1 }", FormatAssemblyScript, true},
		{"a.ts", "let x: i32 = memory.size()", FormatAssemblyScript, true},
		{"a.ts", "const x: number = 1", "", false},
		{"short.wasm", "\x00asm", "", false},
	} {
		got, ok := Detect(tc.name, []byte(tc.src))
		assert.Equal(t, tc.want, got, tc.name)
		assert.Equal(t, tc.ok, ok, tc.name)
	}
}

const asSource = `@inline
export function sum(n: i32): i32 {
  let s: i32 = 0;
  for (let i = 0; i < n; i++) {
    if (i > 2 && s < 100) {
      s += unchecked(load<i32>(i));
    }
  }
  return s;
}
`

type viewAdapter struct{ view *parser.View }

func (viewAdapter) Language() parser.Language { return parser.LangTypeScript }
func (viewAdapter) Extensions() []string      { return []string{".ts"} }

func (a viewAdapter) Parse(context.Context, string, []byte) (*parser.View, error) {
	return a.view, nil
}

func sumRegistry(t *testing.T, path string) *parser.Registry {
	t.Helper()
	fnText := asSource[len("@inline\nexport "):]
	v := testutil.View(t, path, parser.LangTypeScript, asSource,
		testutil.Raw{Type: "program"},
		testutil.Raw{Type: "function_declaration", Text: fnText, Name: "sum", Parent: 0},
		testutil.Raw{Type: "for_statement", Text: "for (let i = 0; i < n; i++)", Parent: 1},
		testutil.Raw{Type: "if_statement", Text: "if (i > 2 && s < 100)", Parent: 2},
		testutil.Raw{Type: "binary_expression", Text: "i > 2 && s < 100", Operator: "&&", Parent: 3},
	)
	reg := parser.NewEmptyRegistry()
	reg.Register(viewAdapter{view: v})
	return reg
}

func TestParseAssemblyScript(t *testing.T) {
	s, err := ParseAssemblyScript(context.Background(), sumRegistry(t, "sum.as"), "sum.as", []byte(asSource))
	require.NoError(t, err)

	fns := s.Complexity.AllFunctions()
	require.Len(t, fns, 1)
	assert.Equal(t, "sum", fns[0].Name)
	assert.Equal(t, 4, fns[0].Metrics.Cyclomatic)
	assert.Equal(t, 4, fns[0].Metrics.Cognitive)
	assert.Equal(t, 2, fns[0].Metrics.NestingMax)

	assert.Equal(t, map[string]int{"inline": 1}, s.Features.Decorators)
	assert.Equal(t, 1, s.Features.Loads)
	assert.Equal(t, 1, s.Features.Unchecked)
	assert.Equal(t, 3, s.Features.NativeTypes)

	_, err = ParseAssemblyScript(context.Background(), parser.NewEmptyRegistry(), "sum.as", []byte(asSource))
	assert.Equal(t, pmerrors.ParseError, pmerrors.CodeOf(err))
}

func TestAnalyzer_WebAssembly(t *testing.T) {
	root := testutil.WriteProject(t, map[string]string{
		"build/skip.wasm": string(sampleModule()),
		"out/app.wasm":    string(sampleModule()),
		"src/count.wat":   watSample,
		"src/broken.wat":  "(module",
		"src/notes.txt":   "(module)",
		"src/legacy.wast": "(module (func))",
	})
	a := NewAnalyzer(nil, nil, DefaultSecurityConfig())
	rep, err := a.WebAssembly(context.Background(), root, classifier.DiscoverOptions{})
	require.NoError(t, err)

	var paths []string
	for _, m := range rep.Modules {
		paths = append(paths, m.Path)
	}
	assert.Equal(t, []string{"out/app.wasm", "src/count.wat", "src/legacy.wast"}, paths)
	require.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0], "src/broken.wat")
	assert.Equal(t, 5, rep.Summary.Functions)
	assert.Equal(t, FormatBinary, rep.Modules[0].Format)
	assert.Empty(t, rep.Modules[0].Issues)
}

func TestAnalyzer_Limits(t *testing.T) {
	a := NewAnalyzer(nil, nil, SecurityConfig{MaxFileSize: 16})
	_, err := a.AnalyzeModule("big.wasm", sampleModule())
	assert.Equal(t, pmerrors.ResourceLimit, pmerrors.CodeOf(err))

	_, err = a.AnalyzeScript(context.Background(), "x.as", []byte("export function f(): void {}"))
	assert.Equal(t, pmerrors.InternalError, pmerrors.CodeOf(err), "scripts need a registry")
}

func TestAnalyzer_AssemblyScript(t *testing.T) {
	root := testutil.WriteProject(t, map[string]string{
		"assembly/sum.ts": asSource,
		"web/app.ts":      "const x: number = 1\n",
	})
	a := NewAnalyzer(nil, sumRegistry(t, "assembly/sum.ts"), DefaultSecurityConfig())
	rep, err := a.AssemblyScript(context.Background(), root, classifier.DiscoverOptions{})
	require.NoError(t, err)
	require.Len(t, rep.Scripts, 1)
	assert.Equal(t, "assembly/sum.ts", rep.Scripts[0].Path)
	assert.Equal(t, 1, rep.Functions)
	assert.Equal(t, 4, rep.MaxCyclomatic)
	assert.InDelta(t, 4.0, rep.AvgCyclomatic, 1e-9)
	assert.Empty(t, rep.Errors)
}
