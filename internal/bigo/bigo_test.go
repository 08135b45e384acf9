package bigo

import (
	"encoding/json"
	"strings"
	"testing"
	"unsafe"

	"pmat/internal/ast"
	"pmat/internal/parser"
	"pmat/internal/testutil"
)

func TestBoundIsEightBytes(t *testing.T) {
	if got := unsafe.Sizeof(Bound{}); got != 8 {
		t.Errorf("Sizeof(Bound) = %d, want 8", got)
	}
}

func TestSolveMaster(t *testing.T) {
	tests := []struct {
		name  string
		a, b  uint32
		work  Bound
		want  Class
		solve bool
	}{
		{"merge sort", 2, 2, LinearBound(), Linearithmic, true},
		{"binary recursion", 1, 2, ConstantBound(), Constant, true},
		{"tree walk", 2, 2, ConstantBound(), Linear, true},
		{"four way constant", 4, 2, ConstantBound(), Quadratic, true},
		{"eight way constant", 8, 2, ConstantBound(), Cubic, true},
		{"shrinking linear", 1, 2, LinearBound(), Linear, true},
		{"four way linear", 4, 2, LinearBound(), Quadratic, true},
		{"quadratic work", 2, 2, QuadraticBound(), 0, false},
		{"no division", 2, 1, LinearBound(), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Recurrence{
				Calls:        []RecursiveCall{{DivisionFactor: tt.b, Count: tt.a}},
				Work:         tt.work,
				BaseCaseSize: 1,
			}
			got, ok := r.SolveMaster()
			if ok != tt.solve {
				t.Fatalf("SolveMaster() ok = %v, want %v", ok, tt.solve)
			}
			if !ok {
				return
			}
			if got.Class != tt.want {
				t.Errorf("class = %s, want %s", got.Class, tt.want)
			}
			if got.Confidence < 90 || !got.Flags.Has(Proven) || !got.Flags.Has(Recursive) {
				t.Errorf("bound = %v flags %v", got, got.Flags.Names())
			}
		})
	}

	multi := Recurrence{Calls: []RecursiveCall{{DivisionFactor: 2, Count: 1}, {DivisionFactor: 3, Count: 1}}, Work: LinearBound()}
	if _, ok := multi.SolveMaster(); ok {
		t.Error("two distinct recursive terms should not solve")
	}
	subtractive := Recurrence{Calls: []RecursiveCall{{DivisionFactor: 2, SizeReduction: 1, Count: 1}}, Work: LinearBound()}
	if _, ok := subtractive.SolveMaster(); ok {
		t.Error("size reduction should not solve")
	}
}

func TestBoundOrderingAndNotation(t *testing.T) {
	if !LinearBound().Better(QuadraticBound()) {
		t.Error("O(n) should beat O(n²)")
	}
	three := New(Linear, 3, VarN)
	if !LinearBound().Better(three) || three.Compare(LinearBound()) != 1 {
		t.Error("coefficient should break class ties")
	}
	if got := three.Notation(); got != "3·O(n)" {
		t.Errorf("Notation() = %q", got)
	}
	if got := LinearithmicBound().String(); got != "O(n log n) (50% confidence)" {
		t.Errorf("String() = %q", got)
	}
	if got := Polynomial(5, 1).Class; got != Unknown {
		t.Errorf("Polynomial(5) = %s, want unknown", got)
	}
	if ConstantBound().WithConfidence(200).Confidence != 100 {
		t.Error("confidence not clamped")
	}
}

func TestBoundJSON(t *testing.T) {
	in := LinearithmicBound().WithConfidence(95).WithFlags(Proven | Recursive)
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"notation":"O(n log n)"`) || !strings.Contains(string(data), `"recursive"`) {
		t.Errorf("json = %s", data)
	}
	var out Bound
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

const mergeSortSrc = `fn merge_sort(v: &[i32]) -> Vec<i32> {
    let l = merge_sort(&v[..mid]);
    let r = merge_sort(&v[mid..]);
    merge(l, r)
}
`

func buildArena(t *testing.T, views ...*parser.View) *ast.Arena {
	t.Helper()
	a := ast.NewArena()
	b := ast.NewBuilder(a)
	for _, v := range views {
		if _, err := b.AddFile(v); err != nil {
			t.Fatal(err)
		}
	}
	a.Freeze()
	return a
}

func mergeSortView(t *testing.T) *parser.View {
	body := mergeSortSrc[strings.Index(mergeSortSrc, "{"):strings.LastIndex(mergeSortSrc, "}")+1]
	return testutil.View(t, "src/sort.rs", parser.LangRust, mergeSortSrc,
		testutil.Raw{Type: "source_file"},
		testutil.Raw{Type: "function_item", Text: strings.TrimSuffix(mergeSortSrc, "\n"), Name: "merge_sort", Parent: 0},
		testutil.Raw{Type: "block", Field: "body", Text: body, Parent: 1},
		testutil.Raw{Type: "call_expression", Text: "merge_sort(&v[..mid])", Parent: 2},
		testutil.Raw{Type: "identifier", Field: "function", Text: "merge_sort", Parent: 3},
		testutil.Raw{Type: "call_expression", Text: "merge_sort(&v[mid..])", Parent: 2},
		testutil.Raw{Type: "identifier", Field: "function", Text: "merge_sort", Parent: 5},
		testutil.Raw{Type: "call_expression", Text: "merge(l, r)", Parent: 2},
		testutil.Raw{Type: "identifier", Field: "function", Text: "merge", Parent: 7},
	)
}

const loopsSrc = `fn pairs(v: &[i32]) {
    for a in v {
        for b in v {
            check(a, b);
        }
    }
}
fn fib(n: u64) -> u64 {
    fib(n - 1) + fib(n - 2)
}
fn find(v: &[i32]) -> bool {
    v.binary_search(&3).is_ok()
}
`

func loopsView(t *testing.T) *parser.View {
	return testutil.View(t, "src/loops.rs", parser.LangRust, loopsSrc,
		testutil.Raw{Type: "source_file"},
		testutil.Raw{Type: "function_item", Text: "fn pairs", Name: "pairs", Parent: 0},
		testutil.Raw{Type: "for_expression", Text: "for a in v", Parent: 1},
		testutil.Raw{Type: "for_expression", Text: "for b in v", Parent: 2},
		testutil.Raw{Type: "function_item", Text: "fn fib", Name: "fib", Parent: 0},
		testutil.Raw{Type: "call_expression", Text: "fib(n - 1)", Parent: 4},
		testutil.Raw{Type: "identifier", Field: "function", Text: "fib", Parent: 5},
		testutil.Raw{Type: "call_expression", Text: "fib(n - 2)", Parent: 4},
		testutil.Raw{Type: "identifier", Field: "function", Text: "fib", Parent: 7},
		testutil.Raw{Type: "function_item", Text: "fn find", Name: "find", Parent: 0},
		testutil.Raw{Type: "call_expression", Text: "v.binary_search(&3)", Parent: 9},
		testutil.Raw{Type: "field_expression", Field: "function", Text: "v.binary_search", Parent: 10},
	)
}

func TestAnalyzer_Function(t *testing.T) {
	a := buildArena(t, mergeSortView(t), loopsView(t))
	an := NewAnalyzer(nil)

	results := map[string]FunctionResult{}
	for _, k := range a.Functions() {
		r := an.Function(a, k)
		results[r.FunctionName] = r
	}

	tests := []struct {
		name    string
		class   Class
		minConf uint8
		note    string
	}{
		{"merge_sort", Linearithmic, 90, "Pattern: Merge Sort"},
		{"pairs", Quadratic, 75, "Pattern: Nested Loops (Depth 2)"},
		{"fib", Exponential, 60, "Recursive function detected"},
		{"find", Logarithmic, 80, "Pattern: Binary Search"},
	}
	for _, tt := range tests {
		r, ok := results[tt.name]
		if !ok {
			t.Errorf("%s not analyzed", tt.name)
			continue
		}
		if r.TimeComplexity.Class != tt.class {
			t.Errorf("%s time = %s, want %s (notes %v)", tt.name, r.TimeComplexity, tt.class, r.Notes)
		}
		if r.TimeComplexity.Confidence < tt.minConf {
			t.Errorf("%s confidence = %d, want >= %d", tt.name, r.TimeComplexity.Confidence, tt.minConf)
		}
		found := false
		for _, n := range r.Notes {
			found = found || n == tt.note
		}
		if !found {
			t.Errorf("%s notes = %v, want %q", tt.name, r.Notes, tt.note)
		}
	}
	if results["merge_sort"].FilePath != "src/sort.rs" {
		t.Errorf("file path = %q", results["merge_sort"].FilePath)
	}
}

func TestAnalyzer_Report(t *testing.T) {
	a := buildArena(t, mergeSortView(t), loopsView(t))
	r := NewAnalyzer(nil).Analyze(a)

	if r.AnalyzedFunctions != 4 {
		t.Errorf("analyzed = %d, want 4", r.AnalyzedFunctions)
	}
	d := r.Distribution
	if d.Linearithmic != 1 || d.Quadratic != 1 || d.Exponential != 1 || d.Logarithmic != 1 {
		t.Errorf("distribution = %+v", d)
	}
	if len(r.HighComplexityFunctions) != 2 || r.HighComplexityFunctions[0].FunctionName != "pairs" {
		t.Errorf("high complexity = %+v", r.HighComplexityFunctions)
	}
	if len(r.Recommendations) != 2 {
		t.Errorf("recommendations = %v", r.Recommendations)
	}
	for i := 1; i < len(r.PatternMatches); i++ {
		if r.PatternMatches[i-1].PatternName > r.PatternMatches[i].PatternName {
			t.Errorf("pattern matches not sorted: %+v", r.PatternMatches)
		}
	}

	strict := NewAnalyzer(nil)
	strict.ConfidenceThreshold = 80
	if got := strict.Analyze(a).AnalyzedFunctions; got >= 4 {
		t.Errorf("threshold kept %d functions", got)
	}
}

func TestMatcher_AddPattern(t *testing.T) {
	m := NewMatcher()
	m.AddPattern(Pattern{ID: "nested_loops_3", Name: "Nested Loops (Depth 3)", Bound: Polynomial(3, 1), Type: NestedLoops, Depth: 3})
	if got := m.Patterns()[0].ID; got != "nested_loops_3" {
		t.Errorf("first pattern = %s", got)
	}
	a := buildArena(t, loopsView(t))
	p, ok := m.Match(a, a.Functions()[0])
	if !ok || p.ID != "nested_loops_2" {
		t.Errorf("Match(pairs) = %v, %v; depth-3 pattern should not apply", p.ID, ok)
	}
}

func TestLoopBound(t *testing.T) {
	if b := LoopBound(0); b.Class != Constant || b.Confidence != 80 {
		t.Errorf("LoopBound(0) = %v", b)
	}
	if b := LoopBound(9); b.Class != Unknown || b.Confidence != 30 {
		t.Errorf("LoopBound(9) = %v", b)
	}
}
