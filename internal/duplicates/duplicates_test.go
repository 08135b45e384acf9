package duplicates

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"pmat/internal/ast"
	pmerrors "pmat/internal/errors"
	"pmat/internal/parser"
	"pmat/internal/testutil"
)

const totalPrice = `def total_price(items, tax):
    subtotal = 0
    for item in items:
        if item.quantity > 0:
            subtotal += item.price * item.quantity
    discount = subtotal * 0.1 if subtotal > 100 else 0
    return (subtotal - discount) * (1 + tax)`

// Same shape as totalPrice with every identifier and literal changed.
const sumCost = `def sum_cost(rows, rate):
    acc = 0
    for row in rows:
        if row.qty > 0:
            acc += row.cost * row.qty
    off = acc * 0.25 if acc > 50 else 0
    return (acc - off) * (1 + rate)`

// totalPrice with one extra statement.
const totalPriceLogged = `def total_price(items, tax):
    subtotal = 0
    for item in items:
        if item.quantity > 0:
            subtotal += item.price * item.quantity
    discount = subtotal * 0.1 if subtotal > 100 else 0
    audit(subtotal)
    return (subtotal - discount) * (1 + tax)`

const parseHeader = `def parse_header(line):
    parts = line.split(":")
    name = parts[0].strip().lower()
    value = ":".join(parts[1:]).strip()
    if not name:
        raise ValueError("empty header")
    return name, value`

// pyView builds a module view with one function node per source.
func pyView(t *testing.T, path string, funcs ...string) *parser.View {
	t.Helper()
	src := strings.Join(funcs, "\n\n") + "\n"
	specs := []testutil.Raw{{Type: "module"}}
	for _, f := range funcs {
		name := f[len("def "):strings.Index(f, "(")]
		specs = append(specs, testutil.Raw{Type: "function_definition", Text: f, Name: name, Parent: 0})
	}
	return testutil.View(t, path, parser.LangPython, src, specs...)
}

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

func testConfig(types ...CloneType) Config {
	cfg := DefaultConfig()
	cfg.MinTokens = 20
	cfg.Types = types
	return cfg
}

func TestTokenize(t *testing.T) {
	toks := Tokenize(parser.LangRust, "fn add(a: i32) -> i32 { a + 1 } // done\n/* block */", 3)
	var texts []string
	for _, tok := range toks {
		texts = append(texts, tok.Text)
	}
	want := "fn add ( a : i32 ) -> i32 { a + 1 }"
	if got := strings.Join(texts, " "); got != want {
		t.Errorf("tokens = %q, want %q", got, want)
	}
	if toks[0].Kind != TokKeyword || toks[1].Kind != TokIdentifier || toks[0].Line != 3 {
		t.Errorf("first tokens = %+v %+v", toks[0], toks[1])
	}

	py := Tokenize(parser.LangPython, "x = a // b  # floor\ny = 'str'", 1)
	var pyTexts []string
	for _, tok := range py {
		pyTexts = append(pyTexts, tok.Text)
	}
	if got := strings.Join(pyTexts, " "); got != "x = a // b y = 'str'" {
		t.Errorf("python tokens = %q", got)
	}
	if py[len(py)-1].Kind != TokLiteral || py[len(py)-1].Line != 2 {
		t.Errorf("last python token = %+v", py[len(py)-1])
	}
}

func TestAlphaNormalize(t *testing.T) {
	a := AlphaNormalize(Tokenize(parser.LangGo, `func f(x int) int { return x * 2 }`, 1))
	b := AlphaNormalize(Tokenize(parser.LangGo, `func g(y int) int { return y * 7 }`, 1))
	if strings.Join(a, " ") != strings.Join(b, " ") {
		t.Errorf("renamed functions normalize differently:\n%v\n%v", a, b)
	}
	if a[1] != "v0" || a[3] != "v1" || a[4] != "v2" {
		t.Errorf("positional names = %v", a)
	}
	c := AlphaNormalize(Tokenize(parser.LangGo, `func f(x int) int { return x * "2" }`, 1))
	if strings.Join(a, " ") == strings.Join(c, " ") {
		t.Error("literal kinds should stay distinct")
	}
}

func TestRabin(t *testing.T) {
	if Rabin([]byte("abc")) == Rabin([]byte("acb")) {
		t.Error("fingerprint ignores order")
	}
	if Rabin([]byte("abc")) != Rabin([]byte("abc")) {
		t.Error("fingerprint is not deterministic")
	}
	if RabinTokens([]string{"ab", "c"}) == RabinTokens([]string{"a", "bc"}) {
		t.Error("token boundaries should matter")
	}
	if got := mulMod(rabinPrime-1, rabinPrime-1); got != 1 {
		t.Errorf("(p-1)² mod p = %d, want 1", got)
	}
}

func TestMinHashJaccard(t *testing.T) {
	s1 := Signature{1, 2, 3, 4, 5}
	s2 := Signature{1, 2, 3, 6, 7}
	if got := s1.Jaccard(s2); got != 0.6 {
		t.Errorf("Jaccard = %v, want 0.6", got)
	}
	if got := s1.Jaccard(Signature{1}); got != 0 {
		t.Errorf("mismatched lengths = %v, want 0", got)
	}

	toks := AlphaNormalize(Tokenize(parser.LangPython, totalPrice, 1))
	same := MinHash(Shingles(toks, 5), 128)
	if got := same.Jaccard(MinHash(Shingles(toks, 5), 128)); got != 1 {
		t.Errorf("identical shingles = %v", got)
	}
	other := MinHash(Shingles(AlphaNormalize(Tokenize(parser.LangPython, parseHeader, 1)), 5), 128)
	if got := same.Jaccard(other); got > 0.3 {
		t.Errorf("unrelated functions Jaccard = %v", got)
	}
}

func TestDetect_AllClassesInOneGroup(t *testing.T) {
	a := buildArena(t,
		pyView(t, "a.py", totalPrice, parseHeader),
		pyView(t, "b.py", totalPrice, sumCost),
		pyView(t, "c.py", totalPriceLogged),
	)
	d, err := NewDetector(testConfig(Type1, Type2, Type3), nil)
	if err != nil {
		t.Fatal(err)
	}
	r, err := d.Detect(context.Background(), a)
	if err != nil {
		t.Fatal(err)
	}
	if r.Summary.TotalFragments != 5 || r.Summary.TotalFiles != 3 {
		t.Fatalf("summary = %+v", r.Summary)
	}
	if len(r.Groups) != 1 {
		t.Fatalf("groups = %d, want 1: %+v", len(r.Groups), r.Groups)
	}
	g := r.Groups[0]
	if g.ID != 1 || g.CloneType != Type3 || len(g.Fragments) != 4 {
		t.Fatalf("group = %+v", g)
	}

	want := []struct {
		file string
		fn   string
		kind CloneType
	}{
		{"a.py", "total_price", Type1},
		{"b.py", "total_price", Type1},
		{"b.py", "sum_cost", Type2},
		{"c.py", "total_price", Type3},
	}
	for i, w := range want {
		in := g.Fragments[i]
		if in.File != w.file || in.Function != w.fn || in.CloneType != w.kind {
			t.Errorf("instance %d = %+v, want %s %s %s", i, in, w.file, w.fn, w.kind)
		}
	}
	if sim := g.Fragments[3].SimilarityToRepresentative; sim < 0.7 || sim >= 1 {
		t.Errorf("gapped similarity = %v", sim)
	}
	if g.Fragments[0].StartLine != 1 || g.Fragments[0].EndLine != 7 {
		t.Errorf("representative lines = %d-%d", g.Fragments[0].StartLine, g.Fragments[0].EndLine)
	}
	if r.Summary.GroupsByType["gapped"] != 1 || r.Summary.LargestGroupSize != 4 {
		t.Errorf("summary = %+v", r.Summary)
	}
	if r.Summary.DuplicateLines != g.TotalLines || r.Summary.DuplicationRatio <= 0 || r.Summary.DuplicationRatio > 1 {
		t.Errorf("duplication = %d lines, ratio %v", r.Summary.DuplicateLines, r.Summary.DuplicationRatio)
	}

	if len(r.Hotspots) != 3 || r.Hotspots[0].File != "b.py" || r.Hotspots[0].CloneGroups != 2 {
		t.Fatalf("hotspots = %+v", r.Hotspots)
	}
	wantSeverity := math.Log(14) * math.Sqrt(2)
	if math.Abs(r.Hotspots[0].Severity-wantSeverity) > 1e-9 {
		t.Errorf("severity = %v, want %v", r.Hotspots[0].Severity, wantSeverity)
	}
}

func TestDetect_TypeFilter(t *testing.T) {
	a := buildArena(t,
		pyView(t, "a.py", totalPrice, parseHeader),
		pyView(t, "b.py", totalPrice, sumCost),
	)
	tests := []struct {
		types []CloneType
		size  int
		kind  CloneType
	}{
		{[]CloneType{Type1}, 2, Type1},
		{[]CloneType{Type2}, 3, Type2},
		{[]CloneType{Type1, Type2}, 3, Type2},
	}
	for _, tt := range tests {
		d, err := NewDetector(testConfig(tt.types...), nil)
		if err != nil {
			t.Fatal(err)
		}
		r, err := d.Detect(context.Background(), a)
		if err != nil {
			t.Fatal(err)
		}
		if len(r.Groups) != 1 || len(r.Groups[0].Fragments) != tt.size || r.Groups[0].CloneType != tt.kind {
			t.Errorf("types %v: groups = %+v", tt.types, r.Groups)
		}
	}
}

func TestDetect_SemanticClones(t *testing.T) {
	// Same code with different literals in a file of another name.
	variant := strings.ReplaceAll(totalPrice, "0.1", "0.2")
	a := buildArena(t, pyView(t, "a.py", totalPrice), pyView(t, "z.py", variant))

	frags := mustFragments(t, a, testConfig(Type4))
	if len(frags[0].Embedding) != EmbeddingDims {
		t.Fatalf("embedding dims = %d", len(frags[0].Embedding))
	}
	var norm float64
	for _, x := range frags[0].Embedding {
		norm += x * x
	}
	if math.Abs(norm-1) > 1e-9 {
		t.Errorf("embedding norm² = %v, want 1", norm)
	}

	d, _ := NewDetector(testConfig(Type4), nil)
	r, err := d.Detect(context.Background(), a)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Groups) != 1 || r.Groups[0].CloneType != Type4 {
		t.Fatalf("groups = %+v", r.Groups)
	}
	if sim := r.Groups[0].Fragments[1].SimilarityToRepresentative; sim < 0.85 {
		t.Errorf("cosine = %v", sim)
	}
}

func mustFragments(t *testing.T, a *ast.Arena, cfg Config) []*Fragment {
	t.Helper()
	d, err := NewDetector(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	frags, err := d.Fragments(context.Background(), a)
	if err != nil {
		t.Fatal(err)
	}
	return frags
}

func TestFragments_MinTokensAndWholeFile(t *testing.T) {
	a := buildArena(t, pyView(t, "a.py", totalPrice, "def tiny(x):\n    return x"))
	frags := mustFragments(t, a, testConfig())
	if len(frags) != 1 || frags[0].Name != "total_price" {
		t.Fatalf("fragments = %+v", frags)
	}

	src := strings.Repeat("value = compute(a, b, c) + offset\n", 5)
	v := testutil.View(t, "script.py", parser.LangPython, src, testutil.Raw{Type: "module"})
	whole := mustFragments(t, buildArena(t, v), testConfig())
	if len(whole) != 1 || whole[0].StartLine != 1 || whole[0].EndLine != 5 || whole[0].Name != "" {
		t.Fatalf("whole-file fragment = %+v", whole)
	}
}

func TestDetect_Cancelled(t *testing.T) {
	a := buildArena(t, pyView(t, "a.py", totalPrice))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d, _ := NewDetector(testConfig(), nil)
	if _, err := d.Detect(ctx, a); !errors.Is(err, pmerrors.ErrCancelled) {
		t.Errorf("err = %v, want cancelled", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinTokens = 0
	cfg.SimilarityThreshold = 1.5
	cfg.Types = []CloneType{7}
	err := cfg.Validate()
	pe, ok := pmerrors.As(err)
	if !ok || len(pe.Problems) != 3 {
		t.Fatalf("Validate() = %v", err)
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestCloneTypeText(t *testing.T) {
	b, err := json.Marshal(Group{CloneType: Type2})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"clone_type":"type2"`) {
		t.Errorf("json = %s", b)
	}
	for _, s := range []string{"type3", "3", "gapped"} {
		if got, err := ParseCloneType(s); err != nil || got != Type3 {
			t.Errorf("ParseCloneType(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := ParseCloneType("type9"); !errors.Is(err, pmerrors.ErrInvalidInput) {
		t.Errorf("err = %v", err)
	}
}

func TestSubwords(t *testing.T) {
	got := strings.Join(subwords("parseHTTP_headerValue"), ",")
	if got != "parse,http,header,value" {
		t.Errorf("subwords = %q", got)
	}
}
