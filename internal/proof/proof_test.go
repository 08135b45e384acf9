package proof

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	pmerrors "pmat/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// delayed emits fixed annotations after a delay, honouring ctx.
type delayed struct {
	name  string
	delay time.Duration
	out   []Located
	err   error
	panic bool
}

func (d delayed) Name() string { return d.name }

func (d delayed) Collect(ctx context.Context, _ string, _ *Cache, _ *SymbolTable) (*Result, error) {
	select {
	case <-time.After(d.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if d.panic {
		panic("boom")
	}
	if d.err != nil {
		return nil, d.err
	}
	return &Result{Annotations: d.out}, nil
}

func at(file string, line int, a Annotation) Located {
	return Located{Location: Location{FilePath: file, StartLine: line, EndLine: line + 2}, Annotation: a}
}

func TestCollect_Parallel(t *testing.T) {
	ann := func(p Property) Annotation { return New(p, Method{Kind: StaticAnalysis}, "mock", "1", Medium) }
	a := NewAnnotator(nil,
		delayed{name: "slow", delay: 50 * time.Millisecond, out: []Located{at("a.rs", 1, ann(MemorySafety))}},
		delayed{name: "mid", delay: 30 * time.Millisecond, out: []Located{at("b.rs", 1, ann(Termination))}},
		delayed{name: "fast", delay: 20 * time.Millisecond, out: []Located{at("c.rs", 1, ann(NullSafety))}},
	)

	start := time.Now()
	m, reports, err := a.Collect(context.Background(), t.TempDir(), nil)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 100*time.Millisecond, "sources must run concurrently")
	assert.Equal(t, 3, m.Len())
	require.Len(t, reports, 3)
	assert.Equal(t, "slow", reports[0].Name)
	assert.Equal(t, 1, reports[0].Metrics.AnnotationsFound)
}

func TestCollect_FailingSourcesDropped(t *testing.T) {
	good := at("a.rs", 1, New(Purity, Method{Kind: StaticAnalysis}, "mock", "1", Low))
	a := NewAnnotator(nil,
		delayed{name: "err", err: errors.New("unreadable")},
		delayed{name: "panic", panic: true},
		delayed{name: "good", out: []Located{good}},
	)
	m, reports, err := a.Collect(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, "unreadable", reports[0].Failed)
	assert.Contains(t, reports[1].Failed, "panicked")
	assert.Empty(t, reports[2].Failed)
}

func TestCollect_Timeout(t *testing.T) {
	a := NewAnnotator(nil, delayed{name: "stuck", delay: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	m, _, err := a.Collect(ctx, t.TempDir(), nil)
	assert.Nil(t, m, "partial results are discarded")
	assert.ErrorIs(t, err, pmerrors.ErrTimeout)
}

func TestMerge_ConflictResolution(t *testing.T) {
	loc := Location{FilePath: "lib.rs", StartLine: 3, EndLine: 9}
	mk := func(conf Confidence, m Method, assumptions ...string) Located {
		return Located{Location: loc, Annotation: New(MemorySafety, m, "t", "1", conf, assumptions...)}
	}
	tests := []struct {
		name   string
		first  Located
		second Located
		want   int // index of the winner: 0 first, 1 second
	}{
		{"higher confidence wins", mk(Medium, Method{Kind: FormalProof}), mk(High, Method{Kind: BorrowChecker}), 1},
		{"higher method rank wins", mk(High, Method{Kind: BorrowChecker}), mk(High, Method{Kind: FormalProof}), 1},
		{"unbounded model checking beats bounded", mk(High, Method{Kind: ModelChecking, Bounded: true}), mk(High, Method{Kind: ModelChecking}), 1},
		{"no assumptions wins", mk(High, Method{Kind: StaticAnalysis}, "x"), mk(High, Method{Kind: StaticAnalysis}), 1},
		{"tie keeps first", mk(High, Method{Kind: StaticAnalysis}), mk(High, Method{Kind: AbstractInterpretation}), 0},
		{"weaker second ignored", mk(High, Method{Kind: FormalProof}), mk(Low, Method{Kind: FormalProof}), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Merge([]Located{tt.first}, []Located{tt.second})
			require.Len(t, m[loc], 1)
			want := []Located{tt.first, tt.second}[tt.want]
			assert.Equal(t, want.Annotation.ID, m[loc][0].ID)
		})
	}
}

func TestMerge_DistinctKeysCoexist(t *testing.T) {
	loc := Location{FilePath: "lib.rs", StartLine: 1, EndLine: 1}
	a := New(MemorySafety, Method{Kind: BorrowChecker}, "t", "1", High)
	b := New(Termination, Method{Kind: BorrowChecker}, "t", "1", High)
	c := New(MemorySafety, Method{Kind: BorrowChecker}, "t", "1", High)
	c.SpecificationID = "spec-1"
	m := Merge([]Located{{loc, a}, {loc, b}, {loc, c}})
	assert.Len(t, m[loc], 3)
}

func TestMerge_PermutationInvariant(t *testing.T) {
	l1 := Location{FilePath: "a.rs", StartLine: 1, EndLine: 4}
	l2 := Location{FilePath: "b.rs", StartLine: 2, EndLine: 2}
	s1 := []Located{{l1, New(MemorySafety, Method{Kind: FormalProof}, "kani", "1", High)}}
	s2 := []Located{{l1, New(MemorySafety, Method{Kind: BorrowChecker}, "rustc", "1", Medium)}, {l2, New(Purity, Method{Kind: StaticAnalysis}, "x", "1", Low)}}
	s3 := []Located{{l2, New(Purity, Method{Kind: StaticAnalysis}, "y", "1", High)}}

	ids := func(m Map) []string {
		var out []string
		for _, la := range m.Sorted() {
			out = append(out, la.Annotation.ToolName)
		}
		return out
	}
	want := ids(Merge(s1, s2, s3))
	assert.Equal(t, []string{"kani", "y"}, want)
	assert.Equal(t, want, ids(Merge(s3, s1, s2)))
	assert.Equal(t, want, ids(Merge(s2, s3, s1)))
}

func TestCache_MtimeInvalidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.rs")
	require.NoError(t, os.WriteFile(path, []byte("fn a() {}\n"), 0o644))

	c := NewCache()
	assert.False(t, c.IsFileCached("borrow-checker", path))

	calls := 0
	analyze := func([]byte) ([]Located, error) {
		calls++
		return []Located{at("lib.rs", 1, New(MemorySafety, Method{Kind: BorrowChecker}, "t", "1", High))}, nil
	}
	_, hit, err := c.FileAnnotations("borrow-checker", path, analyze)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.True(t, c.IsFileCached("borrow-checker", path))

	_, hit, err = c.FileAnnotations("borrow-checker", path, analyze)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, calls)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	assert.False(t, c.IsFileCached("borrow-checker", path))
	_, hit, err = c.FileAnnotations("borrow-checker", path, analyze)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)

	c.Clear()
	assert.Equal(t, CacheStats{}, c.Stats())
}

// purityScan marks every Rust file pure through the shared cache.
type purityScan struct {
	delay time.Duration
}

func (purityScan) Name() string { return "purity-scan" }

func (p purityScan) Collect(ctx context.Context, root string, cache *Cache, _ *SymbolTable) (*Result, error) {
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	res := &Result{}
	err := walk(ctx, root, func(rel string) bool { return filepath.Ext(rel) == ".rs" }, func(rel, abs string) {
		res.Metrics.FilesProcessed++
		anns, hit, err := cache.FileAnnotations(p.Name(), abs, func([]byte) ([]Located, error) {
			return []Located{at(rel, 1, New(Purity, Method{Kind: StaticAnalysis}, "purity-scan", "1", Medium))}, nil
		})
		if err != nil {
			res.Errors = append(res.Errors, err)
			return
		}
		if hit {
			res.Metrics.CacheHits++
		}
		res.Annotations = append(res.Annotations, anns...)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func TestCache_SourcesKeptApart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.rs")
	require.NoError(t, os.WriteFile(path, []byte("fn a() {}\n"), 0o644))

	c := NewCache()
	mem := func([]byte) ([]Located, error) {
		return []Located{at("lib.rs", 1, New(MemorySafety, Method{Kind: BorrowChecker}, "rustc", "1", High))}, nil
	}
	pure := func([]byte) ([]Located, error) {
		return []Located{at("lib.rs", 1, New(Purity, Method{Kind: StaticAnalysis}, "scan", "1", Medium))}, nil
	}

	got, hit, err := c.FileAnnotations("borrow-checker", path, mem)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, MemorySafety, got[0].Annotation.Property)
	assert.False(t, c.IsFileCached("purity-scan", path))

	got, hit, err = c.FileAnnotations("purity-scan", path, pure)
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, got, 1)
	assert.Equal(t, Purity, got[0].Annotation.Property)
	assert.Equal(t, CacheStats{Entries: 2, FilesTracked: 2}, c.Stats())

	got, hit, err = c.FileAnnotations("borrow-checker", path, pure)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, MemorySafety, got[0].Annotation.Property)
}

func TestCollect_SharedFileAcrossSources(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "lib.rs"), []byte(rustSrc), 0o644))

	for _, delay := range []time.Duration{0, 30 * time.Millisecond} {
		a := NewAnnotator(nil, RustSafety{}, purityScan{delay: delay})
		m, reports, err := a.Collect(context.Background(), dir, NewSymbolTable())
		require.NoError(t, err)
		require.Len(t, reports, 2)

		props := map[Property]bool{}
		for _, la := range m.Sorted() {
			props[la.Annotation.Property] = true
		}
		assert.True(t, props[MemorySafety], "delay %s", delay)
		assert.True(t, props[ThreadSafety], "delay %s", delay)
		assert.True(t, props[Purity], "delay %s", delay)
	}
}

const rustSrc = `pub fn safe(x: i32) -> i32 {
    x + 1
}

pub const fn answer() -> u32 {
    42
}

unsafe fn raw() {}

fn peek(p: *const u8) -> u8 {
    unsafe { *p }
}

struct Handle;
unsafe impl Send for Handle {}
impl Sync for Handle {}

trait Shape {
    fn area(&self) -> f64;
}
`

func TestRustSafety(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "lib.rs"), []byte(rustSrc), 0o644))

	cache := NewCache()
	res, err := RustSafety{Version: "1.80.0"}.Collect(context.Background(), dir, cache, NewSymbolTable())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Metrics.FilesProcessed)

	type key struct {
		line int
		prop Property
	}
	got := map[key]Annotation{}
	for _, la := range res.Annotations {
		assert.Equal(t, "src/lib.rs", la.Location.FilePath)
		got[key{la.Location.StartLine, la.Annotation.Property}] = la.Annotation
	}
	assert.Len(t, got, 4)
	assert.Contains(t, got, key{1, MemorySafety})
	assert.Contains(t, got, key{5, MemorySafety})
	assert.Contains(t, got, key{5, Termination})
	assert.Equal(t, "auto_trait_Sync", got[key{17, ThreadSafety}].SpecificationID)
	assert.Equal(t, "rustc-stable", got[key{1, MemorySafety}].ToolName)

	again, err := RustSafety{}.Collect(context.Background(), dir, cache, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Metrics.CacheHits)
}

func TestCompanion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".pmat", "proofs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "lib.rs.proof.yaml"), []byte(`
annotations:
  - start_line: 4
    end_line: 9
    property: termination
    method: {kind: formal-proof, tool: coq}
    tool: coq
    version: "8.18"
    confidence: high
    evidence_location: proofs/lib.v
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".pmat", "proofs", "utils.yaml"), []byte(`
annotations:
  - symbol: utils::helper
    property: null-safety
    method: {kind: model-checking, bounded: true}
    assumptions: [no ffi]
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "bad.proof.yaml"), []byte("annotations: [{nope: 1}]\n"), 0o644))

	symbols := NewSymbolTable()
	symbols.Insert("crate::utils::helper", Location{FilePath: "src/utils.rs", StartLine: 10, EndLine: 20})

	res, err := Companion{}.Collect(context.Background(), dir, NewCache(), symbols)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], pmerrors.ErrParse)

	m := Merge(res.Annotations)
	term := m[Location{FilePath: "src/lib.rs", StartLine: 4, EndLine: 9}]
	require.Len(t, term, 1)
	assert.Equal(t, Termination, term[0].Property)
	assert.Equal(t, High, term[0].Confidence)
	assert.Equal(t, ProofScriptReference, term[0].EvidenceType)

	null := m[Location{FilePath: "src/utils.rs", StartLine: 10, EndLine: 20}]
	require.Len(t, null, 1)
	assert.Equal(t, Medium, null[0].Confidence)
	assert.Equal(t, 2, null[0].Method.Rank())
}

func TestSymbolTable(t *testing.T) {
	st := NewSymbolTable()
	st.Insert("crate::Config", Location{FilePath: "src/main.rs", StartLine: 3, EndLine: 30})
	st.Insert("crate::Config::new", Location{FilePath: "src/main.rs", StartLine: 5, EndLine: 9})
	st.Insert("crate::utils::new", Location{FilePath: "src/utils.rs", StartLine: 1, EndLine: 4})

	name, ok := st.SymbolAt(Location{FilePath: "src/main.rs", StartLine: 6, EndLine: 6})
	require.True(t, ok)
	assert.Equal(t, "crate::Config::new", name)

	_, ok = st.Lookup("new")
	assert.False(t, ok, "ambiguous suffix")
	loc, ok := st.Lookup("Config::new")
	require.True(t, ok)
	assert.Equal(t, 5, loc.StartLine)

	assert.Len(t, st.InSpan(Location{FilePath: "src/main.rs", StartLine: 1, EndLine: 40}), 2)
	assert.Equal(t, 3, st.Len())
	assert.Equal(t, "crate::Config", st.All()[0].Name)
}
