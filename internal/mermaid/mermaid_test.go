package mermaid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmat/internal/ast"
	"pmat/internal/dag"
	"pmat/internal/testutil"
)

func rustGraph(t *testing.T) *dag.Graph {
	t.Helper()
	a := ast.NewArena()
	b := ast.NewBuilder(a)
	for _, v := range testutil.RustProject(t) {
		_, err := b.AddFile(v)
		require.NoError(t, err)
	}
	a.Freeze()
	g, err := dag.Build(a, dag.BuildOptions{})
	require.NoError(t, err)
	return g
}

func TestRender_RustProject(t *testing.T) {
	g := rustGraph(t)
	pruned, _ := dag.Prune(g, dag.DefaultEdgeBudget, dag.DefaultRankOptions())
	out := Render(pruned, Options{ShowComplexity: true})

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	for _, want := range []string{"main", "utils", "Config", "Processable", "inherits"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, out, "src_main_rs_Processable((Processable))")
	assert.Contains(t, out, "src_main_rs_Config -->|inherits| src_main_rs_Processable")
	assert.Contains(t, out, "src_main_rs -.-> src_utils_rs")
	assert.NotContains(t, out, "NoData")
	assert.NotContains(t, out, "[]")
	assert.NotRegexp(t, `node_\d+`, out)

	assert.Equal(t, out, Render(pruned, Options{ShowComplexity: true}), "rendering is deterministic")
	assert.Equal(t, out, Render(rustGraph(t), Options{ShowComplexity: true}), "fresh build renders identically")
}

func TestRender_Order(t *testing.T) {
	g := dag.New()
	for _, id := range []string{"c", "a", "b"} {
		g.AddNode(&dag.Node{ID: id, Label: strings.ToUpper(id), NodeType: dag.Function, FilePath: "x.rs"})
	}
	g.AddEdge("c", "a", dag.Uses)
	g.AddEdge("b", "c", dag.Calls)
	g.AddEdge("a", "b", dag.Imports)
	g.AddEdge("a", "b", dag.Calls)

	want := "graph TD\n" +
		"    a[A]\n" +
		"    b[B]\n" +
		"    c[C]\n" +
		"\n" +
		"    a --> b\n" +
		"    a -.-> b\n" +
		"    b --> c\n" +
		"    c --- a\n"
	assert.Equal(t, want, Render(g, Options{}))
}

func TestRender_Empty(t *testing.T) {
	assert.Equal(t, "graph TD", strings.TrimSpace(Render(dag.New(), Options{ShowComplexity: true})))
}

func TestRender_ComplexityStyles(t *testing.T) {
	g := dag.New()
	g.AddNode(&dag.Node{ID: "t.rs::simple", Label: "simple", NodeType: dag.Function, Complexity: 1})
	g.AddNode(&dag.Node{ID: "t.rs::Shape", Label: "Shape", NodeType: dag.Trait, Complexity: 9})

	out := Render(g, Options{ShowComplexity: true})
	assert.Contains(t, out, "t_rs_simple[simple]\n", "complexity 1 is not annotated")
	assert.Contains(t, out, "t_rs_Shape((Shape - Complexity: 9))")
	assert.Contains(t, out, "style t_rs_simple fill:#90EE90,stroke:#333,stroke-dasharray: 5 5,stroke-width:2px")
	assert.Contains(t, out, "style t_rs_Shape fill:#FFA500,stroke:#663399,stroke-width:3px")

	plain := Render(g, Options{})
	assert.NotContains(t, plain, "Complexity:")
	assert.NotContains(t, plain, "style ")
}

func TestRender_FilterExternal(t *testing.T) {
	g := dag.New()
	g.AddNode(&dag.Node{ID: "main", Label: "main", NodeType: dag.Function})
	g.AddNode(&dag.Node{ID: "external::serde", Label: "serde", NodeType: dag.External})
	g.AddEdge("main", "external::serde", dag.Imports)

	assert.Contains(t, Render(g, Options{}), "main -.-> external_serde")
	out := Render(g, Options{FilterExternal: true})
	assert.NotContains(t, out, "serde")
}

func TestRender_MaxDepth(t *testing.T) {
	g := dag.New()
	for _, id := range []string{"a", "b", "c", "d", "x", "y"} {
		g.AddNode(&dag.Node{ID: id, Label: id, NodeType: dag.Function})
	}
	g.AddEdge("a", "b", dag.Calls)
	g.AddEdge("b", "c", dag.Calls)
	g.AddEdge("c", "d", dag.Calls)
	// x and y form a cycle with no root.
	g.AddEdge("x", "y", dag.Calls)
	g.AddEdge("y", "x", dag.Calls)

	out := Render(g, Options{MaxDepth: 1})
	for _, want := range []string{"a[a]", "b[b]", "x[x]", "y[y]", "a --> b", "x --> y", "y --> x"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "c[c]")
	assert.NotContains(t, out, "b --> c")
}

func TestRender_LabelFallback(t *testing.T) {
	g := dag.New()
	g.AddNode(&dag.Node{ID: "f.rs::handler", Label: "NoData", NodeType: dag.Function})
	g.AddNode(&dag.Node{ID: "f.rs::node_7", Label: "", NodeType: dag.Class,
		Metadata: map[string]string{dag.MetaDisplayName: "Widget"}})

	out := Render(g, Options{})
	assert.Contains(t, out, "f_rs_handler[handler]")
	assert.Contains(t, out, "f_rs_node_7[Widget]")
}

func TestMermaidIDs_Collisions(t *testing.T) {
	names := mermaidIDs([]string{"a-b", "a.b", "a_b"})
	assert.Equal(t, "a_b", names["a-b"])
	assert.Equal(t, "a_b_2", names["a.b"])
	assert.Equal(t, "a_b_3", names["a_b"])
}

func TestEscapeLabel(t *testing.T) {
	tests := map[string]string{
		"simple":                         "simple",
		"with|pipe":                      "with - pipe",
		"with\"quotes\"":                 "with'quotes'",
		"with[brackets]":                 "with(brackets)",
		"with{braces}":                   "with(braces)",
		"with<angle>":                    "with(angle)",
		"with&ampersand":                 "with and ampersand",
		"line\nbreak":                    "line break",
		"Function: test | Complexity: 5": "Function: test  -  Complexity: 5",
	}
	for in, want := range tests {
		assert.Equal(t, want, EscapeLabel(in), in)
	}
}

func TestSanitizeID(t *testing.T) {
	tests := map[string]string{
		"src/main.rs::main":    "src_main_rs_main",
		"cache.rs::Cache<K,V>": "cache_rs_Cache_K_V_",
		"123abc":               "_123abc",
		"":                     "_empty",
		"naïve fn":             "na_ve_fn",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeID(in), in)
	}
}

func TestComplexityColor(t *testing.T) {
	assert.Equal(t, "#90EE90", ComplexityColor(3))
	assert.Equal(t, "#FFD700", ComplexityColor(4))
	assert.Equal(t, "#FFA500", ComplexityColor(12))
	assert.Equal(t, "#FF6347", ComplexityColor(13))
	assert.Equal(t, "#FF6347", ComplexityColor(0))
}
