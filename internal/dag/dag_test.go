package dag

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmat/internal/ast"
	pmerrors "pmat/internal/errors"
	"pmat/internal/testutil"
)

func rustArena(t *testing.T) *ast.Arena {
	t.Helper()
	a := ast.NewArena()
	b := ast.NewBuilder(a)
	for _, v := range testutil.RustProject(t) {
		_, err := b.AddFile(v)
		require.NoError(t, err)
	}
	a.Freeze()
	return a
}

func hasEdge(g *Graph, from, to string, kinds ...EdgeType) bool {
	for _, e := range g.Edges {
		if e.From == from && e.To == to {
			for _, k := range kinds {
				if e.EdgeType == k {
					return true
				}
			}
		}
	}
	return false
}

func TestBuild_RustProject(t *testing.T) {
	g, err := Build(rustArena(t), BuildOptions{})
	require.NoError(t, err)

	byLabel := map[string][]*Node{}
	for _, n := range g.Nodes {
		byLabel[n.Label] = append(byLabel[n.Label], n)
	}

	require.NotEmpty(t, byLabel["main"])
	var mainFn, utilsMod *Node
	for _, n := range byLabel["main"] {
		if n.NodeType == Function {
			mainFn = n
		}
	}
	for _, n := range byLabel["utils"] {
		if n.NodeType == Module {
			utilsMod = n
		}
	}
	require.NotNil(t, mainFn, "function main")
	require.NotNil(t, utilsMod, "module utils")

	assert.Equal(t, "src/main.rs::main", mainFn.ID)
	assert.Equal(t, "src/utils.rs", utilsMod.ID)
	assert.Equal(t, "src::utils", utilsMod.Metadata[MetaModulePath])
	assert.Equal(t, "rust", utilsMod.Metadata[MetaLanguage])

	assert.Equal(t, Class, g.Nodes["src/main.rs::Config"].NodeType)
	assert.Equal(t, Trait, g.Nodes["src/main.rs::Processable"].NodeType)
	assert.NotNil(t, g.Nodes["src/main.rs::Config::process"], "impl method keyed under its type")
	assert.Equal(t, 2, g.Nodes["src/utils.rs::complex_function"].Complexity)

	assert.True(t, hasEdge(g, "src/main.rs::Config", "src/main.rs::Processable", Inherits, Implements))
	assert.True(t, hasEdge(g, "src/main.rs::main", "src/main.rs::calculate_sum", Calls))
	assert.True(t, hasEdge(g, "src/main.rs::main", "src/utils.rs::helper_function", Calls))
	assert.True(t, hasEdge(g, "src/utils.rs::complex_function", "src/utils.rs::helper_function", Calls))
	assert.True(t, hasEdge(g, "src/main.rs", "src/utils.rs", Imports))

	for id, n := range g.Nodes {
		for _, key := range requiredMeta {
			assert.NotEmpty(t, n.Metadata[key], "%s missing %s", id, key)
		}
	}
}

func TestBuild_KindFilter(t *testing.T) {
	a := rustArena(t)

	calls, err := Build(a, BuildOptions{Kind: CallGraph})
	require.NoError(t, err)
	for _, e := range calls.Edges {
		assert.Equal(t, Calls, e.EdgeType)
	}
	assert.Nil(t, calls.Nodes["src/main.rs::Processable"])

	inh, err := Build(a, BuildOptions{Kind: Inheritance})
	require.NoError(t, err)
	assert.Len(t, inh.Nodes, 2)
	assert.True(t, hasEdge(inh, "src/main.rs::Config", "src/main.rs::Processable", Inherits))
}

func TestBuild_Deterministic(t *testing.T) {
	a := rustArena(t)
	g1, err := Build(a, BuildOptions{})
	require.NoError(t, err)
	g2, err := Build(a, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, g1.NodeIDs(), g2.NodeIDs())
	assert.Equal(t, g1.SortedEdges(), g2.SortedEdges())
}

func TestBuild_UnfrozenArena(t *testing.T) {
	_, err := Build(ast.NewArena(), BuildOptions{})
	assert.ErrorIs(t, err, pmerrors.ErrInternal)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, FullDependency, k)

	k, err = ParseKind("import-graph")
	require.NoError(t, err)
	assert.Equal(t, ImportGraph, k)

	_, err = ParseKind("sideways")
	assert.ErrorIs(t, err, pmerrors.ErrInvalidInput)
}

func TestModulePath(t *testing.T) {
	tests := map[string]string{
		"src/utils.rs":        "src::utils",
		"./src/net/mod.rs":    "src::net",
		"pkg/app/__init__.py": "pkg::app",
		"main.go":             "main",
	}
	for in, want := range tests {
		assert.Equal(t, want, ModulePath(in), in)
	}
}

func node(id string) *Node {
	return &Node{
		ID:       id,
		Label:    id,
		NodeType: Function,
		FilePath: "f.go",
		Metadata: map[string]string{
			MetaFilePath:    "f.go",
			MetaModulePath:  "f",
			MetaDisplayName: id,
			MetaNodeType:    string(Function),
			MetaLanguage:    "go",
		},
	}
}

func graphOf(edges ...[2]string) *Graph {
	g := New()
	for _, e := range edges {
		g.AddNode(node(e[0]))
		g.AddNode(node(e[1]))
		g.AddEdge(e[0], e[1], Calls)
	}
	return g
}

func TestAddEdge(t *testing.T) {
	g := graphOf([2]string{"a", "b"}, [2]string{"a", "b"}, [2]string{"a", "a"})
	require.Len(t, g.Edges, 2)
	assert.Equal(t, uint32(2), g.Edges[0].Weight)
	assert.Equal(t, "a", g.Edges[1].To, "self-loops are kept")

	assert.False(t, g.AddEdge("a", "missing", Calls))
	assert.True(t, g.AddEdge("a", "b", Uses))
	assert.Len(t, g.Edges, 3)
}

func TestValidate(t *testing.T) {
	g := graphOf([2]string{"a", "b"})
	require.NoError(t, g.Validate())

	g.AddNode(&Node{ID: "x", Label: "node_3", FilePath: "f.go"})
	err := g.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, pmerrors.ErrInternal)
}

func TestPageRank(t *testing.T) {
	// Star: every leaf points at hub.
	g := graphOf([2]string{"b", "hub"}, [2]string{"c", "hub"}, [2]string{"a", "hub"})
	ranked := g.PageRank(DefaultRankOptions())
	require.Len(t, ranked, 4)
	assert.Equal(t, "hub", ranked[0].ID)

	// Equal scores break ties by id.
	assert.Equal(t, []string{"a", "b", "c"}, []string{ranked[1].ID, ranked[2].ID, ranked[3].ID})

	sum := 0.0
	for _, r := range ranked {
		sum += r.Score
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestPrune(t *testing.T) {
	var edges [][2]string
	for i := range 30 {
		edges = append(edges, [2]string{fmt.Sprintf("n%02d", i), "hub"})
		edges = append(edges, [2]string{fmt.Sprintf("n%02d", i), fmt.Sprintf("n%02d", (i+1)%30)})
	}
	g := graphOf(edges...)
	require.Len(t, g.Edges, 60)

	out, res := Prune(g, 20, DefaultRankOptions())
	assert.True(t, res.Pruned)
	assert.LessOrEqual(t, len(out.Edges), 20)
	assert.Equal(t, len(out.Edges), res.EdgesAfter)
	assert.Equal(t, 60-res.EdgesAfter, res.DroppedEdges)
	assert.NotNil(t, out.Nodes["hub"], "highest ranked node survives")
	require.NoError(t, out.Validate())

	same, res := Prune(g, DefaultEdgeBudget, DefaultRankOptions())
	assert.False(t, res.Pruned)
	assert.Len(t, same.Edges, 60)
}

func TestCycles(t *testing.T) {
	g := graphOf(
		[2]string{"a", "b"}, [2]string{"b", "c"}, [2]string{"c", "a"},
		[2]string{"c", "d"}, [2]string{"e", "e"},
	)
	assert.Equal(t, [][]string{{"a", "b", "c"}, {"e"}}, g.Cycles())
	assert.Empty(t, g.Cycles(Imports))
}
