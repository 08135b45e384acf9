// Package dag builds the dependency graph of an analysis arena and bounds
// its size for visualization.
package dag

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"

	pmerrors "pmat/internal/errors"
)

// NodeType classifies a graph node.
type NodeType string

const (
	Function  NodeType = "Function"
	Class     NodeType = "Class"
	Module    NodeType = "Module"
	Trait     NodeType = "Trait"
	Interface NodeType = "Interface"
	Variable  NodeType = "Variable"
	External  NodeType = "External"
)

// EdgeType classifies a dependency.
type EdgeType string

const (
	Calls      EdgeType = "Calls"
	Imports    EdgeType = "Imports"
	Inherits   EdgeType = "Inherits"
	Implements EdgeType = "Implements"
	Uses       EdgeType = "Uses"
)

// ParseEdgeType accepts the edge type names case-insensitively.
func ParseEdgeType(s string) (EdgeType, bool) {
	for _, t := range []EdgeType{Calls, Imports, Inherits, Implements, Uses} {
		if strings.EqualFold(s, string(t)) {
			return t, true
		}
	}
	return "", false
}

// Required metadata keys present on every node.
const (
	MetaFilePath    = "file_path"
	MetaModulePath  = "module_path"
	MetaDisplayName = "display_name"
	MetaNodeType    = "node_type"
	MetaLanguage    = "language"
)

var requiredMeta = []string{MetaFilePath, MetaModulePath, MetaDisplayName, MetaNodeType, MetaLanguage}

var placeholderLabel = regexp.MustCompile(`^node_\d+$`)

// Node is one graph vertex.
type Node struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	NodeType   NodeType          `json:"node_type"`
	FilePath   string            `json:"file_path"`
	LineNumber int               `json:"line_number"`
	Complexity int               `json:"complexity"`
	Metadata   map[string]string `json:"metadata"`
}

// Edge is one directed dependency. Parallel edges of the same type are
// collapsed into one with a higher weight.
type Edge struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	EdgeType EdgeType `json:"edge_type"`
	Weight   uint32   `json:"weight"`
}

type edgeKey struct {
	from, to string
	kind     EdgeType
}

// Graph is a dependency graph keyed by node id.
type Graph struct {
	Nodes map[string]*Node `json:"nodes"`
	Edges []Edge           `json:"edges"`
	index map[edgeKey]int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{Nodes: make(map[string]*Node), index: make(map[edgeKey]int)}
}

// AddNode inserts n, keeping the first node registered under an id.
func (g *Graph) AddNode(n *Node) bool {
	if _, ok := g.Nodes[n.ID]; ok {
		return false
	}
	g.Nodes[n.ID] = n
	return true
}

// AddEdge inserts a dependency or bumps the weight of an existing one.
// Edges whose endpoints are unknown are rejected.
func (g *Graph) AddEdge(from, to string, kind EdgeType) bool {
	if g.Nodes[from] == nil || g.Nodes[to] == nil {
		return false
	}
	if g.index == nil {
		g.reindex()
	}
	k := edgeKey{from, to, kind}
	if i, ok := g.index[k]; ok {
		g.Edges[i].Weight++
		return true
	}
	g.index[k] = len(g.Edges)
	g.Edges = append(g.Edges, Edge{From: from, To: to, EdgeType: kind, Weight: 1})
	return true
}

func (g *Graph) reindex() {
	g.index = make(map[edgeKey]int, len(g.Edges))
	for i, e := range g.Edges {
		g.index[edgeKey{e.From, e.To, e.EdgeType}] = i
	}
}

// NodeIDs returns all node ids in ascending order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// CompareEdges orders edges by (from, to, edge type).
func CompareEdges(a, b Edge) int {
	if c := cmp.Compare(a.From, b.From); c != 0 {
		return c
	}
	if c := cmp.Compare(a.To, b.To); c != 0 {
		return c
	}
	return cmp.Compare(a.EdgeType, b.EdgeType)
}

// SortedEdges returns a copy of the edges in (from, to, edge type) order.
func (g *Graph) SortedEdges() []Edge {
	out := slices.Clone(g.Edges)
	slices.SortFunc(out, CompareEdges)
	return out
}

// Subgraph keeps the listed nodes and the edges between them.
func (g *Graph) Subgraph(keep func(*Node) bool) *Graph {
	out := New()
	for _, id := range g.NodeIDs() {
		if n := g.Nodes[id]; keep(n) {
			out.AddNode(n)
		}
	}
	for _, e := range g.Edges {
		if out.Nodes[e.From] != nil && out.Nodes[e.To] != nil {
			out.index[edgeKey{e.From, e.To, e.EdgeType}] = len(out.Edges)
			out.Edges = append(out.Edges, e)
		}
	}
	return out
}

// FilterByEdgeType keeps edges of one type and the nodes they connect. A
// graph without edges keeps all of its nodes.
func (g *Graph) FilterByEdgeType(kinds ...EdgeType) *Graph {
	if len(g.Edges) == 0 {
		return g.Subgraph(func(*Node) bool { return true })
	}
	used := make(map[string]bool)
	for _, e := range g.Edges {
		if slices.Contains(kinds, e.EdgeType) {
			used[e.From], used[e.To] = true, true
		}
	}
	out := g.Subgraph(func(n *Node) bool { return used[n.ID] })
	out.Edges = slices.DeleteFunc(out.Edges, func(e Edge) bool { return !slices.Contains(kinds, e.EdgeType) })
	out.reindex()
	return out
}

// Validate checks the metadata and edge invariants and reports every
// violation found.
func (g *Graph) Validate() error {
	var problems []pmerrors.Problem
	for _, id := range g.NodeIDs() {
		n := g.Nodes[id]
		if n.FilePath == "" {
			problems = append(problems, pmerrors.Problem{Field: id, Message: "empty file_path"})
		}
		if n.Label == "" || n.Label == "NoData" || placeholderLabel.MatchString(n.Label) {
			problems = append(problems, pmerrors.Problem{Field: id, Message: fmt.Sprintf("placeholder label %q", n.Label)})
		}
		for _, key := range requiredMeta {
			if n.Metadata[key] == "" {
				problems = append(problems, pmerrors.Problem{Field: id, Message: "missing metadata " + key})
			}
		}
	}
	for _, e := range g.Edges {
		if g.Nodes[e.From] == nil || g.Nodes[e.To] == nil {
			problems = append(problems, pmerrors.Problem{Field: e.From + "->" + e.To, Message: "dangling edge"})
		}
	}
	if len(problems) > 0 {
		return pmerrors.Internal("dependency graph invariant violated", map[string]any{"problems": problems})
	}
	return nil
}

// Stats summarizes node and edge counts by type.
type Stats struct {
	Nodes       int              `json:"nodes"`
	Edges       int              `json:"edges"`
	NodesByType map[NodeType]int `json:"nodes_by_type"`
	EdgesByType map[EdgeType]int `json:"edges_by_type"`
}

// Stats computes graph statistics.
func (g *Graph) Stats() Stats {
	s := Stats{
		Nodes:       len(g.Nodes),
		Edges:       len(g.Edges),
		NodesByType: make(map[NodeType]int),
		EdgesByType: make(map[EdgeType]int),
	}
	for _, n := range g.Nodes {
		s.NodesByType[n.NodeType]++
	}
	for _, e := range g.Edges {
		s.EdgesByType[e.EdgeType]++
	}
	return s
}
