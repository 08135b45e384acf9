// Package mermaid renders dependency graphs as Mermaid flowcharts. Output
// is a pure function of the graph and options.
package mermaid

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"pmat/internal/dag"
)

// Options configures rendering.
type Options struct {
	// MaxDepth keeps nodes within this many edges of a root. Zero keeps all.
	MaxDepth int `json:"max_depth,omitempty"`
	// FilterExternal drops External nodes and their edges.
	FilterExternal bool `json:"filter_external"`
	// ShowComplexity annotates labels and adds complexity fill styles.
	ShowComplexity bool `json:"show_complexity"`
}

var labelReplacer = strings.NewReplacer(
	"&", " and ",
	`"`, "'",
	"<", "(",
	">", ")",
	"|", " - ",
	"[", "(",
	"]", ")",
	"{", "(",
	"}", ")",
	"\r\n", " ",
	"\n", " ",
	"\r", " ",
)

// EscapeLabel rewrites characters that break Mermaid node text.
func EscapeLabel(s string) string {
	return labelReplacer.Replace(s)
}

// SanitizeID turns a node id into a Mermaid identifier.
func SanitizeID(id string) string {
	id = strings.ReplaceAll(id, "::", "_")
	var b strings.Builder
	b.Grow(len(id) + 1)
	for _, r := range id {
		if r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	switch {
	case out == "":
		return "_empty"
	case out[0] >= '0' && out[0] <= '9':
		return "_" + out
	}
	return out
}

// Arrow returns the Mermaid link for an edge type.
func Arrow(t dag.EdgeType) string {
	switch t {
	case dag.Imports:
		return "-.->"
	case dag.Inherits:
		return "-->|inherits|"
	case dag.Implements:
		return "-->|implements|"
	case dag.Uses:
		return "---"
	}
	return "-->"
}

// ComplexityColor buckets a complexity score into a fill color.
func ComplexityColor(c int) string {
	switch {
	case c >= 1 && c <= 3:
		return "#90EE90"
	case c >= 4 && c <= 7:
		return "#FFD700"
	case c >= 8 && c <= 12:
		return "#FFA500"
	}
	return "#FF6347"
}

func strokeStyle(t dag.NodeType) (string, int) {
	switch t {
	case dag.Function:
		return ",stroke:#333,stroke-dasharray: 5 5", 2
	case dag.Trait:
		return ",stroke:#663399", 3
	case dag.Interface:
		return ",stroke:#4169E1", 3
	}
	return "", 2
}

func shape(t dag.NodeType, id, label string) string {
	if t == dag.Trait || t == dag.Interface {
		return id + "((" + label + "))"
	}
	return id + "[" + label + "]"
}

// label picks the visible text of a node, never blank.
func label(n *dag.Node) string {
	for _, s := range []string{n.Label, n.Metadata[dag.MetaDisplayName]} {
		if s = strings.TrimSpace(EscapeLabel(s)); s != "" && !placeholder(s) {
			return s
		}
	}
	id := n.ID
	if i := strings.LastIndex(id, "::"); i >= 0 && i+2 < len(id) {
		id = id[i+2:]
	}
	if s := strings.TrimSpace(EscapeLabel(id)); s != "" {
		return s
	}
	return string(n.NodeType)
}

func placeholder(s string) bool {
	if s == "NoData" {
		return true
	}
	digits, ok := strings.CutPrefix(s, "node_")
	if !ok || digits == "" {
		return false
	}
	_, err := strconv.ParseUint(digits, 10, 64)
	return err == nil
}

// Render writes g as a top-down flowchart. Nodes appear in ascending id
// order, edges in (from, to, edge type) order.
func Render(g *dag.Graph, opts Options) string {
	visible := make(map[string]bool, len(g.Nodes))
	for id, n := range g.Nodes {
		visible[id] = !(opts.FilterExternal && n.NodeType == dag.External)
	}
	edges := slices.DeleteFunc(g.SortedEdges(), func(e dag.Edge) bool {
		return !visible[e.From] || !visible[e.To]
	})
	if opts.MaxDepth > 0 {
		within := depthLimit(g.NodeIDs(), visible, edges, opts.MaxDepth)
		for id := range visible {
			visible[id] = visible[id] && within[id]
		}
		edges = slices.DeleteFunc(edges, func(e dag.Edge) bool {
			return !visible[e.From] || !visible[e.To]
		})
	}

	ids := make([]string, 0, len(g.Nodes))
	for _, id := range g.NodeIDs() {
		if visible[id] {
			ids = append(ids, id)
		}
	}
	names := mermaidIDs(ids)

	var sb strings.Builder
	sb.WriteString("graph TD\n")
	for _, id := range ids {
		n := g.Nodes[id]
		text := label(n)
		if opts.ShowComplexity && n.Complexity > 1 {
			text += " - Complexity: " + strconv.Itoa(n.Complexity)
		}
		fmt.Fprintf(&sb, "    %s\n", shape(n.NodeType, names[id], text))
	}
	sb.WriteByte('\n')
	for _, e := range edges {
		fmt.Fprintf(&sb, "    %s %s %s\n", names[e.From], Arrow(e.EdgeType), names[e.To])
	}
	if opts.ShowComplexity && len(ids) > 0 {
		sb.WriteByte('\n')
		for _, id := range ids {
			n := g.Nodes[id]
			stroke, width := strokeStyle(n.NodeType)
			fmt.Fprintf(&sb, "    style %s fill:%s%s,stroke-width:%dpx\n", names[id], ComplexityColor(n.Complexity), stroke, width)
		}
	}
	return sb.String()
}

// mermaidIDs sanitizes sorted ids, suffixing later ids that collide.
func mermaidIDs(ids []string) map[string]string {
	out := make(map[string]string, len(ids))
	taken := make(map[string]bool, len(ids))
	for _, id := range ids {
		base := SanitizeID(id)
		name := base
		for i := 2; taken[name]; i++ {
			name = base + "_" + strconv.Itoa(i)
		}
		taken[name] = true
		out[id] = name
	}
	return out
}

// depthLimit runs a breadth-first search from every node without incoming
// edges, then from the lowest id of each component left unreached (pure
// cycles), and returns the nodes at most maxDepth edges from a seed.
func depthLimit(ids []string, visible map[string]bool, edges []dag.Edge, maxDepth int) map[string]bool {
	out := make(map[string][]string)
	indeg := make(map[string]int)
	for _, e := range edges {
		out[e.From] = append(out[e.From], e.To)
		if e.From != e.To {
			indeg[e.To]++
		}
	}

	dist := make(map[string]int)
	var queue []string
	bfs := func() {
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range out[cur] {
				if _, seen := dist[next]; !seen {
					dist[next] = dist[cur] + 1
					queue = append(queue, next)
				}
			}
		}
	}
	for _, id := range ids {
		if visible[id] && indeg[id] == 0 {
			dist[id] = 0
			queue = append(queue, id)
		}
	}
	bfs()
	for _, id := range ids {
		if _, seen := dist[id]; visible[id] && !seen {
			dist[id] = 0
			queue = append(queue, id)
			bfs()
		}
	}

	keep := make(map[string]bool, len(dist))
	for id, d := range dist {
		keep[id] = d <= maxDepth
	}
	return keep
}
