package dag

import (
	"slices"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Cycles returns the strongly connected components with more than one node
// plus every self-dependent node. Each cycle is sorted by id and the list
// is sorted by its first id.
func (g *Graph) Cycles(kinds ...EdgeType) [][]string {
	ids := g.NodeIDs()
	idx := make(map[string]int64, len(ids))
	dg := simple.NewDirectedGraph()
	for i, id := range ids {
		idx[id] = int64(i)
		dg.AddNode(simple.Node(int64(i)))
	}

	selfLoops := make(map[string]bool)
	for _, e := range g.Edges {
		if len(kinds) > 0 && !slices.Contains(kinds, e.EdgeType) {
			continue
		}
		if e.From == e.To {
			selfLoops[e.From] = true
			continue
		}
		dg.SetEdge(dg.NewEdge(simple.Node(idx[e.From]), simple.Node(idx[e.To])))
	}

	var out [][]string
	for _, scc := range topo.TarjanSCC(dg) {
		if len(scc) < 2 {
			if len(scc) == 1 && selfLoops[ids[scc[0].ID()]] {
				out = append(out, []string{ids[scc[0].ID()]})
			}
			continue
		}
		cycle := make([]string, len(scc))
		for i, n := range scc {
			cycle[i] = ids[n.ID()]
		}
		slices.Sort(cycle)
		out = append(out, cycle)
	}
	slices.SortFunc(out, func(a, b []string) int { return slices.Compare(a, b) })
	return out
}
