package dag

// DefaultEdgeBudget is the largest edge count handed to visualizers.
const DefaultEdgeBudget = 400

// PruneResult describes one pruning pass.
type PruneResult struct {
	Pruned       bool `json:"pruned"`
	NodesBefore  int  `json:"nodes_before"`
	EdgesBefore  int  `json:"edges_before"`
	NodesAfter   int  `json:"nodes_after"`
	EdgesAfter   int  `json:"edges_after"`
	EdgeBudget   int  `json:"edge_budget"`
	DroppedEdges int  `json:"dropped_edges"`
	DroppedNodes int  `json:"dropped_nodes"`
}

// Prune bounds g to budget edges. When over budget it keeps the longest
// prefix of nodes in PageRank order whose induced subgraph fits, and drops
// every edge touching a removed node. Retained nodes are shared with g.
func Prune(g *Graph, budget int, opts RankOptions) (*Graph, PruneResult) {
	if budget <= 0 {
		budget = DefaultEdgeBudget
	}
	res := PruneResult{
		NodesBefore: len(g.Nodes),
		EdgesBefore: len(g.Edges),
		EdgeBudget:  budget,
	}
	if len(g.Edges) <= budget {
		out := g.Subgraph(func(*Node) bool { return true })
		res.NodesAfter, res.EdgesAfter = len(out.Nodes), len(out.Edges)
		return out, res
	}

	adj := make(map[string][]string)
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
		if e.To != e.From {
			adj[e.To] = append(adj[e.To], e.From)
		}
	}

	kept := make(map[string]bool)
	edges := 0
	for _, r := range g.PageRank(opts) {
		added := 0
		for _, other := range adj[r.ID] {
			if kept[other] || other == r.ID {
				added++
			}
		}
		if edges+added > budget {
			break
		}
		kept[r.ID] = true
		edges += added
	}

	out := g.Subgraph(func(n *Node) bool { return kept[n.ID] })
	res.Pruned = true
	res.NodesAfter, res.EdgesAfter = len(out.Nodes), len(out.Edges)
	res.DroppedNodes = res.NodesBefore - res.NodesAfter
	res.DroppedEdges = res.EdgesBefore - res.EdgesAfter
	return out, res
}
