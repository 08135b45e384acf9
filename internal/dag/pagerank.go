package dag

import (
	"cmp"
	"slices"
)

// RankOptions configures PageRank.
type RankOptions struct {
	// Damping is the probability of following an edge vs teleporting (default: 0.85)
	Damping float64

	// Iterations is the number of power iterations (default: 30)
	Iterations int

	// Tolerance stops iterating early once no score moves more than this.
	// Zero runs every iteration.
	Tolerance float64
}

// DefaultRankOptions returns the pruning defaults.
func DefaultRankOptions() RankOptions {
	return RankOptions{Damping: 0.85, Iterations: 30}
}

// Ranked is a node with its PageRank score.
type Ranked struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type edgeEntry struct {
	target int
	weight float64
}

// PageRank scores every node with uniform teleport. Edge weights bias the
// walk; mass on nodes without outgoing edges is spread uniformly. The
// result is sorted by score descending, then id ascending.
func (g *Graph) PageRank(opts RankOptions) []Ranked {
	if opts.Damping <= 0 || opts.Damping >= 1 {
		opts.Damping = 0.85
	}
	if opts.Iterations <= 0 {
		opts.Iterations = 30
	}

	ids := g.NodeIDs()
	n := len(ids)
	if n == 0 {
		return nil
	}
	idx := make(map[string]int, n)
	for i, id := range ids {
		idx[id] = i
	}

	// Adjacency list: outEdges[i] = list of (neighbor_idx, weight)
	outEdges := make([][]edgeEntry, n)
	outDegree := make([]float64, n)
	for _, e := range g.SortedEdges() {
		from, to := idx[e.From], idx[e.To]
		w := float64(max(e.Weight, 1))
		outEdges[from] = append(outEdges[from], edgeEntry{target: to, weight: w})
		outDegree[from] += w
	}

	uniform := 1 / float64(n)
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = uniform
	}
	next := make([]float64, n)

	for range opts.Iterations {
		dangling := 0.0
		for i := range next {
			next[i] = 0
		}
		for i, edges := range outEdges {
			if outDegree[i] == 0 {
				dangling += scores[i]
				continue
			}
			contrib := scores[i] / outDegree[i]
			for _, e := range edges {
				next[e.target] += contrib * e.weight
			}
		}

		base := (1-opts.Damping)*uniform + opts.Damping*dangling*uniform
		maxDiff := 0.0
		for i := range next {
			next[i] = base + opts.Damping*next[i]
			maxDiff = max(maxDiff, abs(next[i]-scores[i]))
		}
		scores, next = next, scores
		if opts.Tolerance > 0 && maxDiff < opts.Tolerance {
			break
		}
	}

	out := make([]Ranked, n)
	for i, id := range ids {
		out[i] = Ranked{ID: id, Score: scores[i]}
	}
	slices.SortStableFunc(out, func(a, b Ranked) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
