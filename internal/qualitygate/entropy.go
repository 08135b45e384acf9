package qualitygate

import (
	"math"

	"pmat/internal/ast"
)

// EntropyStats describes the identifier distribution of a project.
type EntropyStats struct {
	Identifiers int `json:"identifiers"`
	Distinct    int `json:"distinct"`
	// Entropy is the Shannon entropy in bits.
	Entropy float64 `json:"entropy"`
	// Normalized divides Entropy by log2(Distinct).
	Normalized float64 `json:"normalized"`
}

// IdentifierEntropy measures the Shannon entropy of identifier names
// across every file in the arena.
func IdentifierEntropy(a *ast.Arena) EntropyStats {
	counts := map[string]int{}
	total := 0
	for i := range a.Files {
		for k := range a.WalkPreorder(a.Files[i].Root) {
			n := a.Get(k)
			if n.Kind != ast.ExprIdentifier || n.Name == "" {
				continue
			}
			counts[n.Name]++
			total++
		}
	}
	return entropyOf(counts, total)
}

func entropyOf(counts map[string]int, total int) EntropyStats {
	s := EntropyStats{Identifiers: total, Distinct: len(counts)}
	if total == 0 {
		return s
	}
	for _, c := range counts {
		p := float64(c) / float64(total)
		s.Entropy -= p * math.Log2(p)
	}
	if s.Distinct > 1 {
		s.Normalized = s.Entropy / math.Log2(float64(s.Distinct))
	}
	return s
}
