package ranking

import (
	"context"
	"fmt"

	"pmat/internal/duplicates"
)

// Clone weights by type: exact clones count fully, semantic ones least.
var cloneWeights = map[duplicates.CloneType]float64{
	duplicates.Type1: 1.0,
	duplicates.Type2: 0.8,
	duplicates.Type3: 0.6,
	duplicates.Type4: 0.4,
}

// DuplicationScore is the per-file score of the duplication ranker.
type DuplicationScore struct {
	ExactClones      int     `json:"exact_clones"`
	RenamedClones    int     `json:"renamed_clones"`
	GappedClones     int     `json:"gapped_clones"`
	SemanticClones   int     `json:"semantic_clones"`
	DuplicationRatio float64 `json:"duplication_ratio"`
	Score            float64 `json:"score"`
}

// DuplicationRanker ranks files of one clone report by weighted clone
// counts.
type DuplicationRanker struct {
	clones map[string]map[duplicates.CloneType]int
	lines  map[string]int
	dups   map[string]int
}

// NewDuplicationRanker ranks the files of rep. fileLines maps each file to
// its line count and feeds the duplication ratio; it may be nil.
func NewDuplicationRanker(rep *duplicates.Report, fileLines map[string]int) *DuplicationRanker {
	return &DuplicationRanker{
		clones: rep.FileClones(),
		lines:  fileLines,
		dups:   rep.FileDuplicateLines(),
	}
}

func (r *DuplicationRanker) Type() string { return "Duplication" }

// Score returns a zero score for files without clones.
func (r *DuplicationRanker) Score(_ context.Context, path string) (DuplicationScore, error) {
	counts := r.clones[path]
	s := DuplicationScore{
		ExactClones:    counts[duplicates.Type1],
		RenamedClones:  counts[duplicates.Type2],
		GappedClones:   counts[duplicates.Type3],
		SemanticClones: counts[duplicates.Type4],
	}
	for t, n := range counts {
		s.Score += cloneWeights[t] * float64(n)
	}
	if total := r.lines[path]; total > 0 {
		s.DuplicationRatio = min(float64(r.dups[path])/float64(total), 1)
	}
	return s, nil
}

func (r *DuplicationRanker) Value(s DuplicationScore) float64 { return s.Score }

func (r *DuplicationRanker) Header() string {
	return "| Rank | File | Exact | Renamed | Gapped | Semantic | Ratio | Score |\n" +
		"|------|------|-------|---------|--------|----------|-------|-------|"
}

func (r *DuplicationRanker) FormatEntry(rank int, file string, s DuplicationScore) string {
	return fmt.Sprintf("| %d | %s | %d | %d | %d | %d | %.1f%% | %.2f |",
		rank, file, s.ExactClones, s.RenamedClones, s.GappedClones, s.SemanticClones,
		s.DuplicationRatio*100, s.Score)
}
