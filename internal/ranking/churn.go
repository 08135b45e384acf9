package ranking

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"pmat/internal/churn"
)

// ChurnScore is the per-file score of the churn ranker.
type ChurnScore struct {
	CommitCount   int     `json:"commit_count"`
	UniqueAuthors int     `json:"unique_authors"`
	LinesChanged  int     `json:"lines_changed"`
	RecencyWeight float64 `json:"recency_weight"`
	Score         float64 `json:"score"`
}

// ChurnRanker ranks files of one churn analysis by commit count weighted
// by recency and author diversity.
type ChurnRanker struct {
	analysis *churn.Analysis
	now      time.Time
}

// NewChurnRanker ranks files of a. Paths passed to Score may be absolute
// or relative to the analyzed repository.
func NewChurnRanker(a *churn.Analysis, now time.Time) *ChurnRanker {
	return &ChurnRanker{analysis: a, now: now}
}

func (r *ChurnRanker) Type() string { return "Churn" }

// Score returns a zero score for files without history in the window.
func (r *ChurnRanker) Score(_ context.Context, path string) (ChurnScore, error) {
	rel := path
	if filepath.IsAbs(path) {
		if p, err := filepath.Rel(r.analysis.RepositoryRoot, path); err == nil {
			rel = p
		}
	}
	fm, ok := r.analysis.File(filepath.ToSlash(rel))
	if !ok {
		return ChurnScore{}, nil
	}
	return ChurnOf(fm, r.now), nil
}

// ChurnOf scores one file's churn metrics.
func ChurnOf(fm churn.FileMetrics, now time.Time) ChurnScore {
	s := ChurnScore{
		CommitCount:   fm.CommitCount,
		UniqueAuthors: len(fm.UniqueAuthors),
		LinesChanged:  fm.Additions + fm.Deletions,
		RecencyWeight: churn.RecencyWeight(fm.LastModified, now),
	}
	diversity := 1 + math.Log(float64(max(s.UniqueAuthors, 1)))
	s.Score = float64(s.CommitCount) * s.RecencyWeight * diversity
	return s
}

func (r *ChurnRanker) Value(s ChurnScore) float64 { return s.Score }

func (r *ChurnRanker) Header() string {
	return "| Rank | File | Commits | Authors | Lines Changed | Recency | Score |\n" +
		"|------|------|---------|---------|---------------|---------|-------|"
}

func (r *ChurnRanker) FormatEntry(rank int, file string, s ChurnScore) string {
	return fmt.Sprintf("| %d | %s | %d | %d | %d | %.2f | %.2f |",
		rank, file, s.CommitCount, s.UniqueAuthors, s.LinesChanged, s.RecencyWeight, s.Score)
}
