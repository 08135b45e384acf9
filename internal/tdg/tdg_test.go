package tdg

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmat/internal/ast"
	"pmat/internal/churn"
	"pmat/internal/duplicates"
	pmerrors "pmat/internal/errors"
	"pmat/internal/testutil"
)

func TestSeverityOf(t *testing.T) {
	tests := []struct {
		v    float64
		want Severity
	}{
		{0, Normal}, {1.5, Normal}, {1.51, Warning}, {2.5, Warning}, {2.51, Critical}, {5, Critical},
	}
	for _, tc := range tests {
		if got := SeverityOf(tc.v); got != tc.want {
			t.Errorf("SeverityOf(%v) = %v, want %v", tc.v, got, tc.want)
		}
	}
}

func TestScore(t *testing.T) {
	c := NewCalculator()
	all := Components{5, 5, 5, 5, 5}

	s := c.Score(all, 0)
	assert.InDelta(t, 5.0, s.Value, 1e-12)
	assert.Equal(t, Critical, s.Severity)
	assert.InDelta(t, 1.0, s.Confidence, 1e-12)

	assert.InDelta(t, 4.0, c.Score(all, 1).Value, 1e-12, "full provability removes a fifth")
	assert.InDelta(t, 5.0, c.Score(all, -3).Value, 1e-12, "provability is clamped")

	zero := c.Score(Components{}, 0)
	assert.Zero(t, zero.Value)
	assert.Equal(t, Normal, zero.Severity)
	assert.InDelta(t, 0.8*0.9*0.95, zero.Confidence, 1e-12)

	warn := c.Score(Components{Complexity: 2, Churn: 3}, 0)
	assert.InDelta(t, 1.65, warn.Value, 1e-12)
	assert.Equal(t, Warning, warn.Severity)
}

func TestScore_Bounded(t *testing.T) {
	c := NewCalculator()
	for _, v := range []float64{-1, 0, 2.5, 5, 100, math.Inf(1)} {
		s := c.Score(Components{v, v, v, v, v}, 0.5)
		assert.True(t, s.Value >= 0 && s.Value <= MaxValue, "value %v for %v", s.Value, v)
	}
}

func TestNewCalculatorWithWeights(t *testing.T) {
	_, err := NewCalculatorWithWeights(Weights{Complexity: -1, Churn: -2})
	require.Error(t, err)
	assert.Equal(t, pmerrors.InvalidInput, pmerrors.CodeOf(err))
	pe, ok := pmerrors.As(err)
	require.True(t, ok)
	assert.Len(t, pe.Problems, 2, "every problem is reported")

	_, err = NewCalculatorWithWeights(Weights{})
	require.Error(t, err)

	c, err := NewCalculatorWithWeights(Weights{Duplication: 1})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, c.Score(Components{Duplication: 3, Churn: 5}, 0).Value, 1e-12)
}

func TestDomainRisk(t *testing.T) {
	tests := []struct {
		path string
		want float64
	}{
		{"src/lib.rs", 0},
		{"src/auth/login.rs", 2},
		{"src/auth/crypto.rs", 2},
		{"src/Database/Migration.py", 1.5},
		{"src/auth/api_database.rs", 4.5},
		{"services/integration.go", 1},
	}
	for _, tc := range tests {
		if got := DomainRisk(tc.path); got != tc.want {
			t.Errorf("DomainRisk(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.Equal(t, 4.0, Percentile(sorted, 0.95))
	assert.Equal(t, 3.0, Percentile(sorted, 0.5))
	assert.Equal(t, 1.0, Percentile(sorted, 0))
	assert.Zero(t, Percentile(nil, 0.99))

	files := []FileScore{
		{Path: "a", Score: Score{Value: 2}},
		{Path: "b", Score: Score{Value: 1}},
		{Path: "c", Score: Score{Value: 3}},
		{Path: "d", Score: Score{Value: 2}},
	}
	fillPercentiles(files)
	got := []float64{files[0].Percentile, files[1].Percentile, files[2].Percentile, files[3].Percentile}
	assert.Equal(t, []float64{25, 0, 75, 25}, got)
}

func TestEstimateHours(t *testing.T) {
	assert.InDelta(t, 2.0, EstimateHours(0), 1e-12)
	assert.InDelta(t, 3.6, EstimateHours(1), 1e-12)
	assert.InDelta(t, 2*1.8*1.8, EstimateHours(2), 1e-12)
}

func TestRecommend(t *testing.T) {
	c := NewCalculator()
	recs := c.Recommend(c.Score(Components{Complexity: 4, Churn: 4, Coupling: 4, Duplication: 3}, 0))
	require.Len(t, recs, 4)
	types := []RecommendationType{recs[0].Type, recs[1].Type, recs[2].Type, recs[3].Type}
	assert.Equal(t, []RecommendationType{ReduceComplexity, StabilizeChurn, ReduceCoupling, RemoveDuplication}, types)
	assert.InDelta(t, 4*0.3*0.30, recs[0].ExpectedReduction, 1e-12)
	assert.InDelta(t, 8.0, recs[1].EstimatedHours, 1e-12)

	assert.Empty(t, c.Recommend(c.Score(Components{Complexity: 3, Duplication: 2}, 0)))
}

func TestExplainAndPrimaryFactor(t *testing.T) {
	c := NewCalculator()
	s := c.Score(Components{Complexity: 2, Churn: 3, Coupling: 1, Duplication: 1}, 0)
	text := c.Explain(s)
	assert.True(t, strings.HasPrefix(text, "Technical Debt Gradient: 1.90 (warning)\n\nComponent Breakdown:\n"))
	assert.Contains(t, text, "- Complexity: 2.00 (contributes 0.60 to total)\n")
	assert.Contains(t, text, "- Code Churn: 3.00 (contributes 1.05 to total)\n")
	assert.True(t, strings.HasSuffix(text, "\nConfidence: 100%"))

	assert.Equal(t, "Frequent Changes", c.PrimaryFactor(s.Components))
	assert.Equal(t, "High Complexity", c.PrimaryFactor(Components{}))
	assert.Equal(t, "Domain Risk", c.PrimaryFactor(Components{DomainRisk: 5}))
}

func TestDistribution(t *testing.T) {
	files := []FileScore{
		{Score: Score{Value: 0}}, {Score: Score{Value: 0.5}},
		{Score: Score{Value: 4.9}}, {Score: Score{Value: 5}},
	}
	d := Distribution(files)
	require.Len(t, d, 10)
	assert.Equal(t, 1, d[0].Count)
	assert.Equal(t, 1, d[1].Count)
	assert.Equal(t, 2, d[9].Count)
	assert.InDelta(t, 50.0, d[9].Percentage, 1e-12)
	assert.InDelta(t, 4.5, d[9].Min, 1e-12)
}

func TestFilterHotspots(t *testing.T) {
	hs := []Hotspot{{Path: "a", TDGScore: 3}, {Path: "b", TDGScore: 2}, {Path: "c", TDGScore: 1}}
	assert.Len(t, FilterHotspots(hs, 0, 0, false), 3)
	assert.Len(t, FilterHotspots(hs, 1.5, 0, false), 2)
	assert.Len(t, FilterHotspots(hs, 0, 0, true), 1)
	assert.Len(t, FilterHotspots(hs, 0, 2, false), 2)
}

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

func TestAnalyze(t *testing.T) {
	in := Inputs{
		Arena: rustArena(t),
		Churn: &churn.Analysis{Files: []churn.FileMetrics{{Path: "src/main.rs", ChurnScore: 0.6}}},
		Duplicates: &duplicates.Report{Groups: []duplicates.Group{{
			Fragments: []duplicates.Instance{{File: "src/utils.rs", StartLine: 1, EndLine: 3}},
		}}},
		Provability: map[string]float64{"src/utils.rs": 1},
	}
	c := NewCalculator()
	a, err := c.Analyze(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, a.Files, 2)

	main, utils := a.Files[0], a.Files[1]
	assert.Equal(t, "src/main.rs", main.Path, "highest value first")
	assert.InDelta(t, 3.0, main.Components.Churn, 1e-12)
	assert.Equal(t, 50.0, main.Percentile)
	assert.Positive(t, utils.Components.Duplication)
	assert.Zero(t, utils.Components.Churn)
	assert.InDelta(t, 1.0, utils.Provability, 1e-12)

	s := a.Summary
	assert.Equal(t, 2, s.TotalFiles)
	require.Len(t, s.Hotspots, 2)
	assert.Equal(t, "Frequent Changes", s.Hotspots[0].PrimaryFactor)
	assert.InDelta(t, EstimateHours(main.Value)+EstimateHours(utils.Value), s.EstimatedDebtHours, 1e-9)
	assert.InDelta(t, (main.Value+utils.Value)/2, s.AverageTDG, 1e-12)
	assert.InDelta(t, main.Value, s.P95TDG, 1e-12)

	total := 0
	for _, b := range a.Distribution {
		total += b.Count
	}
	assert.Equal(t, 2, total)

	fa, err := c.AnalyzeFile(a, "src/main.rs")
	require.NoError(t, err)
	assert.Contains(t, fa.Explanation, "Code Churn: 3.00")
	_, err = c.AnalyzeFile(a, "src/missing.rs")
	assert.Equal(t, pmerrors.NotFound, pmerrors.CodeOf(err))

	md := c.FormatMarkdown(a, s.Hotspots, true)
	assert.True(t, strings.HasPrefix(md, "# Technical Debt Gradient Analysis\n\n## Summary\n"))
	assert.Contains(t, md, "### 1. src/main.rs\n")
	assert.Contains(t, md, "- Code Churn: 1.050\n")

	table := c.FormatTable(a, s.Hotspots, true)
	assert.Contains(t, table, "| main.rs | ")
	assert.Contains(t, table, "Ch=1.05")
}

func TestAnalyze_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCalculator().Analyze(ctx, Inputs{Arena: rustArena(t)})
	require.Error(t, err)
	assert.Equal(t, pmerrors.Cancelled, pmerrors.CodeOf(err))
}
