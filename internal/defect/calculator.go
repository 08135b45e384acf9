package defect

import (
	"cmp"
	"math"
	"slices"
	"strings"

	pmerrors "pmat/internal/errors"
)

type point struct{ x, y float64 }

// Empirical CDFs mapping raw values to percentiles.
var (
	churnCDF = []point{
		{0.0, 0.0}, {0.1, 0.05}, {0.2, 0.15}, {0.3, 0.30}, {0.4, 0.50},
		{0.5, 0.70}, {0.6, 0.85}, {0.7, 0.93}, {0.8, 0.97}, {1.0, 1.0},
	}
	complexityCDF = []point{
		{1, 0.1}, {2, 0.2}, {3, 0.3}, {5, 0.5}, {7, 0.7},
		{10, 0.8}, {15, 0.9}, {20, 0.95}, {30, 0.98}, {50, 1.0},
	}
	couplingCDF = []point{
		{0, 0.1}, {1, 0.3}, {2, 0.5}, {3, 0.7}, {5, 0.8}, {8, 0.9}, {12, 0.95}, {20, 1.0},
	}
)

// interpolate maps v through a piecewise linear CDF, clamping at both ends.
func interpolate(cdf []point, v float64) float64 {
	if math.IsNaN(v) || v <= cdf[0].x {
		return cdf[0].y
	}
	last := cdf[len(cdf)-1]
	if v >= last.x {
		return last.y
	}
	for i := 0; i < len(cdf)-1; i++ {
		a, b := cdf[i], cdf[i+1]
		if v >= a.x && v <= b.x {
			t := (v - a.x) / (b.x - a.x)
			return a.y + t*(b.y-a.y)
		}
	}
	return 0
}

// Sigmoid maps a raw score to a probability, centred on 0.5.
func Sigmoid(raw float64) float64 {
	return 1 / (1 + math.Exp(-10*(raw-0.5)))
}

// Calculator scores files.
type Calculator struct {
	weights Weights
}

// NewCalculator creates a calculator with the default weights.
func NewCalculator() *Calculator {
	return &Calculator{weights: DefaultWeights()}
}

// NewCalculatorWithWeights validates w. Weights must be non-negative and
// not all zero.
func NewCalculatorWithWeights(w Weights) (*Calculator, error) {
	var problems []pmerrors.Problem
	for name, v := range map[string]float64{
		FactorChurn: w.Churn, FactorComplexity: w.Complexity,
		FactorDuplication: w.Duplication, FactorCoupling: w.Coupling,
	} {
		if v < 0 || math.IsNaN(v) {
			problems = append(problems, pmerrors.Problem{Field: "weights." + name, Message: "must be non-negative"})
		}
	}
	if w.Churn+w.Complexity+w.Duplication+w.Coupling == 0 {
		problems = append(problems, pmerrors.Problem{Field: "weights", Message: "at least one weight must be positive"})
	}
	if len(problems) > 0 {
		slices.SortFunc(problems, func(a, b pmerrors.Problem) int { return strings.Compare(a.Field, b.Field) })
		return nil, pmerrors.Invalid(problems...)
	}
	return &Calculator{weights: w}, nil
}

// Calculate scores one file. The factor contributions sum to RawScore.
func (c *Calculator) Calculate(m FileMetrics) Score {
	factors := []Factor{
		{FactorChurn, c.weights.Churn * interpolate(churnCDF, m.ChurnScore)},
		{FactorComplexity, c.weights.Complexity * interpolate(complexityCDF, m.Complexity)},
		{FactorDuplication, c.weights.Duplication * clamp01(m.DuplicateRatio)},
		{FactorCoupling, c.weights.Coupling * interpolate(couplingCDF, m.AfferentCoupling)},
	}
	raw := 0.0
	for _, f := range factors {
		raw += f.Contribution
	}
	p := Sigmoid(raw)
	return Score{
		Probability:         p,
		RawScore:            raw,
		Confidence:          confidence(m),
		RiskLevel:           LevelOf(p),
		ContributingFactors: factors,
		Recommendations:     recommendations(m, factors),
	}
}

// confidence drops for small files, files without dependency data and
// files without history.
func confidence(m FileMetrics) float64 {
	c := 1.0
	switch {
	case m.LinesOfCode < 10:
		c *= 0.5
	case m.LinesOfCode < 50:
		c *= 0.8
	}
	if m.AfferentCoupling == 0 && m.EfferentCoupling == 0 {
		c *= 0.9
	}
	if m.ChurnScore == 0 {
		c *= 0.85
	}
	return clamp01(c)
}

func recommendations(m FileMetrics, factors []Factor) []string {
	recs := []string{}
	top := slices.MaxFunc(factors, func(a, b Factor) int { return cmp.Compare(a.Contribution, b.Contribution) })
	if top.Contribution > 0.2 {
		switch top.Name {
		case FactorComplexity:
			recs = append(recs, "Consider breaking down complex functions into smaller, more focused units")
			if m.Cyclomatic > 15 {
				recs = append(recs, "Cyclomatic complexity is high - reduce conditional logic and nested structures")
			}
			if m.Cognitive > 20 {
				recs = append(recs, "Cognitive complexity is high - simplify control flow and reduce nesting")
			}
		case FactorChurn:
			recs = append(recs,
				"High change frequency detected - consider stabilizing the interface",
				"Review recent changes for potential design issues")
		case FactorDuplication:
			recs = append(recs,
				"Code duplication detected - extract common functionality into shared modules",
				"Consider using composition or higher-order functions to reduce duplication")
		case FactorCoupling:
			recs = append(recs,
				"High coupling detected - reduce dependencies between modules",
				"Consider using dependency injection or interfaces to decouple components")
		}
	}
	total := 0.0
	for _, f := range factors {
		total += f.Contribution
	}
	if total > 0.7 {
		recs = append(recs,
			"This file has multiple risk factors - prioritize for refactoring",
			"Consider increasing test coverage for this file",
			"Add comprehensive documentation for complex sections")
	}
	return recs
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, 0), 1)
}

// Project scores every file and aggregates the results. Files below the
// confidence threshold are dropped unless low-confidence results are
// requested.
func (c *Calculator) Project(metrics []FileMetrics, opts Options) *ProjectAnalysis {
	pa := &ProjectAnalysis{
		Files:           []FileScore{},
		HighRiskFiles:   []string{},
		MediumRiskFiles: []string{},
		FilesAnalyzed:   len(metrics),
	}
	for _, m := range metrics {
		s := c.Calculate(m)
		if !opts.IncludeLowConfidence && s.Confidence < opts.ConfidenceThreshold {
			continue
		}
		if opts.HighRiskOnly && s.RiskLevel != RiskHigh {
			continue
		}
		pa.Files = append(pa.Files, FileScore{File: m.Path, Score: s})
	}
	slices.SortStableFunc(pa.Files, func(a, b FileScore) int {
		return cmp.Or(cmp.Compare(b.Probability, a.Probability), strings.Compare(a.File, b.File))
	})

	total := 0.0
	for _, f := range pa.Files {
		total += f.Probability
		switch f.RiskLevel {
		case RiskHigh:
			pa.HighRiskFiles = append(pa.HighRiskFiles, f.File)
			pa.Distribution.High++
		case RiskMedium:
			pa.MediumRiskFiles = append(pa.MediumRiskFiles, f.File)
			pa.Distribution.Medium++
		default:
			pa.Distribution.Low++
		}
	}
	pa.TotalFiles = len(pa.Files)
	if pa.TotalFiles > 0 {
		pa.AverageProbability = total / float64(pa.TotalFiles)
	}
	if opts.Limit > 0 && len(pa.Files) > opts.Limit {
		pa.Files = pa.Files[:opts.Limit]
	}
	return pa
}
