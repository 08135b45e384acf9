package tdg

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"pmat/internal/ast"
	"pmat/internal/churn"
	"pmat/internal/complexity"
	"pmat/internal/duplicates"
	pmerrors "pmat/internal/errors"
)

// Inputs are the analyses the gradient draws on. Only Arena is required;
// a missing analysis leaves its component at zero.
type Inputs struct {
	Arena      *ast.Arena
	Churn      *churn.Analysis
	Duplicates *duplicates.Report
	// Provability maps file paths to their mean function provability.
	Provability map[string]float64
}

// Calculator scores files.
type Calculator struct {
	weights Weights
}

// NewCalculator creates a calculator with the default weights.
func NewCalculator() *Calculator {
	return &Calculator{weights: DefaultWeights()}
}

// NewCalculatorWithWeights validates w: every weight non-negative and at
// least one positive.
func NewCalculatorWithWeights(w Weights) (*Calculator, error) {
	fields := []struct {
		name string
		v    float64
	}{
		{"complexity", w.Complexity}, {"churn", w.Churn}, {"coupling", w.Coupling},
		{"domain_risk", w.DomainRisk}, {"duplication", w.Duplication},
	}
	var problems []pmerrors.Problem
	total := 0.0
	for _, f := range fields {
		if f.v < 0 || math.IsNaN(f.v) {
			problems = append(problems, pmerrors.Problem{Field: "weights." + f.name, Message: "must be non-negative"})
			continue
		}
		total += f.v
	}
	if total == 0 && len(problems) == 0 {
		problems = append(problems, pmerrors.Problem{Field: "weights", Message: "at least one weight must be positive"})
	}
	if len(problems) > 0 {
		return nil, pmerrors.Invalid(problems...)
	}
	return &Calculator{weights: w}, nil
}

// Weights returns the configured weights.
func (c *Calculator) Weights() Weights { return c.weights }

// Score combines components into a value and applies the provability
// discount: a fully provable file scores 20% lower.
func (c *Calculator) Score(comp Components, provability float64) Score {
	w := c.weights
	base := comp.Complexity*w.Complexity +
		comp.Churn*w.Churn +
		comp.Coupling*w.Coupling +
		comp.DomainRisk*w.DomainRisk +
		comp.Duplication*w.Duplication
	p := min(max(provability, 0), 1)
	v := min(max(base*(1-0.2*p), 0), MaxValue)
	return Score{
		Value:       v,
		Components:  comp,
		Severity:    SeverityOf(v),
		Confidence:  confidence(comp),
		Provability: p,
	}
}

// confidence drops for components that are zero, which usually means
// the data was missing.
func confidence(comp Components) float64 {
	c := 1.0
	if comp.Churn == 0 {
		c *= 0.8
	}
	if comp.Coupling == 0 {
		c *= 0.9
	}
	if comp.Duplication == 0 {
		c *= 0.95
	}
	return c
}

var domainRisks = []struct {
	words []string
	risk  float64
}{
	{[]string{"auth", "crypto", "security"}, 2.0},
	{[]string{"database", "migration"}, 1.5},
	{[]string{"api", "integration"}, 1.0},
}

// DomainRisk rates a path by the sensitivity of the area it lives in.
func DomainRisk(path string) float64 {
	lower := strings.ToLower(path)
	risk := 0.0
	for _, d := range domainRisks {
		for _, w := range d.words {
			if strings.Contains(lower, w) {
				risk += d.risk
				break
			}
		}
	}
	return min(risk, MaxValue)
}

// ComponentsOf derives the components of every file in the arena, keyed
// by path.
func ComponentsOf(in Inputs) map[string]Components {
	var dupLines map[string]int
	if in.Duplicates != nil {
		dupLines = in.Duplicates.FileDuplicateLines()
	}
	out := make(map[string]Components, len(in.Arena.Files))
	for _, f := range in.Arena.Files {
		fm := complexity.File(in.Arena, f.Root)
		comp := Components{
			Complexity: min(float64(fm.Total.Cognitive)/25, MaxValue),
			Coupling:   min(float64(importCount(in.Arena, f.Root))/15, MaxValue),
			DomainRisk: DomainRisk(f.Path),
		}
		if in.Churn != nil {
			if cm, ok := in.Churn.File(f.Path); ok {
				comp.Churn = min(max(cm.ChurnScore, 0)*MaxValue, MaxValue)
			}
		}
		if f.Lines > 0 {
			pct := 100 * float64(dupLines[f.Path]) / float64(f.Lines)
			comp.Duplication = min(pct/30, MaxValue)
		}
		out[f.Path] = comp
	}
	return out
}

func importCount(a *ast.Arena, root ast.NodeKey) int {
	n := 0
	for k := range a.Subtree(root) {
		if a.Get(k).Kind.Is(ast.CatImport) {
			n++
		}
	}
	return n
}

// Analyze scores every file, fills percentiles and summarizes the project.
func (c *Calculator) Analyze(ctx context.Context, in Inputs) (*Analysis, error) {
	comps := ComponentsOf(in)
	files := make([]FileScore, 0, len(comps))
	for _, f := range in.Arena.Files {
		if err := ctx.Err(); err != nil {
			return nil, pmerrors.FromContext(err, "tdg", 0)
		}
		files = append(files, FileScore{Path: f.Path, Score: c.Score(comps[f.Path], in.Provability[f.Path])})
	}
	fillPercentiles(files)
	slices.SortStableFunc(files, func(a, b FileScore) int {
		return cmp.Or(cmp.Compare(b.Value, a.Value), strings.Compare(a.Path, b.Path))
	})
	return &Analysis{
		Files:        files,
		Summary:      c.summarize(files),
		Distribution: Distribution(files),
	}, nil
}

// fillPercentiles sets each score's percentile to the share of values
// below it.
func fillPercentiles(files []FileScore) {
	values := make([]float64, len(files))
	for i, f := range files {
		values[i] = f.Value
	}
	slices.Sort(values)
	for i := range files {
		pos, _ := slices.BinarySearch(values, files[i].Value)
		files[i].Percentile = 100 * float64(pos) / float64(len(values))
	}
}

// Percentile returns the value at floor(n*p) of sorted, clamped to the
// last element.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	i := min(int(float64(len(sorted))*p), len(sorted)-1)
	return sorted[i]
}

// EstimateHours is the empirical refactoring effort for a value.
func EstimateHours(v float64) float64 {
	return 2 * math.Pow(1.8, v)
}

// files must be sorted by value descending.
func (c *Calculator) summarize(files []FileScore) Summary {
	s := Summary{TotalFiles: len(files), Hotspots: []Hotspot{}}
	values := make([]float64, len(files))
	total := 0.0
	for i, f := range files {
		values[i] = f.Value
		total += f.Value
		s.EstimatedDebtHours += EstimateHours(f.Value)
		switch f.Severity {
		case Critical:
			s.CriticalFiles++
		case Warning:
			s.WarningFiles++
		}
	}
	if len(files) > 0 {
		s.AverageTDG = total / float64(len(files))
	}
	slices.Sort(values)
	s.P95TDG = Percentile(values, 0.95)
	s.P99TDG = Percentile(values, 0.99)
	for i, f := range files {
		if i == 10 {
			break
		}
		s.Hotspots = append(s.Hotspots, Hotspot{
			Path:           f.Path,
			TDGScore:       f.Value,
			PrimaryFactor:  c.PrimaryFactor(f.Components),
			EstimatedHours: EstimateHours(f.Value),
		})
	}
	return s
}

type weighted struct {
	name   string
	value  float64
	weight float64
}

func (c *Calculator) breakdown(comp Components) []weighted {
	w := c.weights
	return []weighted{
		{"Complexity", comp.Complexity, w.Complexity},
		{"Code Churn", comp.Churn, w.Churn},
		{"Coupling", comp.Coupling, w.Coupling},
		{"Domain Risk", comp.DomainRisk, w.DomainRisk},
		{"Duplication", comp.Duplication, w.Duplication},
	}
}

var factorNames = map[string]string{
	"Complexity":  "High Complexity",
	"Code Churn":  "Frequent Changes",
	"Coupling":    "High Coupling",
	"Domain Risk": "Domain Risk",
	"Duplication": "Code Duplication",
}

// PrimaryFactor names the component with the largest weighted share. Ties
// go to the earlier component.
func (c *Calculator) PrimaryFactor(comp Components) string {
	parts := c.breakdown(comp)
	best := parts[0]
	for _, p := range parts[1:] {
		if p.value*p.weight > best.value*best.weight {
			best = p
		}
	}
	return factorNames[best.name]
}

// Explain renders the component breakdown of a score.
func (c *Calculator) Explain(s Score) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Technical Debt Gradient: %.2f (%s)\n\n", s.Value, s.Severity)
	b.WriteString("Component Breakdown:\n")
	for _, p := range c.breakdown(s.Components) {
		fmt.Fprintf(&b, "- %s: %.2f (contributes %.2f to total)\n", p.name, p.value, p.value*p.weight)
	}
	fmt.Fprintf(&b, "\nConfidence: %.0f%%", s.Confidence*100)
	return b.String()
}

// Recommend suggests remediations for the dominant components, highest
// priority first.
func (c *Calculator) Recommend(s Score) []Recommendation {
	w, comp := c.weights, s.Components
	recs := []Recommendation{}
	if comp.Complexity > 3 {
		recs = append(recs, Recommendation{ReduceComplexity, "Extract complex logic into smaller, focused functions",
			comp.Complexity * 0.3 * w.Complexity, 4, 5})
	}
	if comp.Churn > 3 {
		recs = append(recs, Recommendation{StabilizeChurn, "Add comprehensive tests to stabilize frequently changing code",
			comp.Churn * 0.4 * w.Churn, 8, 4})
	}
	if comp.Coupling > 3 {
		recs = append(recs, Recommendation{ReduceCoupling, "Introduce abstractions to reduce direct dependencies",
			comp.Coupling * 0.35 * w.Coupling, 6, 3})
	}
	if comp.Duplication > 2 {
		recs = append(recs, Recommendation{RemoveDuplication, "Extract duplicated code into shared utilities",
			comp.Duplication * 0.5 * w.Duplication, 3, 2})
	}
	slices.SortStableFunc(recs, func(a, b Recommendation) int { return cmp.Compare(b.Priority, a.Priority) })
	return recs
}

// AnalyzeFile explains one file of an analysis.
func (c *Calculator) AnalyzeFile(a *Analysis, path string) (*FileAnalysis, error) {
	f, ok := a.file(path)
	if !ok {
		return nil, pmerrors.Missing("file", path)
	}
	return &FileAnalysis{
		Path:            path,
		Score:           f.Score,
		Explanation:     c.Explain(f.Score),
		Recommendations: c.Recommend(f.Score),
	}, nil
}

// Distribution counts values in half-point buckets over 0..5.
func Distribution(files []FileScore) []Bucket {
	const width = 0.5
	buckets := make([]Bucket, int(MaxValue/width))
	for i := range buckets {
		buckets[i].Min = float64(i) * width
		buckets[i].Max = float64(i+1) * width
	}
	for _, f := range files {
		i := min(int(f.Value/width), len(buckets)-1)
		buckets[i].Count++
	}
	if len(files) > 0 {
		for i := range buckets {
			buckets[i].Percentage = 100 * float64(buckets[i].Count) / float64(len(files))
		}
	}
	return buckets
}

// FilterHotspots keeps hotspots at or above threshold, optionally only
// critical ones, and at most top of them.
func FilterHotspots(hs []Hotspot, threshold float64, top int, criticalOnly bool) []Hotspot {
	out := make([]Hotspot, 0, len(hs))
	for _, h := range hs {
		if threshold > 0 && h.TDGScore < threshold {
			continue
		}
		if criticalOnly && h.TDGScore <= CriticalThreshold {
			continue
		}
		out = append(out, h)
	}
	if top > 0 && len(out) > top {
		out = out[:top]
	}
	return out
}
