package ranking

import (
	"context"
	"fmt"
	"math"
	"os"

	"pmat/internal/ast"
	"pmat/internal/complexity"
	"pmat/internal/parser"
)

// CompositeComplexity is the per-file score of the complexity ranker.
type CompositeComplexity struct {
	FunctionCount  int     `json:"function_count"`
	CyclomaticMax  int     `json:"cyclomatic_max"`
	CognitiveAvg   float64 `json:"cognitive_avg"`
	HalsteadEffort float64 `json:"halstead_effort"`
	TotalScore     float64 `json:"total_score"`
}

// ComplexityWeights weigh the cyclomatic, cognitive and function-count
// components.
type ComplexityWeights struct {
	Cyclomatic float64
	Cognitive  float64
	Functions  float64
}

// DefaultComplexityWeights returns 0.4/0.4/0.2.
func DefaultComplexityWeights() ComplexityWeights {
	return ComplexityWeights{Cyclomatic: 0.4, Cognitive: 0.4, Functions: 0.2}
}

// languageFactor scales scores so that languages with terser or more
// verbose syntax compare fairly.
var languageFactor = map[parser.Language]float64{
	parser.LangPython:     1.1,
	parser.LangJavaScript: 0.9,
	parser.LangTypeScript: 0.9,
	parser.LangTSX:        0.9,
}

// ComplexityRanker ranks files by a composite of function complexity
// metrics.
type ComplexityRanker struct {
	Weights ComplexityWeights
	// Analyze produces file metrics; NewComplexityRanker parses with a
	// registry.
	Analyze func(ctx context.Context, path string) (complexity.FileMetrics, error)
}

// NewComplexityRanker ranks files parsed by reg.
func NewComplexityRanker(reg *parser.Registry) *ComplexityRanker {
	return &ComplexityRanker{
		Weights: DefaultComplexityWeights(),
		Analyze: func(ctx context.Context, path string) (complexity.FileMetrics, error) {
			src, err := os.ReadFile(path)
			if err != nil {
				return complexity.FileMetrics{}, err
			}
			a, root, err := ast.ParseFile(ctx, reg, path, src)
			if err != nil {
				return complexity.FileMetrics{}, err
			}
			return complexity.File(a, root), nil
		},
	}
}

func (r *ComplexityRanker) Type() string { return "Complexity" }

func (r *ComplexityRanker) Score(ctx context.Context, path string) (CompositeComplexity, error) {
	fm, err := r.Analyze(ctx, path)
	if err != nil {
		return CompositeComplexity{}, err
	}
	return r.Composite(fm), nil
}

// Composite scores already computed file metrics.
func (r *ComplexityRanker) Composite(fm complexity.FileMetrics) CompositeComplexity {
	fns := fm.AllFunctions()
	if len(fns) == 0 {
		return CompositeComplexity{}
	}
	var c CompositeComplexity
	c.FunctionCount = len(fns)
	cognitive, lines := 0, 0
	for _, f := range fns {
		c.CyclomaticMax = max(c.CyclomaticMax, f.Metrics.Cyclomatic)
		cognitive += f.Metrics.Cognitive
		lines += f.Metrics.Lines
	}
	c.CognitiveAvg = float64(cognitive) / float64(len(fns))
	c.HalsteadEffort = float64(lines) * 10

	nc := float64(c.CyclomaticMax) / math.Max(float64(c.CyclomaticMax), 50)
	ng := c.CognitiveAvg / math.Max(c.CognitiveAvg, 100)
	nf := float64(c.FunctionCount) / math.Max(float64(c.FunctionCount), 100)
	w := r.Weights
	total := w.Cyclomatic*nc*100 + w.Cognitive*ng*100 + w.Functions*nf*50
	if f, ok := languageFactor[fm.Language]; ok {
		total *= f
	}
	c.TotalScore = total
	return c
}

func (r *ComplexityRanker) Value(c CompositeComplexity) float64 { return c.TotalScore }

func (r *ComplexityRanker) Header() string {
	return "| Rank | File | Functions | Max Cyclomatic | Avg Cognitive | Halstead | Score |\n" +
		"|------|------|-----------|----------------|---------------|----------|-------|"
}

func (r *ComplexityRanker) FormatEntry(rank int, file string, c CompositeComplexity) string {
	return fmt.Sprintf("| %d | %s | %d | %d | %.1f | %.1f | %.1f |",
		rank, file, c.FunctionCount, c.CyclomaticMax, c.CognitiveAvg, c.HalsteadEffort, c.TotalScore)
}
