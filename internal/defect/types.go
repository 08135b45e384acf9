// Package defect estimates the probability that a file contains defects
// from its churn, complexity, duplication and coupling.
package defect

// RiskLevel buckets a probability.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"    // below 0.3
	RiskMedium RiskLevel = "Medium" // 0.3 up to 0.7
	RiskHigh   RiskLevel = "High"   // 0.7 and above
)

// LevelOf returns the risk level of a probability.
func LevelOf(p float64) RiskLevel {
	switch {
	case p >= 0.7:
		return RiskHigh
	case p >= 0.3:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Factor names
const (
	FactorChurn       = "churn"
	FactorComplexity  = "complexity"
	FactorDuplication = "duplication"
	FactorCoupling    = "coupling"
)

// Weights combine the normalized factors. The defaults sum to one.
type Weights struct {
	Churn       float64 `json:"churn"`
	Complexity  float64 `json:"complexity"`
	Duplication float64 `json:"duplication"`
	Coupling    float64 `json:"coupling"`
}

// DefaultWeights returns 0.35/0.30/0.25/0.10.
func DefaultWeights() Weights {
	return Weights{Churn: 0.35, Complexity: 0.30, Duplication: 0.25, Coupling: 0.10}
}

// FileMetrics are the raw inputs for one file.
type FileMetrics struct {
	Path string `json:"file_path"`
	// ChurnScore is in [0,1].
	ChurnScore float64 `json:"churn_score"`
	// Complexity is the raw complexity, the worst function's cyclomatic
	// complexity.
	Complexity float64 `json:"complexity"`
	// DuplicateRatio is the share of duplicated lines in [0,1].
	DuplicateRatio   float64 `json:"duplicate_ratio"`
	AfferentCoupling float64 `json:"afferent_coupling"`
	EfferentCoupling float64 `json:"efferent_coupling"`
	LinesOfCode      int     `json:"lines_of_code"`
	Cyclomatic       int     `json:"cyclomatic_complexity"`
	Cognitive        int     `json:"cognitive_complexity"`
}

// Factor is one weighted contribution to the raw score.
type Factor struct {
	Name         string  `json:"name"`
	Contribution float64 `json:"contribution"`
}

// Score is the prediction for one file.
type Score struct {
	Probability         float64   `json:"probability"`
	RawScore            float64   `json:"raw_score"`
	Confidence          float64   `json:"confidence"`
	RiskLevel           RiskLevel `json:"risk_level"`
	ContributingFactors []Factor  `json:"contributing_factors"`
	Recommendations     []string  `json:"recommendations"`
}

// FileScore pairs a file with its prediction.
type FileScore struct {
	File string `json:"file"`
	Score
}

// Distribution counts files per risk level.
type Distribution struct {
	High   int `json:"high_risk_count"`
	Medium int `json:"medium_risk_count"`
	Low    int `json:"low_risk_count"`
}

// ProjectAnalysis aggregates file predictions.
type ProjectAnalysis struct {
	Files              []FileScore  `json:"files"`
	HighRiskFiles      []string     `json:"high_risk_files"`
	MediumRiskFiles    []string     `json:"medium_risk_files"`
	AverageProbability float64      `json:"average_probability"`
	TotalFiles         int          `json:"total_files"`
	FilesAnalyzed      int          `json:"files_analyzed"`
	Distribution       Distribution `json:"distribution"`
}

// Options filters predictions.
type Options struct {
	ConfidenceThreshold  float64
	MinLines             int
	IncludeLowConfidence bool
	HighRiskOnly         bool
	// Limit caps the returned files; zero keeps all.
	Limit int
}

// DefaultOptions returns threshold 0.5 and a ten-line minimum.
func DefaultOptions() Options {
	return Options{ConfidenceThreshold: 0.5, MinLines: 10}
}
