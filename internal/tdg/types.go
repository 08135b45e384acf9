// Package tdg computes the Technical Debt Gradient: a 0..5 per-file debt
// score combining complexity, churn, coupling, domain risk and duplication.
package tdg

// Severity buckets a TDG value.
type Severity string

const (
	Normal   Severity = "normal"
	Warning  Severity = "warning"
	Critical Severity = "critical"
)

// Severity thresholds.
const (
	WarningThreshold  = 1.5
	CriticalThreshold = 2.5
	MaxValue          = 5.0
)

// SeverityOf classifies a value: above 2.5 is critical, above 1.5 a warning.
func SeverityOf(v float64) Severity {
	switch {
	case v > CriticalThreshold:
		return Critical
	case v > WarningThreshold:
		return Warning
	default:
		return Normal
	}
}

// Components are the per-factor inputs, each on 0..5.
type Components struct {
	Complexity  float64 `json:"complexity"`
	Churn       float64 `json:"churn"`
	Coupling    float64 `json:"coupling"`
	DomainRisk  float64 `json:"domain_risk"`
	Duplication float64 `json:"duplication"`
}

// Weights scale the components.
type Weights struct {
	Complexity  float64 `json:"complexity" mapstructure:"complexity"`
	Churn       float64 `json:"churn" mapstructure:"churn"`
	Coupling    float64 `json:"coupling" mapstructure:"coupling"`
	DomainRisk  float64 `json:"domain_risk" mapstructure:"domain_risk"`
	Duplication float64 `json:"duplication" mapstructure:"duplication"`
}

// DefaultWeights favour churn and complexity.
func DefaultWeights() Weights {
	return Weights{Complexity: 0.30, Churn: 0.35, Coupling: 0.15, DomainRisk: 0.10, Duplication: 0.10}
}

// Score is the TDG of one file.
type Score struct {
	Value      float64    `json:"value"`
	Components Components `json:"components"`
	Severity   Severity   `json:"severity"`
	// Percentile is the share of files scoring strictly lower, in percent.
	Percentile float64 `json:"percentile"`
	Confidence float64 `json:"confidence"`
	// Provability is the mean function provability of the file, 0..1.
	Provability float64 `json:"provability"`
}

// FileScore pairs a path with its score.
type FileScore struct {
	Path string `json:"path"`
	Score
}

// Hotspot is one of the highest scoring files.
type Hotspot struct {
	Path           string  `json:"path"`
	TDGScore       float64 `json:"tdg_score"`
	PrimaryFactor  string  `json:"primary_factor"`
	EstimatedHours float64 `json:"estimated_hours"`
}

// Summary aggregates a project.
type Summary struct {
	TotalFiles         int       `json:"total_files"`
	CriticalFiles      int       `json:"critical_files"`
	WarningFiles       int       `json:"warning_files"`
	AverageTDG         float64   `json:"average_tdg"`
	P95TDG             float64   `json:"p95_tdg"`
	P99TDG             float64   `json:"p99_tdg"`
	EstimatedDebtHours float64   `json:"estimated_debt_hours"`
	Hotspots           []Hotspot `json:"hotspots"`
}

// RecommendationType names a remediation.
type RecommendationType string

const (
	ReduceComplexity  RecommendationType = "reduce_complexity"
	StabilizeChurn    RecommendationType = "stabilize_churn"
	ReduceCoupling    RecommendationType = "reduce_coupling"
	RemoveDuplication RecommendationType = "remove_duplication"
)

// Recommendation is a suggested remediation with its expected effect.
type Recommendation struct {
	Type              RecommendationType `json:"recommendation_type"`
	Action            string             `json:"action"`
	ExpectedReduction float64            `json:"expected_reduction"`
	EstimatedHours    float64            `json:"estimated_hours"`
	Priority          int                `json:"priority"`
}

// Bucket counts values in [Min, Max).
type Bucket struct {
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Analysis is the full project result.
type Analysis struct {
	Files        []FileScore `json:"files"`
	Summary      Summary     `json:"summary"`
	Distribution []Bucket    `json:"distribution"`
}

// FileAnalysis explains a single file.
type FileAnalysis struct {
	Path            string           `json:"path"`
	Score           Score            `json:"score"`
	Explanation     string           `json:"explanation"`
	Recommendations []Recommendation `json:"recommendations"`
}
