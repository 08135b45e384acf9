// Package satd finds self-admitted technical debt: comments in which
// developers flag their own shortcuts with markers such as TODO, FIXME or
// HACK.
package satd

import "time"

// Category classifies the kind of debt a comment admits to.
type Category string

const (
	CategoryDesign      Category = "Design"
	CategoryDefect      Category = "Defect"
	CategoryRequirement Category = "Requirement"
	CategoryTest        Category = "Test"
	CategoryPerformance Category = "Performance"
	CategorySecurity    Category = "Security"
)

// Severity indicates how urgently the debt should be paid down.
type Severity string

const (
	SeverityCritical Severity = "Critical" // Security holes, known vulnerabilities
	SeverityHigh     Severity = "High"     // Known defects
	SeverityMedium   Severity = "Medium"   // Design and performance issues
	SeverityLow      Severity = "Low"      // Missing features, workarounds
)

// Weight returns a numeric weight for sorting and averaging.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Escalate returns the next more severe level. Critical stays Critical.
func (s Severity) Escalate() Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// Reduce returns the next less severe level. Low stays Low.
func (s Severity) Reduce() Severity {
	switch s {
	case SeverityCritical:
		return SeverityHigh
	case SeverityHigh:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// TechnicalDebt is one debt comment.
type TechnicalDebt struct {
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Text     string   `json:"text"`
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	// ContextHash identifies the item across runs: 32 hex digits over the
	// file, line and comment text.
	ContextHash string `json:"context_hash"`
}

// Summary aggregates debt over a project.
type Summary struct {
	TotalItems    int              `json:"total_items"`
	BySeverity    map[Severity]int `json:"by_severity"`
	ByCategory    map[Category]int `json:"by_category"`
	FilesWithSATD int              `json:"files_with_satd"`
	AvgAgeDays    float64          `json:"avg_age_days"`
}

// Result is the outcome of a project analysis.
type Result struct {
	Items              []TechnicalDebt `json:"items"`
	Summary            Summary         `json:"summary"`
	TotalFilesAnalyzed int             `json:"total_files_analyzed"`
	FilesWithDebt      int             `json:"files_with_debt"`
	AnalysisTimestamp  time.Time       `json:"analysis_timestamp"`
	Metrics            *Metrics        `json:"metrics,omitempty"`
}

// CategoryMetrics describes the debt of one category.
type CategoryMetrics struct {
	Count       int      `json:"count"`
	Files       []string `json:"files"`
	AvgSeverity float64  `json:"avg_severity"`
}

// Metrics are project-wide debt figures.
type Metrics struct {
	TotalDebts         int                          `json:"total_debts"`
	DebtDensityPerKLOC float64                      `json:"debt_density_per_kloc"`
	ByCategory         map[Category]CategoryMetrics `json:"by_category"`
	CriticalDebts      []TechnicalDebt              `json:"critical_debts"`
	// DebtAgeDays holds the age of each dated item, oldest first.
	DebtAgeDays []float64 `json:"debt_age_distribution"`
}

// Options controls a project analysis.
type Options struct {
	// IncludeTests also scans test files; their items are reduced one level.
	IncludeTests bool
	// Exclude holds doublestar globs over repository-relative paths.
	Exclude []string
	// Age dates each item with git blame when the root is a repository.
	Age bool
	// Context adjusts severities from the enclosing function, which
	// requires parsing each file.
	Context bool
}
