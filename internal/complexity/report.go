package complexity

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Thresholds configure the complexity rules.
type Thresholds struct {
	CyclomaticWarn  int `json:"cyclomatic_warn"`
	CyclomaticError int `json:"cyclomatic_error"`
	CognitiveWarn   int `json:"cognitive_warn"`
	CognitiveError  int `json:"cognitive_error"`
	NestingMax      int `json:"nesting_max"`
	MethodLength    int `json:"method_length"`
}

// DefaultThresholds returns the stock rule thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CyclomaticWarn:  10,
		CyclomaticError: 20,
		CognitiveWarn:   15,
		CognitiveError:  30,
		NestingMax:      5,
		MethodLength:    50,
	}
}

// Severity of a rule violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Rule identifiers, also used as SARIF rule ids.
const (
	RuleCyclomatic = "cyclomatic-complexity"
	RuleCognitive  = "cognitive-complexity"
)

// Violation is one threshold breach.
type Violation struct {
	Severity  Severity `json:"severity"`
	Rule      string   `json:"rule"`
	Message   string   `json:"message"`
	Value     int      `json:"value"`
	Threshold int      `json:"threshold"`
	File      string   `json:"file"`
	Line      int      `json:"line"`
	Function  string   `json:"function,omitempty"`
}

// Summary holds project-wide statistics. Medians and percentiles only; no means.
type Summary struct {
	TotalFiles         int     `json:"total_files"`
	TotalFunctions     int     `json:"total_functions"`
	MedianCyclomatic   float64 `json:"median_cyclomatic"`
	MedianCognitive    float64 `json:"median_cognitive"`
	MaxCyclomatic      int     `json:"max_cyclomatic"`
	MaxCognitive       int     `json:"max_cognitive"`
	P90Cyclomatic      int     `json:"p90_cyclomatic"`
	P90Cognitive       int     `json:"p90_cognitive"`
	P99Cyclomatic      int     `json:"p99_cyclomatic"`
	TechnicalDebtHours float64 `json:"technical_debt_hours"`
}

// Hotspot is a function above the cyclomatic warning threshold.
type Hotspot struct {
	File           string `json:"file"`
	Function       string `json:"function,omitempty"`
	Line           int    `json:"line"`
	Complexity     int    `json:"complexity"`
	ComplexityType string `json:"complexity_type"`
}

// Report is the complete complexity analysis result.
type Report struct {
	Summary    Summary       `json:"summary"`
	Violations []Violation   `json:"violations"`
	Hotspots   []Hotspot     `json:"hotspots"`
	Files      []FileMetrics `json:"files"`
}

const maxHotspots = 10

// Evaluate checks one function against the cyclomatic and cognitive rules.
func (t Thresholds) Evaluate(file string, fn FunctionComplexity) []Violation {
	var out []Violation
	check := func(rule, label string, value, warn, errLimit int) {
		v := Violation{Rule: rule, Value: value, File: file, Line: fn.StartLine, Function: fn.Name}
		switch {
		case value > errLimit:
			v.Severity, v.Threshold = SeverityError, errLimit
			v.Message = fmt.Sprintf("%s complexity of %d exceeds maximum allowed complexity of %d", label, value, errLimit)
		case value > warn:
			v.Severity, v.Threshold = SeverityWarning, warn
			v.Message = fmt.Sprintf("%s complexity of %d exceeds recommended complexity of %d", label, value, warn)
		default:
			return
		}
		out = append(out, v)
	}
	check(RuleCyclomatic, "Cyclomatic", fn.Metrics.Cyclomatic, t.CyclomaticWarn, t.CyclomaticError)
	check(RuleCognitive, "Cognitive", fn.Metrics.Cognitive, t.CognitiveWarn, t.CognitiveError)
	return out
}

// Aggregate builds a report over per-file metrics.
func Aggregate(files []FileMetrics, t Thresholds) Report {
	r := Report{Files: files, Violations: []Violation{}, Hotspots: []Hotspot{}}
	var cyc, cog []int
	for i := range files {
		f := &files[i]
		for _, fn := range f.AllFunctions() {
			cyc = append(cyc, fn.Metrics.Cyclomatic)
			cog = append(cog, fn.Metrics.Cognitive)
			r.Violations = append(r.Violations, t.Evaluate(f.Path, fn)...)
			if fn.Metrics.Cyclomatic > t.CyclomaticWarn {
				r.Hotspots = append(r.Hotspots, Hotspot{
					File:           f.Path,
					Function:       fn.Name,
					Line:           fn.StartLine,
					Complexity:     fn.Metrics.Cyclomatic,
					ComplexityType: "cyclomatic",
				})
			}
		}
	}
	slices.Sort(cyc)
	slices.Sort(cog)

	slices.SortStableFunc(r.Hotspots, func(a, b Hotspot) int { return b.Complexity - a.Complexity })
	if len(r.Hotspots) > maxHotspots {
		r.Hotspots = r.Hotspots[:maxHotspots]
	}

	var debtMinutes float64
	for _, v := range r.Violations {
		per := 15.0
		if v.Severity == SeverityError {
			per = 30.0
		}
		debtMinutes += float64(v.Value-v.Threshold) * per
	}

	r.Summary = Summary{
		TotalFiles:         len(files),
		TotalFunctions:     len(cyc),
		MedianCyclomatic:   Median(cyc),
		MedianCognitive:    Median(cog),
		MaxCyclomatic:      last(cyc),
		MaxCognitive:       last(cog),
		P90Cyclomatic:      Percentile(cyc, 0.90),
		P90Cognitive:       Percentile(cog, 0.90),
		P99Cyclomatic:      Percentile(cyc, 0.99),
		TechnicalDebtHours: debtMinutes / 60,
	}
	return r
}

// Median returns the median of sorted values.
func Median(sorted []int) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return 0
	case n%2 == 0:
		return float64(sorted[n/2-1]+sorted[n/2]) / 2
	default:
		return float64(sorted[n/2])
	}
}

// Percentile returns the value at index floor(len*p) of sorted values.
func Percentile(sorted []int, p float64) int {
	if len(sorted) == 0 {
		return 0
	}
	i := int(float64(len(sorted)) * p)
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

func last(sorted []int) int {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[len(sorted)-1]
}

// CacheKey derives the cache key of a file's metrics from its path and content.
func CacheKey(path string, content []byte) string {
	d := xxhash.New()
	_, _ = d.Write(content)
	_, _ = d.WriteString(path)
	return "cx:" + strconv.FormatUint(d.Sum64(), 16)
}
