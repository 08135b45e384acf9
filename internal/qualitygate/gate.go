// Package qualitygate checks analysis results against project thresholds.
package qualitygate

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"pmat/internal/complexity"
	"pmat/internal/config"
	"pmat/internal/deadcode"
	pmerrors "pmat/internal/errors"
	"pmat/internal/provability"
	"pmat/internal/satd"
)

// Check names one gate.
type Check string

const (
	CheckComplexity  Check = "complexity"
	CheckDeadCode    Check = "dead-code"
	CheckEntropy     Check = "entropy"
	CheckProvability Check = "provability"
	CheckSATD        Check = "satd"
)

// AllChecks in evaluation order.
var AllChecks = []Check{CheckComplexity, CheckDeadCode, CheckEntropy, CheckProvability, CheckSATD}

// ParseChecks reads a comma-separated check list. Empty input and "all"
// select every check.
func ParseChecks(names []string) ([]Check, error) {
	var out []Check
	var problems []pmerrors.Problem
	for _, raw := range names {
		for _, n := range strings.Split(raw, ",") {
			n = strings.TrimSpace(strings.ToLower(n))
			switch {
			case n == "":
			case n == "all":
				return slices.Clone(AllChecks), nil
			case slices.Contains(AllChecks, Check(n)):
				if !slices.Contains(out, Check(n)) {
					out = append(out, Check(n))
				}
			default:
				problems = append(problems, pmerrors.Problem{Field: "checks", Message: fmt.Sprintf("unknown check %q", n)})
			}
		}
	}
	if len(problems) > 0 {
		return nil, pmerrors.Invalid(problems...)
	}
	if len(out) == 0 {
		return slices.Clone(AllChecks), nil
	}
	return out, nil
}

// Thresholds bound each check. A zero MinEntropy or MinProvability
// disables that check; a negative MaxSATDCritical disables the SATD check.
type Thresholds struct {
	MaxComplexityP99 int     `json:"max_complexity_p99"`
	MaxDeadCode      float64 `json:"max_dead_code_percent"`
	MinEntropy       float64 `json:"min_entropy"`
	MinProvability   float64 `json:"min_provability"`
	MaxSATDCritical  int     `json:"max_satd_critical"`
}

// FromConfig maps the qualityGate config section.
func FromConfig(c config.QualityGateConfig) Thresholds {
	return Thresholds{
		MaxComplexityP99: c.MaxComplexityP99,
		MaxDeadCode:      c.MaxDeadCode,
		MinEntropy:       c.MinEntropy,
		MaxSATDCritical:  c.MaxSATDCritical,
	}
}

// Inputs are the analysis results to gate. A nil input skips its check.
type Inputs struct {
	Complexity []complexity.FileMetrics
	DeadCode   *deadcode.Result
	Proofs     []provability.ProofSummary
	SATD       *satd.Result
	Entropy    *EntropyStats
}

// Status of one check.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
	StatusSkip Status = "SKIP"
)

// Violation is one offending location.
type Violation struct {
	Check   Check  `json:"check"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Check     Check       `json:"check"`
	Status    Status      `json:"status"`
	Value     float64     `json:"value"`
	Threshold float64     `json:"threshold"`
	Message   string      `json:"message"`
	FixHint   string      `json:"fix_hint,omitempty"`
	Offenders []Violation `json:"offenders,omitempty"`
}

// Result is the full gate outcome.
type Result struct {
	Passed bool          `json:"passed"`
	Checks []CheckResult `json:"checks"`
}

// Violations lists every failed check's offenders, or the check itself
// when it has none.
func (r *Result) Violations() []Violation {
	var out []Violation
	for _, c := range r.Checks {
		if c.Status != StatusFail {
			continue
		}
		if len(c.Offenders) == 0 {
			out = append(out, Violation{Check: c.Check, Message: c.Message})
			continue
		}
		out = append(out, c.Offenders...)
	}
	return out
}

// FailedError reports a breached gate. The CLI exits with status 6.
type FailedError struct {
	Failed []Check
}

func (e *FailedError) Error() string {
	names := make([]string, len(e.Failed))
	for i, c := range e.Failed {
		names[i] = string(c)
	}
	return "quality gate failed: " + strings.Join(names, ", ")
}

// ExitCode implements pmerrors.ExitCoder.
func (e *FailedError) ExitCode() int { return pmerrors.ExitQualityGateFail }

// Err returns a *FailedError when any check failed.
func (r *Result) Err() error {
	var failed []Check
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			failed = append(failed, c.Check)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &FailedError{Failed: failed}
}

// maxOffenders caps the offenders listed per check.
const maxOffenders = 10

// Evaluate runs the selected checks. Checks without input are skipped and
// do not fail the gate.
func Evaluate(in Inputs, t Thresholds, checks []Check) *Result {
	if len(checks) == 0 {
		checks = AllChecks
	}
	res := &Result{Passed: true, Checks: make([]CheckResult, 0, len(checks))}
	for _, c := range checks {
		var cr CheckResult
		switch c {
		case CheckComplexity:
			cr = complexityCheck(in.Complexity, t.MaxComplexityP99)
		case CheckDeadCode:
			cr = deadCodeCheck(in.DeadCode, t.MaxDeadCode)
		case CheckEntropy:
			cr = entropyCheck(in.Entropy, t.MinEntropy)
		case CheckProvability:
			cr = provabilityCheck(in.Proofs, t.MinProvability)
		case CheckSATD:
			cr = satdCheck(in.SATD, t.MaxSATDCritical)
		default:
			continue
		}
		cr.Check = c
		if cr.Status == StatusFail {
			res.Passed = false
		}
		res.Checks = append(res.Checks, cr)
	}
	return res
}

func skip(msg string) CheckResult { return CheckResult{Status: StatusSkip, Message: msg} }

func complexityCheck(files []complexity.FileMetrics, maxP99 int) CheckResult {
	if files == nil {
		return skip("complexity was not analyzed")
	}
	if maxP99 <= 0 {
		return skip("no complexity threshold")
	}
	var values []int
	type fn struct {
		file string
		complexity.FunctionComplexity
	}
	var over []fn
	for _, f := range files {
		for _, c := range f.AllFunctions() {
			values = append(values, c.Metrics.Cyclomatic)
			if c.Metrics.Cyclomatic > maxP99 {
				over = append(over, fn{file: f.Path, FunctionComplexity: c})
			}
		}
	}
	slices.Sort(values)
	p99 := complexity.Percentile(values, 0.99)
	cr := CheckResult{
		Status:    StatusPass,
		Value:     float64(p99),
		Threshold: float64(maxP99),
		Message:   fmt.Sprintf("cyclomatic p99 is %d (max %d) over %d functions", p99, maxP99, len(values)),
	}
	if p99 <= maxP99 {
		return cr
	}
	cr.Status = StatusFail
	cr.FixHint = "Split the most complex functions listed below"
	slices.SortStableFunc(over, func(a, b fn) int { return cmp.Compare(b.Metrics.Cyclomatic, a.Metrics.Cyclomatic) })
	for _, f := range over[:min(len(over), maxOffenders)] {
		cr.Offenders = append(cr.Offenders, Violation{
			Check:   CheckComplexity,
			File:    f.file,
			Line:    f.StartLine,
			Message: fmt.Sprintf("%s has cyclomatic complexity %d", f.Name, f.Metrics.Cyclomatic),
		})
	}
	return cr
}

func deadCodeCheck(r *deadcode.Result, maxPercent float64) CheckResult {
	if r == nil {
		return skip("dead code was not analyzed")
	}
	pct := r.Summary.DeadCodeRatio * 100
	cr := CheckResult{
		Status:    StatusPass,
		Value:     pct,
		Threshold: maxPercent,
		Message:   fmt.Sprintf("dead code is %.1f%% of %d lines (max %.1f%%)", pct, r.Summary.TotalLines, maxPercent),
	}
	if pct <= maxPercent {
		return cr
	}
	cr.Status = StatusFail
	cr.FixHint = "Remove unreachable functions or mark intended entry points"
	for _, f := range r.Files[:min(len(r.Files), maxOffenders)] {
		cr.Offenders = append(cr.Offenders, Violation{
			Check:   CheckDeadCode,
			File:    f.Path,
			Message: fmt.Sprintf("%d dead lines in %d items", f.DeadLines, f.DeadItems),
		})
	}
	return cr
}

func entropyCheck(e *EntropyStats, minEntropy float64) CheckResult {
	if e == nil {
		return skip("identifier entropy was not measured")
	}
	if minEntropy <= 0 {
		return skip("no entropy threshold")
	}
	cr := CheckResult{
		Status:    StatusPass,
		Value:     e.Entropy,
		Threshold: minEntropy,
		Message:   fmt.Sprintf("identifier entropy is %.2f bits over %d identifiers (min %.2f)", e.Entropy, e.Identifiers, minEntropy),
	}
	if e.Entropy < minEntropy {
		cr.Status = StatusFail
		cr.FixHint = "Repetitive naming often signals copy-paste; consolidate duplicated code"
	}
	return cr
}

func provabilityCheck(proofs []provability.ProofSummary, minScore float64) CheckResult {
	if proofs == nil {
		return skip("provability was not analyzed")
	}
	if minScore <= 0 {
		return skip("no provability threshold")
	}
	sum := 0.0
	var low []provability.ProofSummary
	for _, p := range proofs {
		sum += p.Score
		if p.Score < minScore {
			low = append(low, p)
		}
	}
	avg := 0.0
	if len(proofs) > 0 {
		avg = sum / float64(len(proofs))
	}
	cr := CheckResult{
		Status:    StatusPass,
		Value:     avg,
		Threshold: minScore,
		Message:   fmt.Sprintf("mean provability is %.2f over %d functions (min %.2f)", avg, len(proofs), minScore),
	}
	if len(proofs) == 0 || avg >= minScore {
		return cr
	}
	cr.Status = StatusFail
	cr.FixHint = "Add null checks and bound loop variables in the functions listed below"
	slices.SortStableFunc(low, func(a, b provability.ProofSummary) int { return cmp.Compare(a.Score, b.Score) })
	for _, p := range low[:min(len(low), maxOffenders)] {
		cr.Offenders = append(cr.Offenders, Violation{
			Check:   CheckProvability,
			File:    p.File,
			Line:    p.StartLine,
			Message: fmt.Sprintf("%s scores %.2f", p.Function, p.Score),
		})
	}
	return cr
}

func satdCheck(r *satd.Result, maxCritical int) CheckResult {
	if r == nil {
		return skip("technical debt was not analyzed")
	}
	if maxCritical < 0 {
		return skip("no SATD threshold")
	}
	var critical []satd.TechnicalDebt
	for _, it := range r.Items {
		if it.Severity == satd.SeverityCritical {
			critical = append(critical, it)
		}
	}
	cr := CheckResult{
		Status:    StatusPass,
		Value:     float64(len(critical)),
		Threshold: float64(maxCritical),
		Message:   fmt.Sprintf("%d critical debt comments (max %d)", len(critical), maxCritical),
	}
	if len(critical) <= maxCritical {
		return cr
	}
	cr.Status = StatusFail
	cr.FixHint = "Resolve security-related TODO and FIXME comments"
	for _, it := range critical[:min(len(critical), maxOffenders)] {
		cr.Offenders = append(cr.Offenders, Violation{Check: CheckSATD, File: it.File, Line: it.Line, Message: it.Text})
	}
	return cr
}
