package report

import (
	"fmt"
	"strings"

	"pmat/internal/complexity"
	"pmat/internal/deadcode"
	"pmat/internal/duplicates"
	"pmat/internal/makefile"
	"pmat/internal/qualitygate"
	"pmat/internal/satd"
	"pmat/internal/tdg"
)

// DeadCodeSARIF reports unreferenced and unreachable declarations.
func DeadCodeSARIF(root string, r *deadcode.Result) *SARIFReport {
	var rules []Rule
	for _, dr := range deadcode.Rules() {
		rules = append(rules, Rule{ID: dr.ID, Name: dr.Name, Short: dr.Description, Level: LevelWarning, Tags: []string{"maintainability"}})
	}
	findings := make([]Finding, 0, len(r.DeadCode))
	for _, it := range r.DeadCode {
		level := LevelWarning
		if it.Confidence < 0.5 {
			level = LevelNote
		}
		findings = append(findings, Finding{
			RuleID:  it.RuleID(),
			Level:   level,
			Message: fmt.Sprintf("%s '%s' is dead code: %s", it.Kind, it.SymbolName, it.Reason),
			Path:    it.FilePath,
			Line:    it.LineNumber,
			EndLine: it.LineEnd,
			Properties: map[string]any{
				"confidence": RoundFloat(it.Confidence),
				"category":   string(it.Category),
			},
		})
	}
	return SARIF(root, rules, findings)
}

// ComplexitySARIF reports cyclomatic and cognitive threshold breaches.
func ComplexitySARIF(root string, r *complexity.Report) *SARIFReport {
	rules := []Rule{
		{ID: complexity.RuleCyclomatic, Name: "CyclomaticComplexity", Short: "Function has too many independent paths", Level: LevelWarning},
		{ID: complexity.RuleCognitive, Name: "CognitiveComplexity", Short: "Function is hard to understand", Level: LevelWarning},
	}
	findings := make([]Finding, 0, len(r.Violations))
	for _, v := range r.Violations {
		findings = append(findings, Finding{
			RuleID:     v.Rule,
			Level:      string(v.Severity),
			Message:    v.Message,
			Path:       v.File,
			Line:       v.Line,
			Properties: map[string]any{"value": v.Value, "threshold": v.Threshold},
		})
	}
	return SARIF(root, rules, findings)
}

// SATDSARIF reports self-admitted technical debt, one rule per category.
func SATDSARIF(root string, r *satd.Result) *SARIFReport {
	categories := []satd.Category{
		satd.CategoryDesign, satd.CategoryDefect, satd.CategoryRequirement,
		satd.CategoryTest, satd.CategoryPerformance, satd.CategorySecurity,
	}
	rules := make([]Rule, 0, len(categories))
	for _, c := range categories {
		rules = append(rules, Rule{ID: satdRule(c), Name: string(c) + "Debt", Short: string(c) + " debt admitted in a comment"})
	}
	findings := make([]Finding, 0, len(r.Items))
	for _, d := range r.Items {
		findings = append(findings, Finding{
			RuleID:     satdRule(d.Category),
			Level:      string(d.Severity),
			Message:    d.Text,
			Path:       d.File,
			Line:       d.Line,
			Column:     d.Column,
			Properties: map[string]any{"severity": string(d.Severity), "context_hash": d.ContextHash},
		})
	}
	return SARIF(root, rules, findings)
}

func satdRule(c satd.Category) string { return "satd-" + strings.ToLower(string(c)) }

// TDGSARIF reports files whose debt gradient is a warning or worse.
func TDGSARIF(root string, a *tdg.Analysis) *SARIFReport {
	rules := []Rule{
		{ID: "tdg-critical", Name: "CriticalTechnicalDebt", Short: fmt.Sprintf("Technical debt gradient above %.1f", tdg.CriticalThreshold), Level: LevelError},
		{ID: "tdg-warning", Name: "TechnicalDebtWarning", Short: fmt.Sprintf("Technical debt gradient above %.1f", tdg.WarningThreshold), Level: LevelWarning},
	}
	var findings []Finding
	for _, f := range a.Files {
		var rule, level string
		switch f.Severity {
		case tdg.Critical:
			rule, level = "tdg-critical", LevelError
		case tdg.Warning:
			rule, level = "tdg-warning", LevelWarning
		default:
			continue
		}
		findings = append(findings, Finding{
			RuleID:  rule,
			Level:   level,
			Message: fmt.Sprintf("TDG %s (percentile %s)", FormatFloat(f.Value, 2), FormatFloat(f.Percentile, 1)),
			Path:    f.Path,
			Line:    1,
			Properties: map[string]any{
				"tdg":        RoundFloat(f.Value),
				"complexity": RoundFloat(f.Components.Complexity),
				"churn":      RoundFloat(f.Components.Churn),
			},
		})
	}
	return SARIF(root, rules, findings)
}

// MakefileSARIF reports lint violations; rules are declared as they occur.
func MakefileSARIF(root string, r *makefile.Report) *SARIFReport {
	var findings []Finding
	for _, f := range r.Files {
		for _, v := range f.Violations {
			msg := v.Message
			if v.FixHint != "" {
				msg += " (" + v.FixHint + ")"
			}
			findings = append(findings, Finding{RuleID: "makefile/" + v.Rule, Level: string(v.Severity), Message: msg, Path: f.Path, Line: v.Line})
		}
	}
	return SARIF(root, nil, findings)
}

// DuplicatesSARIF reports every clone instance beyond the first of a group.
func DuplicatesSARIF(root string, r *duplicates.Report) *SARIFReport {
	rules := []Rule{{ID: "duplicate-code", Name: "DuplicateCode", Short: "Code fragment duplicates another", Level: LevelWarning}}
	var findings []Finding
	for _, g := range r.Groups {
		if len(g.Fragments) == 0 {
			continue
		}
		first := g.Fragments[0]
		for _, in := range g.Fragments[1:] {
			findings = append(findings, Finding{
				RuleID:  "duplicate-code",
				Level:   LevelWarning,
				Message: fmt.Sprintf("%s clone of %s:%d", in.CloneType, first.File, first.StartLine),
				Path:    in.File,
				Line:    in.StartLine,
				EndLine: in.EndLine,
				Properties: map[string]any{
					"group":      g.ID,
					"similarity": RoundFloat(in.SimilarityToRepresentative),
				},
			})
		}
	}
	return SARIF(root, rules, findings)
}

// QualityGateSARIF reports the offenders of every failed check.
func QualityGateSARIF(root string, r *qualitygate.Result) *SARIFReport {
	rules := make([]Rule, 0, len(qualitygate.AllChecks))
	for _, c := range qualitygate.AllChecks {
		rules = append(rules, Rule{ID: "quality-gate/" + string(c), Name: string(c), Short: "Quality gate check " + string(c), Level: LevelError})
	}
	var findings []Finding
	for _, v := range r.Violations() {
		findings = append(findings, Finding{RuleID: "quality-gate/" + string(v.Check), Level: LevelError, Message: v.Message, Path: v.File, Line: v.Line})
	}
	return SARIF(root, rules, findings)
}
