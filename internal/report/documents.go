package report

import (
	"fmt"
	"slices"
	"strings"

	"pmat/internal/churn"
	"pmat/internal/complexity"
	"pmat/internal/deadcode"
	"pmat/internal/duplicates"
	"pmat/internal/qualitygate"
	"pmat/internal/satd"
)

// DefaultTableRows caps the rows of generated tables.
const DefaultTableRows = 20

// ComplexityDocument summarizes a complexity report.
func ComplexityDocument(r *complexity.Report) *Document {
	s := r.Summary
	d := &Document{
		Title: "Complexity Analysis",
		Summary: []Field{
			{"Files", s.TotalFiles},
			{"Functions", s.TotalFunctions},
			{"Median cyclomatic", s.MedianCyclomatic},
			{"Median cognitive", s.MedianCognitive},
			{"Max cyclomatic", s.MaxCyclomatic},
			{"P90 cyclomatic", s.P90Cyclomatic},
			{"P99 cyclomatic", s.P99Cyclomatic},
			{"Technical debt", FormatFloat(s.TechnicalDebtHours, 1) + " hours"},
		},
	}
	hot := &Table{Headers: []string{"File", "Function", "Line", "Complexity"}, Align: []Align{AlignLeft, AlignLeft, AlignRight, AlignRight}, Limit: DefaultTableRows}
	for _, h := range r.Hotspots {
		hot.Add(h.File, h.Function, h.Line, h.Complexity)
	}
	viol := &Table{Headers: []string{"Severity", "Rule", "Location", "Value", "Threshold"}, Limit: DefaultTableRows}
	for _, v := range r.Violations {
		viol.Add(string(v.Severity), v.Rule, fmt.Sprintf("%s:%d", v.File, v.Line), v.Value, v.Threshold)
	}
	d.Sections = []Section{{Title: "Hotspots", Table: hot}, {Title: "Violations", Table: viol}}
	if len(r.Violations) > 0 {
		d.Recommendations = append(d.Recommendations,
			"Split functions above the cyclomatic threshold into smaller, single-purpose helpers.")
	}
	return d
}

// DeadCodeDocument summarizes dead code by file and item.
func DeadCodeDocument(r *deadcode.Result) *Document {
	s := r.Summary
	d := &Document{
		Title: "Dead Code Analysis",
		Summary: []Field{
			{"Symbols analyzed", s.TotalSymbols},
			{"Dead", s.DeadCount},
			{"Suspicious", s.SuspiciousCount},
			{"Dead lines", s.DeadLines},
			{"Dead code ratio", FormatFloat(s.DeadCodeRatio*100, 1) + "%"},
		},
	}
	files := &Table{Headers: []string{"File", "Items", "Dead lines", "Ratio"}, Align: []Align{AlignLeft, AlignRight, AlignRight, AlignRight}, Limit: DefaultTableRows}
	for _, f := range r.Files {
		files.Add(f.Path, f.DeadItems, f.DeadLines, FormatFloat(f.Ratio*100, 1)+"%")
	}
	items := &Table{Headers: []string{"Symbol", "Kind", "Location", "Confidence", "Reason"}, Limit: DefaultTableRows}
	for _, it := range r.DeadCode {
		items.Add(it.SymbolName, it.Kind, fmt.Sprintf("%s:%d", it.FilePath, it.LineNumber), it.Confidence, it.Reason)
	}
	d.Sections = []Section{{Title: "Files", Table: files}, {Title: "Items", Table: items}}
	if s.DeadCount > 0 {
		d.Recommendations = append(d.Recommendations, "Remove high-confidence dead items, starting with the files that carry the most dead lines.")
	}
	return d
}

// SATDDocument summarizes technical debt comments by severity.
func SATDDocument(r *satd.Result) *Document {
	d := &Document{
		Title: "Self-Admitted Technical Debt",
		Summary: []Field{
			{"Items", r.Summary.TotalItems},
			{"Files analyzed", r.TotalFilesAnalyzed},
			{"Files with debt", r.FilesWithDebt},
		},
	}
	for _, sev := range []satd.Severity{satd.SeverityCritical, satd.SeverityHigh, satd.SeverityMedium, satd.SeverityLow} {
		d.Summary = append(d.Summary, Field{string(sev), r.Summary.BySeverity[sev]})
	}
	items := slices.Clone(r.Items)
	slices.SortStableFunc(items, func(a, b satd.TechnicalDebt) int { return b.Severity.Weight() - a.Severity.Weight() })
	t := &Table{Headers: []string{"Severity", "Category", "Location", "Text"}, Limit: DefaultTableRows}
	for _, it := range items {
		t.Add(string(it.Severity), string(it.Category), fmt.Sprintf("%s:%d", it.File, it.Line), it.Text)
	}
	d.Sections = []Section{{Title: "Items", Table: t}}
	if r.Summary.BySeverity[satd.SeverityCritical] > 0 {
		d.Recommendations = append(d.Recommendations, "Resolve critical (security) debt before the next release.")
	}
	return d
}

// DuplicatesDocument summarizes clone groups and hotspots.
func DuplicatesDocument(r *duplicates.Report) *Document {
	s := r.Summary
	d := &Document{
		Title: "Duplicate Code Analysis",
		Summary: []Field{
			{"Files", s.TotalFiles},
			{"Fragments", s.TotalFragments},
			{"Clone groups", s.CloneGroups},
			{"Duplicate lines", s.DuplicateLines},
			{"Duplication ratio", FormatFloat(s.DuplicationRatio*100, 1) + "%"},
		},
	}
	groups := &Table{Headers: []string{"Group", "Type", "Instances", "Lines", "Similarity"}, Limit: DefaultTableRows}
	for _, g := range r.Groups {
		groups.Add(g.ID, g.CloneType.String(), len(g.Fragments), g.TotalLines, g.AverageSimilarity)
	}
	hot := &Table{Headers: []string{"File", "Duplicate lines", "Groups"}, Limit: DefaultTableRows}
	for _, h := range r.Hotspots {
		hot.Add(h.File, h.DuplicateLines, h.CloneGroups)
	}
	d.Sections = []Section{{Title: "Clone Groups", Table: groups}, {Title: "Hotspots", Table: hot}}
	return d
}

// ChurnDocument summarizes repository churn.
func ChurnDocument(a *churn.Analysis) *Document {
	d := &Document{
		Title: "Code Churn Analysis",
		Summary: []Field{
			{"Period", fmt.Sprintf("%d days", a.PeriodDays)},
			{"Commits", a.Summary.TotalCommits},
			{"Files changed", a.Summary.TotalFilesChanged},
			{"Authors", len(a.Summary.AuthorContributions)},
		},
	}
	t := &Table{Headers: []string{"File", "Commits", "Authors", "+/-", "Churn"}, Limit: DefaultTableRows}
	for _, f := range a.Files {
		t.Add(f.Path, f.CommitCount, len(f.UniqueAuthors), fmt.Sprintf("+%d/-%d", f.Additions, f.Deletions), f.ChurnScore)
	}
	d.Sections = []Section{{Title: "Files", Table: t}}
	if len(a.Summary.HotspotFiles) > 0 {
		d.Sections = append(d.Sections, Section{Title: "Hotspots", Text: "- " + strings.Join(a.Summary.HotspotFiles, "\n- ")})
	}
	return d
}

// QualityGateDocument lists each check with its status.
func QualityGateDocument(r *qualitygate.Result) *Document {
	status := "PASSED"
	if !r.Passed {
		status = "FAILED"
	}
	d := &Document{Title: "Quality Gate", Summary: []Field{{"Status", status}}}
	t := &Table{Headers: []string{"Check", "Status", "Value", "Threshold", "Message"}}
	for _, c := range r.Checks {
		t.Add(string(c.Check), string(c.Status), c.Value, c.Threshold, c.Message)
		if c.Status == qualitygate.StatusFail && c.FixHint != "" {
			d.Recommendations = append(d.Recommendations, c.FixHint)
		}
	}
	d.Sections = []Section{{Title: "Checks", Table: t}}
	return d
}
