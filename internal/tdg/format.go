package tdg

import (
	"fmt"
	"path"
	"strings"
)

// FormatTable renders hotspots as a Markdown table. Verbose adds the
// weighted component breakdown of each file found in a.
func (c *Calculator) FormatTable(a *Analysis, hs []Hotspot, verbose bool) string {
	var b strings.Builder
	b.WriteString("| File | TDG Score | Primary Factor | Est. Hours |\n")
	b.WriteString("|------|-----------|----------------|-----------|\n")
	for _, h := range hs {
		fmt.Fprintf(&b, "| %s | %.2f | %s | %.1f |\n", path.Base(h.Path), h.TDGScore, h.PrimaryFactor, h.EstimatedHours)
		if !verbose {
			continue
		}
		if f, ok := a.file(h.Path); ok {
			w, comp := c.weights, f.Components
			fmt.Fprintf(&b, "|      | Components: C=%.2f Ch=%.2f Co=%.2f R=%.2f D=%.2f |\n",
				comp.Complexity*w.Complexity, comp.Churn*w.Churn, comp.Coupling*w.Coupling,
				comp.DomainRisk*w.DomainRisk, comp.Duplication*w.Duplication)
		}
	}
	return b.String()
}

// FormatMarkdown renders the summary and hotspots as a report.
func (c *Calculator) FormatMarkdown(a *Analysis, hs []Hotspot, withComponents bool) string {
	var b strings.Builder
	s := a.Summary
	b.WriteString("# Technical Debt Gradient Analysis\n\n")
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Total Files**: %d\n", s.TotalFiles)
	fmt.Fprintf(&b, "- **Critical Files**: %d (TDG > %.1f)\n", s.CriticalFiles, CriticalThreshold)
	fmt.Fprintf(&b, "- **Warning Files**: %d (TDG > %.1f)\n", s.WarningFiles, WarningThreshold)
	fmt.Fprintf(&b, "- **Average TDG**: %.3f\n", s.AverageTDG)
	fmt.Fprintf(&b, "- **95th Percentile**: %.3f\n", s.P95TDG)
	fmt.Fprintf(&b, "- **99th Percentile**: %.3f\n", s.P99TDG)
	fmt.Fprintf(&b, "- **Estimated Debt**: %.1f hours\n\n", s.EstimatedDebtHours)

	if len(hs) == 0 {
		return b.String()
	}
	b.WriteString("## Top Hotspots\n\n")
	for i, h := range hs {
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, h.Path)
		fmt.Fprintf(&b, "- **TDG Score**: %.3f\n", h.TDGScore)
		fmt.Fprintf(&b, "- **Primary Factor**: %s\n", h.PrimaryFactor)
		fmt.Fprintf(&b, "- **Estimated Hours**: %.1f\n\n", h.EstimatedHours)
		if !withComponents {
			continue
		}
		if f, ok := a.file(h.Path); ok {
			b.WriteString("#### Component Breakdown:\n")
			for _, p := range c.breakdown(f.Components) {
				fmt.Fprintf(&b, "- %s: %.3f\n", p.name, p.value*p.weight)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (a *Analysis) file(p string) (FileScore, bool) {
	for _, f := range a.Files {
		if f.Path == p {
			return f, true
		}
	}
	return FileScore{}, false
}
