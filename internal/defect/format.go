package defect

import (
	"fmt"
	"path"
	"strings"
)

// FormatSummary renders the distribution and the ten riskiest files.
func FormatSummary(pa *ProjectAnalysis) string {
	var b strings.Builder
	b.WriteString("Defect Prediction Analysis Summary\n")
	b.WriteString("=================================\n")
	fmt.Fprintf(&b, "Files analyzed: %d\n", pa.FilesAnalyzed)
	fmt.Fprintf(&b, "Predictions generated: %d\n", pa.TotalFiles)

	pct := func(n int) float64 {
		if pa.TotalFiles == 0 {
			return 0
		}
		return 100 * float64(n) / float64(pa.TotalFiles)
	}
	fmt.Fprintf(&b, "High risk files: %d (%.1f%%)\n", pa.Distribution.High, pct(pa.Distribution.High))
	fmt.Fprintf(&b, "Medium risk files: %d (%.1f%%)\n", pa.Distribution.Medium, pct(pa.Distribution.Medium))
	fmt.Fprintf(&b, "Low risk files: %d (%.1f%%)\n", pa.Distribution.Low, pct(pa.Distribution.Low))

	if len(pa.Files) > 0 {
		b.WriteString("\nTop 10 High-Risk Files:\n")
		for i, f := range pa.Files {
			if i == 10 {
				break
			}
			fmt.Fprintf(&b, "  %s - %.1f%% risk (confidence %.2f)\n", path.Base(f.File), f.Probability*100, f.Confidence)
		}
	}
	return b.String()
}

// FormatDetailed renders every prediction with its factors.
func FormatDetailed(pa *ProjectAnalysis, withRecommendations bool) string {
	var b strings.Builder
	b.WriteString("Defect Prediction Analysis Report\n")
	b.WriteString("================================\n")
	for _, f := range pa.Files {
		fmt.Fprintf(&b, "\n%s\n", f.File)
		fmt.Fprintf(&b, "  Risk Level: %s\n", f.RiskLevel)
		fmt.Fprintf(&b, "  Probability: %.1f%%\n", f.Probability*100)
		fmt.Fprintf(&b, "  Confidence: %.1f%%\n", f.Confidence*100)
		b.WriteString("  Contributing Factors:\n")
		for _, c := range f.ContributingFactors {
			fmt.Fprintf(&b, "    %s: %.3f\n", c.Name, c.Contribution)
		}
		if withRecommendations && len(f.Recommendations) > 0 {
			b.WriteString("  Recommendations:\n")
			for _, r := range f.Recommendations {
				fmt.Fprintf(&b, "    - %s\n", r)
			}
		}
	}
	return b.String()
}
