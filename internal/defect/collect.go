package defect

import (
	"bytes"

	"pmat/internal/ast"
	"pmat/internal/churn"
	"pmat/internal/complexity"
	"pmat/internal/dag"
	"pmat/internal/duplicates"
)

// Inputs are the analyses a prediction draws on. Only Arena is required;
// a missing analysis leaves its factor at zero.
type Inputs struct {
	Arena      *ast.Arena
	Graph      *dag.Graph
	Churn      *churn.Analysis
	Duplicates *duplicates.Report
}

// Collect builds per-file metrics in arena order. Files with fewer than
// minLines non-blank lines are skipped.
func Collect(in Inputs, minLines int) []FileMetrics {
	afferent, efferent := FileCoupling(in.Graph)
	var dupLines map[string]int
	if in.Duplicates != nil {
		dupLines = in.Duplicates.FileDuplicateLines()
	}

	out := make([]FileMetrics, 0, len(in.Arena.Files))
	for _, f := range in.Arena.Files {
		loc := nonBlankLines(f.Source)
		if loc < minLines {
			continue
		}
		fm := complexity.File(in.Arena, f.Root)
		m := FileMetrics{
			Path:             f.Path,
			LinesOfCode:      loc,
			AfferentCoupling: float64(afferent[f.Path]),
			EfferentCoupling: float64(efferent[f.Path]),
		}
		for _, fn := range fm.AllFunctions() {
			m.Cyclomatic = max(m.Cyclomatic, fn.Metrics.Cyclomatic)
			m.Cognitive = max(m.Cognitive, fn.Metrics.Cognitive)
		}
		m.Complexity = float64(m.Cyclomatic)
		if in.Churn != nil {
			if cm, ok := in.Churn.File(f.Path); ok {
				m.ChurnScore = cm.ChurnScore
			}
		}
		if f.Lines > 0 {
			m.DuplicateRatio = clamp01(float64(dupLines[f.Path]) / float64(f.Lines))
		}
		out = append(out, m)
	}
	return out
}

// FileCoupling counts, per file, the distinct other files depending on it
// and the distinct files or external modules it depends on.
func FileCoupling(g *dag.Graph) (afferent, efferent map[string]int) {
	afferent = make(map[string]int)
	efferent = make(map[string]int)
	if g == nil {
		return afferent, efferent
	}
	in := make(map[string]map[string]bool)
	out := make(map[string]map[string]bool)
	for _, e := range g.Edges {
		from, to := g.Nodes[e.From], g.Nodes[e.To]
		if from == nil || to == nil || from.FilePath == "" || from.FilePath == to.FilePath {
			continue
		}
		target := to.FilePath
		if target == "" {
			target = "external:" + to.ID
		} else {
			addTo(in, target, from.FilePath)
		}
		addTo(out, from.FilePath, target)
	}
	for file, set := range in {
		afferent[file] = len(set)
	}
	for file, set := range out {
		efferent[file] = len(set)
	}
	return afferent, efferent
}

func addTo(m map[string]map[string]bool, key, v string) {
	if m[key] == nil {
		m[key] = make(map[string]bool)
	}
	m[key][v] = true
}

func nonBlankLines(src []byte) int {
	n := 0
	for line := range bytes.Lines(src) {
		if len(bytes.TrimSpace(line)) > 0 {
			n++
		}
	}
	return n
}
