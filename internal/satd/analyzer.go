package satd

import (
	"cmp"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"pmat/internal/ast"
	"pmat/internal/classifier"
	"pmat/internal/complexity"
	pmerrors "pmat/internal/errors"
	"pmat/internal/parser"
	"pmat/internal/repostate"
	"pmat/internal/slogutil"
)

// MaxFileSize is the largest file scanned.
const MaxFileSize = 10 * 1024 * 1024

// Analyzer scans a project for debt comments.
type Analyzer struct {
	logger   *slog.Logger
	registry *parser.Registry
	now      func() time.Time
}

// NewAnalyzer creates an analyzer. registry is only used when
// Options.Context is set and may be nil.
func NewAnalyzer(logger *slog.Logger, registry *parser.Registry) *Analyzer {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Analyzer{logger: logger, registry: registry, now: time.Now}
}

// Analyze scans every source file under root.
func (a *Analyzer) Analyze(ctx context.Context, root string, opts Options) (*Result, error) {
	start := time.Now()
	files, err := classifier.Discover(ctx, root, classifier.DiscoverOptions{
		Exclude: opts.Exclude,
		Accept: func(rel string) bool {
			if !IsSourceFile(rel) || isMinifiedOrVendor(rel) {
				return false
			}
			return opts.IncludeTests || !IsTestFile(rel)
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, pmerrors.FromContext(ctx.Err(), "satd analysis", time.Since(start))
		}
		return nil, err
	}

	var items []TechnicalDebt
	totalLines := 0
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, pmerrors.FromContext(err, "satd analysis", time.Since(start))
		}
		abs := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(abs)
		if err != nil || info.Size() > MaxFileSize {
			a.logger.Debug("skipping file", "file", rel, "size", sizeOf(info))
			continue
		}
		content, err := os.ReadFile(abs)
		if err != nil {
			a.logger.Debug("failed to read file", "file", rel, "error", err)
			continue
		}
		totalLines += countLines(content)

		var fc ContextFunc
		if opts.Context && a.registry != nil {
			fc = a.functionContext(ctx, rel, content)
		}
		found, err := ExtractFromContent(content, rel, fc)
		if err != nil {
			a.logger.Debug("failed to scan file", "file", rel, "error", err)
			continue
		}
		items = append(items, found...)
	}
	SortItems(items)

	res := &Result{
		Items:              items,
		TotalFilesAnalyzed: len(files),
		AnalysisTimestamp:  a.now().UTC(),
	}
	var ages []float64
	if opts.Age && repostate.IsGitRepository(root) {
		ages = a.ages(ctx, root, items)
	}
	res.Summary = Summarize(items, ages)
	res.FilesWithDebt = res.Summary.FilesWithSATD
	res.Metrics = GenerateMetrics(items, totalLines)
	if ages != nil {
		res.Metrics.DebtAgeDays = ages
	}

	a.logger.Info("satd analysis completed",
		"files", len(files),
		"items", len(items),
		"duration", time.Since(start))
	return res, nil
}

// functionContext parses a file and resolves lines to the innermost
// enclosing function. Parse failures leave severities unadjusted.
func (a *Analyzer) functionContext(ctx context.Context, rel string, content []byte) ContextFunc {
	if !a.registry.Supports(rel) {
		return nil
	}
	arena, root, err := ast.ParseFile(ctx, a.registry, rel, content)
	if err != nil {
		a.logger.Debug("context parse failed", "file", rel, "error", err)
		return nil
	}
	fm := complexity.File(arena, root)
	fns := fm.AllFunctions()
	testFile := IsTestFile(rel)
	return func(line int) (FunctionContext, bool) {
		var best *complexity.FunctionComplexity
		for i := range fns {
			f := &fns[i]
			if line < f.StartLine || line > f.EndLine {
				continue
			}
			if best == nil || f.EndLine-f.StartLine < best.EndLine-best.StartLine {
				best = f
			}
		}
		if best == nil {
			return FunctionContext{}, false
		}
		lower := strings.ToLower(best.Name)
		return FunctionContext{
			Name:       best.Name,
			Complexity: best.Metrics.Cyclomatic,
			Test:       testFile || strings.HasPrefix(lower, "test"),
		}, true
	}
}

// ages dates items by the author time of the blamed line.
func (a *Analyzer) ages(ctx context.Context, root string, items []TechnicalDebt) []float64 {
	now := a.now()
	var ages []float64
	for _, it := range items {
		if ctx.Err() != nil {
			break
		}
		lines, err := repostate.GitLines(ctx, root, "blame", "-L", strconv.Itoa(it.Line)+","+strconv.Itoa(it.Line), "--porcelain", "--", it.File)
		if err != nil {
			a.logger.Debug("blame failed", "file", it.File, "line", it.Line, "error", err)
			continue
		}
		for _, l := range lines {
			ts, ok := strings.CutPrefix(l, "author-time ")
			if !ok {
				continue
			}
			if sec, err := strconv.ParseInt(ts, 10, 64); err == nil {
				ages = append(ages, now.Sub(time.Unix(sec, 0)).Hours()/24)
			}
			break
		}
	}
	slices.SortFunc(ages, func(x, y float64) int { return cmp.Compare(y, x) })
	return ages
}

// Summarize counts items by severity, category and file. ages may be nil.
func Summarize(items []TechnicalDebt, ages []float64) Summary {
	s := Summary{
		TotalItems: len(items),
		BySeverity: make(map[Severity]int),
		ByCategory: make(map[Category]int),
	}
	files := make(map[string]bool)
	for _, it := range items {
		s.BySeverity[it.Severity]++
		s.ByCategory[it.Category]++
		files[it.File] = true
	}
	s.FilesWithSATD = len(files)
	if len(ages) > 0 {
		total := 0.0
		for _, age := range ages {
			total += age
		}
		s.AvgAgeDays = total / float64(len(ages))
	}
	return s
}

// GenerateMetrics computes density per thousand lines and per-category
// figures.
func GenerateMetrics(items []TechnicalDebt, totalLines int) *Metrics {
	m := &Metrics{
		TotalDebts:    len(items),
		ByCategory:    make(map[Category]CategoryMetrics),
		CriticalDebts: []TechnicalDebt{},
		DebtAgeDays:   []float64{},
	}
	if totalLines > 0 {
		m.DebtDensityPerKLOC = float64(len(items)) / (float64(totalLines) / 1000)
	}
	files := make(map[Category]map[string]bool)
	weights := make(map[Category]int)
	for _, it := range items {
		cm := m.ByCategory[it.Category]
		cm.Count++
		m.ByCategory[it.Category] = cm
		if files[it.Category] == nil {
			files[it.Category] = make(map[string]bool)
		}
		files[it.Category][it.File] = true
		weights[it.Category] += it.Severity.Weight()
		if it.Severity == SeverityCritical {
			m.CriticalDebts = append(m.CriticalDebts, it)
		}
	}
	for cat, cm := range m.ByCategory {
		for f := range files[cat] {
			cm.Files = append(cm.Files, f)
		}
		slices.Sort(cm.Files)
		cm.AvgSeverity = float64(weights[cat]) / float64(cm.Count)
		m.ByCategory[cat] = cm
	}
	return m
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := strings.Count(string(content), "\n")
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}

func sizeOf(info os.FileInfo) int64 {
	if info == nil {
		return 0
	}
	return info.Size()
}
