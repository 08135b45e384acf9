package coverage

import (
	"cmp"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	pmerrors "pmat/internal/errors"
	"pmat/internal/slogutil"
)

// FileCoverage is the coverage of one affected file.
type FileCoverage struct {
	Path             string  `json:"path"`
	LineCoverage     float64 `json:"line_coverage"`
	BranchCoverage   float64 `json:"branch_coverage"`
	FunctionCoverage float64 `json:"function_coverage"`
	CoveredLines     []int   `json:"covered_lines"`
	TotalLines       int     `json:"total_lines"`
	// ChangedLines are the instrumented lines touched since the base.
	ChangedLines []int `json:"changed_lines"`
	// UncoveredChanges are changed lines no test executed.
	UncoveredChanges []int `json:"uncovered_changes"`
	// Tracked is false when the tracefile has no record for the file. Its
	// changes are not instrumented and do not count toward the delta.
	Tracked bool `json:"tracked"`
}

// AggregateCoverage sums the affected files.
type AggregateCoverage struct {
	LinePercentage     float64 `json:"line_percentage"`
	BranchPercentage   float64 `json:"branch_percentage"`
	FunctionPercentage float64 `json:"function_percentage"`
	TotalFiles         int     `json:"total_files"`
	CoveredFiles       int     `json:"covered_files"`
}

// DeltaCoverage is the coverage of the changed lines alone.
type DeltaCoverage struct {
	NewLinesCovered int     `json:"new_lines_covered"`
	NewLinesTotal   int     `json:"new_lines_total"`
	Percentage      float64 `json:"percentage"`
}

// Update is the result of one incremental run.
type Update struct {
	Changes   *ChangeSet        `json:"changes"`
	Files     []FileCoverage    `json:"file_coverage"`
	Aggregate AggregateCoverage `json:"aggregate_coverage"`
	Delta     DeltaCoverage     `json:"delta_coverage"`
}

// Request selects what to compare.
type Request struct {
	Root string
	// Base is the revision to diff against. Defaults to HEAD~1.
	Base string
	// Tracefile is the LCOV file path, relative to Root when not absolute.
	Tracefile string
	// Dependents maps a file to the files importing it. Dependents of a
	// modified file are reported with the affected set.
	Dependents map[string][]string
}

// Analyzer runs incremental coverage with at most one git diff per CPU in
// flight.
type Analyzer struct {
	logger *slog.Logger
	sem    *semaphore.Weighted
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Analyzer{logger: logger, sem: semaphore.NewWeighted(int64(runtime.NumCPU()))}
}

// Analyze computes coverage for the files changed since req.Base.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Update, error) {
	start := time.Now()
	if req.Tracefile == "" {
		return nil, pmerrors.Invalid(pmerrors.Problem{Field: "tracefile", Message: "an LCOV tracefile is required"})
	}
	base := cmp.Or(req.Base, "HEAD~1")
	path := req.Tracefile
	if !filepath.IsAbs(path) {
		path = filepath.Join(req.Root, path)
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pmerrors.Missing("tracefile", req.Tracefile)
		}
		return nil, pmerrors.New(pmerrors.InvalidInput, "cannot open tracefile", err).WithDetail("path", path)
	}
	defer f.Close()
	trace, err := ParseLCOV(req.Tracefile, f)
	if err != nil {
		return nil, err
	}

	changes, err := Changes(ctx, req.Root, base)
	if err != nil {
		return nil, err
	}
	affected := affectedFiles(changes, req.Dependents)
	changed := set(changes.Changed())

	files := make([]FileCoverage, len(affected))
	g, gctx := errgroup.WithContext(ctx)
	for i, rel := range affected {
		g.Go(func() error {
			if err := a.sem.Acquire(gctx, 1); err != nil {
				return pmerrors.FromContext(err, "incremental coverage", time.Since(start))
			}
			defer a.sem.Release(1)
			var lines []int
			if changed[rel] {
				l, err := ChangedLines(gctx, req.Root, base, rel)
				if err != nil {
					return err
				}
				lines = l
			}
			files[i] = fileCoverage(rel, trace.lookup(req.Root, rel), lines)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.logger.Debug("incremental coverage",
		"base", base,
		"affected", len(files),
		"duration", time.Since(start),
	)
	return &Update{
		Changes:   changes,
		Files:     files,
		Aggregate: Aggregate(files),
		Delta:     Delta(files),
	}, nil
}

// affectedFiles is the changed files plus the dependents of modified
// ones, sorted.
func affectedFiles(cs *ChangeSet, dependents map[string][]string) []string {
	seen := set(cs.Changed())
	for _, m := range cs.Modified {
		for _, d := range dependents[m] {
			seen[d] = true
		}
	}
	for _, d := range cs.Deleted {
		delete(seen, d)
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// lookup finds the record of a repository-relative path whether the
// tracefile names it relatively, absolutely or with a prefix.
func (t Tracefile) lookup(root, rel string) *Record {
	if r, ok := t[rel]; ok {
		return r
	}
	if r, ok := t[filepath.Join(root, filepath.FromSlash(rel))]; ok {
		return r
	}
	suffix := "/" + rel
	for p, r := range t {
		if strings.HasSuffix(filepath.ToSlash(p), suffix) {
			return r
		}
	}
	return nil
}

func fileCoverage(rel string, rec *Record, changed []int) FileCoverage {
	fc := FileCoverage{Path: rel, CoveredLines: []int{}, ChangedLines: []int{}, UncoveredChanges: []int{}}
	if rec == nil {
		return fc
	}
	fc.Tracked = true
	fc.TotalLines = len(rec.Lines)
	for ln, hits := range rec.Lines {
		if hits > 0 {
			fc.CoveredLines = append(fc.CoveredLines, ln)
		}
	}
	slices.Sort(fc.CoveredLines)
	fc.LineCoverage = percent(len(fc.CoveredLines), fc.TotalLines)
	fc.BranchCoverage = percent(rec.BranchesHit, rec.BranchesFound)
	fc.FunctionCoverage = percent(rec.FunctionsHit, rec.FunctionsFound)
	for _, ln := range changed {
		hits, ok := rec.Lines[ln]
		if !ok {
			continue
		}
		fc.ChangedLines = append(fc.ChangedLines, ln)
		if hits == 0 {
			fc.UncoveredChanges = append(fc.UncoveredChanges, ln)
		}
	}
	return fc
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

// Aggregate sums line coverage over files and averages branch and
// function coverage.
func Aggregate(files []FileCoverage) AggregateCoverage {
	agg := AggregateCoverage{TotalFiles: len(files)}
	total, covered := 0, 0
	var branch, function float64
	for _, f := range files {
		total += f.TotalLines
		covered += len(f.CoveredLines)
		branch += f.BranchCoverage
		function += f.FunctionCoverage
		if f.LineCoverage > 0 {
			agg.CoveredFiles++
		}
	}
	agg.LinePercentage = percent(covered, total)
	if len(files) > 0 {
		agg.BranchPercentage = branch / float64(len(files))
		agg.FunctionPercentage = function / float64(len(files))
	}
	return agg
}

// Delta is the share of changed lines that tests executed. With no
// changed lines it is 100%.
func Delta(files []FileCoverage) DeltaCoverage {
	d := DeltaCoverage{}
	for _, f := range files {
		d.NewLinesTotal += len(f.ChangedLines)
		d.NewLinesCovered += len(f.ChangedLines) - len(f.UncoveredChanges)
	}
	d.Percentage = 100
	if d.NewLinesTotal > 0 {
		d.Percentage = percent(d.NewLinesCovered, d.NewLinesTotal)
	}
	return d
}
