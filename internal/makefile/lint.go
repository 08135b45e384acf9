package makefile

import (
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"pmat/internal/classifier"
	pmerrors "pmat/internal/errors"
	"pmat/internal/slogutil"
)

// Result is the lint outcome of one Makefile.
type Result struct {
	Path         string      `json:"path"`
	Violations   []Violation `json:"violations"`
	QualityScore float64     `json:"quality_score"`
}

// HasErrors reports whether any violation is an error.
func (r *Result) HasErrors() bool { return r.ErrorCount() > 0 }

// ErrorCount counts error violations.
func (r *Result) ErrorCount() int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			n++
		}
	}
	return n
}

// MaxSeverity is the worst severity found, or "" when clean.
func (r *Result) MaxSeverity() Severity {
	var worst Severity
	for _, v := range r.Violations {
		if worst == "" || v.Severity.rank() > worst.rank() {
			worst = v.Severity
		}
	}
	return worst
}

// QualityScore is 1 minus 0.3 per error, 0.1 per warning and 0.02 per
// info finding, floored at 0. Performance findings are free.
func QualityScore(vs []Violation) float64 {
	score := 1.0
	for _, v := range vs {
		switch v.Severity {
		case SeverityError:
			score -= 0.3
		case SeverityWarning:
			score -= 0.1
		case SeverityInfo:
			score -= 0.02
		}
	}
	return max(score, 0)
}

// Report covers every Makefile of a project.
type Report struct {
	Files []Result `json:"files"`
	// Errors holds files that could not be read or parsed.
	Errors       []string `json:"errors"`
	AverageScore float64  `json:"average_score"`
}

// Linter lints Makefiles with a rule registry.
type Linter struct {
	logger   *slog.Logger
	registry *Registry
}

// NewLinter creates a linter with the default rules.
func NewLinter(logger *slog.Logger) *Linter {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Linter{logger: logger, registry: NewRegistry()}
}

// Lint parses and checks src.
func (l *Linter) Lint(name string, src []byte) (*Result, error) {
	f, err := Parse(name, src)
	if err != nil {
		return nil, err
	}
	vs := l.registry.CheckAll(f)
	return &Result{Path: name, Violations: vs, QualityScore: QualityScore(vs)}, nil
}

// LintFile reads and lints one file.
func (l *Linter) LintFile(p string) (*Result, error) {
	src, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pmerrors.Missing("makefile", p)
		}
		return nil, pmerrors.New(pmerrors.InvalidInput, "cannot read makefile", err).WithDetail("path", p)
	}
	return l.Lint(p, src)
}

// IsMakefile matches Makefile, makefile, GNUmakefile and *.mk.
func IsMakefile(rel string) bool {
	switch base := path.Base(rel); {
	case base == "Makefile" || base == "makefile" || base == "GNUmakefile":
		return true
	default:
		return strings.HasSuffix(base, ".mk")
	}
}

// LintProject lints every Makefile below root. Unparseable files are
// recorded and skipped.
func (l *Linter) LintProject(ctx context.Context, root string) (*Report, error) {
	start := time.Now()
	files, err := classifier.Discover(ctx, root, classifier.DiscoverOptions{Accept: IsMakefile})
	if err != nil {
		return nil, pmerrors.FromContext(err, "makefile lint", time.Since(start))
	}
	rep := &Report{Files: []Result{}, Errors: []string{}}
	total := 0.0
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, pmerrors.FromContext(err, "makefile lint", time.Since(start))
		}
		src, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err == nil {
			var res *Result
			if res, err = l.Lint(rel, src); err == nil {
				rep.Files = append(rep.Files, *res)
				total += res.QualityScore
				continue
			}
		}
		l.logger.Warn("makefile skipped", "path", rel, "error", err)
		rep.Errors = append(rep.Errors, rel+": "+err.Error())
	}
	if len(rep.Files) > 0 {
		rep.AverageScore = total / float64(len(rep.Files))
	}
	return rep, nil
}
