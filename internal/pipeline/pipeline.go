// Package pipeline turns a project directory into one frozen AST arena:
// discover, classify, parse in parallel, then build in path order.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"pmat/internal/ast"
	"pmat/internal/cache"
	"pmat/internal/classifier"
	pmerrors "pmat/internal/errors"
	"pmat/internal/parser"
)

// Options narrows one load.
type Options struct {
	Exclude  []string
	Include  []string
	MaxFiles int

	// Workers bounds concurrent parses. Zero means runtime.NumCPU.
	Workers int
}

// Skipped is a discovered file the classifier rejected.
type Skipped struct {
	Path   string                `json:"path"`
	Reason classifier.SkipReason `json:"reason"`
}

// FileError is a file that failed to read or parse.
type FileError struct {
	Path    string             `json:"path"`
	Code    pmerrors.ErrorCode `json:"code"`
	Message string             `json:"message"`
}

// Project is a parsed project.
type Project struct {
	Root     string        `json:"root"`
	Arena    *ast.Arena    `json:"-"`
	Files    []string      `json:"files"`
	Skipped  []Skipped     `json:"skipped,omitempty"`
	Errors   []FileError   `json:"errors,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Abs returns the absolute path of a project-relative file.
func (p *Project) Abs(rel string) string {
	return filepath.Join(p.Root, filepath.FromSlash(rel))
}

// Pipeline loads projects with a shared registry and optional view cache.
type Pipeline struct {
	logger     *slog.Logger
	registry   *parser.Registry
	classifier *classifier.Classifier
	views      *cache.Persistent[string, *parser.View]
}

// New creates a pipeline. views may be nil.
func New(logger *slog.Logger, registry *parser.Registry, views *cache.Persistent[string, *parser.View]) *Pipeline {
	return &Pipeline{
		logger:     logger,
		registry:   registry,
		classifier: classifier.New(),
		views:      views,
	}
}

// Registry returns the parser registry.
func (p *Pipeline) Registry() *parser.Registry { return p.registry }

// SetClassifier replaces the file classifier.
func (p *Pipeline) SetClassifier(c *classifier.Classifier) { p.classifier = c }

type parsed struct {
	view *parser.View
	skip classifier.SkipReason
	err  error
}

// Load discovers and parses every supported file under root. Per-file
// failures become Project.Errors; a done context discards everything.
func (p *Pipeline) Load(ctx context.Context, root string, opts Options) (*Project, error) {
	start := time.Now()
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, pmerrors.Invalid(pmerrors.Problem{Field: "path", Message: err.Error()})
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return nil, pmerrors.Missing("directory", root)
	}

	files, err := classifier.Discover(ctx, abs, classifier.DiscoverOptions{
		Exclude:  opts.Exclude,
		Include:  opts.Include,
		Accept:   p.registry.Supports,
		MaxFiles: opts.MaxFiles,
	})
	if err != nil {
		return nil, pmerrors.FromContext(err, "discover", time.Since(start))
	}

	results := make([]parsed, len(files))
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = p.parse(gctx, abs, rel)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, pmerrors.FromContext(err, "parse project", time.Since(start))
	}
	if err := ctx.Err(); err != nil {
		return nil, pmerrors.FromContext(err, "parse project", time.Since(start))
	}

	proj := &Project{Root: abs, Arena: ast.NewArena()}
	b := ast.NewBuilder(proj.Arena)
	for i, rel := range files {
		r := results[i]
		switch {
		case r.skip != "":
			proj.Skipped = append(proj.Skipped, Skipped{Path: rel, Reason: r.skip})
			continue
		case r.err != nil:
			proj.Errors = append(proj.Errors, fileError(rel, r.err))
			continue
		}
		if _, err := b.AddFile(r.view); err != nil {
			proj.Errors = append(proj.Errors, fileError(rel, err))
			continue
		}
		proj.Files = append(proj.Files, rel)
	}
	proj.Arena.Freeze()
	proj.Duration = time.Since(start)

	p.logger.Debug("project loaded", "root", abs, "files", len(proj.Files),
		"skipped", len(proj.Skipped), "errors", len(proj.Errors), "nodes", proj.Arena.Len(),
		"duration", proj.Duration)
	return proj, nil
}

func (p *Pipeline) parse(ctx context.Context, root, rel string) parsed {
	path := filepath.Join(root, filepath.FromSlash(rel))
	src, err := os.ReadFile(path)
	if err != nil {
		return parsed{err: pmerrors.Parse(rel, "read failed", err)}
	}
	if d := p.classifier.ShouldParse(rel, src); !d.Parse() {
		return parsed{skip: d.Reason}
	}

	if p.views != nil {
		if v, ok := p.views.Get(path); ok && v.Path == rel {
			cp := *v
			cp.Source = src
			return parsed{view: &cp}
		}
	}
	view, err := p.registry.Parse(ctx, rel, src)
	if err != nil {
		p.logger.Debug("parse failed", "path", rel, "error", err)
		return parsed{err: err}
	}
	if p.views != nil {
		if err := p.views.Put(path, view); err != nil {
			p.logger.Warn("view cache write failed", "path", rel, "error", err)
		}
	}
	return parsed{view: view}
}

func fileError(rel string, err error) FileError {
	return FileError{Path: rel, Code: pmerrors.CodeOf(err), Message: err.Error()}
}
