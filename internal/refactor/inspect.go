package refactor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"pmat/internal/ast"
	"pmat/internal/complexity"
	"pmat/internal/config"
	"pmat/internal/deadcode"
	pmerrors "pmat/internal/errors"
	"pmat/internal/parser"
	"pmat/internal/satd"
	"pmat/internal/slogutil"
	"pmat/internal/tdg"
)

// FileInspector reads targets from disk and plans them with the
// complexity, SATD and TDG analyzers.
type FileInspector struct {
	root     string
	registry *parser.Registry
	cfg      config.RefactorConfig
	calc     *tdg.Calculator
	dead     map[string][]deadcode.DeadCodeItem
	logger   *slog.Logger
}

// NewFileInspector resolves relative targets against root. registry may
// be nil, in which case only debt comments are planned.
func NewFileInspector(logger *slog.Logger, root string, registry *parser.Registry, cfg config.RefactorConfig) *FileInspector {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &FileInspector{root: root, registry: registry, cfg: cfg, calc: tdg.NewCalculator(), logger: logger}
}

// WithDeadCode adds a project dead code result to planning.
func (fi *FileInspector) WithDeadCode(r *deadcode.Result) *FileInspector {
	fi.dead = map[string][]deadcode.DeadCodeItem{}
	if r == nil {
		return fi
	}
	for _, it := range r.DeadCode {
		fi.dead[it.FilePath] = append(fi.dead[it.FilePath], it)
	}
	return fi
}

// Inspect implements Inspector.
func (fi *FileInspector) Inspect(ctx context.Context, path string) (*Inspection, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(fi.root, filepath.FromSlash(path))
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, pmerrors.Missing("file", path)
	}
	if info.Size() > satd.MaxFileSize {
		return nil, pmerrors.Limit(path, "max_file_size", info.Size(), satd.MaxFileSize)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, pmerrors.New(pmerrors.InternalError, "read "+path, err)
	}

	f := Findings{Path: path, Dead: fi.dead[path]}
	f.SATD, err = satd.ExtractFromContent(content, path, nil)
	if err != nil {
		return nil, err
	}
	res := &Inspection{ID: FileID{Path: path, Hash: xxhash.Sum64(content)}}

	if fi.registry != nil && fi.registry.Supports(path) {
		arena, root, err := ast.ParseFile(ctx, fi.registry, path, content)
		if err != nil {
			return nil, err
		}
		f.Complexity = complexity.File(arena, root)
		comp := tdg.ComponentsOf(tdg.Inputs{Arena: arena})[arena.Files[0].Path]
		res.Metrics.TDG = fi.calc.Score(comp, 0).Value
	} else {
		fi.logger.Debug("no parser for target, planning debt comments only", "file", path)
	}

	fns := f.Complexity.AllFunctions()
	res.Metrics.Functions = len(fns)
	for _, fn := range fns {
		res.Metrics.MaxCyclomatic = max(res.Metrics.MaxCyclomatic, fn.Metrics.Cyclomatic)
		res.Metrics.MaxCognitive = max(res.Metrics.MaxCognitive, fn.Metrics.Cognitive)
	}
	res.Metrics.SATD = len(f.SATD)
	res.Metrics.DeadSymbols = len(f.Dead)
	res.Violations = Plan(f, fi.cfg)
	return res, nil
}
