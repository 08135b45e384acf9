package wasm

import (
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"pmat/internal/classifier"
	pmerrors "pmat/internal/errors"
	"pmat/internal/parser"
	"pmat/internal/slogutil"
)

// MaxSourceSize bounds text modules and AssemblyScript sources.
const MaxSourceSize = 10 * 1024 * 1024

// Detect classifies a file by content first, then by extension.
func Detect(name string, src []byte) (Format, bool) {
	switch {
	case IsBinary(src):
		return FormatBinary, true
	case path.Ext(name) == ".wat" || path.Ext(name) == ".wast" || (path.Ext(name) != ".ts" && IsText(src)):
		return FormatText, true
	case IsAssemblyScript(name, src):
		return FormatAssemblyScript, true
	}
	return "", false
}

// Analysis is the result for one binary or text module.
type Analysis struct {
	Path    string  `json:"path"`
	Format  Format  `json:"format"`
	Size    int64   `json:"size"`
	Module  *Module `json:"module"`
	Summary Summary `json:"summary"`
	Issues  []Issue `json:"issues"`
}

// Report covers every module of a project.
type Report struct {
	Modules []Analysis `json:"modules"`
	Errors  []string   `json:"errors"`
	Summary Summary    `json:"summary"`
}

// ScriptReport covers every AssemblyScript source of a project.
type ScriptReport struct {
	Scripts       []Script `json:"scripts"`
	Errors        []string `json:"errors"`
	Functions     int      `json:"functions"`
	MaxCyclomatic int      `json:"max_cyclomatic"`
	AvgCyclomatic float64  `json:"avg_cyclomatic"`
}

// Analyzer runs module and AssemblyScript analysis.
type Analyzer struct {
	logger   *slog.Logger
	registry *parser.Registry
	security SecurityConfig
}

// NewAnalyzer creates an analyzer. reg supplies the TypeScript adapter for
// AssemblyScript.
func NewAnalyzer(logger *slog.Logger, reg *parser.Registry, security SecurityConfig) *Analyzer {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Analyzer{logger: logger, registry: reg, security: security}
}

// AnalyzeModule measures a binary or text module held in memory.
func (a *Analyzer) AnalyzeModule(name string, src []byte) (*Analysis, error) {
	size := int64(len(src))
	var (
		m   *Module
		err error
	)
	if IsBinary(src) {
		if a.security.MaxFileSize > 0 && size > a.security.MaxFileSize {
			return nil, pmerrors.Limit(name, "max_file_size", size, a.security.MaxFileSize)
		}
		m, err = ParseBinary(name, src)
	} else {
		if size > MaxSourceSize {
			return nil, pmerrors.Limit(name, "max_source_size", size, MaxSourceSize)
		}
		m, err = ParseText(name, src)
	}
	if err != nil {
		return nil, err
	}
	return &Analysis{
		Path:    name,
		Format:  m.Format,
		Size:    size,
		Module:  m,
		Summary: m.Summarize(),
		Issues:  a.security.Validate(m, size),
	}, nil
}

// AnalyzeScript measures one AssemblyScript source held in memory.
func (a *Analyzer) AnalyzeScript(ctx context.Context, name string, src []byte) (*Script, error) {
	if len(src) > MaxSourceSize {
		return nil, pmerrors.Limit(name, "max_source_size", int64(len(src)), MaxSourceSize)
	}
	if a.registry == nil {
		return nil, pmerrors.Internal("assemblyscript analysis needs a parser registry", nil)
	}
	return ParseAssemblyScript(ctx, a.registry, name, src)
}

func isModulePath(rel string) bool {
	switch path.Ext(rel) {
	case ".wasm", ".wat", ".wast":
		return true
	}
	return false
}

func isScriptPath(rel string) bool {
	switch path.Ext(rel) {
	case ".as", ".ts":
		return true
	}
	return false
}

// WebAssembly analyzes every .wasm, .wat and .wast file under root.
func (a *Analyzer) WebAssembly(ctx context.Context, root string, opts classifier.DiscoverOptions) (*Report, error) {
	start := time.Now()
	opts.Accept = isModulePath
	files, err := classifier.Discover(ctx, root, opts)
	if err != nil {
		return nil, pmerrors.FromContext(err, "webassembly analysis", time.Since(start))
	}
	rep := &Report{Modules: []Analysis{}, Errors: []string{}}
	cyclomatic := 0
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, pmerrors.FromContext(err, "webassembly analysis", time.Since(start))
		}
		src, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		var res *Analysis
		if err == nil {
			res, err = a.AnalyzeModule(rel, src)
		}
		if err != nil {
			a.logger.Warn("module skipped", "path", rel, "error", err)
			rep.Errors = append(rep.Errors, rel+": "+err.Error())
			continue
		}
		rep.Modules = append(rep.Modules, *res)
		s := &rep.Summary
		s.Functions += res.Summary.Functions
		s.Instructions += res.Summary.Instructions
		s.MaxCyclomatic = max(s.MaxCyclomatic, res.Summary.MaxCyclomatic)
		s.MaxLoopDepth = max(s.MaxLoopDepth, res.Summary.MaxLoopDepth)
		s.IndirectCalls += res.Summary.IndirectCalls
		s.Memory.add(res.Summary.Memory)
		for _, b := range res.Module.Bodies {
			cyclomatic += b.Cyclomatic
		}
	}
	if rep.Summary.Functions > 0 {
		rep.Summary.AvgCyclomatic = float64(cyclomatic) / float64(rep.Summary.Functions)
	}
	a.logger.Debug("webassembly analysis done", "modules", len(rep.Modules), "duration", time.Since(start))
	return rep, nil
}

// AssemblyScript analyzes every .as file and every .ts file that looks
// like AssemblyScript under root.
func (a *Analyzer) AssemblyScript(ctx context.Context, root string, opts classifier.DiscoverOptions) (*ScriptReport, error) {
	start := time.Now()
	opts.Accept = isScriptPath
	files, err := classifier.Discover(ctx, root, opts)
	if err != nil {
		return nil, pmerrors.FromContext(err, "assemblyscript analysis", time.Since(start))
	}
	rep := &ScriptReport{Scripts: []Script{}, Errors: []string{}}
	total := 0
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, pmerrors.FromContext(err, "assemblyscript analysis", time.Since(start))
		}
		src, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err == nil && !IsAssemblyScript(rel, src) {
			continue
		}
		var s *Script
		if err == nil {
			s, err = a.AnalyzeScript(ctx, rel, src)
		}
		if err != nil {
			a.logger.Warn("script skipped", "path", rel, "error", err)
			rep.Errors = append(rep.Errors, rel+": "+err.Error())
			continue
		}
		rep.Scripts = append(rep.Scripts, *s)
		for _, fn := range s.Complexity.AllFunctions() {
			rep.Functions++
			total += fn.Metrics.Cyclomatic
			rep.MaxCyclomatic = max(rep.MaxCyclomatic, fn.Metrics.Cyclomatic)
		}
	}
	if rep.Functions > 0 {
		rep.AvgCyclomatic = float64(total) / float64(rep.Functions)
	}
	return rep, nil
}
