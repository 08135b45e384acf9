package service

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"pmat/internal/ast"
	"pmat/internal/bigo"
	"pmat/internal/churn"
	"pmat/internal/classifier"
	"pmat/internal/complexity"
	"pmat/internal/coverage"
	"pmat/internal/dag"
	"pmat/internal/deadcode"
	"pmat/internal/defect"
	"pmat/internal/duplicates"
	pmerrors "pmat/internal/errors"
	"pmat/internal/history"
	"pmat/internal/makefile"
	"pmat/internal/mermaid"
	"pmat/internal/pipeline"
	"pmat/internal/proof"
	"pmat/internal/provability"
	"pmat/internal/ranking"
	"pmat/internal/report"
	"pmat/internal/repostate"
	"pmat/internal/satd"
	"pmat/internal/tdg"
	"pmat/internal/wasm"
)

// Kind names an analyzer.
type Kind string

const (
	KindComplexity     Kind = "complexity"
	KindChurn          Kind = "churn"
	KindDAG            Kind = "dag"
	KindDeadCode       Kind = "dead-code"
	KindDuplicates     Kind = "duplicates"
	KindSATD           Kind = "satd"
	KindProvability    Kind = "provability"
	KindTDG            Kind = "tdg"
	KindDefect         Kind = "defect-prediction"
	KindCoverage       Kind = "incremental-coverage"
	KindMakefile       Kind = "makefile"
	KindAssemblyScript Kind = "assemblyscript"
	KindWebAssembly    Kind = "webassembly"
	KindBigO           Kind = "big-o"
)

// Kinds lists every analyzer in help order.
var Kinds = []Kind{
	KindComplexity, KindChurn, KindDAG, KindDeadCode, KindDuplicates, KindSATD,
	KindProvability, KindTDG, KindDefect, KindCoverage, KindMakefile,
	KindAssemblyScript, KindWebAssembly, KindBigO,
}

// ParseKind validates an analyzer name.
func ParseKind(s string) (Kind, error) {
	if k := Kind(s); slices.Contains(Kinds, k) {
		return k, nil
	}
	return "", pmerrors.Missing("analyzer", s)
}

// AnalyzeRequest carries the options of every analyzer; each reads the
// fields it understands.
type AnalyzeRequest struct {
	ProjectPath string   `json:"project_path"`
	Format      string   `json:"format,omitempty"`
	TopFiles    int      `json:"top_files,omitempty"`
	Exclude     []string `json:"exclude,omitempty"`

	PeriodDays int `json:"period_days,omitempty"`

	DAGType        string `json:"dag_type,omitempty"`
	ShowComplexity bool   `json:"show_complexity,omitempty"`
	FilterExternal bool   `json:"filter_external,omitempty"`
	MaxDepth       int    `json:"max_depth,omitempty"`

	IncludeTests  bool    `json:"include_tests,omitempty"`
	MinConfidence float64 `json:"min_confidence,omitempty"`

	CloneType           string  `json:"clone_type,omitempty"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
	MinTokens           int     `json:"min_tokens,omitempty"`

	BaseBranch   string `json:"base_branch,omitempty"`
	CoverageFile string `json:"coverage_file,omitempty"`

	Record       bool `json:"record,omitempty"`
	CriticalOnly bool `json:"critical_only,omitempty"`

	HighRiskOnly        bool    `json:"high_risk_only,omitempty"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
	MinLines            int     `json:"min_lines,omitempty"`
}

// Analysis is one analyzer run ready for rendering.
type Analysis struct {
	Kind  Kind
	Root  string
	Value any

	sarif func() *report.SARIFReport
	doc   func() *report.Document
	text  map[report.Format]func() string
}

// Formats lists the output formats the analysis supports.
func (a *Analysis) Formats() []report.Format {
	out := []report.Format{report.FormatJSON}
	if a.sarif != nil {
		out = append(out, report.FormatSARIF)
	}
	for _, f := range []report.Format{report.FormatMarkdown, report.FormatTable, report.FormatMermaid} {
		if _, ok := a.text[f]; ok || (a.doc != nil && (f == report.FormatMarkdown || f == report.FormatTable)) {
			out = append(out, f)
		}
	}
	return out
}

// Render encodes the analysis in format. JSON output is the report
// envelope stamped with at.
func (a *Analysis) Render(format string, at time.Time) (*Response, error) {
	f, err := report.ParseFormat(format, a.Formats()...)
	if err != nil {
		return nil, err
	}
	if fn, ok := a.text[f]; ok {
		ct := ContentText
		if f == report.FormatMarkdown {
			ct = ContentMarkdown
		}
		return textResponse(ct, fn()), nil
	}
	switch f {
	case report.FormatSARIF:
		return jsonResponse(200, a.sarif())
	case report.FormatMarkdown:
		return textResponse(ContentMarkdown, a.doc().Markdown()), nil
	case report.FormatTable:
		var b strings.Builder
		if err := a.doc().WriteText(&b); err != nil {
			return nil, pmerrors.New(pmerrors.InternalError, "render table", err)
		}
		return textResponse(ContentText, b.String()), nil
	}
	env, err := report.Envelope(string(a.Kind), at, a.Value)
	if err != nil {
		return nil, err
	}
	return jsonResponse(200, env)
}

func (s *Service) handleAnalyze(ctx context.Context, c *call) (*Response, error) {
	kind, err := ParseKind(c.vars["rest"])
	if err != nil {
		return nil, err
	}
	var req AnalyzeRequest
	if err := c.decode(&req); err != nil {
		return nil, err
	}
	a, err := s.Analyze(ctx, kind, req)
	if err != nil {
		return nil, err
	}
	return a.Render(req.Format, s.now())
}

// Analyze runs one analyzer.
func (s *Service) Analyze(ctx context.Context, kind Kind, req AnalyzeRequest) (*Analysis, error) {
	root, err := repostate.Resolve(strings.TrimSpace(req.ProjectPath), false)
	if err != nil {
		return nil, err
	}
	req.ProjectPath = root
	start := time.Now()
	s.logger.Debug("analysis started", "kind", kind, "root", root)

	var a *Analysis
	switch kind {
	case KindComplexity:
		a, err = s.analyzeComplexity(ctx, req)
	case KindChurn:
		a, err = s.analyzeChurn(ctx, req)
	case KindDAG:
		a, err = s.analyzeDAG(ctx, req)
	case KindDeadCode:
		a, err = s.analyzeDeadCode(ctx, req)
	case KindDuplicates:
		a, err = s.analyzeDuplicates(ctx, req)
	case KindSATD:
		a, err = s.analyzeSATD(ctx, req)
	case KindProvability:
		a, err = s.analyzeProvability(ctx, req)
	case KindTDG:
		a, err = s.analyzeTDG(ctx, req)
	case KindDefect:
		a, err = s.analyzeDefects(ctx, req)
	case KindCoverage:
		a, err = s.analyzeCoverage(ctx, req)
	case KindMakefile:
		a, err = s.analyzeMakefiles(ctx, req)
	case KindAssemblyScript:
		a, err = s.analyzeAssemblyScript(ctx, req)
	case KindWebAssembly:
		a, err = s.analyzeWebAssembly(ctx, req)
	case KindBigO:
		a, err = s.analyzeBigO(ctx, req)
	default:
		return nil, pmerrors.Missing("analyzer", string(kind))
	}
	if err != nil {
		return nil, pmerrors.FromContext(err, string(kind)+" analysis", time.Since(start))
	}
	a.Kind, a.Root = kind, root
	s.logger.Debug("analysis finished", "kind", kind, "elapsed", time.Since(start))
	return a, nil
}

type complexityResult struct {
	*complexity.Report
	Ranking *ranking.Report `json:"ranking,omitempty"`
}

func (s *Service) analyzeComplexity(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	proj, err := s.load(ctx, req.ProjectPath, req.Exclude)
	if err != nil {
		return nil, err
	}
	files := complexity.Project(proj.Arena)
	rep := complexity.Aggregate(files, s.thresholds())
	res := complexityResult{Report: &rep}
	a := &Analysis{
		Value: &res,
		sarif: func() *report.SARIFReport { return report.ComplexitySARIF(proj.Root, &rep) },
		doc:   func() *report.Document { return report.ComplexityDocument(&rep) },
	}
	if req.TopFiles > 0 {
		byPath := make(map[string]complexity.FileMetrics, len(files))
		for _, fm := range files {
			byPath[fm.Path] = fm
		}
		r := ranking.NewComplexityRanker(s.registry)
		r.Analyze = func(_ context.Context, path string) (complexity.FileMetrics, error) {
			fm, ok := byPath[path]
			if !ok {
				return complexity.FileMetrics{}, pmerrors.Missing("file", path)
			}
			return fm, nil
		}
		rr, table, err := rankTop(ctx, s, proj, r, req.TopFiles)
		if err != nil {
			return nil, err
		}
		res.Ranking = rr
		a.text = map[report.Format]func() string{report.FormatTable: func() string { return table }}
	}
	return a, nil
}

func (s *Service) thresholds() complexity.Thresholds {
	t := complexity.DefaultThresholds()
	r := s.cfg.Refactor
	if r.CyclomaticWarn > 0 {
		t.CyclomaticWarn, t.CyclomaticError = r.CyclomaticWarn, r.CyclomaticError
	}
	if r.CognitiveWarn > 0 {
		t.CognitiveWarn, t.CognitiveError = r.CognitiveWarn, r.CognitiveError
	}
	if r.MaxFunctionLines > 0 {
		t.MethodLength = r.MaxFunctionLines
	}
	return t
}

// relRanker adapts a ranker keyed by project-relative paths to the
// absolute paths the engine ranks.
type relRanker[M any] struct {
	ranking.Ranker[M]
	root string
}

func (r relRanker[M]) Score(ctx context.Context, path string) (M, error) {
	if rel, err := filepath.Rel(r.root, path); err == nil {
		path = filepath.ToSlash(rel)
	}
	return r.Ranker.Score(ctx, path)
}

// rankTop ranks the project's files and returns the JSON report plus the
// table rendering, both with project-relative paths.
func rankTop[M any](ctx context.Context, s *Service, proj *pipeline.Project, r ranking.Ranker[M], top int) (*ranking.Report, string, error) {
	engine := ranking.NewEngine[M](relRanker[M]{Ranker: r, root: proj.Root}, s.logger)
	abs := make([]string, len(proj.Files))
	for i, f := range proj.Files {
		abs[i] = proj.Abs(f)
	}
	rs, err := engine.RankFiles(ctx, abs, top)
	if err != nil {
		return nil, "", err
	}
	for i := range rs {
		if rel, err := filepath.Rel(proj.Root, rs[i].File); err == nil {
			rs[i].File = filepath.ToSlash(rel)
		}
	}
	rep, err := engine.BuildReport(rs, top, s.now())
	if err != nil {
		return nil, "", err
	}
	return &rep, engine.FormatTable(rs), nil
}

type churnResult struct {
	*churn.Analysis
	Ranking *ranking.Report `json:"ranking,omitempty"`
}

func (s *Service) analyzeChurn(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	an, err := s.churn.Analyze(ctx, req.ProjectPath, req.PeriodDays)
	if err != nil {
		return nil, err
	}
	res := churnResult{Analysis: an}
	a := &Analysis{
		Value: &res,
		doc:   func() *report.Document { return report.ChurnDocument(an) },
	}
	if req.TopFiles > 0 {
		proj, err := s.load(ctx, req.ProjectPath, req.Exclude)
		if err != nil {
			return nil, err
		}
		rr, table, err := rankTop(ctx, s, proj, ranking.NewChurnRanker(an, s.now()), req.TopFiles)
		if err != nil {
			return nil, err
		}
		res.Ranking = rr
		a.text = map[report.Format]func() string{report.FormatTable: func() string { return table }}
	}
	return a, nil
}

type dagResult struct {
	Graph    *dag.Graph         `json:"graph"`
	Stats    dag.Stats          `json:"stats"`
	Pruning  dag.PruneResult    `json:"pruning"`
	Cycles   [][]string         `json:"cycles"`
	TopNodes []dag.Ranked       `json:"top_nodes"`
	Mermaid  string             `json:"mermaid"`
	Skipped  []pipeline.Skipped `json:"skipped,omitempty"`
}

// topNodes is how many PageRank leaders a graph report lists.
const topNodes = 10

func (s *Service) analyzeDAG(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	kind, err := dag.ParseKind(req.DAGType)
	if err != nil {
		return nil, err
	}
	proj, err := s.load(ctx, req.ProjectPath, req.Exclude)
	if err != nil {
		return nil, err
	}
	g, err := dag.Build(proj.Arena, dag.BuildOptions{Kind: kind, IncludeExternal: !req.FilterExternal})
	if err != nil {
		return nil, err
	}
	opts := dag.RankOptions{Damping: s.cfg.DAG.Damping, Iterations: s.cfg.DAG.Iterations}
	if opts.Damping <= 0 || opts.Iterations <= 0 {
		opts = dag.DefaultRankOptions()
	}
	pruned, pr := dag.Prune(g, s.cfg.DAG.EdgeBudget, opts)
	if err := pruned.Validate(); err != nil {
		return nil, err
	}
	ranked := pruned.PageRank(opts)
	diagram := mermaid.Render(pruned, mermaid.Options{
		MaxDepth:       req.MaxDepth,
		FilterExternal: req.FilterExternal,
		ShowComplexity: req.ShowComplexity,
	})
	cycles := pruned.Cycles()
	if cycles == nil {
		cycles = [][]string{}
	}
	res := &dagResult{
		Graph:    pruned,
		Stats:    pruned.Stats(),
		Pruning:  pr,
		Cycles:   cycles,
		TopNodes: ranked[:min(topNodes, len(ranked))],
		Mermaid:  diagram,
		Skipped:  proj.Skipped,
	}
	return &Analysis{
		Value: res,
		text:  map[report.Format]func() string{report.FormatMermaid: func() string { return diagram }},
	}, nil
}

func (s *Service) deadCode(ctx context.Context, arena *ast.Arena, req AnalyzeRequest) (*deadcode.Result, error) {
	opts := deadcode.DefaultOptions()
	if req.MinConfidence > 0 {
		opts.MinConfidence = req.MinConfidence
	}
	opts.ExcludeTestOnly = !req.IncludeTests
	opts.ExcludePatterns = req.Exclude
	return deadcode.NewAnalyzer(s.logger, s.cfg.Exclude).Analyze(ctx, arena, opts)
}

func (s *Service) analyzeDeadCode(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	proj, err := s.load(ctx, req.ProjectPath, req.Exclude)
	if err != nil {
		return nil, err
	}
	r, err := s.deadCode(ctx, proj.Arena, req)
	if err != nil {
		return nil, err
	}
	return &Analysis{
		Value: r,
		sarif: func() *report.SARIFReport { return report.DeadCodeSARIF(proj.Root, r) },
		doc:   func() *report.Document { return report.DeadCodeDocument(r) },
	}, nil
}

func (s *Service) duplicates(ctx context.Context, arena *ast.Arena, req AnalyzeRequest) (*duplicates.Report, error) {
	cfg := duplicates.DefaultConfig()
	if req.SimilarityThreshold > 0 {
		cfg.SimilarityThreshold = req.SimilarityThreshold
	}
	if req.MinTokens > 0 {
		cfg.MinTokens = req.MinTokens
	}
	if req.CloneType != "" && req.CloneType != "all" {
		t, err := duplicates.ParseCloneType(req.CloneType)
		if err != nil {
			return nil, err
		}
		cfg.Types = []duplicates.CloneType{t}
	}
	d, err := duplicates.NewDetector(cfg, s.logger)
	if err != nil {
		return nil, err
	}
	return d.Detect(ctx, arena)
}

type duplicatesResult struct {
	*duplicates.Report
	Ranking *ranking.Report `json:"ranking,omitempty"`
}

func (s *Service) analyzeDuplicates(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	proj, err := s.load(ctx, req.ProjectPath, req.Exclude)
	if err != nil {
		return nil, err
	}
	rep, err := s.duplicates(ctx, proj.Arena, req)
	if err != nil {
		return nil, err
	}
	res := duplicatesResult{Report: rep}
	a := &Analysis{
		Value: &res,
		sarif: func() *report.SARIFReport { return report.DuplicatesSARIF(proj.Root, rep) },
		doc:   func() *report.Document { return report.DuplicatesDocument(rep) },
	}
	if req.TopFiles > 0 {
		lines := make(map[string]int, len(proj.Arena.Files))
		for _, f := range proj.Arena.Files {
			lines[f.Path] = f.Lines
		}
		rr, table, err := rankTop(ctx, s, proj, ranking.NewDuplicationRanker(rep, lines), req.TopFiles)
		if err != nil {
			return nil, err
		}
		res.Ranking = rr
		a.text = map[report.Format]func() string{report.FormatTable: func() string { return table }}
	}
	return a, nil
}

func (s *Service) satd(ctx context.Context, req AnalyzeRequest) (*satd.Result, error) {
	return satd.NewAnalyzer(s.logger, s.registry).Analyze(ctx, req.ProjectPath, satd.Options{
		IncludeTests: req.IncludeTests,
		Exclude:      append(slices.Clone(s.cfg.Exclude), req.Exclude...),
		Age:          repostate.IsGitRepository(req.ProjectPath),
	})
}

func (s *Service) analyzeSATD(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	r, err := s.satd(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Analysis{
		Value: r,
		sarif: func() *report.SARIFReport { return report.SATDSARIF(req.ProjectPath, r) },
		doc:   func() *report.Document { return report.SATDDocument(r) },
	}, nil
}

type provabilityResult struct {
	Functions    []provability.ProofSummary `json:"functions"`
	AverageScore float64                    `json:"average_score"`
	Annotations  []proof.Located            `json:"annotations"`
	Sources      []proof.SourceReport       `json:"sources"`
}

func (s *Service) analyzeProvability(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	proj, err := s.load(ctx, req.ProjectPath, req.Exclude)
	if err != nil {
		return nil, err
	}
	summaries, err := s.proofs.AnalyzeArena(ctx, proj.Arena)
	if err != nil {
		return nil, err
	}

	symbols := proof.NewSymbolTable()
	for _, fn := range proj.Arena.Functions() {
		n := proj.Arena.Get(fn)
		if f := proj.Arena.FileOf(fn); f != nil && n.Name != "" {
			symbols.Insert(n.Name, proof.Location{FilePath: f.Path, StartLine: n.StartLine, EndLine: n.EndLine})
		}
	}
	annotator := proof.NewAnnotator(s.logger,
		proof.RustSafety{},
		proof.Companion{},
		provability.Source{Registry: s.registry, Analyzer: s.proofs},
	)
	merged, sources, err := annotator.Collect(ctx, proj.Root, symbols)
	if err != nil {
		return nil, err
	}
	for _, fn := range proj.Arena.Functions() {
		n := proj.Arena.Get(fn)
		if f := proj.Arena.FileOf(fn); f != nil {
			proj.Arena.SetAnnotations(fn, merged.Within(f.Path, n.StartLine, n.EndLine))
		}
	}

	res := &provabilityResult{
		Functions:   summaries,
		Annotations: merged.Sorted(),
		Sources:     sources,
	}
	if res.Functions == nil {
		res.Functions = []provability.ProofSummary{}
	}
	if res.Annotations == nil {
		res.Annotations = []proof.Located{}
	}
	for _, sum := range summaries {
		res.AverageScore += sum.Score
	}
	if len(summaries) > 0 {
		res.AverageScore /= float64(len(summaries))
	}
	return &Analysis{Value: res}, nil
}

// churnIfRepo returns churn for repositories and nil elsewhere.
func (s *Service) churnIfRepo(ctx context.Context, root string, days int) *churn.Analysis {
	if _, err := repostate.FindRoot(root); err != nil {
		return nil
	}
	an, err := s.churn.Analyze(ctx, root, days)
	if err != nil {
		s.logger.Debug("churn unavailable", "root", root, "error", err)
		return nil
	}
	return an
}

type tdgResult struct {
	*tdg.Analysis
	Trend *history.Trend `json:"trend,omitempty"`
}

func (s *Service) analyzeTDG(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	proj, err := s.load(ctx, req.ProjectPath, req.Exclude)
	if err != nil {
		return nil, err
	}
	in := tdg.Inputs{Arena: proj.Arena}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		in.Churn = s.churnIfRepo(gctx, proj.Root, req.PeriodDays)
		return nil
	})
	g.Go(func() error {
		rep, err := s.duplicates(gctx, proj.Arena, req)
		in.Duplicates = rep
		return err
	})
	g.Go(func() error {
		sums, err := s.proofs.AnalyzeArena(gctx, proj.Arena)
		in.Provability = provability.FileScores(sums)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	calc := tdg.NewCalculator()
	an, err := calc.Analyze(ctx, in)
	if err != nil {
		return nil, err
	}
	hotspots := tdg.FilterHotspots(an.Summary.Hotspots, 0, req.TopFiles, req.CriticalOnly)
	res := &tdgResult{Analysis: an}
	if req.Record && s.history != nil {
		trend, err := s.record(ctx, proj.Root, an)
		if err != nil {
			return nil, err
		}
		res.Trend = &trend
	}
	return &Analysis{
		Value: res,
		sarif: func() *report.SARIFReport { return report.TDGSARIF(proj.Root, an) },
		text: map[report.Format]func() string{
			report.FormatMarkdown: func() string { return calc.FormatMarkdown(an, hotspots, true) },
			report.FormatTable:    func() string { return calc.FormatTable(an, hotspots, false) },
		},
	}, nil
}

// TrendWindow is how many recorded runs a trend is fitted over.
const TrendWindow = 20

func (s *Service) record(ctx context.Context, root string, an *tdg.Analysis) (history.Trend, error) {
	files := make(map[string]float64, len(an.Files))
	for _, f := range an.Files {
		files[f.Path] = f.Value
	}
	commit, _ := repostate.Git(ctx, root, "rev-parse", "HEAD")
	run := &history.Run{
		Kind:       string(KindTDG),
		Root:       root,
		Commit:     commit,
		RecordedAt: s.now().UTC(),
		Value:      an.Summary.AverageTDG,
		FileCount:  len(files),
		Files:      files,
	}
	if err := s.history.Record(ctx, run); err != nil {
		return history.Trend{}, err
	}
	return s.history.Trend(ctx, string(KindTDG), root, TrendWindow, true)
}

func (s *Service) analyzeDefects(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	proj, err := s.load(ctx, req.ProjectPath, req.Exclude)
	if err != nil {
		return nil, err
	}
	graph, err := dag.Build(proj.Arena, dag.BuildOptions{Kind: dag.FullDependency})
	if err != nil {
		return nil, err
	}
	in := defect.Inputs{Arena: proj.Arena, Graph: graph}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		in.Churn = s.churnIfRepo(gctx, proj.Root, req.PeriodDays)
		return nil
	})
	g.Go(func() error {
		rep, err := s.duplicates(gctx, proj.Arena, req)
		in.Duplicates = rep
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	opts := defect.DefaultOptions()
	if req.ConfidenceThreshold > 0 {
		opts.ConfidenceThreshold = req.ConfidenceThreshold
	}
	if req.MinLines > 0 {
		opts.MinLines = req.MinLines
	}
	opts.HighRiskOnly = req.HighRiskOnly
	opts.Limit = req.TopFiles
	pa := defect.NewCalculator().Project(defect.Collect(in, opts.MinLines), opts)
	return &Analysis{
		Value: pa,
		text: map[report.Format]func() string{
			report.FormatMarkdown: func() string { return defect.FormatDetailed(pa, true) },
			report.FormatTable:    func() string { return defect.FormatSummary(pa) },
		},
	}, nil
}

func (s *Service) analyzeCoverage(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	root, err := repostate.Resolve(req.ProjectPath, true)
	if err != nil {
		return nil, err
	}
	var dependents map[string][]string
	if proj, err := s.load(ctx, root, req.Exclude); err == nil {
		dependents = importers(proj.Arena)
	} else if pmerrors.CodeOf(err) == pmerrors.Timeout || pmerrors.CodeOf(err) == pmerrors.Cancelled {
		return nil, err
	}
	up, err := coverage.NewAnalyzer(s.logger).Analyze(ctx, coverage.Request{
		Root:       root,
		Base:       req.BaseBranch,
		Tracefile:  req.CoverageFile,
		Dependents: dependents,
	})
	if err != nil {
		return nil, err
	}
	return &Analysis{Value: up}, nil
}

// importers maps each file to the files importing it.
func importers(a *ast.Arena) map[string][]string {
	g, err := dag.Build(a, dag.BuildOptions{Kind: dag.ImportGraph})
	if err != nil {
		return nil
	}
	out := map[string][]string{}
	for _, e := range g.SortedEdges() {
		from, to := g.Nodes[e.From], g.Nodes[e.To]
		if from == nil || to == nil || from.FilePath == to.FilePath || to.FilePath == "" {
			continue
		}
		if !slices.Contains(out[to.FilePath], from.FilePath) {
			out[to.FilePath] = append(out[to.FilePath], from.FilePath)
		}
	}
	return out
}

func (s *Service) analyzeMakefiles(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	rep, err := makefile.NewLinter(s.logger).LintProject(ctx, req.ProjectPath)
	if err != nil {
		return nil, err
	}
	return &Analysis{
		Value: rep,
		sarif: func() *report.SARIFReport { return report.MakefileSARIF(req.ProjectPath, rep) },
	}, nil
}

func (s *Service) discoverOptions(req AnalyzeRequest) classifier.DiscoverOptions {
	return classifier.DiscoverOptions{Exclude: append(slices.Clone(s.cfg.Exclude), req.Exclude...)}
}

func (s *Service) analyzeWebAssembly(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	rep, err := wasm.NewAnalyzer(s.logger, s.registry, wasm.DefaultSecurityConfig()).
		WebAssembly(ctx, req.ProjectPath, s.discoverOptions(req))
	if err != nil {
		return nil, err
	}
	return &Analysis{Value: rep}, nil
}

func (s *Service) analyzeAssemblyScript(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	rep, err := wasm.NewAnalyzer(s.logger, s.registry, wasm.DefaultSecurityConfig()).
		AssemblyScript(ctx, req.ProjectPath, s.discoverOptions(req))
	if err != nil {
		return nil, err
	}
	return &Analysis{Value: rep}, nil
}

func (s *Service) analyzeBigO(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	proj, err := s.load(ctx, req.ProjectPath, req.Exclude)
	if err != nil {
		return nil, err
	}
	rep := bigo.NewAnalyzer(s.logger).Analyze(proj.Arena)
	return &Analysis{Value: &rep}, nil
}
