package deadcode

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"pmat/internal/ast"
	"pmat/internal/dag"
	pmerrors "pmat/internal/errors"
	"pmat/internal/slogutil"
)

// Analyzer detects dead code by reachability over the dependency graph.
type Analyzer struct {
	exclusions *ExclusionRules
	logger     *slog.Logger
}

// NewAnalyzer creates a new dead code analyzer.
func NewAnalyzer(logger *slog.Logger, excludePatterns []string) *Analyzer {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Analyzer{
		exclusions: NewExclusionRules(excludePatterns),
		logger:     logger,
	}
}

// symbol is one analyzed declaration.
type symbol struct {
	node *dag.Node
	decl *ast.Node
	file *ast.File
	info SymbolInfo
}

// Analyze marks everything reachable from entry points and reports the
// rest. The arena must be frozen.
func (a *Analyzer) Analyze(ctx context.Context, arena *ast.Arena, opts AnalyzerOptions) (*Result, error) {
	start := time.Now()
	g, err := dag.Build(arena, dag.BuildOptions{Kind: dag.FullDependency})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, pmerrors.FromContext(err, "dead code analysis", time.Since(start))
	}

	syms := collect(arena, g)
	disp := newDispatch(g)
	in := incoming(g)

	var roots, testRoots []string
	for _, id := range g.NodeIDs() {
		n := g.Nodes[id]
		if n.NodeType == dag.Module {
			roots = append(roots, id)
			continue
		}
		s, ok := syms[id]
		if !ok {
			continue
		}
		switch reason := EntryPoint(s.info); {
		case strings.HasPrefix(reason, "test"):
			testRoots = append(testRoots, id)
		case reason != "":
			roots = append(roots, id)
		case !opts.IncludeExported && s.info.Exported:
			roots = append(roots, id)
		}
	}

	live := disp.reach(g, roots)
	if err := ctx.Err(); err != nil {
		return nil, pmerrors.FromContext(err, "dead code analysis", time.Since(start))
	}
	testLive := disp.reach(g, testRoots)

	var items []DeadCodeItem
	analyzed, excluded := 0, 0
	for _, id := range g.NodeIDs() {
		s, ok := syms[id]
		if !ok || live[id] {
			continue
		}
		if len(opts.Scope) > 0 && !inScope(s.info.FilePath, opts.Scope) {
			continue
		}
		if IsTestFile(s.info.FilePath) {
			continue
		}
		if reason := a.exclusions.ShouldExclude(s.info); reason != "" {
			excluded++
			continue
		}
		analyzed++
		if testLive[id] && opts.ExcludeTestOnly {
			continue
		}
		stats := categorizeReferences(id, in[id], live, syms)
		item := classify(s, stats, testLive[id])
		if opts.IncludeSource {
			item.SourceSnippet = firstLine(arenaText(s))
		}
		if item.Confidence >= opts.MinConfidence {
			items = append(items, item)
		}
	}
	// Live symbols count toward the analyzed total.
	for id := range syms {
		if live[id] {
			analyzed++
		}
	}

	slices.SortFunc(items, func(x, y DeadCodeItem) int {
		return cmp.Or(
			cmp.Compare(y.Confidence, x.Confidence),
			cmp.Compare(x.FilePath, y.FilePath),
			cmp.Compare(x.LineNumber, y.LineNumber),
			cmp.Compare(x.SymbolID, y.SymbolID),
		)
	})
	files := fileStats(arena, items)
	summary := computeSummary(arena, items, analyzed)
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}

	a.logger.Debug("Dead code analysis completed",
		"symbols", len(syms),
		"live", len(live),
		"deadCodeFound", len(items),
		"excluded", excluded,
		"duration", time.Since(start))

	return &Result{
		DeadCode: nonNil(items),
		Files:    files,
		Summary:  summary,
		Scope:    opts.Scope,
	}, nil
}

// collect pairs each declaration node of g with its arena node.
func collect(arena *ast.Arena, g *dag.Graph) map[string]*symbol {
	type loc struct {
		path string
		line int
		name string
	}
	decls := make(map[loc]ast.NodeKey)
	for fi := range arena.Files {
		f := &arena.Files[fi]
		for k := range arena.WalkPreorder(f.Root) {
			n := arena.Get(k)
			if n.Kind.Is(ast.CatFunction) || (n.Kind.Is(ast.CatClass) && n.Kind != ast.ClassImpl) {
				l := loc{f.Path, n.StartLine, n.Name}
				if _, dup := decls[l]; !dup {
					decls[l] = k
				}
			}
		}
	}
	fileByPath := make(map[string]*ast.File, len(arena.Files))
	for fi := range arena.Files {
		fileByPath[arena.Files[fi].Path] = &arena.Files[fi]
	}

	syms := make(map[string]*symbol)
	for id, n := range g.Nodes {
		switch n.NodeType {
		case dag.Function, dag.Class, dag.Trait, dag.Interface:
		default:
			continue
		}
		k, ok := decls[loc{n.FilePath, n.LineNumber, n.Label}]
		if !ok {
			continue
		}
		decl := arena.Get(k)
		f := fileByPath[n.FilePath]
		syms[id] = &symbol{
			node: n,
			decl: decl,
			file: f,
			info: SymbolInfo{
				Name:       n.Label,
				Kind:       kindOf(n, decl),
				FilePath:   n.FilePath,
				Language:   f.Language,
				Attributes: lineAbove(f.Source, decl.StartLine),
				Exported:   decl.Flags.Has(ast.FlagExported),
			},
		}
	}
	return syms
}

func kindOf(n *dag.Node, decl *ast.Node) string {
	switch n.NodeType {
	case dag.Class:
		return "class"
	case dag.Trait:
		return "trait"
	case dag.Interface:
		return "interface"
	}
	if decl.Kind == ast.FuncMethod || decl.Kind == ast.FuncConstructor ||
		decl.Kind == ast.FuncGetter || decl.Kind == ast.FuncSetter {
		return "method"
	}
	return "function"
}

// lineAbove returns the trimmed source line before line (1-based).
func lineAbove(src []byte, line int) string {
	if line <= 1 {
		return ""
	}
	lines := strings.SplitN(string(src), "\n", line)
	if len(lines) < line-1 {
		return ""
	}
	return strings.TrimSpace(lines[line-2])
}

func arenaText(s *symbol) string {
	if s.decl.End > len(s.file.Source) || s.decl.Start >= s.decl.End {
		return ""
	}
	return string(s.file.Source[s.decl.Start:s.decl.End])
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

func incoming(g *dag.Graph) map[string][]dag.Edge {
	in := make(map[string][]dag.Edge)
	for _, e := range g.SortedEdges() {
		if e.EdgeType == dag.Imports {
			continue
		}
		in[e.To] = append(in[e.To], e)
	}
	return in
}

// inScope checks if a file path is within the given scope.
func inScope(filePath string, scope []string) bool {
	for _, s := range scope {
		s = strings.TrimSuffix(s, "/")
		if filePath == s || strings.HasPrefix(filePath, s+"/") {
			return true
		}
	}
	return false
}

// categorizeReferences categorizes references to a symbol.
func categorizeReferences(id string, refs []dag.Edge, live map[string]bool, syms map[string]*symbol) ReferenceStats {
	var stats ReferenceStats
	for _, e := range refs {
		stats.Total++
		switch {
		case e.From == id:
			stats.FromSelf++
		case syms[e.From] != nil && IsTestFile(syms[e.From].info.FilePath):
			stats.FromTests++
		case live[e.From]:
			stats.FromLive++
		}
	}
	return stats
}

// classify determines the category and confidence of a dead symbol.
func classify(s *symbol, stats ReferenceStats, testOnly bool) DeadCodeItem {
	item := DeadCodeItem{
		SymbolID:       s.node.ID,
		SymbolName:     s.info.Name,
		Kind:           s.info.Kind,
		FilePath:       s.info.FilePath,
		LineNumber:     s.decl.StartLine,
		LineEnd:        s.decl.EndLine,
		ReferenceCount: stats.Total,
		TestReferences: stats.FromTests,
		SelfReferences: stats.FromSelf,
		Exported:       s.info.Exported,
	}

	nonSelfRefs := stats.Total - stats.FromSelf
	switch {
	case testOnly:
		item.Category = CategoryTestOnly
		item.Reason = "Only reachable from tests"
		item.Confidence = 0.75
	case nonSelfRefs == 0 && stats.FromSelf > 0:
		item.Category = CategorySelfOnly
		item.Reason = "Only referenced by itself (recursive but never called)"
		item.Confidence = 0.95
	case nonSelfRefs == 0:
		item.Category = CategoryZeroRefs
		item.Reason = "No references found"
		item.Confidence = 0.99
	default:
		item.Category = CategoryUnreachable
		item.Reason = fmt.Sprintf("Referenced %d times, only from unreachable code", nonSelfRefs)
		item.Confidence = 0.85
	}
	// Public API may have callers outside the analyzed tree.
	if item.Exported {
		item.Confidence -= 0.1
	}
	return item
}

func fileStats(arena *ast.Arena, items []DeadCodeItem) []FileStats {
	byPath := make(map[string]*FileStats)
	for _, f := range arena.Files {
		byPath[f.Path] = &FileStats{Path: f.Path, TotalLines: f.Lines}
	}
	for _, it := range items {
		if fs, ok := byPath[it.FilePath]; ok {
			fs.DeadItems++
		}
	}
	for path, n := range deadLines(items) {
		if fs, ok := byPath[path]; ok {
			fs.DeadLines = n
		}
	}
	out := make([]FileStats, 0, len(byPath))
	for _, fs := range byPath {
		if fs.DeadItems == 0 {
			continue
		}
		if fs.TotalLines > 0 {
			fs.Ratio = min(float64(fs.DeadLines)/float64(fs.TotalLines), 1)
		}
		out = append(out, *fs)
	}
	slices.SortFunc(out, func(x, y FileStats) int {
		return cmp.Or(cmp.Compare(y.DeadLines, x.DeadLines), cmp.Compare(x.Path, y.Path))
	})
	return out
}

// computeSummary calculates aggregate statistics for the results.
func computeSummary(arena *ast.Arena, deadCode []DeadCodeItem, totalAnalyzed int) DeadCodeSummary {
	summary := DeadCodeSummary{
		TotalSymbols: totalAnalyzed,
		ByKind:       make(map[string]int),
		ByCategory:   make(map[string]int),
	}
	for _, f := range arena.Files {
		summary.TotalLines += f.Lines
	}
	for _, item := range deadCode {
		if item.Confidence >= 0.9 {
			summary.DeadCount++
		} else {
			summary.SuspiciousCount++
		}
		summary.ByKind[item.Kind]++
		summary.ByCategory[string(item.Category)]++
	}
	for _, n := range deadLines(deadCode) {
		summary.DeadLines += n
	}
	if summary.TotalLines > 0 {
		summary.DeadCodeRatio = min(float64(summary.DeadLines)/float64(summary.TotalLines), 1)
	}
	return summary
}

// deadLines counts the lines covered by items per file. Nested items, such
// as a dead class and its dead methods, are counted once.
func deadLines(items []DeadCodeItem) map[string]int {
	spans := make(map[string][][2]int)
	for _, it := range items {
		end := max(it.LineEnd, it.LineNumber)
		spans[it.FilePath] = append(spans[it.FilePath], [2]int{it.LineNumber, end})
	}
	out := make(map[string]int, len(spans))
	for path, ss := range spans {
		slices.SortFunc(ss, func(x, y [2]int) int { return cmp.Compare(x[0], y[0]) })
		total, curStart, curEnd := 0, ss[0][0], ss[0][1]
		for _, s := range ss[1:] {
			if s[0] <= curEnd {
				curEnd = max(curEnd, s[1])
				continue
			}
			total += curEnd - curStart + 1
			curStart, curEnd = s[0], s[1]
		}
		out[path] = total + curEnd - curStart + 1
	}
	return out
}

func nonNil(items []DeadCodeItem) []DeadCodeItem {
	if items == nil {
		return []DeadCodeItem{}
	}
	return items
}
