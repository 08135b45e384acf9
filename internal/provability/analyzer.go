package provability

import (
	"context"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"pmat/internal/ast"
	"pmat/internal/cache"
	pmerrors "pmat/internal/errors"
	"pmat/internal/parser"
	"pmat/internal/proof"
	"pmat/internal/slogutil"
)

// State is the abstract state reached at a function's exit.
type State struct {
	Nullability Nullability `json:"nullability"`
	Bounds      Interval    `json:"bounds"`
	Alias       Alias       `json:"alias"`
	Purity      Purity      `json:"purity"`
}

// VerifiedProperty is one property the analysis could establish.
type VerifiedProperty struct {
	Property   proof.Property `json:"property"`
	Confidence float64        `json:"confidence"`
	Evidence   string         `json:"evidence"`
}

// ProofSummary is the analysis result for one function.
type ProofSummary struct {
	File               string             `json:"file"`
	Function           string             `json:"function"`
	StartLine          int                `json:"start_line"`
	EndLine            int                `json:"end_line"`
	Version            string             `json:"version"`
	State              State              `json:"state"`
	Score              float64            `json:"provability_score"`
	VerifiedProperties []VerifiedProperty `json:"verified_properties"`
}

// ID identifies the function independently of its content.
func (s ProofSummary) ID() string {
	return s.File + ":" + s.Function + ":" + strconv.Itoa(s.StartLine)
}

// Has reports whether p was verified.
func (s ProofSummary) Has(p proof.Property) bool {
	for _, v := range s.VerifiedProperties {
		if v.Property == p {
			return true
		}
	}
	return false
}

// Analyzer interprets functions and caches their summaries by identity
// and content version.
type Analyzer struct {
	logger  *slog.Logger
	results *cache.Persistent[string, ProofSummary]
}

// NewAnalyzer creates an analyzer. An empty cacheDir keeps summaries in
// memory.
func NewAnalyzer(logger *slog.Logger, cacheDir string) (*Analyzer, error) {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	strategy := cache.KeyedStrategy[ProofSummary]{Namespace: "provability", Size: cache.FileMaxSize}
	c, err := cache.New[string, ProofSummary](strategy, cacheDir, cache.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return &Analyzer{logger: logger, results: c}, nil
}

// CacheStats reports cache hits and misses.
func (an *Analyzer) CacheStats() cache.StatsSnapshot { return an.results.Stats() }

// AnalyzeFunction returns the summary of the function at fn.
func (an *Analyzer) AnalyzeFunction(a *ast.Arena, fn ast.NodeKey) ProofSummary {
	n := a.Get(fn)
	if n == nil || !n.Kind.Is(ast.CatFunction) {
		return ProofSummary{VerifiedProperties: []VerifiedProperty{}}
	}
	path := ""
	if f := a.FileOf(fn); f != nil {
		path = f.Path
	}
	text := a.Text(fn)
	head := ProofSummary{
		File:      path,
		Function:  n.Name,
		StartLine: n.StartLine,
		EndLine:   n.EndLine,
		Version:   strconv.FormatUint(xxhash.Sum64String(text), 16),
	}
	sum, err := an.results.GetOrCompute(head.ID()+"@"+head.Version, func() (ProofSummary, error) {
		s := head
		s.State = interpret(a, fn, text)
		s.Score = Score(s.State)
		s.VerifiedProperties = verify(s.State)
		return s, nil
	})
	if err != nil {
		an.logger.Warn("provability analysis failed", "function", head.ID(), "error", err)
	}
	return sum
}

// AnalyzeArena summarizes every function in a. Results follow arena order.
func (an *Analyzer) AnalyzeArena(ctx context.Context, a *ast.Arena) ([]ProofSummary, error) {
	fns := a.Functions()
	out := make([]ProofSummary, 0, len(fns))
	for _, fn := range fns {
		if err := ctx.Err(); err != nil {
			return nil, pmerrors.FromContext(err, "provability", 0)
		}
		out = append(out, an.AnalyzeFunction(a, fn))
	}
	return out, nil
}

// Score averages the four lattice components, each mapped to [0,1].
func Score(s State) float64 {
	var null, bounds, alias, purity float64
	switch s.Nullability {
	case NotNull:
		null = 1
	case MaybeNull:
		null = 0.5
	}
	switch {
	case s.Bounds.Bounded():
		bounds = 1
	case s.Bounds.Lower != nil || s.Bounds.Upper != nil:
		bounds = 0.5
	}
	switch s.Alias {
	case NoAlias:
		alias = 1
	case MayAlias:
		alias = 0.3
	}
	switch s.Purity {
	case Pure:
		purity = 1
	case ReadOnly:
		purity = 0.7
	case WriteLocal:
		purity = 0.3
	}
	return (null + bounds + alias + purity) / 4
}

func verify(s State) []VerifiedProperty {
	out := []VerifiedProperty{}
	if s.Nullability == NotNull {
		out = append(out, VerifiedProperty{proof.NullSafety, 0.9, "no null value reaches a return"})
	}
	if s.Bounds.Bounded() {
		out = append(out, VerifiedProperty{proof.BoundsCheck, 0.85, "loop indices stay within " + s.Bounds.String()})
	}
	if s.Alias == NoAlias {
		out = append(out, VerifiedProperty{proof.NoAliasing, 0.8, "at most one mutable reference parameter"})
	}
	if s.Purity == Pure {
		out = append(out, VerifiedProperty{proof.Purity, 0.95, "no reads or writes outside local state"})
	}
	return out
}

// Factor converts a summary into a 0..5 debt factor: zero for a fully
// provable function. Verified memory or thread safety lowers it further.
func Factor(s ProofSummary, safetyVerified bool) float64 {
	f := 5 * (1 - s.Score)
	if safetyVerified {
		f *= 0.7
	}
	return f
}

// FileScores averages function scores per file.
func FileScores(summaries []ProofSummary) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, s := range summaries {
		sums[s.File] += s.Score
		counts[s.File]++
	}
	for f, n := range counts {
		sums[f] /= float64(n)
	}
	return sums
}

var (
	nullWords    = map[string]bool{"null": true, "nil": true, "None": true, "undefined": true, "NULL": true, "nullptr": true}
	optionalSig  = regexp.MustCompile(`Option<|Optional[<\[]|\|\s*(?:null|undefined|None)\b|\)\s*:\s*[\w.<>]+\?`)
	intLiteral   = regexp.MustCompile(`-?\b\d+\b`)
	guardUpper   = regexp.MustCompile(`<=?|\.\.=?|\brange\(`)
	guardLower   = regexp.MustCompile(`>=?`)
	stepUp       = regexp.MustCompile(`\+\+|\+=`)
	stepDown     = regexp.MustCompile(`--|-=`)
	memberWrite  = regexp.MustCompile(`\b(?:self|this)\s*\.\s*\w+(?:\s*\[[^\]]*\])?\s*(?:[-+*/%|&^]|<<|>>)?=[^=]`)
	globalWrite  = regexp.MustCompile(`\bstatic\s+mut\b|\bglobal\s+\w|\bnonlocal\s+\w`)
	localWrite   = regexp.MustCompile(`\blet\s+mut\b|\w\s*(?:[-+*/%|&^]|<<|>>)=[^=]|\+\+|--`)
	memberRead   = regexp.MustCompile(`\b(?:self|this)\s*\.\s*\w`)
	ioCalls      = map[string]bool{"print": true, "println": true, "eprintln": true, "eprint": true, "printf": true, "fprintf": true, "puts": true, "write": true, "writeln": true, "log": true, "info": true, "warn": true, "error": true, "debug": true, "Println": true, "Printf": true, "Print": true, "Fprintf": true, "open": true, "send": true, "exit": true}
	mutatorCalls = map[string]bool{"push": true, "push_str": true, "insert": true, "remove": true, "append": true, "extend": true, "pop": true, "clear": true, "sort": true, "add": true, "put": true, "set": true, "delete": true}
)

// interpret runs the transfer functions of every domain over the body of fn.
func interpret(a *ast.Arena, fn ast.NodeKey, text string) State {
	st := State{Nullability: NullBottom, Alias: AliasBottom, Purity: Pure}
	lang := a.Get(fn).Language
	var loops []ast.NodeKey
	refParams := 0
	sawNull := false

	for k := range a.Subtree(fn) {
		n := a.Get(k)
		if n.Kind == ast.ExprLiteral && nullWords[n.Name] {
			sawNull = true
		}
		if a.EnclosingFunction(k) != fn {
			continue
		}
		switch {
		case n.Kind == ast.StmtReturn:
			st.Nullability = st.Nullability.Join(returnValue(a, k))
		case n.Kind.IsLoop():
			loops = append(loops, k)
		case n.Kind == ast.VarParameter:
			if isReference(lang, a.Text(k)) {
				refParams++
			}
		case n.Kind == ast.ExprCall:
			st.Purity = st.Purity.Join(callEffect(n.Name))
		case n.Kind == ast.ExprMember:
			st.Purity = st.Purity.Join(ReadOnly)
		}
	}

	switch {
	case st.Nullability == NullBottom && sawNull:
		st.Nullability = MaybeNull
	case st.Nullability == NullBottom:
		st.Nullability = NotNull
	case st.Nullability == NotNull && sawNull:
		st.Nullability = MaybeNull
	}
	if optionalSig.MatchString(signature(text)) {
		st.Nullability = st.Nullability.Join(MaybeNull)
	}

	if len(loops) == 0 {
		st.Bounds = Exact(0, 0)
	} else {
		st.Bounds = loopInterval(a, loops[0])
		for _, l := range loops[1:] {
			st.Bounds = st.Bounds.Join(loopInterval(a, l))
		}
	}

	st.Alias = NoAlias
	if refParams > 1 {
		st.Alias = MayAlias
	}

	switch {
	case memberWrite.MatchString(text) || globalWrite.MatchString(text):
		st.Purity = st.Purity.Join(WriteGlobal)
	case localWrite.MatchString(body(text)):
		st.Purity = st.Purity.Join(WriteLocal)
	case memberRead.MatchString(text):
		st.Purity = st.Purity.Join(ReadOnly)
	}
	return st
}

// returnValue evaluates the value of a return statement.
func returnValue(a *ast.Arena, ret ast.NodeKey) Nullability {
	for c := range a.Children(ret) {
		n := a.Get(c)
		switch n.Kind {
		case ast.ExprLiteral:
			if nullWords[n.Name] {
				return Null
			}
			return NotNull
		case ast.ExprConditional:
			for k := range a.Subtree(c) {
				if m := a.Get(k); m.Kind == ast.ExprLiteral && nullWords[m.Name] {
					return MaybeNull
				}
			}
			return NotNull
		}
		if n.Kind.Is(ast.CatExpression) {
			return NotNull
		}
	}
	return NotNull
}

func callEffect(name string) Purity {
	switch {
	case ioCalls[strings.TrimSuffix(name, "!")]:
		return WriteGlobal
	case mutatorCalls[name]:
		return WriteLocal
	default:
		return ReadOnly
	}
}

// loopInterval approximates the range of a loop's induction variable. The
// header's integer literals give the entry interval; one abstract
// iteration steps it in the direction of the body's updates and widening
// drops the side that moved unless the loop condition guards it.
func loopInterval(a *ast.Arena, loop ast.NodeKey) Interval {
	text := a.Text(loop)
	header := signature(text)
	var ints []int64
	for _, m := range intLiteral.FindAllString(header, -1) {
		if v, err := strconv.ParseInt(m, 10, 64); err == nil {
			ints = append(ints, v)
		}
	}

	entry := Unbounded()
	switch {
	case len(ints) >= 2:
		entry = Exact(slices.Min(ints), slices.Max(ints))
	case len(ints) == 1 && strings.Contains(header, "range("):
		entry = Exact(0, ints[0])
	case len(ints) == 1 && guardUpper.MatchString(header):
		hi := ints[0]
		entry = Interval{Upper: &hi}
	case len(ints) == 1:
		lo := ints[0]
		entry = Interval{Lower: &lo}
	case a.Get(loop).Kind == ast.StmtForEach:
		var zero int64
		entry = Interval{Lower: &zero}
	}

	if a.Get(loop).Kind == ast.StmtForEach {
		return entry
	}
	next := entry
	rest := strings.TrimPrefix(text, header)
	switch {
	case stepUp.MatchString(header) || stepUp.MatchString(rest):
		next = shift(entry, 1)
	case stepDown.MatchString(header) || stepDown.MatchString(rest):
		next = shift(entry, -1)
	}
	out := entry.Widen(next)
	if entry.Upper != nil && out.Upper == nil && guardUpper.MatchString(header) {
		out.Upper = entry.Upper
	}
	if entry.Lower != nil && out.Lower == nil && guardLower.MatchString(header) {
		out.Lower = entry.Lower
	}
	return out
}

func shift(i Interval, d int64) Interval {
	var out Interval
	if i.Lower != nil {
		v := *i.Lower + d
		out.Lower = &v
	}
	if i.Upper != nil {
		v := *i.Upper + d
		out.Upper = &v
	}
	return out
}

// isReference reports whether a parameter can share mutable state with
// another one.
func isReference(lang parser.Language, param string) bool {
	param = strings.TrimSpace(param)
	switch lang {
	case parser.LangRust:
		return strings.Contains(param, "&mut")
	case parser.LangC, parser.LangCPP:
		return strings.ContainsAny(param, "*&")
	case parser.LangGo:
		_, typ, _ := strings.Cut(param, " ")
		typ = strings.TrimSpace(typ)
		return strings.HasPrefix(typ, "*") || strings.HasPrefix(typ, "[]") || strings.HasPrefix(typ, "map[")
	default:
		name := strings.TrimLeft(param, "*&")
		if i := strings.IndexAny(name, ":= "); i >= 0 {
			name = name[:i]
		}
		return name != "" && name != "self" && name != "this" && name != "cls"
	}
}

// signature is the text before the first body delimiter.
func signature(text string) string {
	end := -1
	for _, i := range []int{strings.IndexByte(text, '{'), strings.Index(text, ":\n")} {
		if i >= 0 && (end < 0 || i < end) {
			end = i
		}
	}
	if end < 0 {
		line, _, _ := strings.Cut(text, "\n")
		return line
	}
	return text[:end]
}

func body(text string) string {
	return strings.TrimPrefix(text, signature(text))
}

