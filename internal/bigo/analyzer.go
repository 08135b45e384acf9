package bigo

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"pmat/internal/ast"
)

const patternNote = "Pattern: "

// FunctionResult is the estimate for one function.
type FunctionResult struct {
	FilePath        string   `json:"file_path"`
	FunctionName    string   `json:"function_name"`
	LineNumber      int      `json:"line_number"`
	TimeComplexity  Bound    `json:"time_complexity"`
	SpaceComplexity Bound    `json:"space_complexity"`
	Confidence      uint8    `json:"confidence"`
	Notes           []string `json:"notes"`
}

// Distribution counts functions per time class. Factorial folds into exponential.
type Distribution struct {
	Constant     int `json:"constant"`
	Logarithmic  int `json:"logarithmic"`
	Linear       int `json:"linear"`
	Linearithmic int `json:"linearithmic"`
	Quadratic    int `json:"quadratic"`
	Cubic        int `json:"cubic"`
	Exponential  int `json:"exponential"`
	Unknown      int `json:"unknown"`
}

func (d *Distribution) add(c Class) {
	switch c {
	case Constant:
		d.Constant++
	case Logarithmic:
		d.Logarithmic++
	case Linear:
		d.Linear++
	case Linearithmic:
		d.Linearithmic++
	case Quadratic:
		d.Quadratic++
	case Cubic:
		d.Cubic++
	case Exponential, Factorial:
		d.Exponential++
	default:
		d.Unknown++
	}
}

// PatternMatch counts occurrences of one named pattern.
type PatternMatch struct {
	PatternName       string `json:"pattern_name"`
	Occurrences       int    `json:"occurrences"`
	TypicalComplexity Class  `json:"typical_complexity"`
}

// Report is the project-wide big-O analysis.
type Report struct {
	AnalyzedFunctions       int              `json:"analyzed_functions"`
	Distribution            Distribution     `json:"complexity_distribution"`
	HighComplexityFunctions []FunctionResult `json:"high_complexity_functions"`
	PatternMatches          []PatternMatch   `json:"pattern_matches"`
	Recommendations         []string         `json:"recommendations"`
}

// Analyzer estimates bounds for every function in an arena.
type Analyzer struct {
	matcher *Matcher
	logger  *slog.Logger
	// ConfidenceThreshold drops functions whose combined confidence is lower.
	ConfidenceThreshold uint8
}

// NewAnalyzer creates an analyzer with the built-in patterns.
func NewAnalyzer(logger *slog.Logger) *Analyzer {
	return &Analyzer{matcher: NewMatcher(), logger: logger}
}

// Matcher exposes the pattern set for extension.
func (an *Analyzer) Matcher() *Matcher { return an.matcher }

// Function estimates time and space bounds of the function at key.
func (an *Analyzer) Function(a *ast.Arena, key ast.NodeKey) FunctionResult {
	n := a.Get(key)
	res := FunctionResult{FunctionName: n.Name, LineNumber: n.StartLine, Notes: []string{}}
	if f := a.FileOf(key); f != nil {
		res.FilePath = f.Path
	}
	fs := scan(a, key)

	time := timeBound(a, fs, &res.Notes)
	if fs.sortCalls > 0 {
		res.Notes = append(res.Notes, patternNote+"Sorting operation")
		if time.Class.Better(Linearithmic) {
			time = LinearithmicBound().WithConfidence(70)
		}
	}
	if fs.binaryCalls > 0 && time.Class.Better(Logarithmic) {
		time = LogarithmicBound().WithConfidence(80)
	}
	if p, ok := an.matcher.Match(a, key); ok {
		res.Notes = append(res.Notes, patternNote+p.Name)
		if p.Type == DivideAndConquer && !time.Flags.Has(Proven) {
			time = p.Bound
		}
	}

	space := ConstantBound().WithConfidence(90)
	if fs.allocates {
		space = LinearBound().WithConfidence(70)
		res.Notes = append(res.Notes, "Dynamic memory allocation detected")
	}

	res.TimeComplexity = time
	res.SpaceComplexity = space
	res.Confidence = uint8((int(time.Confidence) + int(space.Confidence)) / 2)
	return res
}

func timeBound(a *ast.Arena, fs facts, notes *[]string) Bound {
	if len(fs.selfCalls) == 0 {
		switch fs.loopDepth {
		case 0:
			return ConstantBound().WithConfidence(90)
		case 1:
			return LinearBound().WithConfidence(80)
		case 2:
			return QuadraticBound().WithConfidence(75)
		case 3:
			return Polynomial(3, 1).WithConfidence(70)
		default:
			return Polynomial(uint32(fs.loopDepth), 1).WithConfidence(60)
		}
	}

	*notes = append(*notes, "Recursive function detected")
	if r, ok := recurrence(a, fs); ok {
		if b, ok := r.SolveMaster(); ok {
			*notes = append(*notes, fmt.Sprintf("Recurrence T(n) = %d·T(n/%d) + %s",
				r.Calls[0].Count, r.Calls[0].DivisionFactor, r.Work.Class.Notation()))
			return b
		}
	}
	switch {
	case len(fs.selfCalls) >= 2:
		return New(Exponential, 1, VarN).WithConfidence(60).WithFlags(Recursive)
	case fs.loopDepth == 0 && fs.loopedSelf == 0:
		return LinearBound().WithConfidence(60).WithFlags(Recursive)
	default:
		return UnknownBound().WithFlags(Recursive)
	}
}

// Analyze estimates every function in the arena and builds the report.
func (an *Analyzer) Analyze(a *ast.Arena) Report {
	var results []FunctionResult
	for _, k := range a.Functions() {
		res := an.Function(a, k)
		if res.Confidence < an.ConfidenceThreshold {
			continue
		}
		results = append(results, res)
	}
	if an.logger != nil {
		an.logger.Debug("big-o analysis complete", "functions", len(results))
	}
	return BuildReport(results, an.matcher)
}

// BuildReport aggregates function results.
func BuildReport(results []FunctionResult, m *Matcher) Report {
	r := Report{
		AnalyzedFunctions:       len(results),
		HighComplexityFunctions: []FunctionResult{},
		PatternMatches:          []PatternMatch{},
		Recommendations:         []string{},
	}
	typical := map[string]Class{"Sorting operation": Linearithmic}
	if m != nil {
		for _, p := range m.Patterns() {
			typical[p.Name] = p.Bound.Class
		}
	}

	counts := map[string]int{}
	for _, f := range results {
		r.Distribution.add(f.TimeComplexity.Class)
		if f.TimeComplexity.Class >= Quadratic && f.TimeComplexity.Class != Unknown {
			r.HighComplexityFunctions = append(r.HighComplexityFunctions, f)
		}
		for _, note := range f.Notes {
			if name, ok := strings.CutPrefix(note, patternNote); ok {
				counts[name]++
			}
		}
	}
	slices.SortStableFunc(r.HighComplexityFunctions, func(x, y FunctionResult) int {
		return cmp.Compare(x.TimeComplexity.Class, y.TimeComplexity.Class)
	})
	for name, n := range counts {
		c, ok := typical[name]
		if !ok {
			c = Linear
		}
		r.PatternMatches = append(r.PatternMatches, PatternMatch{PatternName: name, Occurrences: n, TypicalComplexity: c})
	}
	slices.SortFunc(r.PatternMatches, func(x, y PatternMatch) int { return strings.Compare(x.PatternName, y.PatternName) })

	d := r.Distribution
	if d.Quadratic > 0 {
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("Found %d functions with O(n²) complexity. Consider optimization.", d.Quadratic))
	}
	if d.Exponential > 0 {
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("Found %d functions with exponential complexity! These need immediate attention.", d.Exponential))
	}
	if d.Unknown > len(results)/4 {
		r.Recommendations = append(r.Recommendations,
			"Many functions have unknown complexity. Consider adding more explicit patterns.")
	}
	return r
}
