package refactor

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"

	"pmat/internal/complexity"
	"pmat/internal/config"
	"pmat/internal/deadcode"
	"pmat/internal/satd"
)

// MaxNesting is the control-flow depth above which a function is planned
// for flattening.
const MaxNesting = 4

var poorName = regexp.MustCompile(`^(?i:tmp|temp|foo|bar|baz|stuff|thing|data\d*|func\d+|do_?it|process\d*)$`)

// shortNames are conventional and not flagged.
var shortNames = map[string]bool{"id": true, "ok": true, "io": true, "os": true, "fn": true, "db": true, "ip": true}

// Findings are the per-file analyses planning reads.
type Findings struct {
	Path       string
	Complexity complexity.FileMetrics
	SATD       []satd.TechnicalDebt
	Dead       []deadcode.DeadCodeItem
}

// Plan lists the violations of one file, most severe first.
func Plan(f Findings, cfg config.RefactorConfig) []Violation {
	var out []Violation
	for _, fn := range f.Complexity.AllFunctions() {
		out = append(out, functionViolations(f.Path, fn, cfg)...)
	}
	for _, it := range f.SATD {
		op := Op{
			Kind:  OpRemoveSATD,
			File:  f.Path,
			Start: Position{Line: it.Line, Column: it.Column},
			End:   Position{Line: it.Line, Column: it.Column},
			Fix:   satdFix(it.Severity),
		}
		out = append(out, Violation{
			Type:        SelfAdmittedTechDebt,
			File:        f.Path,
			Line:        it.Line,
			Severity:    fromSATD(it.Severity),
			Description: fmt.Sprintf("%s debt: %s", it.Category, it.Text),
			Fix:         &op,
		})
	}
	for _, it := range f.Dead {
		sev := SeverityMedium
		if it.Confidence >= 0.9 {
			sev = SeverityHigh
		}
		out = append(out, Violation{
			Type:        DeadCode,
			File:        f.Path,
			Line:        it.LineNumber,
			EndLine:     it.LineEnd,
			Function:    it.SymbolName,
			Severity:    sev,
			Description: fmt.Sprintf("%s %s is unreachable: %s", it.Kind, it.SymbolName, it.Reason),
		})
	}
	slices.SortStableFunc(out, func(a, b Violation) int {
		if c := cmp.Compare(b.Severity.rank(), a.Severity.rank()); c != 0 {
			return c
		}
		return cmp.Compare(a.Line, b.Line)
	})
	return out
}

func functionViolations(path string, fn complexity.FunctionComplexity, cfg config.RefactorConfig) []Violation {
	var out []Violation
	m := fn.Metrics
	span := func(op Op) *Op {
		op.File = path
		op.Function = fn.Name
		op.Start = Position{Line: fn.StartLine, Column: 1}
		op.End = Position{Line: fn.EndLine, Column: 1}
		return &op
	}

	cycErr := cfg.CyclomaticError > 0 && m.Cyclomatic > cfg.CyclomaticError
	cogErr := cfg.CognitiveError > 0 && m.Cognitive > cfg.CognitiveError
	cycWarn := cfg.CyclomaticWarn > 0 && m.Cyclomatic > cfg.CyclomaticWarn
	cogWarn := cfg.CognitiveWarn > 0 && m.Cognitive > cfg.CognitiveWarn
	if cycErr || cogErr || cycWarn || cogWarn {
		sev := SeverityMedium
		switch {
		case cfg.CyclomaticError > 0 && m.Cyclomatic >= 2*cfg.CyclomaticError:
			sev = SeverityCritical
		case cycErr || cogErr:
			sev = SeverityHigh
		}
		out = append(out, Violation{
			Type:     HighComplexity,
			File:     path,
			Line:     fn.StartLine,
			EndLine:  fn.EndLine,
			Function: fn.Name,
			Severity: sev,
			Description: fmt.Sprintf("%s has cyclomatic %d and cognitive %d (limits %d/%d)",
				fn.Name, m.Cyclomatic, m.Cognitive, cfg.CyclomaticError, cfg.CognitiveError),
			Fix: span(Op{
				Kind:        OpExtractFunction,
				Name:        fn.Name + "_helper",
				Improvement: float64(max(m.Cyclomatic-cfg.TargetComplexity, 1)),
			}),
		})
	}

	if m.NestingMax > MaxNesting {
		sev := SeverityMedium
		if m.NestingMax > MaxNesting+2 {
			sev = SeverityHigh
		}
		out = append(out, Violation{
			Type:        DeepNesting,
			File:        path,
			Line:        fn.StartLine,
			EndLine:     fn.EndLine,
			Function:    fn.Name,
			Severity:    sev,
			Description: fmt.Sprintf("%s nests %d levels deep (max %d)", fn.Name, m.NestingMax, MaxNesting),
			Fix: span(Op{
				Kind:        OpFlattenNesting,
				Strategy:    EarlyReturn,
				Improvement: float64(m.NestingMax - MaxNesting),
			}),
		})
	}

	if cfg.MaxFunctionLines > 0 && m.Lines > cfg.MaxFunctionLines {
		sev := SeverityLow
		if m.Lines > 2*cfg.MaxFunctionLines {
			sev = SeverityMedium
		}
		out = append(out, Violation{
			Type:        LongFunction,
			File:        path,
			Line:        fn.StartLine,
			EndLine:     fn.EndLine,
			Function:    fn.Name,
			Severity:    sev,
			Description: fmt.Sprintf("%s spans %d lines (max %d)", fn.Name, m.Lines, cfg.MaxFunctionLines),
			Fix:         span(Op{Kind: OpExtractFunction, Name: fn.Name + "_part"}),
		})
	}

	if isPoorName(fn.Name) {
		out = append(out, Violation{
			Type:        PoorNaming,
			File:        path,
			Line:        fn.StartLine,
			Function:    fn.Name,
			Severity:    SeverityLow,
			Description: fmt.Sprintf("%q does not describe what the function does", fn.Name),
		})
	}
	return out
}

func isPoorName(name string) bool {
	if name == "" || name == "<anonymous>" || name == "_" {
		return false
	}
	if len(name) <= 2 {
		return !shortNames[name]
	}
	return poorName.MatchString(name)
}

func fromSATD(s satd.Severity) Severity {
	switch s {
	case satd.SeverityCritical:
		return SeverityCritical
	case satd.SeverityHigh:
		return SeverityHigh
	case satd.SeverityMedium:
		return SeverityMedium
	}
	return SeverityLow
}

func satdFix(s satd.Severity) SATDFix {
	switch s {
	case satd.SeverityCritical, satd.SeverityHigh:
		return FixImplement
	case satd.SeverityMedium:
		return FixReplace
	}
	return FixRemove
}

// Op returns the suggested fix, or a default operation for the type.
func (v Violation) Op() Op {
	if v.Fix != nil {
		return *v.Fix
	}
	op := Op{
		File:     v.File,
		Function: v.Function,
		Start:    Position{Line: v.Line, Column: 1},
		End:      Position{Line: max(v.EndLine, v.Line), Column: 1},
	}
	switch v.Type {
	case HighComplexity:
		op.Kind = OpExtractFunction
		op.Name = "extracted_function"
	case DeepNesting:
		op.Kind = OpFlattenNesting
		op.Strategy = EarlyReturn
	case SelfAdmittedTechDebt:
		op.Kind = OpRemoveSATD
		op.Fix = FixRemove
	default:
		op.Kind = OpSimplifyExpression
	}
	return op
}

// flags maps violations to DefectPayload severity flags.
func flags(vs []Violation) uint8 {
	var f uint8
	for _, v := range vs {
		switch v.Type {
		case HighComplexity:
			f |= FlagComplexity
		case DeepNesting:
			f |= FlagNesting
		case LongFunction:
			f |= FlagLength
		case SelfAdmittedTechDebt:
			f |= FlagSATD
		case DeadCode:
			f |= FlagDeadCode
		}
	}
	return f
}
