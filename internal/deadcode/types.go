// Package deadcode finds declarations that no entry point can reach through
// the project's call, use and dispatch relations.
package deadcode

// DeadCodeCategory classifies why code is considered dead.
type DeadCodeCategory string

const (
	// CategoryZeroRefs means no references found at all.
	CategoryZeroRefs DeadCodeCategory = "zero_refs"

	// CategorySelfOnly means only referenced by itself (recursive but never called).
	CategorySelfOnly DeadCodeCategory = "self_only"

	// CategoryUnreachable means referenced, but only from other dead code.
	CategoryUnreachable DeadCodeCategory = "unreachable"

	// CategoryTestOnly means only reachable from tests.
	CategoryTestOnly DeadCodeCategory = "test_only"
)

// SARIF rule ids reported for dead code.
const (
	RuleDeadCode    = "dead-code"
	RuleUnreachable = "unreachable-function"
)

// Rule describes one reporting rule.
type Rule struct {
	ID          string
	Name        string
	Description string
}

// Rules lists the rules results refer to.
func Rules() []Rule {
	return []Rule{
		{ID: RuleDeadCode, Name: "DeadCode", Description: "Declaration is never referenced by reachable code"},
		{ID: RuleUnreachable, Name: "UnreachableFunction", Description: "Declaration is referenced only from dead code"},
	}
}

// RuleID returns the rule an item is reported under.
func (it DeadCodeItem) RuleID() string {
	if it.Category == CategoryUnreachable {
		return RuleUnreachable
	}
	return RuleDeadCode
}

// DeadCodeItem represents a single piece of dead code found.
type DeadCodeItem struct {
	// SymbolID is the dependency-graph node id.
	SymbolID string `json:"symbol_id"`

	// SymbolName is the human-readable name.
	SymbolName string `json:"symbol_name"`

	// Kind is the symbol kind (function, method, class, trait, interface).
	Kind string `json:"kind"`

	// FilePath is relative to the project root.
	FilePath string `json:"file_path"`

	// LineNumber is where the symbol is defined.
	LineNumber int `json:"line_number"`

	// LineEnd is the end line of the symbol definition.
	LineEnd int `json:"line_end,omitempty"`

	// Confidence is how certain we are this is dead (0.0 - 1.0).
	Confidence float64 `json:"confidence"`

	// Reason explains why this is considered dead.
	Reason string `json:"reason"`

	// Category classifies the type of dead code.
	Category DeadCodeCategory `json:"category"`

	// ReferenceCount is the number of incoming references.
	ReferenceCount int `json:"reference_count"`

	// TestReferences counts references from test files.
	TestReferences int `json:"test_references,omitempty"`

	// SelfReferences counts self-references.
	SelfReferences int `json:"self_references,omitempty"`

	// SourceSnippet is the first line of the declaration.
	SourceSnippet string `json:"source_snippet,omitempty"`

	// Exported indicates if the symbol is exported/public.
	Exported bool `json:"exported"`
}

// Lines returns the inclusive line span of the item.
func (it DeadCodeItem) Lines() int {
	if it.LineEnd < it.LineNumber {
		return 1
	}
	return it.LineEnd - it.LineNumber + 1
}

// FileStats aggregates dead code per file.
type FileStats struct {
	Path       string  `json:"path"`
	DeadItems  int     `json:"dead_items"`
	DeadLines  int     `json:"dead_lines"`
	TotalLines int     `json:"total_lines"`
	Ratio      float64 `json:"dead_ratio"`
}

// DeadCodeSummary provides aggregate statistics.
type DeadCodeSummary struct {
	// TotalSymbols is all symbols analyzed.
	TotalSymbols int `json:"total_symbols"`

	// DeadCount is definitely dead symbols (confidence >= 0.9).
	DeadCount int `json:"dead_count"`

	// SuspiciousCount is possibly dead symbols.
	SuspiciousCount int `json:"suspicious_count"`

	// ByKind breaks down dead code by symbol kind.
	ByKind map[string]int `json:"by_kind"`

	// ByCategory breaks down dead code by category.
	ByCategory map[string]int `json:"by_category"`

	// DeadLines is the number of lines covered by reported items.
	DeadLines int `json:"dead_lines"`

	// TotalLines is the number of analyzed source lines.
	TotalLines int `json:"total_lines"`

	// DeadCodeRatio is DeadLines over TotalLines.
	DeadCodeRatio float64 `json:"dead_code_ratio"`
}

// ReferenceStats categorizes references to a symbol.
type ReferenceStats struct {
	// Total is all references found.
	Total int

	// FromTests is references from test files.
	FromTests int

	// FromSelf is self-references (same symbol).
	FromSelf int

	// FromLive is references from reachable code.
	FromLive int
}

// AnalyzerOptions configures the dead code analyzer.
type AnalyzerOptions struct {
	// Scope limits reporting to files under these path prefixes.
	Scope []string

	// IncludeExported reports exported symbols; when false they are
	// treated as entry points (default: true).
	IncludeExported bool

	// MinConfidence filters results below this threshold (default: 0.7).
	MinConfidence float64

	// ExcludePatterns are doublestar globs over file paths and names.
	ExcludePatterns []string

	// ExcludeTestOnly doesn't report test-only code as dead (default: true).
	ExcludeTestOnly bool

	// Limit is max results to return (default: 100, 0 for no limit).
	Limit int

	// IncludeSource includes source code snippets.
	IncludeSource bool
}

// DefaultOptions returns sensible default options.
func DefaultOptions() AnalyzerOptions {
	return AnalyzerOptions{
		IncludeExported: true,
		MinConfidence:   0.7,
		ExcludeTestOnly: true,
		Limit:           100,
		IncludeSource:   false,
	}
}

// Result is the output of dead code analysis.
type Result struct {
	// DeadCode is the list of dead code items found.
	DeadCode []DeadCodeItem `json:"dead_code"`

	// Files ranks files by dead lines.
	Files []FileStats `json:"files"`

	// Summary provides aggregate statistics.
	Summary DeadCodeSummary `json:"summary"`

	// Scope that was analyzed.
	Scope []string `json:"scope,omitempty"`
}
