// Package refactor drives the refactoring state machine: it walks target
// files, plans violations against configured thresholds and emits
// suggested operations as patches. It never rewrites files.
package refactor

import "time"

// Kind names a machine state.
type Kind string

const (
	KindScan       Kind = "scan"
	KindAnalyze    Kind = "analyze"
	KindPlan       Kind = "plan"
	KindRefactor   Kind = "refactor"
	KindTest       Kind = "test"
	KindLint       Kind = "lint"
	KindEmit       Kind = "emit"
	KindCheckpoint Kind = "checkpoint"
	KindComplete   Kind = "complete"
)

// DefaultTestCommand is recorded in the Test state.
const DefaultTestCommand = "make test-fast"

// CheckpointCycleComplete is the reason recorded after each target.
const CheckpointCycleComplete = "cycle_complete"

// FileID identifies a target by path and content hash.
type FileID struct {
	Path string `json:"path"`
	Hash uint64 `json:"hash"`
}

// State is one machine state. Only the fields of its Kind are set.
type State struct {
	Kind       Kind           `json:"kind"`
	Targets    []string       `json:"targets,omitempty"`
	Current    *FileID        `json:"current,omitempty"`
	Violations []Violation    `json:"violations,omitempty"`
	Operation  *Op            `json:"operation,omitempty"`
	Command    string         `json:"command,omitempty"`
	Strict     bool           `json:"strict,omitempty"`
	Payload    *DefectPayload `json:"payload,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Summary    *Summary       `json:"summary,omitempty"`
}

// Position is a location inside a file.
type Position struct {
	Byte   int `json:"byte"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

// OpKind names a refactoring operation.
type OpKind string

const (
	OpExtractFunction    OpKind = "extract-function"
	OpFlattenNesting     OpKind = "flatten-nesting"
	OpReplaceHashMap     OpKind = "replace-hashmap"
	OpRemoveSATD         OpKind = "remove-satd"
	OpSimplifyExpression OpKind = "simplify-expression"
)

// NestingStrategy is how FlattenNesting reduces depth.
type NestingStrategy string

const (
	EarlyReturn      NestingStrategy = "early-return"
	ExtractCondition NestingStrategy = "extract-condition"
	GuardClause      NestingStrategy = "guard-clause"
	StreamChain      NestingStrategy = "stream-chain"
)

// SATDFix is how RemoveSATD resolves a debt comment.
type SATDFix string

const (
	FixRemove    SATDFix = "remove"
	FixReplace   SATDFix = "replace"
	FixImplement SATDFix = "implement"
)

// Op is a suggested refactoring. Kind selects which fields apply.
type Op struct {
	Kind     OpKind          `json:"kind"`
	File     string          `json:"file"`
	Function string          `json:"function,omitempty"`
	Name     string          `json:"name,omitempty"`
	Start    Position        `json:"start"`
	End      Position        `json:"end"`
	Params   []string        `json:"params,omitempty"`
	Strategy NestingStrategy `json:"strategy,omitempty"`
	Fix      SATDFix         `json:"fix,omitempty"`
	// Improvement is the expected cyclomatic reduction.
	Improvement float64 `json:"estimated_improvement"`
}

// ViolationType classifies a planned violation.
type ViolationType string

const (
	HighComplexity       ViolationType = "high-complexity"
	DeepNesting          ViolationType = "deep-nesting"
	LongFunction         ViolationType = "long-function"
	SelfAdmittedTechDebt ViolationType = "self-admitted-tech-debt"
	DeadCode             ViolationType = "dead-code"
	PoorNaming           ViolationType = "poor-naming"
)

// Severity ranks violations.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	}
	return 0
}

// Violation is one planned finding in the current target.
type Violation struct {
	Type        ViolationType `json:"type"`
	File        string        `json:"file"`
	Line        int           `json:"line"`
	EndLine     int           `json:"end_line,omitempty"`
	Function    string        `json:"function,omitempty"`
	Severity    Severity      `json:"severity"`
	Description string        `json:"description"`
	Fix         *Op           `json:"suggested_fix,omitempty"`
}

// Metrics is a snapshot of the current target.
type Metrics struct {
	MaxCyclomatic int     `json:"max_cyclomatic"`
	MaxCognitive  int     `json:"max_cognitive"`
	Functions     int     `json:"functions"`
	TDG           float64 `json:"tdg"`
	SATD          int     `json:"satd"`
	DeadSymbols   int     `json:"dead_symbols"`
}

// Severity flags set in DefectPayload.
const (
	FlagComplexity uint8 = 1 << iota
	FlagNesting
	FlagLength
	FlagSATD
	FlagDeadCode
)

// DefectPayload is emitted once per refactored target.
type DefectPayload struct {
	FileHash             uint64    `json:"file_hash"`
	TDG                  float64   `json:"tdg_score"`
	Complexity           [2]int    `json:"complexity"`
	DeadSymbols          int       `json:"dead_symbols"`
	Timestamp            time.Time `json:"timestamp"`
	SeverityFlags        uint8     `json:"severity_flags"`
	RefactorAvailable    bool      `json:"refactor_available"`
	RefactorType         OpKind    `json:"refactor_type,omitempty"`
	EstimatedImprovement float64   `json:"estimated_improvement"`
}

// Transition records one step of the machine.
type Transition struct {
	From      Kind      `json:"from"`
	To        Kind      `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Before    *Metrics  `json:"metrics_before,omitempty"`
	After     *Metrics  `json:"metrics_after,omitempty"`
	Applied   *Op       `json:"applied_refactor,omitempty"`
}

// Summary is carried by the Complete state.
type Summary struct {
	FilesProcessed      int           `json:"files_processed"`
	RefactorsPlanned    int           `json:"refactors_planned"`
	ComplexityReduction float64       `json:"complexity_reduction"`
	SATDAddressed       int           `json:"satd_addressed"`
	TotalTime           time.Duration `json:"total_time"`
}
