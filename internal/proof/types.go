// Package proof collects machine-readable proof annotations from several
// independent sources in parallel and merges them deterministically.
package proof

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Property is the verified property of an annotation.
type Property string

const (
	MemorySafety          Property = "memory-safety"
	ThreadSafety          Property = "thread-safety"
	DataRaceFreedom       Property = "data-race-freedom"
	NullSafety            Property = "null-safety"
	BoundsCheck           Property = "bounds-check"
	NoAliasing            Property = "no-aliasing"
	Purity                Property = "purity"
	Termination           Property = "termination"
	FunctionalCorrectness Property = "functional-correctness"
	ResourceBounds        Property = "resource-bounds"
)

// MethodKind is the verification technique.
type MethodKind string

const (
	FormalProof            MethodKind = "formal-proof"
	ModelChecking          MethodKind = "model-checking"
	StaticAnalysis         MethodKind = "static-analysis"
	AbstractInterpretation MethodKind = "abstract-interpretation"
	BorrowChecker          MethodKind = "borrow-checker"
)

// Method describes how a property was established.
type Method struct {
	Kind MethodKind `json:"kind" yaml:"kind"`
	// Bounded applies to model checking only.
	Bounded bool `json:"bounded,omitempty" yaml:"bounded,omitempty"`
	// Tool names the prover or analyzer, when relevant.
	Tool string `json:"tool,omitempty" yaml:"tool,omitempty"`
}

// Rank orders methods by strength for conflict resolution.
func (m Method) Rank() int {
	switch m.Kind {
	case FormalProof:
		return 4
	case ModelChecking:
		if m.Bounded {
			return 2
		}
		return 3
	case StaticAnalysis, AbstractInterpretation:
		return 2
	case BorrowChecker:
		return 1
	default:
		return 0
	}
}

// Confidence is ordered Low < Medium < High.
type Confidence int

const (
	Low Confidence = iota + 1
	Medium
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// ParseConfidence accepts low, medium or high.
func ParseConfidence(s string) (Confidence, error) {
	switch s {
	case "low", "Low":
		return Low, nil
	case "medium", "Medium":
		return Medium, nil
	case "high", "High":
		return High, nil
	}
	return 0, fmt.Errorf("unknown confidence %q", s)
}

func (c Confidence) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Confidence) UnmarshalText(b []byte) error {
	v, err := ParseConfidence(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// EvidenceType describes what backs an annotation.
type EvidenceType string

const (
	ImplicitTypeSystemGuarantee EvidenceType = "implicit-type-system-guarantee"
	ProofScriptReference        EvidenceType = "proof-script-reference"
	TheoremName                 EvidenceType = "theorem-name"
	StaticAnalysisReport        EvidenceType = "static-analysis-report"
	CertificateHash             EvidenceType = "certificate-hash"
)

// Location identifies the annotated source span.
type Location struct {
	FilePath  string `json:"file_path" yaml:"file_path"`
	StartLine int    `json:"start_line" yaml:"start_line"`
	EndLine   int    `json:"end_line" yaml:"end_line"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d-%d", l.FilePath, l.StartLine, l.EndLine)
}

// Less orders locations by path then span.
func (l Location) Less(o Location) bool {
	if l.FilePath != o.FilePath {
		return l.FilePath < o.FilePath
	}
	if l.StartLine != o.StartLine {
		return l.StartLine < o.StartLine
	}
	return l.EndLine < o.EndLine
}

// Annotation records one verified property.
type Annotation struct {
	ID               uuid.UUID    `json:"annotation_id" yaml:"annotation_id"`
	Property         Property     `json:"property_proven" yaml:"property_proven"`
	SpecificationID  string       `json:"specification_id,omitempty" yaml:"specification_id,omitempty"`
	Method           Method       `json:"method" yaml:"method"`
	ToolName         string       `json:"tool_name" yaml:"tool_name"`
	ToolVersion      string       `json:"tool_version" yaml:"tool_version"`
	Confidence       Confidence   `json:"confidence_level" yaml:"confidence_level"`
	Assumptions      []string     `json:"assumptions" yaml:"assumptions"`
	EvidenceType     EvidenceType `json:"evidence_type" yaml:"evidence_type"`
	EvidenceLocation string       `json:"evidence_location,omitempty" yaml:"evidence_location,omitempty"`
	DateVerified     time.Time    `json:"date_verified" yaml:"date_verified"`
}

// New returns an annotation with a fresh ID and the current time.
func New(property Property, method Method, tool, version string, confidence Confidence, assumptions ...string) Annotation {
	if assumptions == nil {
		assumptions = []string{}
	}
	return Annotation{
		ID:           uuid.New(),
		Property:     property,
		Method:       method,
		ToolName:     tool,
		ToolVersion:  version,
		Confidence:   confidence,
		Assumptions:  assumptions,
		EvidenceType: ImplicitTypeSystemGuarantee,
		DateVerified: time.Now().UTC(),
	}
}

// score is compared lexicographically during merge.
type score struct {
	confidence  int
	rank        int
	assumptions int
}

func (a Annotation) score() score {
	s := score{confidence: int(a.Confidence), rank: a.Method.Rank()}
	if len(a.Assumptions) == 0 {
		s.assumptions = 1
	}
	return s
}

func (s score) greater(o score) bool {
	if s.confidence != o.confidence {
		return s.confidence > o.confidence
	}
	if s.rank != o.rank {
		return s.rank > o.rank
	}
	return s.assumptions > o.assumptions
}

// Located pairs an annotation with its location.
type Located struct {
	Location   Location   `json:"location"`
	Annotation Annotation `json:"annotation"`
}
