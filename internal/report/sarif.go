package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"pmat/internal/version"
)

// SARIF 2.1.0 document types.
// See: https://docs.oasis-open.org/sarif/sarif/v2.1.0/sarif-v2.1.0.html

const (
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"

	// InformationURI is reported as the driver's home page.
	InformationURI = "https://github.com/paiml/paiml-mcp-agent-toolkit"
)

// SARIF levels.
const (
	LevelNone    = "none"
	LevelNote    = "note"
	LevelWarning = "warning"
	LevelError   = "error"
)

// SARIFReport is the top-level SARIF log.
type SARIFReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []SARIFRun `json:"runs"`
}

// SARIFRun is one analysis run.
type SARIFRun struct {
	Tool        SARIFTool         `json:"tool"`
	Results     []SARIFResult     `json:"results"`
	Invocations []SARIFInvocation `json:"invocations,omitempty"`
}

// SARIFTool describes the analysis tool.
type SARIFTool struct {
	Driver SARIFDriver `json:"driver"`
}

// SARIFDriver describes the primary analysis component.
type SARIFDriver struct {
	Name            string      `json:"name"`
	Version         string      `json:"version,omitempty"`
	SemanticVersion string      `json:"semanticVersion,omitempty"`
	InformationURI  string      `json:"informationUri,omitempty"`
	Rules           []SARIFRule `json:"rules"`
}

// SARIFRule describes a rule results refer to.
type SARIFRule struct {
	ID                   string                  `json:"id"`
	Name                 string                  `json:"name,omitempty"`
	ShortDescription     *SARIFMessage           `json:"shortDescription,omitempty"`
	FullDescription      *SARIFMessage           `json:"fullDescription,omitempty"`
	DefaultConfiguration *SARIFRuleConfiguration `json:"defaultConfiguration,omitempty"`
	HelpURI              string                  `json:"helpUri,omitempty"`
	Properties           map[string]any          `json:"properties,omitempty"`
}

// SARIFRuleConfiguration is the default configuration for a rule.
type SARIFRuleConfiguration struct {
	Level string `json:"level,omitempty"`
}

// SARIFResult is a single finding.
type SARIFResult struct {
	RuleID       string            `json:"ruleId"`
	RuleIndex    int               `json:"ruleIndex"`
	Level        string            `json:"level"`
	Message      SARIFMessage      `json:"message"`
	Locations    []SARIFLocation   `json:"locations,omitempty"`
	Fingerprints map[string]string `json:"fingerprints,omitempty"`
	Properties   map[string]any    `json:"properties,omitempty"`
}

// SARIFMessage is plain or Markdown text.
type SARIFMessage struct {
	Text     string `json:"text,omitempty"`
	Markdown string `json:"markdown,omitempty"`
}

// SARIFLocation is where a result was found.
type SARIFLocation struct {
	PhysicalLocation *SARIFPhysicalLocation `json:"physicalLocation,omitempty"`
}

// SARIFPhysicalLocation identifies a file and region.
type SARIFPhysicalLocation struct {
	ArtifactLocation *SARIFArtifactLocation `json:"artifactLocation,omitempty"`
	Region           *SARIFRegion           `json:"region,omitempty"`
}

// SARIFArtifactLocation identifies a file.
type SARIFArtifactLocation struct {
	URI       string `json:"uri,omitempty"`
	URIBaseID string `json:"uriBaseId,omitempty"`
}

// SARIFRegion is a line range within a file.
type SARIFRegion struct {
	StartLine   int `json:"startLine,omitempty"`
	StartColumn int `json:"startColumn,omitempty"`
	EndLine     int `json:"endLine,omitempty"`
}

// SARIFInvocation describes one invocation of the tool.
type SARIFInvocation struct {
	ExecutionSuccessful bool                   `json:"executionSuccessful"`
	WorkingDirectory    *SARIFArtifactLocation `json:"workingDirectory,omitempty"`
	Machine             string                 `json:"machine,omitempty"`
}

// Rule declares a rule before findings refer to it.
type Rule struct {
	ID    string
	Name  string
	Short string
	Full  string
	Level string
	Tags  []string
}

// Finding is an analyzer result ready for SARIF.
type Finding struct {
	RuleID     string
	Level      string
	Message    string
	Path       string
	Line       int
	Column     int
	EndLine    int
	Properties map[string]any
}

// SARIF builds a single-run log. Rules keep their given order; a finding
// whose rule was not declared gets a generated rule entry appended, so
// every ruleId resolves. Paths are made relative to root when possible.
func SARIF(root string, rules []Rule, findings []Finding) *SARIFReport {
	index := map[string]int{}
	sarifRules := make([]SARIFRule, 0, len(rules))
	declare := func(r Rule) {
		if _, ok := index[r.ID]; ok {
			return
		}
		index[r.ID] = len(sarifRules)
		sr := SARIFRule{
			ID:   r.ID,
			Name: r.Name,
			DefaultConfiguration: &SARIFRuleConfiguration{
				Level: normalizeLevel(r.Level),
			},
		}
		if r.Short != "" {
			sr.ShortDescription = &SARIFMessage{Text: r.Short}
		}
		full := r.Full
		if full == "" {
			full = r.Short
		}
		if full != "" {
			sr.FullDescription = &SARIFMessage{Text: full}
		}
		if len(r.Tags) > 0 {
			sr.Properties = map[string]any{"tags": r.Tags}
		}
		sarifRules = append(sarifRules, sr)
	}
	for _, r := range rules {
		declare(r)
	}

	results := make([]SARIFResult, 0, len(findings))
	for _, f := range findings {
		if _, ok := index[f.RuleID]; !ok {
			declare(Rule{ID: f.RuleID, Name: f.RuleID, Short: f.RuleID, Level: f.Level})
		}
		uri := relativeURI(f.Path, root)
		res := SARIFResult{
			RuleID:    f.RuleID,
			RuleIndex: index[f.RuleID],
			Level:     normalizeLevel(f.Level),
			Message:   SARIFMessage{Text: f.Message},
			Fingerprints: map[string]string{
				"pmat/v1": fingerprint(uri, f.Line, f.RuleID, f.Message),
			},
			Properties: f.Properties,
		}
		if uri != "" {
			region := &SARIFRegion{StartLine: max(f.Line, 1), StartColumn: f.Column}
			if f.EndLine > f.Line {
				region.EndLine = f.EndLine
			}
			res.Locations = []SARIFLocation{{
				PhysicalLocation: &SARIFPhysicalLocation{
					ArtifactLocation: &SARIFArtifactLocation{URI: uri, URIBaseID: "%SRCROOT%"},
					Region:           region,
				},
			}}
		}
		results = append(results, res)
	}

	run := SARIFRun{
		Tool: SARIFTool{Driver: SARIFDriver{
			Name:            "pmat",
			Version:         version.Version,
			SemanticVersion: version.Version,
			InformationURI:  InformationURI,
			Rules:           sarifRules,
		}},
		Results: results,
	}
	if root != "" {
		run.Invocations = []SARIFInvocation{{
			ExecutionSuccessful: true,
			WorkingDirectory:    &SARIFArtifactLocation{URI: filepath.ToSlash(root)},
			Machine:             runtime.GOOS + "/" + runtime.GOARCH,
		}}
	}
	return &SARIFReport{Schema: SARIFSchema, Version: SARIFVersion, Runs: []SARIFRun{run}}
}

func normalizeLevel(l string) string {
	switch strings.ToLower(l) {
	case LevelError, "critical", "high":
		return LevelError
	case LevelNote, "info", "low", "performance":
		return LevelNote
	case LevelNone:
		return LevelNone
	default:
		return LevelWarning
	}
}

// fingerprint is a stable 16 hex digit id for result deduplication.
func fingerprint(uri string, line int, rule, msg string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s:%s", uri, line, rule, msg)))
	return hex.EncodeToString(sum[:])[:16]
}

func relativeURI(path, root string) string {
	if path == "" {
		return ""
	}
	if root != "" && filepath.IsAbs(path) {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}
	return filepath.ToSlash(path)
}
