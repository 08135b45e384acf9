package satd

import (
	"regexp"
	"strings"
)

// Pattern defines one debt marker.
type Pattern struct {
	Regex       *regexp.Regexp
	Category    Category
	Severity    Severity
	Description string
}

// BuiltinPatterns are tried in order; the first match classifies a comment.
var BuiltinPatterns = []Pattern{
	{
		Regex:       regexp.MustCompile(`(?i)\b(hack|kludge|smell)\b`),
		Category:    CategoryDesign,
		Severity:    SeverityMedium,
		Description: "Design compromise",
	},
	{
		Regex:       regexp.MustCompile(`(?i)\b(fixme|broken|bug)\b`),
		Category:    CategoryDefect,
		Severity:    SeverityHigh,
		Description: "Known defect",
	},
	{
		Regex:       regexp.MustCompile(`(?i)\btodo\b`),
		Category:    CategoryRequirement,
		Severity:    SeverityLow,
		Description: "Missing functionality",
	},
	{
		Regex:       regexp.MustCompile(`(?i)\b(security|vuln|cve)\b`),
		Category:    CategorySecurity,
		Severity:    SeverityCritical,
		Description: "Security concern",
	},
	{
		Regex:       regexp.MustCompile(`(?i)\bperformance\s+(issue|problem)\b`),
		Category:    CategoryPerformance,
		Severity:    SeverityMedium,
		Description: "Performance issue",
	},
	{
		Regex:       regexp.MustCompile(`(?i)\btest.*\b(disabled|skipped|failing)\b`),
		Category:    CategoryTest,
		Severity:    SeverityMedium,
		Description: "Test debt",
	},
	{
		Regex:       regexp.MustCompile(`(?i)\btechnical\s+debt\b`),
		Category:    CategoryDesign,
		Severity:    SeverityMedium,
		Description: "Explicit technical debt",
	},
	{
		Regex:       regexp.MustCompile(`(?i)\bcode\s+smell\b`),
		Category:    CategoryDesign,
		Severity:    SeverityMedium,
		Description: "Code smell",
	},
	{
		Regex:       regexp.MustCompile(`(?i)\b(workaround|temp|temporary)\b`),
		Category:    CategoryDesign,
		Severity:    SeverityLow,
		Description: "Temporary solution",
	},
	{
		Regex:       regexp.MustCompile(`(?i)\b(optimize|slow)\b`),
		Category:    CategoryPerformance,
		Severity:    SeverityLow,
		Description: "Optimization opportunity",
	},
}

// Classify returns the category and base severity of a comment text.
func Classify(text string) (Category, Severity, bool) {
	for _, p := range BuiltinPatterns {
		if p.Regex.MatchString(text) {
			return p.Category, p.Severity, true
		}
	}
	return "", "", false
}

// FunctionContext describes the function enclosing a debt comment.
type FunctionContext struct {
	Name       string
	Complexity int
	Test       bool
}

// HotPathComplexity is the cyclomatic complexity above which a function is
// treated as a hot path.
const HotPathComplexity = 20

var sensitiveNames = []string{"auth", "security", "crypt", "password", "token", "sanitize", "validate", "verify", "permission"}

var mockNames = []string{"mock", "fake", "stub"}

// AdjustSeverity escalates debt in security and validation code and in hot
// paths, and reduces it in tests and mocks.
func AdjustSeverity(base Severity, ctx FunctionContext) Severity {
	name := strings.ToLower(ctx.Name)
	switch {
	case containsAny(name, sensitiveNames):
		return base.Escalate()
	case ctx.Test || containsAny(name, mockNames):
		return base.Reduce()
	case ctx.Complexity > HotPathComplexity:
		return base.Escalate()
	}
	return base
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
