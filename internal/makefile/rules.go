package makefile

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Severity of a violation.
type Severity string

const (
	SeverityError       Severity = "error"
	SeverityWarning     Severity = "warning"
	SeverityPerformance Severity = "performance"
	SeverityInfo        Severity = "info"
)

func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityPerformance:
		return 1
	default:
		return 0
	}
}

// Violation is one finding. Line 0 means the whole file.
type Violation struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Line     int      `json:"line"`
	Message  string   `json:"message"`
	FixHint  string   `json:"fix_hint,omitempty"`
}

// Checker is one lint rule.
type Checker interface {
	ID() string
	Check(f *File) []Violation
}

// Registry holds the rules to run.
type Registry struct {
	rules []Checker
}

// NewRegistry returns the default rule set.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(MinPhony{Required: []string{"all", "clean", "test"}, CheckExists: true})
	r.Register(PhonyDeclared{IgnoreSuffixes: []string{".o", ".a", ".so", ".exe", ".ko", ".mod"}})
	r.Register(MaxBodyLength{MaxLines: 10, CountLogical: true})
	r.Register(TimestampExpanded{})
	r.Register(UndefinedVariable{})
	r.Register(RecursiveExpansion{})
	r.Register(Portability{})
	return r
}

// Register adds a rule.
func (r *Registry) Register(c Checker) { r.rules = append(r.rules, c) }

// IDs lists the registered rule ids.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.rules))
	for i, c := range r.rules {
		out[i] = c.ID()
	}
	return out
}

// CheckAll runs every rule. Errors come first, then by line.
func (r *Registry) CheckAll(f *File) []Violation {
	out := []Violation{}
	for _, c := range r.rules {
		out = append(out, c.Check(f)...)
	}
	slices.SortStableFunc(out, func(a, b Violation) int {
		ae, be := a.Severity == SeverityError, b.Severity == SeverityError
		if ae != be {
			if ae {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.Line, b.Line)
	})
	return out
}

// MinPhony requires the conventional targets to be declared .PHONY. With
// CheckExists only targets the file defines are required.
type MinPhony struct {
	Required    []string
	CheckExists bool
}

func (MinPhony) ID() string { return "minphony" }

func (m MinPhony) Check(f *File) []Violation {
	var out []Violation
	phony, defined := f.PhonyTargets(), f.Targets()
	for _, t := range m.Required {
		if (!m.CheckExists || defined[t]) && !phony[t] {
			out = append(out, Violation{
				Rule:     m.ID(),
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Target '%s' should be declared .PHONY", t),
				FixHint:  fmt.Sprintf("Add '.PHONY: %s' to your Makefile", t),
			})
		}
	}
	return out
}

// PhonyDeclared flags plain-name targets that are not .PHONY and do not
// look like files.
type PhonyDeclared struct {
	IgnoreSuffixes []string
}

func (PhonyDeclared) ID() string { return "phonydeclared" }

func (p PhonyDeclared) Check(f *File) []Violation {
	var out []Violation
	phony := f.PhonyTargets()
	for _, r := range f.Rules {
		for _, t := range r.Targets {
			if strings.HasPrefix(t, ".") || strings.ContainsAny(t, "/%$") || phony[t] {
				continue
			}
			if slices.ContainsFunc(p.IgnoreSuffixes, func(s string) bool { return strings.HasSuffix(t, s) }) {
				continue
			}
			out = append(out, Violation{
				Rule:     p.ID(),
				Severity: SeverityInfo,
				Line:     r.Line,
				Message:  fmt.Sprintf("Target '%s' should probably be declared .PHONY", t),
				FixHint:  fmt.Sprintf("Add '%s' to .PHONY declaration", t),
			})
		}
	}
	return out
}

// MaxBodyLength flags long recipes. Logical counting skips lines that
// continue onto the next.
type MaxBodyLength struct {
	MaxLines     int
	CountLogical bool
}

func (MaxBodyLength) ID() string { return "maxbodylength" }

func (m MaxBodyLength) Check(f *File) []Violation {
	var out []Violation
	for _, r := range f.Rules {
		n := len(r.Recipe)
		if m.CountLogical {
			n = 0
			for _, l := range r.Recipe {
				if !strings.HasSuffix(strings.TrimRight(l.Text, " "), "\\") {
					n++
				}
			}
		}
		if n > m.MaxLines {
			out = append(out, Violation{
				Rule:     m.ID(),
				Severity: SeverityInfo,
				Line:     r.Recipe[0].Line,
				Message:  fmt.Sprintf("Recipe has %d lines (max: %d). Consider splitting into smaller targets", n, m.MaxLines),
				FixHint:  "Break complex recipes into multiple targets or extract to scripts",
			})
		}
	}
	return out
}

// TimestampExpanded flags dates captured once at parse time.
type TimestampExpanded struct{}

func (TimestampExpanded) ID() string { return "timestampexpanded" }

func (t TimestampExpanded) Check(f *File) []Violation {
	var out []Violation
	for _, v := range f.Variables {
		if v.Op == Immediate && (strings.Contains(v.Value, "$(shell date") || strings.Contains(v.Value, "$(date")) {
			out = append(out, Violation{
				Rule:     t.ID(),
				Severity: SeverityWarning,
				Line:     v.Line,
				Message:  fmt.Sprintf("Variable '%s' uses immediate assignment with date command. This will be evaluated once at parse time", v.Name),
				FixHint:  "Use deferred assignment (=) instead of immediate (:=)",
			})
		}
	}
	return out
}

var builtinVariables = []string{"CC", "CXX", "CFLAGS", "CXXFLAGS", "CPPFLAGS", "LDFLAGS", "LDLIBS", "AR", "RM", "MAKE", "MAKEFLAGS", "SHELL", "PWD", "CURDIR"}

// UndefinedVariable flags references to variables the file never assigns.
type UndefinedVariable struct{}

func (UndefinedVariable) ID() string { return "undefinedvariable" }

func (u UndefinedVariable) Check(f *File) []Violation {
	defined := map[string]bool{}
	for _, b := range builtinVariables {
		defined[b] = true
	}
	for _, v := range f.Variables {
		defined[v.Name] = true
	}
	var out []Violation
	check := func(line int, text string) {
		for _, ref := range scanRefs(text) {
			if ref.checkable() && !defined[ref.name] {
				out = append(out, Violation{
					Rule:     u.ID(),
					Severity: SeverityWarning,
					Line:     line,
					Message:  fmt.Sprintf("Variable '%s' may be undefined", ref.name),
					FixHint:  fmt.Sprintf("Define '%s' before use", ref.name),
				})
			}
		}
	}
	for _, v := range f.Variables {
		check(v.Line, v.Value)
	}
	for _, r := range f.Rules {
		for _, l := range r.Recipe {
			check(l.Line, l.Text)
		}
	}
	return out
}

// RecursiveExpansion flags expensive deferred variables expanded more than
// once per recipe line or once per target of a multi-target rule.
type RecursiveExpansion struct{}

var expensiveFunctions = []string{"$(shell", "$(wildcard", "$(foreach", "$(call", "$(eval"}

func (RecursiveExpansion) ID() string { return "recursive-expansion" }

func (e RecursiveExpansion) Check(f *File) []Violation {
	expensive := map[string]bool{}
	deps := map[string][]string{}
	for _, v := range f.Variables {
		if v.Op != Deferred {
			continue
		}
		if slices.ContainsFunc(expensiveFunctions, func(fn string) bool { return strings.Contains(v.Value, fn) }) {
			expensive[v.Name] = true
		}
		for _, r := range scanRefs(v.Value) {
			deps[v.Name] = append(deps[v.Name], r.name)
		}
	}
	for changed := true; changed; {
		changed = false
		for name, ds := range deps {
			if !expensive[name] && slices.ContainsFunc(ds, func(d string) bool { return expensive[d] }) {
				expensive[name] = true
				changed = true
			}
		}
	}

	var out []Violation
	for _, r := range f.Rules {
		for _, l := range r.Recipe {
			counts := map[string]int{}
			var order []string
			for _, ref := range scanRefs(l.Text) {
				if counts[ref.name] == 0 {
					order = append(order, ref.name)
				}
				counts[ref.name]++
			}
			for _, name := range order {
				if counts[name] > 1 && expensive[name] {
					out = append(out, Violation{
						Rule:     e.ID(),
						Severity: SeverityPerformance,
						Line:     l.Line,
						Message:  fmt.Sprintf("Expensive variable '%s' expanded %d times in recipe. Consider using := for immediate evaluation", name, counts[name]),
						FixHint:  fmt.Sprintf("Change '%s =' to '%s :=' if the value doesn't need to change", name, name),
					})
				}
			}
		}
		if len(r.Targets) < 2 {
			continue
		}
		for _, p := range r.Prerequisites {
			for _, ref := range scanRefs(p) {
				if expensive[ref.name] {
					out = append(out, Violation{
						Rule:     e.ID(),
						Severity: SeverityPerformance,
						Line:     r.Line,
						Message:  fmt.Sprintf("Expensive variable '%s' in prerequisites will be expanded %d times (once per target)", ref.name, len(r.Targets)),
						FixHint:  "Consider using a pattern rule or immediate assignment",
					})
				}
			}
		}
	}
	return out
}

// Portability flags GNU-only assignment operators.
type Portability struct{}

func (Portability) ID() string { return "portability" }

func (p Portability) Check(f *File) []Violation {
	var out []Violation
	for _, v := range f.Variables {
		var msg, hint string
		switch v.Op {
		case Conditional:
			msg, hint = "Conditional assignment (?=) is GNU Make specific", "Use ifdef/ifndef for portable conditional assignment"
		case Shell:
			msg, hint = "Shell assignment (!=) is GNU Make specific", "Use $(shell ...) for portable shell execution"
		default:
			continue
		}
		out = append(out, Violation{Rule: p.ID(), Severity: SeverityInfo, Line: v.Line, Message: msg, FixHint: hint})
	}
	return out
}
