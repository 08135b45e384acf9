// Package makefile parses Makefiles into rules, variables and includes and
// lints them against a set of portability and maintainability rules.
package makefile

import (
	"slices"
	"strings"
)

// AssignOp is a variable assignment operator.
type AssignOp string

const (
	Deferred    AssignOp = "="
	Immediate   AssignOp = ":="
	Conditional AssignOp = "?="
	Append      AssignOp = "+="
	Shell       AssignOp = "!="
)

// RecipeLine is one tab-indented command of a rule.
type RecipeLine struct {
	Line        int    `json:"line"`
	Text        string `json:"text"`
	Silent      bool   `json:"silent,omitempty"`
	IgnoreError bool   `json:"ignore_error,omitempty"`
	AlwaysExec  bool   `json:"always_exec,omitempty"`
}

// Rule is a target line with its recipe.
type Rule struct {
	Line          int          `json:"line"`
	Targets       []string     `json:"targets"`
	Prerequisites []string     `json:"prerequisites"`
	Pattern       bool         `json:"pattern"`
	DoubleColon   bool         `json:"double_colon"`
	Recipe        []RecipeLine `json:"recipe"`
}

// Variable is an assignment.
type Variable struct {
	Line  int      `json:"line"`
	Name  string   `json:"name"`
	Op    AssignOp `json:"op"`
	Value string   `json:"value"`
}

// Include is an include directive.
type Include struct {
	Line     int      `json:"line"`
	Files    []string `json:"files"`
	Optional bool     `json:"optional"`
}

// File is a parsed Makefile in source order per kind.
type File struct {
	Rules     []Rule     `json:"rules"`
	Variables []Variable `json:"variables"`
	Includes  []Include  `json:"includes"`
	Comments  int        `json:"comments"`
}

// PhonyTargets lists the prerequisites of every .PHONY rule.
func (f *File) PhonyTargets() map[string]bool {
	out := map[string]bool{}
	for _, r := range f.Rules {
		if !slices.Contains(r.Targets, ".PHONY") {
			continue
		}
		for _, p := range r.Prerequisites {
			out[p] = true
		}
	}
	return out
}

// Targets lists the targets that do not start with a dot.
func (f *File) Targets() map[string]bool {
	out := map[string]bool{}
	for _, r := range f.Rules {
		for _, t := range r.Targets {
			if !strings.HasPrefix(t, ".") {
				out[t] = true
			}
		}
	}
	return out
}

// HasPatternRules reports whether any rule uses %.
func (f *File) HasPatternRules() bool {
	for _, r := range f.Rules {
		if r.Pattern {
			return true
		}
	}
	return false
}

var automatic = []string{"$@", "$<", "$^", "$?", "$*"}

// UsesAutomaticVariables reports whether a recipe or value references $@,
// $<, $^, $? or $*.
func (f *File) UsesAutomaticVariables() bool {
	uses := func(s string) bool {
		for _, a := range automatic {
			if strings.Contains(s, a) {
				return true
			}
		}
		return false
	}
	for _, r := range f.Rules {
		for _, l := range r.Recipe {
			if uses(l.Text) {
				return true
			}
		}
	}
	for _, v := range f.Variables {
		if uses(v.Value) {
			return true
		}
	}
	return false
}
