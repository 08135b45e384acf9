package makefile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pmerrors "pmat/internal/errors"
	"pmat/internal/testutil"
)

func parse(t *testing.T, src string) *File {
	t.Helper()
	f, err := Parse("Makefile", []byte(src))
	require.NoError(t, err)
	return f
}

func rules(vs []Violation) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Rule
	}
	return out
}

func TestParse(t *testing.T) {
	src := `# build
CC := gcc
OBJS = main.o \
       util.o
VERSION ::= 1.0
export PREFIX ?= /usr/local
include common.mk
-include local.mk

define BANNER
hello
world
endef

ifeq ($(CC),gcc)
all: $(OBJS:.o=.c) | dirs ; @echo inline
	@-echo "two"
	+$(MAKE) sub \
	  -C lib

%.o:: %.c
	$(CC) -c $< -o $@
endif
`
	f := parse(t, src)
	assert.Equal(t, 1, f.Comments)

	names := map[string]Variable{}
	for _, v := range f.Variables {
		names[v.Name] = v
	}
	require.Len(t, names, 5)
	assert.Equal(t, Immediate, names["CC"].Op)
	assert.Equal(t, "main.o util.o", names["OBJS"].Value, "continuations join")
	assert.Equal(t, Immediate, names["VERSION"].Op)
	assert.Equal(t, Conditional, names["PREFIX"].Op)
	assert.Equal(t, "hello\nworld", names["BANNER"].Value)

	require.Len(t, f.Includes, 2)
	assert.False(t, f.Includes[0].Optional)
	assert.True(t, f.Includes[1].Optional)
	assert.Equal(t, []string{"local.mk"}, f.Includes[1].Files)

	require.Len(t, f.Rules, 2)
	all := f.Rules[0]
	assert.Equal(t, []string{"all"}, all.Targets)
	assert.Equal(t, []string{"$(OBJS:.o=.c)", "dirs"}, all.Prerequisites, "colons inside references do not split")
	require.Len(t, all.Recipe, 4)
	assert.Equal(t, RecipeLine{Line: 16, Text: "echo inline", Silent: true}, all.Recipe[0])
	assert.True(t, all.Recipe[1].Silent)
	assert.True(t, all.Recipe[1].IgnoreError)
	assert.True(t, all.Recipe[2].AlwaysExec)
	assert.Equal(t, 19, all.Recipe[3].Line)

	pattern := f.Rules[1]
	assert.True(t, pattern.Pattern)
	assert.True(t, pattern.DoubleColon)
	assert.True(t, f.HasPatternRules())
	assert.True(t, f.UsesAutomaticVariables())
}

func TestParse_Errors(t *testing.T) {
	f, err := Parse("Makefile", []byte("\techo orphan\nX = 1\n\t\ndefine Y\n"))
	require.Error(t, err)
	assert.Equal(t, pmerrors.ParseError, pmerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "line 1: recipe without rule")
	assert.Contains(t, err.Error(), "line 4: define Y without endef")
	require.NotNil(t, f, "the partial file is returned")
	assert.Len(t, f.Variables, 1)
}

func TestScanRefs(t *testing.T) {
	refs := scanRefs("$$HOME $(A) ${B} $c $(A:.c=.o) $(shell ls | wc) $")
	var names []string
	for _, r := range refs {
		names = append(names, r.name)
	}
	assert.Equal(t, []string{"A", "B", "c", "A", ""}, names, "pipelines yield no name")
	assert.False(t, refs[2].checkable(), "single lowercase letters are shell loop variables")
	assert.False(t, refs[4].checkable())
	assert.False(t, varRef{name: "@D", style: parenRef}.checkable())
	assert.False(t, varRef{name: "patsubst %.c,%.o,x", style: parenRef}.checkable())
	assert.True(t, varRef{name: "SRCS", style: braceRef}.checkable())
}

func TestMinPhony(t *testing.T) {
	rule := MinPhony{Required: []string{"all", "clean", "test"}, CheckExists: true}
	assert.Empty(t, rule.Check(parse(t, "")))

	vs := rule.Check(parse(t, "all:\n\techo all\nclean:\n\trm -f *.o\n"))
	require.Len(t, vs, 2)
	assert.Contains(t, vs[0].Message, "'all'")
	assert.Contains(t, vs[1].Message, "'clean'")

	strict := MinPhony{Required: []string{"all", "clean"}}
	assert.Len(t, strict.Check(parse(t, "")), 2)
}

func TestPhonyDeclared(t *testing.T) {
	rule := NewRegistry().rules[1]
	vs := rule.Check(parse(t, "install:\n\tcp prog /usr/bin/\nhelp:\n\techo help\nmain.o: main.c\n\tcc -c main.c\nbuild/x:\n\ttouch $@\n"))
	require.Len(t, vs, 2)
	assert.Equal(t, SeverityInfo, vs[0].Severity)
	assert.Equal(t, 1, vs[0].Line)
	assert.Equal(t, 3, vs[1].Line)
}

func TestMaxBodyLength(t *testing.T) {
	rule := MaxBodyLength{MaxLines: 5, CountLogical: true}
	vs := rule.Check(parse(t, "target:\n\tl1\n\tl2\n\tl3\n\tl4\n\tl5\n\tl6\n"))
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, "6 lines")
	assert.Equal(t, 2, vs[0].Line)

	continued := "target:\n\tl1 \\\n\t  more\n\tl2\n\tl3\n\tl4\n\tl5\n"
	assert.Empty(t, rule.Check(parse(t, continued)), "continued lines count once")
	assert.Len(t, MaxBodyLength{MaxLines: 5}.Check(parse(t, continued)), 1)
}

func TestTimestampExpanded(t *testing.T) {
	vs := TimestampExpanded{}.Check(parse(t, "BUILD_TIME := $(shell date)\n"))
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, "evaluated once at parse time")
	assert.Empty(t, TimestampExpanded{}.Check(parse(t, "BUILD_TIME = $(shell date)\n")))
}

func TestUndefinedVariable(t *testing.T) {
	vs := UndefinedVariable{}.Check(parse(t, "target:\n\techo $(UNDEFINED_VAR) $@ $(CC) $$HOME\n"))
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, "UNDEFINED_VAR")
	assert.Equal(t, 2, vs[0].Line)

	assert.Empty(t, UndefinedVariable{}.Check(parse(t, "VAR = value\ntarget:\n\techo $(VAR) ${VAR:-x}\n")))
}

func TestRecursiveExpansion(t *testing.T) {
	src := "FILES = $(wildcard *.c)\nALL = $(FILES)\nFAST := $(FILES)\n" +
		"build:\n\tcc $(ALL) $(ALL) $(FAST) $(FAST)\n" +
		"a b: $(FILES)\n\ttouch $@\n"
	vs := RecursiveExpansion{}.Check(parse(t, src))
	require.Len(t, vs, 2)
	assert.Contains(t, vs[0].Message, "'ALL' expanded 2 times")
	assert.Equal(t, SeverityPerformance, vs[0].Severity)
	assert.Contains(t, vs[1].Message, "expanded 2 times (once per target)")
}

func TestPortability(t *testing.T) {
	vs := Portability{}.Check(parse(t, "A ?= value\nB != date\nC = ok\n"))
	require.Len(t, vs, 2)
	assert.Contains(t, vs[0].Message, "Conditional assignment")
	assert.Contains(t, vs[1].Message, "Shell assignment")
}

type fixedRule []Violation

func (fixedRule) ID() string                { return "fixed" }
func (r fixedRule) Check(*File) []Violation { return r }

func TestCheckAll_Order(t *testing.T) {
	reg := &Registry{}
	reg.Register(fixedRule{
		{Rule: "fixed", Severity: SeverityInfo, Line: 5},
		{Rule: "fixed", Severity: SeverityError, Line: 10},
		{Rule: "fixed", Severity: SeverityWarning, Line: 3},
	})
	vs := reg.CheckAll(&File{})
	assert.Equal(t, []int{10, 3, 5}, []int{vs[0].Line, vs[1].Line, vs[2].Line})

	res := &Result{Violations: vs}
	assert.True(t, res.HasErrors())
	assert.Equal(t, 1, res.ErrorCount())
	assert.Equal(t, SeverityError, res.MaxSeverity())
	assert.Empty(t, (&Result{}).MaxSeverity())

	assert.Len(t, NewRegistry().IDs(), 7)
}

func TestQualityScore(t *testing.T) {
	assert.Equal(t, 1.0, QualityScore(nil))
	assert.InDelta(t, 0.7, QualityScore([]Violation{{Severity: SeverityError}}), 1e-9)
	assert.InDelta(t, 0.9, QualityScore([]Violation{{Severity: SeverityWarning}, {Severity: SeverityPerformance}}), 1e-9)
	many := make([]Violation, 10)
	for i := range many {
		many[i].Severity = SeverityError
	}
	assert.Zero(t, QualityScore(many))
}

func TestLint(t *testing.T) {
	l := NewLinter(nil)
	res, err := l.Lint("Makefile", []byte("all:\n\techo hello\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"minphony", "phonydeclared"}, rules(res.Violations))
	assert.InDelta(t, 0.88, res.QualityScore, 1e-9)

	clean, err := l.Lint("Makefile", []byte(".PHONY: all clean test\nall:\n\techo all\nclean:\n\trm -f *.o\ntest:\n\tpytest\n"))
	require.NoError(t, err)
	assert.Empty(t, clean.Violations)
	assert.Equal(t, 1.0, clean.QualityScore)

	_, err = l.LintFile(filepath.Join(t.TempDir(), "Makefile"))
	assert.Equal(t, pmerrors.NotFound, pmerrors.CodeOf(err))
}

func TestLintProject(t *testing.T) {
	root := testutil.WriteProject(t, map[string]string{
		"Makefile":        ".PHONY: all\nall:\n\techo ok\n",
		"lib/rules.mk":    "X ?= 1\n",
		"broken/Makefile": "\torphan\n",
		"README.md":       "all:\n",
	})
	rep, err := NewLinter(nil).LintProject(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, rep.Files, 2)
	assert.Equal(t, "Makefile", rep.Files[0].Path)
	assert.Equal(t, "lib/rules.mk", rep.Files[1].Path)
	require.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0], "broken/Makefile")
	assert.InDelta(t, (1.0+0.98)/2, rep.AverageScore, 1e-9)
}

func TestIsMakefile(t *testing.T) {
	for _, p := range []string{"Makefile", "a/makefile", "GNUmakefile", "x/rules.mk"} {
		assert.True(t, IsMakefile(p), p)
	}
	assert.False(t, IsMakefile("Makefile.am"))
}
