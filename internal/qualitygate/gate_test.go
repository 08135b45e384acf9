package qualitygate

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmat/internal/ast"
	"pmat/internal/complexity"
	"pmat/internal/config"
	"pmat/internal/deadcode"
	pmerrors "pmat/internal/errors"
	"pmat/internal/parser"
	"pmat/internal/provability"
	"pmat/internal/satd"
	"pmat/internal/testutil"
)

func functions(path string, cyclomatic ...int) complexity.FileMetrics {
	fm := complexity.FileMetrics{Path: path}
	for i, c := range cyclomatic {
		fm.Functions = append(fm.Functions, complexity.FunctionComplexity{
			Name:      "f" + string(rune('a'+i)),
			StartLine: i*10 + 1,
			Metrics:   complexity.Metrics{Cyclomatic: c},
		})
	}
	return fm
}

func TestParseChecks(t *testing.T) {
	got, err := ParseChecks([]string{"complexity,dead-code", " SATD ", "complexity"})
	require.NoError(t, err)
	assert.Equal(t, []Check{CheckComplexity, CheckDeadCode, CheckSATD}, got)

	got, err = ParseChecks(nil)
	require.NoError(t, err)
	assert.Equal(t, AllChecks, got)

	got, err = ParseChecks([]string{"entropy", "all"})
	require.NoError(t, err)
	assert.Equal(t, AllChecks, got)

	_, err = ParseChecks([]string{"coverage,bogus"})
	require.Error(t, err)
	assert.Equal(t, pmerrors.InvalidInput, pmerrors.CodeOf(err))
	pe, ok := pmerrors.As(err)
	require.True(t, ok)
	assert.Len(t, pe.Problems, 2)
}

func TestEvaluate_Complexity(t *testing.T) {
	files := []complexity.FileMetrics{functions("a.go", 3, 4, 30), functions("b.go", 25)}
	res := Evaluate(Inputs{Complexity: files}, Thresholds{MaxComplexityP99: 20}, []Check{CheckComplexity})
	require.Len(t, res.Checks, 1)
	c := res.Checks[0]
	assert.Equal(t, StatusFail, c.Status)
	assert.Equal(t, 30.0, c.Value)
	require.Len(t, c.Offenders, 2)
	assert.Equal(t, "a.go", c.Offenders[0].File)
	assert.Equal(t, 21, c.Offenders[0].Line)
	assert.Contains(t, c.Offenders[0].Message, "fc has cyclomatic complexity 30")
	assert.Equal(t, "b.go", c.Offenders[1].File)
	assert.False(t, res.Passed)

	res = Evaluate(Inputs{Complexity: files}, Thresholds{MaxComplexityP99: 30}, []Check{CheckComplexity})
	assert.True(t, res.Passed)
	assert.NoError(t, res.Err())
}

func TestEvaluate_SkipsMissingInputs(t *testing.T) {
	res := Evaluate(Inputs{}, Thresholds{MaxComplexityP99: 1, MaxDeadCode: 0, MinEntropy: 5, MinProvability: 0.9}, nil)
	require.Len(t, res.Checks, len(AllChecks))
	for _, c := range res.Checks {
		assert.Equal(t, StatusSkip, c.Status, c.Check)
	}
	assert.True(t, res.Passed)
	assert.Empty(t, res.Violations())
}

func TestEvaluate_AllChecks(t *testing.T) {
	in := Inputs{
		Complexity: []complexity.FileMetrics{functions("a.go", 2, 3)},
		DeadCode: &deadcode.Result{
			Files:   []deadcode.FileStats{{Path: "old.go", DeadItems: 2, DeadLines: 40}},
			Summary: deadcode.DeadCodeSummary{DeadLines: 40, TotalLines: 200, DeadCodeRatio: 0.2},
		},
		Proofs: []provability.ProofSummary{
			{File: "a.go", Function: "safe", StartLine: 1, Score: 0.9},
			{File: "a.go", Function: "risky", StartLine: 9, Score: 0.3},
		},
		SATD: &satd.Result{Items: []satd.TechnicalDebt{
			{Severity: satd.SeverityCritical, File: "auth.go", Line: 4, Text: "FIXME: security hole"},
			{Severity: satd.SeverityLow, File: "a.go", Line: 2, Text: "TODO: tidy"},
		}},
		Entropy: &EntropyStats{Identifiers: 10, Distinct: 2, Entropy: 1},
	}
	th := Thresholds{MaxComplexityP99: 10, MaxDeadCode: 15, MinEntropy: 2, MinProvability: 0.7, MaxSATDCritical: 0}
	res := Evaluate(in, th, nil)

	status := map[Check]Status{}
	for _, c := range res.Checks {
		status[c.Check] = c.Status
	}
	assert.Equal(t, map[Check]Status{
		CheckComplexity:  StatusPass,
		CheckDeadCode:    StatusFail,
		CheckEntropy:     StatusFail,
		CheckProvability: StatusFail,
		CheckSATD:        StatusFail,
	}, status)
	assert.InDelta(t, 20.0, res.Checks[1].Value, 1e-9)
	assert.InDelta(t, 0.6, res.Checks[3].Value, 1e-9)

	vs := res.Violations()
	require.Len(t, vs, 4)
	assert.Equal(t, Violation{Check: CheckDeadCode, File: "old.go", Message: "40 dead lines in 2 items"}, vs[0])
	assert.Equal(t, CheckEntropy, vs[1].Check, "checks without offenders report themselves")
	assert.Equal(t, "risky scores 0.30", vs[2].Message)
	assert.Equal(t, "auth.go", vs[3].File)

	err := res.Err()
	var failed *FailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, []Check{CheckDeadCode, CheckEntropy, CheckProvability, CheckSATD}, failed.Failed)
	assert.Equal(t, pmerrors.ExitQualityGateFail, pmerrors.ExitCode(err))
	assert.Equal(t, "quality gate failed: dead-code, entropy, provability, satd", err.Error())
}

func TestFromConfig(t *testing.T) {
	th := FromConfig(config.DefaultConfig().QualityGate)
	assert.Equal(t, 20, th.MaxComplexityP99)
	assert.Equal(t, 15.0, th.MaxDeadCode)
	assert.Zero(t, th.MinProvability)
}

func TestIdentifierEntropy(t *testing.T) {
	v := testutil.View(t, "m.py", parser.LangPython, "a b a c\n",
		testutil.Raw{Type: "module"},
		testutil.Raw{Type: "identifier", Text: "a", Parent: 0},
		testutil.Raw{Type: "identifier", Text: "b", Parent: 0},
		testutil.Raw{Type: "identifier", Text: "a", Parent: 0},
		testutil.Raw{Type: "identifier", Text: "c", Parent: 0},
	)
	a := ast.NewArena()
	_, err := ast.NewBuilder(a).AddFile(v)
	require.NoError(t, err)
	a.Freeze()

	s := IdentifierEntropy(a)
	assert.Equal(t, 4, s.Identifiers)
	assert.Equal(t, 3, s.Distinct)
	assert.InDelta(t, 1.5, s.Entropy, 1e-12)
	assert.InDelta(t, 1.5/math.Log2(3), s.Normalized, 1e-12)

	assert.Equal(t, EntropyStats{}, IdentifierEntropy(ast.NewArena()))
}
