package coverage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pmerrors "pmat/internal/errors"
	"pmat/internal/testutil"
)

func TestParseLCOV(t *testing.T) {
	in := `TN:unit
SF:src/a.rs
FN:1,alpha
FN:5,beta
FNDA:3,alpha
FNDA:0,beta
DA:1,3
DA:2,0
BRDA:2,0,0,1
BRDA:2,0,1,-
end_of_record
SF:src/b.rs
DA:1,1
FNF:4
FNH:1
BRF:6
BRH:3
end_of_record
SF:src/a.rs
DA:2,1
end_of_record
`
	tf, err := ParseLCOV("lcov.info", strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, tf, 2)

	a := tf["src/a.rs"]
	assert.Equal(t, map[int]int{1: 3, 2: 1}, a.Lines, "records of one source merge")
	assert.Equal(t, 2, a.FunctionsFound)
	assert.Equal(t, 1, a.FunctionsHit)
	assert.Equal(t, 2, a.BranchesFound)
	assert.Equal(t, 1, a.BranchesHit)

	b := tf["src/b.rs"]
	assert.Equal(t, 4, b.FunctionsFound, "summary counts win over detail lines")
	assert.Equal(t, 1, b.FunctionsHit)
	assert.Equal(t, 6, b.BranchesFound)
	assert.Equal(t, 3, b.BranchesHit)
}

func TestParseLCOV_Malformed(t *testing.T) {
	_, err := ParseLCOV("lcov.info", strings.NewReader("SF:a.rs\nDA:x,1\n"))
	require.Error(t, err)
	assert.Equal(t, pmerrors.ParseError, pmerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "line 2")
}

func TestParseHunks(t *testing.T) {
	diff := []string{
		"diff --git a/x b/x",
		"@@ -3 +3 @@ fn main() {",
		"-old",
		"+new",
		"@@ -5,0 +6,2 @@",
		"@@ -9,2 +10,0 @@",
	}
	assert.Equal(t, []int{3, 6, 7}, parseHunks(diff), "pure deletions add no lines")
}

func TestAggregateAndDelta(t *testing.T) {
	assert.Equal(t, 100.0, Delta(nil).Percentage)
	assert.Zero(t, Aggregate(nil).LinePercentage)

	files := []FileCoverage{
		{TotalLines: 4, CoveredLines: []int{1, 2, 3}, LineCoverage: 75, BranchCoverage: 50, ChangedLines: []int{1, 4}, UncoveredChanges: []int{4}},
		{TotalLines: 0, CoveredLines: []int{}},
	}
	agg := Aggregate(files)
	assert.Equal(t, 2, agg.TotalFiles)
	assert.Equal(t, 1, agg.CoveredFiles)
	assert.InDelta(t, 75.0, agg.LinePercentage, 1e-9)
	assert.InDelta(t, 25.0, agg.BranchPercentage, 1e-9)

	d := Delta(files)
	assert.Equal(t, DeltaCoverage{NewLinesCovered: 1, NewLinesTotal: 2, Percentage: 50}, d)
}

func TestAnalyze(t *testing.T) {
	root := testutil.GitRepo(t,
		testutil.Commit{Files: map[string]string{
			"src/lib.rs": "a\nb\nc\nd\ne\n",
			"src/old.rs": "x\n",
			"README.md":  "# demo\n",
		}},
		testutil.Commit{Files: map[string]string{
			"src/lib.rs": "a\nb\nC\nd\ne\nf\n",
			"src/new.rs": "n1\nn2\n",
			"src/old.rs": "",
		}},
	)
	lcov := "SF:src/lib.rs\nFN:1,f\nFNDA:1,f\nDA:1,1\nDA:2,1\nDA:3,0\nDA:4,1\nDA:6,2\n" +
		"BRDA:2,0,0,1\nBRDA:2,0,1,-\nend_of_record\n" +
		"SF:" + filepath.Join(root, "src", "new.rs") + "\nDA:1,1\nDA:2,0\nend_of_record\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "lcov.info"), []byte(lcov), 0o644))

	u, err := NewAnalyzer(nil).Analyze(context.Background(), Request{Root: root, Tracefile: "lcov.info"})
	require.NoError(t, err)

	assert.Equal(t, []string{"src/lib.rs"}, u.Changes.Modified)
	assert.Equal(t, []string{"src/new.rs"}, u.Changes.Added)
	assert.Equal(t, []string{"src/old.rs"}, u.Changes.Deleted)

	require.Len(t, u.Files, 2)
	lib, nw := u.Files[0], u.Files[1]
	assert.Equal(t, "src/lib.rs", lib.Path)
	assert.Equal(t, []int{3, 6}, lib.ChangedLines)
	assert.Equal(t, []int{3}, lib.UncoveredChanges)
	assert.InDelta(t, 80.0, lib.LineCoverage, 1e-9)
	assert.InDelta(t, 50.0, lib.BranchCoverage, 1e-9)

	assert.True(t, nw.Tracked, "absolute tracefile paths resolve")
	assert.Equal(t, []int{1, 2}, nw.ChangedLines)
	assert.Equal(t, []int{2}, nw.UncoveredChanges)

	assert.Equal(t, DeltaCoverage{NewLinesCovered: 2, NewLinesTotal: 4, Percentage: 50}, u.Delta)
	assert.InDelta(t, 100*5.0/7.0, u.Aggregate.LinePercentage, 1e-9)
	assert.InDelta(t, 50.0, u.Aggregate.FunctionPercentage, 1e-9)
}

func TestAnalyze_Dependents(t *testing.T) {
	root := testutil.GitRepo(t,
		testutil.Commit{Files: map[string]string{"src/lib.rs": "a\n", "src/main.rs": "m\n"}},
		testutil.Commit{Files: map[string]string{"src/lib.rs": "b\n"}},
	)
	require.NoError(t, os.WriteFile(filepath.Join(root, "lcov.info"), []byte("SF:src/main.rs\nDA:1,1\nend_of_record\n"), 0o644))

	u, err := NewAnalyzer(nil).Analyze(context.Background(), Request{
		Root:       root,
		Tracefile:  "lcov.info",
		Dependents: map[string][]string{"src/lib.rs": {"src/main.rs"}},
	})
	require.NoError(t, err)
	require.Len(t, u.Files, 2)
	assert.False(t, u.Files[0].Tracked)
	assert.Equal(t, "src/main.rs", u.Files[1].Path)
	assert.Empty(t, u.Files[1].ChangedLines, "dependents contribute no changed lines")
	assert.Equal(t, 100.0, u.Delta.Percentage)
}

func TestAnalyze_Errors(t *testing.T) {
	a := NewAnalyzer(nil)
	_, err := a.Analyze(context.Background(), Request{Root: t.TempDir()})
	assert.Equal(t, pmerrors.InvalidInput, pmerrors.CodeOf(err))

	_, err = a.Analyze(context.Background(), Request{Root: t.TempDir(), Tracefile: "missing.info"})
	assert.Equal(t, pmerrors.NotFound, pmerrors.CodeOf(err))
}
