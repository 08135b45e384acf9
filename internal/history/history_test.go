package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmat/internal/slogutil"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), slogutil.NewDiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RecordAndRuns(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, v := range []float64{2.0, 1.8, 1.5} {
		run := &Run{
			Kind: "tdg", Root: "/repo", RecordedAt: base.AddDate(0, 0, i), Value: v,
			Files: map[string]float64{"a.go": v, "b.go": v / 2},
		}
		require.NoError(t, s.Record(ctx, run))
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, 2, run.FileCount)
	}
	require.NoError(t, s.Record(ctx, &Run{Kind: "churn", Root: "/repo", Value: 9}))

	runs, err := s.Runs(ctx, "tdg", "/repo", 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, 2.0, runs[0].Value)
	assert.Equal(t, 1.5, runs[2].Value)
	assert.True(t, runs[2].RecordedAt.Equal(base.AddDate(0, 0, 2)))

	latest, err := s.Runs(ctx, "tdg", "/repo", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, 1.8, latest[0].Value)

	files, err := s.FileScores(ctx, runs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"a.go": 2.0, "b.go": 1.0}, files)

	n, err := s.Prune(ctx, "tdg", "/repo", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	runs, err = s.Runs(ctx, "tdg", "/repo", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	files, err = s.FileScores(ctx, latest[0].ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(dir, slogutil.NewDiscardLogger())
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, &Run{Kind: "tdg", Root: "r", Value: 1}))
	require.NoError(t, s.Close())

	s, err = Open(dir, slogutil.NewDiscardLogger())
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.Runs(ctx, "tdg", "r", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestFit(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	series := func(vals ...float64) []Run {
		out := make([]Run, len(vals))
		for i, v := range vals {
			out[i] = Run{RecordedAt: base.AddDate(0, 0, i), Value: v}
		}
		return out
	}

	tests := []struct {
		name  string
		runs  []Run
		lower bool
		want  Direction
	}{
		{"empty", nil, true, Stable},
		{"single", series(3), true, Stable},
		{"falling debt", series(3, 2.5, 2, 1.5), true, Improving},
		{"rising debt", series(1, 1.5, 2, 2.5), true, Degrading},
		{"rising coverage", series(50, 60, 70), false, Improving},
		{"flat", series(2, 2.01, 1.99, 2), true, Stable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := Fit("tdg", tt.runs, tt.lower)
			assert.Equal(t, tt.want, tr.Direction)
			assert.Equal(t, len(tt.runs), tr.Points)
		})
	}

	tr := Fit("tdg", series(3, 2.5, 2, 1.5), true)
	assert.InDelta(t, -0.5, tr.SlopePerDay, 1e-9)
	assert.InDelta(t, 3.0, tr.Intercept, 1e-9)
	assert.Equal(t, 3.0, tr.First)
	assert.Equal(t, 1.5, tr.Last)
}
