package history

import (
	"context"
	"database/sql"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	pmerrors "pmat/internal/errors"
)

// Run is one recorded analysis.
type Run struct {
	ID         string             `json:"id"`
	Kind       string             `json:"kind"`
	Root       string             `json:"root"`
	Commit     string             `json:"commit,omitempty"`
	RecordedAt time.Time          `json:"recorded_at"`
	Value      float64            `json:"value"`
	FileCount  int                `json:"file_count"`
	Files      map[string]float64 `json:"files,omitempty"`
}

// Record stores run with its per-file scores. An empty ID gets a new UUID
// and a zero RecordedAt becomes now.
func (s *Store) Record(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.RecordedAt.IsZero() {
		run.RecordedAt = time.Now().UTC()
	}
	if run.FileCount == 0 {
		run.FileCount = len(run.Files)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, kind, root, commit_sha, recorded_at, value, file_count)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.ID, run.Kind, run.Root, run.Commit, run.RecordedAt.UTC().Format(time.RFC3339Nano), run.Value, run.FileCount)
		if err != nil {
			return pmerrors.Cache("insert", s.path, err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO file_scores (run_id, path, value) VALUES (?, ?, ?)`)
		if err != nil {
			return pmerrors.Cache("insert", s.path, err)
		}
		defer stmt.Close()
		for path, v := range run.Files {
			if _, err := stmt.ExecContext(ctx, run.ID, path, v); err != nil {
				return pmerrors.Cache("insert", s.path, err)
			}
		}
		return nil
	})
}

// Runs returns the latest limit runs of kind for root, oldest first.
// limit <= 0 returns all of them. Per-file scores are not loaded.
func (s *Store) Runs(ctx context.Context, kind, root string, limit int) ([]Run, error) {
	q := `SELECT id, kind, root, commit_sha, recorded_at, value, file_count
		FROM runs WHERE kind = ? AND root = ? ORDER BY recorded_at DESC`
	args := []any{kind, root}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, pmerrors.Cache("query", s.path, err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var at string
		if err := rows.Scan(&r.ID, &r.Kind, &r.Root, &r.Commit, &at, &r.Value, &r.FileCount); err != nil {
			return nil, pmerrors.Cache("scan", s.path, err)
		}
		r.RecordedAt, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, pmerrors.Cache("scan", s.path, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, pmerrors.Cache("query", s.path, err)
	}
	slices.Reverse(out)
	return out, nil
}

// FileScores loads the per-file scores of one run.
func (s *Store) FileScores(ctx context.Context, runID string) (map[string]float64, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT path, value FROM file_scores WHERE run_id = ?`, runID)
	if err != nil {
		return nil, pmerrors.Cache("query", s.path, err)
	}
	defer rows.Close()
	out := map[string]float64{}
	for rows.Next() {
		var p string
		var v float64
		if err := rows.Scan(&p, &v); err != nil {
			return nil, pmerrors.Cache("scan", s.path, err)
		}
		out[p] = v
	}
	return out, rows.Err()
}

// Prune keeps the newest keep runs of kind for root and deletes the rest.
func (s *Store) Prune(ctx context.Context, kind, root string, keep int) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `
		DELETE FROM runs WHERE kind = ? AND root = ? AND id NOT IN (
			SELECT id FROM runs WHERE kind = ? AND root = ? ORDER BY recorded_at DESC LIMIT ?
		)`, kind, root, kind, root, keep)
	if err != nil {
		return 0, pmerrors.Cache("prune", s.path, err)
	}
	return res.RowsAffected()
}

// Direction of a fitted trend.
type Direction string

const (
	Improving Direction = "improving"
	Stable    Direction = "stable"
	Degrading Direction = "degrading"
)

// StableBand is the relative change over the fitted window below which a
// trend is stable.
const StableBand = 0.05

// Trend is a least-squares line through run values over time.
type Trend struct {
	Kind   string `json:"kind"`
	Points int    `json:"points"`

	// SlopePerDay is the fitted change in value per day.
	SlopePerDay float64   `json:"slope_per_day"`
	Intercept   float64   `json:"intercept"`
	Change      float64   `json:"relative_change"`
	Direction   Direction `json:"direction"`
	First       float64   `json:"first"`
	Last        float64   `json:"last"`
}

// Fit fits a trend over runs in time order. lowerIsBetter selects which
// slope sign counts as improving. Fewer than two runs is stable.
func Fit(kind string, runs []Run, lowerIsBetter bool) Trend {
	t := Trend{Kind: kind, Points: len(runs), Direction: Stable}
	if len(runs) == 0 {
		return t
	}
	t.First, t.Last = runs[0].Value, runs[len(runs)-1].Value
	if len(runs) < 2 {
		t.Intercept = t.First
		return t
	}

	start := runs[0].RecordedAt
	xs := make([]float64, len(runs))
	ys := make([]float64, len(runs))
	for i, r := range runs {
		xs[i] = r.RecordedAt.Sub(start).Hours() / 24
		ys[i] = r.Value
	}
	span := xs[len(xs)-1] - xs[0]
	if span <= 0 {
		return t
	}
	t.Intercept, t.SlopePerDay = stat.LinearRegression(xs, ys, nil, false)

	mean := stat.Mean(ys, nil)
	if mean == 0 {
		mean = 1
	}
	t.Change = t.SlopePerDay * span / math.Abs(mean)
	switch {
	case math.Abs(t.Change) < StableBand:
		t.Direction = Stable
	case (t.Change < 0) == lowerIsBetter:
		t.Direction = Improving
	default:
		t.Direction = Degrading
	}
	return t
}

// Trend fits the latest limit runs of kind for root.
func (s *Store) Trend(ctx context.Context, kind, root string, limit int, lowerIsBetter bool) (Trend, error) {
	runs, err := s.Runs(ctx, kind, root, limit)
	if err != nil {
		return Trend{}, err
	}
	return Fit(kind, runs, lowerIsBetter), nil
}
