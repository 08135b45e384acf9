// Package ranking orders files by a pluggable per-file score and renders
// the top of the order as a table or JSON.
package ranking

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	pmerrors "pmat/internal/errors"
	"pmat/internal/slogutil"
)

// ParallelSortThreshold is the input size above which sorting is split
// into chunks sorted concurrently and merged.
const ParallelSortThreshold = 1024

// Ranker scores one file and describes how scores render.
type Ranker[M any] interface {
	// Type names the ranking, e.g. "Complexity".
	Type() string
	// Score computes the metric for one file.
	Score(ctx context.Context, path string) (M, error)
	// Value is the ordering key; higher ranks first.
	Value(m M) float64
	// Header is the table header printed above the entries.
	Header() string
	// FormatEntry renders one table row.
	FormatEntry(rank int, file string, m M) string
}

// Ranking is one ranked file.
type Ranking[M any] struct {
	File  string
	Score M
}

// Engine ranks files with a Ranker, memoizing scores by canonical path for
// its lifetime.
type Engine[M any] struct {
	ranker  Ranker[M]
	logger  *slog.Logger
	workers int

	mu   sync.RWMutex
	memo map[string]M
}

// NewEngine creates an engine. A nil logger discards output.
func NewEngine[M any](r Ranker[M], logger *slog.Logger) *Engine[M] {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Engine[M]{
		ranker:  r,
		logger:  logger,
		workers: runtime.NumCPU(),
		memo:    make(map[string]M),
	}
}

// Type returns the ranker's type name.
func (e *Engine[M]) Type() string { return e.ranker.Type() }

// ClearCache drops every memoized score.
func (e *Engine[M]) ClearCache() {
	e.mu.Lock()
	clear(e.memo)
	e.mu.Unlock()
}

// CacheLen returns the number of memoized scores.
func (e *Engine[M]) CacheLen() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.memo)
}

// RankFiles scores files in parallel and returns the top limit of them by
// descending value, ties broken by path. Files that do not exist or fail to
// score are skipped. A done context aborts the whole call.
func (e *Engine[M]) RankFiles(ctx context.Context, files []string, limit int) ([]Ranking[M], error) {
	if len(files) == 0 || limit <= 0 {
		return []Ranking[M]{}, nil
	}
	start := time.Now()

	slots := make([]*Ranking[M], len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, ok := e.score(gctx, file)
			if ok {
				slots[i] = &r
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, pmerrors.FromContext(err, "ranking", time.Since(start))
	}
	if err := ctx.Err(); err != nil {
		return nil, pmerrors.FromContext(err, "ranking", time.Since(start))
	}

	out := make([]Ranking[M], 0, len(files))
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	out = e.sort(ctx, out)
	if len(out) > limit {
		out = out[:limit]
	}
	e.logger.Debug("ranking completed", "type", e.ranker.Type(), "files", len(files),
		"ranked", len(out), "duration", time.Since(start))
	return out, nil
}

func (e *Engine[M]) score(ctx context.Context, file string) (Ranking[M], bool) {
	key, err := canonical(file)
	if err != nil {
		return Ranking[M]{}, false
	}
	e.mu.RLock()
	m, ok := e.memo[key]
	e.mu.RUnlock()
	if ok {
		return Ranking[M]{File: file, Score: m}, true
	}
	m, err = e.ranker.Score(ctx, file)
	if err != nil {
		e.logger.Debug("skipping unscorable file", "file", file, "error", err)
		return Ranking[M]{}, false
	}
	e.mu.Lock()
	e.memo[key] = m
	e.mu.Unlock()
	return Ranking[M]{File: file, Score: m}, true
}

// canonical resolves a path to its absolute, symlink-free form. A missing
// file is an error.
func canonical(file string) (string, error) {
	if _, err := os.Stat(file); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

func (e *Engine[M]) compare(a, b Ranking[M]) int {
	return cmp.Or(
		cmp.Compare(e.ranker.Value(b.Score), e.ranker.Value(a.Score)),
		strings.Compare(a.File, b.File),
	)
}

// sort orders rankings. Large inputs are sorted in chunks concurrently and
// merged; the comparator is total, so both paths yield the same order.
func (e *Engine[M]) sort(ctx context.Context, rs []Ranking[M]) []Ranking[M] {
	if len(rs) <= ParallelSortThreshold || e.workers < 2 {
		slices.SortStableFunc(rs, e.compare)
		return rs
	}
	chunk := (len(rs) + e.workers - 1) / e.workers
	var parts [][]Ranking[M]
	for lo := 0; lo < len(rs); lo += chunk {
		parts = append(parts, rs[lo:min(lo+chunk, len(rs))])
	}
	var g errgroup.Group
	for _, p := range parts {
		g.Go(func() error {
			slices.SortStableFunc(p, e.compare)
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return rs
	}
	for len(parts) > 1 {
		next := make([][]Ranking[M], 0, (len(parts)+1)/2)
		for i := 0; i < len(parts); i += 2 {
			if i+1 == len(parts) {
				next = append(next, parts[i])
				continue
			}
			next = append(next, e.merge(parts[i], parts[i+1]))
		}
		parts = next
	}
	return parts[0]
}

func (e *Engine[M]) merge(a, b []Ranking[M]) []Ranking[M] {
	out := make([]Ranking[M], 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if e.compare(b[j], a[i]) < 0 {
			out = append(out, b[j])
			j++
		} else {
			out = append(out, a[i])
			i++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// FormatTable renders rankings under a markdown heading, one line per entry.
func (e *Engine[M]) FormatTable(rs []Ranking[M]) string {
	var b strings.Builder
	if len(rs) == 0 {
		fmt.Fprintf(&b, "## Top %s Files\n\nNo files found.\n", e.ranker.Type())
		return b.String()
	}
	fmt.Fprintf(&b, "## Top %d %s Files\n\n", len(rs), e.ranker.Type())
	if h := e.ranker.Header(); h != "" {
		b.WriteString(h)
		b.WriteByte('\n')
	}
	for i, r := range rs {
		b.WriteString(e.ranker.FormatEntry(i+1, r.File, r.Score))
		b.WriteByte('\n')
	}
	return b.String()
}

// TopFiles reports how many files were asked for and how many were ranked.
type TopFiles struct {
	Requested int `json:"requested"`
	Returned  int `json:"returned"`
}

// Report is the JSON form of a ranking.
type Report struct {
	AnalysisType string           `json:"analysis_type"`
	Timestamp    string           `json:"timestamp"`
	TopFiles     TopFiles         `json:"top_files"`
	Rankings     []map[string]any `json:"rankings"`
}

// BuildReport converts rankings to their JSON form. Each entry carries its
// rank and file followed by the metric's own fields.
func (e *Engine[M]) BuildReport(rs []Ranking[M], requested int, now time.Time) (Report, error) {
	rep := Report{
		AnalysisType: e.ranker.Type(),
		Timestamp:    now.UTC().Format(time.RFC3339),
		TopFiles:     TopFiles{Requested: requested, Returned: len(rs)},
		Rankings:     make([]map[string]any, 0, len(rs)),
	}
	for i, r := range rs {
		entry := map[string]any{}
		data, err := json.Marshal(r.Score)
		if err != nil {
			return Report{}, pmerrors.Internal("encode ranking", map[string]any{"file": r.File, "error": err.Error()})
		}
		if err := json.Unmarshal(data, &entry); err != nil {
			entry = map[string]any{"score": json.RawMessage(data)}
		}
		entry["rank"] = i + 1
		entry["file"] = r.File
		rep.Rankings = append(rep.Rankings, entry)
	}
	return rep, nil
}

// FormatJSON renders rankings as indented JSON.
func (e *Engine[M]) FormatJSON(rs []Ranking[M], requested int) ([]byte, error) {
	rep, err := e.BuildReport(rs, requested, time.Now())
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(rep, "", "  ")
}
