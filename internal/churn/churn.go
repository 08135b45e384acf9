// Package churn measures how often and how heavily files change in git
// history.
package churn

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"pmat/internal/cache"
	pmerrors "pmat/internal/errors"
	"pmat/internal/repostate"
	"pmat/internal/slogutil"
)

// DefaultPeriodDays is the default analysis window.
const DefaultPeriodDays = 30

// FileMetrics represents churn statistics for a file
type FileMetrics struct {
	Path          string    `json:"path"`
	CommitCount   int       `json:"commit_count"`
	UniqueAuthors []string  `json:"unique_authors"`
	Additions     int       `json:"additions"`
	Deletions     int       `json:"deletions"`
	ChurnScore    float64   `json:"churn_score"`
	HotspotScore  float64   `json:"hotspot_score"`
	LastModified  time.Time `json:"last_modified"`
	FirstSeen     time.Time `json:"first_seen"`
}

// Summary aggregates churn over the repository.
type Summary struct {
	TotalCommits        int            `json:"total_commits"`
	TotalFilesChanged   int            `json:"total_files_changed"`
	HotspotFiles        []string       `json:"hotspot_files"`
	StableFiles         []string       `json:"stable_files"`
	AuthorContributions map[string]int `json:"author_contributions"`
}

// Analysis is the result of one churn run.
type Analysis struct {
	GeneratedAt    time.Time     `json:"generated_at"`
	PeriodDays     int           `json:"period_days"`
	RepositoryRoot string        `json:"repository_root"`
	HeadCommit     string        `json:"head_commit"`
	Files          []FileMetrics `json:"files"`
	Summary        Summary       `json:"summary"`
}

// File returns the metrics of a repository-relative path.
func (a *Analysis) File(rel string) (FileMetrics, bool) {
	for _, f := range a.Files {
		if f.Path == rel {
			return f, true
		}
	}
	return FileMetrics{}, false
}

// Analyzer runs churn analysis, caching results per HEAD commit.
type Analyzer struct {
	logger *slog.Logger
	cache  *cache.Persistent[cache.RepoRequest, *Analysis]
	now    func() time.Time
}

// NewAnalyzer creates an analyzer. cacheDir may be empty to cache in
// memory only.
func NewAnalyzer(logger *slog.Logger, cacheDir string) (*Analyzer, error) {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	strategy := cache.RepoStrategy[*Analysis]{
		Namespace: "churn",
		Lifetime:  cache.ChurnTTL,
		Size:      cache.ChurnMaxSize,
		Head:      headCommit,
		HeadOf:    func(a *Analysis) string { return a.HeadCommit },
	}
	c, err := cache.New(strategy, cacheDir, cache.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return &Analyzer{logger: logger, cache: c, now: time.Now}, nil
}

func headCommit(root string) string {
	head, err := repostate.Git(context.Background(), root, "rev-parse", "HEAD")
	if err != nil {
		return ""
	}
	return head
}

// Analyze computes churn for the last periodDays days of root's history.
// root must be a git repository; an empty history yields an empty analysis.
func (a *Analyzer) Analyze(ctx context.Context, root string, periodDays int) (*Analysis, error) {
	if periodDays <= 0 {
		periodDays = DefaultPeriodDays
	}
	if _, err := repostate.FindRoot(root); err != nil {
		return nil, err
	}
	req := cache.RepoRequest{Root: root, Params: strconv.Itoa(periodDays)}
	if cached, ok := a.cache.Get(req); ok {
		a.logger.Debug("churn cache hit", "root", root)
		return cached, nil
	}

	start := time.Now()
	now := a.now().UTC()
	since := now.AddDate(0, 0, -periodDays).Format("2006-01-02")
	lines, err := repostate.GitLines(ctx, root, "log", "--since="+since, "--format=commit|%H|%an|%aI", "--numstat")
	if err != nil {
		if ctx.Err() != nil {
			return nil, pmerrors.FromContext(ctx.Err(), "churn analysis", time.Since(start))
		}
		// A repository without commits has no history to analyze.
		if strings.Contains(stderrOf(err), "does not have any commits") {
			lines = nil
		} else {
			return nil, err
		}
	}

	files := Parse(lines)
	analysis := &Analysis{
		GeneratedAt:    now,
		PeriodDays:     periodDays,
		RepositoryRoot: root,
		HeadCommit:     headCommit(root),
		Files:          files,
		Summary:        Summarize(files),
	}
	if err := a.cache.Put(req, analysis); err != nil {
		a.logger.Warn("churn cache write failed", "error", err)
	}
	a.logger.Info("churn analysis completed", "files", len(files), "duration", time.Since(start))
	return analysis, nil
}

func stderrOf(err error) string {
	if pe, ok := pmerrors.As(err); ok {
		s, _ := pe.Details["stderr"].(string)
		return s
	}
	return ""
}

type fileStats struct {
	commits   int
	authors   map[string]bool
	additions int
	deletions int
	first     time.Time
	last      time.Time
}

// Parse aggregates `git log --format=commit|%H|%an|%aI --numstat` output
// into scored per-file metrics, ordered by churn score then path.
func Parse(lines []string) []FileMetrics {
	stats := make(map[string]*fileStats)
	var author string
	var when time.Time
	for _, line := range lines {
		if rest, ok := strings.CutPrefix(line, "commit|"); ok {
			parts := strings.SplitN(rest, "|", 3)
			if len(parts) == 3 {
				author = parts[1]
				when, _ = time.Parse(time.RFC3339, parts[2])
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		added, err1 := strconv.Atoi(fields[0])
		deleted, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			continue // binary file
		}
		path := renamedTarget(strings.Join(fields[2:], " "))
		s, ok := stats[path]
		if !ok {
			s = &fileStats{authors: make(map[string]bool), first: when, last: when}
			stats[path] = s
		}
		s.commits++
		s.authors[author] = true
		s.additions += added
		s.deletions += deleted
		if when.After(s.last) {
			s.last = when
		}
		if when.Before(s.first) {
			s.first = when
		}
	}

	maxCommits, maxChanges := 0, 0
	for _, s := range stats {
		maxCommits = max(maxCommits, s.commits)
		maxChanges = max(maxChanges, s.additions+s.deletions)
	}

	out := make([]FileMetrics, 0, len(stats))
	for path, s := range stats {
		authors := make([]string, 0, len(s.authors))
		for a := range s.authors {
			authors = append(authors, a)
		}
		slices.Sort(authors)
		avg := float64(s.additions+s.deletions) / float64(s.commits)
		out = append(out, FileMetrics{
			Path:          path,
			CommitCount:   s.commits,
			UniqueAuthors: authors,
			Additions:     s.additions,
			Deletions:     s.deletions,
			ChurnScore:    Score(s.commits, s.additions+s.deletions, maxCommits, maxChanges),
			HotspotScore:  math.Sqrt(float64(s.commits)) * math.Log(float64(len(authors))+1) * math.Log(avg+1),
			LastModified:  s.last,
			FirstSeen:     s.first,
		})
	}
	slices.SortFunc(out, func(x, y FileMetrics) int {
		return cmp.Or(cmp.Compare(y.ChurnScore, x.ChurnScore), cmp.Compare(x.Path, y.Path))
	})
	return out
}

// renamedTarget resolves numstat rename notation ("a => b" and
// "dir/{a => b}/f") to the new path.
func renamedTarget(p string) string {
	if !strings.Contains(p, " => ") {
		return p
	}
	if open := strings.Index(p, "{"); open >= 0 {
		if end := strings.Index(p[open:], "}"); end > 0 {
			inner := p[open+1 : open+end]
			_, to, _ := strings.Cut(inner, " => ")
			joined := p[:open] + to + p[open+end+1:]
			return strings.ReplaceAll(joined, "//", "/")
		}
	}
	_, to, _ := strings.Cut(p, " => ")
	return to
}

// Score weighs commit frequency (0.6) and changed lines (0.4) relative to
// the busiest file, capped at 1.
func Score(commits, changes, maxCommits, maxChanges int) float64 {
	var commitFactor, changeFactor float64
	if maxCommits > 0 {
		commitFactor = float64(commits) / float64(maxCommits)
	}
	if maxChanges > 0 {
		changeFactor = float64(changes) / float64(maxChanges)
	}
	return math.Min(commitFactor*0.6+changeFactor*0.4, 1)
}

// Summarize derives repository totals, hotspots (top ten scoring above
// 0.5) and stable files (bottom ten scoring below 0.1).
func Summarize(files []FileMetrics) Summary {
	s := Summary{
		TotalFilesChanged:   len(files),
		HotspotFiles:        []string{},
		StableFiles:         []string{},
		AuthorContributions: make(map[string]int),
	}
	for _, f := range files {
		s.TotalCommits += f.CommitCount
		for _, a := range f.UniqueAuthors {
			s.AuthorContributions[a]++
		}
	}
	for i, f := range files {
		if i >= 10 {
			break
		}
		if f.ChurnScore > 0.5 {
			s.HotspotFiles = append(s.HotspotFiles, f.Path)
		}
	}
	for i := len(files) - 1; i >= 0 && i >= len(files)-10; i-- {
		if f := files[i]; f.ChurnScore < 0.1 && f.CommitCount > 0 {
			s.StableFiles = append(s.StableFiles, f.Path)
		}
	}
	return s
}

// RecencyWeight decays from 1 for a change made now, halving every 30
// days.
func RecencyWeight(last, now time.Time) float64 {
	if last.IsZero() {
		return 0
	}
	days := max(now.Sub(last).Hours()/24, 0)
	return math.Pow(0.5, days/30)
}
