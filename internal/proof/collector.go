package proof

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	pmerrors "pmat/internal/errors"
	"pmat/internal/slogutil"
)

// Source produces annotations for a project. Implementations read files
// under root and the shared cache only, and return promptly once ctx is
// done.
type Source interface {
	Name() string
	Collect(ctx context.Context, root string, cache *Cache, symbols *SymbolTable) (*Result, error)
}

// Result is the output of one source.
type Result struct {
	Annotations []Located
	// Errors are per-file problems that did not stop the source.
	Errors  []error
	Metrics Metrics
}

// Metrics describes one source run.
type Metrics struct {
	FilesProcessed   int           `json:"files_processed"`
	AnnotationsFound int           `json:"annotations_found"`
	CacheHits        int           `json:"cache_hits"`
	Duration         time.Duration `json:"duration"`
}

// SourceReport summarizes how a source fared in one collection.
type SourceReport struct {
	Name    string  `json:"name"`
	Metrics Metrics `json:"metrics"`
	Errors  int     `json:"errors"`
	// Failed is set when the source returned an error or panicked.
	Failed string `json:"failed,omitempty"`
}

// Annotator runs sources concurrently and merges their output.
type Annotator struct {
	sources []Source
	cache   *Cache
	logger  *slog.Logger
}

// NewAnnotator creates an annotator with its own cache.
func NewAnnotator(logger *slog.Logger, sources ...Source) *Annotator {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Annotator{sources: sources, cache: NewCache(), logger: logger}
}

// AddSource registers another source.
func (a *Annotator) AddSource(s Source) { a.sources = append(a.sources, s) }

// Cache exposes the shared cache.
func (a *Annotator) Cache() *Cache { return a.cache }

// Collect runs every source in parallel and merges the results in source
// registration order once all have settled, so the outcome does not depend
// on completion order. A failing or panicking source is logged and
// dropped. If ctx ends first the whole collection fails with a timeout or
// cancellation error.
func (a *Annotator) Collect(ctx context.Context, root string, symbols *SymbolTable) (Map, []SourceReport, error) {
	start := time.Now()
	if symbols == nil {
		symbols = NewSymbolTable()
	}
	results := make([]*Result, len(a.sources))
	reports := make([]SourceReport, len(a.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range a.sources {
		reports[i].Name = src.Name()
		g.Go(func() error {
			res, err := a.run(gctx, src, root, symbols)
			if err != nil {
				reports[i].Failed = err.Error()
				a.logger.Warn("proof source dropped", "source", src.Name(), "error", err)
				return nil
			}
			results[i] = res
			reports[i].Metrics = res.Metrics
			reports[i].Errors = len(res.Errors)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, pmerrors.FromContext(err, "proof collection", time.Since(start))
	}

	sets := make([][]Located, 0, len(results))
	errCount := 0
	for _, r := range results {
		if r != nil {
			sets = append(sets, r.Annotations)
			errCount += len(r.Errors)
		}
	}
	m := Merge(sets...)
	if errCount > 0 {
		a.logger.Warn("proof collection had per-file errors", "errors", errCount)
	}
	a.logger.Info("proof collection completed",
		"sources", len(a.sources), "annotations", m.Len(), "duration", time.Since(start))
	return m, reports, nil
}

func (a *Annotator) run(ctx context.Context, src Source, root string, symbols *SymbolTable) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, pmerrors.Internal(fmt.Sprintf("proof source %s panicked: %v", src.Name(), r), nil)
		}
	}()
	start := time.Now()
	a.logger.Debug("proof source started", "source", src.Name())
	res, err = src.Collect(ctx, root, a.cache, symbols)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Result{}
	}
	res.Metrics.AnnotationsFound = len(res.Annotations)
	if res.Metrics.Duration == 0 {
		res.Metrics.Duration = time.Since(start)
	}
	a.logger.Debug("proof source finished", "source", src.Name(), "annotations", len(res.Annotations))
	return res, nil
}
