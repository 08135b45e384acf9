package classifier

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIgnoredDirs are never descended into.
var DefaultIgnoredDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"target":       true,
	"dist":         true,
	"build":        true,
	"__pycache__":  true,
	".venv":        true,
	".pmat-cache":  true,
	".pmat":        true,
}

// DiscoverOptions filters a project walk.
type DiscoverOptions struct {
	// Exclude holds doublestar globs matched against slash-separated relative paths.
	Exclude []string
	// Include, when non-empty, keeps only paths matching one of these globs.
	Include []string
	// Accept filters by path after globbing, typically on a known extension.
	Accept func(rel string) bool
	// MaxFiles stops the walk once reached. Zero means unlimited.
	MaxFiles int
}

// Discover walks root and returns sorted slash-separated relative paths.
func Discover(ctx context.Context, root string, opts DiscoverOptions) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if DefaultIgnoredDirs[d.Name()] || matchAny(opts.Exclude, rel) || matchAny(opts.Exclude, rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if matchAny(opts.Exclude, rel) {
			return nil
		}
		if len(opts.Include) > 0 && !matchAny(opts.Include, rel) {
			return nil
		}
		if opts.Accept != nil && !opts.Accept(rel) {
			return nil
		}

		files = append(files, rel)
		if opts.MaxFiles > 0 && len(files) >= opts.MaxFiles {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		// Bare directory names such as "generated" match anywhere in the path.
		if !strings.ContainsAny(p, "*?[/") {
			for _, seg := range strings.Split(rel, "/") {
				if seg == p {
					return true
				}
			}
		}
	}
	return false
}
