package coverage

import (
	"context"
	"regexp"
	"strconv"

	"pmat/internal/repostate"
)

// ChangeSet lists the files that differ between a base revision and HEAD.
type ChangeSet struct {
	Base     string   `json:"base"`
	Modified []string `json:"modified_files"`
	Added    []string `json:"added_files"`
	Deleted  []string `json:"deleted_files"`
}

// Changed returns the added and modified files.
func (c *ChangeSet) Changed() []string {
	out := make([]string, 0, len(c.Added)+len(c.Modified))
	out = append(out, c.Modified...)
	return append(out, c.Added...)
}

// Changes computes the change set of base..HEAD in the repository at root.
func Changes(ctx context.Context, root, base string) (*ChangeSet, error) {
	rng := base + "..HEAD"
	all, err := repostate.GitLines(ctx, root, "diff", "--name-only", rng)
	if err != nil {
		return nil, err
	}
	added, err := repostate.GitLines(ctx, root, "diff", "--name-only", "--diff-filter=A", rng)
	if err != nil {
		return nil, err
	}
	deleted, err := repostate.GitLines(ctx, root, "diff", "--name-only", "--diff-filter=D", rng)
	if err != nil {
		return nil, err
	}
	isAdded, isDeleted := set(added), set(deleted)
	cs := &ChangeSet{Base: base, Modified: []string{}, Added: []string{}, Deleted: []string{}}
	for _, p := range all {
		switch {
		case isAdded[p]:
			cs.Added = append(cs.Added, p)
		case isDeleted[p]:
			cs.Deleted = append(cs.Deleted, p)
		default:
			cs.Modified = append(cs.Modified, p)
		}
	}
	return cs, nil
}

func set(xs []string) map[string]bool {
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}

// hunkHeader matches the new-file side of a unified diff hunk.
var hunkHeader = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,(\d+))? @@`)

// ChangedLines returns the line numbers of file that base..HEAD added or
// rewrote, in ascending order.
func ChangedLines(ctx context.Context, root, base, file string) ([]int, error) {
	out, err := repostate.GitLines(ctx, root, "diff", "-U0", "--no-color", base+"..HEAD", "--", file)
	if err != nil {
		return nil, err
	}
	return parseHunks(out), nil
}

func parseHunks(diff []string) []int {
	var lines []int
	for _, l := range diff {
		m := hunkHeader.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		start, _ := strconv.Atoi(m[1])
		count := 1
		if m[2] != "" {
			count, _ = strconv.Atoi(m[2])
		}
		for i := range count {
			lines = append(lines, start+i)
		}
	}
	return lines
}
