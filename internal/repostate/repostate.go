// Package repostate resolves project roots and fingerprints git working
// trees.
package repostate

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	pmerrors "pmat/internal/errors"
)

const (
	// EmptyHash represents an empty diff/list hash
	EmptyHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	// DefaultTimeout bounds a single git invocation.
	DefaultTimeout = 5 * time.Second
)

// RepoState represents the current state of the repository
type RepoState struct {
	RepoStateID         string `json:"repo_state_id"`
	HeadCommit          string `json:"head_commit"`
	StagedDiffHash      string `json:"staged_diff_hash"`
	WorkingTreeDiffHash string `json:"working_tree_diff_hash"`
	UntrackedListHash   string `json:"untracked_list_hash"`
	Dirty               bool   `json:"dirty"`
	ComputedAt          string `json:"computed_at"`
}

// Compute fingerprints the working tree at root. The id changes whenever
// HEAD, the index, the working tree or the untracked file list changes.
func Compute(ctx context.Context, root string) (*RepoState, error) {
	head, err := Git(ctx, root, "rev-parse", "HEAD")
	if err != nil {
		return nil, err
	}
	staged, err := Git(ctx, root, "diff", "--cached")
	if err != nil {
		return nil, err
	}
	working, err := Git(ctx, root, "diff", "HEAD")
	if err != nil {
		return nil, err
	}
	untracked, err := Git(ctx, root, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}

	s := &RepoState{
		HeadCommit:          head,
		StagedDiffHash:      hashString(staged),
		WorkingTreeDiffHash: hashString(working),
		UntrackedListHash:   hashString(untracked),
		ComputedAt:          time.Now().UTC().Format(time.RFC3339),
	}
	s.Dirty = s.StagedDiffHash != EmptyHash || s.WorkingTreeDiffHash != EmptyHash || s.UntrackedListHash != EmptyHash
	s.RepoStateID = computeRepoStateID(s.HeadCommit, s.StagedDiffHash, s.WorkingTreeDiffHash, s.UntrackedListHash)
	return s, nil
}

// hashString computes SHA256 hash of a string
func hashString(s string) string {
	if s == "" {
		return EmptyHash
	}
	return fmt.Sprintf("%x", sha256.Sum256([]byte(s)))
}

// computeRepoStateID computes the composite repoStateId from all components
func computeRepoStateID(headCommit, stagedHash, workingHash, untrackedHash string) string {
	return hashString(strings.Join([]string{headCommit, stagedHash, workingHash, untrackedHash}, ":"))
}

// Git runs git in dir and returns its trimmed stdout. Failures carry the
// arguments and stderr; an elapsed deadline becomes a timeout error.
func Git(ctx context.Context, dir string, args ...string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}
	start := time.Now()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", pmerrors.FromContext(ctx.Err(), "git "+args[0], time.Since(start))
		}
		e := pmerrors.New(pmerrors.InternalError, "git command failed", err).WithDetail("args", args)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			e.WithDetail("stderr", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", e
	}
	return strings.TrimSpace(string(out)), nil
}

// GitLines runs git and returns its non-empty output lines.
func GitLines(ctx context.Context, dir string, args ...string) ([]string, error) {
	out, err := Git(ctx, dir, args...)
	if err != nil || out == "" {
		return nil, err
	}
	lines := strings.Split(out, "\n")
	result := lines[:0]
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result, nil
}

// IsGitRepository checks if the given path is inside a git work tree.
func IsGitRepository(path string) bool {
	_, err := FindRoot(path)
	return err == nil
}

// FindRoot walks upward from start looking for a .git entry and returns
// the directory containing it.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", pmerrors.Invalid(pmerrors.Problem{Field: "path", Message: err.Error()})
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", pmerrors.Invalid(pmerrors.Problem{Field: "path", Message: "not a git repository: " + start})
		}
		dir = parent
	}
}

// Resolve returns the absolute project path: path itself when given,
// otherwise the repository containing the working directory. With
// requireRepo set, non-repository paths are rejected.
func Resolve(path string, requireRepo bool) (string, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", pmerrors.Invalid(pmerrors.Problem{Field: "path", Message: err.Error()})
		}
		root, err := FindRoot(cwd)
		if err == nil {
			return root, nil
		}
		if requireRepo {
			return "", err
		}
		return cwd, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", pmerrors.Invalid(pmerrors.Problem{Field: "path", Message: err.Error()})
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", pmerrors.Invalid(pmerrors.Problem{Field: "path", Message: "not a directory: " + path})
	}
	if requireRepo {
		if _, err := FindRoot(abs); err != nil {
			return "", err
		}
	}
	return abs, nil
}
