package repostate

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	pmerrors "pmat/internal/errors"
	"pmat/internal/testutil"
)

func TestHashString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string returns empty hash",
			input:    "",
			expected: EmptyHash,
		},
		{
			name:     "simple string",
			input:    "hello",
			expected: fmt.Sprintf("%x", sha256.Sum256([]byte("hello"))),
		},
		{
			name:     "multiline string",
			input:    "line1\nline2\nline3",
			expected: fmt.Sprintf("%x", sha256.Sum256([]byte("line1\nline2\nline3"))),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := hashString(tc.input)
			if result != tc.expected {
				t.Errorf("hashString(%q) = %q, expected %q", tc.input, result, tc.expected)
			}
		})
	}
}

func TestComputeRepoStateID(t *testing.T) {
	a := computeRepoStateID("abc123", "staged", "working", "untracked")
	if len(a) != 64 {
		t.Errorf("Expected 64 character hash, got %d characters", len(a))
	}
	if b := computeRepoStateID("abc123", "staged", "working", "untracked"); a != b {
		t.Error("computeRepoStateID not consistent for same inputs")
	}
	if c := computeRepoStateID("different", "staged", "working", "untracked"); a == c {
		t.Error("Different inputs should produce different hashes")
	}
}

func TestEmptyHashConstant(t *testing.T) {
	expected := fmt.Sprintf("%x", sha256.Sum256([]byte("")))
	if EmptyHash != expected {
		t.Errorf("EmptyHash = %q, expected %q (SHA256 of empty string)", EmptyHash, expected)
	}
}

func newRepo(t *testing.T) string {
	return testutil.GitRepo(t, testutil.Commit{
		When:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Files: map[string]string{"src/main.rs": "fn main() {}\n"},
	})
}

func TestFindRoot(t *testing.T) {
	repo := newRepo(t)

	t.Run("from repo root", func(t *testing.T) {
		root, err := FindRoot(repo)
		if err != nil {
			t.Fatalf("FindRoot failed: %v", err)
		}
		if root != repo {
			t.Errorf("FindRoot(%s) = %s, expected %s", repo, root, repo)
		}
	})

	t.Run("from subdirectory", func(t *testing.T) {
		root, err := FindRoot(filepath.Join(repo, "src"))
		if err != nil {
			t.Fatalf("FindRoot from subdir failed: %v", err)
		}
		if root != repo {
			t.Errorf("FindRoot(src) = %s, expected %s", root, repo)
		}
	})

	t.Run("non-git directory returns invalid input", func(t *testing.T) {
		_, err := FindRoot(t.TempDir())
		if pmerrors.CodeOf(err) != pmerrors.InvalidInput {
			t.Errorf("FindRoot(tmp) error = %v, want INVALID_INPUT", err)
		}
	})
}

func TestResolve(t *testing.T) {
	repo := newRepo(t)
	plain := t.TempDir()

	tests := []struct {
		name        string
		path        string
		requireRepo bool
		want        string
		wantErr     bool
	}{
		{name: "repo path", path: repo, requireRepo: true, want: repo},
		{name: "plain dir for analysis", path: plain, want: plain},
		{name: "plain dir rejected when repo required", path: plain, requireRepo: true, wantErr: true},
		{name: "missing dir", path: filepath.Join(plain, "nope"), wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(tc.path, tc.requireRepo)
			if tc.wantErr {
				if err == nil {
					t.Errorf("Resolve(%s) = %s, want error", tc.path, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%s) failed: %v", tc.path, err)
			}
			if got != tc.want {
				t.Errorf("Resolve(%s) = %s, want %s", tc.path, got, tc.want)
			}
		})
	}
}

func TestCompute(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	state, err := Compute(ctx, repo)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(state.HeadCommit) != 40 {
		t.Errorf("HeadCommit should be 40 char SHA, got %q", state.HeadCommit)
	}
	if state.Dirty {
		t.Error("fresh repository should be clean")
	}

	again, err := Compute(ctx, repo)
	if err != nil {
		t.Fatalf("second Compute failed: %v", err)
	}
	if again.RepoStateID != state.RepoStateID {
		t.Errorf("RepoStateID changed without edits: %s vs %s", state.RepoStateID, again.RepoStateID)
	}

	if err := os.WriteFile(filepath.Join(repo, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	dirty, err := Compute(ctx, repo)
	if err != nil {
		t.Fatalf("Compute after edit failed: %v", err)
	}
	if !dirty.Dirty || dirty.UntrackedListHash == EmptyHash {
		t.Error("untracked file should make the tree dirty")
	}
	if dirty.RepoStateID == state.RepoStateID {
		t.Error("RepoStateID should change when the tree changes")
	}

	if _, err := Compute(ctx, t.TempDir()); err == nil {
		t.Error("Expected error for non-git directory")
	}
}

func TestGitLines(t *testing.T) {
	repo := newRepo(t)
	lines, err := GitLines(context.Background(), repo, "ls-files")
	if err != nil {
		t.Fatalf("GitLines failed: %v", err)
	}
	if len(lines) != 1 || lines[0] != "src/main.rs" {
		t.Errorf("GitLines(ls-files) = %v, want [src/main.rs]", lines)
	}
	if _, err := Git(context.Background(), repo, "rev-parse", "no-such-ref-xyz"); err == nil {
		t.Error("Expected error for invalid ref")
	}
}
