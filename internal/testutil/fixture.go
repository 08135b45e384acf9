// Package testutil provides project fixtures, hand-built parse views and
// JSON normalization for tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

// WriteProject creates a temporary project containing files (slash-separated
// relative path to content) and returns its root.
func WriteProject(t testing.TB, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	WriteFiles(t, root, files)
	return root
}

// WriteFiles writes files below root, creating parent directories.
func WriteFiles(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("Failed to create directory for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", rel, err)
		}
	}
}

// Commit is one commit of a GitRepo fixture. Files with empty content are
// deleted.
type Commit struct {
	Author  string
	When    time.Time
	Message string
	Files   map[string]string
}

// GitRepo creates a temporary git repository with the given commits applied
// in order. The test is skipped when git is not installed.
func GitRepo(t testing.TB, commits ...Commit) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	root := t.TempDir()
	Git(t, root, time.Time{}, "", "init", "-q", "-b", "main")
	for i, c := range commits {
		paths := make([]string, 0, len(c.Files))
		for rel := range c.Files {
			paths = append(paths, rel)
		}
		sort.Strings(paths)
		for _, rel := range paths {
			if c.Files[rel] == "" {
				Git(t, root, time.Time{}, "", "rm", "-q", rel)
				continue
			}
			WriteFiles(t, root, map[string]string{rel: c.Files[rel]})
			Git(t, root, time.Time{}, "", "add", rel)
		}
		msg := c.Message
		if msg == "" {
			msg = "commit " + string(rune('a'+i%26))
		}
		author := c.Author
		if author == "" {
			author = "Test Author"
		}
		Git(t, root, c.When, author, "commit", "-q", "--allow-empty", "-m", msg)
	}
	return root
}

// Git runs git in dir with a fixed identity and returns trimmed stdout.
// A non-zero when pins both author and committer dates.
func Git(t testing.TB, dir string, when time.Time, author string, args ...string) string {
	t.Helper()
	if author == "" {
		author = "Test Author"
	}
	email := strings.ToLower(strings.ReplaceAll(author, " ", ".")) + "@example.com"
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME="+author, "GIT_AUTHOR_EMAIL="+email,
		"GIT_COMMITTER_NAME="+author, "GIT_COMMITTER_EMAIL="+email,
		"GIT_CONFIG_NOSYSTEM=1", "HOME="+dir,
	)
	if !when.IsZero() {
		stamp := when.Format(time.RFC3339)
		cmd.Env = append(cmd.Env, "GIT_AUTHOR_DATE="+stamp, "GIT_COMMITTER_DATE="+stamp)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}
