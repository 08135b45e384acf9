package templates

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pmerrors "pmat/internal/errors"
)

func catalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Default()
	require.NoError(t, err)
	return c
}

func TestParseParam(t *testing.T) {
	tests := []struct {
		arg  string
		key  string
		want any
	}{
		{"project_name=demo", "project_name", "demo"},
		{"has_tests=false", "has_tests", false},
		{"has_tests=true", "has_tests", true},
		{"has_tests", "", nil},
		{"has_tests=", "has_tests", true},
		{"python_version=3.12", "python_version", 3.12},
		{"port=8080", "port", int64(8080)},
		{"id=9007199254740993", "id", int64(9007199254740993)},
		{"ratio=1e3", "ratio", 1000.0},
		{"mode=inf", "mode", "inf"},
		{"mode=-Infinity", "mode", "-Infinity"},
		{"mode=NaN", "mode", "NaN"},
		{"expr=a=b", "expr", "a=b"},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			k, v, err := ParseParam(tt.arg)
			if tt.key == "" {
				require.Error(t, err)
				assert.Equal(t, pmerrors.InvalidInput, pmerrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.key, k)
			assert.Equal(t, tt.want, v)
			_, err = json.Marshal(map[string]any{k: v})
			assert.NoError(t, err)
		})
	}
}

func TestCheck_NumberMustBeFinite(t *testing.T) {
	tmpl := &Template{Parameters: []ParameterSpec{{Name: "width", Type: TypeNumber, Required: true}}}
	for _, v := range []any{"inf", "NaN", "-Infinity"} {
		problems := tmpl.Check(map[string]any{"width": v})
		require.Len(t, problems, 1, "%v", v)
		assert.Equal(t, "width", problems[0].Field)
	}
	assert.Empty(t, tmpl.Check(map[string]any{"width": int64(9007199254740993)}))
	assert.Empty(t, tmpl.Check(map[string]any{"width": "2.5"}))
	assert.Equal(t, 2.5, tmpl.Resolve(map[string]any{"width": "2.5"})["width"])
}

func TestParseParams_ReportsEveryProblem(t *testing.T) {
	_, err := ParseParams([]string{"a=1", "broken", "=x", "b=2"})
	require.Error(t, err)
	pe, ok := pmerrors.As(err)
	require.True(t, ok)
	assert.Contains(t, pe.Error(), "broken")
	assert.Contains(t, pe.Error(), "=x")
}

func TestCatalog_List(t *testing.T) {
	c := catalog(t)
	assert.Equal(t, 9, c.Len())

	all, err := c.List("", "")
	require.NoError(t, err)
	require.Len(t, all, 9)
	assert.Equal(t, "template://makefile/rust/cli", all[0].URI)
	assert.Equal(t, PythonUV, all[8].Toolchain)
	for _, tmpl := range all {
		assert.Len(t, tmpl.ContentHash, 64)
	}

	deno, err := c.List("deno", "")
	require.NoError(t, err)
	assert.Len(t, deno, 3)

	readmes, err := c.List("", "readme")
	require.NoError(t, err)
	assert.Len(t, readmes, 3)

	_, err = c.List("cobol", "poem")
	require.Error(t, err)
	assert.Equal(t, pmerrors.InvalidInput, pmerrors.CodeOf(err))
}

func TestCatalog_Get(t *testing.T) {
	c := catalog(t)

	tmpl, err := c.Get("template://gitignore/deno/cli")
	require.NoError(t, err)
	assert.Equal(t, Gitignore, tmpl.Category)

	_, err = c.Get("template://makefile/go/cli")
	assert.Equal(t, pmerrors.NotFound, pmerrors.CodeOf(err))

	_, err = c.Get("makefile/rust/cli")
	assert.Equal(t, pmerrors.InvalidInput, pmerrors.CodeOf(err))
}

func TestCatalog_Generate(t *testing.T) {
	c := catalog(t)

	out, err := c.Generate("template://makefile/rust/cli", map[string]any{"project_name": "x"})
	require.NoError(t, err)
	assert.Equal(t, "x/Makefile", out.Filename)
	assert.Equal(t, Rust, out.Toolchain)
	assert.Contains(t, out.Content, "# Makefile for x")
	assert.Contains(t, out.Content, "\ntest:\n")
	assert.NotContains(t, out.Content, "bench:")
	assert.Contains(t, out.Content, "--bin x")

	sum := sha256.Sum256([]byte(out.Content))
	assert.Equal(t, hex.EncodeToString(sum[:]), out.Checksum)

	again, err := c.Generate("template://makefile/rust/cli", map[string]any{"project_name": "x"})
	require.NoError(t, err)
	assert.Equal(t, out.Checksum, again.Checksum)

	bench, err := c.Generate("template://makefile/rust/cli", map[string]any{
		"project_name": "x", "has_benchmarks": true, "has_tests": "false",
	})
	require.NoError(t, err)
	assert.Contains(t, bench.Content, "bench:")
	assert.NotContains(t, bench.Content, "\ntest:\n")
}

func TestCatalog_GenerateNumberRendersAsWritten(t *testing.T) {
	c := catalog(t)
	params, err := ParseParams([]string{"project_name=tool", "python_version=3.12"})
	require.NoError(t, err)

	out, err := c.Generate("template://makefile/python-uv/cli", params)
	require.NoError(t, err)
	assert.Equal(t, "tool/Makefile", out.Filename)
	assert.Contains(t, out.Content, "3.12")
	assert.NotContains(t, out.Content, "3.120")
}

func TestCatalog_Validate(t *testing.T) {
	c := catalog(t)

	res, err := c.Validate("template://readme/rust/cli", map[string]any{"project_name": "ok-name"})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)

	res, err = c.Validate("template://readme/rust/cli", map[string]any{
		"author":  "-bad-",
		"license": "has spaces",
		"colour":  "blue",
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	fields := make([]string, 0, len(res.Errors))
	for _, p := range res.Errors {
		fields = append(fields, p.Field)
	}
	assert.ElementsMatch(t, []string{"project_name", "author", "license", "colour"}, fields)

	res, err = c.Validate("template://makefile/rust/cli", map[string]any{"project_name": "9lives", "has_tests": "maybe"})
	require.NoError(t, err)
	assert.Len(t, res.Errors, 2)

	_, err = c.Generate("template://makefile/rust/cli", map[string]any{})
	assert.Equal(t, pmerrors.InvalidInput, pmerrors.CodeOf(err))
}

func TestCatalog_Search(t *testing.T) {
	c := catalog(t)

	hits := c.Search("Rust CLI Makefile", "", 0)
	require.NotEmpty(t, hits)
	assert.Equal(t, "template://makefile/rust/cli", hits[0].Template.URI)
	assert.Contains(t, hits[0].Matches, "name")

	hits = c.Search("makefil", Deno, 0)
	require.Len(t, hits, 1)
	assert.Equal(t, "template://makefile/deno/cli", hits[0].Template.URI)

	hits = c.Search("readme", "", 2)
	assert.Len(t, hits, 2)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Relevance, hits[i].Relevance)
	}

	assert.Empty(t, c.Search("   ", "", 0))
	assert.Empty(t, c.Search("kubernetes", "", 0))
}

func TestCatalog_Scaffold(t *testing.T) {
	c := catalog(t)

	res, err := c.Scaffold(context.Background(), Deno, nil, map[string]any{"project_name": "app", "license": "Apache-2.0"})
	require.NoError(t, err)
	require.Len(t, res.Files, 3)
	assert.Empty(t, res.Errors)
	assert.Equal(t, "app/Makefile", res.Files[0].Filename)
	assert.Equal(t, "app/README.md", res.Files[1].Filename)
	assert.Equal(t, "app/.gitignore", res.Files[2].Filename)

	res, err = c.Scaffold(context.Background(), Rust, []Category{Gitignore, Readme}, map[string]any{"project_name": "bad name"})
	require.NoError(t, err)
	assert.Empty(t, res.Files)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "template://gitignore/rust/cli", res.Errors[0].Template)

	_, err = c.Scaffold(context.Background(), "zig", nil, nil)
	assert.Equal(t, pmerrors.InvalidInput, pmerrors.CodeOf(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Scaffold(ctx, Rust, nil, map[string]any{"project_name": "app"})
	assert.Equal(t, pmerrors.Cancelled, pmerrors.CodeOf(err))
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	g := &Generated{Content: "hello\n", Filename: "demo/README.md"}

	_, err := Write(dir, g, false)
	assert.Equal(t, pmerrors.NotFound, pmerrors.CodeOf(err))

	path, err := Write(dir, g, true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "demo", "README.md"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestLoad_RejectsBadManifest(t *testing.T) {
	fsys := fstest.MapFS{
		ManifestFile: {Data: []byte(`
version = 1

[[template]]
uri = "template://makefile/rust/cli"
category = "readme"
toolchain = "rust"
variant = "cli"
file = "a.tmpl"

[[template]]
uri = "template://gitignore/rust/cli"
category = "gitignore"
toolchain = "rust"
variant = "cli"
file = "missing.tmpl"
`)},
		"a.tmpl": {Data: []byte("x")},
	}
	_, err := Load(fsys)
	require.Error(t, err)
	assert.Equal(t, pmerrors.InvalidInput, pmerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "missing.tmpl")

	_, err = Load(fstest.MapFS{})
	assert.Equal(t, pmerrors.NotFound, pmerrors.CodeOf(err))
}
