package projectctx

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pmerrors "pmat/internal/errors"
	"pmat/internal/pipeline"
	"pmat/internal/slogutil"
	"pmat/internal/testutil"
)

const cargoToml = `[package]
name = "demo"
version = "0.3.1"
edition = "2021"
description = "A demo crate"

[dependencies]
serde = { version = "1", features = ["derive"] }
anyhow = "1.0"
`

func loadRust(t *testing.T, extra map[string]string) *pipeline.Project {
	t.Helper()
	files := map[string]string{
		"src/main.rs":  testutil.RustMainSource,
		"src/utils.rs": testutil.RustUtilsSource,
	}
	for k, v := range extra {
		files[k] = v
	}
	root := testutil.WriteProject(t, files)
	p := pipeline.New(slogutil.NewDiscardLogger(), testutil.Registry(testutil.RustProject(t)...), nil)
	proj, err := p.Load(context.Background(), root, pipeline.Options{})
	require.NoError(t, err)
	return proj
}

func TestDetectMetadata(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  Metadata
	}{
		{
			name:  "cargo",
			files: map[string]string{"Cargo.toml": cargoToml},
			want: Metadata{Kind: KindRust, Manifest: "Cargo.toml", Name: "demo", Version: "0.3.1",
				Description: "A demo crate", Edition: "2021", Dependencies: []string{"anyhow", "serde"}},
		},
		{
			name: "cargo workspace member",
			files: map[string]string{"Cargo.toml": `[package]
name = "member"
version.workspace = true
edition.workspace = true
`},
			want: Metadata{Kind: KindRust, Manifest: "Cargo.toml", Name: "member"},
		},
		{
			name: "pyproject",
			files: map[string]string{"pyproject.toml": `[project]
name = "tool"
version = "1.2.0"
requires-python = ">=3.11"
dependencies = ["requests>=2.31", "rich[jupyter] ~= 13.0", "click"]
`},
			want: Metadata{Kind: KindPython, Manifest: "pyproject.toml", Name: "tool", Version: "1.2.0",
				Python: ">=3.11", Dependencies: []string{"click", "requests", "rich"}},
		},
		{
			name: "poetry",
			files: map[string]string{"pyproject.toml": `[tool.poetry]
name = "legacy"
version = "0.1.0"

[tool.poetry.dependencies]
python = "^3.10"
httpx = "^0.27"
`},
			want: Metadata{Kind: KindPython, Manifest: "pyproject.toml", Name: "legacy", Version: "0.1.0",
				Python: "^3.10", Dependencies: []string{"httpx"}},
		},
		{
			name: "deno jsonc",
			files: map[string]string{"deno.jsonc": `{
  // workspace config
  "name": "@me/app",
  "version": "0.0.1",
  "imports": {"@std/path": "jsr:@std/path@^1.0.0"}
}`},
			want: Metadata{Kind: KindDeno, Manifest: "deno.jsonc", Name: "@me/app", Version: "0.0.1",
				Dependencies: []string{"@std/path"}},
		},
		{
			name: "cargo wins over package.json",
			files: map[string]string{
				"Cargo.toml":   "[package]\nname = \"both\"\n",
				"package.json": `{"name": "web"}`,
			},
			want: Metadata{Kind: KindRust, Manifest: "Cargo.toml", Name: "both"},
		},
		{
			name:  "none",
			files: map[string]string{"main.c": "int main(){}"},
			want:  Metadata{Kind: KindUnknown},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := DetectMetadata(testutil.WriteProject(t, tt.files))
			require.NoError(t, err)
			assert.Equal(t, tt.want, *meta)
		})
	}
}

func TestDetectMetadata_Malformed(t *testing.T) {
	root := testutil.WriteProject(t, map[string]string{"Cargo.toml": "[package\nname = "})
	_, err := DetectMetadata(root)
	require.Error(t, err)
	assert.Equal(t, pmerrors.ParseError, pmerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "Cargo.toml")
}

func TestBuild_RustProject(t *testing.T) {
	proj := loadRust(t, map[string]string{"Cargo.toml": cargoToml})
	meta, err := DetectMetadata(proj.Root)
	require.NoError(t, err)

	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	c, err := Build(proj, meta, Options{Now: now})
	require.NoError(t, err)

	assert.Equal(t, KindRust, c.ProjectType)
	assert.Equal(t, now, c.GeneratedAt)
	require.Len(t, c.Files, 2)
	assert.Equal(t, "src/main.rs", c.Files[0].Path)

	s := c.Summary
	assert.Equal(t, 2, s.TotalFiles)
	assert.Equal(t, 1, s.Structs)
	assert.Equal(t, 1, s.Traits)
	assert.Equal(t, 1, s.Impls)
	assert.Equal(t, 1, s.Modules)
	assert.Equal(t, 6, s.Functions)
	assert.Equal(t, []string{"anyhow", "serde"}, s.Dependencies)

	byName := map[string]Item{}
	for _, it := range c.Files[1].Items {
		byName[it.Name] = it
	}
	assert.Equal(t, "public", byName["helper_function"].Visibility)
	assert.Equal(t, ItemFunction, byName["complex_function"].Type)
	assert.Equal(t, 2, byName["complex_function"].Cyclomatic)

	var impl Item
	for _, it := range c.Files[0].Items {
		if it.Type == ItemImpl {
			impl = it
		}
	}
	assert.Equal(t, "Processable for Config", impl.Detail)
}

func TestBuild_ToolchainFilter(t *testing.T) {
	proj := loadRust(t, nil)

	c, err := Build(proj, nil, Options{Toolchain: "deno"})
	require.NoError(t, err)
	assert.Empty(t, c.Files)
	assert.Equal(t, KindUnknown, c.ProjectType)

	c, err = Build(proj, nil, Options{Toolchain: "RUST"})
	require.NoError(t, err)
	assert.Len(t, c.Files, 2)
	assert.Equal(t, "rust", c.ProjectType)

	_, err = Build(proj, nil, Options{Toolchain: "cobol"})
	require.Error(t, err)
	assert.Equal(t, pmerrors.InvalidInput, pmerrors.CodeOf(err))
}

func TestContext_Markdown(t *testing.T) {
	proj := loadRust(t, map[string]string{"Cargo.toml": cargoToml})
	meta, err := DetectMetadata(proj.Root)
	require.NoError(t, err)
	c, err := Build(proj, meta, Options{Now: time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	md := c.Markdown()
	assert.Contains(t, md, "# Project Context: Rust Project\n")
	assert.Contains(t, md, "Generated: 2026-05-04T00:00:00Z\n")
	assert.Contains(t, md, "Project: demo 0.3.1\n")
	assert.Contains(t, md, "- Files analyzed: 2\n")
	assert.Contains(t, md, "- Implementations: 1\n")
	assert.Contains(t, md, "## Dependencies\n\n- anyhow\n- serde\n")
	assert.Contains(t, md, "### src/main.rs\n")
	assert.Contains(t, md, "**Modules:**\n- `utils` (line 1)\n")
	assert.Contains(t, md, "`impl Processable for Config`")
	assert.Contains(t, md, "- `pub helper_function` (line 1)\n")
	assert.Contains(t, md, "`pub complex_function` (line 5) complexity 2")
	assert.Less(t, strings.Index(md, "### src/main.rs"), strings.Index(md, "### src/utils.rs"))
}

func TestContext_JSON(t *testing.T) {
	proj := loadRust(t, nil)
	c, err := Build(proj, nil, Options{})
	require.NoError(t, err)

	data, err := json.Marshal(c)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "rust", decoded["project_type"])
	summary := decoded["summary"].(map[string]any)
	assert.EqualValues(t, 2, summary["total_files"])
	assert.Equal(t, []any{}, summary["dependencies"])
}
