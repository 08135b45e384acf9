package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmat/internal/cache"
	"pmat/internal/classifier"
	pmerrors "pmat/internal/errors"
	"pmat/internal/parser"
	"pmat/internal/slogutil"
	"pmat/internal/testutil"
)

func rustProject(t *testing.T) (string, *parser.Registry) {
	t.Helper()
	root := testutil.WriteProject(t, map[string]string{
		"src/main.rs":   testutil.RustMainSource,
		"src/utils.rs":  testutil.RustUtilsSource,
		"src/empty.rs":  "",
		"src/broken.rs": "fn broken(",
		"README.md":     "# demo\n",
		"target/out.rs": "fn generated() {}\n",
	})
	return root, testutil.Registry(testutil.RustProject(t)...)
}

func TestLoad(t *testing.T) {
	root, reg := rustProject(t)
	p := New(slogutil.NewDiscardLogger(), reg, nil)

	proj, err := p.Load(context.Background(), root, Options{Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"src/main.rs", "src/utils.rs"}, proj.Files)
	assert.Equal(t, []Skipped{{Path: "src/empty.rs", Reason: classifier.EmptyFile}}, proj.Skipped)
	require.Len(t, proj.Errors, 1)
	assert.Equal(t, "src/broken.rs", proj.Errors[0].Path)
	assert.Equal(t, pmerrors.ParseError, proj.Errors[0].Code)

	require.Len(t, proj.Arena.Files, 2)
	assert.Equal(t, "src/main.rs", proj.Arena.Files[0].Path)
	assert.True(t, proj.Arena.Frozen())
	assert.NotEmpty(t, proj.Arena.Functions())
	assert.Equal(t, filepath.Join(proj.Root, "src", "utils.rs"), proj.Abs("src/utils.rs"))
}

func TestLoad_Deterministic(t *testing.T) {
	root, reg := rustProject(t)
	p := New(slogutil.NewDiscardLogger(), reg, nil)

	a, err := p.Load(context.Background(), root, Options{Workers: 1})
	require.NoError(t, err)
	b, err := p.Load(context.Background(), root, Options{Workers: 8})
	require.NoError(t, err)
	assert.Equal(t, a.Files, b.Files)
	assert.Equal(t, a.Arena.Len(), b.Arena.Len())
}

func TestLoad_ExcludeAndViewCache(t *testing.T) {
	root, reg := rustProject(t)
	views, err := cache.New[string, *parser.View](cache.NewFileStrategy[*parser.View]("ast"), t.TempDir())
	require.NoError(t, err)
	p := New(slogutil.NewDiscardLogger(), reg, views)

	proj, err := p.Load(context.Background(), root, Options{Exclude: []string{"**/utils.rs", "**/broken.rs"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main.rs"}, proj.Files)
	assert.Empty(t, proj.Errors)
	assert.Equal(t, 1, views.Len())

	again, err := p.Load(context.Background(), root, Options{Exclude: []string{"**/utils.rs", "**/broken.rs"}})
	require.NoError(t, err)
	assert.Equal(t, proj.Arena.Len(), again.Arena.Len())
	assert.Positive(t, views.Stats().Hits)
}

func TestLoad_Errors(t *testing.T) {
	_, reg := rustProject(t)
	p := New(slogutil.NewDiscardLogger(), reg, nil)

	_, err := p.Load(context.Background(), "/definitely/not/here", Options{})
	assert.Equal(t, pmerrors.NotFound, pmerrors.CodeOf(err))

	root, _ := rustProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Load(ctx, root, Options{})
	assert.Equal(t, pmerrors.Cancelled, pmerrors.CodeOf(err))
}
