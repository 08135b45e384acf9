package templates

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	pmerrors "pmat/internal/errors"
)

// DefaultProjectName is used in generated filenames when none is given.
const DefaultProjectName = "project"

// Validate checks params against the template at uri without rendering.
func (c *Catalog) Validate(uri string, params map[string]any) (ValidationResult, error) {
	t, err := c.Get(uri)
	if err != nil {
		return ValidationResult{}, err
	}
	problems := t.Check(params)
	return ValidationResult{Valid: len(problems) == 0, Errors: problems}, nil
}

// Generate renders the template at uri with params.
func (c *Catalog) Generate(uri string, params map[string]any) (*Generated, error) {
	t, err := c.Get(uri)
	if err != nil {
		return nil, err
	}
	if problems := t.Check(params); len(problems) > 0 {
		return nil, pmerrors.Invalid(problems...)
	}
	values := t.Resolve(params)

	var b strings.Builder
	if err := c.sources[uri].Execute(&b, values); err != nil {
		return nil, pmerrors.New(pmerrors.InternalError, "render "+uri, err)
	}
	content := b.String()
	sum := sha256.Sum256([]byte(content))

	name, _ := values["project_name"].(string)
	if name == "" {
		name = DefaultProjectName
	}
	return &Generated{
		Content:   content,
		Filename:  name + "/" + t.Category.Filename(),
		Checksum:  hex.EncodeToString(sum[:]),
		Toolchain: t.Toolchain,
	}, nil
}

// Scaffold renders every requested category for toolchain concurrently.
// Files come back in category order; failures are collected, not fatal.
// An empty categories list means all of them.
func (c *Catalog) Scaffold(ctx context.Context, toolchain Toolchain, categories []Category, params map[string]any) (*ScaffoldResult, error) {
	if toolchain.Priority() == 99 {
		return nil, pmerrors.Invalid(pmerrors.Problem{Field: "toolchain", Message: fmt.Sprintf("unknown toolchain %q", toolchain)})
	}
	if len(categories) == 0 {
		categories = Categories
	}

	files := make([]*Generated, len(categories))
	errs := make([]*ScaffoldError, len(categories))
	g, gctx := errgroup.WithContext(ctx)
	for i, cat := range categories {
		uri := URIScheme + string(cat) + "/" + string(toolchain) + "/cli"
		if _, ok := c.byURI[uri]; !ok {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := c.Generate(uri, scaffoldParams(c.templates[c.byURI[uri]], params))
			if err != nil {
				errs[i] = &ScaffoldError{Template: uri, Error: err.Error()}
				return nil
			}
			files[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, pmerrors.FromContext(err, "scaffold", 0)
	}

	res := &ScaffoldResult{Files: []Generated{}}
	for i := range categories {
		if files[i] != nil {
			res.Files = append(res.Files, *files[i])
		}
		if errs[i] != nil {
			res.Errors = append(res.Errors, *errs[i])
		}
	}
	return res, nil
}

// scaffoldParams keeps only the parameters t declares, so one shared
// parameter set can drive every template in a scaffold.
func scaffoldParams(t Template, params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if _, ok := t.Param(k); ok {
			out[k] = v
		}
	}
	return out
}

// Write stores g under dir. With createDirs false the parent directory
// must already exist.
func Write(dir string, g *Generated, createDirs bool) (string, error) {
	target := filepath.Join(dir, filepath.FromSlash(g.Filename))
	parent := filepath.Dir(target)
	if createDirs {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return "", pmerrors.Cache("mkdir", parent, err)
		}
	} else if _, err := os.Stat(parent); err != nil {
		return "", pmerrors.Missing("directory", parent)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, []byte(g.Content), 0o644); err != nil {
		return "", pmerrors.Cache("write", target, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", pmerrors.Cache("rename", target, err)
	}
	return target, nil
}
