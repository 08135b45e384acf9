package templates

import (
	"cmp"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"sync"
	"text/template"

	"github.com/BurntSushi/toml"

	pmerrors "pmat/internal/errors"
)

// catalogFS holds catalog.toml and the template sources it references.
//
//go:embed all:catalog
var catalogFS embed.FS

// ManifestFile is the catalog manifest at the root of a catalog FS.
const ManifestFile = "catalog.toml"

// URIScheme prefixes every template URI.
const URIScheme = "template://"

const catalogVersion = "1.0.0"

type manifest struct {
	Version   int        `toml:"version"`
	Templates []Template `toml:"template"`
}

// Catalog is an immutable set of templates.
type Catalog struct {
	templates []Template
	byURI     map[string]int
	sources   map[string]*template.Template
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the embedded catalog, loading it once.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		sub, err := fs.Sub(catalogFS, "catalog")
		if err != nil {
			defaultErr = pmerrors.Internal("embedded catalog missing", map[string]any{"error": err.Error()})
			return
		}
		defaultCatalog, defaultErr = Load(sub)
	})
	return defaultCatalog, defaultErr
}

// Load reads a catalog manifest and its template sources from fsys.
func Load(fsys fs.FS) (*Catalog, error) {
	data, err := fs.ReadFile(fsys, ManifestFile)
	if err != nil {
		return nil, pmerrors.Missing("template manifest", ManifestFile)
	}
	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, pmerrors.Parse(ManifestFile, "invalid template manifest", err)
	}

	c := &Catalog{byURI: map[string]int{}, sources: map[string]*template.Template{}}
	var problems []pmerrors.Problem
	for _, t := range m.Templates {
		cat, tc, variant, err := ParseURI(t.URI)
		if err != nil {
			problems = append(problems, pmerrors.Problem{Field: t.URI, Message: "malformed uri"})
			continue
		}
		if cat != t.Category || tc != t.Toolchain || variant != t.Variant {
			problems = append(problems, pmerrors.Problem{Field: t.URI, Message: "uri does not match category, toolchain and variant"})
			continue
		}
		if _, dup := c.byURI[t.URI]; dup {
			problems = append(problems, pmerrors.Problem{Field: t.URI, Message: "duplicate template"})
			continue
		}
		src, err := fs.ReadFile(fsys, t.File)
		if err != nil {
			problems = append(problems, pmerrors.Problem{Field: t.URI, Message: "missing source " + t.File})
			continue
		}
		tmpl, err := template.New(path.Base(t.File)).Option("missingkey=zero").Parse(string(src))
		if err != nil {
			problems = append(problems, pmerrors.Problem{Field: t.URI, Message: err.Error()})
			continue
		}
		sum := sha256.Sum256(src)
		t.ContentHash = hex.EncodeToString(sum[:])
		t.Version = catalogVersion
		c.sources[t.URI] = tmpl
		c.templates = append(c.templates, t)
		c.byURI[t.URI] = -1
	}
	if len(problems) > 0 {
		return nil, pmerrors.Invalid(problems...)
	}

	slices.SortFunc(c.templates, func(a, b Template) int {
		if d := cmp.Compare(a.Toolchain.Priority(), b.Toolchain.Priority()); d != 0 {
			return d
		}
		if d := cmp.Compare(slices.Index(Categories, a.Category), slices.Index(Categories, b.Category)); d != 0 {
			return d
		}
		return cmp.Compare(a.URI, b.URI)
	})
	for i, t := range c.templates {
		c.byURI[t.URI] = i
	}
	return c, nil
}

// ParseURI splits template://<category>/<toolchain>/<variant>.
func ParseURI(uri string) (Category, Toolchain, string, error) {
	rest, ok := strings.CutPrefix(uri, URIScheme)
	parts := strings.Split(rest, "/")
	if !ok || len(parts) != 3 || slices.Contains(parts, "") {
		return "", "", "", pmerrors.Invalid(pmerrors.Problem{
			Field:   "template_uri",
			Message: fmt.Sprintf("malformed template URI %q, want %s<category>/<toolchain>/<variant>", uri, URIScheme),
		})
	}
	return Category(parts[0]), Toolchain(parts[1]), parts[2], nil
}

// List returns templates in toolchain priority order, optionally
// filtered. Unknown filter values are invalid input.
func (c *Catalog) List(toolchain, category string) ([]Template, error) {
	var problems []pmerrors.Problem
	if toolchain != "" && !slices.Contains(Toolchains, Toolchain(toolchain)) {
		problems = append(problems, pmerrors.Problem{Field: "toolchain", Message: fmt.Sprintf("unknown toolchain %q", toolchain)})
	}
	if category != "" && !slices.Contains(Categories, Category(category)) {
		problems = append(problems, pmerrors.Problem{Field: "category", Message: fmt.Sprintf("unknown category %q", category)})
	}
	if len(problems) > 0 {
		return nil, pmerrors.Invalid(problems...)
	}
	out := make([]Template, 0, len(c.templates))
	for _, t := range c.templates {
		if toolchain != "" && t.Toolchain != Toolchain(toolchain) {
			continue
		}
		if category != "" && t.Category != Category(category) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Get returns the template for uri.
func (c *Catalog) Get(uri string) (Template, error) {
	if _, _, _, err := ParseURI(uri); err != nil {
		return Template{}, err
	}
	i, ok := c.byURI[uri]
	if !ok {
		return Template{}, pmerrors.Missing("template", uri)
	}
	return c.templates[i], nil
}

// Len returns the number of templates.
func (c *Catalog) Len() int { return len(c.templates) }
