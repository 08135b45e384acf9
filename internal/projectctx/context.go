// Package projectctx summarizes a parsed project for humans and agents:
// manifest metadata plus the declarations found in every file.
package projectctx

import (
	"slices"
	"strings"
	"time"

	"pmat/internal/ast"
	"pmat/internal/complexity"
	pmerrors "pmat/internal/errors"
	"pmat/internal/parser"
	"pmat/internal/pipeline"
)

// ItemType is the kind of a declaration listed in the context.
type ItemType string

const (
	ItemModule    ItemType = "module"
	ItemImport    ItemType = "import"
	ItemStruct    ItemType = "struct"
	ItemEnum      ItemType = "enum"
	ItemTrait     ItemType = "trait"
	ItemInterface ItemType = "interface"
	ItemClass     ItemType = "class"
	ItemImpl      ItemType = "impl"
	ItemFunction  ItemType = "function"
	ItemMethod    ItemType = "method"
)

// Item is one declaration.
type Item struct {
	Type       ItemType `json:"type"`
	Name       string   `json:"name"`
	Line       int      `json:"line"`
	EndLine    int      `json:"end_line"`
	Visibility string   `json:"visibility"`
	Detail     string   `json:"detail,omitempty"`
	Async      bool     `json:"async,omitempty"`

	// Cyclomatic is set for functions and methods.
	Cyclomatic int `json:"cyclomatic,omitempty"`
	Cognitive  int `json:"cognitive,omitempty"`
}

// FileContext lists the declarations of one file in source order.
type FileContext struct {
	Path     string          `json:"path"`
	Language parser.Language `json:"language"`
	Lines    int             `json:"lines"`
	Items    []Item          `json:"items"`
}

// Summary counts declarations across the project.
type Summary struct {
	TotalFiles   int      `json:"total_files"`
	TotalLines   int      `json:"total_lines"`
	Functions    int      `json:"functions"`
	Structs      int      `json:"structs"`
	Enums        int      `json:"enums"`
	Traits       int      `json:"traits"`
	Classes      int      `json:"classes"`
	Impls        int      `json:"impls"`
	Modules      int      `json:"modules"`
	Imports      int      `json:"imports"`
	Dependencies []string `json:"dependencies"`
}

// Context is the whole-project summary.
type Context struct {
	ProjectType string        `json:"project_type"`
	Root        string        `json:"root"`
	Metadata    *Metadata     `json:"metadata"`
	GeneratedAt time.Time     `json:"generated_at"`
	Summary     Summary       `json:"summary"`
	Files       []FileContext `json:"files"`
}

// Options narrows a build.
type Options struct {
	// Toolchain keeps only files of that toolchain's languages. Empty keeps
	// everything.
	Toolchain string
	Now       time.Time
}

var toolchainLanguages = map[string][]parser.Language{
	KindRust:   {parser.LangRust},
	KindPython: {parser.LangPython},
	"python":   {parser.LangPython},
	KindDeno:   {parser.LangTypeScript, parser.LangTSX, parser.LangJavaScript},
	KindNode:   {parser.LangJavaScript, parser.LangTypeScript, parser.LangTSX},
}

// Toolchains lists the accepted toolchain filters.
func Toolchains() []string {
	out := make([]string, 0, len(toolchainLanguages))
	for k := range toolchainLanguages {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Build summarizes proj. meta may be nil, in which case the project type
// is inferred from the dominant language.
func Build(proj *pipeline.Project, meta *Metadata, opts Options) (*Context, error) {
	var langs []parser.Language
	if opts.Toolchain != "" {
		var ok bool
		langs, ok = toolchainLanguages[strings.ToLower(opts.Toolchain)]
		if !ok {
			return nil, pmerrors.Invalid(pmerrors.Problem{
				Field:   "toolchain",
				Message: "unsupported toolchain " + opts.Toolchain + " (want one of " + strings.Join(Toolchains(), ", ") + ")",
			})
		}
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	a := proj.Arena
	ctx := &Context{
		Root:        proj.Root,
		Metadata:    meta,
		GeneratedAt: opts.Now.UTC(),
		Files:       []FileContext{},
	}
	langCount := map[parser.Language]int{}
	for i := range a.Files {
		f := &a.Files[i]
		if langs != nil && !slices.Contains(langs, f.Language) {
			continue
		}
		fc := FileContext{Path: f.Path, Language: f.Language, Lines: f.Lines, Items: fileItems(a, f.Root)}
		ctx.Files = append(ctx.Files, fc)
		langCount[f.Language]++
		ctx.Summary.add(fc)
	}
	slices.SortFunc(ctx.Files, func(x, y FileContext) int { return strings.Compare(x.Path, y.Path) })

	ctx.ProjectType = projectType(meta, langCount)
	ctx.Summary.Dependencies = []string{}
	if meta != nil && meta.Dependencies != nil {
		ctx.Summary.Dependencies = meta.Dependencies
	}
	return ctx, nil
}

func (s *Summary) add(fc FileContext) {
	s.TotalFiles++
	s.TotalLines += fc.Lines
	for _, it := range fc.Items {
		switch it.Type {
		case ItemFunction, ItemMethod:
			s.Functions++
		case ItemStruct:
			s.Structs++
		case ItemEnum:
			s.Enums++
		case ItemTrait, ItemInterface:
			s.Traits++
		case ItemClass:
			s.Classes++
		case ItemImpl:
			s.Impls++
		case ItemModule:
			s.Modules++
		case ItemImport:
			s.Imports++
		}
	}
}

func projectType(meta *Metadata, langs map[parser.Language]int) string {
	if meta != nil && meta.Kind != KindUnknown && meta.Kind != "" {
		return meta.Kind
	}
	var best parser.Language
	for l, n := range langs {
		if n > langs[best] || (n == langs[best] && l < best) {
			best = l
		}
	}
	if best == "" {
		return KindUnknown
	}
	return string(best)
}

func fileItems(a *ast.Arena, root ast.NodeKey) []Item {
	items := []Item{}
	for k := range a.WalkPreorder(root) {
		n := a.Get(k)
		typ, ok := itemType(n)
		if !ok {
			continue
		}
		it := Item{
			Type:       typ,
			Name:       n.Name,
			Line:       n.StartLine,
			EndLine:    n.EndLine,
			Visibility: visibility(n),
			Async:      n.Flags.Has(ast.FlagAsync),
		}
		switch typ {
		case ItemImport:
			it.Detail = n.Detail
		case ItemImpl:
			if len(n.Implements) > 0 {
				it.Detail = n.Implements[0] + " for " + n.Name
			}
		case ItemClass, ItemStruct:
			if len(n.Bases) > 0 {
				it.Detail = "extends " + strings.Join(n.Bases, ", ")
			}
		case ItemFunction, ItemMethod:
			m := complexity.Function(a, k)
			it.Cyclomatic, it.Cognitive = m.Cyclomatic, m.Cognitive
		}
		items = append(items, it)
	}
	return items
}

func itemType(n *ast.Node) (ItemType, bool) {
	switch n.Kind {
	case ast.ClassStruct:
		return ItemStruct, true
	case ast.ClassEnum:
		return ItemEnum, true
	case ast.ClassTrait:
		return ItemTrait, true
	case ast.ClassInterface:
		return ItemInterface, true
	case ast.ClassRegular, ast.ClassAbstract:
		return ItemClass, true
	case ast.ClassImpl:
		return ItemImpl, true
	case ast.ModuleNamespace, ast.ModulePackage:
		return ItemModule, true
	case ast.FuncRegular:
		return ItemFunction, true
	case ast.FuncLambda, ast.FuncClosure:
		return "", false
	case ast.ImportModule:
		// `mod name;` declares a child module.
		if n.Language == parser.LangRust {
			return ItemModule, true
		}
	}
	switch {
	case n.Kind.Is(ast.CatImport):
		return ItemImport, true
	case n.Kind.Is(ast.CatFunction):
		return ItemMethod, true
	}
	return "", false
}

func visibility(n *ast.Node) string {
	switch {
	case n.Flags.Has(ast.FlagExported):
		return "public"
	case n.Flags.Has(ast.FlagPrivate):
		return "private"
	case n.Language == parser.LangRust || n.Language == parser.LangGo:
		return "private"
	}
	return "internal"
}
