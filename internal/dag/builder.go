package dag

import (
	"path"
	"slices"
	"strings"

	"pmat/internal/ast"
	"pmat/internal/complexity"
	pmerrors "pmat/internal/errors"
	"pmat/internal/parser"
)

// Kind selects which dependencies a build keeps.
type Kind string

const (
	CallGraph      Kind = "call-graph"
	ImportGraph    Kind = "import-graph"
	Inheritance    Kind = "inheritance"
	FullDependency Kind = "full-dependency"
)

// ParseKind validates a graph kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case CallGraph, ImportGraph, Inheritance, FullDependency:
		return k, nil
	case "":
		return FullDependency, nil
	}
	return "", pmerrors.Invalid(pmerrors.Problem{Field: "dag_type", Message: "unknown graph kind " + s})
}

func (k Kind) edgeTypes() []EdgeType {
	switch k {
	case CallGraph:
		return []EdgeType{Calls}
	case ImportGraph:
		return []EdgeType{Imports}
	case Inheritance:
		return []EdgeType{Inherits, Implements}
	}
	return nil
}

// BuildOptions configures Build.
type BuildOptions struct {
	Kind Kind
	// IncludeExternal adds External nodes for unresolved calls and imports.
	IncludeExternal bool
}

type builder struct {
	a    *ast.Arena
	opts BuildOptions
	g    *Graph
	// ids maps arena keys of declarations to node ids.
	ids map[ast.NodeKey]string
	// byName indexes declaration ids by simple name.
	byName map[string][]string
	// modules indexes module node ids by module name.
	modules map[string][]string
	// types maps a type name to its declared class/trait ids.
	types map[string][]string
}

// Build projects the arena into a dependency graph: one node per module,
// function, class and trait, with Calls, Imports, Inherits, Implements and
// Uses edges. The arena must be frozen.
func Build(a *ast.Arena, opts BuildOptions) (*Graph, error) {
	if !a.Frozen() {
		return nil, pmerrors.Internal("dependency graph built from unfrozen arena", nil)
	}
	if opts.Kind == "" {
		opts.Kind = FullDependency
	}
	b := &builder{
		a:       a,
		opts:    opts,
		g:       New(),
		ids:     make(map[ast.NodeKey]string),
		byName:  make(map[string][]string),
		modules: make(map[string][]string),
		types:   make(map[string][]string),
	}
	b.declare()
	b.link()

	g := b.g
	if kinds := opts.Kind.edgeTypes(); kinds != nil {
		g = g.FilterByEdgeType(kinds...)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// ModulePath turns a file path into a "::"-joined module path.
func ModulePath(file string) string {
	p := strings.TrimSuffix(strings.ReplaceAll(file, "\\", "/"), path.Ext(file))
	p = strings.TrimPrefix(p, "./")
	segs := strings.Split(p, "/")
	if last := segs[len(segs)-1]; len(segs) > 1 && (last == "mod" || last == "__init__" || last == "index") {
		segs = segs[:len(segs)-1]
	}
	return strings.Join(segs, "::")
}

func nodeTypeOf(k ast.Kind) (NodeType, bool) {
	switch {
	case k.Is(ast.CatFunction):
		return Function, k != ast.FuncLambda && k != ast.FuncClosure
	case k == ast.ClassTrait:
		return Trait, true
	case k == ast.ClassInterface:
		return Interface, true
	case k == ast.ClassImpl:
		return "", false
	case k.Is(ast.CatClass):
		return Class, true
	case k.Is(ast.CatModule):
		return Module, true
	}
	return "", false
}

func (b *builder) newNode(id, label string, nt NodeType, file *ast.File, line, cx int) *Node {
	return &Node{
		ID:         id,
		Label:      label,
		NodeType:   nt,
		FilePath:   file.Path,
		LineNumber: line,
		Complexity: cx,
		Metadata: map[string]string{
			MetaFilePath:    file.Path,
			MetaModulePath:  ModulePath(file.Path),
			MetaDisplayName: label,
			MetaNodeType:    string(nt),
			MetaLanguage:    string(file.Language),
		},
	}
}

// declare creates a node for every named declaration.
func (b *builder) declare() {
	a := b.a
	for fi := range a.Files {
		f := &a.Files[fi]
		for k := range a.WalkPreorder(f.Root) {
			n := a.Get(k)
			nt, ok := nodeTypeOf(n.Kind)
			if !ok || (n.Name == "" && k != f.Root) {
				continue
			}
			id, label := b.identify(f, k, n)
			cx := 1
			switch nt {
			case Function:
				cx = complexity.Function(a, k).Cyclomatic
			case Class:
				cx = 1 + methodCount(a, k)
			}
			if !b.g.AddNode(b.newNode(id, label, nt, f, n.StartLine, cx)) {
				// Overloads and redeclarations share the first node.
				b.ids[k] = id
				continue
			}
			b.ids[k] = id
			if nt == Module {
				b.modules[label] = append(b.modules[label], id)
				continue
			}
			b.byName[label] = append(b.byName[label], id)
			if nt != Function {
				b.types[label] = append(b.types[label], id)
			}
		}
	}
}

// identify derives a stable id from the file and the enclosing declarations.
func (b *builder) identify(f *ast.File, k ast.NodeKey, n *ast.Node) (id, label string) {
	if k == f.Root {
		return f.Path, n.Name
	}
	parts := []string{n.Name}
	for p := n.Parent; p != ast.None && p != f.Root; p = b.a.Get(p).Parent {
		pn := b.a.Get(p)
		if pn.Name != "" && (pn.Kind.Is(ast.CatClass) || pn.Kind.Is(ast.CatFunction) || pn.Kind == ast.ModuleNamespace) {
			parts = append(parts, pn.Name)
		}
	}
	slices.Reverse(parts)
	return f.Path + "::" + strings.Join(parts, "::"), n.Name
}

func methodCount(a *ast.Arena, class ast.NodeKey) int {
	c := 0
	for k := range a.Subtree(class) {
		if a.Get(k).Kind.Is(ast.CatFunction) && a.Ancestor(k, func(kk ast.Kind) bool { return kk.Is(ast.CatClass) || kk.Is(ast.CatFunction) }) == class {
			c++
		}
	}
	return c
}

// link adds the edges.
func (b *builder) link() {
	a := b.a
	for fi := range a.Files {
		f := &a.Files[fi]
		moduleID := b.ids[f.Root]
		for k := range a.Subtree(f.Root) {
			n := a.Get(k)
			switch {
			case n.Kind.Is(ast.CatImport):
				b.linkImport(f, moduleID, n)
			case n.Kind == ast.ExprCall:
				b.linkCall(f, k, n)
			case n.Kind == ast.TypeNamed:
				if from := b.owner(k); from != "" {
					for _, to := range b.resolveType(f, n.Name) {
						if to != from {
							b.g.AddEdge(from, to, Uses)
						}
					}
				}
			case n.Kind.Is(ast.CatClass):
				b.linkHeritage(f, k, n)
			}
		}
	}
}

// owner returns the id of the nearest enclosing declared function or class.
func (b *builder) owner(k ast.NodeKey) string {
	decl := func(kk ast.Kind) bool { return kk.Is(ast.CatFunction) || kk.Is(ast.CatClass) }
	for p := b.a.Ancestor(k, decl); p != ast.None; p = b.a.Ancestor(p, decl) {
		if id, ok := b.ids[p]; ok {
			return id
		}
	}
	return ""
}

func (b *builder) linkImport(f *ast.File, moduleID string, n *ast.Node) {
	segs := strings.FieldsFunc(n.Detail, func(r rune) bool {
		return r == ':' || r == '/' || r == '.' || r == '\\' || r == ' ' || r == '{' || r == '}' || r == ',' || r == '"' || r == '\''
	})
	if n.Name != "" && !slices.Contains(segs, n.Name) {
		segs = append(segs, n.Name)
	}
	for i := len(segs) - 1; i >= 0; i-- {
		for _, target := range b.modules[segs[i]] {
			if target != moduleID {
				b.g.AddEdge(moduleID, target, Imports)
				return
			}
		}
	}
	if b.opts.IncludeExternal && n.Detail != "" {
		b.g.AddEdge(moduleID, b.external(f, n.Detail), Imports)
	}
}

func (b *builder) external(f *ast.File, name string) string {
	id := "external::" + name
	if b.g.Nodes[id] == nil {
		n := b.newNode(id, name, External, f, 0, 0)
		n.Metadata[MetaModulePath] = "external"
		b.g.AddNode(n)
	}
	return id
}

func (b *builder) linkCall(f *ast.File, k ast.NodeKey, n *ast.Node) {
	from := b.owner(k)
	if from == "" {
		from = b.ids[f.Root]
	}
	if n.Name == "" {
		return
	}
	if to := b.resolveCall(f, from, n); to != "" {
		b.g.AddEdge(from, to, Calls)
		return
	}
	// Type::new and similar constructor calls use the type.
	if q := qualifier(n.Detail); q != "" {
		if types := b.resolveType(f, q); len(types) > 0 {
			b.g.AddEdge(from, types[0], Uses)
			return
		}
	}
	if b.opts.IncludeExternal {
		b.g.AddEdge(from, b.external(f, n.Detail), Calls)
	}
}

// qualifier returns the segment before the callee name in a qualified call.
func qualifier(detail string) string {
	detail = strings.TrimSuffix(detail, "()")
	for _, sep := range []string{"::", "."} {
		if i := strings.LastIndex(detail, sep); i > 0 {
			q := detail[:i]
			if j := strings.LastIndexAny(q, ":."); j >= 0 {
				q = q[j+1:]
			}
			return q
		}
	}
	return ""
}

// resolveCall picks the callee among functions with the called name:
// methods of the qualifying type, then the caller's own type, the same
// file, then the lowest id project-wide.
func (b *builder) resolveCall(f *ast.File, from string, n *ast.Node) string {
	var cands []string
	for _, id := range b.byName[n.Name] {
		if b.g.Nodes[id].NodeType == Function {
			cands = append(cands, id)
		}
	}
	if len(cands) == 0 {
		return ""
	}
	if q := qualifier(n.Detail); q != "" && q != "self" && q != "this" && q != "Self" {
		for _, id := range cands {
			if strings.HasSuffix(id, "::"+q+"::"+n.Name) {
				return id
			}
		}
	}
	if i := strings.LastIndex(from, "::"); i > 0 {
		scope := from[:i+2]
		for _, id := range cands {
			if strings.HasPrefix(id, scope) && strings.Count(id, "::") == strings.Count(from, "::") {
				return id
			}
		}
	}
	for _, id := range cands {
		if strings.HasPrefix(id, f.Path+"::") {
			return id
		}
	}
	return slices.Min(cands)
}

// resolveType finds declared types by name, preferring the same file.
func (b *builder) resolveType(f *ast.File, name string) []string {
	ids := b.types[name]
	if len(ids) <= 1 {
		return ids
	}
	for _, id := range ids {
		if strings.HasPrefix(id, f.Path+"::") {
			return []string{id}
		}
	}
	return []string{slices.Min(ids)}
}

// linkHeritage adds Inherits and Implements edges. A Rust trait impl block
// relates the implementing type to the trait as Inherits, since traits
// are the only inheritance Rust has; supertraits are Inherits as well.
func (b *builder) linkHeritage(f *ast.File, k ast.NodeKey, n *ast.Node) {
	from := b.ids[k]
	if n.Kind == ast.ClassImpl {
		targets := b.resolveType(f, n.Name)
		if len(targets) == 0 {
			return
		}
		from = targets[0]
		for _, tr := range n.Implements {
			for _, to := range b.resolveType(f, tr) {
				b.g.AddEdge(from, to, Inherits)
			}
		}
		return
	}
	if from == "" {
		return
	}
	for _, base := range n.Bases {
		for _, to := range b.resolveType(f, base) {
			if to != from {
				b.g.AddEdge(from, to, Inherits)
			}
		}
	}
	kind := Implements
	if n.Language == parser.LangRust {
		kind = Inherits
	}
	for _, iface := range n.Implements {
		for _, to := range b.resolveType(f, iface) {
			if to != from {
				b.g.AddEdge(from, to, kind)
			}
		}
	}
}
