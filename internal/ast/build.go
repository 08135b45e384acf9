package ast

import (
	"context"
	"path"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"pmat/internal/parser"
)

const maxDetailLen = 256

// Builder converts parser views into unified nodes in one arena.
type Builder struct {
	arena *Arena
}

// NewBuilder creates a builder writing into arena.
func NewBuilder(arena *Arena) *Builder {
	return &Builder{arena: arena}
}

// AddFile normalizes view into the arena under a new Module(File) root and
// returns the root key.
func (b *Builder) AddFile(view *parser.View) (NodeKey, error) {
	a := b.arena
	fileIdx := uint32(len(a.Files))
	a.Files = append(a.Files, File{
		Path:     view.Path,
		Language: view.Language,
		Source:   view.Source,
		Lines:    view.Lines(),
		Warnings: view.Warnings,
	})

	name := ModuleName(view.Path)
	root, err := a.AddNode(Node{
		Kind:         ModuleFile,
		Language:     view.Language,
		File:         fileIdx,
		Start:        0,
		End:          len(view.Source),
		StartLine:    1,
		EndLine:      max(1, view.Lines()),
		Name:         name,
		Detail:       view.Path,
		SemanticHash: semanticHash(ModuleFile, view.Path),
		NameVector:   nameVector(name),
	})
	if err != nil {
		return None, err
	}
	a.Files[fileIdx].Root = root

	table := kindTables[view.Language]
	mapped := make([]NodeKey, len(view.Nodes))
	first := a.Len() + 1

	for i := range view.Nodes {
		raw := &view.Nodes[i]
		parent := root
		if raw.Parent >= 0 {
			parent = mapped[raw.Parent]
		}
		kind, ok := b.classify(view, i, table, parent)
		if !ok {
			mapped[i] = parent
			continue
		}

		n := Node{
			Kind:      kind,
			Language:  view.Language,
			File:      fileIdx,
			Parent:    parent,
			Start:     raw.Start,
			End:       raw.End,
			StartLine: raw.StartLine,
			EndLine:   raw.EndLine,
			Operator:  raw.Operator,
		}
		b.describe(view, i, &n)
		n.Flags = flagsFor(view, i, &n)
		n.SemanticHash = semanticHash(n.Kind, n.Name)
		n.NameVector = nameVector(n.Name)

		key, err := a.AddNode(n)
		if err != nil {
			return None, err
		}
		mapped[i] = key
	}

	b.hashStructure(root, NodeKey(first))
	return root, nil
}

// classify resolves the unified kind of raw node i, applying context rules
// the flat tables cannot express.
func (b *Builder) classify(view *parser.View, i int, table map[string]Kind, parent NodeKey) (Kind, bool) {
	raw := &view.Nodes[i]
	kind, ok := table[raw.Type]
	if !ok {
		return 0, false
	}
	rawParent := ""
	if raw.Parent >= 0 {
		rawParent = view.Nodes[raw.Parent].Type
	}

	switch {
	case kind == StmtIf:
		if rawParent == "else_clause" || rawParent == "else" || raw.Field == "alternative" {
			return StmtElseIf, true
		}
	case kind == FuncRegular || kind == FuncMethod:
		if p := b.arena.Get(parent); p != nil && p.Kind.Is(CatClass) {
			kind = FuncMethod
			name := raw.Name
			if name == "__init__" || name == "constructor" {
				kind = FuncConstructor
			}
		}
	case kind == TypeAlias && view.Language == parser.LangGo:
		switch childType(view, i, "type") {
		case "struct_type":
			return ClassStruct, true
		case "interface_type":
			return ClassInterface, true
		}
	case kind == ClassRegular || kind == ClassStruct || kind == ClassEnum:
		// C and C++ specifiers without a body are type references.
		if (view.Language == parser.LangC || view.Language == parser.LangCPP) && childType(view, i, "body") == "" {
			return TypeNamed, true
		}
		if view.Language == parser.LangJava || view.Language == parser.LangTypeScript || view.Language == parser.LangTSX {
			if strings.Contains(header(view, i), "abstract") {
				return ClassAbstract, true
			}
		}
		if view.Language == parser.LangKotlin && strings.Contains(header(view, i), "interface") {
			return ClassInterface, true
		}
	case kind == ModuleNamespace && view.Language == parser.LangRust:
		if childType(view, i, "body") == "" {
			return ImportModule, true
		}
	case kind == VarLet:
		switch rawParent {
		case "field_declaration", "class_body":
			return VarField, true
		case "lexical_declaration":
			if strings.HasPrefix(view.Text(raw.Parent), "const") {
				return VarConst, true
			}
		}
	case kind == StmtReturn && view.Language == parser.LangKotlin:
		if strings.HasPrefix(view.Text(i), "throw") {
			return StmtThrow, true
		}
	}
	return kind, true
}

// describe fills Name, Detail, Bases and Implements.
func (b *Builder) describe(view *parser.View, i int, n *Node) {
	raw := &view.Nodes[i]
	n.Name = raw.Name

	switch n.Kind.Category() {
	case CatImport:
		target := importTarget(view, i)
		n.Detail = clip(target)
		n.Name = importName(target)
		if n.Kind == ImportModule && view.Language == parser.LangRust && raw.Name != "" {
			n.Name = raw.Name
			n.Detail = raw.Name
		}
	case CatExpression:
		switch n.Kind {
		case ExprCall:
			callee := calleeText(view, i)
			n.Detail = clip(callee)
			n.Name = lastSegment(callee)
		case ExprIdentifier, ExprLiteral:
			n.Name = clip(view.Text(i))
		}
	case CatType:
		if n.Name == "" && (n.Kind == TypeNamed || n.Kind == TypePrimitive) {
			n.Name = clip(view.Text(i))
		} else if n.Name == "" {
			n.Name = fallbackName(view, i)
		}
	case CatClass:
		if n.Kind == ClassImpl {
			n.Name = stripGenerics(fieldText(view, i, "type"))
			if tr := fieldText(view, i, "trait"); tr != "" {
				n.Implements = []string{stripGenerics(lastSegment(tr))}
			}
			return
		}
		if n.Name == "" {
			n.Name = fallbackName(view, i)
		}
		n.Bases, n.Implements = heritage(view, i)
	default:
		if n.Name == "" {
			n.Name = fallbackName(view, i)
		}
	}
}

// hashStructure computes alpha-rename stable subtree hashes bottom-up.
// Children always have larger keys than their parents.
func (b *Builder) hashStructure(root, first NodeKey) {
	a := b.arena
	var buf [8]byte
	for k := NodeKey(len(a.nodes) - 1); k >= first; k-- {
		a.nodes[k].StructuralHash = structuralHash(a, k, buf[:])
	}
	a.nodes[root].StructuralHash = structuralHash(a, root, buf[:])
}

func structuralHash(a *Arena, k NodeKey, buf []byte) uint64 {
	d := xxhash.New()
	n := &a.nodes[k]
	putUint16(buf, uint16(n.Kind))
	_, _ = d.Write(buf[:2])
	_, _ = d.WriteString(n.Operator)
	for c := n.FirstChild; c != None; c = a.nodes[c].NextSibling {
		putUint64(buf, a.nodes[c].StructuralHash)
		_, _ = d.Write(buf[:8])
	}
	return d.Sum64()
}

func putUint16(b []byte, v uint16) {
	b[0], b[1] = byte(v), byte(v>>8)
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func semanticHash(k Kind, name string) uint64 {
	if name == "" {
		return 0
	}
	d := xxhash.New()
	_, _ = d.Write([]byte{byte(k >> 8), byte(k)})
	_, _ = d.WriteString(name)
	return d.Sum64()
}

// nameVector sets one bit per character trigram of the lowercased name.
func nameVector(name string) uint64 {
	if name == "" {
		return 0
	}
	s := "^" + strings.ToLower(name) + "$"
	var v uint64
	for i := 0; i+3 <= len(s); i++ {
		v |= 1 << (xxhash.Sum64String(s[i:i+3]) % 64)
	}
	if len(s) < 3 {
		v |= 1 << (xxhash.Sum64String(s) % 64)
	}
	return v
}

// ModuleName derives a module name from a file path: the stem, or the
// directory name for mod.rs, __init__.py and index.* files.
func ModuleName(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	base := path.Base(p)
	stem := strings.TrimSuffix(base, path.Ext(base))
	switch stem {
	case "mod", "__init__", "index":
		if dir := path.Base(path.Dir(p)); dir != "." && dir != "/" {
			return dir
		}
	}
	return stem
}

func childIndex(view *parser.View, i int, field string) int {
	raw := &view.Nodes[i]
	for j := i + 1; j < len(view.Nodes) && view.Nodes[j].Depth > raw.Depth; j++ {
		c := &view.Nodes[j]
		if c.Parent == i && c.Field == field {
			return j
		}
	}
	return -1
}

func childType(view *parser.View, i int, field string) string {
	if j := childIndex(view, i, field); j >= 0 {
		return view.Nodes[j].Type
	}
	return ""
}

func fieldText(view *parser.View, i int, field string) string {
	if j := childIndex(view, i, field); j >= 0 {
		return view.Text(j)
	}
	return ""
}

// fallbackName finds a name for declarations whose grammar has no "name"
// field: the first identifier child, following declarator chains.
func fallbackName(view *parser.View, i int) string {
	cur := i
	for hops := 0; hops < 8; hops++ {
		raw := &view.Nodes[cur]
		next := -1
		for j := cur + 1; j < len(view.Nodes) && view.Nodes[j].Depth > raw.Depth; j++ {
			c := &view.Nodes[j]
			if c.Parent != cur || c.Field == "type" || c.Field == "return_type" || qualifierFields[c.Field] {
				continue
			}
			if identifierTypes[c.Type] {
				return clip(view.Text(j))
			}
			if c.Type == "qualified_identifier" || c.Type == "scoped_identifier" {
				return lastSegment(view.Text(j))
			}
			if next < 0 && (c.Field == "declarator" || c.Field == "pattern" || c.Field == "left") {
				next = j
			}
		}
		if next < 0 {
			return ""
		}
		cur = next
	}
	return ""
}

// heritage collects inherited and implemented type names declared before
// the class body.
func heritage(view *parser.View, i int) (bases, implements []string) {
	raw := &view.Nodes[i]
	seen := map[string]bool{}
	for j := i + 1; j < len(view.Nodes) && view.Nodes[j].Depth > raw.Depth; j++ {
		c := &view.Nodes[j]
		if c.Parent == i && c.Field == "body" {
			break
		}
		if !identifierTypes[c.Type] || qualifierFields[c.Field] || c.Children > 0 {
			continue
		}
		container := ""
		for p := c.Parent; p > i; p = view.Nodes[p].Parent {
			t, f := view.Nodes[p].Type, view.Nodes[p].Field
			if heritageSkip[t] {
				container = ""
				break
			}
			if implementsContainers[t] {
				container = "impl"
				break
			}
			if baseContainers[t] || baseContainers[f] {
				container = "base"
				break
			}
		}
		name := view.Text(j)
		if container == "" || seen[name] {
			continue
		}
		seen[name] = true
		if container == "impl" {
			implements = append(implements, name)
		} else {
			bases = append(bases, name)
		}
	}
	return bases, implements
}

func importTarget(view *parser.View, i int) string {
	raw := &view.Nodes[i]
	for _, field := range []string{"path", "source", "module_name", "argument"} {
		if t := fieldText(view, i, field); t != "" {
			return unquote(t)
		}
	}
	if raw.Name != "" {
		return raw.Name
	}
	text := view.Text(i)
	for _, kw := range []string{"import", "static", "use", "extern crate", "#include"} {
		text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), kw))
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), ";")
	return unquote(text)
}

func calleeText(view *parser.View, i int) string {
	for _, field := range []string{"function", "macro", "constructor", "name", "type"} {
		if t := fieldText(view, i, field); t != "" {
			if field == "name" {
				if obj := fieldText(view, i, "object"); obj != "" {
					return obj + "." + t
				}
			}
			return t
		}
	}
	raw := &view.Nodes[i]
	if j := i + 1; j < len(view.Nodes) && view.Nodes[j].Parent == i && view.Nodes[j].Depth > raw.Depth {
		return view.Text(j)
	}
	return ""
}

// lastSegment returns the final component of a qualified name, ignoring
// separators nested in argument lists: a.b().c yields c.
func lastSegment(s string) string {
	s = strings.TrimSpace(s)
	depth, start := 0, 0
scan:
	for k := len(s) - 1; k >= 0; k-- {
		switch c := s[k]; c {
		case ')', ']', '}':
			depth++
		case '(', '[', '{':
			depth--
		case '.', ':', '/', '\\':
			if depth == 0 {
				start = k + 1
				break scan
			}
		case '>':
			if depth == 0 && k > 0 && s[k-1] == '-' {
				start = k + 1
				break scan
			}
		}
	}
	seg := s[start:]
	end := 0
	for end < len(seg) {
		r := rune(seg[end])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '$' {
			break
		}
		end++
	}
	return clip(seg[:end])
}

func importName(target string) string {
	if strings.ContainsAny(target, "/\\") || parser.IsSource(target) {
		return ModuleName(target)
	}
	return lastSegment(strings.TrimLeft(target, "."))
}

func stripGenerics(s string) string {
	if k := strings.IndexByte(s, '<'); k > 0 {
		s = s[:k]
	}
	return strings.TrimSpace(s)
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		switch {
		case s[0] == '"' && s[len(s)-1] == '"',
			s[0] == '\'' && s[len(s)-1] == '\'',
			s[0] == '`' && s[len(s)-1] == '`',
			s[0] == '<' && s[len(s)-1] == '>':
			return s[1 : len(s)-1]
		}
	}
	return s
}

// header returns the declaration text before the first body delimiter.
func header(view *parser.View, i int) string {
	text := view.Text(i)
	if k := strings.IndexAny(text, "{(:="); k >= 0 {
		text = text[:k]
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func flagsFor(view *parser.View, i int, n *Node) Flags {
	if !n.Kind.Is(CatFunction) && !n.Kind.Is(CatClass) && !n.Kind.Is(CatVariable) {
		return 0
	}
	var f Flags
	for _, w := range strings.Fields(header(view, i)) {
		switch w {
		case "async":
			f |= FlagAsync
		case "static":
			f |= FlagStatic
		case "abstract":
			f |= FlagAbstract
		case "const", "final", "val":
			f |= FlagConst
		case "private", "protected":
			f |= FlagPrivate
		case "pub", "public", "export":
			f |= FlagExported
		}
	}
	raw := &view.Nodes[i]
	if raw.Parent >= 0 {
		switch view.Nodes[raw.Parent].Type {
		case "export_statement":
			f |= FlagExported
		case "decorated_definition":
			if strings.Contains(view.Text(raw.Parent), "@deprecated") {
				f |= FlagDeprecated
			}
		}
	}
	if raw.Type == "generator_function_declaration" {
		f |= FlagGenerator
	}
	switch n.Language {
	case parser.LangGo:
		if r := firstRune(n.Name); unicode.IsUpper(r) {
			f |= FlagExported
		}
	case parser.LangPython:
		if strings.HasPrefix(n.Name, "_") && !strings.HasPrefix(n.Name, "__") {
			f |= FlagPrivate
		} else if n.Name != "" {
			f |= FlagExported
		}
	}
	if n.Kind == FuncMethod && n.Language == parser.LangRust && raw.Type == "function_signature_item" {
		f |= FlagAbstract
	}
	return f
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func clip(s string) string {
	if len(s) > maxDetailLen {
		return s[:maxDetailLen]
	}
	return s
}

// ParseFile parses one file with reg and returns a frozen single-file arena
// and its root.
func ParseFile(ctx context.Context, reg *parser.Registry, path string, src []byte) (*Arena, NodeKey, error) {
	view, err := reg.Parse(ctx, path, src)
	if err != nil {
		return nil, None, err
	}
	a := NewArena()
	root, err := NewBuilder(a).AddFile(view)
	if err != nil {
		return nil, None, err
	}
	a.Freeze()
	return a, root, nil
}
