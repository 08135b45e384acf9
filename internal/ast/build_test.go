package ast

import (
	"testing"

	"pmat/internal/parser"
	"pmat/internal/testutil"
)

const rustImplSrc = `struct Config {}
trait Processable {}
impl Processable for Config {
    fn process(&self) -> bool { true }
}
`

func rustImplView(t *testing.T) *parser.View {
	return testutil.View(t, "src/utils.rs", parser.LangRust, rustImplSrc,
		testutil.Raw{Type: "source_file"},
		testutil.Raw{Type: "struct_item", Text: "struct Config {}", Name: "Config", Parent: 0},
		testutil.Raw{Type: "type_identifier", Field: "name", Text: "Config", Parent: 1},
		testutil.Raw{Type: "field_declaration_list", Field: "body", Text: "{}", Parent: 1},
		testutil.Raw{Type: "trait_item", Text: "trait Processable {}", Name: "Processable", Parent: 0},
		testutil.Raw{Type: "type_identifier", Field: "name", Text: "Processable", Parent: 4},
		testutil.Raw{Type: "declaration_list", Field: "body", Text: "{}", Parent: 4},
		testutil.Raw{Type: "impl_item", Text: "impl Processable for Config {", Parent: 0},
		testutil.Raw{Type: "type_identifier", Field: "trait", Text: "Processable", Parent: 7},
		testutil.Raw{Type: "type_identifier", Field: "type", Text: "Config", Parent: 7},
		testutil.Raw{Type: "declaration_list", Field: "body", Text: "{", Parent: 7},
		testutil.Raw{Type: "function_item", Text: "fn process(&self) -> bool { true }", Name: "process", Parent: 10},
		testutil.Raw{Type: "identifier", Field: "name", Text: "process", Parent: 11},
		testutil.Raw{Type: "block", Field: "body", Text: "{ true }", Parent: 11},
		testutil.Raw{Type: "boolean_literal", Text: "true", Parent: 13},
	)
}

func TestBuilder_RustImpl(t *testing.T) {
	a := NewArena()
	root, err := NewBuilder(a).AddFile(rustImplView(t))
	if err != nil {
		t.Fatalf("AddFile() error = %v", err)
	}

	r := a.Get(root)
	if r.Kind != ModuleFile || r.Name != "utils" || r.Detail != "src/utils.rs" {
		t.Errorf("root = %s %q %q", r.Kind, r.Name, r.Detail)
	}
	if a.Files[r.File].Root != root {
		t.Error("file root not recorded")
	}

	byName := map[string]*Node{}
	for k := range a.All() {
		n := a.Get(k)
		if n.Kind.Is(CatClass) || n.Kind.Is(CatFunction) {
			if _, seen := byName[n.Name]; !seen {
				byName[n.Name] = n
			}
		}
	}

	tests := []struct {
		name string
		kind Kind
	}{
		{"Processable", ClassTrait},
		{"process", FuncMethod},
	}
	for _, tt := range tests {
		n, ok := byName[tt.name]
		if !ok {
			t.Errorf("no node named %q", tt.name)
			continue
		}
		if n.Kind != tt.kind {
			t.Errorf("%s kind = %s, want %s", tt.name, n.Kind, tt.kind)
		}
	}

	var impl *Node
	for k := range a.All() {
		if n := a.Get(k); n.Kind == ClassImpl {
			impl = n
		}
	}
	if impl == nil {
		t.Fatal("impl block missing")
	}
	if impl.Name != "Config" || len(impl.Implements) != 1 || impl.Implements[0] != "Processable" {
		t.Errorf("impl = %q implements %v", impl.Name, impl.Implements)
	}

	// declaration_list is transparent, so the method hangs off the impl.
	m := byName["process"]
	if p := a.Get(m.Parent); p.Kind != ClassImpl {
		t.Errorf("method parent = %s, want impl", p.Kind)
	}
	if m.StartLine != 4 || m.EndLine != 4 {
		t.Errorf("method lines = %d-%d", m.StartLine, m.EndLine)
	}
}

func TestBuilder_StructuralHashIgnoresNames(t *testing.T) {
	build := func(src, name string) *Node {
		v := testutil.View(t, "a.rs", parser.LangRust, src,
			testutil.Raw{Type: "source_file"},
			testutil.Raw{Type: "struct_item", Text: src[:len(src)-1], Name: name, Parent: 0},
			testutil.Raw{Type: "type_identifier", Field: "name", Text: name, Parent: 1},
		)
		a := NewArena()
		root, err := NewBuilder(a).AddFile(v)
		if err != nil {
			t.Fatal(err)
		}
		return a.Get(a.Get(root).FirstChild)
	}
	x := build("struct Alpha {}\n", "Alpha")
	y := build("struct Beta {}\n", "Beta")

	if x.StructuralHash != y.StructuralHash {
		t.Error("renaming changed the structural hash")
	}
	if x.SemanticHash == y.SemanticHash {
		t.Error("renaming should change the semantic hash")
	}
}

func TestBuilder_ElseIf(t *testing.T) {
	src := "if a { } else if b { }\n"
	v := testutil.View(t, "m.rs", parser.LangRust, src,
		testutil.Raw{Type: "source_file"},
		testutil.Raw{Type: "if_expression", Text: "if a { } else if b { }", Parent: 0},
		testutil.Raw{Type: "else_clause", Field: "alternative", Text: "else if b { }", Parent: 1},
		testutil.Raw{Type: "if_expression", Text: "if b { }", Parent: 2},
	)
	a := NewArena()
	if _, err := NewBuilder(a).AddFile(v); err != nil {
		t.Fatal(err)
	}
	var kinds []Kind
	for k := range a.All() {
		if a.Get(k).Kind.Is(CatStatement) {
			kinds = append(kinds, a.Get(k).Kind)
		}
	}
	if len(kinds) != 2 || kinds[0] != StmtIf || kinds[1] != StmtElseIf {
		t.Errorf("statement kinds = %v", kinds)
	}
}

func TestModuleName(t *testing.T) {
	tests := map[string]string{
		"src/utils.rs":         "utils",
		"src/net/mod.rs":       "net",
		"pkg/app/__init__.py":  "app",
		"web/widgets/index.ts": "widgets",
		"index.js":             "index",
		`src\win\main.c`:       "main",
	}
	for in, want := range tests {
		if got := ModuleName(in); got != want {
			t.Errorf("ModuleName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLastSegment(t *testing.T) {
	tests := map[string]string{
		"foo":                  "foo",
		"a.b.c":                "c",
		"std::fs::read":        "read",
		"client.get(x.y).send": "send",
		"self->helper":         "helper",
		"Vec::<u8>::new":       "new",
		"a.b(c.d)":             "b",
	}
	for in, want := range tests {
		if got := lastSegment(in); got != want {
			t.Errorf("lastSegment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestImportName(t *testing.T) {
	tests := map[string]string{
		"./utils/helpers":  "helpers",
		"os.path":          "path",
		"std::collections": "collections",
		"stdio.h":          "stdio",
		"..models":         "models",
	}
	for in, want := range tests {
		if got := importName(in); got != want {
			t.Errorf("importName(%q) = %q, want %q", in, got, want)
		}
	}
}
