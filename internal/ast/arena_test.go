package ast

import (
	"errors"
	"slices"
	"testing"

	pmerrors "pmat/internal/errors"
	"pmat/internal/proof"
)

func buildTree(t *testing.T) (*Arena, []NodeKey) {
	t.Helper()
	a := NewArena()
	add := func(n Node) NodeKey {
		k, err := a.AddNode(n)
		if err != nil {
			t.Fatalf("AddNode() error = %v", err)
		}
		return k
	}
	root := add(Node{Kind: ModuleFile, Name: "main"})
	f := add(Node{Kind: FuncRegular, Name: "f", Parent: root})
	ifs := add(Node{Kind: StmtIf, Parent: f})
	ret := add(Node{Kind: StmtReturn, Parent: ifs})
	g := add(Node{Kind: FuncRegular, Name: "g", Parent: root})
	return a, []NodeKey{root, f, ifs, ret, g}
}

func TestArena_SentinelAndLinks(t *testing.T) {
	a, keys := buildTree(t)
	root, f, ifs, _, g := keys[0], keys[1], keys[2], keys[3], keys[4]

	if root != 1 {
		t.Errorf("first key = %d, want 1", root)
	}
	if a.Get(None) != nil {
		t.Error("Get(None) should be nil")
	}
	if a.Len() != 5 {
		t.Errorf("Len() = %d, want 5", a.Len())
	}
	if got := a.Get(root).FirstChild; got != f {
		t.Errorf("root.FirstChild = %d, want %d", got, f)
	}
	if got := a.Get(f).NextSibling; got != g {
		t.Errorf("f.NextSibling = %d, want %d", got, g)
	}
	if got := slices.Collect(a.Children(root)); !slices.Equal(got, []NodeKey{f, g}) {
		t.Errorf("Children(root) = %v", got)
	}
	if got := a.EnclosingFunction(ifs); got != f {
		t.Errorf("EnclosingFunction = %d, want %d", got, f)
	}
}

func TestArena_WalkPreorder(t *testing.T) {
	a, keys := buildTree(t)
	first := slices.Collect(a.WalkPreorder(keys[0]))
	if !slices.Equal(first, keys) {
		t.Errorf("WalkPreorder = %v, want %v", first, keys)
	}
	second := slices.Collect(a.WalkPreorder(keys[0]))
	if !slices.Equal(first, second) {
		t.Error("WalkPreorder is not restartable")
	}
	sub := slices.Collect(a.WalkPreorder(keys[1]))
	if !slices.Equal(sub, keys[1:4]) {
		t.Errorf("WalkPreorder(f) = %v, want %v", sub, keys[1:4])
	}
	for k := range a.WalkPreorder(keys[0]) {
		if k == keys[2] {
			break
		}
	}
	if got := slices.Collect(a.Subtree(keys[1])); !slices.Equal(got, keys[2:4]) {
		t.Errorf("Subtree(f) = %v", got)
	}
}

func TestArena_Invariants(t *testing.T) {
	a := NewArena()
	if _, err := a.AddNode(Node{Kind: ModuleFile, Parent: 7}); !errors.Is(err, pmerrors.ErrInternal) {
		t.Errorf("forward parent error = %v, want internal", err)
	}
	if _, err := a.AddNode(Node{Kind: ModuleFile}); err != nil {
		t.Fatal(err)
	}
	a.Freeze()
	if _, err := a.AddNode(Node{Kind: FuncRegular, Parent: 1}); err == nil {
		t.Error("AddNode after Freeze should fail")
	}
}

func TestArena_InterningAndAnnotations(t *testing.T) {
	a := NewArena()
	root, _ := a.AddNode(Node{Kind: ModuleFile})
	x1, _ := a.AddNode(Node{Kind: ExprIdentifier, Name: "x", Parent: root, SemanticHash: semanticHash(ExprIdentifier, "x")})
	x2, _ := a.AddNode(Node{Kind: ExprIdentifier, Name: "x", Parent: root, SemanticHash: semanticHash(ExprIdentifier, "x")})

	if x1 == x2 {
		t.Fatal("tree keys must not be shared")
	}
	if got := a.Canonical(x2); got != x1 {
		t.Errorf("Canonical(x2) = %d, want %d", got, x1)
	}
	if k, ok := a.Lookup(semanticHash(ExprIdentifier, "x")); !ok || k != x1 {
		t.Errorf("Lookup = (%d, %v)", k, ok)
	}

	ann := proof.New(proof.MemorySafety, proof.Method{Kind: proof.BorrowChecker}, "rustc", "1.80", proof.High)
	a.SetAnnotations(x1, []proof.Annotation{ann})
	if got := a.Get(x1).Annotations; len(got) != 1 || got[0].ID != ann.ID {
		t.Errorf("Annotations = %v", got)
	}
	a.SetAnnotations(x1, nil)
	if a.Get(x1).Annotations != nil {
		t.Error("SetAnnotations should replace the slot")
	}
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		FuncMethod:  "Function(Method)",
		ClassTrait:  "Class(Trait)",
		StmtElseIf:  "Statement(ElseIf)",
		ModuleFile:  "Module(File)",
		ImportNamed: "Import(Named)",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
	if !StmtDoWhile.IsLoop() || StmtIf.IsLoop() {
		t.Error("IsLoop misclassified")
	}
}

func TestNameSimilarity(t *testing.T) {
	a := nameVector("calculate_sum")
	if got := NameSimilarity(a, a); got != 1 {
		t.Errorf("self similarity = %v, want 1", got)
	}
	if got := NameSimilarity(0, 0); got != 0 {
		t.Errorf("empty similarity = %v, want 0", got)
	}
	close := NameSimilarity(a, nameVector("calculate_sums"))
	far := NameSimilarity(a, nameVector("zz"))
	if close <= far {
		t.Errorf("similar names scored %v <= %v", close, far)
	}
}
