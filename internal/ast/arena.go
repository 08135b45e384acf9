package ast

import (
	"iter"
	"math/bits"

	pmerrors "pmat/internal/errors"
	"pmat/internal/parser"
	"pmat/internal/proof"
)

// NodeKey identifies a node by arena index. Zero is the "none" sentinel.
type NodeKey uint32

// None is the sentinel key.
const None NodeKey = 0

// Node is one unified syntax node.
type Node struct {
	Kind     Kind
	Language parser.Language
	Flags    Flags
	// File indexes Arena.Files.
	File        uint32
	Parent      NodeKey
	FirstChild  NodeKey
	NextSibling NodeKey
	Start       int
	End         int
	StartLine   int
	EndLine     int
	// Name is the declared name, callee name, import path tail or leaf text.
	Name string
	// Detail carries the full callee expression or import path.
	Detail string
	// Operator is the boolean or ternary operator token for expressions.
	Operator string
	// Bases lists inherited type names; Implements lists implemented traits or interfaces.
	Bases      []string
	Implements []string

	SemanticHash   uint64
	StructuralHash uint64
	NameVector     uint64

	Annotations []proof.Annotation
}

// Lines returns the inclusive line span.
func (n *Node) Lines() int {
	if n.EndLine < n.StartLine {
		return 0
	}
	return n.EndLine - n.StartLine + 1
}

// File is one parsed source file in the arena.
type File struct {
	Path     string
	Language parser.Language
	Root     NodeKey
	Source   []byte
	Lines    int
	Warnings []string
}

// Arena is an append-only node store for a single analysis. It has a single
// writer while building and is read-only after Freeze.
type Arena struct {
	nodes     []Node
	lastChild []NodeKey
	intern    map[uint64]NodeKey
	Files     []File
	frozen    bool
}

// NewArena creates an empty arena with the sentinel slot reserved.
func NewArena() *Arena {
	return &Arena{
		nodes:     make([]Node, 1, 1024),
		lastChild: make([]NodeKey, 1, 1024),
		intern:    make(map[uint64]NodeKey),
	}
}

// Len returns the number of real nodes.
func (a *Arena) Len() int { return len(a.nodes) - 1 }

// AddNode appends n, links it under n.Parent and returns its key.
func (a *Arena) AddNode(n Node) (NodeKey, error) {
	if a.frozen {
		return None, pmerrors.Internal("add to frozen arena", nil)
	}
	key := NodeKey(len(a.nodes))
	if n.Parent >= key {
		return None, pmerrors.Internal("parent must precede child", map[string]any{
			"parent": n.Parent, "key": key,
		})
	}
	n.FirstChild, n.NextSibling = None, None
	a.nodes = append(a.nodes, n)
	a.lastChild = append(a.lastChild, None)

	if p := n.Parent; p != None {
		if last := a.lastChild[p]; last == None {
			a.nodes[p].FirstChild = key
		} else {
			a.nodes[last].NextSibling = key
		}
		a.lastChild[p] = key
	}
	if n.SemanticHash != 0 {
		if _, ok := a.intern[n.SemanticHash]; !ok {
			a.intern[n.SemanticHash] = key
		}
	}
	return key, nil
}

// Get returns the node for key, or nil for None and unknown keys.
func (a *Arena) Get(key NodeKey) *Node {
	if key == None || int(key) >= len(a.nodes) {
		return nil
	}
	return &a.nodes[key]
}

// Lookup returns the first node with the given semantic hash.
func (a *Arena) Lookup(semanticHash uint64) (NodeKey, bool) {
	k, ok := a.intern[semanticHash]
	return k, ok
}

// Canonical returns the first node equivalent to key by semantic hash.
// Equivalent leaves share a canonical key; tree links are never shared.
func (a *Arena) Canonical(key NodeKey) NodeKey {
	n := a.Get(key)
	if n == nil {
		return None
	}
	if k, ok := a.intern[n.SemanticHash]; ok {
		return k
	}
	return key
}

// SetAnnotations replaces the annotation slot of key.
func (a *Arena) SetAnnotations(key NodeKey, anns []proof.Annotation) {
	if n := a.Get(key); n != nil {
		n.Annotations = anns
	}
}

// Freeze ends the build phase. Later AddNode calls fail.
func (a *Arena) Freeze() { a.frozen = true }

// Frozen reports whether the build phase is over.
func (a *Arena) Frozen() bool { return a.frozen }

// Children yields the direct children of key in source order.
func (a *Arena) Children(key NodeKey) iter.Seq[NodeKey] {
	return func(yield func(NodeKey) bool) {
		n := a.Get(key)
		if n == nil {
			return
		}
		for c := n.FirstChild; c != None; c = a.nodes[c].NextSibling {
			if !yield(c) {
				return
			}
		}
	}
}

// WalkPreorder yields root and its descendants in preorder. The sequence is
// lazy, restartable and uses no stack proportional to tree depth.
func (a *Arena) WalkPreorder(root NodeKey) iter.Seq[NodeKey] {
	return func(yield func(NodeKey) bool) {
		if a.Get(root) == nil {
			return
		}
		cur := root
		for {
			if !yield(cur) {
				return
			}
			if c := a.nodes[cur].FirstChild; c != None {
				cur = c
				continue
			}
			for cur != root && a.nodes[cur].NextSibling == None {
				cur = a.nodes[cur].Parent
			}
			if cur == root {
				return
			}
			cur = a.nodes[cur].NextSibling
		}
	}
}

// Subtree is WalkPreorder without the root itself.
func (a *Arena) Subtree(root NodeKey) iter.Seq[NodeKey] {
	return func(yield func(NodeKey) bool) {
		for k := range a.WalkPreorder(root) {
			if k == root {
				continue
			}
			if !yield(k) {
				return
			}
		}
	}
}

// All yields every real node key in arena order.
func (a *Arena) All() iter.Seq[NodeKey] {
	return func(yield func(NodeKey) bool) {
		for i := 1; i < len(a.nodes); i++ {
			if !yield(NodeKey(i)) {
				return
			}
		}
	}
}

// Ancestor returns the nearest proper ancestor of key whose kind satisfies match.
func (a *Arena) Ancestor(key NodeKey, match func(Kind) bool) NodeKey {
	n := a.Get(key)
	if n == nil {
		return None
	}
	for p := n.Parent; p != None; p = a.nodes[p].Parent {
		if match(a.nodes[p].Kind) {
			return p
		}
	}
	return None
}

// EnclosingFunction returns the nearest function containing key.
func (a *Arena) EnclosingFunction(key NodeKey) NodeKey {
	return a.Ancestor(key, func(k Kind) bool { return k.Is(CatFunction) })
}

// FileOf returns the file record of key.
func (a *Arena) FileOf(key NodeKey) *File {
	n := a.Get(key)
	if n == nil || int(n.File) >= len(a.Files) {
		return nil
	}
	return &a.Files[n.File]
}

// Text returns the source text of key.
func (a *Arena) Text(key NodeKey) string {
	n := a.Get(key)
	f := a.FileOf(key)
	if n == nil || f == nil || n.Start < 0 || n.End > len(f.Source) || n.Start > n.End {
		return ""
	}
	return string(f.Source[n.Start:n.End])
}

// Functions returns every function node in arena order.
func (a *Arena) Functions() []NodeKey {
	var out []NodeKey
	for k := range a.All() {
		if a.nodes[k].Kind.Is(CatFunction) {
			out = append(out, k)
		}
	}
	return out
}

// NameSimilarity compares two name vectors as a Jaccard index over their bits.
func NameSimilarity(a, b uint64) float64 {
	union := bits.OnesCount64(a | b)
	if union == 0 {
		return 0
	}
	return float64(bits.OnesCount64(a&b)) / float64(union)
}
