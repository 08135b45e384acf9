package testutil

import (
	"strings"
	"testing"

	"pmat/internal/parser"
)

// Raw describes one named grammar node of a hand-built parse view. Text is
// located at its first occurrence at or after the parent's start offset.
type Raw struct {
	Type     string
	Field    string
	Text     string
	Name     string
	Operator string
	Parent   int
}

// View builds a parser view from raw node specs listed in preorder. The
// first spec is the root and must cover the whole source; its Parent is
// ignored.
func View(t testing.TB, path string, lang parser.Language, src string, specs ...Raw) *parser.View {
	t.Helper()
	v := &parser.View{Path: path, Language: lang, Source: []byte(src)}
	for i, s := range specs {
		n := parser.Node{Type: s.Type, Field: s.Field, Name: s.Name, Operator: s.Operator, Parent: -1}
		from := 0
		if i > 0 {
			if s.Parent < 0 || s.Parent >= i {
				t.Fatalf("raw node %d (%s): parent %d must precede it", i, s.Type, s.Parent)
			}
			n.Parent = s.Parent
			p := &v.Nodes[s.Parent]
			p.Children++
			n.Depth = p.Depth + 1
			from = p.Start
		}
		text := s.Text
		if i == 0 {
			text = src
		}
		off := strings.Index(src[from:], text)
		if off < 0 {
			t.Fatalf("raw node %d (%s): %q not found after offset %d", i, s.Type, text, from)
		}
		n.Start = from + off
		n.End = n.Start + len(text)
		n.StartLine = strings.Count(src[:n.Start], "\n") + 1
		n.EndLine = n.StartLine + strings.Count(text, "\n")
		if strings.HasSuffix(text, "\n") && len(text) > 0 {
			n.EndLine--
		}
		v.Nodes = append(v.Nodes, n)
	}
	return v
}
