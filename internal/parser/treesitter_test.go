//go:build cgo

package parser

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	pmerrors "pmat/internal/errors"
)

const rustSource = `use std::collections::HashMap;

struct Config { name: String }

trait Processable { fn process(&self) -> bool; }

impl Processable for Config {
    fn process(&self) -> bool { !self.name.is_empty() && self.name.len() > 2 }
}

fn main() {
    let c = Config { name: String::from("x") };
    if c.process() || false { println!("ok"); }
}
`

func parseRust(t *testing.T, limits Limits, src string) (*View, error) {
	t.Helper()
	a, err := NewTreeSitterAdapter(LangRust, limits)
	if err != nil {
		t.Fatalf("NewTreeSitterAdapter() error = %v", err)
	}
	return a.Parse(context.Background(), "src/main.rs", []byte(src))
}

func TestParse_Rust(t *testing.T) {
	view, err := parseRust(t, DefaultLimits(), rustSource)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if view.Language != LangRust {
		t.Errorf("Language = %q, want rust", view.Language)
	}
	if view.Nodes[0].Parent != -1 {
		t.Errorf("root parent = %d, want -1", view.Nodes[0].Parent)
	}

	names := map[string]string{}
	var ops []string
	for i, n := range view.Nodes {
		if n.Parent >= i {
			t.Fatalf("node %d has parent %d, not before it", i, n.Parent)
		}
		if _, seen := names[n.Name]; n.Name != "" && !seen {
			names[n.Name] = n.Type
		}
		if n.Operator != "" {
			ops = append(ops, n.Operator)
		}
	}
	for name, typ := range map[string]string{"main": "function_item", "Config": "struct_item", "Processable": "trait_item"} {
		if names[name] != typ {
			t.Errorf("name %q has type %q, want %q", name, names[name], typ)
		}
	}
	if strings.Join(ops, ",") != "&&,||" {
		t.Errorf("operators = %v, want [&& ||]", ops)
	}
}

func TestParse_Deterministic(t *testing.T) {
	a, err := parseRust(t, DefaultLimits(), rustSource)
	if err != nil {
		t.Fatal(err)
	}
	b, err := parseRust(t, DefaultLimits(), rustSource)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Nodes) != len(b.Nodes) {
		t.Fatalf("node counts differ: %d vs %d", len(a.Nodes), len(b.Nodes))
	}
	for i := range a.Nodes {
		if a.Nodes[i] != b.Nodes[i] {
			t.Fatalf("node %d differs: %+v vs %+v", i, a.Nodes[i], b.Nodes[i])
		}
	}
	if strings.Join(a.Warnings, "|") != strings.Join(b.Warnings, "|") {
		t.Errorf("warnings differ: %v vs %v", a.Warnings, b.Warnings)
	}
}

func TestParse_WhitespaceOnly(t *testing.T) {
	reg := NewRegistry(DefaultLimits())
	for _, lang := range reg.Languages() {
		t.Run(string(lang), func(t *testing.T) {
			a, _ := reg.Adapter(lang)
			view, err := a.Parse(context.Background(), "blank"+Extensions(lang)[0], []byte("  \n\t \n"))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(view.Nodes) > 1 {
				t.Errorf("whitespace produced %d nodes, want <= 1", len(view.Nodes))
			}
		})
	}
}

func TestParse_Limits(t *testing.T) {
	tests := []struct {
		name   string
		limits Limits
		src    string
		limit  string
	}{
		{"size", Limits{MaxFileSize: 10}, rustSource, "size"},
		{"nodes", Limits{MaxNodes: 5}, rustSource, "nodes"},
		{"depth", Limits{MaxDepth: 20}, "fn f() { let x = " + strings.Repeat("(", 60) + "1" + strings.Repeat(")", 60) + "; }", "depth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRust(t, tt.limits, tt.src)
			if !errors.Is(err, pmerrors.ErrResourceLimit) {
				t.Fatalf("Parse() error = %v, want resource limit", err)
			}
			pe, _ := pmerrors.As(err)
			if pe.Details["limit"] != tt.limit {
				t.Errorf("limit = %v, want %q", pe.Details["limit"], tt.limit)
			}
		})
	}
}

func TestParse_ArbitraryBytes(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	reg := NewRegistry(DefaultLimits())
	for i := 0; i < 50; i++ {
		buf := make([]byte, rng.Intn(512))
		rng.Read(buf)
		for _, lang := range reg.Languages() {
			a, _ := reg.Adapter(lang)
			view, err := a.Parse(context.Background(), "fuzz", buf)
			if err == nil && view == nil {
				t.Fatalf("%s: nil view without error", lang)
			}
		}
	}
}

func TestParse_Cancelled(t *testing.T) {
	a, err := NewTreeSitterAdapter(LangPython, DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := bytes.Repeat([]byte("x = 1\n"), 20000)
	if _, err := a.Parse(ctx, "big.py", src); err == nil {
		t.Error("Parse() with cancelled context should fail")
	}
}
