//go:build cgo

package complexity

import (
	"context"
	"testing"

	"pmat/internal/ast"
	"pmat/internal/parser"
)

func analyze(t *testing.T, path, src string) FileMetrics {
	t.Helper()
	reg := parser.NewRegistry(parser.DefaultLimits())
	a, root, err := ast.ParseFile(context.Background(), reg, path, []byte(src))
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	return File(a, root)
}

func byName(fm FileMetrics) map[string]Metrics {
	out := map[string]Metrics{}
	for _, f := range fm.AllFunctions() {
		out[f.Name] = f.Metrics
	}
	return out
}

func TestAnalyze_Go(t *testing.T) {
	fm := analyze(t, "test.go", `package main

func simple() {
	fmt.Println("hello")
}

func withIfElse(x int) {
	if x > 0 {
		fmt.Println("positive")
	} else {
		fmt.Println("non-positive")
	}
}

func withNestedIf(x, y int) {
	if x > 0 {
		if y > 0 {
			fmt.Println("both positive")
		}
	}
}

func withAndOr(a, b bool) {
	if a && b {
		fmt.Println("both true")
	}
	if a || b {
		fmt.Println("one true")
	}
}

func complex(x int, items []int) int {
	result := 0
	if x > 0 {
		for _, item := range items {
			if item > 0 {
				result += item
			} else if item < 0 {
				result -= item
			}
		}
	}
	return result
}
`)

	if fm.Language != parser.LangGo {
		t.Errorf("language = %s, want go", fm.Language)
	}
	got := byName(fm)
	tests := []struct {
		name       string
		cyclomatic int
		cognitive  int
	}{
		{"simple", 1, 0},
		{"withIfElse", 2, 1},
		{"withNestedIf", 3, 3},
		{"withAndOr", 5, 4},
		{"complex", 5, 7},
	}
	for _, tt := range tests {
		m, ok := got[tt.name]
		if !ok {
			t.Errorf("function %q not found", tt.name)
			continue
		}
		if m.Cyclomatic != tt.cyclomatic {
			t.Errorf("%s cyclomatic = %d, want %d", tt.name, m.Cyclomatic, tt.cyclomatic)
		}
		if m.Cognitive != tt.cognitive {
			t.Errorf("%s cognitive = %d, want %d", tt.name, m.Cognitive, tt.cognitive)
		}
	}
}

func TestAnalyze_PythonBooleanOperators(t *testing.T) {
	fm := analyze(t, "check.py", `def check(a, b, c):
    if a and b or c:
        return True
    return False
`)
	m, ok := byName(fm)["check"]
	if !ok {
		t.Fatal("check not found")
	}
	if m.Cyclomatic != 4 {
		t.Errorf("cyclomatic = %d, want 4", m.Cyclomatic)
	}
}

func TestAnalyze_RustMethodsGrouped(t *testing.T) {
	fm := analyze(t, "src/main.rs", `struct Config { debug: bool }

impl Config {
    fn toggle(&mut self) {
        if self.debug { self.debug = false; }
    }
}

fn main() {
    for i in 0..3 {
        println!("{}", i);
    }
}
`)
	if len(fm.Functions) != 1 || fm.Functions[0].Name != "main" {
		t.Errorf("free functions = %+v", fm.Functions)
	}
	var methods int
	for _, c := range fm.Classes {
		methods += len(c.Methods)
	}
	if methods != 1 {
		t.Errorf("methods = %d, want 1", methods)
	}
}
