package parser

import (
	"testing"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want Language
		ok   bool
	}{
		{"src/main.rs", LangRust, true},
		{"pkg/server.go", LangGo, true},
		{"app/models.PY", LangPython, true},
		{"web/index.tsx", LangTSX, true},
		{"web/index.ts", LangTypeScript, true},
		{"lib/util.mjs", LangJavaScript, true},
		{"src/Main.kt", LangKotlin, true},
		{"include/vec.hpp", LangCPP, true},
		{"README.md", "", false},
		{"Makefile", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := DetectLanguage(tt.path)
			if got != tt.want || ok != tt.ok {
				t.Errorf("DetectLanguage(%q) = (%q, %v), want (%q, %v)", tt.path, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestAllLanguagesSorted(t *testing.T) {
	langs := AllLanguages()
	for i := 1; i < len(langs); i++ {
		if langs[i-1] >= langs[i] {
			t.Fatalf("AllLanguages() not sorted: %v", langs)
		}
	}
	if len(langs) != 10 {
		t.Errorf("len(AllLanguages()) = %d, want 10", len(langs))
	}
}

func TestViewTextAndLines(t *testing.T) {
	v := &View{
		Source: []byte("fn a() {}\nfn b() {}"),
		Nodes:  []Node{{Start: 0, End: 9}, {Start: 100, End: 120}},
	}
	if got := v.Text(0); got != "fn a() {}" {
		t.Errorf("Text(0) = %q", got)
	}
	if got := v.Text(1); got != "" {
		t.Errorf("Text(out of range) = %q, want empty", got)
	}
	if got := v.Text(5); got != "" {
		t.Errorf("Text(bad index) = %q, want empty", got)
	}
	if got := v.Lines(); got != 2 {
		t.Errorf("Lines() = %d, want 2", got)
	}
}

func TestRegistry_Unsupported(t *testing.T) {
	r := NewEmptyRegistry()
	if r.Supports("main.rs") {
		t.Error("empty registry should not support main.rs")
	}
	if _, err := r.Parse(t.Context(), "notes.txt", []byte("x")); err == nil {
		t.Error("Parse of unsupported file should fail")
	}
}
