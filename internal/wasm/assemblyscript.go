package wasm

import (
	"context"
	"path"
	"regexp"
	"strings"

	"pmat/internal/ast"
	"pmat/internal/complexity"
	pmerrors "pmat/internal/errors"
	"pmat/internal/parser"
)

var (
	asMarkers      = regexp.MustCompile(`@(global|inline|external|unmanaged|operator)\b|\b(i32|i64|f32|f64|usize|isize|v128)\b|\bmemory\.`)
	asDecorator    = regexp.MustCompile(`(?m)^\s*@([A-Za-z_]\w*)`)
	asLoad         = regexp.MustCompile(`\bload<`)
	asStore        = regexp.MustCompile(`\bstore<`)
	asGrow         = regexp.MustCompile(`\bmemory\.grow\(`)
	asUnchecked    = regexp.MustCompile(`\bunchecked\(`)
	asNativeType   = regexp.MustCompile(`:\s*(i8|i16|i32|i64|u8|u16|u32|u64|f32|f64|usize|isize|v128|bool)\b`)
	exportFunction = regexp.MustCompile(`\bexport\s+function\b`)
)

// IsAssemblyScript reports whether a TypeScript-like source uses
// AssemblyScript decorators, native types or the memory API. .as files
// always qualify.
func IsAssemblyScript(name string, src []byte) bool {
	switch path.Ext(name) {
	case ".as":
		return true
	case ".ts":
		return asMarkers.Match(src) || exportFunction.Match(src)
	}
	return false
}

// Features counts AssemblyScript-specific constructs.
type Features struct {
	Decorators  map[string]int `json:"decorators"`
	Loads       int            `json:"loads"`
	Stores      int            `json:"stores"`
	MemoryGrows int            `json:"memory_grows"`
	Unchecked   int            `json:"unchecked"`
	NativeTypes int            `json:"native_types"`
}

func scanFeatures(src []byte) Features {
	f := Features{Decorators: map[string]int{}}
	for _, m := range asDecorator.FindAllSubmatch(src, -1) {
		f.Decorators[string(m[1])]++
	}
	f.Loads = len(asLoad.FindAllIndex(src, -1))
	f.Stores = len(asStore.FindAllIndex(src, -1))
	f.MemoryGrows = len(asGrow.FindAllIndex(src, -1))
	f.Unchecked = len(asUnchecked.FindAllIndex(src, -1))
	f.NativeTypes = len(asNativeType.FindAllIndex(src, -1))
	return f
}

// Script is the analysis of one AssemblyScript source.
type Script struct {
	Path       string                 `json:"path"`
	Complexity complexity.FileMetrics `json:"complexity"`
	Features   Features               `json:"features"`
}

// ParseAssemblyScript parses src with the registry's TypeScript adapter,
// whatever the file extension, and measures its functions.
func ParseAssemblyScript(ctx context.Context, reg *parser.Registry, name string, src []byte) (*Script, error) {
	adapter, ok := reg.Adapter(parser.LangTypeScript)
	if !ok {
		return nil, pmerrors.Parse(name, "no TypeScript adapter registered", nil)
	}
	view, err := adapter.Parse(ctx, name, src)
	if err != nil {
		return nil, err
	}
	a := ast.NewArena()
	root, err := ast.NewBuilder(a).AddFile(view)
	if err != nil {
		return nil, err
	}
	a.Freeze()
	fm := complexity.File(a, root)
	fm.Path = strings.TrimPrefix(name, "./")
	return &Script{Path: fm.Path, Complexity: fm, Features: scanFeatures(src)}, nil
}
