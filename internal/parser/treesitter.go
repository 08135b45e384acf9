//go:build cgo

package parser

import (
	"context"
	"fmt"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	pmerrors "pmat/internal/errors"
)

const (
	maxNameLen    = 256
	maxWarnings   = 10
	checkInterval = 1024
)

// operatorTokens are the anonymous tokens recorded on their parent node.
var operatorTokens = map[string]bool{
	"&&": true, "||": true, "and": true, "or": true, "??": true, "?:": true,
}

// IsAvailable reports whether tree-sitter parsing is compiled in.
func IsAvailable() bool { return true }

func grammar(lang Language) (*sitter.Language, error) {
	switch lang {
	case LangGo:
		return golang.GetLanguage(), nil
	case LangRust:
		return rust.GetLanguage(), nil
	case LangPython:
		return python.GetLanguage(), nil
	case LangJavaScript:
		return javascript.GetLanguage(), nil
	case LangTypeScript:
		return typescript.GetLanguage(), nil
	case LangTSX:
		return tsx.GetLanguage(), nil
	case LangJava:
		return java.GetLanguage(), nil
	case LangKotlin:
		return kotlin.GetLanguage(), nil
	case LangC:
		return c.GetLanguage(), nil
	case LangCPP:
		return cpp.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
}

// TreeSitterAdapter parses one language with its tree-sitter grammar.
type TreeSitterAdapter struct {
	lang    Language
	grammar *sitter.Language
	limits  Limits
}

// NewTreeSitterAdapter creates an adapter for lang.
func NewTreeSitterAdapter(lang Language, limits Limits) (*TreeSitterAdapter, error) {
	g, err := grammar(lang)
	if err != nil {
		return nil, err
	}
	return &TreeSitterAdapter{lang: lang, grammar: g, limits: limits}, nil
}

// NewRegistry returns a registry with an adapter for every language.
func NewRegistry(limits Limits) *Registry {
	r := NewEmptyRegistry()
	for _, lang := range AllLanguages() {
		a, err := NewTreeSitterAdapter(lang, limits)
		if err != nil {
			continue
		}
		r.Register(a)
	}
	return r
}

func (a *TreeSitterAdapter) Language() Language   { return a.lang }
func (a *TreeSitterAdapter) Extensions() []string { return Extensions(a.lang) }

// Parse never panics: grammar panics become parse errors and every bound
// violation becomes a resource-limit error.
func (a *TreeSitterAdapter) Parse(ctx context.Context, path string, source []byte) (view *View, err error) {
	defer func() {
		if r := recover(); r != nil {
			view = nil
			err = pmerrors.Parse(path, fmt.Sprintf("parser panic: %v", r), nil)
		}
	}()

	if limit := a.limits.MaxFileSize; limit > 0 && int64(len(source)) > limit {
		return nil, pmerrors.Limit(path, "size", int64(len(source)), limit)
	}

	if a.limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.limits.Timeout)
		defer cancel()
	}
	start := time.Now()

	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(a.grammar)

	tree, err := p.ParseCtx(ctx, nil, source)
	if err != nil {
		if ctx.Err() != nil {
			return nil, a.deadlineError(ctx, path, start)
		}
		return nil, pmerrors.Parse(path, "tree-sitter failed", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, pmerrors.Parse(path, "empty parse tree", nil)
	}

	view = &View{Path: path, Language: a.lang, Source: source}
	if err := a.flatten(ctx, view, root, start); err != nil {
		return nil, err
	}
	return view, nil
}

func (a *TreeSitterAdapter) deadlineError(ctx context.Context, path string, start time.Time) error {
	if ctx.Err() == context.DeadlineExceeded && a.limits.Timeout > 0 {
		return pmerrors.Limit(path, "time", time.Since(start).Milliseconds(), a.limits.Timeout.Milliseconds())
	}
	return pmerrors.FromContext(ctx.Err(), "parse "+path, time.Since(start))
}

// flatten walks the tree with a cursor and an explicit stack so stack
// usage does not depend on input shape.
func (a *TreeSitterAdapter) flatten(ctx context.Context, view *View, root *sitter.Node, start time.Time) error {
	cur := sitter.NewTreeCursor(root)
	defer cur.Close()

	// scope[i] is the nearest named node at cursor depth i.
	scope := make([]int, 0, 64)

	visit := func() (int, error) {
		n := cur.CurrentNode()
		parent := -1
		if len(scope) > 0 {
			parent = scope[len(scope)-1]
		}
		if !n.IsNamed() {
			if parent >= 0 && operatorTokens[n.Type()] && view.Nodes[parent].Operator == "" {
				view.Nodes[parent].Operator = n.Type()
			}
			return parent, nil
		}

		if a.limits.MaxNodes > 0 && len(view.Nodes) >= a.limits.MaxNodes {
			return 0, pmerrors.Limit(view.Path, "nodes", int64(len(view.Nodes)+1), int64(a.limits.MaxNodes))
		}
		if len(view.Nodes)%checkInterval == 0 && ctx.Err() != nil {
			return 0, a.deadlineError(ctx, view.Path, start)
		}

		field := cur.CurrentFieldName()
		node := Node{
			Type:      n.Type(),
			Field:     field,
			Start:     int(n.StartByte()),
			End:       int(n.EndByte()),
			StartLine: int(n.StartPoint().Row) + 1,
			EndLine:   int(n.EndPoint().Row) + 1,
			Parent:    parent,
		}
		if parent >= 0 {
			p := &view.Nodes[parent]
			node.Depth = p.Depth + 1
			p.Children++
			if field == "name" && p.Name == "" {
				p.Name = clip(n.Content(view.Source))
			}
		}
		if n.Type() == "ERROR" || n.IsMissing() {
			if len(view.Warnings) < maxWarnings {
				view.Warnings = append(view.Warnings, fmt.Sprintf("syntax error at line %d", node.StartLine))
			}
		}
		view.Nodes = append(view.Nodes, node)
		return len(view.Nodes) - 1, nil
	}

	self, err := visit()
	if err != nil {
		return err
	}
	for {
		if cur.GoToFirstChild() {
			scope = append(scope, self)
			if a.limits.MaxDepth > 0 && len(scope) > a.limits.MaxDepth {
				return pmerrors.Limit(view.Path, "depth", int64(len(scope)), int64(a.limits.MaxDepth))
			}
			if self, err = visit(); err != nil {
				return err
			}
			continue
		}
		for {
			if cur.GoToNextSibling() {
				if self, err = visit(); err != nil {
					return err
				}
				break
			}
			if !cur.GoToParent() {
				return nil
			}
			scope = scope[:len(scope)-1]
		}
	}
}

func clip(s string) string {
	if len(s) > maxNameLen {
		return s[:maxNameLen]
	}
	return s
}
