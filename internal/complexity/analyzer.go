package complexity

import (
	"pmat/internal/ast"
)

// logicalOperators add a decision point wherever they appear in a body.
var logicalOperators = map[string]bool{
	"&&": true, "||": true, "and": true, "or": true, "??": true, "?:": true,
}

const anonymous = "<anonymous>"

type frame struct {
	key     ast.NodeKey
	nesting int
}

// Function computes metrics for the function at key. Nested functions are
// not descended into; they are measured on their own.
func Function(a *ast.Arena, key ast.NodeKey) Metrics {
	fn := a.Get(key)
	if fn == nil {
		return Metrics{}
	}
	m := Metrics{Cyclomatic: 1, Lines: fn.Lines()}

	stack := make([]frame, 0, 64)
	stack = pushChildren(a, stack, key, 0)
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := a.Get(f.key)
		if n.Kind.Is(ast.CatFunction) {
			continue
		}

		child := f.nesting
		switch {
		case n.Kind == ast.StmtElseIf:
			m.Cyclomatic++
			m.Cognitive++
		case n.Kind == ast.StmtIf, n.Kind.IsLoop(), n.Kind == ast.StmtCatch, n.Kind == ast.ExprConditional:
			m.Cyclomatic++
			m.Cognitive += 1 + f.nesting
			child++
		case n.Kind == ast.StmtSwitch:
			m.Cognitive += 1 + f.nesting
			child++
		case n.Kind == ast.StmtCase:
			m.Cyclomatic++
		case n.Kind == ast.ExprBinary && logicalOperators[n.Operator]:
			m.Cyclomatic++
			m.Cognitive++
		}
		if child > m.NestingMax {
			m.NestingMax = child
		}
		stack = pushChildren(a, stack, f.key, child)
	}
	return m
}

func pushChildren(a *ast.Arena, stack []frame, key ast.NodeKey, nesting int) []frame {
	for c := range a.Children(key) {
		stack = append(stack, frame{key: c, nesting: nesting})
	}
	return stack
}

// File measures every function under the file root. Methods are grouped
// under the nearest enclosing class; functions nested in other functions are
// reported as free functions.
func File(a *ast.Arena, root ast.NodeKey) FileMetrics {
	f := a.FileOf(root)
	fm := FileMetrics{
		Functions: []FunctionComplexity{},
		Classes:   []ClassComplexity{},
	}
	if f == nil {
		return fm
	}
	fm.Path = f.Path
	fm.Language = f.Language
	fm.Total.Lines = f.Lines

	classIdx := map[ast.NodeKey]int{}
	owner := func(k ast.NodeKey) ast.NodeKey {
		return a.Ancestor(k, func(kind ast.Kind) bool {
			return kind.Is(ast.CatFunction) || kind.Is(ast.CatClass)
		})
	}

	for k := range a.WalkPreorder(root) {
		n := a.Get(k)
		switch {
		case n.Kind.Is(ast.CatClass):
			classIdx[k] = len(fm.Classes)
			fm.Classes = append(fm.Classes, ClassComplexity{
				Name:      n.Name,
				StartLine: n.StartLine,
				EndLine:   n.EndLine,
				Metrics:   Metrics{Lines: n.Lines()},
				Methods:   []FunctionComplexity{},
			})
		case n.Kind.Is(ast.CatFunction):
			fc := FunctionComplexity{
				Name:      n.Name,
				StartLine: n.StartLine,
				EndLine:   n.EndLine,
				Metrics:   Function(a, k),
			}
			if fc.Name == "" {
				fc.Name = anonymous
			}
			if i, ok := classIdx[owner(k)]; ok {
				c := &fm.Classes[i]
				c.Methods = append(c.Methods, fc)
				c.Metrics.Cyclomatic += fc.Metrics.Cyclomatic
				c.Metrics.Cognitive += fc.Metrics.Cognitive
				c.Metrics.NestingMax = max(c.Metrics.NestingMax, fc.Metrics.NestingMax)
				continue
			}
			fm.Functions = append(fm.Functions, fc)
		}
	}
	fm.aggregate()
	return fm
}

// Project measures every file in the arena in file order.
func Project(a *ast.Arena) []FileMetrics {
	out := make([]FileMetrics, 0, len(a.Files))
	for i := range a.Files {
		out = append(out, File(a, a.Files[i].Root))
	}
	return out
}
