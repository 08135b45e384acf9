package bigo

import (
	"strings"

	"pmat/internal/ast"
)

// PatternType identifies how a pattern is recognized.
type PatternType string

const (
	LinearIteration  PatternType = "linear_iteration"
	NestedLoops      PatternType = "nested_loops"
	BinarySearch     PatternType = "binary_search"
	DivideAndConquer PatternType = "divide_and_conquer"
	HashTableOp      PatternType = "hash_table_op"
)

// Pattern is a recognizable code shape with a known bound.
type Pattern struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Bound       Bound       `json:"complexity"`
	Type        PatternType `json:"pattern_type"`
	// Depth is the minimum loop nesting for NestedLoops.
	Depth int `json:"depth,omitempty"`
}

// Matcher tries patterns in registration order; the first match wins.
type Matcher struct {
	patterns []Pattern
}

// NewMatcher returns a matcher with the built-in patterns, most specific first.
func NewMatcher() *Matcher {
	return &Matcher{patterns: []Pattern{
		{
			ID:          "binary_search",
			Name:        "Binary Search",
			Description: "Divide search space by 2 each iteration",
			Bound:       LogarithmicBound().WithConfidence(95).WithFlags(WorstCase | Proven),
			Type:        BinarySearch,
		},
		{
			ID:          "merge_sort",
			Name:        "Merge Sort",
			Description: "Divide and conquer with linear merge",
			Bound:       LinearithmicBound().WithConfidence(95).WithFlags(WorstCase | Proven),
			Type:        DivideAndConquer,
		},
		{
			ID:          "nested_loops_2",
			Name:        "Nested Loops (Depth 2)",
			Description: "Two nested loops over same collection",
			Bound:       QuadraticBound().WithConfidence(85).WithFlags(WorstCase),
			Type:        NestedLoops,
			Depth:       2,
		},
		{
			ID:          "linear_iteration",
			Name:        "Linear Iteration",
			Description: "Single loop over collection",
			Bound:       LinearBound().WithConfidence(90).WithFlags(WorstCase),
			Type:        LinearIteration,
		},
		{
			ID:          "hash_lookup",
			Name:        "Hash Table Lookup",
			Description: "Average case constant time lookup",
			Bound:       ConstantBound().WithConfidence(80).WithFlags(AverageCase | Amortized),
			Type:        HashTableOp,
		},
	}}
}

// AddPattern registers a pattern ahead of the built-ins, replacing one with
// the same ID.
func (m *Matcher) AddPattern(p Pattern) {
	for i := range m.patterns {
		if m.patterns[i].ID == p.ID {
			m.patterns = append(m.patterns[:i], m.patterns[i+1:]...)
			break
		}
	}
	m.patterns = append([]Pattern{p}, m.patterns...)
}

// Patterns returns the registered patterns in match order.
func (m *Matcher) Patterns() []Pattern {
	return append([]Pattern(nil), m.patterns...)
}

// Match returns the first pattern the subtree at key exhibits.
func (m *Matcher) Match(a *ast.Arena, key ast.NodeKey) (Pattern, bool) {
	n := a.Get(key)
	if n == nil {
		return Pattern{}, false
	}
	var fs *facts
	if n.Kind.Is(ast.CatFunction) {
		f := scan(a, key)
		fs = &f
	}
	for _, p := range m.patterns {
		if matches(a, key, n, fs, p) {
			return p, true
		}
	}
	return Pattern{}, false
}

func matches(a *ast.Arena, key ast.NodeKey, n *ast.Node, fs *facts, p Pattern) bool {
	name := strings.ToLower(n.Name)
	switch p.Type {
	case BinarySearch:
		if fs == nil {
			return n.Kind == ast.ExprCall && isBinarySearch(n.Name)
		}
		return (strings.Contains(name, "binary") && strings.Contains(name, "search")) || fs.binaryCalls > 0
	case DivideAndConquer:
		if fs == nil {
			return false
		}
		if strings.Contains(name, "sort") && (strings.Contains(name, "merge") || strings.Contains(name, "quick")) {
			return true
		}
		r, ok := recurrence(a, *fs)
		return ok && r.Calls[0].Count >= 2
	case NestedLoops:
		return LoopDepth(a, key) >= max(p.Depth, 2)
	case LinearIteration:
		if fs == nil {
			return n.Kind.IsLoop() || (n.Kind == ast.ExprCall && iterCalls[n.Name])
		}
		return fs.loopDepth == 1 || (fs.loopDepth == 0 && fs.iterCalls > 0)
	case HashTableOp:
		if fs == nil {
			return (n.Kind == ast.ExprCall || n.Kind == ast.ExprMember) && hashCalls[n.Name]
		}
		return fs.loopDepth == 0 && fs.hashCalls > 0
	}
	return false
}

// LoopBound maps a loop depth to a polynomial bound, losing confidence with depth.
func LoopBound(depth int) Bound {
	conf := 80 - min(depth*10, 50)
	return Polynomial(uint32(depth), 1).WithConfidence(uint8(conf))
}
