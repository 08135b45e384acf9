package bigo

import (
	"regexp"
	"strconv"
	"strings"

	"pmat/internal/ast"
)

var (
	sortCalls = map[string]bool{
		"sort": true, "sort_by": true, "sort_by_key": true, "sort_unstable": true,
		"sort_unstable_by": true, "sorted": true, "sortBy": true, "Sort": true,
		"Slice": true, "SliceStable": true, "qsort": true,
	}
	iterCalls = map[string]bool{
		"map": true, "filter": true, "for_each": true, "forEach": true, "fold": true,
		"reduce": true, "iter": true, "into_iter": true, "collect": true, "sum": true,
	}
	hashCalls = map[string]bool{
		"get": true, "insert": true, "contains_key": true, "containsKey": true, "has": true,
		"set": true, "put": true, "remove": true, "entry": true, "get_mut": true,
	}
	allocCalls = map[string]bool{
		"new": true, "with_capacity": true, "make": true, "dict": true, "list": true,
		"set": true, "vec": true, "Vec": true, "HashMap": true, "HashSet": true,
		"BTreeMap": true, "ArrayList": true, "Array": true, "malloc": true, "calloc": true,
	}
	linearHelpers = []string{"merge", "partition", "combine", "concat", "extend", "copy"}

	divisionRe = regexp.MustCompile(`/\s*(\d+)`)
	shiftRe    = regexp.MustCompile(`>>\s*(\d+)`)
)

// facts summarizes one function body without descending into nested functions.
type facts struct {
	loopDepth    int
	selfCalls    []ast.NodeKey
	loopedSelf   int
	sortCalls    int
	binaryCalls  int
	iterCalls    int
	hashCalls    int
	linearHelper bool
	allocates    bool
}

type scanFrame struct {
	key   ast.NodeKey
	loops int
}

// LoopDepth returns the deepest loop nesting under key, counting key itself.
func LoopDepth(a *ast.Arena, key ast.NodeKey) int {
	n := a.Get(key)
	if n == nil {
		return 0
	}
	if n.Kind.Is(ast.CatFunction) {
		return scan(a, key).loopDepth
	}
	depth := 0
	stack := []scanFrame{{key: key}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		loops := f.loops
		if a.Get(f.key).Kind.IsLoop() {
			loops++
			depth = max(depth, loops)
		}
		for c := range a.Children(f.key) {
			if !a.Get(c).Kind.Is(ast.CatFunction) {
				stack = append(stack, scanFrame{key: c, loops: loops})
			}
		}
	}
	return depth
}

func scan(a *ast.Arena, fn ast.NodeKey) facts {
	var fs facts
	name := a.Get(fn).Name
	stack := make([]scanFrame, 0, 32)
	for c := range a.Children(fn) {
		stack = append(stack, scanFrame{key: c})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := a.Get(f.key)
		if n.Kind.Is(ast.CatFunction) {
			continue
		}
		loops := f.loops
		switch {
		case n.Kind.IsLoop():
			loops++
			fs.loopDepth = max(fs.loopDepth, loops)
		case n.Kind == ast.ExprCall:
			switch {
			case name != "" && n.Name == name:
				fs.selfCalls = append(fs.selfCalls, f.key)
				if loops > 0 {
					fs.loopedSelf++
				}
			case sortCalls[n.Name]:
				fs.sortCalls++
			case isBinarySearch(n.Name):
				fs.binaryCalls++
			case iterCalls[n.Name]:
				fs.iterCalls++
			case hashCalls[n.Name]:
				fs.hashCalls++
			}
			if allocCalls[n.Name] || strings.HasSuffix(n.Detail, "::new") {
				fs.allocates = true
			}
			lower := strings.ToLower(n.Name)
			for _, h := range linearHelpers {
				if strings.Contains(lower, h) {
					fs.linearHelper = true
				}
			}
		case n.Kind == ast.ExprArray || n.Kind == ast.ExprObject:
			fs.allocates = true
		}
		for c := range a.Children(f.key) {
			stack = append(stack, scanFrame{key: c, loops: loops})
		}
	}
	return fs
}

func isBinarySearch(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "binary_search") || strings.Contains(lower, "binarysearch") ||
		strings.HasPrefix(lower, "bisect")
}

// divisionFactor inspects the argument text of a recursive call for n/b,
// n>>k or midpoint splitting. Zero means no division was found.
func divisionFactor(a *ast.Arena, call ast.NodeKey) uint32 {
	text := a.Text(call)
	if open := strings.IndexByte(text, '('); open >= 0 {
		text = text[open:]
	}
	if m := divisionRe.FindStringSubmatch(text); m != nil {
		if b, err := strconv.ParseUint(m[1], 10, 32); err == nil && b > 1 {
			return uint32(b)
		}
	}
	if m := shiftRe.FindStringSubmatch(text); m != nil {
		if k, err := strconv.ParseUint(m[1], 10, 8); err == nil && k > 0 && k < 16 {
			return 1 << k
		}
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "mid") || strings.Contains(lower, "half") {
		return 2
	}
	return 0
}

// recurrence derives a·T(n/b) + f(n) from the self-calls of fn.
func recurrence(a *ast.Arena, fs facts) (Recurrence, bool) {
	if len(fs.selfCalls) == 0 || fs.loopedSelf > 0 {
		return Recurrence{}, false
	}
	var b uint32
	for _, c := range fs.selfCalls {
		d := divisionFactor(a, c)
		if d == 0 || (b != 0 && d != b) {
			return Recurrence{}, false
		}
		b = d
	}
	work := ConstantBound()
	switch {
	case fs.loopDepth == 1 || fs.linearHelper || fs.iterCalls > 0:
		work = LinearBound()
	case fs.loopDepth > 1:
		return Recurrence{}, false
	}
	return Recurrence{
		Calls:        []RecursiveCall{{DivisionFactor: b, Count: uint32(len(fs.selfCalls))}},
		Work:         work,
		BaseCaseSize: 1,
	}, true
}
