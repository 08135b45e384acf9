package wasm

import (
	"fmt"
	"strconv"
	"strings"

	pmerrors "pmat/internal/errors"
)

type token struct {
	text string
	line int
}

// tokenize splits WAT source into parens and atoms. Line and block
// comments are dropped and strings become a single atom.
func tokenize(src string) ([]token, error) {
	var out []token
	line := 1
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case strings.HasPrefix(src[i:], ";;"):
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case strings.HasPrefix(src[i:], "(;"):
			start, depth := line, 0
			for i < len(src) {
				switch {
				case strings.HasPrefix(src[i:], "(;"):
					depth++
					i += 2
				case strings.HasPrefix(src[i:], ";)"):
					depth--
					i += 2
				default:
					if src[i] == '\n' {
						line++
					}
					i++
				}
				if depth == 0 {
					break
				}
			}
			if depth != 0 {
				return nil, fmt.Errorf("unterminated block comment at line %d", start)
			}
		case c == '(' || c == ')':
			out = append(out, token{text: string(c), line: line})
			i++
		case c == '"':
			start, j := line, i+1
			for j < len(src) && src[j] != '"' {
				if src[j] == '\\' {
					j++
				} else if src[j] == '\n' {
					line++
				}
				j++
			}
			if j >= len(src) {
				return nil, fmt.Errorf("unterminated string at line %d", start)
			}
			out = append(out, token{text: src[i : j+1], line: start})
			i = j + 1
		default:
			j := i
			for j < len(src) && !strings.ContainsRune(" \t\r\n()\";", rune(src[j])) {
				j++
			}
			if j == i {
				// A lone ';' outside a comment.
				j++
			}
			out = append(out, token{text: src[i:j], line: line})
			i = j
		}
	}
	return out, nil
}

// declarations are module fields; they never count as instructions.
var declarations = map[string]bool{
	"module": true, "func": true, "param": true, "result": true, "local": true,
	"type": true, "import": true, "export": true, "memory": true, "table": true,
	"global": true, "data": true, "elem": true, "start": true, "mut": true,
	"then": true, "offset": true, "item": true, "declare": true,
	"i32": true, "i64": true, "f32": true, "f64": true, "v128": true,
	"funcref": true, "externref": true,
}

type frame struct {
	head string
	fn   bool
}

type block struct {
	loop  bool
	paren int
}

// ParseText measures a WAT module. Unbalanced parentheses, unterminated
// strings and unterminated block comments are parse errors.
func ParseText(path string, src []byte) (*Module, error) {
	toks, err := tokenize(string(src))
	if err != nil {
		return nil, pmerrors.Parse(path, err.Error(), nil)
	}
	m := &Module{Format: FormatText, Bodies: []FunctionMetrics{}}

	var (
		parens  []frame
		blocks  []block
		current *FunctionMetrics
		openAt  []int
	)
	for i, t := range toks {
		switch t.text {
		case "(":
			parens = append(parens, frame{})
			openAt = append(openAt, t.line)
			continue
		case ")":
			if len(parens) == 0 {
				return nil, pmerrors.Parse(path, fmt.Sprintf("unexpected ')' at line %d", t.line), nil)
			}
			depth := len(parens)
			for len(blocks) > 0 && blocks[len(blocks)-1].paren == depth {
				blocks = blocks[:len(blocks)-1]
			}
			if parens[depth-1].fn && current != nil {
				m.Bodies = append(m.Bodies, *current)
				current, blocks = nil, nil
			}
			parens, openAt = parens[:depth-1], openAt[:depth-1]
			continue
		}

		isHead := i > 0 && toks[i-1].text == "(" && len(parens) > 0
		if isHead {
			top := &parens[len(parens)-1]
			top.head = t.text
			parent := ""
			if len(parens) > 1 {
				parent = parens[len(parens)-2].head
			}
			if len(parens) == 1 || parent == "module" {
				m.field(t.text, toks[i+1:])
				if t.text == "func" {
					top.fn = true
					current = &FunctionMetrics{Index: m.ImportedFunctions + m.Functions - 1, Line: t.line, Cyclomatic: 1}
					if i+1 < len(toks) && strings.HasPrefix(toks[i+1].text, "$") {
						current.Name = toks[i+1].text
					} else {
						current.Name = fmt.Sprintf("func[%d]", current.Index)
					}
					continue
				}
			}
			switch {
			case t.text == "import":
				countImportedFunc(m, toks[i+1:])
			case t.text == "export" && parent == "func":
				m.Exports++
			}
		}
		if current == nil {
			continue
		}
		if isHead && t.text == "local" {
			current.Locals += localCount(toks[i+1:])
			continue
		}
		if !isInstruction(t.text) {
			continue
		}
		current.Instructions++
		switch t.text {
		case "block", "loop", "if":
			b := block{loop: t.text == "loop", paren: -1}
			if isHead {
				b.paren = len(parens)
			}
			blocks = append(blocks, b)
			current.MaxBlockDepth = max(current.MaxBlockDepth, len(blocks))
			n := 0
			for _, b := range blocks {
				if b.loop {
					n++
				}
			}
			current.MaxLoopDepth = max(current.MaxLoopDepth, n)
			if t.text == "if" {
				current.Cyclomatic++
			}
		case "end":
			if len(blocks) > 0 && blocks[len(blocks)-1].paren == -1 {
				blocks = blocks[:len(blocks)-1]
			}
		case "br_if":
			current.Cyclomatic++
		case "br_table":
			labels := 0
			for _, n := range toks[i+1:] {
				if n.text == "(" || n.text == ")" || isInstruction(n.text) {
					break
				}
				labels++
			}
			current.Cyclomatic += max(labels-1, 0)
		case "call", "return_call":
			current.Calls++
		case "call_indirect", "return_call_indirect":
			current.IndirectCalls++
		default:
			countMemoryOp(&current.Memory, t.text)
		}
	}
	if len(parens) > 0 {
		return nil, pmerrors.Parse(path, fmt.Sprintf("unclosed '(' opened at line %d", openAt[len(openAt)-1]), nil)
	}
	return m, nil
}

// field counts a module-level declaration.
func (m *Module) field(head string, rest []token) {
	switch head {
	case "type":
		m.Types++
	case "import":
		m.Imports++
	case "func":
		m.Functions++
	case "table":
		m.Tables++
		if n, ok := firstNumber(rest); ok {
			m.MaxTableSize = max(m.MaxTableSize, n)
		}
	case "memory":
		m.Memories++
		if m.Memories == 1 {
			nums := numbers(rest)
			if len(nums) > 0 {
				m.MemoryPages = nums[0]
			}
			if len(nums) > 1 {
				m.MaxMemoryPages, m.HasMemoryMax = nums[1], true
			}
		}
	case "global":
		m.Globals++
	case "export":
		m.Exports++
	case "elem":
		m.Elements++
	case "data":
		m.DataSegments++
	case "start":
		m.HasStart = true
	}
}

// countImportedFunc spots (import "m" "f" (func ...)).
func countImportedFunc(m *Module, rest []token) {
	for i := 0; i+1 < len(rest) && rest[i].text != ")"; i++ {
		if rest[i].text == "(" && rest[i+1].text == "func" {
			m.ImportedFunctions++
			return
		}
	}
}

// numbers returns the unsigned integers of a field, skipping nested
// fields such as inline exports.
func numbers(rest []token) []uint32 {
	var out []uint32
	depth := 0
	for _, t := range rest {
		switch {
		case t.text == "(":
			depth++
			continue
		case t.text == ")" && depth == 0:
			return out
		case t.text == ")":
			depth--
			continue
		case depth > 0:
			continue
		}
		if n, err := strconv.ParseUint(strings.ReplaceAll(t.text, "_", ""), 0, 32); err == nil {
			out = append(out, uint32(n))
		}
	}
	return out
}

func firstNumber(rest []token) (uint32, bool) {
	nums := numbers(rest)
	if len(nums) == 0 {
		return 0, false
	}
	return nums[0], true
}

// localCount counts the locals of one (local ...) group.
func localCount(rest []token) int {
	n := 0
	for _, t := range rest {
		if t.text == ")" || t.text == "(" {
			break
		}
		n++
	}
	// (local $x i32) declares one named local.
	if len(rest) > 0 && strings.HasPrefix(rest[0].text, "$") {
		return 1
	}
	return n
}

func isInstruction(s string) bool {
	if s == "" || declarations[s] || strings.ContainsRune(s, '=') {
		return false
	}
	c := s[0]
	return c >= 'a' && c <= 'z'
}

func countMemoryOp(s *MemoryOpStats, op string) {
	switch {
	case strings.Contains(op, ".atomic."):
		s.Atomics++
	case strings.HasPrefix(op, "v128.") || strings.Contains(op, "x4.") || strings.Contains(op, "x8.") || strings.Contains(op, "x16.") || strings.Contains(op, "x2."):
		s.SIMD++
	case strings.Contains(op, ".load"):
		s.Loads++
	case strings.Contains(op, ".store"):
		s.Stores++
	case op == "memory.grow":
		s.Grows++
	case op == "memory.size":
		s.Sizes++
	case op == "memory.copy" || op == "memory.fill" || op == "memory.init":
		s.Bulk++
	}
}

// IsText reports whether src looks like a WAT module: it opens with a
// paren and mentions module or func.
func IsText(src []byte) bool {
	s := stripLeadingComments(string(src))
	return strings.HasPrefix(s, "(") && (strings.Contains(s, "module") || strings.Contains(s, "func"))
}

func stripLeadingComments(s string) string {
	for {
		s = strings.TrimSpace(s)
		if !strings.HasPrefix(s, ";;") {
			return s
		}
		_, rest, ok := strings.Cut(s, "\n")
		if !ok {
			return ""
		}
		s = rest
	}
}
