package makefile

import (
	"fmt"
	"strings"

	pmerrors "pmat/internal/errors"
)

// Parse reads a Makefile. Conditionals are transparent: both branches are
// parsed. A tab-indented line outside a rule is a syntax error; all such
// errors are reported together and the partial file is still returned.
func Parse(name string, src []byte) (*File, error) {
	p := &parser{f: &File{Rules: []Rule{}, Variables: []Variable{}, Includes: []Include{}}, cur: -1}
	lines := strings.Split(strings.ReplaceAll(string(src), "\r\n", "\n"), "\n")
	for i := 0; i < len(lines); i++ {
		i = p.line(lines, i)
	}
	if p.define != nil {
		p.errs = append(p.errs, fmt.Sprintf("line %d: define %s without endef", p.define.Line, p.define.Name))
	}
	if len(p.errs) > 0 {
		return p.f, pmerrors.Parse(name, strings.Join(p.errs, "; "), nil).WithDetail("errors", p.errs)
	}
	return p.f, nil
}

type parser struct {
	f *File
	// cur indexes the rule whose recipe is being read, or -1.
	cur    int
	define *Variable
	errs   []string
}

// line consumes the logical line starting at lines[i] and returns the index
// of its last physical line.
func (p *parser) line(lines []string, i int) int {
	raw := lines[i]
	n := i + 1

	if p.define != nil {
		if strings.TrimSpace(raw) == "endef" {
			p.f.Variables = append(p.f.Variables, *p.define)
			p.define = nil
		} else if p.define.Value == "" {
			p.define.Value = raw
		} else {
			p.define.Value += "\n" + raw
		}
		return i
	}

	if strings.HasPrefix(raw, "\t") {
		if p.cur < 0 {
			if strings.TrimSpace(raw) != "" {
				p.errs = append(p.errs, fmt.Sprintf("line %d: recipe without rule", n))
			}
			return i
		}
		rule := &p.f.Rules[p.cur]
		rule.Recipe = append(rule.Recipe, recipeLine(n, raw[1:]))
		// Continued commands keep going even without a leading tab.
		for strings.HasSuffix(strings.TrimRight(lines[i], " "), "\\") && i+1 < len(lines) {
			i++
			rule.Recipe = append(rule.Recipe, RecipeLine{Line: i + 1, Text: strings.TrimRight(strings.TrimPrefix(lines[i], "\t"), " \r")})
		}
		return i
	}

	text := strings.TrimSpace(raw)
	if text == "" {
		return i
	}
	if strings.HasPrefix(text, "#") {
		p.f.Comments++
		return i
	}

	// Join backslash continuations.
	for strings.HasSuffix(text, "\\") && i+1 < len(lines) {
		i++
		text = strings.TrimSpace(strings.TrimSuffix(text, "\\")) + " " + strings.TrimSpace(lines[i])
	}
	text = stripComment(text)

	word, rest, _ := strings.Cut(text, " ")
	switch word {
	case "include", "-include", "sinclude":
		p.f.Includes = append(p.f.Includes, Include{Line: n, Files: strings.Fields(rest), Optional: word != "include"})
		p.cur = -1
		return i
	case "ifeq", "ifneq", "ifdef", "ifndef", "else", "endif":
		return i
	case "define":
		name, op := strings.TrimSpace(rest), Deferred
		for _, candidate := range []AssignOp{Immediate, Conditional, Append, Shell, Deferred} {
			if before, ok := strings.CutSuffix(name, string(candidate)); ok {
				name, op = strings.TrimSpace(before), candidate
				break
			}
		}
		p.define = &Variable{Line: n, Name: name, Op: op}
		p.cur = -1
		return i
	case "export", "override", "unexport", "private":
		if rest == "" {
			return i
		}
		text = strings.TrimSpace(rest)
	}

	pos, op, isRule, double := classify(text)
	switch {
	case isRule:
		p.rule(n, text, pos, double)
	case op != "":
		name := strings.TrimSpace(text[:pos])
		if name == "" {
			p.errs = append(p.errs, fmt.Sprintf("line %d: empty variable name", n))
			return i
		}
		p.f.Variables = append(p.f.Variables, Variable{
			Line:  n,
			Name:  name,
			Op:    op,
			Value: strings.TrimSpace(text[pos+strings.IndexByte(text[pos:], '=')+1:]),
		})
		p.cur = -1
	}
	return i
}

func (p *parser) rule(n int, text string, pos int, double bool) {
	targets := strings.Fields(text[:pos])
	after := text[pos+1:]
	if double {
		after = text[pos+2:]
	}
	deps, inline, hasInline := strings.Cut(after, ";")
	var prereqs []string
	for _, d := range strings.Fields(deps) {
		if d != "|" {
			prereqs = append(prereqs, d)
		}
	}
	r := Rule{
		Line:          n,
		Targets:       targets,
		Prerequisites: prereqs,
		DoubleColon:   double,
	}
	if r.Prerequisites == nil {
		r.Prerequisites = []string{}
	}
	for _, s := range append(append([]string{}, targets...), prereqs...) {
		if strings.Contains(s, "%") {
			r.Pattern = true
		}
	}
	if hasInline && strings.TrimSpace(inline) != "" {
		r.Recipe = append(r.Recipe, recipeLine(n, strings.TrimSpace(inline)))
	}
	p.f.Rules = append(p.f.Rules, r)
	p.cur = len(p.f.Rules) - 1
}

func recipeLine(n int, text string) RecipeLine {
	l := RecipeLine{Line: n}
	text = strings.TrimLeft(text, " ")
	for len(text) > 0 {
		switch text[0] {
		case '@':
			l.Silent = true
		case '-':
			l.IgnoreError = true
		case '+':
			l.AlwaysExec = true
		default:
			l.Text = strings.TrimRight(text, " \r")
			return l
		}
		text = text[1:]
	}
	return l
}

// classify finds the first rule colon or assignment operator outside a
// variable reference.
func classify(text string) (pos int, op AssignOp, isRule, double bool) {
	depth := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '$' && i+1 < len(text) && (text[i+1] == '(' || text[i+1] == '{') {
			depth++
			i++
			continue
		}
		if depth > 0 {
			if c == ')' || c == '}' {
				depth--
			}
			continue
		}
		next := byte(0)
		if i+1 < len(text) {
			next = text[i+1]
		}
		switch c {
		case ':':
			switch {
			case next == '=':
				return i, Immediate, false, false
			case next == ':' && i+2 < len(text) && text[i+2] == '=':
				return i, Immediate, false, false
			case next == ':':
				return i, "", true, true
			default:
				return i, "", true, false
			}
		case '=':
			return i, Deferred, false, false
		case '?', '+', '!':
			if next == '=' {
				return i, AssignOp(string(c) + "="), false, false
			}
		}
	}
	return 0, "", false, false
}

// stripComment drops an unescaped # and what follows.
func stripComment(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '#' && (i == 0 || s[i-1] != '\\') {
			return strings.TrimSpace(s[:i])
		}
	}
	return s
}
