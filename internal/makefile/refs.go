package makefile

import "strings"

type refStyle int

const (
	parenRef refStyle = iota // $(VAR)
	braceRef                 // ${VAR}
	singleRef                // $V
)

type varRef struct {
	name  string
	style refStyle
}

// scanRefs lists variable references in text, skipping $$ escapes. A
// reference runs to the first closing delimiter, so nested references
// surface as the outer name only.
func scanRefs(text string) []varRef {
	var out []varRef
	for i := 0; i < len(text); i++ {
		if text[i] != '$' || i+1 >= len(text) {
			continue
		}
		switch c := text[i+1]; {
		case c == '$':
			i++
		case c == '(' || c == '{':
			closer := byte(')')
			style := parenRef
			if c == '{' {
				closer, style = '}', braceRef
			}
			end := strings.IndexByte(text[i+2:], closer)
			if end < 0 {
				continue
			}
			out = append(out, varRef{name: refName(text[i+2 : i+2+end]), style: style})
			i += 2 + end
		case isNameByte(c):
			out = append(out, varRef{name: string(c), style: singleRef})
			i++
		}
	}
	return out
}

func isNameByte(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// refName strips default values and substitution references from the
// body of a reference. Bodies that look like shell pipelines yield
// an empty name.
func refName(body string) string {
	for _, sep := range []string{":-", ":+"} {
		if before, _, ok := strings.Cut(body, sep); ok {
			return strings.TrimSpace(before)
		}
	}
	if before, _, ok := strings.Cut(body, ":"); ok && !strings.ContainsAny(before, " |{") {
		return strings.TrimSpace(before)
	}
	if strings.ContainsAny(body, "|<>") {
		return ""
	}
	return strings.TrimSpace(body)
}

var makeFunctions = []string{
	"shell", "wildcard", "patsubst", "subst", "strip", "findstring", "filter", "filter-out",
	"sort", "word", "words", "wordlist", "firstword", "lastword", "dir", "notdir", "suffix",
	"basename", "addprefix", "addsuffix", "join", "realpath", "abspath", "foreach", "if",
	"or", "and", "call", "eval", "value", "origin", "flavor", "error", "warning", "info", "file",
}

func isFunctionCall(body string) bool {
	fn, _, ok := strings.Cut(body, " ")
	if !ok {
		return false
	}
	for _, f := range makeFunctions {
		if fn == f {
			return true
		}
	}
	return false
}

// isAutomatic matches automatic variables and their D/F variants.
func isAutomatic(name string) bool {
	if len(name) == 2 && (name[1] == 'D' || name[1] == 'F') {
		name = name[:1]
	}
	switch name {
	case "@", "<", "^", "?", "*", "%", "+", "|", "$":
		return true
	}
	return false
}

// checkable reports whether the reference names a user variable.
func (r varRef) checkable() bool {
	n := r.name
	switch {
	case n == "" || isAutomatic(n):
		return false
	case r.style == parenRef && isFunctionCall(n):
		return false
	case strings.ContainsAny(n, " ;&"):
		return false
	case len(n) == 1 && 'a' <= n[0] && n[0] <= 'z':
		// Shell loop variables such as $f.
		return false
	}
	return true
}
