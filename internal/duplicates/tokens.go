package duplicates

import (
	"strconv"
	"strings"
	"text/scanner"

	"pmat/internal/parser"
)

// TokenKind classifies a lexical token.
type TokenKind uint8

const (
	TokIdentifier TokenKind = iota
	TokKeyword
	TokLiteral
	TokOperator
	TokDelimiter
)

func (k TokenKind) String() string {
	switch k {
	case TokIdentifier:
		return "identifier"
	case TokKeyword:
		return "keyword"
	case TokLiteral:
		return "literal"
	case TokOperator:
		return "operator"
	default:
		return "delimiter"
	}
}

// Token is one lexical token of a fragment. Comments and whitespace are
// never produced.
type Token struct {
	Kind TokenKind
	Text string
	Line int
}

var keywords = map[parser.Language]map[string]bool{
	parser.LangRust:       set("as async await break const continue crate dyn else enum extern false fn for if impl in let loop match mod move mut pub ref return self Self static struct super trait true type unsafe use where while"),
	parser.LangGo:         set("break case chan const continue default defer else fallthrough for func go goto if import interface map package range return select struct switch type var nil true false"),
	parser.LangPython:     set("False None True and as assert async await break class continue def del elif else except finally for from global if import in is lambda nonlocal not or pass raise return try while with yield self"),
	parser.LangJavaScript: set("async await break case catch class const continue debugger default delete do else export extends false finally for function if import in instanceof let new null return super switch this throw true try typeof undefined var void while yield"),
	parser.LangJava:       set("abstract boolean break byte case catch char class continue default do double else enum extends final finally float for if implements import instanceof int interface long new null package private protected public return short static super switch this throw throws true false try void while"),
	parser.LangKotlin:     set("as break class continue do else false for fun if in interface is null object package return super this throw true try typealias val var when while"),
	parser.LangC:          set("auto break case char const continue default do double else enum extern float for goto if int long register return short signed sizeof static struct switch typedef union unsigned void volatile while NULL"),
	parser.LangCPP:        set("auto bool break case catch char class const constexpr continue default delete do double else enum explicit extern false float for friend if int long mutable namespace new nullptr operator private protected public return short signed sizeof static struct switch template this throw true try typedef typename union unsigned using virtual void volatile while"),
}

func init() {
	keywords[parser.LangTypeScript] = merge(keywords[parser.LangJavaScript], set("any enum implements interface keyof namespace private protected public readonly type"))
	keywords[parser.LangTSX] = keywords[parser.LangTypeScript]
}

func set(words string) map[string]bool {
	m := make(map[string]bool)
	for _, w := range strings.Fields(words) {
		m[w] = true
	}
	return m
}

func merge(a, b map[string]bool) map[string]bool {
	m := make(map[string]bool, len(a)+len(b))
	for k := range a {
		m[k] = true
	}
	for k := range b {
		m[k] = true
	}
	return m
}

var operators = set("== != <= >= && || << >> += -= *= /= %= &= |= ^= -> => :: .. ++ -- ** ?? ?. := //")

// Tokenize splits src into tokens. Comments are dropped: '#' comments for
// Python, C-style comments otherwise. Malformed literals never fail the scan.
func Tokenize(lang parser.Language, src string, firstLine int) []Token {
	var s scanner.Scanner
	s.Init(strings.NewReader(src))
	s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats |
		scanner.ScanChars | scanner.ScanStrings | scanner.ScanRawStrings
	if lang != parser.LangPython {
		s.Mode |= scanner.ScanComments | scanner.SkipComments
	}
	s.Error = func(*scanner.Scanner, string) {}
	kw := keywords[lang]

	var out []Token
	for tok := s.Scan(); tok != scanner.EOF; tok = s.Scan() {
		line := s.Position.Line + firstLine - 1
		text := s.TokenText()
		switch tok {
		case scanner.Ident:
			kind := TokIdentifier
			if kw[text] {
				kind = TokKeyword
			}
			out = append(out, Token{Kind: kind, Text: text, Line: line})
		case scanner.Int, scanner.Float, scanner.Char, scanner.String, scanner.RawString:
			out = append(out, Token{Kind: TokLiteral, Text: text, Line: line})
		default:
			if tok == '#' && lang == parser.LangPython {
				for c := s.Peek(); c != '\n' && c != scanner.EOF; c = s.Peek() {
					s.Next()
				}
				continue
			}
			if strings.ContainsRune("()[]{},;.", tok) {
				out = append(out, Token{Kind: TokDelimiter, Text: text, Line: line})
				continue
			}
			if pair := text + string(s.Peek()); operators[pair] {
				s.Next()
				text = pair
			}
			out = append(out, Token{Kind: TokOperator, Text: text, Line: line})
		}
	}
	return out
}

// literalClass maps a literal to its kind placeholder.
func literalClass(text string) string {
	switch {
	case text == "":
		return "LIT"
	case text[0] == '"' || text[0] == '`':
		return "STR"
	case text[0] == '\'':
		if len(text) <= 4 {
			return "CHR"
		}
		return "STR"
	}
	if _, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64); err == nil {
		return "NUM"
	}
	return "LIT"
}

// AlphaNormalize renames identifiers to positional names v0, v1, ... in
// first-occurrence order and replaces literals with kind placeholders.
// Keywords, operators and delimiters are kept.
func AlphaNormalize(tokens []Token) []string {
	names := make(map[string]int)
	out := make([]string, len(tokens))
	for i, t := range tokens {
		switch t.Kind {
		case TokIdentifier:
			id, ok := names[t.Text]
			if !ok {
				id = len(names)
				names[t.Text] = id
			}
			out[i] = "v" + strconv.Itoa(id)
		case TokLiteral:
			out[i] = literalClass(t.Text)
		default:
			out[i] = t.Text
		}
	}
	return out
}

// Texts returns the raw token texts.
func Texts(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}
