package duplicates

import (
	"encoding/binary"
	"math/rand/v2"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/floats"

	"pmat/internal/ast"
)

// Embedding block sizes.
const (
	StructuralDims = 128
	SemanticDims   = 128
	ContextualDims = 128
	EmbeddingDims  = StructuralDims + SemanticDims + ContextualDims
)

// Embedding is an L2-normalized fragment vector.
type Embedding []float64

func bucket(dims int, parts ...string) int {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(p)
		_, _ = d.Write([]byte{0})
	}
	return int(d.Sum64() % uint64(dims))
}

// Embed builds the embedding of the function at key. The structural block
// counts node kinds by depth and parent/child kind pairs; the semantic block
// counts identifier subwords and callee names; the contextual block records
// language, enclosing type, parameter and return shape and size.
func Embed(a *ast.Arena, key ast.NodeKey, tokens []Token) Embedding {
	v := make([]float64, EmbeddingDims)
	structural := v[:StructuralDims]
	semantic := v[StructuralDims : StructuralDims+SemanticDims]
	contextual := v[StructuralDims+SemanticDims:]

	fn := a.Get(key)
	depth := map[ast.NodeKey]int{key: 0}
	params, returns := 0, 0
	for k := range a.Subtree(key) {
		n := a.Get(k)
		d := depth[n.Parent] + 1
		depth[k] = d
		structural[bucket(StructuralDims, n.Kind.String(), string(rune('0'+min(d, 9))))]++
		structural[bucket(StructuralDims, a.Get(n.Parent).Kind.String(), n.Kind.String())] += 0.5
		switch {
		case n.Kind == ast.ExprCall && n.Name != "":
			semantic[bucket(SemanticDims, "call", strings.ToLower(n.Name))] += 2
		case n.Kind == ast.VarParameter && a.EnclosingFunction(k) == key:
			params++
		case n.Kind == ast.StmtReturn:
			returns++
		}
	}
	for _, t := range tokens {
		switch t.Kind {
		case TokIdentifier:
			for _, w := range subwords(t.Text) {
				semantic[bucket(SemanticDims, "word", w)]++
			}
		case TokKeyword, TokOperator:
			semantic[bucket(SemanticDims, "op", t.Text)] += 0.5
		}
	}

	contextual[bucket(ContextualDims, "lang", string(fn.Language))] += 2
	if owner := a.Ancestor(key, func(k ast.Kind) bool { return k.Is(ast.CatClass) }); owner != ast.None {
		contextual[bucket(ContextualDims, "owner", a.Get(owner).Kind.String())]++
	}
	contextual[bucket(ContextualDims, "kind", fn.Kind.String())]++
	contextual[bucket(ContextualDims, "params", string(rune('0'+min(params, 9))))]++
	contextual[bucket(ContextualDims, "returns", string(rune('0'+min(returns, 9))))]++
	contextual[bucket(ContextualDims, "size", sizeClass(len(tokens)))]++
	contextual[bucket(ContextualDims, "lines", sizeClass(fn.Lines()*8))]++

	for _, block := range [][]float64{structural, semantic, contextual} {
		if n := floats.Norm(block, 2); n > 0 {
			floats.Scale(1/n, block)
		}
	}
	if n := floats.Norm(v, 2); n > 0 {
		floats.Scale(1/n, v)
	}
	return v
}

func sizeClass(n int) string {
	switch {
	case n < 64:
		return "xs"
	case n < 128:
		return "s"
	case n < 256:
		return "m"
	case n < 512:
		return "l"
	default:
		return "xl"
	}
}

// subwords splits camelCase and snake_case identifiers into lower-case words.
func subwords(id string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	prev := rune(0)
	for _, r := range id {
		switch {
		case r == '_' || r == '$':
			flush()
		case unicode.IsUpper(r) && prev != 0 && unicode.IsLower(prev):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
		prev = r
	}
	flush()
	return words
}

// Cosine returns the cosine similarity of two normalized embeddings.
func Cosine(x, y Embedding) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}
	return floats.Dot(x, y)
}

// annIndex is a random-hyperplane LSH index over embeddings.
type annIndex struct {
	planes  [][][]float64
	buckets map[uint64][]int
}

func newANNIndex(tables, bits int, seed uint64) *annIndex {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	planes := make([][][]float64, tables)
	for t := range planes {
		planes[t] = make([][]float64, bits)
		for b := range planes[t] {
			p := make([]float64, EmbeddingDims)
			for i := range p {
				p[i] = r.NormFloat64()
			}
			planes[t][b] = p
		}
	}
	return &annIndex{planes: planes, buckets: make(map[uint64][]int)}
}

func (x *annIndex) keys(e Embedding) []uint64 {
	keys := make([]uint64, len(x.planes))
	var buf [16]byte
	for t, planes := range x.planes {
		var code uint64
		for b, p := range planes {
			if floats.Dot(p, e) >= 0 {
				code |= 1 << b
			}
		}
		binary.LittleEndian.PutUint64(buf[:8], uint64(t))
		binary.LittleEndian.PutUint64(buf[8:], code)
		keys[t] = xxhash.Sum64(buf[:])
	}
	return keys
}

func (x *annIndex) add(id int, e Embedding) {
	for _, k := range x.keys(e) {
		x.buckets[k] = append(x.buckets[k], id)
	}
}

func (x *annIndex) candidates() [][2]int { return bucketPairs(x.buckets) }
