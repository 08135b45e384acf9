package duplicates

import (
	"encoding/binary"
	"math"
	"math/bits"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// Rabin fingerprinting works modulo the Mersenne prime 2^61-1.
const (
	rabinPrime = 1<<61 - 1
	rabinBase  = 1_000_003
)

func mulMod(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	// (hi·2^64 + lo) mod 2^61-1
	r := (hi<<3 | lo>>61) + lo&rabinPrime
	for r >= rabinPrime {
		r -= rabinPrime
	}
	return r
}

// Rabin returns the polynomial fingerprint of b.
func Rabin(b []byte) uint64 {
	var h uint64
	for _, c := range b {
		h = mulMod(h, rabinBase) + uint64(c) + 1
		if h >= rabinPrime {
			h -= rabinPrime
		}
	}
	return h
}

// RabinTokens fingerprints a token text sequence with single-space
// separators, so layout differences do not change the result.
func RabinTokens(texts []string) uint64 {
	var h uint64
	for i, t := range texts {
		if i > 0 {
			h = mulMod(h, rabinBase) + ' ' + 1
		}
		for j := 0; j < len(t); j++ {
			h = mulMod(h, rabinBase) + uint64(t[j]) + 1
			if h >= rabinPrime {
				h -= rabinPrime
			}
		}
		if h >= rabinPrime {
			h -= rabinPrime
		}
	}
	return h
}

// Shingles hashes every window of k consecutive tokens. Sequences shorter
// than k produce a single shingle covering all of them.
func Shingles(tokens []string, k int) []uint64 {
	if len(tokens) == 0 {
		return nil
	}
	if k <= 0 || len(tokens) < k {
		k = len(tokens)
	}
	out := make([]uint64, 0, len(tokens)-k+1)
	d := xxhash.New()
	for i := 0; i+k <= len(tokens); i++ {
		d.Reset()
		for _, t := range tokens[i : i+k] {
			_, _ = d.WriteString(t)
			_, _ = d.Write([]byte{0})
		}
		out = append(out, d.Sum64())
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// Signature is a MinHash sketch.
type Signature []uint64

// MinHash computes an n-value signature. Permutation i hashes the shingle
// with seed i.
func MinHash(shingles []uint64, n int) Signature {
	sig := make(Signature, n)
	for i := range sig {
		sig[i] = math.MaxUint64
	}
	var buf [16]byte
	for _, s := range shingles {
		binary.LittleEndian.PutUint64(buf[:8], s)
		for i := range sig {
			binary.LittleEndian.PutUint64(buf[8:], mix(uint64(i)+1))
			if h := xxhash.Sum64(buf[:]); h < sig[i] {
				sig[i] = h
			}
		}
	}
	return sig
}

// Jaccard estimates set similarity as the fraction of agreeing slots.
func (s Signature) Jaccard(o Signature) float64 {
	if len(s) == 0 || len(s) != len(o) {
		return 0
	}
	same := 0
	for i := range s {
		if s[i] == o[i] {
			same++
		}
	}
	return float64(same) / float64(len(s))
}

// minhashIndex buckets signatures for candidate generation. The signature
// is cut into Tables slices of Projections values; each slice is indexed
// by groups of rows values.
type minhashIndex struct {
	tables, projections, rows int
	buckets                   map[uint64][]int
}

func newMinhashIndex(tables, projections, rows int) *minhashIndex {
	if rows <= 0 || rows > projections {
		rows = projections
	}
	return &minhashIndex{tables: tables, projections: projections, rows: rows, buckets: make(map[uint64][]int)}
}

func (x *minhashIndex) keys(sig Signature) []uint64 {
	var keys []uint64
	var buf [8]byte
	d := xxhash.New()
	band := 0
	for t := 0; t < x.tables; t++ {
		slice := sig[t*x.projections : (t+1)*x.projections]
		for r := 0; r+x.rows <= len(slice); r += x.rows {
			d.Reset()
			binary.LittleEndian.PutUint64(buf[:], uint64(band))
			_, _ = d.Write(buf[:])
			for _, v := range slice[r : r+x.rows] {
				binary.LittleEndian.PutUint64(buf[:], v)
				_, _ = d.Write(buf[:])
			}
			keys = append(keys, d.Sum64())
			band++
		}
	}
	return keys
}

func (x *minhashIndex) add(id int, sig Signature) {
	for _, k := range x.keys(sig) {
		x.buckets[k] = append(x.buckets[k], id)
	}
}

func (x *minhashIndex) candidates() [][2]int { return bucketPairs(x.buckets) }

// bucketPairs returns every pair of ids sharing a bucket, with i < j, sorted.
func bucketPairs(buckets map[uint64][]int) [][2]int {
	seen := make(map[[2]int]bool)
	for _, ids := range buckets {
		for a := 0; a < len(ids); a++ {
			for b := a + 1; b < len(ids); b++ {
				if ids[a] != ids[b] {
					seen[[2]int{min(ids[a], ids[b]), max(ids[a], ids[b])}] = true
				}
			}
		}
	}
	out := make([][2]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	slices.SortFunc(out, comparePairs)
	return out
}

func comparePairs(a, b [2]int) int {
	if a[0] != b[0] {
		return a[0] - b[0]
	}
	return a[1] - b[1]
}
