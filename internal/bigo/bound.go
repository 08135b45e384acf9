// Package bigo estimates asymptotic time and space bounds of functions from
// the unified AST: loop nesting, recursion shape and well-known patterns.
package bigo

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Class is an asymptotic growth class ordered from best to worst.
type Class uint8

const (
	Constant Class = iota
	Logarithmic
	Linear
	Linearithmic
	Quadratic
	Cubic
	Exponential
	Factorial
	Unknown Class = 255
)

var notations = map[Class]string{
	Constant:     "O(1)",
	Logarithmic:  "O(log n)",
	Linear:       "O(n)",
	Linearithmic: "O(n log n)",
	Quadratic:    "O(n²)",
	Cubic:        "O(n³)",
	Exponential:  "O(2^n)",
	Factorial:    "O(n!)",
	Unknown:      "O(?)",
}

// Notation renders the class in big-O notation.
func (c Class) Notation() string {
	if s, ok := notations[c]; ok {
		return s
	}
	return notations[Unknown]
}

func (c Class) String() string { return c.Notation() }

// Better reports whether c grows strictly slower than other.
func (c Class) Better(other Class) bool { return c < other }

// GrowthFactor evaluates the class at n.
func (c Class) GrowthFactor(n float64) float64 {
	switch c {
	case Constant:
		return 1
	case Logarithmic:
		return math.Log2(n)
	case Linear:
		return n
	case Linearithmic:
		return n * math.Log2(n)
	case Quadratic:
		return n * n
	case Cubic:
		return n * n * n
	case Exponential:
		return math.Pow(2, n)
	case Factorial:
		if n <= 20 {
			f := 1.0
			for i := 2; i <= int(n); i++ {
				f *= float64(i)
			}
			return f
		}
		return math.Sqrt(2*math.Pi*n) * math.Pow(n/math.E, n)
	default:
		return math.NaN()
	}
}

func (c Class) MarshalText() ([]byte, error) { return []byte(c.Notation()), nil }

func (c *Class) UnmarshalText(b []byte) error {
	for k, v := range notations {
		if v == string(b) {
			*c = k
			return nil
		}
	}
	return fmt.Errorf("unknown complexity class %q", b)
}

// InputVar names the variable a bound is expressed in.
type InputVar uint8

const (
	VarN InputVar = iota
	VarM
	VarK
	VarD
	VarCustom InputVar = 255
)

func (v InputVar) String() string {
	switch v {
	case VarN:
		return "n"
	case VarM:
		return "m"
	case VarK:
		return "k"
	case VarD:
		return "d"
	default:
		return "x"
	}
}

// Flags qualify a bound.
type Flags uint8

const (
	Amortized Flags = 1 << iota
	WorstCase
	AverageCase
	BestCase
	TightBound
	Empirical
	Proven
	Recursive
)

var flagNames = [...]string{"amortized", "worst_case", "average_case", "best_case", "tight_bound", "empirical", "proven", "recursive"}

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// Names lists the set flags in bit order.
func (f Flags) Names() []string {
	var out []string
	for i, n := range flagNames {
		if f&(1<<i) != 0 {
			out = append(out, n)
		}
	}
	return out
}

// Bound is a compact complexity bound. Its in-memory size is eight bytes.
type Bound struct {
	Class       Class
	Coefficient uint16
	Input       InputVar
	Confidence  uint8
	Flags       Flags
}

// New returns a worst-case bound with 50% confidence.
func New(class Class, coefficient uint16, input InputVar) Bound {
	return Bound{Class: class, Coefficient: coefficient, Input: input, Confidence: 50, Flags: WorstCase}
}

func ConstantBound() Bound {
	return New(Constant, 1, VarN).WithConfidence(100).WithFlags(Proven)
}
func LinearBound() Bound       { return New(Linear, 1, VarN) }
func LogarithmicBound() Bound  { return New(Logarithmic, 1, VarN) }
func LinearithmicBound() Bound { return New(Linearithmic, 1, VarN) }
func QuadraticBound() Bound    { return New(Quadratic, 1, VarN) }

func UnknownBound() Bound {
	return New(Unknown, 0, VarN).WithConfidence(0)
}

// Polynomial returns O(n^exponent); exponents above three are Unknown.
func Polynomial(exponent uint32, coefficient uint16) Bound {
	class := Unknown
	switch exponent {
	case 0:
		class = Constant
	case 1:
		class = Linear
	case 2:
		class = Quadratic
	case 3:
		class = Cubic
	}
	return New(class, coefficient, VarN)
}

// WithConfidence sets the confidence, clamped to 100.
func (b Bound) WithConfidence(c uint8) Bound {
	b.Confidence = min(c, 100)
	return b
}

// WithFlags adds flags.
func (b Bound) WithFlags(f Flags) Bound {
	b.Flags |= f
	return b
}

// Notation renders the bound with its coefficient when above one.
func (b Bound) Notation() string {
	if b.Coefficient <= 1 {
		return b.Class.Notation()
	}
	return fmt.Sprintf("%d·%s", b.Coefficient, b.Class.Notation())
}

func (b Bound) String() string {
	return fmt.Sprintf("%s (%d%% confidence)", b.Notation(), b.Confidence)
}

// EstimateOperations evaluates coefficient times the growth factor at n.
func (b Bound) EstimateOperations(n float64) float64 {
	return float64(b.Coefficient) * b.Class.GrowthFactor(n)
}

// Better orders bounds lexicographically on (class, coefficient).
func (b Bound) Better(other Bound) bool {
	if b.Class != other.Class {
		return b.Class.Better(other.Class)
	}
	return b.Coefficient < other.Coefficient
}

// Compare returns -1, 0 or 1 on (class, coefficient).
func (b Bound) Compare(other Bound) int {
	switch {
	case b.Better(other):
		return -1
	case other.Better(b):
		return 1
	default:
		return 0
	}
}

type boundJSON struct {
	Class       Class    `json:"class"`
	Notation    string   `json:"notation"`
	Coefficient uint16   `json:"coefficient"`
	Input       string   `json:"input_variable"`
	Confidence  uint8    `json:"confidence"`
	Flags       []string `json:"flags,omitempty"`
}

func (b Bound) MarshalJSON() ([]byte, error) {
	return json.Marshal(boundJSON{
		Class:       b.Class,
		Notation:    b.Notation(),
		Coefficient: b.Coefficient,
		Input:       b.Input.String(),
		Confidence:  b.Confidence,
		Flags:       b.Flags.Names(),
	})
}

func (b *Bound) UnmarshalJSON(data []byte) error {
	var j boundJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	b.Class, b.Coefficient, b.Confidence = j.Class, j.Coefficient, j.Confidence
	b.Input = VarCustom
	for _, v := range []InputVar{VarN, VarM, VarK, VarD} {
		if v.String() == j.Input {
			b.Input = v
		}
	}
	b.Flags = 0
	for _, name := range j.Flags {
		for i, n := range flagNames {
			if strings.EqualFold(n, name) {
				b.Flags |= 1 << i
			}
		}
	}
	return nil
}
