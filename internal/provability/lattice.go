// Package provability runs a lightweight abstract interpretation over each
// function of the unified AST and scores how much of its behaviour can be
// established statically.
package provability

import "strconv"

// Nullability tracks whether a returned value may be null.
type Nullability int

const (
	NullBottom Nullability = iota
	NotNull
	MaybeNull
	Null
	NullTop
)

func (n Nullability) String() string {
	switch n {
	case NullBottom:
		return "bottom"
	case NotNull:
		return "not-null"
	case MaybeNull:
		return "maybe-null"
	case Null:
		return "null"
	default:
		return "top"
	}
}

// Join is the least upper bound. Bottom is the identity and Top absorbs.
func (n Nullability) Join(o Nullability) Nullability {
	switch {
	case n == NullBottom:
		return o
	case o == NullBottom:
		return n
	case n == NullTop || o == NullTop:
		return NullTop
	case n == o:
		return n
	default:
		return MaybeNull
	}
}

// Meet is the greatest lower bound.
func (n Nullability) Meet(o Nullability) Nullability {
	switch {
	case n == NullTop:
		return o
	case o == NullTop:
		return n
	case n == NullBottom || o == NullBottom:
		return NullBottom
	case n == o:
		return n
	case n == MaybeNull:
		return o
	case o == MaybeNull:
		return n
	default:
		return NullBottom
	}
}

// Interval is an integer range; a nil bound is unbounded.
type Interval struct {
	Lower *int64 `json:"lower,omitempty"`
	Upper *int64 `json:"upper,omitempty"`
}

// Exact returns the interval [lo, hi].
func Exact(lo, hi int64) Interval { return Interval{Lower: &lo, Upper: &hi} }

// Unbounded returns (-inf, +inf).
func Unbounded() Interval { return Interval{} }

// Bounded reports whether both sides are finite.
func (i Interval) Bounded() bool { return i.Lower != nil && i.Upper != nil }

func (i Interval) String() string {
	lo, hi := "-inf", "+inf"
	if i.Lower != nil {
		lo = strconv.FormatInt(*i.Lower, 10)
	}
	if i.Upper != nil {
		hi = strconv.FormatInt(*i.Upper, 10)
	}
	return "[" + lo + ", " + hi + "]"
}

// Join returns the hull of both intervals.
func (i Interval) Join(o Interval) Interval {
	var out Interval
	if i.Lower != nil && o.Lower != nil {
		v := min(*i.Lower, *o.Lower)
		out.Lower = &v
	}
	if i.Upper != nil && o.Upper != nil {
		v := max(*i.Upper, *o.Upper)
		out.Upper = &v
	}
	return out
}

// Widen drops any bound that grew between i and next, guaranteeing
// termination of fixpoint iteration.
func (i Interval) Widen(next Interval) Interval {
	var out Interval
	if i.Lower != nil && next.Lower != nil && *next.Lower >= *i.Lower {
		v := *i.Lower
		out.Lower = &v
	}
	if i.Upper != nil && next.Upper != nil && *next.Upper <= *i.Upper {
		v := *i.Upper
		out.Upper = &v
	}
	return out
}

// Alias tracks whether references may overlap.
type Alias int

const (
	AliasBottom Alias = iota
	NoAlias
	MayAlias
	MustAlias
	AliasTop
)

func (a Alias) String() string {
	switch a {
	case AliasBottom:
		return "bottom"
	case NoAlias:
		return "no-alias"
	case MayAlias:
		return "may-alias"
	case MustAlias:
		return "must-alias"
	default:
		return "top"
	}
}

// Join is the least upper bound; differing definite facts become MayAlias.
func (a Alias) Join(o Alias) Alias {
	switch {
	case a == AliasBottom:
		return o
	case o == AliasBottom:
		return a
	case a == AliasTop || o == AliasTop:
		return AliasTop
	case a == o:
		return a
	default:
		return MayAlias
	}
}

// Purity orders side effects from none to global writes.
type Purity int

const (
	PurityBottom Purity = iota
	Pure
	ReadOnly
	WriteLocal
	WriteGlobal
	PurityTop
)

func (p Purity) String() string {
	switch p {
	case PurityBottom:
		return "bottom"
	case Pure:
		return "pure"
	case ReadOnly:
		return "read-only"
	case WriteLocal:
		return "write-local"
	case WriteGlobal:
		return "write-global"
	default:
		return "top"
	}
}

// Join combines the effects of two paths: the stronger effect wins.
func (p Purity) Join(o Purity) Purity {
	switch {
	case p == PurityBottom:
		return o
	case o == PurityBottom:
		return p
	case p == PurityTop || o == PurityTop:
		return PurityTop
	default:
		return max(p, o)
	}
}
