package bigo

import "math"

// RecursiveCall describes one recursive term a·T(n/b - r).
type RecursiveCall struct {
	DivisionFactor uint32 `json:"division_factor"`
	SizeReduction  uint32 `json:"size_reduction"`
	Count          uint32 `json:"count"`
}

// Recurrence is T(n) = Σ calls + f(n).
type Recurrence struct {
	Calls        []RecursiveCall `json:"recursive_calls"`
	Work         Bound           `json:"work_per_call"`
	BaseCaseSize uint32          `json:"base_case_size"`
}

const (
	masterTolerance  = 0.01
	masterConfidence = 95
)

// SolveMaster applies the Master Theorem to T(n) = a·T(n/b) + f(n) with f
// constant or linear. Any other shape reports false.
func (r Recurrence) SolveMaster() (Bound, bool) {
	if len(r.Calls) != 1 {
		return Bound{}, false
	}
	call := r.Calls[0]
	if call.SizeReduction != 0 || call.DivisionFactor <= 1 || call.Count == 0 {
		return Bound{}, false
	}
	logBA := math.Log(float64(call.Count)) / math.Log(float64(call.DivisionFactor))

	var b Bound
	switch r.Work.Class {
	case Constant:
		b = Polynomial(ceilExp(logBA), 1)
	case Linear:
		switch {
		case math.Abs(logBA-1) < masterTolerance:
			b = LinearithmicBound()
		case logBA < 1:
			b = LinearBound()
		default:
			b = Polynomial(ceilExp(logBA), 1)
		}
	default:
		return Bound{}, false
	}
	return b.WithConfidence(masterConfidence).WithFlags(Proven | Recursive), true
}

// ceilExp rounds an exponent up, ignoring floating-point noise around integers.
func ceilExp(x float64) uint32 {
	if r := math.Round(x); math.Abs(x-r) < 1e-9 {
		return uint32(r)
	}
	return uint32(math.Ceil(x))
}
