// Package layout maps (year, lane) pairs to pixels and models pan/zoom as
// immutable affine transforms applied to fixed base scales.
package layout

import "math"

// Scale is a linear mapping from a domain interval to a pixel range.
// Scales are values; derived scales never alias the original.
type Scale struct {
	d0, d1 float64
	r0, r1 float64
}

// NewScale returns the linear scale [d0, d1] -> [r0, r1].
func NewScale(d0, d1, r0, r1 float64) Scale {
	return Scale{d0: d0, d1: d1, r0: r0, r1: r1}
}

func (s Scale) Domain() (float64, float64) { return s.d0, s.d1 }
func (s Scale) Range() (float64, float64)  { return s.r0, s.r1 }

// Map converts a domain value to a range value. A degenerate domain maps
// everything to the middle of the range.
func (s Scale) Map(v float64) float64 {
	if s.d1 == s.d0 {
		return (s.r0 + s.r1) / 2
	}
	return s.r0 + (v-s.d0)/(s.d1-s.d0)*(s.r1-s.r0)
}

// Invert converts a range value back to the domain.
func (s Scale) Invert(px float64) float64 {
	if s.r1 == s.r0 {
		return (s.d0 + s.d1) / 2
	}
	return s.d0 + (px-s.r0)/(s.r1-s.r0)*(s.d1-s.d0)
}

// Ticks returns roughly count round values (1, 2 or 5 times a power of ten)
// inside the domain, in ascending domain order.
func (s Scale) Ticks(count int) []float64 {
	lo, hi := s.d0, s.d1
	if hi < lo {
		lo, hi = hi, lo
	}
	return ticks(lo, hi, count)
}

var (
	e10 = math.Sqrt(50)
	e5  = math.Sqrt(10)
	e2  = math.Sqrt(2)
)

func ticks(start, stop float64, count int) []float64 {
	if count <= 0 {
		return nil
	}
	if start == stop {
		return []float64{start}
	}
	step := tickIncrement(start, stop, count)
	if step == 0 || math.IsInf(step, 0) || math.IsNaN(step) {
		return nil
	}
	var out []float64
	if step > 0 {
		r0, r1 := math.Ceil(start/step), math.Floor(stop/step)
		for i := r0; i <= r1; i++ {
			out = append(out, i*step)
		}
		return out
	}
	step = -step
	r0, r1 := math.Ceil(start*step), math.Floor(stop*step)
	for i := r0; i <= r1; i++ {
		out = append(out, i/step)
	}
	return out
}

// tickIncrement returns a positive step for steps >= 1 and the negated
// inverse for fractional steps, which keeps tick values exact.
func tickIncrement(start, stop float64, count int) float64 {
	step := (stop - start) / float64(count)
	power := math.Floor(math.Log10(step))
	errRatio := step / math.Pow(10, power)
	factor := 1.0
	switch {
	case errRatio >= e10:
		factor = 10
	case errRatio >= e5:
		factor = 5
	case errRatio >= e2:
		factor = 2
	}
	if power >= 0 {
		return factor * math.Pow(10, power)
	}
	return -math.Pow(10, -power) / factor
}
