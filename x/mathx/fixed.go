package mathx

import "golang.org/x/exp/constraints"

// Fixed converts v to fixed point with the given scale (10 for tenths, 100
// for hundredths), rounding half away from zero and clamping to [lo, hi].
// NaN maps to the value in [lo, hi] closest to zero.
func Fixed[T constraints.Integer](v, scale float32, lo, hi T) T {
	x := float64(v) * float64(scale)
	if x != x {
		return Clamp(0, lo, hi)
	}
	if x < 0 {
		x -= 0.5
	} else {
		x += 0.5
	}
	return T(Clamp(x, float64(lo), float64(hi)))
}
