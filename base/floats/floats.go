package floats

import (
	"math"
	"slices"
)

func midpoint(x, y float64) float64 {
	return x + (y-x)/2.0
}

// Median sorts fs in place and returns its median.
func Median(fs []float64) float64 {
	n := len(fs)
	if n == 0 {
		panic("unexpected number of values")
	}
	slices.Sort(fs)
	i := n / 2
	if n%2 != 0 {
		return fs[i]
	}
	return midpoint(fs[i-1], fs[i])
}

// Clamp limits x to [lo, hi]. NaN is mapped to lo.
func Clamp(x, lo, hi float64) float64 {
	if lo > hi {
		panic("unexpected bounds")
	}
	switch {
	case math.IsNaN(x):
		return lo
	case x < lo:
		return lo
	case x > hi:
		return hi
	default:
		return x
	}
}

func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
