package fuzzy

import (
	"fmt"
	"math"
	"strings"

	"github.com/Samitrad/MSD2/base/floats"
)

type Shape int

const (
	Triangular Shape = iota
	Trapezoidal
)

func (s Shape) String() string {
	switch s {
	case Triangular:
		return "triangular"
	case Trapezoidal:
		return "trapezoidal"
	default:
		return fmt.Sprintf("UnknownShape%d", int(s))
	}
}

// ParseShape accepts the long names as well as the trimf/trapmf shorthands.
func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(s) {
	case "triangular", "triangle", "trimf":
		return Triangular, nil
	case "trapezoidal", "trapezoid", "trapmf":
		return Trapezoidal, nil
	default:
		return 0, fmt.Errorf("%w: unknown shape %q", ErrInvalidShape, s)
	}
}

// MembershipFunc is an immutable piecewise-linear membership function. A
// triangle (a, b, c) is kept as the trapezoid (a, b, b, c).
type MembershipFunc struct {
	shape      Shape
	a, b, c, d float64
}

func checkBreakpoints(ps ...float64) error {
	for i, p := range ps {
		if !floats.IsFinite(p) {
			return fmt.Errorf("%w: breakpoint %d is %v", ErrInvalidShape, i, p)
		}
		if i != 0 && p < ps[i-1] {
			return fmt.Errorf("%w: breakpoints %v are not non-decreasing", ErrInvalidShape, ps)
		}
	}
	return nil
}

func NewTriangular(a, b, c float64) (MembershipFunc, error) {
	err := checkBreakpoints(a, b, c)
	if err != nil {
		return MembershipFunc{}, err
	}
	return MembershipFunc{shape: Triangular, a: a, b: b, c: b, d: c}, nil
}

func NewTrapezoidal(a, b, c, d float64) (MembershipFunc, error) {
	err := checkBreakpoints(a, b, c, d)
	if err != nil {
		return MembershipFunc{}, err
	}
	return MembershipFunc{shape: Trapezoidal, a: a, b: b, c: c, d: d}, nil
}

// NewMembershipFunc builds a function of the given shape from 3 (triangular)
// or 4 (trapezoidal) breakpoints.
func NewMembershipFunc(shape Shape, points []float64) (MembershipFunc, error) {
	switch shape {
	case Triangular:
		if len(points) != 3 {
			return MembershipFunc{}, fmt.Errorf("%w: triangular needs 3 breakpoints, got %d",
				ErrInvalidShape, len(points))
		}
		return NewTriangular(points[0], points[1], points[2])
	case Trapezoidal:
		if len(points) != 4 {
			return MembershipFunc{}, fmt.Errorf("%w: trapezoidal needs 4 breakpoints, got %d",
				ErrInvalidShape, len(points))
		}
		return NewTrapezoidal(points[0], points[1], points[2], points[3])
	default:
		return MembershipFunc{}, fmt.Errorf("%w: %v", ErrInvalidShape, shape)
	}
}

func MustTriangular(a, b, c float64) MembershipFunc {
	f, err := NewTriangular(a, b, c)
	if err != nil {
		panic(err)
	}
	return f
}

func MustTrapezoidal(a, b, c, d float64) MembershipFunc {
	f, err := NewTrapezoidal(a, b, c, d)
	if err != nil {
		panic(err)
	}
	return f
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// Degree returns the degree of membership of x. It is total: values outside
// the support, infinities and NaN yield 0.
func (f MembershipFunc) Degree(x float64) float64 {
	switch {
	case math.IsNaN(x), x < f.a, x > f.d:
		return 0
	case x < f.b:
		return clamp01((x - f.a) / (f.b - f.a))
	case x <= f.c:
		return 1
	default:
		return clamp01((f.d - x) / (f.d - f.c))
	}
}

func (f MembershipFunc) Shape() Shape { return f.shape }

func (f MembershipFunc) Points() []float64 {
	if f.shape == Triangular {
		return []float64{f.a, f.b, f.d}
	}
	return []float64{f.a, f.b, f.c, f.d}
}

func (f MembershipFunc) String() string {
	return fmt.Sprintf("%v%v", f.shape, f.Points())
}
