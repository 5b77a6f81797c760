package fuzzy

import (
	"fmt"
	"math"

	"github.com/Samitrad/MSD2/base/floats"
)

// Universe is the bounded domain of a variable. Step is the resolution used
// when output curves are sampled for defuzzification.
type Universe struct {
	Min, Max, Step float64
}

func (u Universe) Validate() error {
	if !floats.IsFinite(u.Min) || !floats.IsFinite(u.Max) || !floats.IsFinite(u.Step) {
		return fmt.Errorf("%w: %+v has non-finite bounds", ErrInvalidUniverse, u)
	}
	if u.Min >= u.Max {
		return fmt.Errorf("%w: min %v is not below max %v", ErrInvalidUniverse, u.Min, u.Max)
	}
	if u.Step <= 0 || u.Step > u.Max-u.Min {
		return fmt.Errorf("%w: step %v outside (0, %v]", ErrInvalidUniverse, u.Step, u.Max-u.Min)
	}
	return nil
}

func (u Universe) Clamp(x float64) float64 {
	return floats.Clamp(x, u.Min, u.Max)
}

// Points samples the universe at Min + i*Step, up to and including Max when
// Step divides the range.
func (u Universe) Points() []float64 {
	n := int(math.Floor((u.Max-u.Min)/u.Step+1e-9)) + 1
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = u.Min + float64(i)*u.Step
	}
	return xs
}

type Term struct {
	Label string
	Func  MembershipFunc
}

// Variable is an immutable linguistic variable.
type Variable struct {
	name     string
	universe Universe
	terms    []Term
	index    map[string]int
}

func NewVariable(name string, u Universe, terms ...Term) (*Variable, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty variable name", ErrInvalidName)
	}
	err := u.Validate()
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: variable %q has no terms", ErrInvalidName, name)
	}
	v := &Variable{
		name:     name,
		universe: u,
		terms:    make([]Term, len(terms)),
		index:    make(map[string]int, len(terms)),
	}
	for i, t := range terms {
		if t.Label == "" {
			return nil, fmt.Errorf("%w: variable %q has an empty label", ErrInvalidName, name)
		}
		if _, ok := v.index[t.Label]; ok {
			return nil, fmt.Errorf("%w: %q in variable %q", ErrDuplicateLabel, t.Label, name)
		}
		v.index[t.Label] = i
		v.terms[i] = t
	}
	return v, nil
}

func (v *Variable) Name() string { return v.name }

func (v *Variable) Universe() Universe { return v.universe }

func (v *Variable) Labels() []string {
	ls := make([]string, len(v.terms))
	for i, t := range v.terms {
		ls[i] = t.Label
	}
	return ls
}

func (v *Variable) Term(label string) (MembershipFunc, bool) {
	i, ok := v.index[label]
	if !ok {
		return MembershipFunc{}, false
	}
	return v.terms[i].Func, true
}

// Fuzzify evaluates every term of v at x.
func (v *Variable) Fuzzify(x float64) map[string]float64 {
	ds := make(map[string]float64, len(v.terms))
	for _, t := range v.terms {
		ds[t.Label] = t.Func.Degree(x)
	}
	return ds
}

func (v *Variable) degrees(x float64, ds []float64) {
	for i, t := range v.terms {
		ds[i] = t.Func.Degree(x)
	}
}
