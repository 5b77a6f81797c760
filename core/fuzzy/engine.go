package fuzzy

// Mamdani inference: min for AND and implication, max for aggregation,
// centroid defuzzification.

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

type Inputs map[string]float64

type Outputs map[string]float64

// Curve is an aggregated output membership curve sampled on the universe of
// its variable.
type Curve struct {
	X  []float64
	Mu []float64
}

type Result struct {
	Outputs Outputs
	// Strengths holds the firing strength of each rule, in rule base order.
	Strengths []float64
	// Levels holds, per output variable and label, the height at which the
	// label's membership function is clipped.
	Levels map[string]map[string]float64
	Curves map[string]Curve
}

type outputGrid struct {
	xs      []float64
	weights []float64
	terms   [][]float64
}

// Engine evaluates a RuleBase. It holds no mutable state and may be used from
// multiple goroutines.
type Engine struct {
	rb    *RuleBase
	grids []outputGrid
}

func trapezoidWeights(n int) []float64 {
	ws := make([]float64, n)
	for i := range ws {
		ws[i] = 1
	}
	ws[0] = 0.5
	ws[n-1] = 0.5
	return ws
}

func NewEngine(rb *RuleBase) (*Engine, error) {
	if rb == nil {
		return nil, errors.New("rule base must not be nil")
	}
	e := &Engine{rb: rb, grids: make([]outputGrid, len(rb.outputs))}
	for i, v := range rb.outputs {
		xs := v.universe.Points()
		g := outputGrid{
			xs:      xs,
			weights: trapezoidWeights(len(xs)),
			terms:   make([][]float64, len(v.terms)),
		}
		for j, t := range v.terms {
			mu := make([]float64, len(xs))
			for k, x := range xs {
				mu[k] = t.Func.Degree(x)
			}
			g.terms[j] = mu
		}
		e.grids[i] = g
	}
	return e, nil
}

func (e *Engine) RuleBase() *RuleBase { return e.rb }

func (e *Engine) fuzzify(in Inputs) ([][]float64, error) {
	var missing []string
	ds := make([][]float64, len(e.rb.inputs))
	for i, v := range e.rb.inputs {
		x, ok := in[v.name]
		if !ok || math.IsNaN(x) {
			missing = append(missing, v.name)
			continue
		}
		ds[i] = make([]float64, len(v.terms))
		v.degrees(v.universe.Clamp(x), ds[i])
	}
	if len(missing) != 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingInput, strings.Join(missing, ", "))
	}
	return ds, nil
}

func (e *Engine) fire(ds [][]float64) []float64 {
	ss := make([]float64, len(e.rb.compiled))
	for i, r := range e.rb.compiled {
		s := 1.0
		for _, a := range r.ante {
			s = math.Min(s, ds[a.v][a.t])
		}
		ss[i] = s
	}
	return ss
}

func (e *Engine) clipLevels(ss []float64) [][]float64 {
	ls := make([][]float64, len(e.rb.outputs))
	for i, v := range e.rb.outputs {
		ls[i] = make([]float64, len(v.terms))
	}
	for i, r := range e.rb.compiled {
		for _, c := range r.cons {
			ls[c.v][c.t] = math.Max(ls[c.v][c.t], ss[i])
		}
	}
	return ls
}

func (g *outputGrid) aggregate(ls []float64) []float64 {
	mu := make([]float64, len(g.xs))
	for j, l := range ls {
		if l == 0 {
			continue
		}
		for k, m := range g.terms[j] {
			mu[k] = math.Max(mu[k], math.Min(l, m))
		}
	}
	return mu
}

func (g *outputGrid) centroid(mu []float64) (float64, bool) {
	var num, den float64
	for k, m := range mu {
		w := g.weights[k] * m
		num += w * g.xs[k]
		den += w
	}
	if den <= 0 {
		return 0, false
	}
	return num / den, true
}

// Infer runs fuzzification, rule firing, aggregation and defuzzification.
// Inputs outside a variable's universe are clamped to it. If no rule fired
// for some output variable, the result is returned without that output
// together with an *UndefinedOutputError.
func (e *Engine) Infer(in Inputs) (*Result, error) {
	ds, err := e.fuzzify(in)
	if err != nil {
		return nil, err
	}
	ss := e.fire(ds)
	ls := e.clipLevels(ss)
	r := &Result{
		Outputs:   make(Outputs, len(e.rb.outputs)),
		Strengths: ss,
		Levels:    make(map[string]map[string]float64, len(e.rb.outputs)),
		Curves:    make(map[string]Curve, len(e.rb.outputs)),
	}
	var undefined []string
	for i, v := range e.rb.outputs {
		g := &e.grids[i]
		mu := g.aggregate(ls[i])
		r.Curves[v.name] = Curve{X: append([]float64(nil), g.xs...), Mu: mu}
		levels := make(map[string]float64, len(v.terms))
		for j, t := range v.terms {
			levels[t.Label] = ls[i][j]
		}
		r.Levels[v.name] = levels
		y, ok := g.centroid(mu)
		if !ok {
			undefined = append(undefined, v.name)
			continue
		}
		r.Outputs[v.name] = y
	}
	if len(undefined) != 0 {
		return r, &UndefinedOutputError{Variables: undefined}
	}
	return r, nil
}

// Evaluate is Infer without the intermediate values.
func (e *Engine) Evaluate(in Inputs) (Outputs, error) {
	r, err := e.Infer(in)
	if r == nil {
		return nil, err
	}
	return r.Outputs, err
}
