package fuzzy

import (
	"fmt"
	"strings"
)

type Clause struct {
	Variable string
	Label    string
}

func (c Clause) String() string {
	return c.Variable + " is " + c.Label
}

// Rule combines its antecedents with fuzzy AND (minimum) and applies the
// resulting strength to every consequent.
type Rule struct {
	If   []Clause
	Then []Clause
}

func joinClauses(cs []Clause, sep string) string {
	ss := make([]string, len(cs))
	for i, c := range cs {
		ss[i] = c.String()
	}
	return strings.Join(ss, sep)
}

func (r Rule) String() string {
	return "IF " + joinClauses(r.If, " AND ") + " THEN " + joinClauses(r.Then, ", ")
}

type termRef struct {
	v, t int
}

type compiledRule struct {
	ante []termRef
	cons []termRef
}

// RuleBase is a validated, immutable set of rules over fixed input and
// output variables.
type RuleBase struct {
	inputs   []*Variable
	outputs  []*Variable
	inIndex  map[string]int
	outIndex map[string]int
	rules    []Rule
	compiled []compiledRule
}

func indexVariables(vs []*Variable, kind string, seen map[string]bool) (map[string]int, error) {
	if len(vs) == 0 {
		return nil, fmt.Errorf("%w: no %s variables", ErrInvalidRule, kind)
	}
	idx := make(map[string]int, len(vs))
	for i, v := range vs {
		if v == nil {
			return nil, fmt.Errorf("%w: %s variable %d is nil", ErrInvalidName, kind, i)
		}
		if seen[v.name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateVariable, v.name)
		}
		seen[v.name] = true
		idx[v.name] = i
	}
	return idx, nil
}

func resolve(c Clause, vs []*Variable, idx map[string]int, kind string) (termRef, error) {
	i, ok := idx[c.Variable]
	if !ok {
		return termRef{}, fmt.Errorf("%w: %q is not an %s variable", ErrUnknownVariable, c.Variable, kind)
	}
	t, ok := vs[i].index[c.Label]
	if !ok {
		return termRef{}, fmt.Errorf("%w: %q in variable %q", ErrUnknownLabel, c.Label, c.Variable)
	}
	return termRef{v: i, t: t}, nil
}

func NewRuleBase(inputs, outputs []*Variable, rules []Rule) (*RuleBase, error) {
	seen := make(map[string]bool)
	inIndex, err := indexVariables(inputs, "input", seen)
	if err != nil {
		return nil, err
	}
	outIndex, err := indexVariables(outputs, "output", seen)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: rule base is empty", ErrInvalidRule)
	}
	rb := &RuleBase{
		inputs:   append([]*Variable(nil), inputs...),
		outputs:  append([]*Variable(nil), outputs...),
		inIndex:  inIndex,
		outIndex: outIndex,
		rules:    make([]Rule, len(rules)),
		compiled: make([]compiledRule, len(rules)),
	}
	for i, r := range rules {
		if len(r.If) == 0 || len(r.Then) == 0 {
			return nil, fmt.Errorf("%w: rule %d needs at least one antecedent and one consequent",
				ErrInvalidRule, i+1)
		}
		cr := compiledRule{
			ante: make([]termRef, len(r.If)),
			cons: make([]termRef, len(r.Then)),
		}
		for j, c := range r.If {
			cr.ante[j], err = resolve(c, rb.inputs, inIndex, "input")
			if err != nil {
				return nil, fmt.Errorf("rule %d: %w", i+1, err)
			}
		}
		for j, c := range r.Then {
			cr.cons[j], err = resolve(c, rb.outputs, outIndex, "output")
			if err != nil {
				return nil, fmt.Errorf("rule %d: %w", i+1, err)
			}
		}
		rb.rules[i] = Rule{
			If:   append([]Clause(nil), r.If...),
			Then: append([]Clause(nil), r.Then...),
		}
		rb.compiled[i] = cr
	}
	return rb, nil
}

func (rb *RuleBase) Inputs() []*Variable { return append([]*Variable(nil), rb.inputs...) }

func (rb *RuleBase) Outputs() []*Variable { return append([]*Variable(nil), rb.outputs...) }

func (rb *RuleBase) Len() int { return len(rb.rules) }

// Rules returns a copy of the rules in evaluation order.
func (rb *RuleBase) Rules() []Rule {
	rs := make([]Rule, len(rb.rules))
	for i, r := range rb.rules {
		rs[i] = Rule{
			If:   append([]Clause(nil), r.If...),
			Then: append([]Clause(nil), r.Then...),
		}
	}
	return rs
}
