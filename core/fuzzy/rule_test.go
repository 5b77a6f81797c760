package fuzzy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Samitrad/MSD2/core/fuzzy"
)

func TestRuleString(t *testing.T) {
	r := fuzzy.Rule{
		If:   []fuzzy.Clause{{"distance", "far"}, {"heading", "left"}},
		Then: []fuzzy.Clause{{"speed", "slow"}},
	}
	assert.Equal(t, "IF distance is far AND heading is left THEN speed is slow", r.String())
}

func TestNewRuleBaseErrors(t *testing.T) {
	distance, heading, speed := testVariables(t, 1)

	tests := []struct {
		name    string
		inputs  []*fuzzy.Variable
		outputs []*fuzzy.Variable
		rules   []fuzzy.Rule
		err     error
	}{
		{
			name:    "No rules",
			inputs:  []*fuzzy.Variable{distance, heading},
			outputs: []*fuzzy.Variable{speed},
			err:     fuzzy.ErrInvalidRule,
		},
		{
			name:    "No inputs",
			outputs: []*fuzzy.Variable{speed},
			rules:   testRules(),
			err:     fuzzy.ErrInvalidRule,
		},
		{
			name:    "Duplicate variable",
			inputs:  []*fuzzy.Variable{distance, heading},
			outputs: []*fuzzy.Variable{distance},
			rules:   testRules(),
			err:     fuzzy.ErrDuplicateVariable,
		},
		{
			name:    "Empty antecedent",
			inputs:  []*fuzzy.Variable{distance, heading},
			outputs: []*fuzzy.Variable{speed},
			rules:   []fuzzy.Rule{{Then: []fuzzy.Clause{{"speed", "slow"}}}},
			err:     fuzzy.ErrInvalidRule,
		},
		{
			name:    "Unknown input variable",
			inputs:  []*fuzzy.Variable{distance, heading},
			outputs: []*fuzzy.Variable{speed},
			rules: []fuzzy.Rule{{
				If:   []fuzzy.Clause{{"altitude", "high"}},
				Then: []fuzzy.Clause{{"speed", "slow"}},
			}},
			err: fuzzy.ErrUnknownVariable,
		},
		{
			name:    "Output used as input",
			inputs:  []*fuzzy.Variable{distance, heading},
			outputs: []*fuzzy.Variable{speed},
			rules: []fuzzy.Rule{{
				If:   []fuzzy.Clause{{"speed", "slow"}},
				Then: []fuzzy.Clause{{"speed", "fast"}},
			}},
			err: fuzzy.ErrUnknownVariable,
		},
		{
			name:    "Unknown label",
			inputs:  []*fuzzy.Variable{distance, heading},
			outputs: []*fuzzy.Variable{speed},
			rules: []fuzzy.Rule{{
				If:   []fuzzy.Clause{{"distance", "far"}},
				Then: []fuzzy.Clause{{"speed", "Medium"}},
			}},
			err: fuzzy.ErrUnknownLabel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fuzzy.NewRuleBase(tt.inputs, tt.outputs, tt.rules)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRuleBaseIsImmutable(t *testing.T) {
	distance, heading, speed := testVariables(t, 1)
	rules := testRules()
	rb, err := fuzzy.NewRuleBase([]*fuzzy.Variable{distance, heading}, []*fuzzy.Variable{speed}, rules)
	require.NoError(t, err)

	e, err := fuzzy.NewEngine(rb)
	require.NoError(t, err)
	in := fuzzy.Inputs{"distance": 9, "heading": 0.8}
	before, err := e.Evaluate(in)
	require.NoError(t, err)

	rules[1].Then[0].Label = "stop"
	got := rb.Rules()
	got[0].If[0].Label = "far"

	after, err := e.Evaluate(in)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, "fast", rb.Rules()[1].Then[0].Label)
	assert.Equal(t, "near", rb.Rules()[0].If[0].Label)
	assert.Equal(t, len(testRules()), rb.Len())
}
