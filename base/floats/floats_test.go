package floats_test

import (
	"math"
	"testing"

	"github.com/Samitrad/MSD2/base/floats"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		name      string
		input     []float64
		want      float64
		wantPanic bool
	}{
		{
			name:      "Nil slice",
			input:     nil,
			wantPanic: true,
		},
		{
			name:      "Empty slice",
			input:     []float64{},
			wantPanic: true,
		},
		{
			name:  "Single element",
			input: []float64{42.0},
			want:  42.0,
		},
		{
			name:  "Two elements",
			input: []float64{1.0, 2.0},
			want:  1.5,
		},
		{
			name:  "Three echoes, one outlier",
			input: []float64{12.5, 250.0, 12.0},
			want:  12.5,
		},
		{
			name:  "Four elements",
			input: []float64{4.0, 1.0, 3.0, 2.0},
			want:  2.5,
		},
		{
			name:  "Duplicate values",
			input: []float64{20.0, 20.0, 20.0},
			want:  20.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("expected panic, got none")
					}
				}()
				_ = floats.Median(tt.input)
			} else {
				got := floats.Median(tt.input)
				if got != tt.want {
					t.Errorf("Median(%v) = %v, want %v", tt.input, got, tt.want)
				}
			}
		})
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name      string
		x, lo, hi float64
		want      float64
		wantPanic bool
	}{
		{name: "Inside", x: 12, lo: 0, hi: 30, want: 12},
		{name: "Below", x: -3, lo: 0, hi: 30, want: 0},
		{name: "Above", x: 412.7, lo: 0, hi: 30, want: 30},
		{name: "Lower bound", x: 0, lo: 0, hi: 30, want: 0},
		{name: "Upper bound", x: 30, lo: 0, hi: 30, want: 30},
		{name: "Negative range", x: 2, lo: -1, hi: 1, want: 1},
		{name: "Positive infinity", x: math.Inf(1), lo: 0, hi: 100, want: 100},
		{name: "NaN", x: math.NaN(), lo: 0, hi: 100, want: 0},
		{name: "Inverted bounds", x: 1, lo: 2, hi: 1, wantPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("expected panic, got none")
					}
				}()
				_ = floats.Clamp(tt.x, tt.lo, tt.hi)
			} else {
				got := floats.Clamp(tt.x, tt.lo, tt.hi)
				if got != tt.want {
					t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tt.x, tt.lo, tt.hi, got, tt.want)
				}
			}
		})
	}
}
