package model

import (
	"fmt"
	"math"

	"github.com/wippyai/model-runtime/array"
)

// Linear is the trained state of a linear model:
// out[o] = Intercept[o] + sum_j x[j] * Coef[o][j].
type Linear struct {
	Coef         [][]float64
	Intercept    []float64
	NIter        int
	TrainingLoss float64
}

// NewLinear allocates a zeroed state for nOutputs x nFeatures coefficients.
func NewLinear(nOutputs, nFeatures int) *Linear {
	coef := make([][]float64, nOutputs)
	for o := range coef {
		coef[o] = make([]float64, nFeatures)
	}
	return &Linear{
		Coef:      coef,
		Intercept: make([]float64, nOutputs),
	}
}

// NOutputs returns the output width.
func (l *Linear) NOutputs() int { return len(l.Intercept) }

// NFeatures returns the number of input features.
func (l *Linear) NFeatures() int {
	if len(l.Coef) == 0 {
		return 0
	}
	return len(l.Coef[0])
}

// Validate checks that the state is rectangular, non-empty and finite.
func (l *Linear) Validate() error {
	if len(l.Intercept) == 0 {
		return fmt.Errorf("no outputs")
	}
	if len(l.Coef) != len(l.Intercept) {
		return fmt.Errorf("%d coefficient rows for %d intercepts", len(l.Coef), len(l.Intercept))
	}
	nf := len(l.Coef[0])
	if nf == 0 {
		return fmt.Errorf("no features")
	}
	for o, row := range l.Coef {
		if len(row) != nf {
			return fmt.Errorf("coefficient row %d has %d entries, want %d", o, len(row), nf)
		}
		for j, c := range row {
			if !finite(c) {
				return fmt.Errorf("coef[%d][%d] is %v", o, j, c)
			}
		}
		if !finite(l.Intercept[o]) {
			return fmt.Errorf("intercept[%d] is %v", o, l.Intercept[o])
		}
	}
	if !finite(l.TrainingLoss) {
		return fmt.Errorf("training loss is %v", l.TrainingLoss)
	}
	return nil
}

// Predict writes predictions for every row of x into out.
// Dimensions must already be checked.
func (l *Linear) Predict(out, x array.View) {
	for i := 0; i < x.Rows(); i++ {
		row := x.Row(i)
		dst := out.Row(i)
		for o, coef := range l.Coef {
			sum := l.Intercept[o]
			for j, c := range coef {
				sum += row[j] * c
			}
			dst[o] = sum
		}
	}
}

// Clone returns a deep copy.
func (l *Linear) Clone() *Linear {
	c := &Linear{
		Coef:         make([][]float64, len(l.Coef)),
		Intercept:    append([]float64(nil), l.Intercept...),
		NIter:        l.NIter,
		TrainingLoss: l.TrainingLoss,
	}
	for o, row := range l.Coef {
		c.Coef[o] = append([]float64(nil), row...)
	}
	return c
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
