package model

import (
	"context"
	"sync/atomic"

	"github.com/wippyai/model-runtime/array"
	"github.com/wippyai/model-runtime/errors"
)

// Learner trains a Linear state from a design matrix x (rows x features)
// and targets y (rows x outputs). Implementations must not retain x or y.
type Learner interface {
	Name() string
	Fit(ctx context.Context, x, y array.View) (*Linear, error)
}

// Factory builds a Learner from hyperparameters.
type Factory func(Hyperparams) (Learner, error)

// State is an immutable snapshot of a model. Fitted is nil until the model
// has been trained or given trained parameters. Installed marks a state
// that came from parameter text, which may carry hyperparameters only.
type State struct {
	Fitted    *Linear
	Params    Hyperparams
	Installed bool
}

// HasParams reports whether the state has anything to export: trained
// parameters or installed parameter text.
func (s *State) HasParams() bool {
	return s.Fitted != nil || s.Installed
}

// Model is a trainable linear model. Its state is replaced as a whole by
// Fit and Swap, so a failed operation leaves the previous state intact.
type Model struct {
	state atomic.Pointer[State]
}

// New creates an unfitted model.
func New(params Hyperparams) *Model {
	m := &Model{}
	m.state.Store(&State{Params: params})
	return m
}

// State returns the current state. Callers must not modify it.
func (m *Model) State() *State {
	return m.state.Load()
}

// Hyperparams returns the model's hyperparameters.
func (m *Model) Hyperparams() Hyperparams {
	return m.state.Load().Params
}

// Fitted reports whether the model holds trained parameters.
func (m *Model) Fitted() bool {
	return m.state.Load().Fitted != nil
}

// OutputWidth returns the number of outputs of a fitted model, or 0.
func (m *Model) OutputWidth() int {
	if l := m.state.Load().Fitted; l != nil {
		return l.NOutputs()
	}
	return 0
}

// Swap replaces the model state. s must not be modified afterwards.
func (m *Model) Swap(s *State) {
	m.state.Store(s)
}

// Drop releases the trained state when the model leaves its table.
func (m *Model) Drop() {
	m.state.Store(&State{Params: m.state.Load().Params})
}

// CheckFitShapes validates x and y for training.
func CheckFitShapes(x, y array.View) error {
	if x.Rows() != y.Rows() {
		return errors.DimMismatch(errors.PhaseFit, []string{"y", "dim1"}, y.Rows(), x.Rows())
	}
	if x.Rows() == 0 {
		return errors.ShapeMismatch(errors.PhaseFit, []string{"x", "dim1"}, "no samples")
	}
	if x.Cols() == 0 {
		return errors.ShapeMismatch(errors.PhaseFit, []string{"x", "dim2"}, "no features")
	}
	if y.Cols() == 0 {
		return errors.ShapeMismatch(errors.PhaseFit, []string{"y", "dim2"}, "no outputs")
	}
	return nil
}

// Fit trains the model with learner. On success the new trained state
// replaces the old one; on any failure the model is unchanged.
func (m *Model) Fit(ctx context.Context, learner Learner, x, y array.View) error {
	if err := CheckFitShapes(x, y); err != nil {
		return err
	}

	prev := m.state.Load()
	lin, err := learner.Fit(ctx, x, y)
	if err != nil {
		if errors.KindOf(err) == errors.KindFitFailed {
			return err
		}
		return errors.FitFailed(learner.Name(), err)
	}

	if err := lin.Validate(); err != nil {
		return errors.FitFailed(learner.Name(), err)
	}
	if lin.NFeatures() != x.Cols() || lin.NOutputs() != y.Cols() {
		return errors.New(errors.PhaseFit, errors.KindFitFailed).
			Detail("learner %q returned %dx%d coefficients, want %dx%d",
				learner.Name(), lin.NOutputs(), lin.NFeatures(), y.Cols(), x.Cols()).
			Build()
	}

	m.state.Store(&State{Params: prev.Params, Fitted: lin})
	return nil
}

// Predict writes out[i][o] = intercept[o] + sum_j x[i][j]*coef[o][j].
func (m *Model) Predict(out, x array.View) error {
	lin := m.state.Load().Fitted
	if lin == nil {
		return errors.NotFitted(errors.PhasePredict)
	}
	if x.Cols() != lin.NFeatures() {
		return errors.DimMismatch(errors.PhasePredict, []string{"x", "dim2"}, x.Cols(), lin.NFeatures())
	}
	if out.Rows() != x.Rows() {
		return errors.DimMismatch(errors.PhasePredict, []string{"out", "dim1"}, out.Rows(), x.Rows())
	}
	if out.Cols() != lin.NOutputs() {
		return errors.DimMismatch(errors.PhasePredict, []string{"out", "dim2"}, out.Cols(), lin.NOutputs())
	}
	lin.Predict(out, x)
	return nil
}
