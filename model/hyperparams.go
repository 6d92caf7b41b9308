package model

import (
	"fmt"

	"github.com/wippyai/model-runtime/errors"
)

// Loss and penalty names.
const (
	LossSquaredError = "squared_error"

	PenaltyL2   = "l2"
	PenaltyNone = "none"

	LearningRateInvScaling = "invscaling"
	LearningRateConstant   = "constant"
)

// Hyperparams configure a learner. They travel with the model through
// get_params/set_params and snapshots.
type Hyperparams struct {
	Learner       string  `json:"name" yaml:"name"`
	Loss          string  `json:"loss" yaml:"loss"`
	Penalty       string  `json:"penalty" yaml:"penalty"`
	LearningRate  string  `json:"learning_rate" yaml:"learning_rate"`
	Alpha         float64 `json:"alpha" yaml:"alpha"`
	Eta0          float64 `json:"eta0" yaml:"eta0"`
	PowerT        float64 `json:"power_t" yaml:"power_t"`
	Tol           float64 `json:"tol" yaml:"tol"`
	MaxIter       int     `json:"max_iter" yaml:"max_iter"`
	NIterNoChange int     `json:"n_iter_no_change" yaml:"n_iter_no_change"`
	Seed          uint64  `json:"seed" yaml:"seed"`
	Shuffle       bool    `json:"shuffle" yaml:"shuffle"`
	FitIntercept  bool    `json:"fit_intercept" yaml:"fit_intercept"`
}

// DefaultHyperparams returns the default hyperparameters: the closed-form
// least-squares learner with a light L2 penalty. The step-size and epoch
// fields apply once Learner is set to "sgd" (inverse-scaling step size, up
// to 10000 epochs).
func DefaultHyperparams() Hyperparams {
	return Hyperparams{
		Learner:       "ols",
		Loss:          LossSquaredError,
		Penalty:       PenaltyL2,
		LearningRate:  LearningRateInvScaling,
		Alpha:         1e-4,
		Eta0:          0.01,
		PowerT:        0.25,
		Tol:           1e-3,
		MaxIter:       10000,
		NIterNoChange: 5,
		Shuffle:       true,
		FitIntercept:  true,
	}
}

// Validate checks that every field holds a supported value.
// A negative Tol disables the convergence check.
func (h Hyperparams) Validate() error {
	bad := func(field, format string, args ...any) error {
		return errors.New(errors.PhaseValidate, errors.KindInvalidArgument).
			Path("learner", field).
			Detail(format, args...).
			Build()
	}

	if h.Learner == "" {
		return bad("name", "learner name is empty")
	}
	if h.Loss != LossSquaredError {
		return bad("loss", "unsupported loss %q", h.Loss)
	}
	switch h.Penalty {
	case PenaltyL2, PenaltyNone:
	default:
		return bad("penalty", "unsupported penalty %q", h.Penalty)
	}
	switch h.LearningRate {
	case LearningRateInvScaling, LearningRateConstant:
	default:
		return bad("learning_rate", "unsupported learning rate %q", h.LearningRate)
	}
	if h.Alpha < 0 || !finite(h.Alpha) {
		return bad("alpha", "alpha must be a finite non-negative number, got %v", h.Alpha)
	}
	if h.Eta0 <= 0 || !finite(h.Eta0) {
		return bad("eta0", "eta0 must be positive, got %v", h.Eta0)
	}
	if h.PowerT < 0 || !finite(h.PowerT) {
		return bad("power_t", "power_t must be non-negative, got %v", h.PowerT)
	}
	if !finite(h.Tol) {
		return bad("tol", "tol must be finite, got %v", h.Tol)
	}
	if h.MaxIter < 1 {
		return bad("max_iter", "max_iter must be at least 1, got %d", h.MaxIter)
	}
	if h.NIterNoChange < 1 {
		return bad("n_iter_no_change", "n_iter_no_change must be at least 1, got %d", h.NIterNoChange)
	}
	return nil
}

// String implements fmt.Stringer.
func (h Hyperparams) String() string {
	return fmt.Sprintf("%s(loss=%s, penalty=%s, alpha=%g, eta0=%g, max_iter=%d)",
		h.Learner, h.Loss, h.Penalty, h.Alpha, h.Eta0, h.MaxIter)
}
