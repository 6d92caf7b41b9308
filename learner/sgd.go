package learner

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/wippyai/model-runtime/array"
	"github.com/wippyai/model-runtime/errors"
	"github.com/wippyai/model-runtime/model"
)

// maxDLoss clips the loss derivative to keep a single bad sample from
// blowing up the weights.
const maxDLoss = 1e12

// SGD fits a linear model by plain stochastic gradient descent on squared
// loss. Each output column is fitted independently.
//
// Per sample, with step size eta:
//
//	p      = w·x + b
//	dloss  = clip(p - y)
//	w      = w * (1 - eta*alpha)   (l2 penalty only)
//	w      = w - eta*dloss*x
//	b      = b - eta*dloss
//
// eta is eta0 for the constant schedule and eta0 / t^power_t for
// invscaling, where t counts samples seen. Training stops after
// n_iter_no_change epochs whose summed loss fails to improve on the best
// by tol*n_samples, or after max_iter epochs. A negative tol disables the
// check.
type SGD struct {
	params model.Hyperparams
}

// NewSGD creates an SGD learner.
func NewSGD(params model.Hyperparams) *SGD {
	return &SGD{params: params}
}

// Name implements model.Learner.
func (s *SGD) Name() string { return NameSGD }

// Fit implements model.Learner.
func (s *SGD) Fit(ctx context.Context, x, y array.View) (*model.Linear, error) {
	if err := model.CheckFitShapes(x, y); err != nil {
		return nil, err
	}

	lin := model.NewLinear(y.Cols(), x.Cols())
	var lossSum float64
	for o := 0; o < y.Cols(); o++ {
		res, err := s.fitColumn(ctx, x, y.Col(o))
		if err != nil {
			if y.Cols() > 1 {
				err = fmt.Errorf("output %d: %w", o, err)
			}
			return nil, errors.FitFailed(NameSGD, err)
		}
		lin.Coef[o] = res.coef
		lin.Intercept[o] = res.intercept
		lin.NIter = max(lin.NIter, res.epochs)
		lossSum += res.loss
	}
	lin.TrainingLoss = lossSum / float64(y.Cols())
	return lin, nil
}

type columnFit struct {
	coef      []float64
	intercept float64
	epochs    int
	loss      float64
}

func (s *SGD) fitColumn(ctx context.Context, x array.View, target []float64) (columnFit, error) {
	p := s.params
	n, nf := x.Rows(), x.Cols()

	w := make([]float64, nf)
	var b float64

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))

	bestLoss := math.Inf(1)
	noImprovement := 0
	t := 1.0
	res := columnFit{}

	for epoch := 1; epoch <= p.MaxIter; epoch++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if p.Shuffle {
			rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		var sumLoss float64
		for _, i := range order {
			row := x.Row(i)

			eta := p.Eta0
			if p.LearningRate == model.LearningRateInvScaling {
				eta = p.Eta0 / math.Pow(t, p.PowerT)
			}

			pred := b
			for j, v := range row {
				pred += w[j] * v
			}
			diff := pred - target[i]
			sumLoss += 0.5 * diff * diff

			dloss := max(-maxDLoss, min(maxDLoss, diff))
			update := -eta * dloss

			if p.Penalty == model.PenaltyL2 {
				scale := max(0, 1-eta*p.Alpha)
				for j := range w {
					w[j] *= scale
				}
			}
			if update != 0 {
				for j, v := range row {
					w[j] += update * v
				}
				if p.FitIntercept {
					b += update
				}
			}
			t++
		}

		if !finiteAll(w) || math.IsNaN(b) || math.IsInf(b, 0) || math.IsInf(sumLoss, 0) || math.IsNaN(sumLoss) {
			return res, fmt.Errorf("floating-point overflow at epoch %d, scaling the input may help", epoch)
		}

		res.epochs = epoch
		res.loss = sumLoss / float64(n)

		if p.Tol >= 0 && sumLoss > bestLoss-p.Tol*float64(n) {
			noImprovement++
		} else {
			noImprovement = 0
		}
		if sumLoss < bestLoss {
			bestLoss = sumLoss
		}
		if noImprovement >= p.NIterNoChange {
			break
		}
	}

	res.coef = w
	res.intercept = b
	return res, nil
}

func finiteAll(vs []float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
