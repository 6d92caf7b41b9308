package learner

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/wippyai/model-runtime/array"
	"github.com/wippyai/model-runtime/errors"
	"github.com/wippyai/model-runtime/model"
)

// OLS fits a linear model in closed form. With penalty "none" (or alpha 0)
// it solves the least-squares problem by QR (LQ for wide systems). With an
// l2 penalty it solves the ridge normal equations
// (AᵀA + alpha·I)·W = AᵀY by Cholesky, leaving the intercept unpenalized.
type OLS struct {
	params model.Hyperparams
}

// NewOLS creates a least-squares learner.
func NewOLS(params model.Hyperparams) *OLS {
	return &OLS{params: params}
}

// Name implements model.Learner.
func (l *OLS) Name() string { return NameOLS }

// Fit implements model.Learner.
func (l *OLS) Fit(ctx context.Context, x, y array.View) (*model.Linear, error) {
	if err := model.CheckFitShapes(x, y); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.FitFailed(NameOLS, err)
	}

	a := design(x, l.params.FitIntercept)
	b := mat.NewDense(y.Rows(), y.Cols(), append([]float64(nil), y.Data()...))

	var w *mat.Dense
	var err error
	if l.params.Penalty == model.PenaltyL2 && l.params.Alpha > 0 {
		w, err = ridge(a, b, l.params.Alpha, l.params.FitIntercept)
	} else {
		w, err = leastSquares(a, b)
	}
	if err != nil {
		return nil, errors.FitFailed(NameOLS, err)
	}

	return l.linear(w, a, b, x.Cols(), y.Cols()), nil
}

// design builds the n x (p+1) matrix [1 | x] when fitting an intercept, or a copy of x.
func design(x array.View, intercept bool) *mat.Dense {
	n, p := x.Dims()
	if !intercept {
		return mat.NewDense(n, p, append([]float64(nil), x.Data()...))
	}
	a := mat.NewDense(n, p+1, nil)
	for i := 0; i < n; i++ {
		a.Set(i, 0, 1)
		for j, v := range x.Row(i) {
			a.Set(i, j+1, v)
		}
	}
	return a
}

func leastSquares(a, b *mat.Dense) (*mat.Dense, error) {
	var w mat.Dense
	if err := w.Solve(a, b); err != nil {
		var cond mat.Condition
		if !stderrors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, fmt.Errorf("least squares: %w", err)
		}
		// finite condition numbers only flag an ill-conditioned system
	}
	return &w, nil
}

func ridge(a, b *mat.Dense, alpha float64, intercept bool) (*mat.Dense, error) {
	_, k := a.Dims()

	var gram mat.SymDense
	gram.SymOuterK(1, a.T())
	for i := 0; i < k; i++ {
		if intercept && i == 0 {
			continue
		}
		gram.SetSym(i, i, gram.At(i, i)+alpha)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return nil, fmt.Errorf("ridge: normal equations are not positive definite")
	}

	var rhs mat.Dense
	rhs.Mul(a.T(), b)

	var w mat.Dense
	if err := chol.SolveTo(&w, &rhs); err != nil {
		var cond mat.Condition
		if !stderrors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, fmt.Errorf("ridge: %w", err)
		}
	}
	return &w, nil
}

// linear converts the (k x outputs) solution into a model.Linear and
// computes the mean half squared residual as training loss.
func (l *OLS) linear(w, a, b *mat.Dense, nFeatures, nOutputs int) *model.Linear {
	lin := model.NewLinear(nOutputs, nFeatures)
	offset := 0
	if l.params.FitIntercept {
		offset = 1
	}
	for o := 0; o < nOutputs; o++ {
		if offset == 1 {
			lin.Intercept[o] = w.At(0, o)
		}
		for j := 0; j < nFeatures; j++ {
			lin.Coef[o][j] = w.At(j+offset, o)
		}
	}

	var pred mat.Dense
	pred.Mul(a, w)
	pred.Sub(&pred, b)
	n, _ := b.Dims()
	sq := mat.Norm(&pred, 2)
	lin.TrainingLoss = 0.5 * sq * sq / float64(n*nOutputs)
	lin.NIter = 1
	return lin
}
