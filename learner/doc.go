// Package learner provides the built-in learning algorithms.
//
// Every learner turns a design matrix x (rows x features) and targets y
// (rows x outputs) into a fresh model.Linear. Learners never keep x or y.
//
// # Learners
//
//	sgd  stochastic gradient descent on squared loss with optional L2
//	     penalty, inverse-scaling step size and early stopping
//	ols  ordinary least squares (QR), or ridge regression via Cholesky
//	     when the penalty is l2 with a positive alpha
//
// A Registry maps learner names to factories. The runtime looks up the
// factory named by a model's hyperparameters on every fit:
//
//	reg := learner.NewRegistry()
//	l, err := reg.New(params)
//	lin, err := l.Fit(ctx, x, y)
//
// Additional learners, such as the WebAssembly guest learner, are added
// with Register.
package learner
