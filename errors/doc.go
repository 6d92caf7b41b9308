// Package errors provides structured error types for the model runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// Kinds are what crosses the ABI: every Kind maps to a stable integer Code that the
// host reads back through the last-error side channel.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseFit, errors.KindShapeMismatch).
//		Path("x", "dim1").
//		Value(99).
//		Detail("x has %d rows, y has %d", 99, 100).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidHandle(errors.PhaseResolve, h)
//	err := errors.NotFitted(errors.PhasePredict)
//
// All errors implement the standard error interface and support errors.Is/As.
// The Err* sentinels match on Kind alone:
//
//	if errors.Is(err, errors.ErrInvalidHandle) { ... }
package errors
