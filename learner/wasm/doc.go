// Package wasm runs a learning algorithm compiled to WebAssembly.
//
// A guest module must export:
//
//	memory                                   linear memory
//	alloc(size i32) -> i32                   returns an 8-byte aligned pointer
//	fit(x, y, rows, n_features, n_outputs, out i32) -> i32
//
// x is rows*n_features and y rows*n_outputs little-endian f64, row-major.
// On success fit writes, for each output in order, the intercept followed
// by n_features coefficients as f64 at out and returns 0. Any other result
// is a failure status.
//
// The module is compiled once by Compile. Every Fit runs in a fresh,
// anonymous instance that is closed afterwards, so guest state never leaks
// between fits and concurrent fits do not share memory.
package wasm
