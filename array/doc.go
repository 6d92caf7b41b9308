// Package array provides non-owning views over caller-owned float64 matrices.
//
// A Descriptor is what crosses the C boundary: a raw address and two
// dimensions. FromDescriptor validates it and returns a View that reads and
// writes the caller's memory in place. Elements are row-major, contiguous,
// little-endian float64; element (i, j) lives at offset i*cols + j.
//
// Views must not outlive the call that created them. The core never copies
// a descriptor's memory into long-lived state and never resizes an output.
//
// Only the address and dimensions can be validated. A descriptor whose
// buffer is shorter than dim1*dim2 elements is undefined behavior on the
// caller's side.
package array
